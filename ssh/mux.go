// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"fmt"
	"sync"
)

// mux is the connection-layer dispatcher (RFC 4254): it owns the single
// goroutine reading packets off a packetConn (the handshakeTransport) and fans CHANNEL_* and
// global-request traffic out to per-channel buffers and request queues.
type mux struct {
	conn   packetConn
	config *Config

	incomingChannels chan NewChannel
	incomingRequests chan *Request

	chansMu  sync.Mutex
	chans    map[uint32]*channel
	nextID   uint32

	globalRepliesMu sync.Mutex
	globalReplies   chan globalReplyMsg

	channelRepliesMu sync.Mutex
	channelReplies   map[uint32]chan channelReplyMsg

	errMu sync.Mutex
	err   error
	done  chan struct{}
}

type globalReplyMsg struct {
	ok      bool
	payload []byte
}

type channelReplyMsg struct {
	ok bool
}

func newMux(conn packetConn, config *Config) *mux {
	m := &mux{
		conn:             conn,
		config:           config,
		incomingChannels: make(chan NewChannel, 16),
		incomingRequests: make(chan *Request, 16),
		chans:            make(map[uint32]*channel),
		globalReplies:    make(chan globalReplyMsg, 1),
		channelReplies:   make(map[uint32]chan channelReplyMsg),
		done:             make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *mux) setErr(err error) {
	m.errMu.Lock()
	if m.err == nil {
		m.err = err
		close(m.done)
	}
	m.errMu.Unlock()
}

func (m *mux) wait() error {
	<-m.done
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

func (m *mux) loop() {
	for {
		packet, err := m.conn.readPacket()
		if err != nil {
			m.closeAllChannels(err)
			close(m.incomingChannels)
			close(m.incomingRequests)
			m.setErr(err)
			return
		}
		if err := m.dispatch(packet); err != nil {
			m.closeAllChannels(err)
			close(m.incomingChannels)
			close(m.incomingRequests)
			m.setErr(err)
			return
		}
	}
}

func (m *mux) closeAllChannels(err error) {
	m.chansMu.Lock()
	defer m.chansMu.Unlock()
	for _, ch := range m.chans {
		ch.pending.closeWithError(err)
		ch.extPending.closeWithError(err)
		if ch.remoteWindow != nil {
			ch.remoteWindow.close()
		}
		if ch.openResult != nil {
			select {
			case ch.openResult <- nil:
			default:
			}
		}
	}
}

func (m *mux) dispatch(packet []byte) error {
	switch packet[0] {
	case msgGlobalRequest:
		return m.handleGlobalRequest(packet)
	case msgRequestSuccess:
		return m.handleGlobalReply(true, packet)
	case msgRequestFailure:
		return m.handleGlobalReply(false, packet)
	case msgChannelOpen:
		return m.handleChannelOpen(packet)
	case msgChannelOpenConfirm, msgChannelOpenFailure:
		return m.handleChannelOpenResult(packet)
	case msgChannelWindowAdjust:
		return m.handleWindowAdjust(packet)
	case msgChannelData:
		return m.handleChannelData(packet)
	case msgChannelExtendedData:
		return m.handleChannelExtendedData(packet)
	case msgChannelEOF:
		return m.handleChannelEOF(packet)
	case msgChannelClose:
		return m.handleChannelClose(packet)
	case msgChannelRequest:
		return m.handleChannelRequest(packet)
	case msgChannelSuccess:
		return m.handleChannelRequestReply(true, packet)
	case msgChannelFailure:
		return m.handleChannelRequestReply(false, packet)
	case msgDisconnect:
		var d disconnectMsg
		Unmarshal(packet, &d)
		return &DisconnectError{Reason: d.Reason, Message: d.Message}
	default:
		return m.conn.writePacket(Marshal(&unimplementedMsg{SeqNum: m.conn.lastReadSeqNum()}))
	}
}

func (m *mux) handleGlobalRequest(packet []byte) error {
	var req globalRequestMsg
	if err := Unmarshal(packet, &req); err != nil {
		return err
	}
	r := &Request{Type: req.Type, WantReply: req.WantReply, Payload: req.Data, mux: m}
	m.incomingRequests <- r
	return nil
}

func (m *mux) replyGlobalRequest(ok bool, payload []byte) error {
	if ok {
		return m.conn.writePacket(Marshal(&globalRequestSuccessMsg{Data: payload}))
	}
	return m.conn.writePacket(Marshal(&globalRequestFailureMsg{}))
}

func (m *mux) handleGlobalReply(ok bool, packet []byte) error {
	payload := packet[1:]
	select {
	case m.globalReplies <- globalReplyMsg{ok: ok, payload: payload}:
	default:
	}
	return nil
}

func (m *mux) sendGlobalRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	if err := m.conn.writePacket(Marshal(&globalRequestMsg{Type: name, WantReply: wantReply, Data: payload})); err != nil {
		return false, nil, err
	}
	if !wantReply {
		return false, nil, nil
	}
	reply := <-m.globalReplies
	return reply.ok, reply.payload, nil
}

func (m *mux) allocChannel() (*channel, chan channelReplyMsg) {
	m.chansMu.Lock()
	defer m.chansMu.Unlock()
	id := m.nextID
	m.nextID++
	ch := &channel{
		mux:               m,
		localID:           id,
		myWindow:          m.config.ChannelInitialWindow,
		maxIncomingPacket: m.config.ChannelMaxPacket,
		incomingRequests:  make(chan *Request, 16),
		pending:           newBuffer(),
		extPending:        newBuffer(),
		openResult:        make(chan []byte, 1),
	}
	m.chans[id] = ch

	replyCh := make(chan channelReplyMsg, 1)
	m.channelRepliesMu.Lock()
	m.channelReplies[id] = replyCh
	m.channelRepliesMu.Unlock()
	return ch, replyCh
}

func (m *mux) openChannel(chanType string, extra []byte) (*channel, error) {
	ch, _ := m.allocChannel()
	ch.decided = true // an outgoing channel is never Accept()ed by us
	ch.chanType = chanType

	openMsg := channelOpenMsg{
		ChanType:         chanType,
		PeersID:          ch.localID,
		PeersWindow:      ch.myWindow,
		MaxPacketSize:    ch.maxIncomingPacket,
		TypeSpecificData: extra,
	}
	if err := m.conn.writePacket(Marshal(&openMsg)); err != nil {
		return nil, err
	}

	packet, err := m.waitChannelOpenResult(ch.localID)
	if err != nil {
		return nil, err
	}
	switch packet[0] {
	case msgChannelOpenConfirm:
		var confirm channelOpenConfirmMsg
		if err := Unmarshal(packet, &confirm); err != nil {
			return nil, err
		}
		ch.remoteID = confirm.PeersID
		ch.maxRemotePacket = confirm.MaxPacketSize
		ch.remoteWindow = newWindow(confirm.MyWindow)
		return ch, nil
	case msgChannelOpenFailure:
		var failure channelOpenFailureMsg
		if err := Unmarshal(packet, &failure); err != nil {
			return nil, err
		}
		m.forgetChannel(ch.localID)
		return nil, fmt.Errorf("ssh: channel open failed: %s (reason %d)", failure.Message, failure.Reason)
	default:
		return nil, unexpectedMessageError(msgChannelOpenConfirm, packet[0])
	}
}

// waitChannelOpenResult blocks for the CHANNEL_OPEN_CONFIRMATION/FAILURE
// handleChannelOpenResult delivers onto ch.openResult.
func (m *mux) waitChannelOpenResult(localID uint32) ([]byte, error) {
	m.chansMu.Lock()
	ch, ok := m.chans[localID]
	m.chansMu.Unlock()
	if !ok {
		return nil, errors.New("ssh: unknown channel")
	}
	packet := <-ch.openResult
	if packet == nil {
		return nil, errChannelClosed
	}
	return packet, nil
}

func (m *mux) handleChannelOpenResult(packet []byte) error {
	id, _, ok := parseUint32(packet[1:])
	if !ok {
		return parseError(packet[0])
	}
	m.chansMu.Lock()
	ch, ok := m.chans[id]
	m.chansMu.Unlock()
	if !ok {
		return fmt.Errorf("ssh: channel open result for unknown channel %d", id)
	}
	ch.openResult <- packet
	return nil
}

func (m *mux) handleChannelOpen(packet []byte) error {
	var openMsg channelOpenMsg
	if err := Unmarshal(packet, &openMsg); err != nil {
		return err
	}
	m.chansMu.Lock()
	id := m.nextID
	m.nextID++
	ch := &channel{
		mux:               m,
		localID:           id,
		remoteID:          openMsg.PeersID,
		myWindow:          m.config.ChannelInitialWindow,
		maxIncomingPacket: m.config.ChannelMaxPacket,
		maxRemotePacket:   openMsg.MaxPacketSize,
		remoteWindow:      newWindow(openMsg.PeersWindow),
		chanType:          openMsg.ChanType,
		extraData:         openMsg.TypeSpecificData,
		incomingRequests:  make(chan *Request, 16),
		pending:           newBuffer(),
		extPending:        newBuffer(),
	}
	m.chans[id] = ch
	m.chansMu.Unlock()

	m.incomingChannels <- ch
	return nil
}

func (m *mux) lookupChannel(remoteOrLocalID uint32, byLocal bool) (*channel, bool) {
	m.chansMu.Lock()
	defer m.chansMu.Unlock()
	if byLocal {
		ch, ok := m.chans[remoteOrLocalID]
		return ch, ok
	}
	for _, ch := range m.chans {
		if ch.remoteID == remoteOrLocalID {
			return ch, true
		}
	}
	return nil, false
}

func (m *mux) forgetChannel(localID uint32) {
	m.chansMu.Lock()
	delete(m.chans, localID)
	m.chansMu.Unlock()
	m.channelRepliesMu.Lock()
	delete(m.channelReplies, localID)
	m.channelRepliesMu.Unlock()
}

func (m *mux) handleWindowAdjust(packet []byte) error {
	var adj channelWindowAdjustMsg
	if err := Unmarshal(packet, &adj); err != nil {
		return err
	}
	ch, ok := m.lookupChannel(adj.PeersID, true)
	if !ok {
		return nil
	}
	ch.remoteWindow.add(adj.AdditionalBytes)
	return nil
}

func (m *mux) handleChannelData(packet []byte) error {
	var data channelDataMsg
	if err := Unmarshal(packet, &data); err != nil {
		return err
	}
	ch, ok := m.lookupChannel(data.PeersID, true)
	if !ok {
		return nil
	}
	if err := ch.consumeWindow(uint32(len(data.Rest))); err != nil {
		return m.protocolErrorDisconnect(err)
	}
	ch.pending.write(data.Rest)
	return nil
}

func (m *mux) handleChannelExtendedData(packet []byte) error {
	var data channelExtendedDataMsg
	if err := Unmarshal(packet, &data); err != nil {
		return err
	}
	ch, ok := m.lookupChannel(data.PeersID, true)
	if !ok {
		return nil
	}
	if err := ch.consumeWindow(uint32(len(data.Rest))); err != nil {
		return m.protocolErrorDisconnect(err)
	}
	ch.extPending.write(data.Rest)
	return nil
}

// protocolErrorDisconnect notifies the peer with DISCONNECT(PROTOCOL_ERROR)
// and returns a DisconnectError to fail the mux's read loop (spec.md 4.5:
// receiving more than the local window is fatal). Writing the disconnect
// packet is best-effort; the connection is being torn down either way.
func (m *mux) protocolErrorDisconnect(cause error) error {
	m.conn.writePacket(Marshal(&disconnectMsg{
		Reason:  DisconnectProtocolError,
		Message: cause.Error(),
	}))
	return &DisconnectError{Reason: DisconnectProtocolError, Message: cause.Error()}
}

func (m *mux) handleChannelEOF(packet []byte) error {
	id, _, ok := parseUint32(packet[1:])
	if !ok {
		return parseError(packet[0])
	}
	ch, ok := m.lookupChannel(id, true)
	if !ok {
		return nil
	}
	ch.pending.closeWithError(nil)
	ch.extPending.closeWithError(nil)
	return nil
}

func (m *mux) handleChannelClose(packet []byte) error {
	id, _, ok := parseUint32(packet[1:])
	if !ok {
		return parseError(packet[0])
	}
	ch, ok := m.lookupChannel(id, true)
	if !ok {
		return nil
	}
	ch.pending.closeWithError(nil)
	ch.extPending.closeWithError(nil)
	ch.remoteWindow.close()
	if !ch.sentClose {
		ch.sentClose = true
		m.conn.writePacket(Marshal(&channelCloseMsg{PeersID: ch.remoteID}))
	}
	m.forgetChannel(ch.localID)
	return nil
}

func (m *mux) handleChannelRequest(packet []byte) error {
	var req channelRequestMsg
	if err := Unmarshal(packet, &req); err != nil {
		return err
	}
	ch, ok := m.lookupChannel(req.PeersID, true)
	if !ok {
		return nil
	}
	r := &Request{Type: req.Request, WantReply: req.WantReply, Payload: req.RequestSpecificData, ch: ch}
	ch.incomingRequests <- r
	return nil
}

func (m *mux) waitChannelRequestReply(ch *channel) (bool, error) {
	m.channelRepliesMu.Lock()
	replyCh, ok := m.channelReplies[ch.localID]
	if !ok {
		replyCh = make(chan channelReplyMsg, 1)
		m.channelReplies[ch.localID] = replyCh
	}
	m.channelRepliesMu.Unlock()
	reply := <-replyCh
	return reply.ok, nil
}

func (m *mux) handleChannelRequestReply(ok bool, packet []byte) error {
	id, _, parsed := parseUint32(packet[1:])
	if !parsed {
		return parseError(packet[0])
	}
	m.channelRepliesMu.Lock()
	replyCh, found := m.channelReplies[id]
	m.channelRepliesMu.Unlock()
	if !found {
		return nil
	}
	select {
	case replyCh <- channelReplyMsg{ok: ok}:
	default:
	}
	return nil
}
