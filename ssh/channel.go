// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// RejectionReason is the reason given in a CHANNEL_OPEN_FAILURE, RFC 4254 5.1.
type RejectionReason uint32

const (
	AdministrativelyProhibited RejectionReason = ChannelOpenAdministrativelyProhibited
	ConnectionFailed           RejectionReason = ChannelOpenConnectFailed
	UnknownChannelType         RejectionReason = ChannelOpenUnknownChannelType
	ResourceShortage           RejectionReason = ChannelOpenResourceShortage
)

// NewChannel represents an incoming request to open a channel, handed to
// the application before the peer learns whether it was accepted.
type NewChannel interface {
	Accept() (Channel, <-chan *Request, error)
	Reject(reason RejectionReason, message string) error
	ChannelType() string
	ExtraData() []byte
}

// Channel is a bidirectional, flow-controlled SSH channel, RFC 4254 5.
// sshcore implements the generic channel lifecycle only (session.go can
// open a "session" channel, nothing more): interpreting shell/PTY/exec
// channel requests is explicitly out of scope (spec.md Non-goals).
type Channel interface {
	io.Reader
	io.Writer

	// CloseWrite signals end-of-stream to the peer by sending
	// CHANNEL_EOF without closing the channel for reading.
	CloseWrite() error

	// Close signals end-of-channel to the peer, RFC 4254 5.3.
	Close() error

	// SendRequest sends a channel request, RFC 4254 5.4, blocking for a
	// reply if wantReply is set.
	SendRequest(name string, wantReply bool, payload []byte) (bool, error)

	// Stderr returns an io.ReadWriter that writes to the channel's
	// extended data stream (SSH_EXTENDED_DATA_STDERR).
	Stderr() io.ReadWriter
}

// Request is a request sent across a channel or as a global request,
// RFC 4254 4/5.4. A Request received from the peer must be answered via
// Reply exactly once if WantReply is set.
type Request struct {
	Type      string
	WantReply bool
	Payload   []byte

	ch     *channel
	mux    *mux
	replied bool
	mu      sync.Mutex
}

// Reply answers a Request that had WantReply set. Answering a request
// twice, or one that did not ask for a reply, is an error.
func (r *Request) Reply(ok bool, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.WantReply {
		return errors.New("ssh: request did not ask for a reply")
	}
	if r.replied {
		return errors.New("ssh: request already replied to")
	}
	r.replied = true
	if r.ch != nil {
		return r.ch.replyRequest(ok, payload)
	}
	return r.mux.replyGlobalRequest(ok, payload)
}

// window implements the flow-control reservation scheme RFC 4254 5.2
// describes: a writer blocks until the peer has advertised enough
// window to cover what it wants to send, and add() wakes any blocked
// writer as soon as a WINDOW_ADJUST increases the available space.
type window struct {
	mu     sync.Mutex
	cond   *sync.Cond
	win    uint32
	closed bool
}

func newWindow(initial uint32) *window {
	w := &window{win: initial}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// add increases the available window by n, RFC 4254 5.2's WINDOW_ADJUST.
func (w *window) add(n uint32) {
	w.mu.Lock()
	w.win += n
	w.cond.Broadcast()
	w.mu.Unlock()
}

// reserve blocks until at least 1 byte is available (or the window is
// closed), then reserves up to max bytes of it, returning how many.
func (w *window) reserve(max uint32) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.win == 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed {
		return 0, io.EOF
	}
	n := max
	if n > w.win {
		n = w.win
	}
	w.win -= n
	return n, nil
}

// waitWriterBlocked reports, for tests, whether a call to reserve would
// block right now: the window is empty and not closed.
func (w *window) waitWriterBlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.win == 0 && !w.closed
}

func (w *window) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
}

// channel is the concrete Channel/NewChannel implementation. Inbound
// CHANNEL_DATA/EXTENDED_DATA is buffered into pending/extPending
// by the mux's dispatch loop and drained by Read/Stderr.Read.
type channel struct {
	mux *mux

	localID, remoteID uint32
	maxIncomingPacket uint32
	maxRemotePacket   uint32

	chanType  string
	extraData []byte

	myWindow     uint32
	remoteWindow *window

	incomingRequests chan *Request

	pending     *buffer
	extPending  *buffer
	openResult  chan []byte

	decided bool
	mu      sync.Mutex

	sentEOF   bool
	sentClose bool
	remoteEOF bool
}

func (c *channel) ChannelType() string { return c.chanType }
func (c *channel) ExtraData() []byte   { return c.extraData }

func (c *channel) Accept() (Channel, <-chan *Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decided {
		return nil, nil, errors.New("ssh: channel already accepted or rejected")
	}
	c.decided = true
	confirm := channelOpenConfirmMsg{
		PeersID:       c.remoteID,
		MyID:          c.localID,
		MyWindow:      c.myWindow,
		MaxPacketSize: c.maxIncomingPacket,
	}
	if err := c.mux.conn.writePacket(Marshal(&confirm)); err != nil {
		return nil, nil, err
	}
	return c, c.incomingRequests, nil
}

func (c *channel) Reject(reason RejectionReason, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decided {
		return errors.New("ssh: channel already accepted or rejected")
	}
	c.decided = true
	failure := channelOpenFailureMsg{
		PeersID: c.remoteID,
		Reason:  uint32(reason),
		Message: message,
	}
	return c.mux.conn.writePacket(Marshal(&failure))
}

func (c *channel) Read(data []byte) (int, error) {
	n, err := c.pending.read(data)
	if n > 0 {
		c.adjustWindow(uint32(n))
	}
	return n, err
}

func (c *channel) Stderr() io.ReadWriter { return extendedChannel{c} }

// extendedChannel routes Read to the stderr buffer and Write to
// EXTENDED_DATA, while sharing the parent channel's flow control.
type extendedChannel struct{ c *channel }

func (e extendedChannel) Read(data []byte) (int, error) {
	n, err := e.c.extPending.read(data)
	if n > 0 {
		e.c.adjustWindow(uint32(n))
	}
	return n, err
}

func (e extendedChannel) Write(data []byte) (int, error) {
	return e.c.writeExtended(ExtendedDataStderr, data)
}

// consumeWindow accounts for n bytes of inbound CHANNEL_DATA or
// CHANNEL_EXTENDED_DATA against the local window advertised to the peer
// (RFC 4254 5.2). It returns an error if n exceeds what remains of
// myWindow: receiving more than the advertised window is a protocol
// violation, not something to silently absorb.
func (c *channel) consumeWindow(n uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.myWindow {
		return fmt.Errorf("ssh: peer sent %d bytes, exceeding window of %d", n, c.myWindow)
	}
	c.myWindow -= n
	return nil
}

func (c *channel) adjustWindow(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sentClose {
		return
	}
	if err := c.mux.conn.writePacket(Marshal(&channelWindowAdjustMsg{PeersID: c.remoteID, AdditionalBytes: n})); err != nil {
		// a failed window adjust is not fatal to the channel; the peer
		// will simply see slower progress, bounded by its own buffering.
		return
	}
	c.myWindow += n
}

func (c *channel) Write(data []byte) (int, error) {
	return c.write(0, false, data)
}

func (c *channel) writeExtended(dataType uint32, data []byte) (int, error) {
	return c.write(dataType, true, data)
}

func (c *channel) write(dataType uint32, extended bool, data []byte) (int, error) {
	var written int
	for len(data) > 0 {
		n, err := c.remoteWindow.reserve(uint32(min(len(data), int(c.maxRemotePacket))))
		if err != nil {
			return written, err
		}
		chunk := data[:n]
		var packet []byte
		if extended {
			packet = Marshal(&channelExtendedDataMsg{PeersID: c.remoteID, DataTypeCode: dataType, Length: n, Rest: chunk})
		} else {
			packet = Marshal(&channelDataMsg{PeersID: c.remoteID, Length: n, Rest: chunk})
		}
		if err := c.mux.conn.writePacket(packet); err != nil {
			return written, err
		}
		data = data[n:]
		written += int(n)
	}
	return written, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (c *channel) CloseWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sentEOF {
		return nil
	}
	c.sentEOF = true
	return c.mux.conn.writePacket(Marshal(&channelEOFMsg{PeersID: c.remoteID}))
}

func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sentClose {
		return nil
	}
	c.sentClose = true
	return c.mux.conn.writePacket(Marshal(&channelCloseMsg{PeersID: c.remoteID}))
}

func (c *channel) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	if err := c.mux.conn.writePacket(Marshal(&channelRequestMsg{
		PeersID:             c.remoteID,
		Request:             name,
		WantReply:           wantReply,
		RequestSpecificData: payload,
	})); err != nil {
		return false, err
	}
	if !wantReply {
		return false, nil
	}
	return c.mux.waitChannelRequestReply(c)
}

func (c *channel) replyRequest(ok bool, payload []byte) error {
	if ok {
		return c.mux.conn.writePacket(Marshal(&channelRequestSuccessMsg{PeersID: c.remoteID}))
	}
	return c.mux.conn.writePacket(Marshal(&channelRequestFailureMsg{PeersID: c.remoteID}))
}

// buffer is an unbounded byte queue with blocking reads, used to hand
// inbound CHANNEL_DATA/EXTENDED_DATA to Read without holding up the
// mux's single dispatch goroutine.
type buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	eof    bool
	err    error
}

func newBuffer() *buffer {
	b := &buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *buffer) write(p []byte) {
	b.mu.Lock()
	b.chunks = append(b.chunks, append([]byte{}, p...))
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *buffer) closeWithError(err error) {
	b.mu.Lock()
	if !b.eof {
		b.eof = true
		b.err = err
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

func (b *buffer) read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.chunks) == 0 {
		if b.eof {
			if b.err != nil {
				return 0, b.err
			}
			return 0, io.EOF
		}
		b.cond.Wait()
	}
	n := copy(p, b.chunks[0])
	if n == len(b.chunks[0]) {
		b.chunks = b.chunks[1:]
	} else {
		b.chunks[0] = b.chunks[0][n:]
	}
	return n, nil
}

var errChannelClosed = fmt.Errorf("ssh: channel closed")
