// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"testing"
	"time"
)

// pipeConn is a packetConn backed by Go channels rather than a byte
// stream, used to wire two muxes together in-process without a real
// transport, cipher, or framing layer underneath.
type pipeConn struct {
	in      chan []byte
	out     chan []byte
	closed  chan struct{}
	lastSeq uint32
}

func newPipeConnPair() (*pipeConn, *pipeConn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &pipeConn{in: ba, out: ab, closed: make(chan struct{})}
	b := &pipeConn{in: ab, out: ba, closed: make(chan struct{})}
	return a, b
}

func (p *pipeConn) readPacket() ([]byte, error) {
	select {
	case pkt, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		p.lastSeq++
		return pkt, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) lastReadSeqNum() uint32 { return p.lastSeq }

func (p *pipeConn) writePacket(packet []byte) error {
	cp := append([]byte{}, packet...)
	select {
	case p.out <- cp:
		return nil
	case <-p.closed:
		return errChannelClosed
	}
}

func (p *pipeConn) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

// Read and Write are never invoked: sendMsg/recvMsg type-assert their
// io.ReadWriter argument to packetConn and use readPacket/writePacket
// instead. They exist only so *pipeConn satisfies io.ReadWriter for the
// kexAlgorithm Client/Server signatures.
func (p *pipeConn) Read([]byte) (int, error)  { panic("pipeConn.Read should never be called") }
func (p *pipeConn) Write([]byte) (int, error) { panic("pipeConn.Write should never be called") }

func newMuxPair(t *testing.T) (*mux, *mux) {
	t.Helper()
	cfg := &Config{}
	cfg.SetDefaults()
	a, b := newPipeConnPair()
	return newMux(a, cfg), newMux(b, cfg)
}

func acceptOneChannel(t *testing.T, m *mux) *channel {
	t.Helper()
	select {
	case nc := <-m.incomingChannels:
		ch, _, err := nc.Accept()
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		return ch.(*channel)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for incoming channel")
	}
	return nil
}

func TestMuxOpenAndAcceptChannel(t *testing.T) {
	client, server := newMuxPair(t)

	openErr := make(chan error, 1)
	var clientCh *channel
	go func() {
		ch, err := client.openChannel("session", []byte("extra"))
		if err == nil {
			clientCh = ch
		}
		openErr <- err
	}()

	serverCh := acceptOneChannel(t, server)
	if serverCh.ChannelType() != "session" {
		t.Fatalf("ChannelType() = %q, want %q", serverCh.ChannelType(), "session")
	}
	if string(serverCh.ExtraData()) != "extra" {
		t.Fatalf("ExtraData() = %q, want %q", serverCh.ExtraData(), "extra")
	}

	select {
	case err := <-openErr:
		if err != nil {
			t.Fatalf("openChannel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for openChannel to return")
	}
	if clientCh == nil {
		t.Fatal("openChannel returned a nil channel with no error")
	}
}

func TestMuxRejectChannel(t *testing.T) {
	client, server := newMuxPair(t)

	openErr := make(chan error, 1)
	go func() {
		_, err := client.openChannel("session", nil)
		openErr <- err
	}()

	select {
	case nc := <-server.incomingChannels:
		if err := nc.Reject(AdministrativelyProhibited, "no thanks"); err != nil {
			t.Fatalf("Reject: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for incoming channel")
	}

	select {
	case err := <-openErr:
		if err == nil {
			t.Fatal("openChannel should fail after Reject")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for openChannel to return")
	}
}

func TestMuxChannelDataRoundTrip(t *testing.T) {
	client, server := newMuxPair(t)

	var clientCh *channel
	done := make(chan struct{})
	go func() {
		ch, err := client.openChannel("session", nil)
		if err != nil {
			t.Errorf("openChannel: %v", err)
		}
		clientCh = ch
		close(done)
	}()
	serverCh := acceptOneChannel(t, server)
	<-done

	if _, err := clientCh.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 32)
	n, err := serverCh.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hello")
	}

	if _, err := serverCh.writeExtended(ExtendedDataStderr, []byte("oops")); err != nil {
		t.Fatalf("writeExtended: %v", err)
	}
	n, err = clientCh.Stderr().Read(buf)
	if err != nil {
		t.Fatalf("Stderr Read: %v", err)
	}
	if string(buf[:n]) != "oops" {
		t.Fatalf("Stderr Read = %q, want %q", buf[:n], "oops")
	}
}

func TestMuxChannelRequestReply(t *testing.T) {
	client, server := newMuxPair(t)

	done := make(chan struct{})
	var clientCh *channel
	go func() {
		ch, err := client.openChannel("session", nil)
		if err != nil {
			t.Errorf("openChannel: %v", err)
		}
		clientCh = ch
		close(done)
	}()
	serverCh := acceptOneChannel(t, server)
	<-done

	replyErr := make(chan error, 1)
	replyOK := make(chan bool, 1)
	go func() {
		ok, err := clientCh.SendRequest("exit-status", true, nil)
		replyOK <- ok
		replyErr <- err
	}()

	select {
	case req := <-serverCh.incomingRequests:
		if req.Type != "exit-status" {
			t.Fatalf("req.Type = %q, want exit-status", req.Type)
		}
		if err := req.Reply(true, nil); err != nil {
			t.Fatalf("Reply: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel request")
	}

	if err := <-replyErr; err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if !<-replyOK {
		t.Fatal("SendRequest reply ok = false, want true")
	}
}

func TestMuxChannelCloseTeardown(t *testing.T) {
	client, server := newMuxPair(t)

	done := make(chan struct{})
	var clientCh *channel
	go func() {
		ch, err := client.openChannel("session", nil)
		if err != nil {
			t.Errorf("openChannel: %v", err)
		}
		clientCh = ch
		close(done)
	}()
	serverCh := acceptOneChannel(t, server)
	<-done

	if err := clientCh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	buf := make([]byte, 1)
	deadline := time.After(time.Second)
	for {
		if _, err := serverCh.Read(buf); err == io.EOF {
			break
		}
		select {
		case <-deadline:
			t.Fatal("server channel never observed EOF after peer Close")
		default:
		}
	}
}

func TestMuxGlobalRequestReply(t *testing.T) {
	client, server := newMuxPair(t)

	replyDone := make(chan struct{})
	go func() {
		select {
		case req := <-server.incomingRequests:
			if req.Type != "keepalive@example.com" {
				t.Errorf("req.Type = %q", req.Type)
			}
			req.Reply(true, []byte("pong"))
		case <-time.After(time.Second):
			t.Error("server never saw the global request")
		}
		close(replyDone)
	}()

	ok, payload, err := client.sendGlobalRequest("keepalive@example.com", true, nil)
	if err != nil {
		t.Fatalf("sendGlobalRequest: %v", err)
	}
	if !ok {
		t.Fatal("sendGlobalRequest ok = false, want true")
	}
	if string(payload) != "pong" {
		t.Fatalf("sendGlobalRequest payload = %q, want %q", payload, "pong")
	}
	<-replyDone
}

func TestMuxDisconnectPropagatesAsError(t *testing.T) {
	client, server := newMuxPair(t)

	if err := server.conn.writePacket(Marshal(&disconnectMsg{Reason: DisconnectByApplication, Message: "bye"})); err != nil {
		t.Fatalf("writePacket: %v", err)
	}

	err := client.wait()
	var de *DisconnectError
	if err == nil {
		t.Fatal("wait() returned nil, want a DisconnectError")
	}
	if !isDisconnectError(err, &de) {
		t.Fatalf("wait() = %v, want *DisconnectError", err)
	}
	if de.Reason != DisconnectByApplication || de.Message != "bye" {
		t.Fatalf("DisconnectError = %+v, want reason %d message %q", de, DisconnectByApplication, "bye")
	}
}

func isDisconnectError(err error, out **DisconnectError) bool {
	de, ok := err.(*DisconnectError)
	if ok {
		*out = de
	}
	return ok
}

// TestMuxUnimplementedEchoesSequenceNumber drives a mux directly off a
// raw pipeConn (bypassing a second mux, which would otherwise bounce
// its own SSH_MSG_UNIMPLEMENTED reply back and forth) to check that the
// sequence number in the reply matches the packet that triggered it,
// not a hardcoded 0.
func TestMuxUnimplementedEchoesSequenceNumber(t *testing.T) {
	clientRaw, serverRaw := newPipeConnPair()
	cfg := &Config{}
	cfg.SetDefaults()
	server := newMux(serverRaw, cfg)
	defer server.conn.Close()

	if err := clientRaw.writePacket(Marshal(&globalRequestMsg{Type: "ignored@example.com"})); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	if err := clientRaw.writePacket(Marshal(&globalRequestMsg{Type: "ignored2@example.com"})); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	if err := clientRaw.writePacket([]byte{200, 1, 2, 3}); err != nil {
		t.Fatalf("writePacket: %v", err)
	}

	type readResult struct {
		packet []byte
		err    error
	}
	readDone := make(chan readResult, 1)
	go func() {
		p, err := clientRaw.readPacket()
		readDone <- readResult{p, err}
	}()

	var packet []byte
	select {
	case r := <-readDone:
		if r.err != nil {
			t.Fatalf("readPacket: %v", r.err)
		}
		packet = r.packet
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SSH_MSG_UNIMPLEMENTED")
	}
	if packet[0] != msgUnimplemented {
		t.Fatalf("packet[0] = %d, want msgUnimplemented (%d)", packet[0], msgUnimplemented)
	}
	var un unimplementedMsg
	if err := Unmarshal(packet, &un); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if un.SeqNum != 3 {
		t.Fatalf("SeqNum = %d, want 3 (the bogus packet was the 3rd read)", un.SeqNum)
	}
}

// TestMuxChannelDataExceedingWindowDisconnects checks that inbound
// CHANNEL_DATA past the advertised local window is treated as a fatal
// protocol error (spec.md 4.5) rather than buffered without bound.
func TestMuxChannelDataExceedingWindowDisconnects(t *testing.T) {
	client, server := newMuxPair(t)

	done := make(chan struct{})
	var clientCh *channel
	go func() {
		ch, err := client.openChannel("session", nil)
		if err != nil {
			t.Errorf("openChannel: %v", err)
		}
		clientCh = ch
		close(done)
	}()
	serverCh := acceptOneChannel(t, server)
	<-done

	oversized := make([]byte, serverCh.myWindow+1)
	data := channelDataMsg{PeersID: clientCh.remoteID, Length: uint32(len(oversized)), Rest: oversized}
	if err := client.conn.writePacket(Marshal(&data)); err != nil {
		t.Fatalf("writePacket: %v", err)
	}

	err := server.wait()
	var de *DisconnectError
	if err == nil {
		t.Fatal("wait() returned nil, want a DisconnectError for window overrun")
	}
	if !isDisconnectError(err, &de) {
		t.Fatalf("wait() = %v, want *DisconnectError", err)
	}
	if de.Reason != DisconnectProtocolError {
		t.Fatalf("DisconnectError.Reason = %d, want %d", de.Reason, DisconnectProtocolError)
	}
}
