// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// keyingTransport is a packet-based transport that supports key changes.
// It need not be thread-safe. It passes msgNewKeys through in both
// directions.
type keyingTransport interface {
	packetConn

	// prepareKeyChange sets up a key change. The key change for a
	// direction takes effect once a msgNewKeys message is sent or
	// received.
	prepareKeyChange(*Algorithms, *kexResult) error
}

// taggedPacket pairs a decoded packet with the sequence number the
// underlying transport read it at, so that sequence number survives the
// buffering handshakeTransport.incoming introduces between the readLoop
// goroutine and whatever calls readPacket.
type taggedPacket struct {
	seq  uint32
	data []byte
}

// EndpointId decomposes a raw SSH identification string ("SSH-2.0-foo
// comment") into its protocol version, software version, and comment,
// for diagnostic recording onto a HandshakeLog.
type EndpointId struct {
	Raw             string
	ProtoVersion    string
	SoftwareVersion string
	Comment         string
}

func parseEndpointId(raw []byte) *EndpointId {
	e := &EndpointId{Raw: string(raw)}
	parts := splitN(string(raw), " ", 2)
	if len(parts) == 2 {
		e.Comment = parts[1]
	}
	group := splitN(parts[0], "-", 3)
	if len(group) > 0 && group[0] == "SSH" {
		if len(group) > 1 {
			e.ProtoVersion = group[1]
		}
		if len(group) == 3 {
			e.SoftwareVersion = group[2]
		}
	}
	return e
}

func splitN(s, sep string, n int) []string {
	var out []string
	for n > 1 {
		idx := indexOf(s, sep)
		if idx < 0 {
			break
		}
		out = append(out, s[:idx])
		s = s[idx+len(sep):]
		n--
	}
	return append(out, s)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// HandshakeLog accumulates diagnostic detail about one connection's
// handshake, mirroring what a security scanner records about a protocol
// negotiation rather than a live metrics pipeline (that remains a
// caller's concern, spec.md Non-goals).
type HandshakeLog struct {
	ClientID            *EndpointId
	ServerID            *EndpointId
	ClientKex           *KexInitMsg
	ServerKex           *KexInitMsg
	AlgorithmSelection  *Algorithms
	UserAuthentication  []string
}

// handshakeTransport implements rekeying on top of a keyingTransport and
// offers a thread-safe writePacket() interface. It is the session-phase
// state machine's home (spec.md 4.3): sessionPhase transitions happen
// here as messages cross the KEX/NEWKEYS boundary and as
// USERAUTH_SUCCESS moves the session from AUTH to OPEN.
type handshakeTransport struct {
	conn   keyingTransport
	config *Config

	serverVersion []byte
	clientVersion []byte

	// hostKeys is non-empty on the server: the public keys it can sign
	// the exchange hash with, drawn from ServerConfig.
	hostKeys []PublicKey
	// hostKeyStore signs (server) or verifies (client) against those keys.
	hostKeyStore HostKeyStore

	// hostKeyAlgorithms is non-empty on the client: the host-key types
	// it will accept.
	hostKeyAlgorithms []string

	incoming    chan taggedPacket
	readError   error
	lastReadSeq uint32

	dialAddress string
	remoteAddr  net.Addr

	bannerCallback func(message string) error

	readSinceKex    uint64
	readPacketCount uint64

	mu              sync.Mutex
	cond            *sync.Cond
	sentInitPacket  []byte
	sentInitMsg     *KexInitMsg
	writtenSinceKex uint64
	writePacketCnt  uint64
	writeError      error

	sessionID []byte
	strict    bool

	phase      sessionPhase
	phaseMu    sync.Mutex
	rekeyTimer *rekeyTimer
	idleTimer  *idleTimer

	logger Logger
}

func newHandshakeTransport(conn keyingTransport, config *Config, clientVersion, serverVersion []byte) *handshakeTransport {
	t := &handshakeTransport{
		conn:          conn,
		serverVersion: serverVersion,
		clientVersion: clientVersion,
		incoming:      make(chan taggedPacket, 16),
		config:        config,
		logger:        config.Logger,
		phase:         phaseKexInitSent,
	}
	t.cond = sync.NewCond(&t.mu)
	if config.RekeyInterval > 0 {
		t.rekeyTimer = newRekeyTimer(config.Clock, config.RekeyInterval)
	}
	if config.IdleTimeout > 0 {
		t.idleTimer = newIdleTimer(config.Clock, config.IdleTimeout, func() {
			t.conn.Close()
		})
	}
	return t
}

func (t *handshakeTransport) setPhase(p sessionPhase) {
	t.phaseMu.Lock()
	t.phase = p
	t.phaseMu.Unlock()
	debugf(t.logger, "phase -> %s", p)
}

func (t *handshakeTransport) getPhase() sessionPhase {
	t.phaseMu.Lock()
	defer t.phaseMu.Unlock()
	return t.phase
}

func (t *handshakeTransport) getSessionID() []byte { return t.sessionID }

func (t *handshakeTransport) id() string {
	if len(t.hostKeys) > 0 {
		return "server"
	}
	return "client"
}

func (t *handshakeTransport) readPacket() ([]byte, error) {
	tp, ok := <-t.incoming
	if !ok {
		return nil, t.readError
	}
	t.lastReadSeq = tp.seq
	return tp.data, nil
}

func (t *handshakeTransport) lastReadSeqNum() uint32 {
	return t.lastReadSeq
}

func (t *handshakeTransport) readLoop() {
	for {
		p, seq, err := t.readOnePacket()
		if err != nil {
			t.readError = err
			close(t.incoming)
			break
		}
		if p[0] == msgIgnore || p[0] == msgDebug {
			continue
		}
		t.incoming <- taggedPacket{seq: seq, data: p}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeError == nil {
		t.writeError = t.readError
	}
	t.cond.Broadcast()
}

func (t *handshakeTransport) readOnePacket() ([]byte, uint32, error) {
	if t.rekeyTimer != nil {
		select {
		case <-t.rekeyTimer.C:
			if err := t.requestKeyChange(); err != nil {
				return nil, 0, err
			}
		default:
		}
	}
	if t.readSinceKex > t.config.RekeyThreshold || t.readPacketCount > t.config.RekeyPacketThreshold {
		if err := t.requestKeyChange(); err != nil {
			return nil, 0, err
		}
	}

	p, err := t.conn.readPacket()
	if err != nil {
		return nil, 0, err
	}
	t.idleTimer.touch()
	seq := t.conn.lastReadSeqNum()

	duringInitialKex := t.sessionID == nil
	if err := checkStrictKexMessage(t.strict, duringInitialKex, p[0]); err != nil {
		t.conn.Close()
		return nil, 0, err
	}
	if err := checkPhase(t.getPhase(), p[0]); err != nil {
		t.conn.Close()
		return nil, 0, err
	}
	if p[0] == msgUserAuthSuccess && len(t.hostKeys) == 0 {
		t.setPhase(phaseOpen)
	}

	t.readSinceKex += uint64(len(p))
	t.readPacketCount++
	debugf(t.logger, "%s got packet type %d (%d bytes)", t.id(), p[0], len(p))

	if p[0] != msgKexInit {
		return p, seq, nil
	}
	t.mu.Lock()

	firstKex := t.sessionID == nil
	t.setPhase(phaseKexInProgress)
	if !t.config.HelloOnly {
		err = t.enterKeyExchangeLocked(p)
		if err != nil {
			t.conn.Close()
			t.writeError = err
		}
		debugf(t.logger, "%s exited key exchange (first %v), err %v", t.id(), firstKex, err)
	}
	t.sentInitMsg = nil
	t.sentInitPacket = nil
	t.cond.Broadcast()
	t.writtenSinceKex = 0
	t.writePacketCnt = 0
	t.mu.Unlock()

	if err != nil {
		return nil, 0, err
	}
	t.readSinceKex = 0
	t.readPacketCount = 0
	t.setPhase(phaseOpen)
	if firstKex {
		t.setPhase(phaseAuth)
	}

	successPacket := []byte{msgIgnore}
	if firstKex {
		successPacket = []byte{msgNewKeys}
	}
	return successPacket, seq, nil
}

type keyChangeCategory bool

const (
	firstKeyExchange      keyChangeCategory = true
	subsequentKeyExchange keyChangeCategory = false
)

// sendKexInit sends a key change message, and returns once the initial
// key exchange (if isFirst) has completed. Safe for concurrent use.
func (t *handshakeTransport) sendKexInit(isFirst keyChangeCategory) error {
	var err error

	t.mu.Lock()
	if !isFirst || t.sessionID == nil {
		_, _, err = t.sendKexInitLocked(isFirst)
	}
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if isFirst {
		if packet, err := t.readPacket(); err != nil {
			return err
		} else if packet[0] != msgNewKeys {
			return unexpectedMessageError(msgNewKeys, packet[0])
		}
	}
	return nil
}

func (t *handshakeTransport) requestInitialKeyChange() error {
	return t.sendKexInit(firstKeyExchange)
}

func (t *handshakeTransport) requestKeyChange() error {
	t.setPhase(phaseRekey)
	return t.sendKexInit(subsequentKeyExchange)
}

func (t *handshakeTransport) sendKexInitLocked(isFirst keyChangeCategory) (*KexInitMsg, []byte, error) {
	if t.sentInitMsg != nil {
		return t.sentInitMsg, t.sentInitPacket, nil
	}

	msg := &KexInitMsg{
		KexAlgos:                t.config.KeyExchanges,
		CiphersClientServer:     t.config.Ciphers,
		CiphersServerClient:     t.config.Ciphers,
		MACsClientServer:        t.config.MACs,
		MACsServerClient:        t.config.MACs,
		CompressionClientServer: t.config.Compressions,
		CompressionServerClient: t.config.Compressions,
	}
	io.ReadFull(rand.Reader, msg.Cookie[:])

	if t.config.StrictKex == nil || *t.config.StrictKex {
		if len(t.hostKeys) > 0 {
			msg.KexAlgos = append(append([]string{}, msg.KexAlgos...), strictKexS2C)
		} else {
			msg.KexAlgos = append(append([]string{}, msg.KexAlgos...), strictKexC2S)
		}
	}

	if len(t.hostKeys) > 0 {
		for _, k := range t.hostKeys {
			msg.ServerHostKeyAlgos = append(msg.ServerHostKeyAlgos, k.Type())
		}
	} else {
		msg.ServerHostKeyAlgos = t.hostKeyAlgorithms
	}
	packet := Marshal(msg)

	packetCopy := make([]byte, len(packet))
	copy(packetCopy, packet)

	if err := t.conn.writePacket(packetCopy); err != nil {
		return nil, nil, err
	}

	t.sentInitMsg = msg
	t.sentInitPacket = packet
	return msg, packet, nil
}

func (t *handshakeTransport) writePacket(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.writtenSinceKex > t.config.RekeyThreshold || t.writePacketCnt > t.config.RekeyPacketThreshold {
		t.sendKexInitLocked(subsequentKeyExchange)
	}
	for t.sentInitMsg != nil && t.writeError == nil {
		t.cond.Wait()
	}
	if t.writeError != nil {
		return t.writeError
	}
	t.writtenSinceKex += uint64(len(p))
	t.writePacketCnt++

	switch p[0] {
	case msgKexInit:
		return errors.New("ssh: only handshakeTransport can send kexInit")
	case msgNewKeys:
		return errors.New("ssh: only handshakeTransport can send newKeys")
	default:
		if p[0] == msgUserAuthSuccess {
			t.setPhase(phaseOpen)
		}
		return t.conn.writePacket(p)
	}
}

func (t *handshakeTransport) Close() error {
	if t.rekeyTimer != nil {
		t.rekeyTimer.close()
	}
	t.idleTimer.close()

	// Best-effort drain: give a writePacket call already in flight up to
	// CloseWait to finish before the underlying transport is torn out from
	// under it (spec.md 7).
	drained := make(chan struct{})
	go func() {
		t.mu.Lock()
		t.mu.Unlock()
		close(drained)
	}()
	select {
	case <-drained:
	case <-t.config.Clock.After(t.config.CloseWait):
	}

	return t.conn.Close()
}

// enterKeyExchangeLocked runs one key exchange to completion. t.mu must
// be held on entry.
func (t *handshakeTransport) enterKeyExchangeLocked(otherInitPacket []byte) error {
	debugf(t.logger, "%s entered key exchange", t.id())
	myInit, myInitPacket, err := t.sendKexInitLocked(subsequentKeyExchange)
	if err != nil {
		return err
	}

	if t.config.ConnLog != nil {
		t.config.ConnLog.ClientKex = myInit
	}

	otherInit := &KexInitMsg{}
	if err := Unmarshal(otherInitPacket, otherInit); err != nil {
		return err
	}
	if t.config.ConnLog != nil {
		t.config.ConnLog.ServerKex = otherInit
	}

	magics := handshakeMagics{
		clientVersion: t.clientVersion,
		serverVersion: t.serverVersion,
		clientKexInit: otherInitPacket,
		serverKexInit: myInitPacket,
	}

	clientInit := otherInit
	serverInit := myInit
	if len(t.hostKeys) == 0 {
		clientInit = myInit
		serverInit = otherInit

		magics.clientKexInit = myInitPacket
		magics.serverKexInit = otherInitPacket
	}

	algs, err := findAgreedAlgorithms(clientInit, serverInit)
	if err != nil {
		return err
	}
	if t.config.ConnLog != nil {
		t.config.ConnLog.AlgorithmSelection = algs
	}
	if t.sessionID == nil {
		t.strict = algs.Strict
	}

	// RFC 4253 7 defines the guessed-packet rule: a side's optimistic
	// first KEX-method packet is ignored if the kex algorithm and/or the
	// host key algorithm were guessed wrong (the two sides' top
	// preferences differ). The other algorithms are already checked by
	// findAgreedAlgorithms above.
	if otherInit.FirstKexFollows && (clientInit.KexAlgos[0] != serverInit.KexAlgos[0] || clientInit.ServerHostKeyAlgos[0] != serverInit.ServerHostKeyAlgos[0]) {
		if _, err := t.conn.readPacket(); err != nil {
			return err
		}
	}

	kex, ok := kexAlgoMap[algs.Kex]
	if !ok {
		return fmt.Errorf("ssh: unexpected key exchange algorithm %v", algs.Kex)
	}

	var result *kexResult
	if len(t.hostKeys) > 0 {
		result, err = t.server(kex, algs, &magics)
	} else {
		result, err = t.client(kex, algs, &magics)
	}
	if err != nil {
		return err
	}

	if t.sessionID == nil {
		t.sessionID = result.H
	}
	result.SessionID = t.sessionID

	if err := t.conn.prepareKeyChange(algs, result); err != nil {
		return err
	}
	if err = t.conn.writePacket([]byte{msgNewKeys}); err != nil {
		return err
	}
	if packet, err := t.conn.readPacket(); err != nil {
		return err
	} else if packet[0] != msgNewKeys {
		return unexpectedMessageError(msgNewKeys, packet[0])
	}

	return nil
}

func (t *handshakeTransport) server(kex kexAlgorithm, algs *Algorithms, magics *handshakeMagics) (*kexResult, error) {
	var hostKey PublicKey
	for _, k := range t.hostKeys {
		if algs.HostKey == k.Type() {
			hostKey = k
		}
	}
	if hostKey == nil {
		return nil, fmt.Errorf("ssh: no host key of type %s available", algs.HostKey)
	}
	signer := &hostKeyStoreSigner{store: t.hostKeyStore, pub: hostKey, algo: algs.HostKey}
	return kex.Server(t.conn, t.config.Rand, magics, signer)
}

func (t *handshakeTransport) client(kex kexAlgorithm, algs *Algorithms, magics *handshakeMagics) (*kexResult, error) {
	result, err := kex.Client(t.conn, t.config.Rand, magics)
	if err != nil {
		return nil, err
	}

	hostKey, _, ok := ParsePublicKey(result.HostKey)
	if !ok {
		return nil, errors.New("ssh: malformed host key")
	}

	if err := verifyHostKeySignature(hostKey, result); err != nil {
		return nil, err
	}

	if t.hostKeyStore != nil {
		if err := t.hostKeyStore.Verify(hostKey, algs.HostKey, result.H, result.Signature); err != nil {
			return nil, err
		}
		status := t.hostKeyStore.Known(t.dialAddress, t.remoteAddr, hostKey)
		if status == HostKeyRevoked {
			return nil, wrapErr(ErrPolicyTimeout, fmt.Errorf("ssh: host key for %s is revoked", t.dialAddress))
		}
	}

	return result, nil
}

// hostKeyStoreSigner adapts a HostKeyStore to the Signer interface so the
// kexAlgorithm implementations, which only know about Signer, can drive
// server-side signing without depending on the collaborator type.
type hostKeyStoreSigner struct {
	store HostKeyStore
	pub   PublicKey
	algo  string
}

func (s *hostKeyStoreSigner) PublicKey() PublicKey { return s.pub }

func (s *hostKeyStoreSigner) Sign(_ io.Reader, data []byte) ([]byte, error) {
	return s.store.Sign(s.algo, data)
}
