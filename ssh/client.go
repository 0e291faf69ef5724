// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"fmt"
	"net"
)

// sshConn wraps the caller-supplied Transport collaborator together with
// whatever peer-address metadata the caller has (for logging and for the
// HostKeyStore.Known lookup); sshcore itself never dials or accepts.
type sshConn struct {
	Transport
	remoteAddr net.Addr
}

func (c *sshConn) RemoteAddr() net.Addr { return c.remoteAddr }

// connection is the shared implementation behind both client and server
// Conn values: version strings, the handshakeTransport, the channel
// multiplexer, and the negotiated session id.
type connection struct {
	sshConn
	transport *handshakeTransport
	mux       *mux

	clientVersion []byte
	serverVersion []byte
	sessionID     []byte
	user          string
}

func (c *connection) SessionID() []byte    { return c.sessionID }
func (c *connection) User() string         { return c.user }
func (c *connection) ClientVersion() []byte { return append([]byte{}, c.clientVersion...) }
func (c *connection) ServerVersion() []byte { return append([]byte{}, c.serverVersion...) }
func (c *connection) Close() error          { return c.transport.Close() }
func (c *connection) Wait() error           { return c.mux.wait() }

func (c *connection) OpenChannel(name string, data []byte) (Channel, <-chan *Request, error) {
	ch, err := c.mux.openChannel(name, data)
	if err != nil {
		return nil, nil, err
	}
	return ch, ch.incomingRequests, nil
}

func (c *connection) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	return c.mux.sendGlobalRequest(name, wantReply, payload)
}

// Conn is the session-level handle both the client and server sides of a
// completed handshake expose: version/session identity, the ability to
// open outgoing channels or send global requests, and graceful shutdown.
type Conn interface {
	User() string
	SessionID() []byte
	ClientVersion() []byte
	ServerVersion() []byte
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
	OpenChannel(name string, data []byte) (Channel, <-chan *Request, error)
	Close() error
	Wait() error
}

// ClientConfig configures the client side of a handshake.
type ClientConfig struct {
	Config

	// User is the username to authenticate as.
	User string

	// Auth supplies the credentials userauth.go's client-side dispatch
	// offers the server: password, public key, and keyboard-interactive.
	// A nil Auth source means only the "none" method is attempted.
	Auth UserCredentialSource

	// HostKeyStore is consulted to verify the server's host key and to
	// classify it against local policy. A nil HostKeyStore accepts any
	// host key (equivalent to OpenSSH's StrictHostKeyChecking=no).
	HostKeyStore HostKeyStore

	// BannerCallback, if non-nil, is invoked with each USERAUTH_BANNER
	// message the server sends while the client waits for the result of
	// an authentication request; an error from it ends authentication.
	// A banner arriving in reply to a publickey query or during a
	// keyboard-interactive exchange is treated as an unexpected message.
	BannerCallback func(message string) error

	// ClientVersion is the identification string sent to the server. If
	// empty, packageVersion is used.
	ClientVersion string

	// HostKeyAlgorithms lists the host-key types accepted from the
	// server, in order of preference. If empty, supportedHostKeyAlgos is
	// used.
	HostKeyAlgorithms []string
}

// NewClientConn runs the client side of the SSH protocol (version
// exchange, key exchange, authentication) over t, an already-established
// Transport, and returns a Conn plus the channels through which the
// server's inbound channel-open and global-request traffic arrives.
func NewClientConn(t Transport, dialAddress string, remoteAddr net.Addr, config *ClientConfig) (Conn, <-chan NewChannel, <-chan *Request, error) {
	fullConf := *config
	fullConf.SetDefaults()
	conn := &connection{
		sshConn: sshConn{Transport: t, remoteAddr: remoteAddr},
	}

	if err := conn.clientHandshake(dialAddress, &fullConf); err != nil {
		t.Close()
		return nil, nil, nil, fmt.Errorf("ssh: handshake failed: %w", err)
	}
	conn.mux = newMux(conn.transport, &fullConf.Config)
	return conn, conn.mux.incomingChannels, conn.mux.incomingRequests, nil
}

func (c *connection) clientHandshake(dialAddress string, config *ClientConfig) error {
	if config.ClientVersion != "" {
		c.clientVersion = []byte(config.ClientVersion)
	} else {
		c.clientVersion = []byte(packageVersion)
	}

	_, serverFull, br, err := exchangeVersions(c.sshConn.Transport, c.clientVersion)
	if err != nil {
		return err
	}
	c.serverVersion = serverFull

	if config.ConnLog != nil {
		config.ConnLog.ServerID = parseEndpointId(c.serverVersion)
		if config.Verbose {
			config.ConnLog.ClientID = parseEndpointId(c.clientVersion)
		}
	}

	raw := newTransport(br, c.sshConn.Transport, c.sshConn.Transport, config.Rand, true)
	ht := newHandshakeTransport(raw, &config.Config, c.clientVersion, c.serverVersion)
	ht.hostKeyStore = config.HostKeyStore
	ht.dialAddress = dialAddress
	ht.remoteAddr = c.remoteAddr
	if config.HostKeyAlgorithms != nil {
		ht.hostKeyAlgorithms = config.HostKeyAlgorithms
	} else {
		ht.hostKeyAlgorithms = supportedHostKeyAlgos
	}
	go ht.readLoop()
	c.transport = ht

	if config.HelloOnly {
		return nil
	}

	if err := c.transport.requestInitialKeyChange(); err != nil {
		return err
	}
	c.sessionID = c.transport.getSessionID()

	c.user = config.User
	return c.clientAuthenticate(config)
}
