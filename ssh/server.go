// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "fmt"

// ServerConfig configures the server side of a handshake: which host
// keys it offers, and which userauth methods it accepts.
type ServerConfig struct {
	Config
	ServerAuthCallbacks

	// HostKeys lists the public keys this server can prove ownership of
	// via HostKeyStore.Sign, most preferred first. At least one is
	// required.
	HostKeys []PublicKey

	// HostKeyStore signs the exchange hash on this server's behalf.
	HostKeyStore HostKeyStore

	// ServerVersion is the identification string sent to the client. If
	// empty, packageVersion is used.
	ServerVersion string
}

// NewServerConn runs the server side of the SSH protocol (version
// exchange, key exchange, authentication) over t, an already-accepted
// Transport, and returns a Conn plus the channels through which the
// client's inbound channel-open and global-request traffic arrives.
func NewServerConn(t Transport, config *ServerConfig) (Conn, <-chan NewChannel, <-chan *Request, error) {
	fullConf := *config
	fullConf.SetDefaults()
	if len(fullConf.HostKeys) == 0 {
		return nil, nil, nil, fmt.Errorf("ssh: server has no host keys")
	}
	if fullConf.HostKeyStore == nil {
		return nil, nil, nil, fmt.Errorf("ssh: server has no HostKeyStore")
	}

	conn := &connection{}
	if err := conn.serverHandshake(t, &fullConf); err != nil {
		t.Close()
		return nil, nil, nil, fmt.Errorf("ssh: handshake failed: %w", err)
	}
	conn.mux = newMux(conn.transport, &fullConf.Config)
	return conn, conn.mux.incomingChannels, conn.mux.incomingRequests, nil
}

func (c *connection) serverHandshake(t Transport, config *ServerConfig) error {
	c.sshConn.Transport = t

	if config.ServerVersion != "" {
		c.serverVersion = []byte(config.ServerVersion)
	} else {
		c.serverVersion = []byte(packageVersion)
	}

	_, clientFull, br, err := exchangeVersions(t, c.serverVersion)
	if err != nil {
		return err
	}
	c.clientVersion = clientFull

	if config.ConnLog != nil {
		config.ConnLog.ClientID = parseEndpointId(c.clientVersion)
		if config.Verbose {
			config.ConnLog.ServerID = parseEndpointId(c.serverVersion)
		}
	}

	raw := newTransport(br, t, t, config.Rand, false)
	ht := newHandshakeTransport(raw, &config.Config, c.clientVersion, c.serverVersion)
	ht.hostKeys = config.HostKeys
	ht.hostKeyStore = config.HostKeyStore
	go ht.readLoop()
	c.transport = ht

	if config.HelloOnly {
		return nil
	}

	if err := c.transport.requestInitialKeyChange(); err != nil {
		return err
	}
	c.sessionID = c.transport.getSessionID()

	return c.serverAuthenticate(config)
}
