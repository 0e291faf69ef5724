// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ssh implements the SSH transport, key exchange, user
// authentication, and connection-multiplexing layers described by RFC
// 4251-4254, plus the OpenSSH strict-kex and hybrid post-quantum key
// exchange extensions. It never dials, listens, or accepts a socket
// itself, never parses a configuration file, and never stores host or
// known-host keys: all of that is delegated to the collaborator
// interfaces in collaborators.go (Transport, HostKeyStore,
// UserCredentialSource, Clock, Logger), supplied by the caller.
//
// A client session starts from an already-connected Transport:
//
//	conn, newChans, reqs, err := ssh.NewClientConn(transport, addr, remoteAddr, &ssh.ClientConfig{
//		User:         "alice",
//		Auth:         credentials,
//		HostKeyStore: knownHosts,
//	})
//
// A server session is symmetric, built from ssh.NewServerConn and a
// ServerConfig naming the host keys it can sign with and the userauth
// callbacks it accepts.
package ssh
