// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"io"
)

// Session is a thin wrapper around a "session" channel (RFC 4254 6.1):
// it opens the channel and lets the caller drive it with SendRequest and
// the Channel's Read/Write. Interpreting the shell/PTY/exec request
// types themselves is explicitly out of scope (spec.md Non-goals) — that
// belongs to whatever sits on top of sshcore.
type Session struct {
	Channel
	requests <-chan *Request
}

// NewSession opens a "session" channel on conn and returns a handle to
// it. The caller is responsible for sending whatever channel requests
// its application protocol needs (exec, shell, subsystem, ...).
func NewSession(conn Conn) (*Session, error) {
	ch, reqs, err := conn.OpenChannel("session", nil)
	if err != nil {
		return nil, err
	}
	return &Session{Channel: ch, requests: reqs}, nil
}

// Requests returns the channel of incoming channel-specific requests
// (e.g. "exit-status") the peer sends on this session.
func (s *Session) Requests() <-chan *Request { return s.requests }

// Wait reads and discards the session channel's inbound data until the
// peer sends CHANNEL_EOF or CHANNEL_CLOSE (either ends the data stream),
// then returns nil (EOF is not itself an error here; it is how normal
// completion is observed). Any other read error is returned.
func (s *Session) Wait() error {
	buf := make([]byte, 1)
	for {
		if _, err := s.Channel.Read(buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
