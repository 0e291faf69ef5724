// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a sshcore error per spec.md 7's taxonomy. Transport,
// Protocol, MACDecrypt, and KEX errors are always fatal to the session;
// Auth and Channel errors are local/recoverable; PolicyTimeout is fatal.
type ErrorKind int

const (
	ErrTransport ErrorKind = iota
	ErrProtocol
	ErrMACDecrypt
	ErrKEX
	ErrAuth
	ErrChannel
	ErrPolicyTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransport:
		return "transport error"
	case ErrProtocol:
		return "protocol error"
	case ErrMACDecrypt:
		return "mac/decrypt error"
	case ErrKEX:
		return "kex error"
	case ErrAuth:
		return "auth error"
	case ErrChannel:
		return "channel error"
	case ErrPolicyTimeout:
		return "policy/timeout error"
	default:
		return "unknown error"
	}
}

// ProtocolError wraps an underlying cause with the ErrorKind taxonomy so
// callers can use errors.As to decide whether a failure is fatal to the
// session (ErrTransport, ErrProtocol, ErrMACDecrypt, ErrKEX,
// ErrPolicyTimeout) or local (ErrAuth, ErrChannel).
type ProtocolError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ssh: %s: %v", e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool {
	var pe *ProtocolError
	if errors.As(target, &pe) {
		return pe.Kind == e.Kind
	}
	return false
}

func wrapErr(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &ProtocolError{Kind: kind, Err: err}
}

// IsFatal reports whether err, per spec.md 7, should tear down the
// session rather than stay local to a channel or an auth attempt.
func IsFatal(err error) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return true // unclassified errors are treated conservatively as fatal
	}
	switch pe.Kind {
	case ErrAuth, ErrChannel:
		return false
	default:
		return true
	}
}

// unexpectedMessageError results when the SSH message that we received
// didn't match what we wanted.
func unexpectedMessageError(expected, got uint8) error {
	return wrapErr(ErrProtocol, fmt.Errorf("ssh: unexpected message type %d (expected %d)", got, expected))
}

// parseError results from a malformed SSH message.
func parseError(tag uint8) error {
	return wrapErr(ErrProtocol, fmt.Errorf("ssh: parse error in message type %d", tag))
}

// unimplementedMessageError results from receiving a message number this
// side does not recognize. Per spec.md 6, the caller replies with
// SSH_MSG_UNIMPLEMENTED rather than treating this as fatal on its own.
func unimplementedMessageError(tag uint8) error {
	return fmt.Errorf("ssh: unimplemented message type %d", tag)
}

var (
	// ErrAuthTimeout is returned when a server's AuthTimeout expires
	// before the client completes authentication.
	ErrAuthTimeout = wrapErr(ErrPolicyTimeout, errors.New("ssh: authentication timed out"))

	// ErrNoMoreAuthMethods is returned by a client when no method the
	// server offers is left to try (or ClientConfig.Auth is nil), and by
	// a server when a client exceeds MaxAuthAttempts without
	// authenticating.
	ErrNoMoreAuthMethods = wrapErr(ErrAuth, errors.New("ssh: no more authentication methods to try"))

	// ErrSessionIDImmutable is returned if code attempts to change the
	// session id after the first key exchange has completed.
	ErrSessionIDImmutable = errors.New("ssh: session id is immutable after first key exchange")
)
