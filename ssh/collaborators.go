package ssh

import (
	"io"
	"net"
	"time"
)

// Transport is the byte-stream collaborator spec.md 6 describes: an
// already-established bidirectional connection. The core never dials or
// listens; it only reads and writes octets. Any io.ReadWriteCloser
// satisfies this, including a net.Conn, a pipe, or a test double — no
// adapter is required.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// netConnTransport lets a plain net.Conn (and hence its deadline methods)
// be used wherever richer Transport behavior is wanted, without forcing
// every Transport implementation to support deadlines.
type netConnTransport interface {
	Transport
	SetDeadline(t time.Time) error
}

var _ netConnTransport = (net.Conn)(nil)

// HostKeyStore is consulted by both roles: a server asks it to sign the
// exchange hash with one of its private keys; a client asks it to verify
// a server's signature and to classify a host key against policy (known,
// unknown, or revoked). sshcore never persists key material itself.
type HostKeyStore interface {
	// Sign produces a signature over h using algo (one of the
	// HostKeyAlgos the server offered for this key). Server-side.
	Sign(algo string, h []byte) ([]byte, error)

	// Verify checks sig over h against hostKey using algo. Client-side.
	Verify(hostKey PublicKey, algo string, h, sig []byte) error

	// Known classifies hostKey for hostname, returning one of
	// HostKeyKnown, HostKeyUnknown, or HostKeyRevoked. Client-side.
	Known(hostname string, remote net.Addr, hostKey PublicKey) HostKeyStatus
}

// HostKeyStatus is the result of a HostKeyStore.Known lookup.
type HostKeyStatus int

const (
	HostKeyUnknown HostKeyStatus = iota
	HostKeyKnown
	HostKeyRevoked
)

// UserCredentialSource supplies the material a client offers during user
// authentication (spec.md 4.4/6). Each method returns nil (not an error)
// when the caller has nothing to offer and authentication should move on
// to the next method.
type UserCredentialSource interface {
	Password(user string) ([]byte, error)
	PrivateKey(user string, hint []byte) (Signer, error)
	KeyboardInteractive(user string, prompts []Prompt) ([]string, error)
}

// HostbasedCredentialSource is an optional capability a
// UserCredentialSource may additionally implement to offer RFC 4252 9
// hostbased authentication, which signs with the client host's key
// rather than the user's own. A UserCredentialSource that does not
// implement this interface simply never offers "hostbased".
type HostbasedCredentialSource interface {
	// Hostbased returns the client host key to sign with, the client
	// host's FQDN, and the user name on the client host. A nil Signer
	// means the client declines to offer hostbased for user.
	Hostbased(user string) (signer Signer, clientHostname, clientUser string, err error)
}

// Prompt is one keyboard-interactive prompt, RFC 4256 3.2.
type Prompt struct {
	Text   string
	Echo   bool
}

// Random is a cryptographically secure byte source. It is threaded
// through Config.Rand explicitly rather than defaulted at the package
// level, so a session can never silently fall back to a weak source.
type Random = io.Reader

// Clock supplies monotonic time for rekey timers and operation deadlines,
// so tests can inject a fake clock instead of sleeping in real time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                    { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Logger receives structured trace events. A nil Logger (the Config
// default) makes a session silent, same as the teacher's
// debugHandshake-gated log.Printf calls did for the whole process.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}
