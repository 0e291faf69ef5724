package ssh

import "fmt"

// sessionPhase is the per-side state spec.md 4.3 names. Every Session
// (connection) tracks its own phase; the two sides of a connection are
// not required to be in the same phase at the same instant (e.g. the
// server may already be in OPEN while the client is still processing
// NEWKEYS), but each side's own transitions are strictly ordered.
type sessionPhase int

const (
	phaseInit sessionPhase = iota
	phaseIdentSent
	phaseIdentReceived
	phaseKexInitSent
	phaseKexInProgress
	phaseAwaitingNewKeys
	phaseAuth
	phaseOpen
	phaseRekey
	phaseClosing
	phaseClosed
)

func (p sessionPhase) String() string {
	switch p {
	case phaseInit:
		return "INIT"
	case phaseIdentSent:
		return "IDENT_SENT"
	case phaseIdentReceived:
		return "IDENT_RECEIVED"
	case phaseKexInitSent:
		return "KEXINIT_SENT"
	case phaseKexInProgress:
		return "KEX_IN_PROGRESS"
	case phaseAwaitingNewKeys:
		return "AWAITING_NEWKEYS"
	case phaseAuth:
		return "AUTH"
	case phaseOpen:
		return "OPEN"
	case phaseRekey:
		return "REKEY"
	case phaseClosing:
		return "CLOSING"
	case phaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// messageAllowed reports whether a message numbered msgType may be
// received while the session is in phase p, per spec.md 4.3's
// message-number-range gating. DISCONNECT/IGNORE/DEBUG/UNIMPLEMENTED
// (1-4) are legal in every phase once identification has completed, and
// the KEX range (20-49) in every phase from KEXINIT_SENT through REKEY,
// since re-keying and housekeeping may happen at any time.
func messageAllowed(p sessionPhase, msgType byte) bool {
	switch {
	case msgType >= 1 && msgType <= 4:
		return p != phaseInit && p != phaseIdentSent && p != phaseIdentReceived
	case msgType >= 5 && msgType <= 6:
		return p == phaseAuth || p == phaseOpen
	case msgType >= 20 && msgType <= 49:
		return p == phaseKexInitSent || p == phaseKexInProgress || p == phaseAwaitingNewKeys ||
			p == phaseAuth || p == phaseOpen || p == phaseRekey
	case msgType >= 50 && msgType <= 79:
		return p == phaseAuth
	case msgType >= 80 && msgType <= 127:
		return p == phaseOpen || p == phaseRekey
	default:
		return false
	}
}

// checkPhase returns a protocol error if msgType is not legal in phase p.
func checkPhase(p sessionPhase, msgType byte) error {
	if !messageAllowed(p, msgType) {
		return wrapErr(ErrProtocol, fmt.Errorf("ssh: message type %d not allowed in phase %s", msgType, p))
	}
	return nil
}
