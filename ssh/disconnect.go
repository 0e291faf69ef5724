package ssh

import "fmt"

// DisconnectError represents a received or locally-generated
// SSH_MSG_DISCONNECT. Sessions send at most one of these before entering
// CloseWait (spec.md 7): further inbound bytes are discarded, and already
// queued outbound packets are flushed best-effort.
type DisconnectError struct {
	Reason  uint32
	Message string
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("ssh: disconnect, reason %d: %s", e.Reason, e.Message)
}

// disconnectReasonText gives a human-readable label for a disconnect
// reason code, used when no explicit message is supplied.
func disconnectReasonText(reason uint32) string {
	switch reason {
	case DisconnectHostNotAllowedToConnect:
		return "host not allowed to connect"
	case DisconnectProtocolError:
		return "protocol error"
	case DisconnectKeyExchangeFailed:
		return "key exchange failed"
	case DisconnectMACError:
		return "mac error"
	case DisconnectCompressionError:
		return "compression error"
	case DisconnectServiceNotAvailable:
		return "service not available"
	case DisconnectProtocolVersionNotSupported:
		return "protocol version not supported"
	case DisconnectHostKeyNotVerifiable:
		return "host key not verifiable"
	case DisconnectConnectionLost:
		return "connection lost"
	case DisconnectByApplication:
		return "disconnected by application"
	case DisconnectTooManyConnections:
		return "too many connections"
	case DisconnectAuthCancelledByUser:
		return "auth cancelled by user"
	case DisconnectNoMoreAuthMethodsAvailable:
		return "no more auth methods available"
	case DisconnectIllegalUserName:
		return "illegal user name"
	default:
		return "unknown reason"
	}
}

// newDisconnect builds the wire message for a locally-initiated
// disconnect.
func newDisconnect(reason uint32, detail string) *disconnectMsg {
	if detail == "" {
		detail = disconnectReasonText(reason)
	}
	return &disconnectMsg{Reason: reason, Message: detail}
}
