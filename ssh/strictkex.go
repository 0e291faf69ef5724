package ssh

import "fmt"

// checkStrictKexMessage enforces the kex-strict-{c,s}-v00@openssh.com
// extension's pre-NEWKEYS rule: once both sides have agreed to strict
// mode (negotiated during the very first key exchange), every message
// received before that first NEWKEYS must be in the KEX message-number
// range (20-49). Ordinarily SSH_MSG_IGNORE/DEBUG/UNIMPLEMENTED are legal
// at any time; strict mode forbids them here specifically because
// CVE-2023-48795 exploited that leniency to splice attacker-chosen
// plaintext into the pre-authentication stream.
func checkStrictKexMessage(strict, duringInitialKex bool, msgType byte) error {
	if !strict || !duringInitialKex {
		return nil
	}
	if msgType < 20 || msgType > 49 {
		return wrapErr(ErrProtocol, fmt.Errorf("ssh: message type %d not permitted before NEWKEYS under strict KEX", msgType))
	}
	return nil
}
