// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestMessageAllowedKexRangeDuringHandshake(t *testing.T) {
	phases := []sessionPhase{phaseKexInitSent, phaseKexInProgress, phaseAwaitingNewKeys, phaseAuth, phaseOpen, phaseRekey}
	for _, p := range phases {
		if !messageAllowed(p, msgKexInit) {
			t.Errorf("messageAllowed(%s, msgKexInit) = false, want true", p)
		}
	}
	for _, p := range []sessionPhase{phaseInit, phaseIdentSent, phaseIdentReceived, phaseClosing, phaseClosed} {
		if messageAllowed(p, msgKexInit) {
			t.Errorf("messageAllowed(%s, msgKexInit) = true, want false", p)
		}
	}
}

func TestMessageAllowedAuthRangeOnlyDuringAuth(t *testing.T) {
	if !messageAllowed(phaseAuth, msgUserAuthRequest) {
		t.Error("userauth messages should be allowed in phaseAuth")
	}
	if messageAllowed(phaseOpen, msgUserAuthRequest) {
		t.Error("userauth messages should not be allowed in phaseOpen")
	}
}

func TestMessageAllowedConnectionRangeOnlyAfterAuth(t *testing.T) {
	if !messageAllowed(phaseOpen, msgChannelOpen) {
		t.Error("channel messages should be allowed in phaseOpen")
	}
	if !messageAllowed(phaseRekey, msgChannelOpen) {
		t.Error("channel messages should be allowed in phaseRekey (data may flow during a rekey)")
	}
	if messageAllowed(phaseAuth, msgChannelOpen) {
		t.Error("channel messages should not be allowed before authentication completes")
	}
}

func TestMessageAllowedDisconnectAlwaysAfterIdent(t *testing.T) {
	if messageAllowed(phaseInit, msgDisconnect) {
		t.Error("DISCONNECT should not be legal before identification")
	}
	if !messageAllowed(phaseOpen, msgDisconnect) {
		t.Error("DISCONNECT should be legal once the session is open")
	}
}

func TestCheckPhaseReturnsProtocolError(t *testing.T) {
	err := checkPhase(phaseInit, msgChannelOpen)
	if err == nil {
		t.Fatal("checkPhase should reject a connection message in phaseInit")
	}
	if !IsFatal(err) {
		t.Fatal("a phase violation should be classified as fatal")
	}
	if err := checkPhase(phaseOpen, msgChannelOpen); err != nil {
		t.Fatalf("checkPhase(phaseOpen, msgChannelOpen) = %v, want nil", err)
	}
}

func TestSessionPhaseString(t *testing.T) {
	if phaseOpen.String() != "OPEN" {
		t.Fatalf("phaseOpen.String() = %q, want OPEN", phaseOpen.String())
	}
	if sessionPhase(999).String() != "UNKNOWN" {
		t.Fatalf("unknown phase String() = %q, want UNKNOWN", sessionPhase(999).String())
	}
}
