// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"testing"
)

func TestBuildDataSignedForAuth(t *testing.T) {
	sessionID := []byte("session-id-bytes")
	req := userAuthRequestMsg{User: "bob", Service: serviceSSH, Method: "publickey"}
	algo := KeyAlgoED25519
	pubKey := []byte("pubkey-blob")

	got := buildDataSignedForAuth(sessionID, req, algo, pubKey)

	want := appendString(nil, string(sessionID))
	want = append(want, msgUserAuthRequest)
	want = appendString(want, req.User)
	want = appendString(want, req.Service)
	want = appendString(want, req.Method)
	want = appendBool(want, true)
	want = appendString(want, algo)
	want = appendString(want, string(pubKey))

	if !bytes.Equal(got, want) {
		t.Fatalf("buildDataSignedForAuth = %v, want %v", got, want)
	}
}

func TestParsePrompts(t *testing.T) {
	var raw []byte
	raw = appendString(raw, "Password:")
	raw = appendBool(raw, false)
	raw = appendString(raw, "Confirm:")
	raw = appendBool(raw, true)

	prompts, err := parsePrompts(raw, 2)
	if err != nil {
		t.Fatalf("parsePrompts: %v", err)
	}
	if len(prompts) != 2 {
		t.Fatalf("len(prompts) = %d, want 2", len(prompts))
	}
	if prompts[0].Text != "Password:" || prompts[0].Echo {
		t.Fatalf("prompts[0] = %+v", prompts[0])
	}
	if prompts[1].Text != "Confirm:" || !prompts[1].Echo {
		t.Fatalf("prompts[1] = %+v", prompts[1])
	}
}

func TestParsePromptsMalformed(t *testing.T) {
	if _, err := parsePrompts([]byte{0, 0, 0, 5, 'a'}, 1); err == nil {
		t.Fatal("parsePrompts should fail on a truncated prompt")
	}
}

func TestOfferedAuthMethods(t *testing.T) {
	cfg := &ServerConfig{
		ServerAuthCallbacks: ServerAuthCallbacks{
			PasswordCallback: func(string, []byte) error { return nil },
		},
	}
	got := offeredAuthMethods(cfg)
	if len(got) != 1 || got[0] != "password" {
		t.Fatalf("offeredAuthMethods = %v, want [password]", got)
	}

	cfg.PublicKeyCallback = func(string, PublicKey) error { return nil }
	cfg.KeyboardInteractiveCallback = func(string, KeyboardInteractiveChallenge) error { return nil }
	got = offeredAuthMethods(cfg)
	want := []string{"password", "publickey", "keyboard-interactive"}
	if len(got) != len(want) {
		t.Fatalf("offeredAuthMethods = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offeredAuthMethods = %v, want %v", got, want)
		}
	}
}
