// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"testing"
)

func TestFindMACModeKnown(t *testing.T) {
	keyMaterial := bytes.Repeat([]byte{0x01}, 64)
	for name, want := range macModes {
		mode := findMACMode(name, keyMaterial)
		if mode == nil {
			t.Fatalf("findMACMode(%q) = nil", name)
		}
		if mode.etm != want.etm {
			t.Fatalf("findMACMode(%q).etm = %v, want %v", name, mode.etm, want.etm)
		}
		if len(mode.key) != want.keySize {
			t.Fatalf("findMACMode(%q) key length = %d, want %d", name, len(mode.key), want.keySize)
		}
		h := mode.new(mode.key)
		if h.Size() != want.keySize && name != "hmac-sha1-96" {
			t.Fatalf("findMACMode(%q) hash size = %d, want %d", name, h.Size(), want.keySize)
		}
	}
}

func TestFindMACModeUnknown(t *testing.T) {
	if findMACMode("not-a-real-mac", make([]byte, 64)) != nil {
		t.Fatal("findMACMode should return nil for an unregistered name")
	}
}

func TestHMACSHA1_96Truncates(t *testing.T) {
	mode := macModes["hmac-sha1-96"]
	h := mode.new(make([]byte, 20))
	if h.Size() != 12 {
		t.Fatalf("hmac-sha1-96 Size() = %d, want 12", h.Size())
	}
	h.Write([]byte("some data"))
	if got := len(h.Sum(nil)); got != 12 {
		t.Fatalf("hmac-sha1-96 Sum length = %d, want 12", got)
	}
}

func TestMACDeterministic(t *testing.T) {
	mode := macModes["hmac-sha2-256"]
	key := bytes.Repeat([]byte{0x2a}, 32)
	h1 := mode.new(key)
	h2 := mode.new(key)
	h1.Write([]byte("payload"))
	h2.Write([]byte("payload"))
	if !bytes.Equal(h1.Sum(nil), h2.Sum(nil)) {
		t.Fatal("hmac-sha2-256 is not deterministic for identical key/input")
	}
}
