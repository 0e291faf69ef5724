// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"testing"
)

// roundTrip writes payload with w and reads it back with r. A packetCipher
// carries one direction's state (nonce, keystream position), so the
// reading side is a separate instance built from the same keys.
func roundTrip(t *testing.T, name string, w, r packetCipher, payload []byte) {
	t.Helper()
	var wire bytes.Buffer
	if err := w.writePacket(0, &wire, rand.Reader, append([]byte{}, payload...)); err != nil {
		t.Fatalf("%s: writePacket: %v", name, err)
	}
	got, err := r.readPacket(0, &wire)
	if err != nil {
		t.Fatalf("%s: readPacket: %v", name, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("%s: roundtrip = %q, want %q", name, got, payload)
	}
}

func TestCipherRoundTrip(t *testing.T) {
	payload := []byte("ssh-msg-kexinit payload, long enough to span more than one cipher block")

	cases := []struct {
		name string
		make func() (packetCipher, error)
	}{
		{chacha20Poly1305ID, func() (packetCipher, error) {
			key := make([]byte, 64)
			return newChaCha20Cipher(key, nil, nil, DirectionAlgorithms{})
		}},
		{gcmCipherID, func() (packetCipher, error) {
			key := make([]byte, 16)
			iv := make([]byte, 12)
			return newGCMCipher(key, iv, nil, DirectionAlgorithms{})
		}},
		{gcm256CipherID, func() (packetCipher, error) {
			key := make([]byte, 32)
			iv := make([]byte, 12)
			return newGCMCipher(key, iv, nil, DirectionAlgorithms{})
		}},
		{"aes128-ctr+hmac-sha2-256", func() (packetCipher, error) {
			key := make([]byte, 16)
			iv := make([]byte, 16)
			mac := &macMode{keySize: 32, new: macHash(sha256.New, 32), key: make([]byte, 32)}
			return newAESCTRCipher(key, iv, mac, DirectionAlgorithms{Cipher: "aes128-ctr", MAC: "hmac-sha2-256"})
		}},
		{"aes128-cbc-etm+hmac-sha1-etm", func() (packetCipher, error) {
			key := make([]byte, 16)
			iv := make([]byte, 16)
			mac := &macMode{keySize: 20, etm: true, new: macHash(sha1.New, 20), key: make([]byte, 20)}
			return newAESCBCCipher(key, iv, mac, DirectionAlgorithms{Cipher: "aes128-cbc-etm@openssh.com", MAC: "hmac-sha1-etm@openssh.com"})
		}},
	}

	for _, tc := range cases {
		w, err := tc.make()
		if err != nil {
			t.Fatalf("%s: constructor failed: %v", tc.name, err)
		}
		r, err := tc.make()
		if err != nil {
			t.Fatalf("%s: constructor failed: %v", tc.name, err)
		}
		roundTrip(t, tc.name, w, r, payload)
	}
}

func TestStreamCipherRequiresMAC(t *testing.T) {
	if _, err := newAESCTRCipher(make([]byte, 16), make([]byte, 16), nil, DirectionAlgorithms{Cipher: "aes128-ctr"}); err == nil {
		t.Fatal("newAESCTRCipher without a MAC should fail")
	}
}

func TestGCMCipherDetectsTamper(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 12)
	c, err := newGCMCipher(key, iv, nil, DirectionAlgorithms{})
	if err != nil {
		t.Fatalf("newGCMCipher: %v", err)
	}
	var wire bytes.Buffer
	if err := c.writePacket(0, &wire, rand.Reader, []byte("payload")); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	tampered := wire.Bytes()
	tampered[len(tampered)-1] ^= 0xff

	c2, _ := newGCMCipher(key, iv, nil, DirectionAlgorithms{})
	if _, err := c2.readPacket(0, bytes.NewReader(tampered)); err == nil {
		t.Fatal("readPacket should reject a tampered GCM packet")
	}
}

func TestChaChaPoly1305DetectsTamper(t *testing.T) {
	key := make([]byte, 64)
	c, err := newChaCha20Cipher(key, nil, nil, DirectionAlgorithms{})
	if err != nil {
		t.Fatalf("newChaCha20Cipher: %v", err)
	}
	var wire bytes.Buffer
	if err := c.writePacket(0, &wire, rand.Reader, []byte("payload")); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	tampered := wire.Bytes()
	tampered[0] ^= 0xff

	c2, _ := newChaCha20Cipher(key, nil, nil, DirectionAlgorithms{})
	if _, err := c2.readPacket(0, bytes.NewReader(tampered)); err == nil {
		t.Fatal("readPacket should reject a packet with a tampered length field")
	}
}

func TestIdentityCipherRoundTrip(t *testing.T) {
	roundTrip(t, "identity", newIdentityCipher(), newIdentityCipher(), []byte("unencrypted preamble packet"))
}
