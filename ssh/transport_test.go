// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"crypto/sha1"
	"math/big"
	"testing"
)

// referenceExpandKey is a second, independently-written implementation
// of RFC 4253 7.2's key-stretching loop, built straight from the RFC
// text rather than by reusing expandKey's own structure, so expandKey
// is checked against it rather than against itself.
func referenceExpandKey(result *kexResult, label byte, size int) []byte {
	if size == 0 {
		return nil
	}
	h := sha1.New()
	writeBigInt(h, result.K)
	h.Write(result.H)
	h.Write([]byte{label})
	h.Write(result.SessionID)
	out := h.Sum(nil)

	for len(out) < size {
		h := sha1.New()
		writeBigInt(h, result.K)
		h.Write(result.H)
		h.Write(out) // K1 || K2 || ... || K(i-1)
		out = append(out, h.Sum(nil)...)
	}
	return out[:size]
}

func TestExpandKeySingleRound(t *testing.T) {
	result := &kexResult{K: big.NewInt(42), H: []byte("exchange hash"), SessionID: []byte("session id")}
	got := expandKey(sha1.New, result, 'A', sha1.Size)
	want := referenceExpandKey(result, 'A', sha1.Size)
	if !bytes.Equal(got, want) {
		t.Fatalf("expandKey(size=%d) = %x, want %x", sha1.Size, got, want)
	}
}

func TestExpandKeyMultiRound(t *testing.T) {
	result := &kexResult{K: big.NewInt(123456789), H: []byte("exchange hash"), SessionID: []byte("session id")}
	// A 64-byte chacha20-poly1305@openssh.com key over SHA-1's 20-byte
	// digest needs 4 rounds; K3 is the first round where the old
	// buf-only bug diverged from hashing K1||K2.
	got := expandKey(sha1.New, result, 'C', 64)
	want := referenceExpandKey(result, 'C', 64)
	if !bytes.Equal(got, want) {
		t.Fatalf("expandKey(size=64) = %x, want %x", got, want)
	}
	if len(got) != 64 {
		t.Fatalf("expandKey(size=64) returned %d bytes", len(got))
	}
}

func TestExpandKeyZeroSize(t *testing.T) {
	result := &kexResult{K: big.NewInt(1), H: []byte("h"), SessionID: []byte("sid")}
	if got := expandKey(sha1.New, result, 'A', 0); got != nil {
		t.Fatalf("expandKey(size=0) = %v, want nil", got)
	}
}
