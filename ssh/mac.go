// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// macMode describes a MAC algorithm: its key size, whether it is an
// encrypt-then-MAC variant (the MAC covers the ciphertext, not the
// plaintext), and the constructor for a keyed hash.Hash.
type macMode struct {
	keySize int
	etm     bool
	key     []byte
	new     func(key []byte) hash.Hash
}

var macModes = map[string]*macMode{
	"hmac-sha2-256-etm@openssh.com": {32, true, nil, macHash(sha256.New, 32)},
	"hmac-sha1-etm@openssh.com":     {20, true, nil, macHash(sha1.New, 20)},
	"hmac-sha2-256":                 {32, false, nil, macHash(sha256.New, 32)},
	"hmac-sha1":                     {20, false, nil, macHash(sha1.New, 20)},
	"hmac-sha1-96":                  {20, false, nil, macHash96(sha1.New)},
}

func macHash(newHash func() hash.Hash, size int) func(key []byte) hash.Hash {
	return func(key []byte) hash.Hash {
		return hmac.New(newHash, key[:size])
	}
}

// truncatedHash wraps a hash.Hash, truncating its Sum output to n bytes
// for hmac-sha1-96 (RFC 4253 6.4): the full HMAC is computed, then only
// the first 96 bits are sent.
type truncatedHash struct {
	hash.Hash
	n int
}

func (t truncatedHash) Sum(in []byte) []byte {
	full := t.Hash.Sum(in)
	return full[:len(in)+t.n]
}

func (t truncatedHash) Size() int { return t.n }

func macHash96(newHash func() hash.Hash) func(key []byte) hash.Hash {
	return func(key []byte) hash.Hash {
		return truncatedHash{hmac.New(newHash, key[:20]), 12}
	}
}

// findMACMode constructs the macMode for name with keyMaterial bound in,
// or nil if name is an AEAD cipher's own tag rather than a separate MAC.
func findMACMode(name string, keyMaterial []byte) *macMode {
	mode, ok := macModes[name]
	if !ok {
		return nil
	}
	bound := &macMode{keySize: mode.keySize, etm: mode.etm, new: mode.new}
	bound.key = append([]byte{}, keyMaterial[:mode.keySize]...)
	return bound
}
