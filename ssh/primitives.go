// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"encoding/binary"
	"math/big"
	"strings"
)

// This file holds the primitive wire encodings spec.md 6 names: byte,
// uint32, uint64, string (length-prefixed bytes), mpint, name-list
// (comma-separated string), boolean. Everything here operates on raw
// []byte slices and reports success via a trailing bool rather than an
// error, matching the parse-then-check idiom already used by the
// teacher's certificate code (massiveart-go.crypto/ssh/certs.go).

func parseUint32(in []byte) (uint32, []byte, bool) {
	if len(in) < 4 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint32(in), in[4:], true
}

func parseUint64(in []byte) (uint64, []byte, bool) {
	if len(in) < 8 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint64(in), in[8:], true
}

func parseString(in []byte) (out, rest []byte, ok bool) {
	n, rest, ok := parseUint32(in)
	if !ok || uint64(len(rest)) < uint64(n) {
		return nil, nil, false
	}
	return rest[:n], rest[n:], true
}

// parseLengthPrefixedNameList parses an SSH name-list: a string whose
// payload is a comma-separated ASCII list.
func parseLengthPrefixedNameList(in []byte) ([]string, []byte, bool) {
	s, rest, ok := parseString(in)
	if !ok {
		return nil, nil, false
	}
	if len(s) == 0 {
		return nil, rest, true
	}
	return strings.Split(string(s), ","), rest, true
}

func joinNameList(names []string) string {
	return strings.Join(names, ",")
}

// parseMpint parses an SSH mpint: a two's-complement integer, with a
// leading zero byte inserted when the high bit of the first byte would
// otherwise be set, and an empty string for zero.
func parseMpint(in []byte) (*big.Int, []byte, bool) {
	b, rest, ok := parseString(in)
	if !ok {
		return nil, nil, false
	}
	if len(b) > 0 && b[0]&0x80 != 0 {
		return nil, nil, false // negative numbers are not used by this protocol
	}
	return new(big.Int).SetBytes(b), rest, true
}

// appendMpint appends the mpint encoding of n.
func appendMpint(buf []byte, n *big.Int) []byte {
	if n.Sign() == 0 {
		return appendU32(buf, 0)
	}
	b := n.Bytes()
	needsPad := b[0]&0x80 != 0
	length := len(b)
	if needsPad {
		length++
	}
	buf = appendU32(buf, uint32(length))
	if needsPad {
		buf = append(buf, 0)
	}
	return append(buf, b...)
}

func stringLength(n int) int {
	return 4 + n
}

func parseBool(in []byte) (bool, []byte, bool) {
	if len(in) < 1 {
		return false, nil, false
	}
	return in[0] != 0, in[1:], true
}
