// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"io"
	"sync"
)

// packetConn is the narrowest transport surface key exchange and the
// handshake layer need: read and write one framed, decrypted packet at a
// time. It deliberately does not expose the underlying Transport
// collaborator directly, so cipher/MAC state always goes through here.
type packetConn interface {
	readPacket() ([]byte, error)
	writePacket(packet []byte) error
	Close() error

	// lastReadSeqNum returns the sequence number of the packet most
	// recently returned by readPacket, for building the
	// SSH_MSG_UNIMPLEMENTED(sequence_of_bad_packet) reply RFC 4253 11.4
	// requires. Callers must not call this concurrently with readPacket
	// on the same packetConn.
	lastReadSeqNum() uint32
}

// transport is the BPP (Binary Packet Protocol, spec.md 4.1) layer: it
// owns one direction's packetCipher and sequence counter each and swaps
// in freshly derived ciphers when prepareKeyChange/NEWKEYS completes.
// Before the first key exchange both directions run the identity cipher
// (plaintext framing only), matching the unencrypted preamble RFC 4253 6
// describes.
type transport struct {
	reader   reader
	writer   writer
	conn     io.Closer
	isClient bool
}

type reader struct {
	sync.Mutex
	io.Reader
	packetCipher
	seqNum  uint32
	lastSeq uint32
}

type writer struct {
	sync.Mutex
	io.Writer
	packetCipher
	seqNum uint32
	rand   io.Reader
}

// newTransport builds a transport reading from r and writing to w, both
// backed by conn (closed together on Close). r is typically the
// bufio.Reader exchangeVersions leaves positioned just past the
// identification line, not conn itself, so no buffered bytes are lost.
func newTransport(r io.Reader, w io.Writer, conn io.Closer, randSrc io.Reader, isClient bool) *transport {
	t := &transport{conn: conn, isClient: isClient}
	t.reader.Reader = r
	t.reader.packetCipher = newIdentityCipher()
	t.writer.Writer = w
	t.writer.rand = randSrc
	t.writer.packetCipher = newIdentityCipher()
	return t
}

func (t *transport) readPacket() ([]byte, error) {
	t.reader.Lock()
	defer t.reader.Unlock()
	for {
		p, err := t.reader.packetCipher.readPacket(t.reader.seqNum, t.reader.Reader)
		if err != nil {
			return nil, err
		}
		t.reader.lastSeq = t.reader.seqNum
		t.reader.seqNum++
		if len(p) == 0 {
			continue
		}
		return p, nil
	}
}

func (t *transport) lastReadSeqNum() uint32 {
	t.reader.Lock()
	defer t.reader.Unlock()
	return t.reader.lastSeq
}

func (t *transport) writePacket(packet []byte) error {
	t.writer.Lock()
	defer t.writer.Unlock()
	err := t.writer.packetCipher.writePacket(t.writer.seqNum, t.writer.Writer, t.writer.rand, packet)
	t.writer.seqNum++
	return err
}

func (t *transport) Close() error { return t.conn.Close() }

// prepareKeyChange installs the ciphers derived from result for both
// directions, and (when algs.Strict is set) resets both sequence
// counters to zero: the kex-strict-{c,s}-v00@openssh.com extension
// (strictkex.go) trades the RFC 4253 free-running sequence number for a
// per-exchange-epoch one, closing the CVE-2023-48795 plaintext-injection
// window.
func (t *transport) prepareKeyChange(algs *Algorithms, result *kexResult) error {
	isClient := t.isClient
	rc, err := newPacketCipher(directionKeysFor(result, algs, !isClient), algs.directionFor(!isClient))
	if err != nil {
		return err
	}
	wc, err := newPacketCipher(directionKeysFor(result, algs, isClient), algs.directionFor(isClient))
	if err != nil {
		return err
	}

	t.reader.Lock()
	t.reader.packetCipher = rc
	if algs.Strict {
		t.reader.seqNum = 0
	}
	t.reader.Unlock()

	t.writer.Lock()
	t.writer.packetCipher = wc
	if algs.Strict {
		t.writer.seqNum = 0
	}
	t.writer.Unlock()

	return nil
}

// directionFor returns the DirectionAlgorithms governing data this side
// sends (write) or receives (read). toServer is true when describing the
// client-to-server direction.
func (a *Algorithms) directionFor(toServer bool) DirectionAlgorithms {
	if toServer {
		return a.W
	}
	return a.R
}

func newPacketCipher(keys directionKeys, algs DirectionAlgorithms) (packetCipher, error) {
	mode, ok := cipherModes[algs.Cipher]
	if !ok {
		return nil, errors.New("ssh: unknown cipher " + algs.Cipher)
	}
	var mm *macMode
	if algs.MAC != "" {
		mm = findMACMode(algs.MAC, keys.macKey)
	}
	return mode.create(keys.cipherKey, keys.iv, mm, algs)
}

// directionKeys holds the key material generateKeys derived for one
// direction: the cipher key, the initial IV, and (if the cipher is not
// an AEAD) the MAC key.
type directionKeys struct {
	iv, cipherKey, macKey []byte
}

// directionKeysFor extracts the directionKeys for one direction out of
// the six values generateKeys derives. toServer selects the
// client-to-server triple; otherwise the server-to-client triple.
func directionKeysFor(result *kexResult, algs *Algorithms, toServer bool) directionKeys {
	keys := generateKeys(result, algs)
	if toServer {
		return directionKeys{iv: keys.ivCS, cipherKey: keys.keyCS, macKey: keys.macCS}
	}
	return directionKeys{iv: keys.ivSC, cipherKey: keys.keySC, macKey: keys.macSC}
}

// derivedKeys is the full output of RFC 4253 7.2's key derivation
// function: six values labeled 'A' through 'F'.
type derivedKeys struct {
	ivCS, ivSC, keyCS, keySC, macCS, macSC []byte
}

// generateKeys derives the six session keys from K, H, and the session
// ID, per RFC 4253 7.2.
func generateKeys(result *kexResult, algs *Algorithms) *derivedKeys {
	cipherModeW := cipherModes[algs.W.Cipher]
	cipherModeR := cipherModes[algs.R.Cipher]

	macSizeW := 0
	if m, ok := macModes[algs.W.MAC]; ok {
		macSizeW = m.keySize
	}
	macSizeR := 0
	if m, ok := macModes[algs.R.MAC]; ok {
		macSizeR = m.keySize
	}

	h := hashForExchangeHash(len(result.H))

	return &derivedKeys{
		ivCS:  expandKey(h, result, 'A', cipherModeW.ivSize),
		ivSC:  expandKey(h, result, 'B', cipherModeR.ivSize),
		keyCS: expandKey(h, result, 'C', cipherModeW.keySize),
		keySC: expandKey(h, result, 'D', cipherModeR.keySize),
		macCS: expandKey(h, result, 'E', macSizeW),
		macSC: expandKey(h, result, 'F', macSizeR),
	}
}

// hashForExchangeHash recovers the hash constructor used to produce H
// from its digest length. Every kex method in kexAlgoMap uses SHA-1,
// SHA-256, SHA-384, or SHA-512, which happen to have distinct output
// sizes, so the length alone disambiguates them.
func hashForExchangeHash(hLen int) func() hash.Hash {
	switch hLen {
	case sha1.Size:
		return sha1.New
	case sha256.Size:
		return sha256.New
	case sha512.Size384:
		return sha512.New384
	default:
		return sha512.New
	}
}

// expandKey implements the RFC 4253 7.2 key-stretching loop: repeatedly
// appending HASH(K || H || K1 || K2 || ...) until the output is at least
// size bytes.
func expandKey(newHash func() hash.Hash, result *kexResult, label byte, size int) []byte {
	if size == 0 {
		return nil
	}
	var out []byte
	for len(out) < size {
		h := newHash()
		writeBigInt(h, result.K)
		h.Write(result.H)
		if len(out) == 0 {
			h.Write([]byte{label})
			h.Write(result.SessionID)
		} else {
			// Round i >= 2 hashes K || H || K1 || K2 || ... || K(i-1), i.e.
			// every prior round's output concatenated, not just the most
			// recent one.
			h.Write(out)
		}
		out = append(out, h.Sum(nil)...)
	}
	return out[:size]
}

// identityCipher is the unencrypted, unauthenticated packetCipher used
// before the first NEWKEYS: plain RFC 4253 4.2 framing with no cipher and
// no MAC, required so the initial KEXINIT exchange is itself just a BPP
// packet.
func newIdentityCipher() packetCipher {
	return &streamPacketCipher{cipher: nopStream{}, blockSz: 8}
}

// nopStream is a cipher.Stream that copies input to output unchanged.
type nopStream struct{}

func (nopStream) XORKeyStream(dst, src []byte) { copy(dst, src) }
