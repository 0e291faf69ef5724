// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

// Cipher wire names. chacha20-poly1305@openssh.com and the two AES-GCM
// variants are AEADs and carry their own integrity check, so a
// DirectionAlgorithms pairing one of these with a MAC still only applies
// the cipher's internal tag (RFC 5647, and openssh PROTOCOL.chacha20poly1305).
const (
	chacha20Poly1305ID = "chacha20-poly1305@openssh.com"
	gcmCipherID        = "aes128-gcm@openssh.com"
	gcm256CipherID     = "aes256-gcm@openssh.com"
)

const (
	packetSizeMultiple = 16 // is treated as the smallest block size
	maxPacket          = 256 * 1024
)

// packetCipher represents a combination of SSH encryption/MAC that operates
// on one direction of a single connection.
type packetCipher interface {
	// readPacket reads and decrypts a single packet from the transport,
	// using seqNum as part of the authenticated data.
	readPacket(seqNum uint32, r io.Reader) ([]byte, error)

	// writePacket encrypts and writes a single packet to the transport.
	// The contents of packet are overwritten.
	writePacket(seqNum uint32, w io.Writer, rand io.Reader, packet []byte) error
}

// cipherMode describes a cipher's key material layout and constructors.
type cipherMode struct {
	keySize int
	ivSize  int
	create  func(key, iv []byte, macMode *macMode, algs DirectionAlgorithms) (packetCipher, error)
}

var cipherModes = map[string]*cipherMode{
	chacha20Poly1305ID: {64, 0, newChaCha20Cipher},
	gcmCipherID:        {16, 12, newGCMCipher},
	gcm256CipherID:     {32, 12, newGCMCipher},
	"aes128-ctr":       {16, aes.BlockSize, newAESCTRCipher},
	"aes192-ctr":       {24, aes.BlockSize, newAESCTRCipher},
	"aes256-ctr":       {32, aes.BlockSize, newAESCTRCipher},
	"aes128-cbc-etm@openssh.com": {16, aes.BlockSize, newAESCBCCipher},
	"aes192-cbc-etm@openssh.com": {24, aes.BlockSize, newAESCBCCipher},
	"aes256-cbc-etm@openssh.com": {32, aes.BlockSize, newAESCBCCipher},
}

// streamPacketCipher implements packetCipher for non-AEAD stream/CBC
// ciphers, combined with a separate MAC (including the encrypt-then-MAC
// variants, where the MAC covers the ciphertext rather than the
// plaintext).
type streamPacketCipher struct {
	mac     hash.Hash
	cipher  cipher.Stream
	block   cipher.BlockMode // non-nil for CBC, nil for stream ciphers
	blockSz int
	etm     bool
	seqBuf  [4]byte
}

func newAESCTRCipher(key, iv []byte, macMode *macMode, algs DirectionAlgorithms) (packetCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv)
	return newStreamCipher(stream, nil, aes.BlockSize, macMode, algs)
}

func newAESCBCCipher(key, iv []byte, macMode *macMode, algs DirectionAlgorithms) (packetCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	mode := cipher.NewCBCEncrypter(block, iv)
	return newStreamCipher(nil, mode, aes.BlockSize, macMode, algs)
}

func newStreamCipher(stream cipher.Stream, block cipher.BlockMode, blockSz int, macMode *macMode, algs DirectionAlgorithms) (packetCipher, error) {
	if macMode == nil {
		return nil, fmt.Errorf("ssh: cipher %s requires a MAC", algs.Cipher)
	}
	return &streamPacketCipher{
		mac:     macMode.new(macMode.key),
		cipher:  stream,
		block:   block,
		blockSz: blockSz,
		etm:     macMode.etm,
	}, nil
}

// writePacket frames packet per spec.md 4.1: packet_length + padding_length
// + payload + random padding, padded to a multiple of the block size (at
// least packetSizeMultiple and at least 4 bytes of padding), then
// encrypted and MAC'd.
func (c *streamPacketCipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, payload []byte) error {
	blockSz := c.blockSz
	if blockSz < packetSizeMultiple {
		blockSz = packetSizeMultiple
	}
	paddingLen := blockSz - (5+len(payload))%blockSz
	if paddingLen < 4 {
		paddingLen += blockSz
	}

	length := 1 + len(payload) + paddingLen
	packet := make([]byte, 4+length)
	binary.BigEndian.PutUint32(packet, uint32(length))
	packet[4] = byte(paddingLen)
	copy(packet[5:], payload)
	padding := packet[5+len(payload):]
	if _, err := io.ReadFull(rand, padding); err != nil {
		return err
	}

	// Without ETM the MAC covers the unencrypted packet, so it is taken
	// before encryption.
	var macSum []byte
	if c.mac != nil && !c.etm {
		c.mac.Reset()
		binary.BigEndian.PutUint32(c.seqBuf[:], seqNum)
		c.mac.Write(c.seqBuf[:])
		c.mac.Write(packet)
		macSum = c.mac.Sum(nil)
	}

	if c.etm {
		if _, err := w.Write(packet[:4]); err != nil {
			return err
		}
		c.cipher.XORKeyStream(packet[4:], packet[4:])
		if _, err := w.Write(packet[4:]); err != nil {
			return err
		}
	} else {
		if c.block != nil {
			c.block.CryptBlocks(packet, packet)
		} else {
			c.cipher.XORKeyStream(packet, packet)
		}
		if _, err := w.Write(packet); err != nil {
			return err
		}
	}

	if c.mac != nil {
		if c.etm {
			c.mac.Reset()
			binary.BigEndian.PutUint32(c.seqBuf[:], seqNum)
			c.mac.Write(c.seqBuf[:])
			c.mac.Write(packet)
			macSum = c.mac.Sum(nil)
		}
		if _, err := w.Write(macSum); err != nil {
			return err
		}
	}
	return nil
}

func (c *streamPacketCipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	lengthBytes := make([]byte, 4)
	if c.etm || c.mac == nil {
		if _, err := io.ReadFull(r, lengthBytes); err != nil {
			return nil, err
		}
	} else {
		if c.block != nil {
			if _, err := io.ReadFull(r, lengthBytes); err != nil {
				return nil, err
			}
			c.block.CryptBlocks(lengthBytes, lengthBytes)
		} else {
			if _, err := io.ReadFull(r, lengthBytes); err != nil {
				return nil, err
			}
			c.cipher.XORKeyStream(lengthBytes, lengthBytes)
		}
	}

	length := binary.BigEndian.Uint32(lengthBytes)
	if length > maxPacket {
		return nil, wrapErr(ErrProtocol, errors.New("ssh: packet too large"))
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}

	var macBytes []byte
	if c.mac != nil {
		macBytes = make([]byte, c.mac.Size())
		if _, err := io.ReadFull(r, macBytes); err != nil {
			return nil, err
		}
	}

	if c.etm {
		if c.mac != nil {
			c.mac.Reset()
			binary.BigEndian.PutUint32(c.seqBuf[:], seqNum)
			c.mac.Write(c.seqBuf[:])
			c.mac.Write(lengthBytes)
			c.mac.Write(rest)
			if !hmac.Equal(c.mac.Sum(nil), macBytes) {
				return nil, wrapErr(ErrMACDecrypt, errors.New("ssh: MAC mismatch"))
			}
		}
		if c.block != nil {
			c.block.CryptBlocks(rest, rest)
		} else {
			c.cipher.XORKeyStream(rest, rest)
		}
	} else if c.mac != nil {
		if c.block != nil {
			c.block.CryptBlocks(rest, rest)
		} else {
			c.cipher.XORKeyStream(rest, rest)
		}
		full := append(append([]byte{}, lengthBytes...), rest...)
		c.mac.Reset()
		binary.BigEndian.PutUint32(c.seqBuf[:], seqNum)
		c.mac.Write(c.seqBuf[:])
		c.mac.Write(full)
		if !hmac.Equal(c.mac.Sum(nil), macBytes) {
			return nil, wrapErr(ErrMACDecrypt, errors.New("ssh: MAC mismatch"))
		}
	}

	paddingLen := int(rest[0])
	if paddingLen+1 > len(rest) {
		return nil, wrapErr(ErrProtocol, errors.New("ssh: invalid padding length"))
	}
	return rest[1 : len(rest)-paddingLen], nil
}

// chaCha20Poly1305Cipher implements the chacha20-poly1305@openssh.com AEAD
// scheme: two independent ChaCha20 instances keyed from the same 64-byte
// secret, one (lengthKey) to obfuscate packet_length, the other (payloadKey)
// to generate a per-packet Poly1305 key and encrypt the payload.
type chaCha20Poly1305Cipher struct {
	lengthKey  [32]byte
	payloadKey [32]byte
}

func newChaCha20Cipher(key, iv []byte, macMode *macMode, algs DirectionAlgorithms) (packetCipher, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("ssh: chacha20-poly1305 requires a 64-byte key, got %d", len(key))
	}
	c := &chaCha20Poly1305Cipher{}
	copy(c.payloadKey[:], key[:32])
	copy(c.lengthKey[:], key[32:])
	return c, nil
}

func (c *chaCha20Poly1305Cipher) nonce(seqNum uint32) [12]byte {
	var n [12]byte
	binary.BigEndian.PutUint32(n[8:], seqNum)
	return n
}

func (c *chaCha20Poly1305Cipher) polyKey(seqNum uint32) ([32]byte, error) {
	n := c.nonce(seqNum)
	s, err := chacha20.NewUnauthenticatedCipher(c.payloadKey[:], n[:])
	if err != nil {
		return [32]byte{}, err
	}
	var polyKey [32]byte
	s.XORKeyStream(polyKey[:], polyKey[:])
	return polyKey, nil
}

func (c *chaCha20Poly1305Cipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, payload []byte) error {
	paddingLen := packetSizeMultiple - (1+len(payload))%packetSizeMultiple
	if paddingLen < 4 {
		paddingLen += packetSizeMultiple
	}
	length := 1 + len(payload) + paddingLen
	packet := make([]byte, 4+length+poly1305.TagSize)
	binary.BigEndian.PutUint32(packet, uint32(length))
	packet[4] = byte(paddingLen)
	copy(packet[5:], payload)
	if _, err := io.ReadFull(rand, packet[5+len(payload):4+length]); err != nil {
		return err
	}

	n := c.nonce(seqNum)
	lenStream, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], n[:])
	if err != nil {
		return err
	}
	lenStream.XORKeyStream(packet[:4], packet[:4])

	payloadStream, err := chacha20.NewUnauthenticatedCipher(c.payloadKey[:], n[:])
	if err != nil {
		return err
	}
	payloadStream.SetCounter(1)
	payloadStream.XORKeyStream(packet[4:4+length], packet[4:4+length])

	polyKey, err := c.polyKey(seqNum)
	if err != nil {
		return err
	}
	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, packet[:4+length], &polyKey)
	copy(packet[4+length:], tag[:])

	_, err = w.Write(packet)
	return err
}

func (c *chaCha20Poly1305Cipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	lengthBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		return nil, err
	}

	n := c.nonce(seqNum)
	lenStream, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], n[:])
	if err != nil {
		return nil, err
	}
	lengthPlain := make([]byte, 4)
	lenStream.XORKeyStream(lengthPlain, lengthBytes)
	length := binary.BigEndian.Uint32(lengthPlain)
	if length > maxPacket {
		return nil, wrapErr(ErrProtocol, errors.New("ssh: packet too large"))
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	var tag [poly1305.TagSize]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}

	polyKey, err := c.polyKey(seqNum)
	if err != nil {
		return nil, err
	}
	var mac [poly1305.TagSize]byte
	authenticated := append(append([]byte{}, lengthBytes...), rest...)
	poly1305.Sum(&mac, authenticated, &polyKey)
	if !hmac.Equal(mac[:], tag[:]) {
		return nil, wrapErr(ErrMACDecrypt, errors.New("ssh: poly1305 tag mismatch"))
	}

	payloadStream, err := chacha20.NewUnauthenticatedCipher(c.payloadKey[:], n[:])
	if err != nil {
		return nil, err
	}
	payloadStream.SetCounter(1)
	payloadStream.XORKeyStream(rest, rest)

	paddingLen := int(rest[0])
	if paddingLen+1 > len(rest) {
		return nil, wrapErr(ErrProtocol, errors.New("ssh: invalid padding length"))
	}
	return rest[1 : len(rest)-paddingLen], nil
}

// gcmCipher implements the aes{128,256}-gcm@openssh.com AEAD scheme
// (RFC 5647): packet_length is sent in the clear and used as additional
// authenticated data, and the 12-byte nonce increments its low 8 bytes as
// a counter seeded from the key exchange.
type gcmCipher struct {
	aead  cipher.AEAD
	nonce [12]byte
}

func newGCMCipher(key, iv []byte, macMode *macMode, algs DirectionAlgorithms) (packetCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	c := &gcmCipher{aead: aead}
	copy(c.nonce[:], iv)
	return c, nil
}

func (c *gcmCipher) incNonce() {
	for i := len(c.nonce) - 1; i >= 4; i-- {
		c.nonce[i]++
		if c.nonce[i] != 0 {
			break
		}
	}
}

func (c *gcmCipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, payload []byte) error {
	paddingLen := packetSizeMultiple - (1+len(payload))%packetSizeMultiple
	if paddingLen < 4 {
		paddingLen += packetSizeMultiple
	}
	length := 1 + len(payload) + paddingLen
	lengthBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBytes, uint32(length))

	plain := make([]byte, length)
	plain[0] = byte(paddingLen)
	copy(plain[1:], payload)
	if _, err := io.ReadFull(rand, plain[1+len(payload):]); err != nil {
		return err
	}

	sealed := c.aead.Seal(nil, c.nonce[:], plain, lengthBytes)
	c.incNonce()

	if _, err := w.Write(lengthBytes); err != nil {
		return err
	}
	_, err := w.Write(sealed)
	return err
}

func (c *gcmCipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	lengthBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes)
	if length > maxPacket {
		return nil, wrapErr(ErrProtocol, errors.New("ssh: packet too large"))
	}

	ciphertext := make([]byte, int(length)+c.aead.Overhead())
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, err
	}

	plain, err := c.aead.Open(nil, c.nonce[:], ciphertext, lengthBytes)
	c.incNonce()
	if err != nil {
		return nil, wrapErr(ErrMACDecrypt, fmt.Errorf("ssh: gcm authentication failed: %w", err))
	}

	paddingLen := int(plain[0])
	if paddingLen+1 > len(plain) {
		return nil, wrapErr(ErrProtocol, errors.New("ssh: invalid padding length"))
	}
	return plain[1 : len(plain)-paddingLen], nil
}
