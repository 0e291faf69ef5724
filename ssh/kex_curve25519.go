// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// curve25519KEX implements curve25519-sha256 (RFC 8731) and its older
// curve25519-sha256@libssh.org alias, which differ only in name.
type curve25519KEX struct{}

func curve25519KeyPair(randSrc io.Reader) (priv, pub [32]byte, err error) {
	if _, err = io.ReadFull(randSrc, priv[:]); err != nil {
		return
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return
}

func curve25519Shared(priv [32]byte, peerPub []byte) ([]byte, error) {
	if len(peerPub) != 32 {
		return nil, errors.New("ssh: invalid curve25519 peer public key length")
	}
	var pub, secret [32]byte
	copy(pub[:], peerPub)
	curve25519.ScalarMult(&secret, &priv, &pub)

	// RFC 8731 3 rejects an all-zero shared secret (a small-subgroup or
	// identity-point attack).
	var zero [32]byte
	if secret == zero {
		return nil, errors.New("ssh: curve25519 shared secret is all-zero")
	}
	return secret[:], nil
}

func (c *curve25519KEX) Client(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics) (*kexResult, error) {
	priv, pub, err := curve25519KeyPair(randSrc)
	if err != nil {
		return nil, err
	}

	if err := sendMsg(rw, &kexECDHInitMsg{ClientPubKey: pub[:]}); err != nil {
		return nil, err
	}

	reply := new(kexECDHReplyMsg)
	if err := recvMsg(rw, msgKexECDHReply, reply); err != nil {
		return nil, err
	}

	secret, err := curve25519Shared(priv, reply.EphemeralPubKey)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	magics.write(h)
	writeString(h, reply.HostKey)
	writeString(h, pub[:])
	writeString(h, reply.EphemeralPubKey)
	writeBigInt(h, bytesToBigInt(secret))

	return &kexResult{H: h.Sum(nil), K: bytesToBigInt(secret), HostKey: reply.HostKey, Signature: reply.Signature}, nil
}

func (c *curve25519KEX) Server(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics, priv Signer) (*kexResult, error) {
	init := new(kexECDHInitMsg)
	if err := recvMsg(rw, msgKexECDHInit, init); err != nil {
		return nil, err
	}

	ephPriv, ephPub, err := curve25519KeyPair(randSrc)
	if err != nil {
		return nil, err
	}

	secret, err := curve25519Shared(ephPriv, init.ClientPubKey)
	if err != nil {
		return nil, err
	}

	hostKeyBytes := priv.PublicKey().Marshal()

	h := sha256.New()
	magics.write(h)
	writeString(h, hostKeyBytes)
	writeString(h, init.ClientPubKey)
	writeString(h, ephPub[:])
	writeBigInt(h, bytesToBigInt(secret))
	H := h.Sum(nil)

	sig, err := priv.Sign(randSrc, H)
	if err != nil {
		return nil, err
	}

	if err := sendMsg(rw, &kexECDHReplyMsg{HostKey: hostKeyBytes, EphemeralPubKey: ephPub[:], Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: bytesToBigInt(secret), HostKey: hostKeyBytes, Signature: sig}, nil
}
