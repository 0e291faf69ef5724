// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ecdh"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"io"
)

// ecdhKEX implements ecdh-sha2-nistp{256,384,521} (RFC 5656 4) using the
// standard library's crypto/ecdh, which validates peer points and rejects
// the low-order/identity points that a hand-rolled curve implementation
// would need its own checks for.
type ecdhKEX struct {
	curveName string
}

func (e *ecdhKEX) curve() ecdh.Curve {
	switch e.curveName {
	case "nistp256":
		return ecdh.P256()
	case "nistp384":
		return ecdh.P384()
	case "nistp521":
		return ecdh.P521()
	}
	return nil
}

func (e *ecdhKEX) hashFunc() func() hash.Hash {
	switch e.curveName {
	case "nistp256":
		return sha256.New
	case "nistp384":
		return sha512.New384
	default:
		return sha512.New
	}
}

func (e *ecdhKEX) Client(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics) (*kexResult, error) {
	curve := e.curve()
	priv, err := curve.GenerateKey(randSrc)
	if err != nil {
		return nil, err
	}

	if err := sendMsg(rw, &kexECDHInitMsg{ClientPubKey: priv.PublicKey().Bytes()}); err != nil {
		return nil, err
	}

	reply := new(kexECDHReplyMsg)
	if err := recvMsg(rw, msgKexECDHReply, reply); err != nil {
		return nil, err
	}

	peerKey, err := curve.NewPublicKey(reply.EphemeralPubKey)
	if err != nil {
		return nil, errors.New("ssh: invalid ECDH peer public key")
	}
	secret, err := priv.ECDH(peerKey)
	if err != nil {
		return nil, err
	}

	h := e.hashFunc()()
	magics.write(h)
	writeString(h, reply.HostKey)
	writeString(h, priv.PublicKey().Bytes())
	writeString(h, reply.EphemeralPubKey)
	writeBigInt(h, bytesToBigInt(secret))

	return &kexResult{H: h.Sum(nil), K: bytesToBigInt(secret), HostKey: reply.HostKey, Signature: reply.Signature}, nil
}

func (e *ecdhKEX) Server(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics, priv Signer) (*kexResult, error) {
	curve := e.curve()
	init := new(kexECDHInitMsg)
	if err := recvMsg(rw, msgKexECDHInit, init); err != nil {
		return nil, err
	}

	peerKey, err := curve.NewPublicKey(init.ClientPubKey)
	if err != nil {
		return nil, errors.New("ssh: invalid ECDH peer public key")
	}

	ephemeral, err := curve.GenerateKey(randSrc)
	if err != nil {
		return nil, err
	}
	secret, err := ephemeral.ECDH(peerKey)
	if err != nil {
		return nil, err
	}

	hostKeyBytes := priv.PublicKey().Marshal()

	h := e.hashFunc()()
	magics.write(h)
	writeString(h, hostKeyBytes)
	writeString(h, init.ClientPubKey)
	writeString(h, ephemeral.PublicKey().Bytes())
	writeBigInt(h, bytesToBigInt(secret))
	H := h.Sum(nil)

	sig, err := priv.Sign(randSrc, H)
	if err != nil {
		return nil, err
	}

	if err := sendMsg(rw, &kexECDHReplyMsg{HostKey: hostKeyBytes, EphemeralPubKey: ephemeral.PublicKey().Bytes(), Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: bytesToBigInt(secret), HostKey: hostKeyBytes, Signature: sig}, nil
}
