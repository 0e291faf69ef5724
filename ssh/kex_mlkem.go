// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/mlkem"
	"crypto/sha256"
	"errors"
	"io"
)

// mlkemX25519KEX implements mlkem768x25519-sha256, the hybrid
// post-quantum/classical method OpenSSH 9.9 introduced: an ML-KEM-768
// encapsulation is concatenated with a classical X25519 exchange so that
// a break of either primitive alone does not compromise the session.
// The wire encoding concatenates the client's ML-KEM encapsulation key
// with its X25519 public value in ClientPubKey, and the server's
// ciphertext with its X25519 public value in EphemeralPubKey (the same
// convention OpenSSH's kexmlkem768x25519.c uses).
type mlkemX25519KEX struct{}

const (
	mlkemEncapsulationKeySize = 1184
	mlkemCiphertextSize       = 1088
	x25519Size                = 32
)

func (m *mlkemX25519KEX) Client(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics) (*kexResult, error) {
	dk, err := mlkem.GenerateKey768()
	if err != nil {
		return nil, err
	}
	ek := dk.EncapsulationKey().Bytes()

	xPriv, xPub, err := curve25519KeyPair(randSrc)
	if err != nil {
		return nil, err
	}

	clientPub := append(append([]byte{}, ek...), xPub[:]...)
	if err := sendMsg(rw, &kexECDHInitMsg{ClientPubKey: clientPub}); err != nil {
		return nil, err
	}

	reply := new(kexECDHReplyMsg)
	if err := recvMsg(rw, msgKexECDHReply, reply); err != nil {
		return nil, err
	}
	if len(reply.EphemeralPubKey) != mlkemCiphertextSize+x25519Size {
		return nil, errors.New("ssh: malformed mlkem768x25519 server reply")
	}
	ciphertext := reply.EphemeralPubKey[:mlkemCiphertextSize]
	serverXPub := reply.EphemeralPubKey[mlkemCiphertextSize:]

	mlkemSecret, err := dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, err
	}
	xSecret, err := curve25519Shared(xPriv, serverXPub)
	if err != nil {
		return nil, err
	}
	secret := append(append([]byte{}, mlkemSecret...), xSecret...)

	h := sha256.New()
	magics.write(h)
	writeString(h, reply.HostKey)
	writeString(h, clientPub)
	writeString(h, reply.EphemeralPubKey)
	writeBigInt(h, bytesToBigInt(secret))

	return &kexResult{H: h.Sum(nil), K: bytesToBigInt(secret), HostKey: reply.HostKey, Signature: reply.Signature}, nil
}

func (m *mlkemX25519KEX) Server(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics, priv Signer) (*kexResult, error) {
	init := new(kexECDHInitMsg)
	if err := recvMsg(rw, msgKexECDHInit, init); err != nil {
		return nil, err
	}
	if len(init.ClientPubKey) != mlkemEncapsulationKeySize+x25519Size {
		return nil, errors.New("ssh: malformed mlkem768x25519 client init")
	}
	ekBytes := init.ClientPubKey[:mlkemEncapsulationKeySize]
	clientXPub := init.ClientPubKey[mlkemEncapsulationKeySize:]

	ek, err := mlkem.NewEncapsulationKey768(ekBytes)
	if err != nil {
		return nil, err
	}
	mlkemSecret, ciphertext := ek.Encapsulate()

	xPriv, xPub, err := curve25519KeyPair(randSrc)
	if err != nil {
		return nil, err
	}
	xSecret, err := curve25519Shared(xPriv, clientXPub)
	if err != nil {
		return nil, err
	}
	secret := append(append([]byte{}, mlkemSecret...), xSecret...)

	serverPub := append(append([]byte{}, ciphertext...), xPub[:]...)
	hostKeyBytes := priv.PublicKey().Marshal()

	h := sha256.New()
	magics.write(h)
	writeString(h, hostKeyBytes)
	writeString(h, init.ClientPubKey)
	writeString(h, serverPub)
	writeBigInt(h, bytesToBigInt(secret))
	H := h.Sum(nil)

	sig, err := priv.Sign(randSrc, H)
	if err != nil {
		return nil, err
	}

	if err := sendMsg(rw, &kexECDHReplyMsg{HostKey: hostKeyBytes, EphemeralPubKey: serverPub, Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: bytesToBigInt(secret), HostKey: hostKeyBytes, Signature: sig}, nil
}
