// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// Wire names for the public-key/signature algorithms sshcore verifies and
// signs with. DSA is intentionally absent: it is not in allSupportedKexAlgos'
// host-key-compatible set and OpenSSH itself has removed it.
const (
	KeyAlgoRSA     = "ssh-rsa"
	KeyAlgoECDSA256 = "ecdsa-sha2-nistp256"
	KeyAlgoECDSA384 = "ecdsa-sha2-nistp384"
	KeyAlgoECDSA521 = "ecdsa-sha2-nistp521"
	KeyAlgoED25519 = "ssh-ed25519"
)

// PublicKey is a host or user key as carried on the wire: an opaque blob
// plus the ability to verify a signature over arbitrary data. Concrete
// collaborators (a host-key store, a user credential source) produce
// values satisfying this; sshcore itself never generates key material.
type PublicKey interface {
	// Type returns the wire algorithm name, e.g. "ssh-ed25519".
	Type() string
	// Marshal returns the public key blob as carried in a host-key or
	// publickey-auth message.
	Marshal() []byte
	// Verify checks sig, in the wire signature-blob format, over data.
	Verify(data, sig []byte) error
}

// Signer can produce a signature over arbitrary data. A HostKeyStore or
// UserCredentialSource returns one of these to authenticate the local
// side.
type Signer interface {
	PublicKey() PublicKey
	Sign(rand io.Reader, data []byte) ([]byte, error)
}

type rsaPublicKey rsa.PublicKey

func (k *rsaPublicKey) Type() string { return KeyAlgoRSA }

func (k *rsaPublicKey) Marshal() []byte {
	e := new(big.Int).SetInt64(int64(k.E))
	out := appendString(nil, KeyAlgoRSA)
	out = appendMpint(out, e)
	out = appendMpint(out, k.N)
	return out
}

func (k *rsaPublicKey) Verify(data, sigBlob []byte) error {
	format, sig, ok := parseSignatureBlob(sigBlob)
	if !ok || format != KeyAlgoRSA {
		return errors.New("ssh: signature format mismatch for ssh-rsa")
	}
	h := hashFuncs[KeyAlgoRSA].New()
	h.Write(data)
	return rsa.VerifyPKCS1v15((*rsa.PublicKey)(k), hashFuncs[KeyAlgoRSA], h.Sum(nil), sig)
}

type ecdsaPublicKey ecdsa.PublicKey

func ecdsaAlgoName(curveBits int) string {
	switch curveBits {
	case 256:
		return KeyAlgoECDSA256
	case 384:
		return KeyAlgoECDSA384
	case 521:
		return KeyAlgoECDSA521
	}
	return ""
}

func (k *ecdsaPublicKey) Type() string {
	return ecdsaAlgoName(k.Curve.Params().BitSize)
}

func (k *ecdsaPublicKey) Marshal() []byte {
	curveName := ecdsaCurveID(k.Curve)
	pt := elliptic.Marshal(k.Curve, k.X, k.Y)
	out := appendString(nil, k.Type())
	out = appendString(out, curveName)
	out = appendString(out, string(pt))
	return out
}

func ecdsaCurveID(curve elliptic.Curve) string {
	switch curve.Params().BitSize {
	case 256:
		return "nistp256"
	case 384:
		return "nistp384"
	case 521:
		return "nistp521"
	}
	return ""
}

func (k *ecdsaPublicKey) Verify(data, sigBlob []byte) error {
	format, sig, ok := parseSignatureBlob(sigBlob)
	if !ok || format != k.Type() {
		return errors.New("ssh: signature format mismatch")
	}
	var ecSig struct {
		R, S *big.Int
	}
	if err := Unmarshal(sig, &ecSig); err != nil {
		return err
	}
	h := hashFuncs[k.Type()].New()
	h.Write(data)
	if !ecdsa.Verify((*ecdsa.PublicKey)(k), h.Sum(nil), ecSig.R, ecSig.S) {
		return errors.New("ssh: ecdsa signature verification failed")
	}
	return nil
}

type ed25519PublicKey ed25519.PublicKey

func (k ed25519PublicKey) Type() string { return KeyAlgoED25519 }

func (k ed25519PublicKey) Marshal() []byte {
	out := appendString(nil, KeyAlgoED25519)
	out = appendString(out, string(k))
	return out
}

func (k ed25519PublicKey) Verify(data, sigBlob []byte) error {
	format, sig, ok := parseSignatureBlob(sigBlob)
	if !ok || format != KeyAlgoED25519 {
		return errors.New("ssh: signature format mismatch for ssh-ed25519")
	}
	if !ed25519.Verify(ed25519.PublicKey(k), data, sig) {
		return errors.New("ssh: ed25519 signature verification failed")
	}
	return nil
}

// parseSignatureBlob decodes an SSH signature blob: a string (the
// algorithm name) followed by a string (the raw signature).
func parseSignatureBlob(in []byte) (format string, sig []byte, ok bool) {
	var s struct {
		Format string
		Sig    []byte
	}
	if err := Unmarshal(in, &s); err != nil {
		return "", nil, false
	}
	return s.Format, s.Sig, true
}

// parseSignatureBody reparses the same blob, returning the raw bytes so
// callers that already know the algorithm (verifyHostKeySignature, in
// this file) can hand the whole thing to PublicKey.Verify.
func parseSignatureBody(in []byte) (sig []byte, rest []byte, ok bool) {
	return in, nil, len(in) > 0
}

// MarshalPublicKey returns the wire blob for any PublicKey.
func MarshalPublicKey(k PublicKey) []byte { return k.Marshal() }

// ParsePublicKey parses the first public key blob in in, returning the
// key and anything left over, the way a CHANNEL_OPEN type-specific
// payload or a certificate's embedded key is parsed.
func ParsePublicKey(in []byte) (PublicKey, []byte, bool) {
	algo, rest, ok := parseString(in)
	if !ok {
		return nil, nil, false
	}
	switch string(algo) {
	case KeyAlgoRSA:
		var e, n *big.Int
		var r []byte
		if e, r, ok = parseMpint(rest); !ok {
			return nil, nil, false
		}
		if n, r, ok = parseMpint(r); !ok {
			return nil, nil, false
		}
		return &rsaPublicKey{E: int(e.Int64()), N: n}, r, true
	case KeyAlgoECDSA256, KeyAlgoECDSA384, KeyAlgoECDSA521:
		var curveName, pt []byte
		var r []byte
		if curveName, r, ok = parseString(rest); !ok {
			return nil, nil, false
		}
		if pt, r, ok = parseString(r); !ok {
			return nil, nil, false
		}
		curve := curveForName(string(curveName))
		if curve == nil {
			return nil, nil, false
		}
		x, y := elliptic.Unmarshal(curve, pt)
		if x == nil {
			return nil, nil, false
		}
		return &ecdsaPublicKey{Curve: curve, X: x, Y: y}, r, true
	case KeyAlgoED25519:
		var key []byte
		var r []byte
		if key, r, ok = parseString(rest); !ok {
			return nil, nil, false
		}
		return ed25519PublicKey(key), r, true
	default:
		return nil, nil, false
	}
}

func curveForName(name string) elliptic.Curve {
	switch name {
	case "nistp256":
		return elliptic.P256()
	case "nistp384":
		return elliptic.P384()
	case "nistp521":
		return elliptic.P521()
	}
	return nil
}

// verifyHostKeySignature verifies the host key signature obtained during
// key exchange: sig, in wire signature-blob format, over h.
func verifyHostKeySignature(hostKey PublicKey, result *kexResult) error {
	sig, rest, ok := parseSignatureBody(result.Signature)
	if len(rest) > 0 || !ok {
		return wrapErr(ErrKEX, errors.New("ssh: signature parse error"))
	}
	if err := hostKey.Verify(result.H, sig); err != nil {
		return wrapErr(ErrKEX, fmt.Errorf("%w: %v", ErrHostKeyNotVerifiable, err))
	}
	return nil
}

// ErrHostKeyNotVerifiable is wrapped by verifyHostKeySignature failures,
// matching spec.md 7's HOST_KEY_NOT_VERIFIABLE disconnect reason.
var ErrHostKeyNotVerifiable = errors.New("ssh: host key not verifiable")

// NewSignerFromKey adapts a crypto.Signer (an *rsa.PrivateKey,
// *ecdsa.PrivateKey, or ed25519.PrivateKey) to the Signer interface, for
// collaborators that keep key material in the standard library's shapes
// rather than sshcore's own.
func NewSignerFromKey(key crypto.Signer) (Signer, error) {
	switch pub := key.Public().(type) {
	case *rsa.PublicKey:
		return &genericSigner{pub: (*rsaPublicKey)(pub), priv: key, algo: KeyAlgoRSA}, nil
	case *ecdsa.PublicKey:
		return &genericSigner{pub: (*ecdsaPublicKey)(pub), priv: key, algo: ecdsaAlgoName(pub.Curve.Params().BitSize)}, nil
	case ed25519.PublicKey:
		return &genericSigner{pub: ed25519PublicKey(pub), priv: key, algo: KeyAlgoED25519}, nil
	default:
		return nil, fmt.Errorf("ssh: unsupported key type %T", pub)
	}
}

type genericSigner struct {
	pub  PublicKey
	priv crypto.Signer
	algo string
}

func (s *genericSigner) PublicKey() PublicKey { return s.pub }

// Sign produces a wire-format signature blob. ECDSA is special-cased:
// crypto.Signer.Sign returns an ASN.1 DER signature, but the SSH wire
// format (RFC 5656 3.1.2) is the (r, s) pair encoded as two mpints, so
// the DER form can't be used directly.
func (s *genericSigner) Sign(rnd io.Reader, data []byte) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	if ek, ok := s.priv.(*ecdsa.PrivateKey); ok {
		h := hashFuncs[s.algo].New()
		h.Write(data)
		r, sVal, err := ecdsa.Sign(rnd, ek, h.Sum(nil))
		if err != nil {
			return nil, err
		}
		sig := Marshal(&struct{ R, S *big.Int }{r, sVal})
		out := appendString(nil, s.algo)
		out = appendString(out, string(sig))
		return out, nil
	}

	var digest []byte
	opts := crypto.Hash(0)
	if h, ok := hashFuncs[s.algo]; ok {
		hh := h.New()
		hh.Write(data)
		digest = hh.Sum(nil)
		opts = h
	} else {
		digest = data
	}
	var raw []byte
	var err error
	if s.algo == KeyAlgoED25519 {
		raw, err = s.priv.Sign(rnd, data, crypto.Hash(0))
	} else {
		raw, err = s.priv.Sign(rnd, digest, opts)
	}
	if err != nil {
		return nil, err
	}
	out := appendString(nil, s.algo)
	out = appendString(out, string(raw))
	return out, nil
}
