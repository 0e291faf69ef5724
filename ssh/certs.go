// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"fmt"
	"time"
)

// Certificate algorithm names, [PROTOCOL.certkeys]. These are valid
// ServerHostKeyAlgos/HostKeyAlgorithms entries: a host or user may
// authenticate with a certificate instead of a bare public key.
const (
	CertAlgoRSAv01      = "ssh-rsa-cert-v01@openssh.com"
	CertAlgoECDSA256v01 = "ecdsa-sha2-nistp256-cert-v01@openssh.com"
	CertAlgoECDSA384v01 = "ecdsa-sha2-nistp384-cert-v01@openssh.com"
	CertAlgoECDSA521v01 = "ecdsa-sha2-nistp521-cert-v01@openssh.com"
	CertAlgoED25519v01  = "ssh-ed25519-cert-v01@openssh.com"
)

// Certificate types distinguish user identities from host identities.
const (
	UserCert = 1
	HostCert = 2
)

type certTuple struct {
	Name string
	Data string
}

// Certificate represents an OpenSSH certificate, [PROTOCOL.certkeys]
// v01. A Certificate satisfies PublicKey, so it can stand in anywhere a
// bare key is expected (as a server host key or in publickey auth).
type Certificate struct {
	Nonce                   []byte
	Key                     PublicKey
	Serial                  uint64
	CertType                uint32
	KeyID                   string
	ValidPrincipals         []string
	ValidAfter, ValidBefore time.Time
	CriticalOptions         []certTuple
	Extensions              []certTuple
	Reserved                []byte
	SignatureKey            PublicKey
	Signature               []byte // wire signature blob, format+blob
}

var certAlgoNames = map[string]string{
	KeyAlgoRSA:      CertAlgoRSAv01,
	KeyAlgoECDSA256: CertAlgoECDSA256v01,
	KeyAlgoECDSA384: CertAlgoECDSA384v01,
	KeyAlgoECDSA521: CertAlgoECDSA521v01,
	KeyAlgoED25519:  CertAlgoED25519v01,
}

func (c *Certificate) Type() string {
	algo, ok := certAlgoNames[c.Key.Type()]
	if !ok {
		return ""
	}
	return algo
}

func (c *Certificate) Marshal() []byte {
	out := appendString(nil, c.Type())
	out = append(out, appendString(nil, string(c.Nonce))...)
	out = append(out, c.Key.Marshal()[len(appendString(nil, c.Key.Type())):]...) // key-type-specific fields only; type name is carried by the cert algo
	out = appendU64(out, c.Serial)
	out = appendU32(out, c.CertType)
	out = appendString(out, c.KeyID)
	out = appendNameList(out, c.ValidPrincipals)
	out = appendU64(out, uint64(c.ValidAfter.Unix()))
	out = appendU64(out, uint64(c.ValidBefore.Unix()))
	out = appendTupleList(out, c.CriticalOptions)
	out = appendTupleList(out, c.Extensions)
	out = appendString(out, string(c.Reserved))
	out = appendString(out, string(c.SignatureKey.Marshal()))
	out = appendString(out, string(c.Signature))
	return out
}

func (c *Certificate) Verify(data, sig []byte) error {
	return c.SignatureKey.Verify(data, sig)
}

// signedData returns the certificate body as it is signed: everything up
// to (but not including) the Signature field.
func (c *Certificate) signedData() []byte {
	full := c.Marshal()
	sigLen := stringLength(len(c.Signature))
	return full[:len(full)-sigLen]
}

func appendNameList(buf []byte, names []string) []byte {
	return appendString(buf, joinNameList(names))
}

func appendTupleList(buf []byte, tuples []certTuple) []byte {
	var body []byte
	for _, t := range tuples {
		body = appendString(body, t.Name)
		body = appendString(body, t.Data)
	}
	return appendString(buf, string(body))
}

func parseTupleList(in []byte) ([]certTuple, []byte, bool) {
	raw, rest, ok := parseString(in)
	if !ok {
		return nil, nil, false
	}
	var tuples []certTuple
	for len(raw) > 0 {
		var name, data []byte
		if name, raw, ok = parseString(raw); !ok {
			return nil, nil, false
		}
		if data, raw, ok = parseString(raw); !ok {
			return nil, nil, false
		}
		tuples = append(tuples, certTuple{Name: string(name), Data: string(data)})
	}
	return tuples, rest, true
}

// parseCertificate parses an OpenSSH certificate blob (the full public-
// key-algorithm blob, including the leading algorithm name) for algo.
func parseCertificate(in []byte, algo string) (*Certificate, []byte, error) {
	name, rest, ok := parseString(in)
	if !ok || string(name) != algo {
		return nil, nil, errors.New("ssh: certificate algorithm mismatch")
	}
	cert := &Certificate{}

	if cert.Nonce, rest, ok = parseString(rest); !ok {
		return nil, nil, parseError(0)
	}

	baseAlgo, err := baseKeyAlgo(algo)
	if err != nil {
		return nil, nil, err
	}
	key, rest2, ok := parseKeyFields(baseAlgo, rest)
	if !ok {
		return nil, nil, parseError(0)
	}
	cert.Key = key
	rest = rest2

	if cert.Serial, rest, ok = parseUint64(rest); !ok {
		return nil, nil, parseError(0)
	}
	if cert.CertType, rest, ok = parseUint32(rest); !ok || (cert.CertType != UserCert && cert.CertType != HostCert) {
		return nil, nil, fmt.Errorf("ssh: invalid certificate type %d", cert.CertType)
	}
	var keyID []byte
	if keyID, rest, ok = parseString(rest); !ok {
		return nil, nil, parseError(0)
	}
	cert.KeyID = string(keyID)

	if cert.ValidPrincipals, rest, ok = parseLengthPrefixedNameList(rest); !ok {
		return nil, nil, parseError(0)
	}

	var va, vb uint64
	if va, rest, ok = parseUint64(rest); !ok {
		return nil, nil, parseError(0)
	}
	cert.ValidAfter = time.Unix(int64(va), 0)
	if vb, rest, ok = parseUint64(rest); !ok {
		return nil, nil, parseError(0)
	}
	cert.ValidBefore = time.Unix(int64(vb), 0)

	if cert.CriticalOptions, rest, ok = parseTupleList(rest); !ok {
		return nil, nil, parseError(0)
	}
	if cert.Extensions, rest, ok = parseTupleList(rest); !ok {
		return nil, nil, parseError(0)
	}
	if cert.Reserved, rest, ok = parseString(rest); !ok {
		return nil, nil, parseError(0)
	}

	var sigKeyBlob []byte
	if sigKeyBlob, rest, ok = parseString(rest); !ok {
		return nil, nil, parseError(0)
	}
	sigKey, _, ok := ParsePublicKey(sigKeyBlob)
	if !ok {
		return nil, nil, parseError(0)
	}
	cert.SignatureKey = sigKey

	if cert.Signature, rest, ok = parseString(rest); !ok {
		return nil, nil, parseError(0)
	}

	return cert, rest, nil
}

// parseKeyFields parses the algorithm-specific fields of a public key
// (everything after the algorithm name) for baseAlgo, synthesizing a
// full ParsePublicKey-compatible blob so the existing parser can be
// reused.
func parseKeyFields(baseAlgo string, rest []byte) (PublicKey, []byte, bool) {
	synthetic := appendString(nil, baseAlgo)
	synthetic = append(synthetic, rest...)
	return ParsePublicKey(synthetic)
}

func baseKeyAlgo(certAlgo string) (string, error) {
	for base, cert := range certAlgoNames {
		if cert == certAlgo {
			return base, nil
		}
	}
	return "", fmt.Errorf("ssh: unknown certificate algorithm %s", certAlgo)
}

// VerifyCertificate checks cert's signature and validity window against
// now. It does not consult a HostKeyStore/CA trust policy — that remains
// the collaborator's job (spec.md 6).
func VerifyCertificate(cert *Certificate, now time.Time) error {
	if now.Before(cert.ValidAfter) || now.After(cert.ValidBefore) {
		return fmt.Errorf("ssh: certificate not valid at %s (window %s - %s)", now, cert.ValidAfter, cert.ValidBefore)
	}
	return cert.SignatureKey.Verify(cert.signedData(), cert.Signature)
}
