// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// These are string constants in the SSH protocol.
const (
	compressionNone = "none"
	serviceUserAuth = "ssh-userauth"
	serviceSSH      = "ssh-connection"

	// strictKexC2S and strictKexS2C are the OpenSSH "strict KEX" markers.
	// A side that advertises these inside its own KexInitMsg.KexAlgos is
	// promising to honor the sequence-reset and pre-NEWKEYS fatal-message
	// rules in strictkex.go.
	strictKexC2S = "kex-strict-c-v00@openssh.com"
	strictKexS2C = "kex-strict-s-v00@openssh.com"
)

// defaultCiphers specifies the default ciphers in preference order.
var defaultCiphers = []string{
	chacha20Poly1305ID,
	gcmCipherID, gcm256CipherID,
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
}

// allSupportedCiphers specifies all ciphers which are supported.
var allSupportedCiphers = []string{
	chacha20Poly1305ID,
	gcmCipherID, gcm256CipherID,
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
	"aes128-cbc-etm@openssh.com", "aes192-cbc-etm@openssh.com", "aes256-cbc-etm@openssh.com",
}

// defaultKexAlgos specifies the default key-exchange algorithms in
// preference order. Curve25519 and the hybrid PQ/classical method are
// preferred; the plain ECDH and group14 methods follow for
// interoperability. Legacy diffie-hellman-group1-sha1 and RSA-KEX are
// deliberately not offered by default (see DESIGN.md, Open Questions).
var defaultKexAlgos = []string{
	kexAlgoMLKEM768X25519SHA256,
	kexAlgoCurve25519SHA256, kexAlgoCurve25519SHA256LibSSH,
	kexAlgoECDH256, kexAlgoECDH384, kexAlgoECDH521,
	kexAlgoDH14SHA256,
}

// allSupportedKexAlgos specifies all key-exchange algorithms supported,
// including ones not enabled by default.
var allSupportedKexAlgos = []string{
	kexAlgoMLKEM768X25519SHA256,
	kexAlgoCurve25519SHA256, kexAlgoCurve25519SHA256LibSSH,
	kexAlgoECDH256, kexAlgoECDH384, kexAlgoECDH521,
	kexAlgoDH14SHA256, kexAlgoDH16SHA512, kexAlgoDH18SHA512,
	kexAlgoDH14SHA1, kexAlgoDH1SHA1,
	kexAlgoDHGEXSHA1, kexAlgoDHGEXSHA256,
}

// supportedHostKeyAlgos specifies the supported host-key algorithms (i.e.
// methods of authenticating servers) in preference order.
var supportedHostKeyAlgos = []string{
	CertAlgoED25519v01, CertAlgoECDSA256v01, CertAlgoECDSA384v01, CertAlgoECDSA521v01, CertAlgoRSAv01,

	KeyAlgoED25519,
	KeyAlgoECDSA256, KeyAlgoECDSA384, KeyAlgoECDSA521,
	KeyAlgoRSA,
}

// supportedMACs specifies a default set of MAC algorithms in preference
// order. The encrypt-then-MAC variants are preferred when offered, since
// they authenticate the ciphertext rather than the plaintext.
var supportedMACs = []string{
	"hmac-sha2-256-etm@openssh.com", "hmac-sha1-etm@openssh.com",
	"hmac-sha2-256", "hmac-sha1", "hmac-sha1-96",
}

// supportedCompressions lists only "none": a Go streaming
// compress/flate.Reader can't be driven to stop exactly at a
// Z_SYNC_FLUSH boundary (it keeps pulling bytes trying to decode the
// next deflate block rather than returning once the current packet's
// flushed data is exhausted), so zlib/zlib@openssh.com are not
// advertised rather than shipped half-working. See DESIGN.md.
var supportedCompressions = []string{compressionNone}

// hashFuncs keeps the mapping of supported algorithms to their respective
// hashes needed for signature verification.
var hashFuncs = map[string]crypto.Hash{
	KeyAlgoRSA:          crypto.SHA1,
	KeyAlgoECDSA256:     crypto.SHA256,
	KeyAlgoECDSA384:     crypto.SHA384,
	KeyAlgoECDSA521:     crypto.SHA512,
	CertAlgoRSAv01:      crypto.SHA1,
	CertAlgoECDSA256v01: crypto.SHA256,
	CertAlgoECDSA384v01: crypto.SHA384,
	CertAlgoECDSA521v01: crypto.SHA512,
}

func findCommon(what string, client []string, server []string) (common string, err error) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("ssh: no common algorithm for %s; client offered: %v, server offered: %v", what, client, server)
}

// DirectionAlgorithms holds the per-direction algorithm selections that
// make up half of an Algorithms set.
type DirectionAlgorithms struct {
	Cipher      string `json:"cipher"`
	MAC         string `json:"mac"`
	Compression string `json:"compression"`
}

// Algorithms records the result of negotiating a KexInitMsg pair: one KEX
// method, one host-key algorithm, and a DirectionAlgorithms for each of the
// two directions.
type Algorithms struct {
	Kex     string
	HostKey string
	W       DirectionAlgorithms
	R       DirectionAlgorithms
	// Strict is true when both sides advertised a kex-strict-*-v00
	// marker during the first key exchange.
	Strict bool
}

func (alg *Algorithms) MarshalJSON() ([]byte, error) {
	aux := struct {
		Kex     string              `json:"dh_kex_algorithm"`
		HostKey string              `json:"host_key_algorithm"`
		W       DirectionAlgorithms `json:"client_to_server_alg_group"`
		R       DirectionAlgorithms `json:"server_to_client_alg_group"`
	}{
		Kex:     alg.Kex,
		HostKey: alg.HostKey,
		W:       alg.W,
		R:       alg.R,
	}

	return json.Marshal(aux)
}

// findAgreedAlgorithms applies the client's-first-that-the-server-also-
// offers rule (spec.md 4.2) to every negotiated list in a KexInitMsg pair.
func findAgreedAlgorithms(clientKexInit, serverKexInit *KexInitMsg) (algs *Algorithms, err error) {
	result := &Algorithms{}

	result.Kex, err = findCommon("key exchange", clientKexInit.KexAlgos, serverKexInit.KexAlgos)
	if err != nil {
		return
	}

	result.HostKey, err = findCommon("host key", clientKexInit.ServerHostKeyAlgos, serverKexInit.ServerHostKeyAlgos)
	if err != nil {
		return
	}

	result.W.Cipher, err = findCommon("client to server cipher", clientKexInit.CiphersClientServer, serverKexInit.CiphersClientServer)
	if err != nil {
		return
	}

	result.R.Cipher, err = findCommon("server to client cipher", clientKexInit.CiphersServerClient, serverKexInit.CiphersServerClient)
	if err != nil {
		return
	}

	result.W.MAC, err = findCommon("client to server MAC", clientKexInit.MACsClientServer, serverKexInit.MACsClientServer)
	if err != nil {
		return
	}

	result.R.MAC, err = findCommon("server to client MAC", clientKexInit.MACsServerClient, serverKexInit.MACsServerClient)
	if err != nil {
		return
	}

	result.W.Compression, err = findCommon("client to server compression", clientKexInit.CompressionClientServer, serverKexInit.CompressionClientServer)
	if err != nil {
		return
	}

	result.R.Compression, err = findCommon("server to client compression", clientKexInit.CompressionServerClient, serverKexInit.CompressionServerClient)
	if err != nil {
		return
	}

	result.Strict = hasString(strictKexC2S, clientKexInit.KexAlgos) && hasString(strictKexS2C, serverKexInit.KexAlgos)

	return result, nil
}

func hasString(needle string, haystack []string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// If RekeyThreshold is too small, we can't make any progress sending
// stuff.
const minRekeyThreshold uint64 = 256

// Config contains configuration data common to both ServerConfig and
// ClientConfig. Unlike many Go libraries, sshcore never falls back to a
// process-wide default: every option either has an explicit value or is
// filled in by SetDefaults on a private copy of the caller's Config.
type Config struct {
	// Rand provides the source of entropy for cryptographic primitives.
	// If Rand is nil, crypto/rand.Reader is used. Never set this to a
	// non-cryptographic source.
	Rand io.Reader

	// Clock provides monotonic time for rekey timers and deadlines. If
	// nil, a Clock backed by the time package is used.
	Clock Clock

	// Logger receives structured trace events for this session. If nil,
	// the session is silent (the teacher's debugHandshake package-level
	// boolean, made per-session and always-on when set).
	Logger Logger

	// RekeyThreshold is the maximum number of bytes sent or received
	// after which a new key is negotiated. Must be at least 256. If
	// unspecified, 1 gigabyte is used.
	RekeyThreshold uint64

	// RekeyPacketThreshold is the maximum number of packets sent or
	// received on the current keys before a rekey is requested. If
	// unspecified, 2^31 is used (half of the RFC 4253 2^32 ceiling, to
	// leave margin for the rekey to complete before wraparound).
	RekeyPacketThreshold uint64

	// RekeyInterval is the maximum duration the current keys may be used
	// for, measured by Clock. A negative value disables the time-based
	// trigger. If unspecified (zero), one hour is used.
	RekeyInterval time.Duration

	// KeyExchanges lists the allowed key-exchange algorithms. If
	// unspecified, defaultKexAlgos is used.
	KeyExchanges []string

	// Ciphers lists the allowed cipher algorithms. If unspecified,
	// defaultCiphers is used.
	Ciphers []string

	// MACs lists the allowed MAC algorithms. If unspecified,
	// supportedMACs is used.
	MACs []string

	// Compressions lists the allowed compression algorithms, most
	// preferred first. If unspecified, []string{"none"} is used.
	Compressions []string

	// StrictKex controls whether this side advertises
	// kex-strict-{c,s}-v00@openssh.com during the first key exchange.
	// Defaults to true (offer).
	StrictKex *bool

	// ChannelInitialWindow is the initial per-channel receive window we
	// advertise in CHANNEL_OPEN/CHANNEL_OPEN_CONFIRMATION. Defaults to
	// 2 MiB.
	ChannelInitialWindow uint32

	// ChannelMaxPacket is the maximum single CHANNEL_DATA payload we
	// advertise. Defaults to 32 KiB.
	ChannelMaxPacket uint32

	// MaxAuthAttempts bounds the number of USERAUTH_REQUEST attempts a
	// server will process before sending
	// DISCONNECT(NO_MORE_AUTH_METHODS_AVAILABLE). Defaults to 6.
	MaxAuthAttempts int

	// AuthTimeout bounds how long, per Clock, a server will wait for
	// authentication to complete. The deadline is checked before each
	// USERAUTH_REQUEST is read; a read already waiting on the client is
	// not interrupted. Defaults to 2 minutes.
	AuthTimeout time.Duration

	// IdleTimeout, if non-zero, closes the session after this much time
	// with no inbound packets; outbound traffic does not reset it. Zero
	// disables idle timeout.
	IdleTimeout time.Duration

	// CloseWait bounds how long a graceful shutdown drains already-
	// queued outbound packets before the transport is closed. Defaults
	// to 15 seconds.
	CloseWait time.Duration

	// HelloOnly, if true, stops the handshake after the version
	// exchange without performing key exchange. Used by tests that only
	// need to observe identification-string behavior.
	HelloOnly bool

	// Verbose enables recording of per-step handshake detail onto
	// ConnLog, independent of Logger.
	Verbose bool

	// ConnLog, if non-nil, accumulates a structured record of the
	// handshake for offline inspection (diagnostics, not a metrics
	// pipeline).
	ConnLog *HandshakeLog

	GexMinBits       uint
	GexMaxBits       uint
	GexPreferredBits uint
}

// SetDefaults sets sensible values for unset fields in config. This is
// exported for testing: Configs passed to SSH functions are copied and
// have default values set automatically.
func (c *Config) SetDefaults() {
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Ciphers == nil {
		c.Ciphers = defaultCiphers
	}
	var ciphers []string
	for _, cip := range c.Ciphers {
		if cipherModes[cip] != nil {
			ciphers = append(ciphers, cip)
		}
	}
	c.Ciphers = ciphers

	if c.KeyExchanges == nil {
		c.KeyExchanges = defaultKexAlgos
	}

	if c.MACs == nil {
		c.MACs = supportedMACs
	}

	if c.Compressions == nil {
		c.Compressions = []string{compressionNone}
	}

	if c.StrictKex == nil {
		t := true
		c.StrictKex = &t
	}

	if c.RekeyThreshold == 0 {
		// RFC 4253, section 9 suggests rekeying after 1G.
		c.RekeyThreshold = 1 << 30
	}
	if c.RekeyThreshold < minRekeyThreshold {
		c.RekeyThreshold = minRekeyThreshold
	}

	if c.RekeyPacketThreshold == 0 {
		c.RekeyPacketThreshold = 1 << 31
	}

	if c.RekeyInterval == 0 {
		c.RekeyInterval = time.Hour
	}

	if c.ChannelInitialWindow == 0 {
		c.ChannelInitialWindow = 2 << 20
	}
	if c.ChannelMaxPacket == 0 {
		c.ChannelMaxPacket = 32 << 10
	}
	if c.MaxAuthAttempts == 0 {
		c.MaxAuthAttempts = 6
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = 2 * time.Minute
	}
	if c.CloseWait == 0 {
		c.CloseWait = 15 * time.Second
	}
}

func appendU16(buf []byte, n uint16) []byte {
	return append(buf, byte(n>>8), byte(n))
}

func appendU32(buf []byte, n uint32) []byte {
	return append(buf, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func appendU64(buf []byte, n uint64) []byte {
	return append(buf,
		byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
		byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func appendInt(buf []byte, n int) []byte {
	return appendU32(buf, uint32(n))
}

func appendString(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	buf = append(buf, s...)
	return buf
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// newCond is a helper to hide the fact that there is no usable zero value
// for sync.Cond.
func newCond() *sync.Cond { return sync.NewCond(new(sync.Mutex)) }
