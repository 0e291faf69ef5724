// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func testMagics() *handshakeMagics {
	return &handshakeMagics{
		clientVersion: []byte("SSH-2.0-client"),
		serverVersion: []byte("SSH-2.0-server"),
		clientKexInit: []byte("client-kexinit"),
		serverKexInit: []byte("server-kexinit"),
	}
}

func testHostSigner(t *testing.T) Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	return signer
}

func runKEXRoundTrip(t *testing.T, kex kexAlgorithm) (client, server *kexResult) {
	t.Helper()
	a, b := newPipeConnPair()
	signer := testHostSigner(t)

	clientDone := make(chan struct{})
	var clientResult *kexResult
	var clientErr error
	go func() {
		clientResult, clientErr = kex.Client(a, rand.Reader, testMagics())
		close(clientDone)
	}()

	serverResult, serverErr := kex.Server(b, rand.Reader, testMagics(), signer)
	if serverErr != nil {
		t.Fatalf("Server: %v", serverErr)
	}

	select {
	case <-clientDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Client")
	}
	if clientErr != nil {
		t.Fatalf("Client: %v", clientErr)
	}
	return clientResult, serverResult
}

func TestCurve25519KEXRoundTrip(t *testing.T) {
	client, server := runKEXRoundTrip(t, &curve25519KEX{})

	if client.K.Cmp(server.K) != 0 {
		t.Fatal("client and server disagree on the shared secret K")
	}
	if string(client.H) != string(server.H) {
		t.Fatal("client and server disagree on the exchange hash H")
	}
	if string(client.HostKey) != string(server.HostKey) {
		t.Fatal("client did not receive the server's host key blob")
	}

	pub, _, ok := ParsePublicKey(client.HostKey)
	if !ok {
		t.Fatal("ParsePublicKey failed on the host key blob")
	}
	if err := pub.Verify(client.H, client.Signature); err != nil {
		t.Fatalf("host key signature does not verify over H: %v", err)
	}
}

func TestDHGroup14SHA256RoundTrip(t *testing.T) {
	kex := kexAlgoMap[kexAlgoDH14SHA256]
	client, server := runKEXRoundTrip(t, kex)

	if client.K.Cmp(server.K) != 0 {
		t.Fatal("client and server disagree on the shared secret K")
	}
	if string(client.H) != string(server.H) {
		t.Fatal("client and server disagree on the exchange hash H")
	}

	pub, _, ok := ParsePublicKey(client.HostKey)
	if !ok {
		t.Fatal("ParsePublicKey failed on the host key blob")
	}
	if err := pub.Verify(client.H, client.Signature); err != nil {
		t.Fatalf("host key signature does not verify over H: %v", err)
	}
}

func TestDHGEXSHA256RoundTrip(t *testing.T) {
	kex := kexAlgoMap[kexAlgoDHGEXSHA256]
	client, server := runKEXRoundTrip(t, kex)

	if client.K.Cmp(server.K) != 0 {
		t.Fatal("client and server disagree on the shared secret K")
	}
	if string(client.H) != string(server.H) {
		t.Fatal("client and server disagree on the exchange hash H")
	}
}

func TestECDHP256RoundTrip(t *testing.T) {
	kex := kexAlgoMap[kexAlgoECDH256]
	client, server := runKEXRoundTrip(t, kex)

	if client.K.Cmp(server.K) != 0 {
		t.Fatal("client and server disagree on the shared secret K")
	}
	if string(client.H) != string(server.H) {
		t.Fatal("client and server disagree on the exchange hash H")
	}
}
