// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"math/big"
	"reflect"
	"testing"
)

func TestMarshalUnmarshalKexInit(t *testing.T) {
	want := &KexInitMsg{
		KexAlgos:                []string{kexAlgoCurve25519SHA256, kexAlgoECDH256},
		ServerHostKeyAlgos:      []string{KeyAlgoED25519},
		CiphersClientServer:     defaultCiphers,
		CiphersServerClient:     defaultCiphers,
		MACsClientServer:        supportedMACs,
		MACsServerClient:        supportedMACs,
		CompressionClientServer: []string{compressionNone},
		CompressionServerClient: []string{compressionNone},
		FirstKexFollows:         true,
	}
	want.Cookie[0] = 0x42

	packet := Marshal(want)
	if packet[0] != msgKexInit {
		t.Fatalf("type byte = %d, want %d", packet[0], msgKexInit)
	}

	got := new(KexInitMsg)
	if err := Unmarshal(packet, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestMarshalUnmarshalUserAuthRequest(t *testing.T) {
	want := &userAuthRequestMsg{
		User:    "alice",
		Service: serviceSSH,
		Method:  "publickey",
		Payload: []byte{1, 2, 3},
	}
	packet := Marshal(want)
	got := new(userAuthRequestMsg)
	if err := Unmarshal(packet, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestMarshalUnmarshalChannelOpen(t *testing.T) {
	want := &channelOpenMsg{
		ChanType:         "session",
		PeersID:          7,
		PeersWindow:      2 << 20,
		MaxPacketSize:    32 << 10,
		TypeSpecificData: []byte("extra"),
	}
	packet := Marshal(want)
	got := new(channelOpenMsg)
	if err := Unmarshal(packet, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestMarshalUnmarshalKexDHReply(t *testing.T) {
	want := &kexDHReplyMsg{
		HostKey:   []byte("host-key-blob"),
		Y:         big.NewInt(123456789),
		Signature: []byte("sig-blob"),
	}
	packet := Marshal(want)
	got := new(kexDHReplyMsg)
	if err := Unmarshal(packet, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.HostKey) != string(want.HostKey) || got.Y.Cmp(want.Y) != 0 || string(got.Signature) != string(want.Signature) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestDecodeDispatchesOnType(t *testing.T) {
	packet := Marshal(&channelEOFMsg{PeersID: 9})
	msg, err := decode(packet)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	eof, ok := msg.(*channelEOFMsg)
	if !ok {
		t.Fatalf("decode returned %T, want *channelEOFMsg", msg)
	}
	if eof.PeersID != 9 {
		t.Fatalf("PeersID = %d, want 9", eof.PeersID)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := decode([]byte{255}); err == nil {
		t.Fatal("decode of an unknown message type should fail")
	}
}

func TestDecodeEmptyPacket(t *testing.T) {
	if _, err := decode(nil); err == nil {
		t.Fatal("decode of an empty packet should fail")
	}
}

func TestMarshalRestField(t *testing.T) {
	// channelDataMsg.Rest is tagged ssh:"rest": it must be appended
	// verbatim, not length-prefixed like an ordinary string field.
	want := &channelDataMsg{PeersID: 3, Length: 4, Rest: []byte("data")}
	packet := Marshal(want)
	// type(1) + PeersID(4) + Length(4) + "data"(4, unprefixed)
	if len(packet) != 1+4+4+4 {
		t.Fatalf("len(packet) = %d, want 13", len(packet))
	}
	got := new(channelDataMsg)
	if err := Unmarshal(packet, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.Rest) != "data" {
		t.Fatalf("Rest = %q, want %q", got.Rest, "data")
	}
}
