// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"reflect"
)

// Message numbers, grouped per spec.md 6: transport (1-19), algorithm
// negotiation (20-29), KEX method (30-49), user auth generic (50-59),
// user auth method-specific (60-79), connection generic (80-89), channel
// (90-127).
const (
	msgDisconnect   = 1
	msgIgnore       = 2
	msgUnimplemented = 3
	msgDebug        = 4
	msgServiceRequest = 5
	msgServiceAccept  = 6

	msgKexInit  = 20
	msgNewKeys  = 21

	// Diffie-Hellman / generic KEX method range, 30-49.
	msgKexDHInit       = 30
	msgKexDHReply      = 31
	msgKexDHGexRequest = 34
	msgKexDHGexGroup   = 31 // overlaps with msgKexDHReply by design: RFC 4419 reuses message numbers per-KEX-method.
	msgKexDHGexInit    = 32
	msgKexDHGexReply   = 33
	msgKexECDHInit     = 30
	msgKexECDHReply    = 31

	msgUserAuthRequest = 50
	msgUserAuthFailure = 51
	msgUserAuthSuccess = 52
	msgUserAuthBanner  = 53

	msgUserAuthPubKeyOk      = 60
	msgUserAuthInfoRequest   = 60
	msgUserAuthInfoResponse  = 61

	msgGlobalRequest  = 80
	msgRequestSuccess = 81
	msgRequestFailure = 82

	msgChannelOpen            = 90
	msgChannelOpenConfirm     = 91
	msgChannelOpenFailure     = 92
	msgChannelWindowAdjust    = 93
	msgChannelData            = 94
	msgChannelExtendedData    = 95
	msgChannelEOF             = 96
	msgChannelClose           = 97
	msgChannelRequest         = 98
	msgChannelSuccess         = 99
	msgChannelFailure         = 100
)

// Disconnection reason codes, RFC 4253 11.1.
const (
	DisconnectHostNotAllowedToConnect   = 1
	DisconnectProtocolError             = 2
	DisconnectKeyExchangeFailed         = 3
	DisconnectReserved                  = 4
	DisconnectMACError                  = 5
	DisconnectCompressionError          = 6
	DisconnectServiceNotAvailable       = 7
	DisconnectProtocolVersionNotSupported = 8
	DisconnectHostKeyNotVerifiable      = 9
	DisconnectConnectionLost            = 10
	DisconnectByApplication             = 11
	DisconnectTooManyConnections        = 12
	DisconnectAuthCancelledByUser       = 13
	DisconnectNoMoreAuthMethodsAvailable = 14
	DisconnectIllegalUserName           = 15
)

// Channel open failure reasons, RFC 4254 5.1.
const (
	ChannelOpenAdministrativelyProhibited = 1
	ChannelOpenConnectFailed              = 2
	ChannelOpenUnknownChannelType         = 3
	ChannelOpenResourceShortage           = 4
)

// SSH_EXTENDED_DATA_STDERR is the only extended-data type the base
// connection protocol defines.
const ExtendedDataStderr = 1

type disconnectMsg struct {
	Reason  uint32 `sshtype:"1"`
	Message string
	Language string
}

type ignoreMsg struct {
	Data string `sshtype:"2"`
}

type unimplementedMsg struct {
	SeqNum uint32 `sshtype:"3"`
}

type debugMsg struct {
	AlwaysDisplay bool `sshtype:"4"`
	Message       string
	Language      string
}

type serviceRequestMsg struct {
	Service string `sshtype:"5"`
}

type serviceAcceptMsg struct {
	Service string `sshtype:"6"`
}

// KexInitMsg is SSH_MSG_KEXINIT, the algorithm-preference announcement
// both sides send at the start of every key exchange.
type KexInitMsg struct {
	Cookie                  [16]byte `sshtype:"20"`
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

type newKeysMsg struct {
	// sshtype 21; no fields.
}

type kexDHInitMsg struct {
	X *big.Int `sshtype:"30"`
}

type kexDHReplyMsg struct {
	HostKey   []byte `sshtype:"31"`
	Y         *big.Int
	Signature []byte
}

type kexECDHInitMsg struct {
	ClientPubKey []byte `sshtype:"30"`
}

type kexECDHReplyMsg struct {
	HostKey   []byte `sshtype:"31"`
	EphemeralPubKey []byte
	Signature []byte
}

type kexDHGexRequestMsg struct {
	Min     uint32 `sshtype:"34"`
	Preferred uint32
	Max     uint32
}

type kexDHGexGroupMsg struct {
	P *big.Int `sshtype:"31"`
	G *big.Int
}

type kexDHGexInitMsg struct {
	X *big.Int `sshtype:"32"`
}

type kexDHGexReplyMsg struct {
	HostKey   []byte `sshtype:"33"`
	Y         *big.Int
	Signature []byte
}

type userAuthRequestMsg struct {
	User    string `sshtype:"50"`
	Service string
	Method  string
	Payload []byte `ssh:"rest"`
}

type userAuthFailureMsg struct {
	Methods        []string `sshtype:"51"`
	PartialSuccess bool
}

type userAuthSuccessMsg struct{}

type userAuthBannerMsg struct {
	Message  string `sshtype:"53"`
	Language string
}

type userAuthPubKeyOkMsg struct {
	Algo   string `sshtype:"60"`
	PubKey []byte
}

type userAuthInfoRequestMsg struct {
	Name        string `sshtype:"60"`
	Instruction string
	Language    string
	NumPrompts  uint32
	Prompts     []byte `ssh:"rest"`
}

type userAuthInfoResponseMsg struct {
	NumResponses uint32 `sshtype:"61"`
	Responses    []byte `ssh:"rest"`
}

type globalRequestMsg struct {
	Type      string `sshtype:"80"`
	WantReply bool
	Data      []byte `ssh:"rest"`
}

type globalRequestSuccessMsg struct {
	Data []byte `sshtype:"81" ssh:"rest"`
}

type globalRequestFailureMsg struct {
	Data []byte `sshtype:"82" ssh:"rest"`
}

type channelOpenMsg struct {
	ChanType         string `sshtype:"90"`
	PeersID          uint32
	PeersWindow      uint32
	MaxPacketSize    uint32
	TypeSpecificData []byte `ssh:"rest"`
}

type channelOpenConfirmMsg struct {
	PeersID       uint32 `sshtype:"91"`
	MyID          uint32
	MyWindow      uint32
	MaxPacketSize uint32
	TypeSpecificData []byte `ssh:"rest"`
}

type channelOpenFailureMsg struct {
	PeersID  uint32 `sshtype:"92"`
	Reason   uint32
	Message  string
	Language string
}

type channelWindowAdjustMsg struct {
	PeersID         uint32 `sshtype:"93"`
	AdditionalBytes uint32
}

type channelDataMsg struct {
	PeersID uint32 `sshtype:"94"`
	Length  uint32
	Rest    []byte `ssh:"rest"`
}

type channelExtendedDataMsg struct {
	PeersID      uint32 `sshtype:"95"`
	DataTypeCode uint32
	Length       uint32
	Rest         []byte `ssh:"rest"`
}

type channelEOFMsg struct {
	PeersID uint32 `sshtype:"96"`
}

type channelCloseMsg struct {
	PeersID uint32 `sshtype:"97"`
}

type channelRequestMsg struct {
	PeersID              uint32 `sshtype:"98"`
	Request              string
	WantReply            bool
	RequestSpecificData  []byte `ssh:"rest"`
}

type channelRequestSuccessMsg struct {
	PeersID uint32 `sshtype:"99"`
}

type channelRequestFailureMsg struct {
	PeersID uint32 `sshtype:"100"`
}

// ---- Marshal/Unmarshal ----
//
// The wire codec is a small reflection-based encoder over the primitive
// encodings spec.md 6 names (byte, uint32, uint64, string, mpint,
// name-list, boolean). Struct fields are encoded in declaration order; a
// field with an `sshtype:"N"` tag causes N to be written first as the
// message's type byte; a field tagged `ssh:"rest"` consumes (or, on
// encode, simply appends) the remaining raw bytes verbatim rather than
// being length-prefixed.

// Marshal encodes msg, a pointer to or value of a message struct, into
// its wire representation.
func Marshal(msg interface{}) []byte {
	out := make([]byte, 0, 64)
	v := reflect.ValueOf(msg)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if tag, ok := field.Tag.Lookup("sshtype"); ok {
			var n int
			fmt.Sscanf(tag, "%d", &n)
			out = append(out, byte(n))
		}
		out = marshalField(out, v.Field(i), field)
	}
	return out
}

func marshalField(out []byte, fv reflect.Value, field reflect.StructField) []byte {
	if field.Tag.Get("ssh") == "rest" {
		return append(out, fv.Bytes()...)
	}
	switch fv.Kind() {
	case reflect.Bool:
		return appendBool(out, fv.Bool())
	case reflect.Uint8:
		return append(out, byte(fv.Uint()))
	case reflect.Uint32:
		return appendU32(out, uint32(fv.Uint()))
	case reflect.Uint64:
		return appendU64(out, fv.Uint())
	case reflect.String:
		return appendString(out, fv.String())
	case reflect.Slice:
		switch fv.Type().Elem().Kind() {
		case reflect.Uint8:
			return appendString(out, string(fv.Bytes()))
		case reflect.String:
			names := make([]string, fv.Len())
			for i := range names {
				names[i] = fv.Index(i).String()
			}
			return appendString(out, joinNameList(names))
		}
	case reflect.Array:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			for i := 0; i < fv.Len(); i++ {
				out = append(out, byte(fv.Index(i).Uint()))
			}
			return out
		}
	case reflect.Ptr:
		if bi, ok := fv.Interface().(*big.Int); ok {
			return appendMpint(out, bi)
		}
	}
	panic(fmt.Sprintf("ssh: marshal: unsupported field kind %v (%v)", fv.Kind(), field.Name))
}

// Unmarshal decodes the payload of an SSH message (with its leading type
// byte, if any, already accounted for by the sshtype tag) into out, a
// pointer to a message struct.
func Unmarshal(data []byte, out interface{}) error {
	v := reflect.ValueOf(out).Elem()
	t := v.Type()

	rest := data
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if _, ok := field.Tag.Lookup("sshtype"); ok {
			if len(rest) == 0 {
				return parseError(0)
			}
			rest = rest[1:]
		}
		var err error
		rest, err = unmarshalField(rest, v.Field(i), field)
		if err != nil {
			return err
		}
	}
	return nil
}

func unmarshalField(data []byte, fv reflect.Value, field reflect.StructField) ([]byte, error) {
	if field.Tag.Get("ssh") == "rest" {
		b := make([]byte, len(data))
		copy(b, data)
		fv.SetBytes(b)
		return nil, nil
	}
	switch fv.Kind() {
	case reflect.Bool:
		if len(data) < 1 {
			return nil, parseError(0)
		}
		fv.SetBool(data[0] != 0)
		return data[1:], nil
	case reflect.Uint8:
		if len(data) < 1 {
			return nil, parseError(0)
		}
		fv.SetUint(uint64(data[0]))
		return data[1:], nil
	case reflect.Uint32:
		if len(data) < 4 {
			return nil, parseError(0)
		}
		fv.SetUint(uint64(binary.BigEndian.Uint32(data)))
		return data[4:], nil
	case reflect.Uint64:
		if len(data) < 8 {
			return nil, parseError(0)
		}
		fv.SetUint(binary.BigEndian.Uint64(data))
		return data[8:], nil
	case reflect.String:
		s, rest, ok := parseString(data)
		if !ok {
			return nil, parseError(0)
		}
		fv.SetString(string(s))
		return rest, nil
	case reflect.Slice:
		switch fv.Type().Elem().Kind() {
		case reflect.Uint8:
			s, rest, ok := parseString(data)
			if !ok {
				return nil, parseError(0)
			}
			b := make([]byte, len(s))
			copy(b, s)
			fv.SetBytes(b)
			return rest, nil
		case reflect.String:
			list, rest, ok := parseLengthPrefixedNameList(data)
			if !ok {
				return nil, parseError(0)
			}
			fv.Set(reflect.ValueOf(list))
			return rest, nil
		}
	case reflect.Array:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			n := fv.Len()
			if len(data) < n {
				return nil, parseError(0)
			}
			for i := 0; i < n; i++ {
				fv.Index(i).SetUint(uint64(data[i]))
			}
			return data[n:], nil
		}
	case reflect.Ptr:
		if fv.Type() == reflect.TypeOf((*big.Int)(nil)) {
			mi, rest, ok := parseMpint(data)
			if !ok {
				return nil, parseError(0)
			}
			fv.Set(reflect.ValueOf(mi))
			return rest, nil
		}
	}
	return nil, fmt.Errorf("ssh: unmarshal: unsupported field kind %v (%v)", fv.Kind(), field.Name)
}

// decode dispatches a raw packet (type byte + payload) to the matching
// message struct based on its first byte.
func decode(packet []byte) (interface{}, error) {
	if len(packet) == 0 {
		return nil, parseError(0)
	}
	var msg interface{}
	switch packet[0] {
	case msgDisconnect:
		msg = new(disconnectMsg)
	case msgIgnore:
		msg = new(ignoreMsg)
	case msgUnimplemented:
		msg = new(unimplementedMsg)
	case msgDebug:
		msg = new(debugMsg)
	case msgServiceRequest:
		msg = new(serviceRequestMsg)
	case msgServiceAccept:
		msg = new(serviceAcceptMsg)
	case msgKexInit:
		msg = new(KexInitMsg)
	case msgNewKeys:
		msg = new(newKeysMsg)
	case msgUserAuthRequest:
		msg = new(userAuthRequestMsg)
	case msgUserAuthFailure:
		msg = new(userAuthFailureMsg)
	case msgUserAuthSuccess:
		msg = new(userAuthSuccessMsg)
	case msgUserAuthBanner:
		msg = new(userAuthBannerMsg)
	case msgGlobalRequest:
		msg = new(globalRequestMsg)
	case msgRequestSuccess:
		msg = new(globalRequestSuccessMsg)
	case msgRequestFailure:
		msg = new(globalRequestFailureMsg)
	case msgChannelOpen:
		msg = new(channelOpenMsg)
	case msgChannelOpenConfirm:
		msg = new(channelOpenConfirmMsg)
	case msgChannelOpenFailure:
		msg = new(channelOpenFailureMsg)
	case msgChannelWindowAdjust:
		msg = new(channelWindowAdjustMsg)
	case msgChannelData:
		msg = new(channelDataMsg)
	case msgChannelExtendedData:
		msg = new(channelExtendedDataMsg)
	case msgChannelEOF:
		msg = new(channelEOFMsg)
	case msgChannelClose:
		msg = new(channelCloseMsg)
	case msgChannelRequest:
		msg = new(channelRequestMsg)
	case msgChannelSuccess:
		msg = new(channelRequestSuccessMsg)
	case msgChannelFailure:
		msg = new(channelRequestFailureMsg)
	default:
		return nil, unimplementedMessageError(packet[0])
	}
	if err := Unmarshal(packet, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
