// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"errors"
	"fmt"
)

// buildDataSignedForAuth assembles the blob a publickey-auth signature
// covers, RFC 4252 7: the session id followed by the USERAUTH_REQUEST
// fields up to (but not including) the signature itself.
func buildDataSignedForAuth(sessionID []byte, req userAuthRequestMsg, algo string, pubKey []byte) []byte {
	data := make([]byte, 0, len(sessionID)+len(req.User)+len(req.Service)+len(req.Method)+len(algo)+len(pubKey)+64)
	data = appendString(data, string(sessionID))
	data = append(data, msgUserAuthRequest)
	data = appendString(data, req.User)
	data = appendString(data, req.Service)
	data = appendString(data, req.Method)
	data = appendBool(data, true)
	data = appendString(data, algo)
	data = appendString(data, string(pubKey))
	return data
}

// buildDataSignedForHostbasedAuth assembles the blob a hostbased-auth
// signature covers, RFC 4252 9: the session id, the USERAUTH_REQUEST
// fields, then the client host key algorithm, key blob, client host
// FQDN, and client-host user name, in that order.
func buildDataSignedForHostbasedAuth(sessionID []byte, req userAuthRequestMsg, algo string, pubKey []byte, clientHostname, clientUser string) []byte {
	data := appendString(nil, string(sessionID))
	data = append(data, msgUserAuthRequest)
	data = appendString(data, req.User)
	data = appendString(data, req.Service)
	data = appendString(data, req.Method)
	data = appendString(data, algo)
	data = appendString(data, string(pubKey))
	data = appendString(data, clientHostname)
	data = appendString(data, clientUser)
	return data
}

// clientAuthenticate drives RFC 4252's method dispatch from the client
// side: request the ssh-userauth service, try "none" to learn the
// server's acceptable methods, then try password, publickey,
// keyboard-interactive, and (when config.Auth is a
// HostbasedCredentialSource) hostbased, in the order the server lists
// them, using whatever config.Auth supplies.
func (c *connection) clientAuthenticate(config *ClientConfig) error {
	c.transport.bannerCallback = config.BannerCallback
	if err := c.transport.writePacket(Marshal(&serviceRequestMsg{Service: serviceUserAuth})); err != nil {
		return err
	}
	packet, err := c.transport.readPacket()
	if err != nil {
		return err
	}
	var accept serviceAcceptMsg
	if err := Unmarshal(packet, &accept); err != nil {
		return unexpectedMessageError(msgServiceAccept, packet[0])
	}

	sessionID := c.sessionID
	tried := map[string]bool{}

	ok, methods, err := c.sendAuthRequest(userAuthRequestMsg{
		User:    config.User,
		Service: serviceSSH,
		Method:  "none",
	})
	if err != nil {
		return err
	}

	for !ok {
		method, nextErr := c.nextAuthMethod(methods, tried, config)
		if nextErr != nil {
			return nextErr
		}
		tried[method] = true

		switch method {
		case "password":
			ok, methods, err = c.authPassword(sessionID, config)
		case "publickey":
			ok, methods, err = c.authPublicKey(sessionID, config)
		case "keyboard-interactive":
			ok, methods, err = c.authKeyboardInteractive(config)
		case "hostbased":
			ok, methods, err = c.authHostbased(sessionID, config)
		default:
			// unsupported method the server offered; skip it.
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// nextAuthMethod picks the next method worth trying: one the server
// offered, this side has not already tried, and config.Auth can supply
// material for.
func (c *connection) nextAuthMethod(methods []string, tried map[string]bool, config *ClientConfig) (string, error) {
	if config.Auth == nil {
		return "", ErrNoMoreAuthMethods
	}
	_, hostbased := config.Auth.(HostbasedCredentialSource)
	for _, m := range methods {
		if tried[m] {
			continue
		}
		switch m {
		case "password", "publickey", "keyboard-interactive":
			return m, nil
		case "hostbased":
			if hostbased {
				return m, nil
			}
		}
	}
	return "", ErrNoMoreAuthMethods
}

func (c *connection) sendAuthRequest(req userAuthRequestMsg) (bool, []string, error) {
	if err := c.transport.writePacket(Marshal(&req)); err != nil {
		return false, nil, err
	}
	return c.readAuthResult()
}

// readAuthResult reads USERAUTH_SUCCESS/FAILURE, transparently handling
// any interleaved USERAUTH_BANNER messages.
func (c *connection) readAuthResult() (bool, []string, error) {
	for {
		packet, err := c.transport.readPacket()
		if err != nil {
			return false, nil, err
		}
		switch packet[0] {
		case msgUserAuthBanner:
			var banner userAuthBannerMsg
			if err := Unmarshal(packet, &banner); err != nil {
				return false, nil, err
			}
			// clientAuthenticate copies ClientConfig.BannerCallback onto
			// the handshakeTransport; the banner text is passed to it.
			if cb := c.transport.bannerCallback; cb != nil {
				if err := cb(banner.Message); err != nil {
					return false, nil, err
				}
			}
			continue
		case msgUserAuthSuccess:
			return true, nil, nil
		case msgUserAuthFailure:
			var fail userAuthFailureMsg
			if err := Unmarshal(packet, &fail); err != nil {
				return false, nil, err
			}
			return false, fail.Methods, nil
		default:
			return false, nil, unexpectedMessageError(msgUserAuthSuccess, packet[0])
		}
	}
}

func (c *connection) authPassword(sessionID []byte, config *ClientConfig) (bool, []string, error) {
	pw, err := config.Auth.Password(config.User)
	if err != nil {
		return false, nil, err
	}
	if pw == nil {
		return false, nil, nil
	}
	payload := appendBool(nil, false)
	payload = appendString(payload, string(pw))
	return c.sendAuthRequest(userAuthRequestMsg{
		User:    config.User,
		Service: serviceSSH,
		Method:  "password",
		Payload: payload,
	})
}

func (c *connection) authPublicKey(sessionID []byte, config *ClientConfig) (bool, []string, error) {
	signer, err := config.Auth.PrivateKey(config.User, nil)
	if err != nil {
		return false, nil, err
	}
	if signer == nil {
		return false, nil, nil
	}
	pub := signer.PublicKey()
	algo := pub.Type()
	blob := pub.Marshal()

	// Query first (RFC 4252 7): ask whether the server would accept this
	// key before spending a signing operation on it.
	query := userAuthRequestMsg{
		User:    config.User,
		Service: serviceSSH,
		Method:  "publickey",
	}
	query.Payload = appendBool(nil, false)
	query.Payload = appendString(query.Payload, algo)
	query.Payload = appendString(query.Payload, string(blob))
	if err := c.transport.writePacket(Marshal(&query)); err != nil {
		return false, nil, err
	}
	packet, err := c.transport.readPacket()
	if err != nil {
		return false, nil, err
	}
	if packet[0] != msgUserAuthPubKeyOk {
		if packet[0] == msgUserAuthFailure {
			var fail userAuthFailureMsg
			if err := Unmarshal(packet, &fail); err != nil {
				return false, nil, err
			}
			return false, fail.Methods, nil
		}
		return false, nil, unexpectedMessageError(msgUserAuthPubKeyOk, packet[0])
	}

	req := userAuthRequestMsg{
		User:    config.User,
		Service: serviceSSH,
		Method:  "publickey",
	}
	sigData := buildDataSignedForAuth(sessionID, req, algo, blob)
	sig, err := signer.Sign(config.Rand, sigData)
	if err != nil {
		return false, nil, err
	}

	req.Payload = appendBool(nil, true)
	req.Payload = appendString(req.Payload, algo)
	req.Payload = appendString(req.Payload, string(blob))
	req.Payload = appendString(req.Payload, string(sig))
	return c.sendAuthRequest(req)
}

func (c *connection) authKeyboardInteractive(config *ClientConfig) (bool, []string, error) {
	req := userAuthRequestMsg{
		User:    config.User,
		Service: serviceSSH,
		Method:  "keyboard-interactive",
	}
	req.Payload = appendString(nil, "") // language tag, unused
	req.Payload = appendString(req.Payload, "")
	if err := c.transport.writePacket(Marshal(&req)); err != nil {
		return false, nil, err
	}

	for {
		packet, err := c.transport.readPacket()
		if err != nil {
			return false, nil, err
		}
		switch packet[0] {
		case msgUserAuthSuccess:
			return true, nil, nil
		case msgUserAuthFailure:
			var fail userAuthFailureMsg
			if err := Unmarshal(packet, &fail); err != nil {
				return false, nil, err
			}
			return false, fail.Methods, nil
		case msgUserAuthInfoRequest:
			var infoReq userAuthInfoRequestMsg
			if err := Unmarshal(packet, &infoReq); err != nil {
				return false, nil, err
			}
			prompts, err := parsePrompts(infoReq.Prompts, int(infoReq.NumPrompts))
			if err != nil {
				return false, nil, err
			}
			answers, err := config.Auth.KeyboardInteractive(config.User, prompts)
			if err != nil {
				return false, nil, err
			}
			resp := userAuthInfoResponseMsg{NumResponses: uint32(len(answers))}
			for _, a := range answers {
				resp.Responses = appendString(resp.Responses, a)
			}
			if err := c.transport.writePacket(Marshal(&resp)); err != nil {
				return false, nil, err
			}
		default:
			return false, nil, unexpectedMessageError(msgUserAuthInfoRequest, packet[0])
		}
	}
}

// authHostbased implements the client side of RFC 4252 9: sign with the
// client host's own key rather than the user's, vouching that this host
// itself vouches for the connecting user.
func (c *connection) authHostbased(sessionID []byte, config *ClientConfig) (bool, []string, error) {
	hb, ok := config.Auth.(HostbasedCredentialSource)
	if !ok {
		return false, nil, nil
	}
	signer, clientHostname, clientUser, err := hb.Hostbased(config.User)
	if err != nil {
		return false, nil, err
	}
	if signer == nil {
		return false, nil, nil
	}
	pub := signer.PublicKey()
	algo := pub.Type()
	blob := pub.Marshal()

	req := userAuthRequestMsg{
		User:    config.User,
		Service: serviceSSH,
		Method:  "hostbased",
	}
	sigData := buildDataSignedForHostbasedAuth(sessionID, req, algo, blob, clientHostname, clientUser)
	sig, err := signer.Sign(config.Rand, sigData)
	if err != nil {
		return false, nil, err
	}

	payload := appendString(nil, algo)
	payload = appendString(payload, string(blob))
	payload = appendString(payload, clientHostname)
	payload = appendString(payload, clientUser)
	payload = appendString(payload, string(sig))
	req.Payload = payload
	return c.sendAuthRequest(req)
}

func parsePrompts(raw []byte, n int) ([]Prompt, error) {
	prompts := make([]Prompt, 0, n)
	for i := 0; i < n; i++ {
		text, rest, ok := parseString(raw)
		if !ok {
			return nil, errors.New("ssh: malformed keyboard-interactive prompt")
		}
		raw = rest
		echo, rest, ok := parseBool(raw)
		if !ok {
			return nil, errors.New("ssh: malformed keyboard-interactive prompt")
		}
		raw = rest
		prompts = append(prompts, Prompt{Text: string(text), Echo: echo})
	}
	return prompts, nil
}

// ServerAuthCallbacks bundles the verification callbacks a ServerConfig
// supplies for each userauth method it is willing to accept. A nil
// callback means that method is not offered to clients.
type ServerAuthCallbacks struct {
	// PasswordCallback validates a password, returning nil to accept.
	PasswordCallback func(user string, password []byte) error

	// PublicKeyCallback validates (but does not verify the signature of)
	// a candidate public key, returning nil to accept it as
	// authenticating user. Signature verification itself is performed
	// by userauth.go, and only once this callback has accepted the key.
	PublicKeyCallback func(user string, key PublicKey) error

	// KeyboardInteractiveCallback drives a challenge/response round,
	// calling challenge to present prompts and collect answers. It may
	// call challenge more than once.
	KeyboardInteractiveCallback func(user string, challenge KeyboardInteractiveChallenge) error

	// HostbasedCallback validates a client host's public key, the claimed
	// client FQDN, and the claimed client-host user name (RFC 4252 9),
	// returning nil to accept req.User as authenticated. Signature
	// verification itself is performed by userauth.go, and only once
	// this callback has accepted the host.
	HostbasedCallback func(user, clientHostname, clientUser string, hostKey PublicKey) error

	// NoClientAuth, if true, accepts the "none" method unconditionally.
	NoClientAuth bool
}

// KeyboardInteractiveChallenge presents prompts to the client and
// returns its answers, one per prompt.
type KeyboardInteractiveChallenge func(name, instruction string, prompts []Prompt) ([]string, error)

// serverAuthenticate drives RFC 4252 from the server side: accept the
// ssh-userauth service request, then dispatch USERAUTH_REQUEST messages
// against config's callbacks until success, MaxAuthAttempts is
// exhausted, or AuthTimeout expires.
func (c *connection) serverAuthenticate(config *ServerConfig) error {
	packet, err := c.transport.readPacket()
	if err != nil {
		return err
	}
	var svcReq serviceRequestMsg
	if err := Unmarshal(packet, &svcReq); err != nil || svcReq.Service != serviceUserAuth {
		return wrapErr(ErrProtocol, fmt.Errorf("ssh: expected ssh-userauth service request"))
	}
	if err := c.transport.writePacket(Marshal(&serviceAcceptMsg{Service: serviceUserAuth})); err != nil {
		return err
	}

	deadline := config.Clock.Now().Add(config.AuthTimeout)
	sessionID := c.sessionID
	attempts := 0

	for {
		if config.Clock.Now().After(deadline) {
			return ErrAuthTimeout
		}
		attempts++
		if attempts > config.MaxAuthAttempts {
			c.transport.writePacket(Marshal(&disconnectMsg{
				Reason:  DisconnectNoMoreAuthMethodsAvailable,
				Message: "too many authentication failures",
			}))
			return ErrNoMoreAuthMethods
		}

		packet, err := c.transport.readPacket()
		if err != nil {
			return err
		}
		var req userAuthRequestMsg
		if err := Unmarshal(packet, &req); err != nil {
			return err
		}
		if req.Service != serviceSSH {
			return wrapErr(ErrProtocol, fmt.Errorf("ssh: unexpected service %q in auth request", req.Service))
		}

		ok, err := c.dispatchAuthMethod(sessionID, req, config)
		if err != nil {
			return err
		}
		if ok {
			c.user = req.User
			return c.transport.writePacket([]byte{msgUserAuthSuccess})
		}
		if err := c.transport.writePacket(Marshal(&userAuthFailureMsg{Methods: offeredAuthMethods(config)})); err != nil {
			return err
		}
	}
}

func offeredAuthMethods(config *ServerConfig) []string {
	var methods []string
	if config.PasswordCallback != nil {
		methods = append(methods, "password")
	}
	if config.PublicKeyCallback != nil {
		methods = append(methods, "publickey")
	}
	if config.KeyboardInteractiveCallback != nil {
		methods = append(methods, "keyboard-interactive")
	}
	if config.HostbasedCallback != nil {
		methods = append(methods, "hostbased")
	}
	return methods
}

func (c *connection) dispatchAuthMethod(sessionID []byte, req userAuthRequestMsg, config *ServerConfig) (bool, error) {
	switch req.Method {
	case "none":
		return config.NoClientAuth, nil
	case "password":
		if config.PasswordCallback == nil {
			return false, nil
		}
		_, rest, ok := parseBool(req.Payload)
		if !ok {
			return false, parseError(msgUserAuthRequest)
		}
		pw, _, ok := parseString(rest)
		if !ok {
			return false, parseError(msgUserAuthRequest)
		}
		return config.PasswordCallback(req.User, pw) == nil, nil
	case "publickey":
		return c.dispatchPublicKeyAuth(sessionID, req, config)
	case "keyboard-interactive":
		return c.dispatchKeyboardInteractiveAuth(req, config)
	case "hostbased":
		return c.dispatchHostbasedAuth(sessionID, req, config)
	case "gssapi-with-mic":
		// RFC 4462 GSSAPI authentication is not implemented; this is a
		// documented stub so the method name appears in failure
		// responses rather than falling through silently like a truly
		// unrecognized method would.
		return false, nil
	default:
		return false, nil
	}
}

// dispatchHostbasedAuth implements the server side of RFC 4252 9:
// verify the claimed client host key's signature, then ask
// HostbasedCallback whether to trust that host's vouching for the user.
func (c *connection) dispatchHostbasedAuth(sessionID []byte, req userAuthRequestMsg, config *ServerConfig) (bool, error) {
	if config.HostbasedCallback == nil {
		return false, nil
	}
	algo, rest, ok := parseString(req.Payload)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	blob, rest, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	clientHostname, rest, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	clientUser, rest, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	sig, _, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}

	pub, _, ok := ParsePublicKey(blob)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	if err := config.HostbasedCallback(req.User, string(clientHostname), string(clientUser), pub); err != nil {
		return false, nil
	}

	unsigned := userAuthRequestMsg{User: req.User, Service: req.Service, Method: req.Method}
	sigData := buildDataSignedForHostbasedAuth(sessionID, unsigned, string(algo), blob, string(clientHostname), string(clientUser))
	if err := pub.Verify(sigData, sig); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *connection) dispatchPublicKeyAuth(sessionID []byte, req userAuthRequestMsg, config *ServerConfig) (bool, error) {
	if config.PublicKeyCallback == nil {
		return false, nil
	}
	signed, rest, ok := parseBool(req.Payload)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	algo, rest, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	blob, rest, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}

	pub, _, ok := ParsePublicKey(blob)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	if err := config.PublicKeyCallback(req.User, pub); err != nil {
		return false, nil
	}

	if !signed {
		return false, c.transport.writePacket(Marshal(&userAuthPubKeyOkMsg{Algo: string(algo), PubKey: blob}))
	}

	sig, _, ok := parseString(rest)
	if !ok {
		return false, parseError(msgUserAuthRequest)
	}
	unsigned := userAuthRequestMsg{User: req.User, Service: req.Service, Method: req.Method}
	sigData := buildDataSignedForAuth(sessionID, unsigned, string(algo), blob)
	if err := pub.Verify(sigData, sig); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *connection) dispatchKeyboardInteractiveAuth(req userAuthRequestMsg, config *ServerConfig) (bool, error) {
	if config.KeyboardInteractiveCallback == nil {
		return false, nil
	}
	challenge := func(name, instruction string, prompts []Prompt) ([]string, error) {
		infoReq := userAuthInfoRequestMsg{
			Name:        name,
			Instruction: instruction,
			NumPrompts:  uint32(len(prompts)),
		}
		for _, p := range prompts {
			infoReq.Prompts = appendString(infoReq.Prompts, p.Text)
			infoReq.Prompts = appendBool(infoReq.Prompts, p.Echo)
		}
		if err := c.transport.writePacket(Marshal(&infoReq)); err != nil {
			return nil, err
		}
		packet, err := c.transport.readPacket()
		if err != nil {
			return nil, err
		}
		var resp userAuthInfoResponseMsg
		if err := Unmarshal(packet, &resp); err != nil {
			return nil, err
		}
		raw := resp.Responses
		answers := make([]string, 0, resp.NumResponses)
		for i := uint32(0); i < resp.NumResponses; i++ {
			s, rest, ok := parseString(raw)
			if !ok {
				return nil, errors.New("ssh: malformed keyboard-interactive response")
			}
			answers = append(answers, string(s))
			raw = rest
		}
		return answers, nil
	}
	err := config.KeyboardInteractiveCallback(req.User, challenge)
	return err == nil, nil
}
