// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// packageVersion is the identification string sshcore sends as its own
// half of the version exchange, RFC 4253 4.2.
const packageVersion = "SSH-2.0-sshcore"

const maxVersionLineLength = 255

// maxPreambleLines bounds how many non-identification lines (RFC 4253 4.2
// permits a server banner before SSH-2.0-...) this side will tolerate
// before treating the peer as protocol-broken.
const maxPreambleLines = 20

// exchangeVersions performs the identification-string exchange. The
// client reads (and discards) any pre-banner lines the server sends
// before its SSH-2.0 line, then both sides exchange their own version
// strings. It returns a bufio.Reader positioned exactly after the
// identification line: the caller (client.go/server.go) must read all
// subsequent BPP traffic through it rather than through the raw
// Transport, since bufio may have buffered bytes past the line ending.
func exchangeVersions(rw io.ReadWriter, ourVersion []byte) (ourFull, theirFull []byte, br *bufio.Reader, err error) {
	if _, err = rw.Write(append(ourVersion, '\r', '\n')); err != nil {
		return nil, nil, nil, err
	}

	br = bufio.NewReader(rw)
	theirFull, err = readVersion(br)
	if err != nil {
		return nil, nil, nil, err
	}
	return ourVersion, theirFull, br, nil
}

func readVersion(br *bufio.Reader) ([]byte, error) {
	for i := 0; i < maxPreambleLines; i++ {
		line, err := readOneLine(br)
		if err != nil {
			return nil, err
		}
		if bytes.HasPrefix(line, []byte("SSH-")) {
			return line, nil
		}
		// Not the identification line: RFC 4253 4.2 permits the server
		// to send other lines first, which the client must ignore.
	}
	return nil, errors.New("ssh: did not receive identification string within preamble limit")
}

func readOneLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			break
		}
		line = append(line, b)
		if len(line) > maxVersionLineLength {
			return nil, errors.New("ssh: identification string too long")
		}
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, nil
}
