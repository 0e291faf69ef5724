// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

// versionRW is an io.ReadWriter backed by independent read/write buffers,
// so exchangeVersions's Write of our own banner doesn't loop back into
// its own subsequent Read of the peer's banner.
type versionRW struct {
	r *bytes.Reader
	w *bytes.Buffer
}

func (v *versionRW) Read(p []byte) (int, error)  { return v.r.Read(p) }
func (v *versionRW) Write(p []byte) (int, error) { return v.w.Write(p) }

func TestExchangeVersionsSimple(t *testing.T) {
	rw := &versionRW{r: bytes.NewReader([]byte("SSH-2.0-OpenSSH_9.0\r\n")), w: new(bytes.Buffer)}
	ours, theirs, br, err := exchangeVersions(rw, []byte("SSH-2.0-sshcore"))
	if err != nil {
		t.Fatalf("exchangeVersions: %v", err)
	}
	if string(ours) != "SSH-2.0-sshcore" {
		t.Fatalf("ours = %q", ours)
	}
	if string(theirs) != "SSH-2.0-OpenSSH_9.0" {
		t.Fatalf("theirs = %q, want SSH-2.0-OpenSSH_9.0", theirs)
	}
	if !strings.HasPrefix(rw.w.String(), "SSH-2.0-sshcore\r\n") {
		t.Fatalf("our banner was not written to the peer: %q", rw.w.String())
	}
	if br == nil {
		t.Fatal("exchangeVersions returned a nil bufio.Reader")
	}
}

func TestExchangeVersionsSkipsPreambleLines(t *testing.T) {
	rw := &versionRW{
		r: bytes.NewReader([]byte("Welcome to our server\r\nAnother banner line\r\nSSH-2.0-OpenSSH_9.0\r\n")),
		w: new(bytes.Buffer),
	}
	_, theirs, _, err := exchangeVersions(rw, []byte("SSH-2.0-sshcore"))
	if err != nil {
		t.Fatalf("exchangeVersions: %v", err)
	}
	if string(theirs) != "SSH-2.0-OpenSSH_9.0" {
		t.Fatalf("theirs = %q, want SSH-2.0-OpenSSH_9.0", theirs)
	}
}

func TestExchangeVersionsMissingIdentLine(t *testing.T) {
	var preamble bytes.Buffer
	for i := 0; i < maxPreambleLines+1; i++ {
		preamble.WriteString("not an identification line\r\n")
	}
	rw := &versionRW{r: bytes.NewReader(preamble.Bytes()), w: new(bytes.Buffer)}
	if _, _, _, err := exchangeVersions(rw, []byte("SSH-2.0-sshcore")); err == nil {
		t.Fatal("exchangeVersions should fail when no SSH- line appears within the preamble limit")
	}
}

func TestReadOneLineRejectsOverlongLine(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader(append(bytes.Repeat([]byte{'a'}, maxVersionLineLength+1), '\n')))
	if _, err := readOneLine(br); err == nil {
		t.Fatal("readOneLine should reject a line over maxVersionLineLength")
	}
}

func TestReadOneLineStripsCR(t *testing.T) {
	br := bufio.NewReader(bytes.NewReader([]byte("SSH-2.0-foo\r\n")))
	line, err := readOneLine(br)
	if err != nil {
		t.Fatalf("readOneLine: %v", err)
	}
	if string(line) != "SSH-2.0-foo" {
		t.Fatalf("readOneLine = %q, want %q", line, "SSH-2.0-foo")
	}
}
