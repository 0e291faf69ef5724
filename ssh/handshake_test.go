// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestParseEndpointIdFull(t *testing.T) {
	id := parseEndpointId([]byte("SSH-2.0-OpenSSH_9.0 FreeBSD-20230306"))
	if id.Raw != "SSH-2.0-OpenSSH_9.0 FreeBSD-20230306" {
		t.Fatalf("Raw = %q", id.Raw)
	}
	if id.ProtoVersion != "2.0" {
		t.Fatalf("ProtoVersion = %q, want 2.0", id.ProtoVersion)
	}
	if id.SoftwareVersion != "OpenSSH_9.0" {
		t.Fatalf("SoftwareVersion = %q, want OpenSSH_9.0", id.SoftwareVersion)
	}
	if id.Comment != "FreeBSD-20230306" {
		t.Fatalf("Comment = %q, want FreeBSD-20230306", id.Comment)
	}
}

func TestParseEndpointIdNoComment(t *testing.T) {
	id := parseEndpointId([]byte("SSH-2.0-sshcore"))
	if id.ProtoVersion != "2.0" || id.SoftwareVersion != "sshcore" {
		t.Fatalf("id = %+v", id)
	}
	if id.Comment != "" {
		t.Fatalf("Comment = %q, want empty", id.Comment)
	}
}

func TestParseEndpointIdMalformed(t *testing.T) {
	id := parseEndpointId([]byte("not-an-ssh-banner"))
	if id.ProtoVersion != "" || id.SoftwareVersion != "" {
		t.Fatalf("malformed banner should leave ProtoVersion/SoftwareVersion empty, got %+v", id)
	}
}

func TestSplitN(t *testing.T) {
	parts := splitN("SSH-2.0-OpenSSH_9.0", "-", 3)
	want := []string{"SSH", "2.0", "OpenSSH_9.0"}
	if len(parts) != len(want) {
		t.Fatalf("splitN = %v, want %v", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("splitN = %v, want %v", parts, want)
		}
	}
}

func TestSplitNFewerSeparatorsThanN(t *testing.T) {
	parts := splitN("a-b", "-", 5)
	want := []string{"a", "b"}
	if len(parts) != len(want) || parts[0] != want[0] || parts[1] != want[1] {
		t.Fatalf("splitN = %v, want %v", parts, want)
	}
}

func TestIndexOf(t *testing.T) {
	if got := indexOf("hello world", "world"); got != 6 {
		t.Fatalf("indexOf = %d, want 6", got)
	}
	if got := indexOf("hello", "xyz"); got != -1 {
		t.Fatalf("indexOf = %d, want -1", got)
	}
}
