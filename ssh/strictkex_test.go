// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import "testing"

func TestCheckStrictKexMessageAllowsKexRange(t *testing.T) {
	if err := checkStrictKexMessage(true, true, msgKexInit); err != nil {
		t.Fatalf("KEX-range message should be allowed: %v", err)
	}
}

func TestCheckStrictKexMessageRejectsOutOfRange(t *testing.T) {
	if err := checkStrictKexMessage(true, true, msgIgnore); err == nil {
		t.Fatal("strict KEX should reject SSH_MSG_IGNORE before the first NEWKEYS")
	}
}

func TestCheckStrictKexMessageNoOpWhenNotStrict(t *testing.T) {
	if err := checkStrictKexMessage(false, true, msgIgnore); err != nil {
		t.Fatalf("non-strict sessions should tolerate SSH_MSG_IGNORE: %v", err)
	}
}

func TestCheckStrictKexMessageNoOpAfterInitialKex(t *testing.T) {
	if err := checkStrictKexMessage(true, false, msgIgnore); err != nil {
		t.Fatalf("the rule only applies during the initial key exchange: %v", err)
	}
}
