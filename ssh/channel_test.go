// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"io"
	"testing"
	"time"
)

func TestWindowReserveAndAdd(t *testing.T) {
	w := newWindow(10)
	n, err := w.reserve(4)
	if err != nil || n != 4 {
		t.Fatalf("reserve(4) = %d, %v, want 4, nil", n, err)
	}
	n, err = w.reserve(100)
	if err != nil || n != 6 {
		t.Fatalf("reserve(100) = %d, %v, want 6, nil (capped at remaining window)", n, err)
	}
	if !w.waitWriterBlocked() {
		t.Fatal("window should report a blocked writer once exhausted")
	}
	w.add(5)
	if w.waitWriterBlocked() {
		t.Fatal("window should not report blocked after add()")
	}
	n, err = w.reserve(5)
	if err != nil || n != 5 {
		t.Fatalf("reserve(5) after add = %d, %v, want 5, nil", n, err)
	}
}

func TestWindowReserveBlocksUntilAdd(t *testing.T) {
	w := newWindow(0)
	done := make(chan struct{})
	go func() {
		n, err := w.reserve(3)
		if err != nil || n != 3 {
			t.Errorf("reserve(3) = %d, %v, want 3, nil", n, err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("reserve returned before the window had any space")
	case <-time.After(20 * time.Millisecond):
	}

	w.add(3)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reserve did not unblock after add()")
	}
}

func TestWindowCloseUnblocksReserve(t *testing.T) {
	w := newWindow(0)
	done := make(chan error, 1)
	go func() {
		_, err := w.reserve(1)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("reserve returned early with %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	w.close()
	select {
	case err := <-done:
		if err != io.EOF {
			t.Fatalf("reserve after close = %v, want io.EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reserve did not unblock after close()")
	}
}

func TestBufferReadWrite(t *testing.T) {
	b := newBuffer()
	b.write([]byte("hello "))
	b.write([]byte("world"))

	buf := make([]byte, 32)
	n, err := b.read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello " {
		t.Fatalf("read = %q, want %q", buf[:n], "hello ")
	}
	n, err = b.read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("read = %q, want %q", buf[:n], "world")
	}
}

func TestBufferReadPartial(t *testing.T) {
	b := newBuffer()
	b.write([]byte("abcdef"))
	small := make([]byte, 3)
	n, err := b.read(small)
	if err != nil || string(small[:n]) != "abc" {
		t.Fatalf("read = %q, %v, want abc, nil", small[:n], err)
	}
	n, err = b.read(small)
	if err != nil || string(small[:n]) != "def" {
		t.Fatalf("read = %q, %v, want def, nil", small[:n], err)
	}
}

func TestBufferCloseWithErrorThenEOF(t *testing.T) {
	b := newBuffer()
	b.closeWithError(nil)
	buf := make([]byte, 1)
	_, err := b.read(buf)
	if err != io.EOF {
		t.Fatalf("read after closeWithError(nil) = %v, want io.EOF", err)
	}
}

func TestBufferCloseWithErrorPropagates(t *testing.T) {
	b := newBuffer()
	sentinel := io.ErrClosedPipe
	b.closeWithError(sentinel)
	buf := make([]byte, 1)
	_, err := b.read(buf)
	if err != sentinel {
		t.Fatalf("read after closeWithError(sentinel) = %v, want %v", err, sentinel)
	}
}

func TestBufferDrainsBeforeEOF(t *testing.T) {
	b := newBuffer()
	b.write([]byte("queued"))
	b.closeWithError(nil)

	buf := make([]byte, 32)
	n, err := b.read(buf)
	if err != nil {
		t.Fatalf("read of already-queued data should not surface EOF yet: %v", err)
	}
	if string(buf[:n]) != "queued" {
		t.Fatalf("read = %q, want %q", buf[:n], "queued")
	}
	if _, err := b.read(buf); err != io.EOF {
		t.Fatalf("read after drain = %v, want io.EOF", err)
	}
}
