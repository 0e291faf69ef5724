// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssh

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger(buf *bytes.Buffer) Logger {
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return NewLogger(logrus.NewEntry(logger))
}

func TestNewLoggerNilEntryIsSafe(t *testing.T) {
	l := NewLogger(nil)
	if l == nil {
		t.Fatal("NewLogger(nil) should return a usable Logger")
	}
	l.Debugf("hello %d", 1)
}

func TestLoggerDebugfWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.Debugf("hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("log output = %q, want it to contain %q", buf.String(), "hello world")
	}
}

func TestWithFieldsAnnotatesRoleAndPhase(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf)
	annotated := withFields(base, "client", phaseAuth)
	annotated.Infof("authenticating")

	out := buf.String()
	if !strings.Contains(out, "role=client") {
		t.Fatalf("log output = %q, want it to contain role=client", out)
	}
	if !strings.Contains(out, "phase=AUTH") {
		t.Fatalf("log output = %q, want it to contain phase=AUTH", out)
	}
}

func TestWithFieldsPassesThroughNonLogrusLogger(t *testing.T) {
	other := &countingLogger{}
	got := withFields(other, "server", phaseOpen)
	if got != other {
		t.Fatal("withFields should return non-logrus Loggers unchanged")
	}
}

func TestDebugfToleratesNilLogger(t *testing.T) {
	debugf(nil, "should not panic")
}

type countingLogger struct{ calls int }

func (c *countingLogger) Debugf(format string, args ...interface{}) { c.calls++ }
func (c *countingLogger) Infof(format string, args ...interface{})  { c.calls++ }
func (c *countingLogger) Warnf(format string, args ...interface{})  { c.calls++ }
