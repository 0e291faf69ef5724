package ssh

import "github.com/sirupsen/logrus"

// logrusLogger adapts a *logrus.Entry to the Logger interface, carrying
// the session's role/phase (via withFields) as structured fields the way the
// teacher's scanner modules attach per-target fields to every log line.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger wraps entry for use as Config.Logger. A nil entry falls back
// to logrus's standard logger (stderr, Info level unless reconfigured),
// so Debugf lines are dropped while Infof and Warnf lines are printed.
func NewLogger(entry *logrus.Entry) Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &logrusLogger{entry: entry}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }

// withFields returns a Logger that annotates every line with the given
// session context, or nil if base is nil.
func withFields(base Logger, role string, phase sessionPhase) Logger {
	ll, ok := base.(*logrusLogger)
	if !ok {
		return base
	}
	return &logrusLogger{entry: ll.entry.WithFields(logrus.Fields{
		"role":  role,
		"phase": phase.String(),
	})}
}

func debugf(l Logger, format string, args ...interface{}) {
	if l != nil {
		l.Debugf(format, args...)
	}
}
