package ssh

import "time"

// idleTimer watches Config.IdleTimeout against a Clock and calls onIdle
// once that much time passes between touch calls. Zero timeout disables
// the timer: newIdleTimer then never starts the watcher goroutine.
type idleTimer struct {
	reset   chan struct{}
	stop    chan struct{}
	clock   Clock
	timeout time.Duration
	onIdle  func()
}

func newIdleTimer(clock Clock, timeout time.Duration, onIdle func()) *idleTimer {
	t := &idleTimer{
		reset:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		clock:   clock,
		timeout: timeout,
		onIdle:  onIdle,
	}
	if timeout > 0 {
		go t.run()
	}
	return t
}

func (t *idleTimer) run() {
	for {
		select {
		case <-t.clock.After(t.timeout):
			t.onIdle()
			return
		case <-t.reset:
		case <-t.stop:
			return
		}
	}
}

// touch records read activity, restarting the countdown.
func (t *idleTimer) touch() {
	if t == nil {
		return
	}
	select {
	case t.reset <- struct{}{}:
	default:
	}
}

func (t *idleTimer) close() {
	if t == nil {
		return
	}
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
