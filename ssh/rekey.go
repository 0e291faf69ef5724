package ssh

import "time"

// rekeyTimer watches Config.RekeyInterval against a Clock and signals on
// C when a time-based rekey (spec.md 4.2's third trigger, alongside the
// byte and packet counters handshakeTransport already tracks) is due.
// Zero RekeyInterval disables the timer; C is then never sent to.
type rekeyTimer struct {
	C      chan struct{}
	stop   chan struct{}
	clock  Clock
	period time.Duration
}

func newRekeyTimer(clock Clock, period time.Duration) *rekeyTimer {
	t := &rekeyTimer{
		C:      make(chan struct{}, 1),
		stop:   make(chan struct{}),
		clock:  clock,
		period: period,
	}
	if period > 0 {
		go t.run()
	}
	return t
}

func (t *rekeyTimer) run() {
	for {
		select {
		case <-t.clock.After(t.period):
			select {
			case t.C <- struct{}{}:
			default:
			}
		case <-t.stop:
			return
		}
	}
}

// close stops the timer goroutine; calling it more than once is safe.
func (t *rekeyTimer) close() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
