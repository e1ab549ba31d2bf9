package voice

import "time"

// eventTimer wraps time.Timer for use in a select loop. C returns nil while
// the timer is disarmed so the corresponding case never fires. Not safe for
// concurrent use; owned by the controller goroutine.
type eventTimer struct {
	timer *time.Timer
	armed bool
}

func (t *eventTimer) Reset(d time.Duration) {
	t.Stop()
	t.timer = time.NewTimer(d)
	t.armed = true
}

func (t *eventTimer) Stop() {
	if t.timer != nil {
		if !t.timer.Stop() {
			select {
			case <-t.timer.C:
			default:
			}
		}
	}
	t.armed = false
}

func (t *eventTimer) C() <-chan time.Time {
	if !t.armed || t.timer == nil {
		return nil
	}
	return t.timer.C
}

// Disarm marks the timer consumed after its channel fired.
func (t *eventTimer) Disarm() {
	t.armed = false
}

func (t *eventTimer) Armed() bool {
	return t.armed
}
