package registry

import "time"

// TimerState is the countdown state for one set.
//
// While Running is true, TimeLeft is always recomputed from the
// wall-clock time elapsed since StartTime rather than decremented, so
// the countdown does not drift under scheduling delay.
type TimerState struct {
	Running   bool       `json:"running"`
	TimeLeft  int        `json:"timeLeft"`  // seconds
	TotalTime int        `json:"totalTime"` // seconds
	StartTime *time.Time `json:"startTime,omitempty"`
}

// idleTimer returns the stopped state a slide change installs: not
// running, with the full slide duration on the clock.
func idleTimer(duration int) TimerState {
	return TimerState{TimeLeft: duration, TotalTime: duration}
}

// start replaces the state wholesale. Repeated starts never accumulate.
func (t *TimerState) start(seconds int, now time.Time) {
	*t = TimerState{
		Running:   true,
		TimeLeft:  seconds,
		TotalTime: seconds,
		StartTime: &now,
	}
}

// stop freezes TimeLeft at its last computed value. Reports whether the
// state changed.
func (t *TimerState) stop() bool {
	if !t.Running {
		return false
	}
	t.Running = false
	t.StartTime = nil
	return true
}

// reset zeroes the timer, a deliberately distinct idle state from the
// slide-duration idle a slide change installs. Reports whether the
// state changed.
func (t *TimerState) reset() bool {
	if !t.Running && t.TimeLeft == 0 && t.TotalTime == 0 && t.StartTime == nil {
		return false
	}
	*t = TimerState{}
	return true
}

// tick recomputes TimeLeft from elapsed wall-clock time. When the
// countdown reaches zero the timer expires and stops. Reports whether
// the state changed this tick; expired or idle timers never change.
func (t *TimerState) tick(now time.Time) bool {
	if !t.Running || t.StartTime == nil {
		return false
	}

	elapsed := int(now.Sub(*t.StartTime) / time.Second)
	left := t.TotalTime - elapsed
	if left < 0 {
		left = 0
	}
	if left == t.TimeLeft {
		return false
	}

	t.TimeLeft = left
	if left == 0 {
		t.Running = false
		t.StartTime = nil
	}
	return true
}
