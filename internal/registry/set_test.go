package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slidesync/slidesync/internal/deck"
)

func testSlides() []deck.Slide {
	return []deck.Slide{
		{
			ID:       "1",
			Title:    map[string]string{"en": "Welcome", "pl": "Witamy"},
			Content:  map[string]string{"en": "Hello", "pl": "Cześć"},
			Duration: 30,
		},
		{
			ID:       "2",
			Title:    map[string]string{"en": "Second"},
			Content:  map[string]string{"en": "More"},
			Duration: 45,
		},
		{
			ID:       "3",
			Title:    map[string]string{"en": "Untimed"},
			Content:  map[string]string{"en": "No countdown"},
			Duration: 0,
		},
	}
}

func TestNewSetInstallsIdleTimerForInitialSlide(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)

	require.Equal(t, 0, s.CurrentIndex())
	require.Equal(t, TimerState{TimeLeft: 30, TotalTime: 30}, s.Timer())
}

func TestNewSetClampsOutOfRangeInitialIndex(t *testing.T) {
	// A restored index past the end lands on the last slide, not the
	// first; a negative one lands on the first.
	s := newSet("alpha", testSlides(), 7)
	require.Equal(t, 2, s.CurrentIndex())
	require.Equal(t, TimerState{}, s.Timer(), "last slide is untimed")

	s = newSet("alpha", testSlides(), -3)
	require.Equal(t, 0, s.CurrentIndex())
}

func TestChangeSlideResetsTimerToDestinationDuration(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)

	changed, index, timer := s.ChangeSlide(1)
	require.True(t, changed)
	require.Equal(t, 1, index)
	require.Equal(t, TimerState{TimeLeft: 45, TotalTime: 45}, timer)
}

func TestReselectingCurrentSlideLeavesTimerUntouched(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	now := time.Now()
	s.StartTimer(30, now)
	before := s.Timer()

	changed, index, _ := s.ChangeSlide(0)
	require.False(t, changed)
	require.Equal(t, 0, index)
	require.Equal(t, before, s.Timer())
}

func TestChangeSlideIgnoresOutOfRangeIndex(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)

	for _, index := range []int{-1, 3, 100} {
		changed, _, _ := s.ChangeSlide(index)
		require.False(t, changed, "index %d should be rejected", index)
	}
	require.Equal(t, 0, s.CurrentIndex())
}

func TestNextPrevSlideBounds(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)

	changed, _, _ := s.PrevSlide()
	require.False(t, changed)

	changed, index, _ := s.NextSlide()
	require.True(t, changed)
	require.Equal(t, 1, index)

	s.NextSlide()
	changed, _, _ = s.NextSlide()
	require.False(t, changed, "nextSlide at last slide should be rejected")
	require.Equal(t, 2, s.CurrentIndex())
}

func TestStartTimerReplacesPriorStateWholesale(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	t0 := time.Now()

	s.StartTimer(30, t0)
	s.Tick(t0.Add(10 * time.Second))

	t1 := t0.Add(12 * time.Second)
	changed, timer := s.StartTimer(60, t1)
	require.True(t, changed)
	require.Equal(t, 60, timer.TimeLeft)
	require.Equal(t, 60, timer.TotalTime)
	require.True(t, timer.Running)
	require.Equal(t, t1, *timer.StartTime)
}

func TestStartTimerRejectsNonPositiveDuration(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)

	changed, _ := s.StartTimer(0, time.Now())
	require.False(t, changed)
	changed, _ = s.StartTimer(-5, time.Now())
	require.False(t, changed)
	require.False(t, s.Timer().Running)
}

func TestTickRecomputesFromWallClock(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	t0 := time.Now()
	s.StartTimer(10, t0)

	changed, timer := s.Tick(t0.Add(3 * time.Second))
	require.True(t, changed)
	require.Equal(t, 7, timer.TimeLeft)
	require.True(t, timer.Running)

	// Same instant again: nothing changed, no broadcast warranted.
	changed, _ = s.Tick(t0.Add(3 * time.Second))
	require.False(t, changed)

	// A delayed tick catches up in one recomputation instead of
	// drifting by the missed cycles.
	changed, timer = s.Tick(t0.Add(9 * time.Second))
	require.True(t, changed)
	require.Equal(t, 1, timer.TimeLeft)
}

func TestTickIsMonotonicallyNonIncreasing(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	t0 := time.Now()
	s.StartTimer(10, t0)

	prev := 10
	for i := 1; i <= 12; i++ {
		_, timer := s.Tick(t0.Add(time.Duration(i) * time.Second))
		require.LessOrEqual(t, timer.TimeLeft, prev)
		require.GreaterOrEqual(t, timer.TimeLeft, 0)
		prev = timer.TimeLeft
	}
	require.False(t, s.Timer().Running)
}

func TestTimerExpiresExactlyOnce(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	t0 := time.Now()
	s.StartTimer(10, t0)

	changed, timer := s.Tick(t0.Add(11 * time.Second))
	require.True(t, changed)
	require.Equal(t, TimerState{TimeLeft: 0, TotalTime: 10}, timer)

	// Expired timers stay silent until the next command.
	for i := 12; i < 15; i++ {
		changed, _ = s.Tick(t0.Add(time.Duration(i) * time.Second))
		require.False(t, changed)
	}
}

func TestStopFreezesTimeLeft(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	t0 := time.Now()
	s.StartTimer(10, t0)
	s.Tick(t0.Add(4 * time.Second))

	changed, timer := s.StopTimer()
	require.True(t, changed)
	require.Equal(t, TimerState{TimeLeft: 6, TotalTime: 10}, timer)

	// Stopping an already idle timer is a no-op.
	changed, _ = s.StopTimer()
	require.False(t, changed)

	// A stopped timer no longer ticks.
	changed, _ = s.Tick(t0.Add(20 * time.Second))
	require.False(t, changed)
}

func TestResetZeroesTimer(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	s.StartTimer(10, time.Now())

	changed, timer := s.ResetTimer()
	require.True(t, changed)
	require.Equal(t, TimerState{}, timer)

	changed, _ = s.ResetTimer()
	require.False(t, changed)
}

func TestSlideChangeSupersedesRunningTimer(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)
	t0 := time.Now()
	s.StartTimer(30, t0)

	changed, index, timer := s.NextSlide()
	require.True(t, changed)
	require.Equal(t, 1, index)
	require.Equal(t, TimerState{TimeLeft: 45, TotalTime: 45}, timer)
}

func TestZeroDurationSlideInstallsZeroedIdleTimer(t *testing.T) {
	s := newSet("alpha", testSlides(), 0)

	changed, _, timer := s.ChangeSlide(2)
	require.True(t, changed)
	require.Equal(t, TimerState{}, timer)
}
