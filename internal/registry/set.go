package registry

import (
	"sync"
	"time"

	"github.com/slidesync/slidesync/internal/deck"
)

// Set is one independently addressable presentation session: its deck,
// current slide index and timer. All access is serialized behind the
// set's own mutex; sets never contend with each other.
type Set struct {
	ID string

	mu        sync.Mutex
	slides    []deck.Slide
	languages []string
	current   int
	timer     TimerState
}

// Snapshot is the full state of a set, sent to a connection on join and
// after administrative deck replacement.
type Snapshot struct {
	Slides       []deck.Slide `json:"slides"`
	CurrentSlide int          `json:"currentSlide"`
	Languages    []string     `json:"languages"`
	Timer        TimerState   `json:"timer"`
}

func newSet(id string, slides []deck.Slide, initialIndex int) *Set {
	// A restored index past the end clamps to the last slide, same as
	// replaceSlides when a deck shrinks.
	if initialIndex >= len(slides) {
		initialIndex = len(slides) - 1
	}
	if initialIndex < 0 {
		initialIndex = 0
	}
	return &Set{
		ID:        id,
		slides:    slides,
		languages: deck.Languages(slides),
		current:   initialIndex,
		timer:     idleTimer(slides[initialIndex].Duration),
	}
}

// Snapshot returns the full current state of the set.
func (s *Set) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Slides:       s.slides,
		CurrentSlide: s.current,
		Languages:    s.languages,
		Timer:        s.timer,
	}
}

// CurrentIndex returns the current slide index.
func (s *Set) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Timer returns the current timer state.
func (s *Set) Timer() TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}

// ChangeSlide moves the set to the given index and replaces the timer
// with the destination slide's idle duration. Out-of-range indices are
// ignored. Re-selecting the current slide is a no-op so a running timer
// is never interrupted by a redundant selection. Reports whether the
// change was applied, along with the resulting index and timer state.
func (s *Set) ChangeSlide(index int) (bool, int, TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeSlideLocked(index)
}

// NextSlide advances to the following slide, if any.
func (s *Set) NextSlide() (bool, int, TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeSlideLocked(s.current + 1)
}

// PrevSlide moves back to the preceding slide, if any.
func (s *Set) PrevSlide() (bool, int, TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeSlideLocked(s.current - 1)
}

func (s *Set) changeSlideLocked(index int) (bool, int, TimerState) {
	if index < 0 || index >= len(s.slides) || index == s.current {
		return false, s.current, s.timer
	}
	s.current = index
	s.timer = idleTimer(s.slides[index].Duration)
	return true, s.current, s.timer
}

// StartTimer starts a countdown of the given number of seconds,
// replacing any previous timer state. Non-positive durations are
// rejected.
func (s *Set) StartTimer(seconds int, now time.Time) (bool, TimerState) {
	if seconds <= 0 {
		return false, s.Timer()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.start(seconds, now)
	return true, s.timer
}

// StopTimer freezes a running countdown at its last computed value.
func (s *Set) StopTimer() (bool, TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.timer.stop()
	return changed, s.timer
}

// ResetTimer zeroes the timer.
func (s *Set) ResetTimer() (bool, TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.timer.reset()
	return changed, s.timer
}

// Tick recomputes the countdown from wall-clock elapsed time. Reports
// whether the timer state changed this tick.
func (s *Set) Tick(now time.Time) (bool, TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.timer.tick(now)
	return changed, s.timer
}

// replaceSlides swaps in a freshly loaded deck, clamping the current
// index and resetting the timer to the current slide's idle duration.
func (s *Set) replaceSlides(slides []deck.Slide) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slides = slides
	s.languages = deck.Languages(slides)
	if s.current >= len(slides) {
		s.current = len(slides) - 1
	}
	s.timer = idleTimer(slides[s.current].Duration)

	return Snapshot{
		Slides:       s.slides,
		CurrentSlide: s.current,
		Languages:    s.languages,
		Timer:        s.timer,
	}
}
