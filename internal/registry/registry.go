package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/slidesync/slidesync/internal/deck"
)

// Registry owns every Set record. Sets are materialized lazily on first
// access and cached for the process lifetime; repeated lookups return
// the same mutable record.
type Registry struct {
	loader deck.Loader

	mu    sync.Mutex
	sets  map[string]*Set
	seeds map[string]int // restored slide indices, consumed on first access
}

// New creates a registry backed by the given deck loader. seeds maps
// set ids to slide indices restored from a persisted snapshot; it may
// be nil.
func New(loader deck.Loader, seeds map[string]int) *Registry {
	if seeds == nil {
		seeds = make(map[string]int)
	}
	return &Registry{
		loader: loader,
		sets:   make(map[string]*Set),
		seeds:  seeds,
	}
}

// GetOrCreate returns the cached Set for setID, materializing it on
// first access. Loader failures fall back to the built-in default deck
// and are never surfaced to the caller.
func (r *Registry) GetOrCreate(setID string) *Set {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sets[setID]; ok {
		return s
	}

	slides, err := r.loader.Load(setID)
	if err != nil || len(slides) == 0 {
		log.Warn().
			Err(err).
			Str("set_id", setID).
			Msg("deck loader failed, using default deck")
		slides = deck.DefaultSlides()
	}

	s := newSet(setID, slides, r.seeds[setID])
	delete(r.seeds, setID)
	r.sets[setID] = s

	log.Info().
		Str("set_id", setID).
		Int("slides", len(slides)).
		Int("initial_index", s.CurrentIndex()).
		Msg("set created")

	return s
}

// Get returns the cached Set for setID without materializing one.
func (r *Registry) Get(setID string) (*Set, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sets[setID]
	return s, ok
}

// Sets returns every cached set.
func (r *Registry) Sets() []*Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	sets := make([]*Set, 0, len(r.sets))
	for _, s := range r.sets {
		sets = append(sets, s)
	}
	return sets
}

// Indices returns the current slide index of every cached set, the
// shape the persistence gateway snapshots.
func (r *Registry) Indices() map[string]int {
	sets := r.Sets()
	indices := make(map[string]int, len(sets))
	for _, s := range sets {
		indices[s.ID] = s.CurrentIndex()
	}
	return indices
}

// ListAvailable enumerates the sets the deck loader can materialize. It
// peeks metadata only and does not create cache entries.
func (r *Registry) ListAvailable() ([]deck.Metadata, error) {
	return r.loader.List()
}

// Reload re-runs the deck loader for a cached set and swaps the fresh
// deck in, returning the resulting full snapshot. Unlike GetOrCreate it
// does not fall back to the default deck: a failed reload leaves the
// live deck untouched.
func (r *Registry) Reload(setID string) (Snapshot, error) {
	s, ok := r.Get(setID)
	if !ok {
		return Snapshot{}, fmt.Errorf("no active set %q", setID)
	}

	slides, err := r.loader.Load(setID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to reload deck for set %q: %w", setID, err)
	}
	if len(slides) == 0 {
		return Snapshot{}, fmt.Errorf("reloaded deck for set %q is empty", setID)
	}

	snap := s.replaceSlides(slides)
	log.Info().
		Str("set_id", setID).
		Int("slides", len(slides)).
		Msg("deck replaced")
	return snap, nil
}
