package firestate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Backend is the durable medium behind a Store. Load returns an empty map
// and no error when nothing was ever saved. Save writes fired atomically;
// a backend that also implements Pruner may keep keys absent from fired,
// since removal then goes through PruneBefore.
type Backend interface {
	Load(ctx context.Context) (map[Key]time.Time, error)
	Save(ctx context.Context, fired map[Key]time.Time) error
}

// Pruner is implemented by backends that can delete old dates in place
// instead of rewriting the whole set.
type Pruner interface {
	PruneBefore(ctx context.Context, before string) (int, error)
}

// Entry is one fired key, used for listings.
type Entry struct {
	Key
	FiredAt time.Time `json:"fired_at"`
}

// Store is the in-memory fire set with write-through persistence.
type Store struct {
	backend Backend
	logger  zerolog.Logger

	mu    sync.RWMutex
	fired map[Key]time.Time
	gen   uint64 // bumped on every change

	// saveMu orders backend writes: each takes its snapshot while holding
	// it, so a later write never carries older state than an earlier one.
	saveMu   sync.Mutex
	savedGen uint64
}

// Open creates a store over backend and loads it. A failed load is logged
// and leaves the store empty; it never prevents startup.
func Open(ctx context.Context, backend Backend) *Store {
	s := &Store{
		backend: backend,
		logger:  log.With().Str("component", "firestate").Logger(),
		fired:   make(map[Key]time.Time),
	}
	s.Load(ctx)
	return s
}

// Load replaces the in-memory set with the backend's content. On error the
// set is emptied and the error returned for the caller's information.
func (s *Store) Load(ctx context.Context) error {
	fired, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("fire state unreadable, starting empty")
		fired = nil
	}

	clean := make(map[Key]time.Time, len(fired))
	for k, at := range fired {
		if !k.Valid() {
			s.logger.Warn().Str("key", k.String()).Msg("dropping invalid fire key")
			continue
		}
		clean[k] = at
	}

	s.saveMu.Lock()
	s.mu.Lock()
	s.fired = clean
	s.gen++
	if err == nil {
		s.savedGen = s.gen
	}
	s.mu.Unlock()
	s.saveMu.Unlock()

	s.logger.Debug().Int("entries", len(clean)).Msg("fire state loaded")
	return err
}

// Record marks key as fired at at. Recording an existing key only updates
// its timestamp.
func (s *Store) Record(key Key, at time.Time) {
	s.mu.Lock()
	s.fired[key] = at
	s.gen++
	s.mu.Unlock()
}

// Persist writes the set through the backend and waits for it until ctx
// ends. A write still running at that point is left to finish in the
// background; writes never overlap and persists queued behind a stuck one
// fold into a single write of the latest state.
func (s *Store) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist fire state: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.save(context.WithoutCancel(ctx)) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		s.logger.Warn().Err(ctx.Err()).Msg("fire state write still running after deadline")
		return fmt.Errorf("persist fire state: %w", ctx.Err())
	}
}

func (s *Store) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	gen := s.gen
	if gen == s.savedGen {
		s.mu.RUnlock()
		return nil
	}
	snap := make(map[Key]time.Time, len(s.fired))
	for k, v := range s.fired {
		snap[k] = v
	}
	s.mu.RUnlock()

	if err := s.backend.Save(ctx, snap); err != nil {
		return err
	}
	s.savedGen = gen
	return nil
}

// Contains reports whether key has fired.
func (s *Store) Contains(key Key) bool {
	s.mu.RLock()
	_, ok := s.fired[key]
	s.mu.RUnlock()
	return ok
}

// FiredAt returns when key fired.
func (s *Store) FiredAt(key Key) (time.Time, bool) {
	s.mu.RLock()
	at, ok := s.fired[key]
	s.mu.RUnlock()
	return at, ok
}

// Len returns the number of recorded fires.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fired)
}

// Snapshot returns a copy of the set.
func (s *Store) Snapshot() map[Key]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]time.Time, len(s.fired))
	for k, v := range s.fired {
		out[k] = v
	}
	return out
}

// ForDate lists the fires of one date in prayer order, adhan before
// reminder.
func (s *Store) ForDate(date string) []Entry {
	s.mu.RLock()
	var out []Entry
	for k, at := range s.fired {
		if k.Date == date {
			out = append(out, Entry{Key: k, FiredAt: at})
		}
	}
	s.mu.RUnlock()

	sortEntries(out)
	return out
}

// Entries lists every fire, oldest date first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.fired))
	for k, at := range s.fired {
		out = append(out, Entry{Key: k, FiredAt: at})
	}
	s.mu.RUnlock()

	sortEntries(out)
	return out
}

// Prune drops every key dated before the given "2006-01-02" date and
// persists the result. It returns how many keys were removed.
// Callers must not pass a date after today: that would make today's
// fires eligible again.
func (s *Store) Prune(ctx context.Context, before string) (int, error) {
	s.mu.Lock()
	removed := 0
	for k := range s.fired {
		// ISO dates order lexically.
		if k.Date < before {
			delete(s.fired, k)
			removed++
		}
	}
	if removed > 0 {
		s.gen++
	}
	s.mu.Unlock()

	if p, ok := s.backend.(Pruner); ok {
		s.saveMu.Lock()
		n, err := p.PruneBefore(ctx, before)
		s.saveMu.Unlock()
		if err != nil {
			return removed, err
		}
		if n > removed {
			// rows written by another process
			removed = n
		}
	} else {
		if removed == 0 {
			return 0, nil
		}
		if err := s.Persist(ctx); err != nil {
			return removed, err
		}
	}
	if removed == 0 {
		return 0, nil
	}
	s.logger.Info().Int("removed", removed).Str("before", before).Msg("pruned fire state")
	return removed, nil
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Prayer != b.Prayer {
			return a.Prayer.Index() < b.Prayer.Index()
		}
		return a.Kind < b.Kind
	})
}
