package memory

import (
	"context"
	"sync"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

// Storage keeps results and tallies in process memory
type Storage struct {
	mu      sync.RWMutex
	results []store.MatchResult
	tallies map[string]store.Tally
	avatars map[string]string
}

// New creates an empty Storage
func New() *Storage {
	return &Storage{
		tallies: make(map[string]store.Tally),
		avatars: make(map[string]string),
	}
}

func (s *Storage) PersistMatchResult(_ context.Context, r store.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	for _, id := range []string{r.Player1, r.Player2} {
		t, ok := s.tallies[id]
		if !ok {
			t = store.Tally{PlayerID: id}
		}
		s.tallies[id] = t.Apply(r)
	}
	return nil
}

func (s *Storage) ResolveAvatar(_ context.Context, playerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.avatars[playerID]
	if !ok {
		return "", store.ErrNotFound
	}
	return url, nil
}

func (s *Storage) SetAvatar(_ context.Context, playerID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatars[playerID] = url
	return nil
}

func (s *Storage) Tally(_ context.Context, playerID string) (store.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tallies[playerID]
	if !ok {
		return store.Tally{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Storage) Leaderboard(_ context.Context, limit int) ([]store.Tally, error) {
	s.mu.RLock()
	out := make([]store.Tally, 0, len(s.tallies))
	for _, t := range s.tallies {
		out = append(out, t)
	}
	s.mu.RUnlock()
	store.Rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Results returns a copy of every persisted result in order
func (s *Storage) Results() []store.MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.MatchResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *Storage) Close() error { return nil }

var _ store.Store = (*Storage)(nil)
