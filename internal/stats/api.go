// Package stats resolves player identities, fetches and derives Bedwars
// statistics, classifies threats, and formats the colored overlay lines.
package stats

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrNotFound means identity resolution found no such player.
	ErrNotFound = errors.New("player not found")
	// ErrNoStats means the player exists but has no Bedwars statistics.
	ErrNoStats = errors.New("no stats found")
)

// Identity is a resolved (id, canonical username) pair. Username is the
// server-side spelling and is the cache key.
type Identity struct {
	ID       string
	Username string
}

// Player is the raw statistics subset the pipeline derives from.
type Player struct {
	MonthlyPackageRank string
	PackageRank        string
	NewPackageRank     string
	Bedwars            *Bedwars
}

// Bedwars holds the per-mode counters used for derivation.
type Bedwars struct {
	Experience  float64
	FinalKills  int
	FinalDeaths int
	Slumber     map[string]int
}

// API is the external lookup surface: identity resolution, statistics, and
// guild affiliation.
type API interface {
	Resolve(ctx context.Context, name string) (*Identity, error)
	FetchPlayer(ctx context.Context, id string) (*Player, error)
	FetchGuild(ctx context.Context, id string) (string, error)
}

// NameSet is a set of lowercase names: the stat filter and the guild watch
// list. Add and Has are safe for concurrent use; the filter set is written
// from the client read loop and read from the target read loop.
type NameSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewNameSet(names ...string) *NameSet {
	s := &NameSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s *NameSet) Add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
}

func (s *NameSet) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
