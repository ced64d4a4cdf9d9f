// Package statcache holds formatted stat lines for the duration of one match.
// Entries are written only after a successful fetch and are never individually
// expired; the whole cache is cleared when a new round starts.
package statcache

import "context"

// Entry is one cached lookup result, keyed by canonical username.
type Entry struct {
	Message string `json:"message"`
	Threat  bool   `json:"threat"`
}

// Cache is a read-through cache: a miss returns (nil, nil) and the caller runs
// the external pipeline.
type Cache interface {
	Get(ctx context.Context, username string) (*Entry, error)
	Put(ctx context.Context, username string, e *Entry) error
	Clear(ctx context.Context) error
}
