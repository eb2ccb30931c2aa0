// Package history lists previously submitted jobs. The in-memory list is
// replaced wholesale on each refresh; filtering is a pure projection over
// the already-fetched list and never triggers a fetch by itself.
package history

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/addresskit/addresskit/gateway"
	"github.com/addresskit/addresskit/model"
)

// unavailableSetKey is the Redis set remembering output files that came back
// 404, so "file gone" survives process restarts.
const unavailableSetKey = "addresskit:artifacts:unavailable"

// Lister is the slice of the gateway the store reads through.
type Lister interface {
	Jobs(ctx context.Context, status string, limit, offset int) ([]model.HistoryEntry, error)
	Download(ctx context.Context, outputRef string) (io.ReadCloser, error)
}

// Store owns the job history list and the per-output-file availability
// memory. The Redis client is optional: nil keeps the memory in-process
// only, the same degradation the rest of the client applies to unconfigured
// externals.
type Store struct {
	gw    Lister
	redis *redis.Client
	limit int

	mu          sync.Mutex
	entries     []model.HistoryEntry
	refreshing  bool
	unavailable map[string]bool
	marksLoaded bool
}

// NewStore creates a history store fetching up to limit entries per refresh.
func NewStore(gw Lister, redisClient *redis.Client, limit int) *Store {
	return &Store{
		gw:          gw,
		redis:       redisClient,
		limit:       limit,
		unavailable: make(map[string]bool),
	}
}

// Refresh fetches the job listing and replaces the in-memory list wholesale.
// A refresh issued while another is pending is not duplicated: the current
// snapshot is returned and the pending fetch is left to land.
func (s *Store) Refresh(ctx context.Context) ([]model.HistoryEntry, error) {
	s.mu.Lock()
	if s.refreshing {
		snap := append([]model.HistoryEntry(nil), s.entries...)
		s.mu.Unlock()
		log.Printf("[History] refresh already pending, returning current snapshot")
		return snap, nil
	}
	s.refreshing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	s.loadMarks(ctx)

	entries, err := s.gw.Jobs(ctx, "", s.limit, 0)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.entries = entries
	snap := append([]model.HistoryEntry(nil), entries...)
	s.mu.Unlock()
	return snap, nil
}

// Entries returns the current list.
func (s *Store) Entries() []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.HistoryEntry(nil), s.entries...)
}

// Filter projects the fetched list by status. Client-side only; no fetch.
func (s *Store) Filter(status string) []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == "" {
		return append([]model.HistoryEntry(nil), s.entries...)
	}
	out := make([]model.HistoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// Downloadable reports whether a download affordance should be shown for an
// entry: completed, not expired, and not remembered as gone.
func (s *Store) Downloadable(e model.HistoryEntry, now time.Time) bool {
	if e.Status != model.StatusCompleted || e.OutputRef == "" || e.Expired(now) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable[e.OutputRef]
}

// Download streams an entry's artifact. An output file remembered as
// unavailable is refused locally without touching the network; a fresh 404
// records the output file so it is never re-attempted automatically.
func (s *Store) Download(ctx context.Context, outputRef string) (io.ReadCloser, error) {
	s.mu.Lock()
	gone := s.unavailable[outputRef]
	s.mu.Unlock()
	if gone {
		return nil, gateway.ErrArtifactNotFound
	}

	rc, err := s.gw.Download(ctx, outputRef)
	if err != nil {
		if errors.Is(err, gateway.ErrArtifactNotFound) {
			s.MarkUnavailable(ctx, outputRef)
		}
		return nil, err
	}
	return rc, nil
}

// MarkUnavailable remembers that an output file is gone, persisting the mark
// when Redis is configured.
func (s *Store) MarkUnavailable(ctx context.Context, outputRef string) {
	s.mu.Lock()
	s.unavailable[outputRef] = true
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.SAdd(ctx, unavailableSetKey, outputRef).Err(); err != nil {
			log.Printf("[History] warning: could not persist unavailable mark for %s: %v", outputRef, err)
		}
	}
}

// loadMarks pulls persisted unavailability marks once per process.
func (s *Store) loadMarks(ctx context.Context) {
	s.mu.Lock()
	loaded := s.marksLoaded
	s.marksLoaded = true
	s.mu.Unlock()
	if loaded || s.redis == nil {
		return
	}

	refs, err := s.redis.SMembers(ctx, unavailableSetKey).Result()
	if err != nil {
		log.Printf("[History] warning: could not load unavailable marks: %v", err)
		return
	}
	s.mu.Lock()
	for _, ref := range refs {
		s.unavailable[ref] = true
	}
	s.mu.Unlock()
}
