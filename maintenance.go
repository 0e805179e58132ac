package mediacache

import (
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// locker serializes eviction sweeps. Stores and lookups are never locked
// across processes (racing stores are an accepted last-writer-wins race);
// only the sweep takes a lock, so two processes do not both walk the cache
// deleting the same entries.
type locker interface {
	tryLock() (bool, error)
	unlock() error
}

// noopLocker performs no locking. Used for memory-backed caches and tests.
type noopLocker struct{}

func (noopLocker) tryLock() (bool, error) { return true, nil }
func (noopLocker) unlock() error          { return nil }

// flockLocker guards sweeps with an advisory file lock.
type flockLocker struct {
	fl *flock.Flock
}

func newFlockLocker(path string) *flockLocker {
	return &flockLocker{fl: flock.New(path)}
}

func (l *flockLocker) tryLock() (bool, error) { return l.fl.TryLock() }
func (l *flockLocker) unlock() error          { return l.fl.Unlock() }

// EnforceLimit removes least-recently-used entries until the aggregate size
// across all types is at or below maxBytes, or the cache is empty. Candidates
// are ordered by ascending access time, ties broken by ascending creation
// time, then by key. Aggregate size is recomputed from the entries on every
// call rather than tracked incrementally, so it cannot drift.
//
// Returns the number of entries evicted. If another process is already
// sweeping, the call returns immediately with 0.
func (c *Cache) EnforceLimit(maxBytes int64) (int, error) {
	if maxBytes < 0 {
		return 0, &ConfigError{Reason: "negative size ceiling"}
	}

	ok, err := c.sweep.tryLock()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		_ = c.sweep.unlock()
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []*Entry
	var total int64
	for _, t := range Types {
		if err := c.walkEntries(t, func(e *Entry) error {
			entries = append(entries, e)
			total += e.Size
			return nil
		}); err != nil {
			return 0, err
		}
	}

	if total <= maxBytes {
		return 0, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.AccessedAt.Equal(b.AccessedAt) {
			return a.AccessedAt.Before(b.AccessedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Key < b.Key
	})

	evicted := 0
	for _, e := range entries {
		if total <= maxBytes {
			break
		}
		if err := c.removeEntry(e.Type, e.Key); err != nil {
			return evicted, err
		}
		total -= e.Size
		evicted++
		c.logger.Debug("evicted cache entry", "type", e.Type, "key", e.Key, "bytes", e.Size, "lastAccess", e.AccessedAt)
	}

	if evicted > 0 {
		c.logger.Info("cache size enforced", "evicted", evicted, "bytes", total, "ceiling", maxBytes)
	}
	return evicted, nil
}

// PruneUnused removes entries of all types not accessed within the given
// duration. Returns the number of entries removed.
func (c *Cache) PruneUnused(notAccessedSince time.Duration) (int, error) {
	cutoff := c.now().Add(-notAccessedSince)

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, t := range Types {
		var keys []string
		if err := c.walkEntries(t, func(e *Entry) error {
			if e.AccessedAt.Before(cutoff) {
				keys = append(keys, e.Key)
			}
			return nil
		}); err != nil {
			return count, err
		}

		for _, key := range keys {
			if err := c.removeEntry(t, key); err != nil {
				return count, err
			}
			count++
		}
	}

	return count, nil
}
