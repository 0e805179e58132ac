package mediacache

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// Cache is the façade each pipeline stage talks to. It derives keys, persists
// entries atomically, validates hits, and keeps the cache within its size
// ceiling. A miss is never an error: stages fall back to doing the work.
type Cache struct {
	root     string
	fs       afero.Fs
	nowFunc  NowFunc
	logger   *log.Logger
	mu       sync.RWMutex
	disabled bool
	maxBytes int64
	sweep    locker
}

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// Option defines a function that configures a Cache.
type Option func(*Cache)

// Open creates a cache rooted at the given directory, creating one subtree
// per cache type. Configuration problems (empty root, negative size ceiling)
// are rejected here and never surface mid-run.
func Open(root string, options ...Option) (*Cache, error) {
	cache := &Cache{
		root:    root,
		fs:      afero.NewOsFs(),
		nowFunc: time.Now,
		logger:  log.Default(),
	}

	// Apply options
	for _, option := range options {
		option(cache)
	}

	if strings.TrimSpace(root) == "" {
		return nil, &ConfigError{Reason: "cache root directory is empty"}
	}
	if cache.maxBytes < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("negative size ceiling %d", cache.maxBytes)}
	}

	for _, t := range Types {
		if err := cache.fs.MkdirAll(cache.typeDir(t), 0o755); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("cannot create %s directory: %v", t, err)}
		}
	}

	if cache.sweep == nil {
		// Eviction sweeps coordinate across processes via flock, which only
		// exists on a real filesystem. Memory-backed caches sweep unguarded.
		if _, ok := cache.fs.(*afero.OsFs); ok {
			cache.sweep = newFlockLocker(filepath.Join(root, ".sweep.lock"))
		} else {
			cache.sweep = noopLocker{}
		}
	}

	return cache, nil
}

// OpenFromConfig opens a cache using an environment-derived Config.
// Additional options are applied after the config-derived ones, so a per-run
// override (e.g. WithDisabled) wins without mutating persisted configuration.
func OpenFromConfig(cfg Config, options ...Option) (*Cache, error) {
	all := []Option{WithMaxBytes(cfg.MaxBytes())}
	if !cfg.Enabled {
		all = append(all, WithDisabled())
	}
	all = append(all, options...)
	return Open(cfg.Dir, all...)
}

// OpenTemp creates an in-memory cache for testing.
func OpenTemp() *Cache {
	cache, err := Open(".cache", WithFs(afero.NewMemMapFs()))
	if err != nil {
		panic(fmt.Sprintf("failed to create temp cache: %v", err))
	}
	return cache
}

// Lookup retrieves the entry for the given key inputs. It returns
// (entry, true) only when the entry exists and its payloads pass validation;
// everything else, including a disabled cache, unreadable metadata, or a
// failed key derivation, is reported as a miss. A hit refreshes the entry's
// access time.
func (c *Cache) Lookup(inputs KeyInputs) (*Entry, bool) {
	if c.disabled || !inputs.CacheType().valid() {
		return nil, false
	}
	t := inputs.CacheType()

	key, err := inputs.Derive(c.fs)
	if err != nil {
		c.logger.Debug("key derivation failed", "type", t, "err", err)
		return nil, false
	}

	// A hit rewrites the metadata record and invalid entries are removed in
	// place, so even lookups take the write lock.
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.readEntry(t, key)
	if err != nil {
		c.logger.Warn("removing unreadable cache entry", "type", t, "key", key, "err", err)
		_ = c.removeEntry(t, key)
		return nil, false
	}
	if e == nil {
		return nil, false
	}

	if reason, ok := c.validate(e, false); !ok {
		c.logger.Debug("removing invalid cache entry", "type", t, "key", key, "reason", reason)
		_ = c.removeEntry(t, key)
		return nil, false
	}

	e.AccessedAt = c.now()
	if err := c.saveMeta(e); err != nil {
		// The hit is still good; only the access time is stale.
		c.logger.Warn("failed to update access time", "type", t, "key", key, "err", err)
	}

	c.logger.Debug("cache hit", "type", t, "key", key, "source", e.Source)
	return e, true
}

// Store persists the producer's output files under the derived key and
// returns the stored entry. An existing entry for the same key is atomically
// superseded (last writer wins). With caching disabled it returns a
// synthetic, non-persisted entry pointing at the original files, so callers
// need not special-case the disabled path.
//
// Failures are *WriteError: the caller keeps its produced result and
// proceeds as if caching were off for this call.
func (c *Cache) Store(inputs KeyInputs, producedFiles []string, source string) (*Entry, error) {
	t := inputs.CacheType()
	if !t.valid() {
		return nil, &WriteError{Type: t, Err: ErrUnknownType}
	}
	if len(producedFiles) == 0 {
		return nil, &WriteError{Type: t, Err: errors.New("no payload files")}
	}

	key, err := inputs.Derive(c.fs)
	if err != nil {
		return nil, &WriteError{Type: t, Err: err}
	}

	if c.disabled {
		return c.syntheticEntry(t, key, producedFiles, source), nil
	}

	now := c.now()
	e := &Entry{
		Key:        key,
		Type:       t,
		Source:     source,
		CreatedAt:  now,
		AccessedAt: now,
	}

	// Hashing is the expensive part; keep it outside the lock.
	fingerprints := make([]string, len(producedFiles))
	for i, src := range producedFiles {
		info, err := c.fs.Stat(src)
		if err != nil {
			return nil, &WriteError{Type: t, Key: key, Err: err}
		}
		e.Size += info.Size()

		fp, err := fingerprintFile(c.fs, src)
		if err != nil {
			return nil, &WriteError{Type: t, Key: key, Err: err}
		}
		fingerprints[i] = fp
	}

	c.mu.Lock()
	gen := c.nextGen(t, key)
	e.Payloads = make([]string, len(producedFiles))
	e.Integrity = make(map[string]string, len(producedFiles))
	for i := range producedFiles {
		name := payloadName(key, gen, i)
		e.Payloads[i] = name
		e.Integrity[name] = fingerprints[i]
	}
	err = c.writeEntry(e, producedFiles)
	c.mu.Unlock()
	if err != nil {
		return nil, &WriteError{Type: t, Key: key, Err: err}
	}

	e.paths = make([]string, len(e.Payloads))
	for i, name := range e.Payloads {
		e.paths[i] = filepath.Join(c.typeDir(t), name)
	}

	c.logger.Debug("cache store", "type", t, "key", key, "bytes", e.Size, "source", source)

	// Opportunistic size enforcement: the hit path stays cheap.
	if c.maxBytes > 0 {
		if _, err := c.EnforceLimit(c.maxBytes); err != nil {
			c.logger.Warn("size enforcement failed", "err", err)
		}
	}

	return e, nil
}

// Remove deletes the entry for the given key inputs, if present.
func (c *Cache) Remove(inputs KeyInputs) error {
	t := inputs.CacheType()
	if !t.valid() {
		return ErrUnknownType
	}
	key, err := inputs.Derive(c.fs)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeEntry(t, key)
}

// Clear removes every entry of the given types; with no types it clears the
// whole cache. It returns the number of entries removed and is idempotent:
// clearing an empty cache removes 0 entries and succeeds.
func (c *Cache) Clear(types ...Type) (int, error) {
	if len(types) == 0 {
		types = Types
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, t := range types {
		if !t.valid() {
			return count, fmt.Errorf("%w: %q", ErrUnknownType, t)
		}

		var keys []string
		if err := c.walkEntries(t, func(e *Entry) error {
			keys = append(keys, e.Key)
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

	if count > 0 {
		c.logger.Info("cache cleared", "entries", count)
	}
	return count, nil
}

// syntheticEntry mirrors what Store would have recorded, without touching
// disk. Sizes come from the producer's files; fingerprints are skipped since
// nothing will ever validate against them.
func (c *Cache) syntheticEntry(t Type, key string, files []string, source string) *Entry {
	now := c.now()
	e := &Entry{
		Key:        key,
		Type:       t,
		Source:     source,
		Payloads:   make([]string, len(files)),
		CreatedAt:  now,
		AccessedAt: now,
		paths:      append([]string(nil), files...),
	}
	for i, f := range files {
		e.Payloads[i] = filepath.Base(f)
		if info, err := c.fs.Stat(f); err == nil {
			e.Size += info.Size()
		}
	}
	return e
}

// Disabled reports whether the cache is a transparent no-op.
func (c *Cache) Disabled() bool {
	return c.disabled
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// now returns the current time.
func (c *Cache) now() time.Time {
	return c.nowFunc()
}

// exists reports whether a path exists, swallowing stat errors.
func (c *Cache) exists(path string) bool {
	ok, _ := afero.Exists(c.fs, path)
	return ok
}
