package mediacache

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// WithFs sets a custom filesystem for the cache.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	cache, err := mediacache.Open(".cache", mediacache.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithNowFunc sets a custom time function for the cache.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(c *Cache) {
		c.nowFunc = nowFunc
	}
}

// WithLogger sets the logger used for cache diagnostics. The default is the
// process-wide charmbracelet/log logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithDisabled turns the cache into a transparent no-op for this instance:
// lookups always miss and stores return synthetic, non-persisted entries.
// Pipeline code runs identically either way, just slower.
func WithDisabled() Option {
	return func(c *Cache) {
		c.disabled = true
	}
}

// WithMaxBytes sets the size ceiling enforced after each store. Zero (the
// default) disables enforcement.
func WithMaxBytes(maxBytes int64) Option {
	return func(c *Cache) {
		c.maxBytes = maxBytes
	}
}
