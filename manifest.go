package mediacache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// metaSuffix marks entry metadata records inside a type directory.
const metaSuffix = ".meta"

// typeDir returns the storage subtree for a cache type.
func (c *Cache) typeDir(t Type) string {
	return filepath.Join(c.root, string(t))
}

// metaPath returns the path of the metadata record for (type, key).
func (c *Cache) metaPath(t Type, key string) string {
	return filepath.Join(c.typeDir(t), key+metaSuffix)
}

// Payload generations. A superseding write lands its files under the other
// generation, so the live entry's payloads are never touched before the
// metadata commit.
const (
	genA = "a"
	genB = "b"
)

// payloadName returns the file name of the n-th payload for a key within a
// generation.
func payloadName(key, gen string, n int) string {
	return fmt.Sprintf("%s__%s%d", key, gen, n)
}

// nextGen returns the payload generation a new write for (type, key) should
// use: the opposite of the live entry's, or generation A when there is none.
// Callers must hold the write lock.
func (c *Cache) nextGen(t Type, key string) string {
	e, err := c.readEntry(t, key)
	if err != nil || e == nil || len(e.Payloads) == 0 {
		return genA
	}
	if strings.HasPrefix(e.Payloads[0], key+"__"+genA) {
		return genB
	}
	return genA
}

// writeEntry copies the payload sources into the type directory and persists
// the metadata record. Everything lands under a temporary name first and is
// renamed into place, metadata last: a concurrent reader either sees no
// metadata record (absent) or a record whose payloads are fully written
// (present), never a half-written entry.
//
// The metadata rename is the commit point. The new payloads live in their own
// generation, so on any failure only this write's temporary and renamed files
// are removed; a prior entry, metadata and payloads both, is left untouched.
// Only after a successful commit is the superseded generation swept.
func (c *Cache) writeEntry(e *Entry, sources []string) error {
	dir := c.typeDir(e.Type)

	var temps []string
	var finals []string
	cleanup := func() {
		for _, p := range append(temps, finals...) {
			if p != "" {
				_ = c.fs.Remove(p)
			}
		}
	}

	for i, src := range sources {
		tmp := filepath.Join(dir, e.Payloads[i]+".tmp")
		if err := c.copyFile(src, tmp); err != nil {
			cleanup()
			return fmt.Errorf("failed to stage payload %s: %w", src, err)
		}
		temps = append(temps, tmp)
	}

	for i := range sources {
		dst := filepath.Join(dir, e.Payloads[i])
		if err := c.fs.Rename(temps[i], dst); err != nil {
			cleanup()
			return fmt.Errorf("failed to place payload %d: %w", i, err)
		}
		temps[i] = "" // renamed away, nothing left to clean up
		finals = append(finals, dst)
	}

	if err := c.saveMeta(e); err != nil {
		cleanup()
		return err
	}

	// The committed record is now the source of truth; anything else under
	// this key's prefix is a superseded generation or a shrunk entry's
	// leftovers.
	live := make(map[string]bool, len(e.Payloads))
	for _, name := range e.Payloads {
		live[name] = true
	}
	if infos, err := afero.ReadDir(c.fs, dir); err == nil {
		prefix := e.Key + "__"
		for _, info := range infos {
			name := info.Name()
			if !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, ".tmp") || live[name] {
				continue
			}
			_ = c.fs.Remove(filepath.Join(dir, name))
		}
	}

	return nil
}

// saveMeta writes the metadata record via a temporary file and a single
// atomic rename.
func (c *Cache) saveMeta(e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	metaPath := c.metaPath(e.Type, e.Key)
	tmpPath := metaPath + ".tmp"
	if err := afero.WriteFile(c.fs, tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := c.fs.Rename(tmpPath, metaPath); err != nil {
		_ = c.fs.Remove(tmpPath)
		return fmt.Errorf("failed to place metadata: %w", err)
	}

	return nil
}

// readEntry loads the metadata record for (type, key).
// Returns (nil, nil) when the entry is absent and an error wrapping
// errCorruptEntry when the record cannot be decoded.
func (c *Cache) readEntry(t Type, key string) (*Entry, error) {
	data, err := afero.ReadFile(c.fs, c.metaPath(t, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", errCorruptEntry, t, key, err)
	}
	if e.Key != key || e.Type != t {
		return nil, fmt.Errorf("%w: %s/%s: record does not match its location", errCorruptEntry, t, key)
	}

	e.paths = make([]string, len(e.Payloads))
	for i, name := range e.Payloads {
		e.paths[i] = filepath.Join(c.typeDir(t), name)
	}

	return &e, nil
}

// removeEntry deletes the metadata record and every referenced payload file.
// The metadata goes first so concurrent readers lose visibility before the
// payloads disappear. Already-missing files are fine; removal is idempotent.
func (c *Cache) removeEntry(t Type, key string) error {
	e, err := c.readEntry(t, key)

	if rmErr := c.fs.Remove(c.metaPath(t, key)); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("failed to remove metadata: %w", rmErr)
	}

	if e != nil {
		for _, p := range e.paths {
			if rmErr := c.fs.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("failed to remove payload: %w", rmErr)
			}
		}
		return nil
	}

	if err != nil {
		// Corrupt record: the payload names are unknown, so sweep by prefix.
		infos, listErr := afero.ReadDir(c.fs, c.typeDir(t))
		if listErr != nil {
			return nil
		}
		for _, info := range infos {
			if strings.HasPrefix(info.Name(), key+"__") {
				_ = c.fs.Remove(filepath.Join(c.typeDir(t), info.Name()))
			}
		}
	}

	return nil
}

// walkEntries calls fn for every entry of a type, ordered by key. Corrupt
// metadata records are purged and skipped, never surfaced; callers must hold
// the write lock. The walk reads one record at a time, so callers may stop
// early by returning an error.
func (c *Cache) walkEntries(t Type, fn func(*Entry) error) error {
	infos, err := afero.ReadDir(c.fs, c.typeDir(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list %s cache: %w", t, err)
	}

	// ReadDir returns names sorted, and keys are fixed-length hex, so the
	// iteration order is the key order.
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, metaSuffix)

		e, err := c.readEntry(t, key)
		if err != nil {
			c.logger.Warn("purging unreadable cache entry", "type", t, "key", key, "err", err)
			_ = c.removeEntry(t, key)
			continue
		}
		if e == nil {
			continue
		}

		if err := fn(e); err != nil {
			return err
		}
	}

	return nil
}

// copyFile copies a file from src to dst through the cache's filesystem.
func (c *Cache) copyFile(src, dst string) error {
	srcFile, err := c.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := c.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	_, err = io.CopyBuffer(dstFile, srcFile, buffer)
	closeErr := dstFile.Close()
	if err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to flush destination: %w", closeErr)
	}

	return nil
}
