package mediacache

import (
	"sort"
	"time"
)

// TypeStats summarizes one cache type.
type TypeStats struct {
	Entries int
	Size    int64
}

// Stats summarizes the whole cache, with a per-type breakdown.
type Stats struct {
	Entries int
	Size    int64
	PerType map[Type]TypeStats
}

// Stats reports entry counts and sizes for the given types, or for every
// type when none are given.
func (c *Cache) Stats(types ...Type) (Stats, error) {
	if len(types) == 0 {
		types = Types
	}

	// walkEntries purges corrupt records, so the walk needs the write lock.
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{PerType: make(map[Type]TypeStats, len(types))}
	for _, t := range types {
		if !t.valid() {
			return Stats{}, ErrUnknownType
		}

		var ts TypeStats
		if err := c.walkEntries(t, func(e *Entry) error {
			ts.Entries++
			ts.Size += e.Size
			return nil
		}); err != nil {
			return Stats{}, err
		}

		stats.PerType[t] = ts
		stats.Entries += ts.Entries
		stats.Size += ts.Size
	}

	return stats, nil
}

// ListEntry is one row of the management listing.
type ListEntry struct {
	Key        string
	Source     string
	Size       int64
	CreatedAt  time.Time
	AccessedAt time.Time
}

// List returns the entries of a type sorted most-recently-used first, for
// operator inspection.
func (c *Cache) List(t Type) ([]ListEntry, error) {
	if !t.valid() {
		return nil, ErrUnknownType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var rows []ListEntry
	if err := c.walkEntries(t, func(e *Entry) error {
		rows = append(rows, ListEntry{
			Key:        e.Key,
			Source:     e.Source,
			Size:       e.Size,
			CreatedAt:  e.CreatedAt,
			AccessedAt: e.AccessedAt,
		})
		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].AccessedAt.Equal(rows[j].AccessedAt) {
			return rows[i].AccessedAt.After(rows[j].AccessedAt)
		}
		return rows[i].Key < rows[j].Key
	})

	return rows, nil
}

// PayloadStatus describes one payload path checked by Inspect.
type PayloadStatus struct {
	Path   string
	Exists bool
	Size   int64
}

// Report explains what a lookup for the given inputs would find: the derived
// key, the metadata record's location, and every candidate payload path with
// its status. It is a diagnostic wrapper over the lookup/validate path and
// mutates nothing — an invalid entry is reported, not purged.
type Report struct {
	Type       Type
	Key        string
	Source     string
	MetaPath   string
	MetaExists bool
	Payloads   []PayloadStatus
}

// Inspect builds a Report for the given key inputs. Intended for the CLI's
// debugging surface, e.g. explaining why a stems separation result is not
// being found.
func (c *Cache) Inspect(inputs KeyInputs) (Report, error) {
	t := inputs.CacheType()
	if !t.valid() {
		return Report{}, ErrUnknownType
	}

	key, err := inputs.Derive(c.fs)
	if err != nil {
		return Report{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	r := Report{
		Type:     t,
		Key:      key,
		MetaPath: c.metaPath(t, key),
	}
	r.MetaExists = c.exists(r.MetaPath)
	if !r.MetaExists {
		return r, nil
	}

	e, err := c.readEntry(t, key)
	if err != nil || e == nil {
		return r, err
	}
	r.Source = e.Source

	for _, p := range e.paths {
		ps := PayloadStatus{Path: p}
		if info, statErr := c.fs.Stat(p); statErr == nil && !info.IsDir() {
			ps.Exists = true
			ps.Size = info.Size()
		}
		r.Payloads = append(r.Payloads, ps)
	}

	return r, nil
}
