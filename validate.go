package mediacache

// InvalidReason explains why a validated entry was rejected.
type InvalidReason string

const (
	// MissingPayload means a referenced payload file no longer exists or
	// cannot be read.
	MissingPayload InvalidReason = "missing payload"

	// HashMismatch means a payload's content no longer matches the
	// fingerprint recorded at store time.
	HashMismatch InvalidReason = "hash mismatch"
)

// validate decides whether an entry is still usable. The existence check runs
// on every call; re-fingerprinting the payload bytes is expensive for large
// media files, so it only happens when verify is set or when the on-disk size
// no longer matches the recorded size.
func (c *Cache) validate(e *Entry, verify bool) (InvalidReason, bool) {
	var total int64
	for _, p := range e.paths {
		info, err := c.fs.Stat(p)
		if err != nil || info.IsDir() {
			return MissingPayload, false
		}
		total += info.Size()
	}

	if !verify && total == e.Size {
		return "", true
	}

	for i, p := range e.paths {
		want := e.Integrity[e.Payloads[i]]
		if want == "" {
			// Entries written before fingerprinting have nothing to check.
			continue
		}
		got, err := fingerprintFile(c.fs, p)
		if err != nil {
			return MissingPayload, false
		}
		if got != want {
			return HashMismatch, false
		}
	}

	return "", true
}

// Verify re-fingerprints every payload of every entry of the given types
// (all types when none are given), removing entries that fail. This is the
// periodic integrity sweep; ordinary lookups only check existence.
// It returns the number of entries removed.
func (c *Cache) Verify(types ...Type) (int, error) {
	if len(types) == 0 {
		types = Types
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, t := range types {
		if !t.valid() {
			return removed, ErrUnknownType
		}

		type victim struct {
			key    string
			reason InvalidReason
		}
		var victims []victim

		if err := c.walkEntries(t, func(e *Entry) error {
			if reason, ok := c.validate(e, true); !ok {
				victims = append(victims, victim{key: e.Key, reason: reason})
			}
			return nil
		}); err != nil {
			return removed, err
		}

		for _, v := range victims {
			c.logger.Warn("integrity sweep removing entry", "type", t, "key", v.key, "reason", v.reason)
			if err := c.removeEntry(t, v.key); err != nil {
				return removed, err
			}
			removed++
		}
	}

	return removed, nil
}
