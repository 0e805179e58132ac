package mediacache

import (
	"time"
)

// Type identifies one of the artifact categories cached by the pipeline.
// Each type owns its own key derivation rule and its own storage subtree;
// keys of different types never collide.
type Type string

const (
	TypeAudio     Type = "audio"
	TypeStems     Type = "stems"
	TypeLyrics    Type = "lyrics"
	TypeSubtitles Type = "subtitles"
	TypeVideos    Type = "videos"
)

// Types lists every cache type in stable order.
var Types = []Type{TypeAudio, TypeStems, TypeLyrics, TypeSubtitles, TypeVideos}

// ParseType converts a string (e.g. a CLI argument) to a Type.
func ParseType(s string) (Type, bool) {
	t := Type(s)
	return t, t.valid()
}

func (t Type) valid() bool {
	switch t {
	case TypeAudio, TypeStems, TypeLyrics, TypeSubtitles, TypeVideos:
		return true
	}
	return false
}

// Entry is the metadata record for one cached artifact set.
// An entry and its payload files are one unit: either both exist and are
// consistent, or the entry is treated as absent.
type Entry struct {
	Key        string            `json:"key"`
	Type       Type              `json:"type"`
	Source     string            `json:"source,omitempty"`  // human-readable input description, not part of the key
	Payloads   []string          `json:"payloads"`          // payload file names relative to the type directory
	Integrity  map[string]string `json:"integrity"`         // payload name -> content fingerprint
	Size       int64             `json:"sizeBytes"`         // total payload bytes at store time
	CreatedAt  time.Time         `json:"createdAt"`
	AccessedAt time.Time         `json:"accessedAt"`

	paths []string // absolute payload locations, resolved at load time
}

// Paths returns the locations of the entry's payload files in the order they
// were stored. For entries returned by a disabled cache these are the
// producer's original paths; for persisted entries they point into the cache.
func (e *Entry) Paths() []string {
	return e.paths
}
