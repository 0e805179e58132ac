package mediacache

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// KeyInputs derives the cache key for one cache type. Each type has exactly
// one implementation, so the mapping from inputs to keys is fixed at compile
// time instead of by convention.
//
// All variants funnel through HashComposite: a file content hash is just one
// more token. Keys depend only on the logical inputs, never on filesystem
// metadata such as paths or modification times.
type KeyInputs interface {
	// CacheType returns the type this key belongs to.
	CacheType() Type

	// Derive computes the entry key. File-content inputs are read through fs.
	Derive(fs afero.Fs) (string, error)

	// Describe returns a human-readable description of the inputs, used for
	// listings and diagnostics. It is never part of the key.
	Describe() string
}

// AudioKey keys downloaded audio by its source URL or search query.
type AudioKey struct {
	URLOrQuery string
}

func (k AudioKey) CacheType() Type { return TypeAudio }

func (k AudioKey) Derive(afero.Fs) (string, error) {
	return HashComposite(string(TypeAudio), k.URLOrQuery), nil
}

func (k AudioKey) Describe() string { return k.URLOrQuery }

// StemsKey keys separation output by the bytes of the source audio file.
// Two copies of the same audio under different names share one entry.
type StemsKey struct {
	AudioPath string
}

func (k StemsKey) CacheType() Type { return TypeStems }

func (k StemsKey) Derive(fs afero.Fs) (string, error) {
	digest, err := HashFile(fs, k.AudioPath)
	if err != nil {
		return "", err
	}
	return HashComposite(string(TypeStems), digest), nil
}

func (k StemsKey) Describe() string {
	return fmt.Sprintf("stems of %s", filepath.Base(k.AudioPath))
}

// LyricsKey keys fetched lyrics by the track/artist pair. Both components
// are normalized, so "Creep / Radiohead" and " creep / RADIOHEAD " share
// one entry.
type LyricsKey struct {
	Track  string
	Artist string
}

func (k LyricsKey) CacheType() Type { return TypeLyrics }

func (k LyricsKey) Derive(afero.Fs) (string, error) {
	return HashComposite(string(TypeLyrics), normalizeTerm(k.Track)+"|"+normalizeTerm(k.Artist)), nil
}

func (k LyricsKey) Describe() string {
	return fmt.Sprintf("%s by %s", k.Track, k.Artist)
}

// SubtitlesKey keys generated subtitles by the bytes of the timed-lyrics
// (LRC) file they were rendered from.
type SubtitlesKey struct {
	LRCPath string
}

func (k SubtitlesKey) CacheType() Type { return TypeSubtitles }

func (k SubtitlesKey) Derive(fs afero.Fs) (string, error) {
	digest, err := HashFile(fs, k.LRCPath)
	if err != nil {
		return "", err
	}
	return HashComposite(string(TypeSubtitles), digest), nil
}

func (k SubtitlesKey) Describe() string {
	return fmt.Sprintf("subtitles for %s", filepath.Base(k.LRCPath))
}

// VideoKey keys the final render by the content of the audio and subtitle
// inputs plus the render settings. Background identifies the backdrop: a
// color name, or a background file path with render options baked in.
type VideoKey struct {
	AudioPath     string
	SubtitlesPath string
	Resolution    string // e.g. "1280x720"
	Background    string
}

func (k VideoKey) CacheType() Type { return TypeVideos }

func (k VideoKey) Derive(fs afero.Fs) (string, error) {
	audioDigest, err := HashFile(fs, k.AudioPath)
	if err != nil {
		return "", err
	}
	subsDigest, err := HashFile(fs, k.SubtitlesPath)
	if err != nil {
		return "", err
	}
	return HashComposite(string(TypeVideos), audioDigest, subsDigest, k.Resolution, k.Background), nil
}

func (k VideoKey) Describe() string {
	return fmt.Sprintf("%s render of %s (%s)", k.Resolution, filepath.Base(k.AudioPath), k.Background)
}

// normalizeTerm lowercases and collapses runs of whitespace so incidental
// formatting differences do not split cache entries.
func normalizeTerm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
