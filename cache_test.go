package mediacache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// failingRenameFs fails renames whose destination matches a suffix, leaving
// every other operation to the wrapped filesystem.
type failingRenameFs struct {
	afero.Fs
	failSuffix string
}

func (f *failingRenameFs) Rename(oldname, newname string) error {
	if f.failSuffix != "" && strings.HasSuffix(newname, f.failSuffix) {
		return fmt.Errorf("rename %s: injected failure", newname)
	}
	return f.Fs.Rename(oldname, newname)
}

func newTestCache(t *testing.T, options ...Option) (*Cache, afero.Fs, *testClock) {
	t.Helper()

	fs := afero.NewMemMapFs()
	clock := newTestClock()
	options = append([]Option{
		WithFs(fs),
		WithNowFunc(clock.now),
		WithLogger(log.New(io.Discard)),
	}, options...)

	cache, err := Open(".cache", options...)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	return cache, fs, clock
}

func writeTestFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readTestFile(t *testing.T, fs afero.Fs, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

func mustStore(t *testing.T, cache *Cache, inputs KeyInputs, files ...string) *Entry {
	t.Helper()
	entry, err := cache.Store(inputs, files, inputs.Describe())
	if err != nil {
		t.Fatalf("failed to store %s entry: %v", inputs.CacheType(), err)
	}
	return entry
}

func TestRoundTrip(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "downloads/song.mp3", []byte("source audio"))
	writeTestFile(t, fs, "stems/instrumental.wav", []byte("instrumental stem"))
	writeTestFile(t, fs, "stems/vocals.wav", []byte("vocal stem"))

	key := StemsKey{AudioPath: "downloads/song.mp3"}

	if _, ok := cache.Lookup(key); ok {
		t.Fatal("unexpected hit before store")
	}

	stored := mustStore(t, cache, key, "stems/instrumental.wav", "stems/vocals.wav")
	if stored.Size != int64(len("instrumental stem")+len("vocal stem")) {
		t.Fatalf("wrong stored size: %d", stored.Size)
	}

	entry, ok := cache.Lookup(key)
	if !ok {
		t.Fatal("expected a hit after store")
	}
	paths := entry.Paths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(paths))
	}
	if !bytes.Equal(readTestFile(t, fs, paths[0]), []byte("instrumental stem")) {
		t.Fatal("first payload content mismatch")
	}
	if !bytes.Equal(readTestFile(t, fs, paths[1]), []byte("vocal stem")) {
		t.Fatal("second payload content mismatch")
	}
	if entry.Source != key.Describe() {
		t.Fatalf("wrong source descriptor: %q", entry.Source)
	}
}

func TestMissOnEmpty(t *testing.T) {
	cache, _, _ := newTestCache(t)

	if _, ok := cache.Lookup(AudioKey{URLOrQuery: "https://example.com/watch?v=nope"}); ok {
		t.Fatal("lookup on an empty cache reported a hit")
	}
}

func TestSelfHealing(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "lyrics.lrc", []byte("[00:01.00] creep"))
	writeTestFile(t, fs, "subs.ass", []byte("rendered subtitles"))

	key := SubtitlesKey{LRCPath: "lyrics.lrc"}
	entry := mustStore(t, cache, key, "subs.ass")

	// Lose the payload behind the cache's back.
	if err := fs.Remove(entry.Paths()[0]); err != nil {
		t.Fatalf("failed to remove payload: %v", err)
	}

	if _, ok := cache.Lookup(key); ok {
		t.Fatal("expected a miss after the payload disappeared")
	}

	rows, err := cache.List(TypeSubtitles)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("invalid entry still listed: %+v", rows)
	}
}

func TestSizeMismatchTriggersRehash(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "song.mp3", []byte("audio"))
	writeTestFile(t, fs, "vocals.wav", []byte("vocal stem"))

	key := StemsKey{AudioPath: "song.mp3"}
	entry := mustStore(t, cache, key, "vocals.wav")

	// Corrupt the payload with different-length content: the cheap size
	// check fails, the re-hash runs, and the entry is purged.
	writeTestFile(t, fs, entry.Paths()[0], []byte("truncated"))

	if _, ok := cache.Lookup(key); ok {
		t.Fatal("expected a miss for a corrupted payload")
	}
}

func TestVerifyDetectsSameSizeCorruption(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "song.mp3", []byte("audio"))
	writeTestFile(t, fs, "vocals.wav", []byte("vocal stem"))

	key := StemsKey{AudioPath: "song.mp3"}
	entry := mustStore(t, cache, key, "vocals.wav")

	// Same length, different bytes: ordinary lookups only check existence
	// and size, so this still hits.
	writeTestFile(t, fs, entry.Paths()[0], []byte("vocal spam"))
	if _, ok := cache.Lookup(key); !ok {
		t.Fatal("size-preserving corruption should not fail the cheap check")
	}

	removed, err := cache.Verify(TypeStems)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 entry removed, got %d", removed)
	}
	if _, ok := cache.Lookup(key); ok {
		t.Fatal("expected a miss after the integrity sweep")
	}
}

func TestCorruptMetadataIsAMiss(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "subs.ass", []byte("rendered"))
	key := AudioKey{URLOrQuery: "creep radiohead"}
	mustStore(t, cache, key, "subs.ass")

	derived := deriveKey(t, fs, key)
	writeTestFile(t, fs, cache.metaPath(TypeAudio, derived), []byte("{not json"))

	if _, ok := cache.Lookup(key); ok {
		t.Fatal("corrupt metadata reported as a hit")
	}
	if cache.exists(cache.metaPath(TypeAudio, derived)) {
		t.Fatal("corrupt metadata record was not removed")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "a.lrc", []byte("lyrics a"))
	writeTestFile(t, fs, "b.ass", []byte("subs b"))
	mustStore(t, cache, LyricsKey{Track: "Creep", Artist: "Radiohead"}, "a.lrc")
	mustStore(t, cache, SubtitlesKey{LRCPath: "a.lrc"}, "b.ass")

	count, err := cache.Clear()
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries removed, got %d", count)
	}

	count, err = cache.Clear()
	if err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 entries removed on empty cache, got %d", count)
	}
}

func TestClearSingleType(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "a.lrc", []byte("lyrics"))
	writeTestFile(t, fs, "b.ass", []byte("subs"))
	lyricsKey := LyricsKey{Track: "Creep", Artist: "Radiohead"}
	subsKey := SubtitlesKey{LRCPath: "a.lrc"}
	mustStore(t, cache, lyricsKey, "a.lrc")
	mustStore(t, cache, subsKey, "b.ass")

	count, err := cache.Clear(TypeLyrics)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 entry removed, got %d", count)
	}

	if _, ok := cache.Lookup(lyricsKey); ok {
		t.Fatal("cleared lyrics entry still present")
	}
	if _, ok := cache.Lookup(subsKey); !ok {
		t.Fatal("subtitles entry removed by a lyrics-only clear")
	}
}

func TestLastWriterWins(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	key := AudioKey{URLOrQuery: "creep radiohead"}
	writeTestFile(t, fs, "first.mp3", []byte("first download"))
	writeTestFile(t, fs, "second.mp3", []byte("second download"))

	mustStore(t, cache, key, "first.mp3")
	mustStore(t, cache, key, "second.mp3")

	entry, ok := cache.Lookup(key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !bytes.Equal(readTestFile(t, fs, entry.Paths()[0]), []byte("second download")) {
		t.Fatal("superseded payload still visible")
	}

	stats, err := cache.Stats(TypeAudio)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("expected a single entry after overwrite, got %d", stats.Entries)
	}
}

func TestFailedSupersedeKeepsPriorEntry(t *testing.T) {
	fs := &failingRenameFs{Fs: afero.NewMemMapFs()}
	clock := newTestClock()
	cache, err := Open(".cache", WithFs(fs), WithNowFunc(clock.now), WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}

	key := LyricsKey{Track: "Creep", Artist: "Radiohead"}
	writeTestFile(t, fs, "first.lrc", []byte("first fetch"))
	writeTestFile(t, fs, "second.lrc", []byte("second fetch"))
	mustStore(t, cache, key, "first.lrc")

	// The superseding write stages and places its payloads but cannot commit
	// the metadata record.
	fs.failSuffix = metaSuffix
	_, err = cache.Store(key, []string{"second.lrc"}, key.Describe())
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	fs.failSuffix = ""

	entry, ok := cache.Lookup(key)
	if !ok {
		t.Fatal("prior entry destroyed by the failed superseding write")
	}
	if !bytes.Equal(readTestFile(t, fs, entry.Paths()[0]), []byte("first fetch")) {
		t.Fatal("prior payload content was replaced")
	}

	// The failed write must not leave temp files or orphan payloads behind.
	infos, err := afero.ReadDir(fs, cache.typeDir(TypeLyrics))
	if err != nil {
		t.Fatalf("failed to list type directory: %v", err)
	}
	want := map[string]bool{
		entry.Key + metaSuffix: true,
		entry.Payloads[0]:      true,
	}
	for _, info := range infos {
		if !want[info.Name()] {
			t.Fatalf("leftover file after failed write: %s", info.Name())
		}
	}
}

func TestSupersedeSweepsOldGeneration(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	writeTestFile(t, fs, "song.mp3", []byte("source audio"))
	writeTestFile(t, fs, "instrumental.wav", []byte("instrumental stem"))
	writeTestFile(t, fs, "vocals.wav", []byte("vocal stem"))
	writeTestFile(t, fs, "mix.wav", []byte("remixed stem"))

	key := StemsKey{AudioPath: "song.mp3"}
	mustStore(t, cache, key, "instrumental.wav", "vocals.wav")
	entry := mustStore(t, cache, key, "mix.wav")

	got, ok := cache.Lookup(key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !bytes.Equal(readTestFile(t, fs, got.Paths()[0]), []byte("remixed stem")) {
		t.Fatal("superseded payload still visible")
	}

	// Only the committed generation survives: one metadata record, one payload.
	infos, err := afero.ReadDir(fs, cache.typeDir(TypeStems))
	if err != nil {
		t.Fatalf("failed to list type directory: %v", err)
	}
	want := map[string]bool{
		entry.Key + metaSuffix: true,
		entry.Payloads[0]:      true,
	}
	if len(infos) != len(want) {
		t.Fatalf("expected %d files, found %d", len(want), len(infos))
	}
	for _, info := range infos {
		if !want[info.Name()] {
			t.Fatalf("superseded generation not swept: %s", info.Name())
		}
	}
}

func TestDisabledCacheIsTransparent(t *testing.T) {
	cache, fs, _ := newTestCache(t, WithDisabled())

	writeTestFile(t, fs, "out.lrc", []byte("fetched lyrics"))
	key := LyricsKey{Track: "Creep", Artist: "Radiohead"}

	entry, err := cache.Store(key, []string{"out.lrc"}, key.Describe())
	if err != nil {
		t.Fatalf("disabled store failed: %v", err)
	}
	if entry == nil || len(entry.Paths()) != 1 || entry.Paths()[0] != "out.lrc" {
		t.Fatalf("synthetic entry should point at the producer's files: %+v", entry)
	}
	if entry.Size != int64(len("fetched lyrics")) {
		t.Fatalf("wrong synthetic size: %d", entry.Size)
	}

	if _, ok := cache.Lookup(key); ok {
		t.Fatal("disabled cache reported a hit")
	}

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Entries != 0 || stats.Size != 0 {
		t.Fatalf("disabled store persisted something: %+v", stats)
	}
}

func TestStoreFailureIsWriteError(t *testing.T) {
	cache, _, _ := newTestCache(t)

	_, err := cache.Store(StemsKey{AudioPath: "gone.mp3"}, []string{"also-gone.wav"}, "")
	if err == nil {
		t.Fatal("expected an error for missing inputs")
	}
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected *WriteError, got %T: %v", err, err)
	}
}

func TestLookupTouchesAccessTime(t *testing.T) {
	cache, fs, clock := newTestCache(t)

	writeTestFile(t, fs, "out.lrc", []byte("lyrics"))
	key := LyricsKey{Track: "Creep", Artist: "Radiohead"}
	stored := mustStore(t, cache, key, "out.lrc")

	clock.advance(time.Hour)

	entry, ok := cache.Lookup(key)
	if !ok {
		t.Fatal("expected a hit")
	}
	if !entry.AccessedAt.After(stored.AccessedAt) {
		t.Fatal("hit did not refresh the access time")
	}

	reloaded, err := cache.readEntry(TypeLyrics, entry.Key)
	if err != nil || reloaded == nil {
		t.Fatalf("failed to reload entry: %v", err)
	}
	if !reloaded.AccessedAt.Equal(entry.AccessedAt) {
		t.Fatal("refreshed access time was not persisted")
	}
}

func TestLyricsScenario(t *testing.T) {
	cache, fs, _ := newTestCache(t)

	payload := bytes.Repeat([]byte("x"), 1200)
	writeTestFile(t, fs, "creep.lrc", payload)

	key := LyricsKey{Track: "Creep", Artist: "Radiohead"}
	mustStore(t, cache, key, "creep.lrc")

	stats, err := cache.Stats(TypeLyrics)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	ts := stats.PerType[TypeLyrics]
	if ts.Entries != 1 || ts.Size != 1200 {
		t.Fatalf("expected 1 entry of 1200 bytes, got %+v", ts)
	}

	rows, err := cache.List(TypeLyrics)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(rows))
	}
	if rows[0].Source != "Creep by Radiohead" || rows[0].Size != 1200 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()

	var cfgErr *ConfigError
	if _, err := Open("", WithFs(fs)); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError for empty root, got %v", err)
	}
	if _, err := Open(".cache", WithFs(fs), WithMaxBytes(-1)); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError for negative ceiling, got %v", err)
	}
}
