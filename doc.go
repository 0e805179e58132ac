/*
Package mediacache provides a content-addressable artifact cache for
multi-stage media pipelines.

Each pipeline stage (audio download, stem separation, lyrics fetch, subtitle
generation, video render) is expensive and deterministic given its inputs.
mediacache memoizes their outputs on the local filesystem so repeated runs
with identical inputs skip the work entirely.

# Core Architecture

The cache keeps one storage subtree per artifact type, each entry stored as a
JSON metadata record next to its payload files:

	.cache/
	├── audio/
	│   ├── <key>.meta
	│   └── <key>__a0
	├── stems/
	│   ├── <key>.meta
	│   ├── <key>__a0       (instrumental)
	│   └── <key>__a1       (vocals)
	├── lyrics/
	├── subtitles/
	└── videos/

Keys are SHA-256 digests derived per type: from a URL or query string
(audio), from file content (stems, subtitles), from a normalized track/artist
pair (lyrics), or from a composite of content hashes and render settings
(videos). Payload integrity is tracked separately with fast xxHash64
fingerprints.

Writes are atomic: payloads and metadata land under temporary names and are
renamed into place, metadata last, so concurrent readers see an entry either
fully or not at all. A superseding write places its payloads under the
alternate generation (a/b in the payload name), making the metadata rename the
commit point: a failed write leaves the prior entry fully intact, and the
superseded generation is swept only after a successful commit.

# Basic Usage

	cache, err := mediacache.Open(".cache")
	if err != nil {
	    log.Fatal(err)
	}

	key := mediacache.StemsKey{AudioPath: "downloads/song.mp3"}
	if entry, ok := cache.Lookup(key); ok {
	    paths := entry.Paths() // instrumental, vocals
	    // reuse cached stems
	} else {
	    instrumental, vocals := separate("downloads/song.mp3") // expensive
	    entry, err := cache.Store(key, []string{instrumental, vocals}, key.Describe())
	    if err != nil {
	        // degraded, not fatal: the stems are still usable, just not cached
	    }
	}

A miss is never an error; only persistence failures surface, as *WriteError,
and even those should not abort the pipeline. Entries whose payloads have
gone missing or no longer match their fingerprints are removed automatically
and reported as misses.

# Maintenance

Stats, List, Clear, Verify and EnforceLimit make up the management surface.
EnforceLimit evicts least-recently-used entries until the cache fits the
configured ceiling; it runs opportunistically after each store. The
cmd/mediacache CLI exposes all of it.

# Concurrency

The cache is a synchronous library safe for concurrent use within a process.
Across processes, atomic renames keep entries consistent; concurrent stores
for the same key are a benign last-writer-wins race, since equal keys imply
interchangeable payloads.
*/
package mediacache
