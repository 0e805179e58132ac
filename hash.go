package mediacache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Default size for the buffer used when hashing and copying files
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
// Cache keys are SHA-256: a key identifies an expensive artifact forever, so
// it needs a collision-resistant, fixed 256-bit digest.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile streams the file at path through SHA-256 and returns the
// hex-encoded digest. A file that cannot be fully read is an error, never a
// truncated digest.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, f, buffer); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashComposite digests an ordered list of string tokens. Every token is
// framed with its length before hashing, so HashComposite("ab", "c") and
// HashComposite("a", "bc") produce different digests.
func HashComposite(parts ...string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d", len(parts))
	for _, part := range parts {
		fmt.Fprintf(h, ":%d:", len(part))
		io.WriteString(h, part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// fingerprintPrefix tags payload fingerprints with the hash they were
// computed with, so the scheme can change without misreading old records.
const fingerprintPrefix = "xxh64:"

// fingerprintFile computes the xxHash64 fingerprint recorded per payload at
// store time and re-checked during validation. Payloads are large media
// files; xxHash keeps integrity sweeps cheap, while the collision-resistant
// digests stay reserved for key derivation.
func fingerprintFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(h, f, buffer); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}

	return fingerprintPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
