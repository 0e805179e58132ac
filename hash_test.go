package mediacache

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("some audio bytes"))
	b := HashBytes([]byte("some audio bytes"))
	if a != b {
		t.Fatalf("HashBytes not deterministic: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars (256 bits), got %d", len(a))
	}
	if a == HashBytes([]byte("other bytes")) {
		t.Fatal("different inputs produced the same digest")
	}
}

func TestHashCompositeFraming(t *testing.T) {
	if HashComposite("ab", "c") == HashComposite("a", "bc") {
		t.Fatal("token boundaries are ambiguous")
	}
	if HashComposite("ab", "c") == HashComposite("abc") {
		t.Fatal("concatenation collides with token list")
	}
	if HashComposite("a", "b") != HashComposite("a", "b") {
		t.Fatal("HashComposite not deterministic")
	}
	if HashComposite() == HashComposite("") {
		t.Fatal("empty list collides with single empty token")
	}
}

func TestHashFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := []byte(strings.Repeat("la", 40000)) // larger than one copy buffer

	if err := afero.WriteFile(fs, "one/song.mp3", content, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := afero.WriteFile(fs, "two/copy.mp3", content, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	d1, err := HashFile(fs, "one/song.mp3")
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	d2, err := HashFile(fs, "two/copy.mp3")
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	if d1 != d2 {
		t.Fatal("digest depends on path, not content")
	}
	if d1 != HashBytes(content) {
		t.Fatal("HashFile disagrees with HashBytes over the same content")
	}
}

func TestHashFileMissing(t *testing.T) {
	fs := afero.NewMemMapFs()

	if _, err := HashFile(fs, "nope.mp3"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestFingerprintFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "stem.wav", []byte("pcm data"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	fp, err := fingerprintFile(fs, "stem.wav")
	if err != nil {
		t.Fatalf("fingerprintFile failed: %v", err)
	}
	if !strings.HasPrefix(fp, fingerprintPrefix) {
		t.Fatalf("fingerprint %q missing scheme prefix", fp)
	}

	again, err := fingerprintFile(fs, "stem.wav")
	if err != nil {
		t.Fatalf("fingerprintFile failed: %v", err)
	}
	if fp != again {
		t.Fatal("fingerprint not deterministic")
	}
}
