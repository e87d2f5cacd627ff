package checksum

import (
	"testing"
	"time"
)

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Errorf("Sum not deterministic: %q vs %q", a, b)
	}
	if a == Sum([]byte("hello!")) {
		t.Error("different content produced the same digest")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprint_EqualIgnoresTimestamps(t *testing.T) {
	data := []byte("content")
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	fp := Fingerprint{Size: int64(len(data)), ModTime: now, Hash: Sum(data)}
	touched := Fingerprint{Size: fp.Size, ModTime: now.Add(time.Hour), Hash: fp.Hash}
	if !fp.Equal(touched) {
		t.Error("touched timestamp with unchanged hash should compare equal")
	}

	changed := Fingerprint{Size: fp.Size, ModTime: now, Hash: Sum([]byte("other"))}
	if fp.Equal(changed) {
		t.Error("different hashes should not compare equal")
	}
}
