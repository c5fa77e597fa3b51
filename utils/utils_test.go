package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("same content")
	b := ContentHash("same content")
	if a != b {
		t.Fatalf("hashes differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if ContentHash("other content") == a {
		t.Error("different content produced the same hash")
	}
}

func TestHashPrefix(t *testing.T) {
	digest := ContentHash("x")
	if got := HashPrefix(digest, 8); got != digest[:8] {
		t.Errorf("HashPrefix = %q", got)
	}
	if got := HashPrefix("abc", 8); got != "abc" {
		t.Errorf("short digest: got %q, want whole digest", got)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("compressible payload text ", 100))

	for _, algo := range []CompressionAlgorithm{CompressionNone, CompressionGzip, CompressionBrotli} {
		compressed, err := CompressData(payload, algo)
		if err != nil {
			t.Fatalf("%s compress: %v", algo, err)
		}
		restored, err := DecompressData(compressed, algo)
		if err != nil {
			t.Fatalf("%s decompress: %v", algo, err)
		}
		if !bytes.Equal(restored, payload) {
			t.Errorf("%s round trip corrupted data", algo)
		}
		if algo != CompressionNone && len(compressed) >= len(payload) {
			t.Errorf("%s did not shrink repetitive payload", algo)
		}
	}
}

func TestGetBestCompression(t *testing.T) {
	if got := GetBestCompression([]byte("tiny")); got != CompressionNone {
		t.Errorf("small payload: got %s, want none", got)
	}
	big := []byte(strings.Repeat("a", 2048))
	if got := GetBestCompression(big); got != CompressionBrotli {
		t.Errorf("large payload: got %s, want brotli", got)
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	cases := map[string]string{
		"Bearer abc.def.ghi": "abc.def.ghi",
		"bearer abc":         "",
		"Basic abc":          "",
		"Bearer":             "",
		"":                   "",
	}
	for header, want := range cases {
		if got := ExtractTokenFromHeader(header); got != want {
			t.Errorf("ExtractTokenFromHeader(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-password", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("s3cret-password", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong-password", hash) {
		t.Error("wrong password accepted")
	}
}
