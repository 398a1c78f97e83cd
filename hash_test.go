package phrasebook

import "testing"

func TestNewCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple text", "ありがとう", "ありがとう"},
		{"leading whitespace", "  ありがとう", "ありがとう"},
		{"trailing whitespace", "ありがとう\n", "ありがとう"},
		{"inner whitespace kept", "おはよう  ございます", "おはよう  ございます"},
		{"case kept", " Hello ", "Hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewCacheKey(tt.input, "ja", "ko")
			if key.Text != tt.expected {
				t.Errorf("NewCacheKey(%q).Text = %q, want %q", tt.input, key.Text, tt.expected)
			}
		})
	}
}

func TestCacheKeyEquality(t *testing.T) {
	a := NewCacheKey(" hello ", "ja", "ko")
	b := NewCacheKey("hello", "ja", "ko")
	if a != b {
		t.Error("keys differing only in outer whitespace should be equal")
	}

	if NewCacheKey("Hello", "ja", "ko") == b {
		t.Error("keys should be case-sensitive")
	}
	if NewCacheKey("hello", "ko", "ja") == b {
		t.Error("keys should include the direction")
	}
}

func TestCacheKeyStringRoundTrip(t *testing.T) {
	key := NewCacheKey("ありがとう", "ja", "ko")

	parsed, ok := ParseCacheKey(key.String())
	if !ok {
		t.Fatal("ParseCacheKey failed")
	}
	if parsed != key {
		t.Errorf("ParseCacheKey() = %+v, want %+v", parsed, key)
	}

	if _, ok := ParseCacheKey("no separators"); ok {
		t.Error("ParseCacheKey should reject malformed input")
	}
}

func TestCacheKeyDigest(t *testing.T) {
	key := NewCacheKey("ありがとう", "ja", "ko")

	digest := key.Digest()
	// BLAKE3-256 = 64 hex chars
	if len(digest) != 64 {
		t.Errorf("Digest() length = %d, want 64", len(digest))
	}
	if digest != NewCacheKey(" ありがとう ", "ja", "ko").Digest() {
		t.Error("Digest should be stable for equal keys")
	}
	if digest == NewCacheKey("ありがとう", "ko", "ja").Digest() {
		t.Error("Digest should differ for different keys")
	}
}

func TestCharCount(t *testing.T) {
	if n := CharCount("ありがとう"); n != 5 {
		t.Errorf("CharCount = %d, want 5", n)
	}
	if n := CharCount("hello"); n != 5 {
		t.Errorf("CharCount = %d, want 5", n)
	}
}
