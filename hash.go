package phrasebook

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// keySeparator joins key parts. It cannot appear in language codes.
const keySeparator = "\x00"

// CacheKey identifies a cached translation. Equality is exact: the text is
// only trimmed, case and inner whitespace are significant.
type CacheKey struct {
	Text       string
	SourceLang string
	TargetLang string
}

// NormalizeText trims leading and trailing whitespace.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

// NewCacheKey builds a key from raw input text.
func NewCacheKey(text, srcLang, tgtLang string) CacheKey {
	return CacheKey{
		Text:       NormalizeText(text),
		SourceLang: srcLang,
		TargetLang: tgtLang,
	}
}

// String returns the canonical form "src\x00tgt\x00text".
func (k CacheKey) String() string {
	return k.SourceLang + keySeparator + k.TargetLang + keySeparator + k.Text
}

// Digest returns the BLAKE3 hex digest of the canonical form, for backends
// that need short fixed-length keys.
func (k CacheKey) Digest() string {
	sum := blake3.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// ParseCacheKey is the inverse of CacheKey.String.
func ParseCacheKey(s string) (CacheKey, bool) {
	parts := strings.SplitN(s, keySeparator, 3)
	if len(parts) != 3 {
		return CacheKey{}, false
	}
	return CacheKey{SourceLang: parts[0], TargetLang: parts[1], Text: parts[2]}, true
}

// CharCount is the number of characters billed for text.
func CharCount(text string) int64 {
	return int64(utf8.RuneCountInString(text))
}
