package phrasebook

import "strings"

// LanguageNames maps base language codes to human-readable names for AI prompts.
var LanguageNames = map[string]string{
	"ja": "Japanese",
	"ko": "Korean",
	"en": "English",
	"zh": "Chinese",
	"de": "German",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"vi": "Vietnamese",
	"th": "Thai",
	"id": "Indonesian",
}

// GetLanguageName returns the human-readable name for a language code.
// Falls back to the code itself if not found.
func GetLanguageName(langCode string) string {
	if name, ok := LanguageNames[BaseLang(langCode)]; ok {
		return name
	}
	return langCode
}

// BaseLang extracts the lower-case base language code
// (e.g., "ja" from "ja_JP" or "ja-JP").
func BaseLang(lang string) string {
	lang = strings.ReplaceAll(strings.TrimSpace(lang), "-", "_")
	base, _, _ := strings.Cut(lang, "_")
	return strings.ToLower(base)
}

// SameLanguage reports whether two codes share a base language.
func SameLanguage(a, b string) bool {
	return BaseLang(a) == BaseLang(b)
}

// LanguagePair is the deployment's configured source and target language.
type LanguagePair struct {
	Source string
	Target string
}

// Accepts reports whether src→tgt is the pair in either direction.
func (p LanguagePair) Accepts(src, tgt string) bool {
	s, t := BaseLang(src), BaseLang(tgt)
	ps, pt := BaseLang(p.Source), BaseLang(p.Target)
	return (s == ps && t == pt) || (s == pt && t == ps)
}

func (p LanguagePair) String() string {
	return BaseLang(p.Source) + "-" + BaseLang(p.Target)
}
