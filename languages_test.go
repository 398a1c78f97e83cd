package phrasebook

import "testing"

func TestGetLanguageName(t *testing.T) {
	tests := []struct {
		code     string
		expected string
	}{
		{"ja", "Japanese"},
		{"ko", "Korean"},
		{"ja_JP", "Japanese"}, // locale reduced to base
		{"ko-KR", "Korean"},
		{"unknown", "unknown"}, // fallback
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			result := GetLanguageName(tt.code)
			if result != tt.expected {
				t.Errorf("GetLanguageName(%q) = %q, want %q", tt.code, result, tt.expected)
			}
		})
	}
}

func TestBaseLang(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ja", "ja"},
		{"ja_JP", "ja"},
		{"ko-KR", "ko"},
		{"EN", "en"},
		{" ko ", "ko"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := BaseLang(tt.input)
			if result != tt.expected {
				t.Errorf("BaseLang(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSameLanguage(t *testing.T) {
	if !SameLanguage("ja", "ja_JP") {
		t.Error("ja and ja_JP should be the same language")
	}
	if SameLanguage("ja", "ko") {
		t.Error("ja and ko should differ")
	}
}

func TestLanguagePairAccepts(t *testing.T) {
	pair := LanguagePair{Source: "ja", Target: "ko"}

	tests := []struct {
		src, tgt string
		expected bool
	}{
		{"ja", "ko", true},
		{"ko", "ja", true},
		{"ja_JP", "ko-KR", true},
		{"ja", "en", false},
		{"en", "ko", false},
	}

	for _, tt := range tests {
		t.Run(tt.src+"->"+tt.tgt, func(t *testing.T) {
			if got := pair.Accepts(tt.src, tt.tgt); got != tt.expected {
				t.Errorf("Accepts(%q, %q) = %v, want %v", tt.src, tt.tgt, got, tt.expected)
			}
		})
	}

	if pair.String() != "ja-ko" {
		t.Errorf("String() = %q, want ja-ko", pair.String())
	}
}
