package provider

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ZaguanLabs/phrasebook"
)

//go:embed dictionaries/*.json
var builtinDictionaries embed.FS

// Dictionary is a one-directional phrase table.
type Dictionary struct {
	Source  string            `json:"source"`
	Target  string            `json:"target"`
	Entries map[string]string `json:"entries"`
}

// LoadDictionary decodes a JSON dictionary.
func LoadDictionary(r io.Reader) (Dictionary, error) {
	var d Dictionary
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return Dictionary{}, fmt.Errorf("decoding dictionary: %w", err)
	}
	if d.Source == "" || d.Target == "" {
		return Dictionary{}, fmt.Errorf("dictionary must name source and target languages")
	}
	return d, nil
}

// LoadDictionaryFile reads a JSON dictionary from path.
func LoadDictionaryFile(path string) (Dictionary, error) {
	f, err := os.Open(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return Dictionary{}, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()
	return LoadDictionary(f)
}

// BuiltinDictionaries returns the dictionaries compiled into the binary.
func BuiltinDictionaries() ([]Dictionary, error) {
	files, err := builtinDictionaries.ReadDir("dictionaries")
	if err != nil {
		return nil, err
	}

	dicts := make([]Dictionary, 0, len(files))
	for _, file := range files {
		f, err := builtinDictionaries.Open(path.Join("dictionaries", file.Name()))
		if err != nil {
			return nil, err
		}
		d, err := LoadDictionary(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Name(), err)
		}
		dicts = append(dicts, d)
	}
	return dicts, nil
}

// phraseTable is the lookup structure for one direction.
type phraseTable struct {
	entries map[string]string
	maxLen  int // longest key, in runes
}

func (t *phraseTable) add(src, tgt string) {
	src, tgt = strings.TrimSpace(src), strings.TrimSpace(tgt)
	if src == "" || tgt == "" {
		return
	}
	t.entries[src] = tgt
	if n := utf8.RuneCountInString(src); n > t.maxLen {
		t.maxLen = n
	}
}

// PhrasebookProvider is the offline backend. It answers from in-process
// phrase tables and never touches the network, so it reports only success
// or Unsupported.
type PhrasebookProvider struct {
	descriptor phrasebook.ProviderDescriptor
	tables     map[string]*phraseTable // "src-tgt" base languages
}

// PhrasebookConfig holds configuration for the offline provider.
type PhrasebookConfig struct {
	ID             string       // Provider ID (default: "phrasebook")
	Priority       int          // Position in the default order
	DictionaryPath string       // Optional extra dictionary file
	Dictionaries   []Dictionary // Optional extra dictionaries
	SkipBuiltin    bool         // Do not load the embedded dictionaries
}

// NewPhrasebookProvider builds the phrase tables. Each dictionary also
// serves the reverse direction; entries loaded later override earlier ones.
func NewPhrasebookProvider(cfg PhrasebookConfig) (*PhrasebookProvider, error) {
	id := cfg.ID
	if id == "" {
		id = "phrasebook"
	}

	var dicts []Dictionary
	if !cfg.SkipBuiltin {
		builtin, err := BuiltinDictionaries()
		if err != nil {
			return nil, fmt.Errorf("loading builtin dictionaries: %w", err)
		}
		dicts = append(dicts, builtin...)
	}
	if cfg.DictionaryPath != "" {
		d, err := LoadDictionaryFile(cfg.DictionaryPath)
		if err != nil {
			return nil, err
		}
		dicts = append(dicts, d)
	}
	dicts = append(dicts, cfg.Dictionaries...)

	p := &PhrasebookProvider{
		descriptor: phrasebook.ProviderDescriptor{
			ID:             id,
			Priority:       cfg.Priority,
			OfflineCapable: true,
		},
		tables: make(map[string]*phraseTable),
	}

	// Reverse entries go first so explicit dictionaries in that direction win.
	for _, d := range dicts {
		rev := p.table(d.Target, d.Source)
		for _, src := range sortedKeys(d.Entries) {
			tgt := strings.TrimSpace(d.Entries[src])
			if _, exists := rev.entries[tgt]; !exists {
				rev.add(tgt, src)
			}
		}
	}
	for _, d := range dicts {
		fwd := p.table(d.Source, d.Target)
		for src, tgt := range d.Entries {
			fwd.add(src, tgt)
		}
	}

	return p, nil
}

func (p *PhrasebookProvider) table(src, tgt string) *phraseTable {
	key := phrasebook.BaseLang(src) + "-" + phrasebook.BaseLang(tgt)
	t, ok := p.tables[key]
	if !ok {
		t = &phraseTable{entries: make(map[string]string)}
		p.tables[key] = t
	}
	return t
}

// Descriptor implements phrasebook.Provider.
func (p *PhrasebookProvider) Descriptor() phrasebook.ProviderDescriptor {
	return p.descriptor
}

// Len returns the number of phrases known for a direction.
func (p *PhrasebookProvider) Len(srcLang, tgtLang string) int {
	t, ok := p.tables[phrasebook.BaseLang(srcLang)+"-"+phrasebook.BaseLang(tgtLang)]
	if !ok {
		return 0
	}
	return len(t.entries)
}

// Translate looks the whole phrase up first, then falls back to greedy
// longest-match segmentation. Punctuation and whitespace pass through.
// Any uncovered segment makes the phrase Unsupported.
func (p *PhrasebookProvider) Translate(_ context.Context, text, srcLang, tgtLang string) (string, error) {
	t, ok := p.tables[phrasebook.BaseLang(srcLang)+"-"+phrasebook.BaseLang(tgtLang)]
	if !ok {
		return "", phrasebook.NewProviderError(p.descriptor.ID, phrasebook.OutcomeUnsupported,
			fmt.Sprintf("no phrasebook for %s-%s", srcLang, tgtLang), nil)
	}

	text = strings.TrimSpace(text)
	if translated, ok := t.entries[text]; ok {
		return translated, nil
	}

	translated, ok := t.segment(text, usesSpaces(tgtLang))
	if !ok {
		return "", phrasebook.NewProviderError(p.descriptor.ID, phrasebook.OutcomeUnsupported, "phrase not in phrasebook", nil)
	}
	return translated, nil
}

// segment covers text with the longest known phrases.
func (t *phraseTable) segment(text string, spaced bool) (string, bool) {
	runes := []rune(text)
	var b strings.Builder
	needSpace := false
	words := 0

	for i := 0; i < len(runes); {
		r := runes[i]
		if unicode.IsSpace(r) {
			if spaced && b.Len() > 0 {
				b.WriteRune(' ')
			}
			needSpace = false
			i++
			continue
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			mark := punctuation(r, spaced)
			b.WriteString(mark)
			needSpace = spaced && strings.ContainsAny(mark, ",.!?:")
			i++
			continue
		}

		matched := 0
		for n := min(t.maxLen, len(runes)-i); n > 0; n-- {
			if translated, ok := t.entries[string(runes[i:i+n])]; ok {
				if needSpace && spaced {
					b.WriteRune(' ')
				}
				b.WriteString(translated)
				matched = n
				break
			}
		}
		if matched == 0 {
			return "", false
		}
		words++
		needSpace = true
		i += matched
	}

	if words == 0 {
		return "", false
	}
	return strings.Join(strings.Fields(b.String()), " "), true
}

// usesSpaces reports whether the language separates words with spaces.
func usesSpaces(lang string) bool {
	switch phrasebook.BaseLang(lang) {
	case "ja", "zh", "th":
		return false
	}
	return true
}

var fullWidthPunct = map[rune]string{
	'。': ".", '、': ",", '！': "!", '？': "?", '「': "\"", '」': "\"", '（': "(", '）': ")", '：': ":",
}

// punctuation converts Japanese full-width marks for spaced targets.
func punctuation(r rune, spaced bool) string {
	if spaced {
		if ascii, ok := fullWidthPunct[r]; ok {
			return ascii
		}
	}
	return string(r)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Verify PhrasebookProvider implements phrasebook.Provider
var _ phrasebook.Provider = (*PhrasebookProvider)(nil)
