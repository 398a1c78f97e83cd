package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ZaguanLabs/phrasebook"
)

// ExportVersion is written to every export file.
const ExportVersion = "2.0"

// ExportFormat represents the JSON structure for cache export/import.
type ExportFormat struct {
	Version    string            `json:"version"`
	ExportedAt string            `json:"exported_at"`
	Entries    []record          `json:"entries"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Exporter provides cache export functionality.
type Exporter struct {
	store Lister
	now   func() time.Time
}

// NewExporter creates a new cache exporter.
func NewExporter(store Lister) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Export writes the live cache entries to a writer in JSON format and
// returns how many were written.
func (e *Exporter) Export(ctx context.Context, w io.Writer, metadata map[string]string) (int, error) {
	entries, err := e.store.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting cache entries: %w", err)
	}

	export := ExportFormat{
		Version:    ExportVersion,
		ExportedAt: e.now().UTC().Format(time.RFC3339),
		Entries:    make([]record, 0, len(entries)),
		Metadata:   metadata,
	}
	for _, entry := range entries {
		export.Entries = append(export.Entries, toRecord(entry))
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return 0, fmt.Errorf("encoding JSON: %w", err)
	}

	return len(export.Entries), nil
}

// ExportToFile exports the cache to a file. Paths ending in ".zst" are
// zstd-compressed.
// The path is provided by the caller and is intentionally user-controlled.
func (e *Exporter) ExportToFile(ctx context.Context, path string, metadata map[string]string) (int, error) {
	f, err := os.Create(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	return e.exportTo(ctx, f, compressed(path), metadata)
}

// exportTo writes an export to w and closes it. A failed close fails the
// export, since buffered data may not have reached the file.
func (e *Exporter) exportTo(ctx context.Context, w io.WriteCloser, compress bool, metadata map[string]string) (n int, err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			n, err = 0, fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if !compress {
		return e.Export(ctx, w, metadata)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("creating zstd encoder: %w", err)
	}
	n, err = e.Export(ctx, enc, metadata)
	if err != nil {
		_ = enc.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("flushing zstd stream: %w", err)
	}
	return n, nil
}

// Importer provides cache import functionality.
type Importer struct {
	store phrasebook.CacheStore
}

// NewImporter creates a new cache importer.
func NewImporter(store phrasebook.CacheStore) *Importer {
	return &Importer{store: store}
}

// Import reads cache entries from a reader and loads them into the store.
// Entries keep their original creation time, so stale rows stay stale.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var export ExportFormat
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	result := &ImportResult{
		Version:  export.Version,
		Metadata: export.Metadata,
	}

	for _, rec := range export.Entries {
		entry := rec.entry()
		entry.Key = phrasebook.NewCacheKey(entry.Key.Text, entry.Key.SourceLang, entry.Key.TargetLang)
		if err := i.store.Put(ctx, entry); err != nil {
			result.Failed++
			continue
		}
		result.Imported++
	}

	return result, nil
}

// ImportFromFile imports cache entries from a file, decompressing ".zst" paths.
// The path is provided by the caller and is intentionally user-controlled.
func (i *Importer) ImportFromFile(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is intentionally user-provided
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	if !compressed(path) {
		return i.Import(ctx, f)
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()
	return i.Import(ctx, dec)
}

// ImportResult contains statistics about the import operation.
type ImportResult struct {
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Imported int               `json:"imported"`
	Failed   int               `json:"failed"`
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}
