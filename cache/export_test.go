package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore()
	c.Put(ctx, entry("はい", "네"))
	c.Put(ctx, entry("いいえ", "아니요"))

	exporter := NewExporter(c)
	var buf bytes.Buffer

	n, err := exporter.Export(ctx, &buf, map[string]string{"pair": "ja-ko"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 exported, got %d", n)
	}

	// Parse the output
	var export ExportFormat
	if err := json.Unmarshal(buf.Bytes(), &export); err != nil {
		t.Fatalf("Failed to parse export: %v", err)
	}

	if export.Version != ExportVersion {
		t.Errorf("Expected version %s, got %s", ExportVersion, export.Version)
	}

	if len(export.Entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(export.Entries))
	}

	if export.Metadata["pair"] != "ja-ko" {
		t.Errorf("Expected metadata pair=ja-ko, got %v", export.Metadata)
	}
}

func TestExporter_SkipsExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryStore(WithNow(clock.Now))
	c.Put(ctx, entry("はい", "네"))
	clock.Advance(31 * 24 * time.Hour)
	c.Put(ctx, entry("いいえ", "아니요"))

	var buf bytes.Buffer
	n, err := NewExporter(c).Export(ctx, &buf, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 live entry exported, got %d", n)
	}
}

func TestImporter_Import(t *testing.T) {
	jsonData := `{
		"version": "2.0",
		"exported_at": "2024-03-01T00:00:00Z",
		"entries": [
			{"text": "はい", "source_lang": "ja", "target_lang": "ko", "translated_text": "네", "provider_id": "google", "created_at": "2024-03-10T00:00:00Z"},
			{"text": " いいえ ", "source_lang": "ja", "target_lang": "ko", "translated_text": "아니요", "provider_id": "openai", "created_at": "2024-03-11T00:00:00Z"},
			{"text": "", "source_lang": "ja", "target_lang": "ko", "translated_text": "x", "provider_id": "openai", "created_at": "2024-03-11T00:00:00Z"}
		],
		"metadata": {"pair": "ja-ko"}
	}`

	clock := newFakeClock()
	c := NewMemoryStore(WithNow(clock.Now))
	importer := NewImporter(c)

	result, err := importer.Import(context.Background(), strings.NewReader(jsonData))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.Imported != 2 {
		t.Errorf("Expected 2 imported, got %d", result.Imported)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", result.Failed)
	}
	if result.Version != "2.0" {
		t.Errorf("Expected version 2.0, got %s", result.Version)
	}

	got, ok, _ := c.Get(context.Background(), phrasebook.NewCacheKey("いいえ", "ja", "ko"))
	if !ok {
		t.Fatal("imported text should be trimmed into its key")
	}
	if got.ProviderID != "openai" {
		t.Errorf("Expected provider openai, got %q", got.ProviderID)
	}
	if !got.CreatedAt.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt should be preserved, got %v", got.CreatedAt)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	for _, name := range []string{"cache.json", "cache.json.zst"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()

			src := NewMemoryStore(WithNow(clock.Now))
			src.Put(ctx, entry("ありがとう", "감사합니다"))
			src.Put(ctx, entry("友達", "친구"))

			path := filepath.Join(t.TempDir(), name)
			n, err := NewExporter(src).ExportToFile(ctx, path, nil)
			if err != nil {
				t.Fatalf("ExportToFile failed: %v", err)
			}
			if n != 2 {
				t.Errorf("Expected 2 exported, got %d", n)
			}

			dst := NewMemoryStore(WithNow(clock.Now))
			result, err := NewImporter(dst).ImportFromFile(ctx, path)
			if err != nil {
				t.Fatalf("ImportFromFile failed: %v", err)
			}
			if result.Imported != 2 {
				t.Errorf("Expected 2 imported, got %d", result.Imported)
			}

			got, ok, _ := dst.Get(ctx, phrasebook.NewCacheKey("友達", "ja", "ko"))
			if !ok || got.TranslatedText != "친구" {
				t.Errorf("Expected 친구 after round trip, got %+v (found=%v)", got, ok)
			}
		})
	}
}

func TestExporter_EmptyCache(t *testing.T) {
	var buf bytes.Buffer
	n, err := NewExporter(NewMemoryStore()).Export(context.Background(), &buf, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 entries, got %d", n)
	}
	if !strings.Contains(buf.String(), `"entries": []`) {
		t.Errorf("Expected an empty entries array, got %s", buf.String())
	}
}

func TestImporter_InvalidJSON(t *testing.T) {
	_, err := NewImporter(NewMemoryStore()).Import(context.Background(), strings.NewReader("not json"))
	if err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

// failingCloser accepts writes and fails on Close, like a file whose final
// flush hits a full disk.
type failingCloser struct {
	bytes.Buffer
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("no space left on device")
}

func TestExporter_CloseErrorFailsExport(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryStore()
	c.Put(ctx, entry("はい", "네"))
	exporter := NewExporter(c)

	for _, compress := range []bool{false, true} {
		w := &failingCloser{}
		n, err := exporter.exportTo(ctx, w, compress, nil)
		if err == nil {
			t.Errorf("compress=%v: expected close error, got n=%d", compress, n)
		} else if !strings.Contains(err.Error(), "closing file") {
			t.Errorf("compress=%v: unexpected error %v", compress, err)
		}
		if n != 0 {
			t.Errorf("compress=%v: expected 0 exported on failure, got %d", compress, n)
		}
		if !w.closed {
			t.Errorf("compress=%v: writer was not closed", compress)
		}
	}
}
