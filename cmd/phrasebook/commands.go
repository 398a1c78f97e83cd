package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/ZaguanLabs/phrasebook/cache"
	"github.com/ZaguanLabs/phrasebook/server"
	"github.com/ZaguanLabs/phrasebook/telemetry"
)

// TranslateCmd translates a single phrase.
type TranslateCmd struct {
	Text      []string `arg:"" help:"Phrase to translate."`
	From      string   `short:"s" help:"Source language (default: PHRASEBOOK_SOURCE_LANG)."`
	To        string   `short:"t" help:"Target language (default: PHRASEBOOK_TARGET_LANG)."`
	Providers []string `name:"provider" short:"p" sep:"," help:"Provider order for this call, e.g. openai,phrasebook."`
}

func (c *TranslateCmd) Run(a *app) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	text := strings.Join(c.Text, " ")
	res, err := engine.Translator.Translate(a.ctx, text, c.From, c.To, c.Providers...)
	if err != nil {
		return err
	}

	if a.cli.JSON {
		return outputJSON(a.stdout, res)
	}
	fmt.Fprintln(a.stdout, res.TranslatedText)
	return nil
}

// WarmCmd translates each non-empty line of a file.
type WarmCmd struct {
	File        string `arg:"" help:"File with one phrase per line. Lines starting with # are skipped." type:"existingfile"`
	Concurrency int    `short:"c" help:"Parallel translations." default:"4"`
}

// WarmSummary is the JSON output of the warm command.
type WarmSummary struct {
	Phrases   int      `json:"phrases"`
	Cached    int      `json:"cached"`
	Resolved  int      `json:"resolved"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

func (c *WarmCmd) Run(a *app) error {
	phrases, err := readPhrases(c.File)
	if err != nil {
		return err
	}

	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	start := time.Now()
	results := engine.Translator.TranslateAll(a.ctx, phrases, "", "", c.Concurrency)

	summary := WarmSummary{Phrases: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", r.Text, r.Err))
		case r.Result.ServedFromCache:
			summary.Cached++
		default:
			summary.Resolved++
		}
	}
	summary.ElapsedMs = time.Since(start).Milliseconds()

	if a.cli.JSON {
		return outputJSON(a.stdout, summary)
	}
	fmt.Fprintf(a.stdout, "warmed %d phrases: %d resolved, %d already cached, %d failed\n",
		summary.Phrases, summary.Resolved, summary.Cached, summary.Failed)
	for _, e := range summary.Errors {
		fmt.Fprintf(a.stderr, "  %s\n", e)
	}
	return nil
}

func readPhrases(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 - CLI tool reads user-specified files
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	defer f.Close()

	var phrases []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return phrases, nil
}

// PurgeCmd deletes expired cache entries once.
type PurgeCmd struct{}

func (c *PurgeCmd) Run(a *app) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	n, err := engine.Reaper.ReapNow(a.ctx)
	if err != nil {
		return err
	}

	if a.cli.JSON {
		return outputJSON(a.stdout, server.PurgeResponse{Deleted: n})
	}
	fmt.Fprintf(a.stdout, "purged %d expired entries\n", n)
	return nil
}

// QuotaCmd prints the current period of one or all providers.
type QuotaCmd struct {
	Provider string `arg:"" optional:"" help:"Provider ID (default: all registered providers)."`
}

func (c *QuotaCmd) Run(a *app) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ids := []string{c.Provider}
	if c.Provider == "" {
		ids = ids[:0]
		for _, d := range engine.Providers {
			ids = append(ids, d.ID)
		}
	}

	states := make([]server.QuotaResponse, 0, len(ids))
	for _, id := range ids {
		state, err := engine.Quota.CurrentPeriod(a.ctx, id)
		if err != nil {
			return err
		}
		states = append(states, server.QuotaResponse{
			ProviderID:         state.ProviderID,
			PeriodStart:        state.PeriodStart,
			CharactersConsumed: state.CharactersConsumed,
			MonthlyLimit:       state.MonthlyLimit,
			Remaining:          state.Remaining(),
		})
	}

	if a.cli.JSON {
		return outputJSON(a.stdout, states)
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tPERIOD\tCONSUMED\tLIMIT\tREMAINING")
	for _, s := range states {
		limit, remaining := "unmetered", "-"
		if s.MonthlyLimit > 0 {
			limit = fmt.Sprint(s.MonthlyLimit)
			remaining = fmt.Sprint(s.Remaining)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.ProviderID, s.PeriodStart.Format("2006-01"), s.CharactersConsumed, limit, remaining)
	}
	return tw.Flush()
}

// CacheCmd groups the cache export and import commands.
type CacheCmd struct {
	Export CacheExportCmd `cmd:"" help:"Write live cache entries to a JSON file (.zst for zstd)."`
	Import CacheImportCmd `cmd:"" help:"Load cache entries from an export file."`
}

// CacheExportCmd exports the cache.
type CacheExportCmd struct {
	Path string `arg:"" help:"Output file." type:"path"`
}

func (c *CacheExportCmd) Run(a *app) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	lister, ok := engine.Lister()
	if !ok {
		return fmt.Errorf("cache backend %q cannot be listed", engine.Config.CacheBackend)
	}

	pair := engine.Translator.LanguagePair()
	n, err := cache.NewExporter(lister).ExportToFile(a.ctx, c.Path, map[string]string{
		"backend":     engine.Config.CacheBackend,
		"source_lang": pair.Source,
		"target_lang": pair.Target,
		"version":     version,
	})
	if err != nil {
		return err
	}

	if a.cli.JSON {
		return outputJSON(a.stdout, map[string]any{"path": c.Path, "exported": n})
	}
	fmt.Fprintf(a.stdout, "exported %d entries to %s\n", n, c.Path)
	return nil
}

// CacheImportCmd imports an export file.
type CacheImportCmd struct {
	Path string `arg:"" help:"Export file to read." type:"existingfile"`
}

func (c *CacheImportCmd) Run(a *app) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := cache.NewImporter(engine.Cache).ImportFromFile(a.ctx, c.Path)
	if err != nil {
		return err
	}

	if a.cli.JSON {
		return outputJSON(a.stdout, res)
	}
	fmt.Fprintf(a.stdout, "imported %d entries (%d failed) from %s\n", res.Imported, res.Failed, c.Path)
	return nil
}

// ServeCmd runs the HTTP server with the cache reaper alongside.
type ServeCmd struct {
	Address        string        `help:"Address to listen on (default: :PORT)."`
	RequestTimeout time.Duration `help:"Per-request timeout." default:"30s"`
}

func (c *ServeCmd) Run(a *app) error {
	engine, err := a.engine()
	if err != nil {
		return err
	}
	defer engine.Close()
	cfg := engine.Config

	shutdownMetrics, err := telemetry.InitMetrics(a.ctx, telemetry.MetricsConfig{
		ServiceName:      phrasebook.Name,
		ServiceVersion:   version,
		OTLPEndpoint:     cfg.OTLPEndpoint,
		EnablePrometheus: cfg.EnablePrometheus,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			a.logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	address := c.Address
	if address == "" {
		address = ":" + cfg.Port
	}

	srv, err := server.New(server.Config{
		Address:        address,
		Translator:     engine.Translator,
		Quota:          engine.Quota,
		Cache:          engine.Cache,
		RequestTimeout: c.RequestTimeout,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	go engine.Reaper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Info("server started",
		"address", srv.Address(),
		"pair", cfg.SourceLang+"-"+cfg.TargetLang,
		"purge_interval", cfg.PurgeInterval,
	)

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	if a.cli.JSON {
		return outputJSON(a.stdout, map[string]string{
			"name":         phrasebook.Name,
			"version":      version,
			"full_version": phrasebook.FullVersion(),
			"commit":       commit,
			"branch":       phrasebook.GitBranch,
			"build_date":   buildDate,
			"go_version":   phrasebook.GoVersion,
			"license":      phrasebook.License,
		})
	}

	fmt.Fprintf(a.stdout, "%s %s\n", phrasebook.Name, version)
	if commit != "unknown" && commit != "" {
		fmt.Fprintf(a.stdout, "  commit:  %s\n", commit)
	}
	if buildDate != "unknown" && buildDate != "" {
		fmt.Fprintf(a.stdout, "  built:   %s\n", buildDate)
	}
	fmt.Fprintf(a.stdout, "  source:  %s\n", phrasebook.Repository)
	return nil
}
