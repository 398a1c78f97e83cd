// Command phrasebook translates phrases through a provider fallback chain
// backed by a persistent cache.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/ZaguanLabs/phrasebook"
	"github.com/ZaguanLabs/phrasebook/config"
)

// Build-time variables (can be overridden with ldflags)
var (
	version   = phrasebook.Version
	commit    = phrasebook.GitCommit
	buildDate = phrasebook.BuildDate
)

// CLI is the command line interface.
type CLI struct {
	EnvFile   string `name:"env-file" help:"Load environment variables from this file instead of ./.env." type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (${enum})." enum:"debug,info,warn,error" default:"info"`
	LogFormat string `name:"log-format" help:"Log format (${enum})." enum:"text,json" default:"text"`
	JSON      bool   `name:"json" help:"Print results as JSON."`

	Translate TranslateCmd `cmd:"" help:"Translate a phrase."`
	Warm      WarmCmd      `cmd:"" help:"Translate every line of a file to fill the cache."`
	Purge     PurgeCmd     `cmd:"" help:"Delete expired cache entries."`
	Quota     QuotaCmd     `cmd:"" help:"Show monthly quota usage."`
	Cache     CacheCmd     `cmd:"" help:"Export or import cached translations."`
	Serve     ServeCmd     `cmd:"" help:"Run the HTTP server."`
	Version   VersionCmd   `cmd:"" help:"Show version information."`
}

// app carries what every command needs.
type app struct {
	ctx    context.Context
	cli    *CLI
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name(phrasebook.Name),
		kong.Description(phrasebook.Description),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(stderr, cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return kctx.Run(&app{
		ctx:    ctx,
		cli:    &cli,
		stdout: stdout,
		stderr: stderr,
		logger: logger,
	})
}

func newLogger(w io.Writer, levelName, format string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid log level: %s", levelName)
	}

	var handler slog.Handler
	switch format {
	case "text":
		_, isFile := w.(*os.File)
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isFile || os.Getenv("NO_COLOR") != "",
		})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

// engine loads the configuration and wires a translation engine.
// The caller must Close it.
func (a *app) engine() (*config.Engine, error) {
	cfg, err := config.Load(a.cli.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	engine, err := config.Build(a.ctx, cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	return engine, nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
