// Shelfdesk is a conversational ordering assistant for a small
// bookstore.
//
// It exposes a chat HTTP API backed by an LLM tool-calling loop over
// the store's catalog, orders, and inventory. Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]) with SHELFDESK_* environment overrides.
//
// Usage:
//
//	shelfdesk serve              Start the API server
//	shelfdesk seed               Reset the database to the demo fixture
//	shelfdesk ask <message>      Ask a single question (for testing)
//	shelfdesk version            Print version and build information
//	shelfdesk -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shelfdesk/shelfdesk/internal/agent"
	"github.com/shelfdesk/shelfdesk/internal/api"
	"github.com/shelfdesk/shelfdesk/internal/audit"
	"github.com/shelfdesk/shelfdesk/internal/bookstore"
	"github.com/shelfdesk/shelfdesk/internal/buildinfo"
	"github.com/shelfdesk/shelfdesk/internal/chatlog"
	"github.com/shelfdesk/shelfdesk/internal/config"
	"github.com/shelfdesk/shelfdesk/internal/llm"
	"github.com/shelfdesk/shelfdesk/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the shelfdesk command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// our argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "seed":
		return runSeed(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: shelfdesk ask <message>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Shelfdesk - Bookstore Ordering Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: shelfdesk [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  seed         Reset the database to the demo fixture")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// newLogger creates a structured logger writing to w. All log output
// goes through slog; this helper standardizes the handler across
// subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig resolves and loads the configuration. When no config file
// exists anywhere on the search path and none was requested explicitly,
// the built-in defaults are used so that a bare `shelfdesk serve` works
// against a local Ollama.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// createOracle selects the LLM provider from configuration.
func createOracle(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Models.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("provider anthropic requires an API key (SHELFDESK_ANTHROPIC_API_KEY)")
		}
		logger.Info("oracle configured", "provider", "anthropic", "model", cfg.Models.Default)
		return llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger), nil
	case "ollama", "":
		logger.Info("oracle configured", "provider", "ollama", "model", cfg.Models.Default, "url", cfg.Models.OllamaURL)
		return llm.NewOllamaClient(cfg.Models.OllamaURL), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %q", cfg.Models.Provider)
	}
}

// desk wires the shared database into the stores, registry, and loop.
// Everything lives in one SQLite file so a single connection pool
// serves the catalog, the conversation log, and the audit trail.
type desk struct {
	store    *bookstore.Store
	history  *chatlog.Store
	audit    *audit.Store
	registry *tools.Registry
	loop     *agent.Loop
}

func openDesk(cfg *config.Config, logger *slog.Logger, oracle llm.Client) (*desk, error) {
	dbPath := filepath.Join(cfg.DataDir, "shelfdesk.db")

	store, err := bookstore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open bookstore: %w", err)
	}
	history, err := chatlog.NewWithDB(store.DB())
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	auditStore, err := audit.NewWithDB(store.DB())
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	registry, err := tools.NewBookstoreRegistry(logger, store, auditStore)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	loop := agent.New(logger, oracle, registry, history, agent.Options{
		Model:         cfg.Models.Default,
		MaxRounds:     cfg.Agent.MaxRounds,
		HistoryLimit:  cfg.Agent.HistoryLimit,
		OracleTimeout: cfg.Agent.OracleTimeout(),
		ToolTimeout:   cfg.Agent.ToolTimeout(),
	})

	return &desk{
		store:    store,
		history:  history,
		audit:    auditStore,
		registry: registry,
		loop:     loop,
	}, nil
}

func (d *desk) Close() error {
	return d.store.Close()
}

// runServe handles the "shelfdesk serve" subcommand.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level, "text")
	logger.Info("starting", "app", buildinfo.String(), "config", cfgPath)

	oracle, err := createOracle(cfg, logger)
	if err != nil {
		return err
	}

	d, err := openDesk(cfg, logger, oracle)
	if err != nil {
		return err
	}
	defer d.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, d.loop, d.history, d.audit, d.registry, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Shelfdesk stopped")
	return nil
}

// runSeed handles the "shelfdesk seed" subcommand. It resets the
// catalog, customers, and orders to the demo fixture. Conversation and
// audit history are left alone.
func runSeed(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(cfg.DataDir, "shelfdesk.db")
	store, err := bookstore.New(dbPath)
	if err != nil {
		return fmt.Errorf("open bookstore: %w", err)
	}
	defer store.Close()

	if err := store.Seed(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	fmt.Fprintf(stdout, "seeded %s (config: %s)\n", dbPath, cfgPath)
	return nil
}

// runAsk handles the "shelfdesk ask <message>" subcommand. It runs one
// utterance through the full loop against the real database and prints
// the reply. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(stdout, slog.LevelWarn, "text")
	logger.Info("config loaded", "path", cfgPath)

	oracle, err := createOracle(cfg, logger)
	if err != nil {
		return err
	}

	d, err := openDesk(cfg, logger, oracle)
	if err != nil {
		return err
	}
	defer d.Close()

	reply := d.loop.Run(ctx, "cli", strings.Join(args, " "))
	fmt.Fprintln(stdout, reply)
	return nil
}
