// Hearthside is a chat assistant gateway for Home Assistant.
//
// It classifies each chat message locally, hands the model a focused
// tool subset, executes the tool calls against Home Assistant, and
// streams the whole exchange back over SSE. Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	hearthside serve      Start the API server
//	hearthside version    Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hearthside-ai/hearthside/internal/api"
	"github.com/hearthside-ai/hearthside/internal/buildinfo"
	"github.com/hearthside-ai/hearthside/internal/config"
	"github.com/hearthside-ai/hearthside/internal/connwatch"
	"github.com/hearthside-ai/hearthside/internal/conversation"
	"github.com/hearthside-ai/hearthside/internal/executor"
	"github.com/hearthside-ai/hearthside/internal/homeassistant"
	"github.com/hearthside-ai/hearthside/internal/intent"
	"github.com/hearthside-ai/hearthside/internal/llm"
	"github.com/hearthside-ai/hearthside/internal/mqtt"
	"github.com/hearthside-ai/hearthside/internal/orchestrator"
	"github.com/hearthside-ai/hearthside/internal/registry"
	"github.com/hearthside-ai/hearthside/internal/snapshot"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments by hand. The flag package relies on
// package-level globals, which makes it impossible to call run()
// concurrently from tests, and the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(buildinfo.RuntimeInfo())
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Hearthside - Chat Assistant Gateway for Home Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: hearthside [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve       Start the API server")
	fmt.Fprintln(w, "  version     Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	return nil
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// runServe is the primary operating mode: it loads config, opens the
// conversation store, connects to Home Assistant, wires the classifier,
// executor and orchestrator, then serves the API until SIGINT/SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	config.LoadEnv()

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("starting Hearthside", "version", buildinfo.Version, "config", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Conversation store ---
	store, err := conversation.NewStore(filepath.Join(cfg.DataDir, "conversations.db"), cfg.Conversations.MaxStored, logger)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	// --- Config snapshot store ---
	snapDir := cfg.Snapshots.Dir
	if snapDir == "" {
		snapDir = filepath.Join(cfg.DataDir, "snapshots")
	}
	snaps, err := snapshot.New(snapDir, cfg.HomeAssistant.ConfigDir, cfg.Snapshots.MaxPerFile, logger)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Home Assistant ---
	ha := homeassistant.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	ws := homeassistant.NewWSClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	defer ws.Close()

	// Watch the platform connection and (re-)establish the WebSocket
	// whenever it comes back.
	haWatch := connwatch.Watch(ctx, connwatch.Config{
		Name:  "homeassistant",
		Probe: ha.Ping,
		OnReady: func() {
			wsCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := ws.Reconnect(wsCtx); err != nil {
				logger.Error("WebSocket reconnect failed", "error", err)
			}
		},
		Logger: logger,
	})
	defer haWatch.Stop()

	// --- Providers ---
	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return err
	}

	// --- Tool pipeline ---
	reg := registry.New()
	classifier := intent.NewClassifier(cfg.Language, logger)

	exec := executor.New(executor.Options{
		Registry:  reg,
		HA:        ha,
		WS:        ws,
		Snapshots: snaps,
		ConfigDir: cfg.HomeAssistant.ConfigDir,
		ReadOnly:  cfg.Orchestrator.ReadOnly,
		Language:  cfg.Language,
		Logger:    logger,
	})

	orch := orchestrator.New(reg, exec, orchestrator.Config{
		MaxRounds:      cfg.Orchestrator.MaxRounds,
		RequestTimeout: time.Duration(cfg.Orchestrator.RequestTimeoutSec) * time.Second,
	}, cfg.Language, logger)

	// --- MQTT activity publisher (optional) ---
	var activity api.ActivityNotifier
	if cfg.MQTT.Enabled {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("mqtt instance id: %w", err)
		}
		pub := mqtt.New(cfg.MQTT, instanceID, logger)
		go func() {
			if err := pub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			pub.Stop(stopCtx)
		}()
		activity = pub
	}

	// --- API server ---
	server := api.NewServer(api.Options{
		Address:         cfg.Listen.Address,
		Port:            cfg.Listen.Port,
		Providers:       providers,
		Classifier:      classifier,
		Orchestrator:    orch,
		HA:              ha,
		Conversations:   store,
		HAWatch:         haWatch,
		DefaultProvider: cfg.Selection.Provider,
		DefaultModel:    defaultModel(cfg),
		Activity:        activity,
		Logger:          logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildProviders constructs an adapter for every configured backend. An
// Ollama model without native tool-call support is wrapped in the
// simulated tool protocol.
func buildProviders(cfg *config.Config, logger *slog.Logger) (*llm.Providers, error) {
	providers := llm.NewProviders()

	if cfg.Providers.Anthropic.APIKey != "" {
		providers.Register(llm.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, nil))
		logger.Info("provider configured", "provider", "anthropic")
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		providers.Register(llm.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL, nil))
		logger.Info("provider configured", "provider", "openai")
	}
	if cfg.Providers.Google.APIKey != "" {
		providers.Register(llm.NewGeminiProvider(cfg.Providers.Google.APIKey, nil))
		logger.Info("provider configured", "provider", "google")
	}
	if cfg.Providers.Ollama.URL != "" {
		var p llm.Provider = llm.NewOllamaProvider(cfg.Providers.Ollama.URL, nil)
		if !cfg.Providers.Ollama.SupportsTools {
			p = llm.NewSimulated(p, nil)
		}
		providers.Register(p)
		logger.Info("provider configured", "provider", "ollama", "native_tools", cfg.Providers.Ollama.SupportsTools)
	}

	if len(providers.Names()) == 0 {
		return nil, fmt.Errorf("no AI provider configured: set an API key or an ollama URL")
	}
	if cfg.Selection.Provider != "" {
		if err := providers.SetDefault(cfg.Selection.Provider); err != nil {
			return nil, err
		}
	}
	return providers, nil
}

// defaultModel resolves the startup model: the explicit selection wins,
// then the selected provider's configured model.
func defaultModel(cfg *config.Config) string {
	if cfg.Selection.Model != "" {
		return cfg.Selection.Model
	}
	switch cfg.Selection.Provider {
	case "openai":
		return cfg.Providers.OpenAI.Model
	case "google":
		return cfg.Providers.Google.Model
	case "ollama":
		return cfg.Providers.Ollama.Model
	default:
		return cfg.Providers.Anthropic.Model
	}
}
