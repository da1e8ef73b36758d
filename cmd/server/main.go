package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dossier/kgexplorer/internal/api"
	"github.com/dossier/kgexplorer/internal/config"
	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/storage"
)

// initLogger configures the global slog default with JSON output.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	slog.SetDefault(slog.New(h))
}

// flags holds the command-line overrides.
type flags struct {
	configPath string
	port       int
	backend    string
	backendURL string
	neo4jURI   string
	cachePath  string
	noCache    bool
	logLevel   string
}

// resolveConfig layers the configuration with the priority:
//
//	flag (if explicitly set) > env var > config file > default.
func resolveConfig(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	path := f.configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = f.port
		case "backend":
			cfg.Backend.Kind = f.backend
		case "backend-url":
			cfg.Backend.URL = f.backendURL
		case "neo4j-uri":
			cfg.Neo4j.URI = f.neo4jURI
		case "cache-path":
			cfg.Cache.Path = f.cachePath
		case "no-cache":
			cfg.Cache.Enabled = !f.noCache
		case "log-level":
			cfg.Log.Level = f.logLevel
		}
	})
	return cfg, nil
}

// registerFlags defines the server flags on fs.
func registerFlags(fs *flag.FlagSet) *flags {
	f := &flags{}
	fs.StringVar(&f.configPath, "config", "", "Path to config.toml (default $XDG_CONFIG_HOME/kgexplorer/config.toml)")
	fs.IntVar(&f.port, "port", 8080, "HTTP server port")
	fs.StringVar(&f.backend, "backend", "http", "Graph source: http or neo4j")
	fs.StringVar(&f.backendURL, "backend-url", "http://localhost:8000", "Base URL of the graph endpoint")
	fs.StringVar(&f.neo4jURI, "neo4j-uri", "neo4j://localhost:7687", "Neo4j connection URI")
	fs.StringVar(&f.cachePath, "cache-path", "./kgexplorer.db", "Path to the SQLite response cache")
	fs.BoolVar(&f.noCache, "no-cache", false, "Disable the response cache")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	return f
}

func main() {
	// ---- Flags -----------------------------------------------------------
	f := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := resolveConfig(flag.CommandLine, f)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	initLogger(cfg.Log.Level)
	ctx := context.Background()

	// ---- Graph source ----------------------------------------------------
	upstream, err := source.New(ctx, cfg.Source())
	if err != nil {
		log.Fatalf("failed to initialise graph source: %v", err)
	}
	var src source.Source = upstream

	// ---- Response cache (optional) ---------------------------------------
	var store *storage.Storage
	cacheStatus := "disabled"
	if cfg.Cache.Enabled {
		store, err = storage.New(cfg.Cache.Path)
		if err != nil {
			log.Fatalf("failed to initialise cache: %v", err)
		}
		if maxAge := cfg.Cache.MaxAge.Std(); maxAge > 0 {
			n, err := store.DeleteOlderThan(ctx, maxAge)
			if err != nil {
				slog.Warn("cache prune failed", "error", err)
			} else if n > 0 {
				slog.Info("pruned stale cache entries", "deleted", n, "max_age", maxAge)
			}
		}
		src = source.NewCachedSource(upstream, store)
		cacheStatus = cfg.Cache.Path
	}

	// ---- Sessions + SSE --------------------------------------------------
	sse := api.NewSSEBroadcaster()
	sessions := explorer.NewManager(explorer.ManagerOptions{
		IdleTTL:     cfg.Session.IdleTTL.Std(),
		MaxSessions: cfg.Session.MaxSessions,
		Sinks:       sse.SessionSinks(),
	})

	// ---- HTTP Server -----------------------------------------------------
	srv := api.NewServer(sessions, src, sse, api.Options{
		RateLimit:     cfg.Server.RateLimit,
		Burst:         cfg.Server.Burst,
		Origins:       cfg.Server.Origins,
		RegenParallel: cfg.Cache.Parallel,
	})

	// ---- Startup banner --------------------------------------------------
	backendAddr := cfg.Backend.URL
	if cfg.Backend.Kind == string(source.KindNeo4j) {
		backendAddr = cfg.Neo4j.URI
	}
	banner := fmt.Sprintf(`
===============================
 kgexplorer
 Source: %s (%s)
 Cache:  %s
 Port:   %d
===============================`, src.Name(), backendAddr, cacheStatus, cfg.Server.Port)
	fmt.Println(banner)

	slog.Info("kgexplorer starting",
		"source", src.Name(),
		"backend", backendAddr,
		"cache", cacheStatus,
		"port", cfg.Server.Port,
		"idle_ttl", cfg.Session.IdleTTL.String(),
	)

	srv.RegisterRoutes()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// ---- Graceful shutdown -----------------------------------------------
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	sse.Broadcast(api.SSEEvent{Event: "shutdown", Data: map[string]string{"reason": sig.String()}})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	sessions.Close()

	if err := src.Close(); err != nil {
		slog.Error("source close error", "error", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			slog.Error("storage close error", "error", err)
		}
	}

	slog.Info("kgexplorer shutdown complete")
}
