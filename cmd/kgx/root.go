package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dossier/kgexplorer/internal/config"
	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/storage"
	"github.com/dossier/kgexplorer/internal/ui"
)

var version = "0.3.0"

var (
	configPath string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "kgx",
	Short: "kgx: explore disease, gene and pathway knowledge graphs",
	Long: ui.Brand.Sprint("kgx") + ": fetch a target gene's knowledge graph and explore it\n" +
		ui.Subtle.Sprint("Filter by category, cycle layouts and inspect nodes from the terminal"),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err == nil {
			ui.SetColor(cfg.UI.Color && !noColor)
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("kgx {{ .Version }}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		exploreCmd(),
		cacheCmd(),
		metapathsCmd(),
		configCmd(),
	)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func main() {
	if err := Execute(); err != nil {
		ui.Error(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config (or the default path) and applies KGX_* env
// overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
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
	return cfg, nil
}

// openStore opens the configured response cache.
func openStore(cfg *config.Config) (*storage.Storage, error) {
	store, err := storage.New(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", cfg.Cache.Path, err)
	}
	return store, nil
}

// openSource builds the configured graph source, wrapped in the response
// cache unless it is disabled. The returned func releases both.
func openSource(ctx context.Context, cfg *config.Config, useCache bool) (source.Source, func(), error) {
	upstream, err := source.New(ctx, cfg.Source())
	if err != nil {
		return nil, nil, err
	}
	if !useCache || !cfg.Cache.Enabled {
		return upstream, func() { upstream.Close() }, nil
	}
	store, err := openStore(cfg)
	if err != nil {
		upstream.Close()
		return nil, nil, err
	}
	cached := source.NewCachedSource(upstream, store)
	return cached, func() {
		cached.Close()
		store.Close()
	}, nil
}
