package main

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/dossier/kgexplorer/internal/config"
	"github.com/dossier/kgexplorer/internal/ui"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration",
	}
	cmd.AddCommand(configShowCmd(), configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return showConfig(os.Stdout, cfg)
		},
	}
}

// showConfig writes cfg as TOML with the password masked, followed by the
// KGX_* variables that overrode the file.
func showConfig(w io.Writer, cfg *config.Config) error {
	shown := *cfg
	if shown.Neo4j.Password != "" {
		shown.Neo4j.Password = "********"
	}
	if err := toml.NewEncoder(w).Encode(shown); err != nil {
		return err
	}

	var set []string
	for _, name := range config.Env {
		if v, ok := os.LookupEnv(name); ok {
			if name == "KGX_NEO4J_PASSWORD" {
				v = "********"
			}
			set = append(set, fmt.Sprintf("#   %s=%s", name, v))
		}
	}
	if len(set) > 0 {
		fmt.Fprintln(w, "\n# overridden by environment:")
		for _, line := range set {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.Path()
			}
			if _, err := os.Stat(path); err == nil && !force {
				ui.Warn.Printf("  %s already exists (use --force to overwrite)\n", path)
				return nil
			}
			var err error
			if configPath == "" && !force {
				err = config.EnsureExists()
			} else {
				err = config.SaveFile(path, config.Default())
			}
			if err != nil {
				return err
			}
			ui.Good.Printf("  %s Wrote %s\n", ui.StatusIcon(true), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
