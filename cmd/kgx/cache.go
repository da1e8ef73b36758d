package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/storage"
	"github.com/dossier/kgexplorer/internal/ui"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}

	cmd.AddCommand(
		cacheListCmd(),
		cacheClearCmd(),
		cacheRemoveCmd(),
		cacheRegenCmd(),
		cacheWarmCmd(),
	)
	return cmd
}

// withStore opens the configured cache for the duration of fn.
func withStore(fn func(*storage.Storage) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func cacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List cached graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *storage.Storage) error {
				return listCache(cmd.Context(), os.Stdout, store)
			})
		},
	}
}

func listCache(ctx context.Context, w io.Writer, store *storage.Storage) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	ui.BannerTo(w, "response cache")
	if len(entries) == 0 {
		fmt.Fprintln(w, "  Cache is empty.")
		return nil
	}

	var rows [][]string
	for _, e := range entries {
		rows = append(rows, []string{
			e.Key,
			fmt.Sprintf("%d", e.Nodes),
			fmt.Sprintf("%d", e.Edges),
			fmt.Sprintf("%d", e.Hits),
			formatAge(time.Since(e.CreatedAt)),
		})
	}
	ui.TableTo(w, []string{"Key", "Nodes", "Edges", "Hits", "Age"}, rows)
	fmt.Fprintf(w, "\n  %d entries, %d hits, %s of payload\n", stats.Entries, stats.TotalHits, formatBytes(stats.PayloadBytes))
	return nil
}

func cacheClearCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *storage.Storage) error {
				n, err := store.DeleteOlderThan(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				ui.Good.Printf("  %s Deleted %d entries\n", ui.StatusIcon(true), n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only delete entries older than this (0 deletes all)")
	return cmd
}

func cacheRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete one cached graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *storage.Storage) error {
				if err := store.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				ui.Good.Printf("  %s Deleted %s\n", ui.StatusIcon(true), args[0])
				return nil
			})
		},
	}
}

func cacheRegenCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "regen",
		Short: "Refetch every cached graph from the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if parallel <= 0 {
				parallel = cfg.Cache.Parallel
			}
			ctx := cmd.Context()

			upstream, err := source.New(ctx, cfg.Source())
			if err != nil {
				return err
			}
			defer upstream.Close()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ui.Banner("regenerating cache")
			report, err := source.NewCachedSource(upstream, store).Regenerate(ctx, parallel)
			if err != nil {
				return err
			}
			printRegenReport(os.Stdout, report)
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d entries failed to refresh", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Concurrent fetches (default from config)")
	return cmd
}

func cacheWarmCmd() *cobra.Command {
	var (
		gene      string
		diseases  []string
		metapaths []string
		parallel  int
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Prefetch a gene/disease pair for one or more metapaths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if parallel <= 0 {
				parallel = cfg.Cache.Parallel
			}
			queries, err := warmQueries(gene, diseases, metapaths)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			upstream, err := source.New(ctx, cfg.Source())
			if err != nil {
				return err
			}
			defer upstream.Close()
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ui.Banner("warming cache")
			report, err := source.NewCachedSource(upstream, store).Warm(ctx, queries, parallel)
			if err != nil {
				return err
			}
			printRegenReport(os.Stdout, report)
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d queries failed", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&gene, "gene", "g", "", "Target gene symbol")
	cmd.Flags().StringSliceVarP(&diseases, "disease", "d", nil, "Target disease id (repeatable)")
	cmd.Flags().StringSliceVarP(&metapaths, "metapath", "m", nil, "Metapaths to warm (default: all)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Concurrent fetches (default from config)")
	return cmd
}

// warmQueries expands a gene/disease pair into one normalized query per
// metapath. No metapaths means every supported one.
func warmQueries(gene string, diseases, metapaths []string) ([]source.Query, error) {
	if len(metapaths) == 0 {
		for _, m := range source.Metapaths() {
			metapaths = append(metapaths, string(m.Name))
		}
	}
	queries := make([]source.Query, 0, len(metapaths))
	for _, m := range metapaths {
		q, err := source.Query{
			TargetGene:     gene,
			TargetDiseases: diseases,
			Metapath:       source.Metapath(m),
		}.Normalize()
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func printRegenReport(w io.Writer, r *source.RegenReport) {
	fmt.Fprintf(w, "  %s %d refreshed in %s\n", ui.StatusIcon(true), r.Refreshed, r.Elapsed.Round(time.Millisecond))
	if r.Cached > 0 {
		fmt.Fprintf(w, "  %s %d already cached\n", ui.StatusIcon(true), r.Cached)
	}
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s %s: %s\n", ui.StatusIcon(false), k, r.Failed[k])
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), strings.ToUpper("kmgtpe")[exp])
}
