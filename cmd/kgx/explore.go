package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dossier/kgexplorer/internal/explorer"
	"github.com/dossier/kgexplorer/internal/graph"
	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/ui"
)

type exploreOptions struct {
	Query       source.Query
	Show        []string
	Hide        []string
	Layout      string
	LayoutSteps int
	Search      string
	Inspect     string
	JSON        bool
}

func exploreCmd() *cobra.Command {
	var (
		opts     exploreOptions
		metapath string
		fresh    bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Fetch a target gene's graph and print the filtered view",
		Example: "  kgx explore --gene TNFRSF4 --disease MONDO:0004980 --show Pathway\n" +
			"  kgx explore --gene TNFRSF4 --disease MONDO:0004980 --inspect g1 --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.Query.Metapath = source.Metapath(metapath)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			src, closeSrc, err := openSource(ctx, cfg, !fresh)
			if err != nil {
				return err
			}
			defer closeSrc()

			return runExplore(ctx, os.Stdout, src, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Query.TargetGene, "gene", "g", "", "Target gene symbol")
	f.StringSliceVarP(&opts.Query.TargetDiseases, "disease", "d", nil, "Target disease id (repeatable)")
	f.StringVarP(&metapath, "metapath", "m", string(source.DefaultMetapath), "Metapath to walk")
	f.StringSliceVar(&opts.Show, "show", nil, "Categories to show")
	f.StringSliceVar(&opts.Hide, "hide", nil, "Categories to hide")
	f.StringVar(&opts.Layout, "layout", "", "Start from the named layout")
	f.IntVar(&opts.LayoutSteps, "layout-steps", 0, "Advance the layout cycle N times")
	f.StringVar(&opts.Search, "search", "", "Highlight a node by id")
	f.StringVar(&opts.Inspect, "inspect", "", "Open the inspector on a node or edge id")
	f.BoolVar(&opts.JSON, "json", false, "Print the session view as JSON")
	f.BoolVar(&fresh, "fresh", false, "Bypass the response cache")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall time limit")
	cmd.MarkFlagRequired("gene")
	cmd.MarkFlagRequired("disease")
	return cmd
}

// runExplore fetches opts.Query from src, applies the requested filter,
// layout and selection steps to a standalone session and prints the result.
func runExplore(ctx context.Context, w io.Writer, src source.Source, opts exploreOptions) error {
	q, err := opts.Query.Normalize()
	if err != nil {
		return err
	}
	ds, err := src.Fetch(ctx, q)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", q, err)
	}

	sess := explorer.NewSession("cli", q, ds, nil)
	defer sess.Close()

	if err := applyCategories(sess, opts.Show, true); err != nil {
		return err
	}
	if err := applyCategories(sess, opts.Hide, false); err != nil {
		return err
	}
	if opts.Layout != "" {
		if _, err := sess.SelectLayout(opts.Layout); err != nil {
			return err
		}
	}
	for i := 0; i < opts.LayoutSteps; i++ {
		sess.AdvanceLayout()
	}

	sess.Attach()
	sess.Canvas().Wait()

	if opts.Search != "" {
		if err := sess.SearchNode(opts.Search); err != nil {
			return err
		}
	}
	if opts.Inspect != "" {
		if err := tap(sess, opts.Inspect); err != nil {
			return err
		}
	}

	view := sess.View()
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printView(w, view)
	return nil
}

func applyCategories(sess *explorer.Session, names []string, checked bool) error {
	for _, name := range names {
		c, ok := graph.ParseCategory(name)
		if !ok {
			return fmt.Errorf("%w: %q", explorer.ErrUnknownCategory, name)
		}
		if err := sess.ToggleCategory(c, checked); err != nil {
			return err
		}
	}
	return nil
}

// tap selects id as a node, or as an edge when no node matches.
func tap(sess *explorer.Session, id string) error {
	err := sess.TapNode(id)
	if errors.Is(err, explorer.ErrNotRendered) {
		if edgeErr := sess.TapEdge(id); edgeErr == nil {
			return nil
		}
	}
	return err
}

func printView(w io.Writer, v explorer.View) {
	ui.BannerTo(w, v.Query.String())

	if v.Empty {
		ui.Warn.Fprintln(w, "  No graph found for this query.")
		return
	}

	var rows [][]string
	for _, c := range v.Categories {
		rows = append(rows, []string{
			ui.CheckBox(c.Checked, c.Indeterminate),
			ui.Category(c.Category),
			fmt.Sprintf("%d/%d", c.Visible, c.Total),
		})
	}
	ui.TableTo(w, []string{"", "Category", "Visible"}, rows)
	fmt.Fprintf(w, "\n  %s\n", v.Summary)
	fmt.Fprintf(w, "  Layout: %s (%d/%d)\n\n", v.Layout.Name, v.Layout.Index+1, len(v.Layout.Names))

	rows = rows[:0]
	for _, n := range v.Nodes {
		id := n.ID
		if id == v.Highlighted {
			id = ui.Select.Sprint(id)
		}
		x, y := "-", "-"
		if p, ok := v.Canvas.Positions[n.ID]; ok {
			x, y = fmt.Sprintf("%.1f", p.X), fmt.Sprintf("%.1f", p.Y)
		}
		rows = append(rows, []string{id, n.Label, ui.Category(n.Type), x, y})
	}
	ui.TableTo(w, []string{"ID", "Label", "Type", "X", "Y"}, rows)

	if v.Inspector.Open {
		fmt.Fprintf(w, "\n  %s %s %s\n", ui.Info.Sprint(string(v.Inspector.Kind)), v.Inspector.ID, ui.Subtle.Sprint(v.Inspector.Label))
		printTree(w, v.Inspector.Tree, 2)
	}
}

func printTree(w io.Writer, nodes []explorer.PropertyNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.Children != nil || n.Type == explorer.TypeObject || n.Type == explorer.TypeArray {
			fmt.Fprintf(w, "%s%s:\n", indent, n.Key)
			printTree(w, n.Children, depth+1)
			continue
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, n.Key, formatValue(n))
	}
}

func formatValue(n explorer.PropertyNode) string {
	switch n.Type {
	case explorer.TypeNull:
		return ui.Subtle.Sprint("null")
	case explorer.TypeString:
		return fmt.Sprintf("%q", n.Value)
	default:
		return fmt.Sprint(n.Value)
	}
}
