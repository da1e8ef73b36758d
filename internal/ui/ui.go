package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dossier/kgexplorer/internal/graph"
)

// Brand colors
var (
	Brand  = color.New(color.FgHiMagenta, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Info   = color.New(color.FgCyan)
	Good   = color.New(color.FgGreen)
	Bad    = color.New(color.FgRed)
	Select = color.New(color.FgBlack, color.BgYellow)
)

// Node colors match the canvas stylesheet: diseases red, genes green,
// pathways blue.
var categoryColors = map[graph.Category]*color.Color{
	graph.CategoryDisease: color.New(color.FgHiRed),
	graph.CategoryGene:    color.New(color.FgHiGreen),
	graph.CategoryPathway: color.New(color.FgHiBlue),
}

// CategoryHex is the canvas fill color per category.
var CategoryHex = map[graph.Category]string{
	graph.CategoryDisease: "#e11d48",
	graph.CategoryGene:    "#22c55e",
	graph.CategoryPathway: "#3b82f6",
}

// SetColor turns colored output on or off.
func SetColor(on bool) {
	color.NoColor = !on
}

// Banner prints the kgx banner.
func Banner(subtitle string) {
	BannerTo(color.Output, subtitle)
}

// BannerTo prints the kgx banner to w.
func BannerTo(w io.Writer, subtitle string) {
	fmt.Fprintf(w, "%s: %s\n\n", Brand.Sprint("kgx"), subtitle)
}

// Category renders c in its node color.
func Category(c graph.Category) string {
	if col, ok := categoryColors[c]; ok {
		return col.Sprint(string(c))
	}
	return Subtle.Sprint(string(c))
}

// Error prints err in red to w.
func Error(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", Bad.Sprint("error:"), err)
}

// Table prints a simple aligned table to stdout.
func Table(headers []string, rows [][]string) {
	TableTo(color.Output, headers, rows)
}

// TableTo prints a simple aligned table to w. Widths ignore ANSI escapes,
// so colored cells still line up.
func TableTo(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	headerLine := "  "
	sepLine := "  "
	for i, h := range headers {
		headerLine += pad(h, widths[i]) + "  "
		sepLine += strings.Repeat("─", widths[i]) + "  "
	}
	Subtle.Fprintln(w, strings.TrimRight(headerLine, " "))
	Subtle.Fprintln(w, strings.TrimRight(sepLine, " "))

	for _, row := range rows {
		line := "  "
		for i, cell := range row {
			if i < len(widths) {
				line += pad(cell, widths[i]) + "  "
			}
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

// StatusIcon returns a status icon string.
func StatusIcon(ok bool) string {
	if ok {
		return Good.Sprint("✓")
	}
	return Bad.Sprint("✗")
}

// CheckBox renders a tri-state category checkbox.
func CheckBox(checked, indeterminate bool) string {
	switch {
	case checked:
		return Good.Sprint("[x]")
	case indeterminate:
		return Warn.Sprint("[-]")
	default:
		return Subtle.Sprint("[ ]")
	}
}

func pad(s string, width int) string {
	if n := visibleLen(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// visibleLen counts runes outside ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			n++
		}
	}
	return n
}
