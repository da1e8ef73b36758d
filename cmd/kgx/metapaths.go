package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dossier/kgexplorer/internal/source"
	"github.com/dossier/kgexplorer/internal/ui"
)

func metapathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metapaths",
		Short: "List the supported metapaths",
		Run: func(cmd *cobra.Command, args []string) {
			ui.Banner("metapaths")
			var rows [][]string
			for _, m := range source.Metapaths() {
				name := string(m.Name)
				if m.Name == source.DefaultMetapath {
					name = ui.Brand.Sprint(name)
				}
				rows = append(rows, []string{name, m.Pattern, m.Description})
			}
			ui.Table([]string{"Name", "Pattern", "Description"}, rows)
			fmt.Printf("\n  Default: %s\n", source.DefaultMetapath)
		},
	}
}
