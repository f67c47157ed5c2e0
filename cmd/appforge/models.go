package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/awsl-project/appforge/internal/domain"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the available models and whether their provider is configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tCONFIGURED")
		for _, m := range domain.AvailableModels {
			id := m.ID
			if id == domain.DefaultModelID {
				id += " (default)"
			}
			configured := "no"
			if cfg.Providers[m.Provider].Configured() {
				configured = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, m.DisplayName, m.Provider, configured)
		}
		return w.Flush()
	},
}
