package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/seca-gap/internal/modules"
)

func newModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect the module and control catalogue",
	}
	cmd.AddCommand(newModulesListCmd(), newModulesShowCmd())
	return cmd
}

func newModulesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List modules in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := modules.Default()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(registry.Descriptors())
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NO\tID\tNAME\tCONTROLS")
			for _, d := range registry.Descriptors() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", d.Number, d.ID, d.Name, len(d.Controls))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d modules, %d controls\n", len(registry.Descriptors()), registry.ControlCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors as JSON")
	return cmd
}

func newModulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <module>",
		Short:   "Show a module's controls",
		Example: "  seca-gap modules show authentication\n  seca-gap modules show 3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := modules.Default().Lookup(args[0])
			if err != nil {
				return err
			}
			d := m.Descriptor()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%d] %s\n%s\n\n", colorInfo(d.ID), d.Number, d.Name, d.Description)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NO\tID\tNAME\tDESCRIPTION")
			for _, c := range d.Controls {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Number, c.ID, c.Name, c.Description)
			}
			return tw.Flush()
		},
	}
}
