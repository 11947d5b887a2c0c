package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func newMergeCmd(app *AppContext) *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "merge [run-id]",
		Short: "Rebuild a run's batch result from its module result files",
		Long: `Merge reads every module result file of a run, re-aggregates the
summaries and rewrites batch_result.json. Without a run id the most recent
run is merged. Use it after an interrupted run or after replacing a module
result with a re-run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := app.container()
			if err != nil {
				return err
			}
			svc := container.Assessments

			var runID string
			if len(args) == 1 {
				runID = args[0]
			} else {
				runs, err := svc.Runs(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					return fmt.Errorf("%w: no runs in %s", sharedErrors.ErrRunNotFound, app.ResultsDir)
				}
				runID = runs[0]
			}

			out, err := svc.Merge(cmd.Context(), runID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printBatch(w, out.Batch, details)
			fmt.Fprintf(w, "%s Merged %d module results into %s\n", colorSuccess("✓"), len(out.Batch.Modules), out.BatchPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "print every control verdict")
	return cmd
}
