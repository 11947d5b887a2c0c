package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	persistence "github.com/khanhnv2901/seca-gap/internal/infrastructure/persistence/json"
	"github.com/khanhnv2901/seca-gap/internal/infrastructure/schema"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

const checksumSuffix = ".sha256"

func newValidateCmd(app *AppContext) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate result files against the result schema",
		Long: `Validate checks module and batch result files against the published
result schema and, when a .sha256 sidecar exists, against their checksum.
Batch files are recognised by their report_type field.`,
		Example: "  seca-gap validate results/<run>/batch_result.json\n  seca-gap validate --run <run-id>",
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := schema.Default()
			if err != nil {
				return err
			}

			files := append([]string(nil), args...)
			if runID != "" {
				runFiles, err := runResultFiles(app.ResultsDir, runID, validator)
				if err != nil {
					return err
				}
				files = append(files, runFiles...)
			}
			if len(files) == 0 {
				return fmt.Errorf("%w: no files to validate", sharedErrors.ErrConfig)
			}

			w := cmd.OutOrStdout()
			failed := 0
			for _, path := range files {
				if err := validateFile(validator, path); err != nil {
					failed++
					fmt.Fprintf(w, "%s %s: %v\n", colorError("✗"), path, err)
					continue
				}
				fmt.Fprintf(w, "%s %s\n", colorSuccess("✓"), path)
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d files invalid", sharedErrors.ErrSchemaViolation, failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "validate every result file of a stored run")
	return cmd
}

func validateFile(v *schema.Validator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path + checksumSuffix); err == nil {
		if err := persistence.VerifyChecksum(path); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: not a JSON object: %v", sharedErrors.ErrSchemaViolation, err)
	}
	if _, isBatch := probe["report_type"]; isBatch {
		return v.ValidateBatch(data)
	}
	return v.ValidateModule(data)
}

func runResultFiles(resultsDir, runID string, v *schema.Validator) ([]string, error) {
	repo, err := persistence.NewResultRepository(resultsDir, v)
	if err != nil {
		return nil, err
	}
	dir, err := repo.RunDir(runID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrRunNotFound, runID)
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
