// Package json stores run results as JSON documents on the local
// filesystem.
package json

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
	"github.com/khanhnv2901/seca-gap/internal/shared/security"
)

// BatchFileName is the consolidated result written at the end of a run.
const BatchFileName = "batch_result.json"

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// ResultRepository implements assessment.Repository with one directory per
// run: <results>/<run>/<module>__<target-slug>.json plus batch_result.json.
// Every document is schema-validated before it is written and every write
// leaves a .sha256 sidecar.
type ResultRepository struct {
	resultsDir string
	validator  assessment.SchemaValidator
	mu         sync.RWMutex
}

// NewResultRepository creates the repository, ensuring resultsDir exists.
// validator may be nil to skip validation, which only tests should do.
func NewResultRepository(resultsDir string, validator assessment.SchemaValidator) (*ResultRepository, error) {
	if resultsDir == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}
	if err := os.MkdirAll(resultsDir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &ResultRepository{resultsDir: resultsDir, validator: validator}, nil
}

// ResultsDir returns the root directory.
func (r *ResultRepository) ResultsDir() string { return r.resultsDir }

// RunDir resolves the directory of runID inside the results root.
func (r *ResultRepository) RunDir(runID string) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("%w: run id", sharedErrors.ErrMissingRequired)
	}
	dir, err := security.ResolveChild(r.resultsDir, runID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrInvalidInput, err)
	}
	return dir, nil
}

// ModuleFileName returns the file name of a module result.
func ModuleFileName(module, target string) string {
	return module + "__" + TargetSlug(target) + ".json"
}

// TargetSlug turns a target id into a file-name-safe token. A short digest
// keeps distinct targets with the same readable form apart.
func TargetSlug(target string) string {
	readable := strings.ToLower(target)
	readable = strings.TrimPrefix(readable, "https://")
	readable = strings.TrimPrefix(readable, "http://")
	readable = strings.Trim(slugUnsafe.ReplaceAllString(readable, "-"), "-")
	if len(readable) > 60 {
		readable = strings.Trim(readable[:60], "-")
	}
	sum := sha256.Sum256([]byte(target))
	return readable + "-" + hex.EncodeToString(sum[:4])
}

// SaveModule validates and writes one module result.
func (r *ResultRepository) SaveModule(ctx context.Context, runID string, result assessment.ModuleResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.validator != nil {
		if err := r.validator.ValidateModule(result); err != nil {
			return "", err
		}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}
	return r.write(runID, ModuleFileName(result.Module, result.Target), data)
}

// SaveBatch validates and writes the batch result.
func (r *ResultRepository) SaveBatch(ctx context.Context, batch *assessment.BatchResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if batch == nil {
		return "", fmt.Errorf("%w: batch", sharedErrors.ErrMissingRequired)
	}
	if r.validator != nil {
		if err := r.validator.ValidateBatch(batch); err != nil {
			return "", err
		}
	}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}
	return r.write(batch.RunID, BatchFileName, data)
}

func (r *ResultRepository) write(runID, name string, data []byte) (string, error) {
	dir, err := r.RunDir(runID)
	if err != nil {
		return "", err
	}
	path, err := security.ResolveChild(dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("%w: create run directory: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	if err := writeWithChecksum(path, data); err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return path, nil
}

// LoadBatch reads, verifies and validates the batch result of runID.
func (r *ResultRepository) LoadBatch(ctx context.Context, runID string) (*assessment.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := r.RunDir(runID)
	if err != nil {
		return nil, err
	}
	data, err := r.read(filepath.Join(dir, BatchFileName))
	if err != nil {
		return nil, err
	}
	if r.validator != nil {
		if err := r.validator.ValidateBatch(data); err != nil {
			return nil, err
		}
	}
	var batch assessment.BatchResult
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	return &batch, nil
}

// LoadModules reads every module result of runID, sorted by target then
// module number.
func (r *ResultRepository) LoadModules(ctx context.Context, runID string) ([]assessment.ModuleResult, error) {
	dir, err := r.RunDir(runID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	var out []assessment.ModuleResult
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == BatchFileName || !strings.HasSuffix(name, ".json") || !strings.Contains(name, "__") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.LoadModuleFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].ModuleNumber < out[j].ModuleNumber
	})
	return out, nil
}

// LoadModuleFile reads a single module result document. Used by merge for
// files outside the results tree.
func (r *ResultRepository) LoadModuleFile(path string) (assessment.ModuleResult, error) {
	data, err := r.read(path)
	if err != nil {
		return assessment.ModuleResult{}, err
	}
	if r.validator != nil {
		if err := r.validator.ValidateModule(data); err != nil {
			return assessment.ModuleResult{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	var res assessment.ModuleResult
	if err := json.Unmarshal(data, &res); err != nil {
		return assessment.ModuleResult{}, fmt.Errorf("%w: %s: %v", sharedErrors.ErrDeserializationFailed, filepath.Base(path), err)
	}
	return res, nil
}

// read loads path and checks its sidecar when one exists.
func (r *ResultRepository) read(path string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrRunNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	if _, err := os.Stat(path + checksumSuffix); err == nil {
		if err := verifyData(path, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// ListRuns returns run directories newest first.
func (r *ResultRepository) ListRuns(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.resultsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	type run struct {
		id  string
		mod int64
	}
	var runs []run
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, run{id: entry.Name(), mod: info.ModTime().UnixNano()})
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].mod != runs[j].mod {
			return runs[i].mod > runs[j].mod
		}
		return runs[i].id < runs[j].id
	})
	out := make([]string, len(runs))
	for i, rn := range runs {
		out[i] = rn.id
	}
	return out, nil
}
