package evidence

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".yaml": true, ".yml": true,
	".json": true, ".conf": true, ".cfg": true, ".ini": true, ".csv": true,
}

// binaryExtensions need an external converter we do not ship.
var binaryExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
}

// maxDocumentBytes bounds how much of one document is scanned.
const maxDocumentBytes = 4 << 20

// DocumentAnalyzer scans a directory of policy and configuration
// documents for category keywords.
type DocumentAnalyzer struct {
	// Dir is scanned for web and api targets. Document-set targets scan
	// their own path.
	Dir        string
	Categories []Category
	logger     *zap.Logger
}

// NewDocumentAnalyzer creates an analyzer with the default categories.
func NewDocumentAnalyzer(dir string, logger *zap.Logger) *DocumentAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentAnalyzer{Dir: dir, Categories: DefaultCategories, logger: logger}
}

func (d *DocumentAnalyzer) Name() string { return "documents" }

// Collect returns one evidence item per (category, document) hit. For
// document-set targets a category nobody mentions yields a weak positive
// absence item.
func (d *DocumentAnalyzer) Collect(ctx context.Context, target assessment.Target) ([]assessment.Evidence, error) {
	root := d.Dir
	documentSet := target.Kind() == assessment.TargetKindDocumentSet
	if documentSet {
		root = target.ID()
	}
	if root == "" {
		return nil, nil
	}

	files, skipped, err := listDocuments(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if len(skipped) > 0 {
			return nil, fmt.Errorf("%w: no converter for %s", sharedErrors.ErrToolUnavailable, strings.Join(skipped, ", "))
		}
		return nil, nil
	}
	for _, s := range skipped {
		d.logger.Info("binary document skipped", zap.String("path", s))
	}

	var out []assessment.Evidence
	covered := map[string]bool{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "" || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(path)
		}
		hits, err := d.scanFile(path, rel)
		if err != nil {
			d.logger.Warn("document unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, h := range hits {
			covered[h.Indicator.Name] = true
		}
		out = append(out, hits...)
	}

	if documentSet {
		for _, c := range d.Categories {
			if covered[c.Indicator] {
				continue
			}
			out = append(out, assessment.Evidence{
				Source:     root,
				SourceKind: assessment.SourceDocument,
				Indicator:  assessment.Weak(c.Indicator, assessment.Positive, "not documented in any of "+fmt.Sprint(len(files))+" documents"),
			})
		}
	}
	return out, nil
}

func listDocuments(root string) (files, skipped []string, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", sharedErrors.ErrToolUnavailable, err)
	}
	if !info.IsDir() {
		root = filepath.Dir(root)
	}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if entry.IsDir() {
			if path != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch {
		case textExtensions[ext]:
			files = append(files, path)
		case binaryExtensions[ext]:
			skipped = append(skipped, path)
		}
		return nil
	})
	sort.Strings(files)
	sort.Strings(skipped)
	return files, skipped, err
}

// scanFile reports, per category, the strongest hit in the file. A
// negative statement outranks supporting ones.
func (d *DocumentAnalyzer) scanFile(path, source string) ([]assessment.Evidence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type best struct {
		rank int
		ev   assessment.Evidence
	}
	found := map[string]best{}
	record := func(c Category, rank int, ind assessment.Indicator, line string) {
		if cur, ok := found[c.Indicator]; ok && cur.rank >= rank {
			return
		}
		found[c.Indicator] = best{rank: rank, ev: assessment.Evidence{
			Source:     source,
			SourceKind: assessment.SourceDocument,
			Indicator:  ind,
			Excerpt:    excerpt(line),
		}}
	}

	scanner := bufio.NewScanner(io.LimitReader(f, maxDocumentBytes))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		lower := strings.ToLower(line)
		for _, c := range d.Categories {
			if m := firstMatch(c.Negative, line); m != "" {
				record(c, 3, assessment.Strong(c.Indicator, assessment.Positive, m), line)
				continue
			}
			if m := firstMatch(c.Strong, line); m != "" {
				record(c, 2, assessment.Strong(c.Indicator, assessment.Exculpatory, m), line)
				continue
			}
			for _, kw := range c.Keywords {
				if strings.Contains(lower, kw) {
					record(c, 1, assessment.Weak(c.Indicator, assessment.Exculpatory, kw), line)
					break
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrParse, source, err)
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]assessment.Evidence, 0, len(names))
	for _, name := range names {
		out = append(out, found[name].ev)
	}
	return out, nil
}

func excerpt(line string) string {
	line = strings.TrimSpace(line)
	if len(line) > constants.ExcerptLimit {
		return line[:constants.ExcerptLimit] + "..."
	}
	return line
}
