package target

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name        string
		target      string
		wantHost    string
		wantPort    string
		wantFullURL string
	}{
		{"bare domain", "example.com", "example.com", "", "https://example.com/"},
		{"http url", "http://example.com", "example.com", "", "http://example.com/"},
		{"default port dropped", "http://Example.COM:80/", "example.com", "", "http://example.com/"},
		{"custom port", "example.com:8080", "example.com", "8080", "https://example.com:8080/"},
		{"fragment dropped", "https://example.com/app?q=1#top", "example.com", "", "https://example.com/app?q=1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := Parse(tc.target)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.target, err)
			}
			if info.Host != tc.wantHost || info.Port != tc.wantPort || info.FullURL != tc.wantFullURL {
				t.Fatalf("Parse(%q) = host %q port %q url %q", tc.target, info.Host, info.Port, info.FullURL)
			}
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url"} {
		if _, err := Parse(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestResolveDeduplicatesAndClassifies(t *testing.T) {
	docs := t.TempDir()
	r := NewResolver(zaptest.NewLogger(t))

	targets, err := r.Resolve([]string{
		"# comment",
		"",
		"example.com",
		"https://example.com/",
		"https://api.example.com/v1/",
		"ftp://bad.example.com",
		docs,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d: %v", len(targets), targets)
	}
	if targets[0].ID() != "https://example.com/" || targets[0].Kind() != assessment.TargetKindWeb {
		t.Fatalf("unexpected first target %v (%s)", targets[0], targets[0].Kind())
	}
	if targets[1].Kind() != assessment.TargetKindAPI {
		t.Fatalf("expected api kind, got %s", targets[1].Kind())
	}
	if targets[2].Kind() != assessment.TargetKindDocumentSet || !filepath.IsAbs(targets[2].ID()) {
		t.Fatalf("expected absolute document-set target, got %v (%s)", targets[2], targets[2].Kind())
	}
}

func TestResolveNoTargets(t *testing.T) {
	_, err := NewResolver(nil).Resolve([]string{"", "# only comments"})
	if !errors.Is(err, sharedErrors.ErrNoTargets) || !errors.Is(err, sharedErrors.ErrConfig) {
		t.Fatalf("expected ErrNoTargets wrapped in ErrConfig, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	if err := os.WriteFile(path, []byte("example.com\n# skip\nexample.org\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 raw lines, got %d", len(lines))
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, sharedErrors.ErrConfig) {
		t.Fatalf("expected ErrConfig for missing file, got %v", err)
	}
}

func TestSameSite(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"www.example.com", "api.example.com", true},
		{"example.com", "example.org", false},
		{"a.example.co.uk", "b.example.co.uk", true},
		{"127.0.0.1", "127.0.0.1", true},
		{"127.0.0.1", "127.0.0.2", false},
	}
	for _, c := range cases {
		if got := SameSite(c.a, c.b); got != c.want {
			t.Errorf("SameSite(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
