// Package target normalizes and deduplicates the base targets of a run.
package target

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

var apiPathPattern = regexp.MustCompile(`(?i)(^|/)(api|graphql|rest)(/|$)|/v\d+(/|$)|openapi|swagger`)

// Info contains parsed target information.
type Info struct {
	Original string
	Scheme   string
	Host     string
	Port     string
	Path     string
	FullURL  string
}

// Parse parses a target string into structured components. It accepts
// bare hosts, host:port pairs and full URLs; https is assumed when no
// scheme is given.
func Parse(raw string) (*Info, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, sharedErrors.ErrEmptyTarget
	}

	parsed, err := url.Parse(raw)
	// "example.com:8080" parses with scheme "example.com".
	if err != nil || parsed.Scheme == "" || strings.Contains(parsed.Scheme, ".") || parsed.Host == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", sharedErrors.ErrInvalidTarget, raw, err)
		}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", sharedErrors.ErrInvalidTarget, parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" || strings.ContainsAny(host, " /\\") {
		return nil, fmt.Errorf("%w: missing host in %q", sharedErrors.ErrInvalidTarget, raw)
	}

	port := parsed.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostPort := host
	if port != "" {
		hostPort = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		hostPort = "[" + host + "]"
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	normalized := url.URL{Scheme: scheme, Host: hostPort, RawQuery: parsed.RawQuery}
	normalized.Path, _ = url.PathUnescape(path)
	normalized.RawPath = path

	return &Info{
		Original: raw,
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		Path:     path,
		FullURL:  normalized.String(),
	}, nil
}

// Resolver turns raw caller input into a deduplicated target list.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a resolver. A nil logger is replaced by a no-op one.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve normalizes inputs, skipping blanks, comments and invalid entries.
// Existing filesystem paths become document-set targets. The first
// occurrence of a duplicate wins. ErrNoTargets is returned when nothing
// survives.
func (r *Resolver) Resolve(inputs []string) ([]assessment.Target, error) {
	seen := make(map[string]struct{}, len(inputs))
	targets := make([]assessment.Target, 0, len(inputs))

	for _, raw := range inputs {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		t, err := r.resolveOne(raw)
		if err != nil {
			r.logger.Warn("skipping target", zap.String("input", raw), zap.Error(err))
			continue
		}
		if _, dup := seen[t.ID()]; dup {
			r.logger.Debug("duplicate target", zap.String("target", t.ID()))
			continue
		}
		seen[t.ID()] = struct{}{}
		targets = append(targets, t)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %w", sharedErrors.ErrConfig, sharedErrors.ErrNoTargets)
	}
	return targets, nil
}

func (r *Resolver) resolveOne(raw string) (assessment.Target, error) {
	if !strings.Contains(raw, "://") {
		if _, err := os.Stat(raw); err == nil {
			abs, err := filepath.Abs(raw)
			if err != nil {
				return assessment.Target{}, err
			}
			return assessment.NewTarget(filepath.Clean(abs), assessment.TargetKindDocumentSet)
		}
	}
	info, err := Parse(raw)
	if err != nil {
		return assessment.Target{}, err
	}
	kind := assessment.TargetKindWeb
	if apiPathPattern.MatchString(info.Path) {
		kind = assessment.TargetKindAPI
	}
	return assessment.NewTarget(info.FullURL, kind)
}

// ReadFile reads one target per line. Blank lines and # comments are kept
// for Resolve to discard.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open target file: %v", sharedErrors.ErrConfig, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read target file: %v", sharedErrors.ErrConfig, err)
	}
	return lines, nil
}

// SameSite reports whether two hosts share a registrable domain. IP
// addresses and single-label hosts only match themselves.
func SameSite(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	if net.ParseIP(a) != nil || net.ParseIP(b) != nil {
		return false
	}
	ra, errA := publicsuffix.EffectiveTLDPlusOne(a)
	rb, errB := publicsuffix.EffectiveTLDPlusOne(b)
	if errA != nil || errB != nil {
		return false
	}
	return ra == rb
}
