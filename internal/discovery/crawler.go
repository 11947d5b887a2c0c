// Package discovery crawls a target breadth-first within a depth and
// endpoint budget and classifies what it finds into an endpoint catalogue.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
	"github.com/khanhnv2901/seca-gap/internal/target"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

// ErrTargetUnreachable is returned when the very first request fails.
var ErrTargetUnreachable = errors.New("target unreachable")

// Options configures one discovery pass.
type Options struct {
	DepthLimit      int
	PageLimit       int
	AllowSubdomains bool
	// OpenAPI enables probing well-known OpenAPI document locations.
	OpenAPI bool
	// WellKnown enables the well-known path pass (admin areas, robots.txt,
	// VCS metadata, dumps). It needs a depth limit of at least 1.
	WellKnown bool
}

// SessionProvider returns the shared HTTP session for a target.
type SessionProvider interface {
	For(target string) *transport.Session
}

// Engine performs bounded discovery.
type Engine struct {
	sessions SessionProvider
	logger   *zap.Logger
}

// NewEngine creates a discovery engine.
func NewEngine(sessions SessionProvider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{sessions: sessions, logger: logger}
}

type queueItem struct {
	url   *url.URL
	depth int
}

type fetched struct {
	status      int
	contentType string
	body        []byte
	// final is the URL that answered after redirects.
	final *url.URL
}

// Discover crawls t and returns its endpoint catalogue. Document-set
// targets yield an empty catalogue. The first request failing returns
// ErrTargetUnreachable; later failures are recorded and skipped.
func (e *Engine) Discover(ctx context.Context, t assessment.Target, opts Options) (*assessment.Catalogue, error) {
	if opts.DepthLimit < 0 {
		opts.DepthLimit = 0
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = constants.DefaultPageLimit
	}
	cat := &assessment.Catalogue{
		Target:     t.ID(),
		DepthLimit: opts.DepthLimit,
		PageLimit:  opts.PageLimit,
		Endpoints:  []assessment.Endpoint{},
	}
	if !t.IsRemote() {
		return cat, nil
	}

	root, err := url.Parse(t.ID())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidTarget, err)
	}
	session := e.sessions.For(t.ID())
	b := &builder{cat: cat, index: make(map[string]int), limit: opts.PageLimit}

	queue := []queueItem{{url: root, depth: 0}}
	visited := map[string]struct{}{Canonical(root): {}}
	scripts := map[string]struct{}{}
	first := true

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return cat, transport.Classify(err)
		}
		if b.full() {
			cat.Truncated = true
			break
		}
		item := queue[0]
		queue = queue[1:]

		page, err := e.fetch(ctx, session, item.url)
		if err != nil {
			if first {
				return nil, fmt.Errorf("%w: %s: %w", ErrTargetUnreachable, t.ID(), err)
			}
			e.logger.Debug("fetch failed", zap.String("url", item.url.String()), zap.Error(err))
			cat.Failures = append(cat.Failures, assessment.CrawlFailure{URL: Canonical(item.url), Error: err.Error()})
			continue
		}
		first = false
		cat.PagesFetched++
		b.add(pageEndpoint(item.url, item.depth, page.status, page.contentType))

		if page.status >= 400 || !isHTML(page.contentType) || len(page.body) == 0 {
			continue
		}
		// Links resolve against the URL that served the page.
		base := page.final
		if !e.inScopeURL(root, base, opts) {
			e.logger.Debug("redirected out of scope", zap.String("url", item.url.String()), zap.String("final", base.String()))
			continue
		}
		content := parseHTML(page.body)

		for _, f := range content.forms {
			ep, ok := formEndpoint(base, f, item.depth)
			if !ok || !e.inScope(root, ep.URL, opts) {
				continue
			}
			b.add(ep)
		}
		for _, src := range content.scripts {
			u := resolveLink(base, src)
			if u == nil {
				continue
			}
			if !e.inScopeURL(root, u, opts) {
				key := Canonical(u)
				if _, ok := scripts[key]; !ok {
					scripts[key] = struct{}{}
					cat.ThirdPartyScripts = append(cat.ThirdPartyScripts, key)
				}
				continue
			}
			ep := assessment.Endpoint{URL: Canonical(u), Method: "GET", Depth: item.depth}
			ep.AddTag(assessment.TagScript)
			b.add(ep)
		}

		if item.depth+1 > opts.DepthLimit {
			continue
		}
		for _, raw := range content.links {
			u := resolveLink(base, raw)
			if u == nil || !e.inScopeURL(root, u, opts) || looksLikeAsset(u.Path) {
				continue
			}
			key := Canonical(u)
			if _, ok := visited[key]; ok {
				continue
			}
			visited[key] = struct{}{}
			next, _ := url.Parse(key)
			queue = append(queue, queueItem{url: next, depth: item.depth + 1})
		}
	}
	if len(queue) > 0 {
		cat.Truncated = true
	}

	if opts.OpenAPI && !b.full() {
		e.discoverOpenAPI(ctx, session, root, opts, b)
	}
	if opts.WellKnown {
		e.discoverWellKnown(ctx, session, root, opts, b, visited)
	}

	e.logger.Debug("discovery finished",
		zap.String("target", t.ID()),
		zap.Int("endpoints", len(cat.Endpoints)),
		zap.Int("pages", cat.PagesFetched),
		zap.Bool("truncated", cat.Truncated))
	return cat, nil
}

func (e *Engine) fetch(ctx context.Context, session *transport.Session, u *url.URL) (*fetched, error) {
	return e.fetchWith(ctx, session, u, true)
}

func (e *Engine) fetchWith(ctx context.Context, session *transport.Session, u *url.URL, follow bool) (*fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	resp, err := session.Do(ctx, req, transport.RequestOptions{FollowRedirects: follow, WithCredentials: true})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &fetched{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), final: u}
	if resp.Request != nil && resp.Request.URL != nil {
		out.final = resp.Request.URL
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxCrawlBodyBytes))
	if err != nil {
		return out, nil
	}
	out.body = data
	return out, nil
}

func (e *Engine) inScope(root *url.URL, raw string, opts Options) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return e.inScopeURL(root, u, opts)
}

func (e *Engine) inScopeURL(root, u *url.URL, opts Options) bool {
	if strings.EqualFold(root.Host, u.Host) {
		return true
	}
	if strings.EqualFold(root.Hostname(), u.Hostname()) && u.Port() == "" && root.Port() == "" {
		return true
	}
	return opts.AllowSubdomains && target.SameSite(root.Hostname(), u.Hostname())
}

// builder enforces the endpoint budget and merges duplicate endpoints.
type builder struct {
	cat   *assessment.Catalogue
	index map[string]int
	limit int
}

func (b *builder) full() bool { return len(b.cat.Endpoints) >= b.limit }

func (b *builder) add(ep assessment.Endpoint) bool {
	if i, ok := b.index[ep.Key()]; ok {
		existing := &b.cat.Endpoints[i]
		for _, tag := range ep.Tags {
			existing.AddTag(tag)
		}
		existing.Params = mergeParams(existing.Params, ep.Params)
		if existing.Enctype == "" {
			existing.Enctype = ep.Enctype
		}
		return true
	}
	if b.full() {
		b.cat.Truncated = true
		return false
	}
	if ep.Tags == nil {
		ep.Tags = []assessment.Tag{}
	}
	b.index[ep.Key()] = len(b.cat.Endpoints)
	b.cat.Endpoints = append(b.cat.Endpoints, ep)
	return true
}
