package discovery

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

type wellKnownPath struct {
	path      string
	sensitive bool
}

// wellKnownPaths is checked once per target, after the crawl.
var wellKnownPaths = []wellKnownPath{
	{path: "/robots.txt"},
	{path: "/sitemap.xml"},
	{path: "/admin"},
	{path: "/api"},
	{path: "/backup"},
	{path: "/config"},
	{path: "/login"},
	{path: "/portal"},
	{path: "/uploads"},
	{path: "/.env", sensitive: true},
	{path: "/.git/HEAD", sensitive: true},
	{path: "/.git/config", sensitive: true},
	{path: "/db.sql", sensitive: true},
	{path: "/backup.sql", sensitive: true},
	{path: "/backup.zip", sensitive: true},
	{path: "/config.php.bak", sensitive: true},
}

// discoverWellKnown adds the well-known paths that answer 2xx at depth 1.
// Redirects are not followed, so a path bouncing to a login page does not
// count. When the target answers 2xx for a random missing path, candidates
// serving that same body are treated as not found.
func (e *Engine) discoverWellKnown(ctx context.Context, session *transport.Session, root *url.URL, opts Options, b *builder, visited map[string]struct{}) {
	if opts.DepthLimit < 1 {
		return
	}
	at := func(path string) *url.URL {
		return &url.URL{Scheme: root.Scheme, Host: root.Host, Path: path}
	}

	var softNotFound []byte
	missing, err := e.fetchWith(ctx, session, at("/sgap-missing-"+uuid.NewString()), false)
	if err != nil {
		e.logger.Debug("well-known pass skipped", zap.Error(err))
		return
	}
	if isSuccess(missing.status) {
		softNotFound = missing.body
	}

	for _, wk := range wellKnownPaths {
		if ctx.Err() != nil {
			return
		}
		if b.full() {
			b.cat.Truncated = true
			return
		}
		u := at(wk.path)
		key := Canonical(u)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		page, err := e.fetchWith(ctx, session, u, false)
		if err != nil || !isSuccess(page.status) {
			continue
		}
		if softNotFound != nil && bytes.Equal(page.body, softNotFound) {
			continue
		}
		ep := pageEndpoint(u, 1, page.status, page.contentType)
		if wk.sensitive {
			ep = assessment.Endpoint{
				URL:         key,
				Method:      http.MethodGet,
				Depth:       1,
				ContentType: page.contentType,
				Status:      page.status,
			}
			ep.AddTag(assessment.TagSensitiveFile)
			e.logger.Info("sensitive file answered", zap.String("url", key), zap.Int("status", page.status))
		}
		b.add(ep)
	}
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
