package discovery

import (
	"net/url"
	"path/filepath"
	"strings"
)

// volatileParams are query parameters used only for cache-busting or
// tracking. They are dropped from canonical URLs so that the same resource
// is never visited twice.
var volatileParams = map[string]struct{}{
	"_": {}, "t": {}, "ts": {}, "timestamp": {}, "nocache": {}, "cache": {},
	"cb": {}, "v": {}, "ver": {}, "rand": {}, "random": {},
	"gclid": {}, "gclsrc": {}, "fbclid": {}, "_ga": {}, "_gid": {},
}

var assetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".mjs": {}, ".map": {}, ".png": {}, ".jpg": {},
	".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".webmanifest": {}, ".mp4": {}, ".mp3": {}, ".woff": {}, ".woff2": {},
	".ttf": {}, ".eot": {}, ".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {},
}

func isVolatileParam(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "utm_") {
		return true
	}
	_, ok := volatileParams[name]
	return ok
}

// Canonical returns the dedup key for a URL: lowercase scheme and host,
// default port dropped, fragment removed, SPA hash routes folded into the
// path, volatile params dropped and the query sorted.
func Canonical(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	host := strings.ToLower(c.Hostname())
	port := c.Port()
	if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	c.Host = host
	if strings.HasPrefix(c.Fragment, "/") {
		c.Path = ensureLeadingSlash(c.Fragment)
		c.RawPath = ""
	}
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	normalizeSPAPath(&c)
	if c.Path == "" {
		c.Path = "/"
	}

	q := c.Query()
	for key := range q {
		if isVolatileParam(key) {
			q.Del(key)
		}
	}
	c.RawQuery = q.Encode()
	c.ForceQuery = false
	return c.String()
}

func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "javascript:"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "data:"):
		return nil
	}

	if strings.HasPrefix(href, "#/") {
		return buildURLFromPath(base, href[1:])
	}
	if strings.HasPrefix(href, "/#/") {
		return buildURLFromPath(base, href[2:])
	}
	if strings.HasPrefix(href, "#") {
		return nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	ref = base.ResolveReference(ref)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil
	}
	if strings.HasPrefix(ref.Fragment, "/") {
		ref.Path = ensureLeadingSlash(ref.Fragment)
		ref.RawPath = ""
	}
	ref.Fragment = ""
	normalizeSPAPath(ref)
	if ref.Path == "" {
		ref.Path = "/"
	}
	return ref
}

func buildURLFromPath(base *url.URL, path string) *url.URL {
	if base == nil {
		return nil
	}
	return &url.URL{Scheme: base.Scheme, Host: base.Host, Path: ensureLeadingSlash(path)}
}

func ensureLeadingSlash(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func normalizeSPAPath(u *url.URL) {
	switch {
	case strings.HasPrefix(u.Path, "/#/"):
		u.Path = ensureLeadingSlash(strings.TrimPrefix(u.Path, "/#/"))
	case strings.HasPrefix(u.Path, "#/"):
		u.Path = ensureLeadingSlash(strings.TrimPrefix(u.Path, "#/"))
	}
}

func looksLikeAsset(path string) bool {
	if path == "" || path == "/" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, blocked := assetExtensions[ext]
	return blocked
}
