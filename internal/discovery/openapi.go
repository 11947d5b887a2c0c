package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/transport"
)

var openAPILocations = []string{"/openapi.json", "/swagger.json", "/v3/api-docs", "/api/openapi.json"}

var pathTemplate = regexp.MustCompile(`\{([^}]+)\}`)

var httpMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// discoverOpenAPI adds the operations of the first OpenAPI document found
// at a well-known location.
func (e *Engine) discoverOpenAPI(ctx context.Context, session *transport.Session, root *url.URL, opts Options, b *builder) {
	depth := 1
	if opts.DepthLimit < depth {
		depth = opts.DepthLimit
	}
	for _, loc := range openAPILocations {
		if ctx.Err() != nil {
			return
		}
		docURL := &url.URL{Scheme: root.Scheme, Host: root.Host, Path: loc}
		page, err := e.fetch(ctx, session, docURL)
		if err != nil || page.status != http.StatusOK || len(page.body) == 0 {
			continue
		}
		doc, err := openapi3.NewLoader().LoadFromData(page.body)
		if err != nil || doc.Paths == nil {
			e.logger.Debug("not an openapi document", zap.String("url", docURL.String()), zap.Error(err))
			continue
		}
		b.cat.APISpec = docURL.String()
		for _, ep := range operationEndpoints(root, doc, depth) {
			if !b.add(ep) {
				return
			}
		}
		return
	}
}

func operationEndpoints(root *url.URL, doc *openapi3.T, depth int) []assessment.Endpoint {
	basePath := ""
	if len(doc.Servers) > 0 && doc.Servers[0] != nil {
		if su, err := url.Parse(doc.Servers[0].URL); err == nil && (su.Host == "" || strings.EqualFold(su.Host, root.Host)) {
			basePath = strings.TrimRight(su.Path, "/")
		}
	}

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var out []assessment.Endpoint
	for _, p := range keys {
		item := paths[p]
		if item == nil {
			continue
		}
		for _, method := range httpMethods {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			out = append(out, operationEndpoint(root, basePath, p, method, item, op, depth))
		}
	}
	return out
}

func operationEndpoint(root *url.URL, basePath, path, method string, item *openapi3.PathItem, op *openapi3.Operation, depth int) assessment.Endpoint {
	ep := assessment.Endpoint{Method: method, Depth: depth, ContentType: "application/json"}
	ep.AddTag(assessment.TagJSONAPI)

	templated := basePath + path
	segments := templateSegments(templated)

	params := append(openapi3.Parameters{}, item.Parameters...)
	params = append(params, op.Parameters...)
	for _, ref := range params {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		param := assessment.Param{Name: p.Name, Type: schemaType(p.Schema)}
		switch p.In {
		case openapi3.ParameterInPath:
			// Path params are addressed by segment index, as for crawled URLs.
			// Templates sharing a segment with literal text are not injectable.
			idx, ok := segments[p.Name]
			if !ok {
				continue
			}
			param.Name = fmt.Sprintf("path:%d", idx)
			param.Source = assessment.ParamPath
			param.Value = "1"
		case openapi3.ParameterInQuery:
			param.Source = assessment.ParamQuery
		default:
			continue
		}
		ep.Params = append(ep.Params, param)
	}
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if media := op.RequestBody.Value.Content.Get("application/json"); media != nil && media.Schema != nil && media.Schema.Value != nil {
			names := make([]string, 0, len(media.Schema.Value.Properties))
			for name := range media.Schema.Value.Properties {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				ep.Params = append(ep.Params, assessment.Param{
					Name:   name,
					Type:   schemaType(media.Schema.Value.Properties[name]),
					Source: assessment.ParamBody,
				})
			}
		}
	}

	concrete := pathTemplate.ReplaceAllString(templated, "1")
	u := &url.URL{Scheme: root.Scheme, Host: root.Host, Path: concrete}
	ep.URL = Canonical(u)
	if versionedPattern.MatchString(ep.URL) {
		ep.AddTag(assessment.TagVersionedAPI)
	}
	return ep
}

// templateSegments maps each template name that fills a whole path segment
// to that segment's index.
func templateSegments(path string) map[string]int {
	out := map[string]int{}
	for i, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if m := pathTemplate.FindStringSubmatch(seg); m != nil && m[0] == seg {
			out[m[1]] = i
		}
	}
	return out
}

func schemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return "string"
	}
	switch {
	case ref.Value.Type.Is(openapi3.TypeInteger):
		return "int"
	case ref.Value.Type.Is(openapi3.TypeNumber):
		return "number"
	case ref.Value.Type.Is(openapi3.TypeBoolean):
		return "bool"
	}
	return "string"
}
