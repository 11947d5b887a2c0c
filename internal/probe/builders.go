package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

const (
	variantBaseline     = "baseline"
	variantInject       = "inject"
	variantOptions      = "options"
	variantTrace        = "trace"
	variantSyntheticPut = "put-synthetic"
	variantSyntheticDel = "delete-synthetic"
	variantAnonymous    = "anonymous"
	variantInvalidToken = "invalid-token"
	variantNextID       = "next-id"
	variantBurst        = "burst"
	variantPassive      = "passive"
	variantMissing      = "missing-resource"
	variantMalformed    = "malformed-query"
	variantLogin        = "login-nonexistent-user"
	variantPasswordWeak = "password-policy"
	variantExposure     = "anonymous-fetch"
)

// hostileOrigin is a reserved, never-resolvable origin used for CORS checks.
const hostileOrigin = "https://sgap-origin.invalid"

var idParamPattern = regexp.MustCompile(`(?i)(^|_)(id|uid|user|account|order|doc)(_?id)?$`)

// destructivePattern matches path segments naming an action that destroys
// or revokes state.
var destructivePattern = regexp.MustCompile(`(?i)(^|[/_.-])(delete|remove|destroy|drop|purge|cancel|deactivate|revoke|unsubscribe|terminate|wipe)([/_.-]|$)`)

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// IsDestructive reports whether a well-formed request to ep could destroy
// or overwrite data. Such endpoints never receive injected or replayed
// requests.
func IsDestructive(ep assessment.Endpoint) bool {
	switch ep.Method {
	case http.MethodDelete, http.MethodPut, http.MethodPatch:
		return true
	}
	u, err := url.Parse(ep.URL)
	if err != nil {
		return true
	}
	return isStateChanging(ep.Method) && destructivePattern.MatchString(u.Path)
}

// withCredentials reports whether operator credentials may accompany a
// request of method. Writes are always sent anonymously so they cannot act
// on the operator's account.
func withCredentials(method string) bool {
	return !isStateChanging(method)
}

func defaultValue(p assessment.Param) string {
	if p.Value != "" {
		return p.Value
	}
	switch p.Type {
	case "int", "number":
		return "1"
	case "email":
		return "sgap-probe@example.invalid"
	case "bool":
		return "true"
	case "password":
		return "Sgap-Probe-Not-A-Password"
	}
	return "sgap"
}

// requestFor builds a request for ep with override values applied on top of
// each parameter's default. File parameters are omitted.
func requestFor(ep assessment.Endpoint, overrides map[string]string) (*http.Request, error) {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return nil, err
	}
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}
	value := func(p assessment.Param) string {
		if v, ok := overrides[p.Name]; ok {
			return v
		}
		return defaultValue(p)
	}

	query := u.Query()
	form := url.Values{}
	jsonBody := map[string]any{}
	segments := strings.Split(u.Path, "/")
	for _, p := range ep.Params {
		if p.Type == "file" {
			continue
		}
		switch p.Source {
		case assessment.ParamPath:
			idx, err := strconv.Atoi(strings.TrimPrefix(p.Name, "path:"))
			// Path segments are indexed after trimming the leading slash.
			if err == nil && idx+1 < len(segments) {
				segments[idx+1] = url.PathEscape(value(p))
			}
		case assessment.ParamQuery:
			query.Set(p.Name, value(p))
		default:
			if method == http.MethodGet {
				query.Set(p.Name, value(p))
				continue
			}
			form.Set(p.Name, value(p))
			jsonBody[p.Name] = value(p)
		}
	}
	u.RawPath = strings.Join(segments, "/")
	if unescaped, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = unescaped
	}
	u.RawQuery = query.Encode()

	if method == http.MethodGet || method == http.MethodHead {
		return http.NewRequest(method, u.String(), nil)
	}
	if ep.HasTag(assessment.TagJSONAPI) {
		data, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(method, u.String(), bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
	req, err := http.NewRequest(method, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func injectable(ep assessment.Endpoint, max int) []assessment.Param {
	var out []assessment.Param
	for _, p := range ep.Params {
		if p.Type == "file" || p.Type == "hidden" && strings.Contains(strings.ToLower(p.Name), "csrf") {
			continue
		}
		out = append(out, p)
		if len(out) >= max {
			break
		}
	}
	return out
}

func buildReflection(in buildInput) ([]attempt, error) {
	if IsDestructive(in.endpoint) {
		return nil, nil
	}
	var out []attempt
	for _, p := range injectable(in.endpoint, in.maxParams) {
		base, err := requestFor(in.endpoint, nil)
		if err != nil {
			return nil, err
		}
		creds := withCredentials(base.Method)
		out = append(out, attempt{req: base, variant: variantBaseline, param: p.Name, credentials: creds})
		for _, payload := range in.payloads {
			value := payload.Render(in.marker)
			req, err := requestFor(in.endpoint, map[string]string{p.Name: value})
			if err != nil {
				return nil, err
			}
			out = append(out, attempt{
				req:         req,
				payload:     p.Name + "=" + value,
				class:       payload.Class,
				variant:     variantInject,
				param:       p.Name,
				marker:      in.marker,
				credentials: creds,
			})
		}
	}
	return out, nil
}

func syntheticChild(ep assessment.Endpoint, marker string) string {
	u, _ := url.Parse(ep.URL)
	u.RawQuery = ""
	u.Path = strings.TrimRight(u.Path, "/") + "/" + marker
	u.RawPath = ""
	return u.String()
}

// buildMethod never sends a write verb to a real resource: PUT and DELETE
// target a synthetic child path that cannot exist.
func buildMethod(in buildInput) ([]attempt, error) {
	ep := in.endpoint
	options, err := http.NewRequest(http.MethodOptions, ep.URL, nil)
	if err != nil {
		return nil, err
	}
	trace, err := http.NewRequest(http.MethodTrace, ep.URL, nil)
	if err != nil {
		return nil, err
	}
	trace.Header.Set("X-Sgap-Trace", in.marker)
	child := syntheticChild(ep, "sgap-probe-"+in.marker)
	put, err := http.NewRequest(http.MethodPut, child, strings.NewReader("sgap probe "+in.marker))
	if err != nil {
		return nil, err
	}
	put.Header.Set("Content-Type", "text/plain")
	del, err := http.NewRequest(http.MethodDelete, child, nil)
	if err != nil {
		return nil, err
	}
	return []attempt{
		{req: options, variant: variantOptions, payload: "OPTIONS"},
		{req: trace, variant: variantTrace, payload: "TRACE", marker: in.marker},
		{req: put, variant: variantSyntheticPut, payload: "PUT " + child, marker: in.marker},
		{req: del, variant: variantSyntheticDel, payload: "DELETE " + child, marker: in.marker},
	}, nil
}

// buildUnauth replays the endpoint without credentials. State-changing
// endpoints receive an empty body so an unprotected handler has nothing to
// act on.
func buildUnauth(in buildInput) ([]attempt, error) {
	ep := in.endpoint
	newReq := func(method, target string) (*http.Request, error) {
		if !isStateChanging(method) {
			return http.NewRequest(method, target, nil)
		}
		body, contentType := "", "application/x-www-form-urlencoded"
		if ep.HasTag(assessment.TagJSONAPI) {
			body, contentType = "{}", "application/json"
		}
		req, err := http.NewRequest(method, target, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}

	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}
	// Destructive routes are addressed through a child path that cannot
	// exist: an auth layer still answers 401 while the handler has no
	// resource to act on.
	targetURL := ep.URL
	if IsDestructive(ep) {
		targetURL = syntheticChild(ep, "sgap-probe-"+in.marker)
	}
	anon, err := newReq(method, targetURL)
	if err != nil {
		return nil, err
	}
	out := []attempt{{req: anon, variant: variantAnonymous, payload: "no credentials"}}

	if in.hasCredentials {
		bad, err := newReq(method, targetURL)
		if err != nil {
			return nil, err
		}
		bad.Header.Set("Authorization", "Bearer sgap-invalid-"+in.marker)
		out = append(out, attempt{req: bad, variant: variantInvalidToken, payload: "invalid bearer token"})
	}

	if !isStateChanging(method) {
		for _, p := range ep.Params {
			if p.Type != "int" || (p.Source != assessment.ParamPath && !idParamPattern.MatchString(p.Name)) {
				continue
			}
			n, err := strconv.Atoi(defaultValue(p))
			if err != nil {
				continue
			}
			req, err := requestFor(ep, map[string]string{p.Name: strconv.Itoa(n + 1)})
			if err != nil {
				return nil, err
			}
			if req.URL.String() == anon.URL.String() {
				// The parameter could not be substituted.
				continue
			}
			out = append(out, attempt{
				req:         req,
				variant:     variantNextID,
				param:       p.Name,
				payload:     fmt.Sprintf("%s=%d", p.Name, n+1),
				credentials: true,
			})
			break
		}
	}
	return out, nil
}

func buildBoundary(in buildInput) ([]attempt, error) {
	ep := in.endpoint
	if IsDestructive(ep) {
		return nil, nil
	}
	var out []attempt
	for _, payload := range in.payloads {
		value := payload.Render(in.marker)
		switch payload.Class {
		case ClassOversize:
			params := injectable(ep, in.maxParams)
			if len(params) == 0 {
				u, _ := url.Parse(ep.URL)
				q := u.Query()
				q.Set("q", value)
				u.RawQuery = q.Encode()
				req, err := http.NewRequest(http.MethodGet, u.String(), nil)
				if err != nil {
					return nil, err
				}
				out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, param: "q", payload: "q=" + truncate(value, 16), credentials: withCredentials(req.Method)})
				continue
			}
			for _, p := range params {
				req, err := requestFor(ep, map[string]string{p.Name: value})
				if err != nil {
					return nil, err
				}
				out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, param: p.Name, payload: p.Name + "=" + truncate(value, 16), credentials: withCredentials(req.Method)})
			}
		case ClassInvalidJSON:
			if !ep.HasTag(assessment.TagJSONAPI) || !isStateChanging(ep.Method) {
				continue
			}
			req, err := http.NewRequest(ep.Method, ep.URL, strings.NewReader(value))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, payload: value, marker: in.marker, credentials: withCredentials(req.Method)})
		case ClassContentType:
			if !ep.HasTag(assessment.TagJSONAPI) || !isStateChanging(ep.Method) {
				continue
			}
			req, err := http.NewRequest(ep.Method, ep.URL, strings.NewReader(value))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "text/plain")
			out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, payload: "text/plain " + value, marker: in.marker, credentials: withCredentials(req.Method)})
		case ClassXMLEntity:
			if !ep.HasTag(assessment.TagXMLAPI) {
				continue
			}
			req, err := http.NewRequest(http.MethodPost, ep.URL, strings.NewReader(value))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/xml")
			out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, payload: value, marker: in.marker, credentials: withCredentials(req.Method)})
		case ClassUpload:
			if !ep.HasTag(assessment.TagUpload) {
				continue
			}
			req, err := uploadRequest(ep, value, in.marker)
			if err != nil {
				return nil, err
			}
			out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, payload: "upload " + value, marker: value, credentials: withCredentials(req.Method)})
		case ClassClientCheck:
			overrides := clientBypassValues(ep)
			if len(overrides) == 0 {
				continue
			}
			req, err := requestFor(ep, overrides)
			if err != nil {
				return nil, err
			}
			out = append(out, attempt{req: req, class: payload.Class, variant: variantInject, payload: encodeOverrides(overrides), credentials: withCredentials(req.Method)})
		}
	}
	return out, nil
}

func clientBypassValues(ep assessment.Endpoint) map[string]string {
	overrides := map[string]string{}
	for _, p := range ep.Params {
		switch p.Type {
		case "email":
			overrides[p.Name] = "invalid@@example"
		case "number":
			overrides[p.Name] = "not-a-number"
		case "pattern":
			overrides[p.Name] = "!!sgap-invalid!!"
		case "url":
			overrides[p.Name] = "not a url"
		}
	}
	return overrides
}

func encodeOverrides(m map[string]string) string {
	v := url.Values{}
	for k, val := range m {
		v.Set(k, val)
	}
	return v.Encode()
}

func uploadRequest(ep assessment.Endpoint, filename, marker string) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fileField := "file"
	for _, p := range ep.Params {
		if p.Type == "file" {
			fileField = p.Name
			continue
		}
		_ = w.WriteField(p.Name, defaultValue(p))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, filename))
	h.Set("Content-Type", "application/x-php")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(part, "sgap inert upload probe %s\n", marker)
	if err := w.Close(); err != nil {
		return nil, err
	}
	method := ep.Method
	if method == "" || method == http.MethodGet {
		method = http.MethodPost
	}
	req, err := http.NewRequest(method, ep.URL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func buildTiming(in buildInput) ([]attempt, error) {
	out := make([]attempt, 0, in.burst)
	for i := 0; i < in.burst; i++ {
		req, err := http.NewRequest(http.MethodGet, in.endpoint.URL, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt{req: req, variant: variantBurst, credentials: true})
	}
	return out, nil
}

func buildHeaders(in buildInput) ([]attempt, error) {
	req, err := http.NewRequest(http.MethodGet, in.endpoint.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Origin", hostileOrigin)
	return []attempt{{req: req, variant: variantPassive, payload: "Origin: " + hostileOrigin, credentials: true}}, nil
}

func buildErrorPage(in buildInput) ([]attempt, error) {
	missing, err := http.NewRequest(http.MethodGet, syntheticChild(in.endpoint, "sgap-missing-"+in.marker), nil)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(in.endpoint.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("sgap", `'"<{[`)
	u.RawQuery = q.Encode()
	malformed, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return []attempt{
		{req: missing, variant: variantMissing, payload: missing.URL.Path, credentials: true},
		{req: malformed, variant: variantMalformed, payload: `sgap='"<{[`, credentials: true},
	}, nil
}

// buildExposure fetches a well-known sensitive file anonymously and without
// following redirects, so a login redirect is not mistaken for content.
func buildExposure(in buildInput) ([]attempt, error) {
	req, err := http.NewRequest(http.MethodGet, in.endpoint.URL, nil)
	if err != nil {
		return nil, err
	}
	return []attempt{{req: req, variant: variantExposure, payload: req.URL.Path}}, nil
}

// buildLogin submits credentials that cannot succeed: a user name derived
// from the probe marker, and for password-change forms a one-character
// password that any policy rejects.
func buildLogin(in buildInput) ([]attempt, error) {
	ep := in.endpoint
	overrides := map[string]string{}
	variant := variantLogin
	if ep.HasTag(assessment.TagPassword) {
		variant = variantPasswordWeak
		for _, p := range ep.Params {
			if p.Type == "password" {
				overrides[p.Name] = "a"
			}
		}
	} else if ep.HasTag(assessment.TagLogin) {
		for _, p := range ep.Params {
			switch {
			case p.Type == "password":
				overrides[p.Name] = "Sgap-Invalid-" + in.marker
			case p.Type != "hidden" && p.Type != "bool":
				overrides[p.Name] = "sgap-nonexistent-" + in.marker
			}
		}
	} else {
		return nil, nil
	}
	req, err := requestFor(ep, overrides)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", "SESSIONID=sgapfixed"+in.marker)
	return []attempt{{req: req, variant: variant, payload: encodeOverrides(overrides), marker: in.marker}}, nil
}
