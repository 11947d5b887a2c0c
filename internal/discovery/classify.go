package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

var (
	versionedPattern   = regexp.MustCompile(`(?i)/v\d+(/|$)|/api/\d+(/|$)|[?&]version=\d+`)
	apiPathPattern     = regexp.MustCompile(`(?i)(^|/)(api|rest|graphql)(/|$)`)
	numericPattern     = regexp.MustCompile(`^\d+$`)
	passwordChangeHint = regexp.MustCompile(`(?i)change|reset|password|passwd`)
)

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

func isXML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "/xml") || strings.Contains(ct, "+xml")
}

// pageEndpoint classifies a fetched resource by its content type and path.
func pageEndpoint(u *url.URL, depth, status int, contentType string) assessment.Endpoint {
	ep := assessment.Endpoint{
		URL:         Canonical(u),
		Method:      "GET",
		Depth:       depth,
		ContentType: contentType,
		Status:      status,
	}
	switch {
	case isJSON(contentType):
		ep.AddTag(assessment.TagJSONAPI)
	case isXML(contentType):
		ep.AddTag(assessment.TagXMLAPI)
	case isHTML(contentType):
		ep.AddTag(assessment.TagPage)
	}
	if apiPathPattern.MatchString(u.Path) && !ep.HasTag(assessment.TagPage) && !ep.HasTag(assessment.TagXMLAPI) {
		ep.AddTag(assessment.TagJSONAPI)
	}
	if versionedPattern.MatchString(ep.URL) {
		ep.AddTag(assessment.TagVersionedAPI)
	}
	ep.Params = append(queryParams(u), pathParams(u)...)
	return ep
}

// formEndpoint classifies a form by method and field types.
func formEndpoint(page *url.URL, f form, depth int) (assessment.Endpoint, bool) {
	action := page
	if f.action != "" {
		resolved := resolveLink(page, f.action)
		if resolved == nil {
			return assessment.Endpoint{}, false
		}
		action = resolved
	}
	ep := assessment.Endpoint{
		Method:  f.method,
		Depth:   depth,
		Enctype: f.enctype,
	}
	ep.AddTag(assessment.TagForm)

	source := assessment.ParamBody
	if f.method == "GET" {
		source = assessment.ParamQuery
	}
	passwords := 0
	for _, in := range f.inputs {
		ep.Params = append(ep.Params, assessment.Param{
			Name:   in.name,
			Type:   inputType(in),
			Source: source,
			Value:  in.value,
		})
		switch in.typ {
		case "password":
			passwords++
		case "file":
			ep.AddTag(assessment.TagUpload)
		}
	}
	if strings.Contains(f.enctype, "multipart/form-data") {
		ep.AddTag(assessment.TagUpload)
	}
	switch {
	case passwords >= 2, passwords == 1 && passwordChangeHint.MatchString(action.Path):
		ep.AddTag(assessment.TagPassword)
	case passwords == 1:
		ep.AddTag(assessment.TagLogin)
	}

	clean := *action
	if f.method == "GET" {
		clean.RawQuery = ""
	}
	ep.URL = Canonical(&clean)
	if versionedPattern.MatchString(ep.URL) {
		ep.AddTag(assessment.TagVersionedAPI)
	}
	return ep, true
}

func inputType(in formInput) string {
	switch in.typ {
	case "number", "range":
		return "number"
	case "email", "password", "file", "hidden", "url", "tel", "date":
		return in.typ
	case "checkbox", "radio":
		return "bool"
	}
	if in.pattern != "" {
		return "pattern"
	}
	return "string"
}

func queryParams(u *url.URL) []assessment.Param {
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if !isVolatileParam(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	params := make([]assessment.Param, 0, len(keys))
	for _, k := range keys {
		v := q.Get(k)
		typ := "string"
		if numericPattern.MatchString(v) {
			typ = "int"
		}
		params = append(params, assessment.Param{Name: k, Type: typ, Source: assessment.ParamQuery, Value: v})
	}
	return params
}

func pathParams(u *url.URL) []assessment.Param {
	var params []assessment.Param
	for i, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if numericPattern.MatchString(seg) {
			params = append(params, assessment.Param{
				Name:   fmt.Sprintf("path:%d", i),
				Type:   "int",
				Source: assessment.ParamPath,
				Value:  seg,
			})
		}
	}
	return params
}

func mergeParams(dst, src []assessment.Param) []assessment.Param {
	seen := make(map[string]struct{}, len(dst))
	for _, p := range dst {
		seen[string(p.Source)+":"+p.Name] = struct{}{}
	}
	for _, p := range src {
		key := string(p.Source) + ":" + p.Name
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, p)
	}
	return dst
}
