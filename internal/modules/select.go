package modules

import (
	"net/http"
	"regexp"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

var privilegedPath = regexp.MustCompile(`(?i)/(admin|account|accounts|dashboard|manage|settings|users?|profile|orders?|billing|internal)(/|$)`)

// Endpoint selectors used by the probe plans.

func hasParams(ep assessment.Endpoint) bool { return len(ep.Params) > 0 }

func tagged(tags ...assessment.Tag) func(assessment.Endpoint) bool {
	return func(ep assessment.Endpoint) bool { return ep.HasAnyTag(tags...) }
}

func all(preds ...func(assessment.Endpoint) bool) func(assessment.Endpoint) bool {
	return func(ep assessment.Endpoint) bool {
		for _, p := range preds {
			if !p(ep) {
				return false
			}
		}
		return true
	}
}

func not(pred func(assessment.Endpoint) bool) func(assessment.Endpoint) bool {
	return func(ep assessment.Endpoint) bool { return !pred(ep) }
}

// root selects the entry page.
func root(ep assessment.Endpoint) bool {
	return ep.Depth == 0 && ep.HasTag(assessment.TagPage)
}

func pages(ep assessment.Endpoint) bool { return ep.HasTag(assessment.TagPage) }

func stateChanging(ep assessment.Endpoint) bool {
	switch ep.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// protected selects endpoints that should refuse anonymous callers. Login
// and registration forms are public by nature.
func protected(ep assessment.Endpoint) bool {
	if ep.HasAnyTag(assessment.TagLogin, assessment.TagPassword) {
		return false
	}
	return stateChanging(ep) || ep.HasTag(assessment.TagJSONAPI) || privilegedPath.MatchString(ep.URL)
}
