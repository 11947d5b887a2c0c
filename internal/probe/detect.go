package probe

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// Reflection contexts, from most to least exploitable.
const (
	contextScript  = "script"
	contextEvent   = "event-handler"
	contextMarkup  = "markup"
	contextComment = "comment"
	contextRCDATA  = "rcdata"
	contextText    = "text"
)

func injectedValue(a attempt) string {
	if _, v, ok := strings.Cut(a.payload, "="); ok {
		return v
	}
	return a.payload
}

func detectReflection(_ assessment.Endpoint, a attempt, r, base *response) []assessment.Indicator {
	body := string(r.body)
	switch a.class {
	case ClassXSS:
		return reflectionIndicators(body, injectedValue(a), a.marker)
	case ClassSQL:
		return sqlIndicators(r, base)
	case ClassTraversal:
		if m := matchAny(traversalSignatures, body); m != "" && (base == nil || !strings.Contains(string(base.body), m)) {
			return []assessment.Indicator{assessment.Strong(IndTraversalContent, assessment.Positive, m)}
		}
		return []assessment.Indicator{assessment.Weak(IndTraversalBlocked, assessment.Exculpatory, fmt.Sprintf("status %d without file content", r.status))}
	}
	return nil
}

func reflectionIndicators(body, value, marker string) []assessment.Indicator {
	if marker == "" || !strings.Contains(body, marker) {
		return []assessment.Indicator{assessment.Weak(IndPayloadNotReflected, assessment.Exculpatory, "marker absent from response")}
	}
	if !strings.Contains(body, value) {
		return []assessment.Indicator{assessment.Strong(IndPayloadReflectedEncoded, assessment.Exculpatory, "marker reflected with encoding")}
	}
	switch ctx := reflectionContext(body, marker); ctx {
	case contextScript, contextEvent, contextMarkup:
		return []assessment.Indicator{assessment.Strong(IndPayloadReflectedUnescaped, assessment.Positive, "unescaped in "+ctx+" context")}
	default:
		return []assessment.Indicator{assessment.Weak(IndPayloadReflectedUnescaped, assessment.Positive, "unescaped in "+ctx+" context")}
	}
}

// reflectionContext tokenizes body and reports where marker ends up.
// Markup means the payload created an element or attribute of its own.
func reflectionContext(body, marker string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var raw atom.Atom
	best := contextText
	rank := map[string]int{contextText: 0, contextRCDATA: 1, contextComment: 2, contextMarkup: 3, contextEvent: 4, contextScript: 5}
	promote := func(ctx string) {
		if rank[ctx] > rank[best] {
			best = ctx
		}
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			return best
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				raw = tok.DataAtom
			case atom.Textarea, atom.Title:
				raw = tok.DataAtom
			}
			for _, attr := range tok.Attr {
				if !strings.Contains(attr.Val, marker) {
					continue
				}
				if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
					promote(contextEvent)
				} else if strings.HasPrefix(strings.TrimSpace(strings.ToLower(attr.Val)), "javascript:") {
					promote(contextScript)
				}
			}
		case html.EndTagToken:
			raw = 0
		case html.TextToken:
			if !bytes.Contains(z.Text(), []byte(marker)) {
				continue
			}
			switch raw {
			case atom.Script:
				promote(contextScript)
			case atom.Textarea, atom.Title:
				promote(contextRCDATA)
			default:
				promote(contextMarkup)
			}
		case html.CommentToken:
			if bytes.Contains(z.Text(), []byte(marker)) {
				promote(contextComment)
			}
		}
	}
}

// sqlIndicators ignores signatures the page already shows without the
// injected quote.
func sqlIndicators(r, base *response) []assessment.Indicator {
	body := string(r.body)
	baseBody := ""
	baseStatus := 0
	if base != nil {
		baseBody, baseStatus = string(base.body), base.status
	}
	if m := matchAny(strongSQLSignatures, body); m != "" && !strings.Contains(baseBody, m) {
		return []assessment.Indicator{assessment.Strong(IndSQLErrorSignature, assessment.Positive, m)}
	}
	if m := matchAny(weakSQLSignatures, body); m != "" && !strings.Contains(baseBody, m) {
		return []assessment.Indicator{assessment.Weak(IndSQLErrorSignature, assessment.Positive, m)}
	}
	if r.status >= 500 && baseStatus > 0 && baseStatus < 500 {
		return []assessment.Indicator{assessment.Weak(IndSQLErrorSignature, assessment.Positive, fmt.Sprintf("status %d after quote, baseline %d", r.status, baseStatus))}
	}
	return []assessment.Indicator{assessment.Weak(IndSQLNoError, assessment.Exculpatory, fmt.Sprintf("status %d without database errors", r.status))}
}

func isRejection(status int) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusForbidden, http.StatusUnauthorized:
		return true
	}
	return false
}

func detectMethod(_ assessment.Endpoint, a attempt, r, _ *response) []assessment.Indicator {
	status := fmt.Sprintf("%s returned %d", a.req.Method, r.status)
	switch a.variant {
	case variantOptions:
		allow := strings.ToUpper(r.header.Get("Allow") + "," + r.header.Get("Access-Control-Allow-Methods"))
		var risky []string
		for _, m := range []string{"PUT", "DELETE", "TRACE", "CONNECT"} {
			if strings.Contains(allow, m) {
				risky = append(risky, m)
			}
		}
		if len(risky) > 0 {
			return []assessment.Indicator{assessment.Weak(IndDangerousMethodAllowed, assessment.Positive, "advertised: "+strings.Join(risky, ", "))}
		}
		if strings.Trim(allow, ",") != "" {
			return []assessment.Indicator{assessment.Weak(IndMethodRejected, assessment.Exculpatory, "advertised: "+strings.Trim(allow, ","))}
		}
		return nil
	case variantTrace:
		if r.status >= 200 && r.status < 300 && bytes.Contains(r.body, []byte(a.marker)) {
			return []assessment.Indicator{assessment.Strong(IndDangerousMethodAllowed, assessment.Positive, "TRACE echoes request headers")}
		}
	case variantSyntheticPut, variantSyntheticDel:
		if r.status >= 200 && r.status < 300 {
			return []assessment.Indicator{assessment.Weak(IndDangerousMethodAllowed, assessment.Positive, status)}
		}
	}
	switch {
	case isRejection(r.status):
		return []assessment.Indicator{assessment.Strong(IndMethodRejected, assessment.Exculpatory, status)}
	case r.status == http.StatusNotFound:
		return []assessment.Indicator{assessment.Weak(IndMethodRejected, assessment.Exculpatory, status)}
	}
	return nil
}

func isSensitiveEndpoint(ep assessment.Endpoint, r *response) bool {
	return sensitivePathPattern.MatchString(r.url.Path) ||
		ep.HasTag(assessment.TagJSONAPI) ||
		isStateChanging(ep.Method)
}

func detectUnauth(ep assessment.Endpoint, a attempt, r, _ *response) []assessment.Indicator {
	ok := r.status >= 200 && r.status < 300
	denied := r.status == http.StatusUnauthorized || r.status == http.StatusForbidden
	status := fmt.Sprintf("status %d", r.status)
	switch a.variant {
	case variantAnonymous:
		switch {
		case denied:
			return []assessment.Indicator{assessment.Strong(IndAuthRequired, assessment.Exculpatory, status)}
		case r.status >= 300 && r.status < 400 && loginPathPattern.MatchString(r.header.Get("Location")):
			return []assessment.Indicator{assessment.Weak(IndAuthRequired, assessment.Exculpatory, "redirect to "+r.header.Get("Location"))}
		case ok && isSensitiveEndpoint(ep, r):
			return []assessment.Indicator{assessment.Strong(IndReachableWithoutAuth, assessment.Positive, status+" without credentials")}
		case ok:
			return []assessment.Indicator{assessment.Weak(IndReachableWithoutAuth, assessment.Positive, status+" without credentials")}
		}
	case variantInvalidToken:
		switch {
		case denied:
			return []assessment.Indicator{assessment.Strong(IndInvalidTokenRejected, assessment.Exculpatory, status)}
		case ok && isSensitiveEndpoint(ep, r):
			return []assessment.Indicator{assessment.Strong(IndInvalidTokenAccepted, assessment.Positive, status+" with forged token")}
		case ok:
			return []assessment.Indicator{assessment.Weak(IndInvalidTokenAccepted, assessment.Positive, status+" with forged token")}
		}
	case variantNextID:
		switch {
		case ok:
			return []assessment.Indicator{assessment.Weak(IndSequentialIDAccessible, assessment.Positive, a.payload+" returned "+status)}
		case denied || r.status == http.StatusNotFound:
			return []assessment.Indicator{assessment.Weak(IndSequentialIDDenied, assessment.Exculpatory, a.payload+" returned "+status)}
		}
	}
	return nil
}

func isClientError(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusRequestURITooLong,
		http.StatusUnprocessableEntity, http.StatusUnsupportedMediaType, http.StatusRequestHeaderFieldsTooLarge:
		return true
	}
	return false
}

func detectBoundary(_ assessment.Endpoint, a attempt, r, _ *response) []assessment.Indicator {
	ok := r.status >= 200 && r.status < 300
	status := fmt.Sprintf("status %d", r.status)
	lower := strings.ToLower(string(r.body))
	mentionsInvalid := strings.Contains(lower, "invalid") || strings.Contains(lower, "error") || strings.Contains(lower, "must be")

	switch a.class {
	case ClassOversize:
		switch {
		case r.status >= 500:
			return []assessment.Indicator{assessment.Strong(IndServerErrorOnOversize, assessment.Positive, status)}
		case isClientError(r.status):
			return []assessment.Indicator{assessment.Strong(IndOversizeRejected, assessment.Exculpatory, status)}
		case ok:
			return []assessment.Indicator{assessment.Weak(IndOversizeHandled, assessment.Exculpatory, status)}
		}
	case ClassInvalidJSON:
		switch {
		case isClientError(r.status):
			return []assessment.Indicator{assessment.Strong(IndInvalidInputRejected, assessment.Exculpatory, status)}
		case ok && !mentionsInvalid:
			return []assessment.Indicator{assessment.Strong(IndInvalidInputAccepted, assessment.Positive, status+" for schema-violating body")}
		case ok, r.status >= 500:
			return []assessment.Indicator{assessment.Weak(IndInvalidInputAccepted, assessment.Positive, status)}
		}
	case ClassContentType:
		switch {
		case r.status == http.StatusUnsupportedMediaType:
			return []assessment.Indicator{assessment.Strong(IndContentTypeRejected, assessment.Exculpatory, status)}
		case isClientError(r.status):
			return []assessment.Indicator{assessment.Weak(IndContentTypeRejected, assessment.Exculpatory, status)}
		case ok:
			return []assessment.Indicator{assessment.Weak(IndContentTypeAccepted, assessment.Positive, status+" for text/plain body")}
		}
	case ClassXMLEntity:
		body := string(r.body)
		switch {
		case a.marker != "" && strings.Contains(body, a.marker) && !strings.Contains(body, "&sgap;") && !strings.Contains(body, "ENTITY"):
			return []assessment.Indicator{assessment.Strong(IndXMLEntityExpanded, assessment.Positive, "internal entity expanded")}
		case isClientError(r.status) || r.status == http.StatusForbidden:
			return []assessment.Indicator{assessment.Strong(IndXMLEntityRejected, assessment.Exculpatory, status)}
		case ok:
			return []assessment.Indicator{assessment.Weak(IndXMLEntityRejected, assessment.Exculpatory, status+" without expansion")}
		}
	case ClassUpload:
		switch {
		case ok && a.marker != "" && strings.Contains(string(r.body), a.marker):
			return []assessment.Indicator{assessment.Strong(IndDangerousUploadAccepted, assessment.Positive, "stored as "+a.marker)}
		case ok && !mentionsInvalid:
			return []assessment.Indicator{assessment.Weak(IndDangerousUploadAccepted, assessment.Positive, status)}
		case isClientError(r.status) || r.status == http.StatusForbidden || ok && mentionsInvalid:
			return []assessment.Indicator{assessment.Strong(IndDangerousUploadRejected, assessment.Exculpatory, status)}
		}
	case ClassClientCheck:
		switch {
		case isClientError(r.status) || ok && mentionsInvalid:
			return []assessment.Indicator{assessment.Strong(IndServerValidationEnforced, assessment.Exculpatory, status)}
		case ok:
			return []assessment.Indicator{assessment.Weak(IndClientValidationBypassed, assessment.Positive, status+" for values the browser would refuse")}
		}
	}
	return nil
}

var rateLimitHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "RateLimit-Limit", "RateLimit", "Retry-After"}

// minBurstForVerdict is the smallest burst whose unthrottled completion is
// treated as a strong signal.
const minBurstForVerdict = 20

func summarizeTiming(_ assessment.Endpoint, results []*response) []assessment.Indicator {
	var throttled, headers, failures int
	for _, r := range results {
		if r.err != nil || r.status >= 500 {
			failures++
			continue
		}
		if r.status == http.StatusTooManyRequests {
			throttled++
		}
		for _, h := range rateLimitHeaders {
			if r.header.Get(h) != "" {
				headers++
				break
			}
		}
	}
	n := len(results)
	var out []assessment.Indicator
	switch {
	case throttled > 0:
		out = append(out, assessment.Strong(IndThrottled, assessment.Exculpatory, fmt.Sprintf("%d of %d requests returned 429", throttled, n)))
	case headers > 0:
		out = append(out, assessment.Weak(IndThrottled, assessment.Exculpatory, "rate limit headers present"))
	case failures == 0 && n >= minBurstForVerdict:
		out = append(out, assessment.Strong(IndNoThrottling, assessment.Positive, fmt.Sprintf("%d requests accepted without throttling", n)))
	case failures == 0:
		out = append(out, assessment.Weak(IndNoThrottling, assessment.Positive, fmt.Sprintf("%d requests accepted without throttling", n)))
	}
	if n > 0 && float64(failures)/float64(n) >= 0.4 {
		out = append(out, assessment.Strong(IndDegradedUnderBurst, assessment.Positive, fmt.Sprintf("%d of %d requests failed", failures, n)))
	} else if n > 0 && float64(failures)/float64(n) < 0.1 {
		out = append(out, assessment.Weak(IndStableUnderBurst, assessment.Exculpatory, fmt.Sprintf("%d of %d requests failed", failures, n)))
	}
	return out
}

func detectErrorPage(_ assessment.Endpoint, a attempt, r, _ *response) []assessment.Indicator {
	body := string(r.body)
	if m := matchAny(stackTraceSignatures, body); m != "" {
		return []assessment.Indicator{assessment.Strong(IndVerboseError, assessment.Positive, truncate(m, 80))}
	}
	if m := matchAny(strongSQLSignatures, body); m != "" {
		return []assessment.Indicator{assessment.Strong(IndVerboseError, assessment.Positive, m)}
	}
	if r.status >= 400 {
		return []assessment.Indicator{assessment.Weak(IndGenericError, assessment.Exculpatory, fmt.Sprintf("%s returned %d without internals", a.variant, r.status))}
	}
	return nil
}

func detectExposure(_ assessment.Endpoint, a attempt, r, _ *response) []assessment.Indicator {
	switch {
	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden ||
		r.status == http.StatusNotFound || r.status == http.StatusGone:
		return []assessment.Indicator{assessment.Strong(IndSensitiveFileProtected, assessment.Exculpatory, fmt.Sprintf("%s answered %d", a.payload, r.status))}
	case r.status < 200 || r.status >= 300:
		return nil
	}
	for _, magic := range archiveMagic {
		if bytes.HasPrefix(r.body, magic) {
			return []assessment.Indicator{assessment.Strong(IndSensitiveFileExposed, assessment.Positive, a.payload+" served an archive")}
		}
	}
	if m := matchAny(exposedFileSignatures, string(r.body)); m != "" {
		return []assessment.Indicator{assessment.Strong(IndSensitiveFileExposed, assessment.Positive, a.payload+": "+truncate(m, 40))}
	}
	return []assessment.Indicator{assessment.Weak(IndSensitiveFileExposed, assessment.Positive, fmt.Sprintf("%s answered %d without a recognised signature", a.payload, r.status))}
}

func detectLogin(_ assessment.Endpoint, a attempt, r, _ *response) []assessment.Indicator {
	var out []assessment.Indicator
	if a.req.URL.Scheme == "http" {
		out = append(out, assessment.Strong(IndLoginOverHTTP, assessment.Positive, "credentials submitted to "+a.req.URL.String()))
	} else {
		out = append(out, assessment.Strong(IndLoginOverHTTPS, assessment.Exculpatory, "credentials submitted over https"))
	}
	body := string(r.body)
	switch a.variant {
	case variantLogin:
		if m := userEnumHint.FindString(body); m != "" {
			out = append(out, assessment.Strong(IndVerboseLoginError, assessment.Positive, m))
		} else if m := loginFailure.FindString(body); m != "" {
			out = append(out, assessment.Weak(IndGenericLoginError, assessment.Exculpatory, m))
		}
		out = append(out, fixationIndicators(r, a.marker)...)
	case variantPasswordWeak:
		ok := r.status >= 200 && r.status < 400
		switch {
		case isClientError(r.status) || policyPattern.MatchString(body) || strings.Contains(strings.ToLower(body), "too short"):
			out = append(out, assessment.Strong(IndWeakPasswordRejected, assessment.Exculpatory, fmt.Sprintf("status %d", r.status)))
		case ok && !loginFailure.MatchString(body):
			out = append(out, assessment.Weak(IndWeakPasswordAccepted, assessment.Positive, fmt.Sprintf("one-character password answered with %d", r.status)))
		}
	}
	return out
}

// fixationIndicators compare the session cookie the probe planted with the
// one the server answers with.
func fixationIndicators(r *response, marker string) []assessment.Indicator {
	planted := "sgapfixed" + marker
	for _, c := range r.cookies {
		if !isSessionCookie(c) {
			continue
		}
		if c.Value == planted {
			return []assessment.Indicator{assessment.Strong(IndSessionFixed, assessment.Positive, c.Name+" kept the client-supplied value")}
		}
		return []assessment.Indicator{assessment.Weak(IndSessionRotated, assessment.Exculpatory, c.Name+" issued by server")}
	}
	return nil
}
