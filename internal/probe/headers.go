package probe

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// coreSecurityHeaders are expected on every HTML response.
var coreSecurityHeaders = []string{
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"Referrer-Policy",
}

var disclosureHeaders = []string{
	"Server",
	"X-Powered-By",
	"X-AspNet-Version",
	"X-AspNetMvc-Version",
}

// sessionLifetimeLimit is the longest acceptable persistent session cookie.
const sessionLifetimeLimit = 24 * time.Hour

func detectHeaders(ep assessment.Endpoint, _ attempt, r, _ *response) []assessment.Indicator {
	var out []assessment.Indicator
	body := string(r.body)
	html := isHTMLResponse(r.header)

	out = append(out, transportIndicators(r)...)
	if html {
		out = append(out, securityHeaderIndicators(r.header)...)
		out = append(out, framingIndicators(r.header)...)
	}
	if d := serverDisclosure(r.header); d != "" {
		out = append(out, assessment.Weak(IndServerDisclosure, assessment.Positive, d))
	}
	out = append(out, cookieIndicators(r)...)
	out = append(out, corsIndicators(r.header)...)
	out = append(out, exposureIndicators(ep, r, body)...)
	out = append(out, tokenIndicators(r, body, time.Now())...)
	out = append(out, cacheIndicators(ep, r, body)...)
	if html {
		out = append(out, pageSignals(body)...)
	}
	if ep.HasTag(assessment.TagJSONAPI) {
		if versionedPathPattern.MatchString(r.url.Path) || r.header.Get("Api-Version") != "" || r.header.Get("X-Api-Version") != "" {
			out = append(out, assessment.Strong(IndAPIVersioned, assessment.Exculpatory, r.url.Path))
		} else {
			out = append(out, assessment.Weak(IndAPIUnversioned, assessment.Positive, r.url.Path))
		}
	}
	if libs := detectVulnerableLibraries(body); len(libs) > 0 {
		out = append(out, assessment.Strong(IndVulnerableLibrary, assessment.Positive, strings.Join(libs, "; ")))
	}
	return out
}

func isHTMLResponse(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Content-Type")), "html")
}

func transportIndicators(r *response) []assessment.Indicator {
	var out []assessment.Indicator
	if r.url.Scheme == "http" {
		loc := r.header.Get("Location")
		if r.status >= 300 && r.status < 400 && strings.HasPrefix(strings.ToLower(loc), "https://") {
			out = append(out, assessment.Strong(IndHTTPSEnforced, assessment.Exculpatory, "redirects to "+loc))
		} else {
			out = append(out, assessment.Strong(IndPlainHTTP, assessment.Positive, "served over http with status "+fmt.Sprint(r.status)))
		}
		return out
	}
	out = append(out, assessment.Weak(IndHTTPSEnforced, assessment.Exculpatory, "served over https"))
	if hsts := r.header.Get("Strict-Transport-Security"); hsts != "" && !strings.Contains(strings.ToLower(hsts), "max-age=0") {
		out = append(out, assessment.Strong(IndHSTS, assessment.Exculpatory, hsts))
	}
	if report := analyzeTLS(r.tls, time.Now()); report != nil {
		if report.weak() {
			out = append(out, assessment.Strong(IndTLSWeak, assessment.Positive, report.String()))
		} else {
			out = append(out, assessment.Strong(IndTLSStrong, assessment.Exculpatory, report.String()))
		}
	}
	return out
}

func securityHeaderIndicators(h http.Header) []assessment.Indicator {
	var missing, present []string
	for _, name := range coreSecurityHeaders {
		if h.Get(name) == "" {
			missing = append(missing, name)
		} else {
			present = append(present, name)
		}
	}
	if xcto := h.Get("X-Content-Type-Options"); xcto != "" && !strings.EqualFold(xcto, "nosniff") {
		missing = append(missing, "X-Content-Type-Options (invalid)")
	}
	if csp := strings.ToLower(h.Get("Content-Security-Policy")); strings.Contains(csp, "'unsafe-inline'") || strings.Contains(csp, "'unsafe-eval'") {
		missing = append(missing, "Content-Security-Policy (unsafe-inline/unsafe-eval)")
	}
	if len(missing) > 0 {
		return []assessment.Indicator{assessment.Weak(IndSecurityHeadersMissing, assessment.Positive, strings.Join(missing, ", "))}
	}
	return []assessment.Indicator{assessment.Weak(IndSecurityHeadersPresent, assessment.Exculpatory, strings.Join(present, ", "))}
}

func framingIndicators(h http.Header) []assessment.Indicator {
	xfo := strings.ToUpper(strings.TrimSpace(h.Get("X-Frame-Options")))
	csp := strings.ToLower(h.Get("Content-Security-Policy"))
	if xfo == "DENY" || xfo == "SAMEORIGIN" {
		return []assessment.Indicator{assessment.Strong(IndFramingProtected, assessment.Exculpatory, "X-Frame-Options: "+xfo)}
	}
	for _, directive := range strings.Split(csp, ";") {
		fields := strings.Fields(directive)
		if len(fields) > 1 && fields[0] == "frame-ancestors" && fields[1] != "*" {
			return []assessment.Indicator{assessment.Strong(IndFramingProtected, assessment.Exculpatory, strings.TrimSpace(directive))}
		}
	}
	return []assessment.Indicator{assessment.Weak(IndFramingAllowed, assessment.Positive, "no X-Frame-Options or frame-ancestors")}
}

func serverDisclosure(h http.Header) string {
	var found []string
	for _, name := range disclosureHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		// A bare product name is common; a version number is the disclosure.
		if name == "Server" && !strings.ContainsAny(v, "0123456789") {
			continue
		}
		found = append(found, name+": "+v)
	}
	return strings.Join(found, ", ")
}

func isSessionCookie(c *http.Cookie) bool {
	return sessionCookiePattern.MatchString(c.Name)
}

func cookieIndicators(r *response) []assessment.Indicator {
	var out []assessment.Indicator
	https := r.url.Scheme == "https"
	for _, c := range r.cookies {
		session := isSessionCookie(c)
		var missing []string
		if https && !c.Secure {
			missing = append(missing, "Secure")
		}
		if !c.HttpOnly {
			missing = append(missing, "HttpOnly")
		}
		if c.SameSite == http.SameSiteNoneMode && !c.Secure {
			missing = append(missing, "Secure with SameSite=None")
		}
		switch {
		case len(missing) > 0 && session:
			out = append(out, assessment.Strong(IndCookieInsecure, assessment.Positive, c.Name+" missing "+strings.Join(missing, ", ")))
		case len(missing) > 0:
			out = append(out, assessment.Weak(IndCookieInsecure, assessment.Positive, c.Name+" missing "+strings.Join(missing, ", ")))
		case session:
			out = append(out, assessment.Strong(IndCookieFlagsSet, assessment.Exculpatory, c.Name))
		}
		if !session || c.Value == "" {
			continue
		}
		if len(c.Value) < 16 || isNumeric(c.Value) {
			out = append(out, assessment.Strong(IndSessionIDWeak, assessment.Positive, fmt.Sprintf("%s value has %d characters", c.Name, len(c.Value))))
		} else {
			out = append(out, assessment.Weak(IndSessionIDStrong, assessment.Exculpatory, fmt.Sprintf("%s value has %d characters", c.Name, len(c.Value))))
		}
		lifetime := cookieLifetime(c, time.Now())
		if lifetime > sessionLifetimeLimit {
			out = append(out, assessment.Weak(IndSessionLongLived, assessment.Positive, fmt.Sprintf("%s persists for %s", c.Name, lifetime.Round(time.Hour))))
		} else {
			out = append(out, assessment.Weak(IndSessionExpires, assessment.Exculpatory, c.Name))
		}
	}
	return out
}

func cookieLifetime(c *http.Cookie, now time.Time) time.Duration {
	if c.MaxAge > 0 {
		return time.Duration(c.MaxAge) * time.Second
	}
	if !c.Expires.IsZero() {
		return c.Expires.Sub(now)
	}
	return 0
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func corsIndicators(h http.Header) []assessment.Indicator {
	origin := h.Get("Access-Control-Allow-Origin")
	creds := h.Get("Access-Control-Allow-Credentials") == "true"
	switch {
	case origin == "*":
		return []assessment.Indicator{assessment.Strong(IndCORSWildcard, assessment.Positive, "Access-Control-Allow-Origin: *")}
	case origin == hostileOrigin:
		detail := "foreign origin reflected"
		if creds {
			detail += " with credentials"
		}
		return []assessment.Indicator{assessment.Strong(IndCORSReflectsOrigin, assessment.Positive, detail)}
	case origin == "":
		return []assessment.Indicator{assessment.Weak(IndCORSRestricted, assessment.Exculpatory, "no Access-Control-Allow-Origin for foreign origin")}
	default:
		return []assessment.Indicator{assessment.Strong(IndCORSRestricted, assessment.Exculpatory, "Access-Control-Allow-Origin: "+origin)}
	}
}

// exposureIndicators flag sensitive data visible in the URL or body.
func exposureIndicators(ep assessment.Endpoint, r *response, body string) []assessment.Indicator {
	var out []assessment.Indicator
	if sessionInURLPattern.MatchString(r.url.String()) || sessionInURLPattern.MatchString(r.header.Get("Location")) {
		out = append(out, assessment.Strong(IndSessionIDInURL, assessment.Positive, "session identifier in URL"))
	} else if m := sessionInURLPattern.FindString(body); m != "" {
		out = append(out, assessment.Strong(IndSessionIDInURL, assessment.Positive, "link carries "+strings.Trim(m, ";?&=")))
	}

	var sensitive []string
	for _, p := range ep.Params {
		if p.Source == assessment.ParamQuery && sensitiveParamName.MatchString(p.Name) {
			sensitive = append(sensitive, p.Name)
		}
	}
	for name := range r.url.Query() {
		if sensitiveParamName.MatchString(name) {
			sensitive = append(sensitive, name)
		}
	}
	if len(sensitive) > 0 {
		sort.Strings(sensitive)
		out = append(out, assessment.Strong(IndSensitiveParamInURL, assessment.Positive, strings.Join(dedupe(sensitive), ", ")))
	}

	if pan, ok := findPAN(body); ok {
		out = append(out, assessment.Strong(IndPANExposed, assessment.Positive, "card number "+pan))
	} else if m := maskedPAN.FindString(body); m != "" {
		out = append(out, assessment.Weak(IndPANMasked, assessment.Exculpatory, m))
	}
	for _, s := range secretPatterns {
		if s.pattern.MatchString(body) {
			out = append(out, assessment.Strong(IndSecretExposed, assessment.Positive, s.name))
			break
		}
	}
	if r.url.Scheme == "http" && bytes.Contains(bytes.ToLower(r.body), []byte(`type="password"`)) {
		out = append(out, assessment.Strong(IndPasswordFieldOverHTTP, assessment.Positive, "password input served over http"))
	}
	return out
}

func dedupe(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i > 0 && in[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	return out
}

// tokenIndicators inspect bearer tokens handed to the client. Tokens are
// decoded without verification; only the claims are read.
func tokenIndicators(r *response, body string, now time.Time) []assessment.Indicator {
	candidates := jwtPattern.FindAllString(body, 3)
	for _, c := range r.cookies {
		if jwtPattern.MatchString(c.Value) {
			candidates = append(candidates, c.Value)
		}
	}
	if auth := r.header.Get("Authorization"); auth != "" {
		candidates = append(candidates, jwtPattern.FindAllString(auth, 1)...)
	}
	parser := jwt.NewParser()
	for _, raw := range candidates {
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
			continue
		}
		exp, ok := claims["exp"].(float64)
		if !ok {
			return []assessment.Indicator{assessment.Strong(IndTokenNoExpiry, assessment.Positive, "token without exp claim")}
		}
		lifetime := time.Unix(int64(exp), 0).Sub(now)
		if lifetime > sessionLifetimeLimit {
			return []assessment.Indicator{assessment.Weak(IndTokenNoExpiry, assessment.Positive, fmt.Sprintf("token valid for %s", lifetime.Round(time.Hour)))}
		}
		return []assessment.Indicator{assessment.Strong(IndTokenExpiry, assessment.Exculpatory, "token exp claim set")}
	}
	return nil
}

func cacheIndicators(ep assessment.Endpoint, r *response, body string) []assessment.Indicator {
	sensitive := sensitivePathPattern.MatchString(r.url.Path) ||
		ep.HasAnyTag(assessment.TagLogin, assessment.TagPassword) ||
		strings.Contains(strings.ToLower(body), `type="password"`)
	if !sensitive {
		return nil
	}
	cc := strings.ToLower(r.header.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") || strings.Contains(cc, "private") && strings.Contains(cc, "no-cache") {
		return []assessment.Indicator{assessment.Strong(IndNoStore, assessment.Exculpatory, "Cache-Control: "+cc)}
	}
	detail := "Cache-Control missing"
	if cc != "" {
		detail = "Cache-Control: " + cc
	}
	return []assessment.Indicator{assessment.Weak(IndSensitivePageCacheable, assessment.Positive, detail)}
}

// pageSignals reads authentication hints from page text.
func pageSignals(body string) []assessment.Indicator {
	var out []assessment.Indicator
	lower := strings.ToLower(body)
	passwordFields := strings.Count(lower, `type="password"`)
	if passwordFields > 0 {
		if m := mfaPattern.FindString(body); m != "" {
			out = append(out, assessment.Weak(IndMFASignal, assessment.Exculpatory, m))
		} else {
			out = append(out, assessment.Weak(IndNoMFASignal, assessment.Positive, "login form without second-factor hints"))
		}
	} else if m := mfaPattern.FindString(body); m != "" {
		out = append(out, assessment.Weak(IndMFASignal, assessment.Exculpatory, m))
	}
	if passwordFields >= 2 || passwordFields == 1 && strings.Contains(lower, "register") {
		if m := policyPattern.FindString(body); m != "" {
			out = append(out, assessment.Weak(IndPasswordPolicyHint, assessment.Exculpatory, m))
		} else {
			out = append(out, assessment.Weak(IndNoPasswordPolicyHint, assessment.Positive, "password form without policy hints"))
		}
	}
	if m := lastLogin.FindString(body); m != "" {
		out = append(out, assessment.Weak(IndLastLoginShown, assessment.Exculpatory, m))
	}
	return out
}
