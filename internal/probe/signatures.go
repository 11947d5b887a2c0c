package probe

import (
	"fmt"
	"regexp"
	"strings"
)

// strongSQLSignatures are driver and engine error formats that do not
// appear in ordinary page content.
var strongSQLSignatures = []*regexp.Regexp{
	regexp.MustCompile(`SQLSTATE\[\w+\]`),
	regexp.MustCompile(`ORA-\d{5}`),
	regexp.MustCompile(`pg_query\(\)`),
	regexp.MustCompile(`mysql_fetch_\w+`),
	regexp.MustCompile(`sqlite3\.OperationalError`),
	regexp.MustCompile(`You have an error in your SQL syntax`),
	regexp.MustCompile(`syntax error at or near`),
	regexp.MustCompile(`(?:System\.Data\.SqlClient\.|java\.sql\.)?SqlException`),
	regexp.MustCompile(`Unclosed quotation mark after the character string`),
	regexp.MustCompile(`PG::SyntaxError`),
}

var weakSQLSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsql (?:error|syntax)\b`),
	regexp.MustCompile(`(?i)\bdatabase error\b`),
	regexp.MustCompile(`(?i)\bquery failed\b`),
}

var traversalSignatures = []*regexp.Regexp{
	regexp.MustCompile(`root:[x*]?:0:0:`),
	regexp.MustCompile(`(?m)^\[(?:fonts|extensions)\]\s*$`),
}

// exposedFileSignatures recognise the content of files that should never be
// served: environment files, VCS metadata, SQL dumps and server-side source.
var exposedFileSignatures = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^[A-Z][A-Z0-9_]*=\S`),
	regexp.MustCompile(`^ref: refs/`),
	regexp.MustCompile(`\[core\]\s+repositoryformatversion`),
	regexp.MustCompile(`(?i)\b(?:CREATE TABLE|INSERT INTO)\b`),
	regexp.MustCompile(`<\?php`),
}

// archiveMagic are leading bytes of archive formats used for backups.
var archiveMagic = [][]byte{
	[]byte("PK\x03\x04"),
	{0x1f, 0x8b},
	[]byte("7z\xbc\xaf\x27\x1c"),
}

var stackTraceSignatures = []*regexp.Regexp{
	regexp.MustCompile(`Traceback \(most recent call last\)`),
	regexp.MustCompile(`\bat [\w$.]+\([\w]+\.java:\d+\)`),
	regexp.MustCompile(`goroutine \d+ \[running\]`),
	regexp.MustCompile(`\.go:\d+ \+0x[0-9a-f]+`),
	regexp.MustCompile(`(?i)<b>(?:Fatal error|Warning|Parse error)</b>:.* on line <b>\d+</b>`),
	regexp.MustCompile(`Exception in thread "`),
	regexp.MustCompile(`System\.\w+Exception:`),
	regexp.MustCompile(`at [\w.]+ in [A-Za-z]:\\.+:line \d+`),
	regexp.MustCompile(`(?i)Whitelabel Error Page`),
	regexp.MustCompile(`(?i)\bDjango Version:`),
	regexp.MustCompile(`\bat .+ \((?:/|[A-Za-z]:\\).+\.js:\d+:\d+\)`),
}

var (
	sessionCookiePattern = regexp.MustCompile(`(?i)^(?:session|sess|sid|phpsessid|jsessionid|asp\.net_sessionid|connect\.sid|_session|.*_session|auth|token)$`)
	sessionInURLPattern  = regexp.MustCompile(`(?i)[;?&](?:jsessionid|phpsessid|sessionid|sid|session_id)=`)
	sensitiveParamName   = regexp.MustCompile(`(?i)^(?:password|passwd|pwd|pass|secret|token|access_token|api_key|apikey|ssn|card|cc|card_number|pan|cvv)$`)
	sensitivePathPattern = regexp.MustCompile(`(?i)/(?:admin|account|profile|settings|user|users|dashboard|manage|internal|private|billing|order|orders)(?:/|$)`)
	versionedPathPattern = regexp.MustCompile(`(?i)/v\d+(?:\.\d+)?(?:/|$)`)
	loginPathPattern     = regexp.MustCompile(`(?i)/(?:login|signin|sign-in|logon|auth)(?:/|$|\.)`)

	panCandidate  = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)
	maskedPAN     = regexp.MustCompile(`(?:[*xX#]{4}[ -]?){2,3}\d{4}\b`)
	jwtPattern    = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]*`)
	mfaPattern    = regexp.MustCompile(`(?i)(?:two[- ]factor|2fa|\bmfa\b|multi[- ]factor|one[- ]time (?:code|password)|authenticator app|verification code|\botp\b)`)
	policyPattern = regexp.MustCompile(`(?i)(?:at least \d+ characters|minimum (?:of )?\d+ characters|must contain|password (?:must|requirements|policy)|uppercase|special character)`)
	lastLogin     = regexp.MustCompile(`(?i)(?:last (?:login|logged in|sign[- ]in|visit)|previous login)`)
	loginFailure  = regexp.MustCompile(`(?i)(?:invalid|incorrect|wrong|failed|unknown|no such|not found|does not exist|doesn't exist|not registered)`)
	userEnumHint  = regexp.MustCompile(`(?i)(?:user(?:name)?|account|email) (?:not found|does not exist|doesn't exist|is not registered|unknown)|no (?:such|account) (?:user|account|with)|unknown user|incorrect password|wrong password|invalid password`)
)

// secretPatterns match credentials that should never be served in clear.
var secretPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"aws access key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"private key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{"password field in json", regexp.MustCompile(`"(?:password|passwd|secret)"\s*:\s*"[^"*]{4,}"`)},
	{"password hash", regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`)},
}

func matchAny(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// luhnValid reports whether digits passes the Luhn checksum.
func luhnValid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// findPAN returns the first Luhn-valid card number in text, masked for
// reporting.
func findPAN(text string) (string, bool) {
	for _, m := range panCandidate.FindAllString(text, 20) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		if strings.Count(digits, string(digits[0])) == len(digits) {
			continue
		}
		if luhnValid(digits) {
			return maskPAN(digits), true
		}
	}
	return "", false
}

func maskPAN(digits string) string {
	if len(digits) < 10 {
		return strings.Repeat("*", len(digits))
	}
	return digits[:6] + strings.Repeat("*", len(digits)-10) + digits[len(digits)-4:]
}

type vulnerableLibrary struct {
	name    string
	pattern *regexp.Regexp
	fixedIn string
	cves    string
}

// vulnerableLibraries lists client libraries with published fixes.
var vulnerableLibraries = []vulnerableLibrary{
	{"jQuery", regexp.MustCompile(`jquery[/-](\d+\.\d+\.?\d*)`), "3.5.0", "CVE-2020-11022, CVE-2020-11023"},
	{"AngularJS", regexp.MustCompile(`angularjs?[/@](\d+\.\d+\.?\d*)`), "1.7.9", "CVE-2019-10768"},
	{"Lodash", regexp.MustCompile(`lodash(?:\.js)?[@/](\d+\.\d+\.?\d*)`), "4.17.12", "CVE-2019-10744"},
	{"Moment.js", regexp.MustCompile(`moment\.js[/@](\d+\.\d+\.?\d*)`), "2.29.2", "CVE-2022-24785"},
	{"Bootstrap", regexp.MustCompile(`bootstrap[/@](\d+\.\d+\.?\d*)`), "3.4.0", "CVE-2019-8331"},
}

// detectVulnerableLibraries returns one description per outdated library
// referenced in content.
func detectVulnerableLibraries(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, lib := range vulnerableLibraries {
		for _, m := range lib.pattern.FindAllStringSubmatch(content, -1) {
			if len(m) < 2 || m[1] == "" {
				continue
			}
			key := lib.name + m[1]
			if seen[key] || compareVersion(m[1], lib.fixedIn) >= 0 {
				continue
			}
			seen[key] = true
			out = append(out, fmt.Sprintf("%s %s < %s (%s)", lib.name, m[1], lib.fixedIn, lib.cves))
		}
	}
	return out
}

// compareVersion compares dotted numeric versions: -1, 0 or 1.
func compareVersion(v1, v2 string) int {
	parts1 := strings.Split(v1, ".")
	parts2 := strings.Split(v2, ".")
	for len(parts1) < len(parts2) {
		parts1 = append(parts1, "0")
	}
	for len(parts2) < len(parts1) {
		parts2 = append(parts2, "0")
	}
	for i := range parts1 {
		var n1, n2 int
		if _, err := fmt.Sscanf(parts1[i], "%d", &n1); err != nil {
			n1 = 0
		}
		if _, err := fmt.Sscanf(parts2[i], "%d", &n2); err != nil {
			n2 = 0
		}
		if n1 < n2 {
			return -1
		}
		if n1 > n2 {
			return 1
		}
	}
	return 0
}
