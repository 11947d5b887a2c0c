package evidence

import "regexp"

// Category is one kind of documentary evidence. Strong patterns are
// specific statements, keywords are loose mentions. Negative patterns are
// statements that argue the control is not met.
type Category struct {
	Indicator string
	Strong    []*regexp.Regexp
	Keywords  []string
	Negative  []*regexp.Regexp
}

func re(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Document indicator names. Control rules list the ones they accept.
const (
	DocPasswordHashing     = "doc_password_hashing"
	DocEncryptionAtRest    = "doc_encryption_at_rest"
	DocTransitEncryption   = "doc_transit_encryption"
	DocPANMasking          = "doc_pan_masking"
	DocSADNotStored        = "doc_sad_not_stored"
	DocLogMasking          = "doc_log_masking"
	DocAuthLogging         = "doc_auth_logging"
	DocAuthzLogging        = "doc_authz_logging"
	DocAccessLogging       = "doc_access_logging"
	DocErrorLogging        = "doc_error_logging"
	DocSecurityEventLog    = "doc_security_event_logging"
	DocAuditTrail          = "doc_audit_trail"
	DocLogIntegrity        = "doc_log_integrity"
	DocLogRetention        = "doc_log_retention"
	DocHostHardening       = "doc_host_hardening"
	DocContainerScanning   = "doc_container_scanning"
	DocContainerRuntime    = "doc_container_runtime"
	DocLeastPrivilege      = "doc_least_privilege"
	DocDBPermissions       = "doc_db_permissions"
	DocOSAccess            = "doc_os_access"
	DocRBAC                = "doc_rbac"
	DocUserState           = "doc_user_state"
	DocDoSProtection       = "doc_dos_protection"
	DocPatching            = "doc_patching"
	DocSecureCoding        = "doc_secure_coding"
	DocDependencyScanning  = "doc_dependency_scanning"
	DocLocalDBEncryption   = "doc_local_db_encryption"
	DocDeviceStorage       = "doc_device_storage"
	DocTamperProtection    = "doc_tamper_protection"
	DocMFA                 = "doc_mfa"
	DocPasswordPolicy      = "doc_password_policy"
	DocSessionTimeout      = "doc_session_timeout"
	DocAPIAuth             = "doc_api_auth"
	DocServerValidation    = "doc_server_validation"
	DocLastLogin           = "doc_last_login"
	DocPasswordChange      = "doc_password_change"
	DocInputValidation     = "doc_input_validation"
	DocRateLimiting        = "doc_rate_limiting"
	DocSessionManagement   = "doc_session_management"
	DocThirdPartyInventory = "doc_third_party_inventory"
)

// DefaultCategories is the built-in keyword table.
var DefaultCategories = []Category{
	{
		Indicator: DocPasswordHashing,
		Strong:    re(`\b(bcrypt|scrypt|argon2(id)?|pbkdf2)\b`),
		Keywords:  []string{"password hash", "hashed password", "salted hash"},
		Negative:  re(`passwords? (are |is )?(stored )?(in |as )?(plain ?text|clear ?text)`, `passwords? (are |is )?hashed (with|using) (md5|sha-?1)\b`),
	},
	{
		Indicator: DocEncryptionAtRest,
		Strong:    re(`\bAES-?256\b`, `encrypt(ed|ion) at rest`, `transparent data encryption`, `\b(AWS|GCP|Azure) KMS\b`),
		Keywords:  []string{"disk encryption", "encrypted storage", "encrypted backups"},
		Negative:  re(`(data|database|backups?) (is |are )?(stored )?unencrypted`),
	},
	{
		Indicator: DocTransitEncryption,
		Strong:    re(`\bTLS ?1\.[23]\b`, `\bmTLS\b`, `mutual TLS`),
		Keywords:  []string{"encrypted in transit", "https only"},
		Negative:  re(`\bTLS ?1\.[01]\b (is |are )?(enabled|allowed|supported)`, `\bSSLv[23]\b (is |are )?(enabled|allowed)`),
	},
	{
		Indicator: DocPANMasking,
		Strong:    re(`\bPAN\b (is |are )?(masked|truncated|tokeni[sz]ed)`, `first six.{0,20}last four`, `tokeni[sz]ation`),
		Keywords:  []string{"card masking", "masked card"},
	},
	{
		Indicator: DocSADNotStored,
		Strong:    re(`(CVV2?|CVC2?|CAV2|PIN block|sensitive authentication data).{0,60}(not|never) (be )?(stored|retained)`),
		Keywords:  []string{"sensitive authentication data"},
		Negative:  re(`(CVV2?|CVC2?) (is |are )?(stored|retained|logged)`),
	},
	{
		Indicator: DocLogMasking,
		Strong:    re(`(mask|redact)\w*.{0,40}\blogs?\b`, `\blogs?\b.{0,40}(mask|redact)\w*`),
		Keywords:  []string{"log redaction", "pii scrubbing"},
	},
	{
		Indicator: DocAuthLogging,
		Strong:    re(`(login|logon|authentication) (attempts|events|failures|successes).{0,30}(are )?(logged|recorded)`),
		Keywords:  []string{"authentication log", "login audit"},
	},
	{
		Indicator: DocAuthzLogging,
		Strong:    re(`(access denied|authori[sz]ation (failures|decisions|events)).{0,40}(logged|recorded)`),
		Keywords:  []string{"authorization log", "permission denied events"},
	},
	{
		Indicator: DocAccessLogging,
		Strong:    re(`\baccess logs? (are |is )?(enabled|collected|retained|shipped)`, `\brequest logging\b`),
		Keywords:  []string{"access log"},
	},
	{
		Indicator: DocErrorLogging,
		Strong:    re(`(errors|exceptions) (are )?(logged|captured|recorded)`, `\b(sentry|rollbar|bugsnag)\b`),
		Keywords:  []string{"error log"},
	},
	{
		Indicator: DocSecurityEventLog,
		Strong:    re(`\bSIEM\b`, `security events? (are )?(logged|monitored|forwarded)`, `\b(splunk|elastic security|sentinel|wazuh)\b`),
		Keywords:  []string{"security monitoring", "intrusion detection", "alerting"},
	},
	{
		Indicator: DocAuditTrail,
		Strong:    re(`audit (trail|log)s? (record|capture|include)`, `who.{0,20}what.{0,20}when`),
		Keywords:  []string{"audit trail", "audit log"},
	},
	{
		Indicator: DocLogIntegrity,
		Strong:    re(`\bWORM\b`, `(append-only|tamper[- ]evident|immutable) (logs?|storage)`, `log (signing|hash chain)`),
		Keywords:  []string{"log integrity"},
	},
	{
		Indicator: DocLogRetention,
		Strong:    re(`(retain|retained|kept|stored) for (at least |a minimum of )?\d+ (days|months|years?)`, `retention (period )?of \d+ (days|months|years?)`),
		Keywords:  []string{"log retention", "retention policy"},
	},
	{
		Indicator: DocHostHardening,
		Strong:    re(`\bCIS (benchmark|hardening|level [12])`, `\bSTIG\b`),
		Keywords:  []string{"hardening", "baseline configuration", "golden image"},
	},
	{
		Indicator: DocContainerScanning,
		Strong:    re(`\b(trivy|grype|clair|anchore|snyk container)\b`),
		Keywords:  []string{"image scanning", "container scanning"},
	},
	{
		Indicator: DocContainerRuntime,
		Strong:    re(`\b(falco|seccomp|apparmor|runAsNonRoot|readOnlyRootFilesystem)\b`, `read-only root (fs|filesystem)`),
		Keywords:  []string{"runtime security", "pod security"},
		Negative:  re(`\bprivileged: ?true\b`, `containers? run(s)? as root`),
	},
	{
		Indicator: DocLeastPrivilege,
		Strong:    re(`least[- ]privilege`, `principle of least`),
		Keywords:  []string{"minimal permissions", "need to know"},
	},
	{
		Indicator: DocDBPermissions,
		Strong:    re(`\b(GRANT|REVOKE) (SELECT|INSERT|UPDATE|DELETE|ALL)\b`, `database (roles|permissions|accounts) (are )?(restricted|limited|separated)`),
		Keywords:  []string{"database user", "db permissions"},
	},
	{
		Indicator: DocOSAccess,
		Strong:    re(`\bsudoers\b`, `\bPAM\b`, `\bbastion host\b`, `os[- ]level access (is )?(restricted|limited)`),
		Keywords:  []string{"ssh keys", "jump host"},
	},
	{
		Indicator: DocRBAC,
		Strong:    re(`role[- ]based access control`, `\bRBAC\b`, `\bABAC\b`),
		Keywords:  []string{"user roles", "permission matrix"},
	},
	{
		Indicator: DocUserState,
		Strong:    re(`(disabled|locked|suspended|inactive) (user )?accounts?.{0,40}(cannot|denied|blocked|rejected)`, `account lockout after \d+`),
		Keywords:  []string{"account lockout", "deprovisioning"},
	},
	{
		Indicator: DocDoSProtection,
		Strong:    re(`\b(WAF|DDoS protection|cloudflare|akamai|aws shield)\b`),
		Keywords:  []string{"rate limiting", "traffic filtering"},
	},
	{
		Indicator: DocPatching,
		Strong:    re(`patch(es|ing)? (are )?(applied )?(within|every) \d+`, `(vulnerability|patch) management (process|program)`),
		Keywords:  []string{"security updates", "patch management"},
	},
	{
		Indicator: DocSecureCoding,
		Strong:    re(`\b(SAST|DAST|semgrep|sonarqube|codeql|OWASP ASVS)\b`, `mandatory code review`),
		Keywords:  []string{"secure coding", "code review"},
	},
	{
		Indicator: DocDependencyScanning,
		Strong:    re(`\b(dependabot|renovate|npm audit|govulncheck|dependency-check|software composition analysis)\b`, `\bSBOM\b`),
		Keywords:  []string{"dependency scanning", "third-party components"},
	},
	{
		Indicator: DocThirdPartyInventory,
		Strong:    re(`\bSBOM\b`, `(inventory|register) of (third[- ]party|open[- ]source) (components|libraries)`),
		Keywords:  []string{"component inventory", "license inventory"},
	},
	{
		Indicator: DocLocalDBEncryption,
		Strong:    re(`\bSQLCipher\b`, `encrypted (local|on-device) database`, `realm encryption`),
		Keywords:  []string{"local database encryption"},
	},
	{
		Indicator: DocDeviceStorage,
		Strong:    re(`\b(Keychain|Android Keystore|EncryptedSharedPreferences)\b`),
		Keywords:  []string{"secure storage", "no sensitive data on device"},
		Negative:  re(`(token|password|credential)s? (are |is )?stored in (localStorage|SharedPreferences|NSUserDefaults)`),
	},
	{
		Indicator: DocTamperProtection,
		Strong:    re(`(root|jailbreak) detection`, `code obfuscation`, `certificate pinning`, `anti-tamper`),
		Keywords:  []string{"integrity check", "runtime protection"},
	},
	{
		Indicator: DocMFA,
		Strong:    re(`(multi|two)[- ]factor authentication`, `\bMFA\b`, `\b2FA\b`, `\bTOTP\b`, `\bWebAuthn\b`),
		Keywords:  []string{"authenticator app", "one-time code"},
	},
	{
		Indicator: DocPasswordPolicy,
		Strong:    re(`(minimum|at least) (of )?\d+ characters`, `password complexity`, `NIST 800-63`),
		Keywords:  []string{"password policy"},
	},
	{
		Indicator: DocSessionTimeout,
		Strong:    re(`(session|idle|inactivity) timeout (of|is) \d+`, `sessions? (expire|time out) after \d+`),
		Keywords:  []string{"session timeout", "automatic logout"},
	},
	{
		Indicator: DocAPIAuth,
		Strong:    re(`\bOAuth ?2(\.0)?\b`, `\bOpenID Connect\b`, `\bmTLS\b`, `signed JWT`),
		Keywords:  []string{"api key", "bearer token"},
	},
	{
		Indicator: DocServerValidation,
		Strong:    re(`server[- ]side (input )?validation`, `validated on the server`),
		Keywords:  []string{"backend validation"},
	},
	{
		Indicator: DocInputValidation,
		Strong:    re(`(allow|white)[- ]?list (input )?validation`, `parameteri[sz]ed queries`, `prepared statements`, `output encoding`),
		Keywords:  []string{"input validation", "sanitization"},
	},
	{
		Indicator: DocLastLogin,
		Strong:    re(`last (successful )?(login|logon|sign[- ]in) (date|time|information) (is )?(shown|displayed)`),
		Keywords:  []string{"last login"},
	},
	{
		Indicator: DocPasswordChange,
		Strong:    re(`(current|old|existing) password (is )?required`, `re-?authenticat\w+ (before|to) (chang|updat)`),
		Keywords:  []string{"password change"},
	},
	{
		Indicator: DocRateLimiting,
		Strong:    re(`rate limit\w* (of |at )?\d+ (requests|req)`, `\b429\b`),
		Keywords:  []string{"throttling", "rate limit"},
	},
	{
		Indicator: DocSessionManagement,
		Strong:    re(`session (id|identifier)s? (are )?(regenerated|rotated)`, `\bHttpOnly\b.{0,40}\bSecure\b`),
		Keywords:  []string{"session management"},
	},
}
