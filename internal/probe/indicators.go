package probe

// Indicator names emitted by the detectors. Control rules refer to these.
const (
	IndPayloadReflectedUnescaped = "payload_reflected_unescaped"
	IndPayloadReflectedEncoded   = "payload_reflected_encoded"
	IndPayloadNotReflected       = "payload_not_reflected"
	IndSQLErrorSignature         = "sql_error_signature"
	IndSQLNoError                = "sql_no_error"
	IndTraversalContent          = "path_traversal_content"
	IndTraversalBlocked          = "path_traversal_blocked"

	IndDangerousMethodAllowed = "dangerous_method_allowed"
	IndMethodRejected         = "method_rejected"

	IndAuthRequired           = "auth_required"
	IndReachableWithoutAuth   = "reachable_without_auth"
	IndInvalidTokenAccepted   = "invalid_token_accepted"
	IndInvalidTokenRejected   = "invalid_token_rejected"
	IndSequentialIDAccessible = "sequential_id_accessible"
	IndSequentialIDDenied     = "sequential_id_denied"

	IndServerErrorOnOversize    = "server_error_on_oversize"
	IndOversizeRejected         = "oversize_rejected"
	IndOversizeHandled          = "oversize_handled"
	IndInvalidInputAccepted     = "invalid_input_accepted"
	IndInvalidInputRejected     = "invalid_input_rejected"
	IndContentTypeAccepted      = "content_type_accepted"
	IndContentTypeRejected      = "content_type_rejected"
	IndXMLEntityExpanded        = "xml_entity_expanded"
	IndXMLEntityRejected        = "xml_entity_rejected"
	IndDangerousUploadAccepted  = "dangerous_upload_accepted"
	IndDangerousUploadRejected  = "dangerous_upload_rejected"
	IndClientValidationBypassed = "client_validation_bypassed"
	IndServerValidationEnforced = "server_validation_enforced"

	IndThrottled          = "throttled"
	IndDegradedUnderBurst = "degraded_under_burst"
	IndNoThrottling       = "no_throttling"
	IndStableUnderBurst   = "stable_under_burst"

	IndSecurityHeadersMissing = "security_headers_missing"
	IndSecurityHeadersPresent = "security_headers_present"
	IndServerDisclosure       = "server_disclosure"
	IndCookieInsecure         = "cookie_insecure"
	IndCookieFlagsSet         = "cookie_flags_set"
	IndCORSWildcard           = "cors_wildcard"
	IndCORSReflectsOrigin     = "cors_reflects_origin"
	IndCORSRestricted         = "cors_restricted"
	IndPlainHTTP              = "plain_http"
	IndHTTPSEnforced          = "https_enforced"
	IndHSTS                   = "hsts"
	IndTLSWeak                = "tls_weak"
	IndTLSStrong              = "tls_strong"
	IndSessionIDInURL         = "session_id_in_url"
	IndSessionIDWeak          = "session_id_weak"
	IndSessionIDStrong        = "session_id_strong"
	IndSessionLongLived       = "session_long_lived"
	IndSessionExpires         = "session_expires"
	IndTokenNoExpiry          = "token_no_expiry"
	IndTokenExpiry            = "token_expiry"
	IndSensitiveParamInURL    = "sensitive_param_in_url"
	IndPANExposed             = "pan_exposed"
	IndPANMasked              = "pan_masked"
	IndSecretExposed          = "secret_exposed"
	IndPasswordFieldOverHTTP  = "password_field_over_http"
	IndSensitivePageCacheable = "sensitive_page_cacheable"
	IndNoStore                = "no_store"
	IndMFASignal              = "mfa_signal"
	IndNoMFASignal            = "no_mfa_signal"
	IndPasswordPolicyHint     = "password_policy_hint"
	IndNoPasswordPolicyHint   = "no_password_policy_hint"
	IndLastLoginShown         = "last_login_shown"
	IndAPIVersioned           = "api_versioned"
	IndAPIUnversioned         = "api_unversioned"
	IndVulnerableLibrary      = "vulnerable_library"
	IndFramingAllowed         = "framing_allowed"
	IndFramingProtected       = "framing_protected"

	IndSensitiveFileExposed   = "sensitive_file_exposed"
	IndSensitiveFileProtected = "sensitive_file_protected"

	IndVerboseError = "verbose_error"
	IndGenericError = "generic_error"

	IndVerboseLoginError    = "verbose_login_error"
	IndGenericLoginError    = "generic_login_error"
	IndLoginOverHTTP        = "login_over_http"
	IndLoginOverHTTPS       = "login_over_https"
	IndWeakPasswordAccepted = "weak_password_accepted"
	IndWeakPasswordRejected = "weak_password_rejected"
	IndSessionRotated       = "session_rotated"
	IndSessionFixed         = "session_fixed"
)
