package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func apiSecurity() Module {
	api := tagged(assessment.TagJSONAPI)
	return &planModule{
		id:          "api_security",
		number:      7,
		name:        "API Security",
		description: "Method handling, throttling, validation, CORS and versioning of API endpoints.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeHeaders, Select: api},
			{Kind: assessment.ProbeHeaders, Select: tagged(assessment.TagScript, assessment.TagPage), Limit: 2},
			{Kind: assessment.ProbeMethod, Select: api, Limit: 3},
			{Kind: assessment.ProbeUnauth, Select: api},
			{Kind: assessment.ProbeReflection, Payloads: probe.SQLPayloads, Select: all(api, hasParams)},
			{Kind: assessment.ProbeReflection, Payloads: probe.TraversalPayloads, Select: all(api, hasParams)},
			{Kind: assessment.ProbeBoundary, Payloads: probe.InvalidJSONPayloads, Select: all(api, stateChanging)},
			{Kind: assessment.ProbeErrorPage, Select: api, Limit: 2},
			{Kind: assessment.ProbeTiming, Select: api, Limit: 1, Burst: true},
		},
		controls: []control{
			def(50, "API_Method_Security", "API Method Security",
				"Unused and diagnostic HTTP methods are refused.",
				evaluator.Rule{
					Positive:     []string{probe.IndDangerousMethodAllowed},
					Exculpatory:  []string{probe.IndMethodRejected},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(51, "API_Rate_Limiting", "API Rate Limiting",
				"Bursts of requests are throttled.",
				evaluator.Rule{
					Positive:     []string{probe.IndNoThrottling},
					Exculpatory:  []string{probe.IndThrottled},
					Evidence:     []string{evidence.DocRateLimiting},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(52, "API_Input_Validation", "API Input Validation",
				"API inputs are validated for type, structure and path safety.",
				evaluator.Rule{
					Positive:     []string{probe.IndInvalidInputAccepted, probe.IndSQLErrorSignature, probe.IndTraversalContent},
					Exculpatory:  []string{probe.IndInvalidInputRejected, probe.IndSQLNoError, probe.IndTraversalBlocked},
					Evidence:     []string{evidence.DocInputValidation},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(53, "API_Authentication_Validation", "API Credential Validation",
				"Forged or missing credentials are refused by the API.",
				evaluator.Rule{
					Positive:     []string{probe.IndInvalidTokenAccepted, probe.IndReachableWithoutAuth},
					Exculpatory:  []string{probe.IndInvalidTokenRejected, probe.IndAuthRequired},
					Kinds:        kinds(assessment.ProbeUnauth),
					Evidence:     []string{evidence.DocAPIAuth},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(54, "API_Sensitive_Params", "Sensitive Parameters in URLs",
				"Credentials and tokens are never passed in query strings.",
				evaluator.Rule{
					Positive:     []string{probe.IndSensitiveParamInURL, probe.IndSessionIDInURL},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(55, "API_Error_Handling", "API Error Handling",
				"API errors are generic and leak no internals.",
				evaluator.Rule{
					Positive:     []string{probe.IndVerboseError},
					Exculpatory:  []string{probe.IndGenericError},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(56, "API_CORS_Configuration", "API CORS Configuration",
				"Cross-origin access is restricted to trusted origins.",
				evaluator.Rule{
					Positive:     []string{probe.IndCORSWildcard, probe.IndCORSReflectsOrigin},
					Exculpatory:  []string{probe.IndCORSRestricted},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(57, "API_Versioning", "API Versioning",
				"API paths carry an explicit version.",
				evaluator.Rule{
					Positive:     []string{probe.IndAPIUnversioned},
					Exculpatory:  []string{probe.IndAPIVersioned},
					RequiredTags: tags(assessment.TagJSONAPI, assessment.TagVersionedAPI),
				}),
			def(58, "Secure_Coding_Evidence", "Secure Coding Practices",
				"Secure coding standards, reviews and static analysis are in place.",
				evaluator.Rule{Evidence: []string{evidence.DocSecureCoding}}),
			def(59, "Third_Party_Components", "Third-Party Components",
				"Third-party libraries are inventoried, scanned and free of known vulnerable versions.",
				evaluator.Rule{
					Positive: []string{probe.IndVulnerableLibrary},
					Evidence: []string{evidence.DocDependencyScanning, evidence.DocThirdPartyInventory},
				}),
		},
	}
}
