package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func sessionManagement() Module {
	return &planModule{
		id:          "session_management",
		number:      5,
		name:        "Session Management",
		description: "Session identifier generation, transport, lifetime and rotation.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeHeaders, Select: pages},
			{Kind: assessment.ProbeLogin, Select: tagged(assessment.TagLogin)},
			{Kind: assessment.ProbeBoundary, Payloads: probe.ClientCheckPayloads, Select: tagged(assessment.TagForm)},
			{Kind: assessment.ProbeBoundary, Payloads: probe.InvalidJSONPayloads, Select: all(tagged(assessment.TagJSONAPI), stateChanging)},
		},
		controls: []control{
			def(35, "Session_Timeout", "Session Timeout",
				"Sessions and tokens expire within a bounded lifetime.",
				evaluator.Rule{
					Positive:    []string{probe.IndSessionLongLived, probe.IndTokenNoExpiry},
					Exculpatory: []string{probe.IndSessionExpires, probe.IndTokenExpiry},
					Evidence:    []string{evidence.DocSessionTimeout},
				}),
			def(36, "Session_ID_Randomness", "Session ID Randomness",
				"Session identifiers are long and unpredictable.",
				evaluator.Rule{
					Positive:    []string{probe.IndSessionIDWeak},
					Exculpatory: []string{probe.IndSessionIDStrong},
				}),
			def(37, "Session_Not_In_URL", "Session ID Not in URL",
				"Session identifiers travel in cookies, never in URLs.",
				evaluator.Rule{
					Positive: []string{probe.IndSessionIDInURL},
					// A cookie-borne session id, whatever its quality.
					Exculpatory: []string{probe.IndSessionIDStrong, probe.IndSessionIDWeak},
				}),
			def(38, "Cookie_Flags", "Cookie Security Flags",
				"Session cookies carry Secure, HttpOnly and a safe SameSite.",
				evaluator.Rule{
					Positive:    []string{probe.IndCookieInsecure},
					Exculpatory: []string{probe.IndCookieFlagsSet},
				}),
			def(39, "Server_Side_Validation", "Server-Side Validation",
				"The server re-validates every input regardless of client checks.",
				evaluator.Rule{
					Positive:     []string{probe.IndClientValidationBypassed, probe.IndInvalidInputAccepted},
					Exculpatory:  []string{probe.IndServerValidationEnforced, probe.IndInvalidInputRejected},
					Kinds:        kinds(assessment.ProbeBoundary),
					Evidence:     []string{evidence.DocServerValidation},
					RequiredTags: tags(assessment.TagForm, assessment.TagJSONAPI),
				}),
			def(40, "Token_Expiry", "Token Expiry",
				"Bearer tokens carry an expiry claim.",
				evaluator.Rule{
					Positive:    []string{probe.IndTokenNoExpiry},
					Exculpatory: []string{probe.IndTokenExpiry},
				}),
			def(41, "Session_Fixation_Prevention", "Session Fixation Prevention",
				"A client-supplied session identifier is never adopted at login.",
				evaluator.Rule{
					Positive:     []string{probe.IndSessionFixed},
					Exculpatory:  []string{probe.IndSessionRotated},
					Kinds:        kinds(assessment.ProbeLogin),
					Evidence:     []string{evidence.DocSessionManagement},
					RequiredTags: tags(assessment.TagLogin),
				}),
		},
	}
}
