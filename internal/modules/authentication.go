package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func authentication() Module {
	return &planModule{
		id:          "authentication",
		number:      2,
		name:        "Authentication",
		description: "Login flow, credential policy and API authentication.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeHeaders, Select: root, Limit: 1},
			{Kind: assessment.ProbeHeaders, Select: tagged(assessment.TagLogin, assessment.TagPassword)},
			{Kind: assessment.ProbeLogin, Select: tagged(assessment.TagLogin, assessment.TagPassword)},
			{Kind: assessment.ProbeUnauth, Select: all(tagged(assessment.TagJSONAPI), not(tagged(assessment.TagLogin)))},
		},
		controls: []control{
			def(11, "Password_Policy", "Password Policy",
				"Trivial passwords must be refused and the policy communicated.",
				evaluator.Rule{
					Positive:     []string{probe.IndWeakPasswordAccepted, probe.IndNoPasswordPolicyHint},
					Exculpatory:  []string{probe.IndWeakPasswordRejected, probe.IndPasswordPolicyHint},
					Evidence:     []string{evidence.DocPasswordPolicy},
					RequiredTags: tags(assessment.TagPassword),
				}),
			def(12, "Login_Error_Messages", "Login Error Messages",
				"Failed logins must not reveal which credential was wrong.",
				evaluator.Rule{
					Positive:     []string{probe.IndVerboseLoginError},
					Exculpatory:  []string{probe.IndGenericLoginError},
					Kinds:        kinds(assessment.ProbeLogin),
					RequiredTags: tags(assessment.TagLogin),
				}),
			def(13, "Last_Login_Message", "Last Login Notification",
				"Users are shown their previous login time after authenticating.",
				evaluator.Rule{
					Exculpatory: []string{probe.IndLastLoginShown},
					Evidence:    []string{evidence.DocLastLogin},
				}),
			def(14, "Password_Encryption_Transit", "Password Encryption in Transit",
				"Credentials must only travel over TLS.",
				evaluator.Rule{
					Positive:     []string{probe.IndLoginOverHTTP, probe.IndPasswordFieldOverHTTP},
					Exculpatory:  []string{probe.IndLoginOverHTTPS},
					Evidence:     []string{evidence.DocTransitEncryption},
					RequiredTags: tags(assessment.TagLogin, assessment.TagPassword),
				}),
			def(15, "Password_Change_Process", "Password Change Process",
				"Password changes require the current password and notify the user.",
				evaluator.Rule{
					Evidence:     []string{evidence.DocPasswordChange},
					RequiredTags: tags(assessment.TagPassword),
				}),
			def(16, "Multi_Factor_Authentication", "Multi-Factor Authentication",
				"A second factor is offered or enforced at login.",
				evaluator.Rule{
					Positive:     []string{probe.IndNoMFASignal},
					Exculpatory:  []string{probe.IndMFASignal},
					Evidence:     []string{evidence.DocMFA},
					RequiredTags: tags(assessment.TagLogin),
				}),
			def(17, "API_Authentication", "API Authentication",
				"API endpoints must require valid credentials.",
				evaluator.Rule{
					Positive:     []string{probe.IndReachableWithoutAuth, probe.IndInvalidTokenAccepted},
					Exculpatory:  []string{probe.IndAuthRequired, probe.IndInvalidTokenRejected},
					Kinds:        kinds(assessment.ProbeUnauth),
					Evidence:     []string{evidence.DocAPIAuth},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
		},
	}
}
