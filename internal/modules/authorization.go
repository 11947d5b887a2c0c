package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func authorization() Module {
	accessDenied := []string{probe.IndAuthRequired, probe.IndInvalidTokenRejected, probe.IndSequentialIDDenied}
	return &planModule{
		id:          "authorization",
		number:      3,
		name:        "Authorization",
		description: "Access control on state-changing and privileged resources.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeUnauth, Select: protected},
		},
		controls: []control{
			def(18, "Role_Based_Access_Control", "Role-Based Access Control",
				"Privileged and state-changing resources refuse anonymous callers.",
				evaluator.Rule{
					Positive:    []string{probe.IndReachableWithoutAuth, probe.IndSequentialIDAccessible},
					Exculpatory: accessDenied,
					Kinds:       kinds(assessment.ProbeUnauth),
					Evidence:    []string{evidence.DocRBAC},
				}),
			def(19, "User_State_Management", "User State Management",
				"Disabled or locked accounts lose access immediately.",
				evaluator.Rule{Evidence: []string{evidence.DocUserState}}),
			def(20, "Database_Permission_Controls", "Database Permission Controls",
				"Application database accounts hold least privilege and are not exposed.",
				evaluator.Rule{Evidence: []string{evidence.DocDBPermissions, evidence.IndExposedDatabase}}),
			def(21, "OS_Level_Access_Restrictions", "OS-Level Access Restrictions",
				"Operating system access is restricted and remote administration is not exposed.",
				evaluator.Rule{Evidence: []string{evidence.DocOSAccess, evidence.IndExposedRemoteAdmin}}),
			def(22, "API_Authorization", "API Authorization",
				"API resources enforce authorization per caller and per object.",
				evaluator.Rule{
					Positive:     []string{probe.IndReachableWithoutAuth, probe.IndInvalidTokenAccepted, probe.IndSequentialIDAccessible},
					Exculpatory:  accessDenied,
					Kinds:        kinds(assessment.ProbeUnauth),
					RequiredTags: tags(assessment.TagJSONAPI, assessment.TagForm),
				}),
		},
	}
}
