package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func infrastructure() Module {
	return &planModule{
		id:          "infrastructure",
		number:      8,
		name:        "Infrastructure Security",
		description: "Host hardening, containers, privilege, DoS protection and patching.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeHeaders, Select: root, Limit: 1},
			{Kind: assessment.ProbeHeaders, Select: tagged(assessment.TagScript), Limit: 3},
			{Kind: assessment.ProbeTiming, Select: root, Limit: 1, Burst: true},
			{Kind: assessment.ProbeExposure, Select: tagged(assessment.TagSensitiveFile), Limit: 10},
		},
		controls: []control{
			def(60, "Host_Hardening", "Host Hardening",
				"Hosts expose only required services and do not advertise software versions.",
				evaluator.Rule{
					Positive:    []string{probe.IndServerDisclosure, probe.IndSensitiveFileExposed},
					Exculpatory: []string{probe.IndSensitiveFileProtected},
					Evidence:    []string{evidence.DocHostHardening, evidence.IndExposedRiskyPort, evidence.IndExposedRemoteAdmin, evidence.IndNoRiskyPorts},
				}),
			def(61, "Container_Security", "Container Image Security",
				"Container images are scanned and built from minimal bases.",
				evaluator.Rule{Evidence: []string{evidence.DocContainerScanning}}),
			def(62, "Container_Runtime_Security", "Container Runtime Security",
				"Containers run unprivileged with restricted capabilities.",
				evaluator.Rule{Evidence: []string{evidence.DocContainerRuntime}}),
			def(63, "Least_Privilege", "Least Privilege",
				"Service accounts and operators hold only the permissions they need.",
				evaluator.Rule{Evidence: []string{evidence.DocLeastPrivilege, evidence.IndExposedDatabase}}),
			def(64, "DOS_Protection_Infrastructure", "Infrastructure DoS Protection",
				"Edge protection throttles abusive traffic.",
				evaluator.Rule{
					Positive:    []string{probe.IndNoThrottling, probe.IndDegradedUnderBurst},
					Exculpatory: []string{probe.IndThrottled},
					Evidence:    []string{evidence.DocDoSProtection},
				}),
			def(65, "Security_Updates", "Security Updates",
				"Components are patched on a defined schedule.",
				evaluator.Rule{
					Positive: []string{probe.IndVulnerableLibrary},
					Evidence: []string{evidence.DocPatching},
				}),
		},
	}
}
