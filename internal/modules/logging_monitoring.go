package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

// Logging controls are mostly invisible from outside; documentation and
// tool output carry them.
func loggingMonitoring() Module {
	return &planModule{
		id:          "logging_monitoring",
		number:      6,
		name:        "Logging & Monitoring",
		description: "Security-relevant events are logged, protected and retained.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeErrorPage, Select: root, Limit: 1},
		},
		controls: []control{
			def(42, "Authentication_Logging", "Authentication Logging",
				"Successful and failed logins are logged.",
				evaluator.Rule{Evidence: []string{evidence.DocAuthLogging}}),
			def(43, "Authorization_Logging", "Authorization Logging",
				"Access-control denials are logged.",
				evaluator.Rule{Evidence: []string{evidence.DocAuthzLogging}}),
			def(44, "Access_Logging", "Access Logging",
				"Requests to the application are logged with caller and outcome.",
				evaluator.Rule{Evidence: []string{evidence.DocAccessLogging}}),
			def(45, "Error_Logging", "Error Logging",
				"Errors are logged server-side instead of being shown to users.",
				evaluator.Rule{
					Positive:    []string{probe.IndVerboseError},
					Exculpatory: []string{probe.IndGenericError},
					Kinds:       kinds(assessment.ProbeErrorPage),
					Evidence:    []string{evidence.DocErrorLogging},
				}),
			def(46, "Security_Event_Logging", "Security Event Logging",
				"Security events are logged and alerted on.",
				evaluator.Rule{Evidence: []string{evidence.DocSecurityEventLog}}),
			def(47, "Audit_Trail_Completeness", "Audit Trail Completeness",
				"Audit records capture who did what and when.",
				evaluator.Rule{Evidence: []string{evidence.DocAuditTrail}}),
			def(48, "Log_Integrity", "Log Integrity",
				"Logs are tamper-evident and write-protected.",
				evaluator.Rule{Evidence: []string{evidence.DocLogIntegrity}}),
			def(49, "Log_Retention", "Log Retention",
				"Logs are retained for the required period.",
				evaluator.Rule{Evidence: []string{evidence.DocLogRetention}}),
		},
	}
}
