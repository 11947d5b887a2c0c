package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func sensitiveData() Module {
	return &planModule{
		id:          "sensitive_data",
		number:      4,
		name:        "Sensitive Data Protection",
		description: "Transport security, exposure of secrets and cardholder data, storage at rest.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeHeaders, Select: pages},
			{Kind: assessment.ProbeHeaders, Select: tagged(assessment.TagJSONAPI), Limit: 3},
			{Kind: assessment.ProbeExposure, Select: tagged(assessment.TagSensitiveFile), Limit: 10},
		},
		controls: []control{
			def(23, "HTTPS_TLS", "HTTPS and TLS Configuration",
				"Traffic is served over modern TLS and plain HTTP is redirected.",
				evaluator.Rule{
					Positive:    []string{probe.IndPlainHTTP, probe.IndTLSWeak},
					Exculpatory: []string{probe.IndHTTPSEnforced, probe.IndHSTS, probe.IndTLSStrong},
				}),
			def(24, "Sensitive_Data_Masking", "Sensitive Data Masking",
				"Secrets and card numbers never appear in responses unmasked.",
				evaluator.Rule{
					Positive:    []string{probe.IndPANExposed, probe.IndSecretExposed, probe.IndSensitiveFileExposed},
					Exculpatory: []string{probe.IndPANMasked},
					Evidence:    []string{evidence.DocPANMasking},
				}),
			def(25, "Password_Encryption_Rest", "Password Storage",
				"Passwords are stored with a slow, salted hash.",
				evaluator.Rule{Evidence: []string{evidence.DocPasswordHashing}}),
			def(26, "Data_Rest_Encryption", "Encryption at Rest",
				"Stored data is encrypted with managed keys.",
				evaluator.Rule{Evidence: []string{evidence.DocEncryptionAtRest}}),
			def(27, "Data_Transit_Encryption", "Encryption in Transit",
				"Every channel carrying application data is encrypted.",
				evaluator.Rule{
					Positive:    []string{probe.IndPlainHTTP, probe.IndTLSWeak, probe.IndPasswordFieldOverHTTP},
					Exculpatory: []string{probe.IndTLSStrong, probe.IndHSTS},
					Evidence:    []string{evidence.DocTransitEncryption},
				}),
			def(28, "PCI_PAN_Masking", "PAN Masking",
				"Displayed primary account numbers show at most the first six and last four digits.",
				evaluator.Rule{
					Positive:    []string{probe.IndPANExposed},
					Exculpatory: []string{probe.IndPANMasked},
					Evidence:    []string{evidence.DocPANMasking},
				}),
			def(29, "PCI_SAD_Not_Stored", "Sensitive Authentication Data Not Stored",
				"CVV, PIN and track data are never retained after authorization.",
				evaluator.Rule{Evidence: []string{evidence.DocSADNotStored}}),
			def(30, "PCI_Log_Masking", "Log Masking",
				"Logs mask cardholder data and credentials.",
				evaluator.Rule{Evidence: []string{evidence.DocLogMasking}}),
			def(31, "Local_DB_Security", "Local Database Security",
				"Client-side databases are encrypted.",
				evaluator.Rule{Evidence: []string{evidence.DocLocalDBEncryption}}),
			def(32, "Clear_Text_Detection", "Clear-Text Sensitive Data",
				"Sensitive values are not carried in URLs, page source or shared caches.",
				evaluator.Rule{
					Positive:    []string{probe.IndSensitiveParamInURL, probe.IndSecretExposed, probe.IndPasswordFieldOverHTTP, probe.IndSensitivePageCacheable},
					Exculpatory: []string{probe.IndNoStore},
				}),
			def(33, "Local_Device_Storage", "Local Device Storage",
				"Sensitive data is not persisted in device or browser storage.",
				evaluator.Rule{Evidence: []string{evidence.DocDeviceStorage}}),
			def(34, "UI_Tampering_Protection", "UI Tampering Protection",
				"Pages cannot be framed by other origins.",
				evaluator.Rule{
					Positive:    []string{probe.IndFramingAllowed},
					Exculpatory: []string{probe.IndFramingProtected},
					Evidence:    []string{evidence.DocTamperProtection},
				}),
		},
	}
}
