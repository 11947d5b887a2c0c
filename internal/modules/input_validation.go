package modules

import (
	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	"github.com/khanhnv2901/seca-gap/internal/evaluator"
	"github.com/khanhnv2901/seca-gap/internal/evidence"
	"github.com/khanhnv2901/seca-gap/internal/probe"
)

func inputValidation() Module {
	return &planModule{
		id:          "input_validation",
		number:      1,
		name:        "Input & Data Validation",
		description: "Injection, parser and request-boundary handling of discovered inputs.",
		plan: []ProbeStep{
			{Kind: assessment.ProbeReflection, Payloads: probe.XSSPayloads, Select: all(hasParams, tagged(assessment.TagPage, assessment.TagForm))},
			{Kind: assessment.ProbeReflection, Payloads: probe.SQLPayloads, Select: hasParams},
			{Kind: assessment.ProbeBoundary, Payloads: probe.ClientCheckPayloads, Select: tagged(assessment.TagForm)},
			{Kind: assessment.ProbeBoundary, Payloads: probe.OversizePayloads, Select: hasParams, Limit: 3},
			{Kind: assessment.ProbeBoundary, Payloads: append(append([]probe.Payload(nil), probe.InvalidJSONPayloads...), probe.ContentTypePayloads...), Select: all(tagged(assessment.TagJSONAPI), stateChanging)},
			{Kind: assessment.ProbeBoundary, Payloads: probe.XMLEntityPayloads, Select: tagged(assessment.TagXMLAPI)},
			{Kind: assessment.ProbeBoundary, Payloads: probe.UploadPayloads, Select: tagged(assessment.TagUpload)},
			{Kind: assessment.ProbeTiming, Select: root, Limit: 1, Burst: true},
		},
		controls: []control{
			def(1, "SQL_Injection", "SQL Injection",
				"Quote-breaking input must not surface database errors.",
				evaluator.Rule{
					Positive:     []string{probe.IndSQLErrorSignature},
					Exculpatory:  []string{probe.IndSQLNoError},
					Kinds:        kinds(assessment.ProbeReflection),
					RequiredTags: tags(assessment.TagForm, assessment.TagJSONAPI),
				}),
			def(2, "XSS", "Cross-Site Scripting",
				"Reflected input must be encoded for its output context.",
				evaluator.Rule{
					Positive:     []string{probe.IndPayloadReflectedUnescaped},
					Exculpatory:  []string{probe.IndPayloadReflectedEncoded, probe.IndPayloadNotReflected},
					Kinds:        kinds(assessment.ProbeReflection),
					RequiredTags: tags(assessment.TagForm, assessment.TagPage),
				}),
			def(3, "HTTP_Request_Smuggling", "HTTP Request Smuggling",
				"Front-end and back-end servers must agree on request framing. Decided from tool output.",
				evaluator.Rule{}),
			def(4, "Client_Side_Validation", "Client-Side Validation Bypass",
				"Constraints enforced in the browser must also be enforced by the server.",
				evaluator.Rule{
					Positive:     []string{probe.IndClientValidationBypassed},
					Exculpatory:  []string{probe.IndServerValidationEnforced},
					Evidence:     []string{evidence.DocServerValidation},
					RequiredTags: tags(assessment.TagForm),
				}),
			def(5, "File_Upload_Validation", "File Upload Validation",
				"Uploads with executable extensions must be refused.",
				evaluator.Rule{
					Positive:     []string{probe.IndDangerousUploadAccepted},
					Exculpatory:  []string{probe.IndDangerousUploadRejected},
					RequiredTags: tags(assessment.TagUpload),
				}),
			def(6, "XML_Validation", "XML Validation",
				"XML parsers must not process document type declarations.",
				evaluator.Rule{
					Positive:     []string{probe.IndXMLEntityExpanded},
					Exculpatory:  []string{probe.IndXMLEntityRejected},
					RequiredTags: tags(assessment.TagXMLAPI),
				}),
			def(7, "Schema_Validation", "Schema Validation",
				"JSON bodies must be validated against the expected schema.",
				evaluator.Rule{
					Positive:     []string{probe.IndInvalidInputAccepted},
					Exculpatory:  []string{probe.IndInvalidInputRejected},
					Evidence:     []string{evidence.DocInputValidation},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(8, "Content_Type_Validation", "Content-Type Validation",
				"Bodies whose declared media type is unexpected must be refused.",
				evaluator.Rule{
					Positive:     []string{probe.IndContentTypeAccepted},
					Exculpatory:  []string{probe.IndContentTypeRejected},
					RequiredTags: tags(assessment.TagJSONAPI),
				}),
			def(9, "Buffer_Overflow_Basic", "Oversized Input Handling",
				"Oversized values must be rejected or truncated without server errors.",
				evaluator.Rule{
					Positive:    []string{probe.IndServerErrorOnOversize},
					Exculpatory: []string{probe.IndOversizeRejected, probe.IndOversizeHandled},
				}),
			def(10, "DOS_Basic", "Basic Denial of Service Resilience",
				"A short request burst must not degrade the service.",
				evaluator.Rule{
					Positive:    []string{probe.IndDegradedUnderBurst},
					Exculpatory: []string{probe.IndStableUnderBurst, probe.IndThrottled},
					Evidence:    []string{evidence.DocDoSProtection},
				}),
		},
	}
}
