package assessment

import "time"

// Strength grades how reliable an indicator is.
type Strength string

const (
	// StrengthStrong is a structural match (e.g. unescaped marker inside a script).
	StrengthStrong Strength = "strong"
	// StrengthWeak is a keyword or heuristic match.
	StrengthWeak Strength = "weak"
)

// Polarity tells whether an indicator argues for or against a control failing.
type Polarity string

const (
	Positive    Polarity = "positive"
	Exculpatory Polarity = "exculpatory"
)

// Indicator is a named signal matched by a detector or evidence source.
type Indicator struct {
	Name     string   `json:"name"`
	Strength Strength `json:"strength"`
	Polarity Polarity `json:"polarity"`
	Detail   string   `json:"detail,omitempty"`
}

// Strong returns a strong indicator.
func Strong(name string, polarity Polarity, detail string) Indicator {
	return Indicator{Name: name, Strength: StrengthStrong, Polarity: polarity, Detail: detail}
}

// Weak returns a weak indicator.
func Weak(name string, polarity Polarity, detail string) Indicator {
	return Indicator{Name: name, Strength: StrengthWeak, Polarity: polarity, Detail: detail}
}

// ProbeKind names a family of probe interactions.
type ProbeKind string

const (
	ProbeReflection ProbeKind = "reflection"
	ProbeMethod     ProbeKind = "method"
	ProbeUnauth     ProbeKind = "unauth"
	ProbeBoundary   ProbeKind = "boundary"
	ProbeTiming     ProbeKind = "timing"
	ProbeHeaders    ProbeKind = "headers"
	ProbeLogin      ProbeKind = "login"
	ProbeErrorPage  ProbeKind = "error"
	ProbeExposure   ProbeKind = "exposure"
)

// Observation is one recorded result of a single probe against a single
// endpoint. Observations are never mutated after creation.
type Observation struct {
	Seq        int         `json:"seq"`
	Endpoint   string      `json:"endpoint"`
	Method     string      `json:"method"`
	Kind       ProbeKind   `json:"kind"`
	Payload    string      `json:"payload,omitempty"`
	Status     int         `json:"status"`
	LatencyMS  int64       `json:"latency_ms"`
	Indicators []Indicator `json:"indicators,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorKind  string      `json:"error_kind,omitempty"`
	Excerpt    string      `json:"excerpt,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// HasIndicator returns the first indicator named name.
func (o Observation) HasIndicator(name string) (Indicator, bool) {
	for _, ind := range o.Indicators {
		if ind.Name == name {
			return ind, true
		}
	}
	return Indicator{}, false
}

// SourceKind tells where external evidence came from.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceTool     SourceKind = "tool"
)

// Evidence is externally supplied support for a control decision, such as
// a keyword hit in a policy document or a finding from a scanner.
type Evidence struct {
	Source     string     `json:"source"`
	SourceKind SourceKind `json:"source_kind"`
	// Control restricts the evidence to a single control when set.
	Control   string    `json:"control,omitempty"`
	Indicator Indicator `json:"indicator"`
	Excerpt   string    `json:"excerpt,omitempty"`
}

// RefType distinguishes live observations from external evidence.
type RefType string

const (
	RefObservation RefType = "observation"
	RefEvidence    RefType = "evidence"
)

// Ref points at the observation or evidence that supports a decision.
type Ref struct {
	Type      RefType  `json:"type"`
	Seq       int      `json:"seq,omitempty"`
	Source    string   `json:"source"`
	Indicator string   `json:"indicator"`
	Strength  Strength `json:"strength"`
	Polarity  Polarity `json:"polarity"`
	Detail    string   `json:"detail,omitempty"`
}
