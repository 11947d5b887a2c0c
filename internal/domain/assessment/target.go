package assessment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TargetKind classifies what a target points at.
type TargetKind string

const (
	TargetKindWeb         TargetKind = "web"
	TargetKindAPI         TargetKind = "api"
	TargetKindDocumentSet TargetKind = "document-set"
)

// Valid reports whether k is a known target kind.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetKindWeb, TargetKindAPI, TargetKindDocumentSet:
		return true
	}
	return false
}

// Target is a resolved assessment target. It is immutable once constructed.
type Target struct {
	id   string
	kind TargetKind
}

// NewTarget builds a target from an already-normalized identifier.
func NewTarget(id string, kind TargetKind) (Target, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Target{}, fmt.Errorf("target id cannot be empty")
	}
	if !kind.Valid() {
		return Target{}, fmt.Errorf("unknown target kind %q", kind)
	}
	return Target{id: id, kind: kind}, nil
}

// ID returns the normalized base address or document-set path.
func (t Target) ID() string { return t.id }

// Kind returns the target classification.
func (t Target) Kind() TargetKind { return t.kind }

// IsRemote reports whether the target is reached over the network.
func (t Target) IsRemote() bool { return t.kind != TargetKindDocumentSet }

func (t Target) String() string { return t.id }

type targetJSON struct {
	ID   string     `json:"id"`
	Kind TargetKind `json:"kind"`
}

// MarshalJSON implements json.Marshaler.
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal(targetJSON{ID: t.id, Kind: t.kind})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Target) UnmarshalJSON(data []byte) error {
	var raw targetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewTarget(raw.ID, raw.Kind)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
