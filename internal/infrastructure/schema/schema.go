// Package schema validates result documents against the embedded OpenAPI
// component schemas before they are written or after they are read.
package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

//go:embed results.yaml
var document []byte

const (
	moduleSchema = "ModuleResult"
	batchSchema  = "BatchResult"
)

// Validator checks documents against the result schemas.
type Validator struct {
	module *openapi3.Schema
	batch  *openapi3.Schema
}

var (
	loadOnce sync.Once
	loaded   *Validator
	loadErr  error
)

// Default returns the validator over the embedded schema document, parsing
// it on first use.
func Default() (*Validator, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Load(document)
	})
	return loaded, loadErr
}

// Load parses an OpenAPI document carrying ModuleResult and BatchResult
// component schemas.
func Load(data []byte) (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("%w: load result schema: %v", sharedErrors.ErrConfig, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("%w: invalid result schema: %v", sharedErrors.ErrConfig, err)
	}
	v := &Validator{}
	for name, dst := range map[string]**openapi3.Schema{moduleSchema: &v.module, batchSchema: &v.batch} {
		ref, ok := doc.Components.Schemas[name]
		if !ok || ref.Value == nil {
			return nil, fmt.Errorf("%w: result schema lacks %s", sharedErrors.ErrConfig, name)
		}
		*dst = ref.Value
	}
	return v, nil
}

// ValidateModule validates a ModuleResult or its JSON encoding.
func (v *Validator) ValidateModule(doc any) error {
	return visit(v.module, moduleSchema, doc)
}

// ValidateBatch validates a BatchResult or its JSON encoding.
func (v *Validator) ValidateBatch(doc any) error {
	return visit(v.batch, batchSchema, doc)
}

// visit normalizes doc to generic JSON values, the form VisitJSON expects.
func visit(s *openapi3.Schema, name string, doc any) error {
	var raw []byte
	switch d := doc.(type) {
	case []byte:
		raw = d
	case json.RawMessage:
		raw = d
	default:
		var err error
		if raw, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
		}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("%w: %s is not valid JSON: %v", sharedErrors.ErrSchemaViolation, name, err)
	}
	if err := s.VisitJSON(generic, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%w: %s: %v", sharedErrors.ErrSchemaViolation, name, err)
	}
	return nil
}
