// Package schema validates structured records against the externally
// supplied JSON schema. The harvester refuses to run without a schema:
// invalid output must be a deliberate routing decision, never a silent
// pass-through.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

// Validator implements harvest.Validator against a compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the schema document at path. A missing or malformed
// schema is a fatal configuration error for the caller.
func New(path string) (*Validator, error) {
	sch, err := jsonschema.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	return &Validator{schema: sch}, nil
}

// Validate checks the record against the schema and returns nil for a
// valid record, or the innermost violation's message and instance path.
func (v *Validator) Validate(rec *harvest.Record) *harvest.ValidationIssue {
	raw, err := json.Marshal(rec)
	if err != nil {
		return &harvest.ValidationIssue{Message: fmt.Sprintf("marshal record: %v", err)}
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &harvest.ValidationIssue{Message: fmt.Sprintf("decode record: %v", err)}
	}

	if err := v.schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := innermost(ve)
			return &harvest.ValidationIssue{
				Message: leaf.Message,
				Path:    leaf.InstanceLocation,
			}
		}
		return &harvest.ValidationIssue{Message: err.Error()}
	}
	return nil
}

func innermost(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
