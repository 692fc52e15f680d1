package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Raw carries caller-supplied values keyed by field name or alias.
type Raw map[string]any

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds either validated features or the full list of
// violations, never both.
type ValidationResult struct {
	Features   *PatientFeatures
	Violations []Violation
}

func (r ValidationResult) Valid() bool { return r.Features != nil }

// Err returns a *ValidationError when the input was rejected.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Violations: r.Violations}
}

type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	return "invalid patient features: " + strings.Join(e.Messages(), "; ")
}

// Messages lists the human-readable violation messages.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return msgs
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks every field and reports all violations in schema order.
func (s *Schema) Validate(raw Raw) ValidationResult {
	normalized := make(map[string]any, len(raw))
	for k, v := range raw {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}

	values := make([]float64, len(s.fields))
	var violations []Violation
	for i, f := range s.fields {
		rv, ok := lookupRaw(normalized, f)
		if !ok {
			violations = append(violations, Violation{Field: f.Name, Message: fmt.Sprintf("%s is required", f.Label)})
			continue
		}
		v, err := toFloat(rv)
		if err != nil {
			violations = append(violations, Violation{Field: f.Name, Message: fmt.Sprintf("%s must be a number", f.Label)})
			continue
		}
		if msg := s.check(f, v); msg != "" {
			violations = append(violations, Violation{Field: f.Name, Message: msg})
			continue
		}
		values[i] = v
	}

	if len(violations) > 0 {
		return ValidationResult{Violations: violations}
	}
	return ValidationResult{Features: newPatientFeatures(s.Names(), values)}
}

// FromVector validates an already ordered feature vector.
func (s *Schema) FromVector(vec []float64) ValidationResult {
	if len(vec) != len(s.fields) {
		return ValidationResult{Violations: []Violation{{
			Field:   "vector",
			Message: fmt.Sprintf("expected %d features, got %d", len(s.fields), len(vec)),
		}}}
	}
	var violations []Violation
	for i, f := range s.fields {
		if msg := s.check(f, vec[i]); msg != "" {
			violations = append(violations, Violation{Field: f.Name, Message: msg})
		}
	}
	if len(violations) > 0 {
		return ValidationResult{Violations: violations}
	}
	values := make([]float64, len(vec))
	copy(values, vec)
	return ValidationResult{Features: newPatientFeatures(s.Names(), values)}
}

func (s *Schema) check(f Field, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%s must be a finite number", f.Label)
	}
	if f.Integer && v != math.Trunc(v) {
		return fmt.Sprintf("%s must be a whole number %s", f.Label, f.Constraint())
	}
	if !f.accepts(v) {
		return fmt.Sprintf("%s must be %s (got %s)", f.Label, f.Constraint(), strconv.FormatFloat(v, 'f', -1, 64))
	}
	return ""
}

func lookupRaw(values map[string]any, f Field) (any, bool) {
	if v, ok := values[f.Name]; ok && v != nil {
		return v, true
	}
	for _, a := range f.Aliases {
		if v, ok := values[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
