package features

import (
	"fmt"
	"strconv"
	"strings"
)

// VectorLen is the number of features the classifier consumes.
const VectorLen = 13

type Kind int

const (
	KindRange Kind = iota
	KindEnum
)

// ThalEncoding selects which thalassemia coding the deployed model was fit on.
type ThalEncoding string

const (
	ThalStandard  ThalEncoding = "standard"  // 0 normal, 1 fixed, 2 reversible, 3 unknown
	ThalCleveland ThalEncoding = "cleveland" // 3/6/7 UCI coding plus legacy 1/2
)

var thalSets = map[ThalEncoding][]float64{
	ThalStandard:  {0, 1, 2, 3},
	ThalCleveland: {1, 2, 3, 6, 7},
}

type Field struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	Unit    string    `json:"unit,omitempty"`
	Kind    Kind      `json:"-"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Allowed []float64 `json:"allowed,omitempty"`
	Integer bool      `json:"integer"`
	Aliases []string  `json:"aliases,omitempty"`
}

// Constraint renders the expected values for use in violation messages.
func (f Field) Constraint() string {
	if f.Kind == KindEnum {
		parts := make([]string, 0, len(f.Allowed))
		for _, v := range f.Allowed {
			parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
		}
		return "one of {" + strings.Join(parts, ", ") + "}"
	}
	lo := strconv.FormatFloat(f.Min, 'f', -1, 64)
	hi := strconv.FormatFloat(f.Max, 'f', -1, 64)
	if !f.Integer {
		lo = strconv.FormatFloat(f.Min, 'f', 1, 64)
		hi = strconv.FormatFloat(f.Max, 'f', 1, 64)
	}
	c := fmt.Sprintf("between %s and %s", lo, hi)
	if f.Unit != "" {
		c += " " + f.Unit
	}
	return c
}

func (f Field) accepts(v float64) bool {
	if f.Kind == KindEnum {
		for _, a := range f.Allowed {
			if a == v {
				return true
			}
		}
		return false
	}
	return v >= f.Min && v <= f.Max
}

// Schema is the ordered list of clinical fields. Field order is the feature
// vector order the classifier was trained on.
type Schema struct {
	fields   []Field
	index    map[string]int
	encoding ThalEncoding
}

func NewSchema(enc ThalEncoding) (*Schema, error) {
	if enc == "" {
		enc = ThalStandard
	}
	thal, ok := thalSets[enc]
	if !ok {
		return nil, fmt.Errorf("unknown thal encoding %q", enc)
	}

	fields := []Field{
		{Name: "age", Label: "Age", Unit: "years", Kind: KindRange, Min: 18, Max: 120, Integer: true},
		{Name: "sex", Label: "Sex", Kind: KindEnum, Allowed: []float64{0, 1}, Integer: true, Aliases: []string{"gender"}},
		{Name: "cp", Label: "Chest pain type", Kind: KindEnum, Allowed: []float64{0, 1, 2, 3}, Integer: true, Aliases: []string{"chest_pain_type"}},
		{Name: "trestbps", Label: "Resting blood pressure", Unit: "mmHg", Kind: KindRange, Min: 80, Max: 250, Integer: true, Aliases: []string{"trtbps", "resting_blood_pressure"}},
		{Name: "chol", Label: "Cholesterol", Unit: "mg/dL", Kind: KindRange, Min: 0, Max: 600, Integer: true, Aliases: []string{"cholesterol"}},
		{Name: "fbs", Label: "Fasting blood sugar > 120 mg/dL", Kind: KindEnum, Allowed: []float64{0, 1}, Integer: true},
		{Name: "restecg", Label: "Resting ECG", Kind: KindEnum, Allowed: []float64{0, 1, 2}, Integer: true},
		{Name: "thalach", Label: "Max heart rate", Unit: "bpm", Kind: KindRange, Min: 40, Max: 220, Integer: true, Aliases: []string{"thalachh", "max_heart_rate"}},
		{Name: "exang", Label: "Exercise-induced angina", Kind: KindEnum, Allowed: []float64{0, 1}, Integer: true, Aliases: []string{"exng"}},
		{Name: "oldpeak", Label: "ST depression", Kind: KindRange, Min: 0, Max: 10},
		{Name: "slope", Label: "ST slope", Kind: KindEnum, Allowed: []float64{0, 1, 2}, Integer: true, Aliases: []string{"slp"}},
		{Name: "ca", Label: "Major vessels", Kind: KindRange, Min: 0, Max: 4, Integer: true, Aliases: []string{"caa"}},
		{Name: "thal", Label: "Thalassemia", Kind: KindEnum, Allowed: thal, Integer: true, Aliases: []string{"thall"}},
	}

	index := make(map[string]int, len(fields)*2)
	for i, f := range fields {
		index[f.Name] = i
		for _, a := range f.Aliases {
			index[a] = i
		}
	}

	return &Schema{fields: fields, index: index, encoding: enc}, nil
}

func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns canonical field names in vector order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) Encoding() ThalEncoding { return s.encoding }

// Lookup resolves a canonical name or alias.
func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}
