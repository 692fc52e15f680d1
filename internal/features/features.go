package features

// PatientFeatures is a validated, immutable set of the 13 clinical fields.
// Construct it through Schema.Validate or Schema.FromVector.
type PatientFeatures struct {
	names  []string
	values []float64
}

func newPatientFeatures(names []string, values []float64) *PatientFeatures {
	return &PatientFeatures{names: names, values: values}
}

// Vector returns a copy of the ordered feature vector.
func (p *PatientFeatures) Vector() []float64 {
	out := make([]float64, len(p.values))
	copy(out, p.values)
	return out
}

// Get returns the value of a canonical field name.
func (p *PatientFeatures) Get(name string) (float64, bool) {
	for i, n := range p.names {
		if n == name {
			return p.values[i], true
		}
	}
	return 0, false
}

func (p *PatientFeatures) Map() map[string]float64 {
	m := make(map[string]float64, len(p.names))
	for i, n := range p.names {
		m[n] = p.values[i]
	}
	return m
}
