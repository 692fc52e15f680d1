package risk

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Skufu/cardioscore/internal/features"
)

type Op string

const (
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpEQ  Op = "eq"
)

// Rule appends Message when Field <Op> Threshold holds for a patient.
type Rule struct {
	ID        string  `yaml:"id" json:"id"`
	Field     string  `yaml:"field" json:"field"`
	Op        Op      `yaml:"op" json:"op"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Message   string  `yaml:"message" json:"message"`
}

func (r Rule) matches(v float64) bool {
	switch r.Op {
	case OpGT:
		return v > r.Threshold
	case OpGTE:
		return v >= r.Threshold
	case OpLT:
		return v < r.Threshold
	case OpLTE:
		return v <= r.Threshold
	case OpEQ:
		return v == r.Threshold
	default:
		return false
	}
}

// Policy is loaded once at startup and only read afterwards.
type Policy struct {
	Thresholds      Thresholds `yaml:"thresholds" json:"thresholds"`
	UrgentMessage   string     `yaml:"urgent_message" json:"urgent_message"`
	MaintainMessage string     `yaml:"maintain_message" json:"maintain_message"`
	Rules           []Rule     `yaml:"rules" json:"rules"`
}

const (
	DefaultUrgentMessage   = "Seek immediate cardiology consultation; the model indicates likely heart disease."
	DefaultMaintainMessage = "Maintain your current healthy lifestyle and keep up regular check-ups."
)

func DefaultRules() []Rule {
	return []Rule{
		{ID: "cholesterol", Field: "chol", Op: OpGT, Threshold: 240, Message: "Cholesterol above 240 mg/dL: reduce saturated fat intake and discuss lipid-lowering options with your doctor."},
		{ID: "blood-pressure", Field: "trestbps", Op: OpGT, Threshold: 140, Message: "Resting blood pressure above 140 mmHg: reduce sodium intake and monitor blood pressure regularly."},
		{ID: "max-heart-rate", Field: "thalach", Op: OpLT, Threshold: 100, Message: "Max heart rate below 100 bpm: gradually increase aerobic exercise."},
		{ID: "exercise-angina", Field: "exang", Op: OpEQ, Threshold: 1, Message: "Exercise-induced angina reported: consult your doctor before starting or intensifying exercise."},
		{ID: "age", Field: "age", Op: OpGT, Threshold: 60, Message: "Age over 60: schedule periodic cardiac screening."},
		{ID: "st-depression", Field: "oldpeak", Op: OpGT, Threshold: 2, Message: "ST depression above 2: practise stress management and follow up on exercise ECG findings."},
	}
}

func DefaultPolicy() *Policy {
	return &Policy{
		Thresholds:      DefaultThresholds(),
		UrgentMessage:   DefaultUrgentMessage,
		MaintainMessage: DefaultMaintainMessage,
		Rules:           DefaultRules(),
	}
}

// LoadPolicy reads a YAML policy. Omitted sections fall back to the
// defaults; an empty path returns DefaultPolicy.
func LoadPolicy(path string, schema *features.Schema) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data, schema)
}

func ParsePolicy(data []byte, schema *features.Schema) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if p.Thresholds == (Thresholds{}) {
		p.Thresholds = DefaultThresholds()
	}
	if p.UrgentMessage == "" {
		p.UrgentMessage = DefaultUrgentMessage
	}
	if p.MaintainMessage == "" {
		p.MaintainMessage = DefaultMaintainMessage
	}
	if p.Rules == nil {
		p.Rules = DefaultRules()
	}
	if err := p.Validate(schema); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) Validate(schema *features.Schema) error {
	th := p.Thresholds
	if !(th.Critical <= 1 && th.Critical > th.High && th.High > th.Moderate && th.Moderate > 0) {
		return fmt.Errorf("thresholds must satisfy 0 < moderate < high < critical <= 1, got %+v", th)
	}

	var errs []error
	for i, r := range p.Rules {
		name := r.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if schema != nil {
			f, ok := schema.Lookup(r.Field)
			if !ok {
				errs = append(errs, fmt.Errorf("rule %s: unknown field %q", name, r.Field))
			} else {
				p.Rules[i].Field = f.Name
			}
		}
		switch r.Op {
		case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
		default:
			errs = append(errs, fmt.Errorf("rule %s: unknown op %q", name, r.Op))
		}
		if strings.TrimSpace(r.Message) == "" {
			errs = append(errs, fmt.Errorf("rule %s: message required", name))
		}
	}
	return errors.Join(errs...)
}

func (p *Policy) Tier(prob float64) Tier {
	return p.Thresholds.Tier(prob)
}
