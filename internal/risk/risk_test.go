package risk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Skufu/cardioscore/internal/features"
)

func patient(t *testing.T, overrides map[string]any) *features.PatientFeatures {
	t.Helper()
	schema, err := features.NewSchema(features.ThalStandard)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	raw := features.Raw{
		"age": 45, "sex": 0, "cp": 1, "trestbps": 120, "chol": 190, "fbs": 0,
		"restecg": 0, "thalach": 160, "exang": 0, "oldpeak": 0.5, "slope": 1,
		"ca": 0, "thal": 2,
	}
	for k, v := range overrides {
		raw[k] = v
	}
	res := schema.Validate(raw)
	if !res.Valid() {
		t.Fatalf("invalid fixture: %+v", res.Violations)
	}
	return res.Features
}

func TestTierThresholds(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		p    float64
		want Tier
	}{
		{0, TierLow},
		{0.39999, TierLow},
		{0.4, TierModerate},
		{0.59, TierModerate},
		{0.6, TierHigh},
		{0.79, TierHigh},
		{0.8, TierCritical},
		{1, TierCritical},
	}
	for _, tc := range cases {
		if got := th.Tier(tc.p); got != tc.want {
			t.Fatalf("Tier(%v) = %s, want %s", tc.p, got, tc.want)
		}
	}
}

func TestTierIsMonotonic(t *testing.T) {
	th := DefaultThresholds()
	prev := -1
	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		tier := th.Tier(p)
		if tier != th.Tier(p) {
			t.Fatalf("Tier(%v) not deterministic", p)
		}
		if tier.Severity() < prev {
			t.Fatalf("severity decreased at p=%v", p)
		}
		prev = tier.Severity()
	}
}

func TestHealthScore(t *testing.T) {
	for i := 0; i <= 100; i++ {
		p := float64(i) / 100
		s := HealthScore(p)
		if s < 0 || s > 100 {
			t.Fatalf("HealthScore(%v) = %v out of range", p, s)
		}
	}
	if HealthScore(0.25) != 75 {
		t.Fatalf("expected 75, got %v", HealthScore(0.25))
	}
	if HealthScore(1.5) != 0 || HealthScore(-0.5) != 100 {
		t.Fatal("expected clamping outside [0,1]")
	}
}

func TestConfidenceBand(t *testing.T) {
	if ConfidenceBand(0.55) != ConfidenceLow || ConfidenceBand(0.7) != ConfidenceModerate || ConfidenceBand(0.9) != ConfidenceHigh {
		t.Fatal("unexpected confidence bands")
	}
}

func TestRecommendMaintainLifestyle(t *testing.T) {
	recs := DefaultPolicy().Recommend(patient(t, nil), 0)
	if len(recs) != 1 || recs[0] != DefaultMaintainMessage {
		t.Fatalf("expected single maintain message, got %v", recs)
	}
}

func TestRecommendReferencePatient(t *testing.T) {
	f := patient(t, map[string]any{
		"age": 63, "sex": 1, "cp": 3, "trestbps": 145, "chol": 233, "fbs": 1,
		"restecg": 0, "thalach": 150, "exang": 0, "oldpeak": 2.3, "slope": 0, "ca": 0, "thal": 1,
	})
	policy := DefaultPolicy()

	recs := policy.Recommend(f, 1)
	if recs[0] != DefaultUrgentMessage {
		t.Fatalf("urgent message must come first, got %v", recs)
	}
	if !containsPrefix(recs, "ST depression above 2") {
		t.Fatalf("expected oldpeak recommendation, got %v", recs)
	}
	// trestbps, age and oldpeak fire; cholesterol 233 does not
	if len(recs) != 4 {
		t.Fatalf("expected urgent + 3 rules, got %v", recs)
	}

	negative := policy.Recommend(f, 0)
	if negative[0] == DefaultUrgentMessage || containsPrefix(negative, "Maintain") {
		t.Fatalf("negative label with fired rules must not be urgent or maintain: %v", negative)
	}
	if got := policy.FiredRules(f); strings.Join(got, ",") != "blood-pressure,age,st-depression" {
		t.Fatalf("unexpected fired rules %v", got)
	}
}

func TestRecommendPositiveWithoutRules(t *testing.T) {
	recs := DefaultPolicy().Recommend(patient(t, nil), 1)
	if len(recs) != 1 || recs[0] != DefaultUrgentMessage {
		t.Fatalf("expected only urgent message, got %v", recs)
	}
}

func TestRecommendAllRulesInOrder(t *testing.T) {
	f := patient(t, map[string]any{"chol": 300, "trestbps": 160, "thalach": 90, "exang": 1, "age": 70, "oldpeak": 3})
	recs := DefaultPolicy().Recommend(f, 0)
	rules := DefaultRules()
	if len(recs) != len(rules) {
		t.Fatalf("expected %d recommendations, got %v", len(rules), recs)
	}
	for i, r := range rules {
		if recs[i] != r.Message {
			t.Fatalf("recommendation %d = %q, want %q", i, recs[i], r.Message)
		}
	}
}

func TestLoadPolicyFromYAML(t *testing.T) {
	schema, _ := features.NewSchema(features.ThalStandard)
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(`thresholds:
  critical: 0.9
  high: 0.7
  moderate: 0.5
rules:
  - id: bp
    field: trtbps
    op: gte
    threshold: 130
    message: "Watch your blood pressure"
`), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	p, err := LoadPolicy(path, schema)
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if p.Tier(0.85) != TierHigh {
		t.Fatalf("custom thresholds not applied: %s", p.Tier(0.85))
	}
	if p.Rules[0].Field != "trestbps" {
		t.Fatalf("alias should resolve to canonical field, got %q", p.Rules[0].Field)
	}
	if p.MaintainMessage != DefaultMaintainMessage {
		t.Fatal("maintain message should default")
	}
}

func TestLoadPolicyRejectsBadConfig(t *testing.T) {
	schema, _ := features.NewSchema(features.ThalStandard)
	bad := []string{
		"thresholds: {critical: 0.5, high: 0.6, moderate: 0.4}",
		"rules: [{id: x, field: weight, op: gt, threshold: 1, message: m}]",
		"rules: [{id: x, field: age, op: between, threshold: 1, message: m}]",
		"rules: [{id: x, field: age, op: gt, threshold: 1}]",
	}
	for _, doc := range bad {
		if _, err := ParsePolicy([]byte(doc), schema); err == nil {
			t.Fatalf("expected error for %q", doc)
		}
	}
}

func TestShippedPolicyMatchesDefaults(t *testing.T) {
	schema, _ := features.NewSchema(features.ThalStandard)
	p, err := LoadPolicy(filepath.Join("..", "..", "configs", "policy.yaml"), schema)
	if err != nil {
		t.Fatalf("load shipped policy: %v", err)
	}
	def := DefaultPolicy()
	if p.Thresholds != def.Thresholds || len(p.Rules) != len(def.Rules) {
		t.Fatalf("shipped policy diverges from defaults: %+v", p)
	}
	for i := range def.Rules {
		if p.Rules[i] != def.Rules[i] {
			t.Fatalf("rule %d differs: %+v vs %+v", i, p.Rules[i], def.Rules[i])
		}
	}
}

func containsPrefix(recs []string, prefix string) bool {
	for _, r := range recs {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}
