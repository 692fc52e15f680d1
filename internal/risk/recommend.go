package risk

import "github.com/Skufu/cardioscore/internal/features"

// Recommend evaluates every rule in declared order. A positive label puts
// the urgent consultation message first; a negative label with no fired
// rule yields only the maintain-lifestyle message.
func (p *Policy) Recommend(f *features.PatientFeatures, label int) []string {
	recs := make([]string, 0, len(p.Rules)+1)
	if label == 1 {
		recs = append(recs, p.UrgentMessage)
	}

	fired := 0
	for _, rule := range p.Rules {
		v, ok := f.Get(rule.Field)
		if !ok || !rule.matches(v) {
			continue
		}
		fired++
		recs = appendUnique(recs, rule.Message)
	}

	if fired == 0 && label == 0 {
		recs = append(recs, p.MaintainMessage)
	}
	return recs
}

// FiredRules returns the IDs of rules that match, in declared order.
func (p *Policy) FiredRules(f *features.PatientFeatures) []string {
	var ids []string
	for _, rule := range p.Rules {
		if v, ok := f.Get(rule.Field); ok && rule.matches(v) {
			ids = append(ids, rule.ID)
		}
	}
	return ids
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
