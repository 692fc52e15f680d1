package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Renderer turns an outcome into a document for a named patient.
type Renderer interface {
	ContentType() string
	Render(w io.Writer, patient string, o Outcome) error
}

// CSVRenderer writes one Field,Value row per input. Fields sets the row
// order, normally the schema's vector order; inputs it does not name follow
// in alphabetical order.
type CSVRenderer struct {
	Fields []string
}

func (CSVRenderer) ContentType() string { return "text/csv" }

func (r CSVRenderer) Render(w io.Writer, patient string, o Outcome) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Field", "Value"},
		{"Patient", patientName(patient)},
		{"Generated", o.CreatedAt.Format(time.RFC3339)},
	}
	for _, name := range featureOrder(r.Fields, o.Features) {
		rows = append(rows, []string{name, formatFloat(o.Features[name])})
	}
	rows = append(rows,
		[]string{"Prediction", predictionLabel(o.Label)},
		[]string{"Probability", fmt.Sprintf("%.4f", o.ProbabilityDisease)},
		[]string{"Confidence", confidenceText(o)},
		[]string{"Risk Tier", string(o.RiskTier)},
		[]string{"Health Score", fmt.Sprintf("%.1f", o.HealthScore)},
	)
	for _, rec := range o.Recommendations {
		rows = append(rows, []string{"Recommendation", rec})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteHistoryCSV exports a prediction history, one row per entry.
func WriteHistoryCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "patient", "prediction", "probability", "health_score", "risk_tier"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Outcome.CreatedAt.Format("2006-01-02 15:04:05"),
			patientName(e.Patient),
			strconv.Itoa(e.Outcome.Label),
			fmt.Sprintf("%.4f", e.Outcome.ProbabilityDisease),
			fmt.Sprintf("%.1f", e.Outcome.HealthScore),
			string(e.Outcome.RiskTier),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type TextRenderer struct{}

func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (TextRenderer) Render(w io.Writer, patient string, o Outcome) error {
	var b strings.Builder
	b.WriteString("Heart Disease Prediction Report\n")
	fmt.Fprintf(&b, "Generated: %s\n", o.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Patient: %s\n\n", patientName(patient))
	fmt.Fprintf(&b, "Prediction: %s\n", predictionLabel(o.Label))
	fmt.Fprintf(&b, "Probability: %.2f%%\n", o.ProbabilityDisease*100)
	fmt.Fprintf(&b, "Confidence: %s\n", confidenceText(o))
	fmt.Fprintf(&b, "Risk Tier: %s\n", o.RiskTier)
	fmt.Fprintf(&b, "Health Score: %.1f/100\n\nRecommendations:\n", o.HealthScore)
	for _, rec := range o.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	b.WriteString("\nThis report is informational only and is not a medical diagnosis.\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// RendererFor picks a renderer by short format name. fields orders the
// feature rows of tabular formats.
func RendererFor(format string, fields []string) (Renderer, bool) {
	switch strings.ToLower(format) {
	case "csv":
		return CSVRenderer{Fields: fields}, true
	case "text", "txt":
		return TextRenderer{}, true
	default:
		return nil, false
	}
}

func featureOrder(fields []string, values map[string]float64) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, name := range fields {
		if _, ok := values[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var rest []string
	for name := range values {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func patientName(p string) string {
	if strings.TrimSpace(p) == "" {
		return "Unnamed"
	}
	return p
}

func predictionLabel(label int) string {
	if label == 1 {
		return "Heart disease detected"
	}
	return "No heart disease detected"
}

func confidenceText(o Outcome) string {
	if o.Confidence == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.2f%% (%s)", *o.Confidence*100, o.ConfidenceBand)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
