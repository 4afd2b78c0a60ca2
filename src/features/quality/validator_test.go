package quality

import (
	"strings"
	"testing"
	"time"

	"github.com/cruxtone/hymnsift/src/features/queue"
)

func goodResult() map[string]any {
	return map[string]any{
		"christian_score": 88.0,
		"concern_level":   "Low",
		"biblical_themes": []any{"worship", "grace", "salvation"},
		"supporting_scripture": map[string]any{
			"worship": "Psalm 95:6",
		},
		"explanation":          strings.Repeat("A thorough explanation of the analysis. ", 3),
		"positive_themes":      []any{"hope"},
		"purity_flags":         []any{},
		"detailed_concerns":    []any{},
		"positive_score_bonus": 20.0,
		"analysis_version":     "lexical-1.2",
	}
}

func TestValidateExcellent(t *testing.T) {
	v := NewValidator()
	m := v.Validate(goodResult(), "job-1")

	if len(m.ValidationErrors) != 0 {
		t.Fatalf("expected no validation errors, got %v", m.ValidationErrors)
	}
	if m.Grade != GradeExcellent {
		t.Fatalf("expected excellent, got %s (overall %.2f)", m.Grade, m.Overall)
	}
	d := v.Decide(m)
	if !d.Persist || d.Reenqueue || d.FlagForReview {
		t.Fatalf("excellent results should be persisted as-is, got %+v", d)
	}
}

func TestValidateFailedReenqueuesHighPriority(t *testing.T) {
	// Missing biblical_themes and supporting_scripture, out-of-range score,
	// unknown concern level.
	result := map[string]any{
		"christian_score": 150.0,
		"concern_level":   "Invalid",
		"explanation":     "Too short",
	}
	v := NewValidator()
	m := v.Validate(result, "job-2")

	if m.Grade != GradeFailed {
		t.Fatalf("expected failed, got %s (overall %.2f, errors %v)", m.Grade, m.Overall, m.ValidationErrors)
	}
	for _, field := range []string{"biblical_themes", "supporting_scripture"} {
		found := false
		for _, missing := range m.MissingFields {
			if missing == field {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %s in missing fields, got %v", field, m.MissingFields)
		}
	}

	d := v.Decide(m)
	if d.Persist {
		t.Fatal("failed results must not be persisted")
	}
	if !d.Reenqueue || d.ReenqueuePrio != queue.PriorityHigh || d.ReenqueueDelay != time.Minute {
		t.Fatalf("failed grade must re-enqueue at high priority with 1m delay, got %+v", d)
	}
	if d.StructuredError == "" {
		t.Fatal("failed grade must carry a structured error")
	}
}

func TestValidatePoorFlagsForReview(t *testing.T) {
	// Four invalid fields push the grade past acceptable's error cap while
	// the valid explanation keeps overall above the failed cutoff.
	result := map[string]any{
		"christian_score":      "ninety",
		"concern_level":        "Invalid",
		"biblical_themes":      "not a list",
		"supporting_scripture": "not a mapping",
		"explanation":          "A reasonably detailed explanation.",
	}
	v := NewValidator()
	m := v.Validate(result, "job-3")

	if m.Grade != GradePoor {
		t.Fatalf("expected poor, got %s (overall %.2f)", m.Grade, m.Overall)
	}
	d := v.Decide(m)
	if !d.Persist || !d.FlagForReview {
		t.Fatalf("poor results are accepted but flagged, got %+v", d)
	}
	if !d.Reenqueue || d.ReenqueuePrio != queue.PriorityMedium || d.ReenqueueDelay != 5*time.Minute {
		t.Fatalf("poor grade must re-enqueue at default priority with 5m delay, got %+v", d)
	}
}

func TestConsistencyPenalties(t *testing.T) {
	// High score with zero themes: -0.2; concern mismatch: -0.1.
	result := map[string]any{
		"christian_score":      90.0,
		"concern_level":        "Very High",
		"biblical_themes":      []any{},
		"supporting_scripture": map[string]any{"x": "y"},
		"explanation":          "An explanation long enough to count for confidence scoring here.",
	}
	c := consistency(result)
	if c < 0.69 || c > 0.71 {
		t.Fatalf("expected consistency 0.7, got %.2f", c)
	}

	// Low score with many themes: -0.15 (plus concern mismatch).
	result["christian_score"] = 20.0
	result["biblical_themes"] = []any{"a", "b", "c"}
	result["concern_level"] = "Low"
	c = consistency(result)
	if c < 0.74 || c > 0.76 {
		t.Fatalf("expected consistency 0.75, got %.2f", c)
	}
}

func TestConcernLevelNormalization(t *testing.T) {
	// "Moderate" is accepted and treated as "Medium".
	result := goodResult()
	result["christian_score"] = 75.0
	result["concern_level"] = "Moderate"
	m := NewValidator().Validate(result, "job-4")
	for _, e := range m.ValidationErrors {
		if strings.Contains(e, "concern_level") {
			t.Fatalf("Moderate should be a recognized level: %v", m.ValidationErrors)
		}
	}
	if m.Consistency != 1.0 {
		t.Fatalf("Moderate should match the expected Medium band for score 75, consistency %.2f", m.Consistency)
	}
}

func TestExpectedConcernLevelBands(t *testing.T) {
	cases := map[float64]string{
		90: "Low", 85: "Low",
		84: "Medium", 70: "Medium",
		69: "High", 50: "High",
		49: "Very High", 0: "Very High",
	}
	for score, want := range cases {
		if got := expectedConcernLevel(score); got != want {
			t.Errorf("score %.0f: expected %s, got %s", score, want, got)
		}
	}
}

func TestOverallMonotonicInComponents(t *testing.T) {
	base := &Metrics{Completeness: 0.5, Confidence: 0.5, Consistency: 0.5}
	overall := func(m *Metrics) float64 {
		return 0.4*m.Completeness + 0.4*m.Confidence + 0.2*m.Consistency
	}
	for _, bump := range []func(m *Metrics){
		func(m *Metrics) { m.Completeness += 0.2 },
		func(m *Metrics) { m.Confidence += 0.2 },
		func(m *Metrics) { m.Consistency += 0.2 },
	} {
		m := *base
		before := overall(&m)
		bump(&m)
		if overall(&m) <= before {
			t.Fatal("overall must be monotonic non-decreasing in each component")
		}
	}
}

func TestRecommendationsFromDeficits(t *testing.T) {
	m := &Metrics{
		Completeness:  0.5,
		Confidence:    0.5,
		Consistency:   0.5,
		MissingFields: []string{"biblical_themes"},
	}
	recs := recommendations(m)
	if len(recs) != 4 {
		t.Fatalf("expected 4 recommendations, got %v", recs)
	}
	if !strings.Contains(recs[3], "biblical_themes") {
		t.Fatalf("missing-field recommendation should name the field, got %q", recs[3])
	}
}
