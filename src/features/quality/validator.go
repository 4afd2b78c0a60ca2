// Package quality grades analyzer output and steers the pipeline: accept,
// accept with review, or retry.
package quality

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cruxtone/hymnsift/src/features/metrics"
	"github.com/cruxtone/hymnsift/src/features/queue"
)

// Grade is the ordered quality grade of one analyzer result.
type Grade string

const (
	GradeFailed     Grade = "failed"
	GradePoor       Grade = "poor"
	GradeAcceptable Grade = "acceptable"
	GradeGood       Grade = "good"
	GradeExcellent  Grade = "excellent"
)

// Canonical concern levels. "Moderate" is accepted on the wire and
// normalized to "Medium" so the validator and the score derivation agree on
// one enumeration.
var concernLevels = map[string]string{
	"very low":  "Very Low",
	"low":       "Low",
	"moderate":  "Medium",
	"medium":    "Medium",
	"high":      "High",
	"very high": "Very High",
}

// requiredFields are validated; any violation is a validation error.
var requiredFields = []string{
	"christian_score",
	"concern_level",
	"biblical_themes",
	"supporting_scripture",
	"explanation",
}

// desirableFields boost completeness when present.
var desirableFields = []string{
	"positive_themes",
	"purity_flags",
	"detailed_concerns",
	"positive_score_bonus",
	"analysis_version",
}

// Metrics is the outcome of validating one analyzer result.
type Metrics struct {
	Completeness     float64  `json:"completeness"`
	Confidence       float64  `json:"confidence"`
	Consistency      float64  `json:"consistency"`
	Overall          float64  `json:"overall"`
	Grade            Grade    `json:"grade"`
	MissingFields    []string `json:"missing_fields"`
	ValidationErrors []string `json:"validation_errors"`
	Recommendations  []string `json:"recommendations"`
}

// Decision is what the worker should do with the result.
type Decision struct {
	Persist         bool
	FlagForReview   bool
	Reenqueue       bool
	ReenqueuePrio   queue.JobPriority
	ReenqueueDelay  time.Duration
	StructuredError string
}

// Validator grades analyzer results. Stateless; safe for concurrent use.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate grades one analyzer result.
func (v *Validator) Validate(result map[string]any, jobID string) *Metrics {
	m := &Metrics{}

	// Only fields that are present AND valid count toward completeness;
	// a field carrying garbage is no better than an absent one.
	presentRequired := 0
	for _, field := range requiredFields {
		value, ok := result[field]
		if !ok || value == nil {
			m.MissingFields = append(m.MissingFields, field)
			m.ValidationErrors = append(m.ValidationErrors, fmt.Sprintf("missing required field: %s", field))
			continue
		}
		if err := validateRequired(field, value); err != "" {
			m.ValidationErrors = append(m.ValidationErrors, err)
			continue
		}
		presentRequired++
	}
	presentDesirable := 0
	for _, field := range desirableFields {
		value, ok := result[field]
		if !ok || value == nil {
			m.MissingFields = append(m.MissingFields, field)
			continue
		}
		if err := validateDesirable(field, value); err != "" {
			m.ValidationErrors = append(m.ValidationErrors, err)
			continue
		}
		presentDesirable++
	}

	m.Completeness = clamp01(float64(presentRequired)/float64(len(requiredFields)) + 0.1*float64(presentDesirable))
	m.Confidence = confidence(result)
	m.Consistency = consistency(result)
	m.Overall = 0.4*m.Completeness + 0.4*m.Confidence + 0.2*m.Consistency
	m.Grade = grade(m.Overall, len(m.ValidationErrors))
	m.Recommendations = recommendations(m)

	metrics.QualityGrades.WithLabelValues(string(m.Grade)).Inc()
	return m
}

// Decide maps a grade onto the pipeline decision matrix.
func (v *Validator) Decide(m *Metrics) Decision {
	switch m.Grade {
	case GradeExcellent, GradeGood, GradeAcceptable:
		return Decision{Persist: true}
	case GradePoor:
		return Decision{
			Persist:        true,
			FlagForReview:  true,
			Reenqueue:      true,
			ReenqueuePrio:  queue.PriorityMedium,
			ReenqueueDelay: 5 * time.Minute,
		}
	default:
		return Decision{
			Reenqueue:       true,
			ReenqueuePrio:   queue.PriorityHigh,
			ReenqueueDelay:  time.Minute,
			StructuredError: fmt.Sprintf("analysis quality failed: overall=%.2f errors=%s", m.Overall, strings.Join(m.ValidationErrors, "; ")),
		}
	}
}

func validateRequired(field string, value any) string {
	switch field {
	case "christian_score":
		score, ok := asNumber(value)
		if !ok || score < 0 || score > 100 {
			return fmt.Sprintf("christian_score must be a number in [0,100], got %v", value)
		}
	case "concern_level":
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("concern_level must be a string, got %v", value)
		}
		if _, known := concernLevels[strings.ToLower(strings.TrimSpace(s))]; !known {
			return fmt.Sprintf("concern_level %q is not a recognized level", s)
		}
	case "biblical_themes":
		if _, ok := value.([]any); !ok {
			return "biblical_themes must be a list"
		}
	case "supporting_scripture":
		if _, ok := value.(map[string]any); !ok {
			return "supporting_scripture must be a mapping"
		}
	case "explanation":
		s, ok := value.(string)
		if !ok || len(strings.Join(strings.Fields(s), "")) < 10 {
			return "explanation must contain at least 10 non-whitespace characters"
		}
	}
	return ""
}

func validateDesirable(field string, value any) string {
	switch field {
	case "positive_themes", "purity_flags", "detailed_concerns":
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("%s must be a list", field)
		}
	case "positive_score_bonus":
		bonus, ok := asNumber(value)
		if !ok || bonus < 0 || bonus > 200 {
			return fmt.Sprintf("positive_score_bonus must be a number in [0,200], got %v", value)
		}
	case "analysis_version":
		if _, ok := value.(string); !ok {
			return "analysis_version must be a string"
		}
	}
	return ""
}

func confidence(result map[string]any) float64 {
	c := 0.0
	if score, ok := asNumber(result["christian_score"]); ok && score >= 0 && score <= 100 {
		c += 0.3
	}
	themes, _ := result["biblical_themes"].([]any)
	if len(themes) > 0 {
		c += 0.3
	}
	if len(themes) >= 3 {
		c += 0.1
	}
	if scripture, ok := result["supporting_scripture"].(map[string]any); ok && len(scripture) > 0 {
		c += 0.3
	}
	if explanation, ok := result["explanation"].(string); ok && len(explanation) >= 50 {
		c += 0.1
	}
	return clamp01(c)
}

func consistency(result map[string]any) float64 {
	c := 1.0
	score, hasScore := asNumber(result["christian_score"])
	themes, _ := result["biblical_themes"].([]any)

	// The alignment checks only mean anything against a valid score.
	if hasScore && score >= 0 && score <= 100 {
		if reported, ok := result["concern_level"].(string); ok {
			normalized := concernLevels[strings.ToLower(strings.TrimSpace(reported))]
			if normalized != expectedConcernLevel(score) {
				c -= 0.1
			}
		} else {
			c -= 0.1
		}
		if score >= 80 && len(themes) == 0 {
			c -= 0.2
		}
		if score <= 30 && len(themes) > 2 {
			c -= 0.15
		}
	}
	if c < 0 {
		c = 0
	}
	return c
}

// expectedConcernLevel derives the concern level a score implies.
func expectedConcernLevel(score float64) string {
	switch {
	case score >= 85:
		return "Low"
	case score >= 70:
		return "Medium"
	case score >= 50:
		return "High"
	default:
		return "Very High"
	}
}

// grade applies the grade table top-down; first match wins.
func grade(overall float64, validationErrors int) Grade {
	switch {
	case overall >= 0.85 && validationErrors == 0:
		return GradeExcellent
	case overall >= 0.75 && validationErrors <= 1:
		return GradeGood
	case overall >= 0.55 && validationErrors <= 3:
		return GradeAcceptable
	case overall >= 0.25:
		return GradePoor
	default:
		return GradeFailed
	}
}

func recommendations(m *Metrics) []string {
	var recs []string
	if m.Completeness < 0.8 {
		recs = append(recs, "ensure required fields are populated")
	}
	if m.Confidence < 0.7 {
		recs = append(recs, "improve biblical content detection")
	}
	if m.Consistency < 0.8 {
		recs = append(recs, "review internal logic for score/concern alignment")
	}
	if len(m.MissingFields) > 0 {
		missing := append([]string(nil), m.MissingFields...)
		sort.Strings(missing)
		recs = append(recs, "add missing fields: "+strings.Join(missing, ", "))
	}
	return recs
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
