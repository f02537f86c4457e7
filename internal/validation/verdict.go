// Package validation scores a proposed civic report before it is persisted.
// Independent rules each inspect the draft and its category and emit
// diagnostics. The engine merges them into one Verdict whose score is
// 100 minus the summed penalties, clamped to [0, 100].
package validation

// Kind classifies a diagnostic.
type Kind string

const (
	KindError      Kind = "error"
	KindWarning    Kind = "warning"
	KindSuggestion Kind = "suggestion"
)

// Diagnostic is a single rule finding.
type Diagnostic struct {
	Kind     Kind   `json:"kind"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Penalty  int    `json:"penalty"`
}

// Verdict is the output of a validation run.
type Verdict struct {
	// Valid is true exactly when Errors is empty.
	Valid bool `json:"valid"`

	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`

	// Score is 100 minus the penalties of every distinct diagnostic, clamped to 0–100.
	Score int `json:"score"`

	// Diagnostics lists every distinct finding in rule order.
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Decision is the accept/reject outcome derived from a Verdict.
type Decision struct {
	CanSubmit        bool     `json:"can_submit"`
	RejectionReasons []string `json:"rejection_reasons"`
	Recommendations  []string `json:"recommendations"`
}

// severityLabel maps a diagnostic penalty to a severity string.
func severityLabel(penalty int) string {
	switch {
	case penalty >= 20:
		return "high"
	case penalty >= 10:
		return "medium"
	case penalty > 0:
		return "low"
	default:
		return "info"
	}
}

// aggregate dedupes diagnostics by kind and message, keeping first
// occurrence order, and computes the verdict.
func aggregate(diags []Diagnostic) Verdict {
	type key struct {
		kind Kind
		msg  string
	}
	seen := make(map[key]bool, len(diags))

	v := Verdict{
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
		Diagnostics: []Diagnostic{},
	}
	total := 0
	for _, d := range diags {
		k := key{d.Kind, d.Message}
		if seen[k] {
			continue
		}
		seen[k] = true

		d.Severity = severityLabel(d.Penalty)
		v.Diagnostics = append(v.Diagnostics, d)
		total += d.Penalty

		switch d.Kind {
		case KindError:
			v.Errors = append(v.Errors, d.Message)
		case KindWarning:
			v.Warnings = append(v.Warnings, d.Message)
		case KindSuggestion:
			v.Suggestions = append(v.Suggestions, d.Message)
		}
	}

	v.Score = clamp(100-total, 0, 100)
	v.Valid = len(v.Errors) == 0
	return v
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
