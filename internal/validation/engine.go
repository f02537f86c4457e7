package validation

import (
	"fmt"

	"github.com/jmerrifield20/civicsync/internal/model"
)

// DefaultMinScore is the lowest score a report may have and still be submitted.
const DefaultMinScore = 50

const (
	reviseThreshold = 70
	praiseThreshold = 80
)

// input is what every rule inspects. Category is nil when the draft's
// category could not be resolved.
type input struct {
	draft    *model.Draft
	category *model.Category
}

// ruleFunc inspects the input and returns zero or more diagnostics.
type ruleFunc func(in input) []Diagnostic

// Engine is the default validator. It runs a fixed rule set and is safe for
// concurrent use.
type Engine struct {
	rules    []ruleFunc
	minScore int
	content  contentRules
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinScore overrides DefaultMinScore.
func WithMinScore(n int) Option {
	return func(e *Engine) { e.minScore = n }
}

// WithDenylist replaces the built-in list of inappropriate terms.
func WithDenylist(terms []string) Option {
	return func(e *Engine) { e.content.denylist = normalizeTerms(terms) }
}

// NewEngine returns an Engine loaded with the default rule set.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		minScore: DefaultMinScore,
		content:  contentRules{denylist: normalizeTerms(defaultDenylist)},
	}
	for _, o := range opts {
		o(e)
	}
	e.rules = []ruleFunc{
		ruleBasicFields,
		ruleCategory,
		e.content.check,
		ruleLocation,
		rulePhotos,
		ruleContact,
	}
	return e
}

// MinScore returns the minimum submittable score.
func (e *Engine) MinScore() int { return e.minScore }

// Validate scores draft against the metadata of its category. The result
// depends only on its arguments.
func (e *Engine) Validate(draft model.Draft, cat *model.Category) Verdict {
	in := input{draft: &draft, category: cat}
	var diags []Diagnostic
	for _, r := range e.rules {
		diags = append(diags, r(in)...)
	}
	return aggregate(diags)
}

// Decide turns a verdict into a submission decision. A report with no errors
// is still refused when its score is below the minimum.
func (e *Engine) Decide(v Verdict) Decision {
	d := Decision{
		CanSubmit:        v.Valid,
		RejectionReasons: append([]string{}, v.Errors...),
		Recommendations:  make([]string, 0, len(v.Warnings)+len(v.Suggestions)),
	}
	if v.Score < e.minScore {
		d.CanSubmit = false
		d.RejectionReasons = append(d.RejectionReasons,
			fmt.Sprintf("report quality is too low (score %d, minimum %d)", v.Score, e.minScore))
	}
	d.Recommendations = append(d.Recommendations, v.Warnings...)
	d.Recommendations = append(d.Recommendations, v.Suggestions...)
	return d
}

// Recommendations returns the verdict's suggestions plus an overall note
// derived from the score.
func (e *Engine) Recommendations(v Verdict) []string {
	out := append([]string{}, v.Suggestions...)
	if v.Score < reviseThreshold {
		out = append(out, "consider revising the report before submitting it")
	}
	if v.Score >= praiseThreshold {
		out = append(out, "the report is clear and complete")
	}
	return out
}
