// Package evaluator grades coding submissions with a language model, with a
// deterministic fallback when the model is unreachable. Stage A (test
// execution) never depends on this package succeeding.
package evaluator

import "context"

// Input carries everything the evaluator sees about one submission.
type Input struct {
	ProblemTitle     string
	ProblemStatement string
	Language         string
	Code             string
	TestScore        int
	TestsPassed      int
	TestsTotal       int
	InfraError       string
}

// Evaluation is the structured verdict persisted to the submission. Scores
// are 0-100.
type Evaluation struct {
	OverallScore int      `json:"overall_score"`
	Correctness  int      `json:"correctness"`
	CodeQuality  int      `json:"code_quality"`
	Standards    int      `json:"standards"`
	Efficiency   int      `json:"efficiency"`
	Strengths    []string `json:"strengths,omitempty"`
	Weaknesses   []string `json:"weaknesses,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
	Summary      string   `json:"summary"`

	// Fallback marks verdicts produced without the model; the overall score
	// then mirrors the test run and the qualitative fields are generic.
	Fallback bool `json:"fallback,omitempty"`
}

// Evaluator grades a coding submission.
type Evaluator interface {
	Evaluate(ctx context.Context, input Input) (*Evaluation, error)
}
