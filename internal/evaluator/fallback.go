package evaluator

import "fmt"

// FallbackEvaluation derives a verdict from the Stage A test run alone. Used
// whenever the model evaluator is unconfigured or fails: the candidate still
// gets a score and the grading pipeline still terminates.
func FallbackEvaluation(input Input) *Evaluation {
	summary := fmt.Sprintf("Automated review was unavailable; this score reflects hidden test results only. %d of %d test cases passed.",
		input.TestsPassed, input.TestsTotal)
	if input.InfraError != "" {
		summary += " Test execution was interrupted by an infrastructure failure; the submission is recorded with a zero score and needs manual review."
	}

	score := clampScore(input.TestScore)
	return &Evaluation{
		OverallScore: score,
		Correctness:  score,
		Summary:      summary,
		Fallback:     true,
	}
}
