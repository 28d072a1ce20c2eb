package evaluator

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseEvaluationClampsScores(t *testing.T) {
	content := `{"overall_score": 150, "correctness": -10, "code_quality": 80, "standards": 101, "efficiency": 0, "summary": "fine"}`

	evaluation, err := parseEvaluation(content)
	require.NoError(t, err)
	require.Equal(t, 100, evaluation.OverallScore)
	require.Equal(t, 0, evaluation.Correctness)
	require.Equal(t, 80, evaluation.CodeQuality)
	require.Equal(t, 100, evaluation.Standards)
	require.Equal(t, 0, evaluation.Efficiency)
	require.Equal(t, "fine", evaluation.Summary)
	require.False(t, evaluation.Fallback)
}

func TestParseEvaluationRejectsMalformedContent(t *testing.T) {
	_, err := parseEvaluation("I think the code is pretty good!")
	require.Error(t, err)
}

func TestFallbackEvaluationMirrorsTestScore(t *testing.T) {
	evaluation := FallbackEvaluation(Input{TestScore: 60, TestsPassed: 3, TestsTotal: 5})
	require.Equal(t, 60, evaluation.OverallScore)
	require.Equal(t, 60, evaluation.Correctness)
	require.True(t, evaluation.Fallback)
	require.Contains(t, evaluation.Summary, "3 of 5")
}

func TestFallbackEvaluationNotesInfraFailure(t *testing.T) {
	evaluation := FallbackEvaluation(Input{TestScore: 0, TestsPassed: 1, TestsTotal: 4, InfraError: "sandbox down"})
	require.Equal(t, 0, evaluation.OverallScore)
	require.Contains(t, evaluation.Summary, "infrastructure failure")
	require.Contains(t, evaluation.Summary, "manual review")
}

func TestNewOpenAIEvaluatorRequiresKey(t *testing.T) {
	_, err := NewOpenAIEvaluator("", "gpt-4o-mini", zerolog.Nop())
	require.Error(t, err)
}
