package handler

import (
	"encoding/json"
	"testing"

	"github.com/assessly/assessly-backend/internal/model"
	"github.com/assessly/assessly-backend/internal/response"
	"github.com/stretchr/testify/require"
)

func TestGradingProblemSurfacesInfraFailure(t *testing.T) {
	sub := &model.Submission{GradingStatus: model.GradingStatusFailed}
	require.Equal(t, response.ErrExecutionInfraFailure, gradingProblem(sub))
}

func TestGradingProblemSurfacesFallbackVerdict(t *testing.T) {
	verdict, err := json.Marshal(map[string]any{"overall_score": 40, "fallback": true})
	require.NoError(t, err)

	sub := &model.Submission{
		GradingStatus: model.GradingStatusCompleted,
		AIEvaluation:  verdict,
	}
	require.Equal(t, response.ErrEvaluationUnavailable, gradingProblem(sub))
}

func TestGradingProblemEmptyForNormalOutcomes(t *testing.T) {
	verdict, err := json.Marshal(map[string]any{"overall_score": 85})
	require.NoError(t, err)

	completed := &model.Submission{
		GradingStatus: model.GradingStatusCompleted,
		AIEvaluation:  verdict,
	}
	require.Empty(t, gradingProblem(completed))

	pending := &model.Submission{GradingStatus: model.GradingStatusPending}
	require.Empty(t, gradingProblem(pending))
}
