package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEvaluator implements Evaluator against the OpenAI chat completion
// API.
type OpenAIEvaluator struct {
	client *openai.Client
	model  string
	log    zerolog.Logger
}

// NewOpenAIEvaluator builds an evaluator. Returns an error when no API key is
// configured; callers are expected to fall back to the deterministic
// evaluator in that case.
func NewOpenAIEvaluator(apiKey, model string, log zerolog.Logger) (*OpenAIEvaluator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIEvaluator{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log.With().Str("component", "openai_evaluator").Logger(),
	}, nil
}

// Evaluate sends the submission to the model and parses the structured
// verdict.
func (e *OpenAIEvaluator) Evaluate(ctx context.Context, input Input) (*Evaluation, error) {
	request := openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   1024,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("openai evaluate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from openai")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	evaluation, err := parseEvaluation(content)
	if err != nil {
		return nil, err
	}
	return evaluation, nil
}

func systemPrompt() string {
	return "You are an automated code reviewer for a hiring assessment. Respond with a JSON object containing " +
		"overall_score, correctness, code_quality, standards, efficiency (each 0-100), " +
		"strengths, weaknesses, suggestions (arrays of short strings), and summary (one paragraph). " +
		"Weigh correctness against the reported test results; judge quality from the code itself."
}

func buildUserPrompt(input Input) string {
	builder := strings.Builder{}
	builder.WriteString("# Problem\n")
	builder.WriteString(input.ProblemTitle)
	builder.WriteString("\n\n## Statement\n")
	builder.WriteString(input.ProblemStatement)
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(input.Language)
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.Code)
	builder.WriteString(fmt.Sprintf("\n\n## Test Results\n%d of %d hidden test cases passed (score %d/100).\n",
		input.TestsPassed, input.TestsTotal, input.TestScore))
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseEvaluation(content string) (*Evaluation, error) {
	var evaluation Evaluation
	if err := json.Unmarshal([]byte(content), &evaluation); err != nil {
		return nil, fmt.Errorf("parse evaluation json: %w", err)
	}

	evaluation.OverallScore = clampScore(evaluation.OverallScore)
	evaluation.Correctness = clampScore(evaluation.Correctness)
	evaluation.CodeQuality = clampScore(evaluation.CodeQuality)
	evaluation.Standards = clampScore(evaluation.Standards)
	evaluation.Efficiency = clampScore(evaluation.Efficiency)
	return &evaluation, nil
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
