// Package sandbox wraps the external code execution service. Code runs in an
// isolated environment reachable only over HTTP; this process never executes
// candidate code itself.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ExecutionResult is the raw outcome of running one piece of code against one
// stdin.
type ExecutionResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	ExitStatus    int    `json:"exit_status"`
	TimedOut      bool   `json:"timed_out"`
}

// Executor runs untrusted code. Errors mean the execution service itself
// failed; a program that compiles and crashes is a successful execution with
// a non-zero ExitStatus.
type Executor interface {
	Execute(ctx context.Context, code, language, stdin string) (*ExecutionResult, error)
}

// Client is the HTTP implementation of Executor.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a sandbox client. timeout bounds a single execution
// round-trip including queueing on the sandbox side.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "sandbox_client").Logger(),
	}
}

type executeRequest struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
	Stdin      string `json:"stdin"`
}

// Execute submits code to the sandbox and waits for the result.
func (c *Client) Execute(ctx context.Context, code, language, stdin string) (*ExecutionResult, error) {
	body, err := json.Marshal(executeRequest{
		SourceCode: code,
		Language:   language,
		Stdin:      stdin,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/executions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, string(data))
	}

	var result ExecutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
