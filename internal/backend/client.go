// internal/backend/client.go
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/codebuddy-cli/internal/config"
)

// Endpoint paths on the backend.
const (
	PathHint            = "/hint"
	PathSimilarProblems = "/similar_problems"
	PathCompaniesAsked  = "/companies_asked"
	PathYouTubeSearch   = "/youtube_search"
	PathOptimalCode     = "/optimal_code"
	PathExplainError    = "/explain_error"
	PathAnalyze         = "/analyze"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Client talks to the hint/solution service. Every call is a single POST
// with a JSON body; nothing is retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient initializes the client from configuration.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("backend"),
	}, nil
}

type problemRequest struct {
	ProblemDescription string `json:"problem_description"`
}

// Hint returns the hint text; an empty string means the backend had none.
func (c *Client) Hint(ctx context.Context, problem string) (string, error) {
	var resp struct {
		Hint string `json:"hint"`
	}
	if err := c.post(ctx, PathHint, problemRequest{problem}, &resp); err != nil {
		return "", err
	}
	return resp.Hint, nil
}

// SimilarProblems returns the similar problem titles, untruncated.
func (c *Client) SimilarProblems(ctx context.Context, problem string) ([]string, error) {
	var resp struct {
		Similar []string `json:"similar"`
	}
	if err := c.post(ctx, PathSimilarProblems, problemRequest{problem}, &resp); err != nil {
		return nil, err
	}
	return resp.Similar, nil
}

// CompaniesAsked returns the companies known to ask the problem.
func (c *Client) CompaniesAsked(ctx context.Context, problem string) ([]Company, error) {
	var resp struct {
		Companies []Company `json:"companies"`
	}
	if err := c.post(ctx, PathCompaniesAsked, problemRequest{problem}, &resp); err != nil {
		return nil, err
	}
	return resp.Companies, nil
}

// YouTubeSearch returns the id of the best matching video. An empty id with a
// nil error means the search found nothing.
func (c *Client) YouTubeSearch(ctx context.Context, query string) (string, error) {
	req := struct {
		Query string `json:"query"`
	}{query}
	var resp struct {
		VideoID string `json:"videoId"`
	}
	if err := c.post(ctx, PathYouTubeSearch, req, &resp); err != nil {
		return "", err
	}
	return resp.VideoID, nil
}

// OptimalCode fetches the optimal and brute-force solutions.
func (c *Client) OptimalCode(ctx context.Context, problem string) (SolutionBundle, error) {
	var raw map[string]interface{}
	if err := c.post(ctx, PathOptimalCode, problemRequest{problem}, &raw); err != nil {
		return SolutionBundle{}, err
	}
	return decodeSolution(raw), nil
}

// ExplainError asks for an explanation of a failed submission.
func (c *Client) ExplainError(ctx context.Context, code, submissionError string) (string, error) {
	req := struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}{code, submissionError}
	var resp struct {
		Explanation string `json:"explanation"`
	}
	if err := c.post(ctx, PathExplainError, req, &resp); err != nil {
		return "", err
	}
	return resp.Explanation, nil
}

// Analyze reviews the user's code against the problem.
func (c *Client) Analyze(ctx context.Context, code, problem string) (Analysis, error) {
	req := struct {
		Code               string `json:"code"`
		ProblemDescription string `json:"problem_description"`
	}{code, problem}
	var resp Analysis
	if err := c.post(ctx, PathAnalyze, req, &resp); err != nil {
		return Analysis{}, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", path, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	c.logger.Debug("Backend call complete",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(startTime)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend %s returned status %d: %s", path, resp.StatusCode, truncate(string(respBody), 256))
	}

	var reported struct {
		Error interface{} `json:"error"`
	}
	// Non-object bodies are caught by the typed decode below.
	if err := json.Unmarshal(respBody, &reported); err == nil && reported.Error != nil {
		msg := toString(reported.Error)
		if msg != "" {
			return &ReportedError{Endpoint: path, Message: msg}
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// IsReported reports whether err carries a backend-supplied message.
func IsReported(err error) (*ReportedError, bool) {
	var re *ReportedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
