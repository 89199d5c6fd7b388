package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-capture/internal/entity"
)

// Config holds the document-analysis service connection settings.
type Config struct {
	Endpoint     string
	APIKey       string
	APIVersion   string        // default 2023-07-31
	Timeout      time.Duration // per-request timeout, default 60s
	PollInterval time.Duration // async operation polling, default 1s
}

// Client calls the document-understanding REST API. Analyses submitted with
// the pinned api-version usually return inline; the client also follows the
// async 202 + Operation-Location flow when the service answers that way.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-07-31"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// analyzeEnvelope tolerates both the bare result body and the analyzeResult
// wrapper used by async operations.
type analyzeEnvelope struct {
	Status        string                      `json:"status,omitempty"`
	Error         *serviceError               `json:"error,omitempty"`
	AnalyzeResult *entity.RawAnalysisResult   `json:"analyzeResult,omitempty"`
	Documents     []entity.RecognizedDocument `json:"documents,omitempty"`
	Tables        []entity.Table              `json:"tables,omitempty"`
}

type serviceError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *analyzeEnvelope) result() *entity.RawAnalysisResult {
	if e.AnalyzeResult != nil {
		return e.AnalyzeResult
	}
	return &entity.RawAnalysisResult{Documents: e.Documents, Tables: e.Tables}
}

// Analyze submits document bytes to the named analysis model and returns the
// decoded result.
func (c *Client) Analyze(ctx context.Context, document []byte, model, mimeType string) (*entity.RawAnalysisResult, error) {
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		return nil, fmt.Errorf("analysis client not configured: endpoint and key are required")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	reqID := uuid.New().String()
	start := time.Now()
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"), model, c.cfg.APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)

	c.logger.Info("analysis.request",
		"req_id", reqID, "model", model, "mime_type", mimeType, "bytes", len(document))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("analysis.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	raw, operationURL, err := c.consume(resp)
	if err != nil {
		c.logger.Error("analysis.response_error", "req_id", reqID, "status", resp.StatusCode, "error", err)
		return nil, err
	}

	if operationURL != "" {
		raw, err = c.poll(ctx, reqID, operationURL)
		if err != nil {
			return nil, err
		}
	}

	var env analyzeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("analysis failed: %s: %s", env.Error.Code, env.Error.Message)
	}

	result := env.result()
	c.logger.Info("analysis.ok",
		"req_id", reqID,
		"documents", len(result.Documents),
		"tables", len(result.Tables),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// consume reads the response body and decides between an inline result and
// an async operation handoff.
func (c *Client) consume(resp *http.Response) (raw []byte, operationURL string, err error) {
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Warn("analysis.response_body_close_error", "error", cerr)
		}
	}(resp.Body)

	raw, _ = io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusAccepted:
		loc := resp.Header.Get("Operation-Location")
		if loc == "" {
			return nil, "", fmt.Errorf("accepted without Operation-Location")
		}
		return nil, loc, nil
	case resp.StatusCode/100 != 2:
		return nil, "", fmt.Errorf("non-2xx status: %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, "", nil
}

// poll fetches the async operation until it leaves the running states.
func (c *Client) poll(ctx context.Context, reqID, operationURL string) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		raw, _, err := c.consume(resp)
		if err != nil {
			return nil, err
		}

		var probe struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("decode operation status: %w", err)
		}
		c.logger.Debug("analysis.poll", "req_id", reqID, "status", probe.Status)

		switch strings.ToLower(probe.Status) {
		case "notstarted", "running":
			continue
		default:
			return raw, nil
		}
	}
}
