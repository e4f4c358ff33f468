package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/genclient"
	"studio/internal/infra"
)

// ErrMissingBaseURL indicates the client was configured without a backend
// address.
var ErrMissingBaseURL = errors.New("genapi: base url is required")

// Options configures the generation backend client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the creative generation backend: one
// submit endpoint and one job-status endpoint. It implements
// genclient.Backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type submitPayload struct {
	Type      string         `json:"type"`
	OwnerID   string         `json:"ownerId"`
	ProjectID string         `json:"projectId,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

type submitResult struct {
	Queued       bool   `json:"queued"`
	Result       string `json:"result,omitempty"`
	QueueID      string `json:"queueId,omitempty"`
	Position     int    `json:"position,omitempty"`
	TotalInQueue int    `json:"totalInQueue,omitempty"`
}

type statusResult struct {
	Status       string `json:"status"`
	Position     int    `json:"position,omitempty"`
	TotalInQueue int    `json:"totalInQueue,omitempty"`
	Result       string `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}

type errorResult struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected
// dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// SubmitJob posts one generation request. The backend either answers with a
// synchronous result or with a queue placement.
func (c *Client) SubmitJob(ctx context.Context, req genclient.SubmitRequest) (*genclient.SubmitResponse, error) {
	body, err := json.Marshal(submitPayload{
		Type:      string(req.Type),
		OwnerID:   req.OwnerID,
		ProjectID: req.ProjectID,
		Params:    req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("genapi: encode request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/submit-job", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var decoded submitResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("genapi: decode response: %w", err)
	}
	c.logger.Debug().
		Str("type", string(req.Type)).
		Bool("queued", decoded.Queued).
		Str("queue_id", decoded.QueueID).
		Msg("genapi: job submitted")
	return &genclient.SubmitResponse{
		Queued:       decoded.Queued,
		Result:       decoded.Result,
		QueueID:      decoded.QueueID,
		Position:     decoded.Position,
		TotalInQueue: decoded.TotalInQueue,
	}, nil
}

// JobStatus fetches the current state of a queued job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*genclient.StatusResponse, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("genapi: job id is required")
	}
	endpoint := c.baseURL + "/job-status?id=" + url.QueryEscape(jobID)
	raw, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var decoded statusResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("genapi: decode response: %w", err)
	}
	return &genclient.StatusResponse{
		Status:       domain.JobStatus(decoded.Status),
		Position:     decoded.Position,
		TotalInQueue: decoded.TotalInQueue,
		Result:       decoded.Result,
		Error:        decoded.Error,
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("genapi: build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genapi: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genapi: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResult
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("genapi: %s (%s)", detail.Message, detail.Code)
		}
		return nil, fmt.Errorf("genapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

var _ genclient.Backend = (*Client)(nil)
