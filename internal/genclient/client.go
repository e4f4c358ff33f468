package genclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/queuetrack"
)

// Backend is the remote generation service the client consumes. The studio
// does not run generation itself; it submits work and polls for the outcome.
type Backend interface {
	SubmitJob(ctx context.Context, req SubmitRequest) (*SubmitResponse, error)
	JobStatus(ctx context.Context, jobID string) (*StatusResponse, error)
}

// SubmitRequest carries one generation request. Params is an opaque bag
// forwarded to the backend verbatim.
type SubmitRequest struct {
	Type      domain.JobType
	OwnerID   string
	ProjectID string
	Params    map[string]any
}

// SubmitResponse is the backend's answer to a submission: either the work
// was computed synchronously (Queued false, Result set) or it was placed in
// the shared fairness queue.
type SubmitResponse struct {
	Queued       bool
	Result       string
	QueueID      string
	Position     int
	TotalInQueue int
}

// StatusResponse is one poll of the backend job-status endpoint.
type StatusResponse struct {
	Status       domain.JobStatus
	Position     int
	TotalInQueue int
	Result       string
	Error        string
}

// SubmissionOutcome reports how a submission resolved. Exactly one of the
// two shapes applies: Immediate with Result set, or queued with JobID set.
type SubmissionOutcome struct {
	Immediate bool
	Result    string
	JobID     string
	Position  int
	Total     int
}

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 120
)

// Options configures the generation job client.
type Options struct {
	Backend Backend
	Tracker *queuetrack.Tracker
	Logger  zerolog.Logger
	// PollInterval is the gap between job-status polls. Defaults to 2s.
	PollInterval time.Duration
	// MaxAttempts bounds the number of polls before the client gives up
	// locally with domain.ErrTimeout. Defaults to 120 (~4 minutes).
	MaxAttempts int
	// Tier is the caller's account class. TierDelays maps tiers to the
	// fixed cosmetic wait applied before synchronous results are returned;
	// it never touches the queued flow.
	Tier       string
	TierDelays map[string]time.Duration
}

// Client turns "ask the backend to generate X" into a uniform
// completed-or-failed outcome, hiding whether the backend answered
// synchronously or queued the work. Each flow is identified by a caller
// supplied key (one per slot and job type); only one flow per key runs at
// a time, a second submission for a busy key is rejected with
// domain.ErrGenerationBusy.
type Client struct {
	backend      Backend
	tracker      *queuetrack.Tracker
	logger       zerolog.Logger
	pollInterval time.Duration
	maxAttempts  int
	tierDelay    time.Duration
}

// New constructs a client with defaults applied.
func New(opts Options) (*Client, error) {
	if opts.Backend == nil {
		return nil, errors.New("genclient: backend is required")
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = queuetrack.New()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	return &Client{
		backend:      opts.Backend,
		tracker:      tracker,
		logger:       opts.Logger,
		pollInterval: interval,
		maxAttempts:  attempts,
		tierDelay:    opts.TierDelays[opts.Tier],
	}, nil
}

// Tracker exposes the progress tracker shared with UI observers.
func (c *Client) Tracker() *queuetrack.Tracker {
	return c.tracker
}

// Submit sends one generation request under the given flow key.
//
// Submission failures are surfaced immediately and are not retried, so the
// caller can offer an explicit "please retry". On a queued outcome the
// tracker starts reporting progress for the key right away and the key stays
// claimed until AwaitCompletion reaches a terminal state.
func (c *Client) Submit(ctx context.Context, key string, req SubmitRequest) (*SubmissionOutcome, error) {
	if strings.TrimSpace(string(req.Type)) == "" {
		return nil, errors.New("genclient: job type is required")
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, errors.New("genclient: owner id is required")
	}
	if !c.tracker.Begin(key) {
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationBusy, key)
	}

	resp, err := c.backend.SubmitJob(ctx, req)
	if err != nil {
		c.tracker.End(key)
		return nil, fmt.Errorf("genclient: submit %s: %w", req.Type, err)
	}

	if !resp.Queued {
		// Fixed per-tier pacing wait, purely cosmetic. Applies to
		// synchronous results only.
		if err := c.pace(ctx); err != nil {
			c.tracker.End(key)
			return nil, err
		}
		c.tracker.End(key)
		return &SubmissionOutcome{Immediate: true, Result: resp.Result}, nil
	}

	c.tracker.Update(key, resp.QueueID, resp.Position, resp.TotalInQueue)
	c.logger.Info().
		Str("key", key).
		Str("job_id", resp.QueueID).
		Int("position", resp.Position).
		Int("total", resp.TotalInQueue).
		Msg("genclient: job queued")
	return &SubmissionOutcome{
		JobID:    resp.QueueID,
		Position: resp.Position,
		Total:    resp.TotalInQueue,
	}, nil
}

// AwaitCompletion polls the backend until the job reaches a terminal state
// or the attempt budget runs out.
//
// A transport error on a single poll is logged and tolerated; it spends one
// attempt out of the budget, so a transient blip cannot abort the wait. When
// the budget is exhausted the flow fails with domain.ErrTimeout. That is a
// client-local give-up: the backend job may still complete later.
func (c *Client) AwaitCompletion(ctx context.Context, key, jobID string) (string, error) {
	defer c.tracker.End(key)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, err := c.backend.JobStatus(ctx, jobID)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("key", key).
				Str("job_id", jobID).
				Int("attempt", attempt).
				Msg("genclient: status poll failed")
		} else {
			switch status.Status {
			case domain.JobStatusQueued:
				c.tracker.Update(key, jobID, status.Position, status.TotalInQueue)
			case domain.JobStatusProcessing:
				// Position zero is the "currently executing" sentinel.
				c.tracker.Update(key, jobID, 0, status.TotalInQueue)
			case domain.JobStatusCompleted:
				c.tracker.Clear(key)
				return status.Result, nil
			case domain.JobStatusFailed:
				c.tracker.Clear(key)
				return "", fmt.Errorf("%w: %s", domain.ErrJobFailed, status.Error)
			}
		}

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			c.tracker.Clear(key)
			return "", ctx.Err()
		}
	}

	c.tracker.Clear(key)
	c.logger.Warn().
		Str("key", key).
		Str("job_id", jobID).
		Int("attempts", c.maxAttempts).
		Msg("genclient: giving up, job may still complete on the backend")
	return "", fmt.Errorf("%w: job %s after %d polls", domain.ErrTimeout, jobID, c.maxAttempts)
}

// Generate runs the full flow: submit, then wait when the backend queued the
// work.
func (c *Client) Generate(ctx context.Context, key string, req SubmitRequest) (string, error) {
	outcome, err := c.Submit(ctx, key, req)
	if err != nil {
		return "", err
	}
	if outcome.Immediate {
		return outcome.Result, nil
	}
	return c.AwaitCompletion(ctx, key, outcome.JobID)
}

func (c *Client) pace(ctx context.Context) error {
	if c.tierDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.tierDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
