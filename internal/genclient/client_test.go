package genclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/queuetrack"
)

type stubBackend struct {
	mu          sync.Mutex
	submit      func(req SubmitRequest) (*SubmitResponse, error)
	statuses    []statusStep
	polls       int
	lastRequest SubmitRequest
}

type statusStep struct {
	resp *StatusResponse
	err  error
}

func (b *stubBackend) SubmitJob(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastRequest = req
	if b.submit == nil {
		return &SubmitResponse{Queued: true, QueueID: "job-1", Position: 1, TotalInQueue: 1}, nil
	}
	return b.submit(req)
}

func (b *stubBackend) JobStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	step := b.statuses[len(b.statuses)-1]
	if b.polls < len(b.statuses) {
		step = b.statuses[b.polls]
	}
	b.polls++
	return step.resp, step.err
}

func (b *stubBackend) pollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.polls
}

func newTestClient(t *testing.T, backend Backend, tracker *queuetrack.Tracker, attempts int) *Client {
	t.Helper()
	client, err := New(Options{
		Backend:      backend,
		Tracker:      tracker,
		Logger:       zerolog.Nop(),
		PollInterval: time.Millisecond,
		MaxAttempts:  attempts,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func queuedStep(position, total int) statusStep {
	return statusStep{resp: &StatusResponse{Status: domain.JobStatusQueued, Position: position, TotalInQueue: total}}
}

func TestSubmitValidatesInput(t *testing.T) {
	client := newTestClient(t, &stubBackend{}, queuetrack.New(), 5)
	if _, err := client.Submit(context.Background(), "k", SubmitRequest{OwnerID: "u1"}); err == nil {
		t.Fatalf("expected error for empty type")
	}
	if _, err := client.Submit(context.Background(), "k", SubmitRequest{Type: domain.JobTypeCharacterImage}); err == nil {
		t.Fatalf("expected error for empty owner")
	}
}

func TestSubmitImmediateResult(t *testing.T) {
	backend := &stubBackend{
		submit: func(req SubmitRequest) (*SubmitResponse, error) {
			return &SubmitResponse{Result: "https://cdn.example.com/pose.png"}, nil
		},
	}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 5)

	outcome, err := client.Submit(context.Background(), "char-1:character_image", SubmitRequest{
		Type:    domain.JobTypeCharacterImage,
		OwnerID: "u1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !outcome.Immediate || outcome.Result != "https://cdn.example.com/pose.png" {
		t.Fatalf("outcome = %+v, want immediate result", outcome)
	}
	if tracker.InFlight("char-1:character_image") {
		t.Fatalf("immediate outcome must release the flow key")
	}
}

func TestSubmitRejectsBusyKey(t *testing.T) {
	backend := &stubBackend{statuses: []statusStep{queuedStep(1, 2)}}
	client := newTestClient(t, backend, queuetrack.New(), 50)

	req := SubmitRequest{Type: domain.JobTypeSceneClip, OwnerID: "u1"}
	if _, err := client.Submit(context.Background(), "scene-4:scene_clip", req); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := client.Submit(context.Background(), "scene-4:scene_clip", req)
	if !errors.Is(err, domain.ErrGenerationBusy) {
		t.Fatalf("err = %v, want ErrGenerationBusy", err)
	}
	// Other keys are unaffected.
	if _, err := client.Submit(context.Background(), "scene-5:scene_clip", req); err != nil {
		t.Fatalf("independent key Submit: %v", err)
	}
}

func TestSubmitFailureReleasesKey(t *testing.T) {
	backend := &stubBackend{
		submit: func(req SubmitRequest) (*SubmitResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 5)

	_, err := client.Submit(context.Background(), "k", SubmitRequest{Type: domain.JobTypeUniverseImage, OwnerID: "u1"})
	if err == nil {
		t.Fatalf("expected submit error")
	}
	if tracker.InFlight("k") {
		t.Fatalf("failed submit must release the flow key")
	}
}

func TestAwaitCompletionQueuedThenCompleted(t *testing.T) {
	steps := make([]statusStep, 0, 51)
	for i := 0; i < 50; i++ {
		steps = append(steps, queuedStep(50-i, 60))
	}
	steps = append(steps, statusStep{resp: &StatusResponse{
		Status: domain.JobStatusCompleted,
		Result: "https://cdn.example.com/beat-7.png",
	}})
	backend := &stubBackend{statuses: steps}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 120)

	result, err := client.Generate(context.Background(), "beat-7:moodboard_image", SubmitRequest{
		Type:    domain.JobTypeMoodboardImage,
		OwnerID: "u1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result != "https://cdn.example.com/beat-7.png" {
		t.Fatalf("result = %q", result)
	}
	if got := backend.pollCount(); got != 51 {
		t.Fatalf("polls = %d, want 51", got)
	}
	if _, ok := tracker.Snapshot("beat-7:moodboard_image"); ok {
		t.Fatalf("snapshot must be cleared after completion")
	}
	if tracker.InFlight("beat-7:moodboard_image") {
		t.Fatalf("flow key must be released after completion")
	}
}

func TestAwaitCompletionProcessingSentinel(t *testing.T) {
	backend := &stubBackend{statuses: []statusStep{
		{resp: &StatusResponse{Status: domain.JobStatusProcessing, Position: 3, TotalInQueue: 8}},
		{resp: &StatusResponse{Status: domain.JobStatusCompleted, Result: "clip.mp4"}},
	}}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 10)

	tracker.Begin("k")
	done := make(chan struct{})
	var snap domain.QueueSnapshot
	var snapOK bool
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if s, ok := tracker.Snapshot("k"); ok {
				snap, snapOK = s, true
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	if _, err := client.AwaitCompletion(context.Background(), "k", "job-9"); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	<-done
	if snapOK && snap.Position != 0 {
		t.Fatalf("processing snapshot position = %d, want sentinel 0", snap.Position)
	}
}

func TestAwaitCompletionBackendFailure(t *testing.T) {
	backend := &stubBackend{statuses: []statusStep{
		{resp: &StatusResponse{Status: domain.JobStatusFailed, Error: "prompt rejected by moderation"}},
	}}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 10)

	tracker.Begin("k")
	_, err := client.AwaitCompletion(context.Background(), "k", "job-2")
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("err = %v, want ErrJobFailed", err)
	}
	if want := "prompt rejected by moderation"; err == nil || !strings.Contains(err.Error(), want) {
		t.Fatalf("err %q must carry the backend message %q", err, want)
	}
	if tracker.InFlight("k") {
		t.Fatalf("flow key must be released after failure")
	}
}

func TestAwaitCompletionTimesOut(t *testing.T) {
	backend := &stubBackend{statuses: []statusStep{queuedStep(4, 9)}}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 10)

	tracker.Begin("k")
	start := time.Now()
	_, err := client.AwaitCompletion(context.Background(), "k", "job-3")
	elapsed := time.Since(start)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := backend.pollCount(); got != 10 {
		t.Fatalf("polls = %d, want 10", got)
	}
	// 10 attempts at 1ms pacing should end well within the generous bound.
	if elapsed > time.Second {
		t.Fatalf("await took %v, exceeds attempt budget bound", elapsed)
	}
	if _, ok := tracker.Snapshot("k"); ok {
		t.Fatalf("snapshot must be cleared on timeout")
	}
	if tracker.InFlight("k") {
		t.Fatalf("flow key must be released on timeout")
	}
}

func TestAwaitCompletionToleratesTransportBlip(t *testing.T) {
	backend := &stubBackend{statuses: []statusStep{
		queuedStep(2, 5),
		{err: errors.New("connection reset")},
		{resp: &StatusResponse{Status: domain.JobStatusCompleted, Result: "done.png"}},
	}}
	tracker := queuetrack.New()
	client := newTestClient(t, backend, tracker, 10)

	tracker.Begin("k")
	result, err := client.AwaitCompletion(context.Background(), "k", "job-4")
	if err != nil {
		t.Fatalf("a single poll error must not abort the wait: %v", err)
	}
	if result != "done.png" {
		t.Fatalf("result = %q", result)
	}
}

func TestAwaitCompletionHonorsContext(t *testing.T) {
	backend := &stubBackend{statuses: []statusStep{queuedStep(1, 1)}}
	client := newTestClient(t, backend, queuetrack.New(), 1000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	client.Tracker().Begin("k")
	if _, err := client.AwaitCompletion(ctx, "k", "job-5"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTierDelayOnlyForImmediateResults(t *testing.T) {
	backend := &stubBackend{
		submit: func(req SubmitRequest) (*SubmitResponse, error) {
			return &SubmitResponse{Result: "instant.png"}, nil
		},
	}
	client, err := New(Options{
		Backend:    backend,
		Logger:     zerolog.Nop(),
		Tier:       "standard",
		TierDelays: map[string]time.Duration{"standard": 30 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	outcome, err := client.Submit(context.Background(), "k", SubmitRequest{Type: domain.JobTypeSceneImage, OwnerID: "u1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !outcome.Immediate {
		t.Fatalf("expected immediate outcome")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("tier pacing not applied, elapsed %v", elapsed)
	}
}
