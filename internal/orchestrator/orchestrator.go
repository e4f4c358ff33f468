package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/genclient"
)

// Generator runs one generation flow to a terminal result. Satisfied by
// *genclient.Client.
type Generator interface {
	Generate(ctx context.Context, key string, req genclient.SubmitRequest) (string, error)
}

// Orchestrator is the façade the UI layer calls: "generate an image for
// this slot". It bridges job completion to artifact creation and applies
// the activation rule shared by every studio tab: the first version landing
// on an empty slot becomes the displayed one, later results wait for an
// explicit activation.
type Orchestrator struct {
	generator Generator
	store     domain.VersionRepository
	logger    zerolog.Logger
	projectID string
	batchGap  time.Duration
}

// Options configures an Orchestrator.
type Options struct {
	Generator Generator
	Store     domain.VersionRepository
	Logger    zerolog.Logger
	ProjectID string
	// BatchGap is the pacing delay between consecutive submissions of a
	// batch, protecting the shared backend rate limit. Defaults to 1s.
	BatchGap time.Duration
}

// New constructs an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	if opts.Store == nil {
		return nil, errors.New("orchestrator: version store is required")
	}
	gap := opts.BatchGap
	if gap <= 0 {
		gap = time.Second
	}
	return &Orchestrator{
		generator: opts.Generator,
		store:     opts.Store,
		logger:    opts.Logger,
		projectID: opts.ProjectID,
		batchGap:  gap,
	}, nil
}

// FlowKey is the identity of one generation flow: one per slot and job
// type. The progress endpoint and the single-flight guard both key on it.
func FlowKey(slotID string, jobType domain.JobType) string {
	return slotID + ":" + string(jobType)
}

// GenerateArtifact submits a generation job for the slot, waits for the
// outcome and records it as a new version. The version is auto-activated
// only when the slot had no active version when the result landed.
func (o *Orchestrator) GenerateArtifact(ctx context.Context, slotID string, jobType domain.JobType, ownerID string, params map[string]any) (*domain.ArtifactVersion, error) {
	result, err := o.generator.Generate(ctx, FlowKey(slotID, jobType), genclient.SubmitRequest{
		Type:      jobType,
		OwnerID:   ownerID,
		ProjectID: o.projectID,
		Params:    params,
	})
	if err != nil {
		return nil, err
	}
	meta := domain.VersionMeta{
		PromptText:   promptText(params),
		MotionParams: motionParams(params),
	}
	version, err := o.record(ctx, slotID, domain.SourceGenerated, result, meta)
	if err != nil {
		return nil, err
	}
	o.logger.Info().
		Str("slot_id", slotID).
		Str("job_type", string(jobType)).
		Int("version", version.VersionNumber).
		Bool("active", version.IsActive).
		Msg("orchestrator: generated artifact recorded")
	return version, nil
}

// AddFromLink records an externally hosted artifact as a new version. No
// job is involved; the activation rule is the same as for generation.
func (o *Orchestrator) AddFromLink(ctx context.Context, slotID, externalURI string) (*domain.ArtifactVersion, error) {
	if strings.TrimSpace(externalURI) == "" {
		return nil, errors.New("orchestrator: external uri is required")
	}
	return o.record(ctx, slotID, domain.SourceExternalLink, externalURI, domain.VersionMeta{})
}

// AddFromUpload records an already-stored upload as a new version.
func (o *Orchestrator) AddFromUpload(ctx context.Context, slotID, uploadedURI string) (*domain.ArtifactVersion, error) {
	if strings.TrimSpace(uploadedURI) == "" {
		return nil, errors.New("orchestrator: uploaded uri is required")
	}
	return o.record(ctx, slotID, domain.SourceUploaded, uploadedURI, domain.VersionMeta{})
}

func (o *Orchestrator) record(ctx context.Context, slotID string, source domain.ArtifactSource, uri string, meta domain.VersionMeta) (*domain.ArtifactVersion, error) {
	prior, err := o.store.GetActive(ctx, slotID)
	if err != nil {
		return nil, err
	}
	version, err := o.store.Create(ctx, slotID, source, uri, meta)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		if err := o.store.SetActive(ctx, version.ID); err != nil {
			return nil, err
		}
		version.IsActive = true
	}
	return version, nil
}

// BatchItem is one slot's generation request within a batch.
type BatchItem struct {
	SlotID  string
	Type    domain.JobType
	OwnerID string
	Params  map[string]any
}

// BatchResult reports one batch item's outcome.
type BatchResult struct {
	SlotID  string
	Version *domain.ArtifactVersion
	Err     error
}

// GenerateBatch runs the items sequentially with a fixed pacing gap between
// submissions rather than firing everything at once; the shared backend
// queue is rate limited. One item failing does not stop the rest.
func (o *Orchestrator) GenerateBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, 0, len(items))
	for i, item := range items {
		if i > 0 {
			select {
			case <-time.After(o.batchGap):
			case <-ctx.Done():
				results = append(results, BatchResult{SlotID: item.SlotID, Err: ctx.Err()})
				continue
			}
		}
		version, err := o.GenerateArtifact(ctx, item.SlotID, item.Type, item.OwnerID, item.Params)
		if err != nil {
			o.logger.Error().Err(err).Str("slot_id", item.SlotID).Msg("orchestrator: batch item failed")
		}
		results = append(results, BatchResult{SlotID: item.SlotID, Version: version, Err: err})
	}
	return results
}

func promptText(params map[string]any) string {
	if text, ok := params["prompt"].(string); ok && text != "" {
		return text
	}
	if len(params) == 0 {
		return ""
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(raw)
}

func motionParams(params map[string]any) string {
	for _, key := range []string{"camera", "motion"} {
		switch v := params[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if raw, err := json.Marshal(v); err == nil {
				return string(raw)
			}
		}
	}
	return ""
}
