package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/genclient"
)

type stubGenerator struct {
	mu      sync.Mutex
	results map[string]string
	err     error
	keys    []string
	times   []time.Time
}

func (g *stubGenerator) Generate(ctx context.Context, key string, req genclient.SubmitRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, key)
	g.times = append(g.times, time.Now())
	if g.err != nil {
		return "", g.err
	}
	if uri, ok := g.results[key]; ok {
		return uri, nil
	}
	return "https://cdn.example.com/generated.png", nil
}

func newOrchestrator(t *testing.T, gen Generator, store domain.VersionRepository, gap time.Duration) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Generator: gen,
		Store:     store,
		Logger:    zerolog.Nop(),
		ProjectID: "proj-1",
		BatchGap:  gap,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestFirstGenerationActivates(t *testing.T) {
	store := repo.NewVersionRepositoryMem()
	o := newOrchestrator(t, &stubGenerator{}, store, time.Millisecond)

	version, err := o.GenerateArtifact(context.Background(), "char-1:portrait", domain.JobTypeCharacterImage, "u1", map[string]any{"prompt": "brooding detective"})
	if err != nil {
		t.Fatalf("GenerateArtifact: %v", err)
	}
	if version.VersionNumber != 1 {
		t.Fatalf("version number = %d, want 1", version.VersionNumber)
	}
	if !version.IsActive {
		t.Fatalf("first version on an empty slot must be auto-activated")
	}
	if version.Source != domain.SourceGenerated {
		t.Fatalf("source = %s, want generated", version.Source)
	}
	if version.PromptText != "brooding detective" {
		t.Fatalf("prompt text = %q", version.PromptText)
	}
}

func TestRegenerationProposesInactiveCandidate(t *testing.T) {
	store := repo.NewVersionRepositoryMem()
	o := newOrchestrator(t, &stubGenerator{}, store, time.Millisecond)
	ctx := context.Background()

	first, err := o.GenerateArtifact(ctx, "char-1:portrait", domain.JobTypeCharacterImage, "u1", nil)
	if err != nil {
		t.Fatalf("first GenerateArtifact: %v", err)
	}
	second, err := o.GenerateArtifact(ctx, "char-1:portrait", domain.JobTypeCharacterImage, "u1", nil)
	if err != nil {
		t.Fatalf("second GenerateArtifact: %v", err)
	}
	if second.VersionNumber != 2 {
		t.Fatalf("version number = %d, want 2", second.VersionNumber)
	}
	if second.IsActive {
		t.Fatalf("regeneration must not displace the active version")
	}
	active, err := store.GetActive(ctx, "char-1:portrait")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active == nil || active.ID != first.ID {
		t.Fatalf("active = %+v, want the first version to stay displayed", active)
	}

	// Explicit activation promotes the candidate.
	if err := store.SetActive(ctx, second.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	active, err = store.GetActive(ctx, "char-1:portrait")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatalf("active after explicit activation = %+v", active)
	}
}

func TestGenerationFailureCreatesNoVersion(t *testing.T) {
	store := repo.NewVersionRepositoryMem()
	gen := &stubGenerator{err: errors.New("backend rejected prompt")}
	o := newOrchestrator(t, gen, store, time.Millisecond)

	if _, err := o.GenerateArtifact(context.Background(), "s", domain.JobTypeSceneImage, "u1", nil); err == nil {
		t.Fatalf("expected generation error")
	}
	versions, err := store.ListActive(context.Background(), "s")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("no version must be recorded on failure, got %d", len(versions))
	}
}

func TestAddFromLinkFollowsActivationRule(t *testing.T) {
	store := repo.NewVersionRepositoryMem()
	o := newOrchestrator(t, &stubGenerator{}, store, time.Millisecond)
	ctx := context.Background()

	linked, err := o.AddFromLink(ctx, "beat-2", "https://images.example.com/ref.jpg")
	if err != nil {
		t.Fatalf("AddFromLink: %v", err)
	}
	if linked.Source != domain.SourceExternalLink || !linked.IsActive {
		t.Fatalf("linked = %+v, want active external_link version", linked)
	}

	uploaded, err := o.AddFromUpload(ctx, "beat-2", "uploads/beat-2/ref.png")
	if err != nil {
		t.Fatalf("AddFromUpload: %v", err)
	}
	if uploaded.Source != domain.SourceUploaded {
		t.Fatalf("source = %s, want uploaded", uploaded.Source)
	}
	if uploaded.IsActive {
		t.Fatalf("second version must not displace the active one")
	}

	if _, err := o.AddFromLink(ctx, "beat-2", "  "); err == nil {
		t.Fatalf("blank uri must be rejected")
	}
}

func TestGenerateBatchPacesAndContinuesOnError(t *testing.T) {
	store := repo.NewVersionRepositoryMem()
	gen := &stubGenerator{results: map[string]string{
		"beat-1:moodboard_image": "a.png",
		"beat-2:moodboard_image": "b.png",
		"beat-3:moodboard_image": "c.png",
	}}
	o := newOrchestrator(t, gen, store, 20*time.Millisecond)

	items := []BatchItem{
		{SlotID: "beat-1", Type: domain.JobTypeMoodboardImage, OwnerID: "u1"},
		{SlotID: "beat-2", Type: domain.JobTypeMoodboardImage, OwnerID: "u1"},
		{SlotID: "beat-3", Type: domain.JobTypeMoodboardImage, OwnerID: "u1"},
	}
	results := o.GenerateBatch(context.Background(), items)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("batch item %s failed: %v", res.SlotID, res.Err)
		}
	}
	gen.mu.Lock()
	defer gen.mu.Unlock()
	for i := 1; i < len(gen.times); i++ {
		if gap := gen.times[i].Sub(gen.times[i-1]); gap < 20*time.Millisecond {
			t.Fatalf("submissions %d and %d only %v apart, want pacing gap", i-1, i, gap)
		}
	}
}

func TestGenerateBatchRecordsItemFailure(t *testing.T) {
	store := repo.NewVersionRepositoryMem()
	gen := &stubGenerator{err: errors.New("quota exhausted")}
	o := newOrchestrator(t, gen, store, time.Millisecond)

	results := o.GenerateBatch(context.Background(), []BatchItem{
		{SlotID: "beat-1", Type: domain.JobTypeMoodboardImage, OwnerID: "u1"},
		{SlotID: "beat-2", Type: domain.JobTypeMoodboardImage, OwnerID: "u1"},
	})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, res := range results {
		if res.Err == nil {
			t.Fatalf("item %s should have failed", res.SlotID)
		}
	}
}
