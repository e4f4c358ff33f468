package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
)

// VersionRepositoryMem keeps version history in process memory. It is the
// reference implementation of the store invariants; it backs tests and
// standalone runs without a database.
type VersionRepositoryMem struct {
	mu     sync.Mutex
	bySlot map[string][]*domain.ArtifactVersion
	byID   map[string]*domain.ArtifactVersion
}

// NewVersionRepositoryMem creates an empty in-memory version store.
func NewVersionRepositoryMem() *VersionRepositoryMem {
	return &VersionRepositoryMem{
		bySlot: make(map[string][]*domain.ArtifactVersion),
		byID:   make(map[string]*domain.ArtifactVersion),
	}
}

// Create appends a new version to the slot's history. The version number is
// one past the highest ever assigned for the slot, deleted versions
// included, so numbers are never reused. The new version is not activated.
func (r *VersionRepositoryMem) Create(ctx context.Context, slotID string, source domain.ArtifactSource, uri string, meta domain.VersionMeta) (*domain.ArtifactVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := 1
	for _, v := range r.bySlot[slotID] {
		if v.VersionNumber >= next {
			next = v.VersionNumber + 1
		}
	}
	version := &domain.ArtifactVersion{
		ID:            uuid.NewString(),
		SlotID:        slotID,
		VersionNumber: next,
		Source:        source,
		URI:           uri,
		ThumbnailURI:  meta.ThumbnailURI,
		PromptText:    meta.PromptText,
		MotionParams:  meta.MotionParams,
		CreatedAt:     time.Now().UTC(),
	}
	r.bySlot[slotID] = append(r.bySlot[slotID], version)
	r.byID[version.ID] = version
	out := *version
	return &out, nil
}

// SetActive makes the version the slot's single active one. Activating the
// already-active version is a no-op success. Deleted versions cannot be
// activated and report ErrNotFound.
func (r *VersionRepositoryMem) SetActive(ctx context.Context, versionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.byID[versionID]
	if !ok || target.Deleted() {
		return domain.ErrNotFound
	}
	if target.IsActive {
		return nil
	}
	for _, v := range r.bySlot[target.SlotID] {
		if v.IsActive && !v.Deleted() {
			v.IsActive = false
		}
	}
	target.IsActive = true
	return nil
}

// SoftDelete marks the version deleted. Deleting the active version leaves
// the slot with no active version; nothing is promoted in its place.
// Deleting an already-deleted version is a no-op success.
func (r *VersionRepositoryMem) SoftDelete(ctx context.Context, versionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.byID[versionID]
	if !ok {
		return domain.ErrNotFound
	}
	if target.Deleted() {
		return nil
	}
	now := time.Now().UTC()
	target.DeletedAt = &now
	target.IsActive = false
	return nil
}

// Restore clears the deletion marker. The version comes back inactive;
// activation is always a separate explicit call. Restoring a live version
// is a no-op success.
func (r *VersionRepositoryMem) Restore(ctx context.Context, versionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.byID[versionID]
	if !ok {
		return domain.ErrNotFound
	}
	if !target.Deleted() {
		return nil
	}
	target.DeletedAt = nil
	return nil
}

// GetByID returns the version regardless of deletion state.
func (r *VersionRepositoryMem) GetByID(ctx context.Context, versionID string) (*domain.ArtifactVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byID[versionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *v
	return &out, nil
}

// GetActive returns the slot's active version, or (nil, nil) when the slot
// has none.
func (r *VersionRepositoryMem) GetActive(ctx context.Context, slotID string) (*domain.ArtifactVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var active *domain.ArtifactVersion
	for _, v := range r.bySlot[slotID] {
		if v.Deleted() || !v.IsActive {
			continue
		}
		if active != nil {
			return nil, domain.ErrInvariantViolation
		}
		out := *v
		active = &out
	}
	return active, nil
}

// ListActive returns the slot's live versions ordered by version number.
func (r *VersionRepositoryMem) ListActive(ctx context.Context, slotID string) ([]domain.ArtifactVersion, error) {
	return r.list(ctx, slotID, false)
}

// ListDeleted returns the slot's soft-deleted versions ordered by version
// number.
func (r *VersionRepositoryMem) ListDeleted(ctx context.Context, slotID string) ([]domain.ArtifactVersion, error) {
	return r.list(ctx, slotID, true)
}

func (r *VersionRepositoryMem) list(ctx context.Context, slotID string, deleted bool) ([]domain.ArtifactVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.ArtifactVersion
	for _, v := range r.bySlot[slotID] {
		if v.Deleted() == deleted {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

var _ domain.VersionRepository = (*VersionRepositoryMem)(nil)
