package domain

import "context"

// VersionRepository is the single source of truth for a slot's version
// history and active pointer.
//
// Among the non-deleted versions of a slot at most one is active. Create
// never activates; callers decide. SetActive on an already-active version,
// SoftDelete on an already-deleted version and Restore on a live version are
// no-op successes so that flaky clients can retry safely. Restore never
// re-activates. GetActive returns (nil, nil) when the slot has no active
// version, which is a valid state: deleting the active version does not
// promote another one.
type VersionRepository interface {
	Create(ctx context.Context, slotID string, source ArtifactSource, uri string, meta VersionMeta) (*ArtifactVersion, error)
	SetActive(ctx context.Context, versionID string) error
	SoftDelete(ctx context.Context, versionID string) error
	Restore(ctx context.Context, versionID string) error
	GetByID(ctx context.Context, versionID string) (*ArtifactVersion, error)
	GetActive(ctx context.Context, slotID string) (*ArtifactVersion, error)
	ListActive(ctx context.Context, slotID string) ([]ArtifactVersion, error)
	ListDeleted(ctx context.Context, slotID string) ([]ArtifactVersion, error)
}
