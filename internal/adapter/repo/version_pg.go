package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// VersionRepositoryPG implements domain.VersionRepository on PostgreSQL.
// Mutations that touch a slot's active pointer or numbering run inside a
// transaction holding a per-slot advisory lock, so interleaved calls from
// concurrent clients cannot break the single-active invariant.
type VersionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVersionRepository creates a version repository backed by PostgreSQL.
func NewVersionRepository(pool *pgxpool.Pool) *VersionRepositoryPG {
	return &VersionRepositoryPG{pool: pool}
}

const versionColumns = `id, slot_id, version_number, source, uri, thumbnail_uri, prompt_text, motion_params, is_active, created_at, deleted_at`

// Migrate ensures the artifact_versions table exists.
func (r *VersionRepositoryPG) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS artifact_versions (
    id             UUID PRIMARY KEY,
    slot_id        TEXT NOT NULL,
    version_number INTEGER NOT NULL,
    source         TEXT NOT NULL,
    uri            TEXT NOT NULL,
    thumbnail_uri  TEXT NOT NULL DEFAULT '',
    prompt_text    TEXT NOT NULL DEFAULT '',
    motion_params  TEXT NOT NULL DEFAULT '',
    is_active      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at     TIMESTAMPTZ,
    UNIQUE (slot_id, version_number)
);
CREATE INDEX IF NOT EXISTS idx_artifact_versions_slot ON artifact_versions (slot_id, version_number);
`)
	return err
}

func lockSlot(ctx context.Context, tx pgx.Tx, slotID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, slotID)
	return err
}

// Create inserts the next version for the slot. Numbering includes deleted
// rows, so numbers are never reused.
func (r *VersionRepositoryPG) Create(ctx context.Context, slotID string, source domain.ArtifactSource, uri string, meta domain.VersionMeta) (*domain.ArtifactVersion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := lockSlot(ctx, tx, slotID); err != nil {
		return nil, err
	}

	var next int
	if err := tx.QueryRow(ctx, `
SELECT COALESCE(MAX(version_number), 0) + 1
FROM artifact_versions
WHERE slot_id = $1;
`, slotID).Scan(&next); err != nil {
		return nil, err
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
	if _, err := tx.Exec(ctx, `
INSERT INTO artifact_versions (id, slot_id, version_number, source, uri, thumbnail_uri, prompt_text, motion_params, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9);
`,
		version.ID,
		version.SlotID,
		version.VersionNumber,
		version.Source,
		version.URI,
		version.ThumbnailURI,
		version.PromptText,
		version.MotionParams,
		version.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return version, nil
}

// SetActive swaps the slot's active pointer to the given version in one
// transaction. Already-active versions are a no-op success; deleted or
// unknown versions report ErrNotFound.
func (r *VersionRepositoryPG) SetActive(ctx context.Context, versionID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var slotID string
	var isActive bool
	var deletedAt *time.Time
	if err := tx.QueryRow(ctx, `
SELECT slot_id, is_active, deleted_at
FROM artifact_versions
WHERE id = $1;
`, versionID).Scan(&slotID, &isActive, &deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if deletedAt != nil {
		return domain.ErrNotFound
	}
	if isActive {
		return nil
	}

	if err := lockSlot(ctx, tx, slotID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE artifact_versions
SET is_active = FALSE
WHERE slot_id = $1 AND deleted_at IS NULL AND is_active;
`, slotID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE artifact_versions
SET is_active = TRUE
WHERE id = $1;
`, versionID); err != nil {
		return err
	}

	var actives int
	if err := tx.QueryRow(ctx, `
SELECT COUNT(*)
FROM artifact_versions
WHERE slot_id = $1 AND deleted_at IS NULL AND is_active;
`, slotID).Scan(&actives); err != nil {
		return err
	}
	if actives != 1 {
		return domain.ErrInvariantViolation
	}
	return tx.Commit(ctx)
}

// SoftDelete marks the version deleted and drops its active flag. The slot
// may be left with no active version. Already-deleted rows are a no-op
// success.
func (r *VersionRepositoryPG) SoftDelete(ctx context.Context, versionID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE artifact_versions
SET deleted_at = NOW(), is_active = FALSE
WHERE id = $1 AND deleted_at IS NULL;
`, versionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.requireExists(ctx, versionID)
	}
	return nil
}

// Restore clears the deletion marker; the version stays inactive. Live rows
// are a no-op success.
func (r *VersionRepositoryPG) Restore(ctx context.Context, versionID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE artifact_versions
SET deleted_at = NULL
WHERE id = $1 AND deleted_at IS NOT NULL;
`, versionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.requireExists(ctx, versionID)
	}
	return nil
}

func (r *VersionRepositoryPG) requireExists(ctx context.Context, versionID string) error {
	var one int
	if err := r.pool.QueryRow(ctx, `
SELECT 1 FROM artifact_versions WHERE id = $1;
`, versionID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

// GetByID fetches one version regardless of deletion state.
func (r *VersionRepositoryPG) GetByID(ctx context.Context, versionID string) (*domain.ArtifactVersion, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+versionColumns+`
FROM artifact_versions
WHERE id = $1;
`, versionID)
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return version, nil
}

// GetActive fetches the slot's active version, (nil, nil) when there is
// none.
func (r *VersionRepositoryPG) GetActive(ctx context.Context, slotID string) (*domain.ArtifactVersion, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+versionColumns+`
FROM artifact_versions
WHERE slot_id = $1 AND deleted_at IS NULL AND is_active;
`, slotID)
	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return version, nil
}

// ListActive returns the slot's live versions ordered by version number.
func (r *VersionRepositoryPG) ListActive(ctx context.Context, slotID string) ([]domain.ArtifactVersion, error) {
	return r.list(ctx, slotID, `deleted_at IS NULL`)
}

// ListDeleted returns the slot's soft-deleted versions ordered by version
// number.
func (r *VersionRepositoryPG) ListDeleted(ctx context.Context, slotID string) ([]domain.ArtifactVersion, error) {
	return r.list(ctx, slotID, `deleted_at IS NOT NULL`)
}

func (r *VersionRepositoryPG) list(ctx context.Context, slotID, filter string) ([]domain.ArtifactVersion, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+versionColumns+`
FROM artifact_versions
WHERE slot_id = $1 AND `+filter+`
ORDER BY version_number ASC;
`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []domain.ArtifactVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *version)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return versions, nil
}

func scanVersion(row pgx.Row) (*domain.ArtifactVersion, error) {
	var v domain.ArtifactVersion
	if err := row.Scan(
		&v.ID,
		&v.SlotID,
		&v.VersionNumber,
		&v.Source,
		&v.URI,
		&v.ThumbnailURI,
		&v.PromptText,
		&v.MotionParams,
		&v.IsActive,
		&v.CreatedAt,
		&v.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

var _ domain.VersionRepository = (*VersionRepositoryPG)(nil)
