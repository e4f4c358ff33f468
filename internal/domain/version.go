package domain

import "time"

// ArtifactSource enumerates how a version came to exist.
type ArtifactSource string

const (
	SourceGenerated    ArtifactSource = "generated"
	SourceUploaded     ArtifactSource = "uploaded"
	SourceExternalLink ArtifactSource = "external_link"
)

// ArtifactVersion is one generated, uploaded or linked output of a slot
// (a character pose, a story beat image, a storyboard scene clip). Version
// numbers are assigned once per slot, strictly increasing from 1, and never
// reused even after a version has been deleted.
type ArtifactVersion struct {
	ID            string         `json:"id"`
	SlotID        string         `json:"slot_id"`
	VersionNumber int            `json:"version_number"`
	Source        ArtifactSource `json:"source"`
	URI           string         `json:"uri"`
	ThumbnailURI  string         `json:"thumbnail_uri,omitempty"`
	PromptText    string         `json:"prompt_text,omitempty"`
	MotionParams  string         `json:"motion_params,omitempty"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// Deleted reports whether the version is soft-deleted.
func (v *ArtifactVersion) Deleted() bool {
	return v.DeletedAt != nil
}

// VersionMeta carries the optional descriptive fields recorded when a
// version is created.
type VersionMeta struct {
	ThumbnailURI string
	PromptText   string
	MotionParams string
}
