package domain

import "time"

// JobType identifies the kind of creative generation being requested.
type JobType string

const (
	JobTypeCharacterImage JobType = "character_image"
	JobTypeMoodboardImage JobType = "moodboard_image"
	JobTypeUniverseImage  JobType = "universe_image"
	JobTypeSceneImage     JobType = "scene_image"
	JobTypeSceneClip      JobType = "scene_clip"
	JobTypeAnimationClip  JobType = "animation_clip"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final. Terminal jobs are never
// resurrected.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GenerationJob tracks one backend generation request from submission to a
// terminal state. Position and Total only carry meaning while the job is
// queued or processing; a position of zero means "currently executing".
type GenerationJob struct {
	ID           string
	Type         JobType
	OwnerID      string
	Status       JobStatus
	Position     int
	Total        int
	Result       string
	ErrorMessage string
	SubmittedAt  time.Time
}

// QueueSnapshot is the most recent queue progress observed for an in-flight
// generation flow. Snapshots are derived state: they exist only while the
// flow is running and disappear once the job reaches a terminal state.
type QueueSnapshot struct {
	Key      string `json:"key"`
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
	Total    int    `json:"total"`
}
