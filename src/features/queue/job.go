package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType enumerates the closed set of analysis job types.
type JobType string

const (
	JobTypeSong       JobType = "song_analysis"
	JobTypePlaylist   JobType = "playlist_analysis"
	JobTypeBackground JobType = "background_analysis"
)

// ParseJobType validates a wire value.
func ParseJobType(s string) (JobType, error) {
	switch JobType(s) {
	case JobTypeSong, JobTypePlaylist, JobTypeBackground:
		return JobType(s), nil
	}
	return "", fmt.Errorf("unknown job type: %q", s)
}

// JobPriority is the priority class; lower integer = higher priority.
type JobPriority int

const (
	PriorityHigh   JobPriority = 1
	PriorityMedium JobPriority = 2
	PriorityLow    JobPriority = 3
)

// String returns the priority class name.
func (p JobPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// JobStatus enumerates the job lifecycle states.
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusInProgress  JobStatus = "in_progress"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusInterrupted JobStatus = "interrupted"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Metadata is the free-form per-job mapping. Recognized keys are accessed
// through the typed helpers below; unrecognized keys pass through untouched.
type Metadata map[string]any

// Metadata keys recognized per job type.
const (
	metaUnanalyzedOnly = "unanalyzed_only"
	metaSongIDs        = "song_ids"
	metaNotBefore      = "not_before"
	metaRetryOf        = "retry_of"
	metaRetryReason    = "retry_reason"
)

// UnanalyzedOnly reads the playlist-analysis filter flag.
func (m Metadata) UnanalyzedOnly() bool {
	v, _ := m[metaUnanalyzedOnly].(bool)
	return v
}

// SongIDs reads the background-analysis song id list. JSON round-trips land
// numbers as float64; both forms are accepted.
func (m Metadata) SongIDs() []int64 {
	raw, ok := m[metaSongIDs].([]any)
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			ids = append(ids, int64(n))
		case int64:
			ids = append(ids, n)
		case int:
			ids = append(ids, int64(n))
		}
	}
	return ids
}

// NotBefore reads the earliest-dequeue timestamp set by delayed re-enqueues.
func (m Metadata) NotBefore() (time.Time, bool) {
	raw, ok := m[metaNotBefore].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SongMeta builds the metadata for a song_analysis job.
func SongMeta() Metadata { return Metadata{} }

// PlaylistMeta builds the metadata for a playlist_analysis job.
func PlaylistMeta(unanalyzedOnly bool) Metadata {
	return Metadata{metaUnanalyzedOnly: unanalyzedOnly}
}

// BackgroundMeta builds the metadata for a background_analysis job.
func BackgroundMeta(songIDs []int64) Metadata {
	ids := make([]any, len(songIDs))
	for i, id := range songIDs {
		ids[i] = id
	}
	return Metadata{metaSongIDs: ids}
}

// RetryMeta annotates a quality-gate re-enqueue with its origin and reason.
func RetryMeta(base Metadata, originalJobID, reason string) Metadata {
	m := Metadata{}
	for k, v := range base {
		m[k] = v
	}
	m[metaRetryOf] = originalJobID
	m[metaRetryReason] = reason
	return m
}

// Job is one unit of scheduled analysis work.
type Job struct {
	ID           string      `json:"job_id"`
	Type         JobType     `json:"job_type"`
	Priority     JobPriority `json:"priority"`
	UserID       int64       `json:"user_id"`
	TargetID     int64       `json:"target_id"`
	Status       JobStatus   `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at"`
	ErrorMessage *string     `json:"error_message"`
	Metadata     Metadata    `json:"metadata"`
}

// Marshal serializes the job for the Redis record store.
func (j *Job) Marshal() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", j.ID, err)
	}
	return string(data), nil
}

// UnmarshalJob parses a job record from its Redis representation.
func UnmarshalJob(data string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
	}
	if job.Metadata == nil {
		job.Metadata = Metadata{}
	}
	return &job, nil
}
