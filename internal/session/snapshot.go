package session

import (
	"time"

	"cadenza/pkg/models"
)

// SchemaVersion is bumped whenever the snapshot layout changes in a way an
// older reader could misinterpret. Mismatched snapshots are discarded.
const SchemaVersion = 1

// Snapshot is everything needed to resume playback across a restart.
// Queue entries carry both the database ID and the file path so a rescan
// that reassigns IDs can still recover the queue by path.
type Snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`

	TrackID  int     `json:"trackId"`
	Position float64 `json:"position"`

	QueueIDs   []int    `json:"queueIds"`
	QueuePaths []string `json:"queuePaths"`
	QueueIndex int      `json:"queueIndex"`

	Source   models.QueueSource `json:"source"`
	SourceID string             `json:"sourceId,omitempty"`

	Volume   float64           `json:"volume"`
	Muted    bool              `json:"muted"`
	Shuffled bool              `json:"shuffled"`
	Repeat   models.RepeatMode `json:"repeat"`

	QueueVisible bool `json:"queueVisible"`
}

// UIState is the lightweight record saved on every state change, cheap
// enough to persist far more often than a full snapshot.
type UIState struct {
	QueueVisible bool      `json:"queueVisible"`
	TrackID      int       `json:"trackId,omitempty"`
	Position     float64   `json:"position,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
