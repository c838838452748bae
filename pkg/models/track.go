package models

import "time"

// Track represents a music track in the library. The library store holds the
// authoritative copy keyed by ID; queues and playlists reference tracks by ID
// and resolve through the store.
type Track struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album"`
	Genre       string    `json:"genre,omitempty"`
	Year        int       `json:"year,omitempty"`
	TrackNumber int       `json:"trackNumber"`
	Duration    int       `json:"duration"` // in seconds
	FilePath    string    `json:"-"`        // don't expose file path to client
	FileSize    int64     `json:"fileSize"`
	PlayCount   int       `json:"playCount"`
	LastPlayed  time.Time `json:"lastPlayed,omitempty"` // zero value = never played
	DateAdded   time.Time `json:"dateAdded"`
	Favorite    bool      `json:"favorite"`
}

// Folder is a watched music directory.
type Folder struct {
	ID      int       `json:"id"`
	Path    string    `json:"path"`
	AddedAt time.Time `json:"addedAt"`
}

// PlaylistKind distinguishes user-curated playlists from rule-driven ones.
type PlaylistKind string

const (
	PlaylistRegular PlaylistKind = "regular"
	PlaylistSmart   PlaylistKind = "smart"
)

// Playlist represents a playlist. Smart playlists carry encoded criteria and
// their track lists are derived, never edited directly.
type Playlist struct {
	ID         int          `json:"id"`
	PublicID   string       `json:"publicId"`
	Name       string       `json:"name"`
	Kind       PlaylistKind `json:"kind"`
	Criteria   string       `json:"criteria,omitempty"` // JSON-encoded smartlist.Criteria
	CreatedAt  time.Time    `json:"createdAt"`
	TrackCount int          `json:"trackCount"`
}

// IsSmart reports whether the playlist's membership is rule-driven.
func (p Playlist) IsSmart() bool {
	return p.Kind == PlaylistSmart
}

// PlaylistTrack represents the relationship between playlists and tracks
type PlaylistTrack struct {
	PlaylistID int `json:"playlistId"`
	TrackID    int `json:"trackId"`
	Position   int `json:"position"`
}

// QueueSource identifies the context a queue was built from.
type QueueSource string

const (
	SourceNone     QueueSource = ""
	SourceLibrary  QueueSource = "library"
	SourceFolder   QueueSource = "folder"
	SourcePlaylist QueueSource = "playlist"
)

// RepeatMode controls queue advance/retreat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}
