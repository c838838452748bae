package playlist

import (
	"errors"
	"fmt"
	"sync"

	"cadenza/internal/database"
	"cadenza/internal/smartlist"
	"cadenza/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Built-in smart playlist names. The Favorites list is special: adding a
// track to it maps to setting the track's favorite flag.
const (
	FavoritesName      = "Favorites"
	MostPlayedName     = "Most Played"
	RecentlyPlayedName = "Recently Played"
)

// ErrSmartPlaylist is returned when a caller tries to edit a smart
// playlist's membership directly. Smart lists are derived, never curated.
var ErrSmartPlaylist = errors.New("smart playlist membership is derived and cannot be edited")

// FavoriteSetter is the side-effect hook for the Favorites mapping.
type FavoriteSetter interface {
	SetFavorite(id int, favorite bool)
}

// Manager owns all playlists: regular lists persisted track-by-track, and
// smart lists materialized from their criteria against the catalog.
type Manager struct {
	db      *database.Database
	builder *smartlist.Builder
	faves   FavoriteSetter
	logger  *logrus.Logger

	mu        sync.RWMutex
	playlists map[int]models.Playlist
	criteria  map[int]smartlist.Criteria
	smart     map[int][]models.Track // materialized smart playlist contents
}

// NewManager creates a playlist manager.
func NewManager(db *database.Database, builder *smartlist.Builder, faves FavoriteSetter, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		db:        db,
		builder:   builder,
		faves:     faves,
		logger:    logger,
		playlists: make(map[int]models.Playlist),
		criteria:  make(map[int]smartlist.Criteria),
		smart:     make(map[int][]models.Track),
	}
}

// LoadAll reads every playlist from the database, seeding the built-in smart
// playlists on first run, and materializes all smart lists.
func (m *Manager) LoadAll() error {
	playlists, err := m.db.GetAllPlaylists()
	if err != nil {
		return fmt.Errorf("failed to load playlists: %w", err)
	}

	if err := m.seedBuiltins(playlists); err != nil {
		return err
	}

	playlists, err = m.db.GetAllPlaylists()
	if err != nil {
		return fmt.Errorf("failed to reload playlists: %w", err)
	}

	m.mu.Lock()
	m.playlists = make(map[int]models.Playlist, len(playlists))
	m.criteria = make(map[int]smartlist.Criteria)
	for _, playlist := range playlists {
		m.playlists[playlist.ID] = playlist
		if playlist.IsSmart() {
			criteria, err := smartlist.DecodeCriteria(playlist.Criteria)
			if err != nil {
				m.logger.WithError(err).WithField("playlist", playlist.Name).Warn("Ignoring smart playlist with invalid criteria")
				continue
			}
			m.criteria[playlist.ID] = criteria
		}
	}
	m.mu.Unlock()

	m.RefreshAll()
	return nil
}

// seedBuiltins creates the built-in smart playlists if they are missing.
func (m *Manager) seedBuiltins(existing []models.Playlist) error {
	have := make(map[string]bool, len(existing))
	for _, playlist := range existing {
		if playlist.IsSmart() {
			have[playlist.Name] = true
		}
	}

	builtins := []struct {
		name     string
		criteria smartlist.Criteria
	}{
		{FavoritesName, smartlist.FavoritesCriteria()},
		{MostPlayedName, smartlist.MostPlayedCriteria()},
		{RecentlyPlayedName, smartlist.RecentlyPlayedCriteria()},
	}

	for _, builtin := range builtins {
		if have[builtin.name] {
			continue
		}
		encoded, err := builtin.criteria.Encode()
		if err != nil {
			return err
		}
		if _, err := m.db.CreatePlaylist(uuid.New().String(), builtin.name, models.PlaylistSmart, encoded); err != nil {
			return fmt.Errorf("failed to seed %s playlist: %w", builtin.name, err)
		}
		m.logger.WithField("playlist", builtin.name).Info("Created built-in smart playlist")
	}
	return nil
}

// Create creates a regular (user-curated) playlist.
func (m *Manager) Create(name string) (models.Playlist, error) {
	publicID := uuid.New().String()
	id, err := m.db.CreatePlaylist(publicID, name, models.PlaylistRegular, "")
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to create playlist: %w", err)
	}

	playlist := models.Playlist{ID: id, PublicID: publicID, Name: name, Kind: models.PlaylistRegular}
	m.mu.Lock()
	m.playlists[id] = playlist
	m.mu.Unlock()
	return playlist, nil
}

// CreateSmart creates a smart playlist from validated criteria.
func (m *Manager) CreateSmart(name string, criteria smartlist.Criteria) (models.Playlist, error) {
	if err := criteria.Validate(); err != nil {
		return models.Playlist{}, err
	}
	encoded, err := criteria.Encode()
	if err != nil {
		return models.Playlist{}, err
	}

	publicID := uuid.New().String()
	id, err := m.db.CreatePlaylist(publicID, name, models.PlaylistSmart, encoded)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to create smart playlist: %w", err)
	}

	playlist := models.Playlist{ID: id, PublicID: publicID, Name: name, Kind: models.PlaylistSmart, Criteria: encoded}
	m.mu.Lock()
	m.playlists[id] = playlist
	m.criteria[id] = criteria
	m.smart[id] = m.builder.Materialize(criteria)
	m.mu.Unlock()
	return playlist, nil
}

// Delete removes a playlist.
func (m *Manager) Delete(id int) error {
	if err := m.db.DeletePlaylist(id); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	m.mu.Lock()
	delete(m.playlists, id)
	delete(m.criteria, id)
	delete(m.smart, id)
	m.mu.Unlock()
	return nil
}

// All returns every playlist.
func (m *Manager) All() []models.Playlist {
	m.mu.RLock()
	defer m.mu.RUnlock()

	playlists := make([]models.Playlist, 0, len(m.playlists))
	for _, playlist := range m.playlists {
		playlist.TrackCount = m.trackCountLocked(playlist)
		playlists = append(playlists, playlist)
	}
	return playlists
}

// Get returns a playlist by ID.
func (m *Manager) Get(id int) (models.Playlist, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	playlist, ok := m.playlists[id]
	if ok {
		playlist.TrackCount = m.trackCountLocked(playlist)
	}
	return playlist, ok
}

// GetByPublicID returns a playlist by its stable public identifier.
func (m *Manager) GetByPublicID(publicID string) (models.Playlist, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, playlist := range m.playlists {
		if playlist.PublicID == publicID {
			playlist.TrackCount = m.trackCountLocked(playlist)
			return playlist, true
		}
	}
	return models.Playlist{}, false
}

// Tracks returns a playlist's materialized track list: persisted membership
// for regular lists, derived contents for smart lists.
func (m *Manager) Tracks(id int) ([]models.Track, error) {
	m.mu.RLock()
	playlist, ok := m.playlists[id]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("playlist %d not found", id)
	}
	if playlist.IsSmart() {
		tracks := append([]models.Track(nil), m.smart[id]...)
		m.mu.RUnlock()
		return tracks, nil
	}
	m.mu.RUnlock()

	return m.db.GetPlaylistTracks(id)
}

// AddTrack adds a track to a regular playlist. For the built-in Favorites
// list the call maps to setting the track's favorite flag; for any other
// smart playlist it is rejected.
func (m *Manager) AddTrack(playlistID, trackID int) error {
	m.mu.RLock()
	playlist, ok := m.playlists[playlistID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("playlist %d not found", playlistID)
	}

	if playlist.IsSmart() {
		if playlist.Name == FavoritesName && m.faves != nil {
			m.faves.SetFavorite(trackID, true)
			return nil
		}
		return ErrSmartPlaylist
	}

	if err := m.db.AddTrackToPlaylist(playlistID, trackID); err != nil {
		return err
	}
	m.refreshCount(playlistID)
	return nil
}

// RemoveTrack removes a track from a regular playlist, with the same
// Favorites mapping as AddTrack (removal clears the favorite flag).
func (m *Manager) RemoveTrack(playlistID, trackID int) error {
	m.mu.RLock()
	playlist, ok := m.playlists[playlistID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("playlist %d not found", playlistID)
	}

	if playlist.IsSmart() {
		if playlist.Name == FavoritesName && m.faves != nil {
			m.faves.SetFavorite(trackID, false)
			return nil
		}
		return ErrSmartPlaylist
	}

	if err := m.db.RemoveTrackFromPlaylist(playlistID, trackID); err != nil {
		return err
	}
	m.refreshCount(playlistID)
	return nil
}

// Reorder persists a regular playlist's new track order.
func (m *Manager) Reorder(playlistID int, trackIDs []int) error {
	m.mu.RLock()
	playlist, ok := m.playlists[playlistID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("playlist %d not found", playlistID)
	}
	if playlist.IsSmart() {
		return ErrSmartPlaylist
	}
	if err := m.db.SetPlaylistTracks(playlistID, trackIDs); err != nil {
		return err
	}
	m.refreshCount(playlistID)
	return nil
}

// RefreshAll rebuilds every smart playlist from the catalog. Triggered by
// library load completion and manual refresh.
func (m *Manager) RefreshAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, criteria := range m.criteria {
		m.smart[id] = m.builder.Materialize(criteria)
	}
}

// HandleTrackChange incrementally updates smart playlist membership for one
// changed track: only lists whose membership or ordering could be affected
// are touched, avoiding a full rebuild per play.
func (m *Manager) HandleTrackChange(track models.Track, removed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, criteria := range m.criteria {
		tracks := m.smart[id]
		at := -1
		for i, existing := range tracks {
			if existing.ID == track.ID {
				at = i
				break
			}
		}

		belongs := !removed && m.builder.Contains(criteria, track)

		switch {
		case belongs && at < 0:
			// Newly matching: a limit may displace a different entry, so
			// rebuild this one list.
			m.smart[id] = m.builder.Materialize(criteria)
		case belongs && at >= 0:
			// Still a member: refresh the copy and restore sort order.
			tracks[at] = track
			criteria.Sort(tracks)
			m.smart[id] = tracks
		case !belongs && at >= 0:
			if criteria.Limit > 0 {
				// Dropping below a limit may pull in a replacement.
				m.smart[id] = m.builder.Materialize(criteria)
			} else {
				m.smart[id] = append(tracks[:at], tracks[at+1:]...)
			}
		}
	}
}

// refreshCount re-reads a regular playlist's track count from the database
// after a membership change, so Get and All stay accurate without a restart.
func (m *Manager) refreshCount(playlistID int) {
	tracks, err := m.db.GetPlaylistTracks(playlistID)
	if err != nil {
		m.logger.WithError(err).WithField("playlist_id", playlistID).Warn("Failed to refresh playlist track count")
		return
	}

	m.mu.Lock()
	if playlist, ok := m.playlists[playlistID]; ok {
		playlist.TrackCount = len(tracks)
		m.playlists[playlistID] = playlist
	}
	m.mu.Unlock()
}

// trackCountLocked derives a playlist's track count. Caller holds the lock.
func (m *Manager) trackCountLocked(playlist models.Playlist) int {
	if playlist.IsSmart() {
		return len(m.smart[playlist.ID])
	}
	return playlist.TrackCount
}
