package session

import (
	"os"
	"sync"
	"time"

	"cadenza/internal/config"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// Catalog is the slice of the track library the restore pipeline needs.
type Catalog interface {
	TrackByID(id int) (models.Track, bool)
	TrackByPath(path string) (models.Track, bool)
	Folders() []models.Folder
	FolderAccessible(path string) bool
}

// Restored is a fully validated snapshot, resolved against the current
// library and ready to apply. Playback always resumes paused.
type Restored struct {
	Track    models.Track
	Position float64 // 0 means start from the beginning

	QueueIDs   []int
	QueueIndex int
	Source     models.QueueSource
	SourceID   string

	Volume   float64
	Muted    bool
	Shuffled bool
	Repeat   models.RepeatMode

	QueueVisible bool
}

// Manager validates and applies session snapshots. A snapshot is consumed
// at most once per process: after the first Restore attempt, successful or
// not, later calls return nothing.
type Manager struct {
	store   *Store
	catalog Catalog
	cfg     config.SessionConfig
	logger  *logrus.Logger

	mu       sync.Mutex
	consumed bool
}

// NewManager creates a session manager.
func NewManager(store *Store, catalog Catalog, cfg config.SessionConfig, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
	}
}

// Close flushes pending writes and closes the backing store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Save persists a snapshot. A snapshot with no current track means nothing
// is playing, so any stored session is cleared instead.
func (m *Manager) Save(snapshot Snapshot) error {
	if snapshot.TrackID == 0 {
		m.store.ClearSnapshot()
		return nil
	}

	snapshot.Version = SchemaVersion
	snapshot.SavedAt = time.Now()
	return m.store.SaveSnapshot(snapshot)
}

// SaveUIState persists the lightweight state record.
func (m *Manager) SaveUIState(state UIState) error {
	state.UpdatedAt = time.Now()
	return m.store.SaveUIState(state)
}

// LoadUIState reads the persisted UI state.
func (m *Manager) LoadUIState() (UIState, bool) {
	state, ok, err := m.store.LoadUIState()
	if err != nil {
		m.logger.WithError(err).Warn("Failed to load UI state")
		return UIState{}, false
	}
	return state, ok
}

// Restore loads the stored snapshot and runs it through the validation
// pipeline. Any failed check discards the snapshot entirely: a partially
// restored session is worse than a fresh start. The snapshot is discarded
// either way, so a crash right after restore cannot replay it on the next
// launch; the autosave ticker writes a fresh one soon enough.
func (m *Manager) Restore() (Restored, bool) {
	m.mu.Lock()
	if m.consumed {
		m.mu.Unlock()
		return Restored{}, false
	}
	m.consumed = true
	m.mu.Unlock()

	snapshot, ok, err := m.store.LoadSnapshot()
	if err != nil {
		m.logger.WithError(err).Warn("Failed to load session snapshot")
		return Restored{}, false
	}
	if !ok {
		return Restored{}, false
	}

	restored, ok := m.validate(snapshot)
	m.store.ClearSnapshot()
	if !ok {
		return Restored{}, false
	}
	return restored, true
}

// InvalidateIfTrackRemoved clears an unconsumed snapshot whose current
// track just left the library, so a later restore cannot resurrect it.
func (m *Manager) InvalidateIfTrackRemoved(trackID int) {
	m.mu.Lock()
	consumed := m.consumed
	m.mu.Unlock()
	if consumed {
		return
	}

	snapshot, ok, err := m.store.LoadSnapshot()
	if err != nil || !ok {
		return
	}
	if snapshot.TrackID == trackID {
		m.logger.WithField("track_id", trackID).Info("Discarding session snapshot, its track was removed")
		m.store.ClearSnapshot()
	}
}

func (m *Manager) validate(snapshot Snapshot) (Restored, bool) {
	log := m.logger.WithField("saved_at", snapshot.SavedAt)

	if snapshot.Version != SchemaVersion {
		log.WithField("version", snapshot.Version).Info("Discarding session snapshot with unknown schema version")
		return Restored{}, false
	}

	maxAge := time.Duration(m.cfg.StalenessDays) * 24 * time.Hour
	if time.Since(snapshot.SavedAt) > maxAge {
		log.Info("Discarding stale session snapshot")
		return Restored{}, false
	}

	if !m.anyFolderAccessible() {
		log.Warn("Discarding session snapshot, no library folder is accessible")
		return Restored{}, false
	}

	ids, index, ok := m.rebuildQueue(snapshot)
	if !ok {
		return Restored{}, false
	}

	track, ok := m.catalog.TrackByID(ids[index])
	if !ok {
		return Restored{}, false
	}
	if file, err := os.Open(track.FilePath); err != nil {
		log.WithError(err).Warn("Discarding session snapshot, current track is unreadable")
		return Restored{}, false
	} else {
		file.Close()
	}

	position := snapshot.Position
	if position <= 0 || position >= float64(track.Duration) {
		position = 0
	}

	volume := snapshot.Volume
	if snapshot.Muted {
		volume = 0
	}

	return Restored{
		Track:        track,
		Position:     position,
		QueueIDs:     ids,
		QueueIndex:   index,
		Source:       snapshot.Source,
		SourceID:     snapshot.SourceID,
		Volume:       volume,
		Muted:        snapshot.Muted,
		Shuffled:     snapshot.Shuffled,
		Repeat:       snapshot.Repeat,
		QueueVisible: snapshot.QueueVisible,
	}, true
}

func (m *Manager) anyFolderAccessible() bool {
	for _, folder := range m.catalog.Folders() {
		if m.catalog.FolderAccessible(folder.Path) {
			return true
		}
	}
	return false
}

// rebuildQueue resolves each saved entry against the live library, by ID
// first and by path as the fallback for rescans that reassigned IDs. The
// session survives only when enough of the queue still exists.
func (m *Manager) rebuildQueue(snapshot Snapshot) ([]int, int, bool) {
	if len(snapshot.QueueIDs) == 0 {
		return nil, 0, false
	}

	ids := make([]int, 0, len(snapshot.QueueIDs))
	index := -1
	for i, id := range snapshot.QueueIDs {
		track, ok := m.catalog.TrackByID(id)
		if !ok && i < len(snapshot.QueuePaths) {
			track, ok = m.catalog.TrackByPath(snapshot.QueuePaths[i])
		}
		if !ok {
			continue
		}
		if i == snapshot.QueueIndex {
			index = len(ids)
		}
		ids = append(ids, track.ID)
	}

	ratio := float64(len(ids)) / float64(len(snapshot.QueueIDs))
	if len(ids) == 0 || ratio < m.cfg.MinMatchRatio {
		m.logger.WithFields(logrus.Fields{
			"matched": len(ids),
			"total":   len(snapshot.QueueIDs),
		}).Info("Discarding session snapshot, too few queued tracks survived")
		return nil, 0, false
	}
	if index < 0 {
		return nil, 0, false
	}
	return ids, index, true
}
