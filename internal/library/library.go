package library

import (
	"fmt"
	"os"
	"sync"
	"time"

	"cadenza/internal/config"
	"cadenza/internal/database"
	"cadenza/internal/metadata"
	"cadenza/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// EventType identifies a library change event.
type EventType int

const (
	TrackAdded EventType = iota
	TrackUpdated
	TrackRemoved
	LoadComplete
)

// Event describes a library change delivered to subscribers. Track is the
// affected track (zero value for LoadComplete).
type Event struct {
	Type  EventType
	Track models.Track
}

// Library is the authoritative in-memory track store. All other structures
// (queues, playlists) hold track IDs and resolve them here, so play-count and
// favorite mutations are visible everywhere immediately. Mutations apply
// optimistically in memory; the database write is dispatched asynchronously
// and the in-memory change is reverted if it fails.
type Library struct {
	db        *database.Database
	extractor *metadata.Extractor
	cfg       *config.LibraryConfig
	logger    *logrus.Logger

	mu      sync.RWMutex
	tracks  map[int]models.Track
	byPath  map[string]int
	folders []models.Folder
	loaded  bool

	watcher   *fsnotify.Watcher
	listeners []chan Event
	listenMu  sync.Mutex
}

// New creates a library over the given database and extractor.
func New(db *database.Database, extractor *metadata.Extractor, cfg *config.LibraryConfig, logger *logrus.Logger) *Library {
	if logger == nil {
		logger = logrus.New()
	}
	return &Library{
		db:        db,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
		tracks:    make(map[int]models.Track),
		byPath:    make(map[string]int),
	}
}

// Load populates the in-memory store from the database, registering any
// configured folders that are not yet persisted, and emits LoadComplete.
// Session restore is deferred until this event fires, since matching saved
// queue entries by ID or path requires a populated catalog.
func (l *Library) Load() error {
	for _, path := range l.cfg.Folders {
		if _, err := l.db.AddFolder(path); err != nil {
			return fmt.Errorf("failed to register folder %s: %w", path, err)
		}
	}

	folders, err := l.db.GetFolders()
	if err != nil {
		return fmt.Errorf("failed to load folders: %w", err)
	}

	tracks, err := l.db.GetAllTracks()
	if err != nil {
		return fmt.Errorf("failed to load tracks: %w", err)
	}

	l.mu.Lock()
	l.folders = folders
	l.tracks = make(map[int]models.Track, len(tracks))
	l.byPath = make(map[string]int, len(tracks))
	for _, track := range tracks {
		l.tracks[track.ID] = track
		l.byPath[track.FilePath] = track.ID
	}
	l.loaded = true
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"tracks":  len(tracks),
		"folders": len(folders),
	}).Info("Library loaded")

	l.notify(Event{Type: LoadComplete})
	return nil
}

// Loaded reports whether the initial load has completed.
func (l *Library) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// AllTracks returns a copy of every track in browse order.
func (l *Library) AllTracks() []models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tracks := make([]models.Track, 0, len(l.tracks))
	for _, track := range l.tracks {
		tracks = append(tracks, track)
	}
	sortTracks(tracks)
	return tracks
}

// TracksInFolder returns the tracks whose files live under the folder path.
func (l *Library) TracksInFolder(folderPath string) []models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var tracks []models.Track
	for _, track := range l.tracks {
		if hasPathPrefix(track.FilePath, folderPath) {
			tracks = append(tracks, track)
		}
	}
	sortTracks(tracks)
	return tracks
}

// TrackByID resolves a track by its stable identifier.
func (l *Library) TrackByID(id int) (models.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	track, ok := l.tracks[id]
	return track, ok
}

// TrackByPath resolves a track by its file path.
func (l *Library) TrackByPath(path string) (models.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.byPath[path]
	if !ok {
		return models.Track{}, false
	}
	return l.tracks[id], true
}

// Folders returns the watched folders.
func (l *Library) Folders() []models.Folder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	folders := make([]models.Folder, len(l.folders))
	copy(folders, l.folders)
	return folders
}

// FolderByPath resolves a watched folder by path.
func (l *Library) FolderByPath(path string) (models.Folder, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, folder := range l.folders {
		if folder.Path == path {
			return folder, true
		}
	}
	return models.Folder{}, false
}

// FolderAccessible reports whether a watched folder can currently be opened
// and read. Session restore requires at least one accessible folder.
func (l *Library) FolderAccessible(path string) bool {
	return folderAccessible(path)
}

func folderAccessible(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// MarkPlayed increments a track's play count and stamps its last-played
// time. The change is applied in memory first and reverted if the database
// write fails.
func (l *Library) MarkPlayed(id int) {
	l.mu.Lock()
	track, ok := l.tracks[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	prev := track
	track.PlayCount++
	track.LastPlayed = time.Now()
	l.tracks[id] = track
	l.mu.Unlock()

	l.notify(Event{Type: TrackUpdated, Track: track})

	go func() {
		if err := l.db.UpdatePlayState(id, track.PlayCount, track.LastPlayed); err != nil {
			l.logger.WithError(err).WithField("track_id", id).Error("Failed to persist play state, reverting")
			l.revert(id, prev)
		}
	}()
}

// SetFavorite updates a track's favorite flag with the same optimistic
// apply-then-revert contract as MarkPlayed.
func (l *Library) SetFavorite(id int, favorite bool) {
	l.mu.Lock()
	track, ok := l.tracks[id]
	if !ok || track.Favorite == favorite {
		l.mu.Unlock()
		return
	}
	prev := track
	track.Favorite = favorite
	l.tracks[id] = track
	l.mu.Unlock()

	l.notify(Event{Type: TrackUpdated, Track: track})

	go func() {
		if err := l.db.SetFavorite(id, favorite); err != nil {
			l.logger.WithError(err).WithField("track_id", id).Error("Failed to persist favorite flag, reverting")
			l.revert(id, prev)
		}
	}()
}

// revert restores a track's previous in-memory state after a failed write.
func (l *Library) revert(id int, prev models.Track) {
	l.mu.Lock()
	if _, ok := l.tracks[id]; ok {
		l.tracks[id] = prev
	}
	l.mu.Unlock()
	l.notify(Event{Type: TrackUpdated, Track: prev})
}

// Subscribe adds a listener for library change events.
func (l *Library) Subscribe() <-chan Event {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()

	ch := make(chan Event, 64) // Buffered channel to prevent blocking
	l.listeners = append(l.listeners, ch)
	return ch
}

// Unsubscribe removes a listener (call this when done to prevent memory leaks)
func (l *Library) Unsubscribe(ch <-chan Event) {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()

	for i, listener := range l.listeners {
		if listener == ch {
			close(listener)
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			break
		}
	}
}

// notify sends an event to all subscribers. A subscriber whose buffer is
// full misses this one event but keeps its subscription; the loss is logged
// because a dropped track event can leave a smart playlist stale until the
// next full refresh.
func (l *Library) notify(event Event) {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()

	for _, listener := range l.listeners {
		select {
		case listener <- event:
		default:
			l.logger.WithFields(logrus.Fields{
				"event":    event.Type,
				"track_id": event.Track.ID,
			}).Error("Dropping library event, subscriber is not keeping up")
		}
	}
}

// addTrack inserts or refreshes a track in both stores and emits an event.
func (l *Library) addTrack(track models.Track) {
	l.mu.Lock()
	_, existed := l.byPath[track.FilePath]
	l.tracks[track.ID] = track
	l.byPath[track.FilePath] = track.ID
	l.mu.Unlock()

	if existed {
		l.notify(Event{Type: TrackUpdated, Track: track})
	} else {
		l.notify(Event{Type: TrackAdded, Track: track})
	}
}

// removeTrackByPath drops a track from both stores and emits an event.
func (l *Library) removeTrackByPath(path string) {
	l.mu.Lock()
	id, ok := l.byPath[path]
	if !ok {
		l.mu.Unlock()
		return
	}
	track := l.tracks[id]
	delete(l.tracks, id)
	delete(l.byPath, path)
	l.mu.Unlock()

	l.notify(Event{Type: TrackRemoved, Track: track})
}

// Close stops the watcher and closes all subscriber channels.
func (l *Library) Close() {
	l.stopWatcher()

	l.listenMu.Lock()
	for _, listener := range l.listeners {
		close(listener)
	}
	l.listeners = nil
	l.listenMu.Unlock()
}
