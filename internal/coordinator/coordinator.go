package coordinator

import (
	"fmt"
	"sync"
	"time"

	"cadenza/internal/config"
	"cadenza/internal/library"
	"cadenza/internal/playback"
	"cadenza/internal/playlist"
	"cadenza/internal/queue"
	"cadenza/internal/session"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// Coordinator wires the library, playlists, queue, playback engine and
// session store together and owns the event loop that keeps them in sync.
// Every component is injected, nothing here is a global.
type Coordinator struct {
	cfg       *config.Config
	library   *library.Library
	playlists *playlist.Manager
	queue     *queue.Queue
	state     *playback.StateManager
	engine    playback.Engine
	session   *session.Manager
	logger    *logrus.Logger

	events <-chan library.Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	queueVisible bool
}

// New builds a coordinator around an already loaded configuration and
// library. The queue's play hook feeds play counts back into the library,
// which in turn drives smart playlist updates through the event loop.
func New(cfg *config.Config, lib *library.Library, playlists *playlist.Manager, state *playback.StateManager, engine playback.Engine, sess *session.Manager, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}

	c := &Coordinator{
		cfg:       cfg,
		library:   lib,
		playlists: playlists,
		state:     state,
		engine:    engine,
		session:   sess,
		logger:    logger,
		done:      make(chan struct{}),
	}

	c.queue = queue.New(lib, engine, cfg.Playback.RestartWindowSeconds, c.onPlay, logger)
	return c
}

// Queue exposes the playback queue.
func (c *Coordinator) Queue() *queue.Queue {
	return c.queue
}

// Start subscribes to library events and launches the event loop and the
// autosave ticker. The lightweight UI record is applied right away, before
// the full snapshot restore that waits on the library load.
func (c *Coordinator) Start() {
	if state, ok := c.session.LoadUIState(); ok {
		c.mu.Lock()
		c.queueVisible = state.QueueVisible
		c.mu.Unlock()
	}

	c.events = c.library.Subscribe()

	c.wg.Add(2)
	go c.eventLoop()
	go c.autosaveLoop()
}

// Shutdown stops the loops, writes a final session snapshot and closes the
// session store.
func (c *Coordinator) Shutdown() {
	close(c.done)
	c.wg.Wait()
	c.library.Unsubscribe(c.events)

	if err := c.saveSession(); err != nil {
		c.logger.WithError(err).Error("Failed to save session on shutdown")
	}
	if err := c.session.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close session store")
	}
}

// onPlay runs whenever the queue starts a track.
func (c *Coordinator) onPlay(track models.Track) {
	c.library.MarkPlayed(track.ID)
	c.state.UpdateTrack(&track)
	c.state.UpdatePlaybackState(true)
}

func (c *Coordinator) eventLoop() {
	defer c.wg.Done()
	for {
		select {
		case event, ok := <-c.events:
			if !ok {
				return
			}
			c.handleLibraryEvent(event)
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) handleLibraryEvent(event library.Event) {
	switch event.Type {
	case library.LoadComplete:
		c.playlists.RefreshAll()
		c.restoreSession()
	case library.TrackAdded, library.TrackUpdated:
		c.playlists.HandleTrackChange(event.Track, false)
	case library.TrackRemoved:
		c.playlists.HandleTrackChange(event.Track, true)
		c.session.InvalidateIfTrackRemoved(event.Track.ID)
	}
}

func (c *Coordinator) autosaveLoop() {
	defer c.wg.Done()

	interval := time.Duration(c.cfg.Session.SaveIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.saveSession(); err != nil {
				c.logger.WithError(err).Warn("Session autosave failed")
			}
		case <-c.done:
			return
		}
	}
}

// PlayFromLibrary loads the whole library as the queue context and starts
// playback at the given track.
func (c *Coordinator) PlayFromLibrary(startID int) error {
	tracks := c.library.AllTracks()
	if len(tracks) == 0 {
		return fmt.Errorf("library is empty")
	}
	c.queue.LoadContext(tracks, models.SourceLibrary, "", startID)
	return nil
}

// PlayFromFolder loads one watched folder's tracks as the queue context.
func (c *Coordinator) PlayFromFolder(folderPath string, startID int) error {
	tracks := c.library.TracksInFolder(folderPath)
	if len(tracks) == 0 {
		return fmt.Errorf("no tracks in folder %s", folderPath)
	}
	c.queue.LoadContext(tracks, models.SourceFolder, folderPath, startID)
	return nil
}

// PlayFromPlaylist loads a playlist's tracks as the queue context.
func (c *Coordinator) PlayFromPlaylist(playlistID int, startID int) error {
	pl, ok := c.playlists.Get(playlistID)
	if !ok {
		return fmt.Errorf("playlist %d not found", playlistID)
	}
	tracks, err := c.playlists.Tracks(playlistID)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("playlist %s is empty", pl.Name)
	}
	c.queue.LoadContext(tracks, models.SourcePlaylist, pl.PublicID, startID)
	return nil
}

// Pause pauses playback.
func (c *Coordinator) Pause() {
	c.engine.Pause()
	c.state.UpdatePlaybackState(false)
}

// Resume resumes paused playback.
func (c *Coordinator) Resume() {
	c.engine.Resume()
	c.state.UpdatePlaybackState(true)
}

// Next advances the queue.
func (c *Coordinator) Next() {
	c.queue.Advance()
}

// Previous retreats in the queue, or restarts the current track when more
// than the restart window has elapsed.
func (c *Coordinator) Previous() {
	c.queue.Retreat()
}

// SetVolume applies a volume change. Muting keeps the stored volume so
// unmuting restores it.
func (c *Coordinator) SetVolume(volume float64, muted bool) {
	if muted {
		c.engine.SetVolume(0)
	} else {
		c.engine.SetVolume(volume)
	}
	c.state.UpdateVolume(volume, muted)
}

// SetShuffle toggles shuffle on the queue and mirrors it into the state.
func (c *Coordinator) SetShuffle(shuffled bool) {
	if shuffled {
		c.queue.Shuffle()
	} else {
		c.queue.SetShuffled(false)
	}
	c.state.UpdateSettings(c.queue.Shuffled(), c.queue.Repeat())
}

// SetRepeat sets the repeat mode.
func (c *Coordinator) SetRepeat(mode models.RepeatMode) {
	c.queue.SetRepeat(mode)
	c.state.UpdateSettings(c.queue.Shuffled(), mode)
}

// SetQueueVisible records whether the queue panel is shown, so the next
// launch can restore it.
func (c *Coordinator) SetQueueVisible(visible bool) {
	c.mu.Lock()
	c.queueVisible = visible
	c.mu.Unlock()

	if err := c.session.SaveUIState(session.UIState{
		QueueVisible: visible,
		Position:     c.engine.CurrentTime(),
	}); err != nil {
		c.logger.WithError(err).Warn("Failed to save UI state")
	}
}

// QueueVisible reports whether the queue panel should be shown.
func (c *Coordinator) QueueVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueVisible
}

// restoreSession applies a validated snapshot after the library finishes
// loading. Playback resumes paused at the saved position.
func (c *Coordinator) restoreSession() {
	restored, ok := c.session.Restore()
	if !ok {
		return
	}

	c.queue.Restore(restored.QueueIDs, restored.QueueIndex, restored.Source, restored.SourceID)
	c.queue.SetShuffled(restored.Shuffled)
	c.queue.SetRepeat(restored.Repeat)

	if err := c.engine.Play(restored.Track); err != nil {
		c.logger.WithError(err).Warn("Failed to reload saved track")
		c.queue.Clear()
		return
	}
	c.engine.Pause()
	if restored.Position > 0 {
		c.engine.SeekTo(restored.Position)
	}
	c.engine.SetVolume(restored.Volume)

	c.state.UpdateTrack(&restored.Track)
	c.state.UpdatePlaybackState(false)
	c.state.UpdateTime(restored.Position)
	c.state.UpdateVolume(restored.Volume, restored.Muted)
	c.state.UpdateSettings(restored.Shuffled, restored.Repeat)

	c.mu.Lock()
	c.queueVisible = restored.QueueVisible
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"track":    restored.Track.Title,
		"position": restored.Position,
		"queue":    len(restored.QueueIDs),
	}).Info("Restored previous session")
}

// saveSession captures the current playback state as a snapshot. With
// nothing playing any stored snapshot is cleared instead.
func (c *Coordinator) saveSession() error {
	track, ok := c.queue.CurrentTrack()
	if !ok {
		return c.session.Save(session.Snapshot{})
	}

	ids := c.queue.TrackIDs()
	paths := make([]string, len(ids))
	for i, id := range ids {
		if t, ok := c.library.TrackByID(id); ok {
			paths[i] = t.FilePath
		}
	}

	source, sourceID := c.queue.Source()
	state := c.state.GetState()

	c.mu.Lock()
	queueVisible := c.queueVisible
	c.mu.Unlock()

	return c.session.Save(session.Snapshot{
		TrackID:      track.ID,
		Position:     c.engine.CurrentTime(),
		QueueIDs:     ids,
		QueuePaths:   paths,
		QueueIndex:   c.queue.CurrentIndex(),
		Source:       source,
		SourceID:     sourceID,
		Volume:       state.Volume,
		Muted:        state.IsMuted,
		Shuffled:     c.queue.Shuffled(),
		Repeat:       c.queue.Repeat(),
		QueueVisible: queueVisible,
	})
}
