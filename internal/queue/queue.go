package queue

import (
	"math/rand"
	"sync"
	"time"

	"cadenza/internal/playback"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// Catalog resolves track references for the queue. Queues hold track IDs
// only; the library store owns the tracks themselves.
type Catalog interface {
	TrackByID(id int) (models.Track, bool)
	AllTracks() []models.Track
}

// Queue is the playback queue: an ordered list of track IDs plus a cursor.
// Invariant: the cursor is -1 exactly when the queue is empty, and within
// [0, len) otherwise. Every cursor move that changes the playing track
// notifies the playback engine and fires the onPlay hook (play counting).
type Queue struct {
	mu      sync.Mutex
	catalog Catalog
	engine  playback.Engine
	logger  *logrus.Logger
	rng     *rand.Rand

	ids      []int
	current  int
	source   models.QueueSource
	sourceID string

	shuffled bool
	repeat   models.RepeatMode

	// restartWindow is how far into a track Retreat restarts it instead of
	// moving back.
	restartWindow float64

	onPlay func(models.Track)
}

// New creates an empty queue. onPlay (may be nil) fires whenever a track
// starts playing because of a queue operation.
func New(catalog Catalog, engine playback.Engine, restartWindow float64, onPlay func(models.Track), logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if restartWindow <= 0 {
		restartWindow = 3
	}
	return &Queue{
		catalog:       catalog,
		engine:        engine,
		logger:        logger,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		current:       -1,
		restartWindow: restartWindow,
		onPlay:        onPlay,
	}
}

// LoadContext replaces the queue with the given context (library, folder or
// playlist contents), optionally starting at startID. With shuffle on, the
// starting track is pinned to position 0 and the rest is permuted; otherwise
// the context order is preserved and the cursor lands on the starting track
// (or 0 if it is not in the context). Playback of the current track begins.
func (q *Queue) LoadContext(tracks []models.Track, source models.QueueSource, sourceID string, startID int) {
	q.mu.Lock()

	// An empty context clears the queue outright, stopping whatever was
	// playing; the source tag is not kept since nothing was loaded from it.
	if len(tracks) == 0 {
		q.ids = nil
		q.current = -1
		q.source = models.SourceNone
		q.sourceID = ""
		if q.engine != nil {
			q.engine.Stop()
		}
		q.mu.Unlock()
		return
	}

	ids := make([]int, len(tracks))
	startIdx := -1
	for i, track := range tracks {
		ids[i] = track.ID
		if track.ID == startID {
			startIdx = i
		}
	}

	if q.shuffled {
		if startIdx > 0 {
			ids[0], ids[startIdx] = ids[startIdx], ids[0]
		}
		rest := ids[1:]
		if startIdx < 0 {
			rest = ids
		}
		q.rng.Shuffle(len(rest), func(i, j int) {
			rest[i], rest[j] = rest[j], rest[i]
		})
		q.current = 0
	} else {
		if startIdx < 0 {
			startIdx = 0
		}
		q.current = startIdx
	}

	q.ids = ids
	q.source = source
	q.sourceID = sourceID

	q.startPlaybackLocked()
	q.mu.Unlock()
}

// Advance moves to the next track. Repeat "one" replays the current track,
// "all" wraps around, "off" is a no-op past the end. An empty queue loads a
// fresh library-sourced queue and starts at position 0.
func (q *Queue) Advance() {
	q.mu.Lock()

	if len(q.ids) == 0 {
		tracks := q.catalog.AllTracks()
		if len(tracks) == 0 {
			q.mu.Unlock()
			return
		}
		ids := make([]int, len(tracks))
		for i, track := range tracks {
			ids[i] = track.ID
		}
		if q.shuffled {
			q.rng.Shuffle(len(ids), func(i, j int) {
				ids[i], ids[j] = ids[j], ids[i]
			})
		}
		q.ids = ids
		q.current = 0
		q.source = models.SourceLibrary
		q.sourceID = ""
		q.startPlaybackLocked()
		q.mu.Unlock()
		return
	}

	switch q.repeat {
	case models.RepeatOne:
		// Same index, play again from the start.
	case models.RepeatAll:
		q.current = (q.current + 1) % len(q.ids)
	default: // RepeatOff
		if q.current+1 >= len(q.ids) {
			q.mu.Unlock()
			return
		}
		q.current++
	}

	q.startPlaybackLocked()
	q.mu.Unlock()
}

// Retreat moves to the previous track. More than the restart window into the
// current track it restarts the track instead. At index 0 with repeat off it
// seeks to 0 rather than stopping; repeat "all" wraps around.
func (q *Queue) Retreat() {
	q.mu.Lock()

	if len(q.ids) == 0 {
		q.mu.Unlock()
		return
	}

	if q.engine != nil && q.engine.CurrentTime() > q.restartWindow {
		q.engine.SeekTo(0)
		q.mu.Unlock()
		return
	}

	switch q.repeat {
	case models.RepeatOne:
		// Same index, play again from the start.
	case models.RepeatAll:
		q.current = (q.current - 1 + len(q.ids)) % len(q.ids)
	default: // RepeatOff
		if q.current == 0 {
			if q.engine != nil {
				q.engine.SeekTo(0)
			}
			q.mu.Unlock()
			return
		}
		q.current--
	}

	q.startPlaybackLocked()
	q.mu.Unlock()
}

// InsertNext places a track immediately after the cursor. A track already in
// the queue is relocated, never duplicated, with the cursor adjusted so it
// keeps pointing at the same logical track.
func (q *Queue) InsertNext(track models.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) == 0 {
		q.ids = []int{track.ID}
		q.current = 0
		return
	}

	existing := q.indexOfLocked(track.ID)
	if existing == q.current {
		// Already the playing track; nothing to relocate.
		return
	}
	if existing >= 0 {
		q.ids = append(q.ids[:existing], q.ids[existing+1:]...)
		if existing < q.current {
			q.current--
		}
	}

	at := q.current + 1
	q.ids = append(q.ids, 0)
	copy(q.ids[at+1:], q.ids[at:])
	q.ids[at] = track.ID
}

// Append adds a track to the end of the queue; no-op if already present.
func (q *Queue) Append(track models.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOfLocked(track.ID) >= 0 {
		return
	}
	q.ids = append(q.ids, track.ID)
	if q.current < 0 {
		q.current = 0
	}
}

// RemoveAt removes the track at the given index. Removing the playing track
// through this path is refused; removals before the cursor shift it down.
func (q *Queue) RemoveAt(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.ids) {
		return
	}
	if index == q.current {
		q.logger.Debug("Refusing to remove the currently playing track from the queue")
		return
	}

	q.ids = append(q.ids[:index], q.ids[index+1:]...)
	if index < q.current {
		q.current--
	}
}

// Move relocates the track at from to position to (both in queue indices).
// The cursor follows the same logical track: if the moved track is current
// the cursor moves with it, otherwise it shifts when the move crosses it.
func (q *Queue) Move(from, to int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.ids)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return
	}

	id := q.ids[from]
	q.ids = append(q.ids[:from], q.ids[from+1:]...)
	q.ids = append(q.ids, 0)
	copy(q.ids[to+1:], q.ids[to:])
	q.ids[to] = id

	switch {
	case from == q.current:
		q.current = to
	case from < q.current && to >= q.current:
		q.current--
	case from > q.current && to <= q.current:
		q.current++
	}
}

// Shuffle turns shuffle mode on and re-permutes the queue in place, pinning
// the currently playing track at position 0 with the cursor reset to 0. The
// mode sticks, so later LoadContext calls permute their context too.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shuffled = true
	if len(q.ids) <= 1 || q.current < 0 {
		return
	}

	q.ids[0], q.ids[q.current] = q.ids[q.current], q.ids[0]
	rest := q.ids[1:]
	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	q.current = 0
}

// Clear empties the queue and stops playback.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ids = nil
	q.current = -1
	q.source = models.SourceNone
	q.sourceID = ""
	if q.engine != nil {
		q.engine.Stop()
	}
}

// Restore replaces queue state without starting playback. Used by session
// restore, which loads the current track paused separately.
func (q *Queue) Restore(ids []int, index int, source models.QueueSource, sourceID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ids) == 0 {
		q.ids = nil
		q.current = -1
		q.source = models.SourceNone
		q.sourceID = ""
		return
	}
	if index < 0 || index >= len(ids) {
		index = 0
	}

	q.ids = append([]int(nil), ids...)
	q.current = index
	q.source = source
	q.sourceID = sourceID
}

// SetRepeat sets the repeat mode.
func (q *Queue) SetRepeat(mode models.RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeat = mode
}

// Repeat returns the repeat mode.
func (q *Queue) Repeat() models.RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repeat
}

// SetShuffled sets whether LoadContext permutes its context.
func (q *Queue) SetShuffled(shuffled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffled = shuffled
}

// Shuffled reports the shuffle setting.
func (q *Queue) Shuffled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffled
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// CurrentIndex returns the cursor (-1 when the queue is empty).
func (q *Queue) CurrentIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// CurrentTrack resolves the track at the cursor.
func (q *Queue) CurrentTrack() (models.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current < 0 || q.current >= len(q.ids) {
		return models.Track{}, false
	}
	return q.catalog.TrackByID(q.ids[q.current])
}

// TrackIDs returns a copy of the queued track IDs in order.
func (q *Queue) TrackIDs() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int(nil), q.ids...)
}

// Source returns the queue's source tag and identifier.
func (q *Queue) Source() (models.QueueSource, string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.source, q.sourceID
}

// IsEmpty reports whether the queue holds no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// indexOfLocked returns the position of a track ID, or -1. Caller holds the lock.
func (q *Queue) indexOfLocked(id int) int {
	for i, existing := range q.ids {
		if existing == id {
			return i
		}
	}
	return -1
}

// startPlaybackLocked begins playback of the track at the cursor and fires
// the onPlay hook. Caller holds the lock.
func (q *Queue) startPlaybackLocked() {
	if q.current < 0 || q.current >= len(q.ids) {
		return
	}
	track, ok := q.catalog.TrackByID(q.ids[q.current])
	if !ok {
		q.logger.WithField("track_id", q.ids[q.current]).Warn("Queued track missing from catalog")
		return
	}

	if q.onPlay != nil {
		q.onPlay(track)
	}
	if q.engine != nil {
		if err := q.engine.Play(track); err != nil {
			q.logger.WithError(err).WithField("track_id", track.ID).Error("Failed to start playback")
		}
	}
}
