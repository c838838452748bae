package playback

import (
	"sync"
	"time"

	"cadenza/pkg/models"
)

// Engine is the playback collaborator the core drives. Decoding and audio
// output live behind this interface and are out of scope for the core.
type Engine interface {
	// Play loads the track and begins playback from the start.
	Play(track models.Track) error
	Pause()
	Resume()
	Stop()
	// SeekTo moves the playhead to the given offset in seconds.
	SeekTo(seconds float64)
	SetVolume(volume float64)
	// CurrentTime returns the playhead offset in seconds.
	CurrentTime() float64
	IsPlaying() bool
}

// ClockEngine is a headless Engine that advances the playhead against the
// wall clock. It carries no decoder; it exists so the queue and session logic
// can run (and be tested) without an audio device.
type ClockEngine struct {
	mu        sync.Mutex
	track     *models.Track
	playing   bool
	position  float64   // playhead at last state change
	startedAt time.Time // when playback last resumed
	volume    float64
}

// NewClockEngine creates a stopped engine at full volume.
func NewClockEngine() *ClockEngine {
	return &ClockEngine{volume: 1.0}
}

// Play implements Engine.
func (e *ClockEngine) Play(track models.Track) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := track
	e.track = &t
	e.position = 0
	e.startedAt = time.Now()
	e.playing = true
	return nil
}

// Pause implements Engine.
func (e *ClockEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return
	}
	e.position = e.elapsed()
	e.playing = false
}

// Resume implements Engine.
func (e *ClockEngine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing || e.track == nil {
		return
	}
	e.startedAt = time.Now()
	e.playing = true
}

// Stop implements Engine.
func (e *ClockEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.track = nil
	e.playing = false
	e.position = 0
}

// SeekTo implements Engine.
func (e *ClockEngine) SeekTo(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track == nil {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	e.position = seconds
	e.startedAt = time.Now()
}

// SetVolume implements Engine.
func (e *ClockEngine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	e.volume = volume
}

// Volume returns the last set volume.
func (e *ClockEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// CurrentTime implements Engine.
func (e *ClockEngine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed()
}

// IsPlaying implements Engine.
func (e *ClockEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Track returns the currently loaded track, or nil.
func (e *ClockEngine) Track() *models.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track == nil {
		return nil
	}
	t := *e.track
	return &t
}

// elapsed computes the playhead position (caller holds the lock).
func (e *ClockEngine) elapsed() float64 {
	if !e.playing {
		return e.position
	}
	pos := e.position + time.Since(e.startedAt).Seconds()
	if e.track != nil && e.track.Duration > 0 && pos > float64(e.track.Duration) {
		pos = float64(e.track.Duration)
	}
	return pos
}
