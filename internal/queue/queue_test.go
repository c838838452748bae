package queue

import (
	"sort"
	"testing"

	"cadenza/pkg/models"
)

// fakeCatalog resolves tracks by ID from a fixed slice.
type fakeCatalog []models.Track

func (c fakeCatalog) TrackByID(id int) (models.Track, bool) {
	for _, track := range c {
		if track.ID == id {
			return track, true
		}
	}
	return models.Track{}, false
}

func (c fakeCatalog) AllTracks() []models.Track {
	return c
}

// fakeEngine records calls and reports a controllable playhead.
type fakeEngine struct {
	position float64
	played   []int
	seeks    []float64
	stopped  bool
	playing  bool
}

func (e *fakeEngine) Play(track models.Track) error {
	e.played = append(e.played, track.ID)
	e.playing = true
	e.position = 0
	return nil
}

func (e *fakeEngine) Pause()  { e.playing = false }
func (e *fakeEngine) Resume() { e.playing = true }
func (e *fakeEngine) Stop() {
	e.playing = false
	e.stopped = true
}
func (e *fakeEngine) SeekTo(seconds float64) {
	e.seeks = append(e.seeks, seconds)
	e.position = seconds
}
func (e *fakeEngine) SetVolume(volume float64) {}
func (e *fakeEngine) CurrentTime() float64     { return e.position }
func (e *fakeEngine) IsPlaying() bool          { return e.playing }

func makeTracks(n int) fakeCatalog {
	tracks := make(fakeCatalog, n)
	for i := range tracks {
		tracks[i] = models.Track{ID: i + 1, Title: string(rune('A' + i)), Duration: 200}
	}
	return tracks
}

func newTestQueue(n int) (*Queue, fakeCatalog, *fakeEngine, *[]int) {
	catalog := makeTracks(n)
	engine := &fakeEngine{}
	var playCounts []int
	q := New(catalog, engine, 3, func(track models.Track) {
		playCounts = append(playCounts, track.ID)
	}, nil)
	return q, catalog, engine, &playCounts
}

// checkCursor asserts the queue's core invariant.
func checkCursor(t *testing.T, q *Queue) {
	t.Helper()
	idx := q.CurrentIndex()
	if q.Len() == 0 {
		if idx != -1 {
			t.Fatalf("Empty queue must have cursor -1, got %d", idx)
		}
		return
	}
	if idx < 0 || idx >= q.Len() {
		t.Fatalf("Cursor %d out of range for queue of %d", idx, q.Len())
	}
}

func TestLoadContext(t *testing.T) {
	t.Run("StartsAtRequestedTrack", func(t *testing.T) {
		q, catalog, engine, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 3)

		checkCursor(t, q)
		if q.CurrentIndex() != 2 {
			t.Errorf("Expected cursor 2, got %d", q.CurrentIndex())
		}
		if len(engine.played) != 1 || engine.played[0] != 3 {
			t.Errorf("Expected track 3 to start playing, got %v", engine.played)
		}
	})

	t.Run("UnknownStartFallsBackToZero", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 99)
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected cursor 0, got %d", q.CurrentIndex())
		}
	})

	t.Run("EmptyContextClears", func(t *testing.T) {
		q, catalog, engine, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)

		q.LoadContext(nil, models.SourceFolder, "/music", 0)
		checkCursor(t, q)
		if !q.IsEmpty() {
			t.Error("Expected empty queue")
		}
		if !engine.stopped {
			t.Error("Expected engine to be stopped by an empty context")
		}
		source, sourceID := q.Source()
		if source != models.SourceNone || sourceID != "" {
			t.Errorf("Expected source cleared, got %q %q", source, sourceID)
		}
	})

	t.Run("ShufflePinsStartTrack", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(10)
		q.SetShuffled(true)
		q.LoadContext(catalog, models.SourceLibrary, "", 7)

		checkCursor(t, q)
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected cursor 0 after shuffled load, got %d", q.CurrentIndex())
		}
		ids := q.TrackIDs()
		if ids[0] != 7 {
			t.Errorf("Expected track 7 pinned at position 0, got %d", ids[0])
		}

		// Shuffling permutes, never adds or drops.
		sorted := append([]int(nil), ids...)
		sort.Ints(sorted)
		for i, id := range sorted {
			if id != i+1 {
				t.Fatalf("Queue no longer holds the original tracks: %v", ids)
			}
		}
	})

	t.Run("PlayHookFires", func(t *testing.T) {
		q, catalog, _, plays := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)
		if len(*plays) != 1 || (*plays)[0] != 2 {
			t.Errorf("Expected one play of track 2, got %v", *plays)
		}
	})
}

func TestAdvance(t *testing.T) {
	t.Run("RepeatOffStopsAtEnd", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 3)

		q.Advance()
		checkCursor(t, q)
		if q.CurrentIndex() != 2 {
			t.Errorf("Expected cursor to stay at 2, got %d", q.CurrentIndex())
		}
	})

	t.Run("RepeatAllWraps", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 3)
		q.SetRepeat(models.RepeatAll)

		q.Advance()
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected wrap to 0, got %d", q.CurrentIndex())
		}
	})

	t.Run("RepeatOneReplaysAndCountsPlay", func(t *testing.T) {
		q, catalog, engine, plays := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)
		q.SetRepeat(models.RepeatOne)

		q.Advance()
		if q.CurrentIndex() != 1 {
			t.Errorf("Expected cursor to stay at 1, got %d", q.CurrentIndex())
		}
		// The replay is a fresh playback: engine restarted, play counted.
		if len(engine.played) != 2 {
			t.Errorf("Expected 2 engine plays, got %d", len(engine.played))
		}
		if len(*plays) != 2 {
			t.Errorf("Expected 2 counted plays, got %d", len(*plays))
		}
	})

	t.Run("EmptyQueueLoadsLibrary", func(t *testing.T) {
		q, _, _, _ := newTestQueue(4)

		q.Advance()
		checkCursor(t, q)
		if q.Len() != 4 || q.CurrentIndex() != 0 {
			t.Errorf("Expected fresh 4-track queue at 0, got len %d cursor %d", q.Len(), q.CurrentIndex())
		}
		source, _ := q.Source()
		if source != models.SourceLibrary {
			t.Errorf("Expected library source, got %q", source)
		}
	})
}

func TestRetreat(t *testing.T) {
	t.Run("DeepIntoTrackRestartsIt", func(t *testing.T) {
		q, catalog, engine, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)
		engine.position = 45

		q.Retreat()
		if q.CurrentIndex() != 1 {
			t.Errorf("Expected cursor to stay at 1, got %d", q.CurrentIndex())
		}
		if len(engine.seeks) != 1 || engine.seeks[0] != 0 {
			t.Errorf("Expected a single seek to 0, got %v", engine.seeks)
		}
		// Restarting by seek is not a new play.
		if len(engine.played) != 1 {
			t.Errorf("Expected no new engine play, got %d", len(engine.played))
		}
	})

	t.Run("EarlyInTrackMovesBack", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)
		// Within the restart window.

		q.Retreat()
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected cursor 0, got %d", q.CurrentIndex())
		}
	})

	t.Run("AtStartRepeatOffSeeksToZero", func(t *testing.T) {
		q, catalog, engine, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 1)

		q.Retreat()
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected cursor to stay at 0, got %d", q.CurrentIndex())
		}
		if len(engine.seeks) != 1 || engine.seeks[0] != 0 {
			t.Errorf("Expected seek to 0, got %v", engine.seeks)
		}
	})

	t.Run("AtStartRepeatAllWraps", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 1)
		q.SetRepeat(models.RepeatAll)

		q.Retreat()
		if q.CurrentIndex() != 2 {
			t.Errorf("Expected wrap to last index, got %d", q.CurrentIndex())
		}
	})

	t.Run("EmptyQueueNoOp", func(t *testing.T) {
		q, _, _, _ := newTestQueue(3)
		q.Retreat()
		checkCursor(t, q)
	})
}

func TestInsertNext(t *testing.T) {
	t.Run("NewTrackGoesAfterCursor", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog[:3], models.SourceLibrary, "", 2)

		q.InsertNext(catalog[4]) // track 5
		ids := q.TrackIDs()
		want := []int{1, 2, 5, 3}
		for i, id := range want {
			if ids[i] != id {
				t.Fatalf("Expected order %v, got %v", want, ids)
			}
		}
		checkCursor(t, q)
	})

	t.Run("ExistingTrackRelocatesNotDuplicates", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)

		q.InsertNext(catalog[4]) // move track 5 up
		ids := q.TrackIDs()
		if len(ids) != 5 {
			t.Fatalf("Expected 5 tracks after relocation, got %d", len(ids))
		}
		want := []int{1, 2, 5, 3, 4}
		for i, id := range want {
			if ids[i] != id {
				t.Fatalf("Expected order %v, got %v", want, ids)
			}
		}
	})

	t.Run("RelocatingFromBeforeCursorKeepsCurrent", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 3)

		q.InsertNext(catalog[0]) // move track 1 from before the cursor
		current, ok := q.CurrentTrack()
		if !ok || current.ID != 3 {
			t.Errorf("Expected track 3 still current, got %+v", current)
		}
		ids := q.TrackIDs()
		want := []int{2, 3, 1, 4, 5}
		for i, id := range want {
			if ids[i] != id {
				t.Fatalf("Expected order %v, got %v", want, ids)
			}
		}
	})

	t.Run("CurrentTrackIsNoOp", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(3)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)

		q.InsertNext(catalog[1])
		ids := q.TrackIDs()
		want := []int{1, 2, 3}
		for i, id := range want {
			if ids[i] != id {
				t.Fatalf("Expected order unchanged %v, got %v", want, ids)
			}
		}
	})

	t.Run("EmptyQueueNoAutoplay", func(t *testing.T) {
		q, catalog, engine, _ := newTestQueue(3)
		q.InsertNext(catalog[0])

		checkCursor(t, q)
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected cursor 0, got %d", q.CurrentIndex())
		}
		if len(engine.played) != 0 {
			t.Error("Expected no playback to start")
		}
	})
}

func TestAppend(t *testing.T) {
	q, catalog, engine, _ := newTestQueue(3)

	q.Append(catalog[0])
	checkCursor(t, q)
	if q.CurrentIndex() != 0 {
		t.Errorf("Expected cursor 0 after append to empty queue, got %d", q.CurrentIndex())
	}
	if len(engine.played) != 0 {
		t.Error("Expected no playback to start")
	}

	q.Append(catalog[1])
	q.Append(catalog[0]) // duplicate
	if q.Len() != 2 {
		t.Errorf("Expected duplicate append to be ignored, len %d", q.Len())
	}
}

func TestRemoveAt(t *testing.T) {
	q, catalog, _, _ := newTestQueue(4)
	q.LoadContext(catalog, models.SourceLibrary, "", 3)

	t.Run("RefusesCurrentTrack", func(t *testing.T) {
		q.RemoveAt(2)
		if q.Len() != 4 {
			t.Errorf("Expected removal of playing track to be refused, len %d", q.Len())
		}
	})

	t.Run("BeforeCursorShiftsDown", func(t *testing.T) {
		q.RemoveAt(0)
		checkCursor(t, q)
		current, ok := q.CurrentTrack()
		if !ok || current.ID != 3 {
			t.Errorf("Expected track 3 still current, got %+v", current)
		}
	})

	t.Run("OutOfRangeIgnored", func(t *testing.T) {
		q.RemoveAt(-1)
		q.RemoveAt(99)
		if q.Len() != 3 {
			t.Errorf("Expected len 3, got %d", q.Len())
		}
	})
}

func TestMove(t *testing.T) {
	t.Run("CursorFollowsCurrentTrack", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 2)

		q.Move(1, 4)
		checkCursor(t, q)
		if q.CurrentIndex() != 4 {
			t.Errorf("Expected cursor to follow to 4, got %d", q.CurrentIndex())
		}
		current, _ := q.CurrentTrack()
		if current.ID != 2 {
			t.Errorf("Expected track 2 still current, got %d", current.ID)
		}
	})

	t.Run("MoveAcrossCursorShiftsIt", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 3)

		q.Move(0, 4)
		checkCursor(t, q)
		current, _ := q.CurrentTrack()
		if current.ID != 3 {
			t.Errorf("Expected track 3 still current, got %d", current.ID)
		}
	})

	t.Run("RoundTripRestoresOrder", func(t *testing.T) {
		q, catalog, _, _ := newTestQueue(5)
		q.LoadContext(catalog, models.SourceLibrary, "", 1)
		before := q.TrackIDs()

		q.Move(1, 3)
		q.Move(3, 1)
		after := q.TrackIDs()
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("Expected order restored, got %v then %v", before, after)
			}
		}
	})
}

func TestShuffle(t *testing.T) {
	q, catalog, _, _ := newTestQueue(10)
	q.LoadContext(catalog, models.SourceLibrary, "", 6)

	q.Shuffle()
	checkCursor(t, q)
	if q.CurrentIndex() != 0 {
		t.Errorf("Expected cursor 0 after shuffle, got %d", q.CurrentIndex())
	}
	ids := q.TrackIDs()
	if ids[0] != 6 {
		t.Errorf("Expected playing track pinned at 0, got %d", ids[0])
	}
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	for i, id := range sorted {
		if id != i+1 {
			t.Fatalf("Shuffle changed the queue contents: %v", ids)
		}
	}

	// The mode latches: later context loads permute too, pinning their
	// start track at position 0 instead of keeping context order.
	if !q.Shuffled() {
		t.Error("Expected shuffle mode on after Shuffle")
	}
	q.LoadContext(catalog, models.SourceLibrary, "", 6)
	if q.CurrentIndex() != 0 {
		t.Errorf("Expected shuffled reload to pin cursor at 0, got %d", q.CurrentIndex())
	}
	if got := q.TrackIDs()[0]; got != 6 {
		t.Errorf("Expected start track pinned at 0 after reload, got %d", got)
	}
}

func TestClear(t *testing.T) {
	q, catalog, engine, _ := newTestQueue(3)
	q.LoadContext(catalog, models.SourceLibrary, "", 1)

	q.Clear()
	checkCursor(t, q)
	if !q.IsEmpty() {
		t.Error("Expected empty queue")
	}
	if !engine.stopped {
		t.Error("Expected engine to be stopped")
	}
	source, _ := q.Source()
	if source != models.SourceNone {
		t.Errorf("Expected source cleared, got %q", source)
	}
}

func TestRestore(t *testing.T) {
	t.Run("NoPlaybackStarts", func(t *testing.T) {
		q, _, engine, plays := newTestQueue(5)

		q.Restore([]int{3, 1, 4}, 1, models.SourceFolder, "/music")
		checkCursor(t, q)
		if q.CurrentIndex() != 1 {
			t.Errorf("Expected cursor 1, got %d", q.CurrentIndex())
		}
		if len(engine.played) != 0 || len(*plays) != 0 {
			t.Error("Expected restore not to start playback or count plays")
		}
		source, sourceID := q.Source()
		if source != models.SourceFolder || sourceID != "/music" {
			t.Errorf("Expected folder source, got %q %q", source, sourceID)
		}
	})

	t.Run("BadIndexFallsBackToZero", func(t *testing.T) {
		q, _, _, _ := newTestQueue(5)
		q.Restore([]int{3, 1}, 7, models.SourceLibrary, "")
		if q.CurrentIndex() != 0 {
			t.Errorf("Expected cursor 0, got %d", q.CurrentIndex())
		}
	})

	t.Run("EmptyRestoreClears", func(t *testing.T) {
		q, _, _, _ := newTestQueue(5)
		q.Restore(nil, 0, models.SourceNone, "")
		checkCursor(t, q)
	})
}
