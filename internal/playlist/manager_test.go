package playlist

import (
	"errors"
	"path/filepath"
	"testing"

	"cadenza/internal/database"
	"cadenza/internal/smartlist"
	"cadenza/pkg/models"
)

// mutableCatalog lets tests change the track set between refreshes.
type mutableCatalog struct {
	tracks []models.Track
}

func (c *mutableCatalog) AllTracks() []models.Track {
	return c.tracks
}

// favoriteRecorder captures SetFavorite calls from the Favorites mapping.
type favoriteRecorder struct {
	calls map[int]bool
}

func (f *favoriteRecorder) SetFavorite(id int, favorite bool) {
	if f.calls == nil {
		f.calls = make(map[int]bool)
	}
	f.calls[id] = favorite
}

func newTestManager(t *testing.T, catalog *mutableCatalog) (*Manager, *database.Database, *favoriteRecorder) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	faves := &favoriteRecorder{}
	manager := NewManager(db, smartlist.NewBuilder(catalog, nil), faves, nil)
	if err := manager.LoadAll(); err != nil {
		t.Fatalf("Failed to load playlists: %v", err)
	}
	return manager, db, faves
}

func TestBuiltinSeeding(t *testing.T) {
	catalog := &mutableCatalog{}
	manager, db, _ := newTestManager(t, catalog)

	names := map[string]bool{}
	for _, playlist := range manager.All() {
		if playlist.IsSmart() {
			names[playlist.Name] = true
		}
	}
	for _, name := range []string{FavoritesName, MostPlayedName, RecentlyPlayedName} {
		if !names[name] {
			t.Errorf("Expected built-in %s to be seeded", name)
		}
	}

	// A second load must not duplicate them.
	again := NewManager(db, smartlist.NewBuilder(catalog, nil), nil, nil)
	if err := again.LoadAll(); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if len(again.All()) != len(manager.All()) {
		t.Errorf("Expected %d playlists after reload, got %d", len(manager.All()), len(again.All()))
	}
}

func TestRegularPlaylists(t *testing.T) {
	catalog := &mutableCatalog{}
	manager, db, _ := newTestManager(t, catalog)

	var trackIDs []int
	for _, path := range []string{"/m/a.mp3", "/m/b.mp3"} {
		id, err := db.InsertTrack(models.Track{Title: path, FilePath: path})
		if err != nil {
			t.Fatalf("Failed to insert track: %v", err)
		}
		trackIDs = append(trackIDs, id)
	}

	created, err := manager.Create("Mix")
	if err != nil {
		t.Fatalf("Failed to create playlist: %v", err)
	}
	if created.PublicID == "" {
		t.Error("Expected a public ID")
	}

	t.Run("AddAndListTracks", func(t *testing.T) {
		for _, id := range trackIDs {
			if err := manager.AddTrack(created.ID, id); err != nil {
				t.Fatalf("Failed to add track: %v", err)
			}
		}
		tracks, err := manager.Tracks(created.ID)
		if err != nil {
			t.Fatalf("Failed to list tracks: %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("Expected 2 tracks, got %d", len(tracks))
		}

		// Counts track membership changes without a reload.
		if got, _ := manager.Get(created.ID); got.TrackCount != 2 {
			t.Errorf("Expected track count 2 after adds, got %d", got.TrackCount)
		}
	})

	t.Run("Reorder", func(t *testing.T) {
		if err := manager.Reorder(created.ID, []int{trackIDs[1], trackIDs[0]}); err != nil {
			t.Fatalf("Failed to reorder: %v", err)
		}
		tracks, _ := manager.Tracks(created.ID)
		if tracks[0].ID != trackIDs[1] {
			t.Errorf("Expected track %d first, got %d", trackIDs[1], tracks[0].ID)
		}
	})

	t.Run("RemoveTrack", func(t *testing.T) {
		if err := manager.RemoveTrack(created.ID, trackIDs[0]); err != nil {
			t.Fatalf("Failed to remove track: %v", err)
		}
		tracks, _ := manager.Tracks(created.ID)
		if len(tracks) != 1 {
			t.Errorf("Expected 1 track, got %d", len(tracks))
		}
		if got, _ := manager.Get(created.ID); got.TrackCount != 1 {
			t.Errorf("Expected track count 1 after removal, got %d", got.TrackCount)
		}
	})

	t.Run("GetByPublicID", func(t *testing.T) {
		found, ok := manager.GetByPublicID(created.PublicID)
		if !ok || found.ID != created.ID {
			t.Error("Expected lookup by public ID to find the playlist")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := manager.Delete(created.ID); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if _, ok := manager.Get(created.ID); ok {
			t.Error("Expected playlist to be gone")
		}
	})
}

func TestSmartPlaylistEditing(t *testing.T) {
	catalog := &mutableCatalog{}
	manager, _, faves := newTestManager(t, catalog)

	var favorites, mostPlayed models.Playlist
	for _, playlist := range manager.All() {
		switch playlist.Name {
		case FavoritesName:
			favorites = playlist
		case MostPlayedName:
			mostPlayed = playlist
		}
	}

	t.Run("MembershipEditsRejected", func(t *testing.T) {
		if err := manager.AddTrack(mostPlayed.ID, 1); !errors.Is(err, ErrSmartPlaylist) {
			t.Errorf("Expected ErrSmartPlaylist, got %v", err)
		}
		if err := manager.Reorder(mostPlayed.ID, nil); !errors.Is(err, ErrSmartPlaylist) {
			t.Errorf("Expected ErrSmartPlaylist, got %v", err)
		}
	})

	t.Run("FavoritesMapsToFlag", func(t *testing.T) {
		if err := manager.AddTrack(favorites.ID, 9); err != nil {
			t.Fatalf("Expected Favorites add to succeed, got %v", err)
		}
		if got, ok := faves.calls[9]; !ok || !got {
			t.Error("Expected SetFavorite(9, true)")
		}

		if err := manager.RemoveTrack(favorites.ID, 9); err != nil {
			t.Fatalf("Expected Favorites remove to succeed, got %v", err)
		}
		if got := faves.calls[9]; got {
			t.Error("Expected SetFavorite(9, false)")
		}
	})
}

func TestSmartPlaylistMaterialization(t *testing.T) {
	catalog := &mutableCatalog{tracks: []models.Track{
		{ID: 1, Title: "One", PlayCount: 5},
		{ID: 2, Title: "Two", PlayCount: 1},
		{ID: 3, Title: "Three", Favorite: true},
	}}
	manager, _, _ := newTestManager(t, catalog)

	var favorites, mostPlayed models.Playlist
	for _, playlist := range manager.All() {
		switch playlist.Name {
		case FavoritesName:
			favorites = playlist
		case MostPlayedName:
			mostPlayed = playlist
		}
	}

	t.Run("InitialContents", func(t *testing.T) {
		tracks, err := manager.Tracks(mostPlayed.ID)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != 1 {
			t.Errorf("Expected only the 5-play track, got %v", tracks)
		}

		tracks, _ = manager.Tracks(favorites.ID)
		if len(tracks) != 1 || tracks[0].ID != 3 {
			t.Errorf("Expected only the favorited track, got %v", tracks)
		}
	})

	t.Run("TrackChangeAddsMember", func(t *testing.T) {
		catalog.tracks[1].PlayCount = 4
		manager.HandleTrackChange(catalog.tracks[1], false)

		tracks, _ := manager.Tracks(mostPlayed.ID)
		if len(tracks) != 2 {
			t.Fatalf("Expected 2 tracks after play-count bump, got %d", len(tracks))
		}
		if tracks[0].ID != 1 || tracks[1].ID != 2 {
			t.Errorf("Expected play-count order [1 2], got [%d %d]", tracks[0].ID, tracks[1].ID)
		}
	})

	t.Run("TrackChangeReordersMember", func(t *testing.T) {
		catalog.tracks[1].PlayCount = 9
		manager.HandleTrackChange(catalog.tracks[1], false)

		tracks, _ := manager.Tracks(mostPlayed.ID)
		if tracks[0].ID != 2 {
			t.Errorf("Expected the 9-play track first, got %d", tracks[0].ID)
		}
	})

	t.Run("RemovedTrackLeaves", func(t *testing.T) {
		removed := catalog.tracks[2]
		catalog.tracks = catalog.tracks[:2]
		manager.HandleTrackChange(removed, true)

		tracks, _ := manager.Tracks(favorites.ID)
		if len(tracks) != 0 {
			t.Errorf("Expected empty favorites, got %d tracks", len(tracks))
		}
	})

	t.Run("UserSmartPlaylist", func(t *testing.T) {
		rule, err := smartlist.NewRule(smartlist.FieldTitle, smartlist.StartsWith, "t")
		if err != nil {
			t.Fatalf("Failed to build rule: %v", err)
		}
		criteria := smartlist.Criteria{Match: smartlist.MatchAll, Rules: []smartlist.Rule{rule}}

		created, err := manager.CreateSmart("T Songs", criteria)
		if err != nil {
			t.Fatalf("Failed to create smart playlist: %v", err)
		}
		tracks, err := manager.Tracks(created.ID)
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != 2 {
			t.Errorf("Expected only track Two, got %v", tracks)
		}
	})
}
