package smartlist

import (
	"testing"
	"time"

	"cadenza/pkg/models"
)

type staticCatalog []models.Track

func (c staticCatalog) AllTracks() []models.Track {
	return c
}

func TestBuilderMaterialize(t *testing.T) {
	now := time.Now()
	catalog := staticCatalog{
		{ID: 1, Title: "One", PlayCount: 0},
		{ID: 2, Title: "Two", PlayCount: 2},
		{ID: 3, Title: "Three", PlayCount: 3},
		{ID: 4, Title: "Four", PlayCount: 5, Favorite: true},
		{ID: 5, Title: "Five", PlayCount: 5},
		{ID: 6, Title: "Six", PlayCount: 10, LastPlayed: now.Add(-time.Hour)},
	}
	builder := NewBuilder(catalog, nil)

	t.Run("MostPlayed", func(t *testing.T) {
		result := builder.Materialize(MostPlayedCriteria())
		// Threshold is at least 3 plays: 0 and 2 are excluded.
		if len(result) != 4 {
			t.Fatalf("Expected 4 tracks, got %d", len(result))
		}
		if result[0].ID != 6 {
			t.Errorf("Expected the 10-play track first, got %d", result[0].ID)
		}
		// Equal play counts keep catalog order.
		if result[1].ID != 4 || result[2].ID != 5 {
			t.Errorf("Expected stable tie order [4 5], got [%d %d]", result[1].ID, result[2].ID)
		}
		if result[3].PlayCount != 3 {
			t.Errorf("Expected the 3-play track to be included, got %d plays", result[3].PlayCount)
		}
	})

	t.Run("Favorites", func(t *testing.T) {
		result := builder.Materialize(FavoritesCriteria())
		if len(result) != 1 || result[0].ID != 4 {
			t.Errorf("Expected only the favorited track, got %d entries", len(result))
		}
	})

	t.Run("RecentlyPlayed", func(t *testing.T) {
		result := builder.Materialize(RecentlyPlayedCriteria())
		if len(result) != 1 || result[0].ID != 6 {
			t.Errorf("Expected only the recently played track, got %d entries", len(result))
		}
	})

	t.Run("NilCatalog", func(t *testing.T) {
		empty := NewBuilder(nil, nil)
		if result := empty.Materialize(FavoritesCriteria()); result != nil {
			t.Errorf("Expected nil result without a catalog, got %d entries", len(result))
		}
	})
}

func TestBuilderContains(t *testing.T) {
	builder := NewBuilder(staticCatalog{}, nil)
	criteria := MostPlayedCriteria()

	// Contains ignores the limit: membership is about the rule set only.
	if !builder.Contains(criteria, models.Track{PlayCount: 3}) {
		t.Error("Expected 3 plays to qualify")
	}
	if builder.Contains(criteria, models.Track{PlayCount: 2}) {
		t.Error("Expected 2 plays not to qualify")
	}
}
