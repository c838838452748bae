package smartlist

import (
	"fmt"
	"strconv"

	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// Built-in smart playlist parameters.
const (
	mostPlayedMinCount  = 3
	mostPlayedLimit     = 25
	recentlyPlayedDays  = 7
	recentlyPlayedLimit = 25
)

// Catalog is the track source a builder materializes playlists from.
type Catalog interface {
	AllTracks() []models.Track
}

// Builder materializes smart playlist track lists from the full catalog.
type Builder struct {
	catalog Catalog
	logger  *logrus.Logger
}

// NewBuilder creates a smart playlist builder over the given catalog.
func NewBuilder(catalog Catalog, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{catalog: catalog, logger: logger}
}

// Materialize produces the criteria's track list from the full catalog. An
// unavailable catalog yields an empty list, not an error: there is simply
// nothing to show.
func (b *Builder) Materialize(criteria Criteria) []models.Track {
	if b.catalog == nil {
		return nil
	}
	tracks := b.catalog.AllTracks()
	if len(tracks) == 0 {
		return nil
	}
	return criteria.Apply(tracks, b.logger)
}

// Contains reports whether a single track belongs to the criteria's result
// set, ignoring sort and limit. Used for incremental membership checks so a
// single play-count bump doesn't trigger a full rebuild.
func (b *Builder) Contains(criteria Criteria, track models.Track) bool {
	return criteria.Matches(track, b.logger)
}

// FavoritesCriteria matches favorited tracks, sorted by title.
func FavoritesCriteria() Criteria {
	return Criteria{
		Match: MatchAll,
		Rules: []Rule{
			{Field: FieldFavorite, Condition: Equals, Value: "true"},
		},
		SortBy:  FieldTitle,
		SortDir: SortAscending,
	}
}

// MostPlayedCriteria matches tracks played at least 3 times, most played
// first, capped at 25.
func MostPlayedCriteria() Criteria {
	return Criteria{
		Match: MatchAll,
		Rules: []Rule{
			// GreaterThan is strict, so the threshold is minCount-1.
			{Field: FieldPlayCount, Condition: GreaterThan, Value: strconv.Itoa(mostPlayedMinCount - 1)},
		},
		SortBy:  FieldPlayCount,
		SortDir: SortDescending,
		Limit:   mostPlayedLimit,
	}
}

// RecentlyPlayedCriteria matches tracks played within the last 7 days, most
// recent first, capped at 25.
func RecentlyPlayedCriteria() Criteria {
	return Criteria{
		Match: MatchAll,
		Rules: []Rule{
			{Field: FieldLastPlayed, Condition: GreaterThan, Value: fmt.Sprintf("%d days", recentlyPlayedDays)},
		},
		SortBy:  FieldLastPlayed,
		SortDir: SortDescending,
		Limit:   recentlyPlayedLimit,
	}
}
