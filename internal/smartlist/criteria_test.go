package smartlist

import (
	"testing"
	"time"

	"cadenza/pkg/models"
)

func TestCriteriaMatching(t *testing.T) {
	track := models.Track{Title: "So What", Artist: "Miles Davis", Genre: "Jazz", Year: 1959}

	jazzRule, _ := NewRule(FieldGenre, Equals, "jazz")
	rockRule, _ := NewRule(FieldGenre, Equals, "rock")
	oldRule, _ := NewRule(FieldYear, LessThan, "1970")

	t.Run("AllRequiresEveryRule", func(t *testing.T) {
		criteria := Criteria{Match: MatchAll, Rules: []Rule{jazzRule, oldRule}}
		if !criteria.Matches(track, nil) {
			t.Error("Expected both rules to match")
		}
		criteria = Criteria{Match: MatchAll, Rules: []Rule{jazzRule, rockRule}}
		if criteria.Matches(track, nil) {
			t.Error("Expected one failing rule to reject the track under ALL")
		}
	})

	t.Run("AnyRequiresOneRule", func(t *testing.T) {
		criteria := Criteria{Match: MatchAny, Rules: []Rule{rockRule, jazzRule}}
		if !criteria.Matches(track, nil) {
			t.Error("Expected one matching rule to accept the track under ANY")
		}
		criteria = Criteria{Match: MatchAny, Rules: []Rule{rockRule}}
		if criteria.Matches(track, nil) {
			t.Error("Expected no matching rules to reject the track under ANY")
		}
	})

	t.Run("EmptyRulesMatchEverything", func(t *testing.T) {
		criteria := Criteria{Match: MatchAll}
		if !criteria.Matches(track, nil) {
			t.Error("Expected empty rule set to match")
		}
	})
}

func TestCriteriaApply(t *testing.T) {
	tracks := []models.Track{
		{ID: 1, Title: "Delta", PlayCount: 0},
		{ID: 2, Title: "Alpha", PlayCount: 2},
		{ID: 3, Title: "Charlie", PlayCount: 3},
		{ID: 4, Title: "Bravo", PlayCount: 5},
		{ID: 5, Title: "Echo", PlayCount: 5},
		{ID: 6, Title: "Foxtrot", PlayCount: 10},
	}

	t.Run("FilterSortLimit", func(t *testing.T) {
		rule, _ := NewRule(FieldPlayCount, GreaterThan, "2")
		criteria := Criteria{
			Match:   MatchAll,
			Rules:   []Rule{rule},
			SortBy:  FieldPlayCount,
			SortDir: SortDescending,
			Limit:   3,
		}

		result := criteria.Apply(tracks, nil)
		if len(result) != 3 {
			t.Fatalf("Expected 3 tracks, got %d", len(result))
		}
		if result[0].PlayCount != 10 {
			t.Errorf("Expected most played first, got %d plays", result[0].PlayCount)
		}
		// Both 5-play tracks survive the limit; the stable sort keeps their
		// input order.
		if result[1].ID != 4 || result[2].ID != 5 {
			t.Errorf("Expected stable tie order [4 5], got [%d %d]", result[1].ID, result[2].ID)
		}
	})

	t.Run("InputSliceUntouched", func(t *testing.T) {
		criteria := Criteria{
			Match:   MatchAll,
			SortBy:  FieldPlayCount,
			SortDir: SortDescending,
		}
		criteria.Apply(tracks, nil)
		if tracks[0].ID != 1 {
			t.Error("Expected Apply to leave the input slice unsorted")
		}
	})

	t.Run("LimitAfterSort", func(t *testing.T) {
		criteria := Criteria{
			Match:   MatchAll,
			SortBy:  FieldTitle,
			SortDir: SortAscending,
			Limit:   2,
		}
		result := criteria.Apply(tracks, nil)
		if len(result) != 2 || result[0].Title != "Alpha" || result[1].Title != "Bravo" {
			t.Errorf("Expected [Alpha Bravo], got %v", titles(result))
		}
	})
}

func TestCriteriaSort(t *testing.T) {
	t.Run("StringsCaseInsensitive", func(t *testing.T) {
		tracks := []models.Track{
			{Title: "zebra"},
			{Title: "Apple"},
			{Title: "mango"},
		}
		criteria := Criteria{SortBy: FieldTitle, SortDir: SortAscending}
		criteria.Sort(tracks)
		if tracks[0].Title != "Apple" || tracks[2].Title != "zebra" {
			t.Errorf("Expected case-insensitive order, got %v", titles(tracks))
		}
	})

	t.Run("ZeroDatesSortFirst", func(t *testing.T) {
		now := time.Now()
		tracks := []models.Track{
			{ID: 1, LastPlayed: now},
			{ID: 2},
			{ID: 3, LastPlayed: now.Add(-time.Hour)},
		}
		criteria := Criteria{SortBy: FieldLastPlayed, SortDir: SortAscending}
		criteria.Sort(tracks)
		if tracks[0].ID != 2 {
			t.Errorf("Expected never-played track first, got %d", tracks[0].ID)
		}
		if tracks[2].ID != 1 {
			t.Errorf("Expected most recent track last, got %d", tracks[2].ID)
		}
	})
}

func TestDecodeCriteria(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		original := MostPlayedCriteria()
		encoded, err := original.Encode()
		if err != nil {
			t.Fatalf("Failed to encode: %v", err)
		}
		decoded, err := DecodeCriteria(encoded)
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if decoded.Limit != original.Limit || len(decoded.Rules) != len(original.Rules) {
			t.Error("Decoded criteria differs from original")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		if _, err := DecodeCriteria("{not json"); err == nil {
			t.Error("Expected invalid JSON to fail")
		}
	})

	t.Run("StaleFieldRejected", func(t *testing.T) {
		encoded := `{"match":"all","rules":[{"field":"mood","condition":"equals","value":"calm"}]}`
		if _, err := DecodeCriteria(encoded); err == nil {
			t.Error("Expected unknown persisted field to fail validation")
		}
	})

	t.Run("InvalidMatchType", func(t *testing.T) {
		encoded := `{"match":"some","rules":[]}`
		if _, err := DecodeCriteria(encoded); err == nil {
			t.Error("Expected unknown match type to fail validation")
		}
	})
}

func titles(tracks []models.Track) []string {
	out := make([]string, len(tracks))
	for i, track := range tracks {
		out[i] = track.Title
	}
	return out
}
