package smartlist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// MatchType combines a criteria's rules: ALL requires every rule to pass,
// ANY requires at least one.
type MatchType string

const (
	MatchAll MatchType = "all"
	MatchAny MatchType = "any"
)

// SortDirection orders a criteria's results.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Criteria is a smart playlist's rule set plus optional sorting and limiting.
type Criteria struct {
	Match   MatchType     `json:"match"`
	Rules   []Rule        `json:"rules"`
	SortBy  Field         `json:"sortBy,omitempty"`
	SortDir SortDirection `json:"sortDir,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

// Validate checks the criteria's match type, rules and sort field.
func (c Criteria) Validate() error {
	if c.Match != MatchAll && c.Match != MatchAny {
		return fmt.Errorf("invalid match type: %q", c.Match)
	}
	for _, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	if c.SortBy != "" {
		if _, ok := c.SortBy.Type(); !ok {
			return fmt.Errorf("unknown sort field: %q", c.SortBy)
		}
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// Matches reports whether a track satisfies the criteria's rule set per the
// match type. A criteria with no rules matches everything.
func (c Criteria) Matches(track models.Track, logger *logrus.Logger) bool {
	return c.matchesAt(track, time.Now(), logger)
}

func (c Criteria) matchesAt(track models.Track, now time.Time, logger *logrus.Logger) bool {
	if len(c.Rules) == 0 {
		return true
	}
	for _, rule := range c.Rules {
		matched := rule.matchesAt(track, now, logger)
		if c.Match == MatchAll && !matched {
			return false
		}
		if c.Match == MatchAny && matched {
			return true
		}
	}
	return c.Match == MatchAll
}

// Apply filters, sorts and limits the given tracks per the criteria. The
// input slice is not modified; limiting happens only after filter and sort.
func (c Criteria) Apply(tracks []models.Track, logger *logrus.Logger) []models.Track {
	now := time.Now()

	var result []models.Track
	for _, track := range tracks {
		if c.matchesAt(track, now, logger) {
			result = append(result, track)
		}
	}

	c.Sort(result)

	if c.Limit > 0 && len(result) > c.Limit {
		result = result[:c.Limit]
	}
	return result
}

// Sort orders tracks in place by the criteria's sort field. The sort is
// stable so ties keep their original relative order.
func (c Criteria) Sort(tracks []models.Track) {
	if c.SortBy == "" {
		return
	}
	ft, ok := c.SortBy.Type()
	if !ok {
		return
	}

	less := func(a, b models.Track) bool {
		rule := Rule{Field: c.SortBy}
		switch ft {
		case StringField:
			return strings.ToLower(rule.stringValue(a)) < strings.ToLower(rule.stringValue(b))
		case NumericField:
			return rule.numericValue(a) < rule.numericValue(b)
		case BooleanField:
			return !a.Favorite && b.Favorite
		case DateField:
			// Zero times (never played) sort as the infinite past.
			return rule.dateValue(a).Before(rule.dateValue(b))
		default:
			return false
		}
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		if c.SortDir == SortDescending {
			return less(tracks[j], tracks[i])
		}
		return less(tracks[i], tracks[j])
	})
}

// Encode serializes the criteria to its persisted JSON form.
func (c Criteria) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode criteria: %w", err)
	}
	return string(data), nil
}

// DecodeCriteria parses persisted criteria JSON. Decoded rules are validated
// so stale or hand-edited records fail here instead of at evaluation.
func DecodeCriteria(encoded string) (Criteria, error) {
	var criteria Criteria
	if err := json.Unmarshal([]byte(encoded), &criteria); err != nil {
		return Criteria{}, fmt.Errorf("failed to decode criteria: %w", err)
	}
	if err := criteria.Validate(); err != nil {
		return Criteria{}, err
	}
	return criteria, nil
}
