package smartlist

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

// FieldType classifies a rule field and determines its legal condition set.
type FieldType int

const (
	StringField FieldType = iota
	NumericField
	BooleanField
	DateField
)

// Field names a track attribute a rule can match against. The set is closed:
// rules are validated at construction, so an evaluated rule always carries a
// known field with a condition legal for its type.
type Field string

const (
	FieldTitle      Field = "title"
	FieldArtist     Field = "artist"
	FieldAlbum      Field = "album"
	FieldGenre      Field = "genre"
	FieldYear       Field = "year"
	FieldDuration   Field = "duration"
	FieldPlayCount  Field = "playCount"
	FieldFavorite   Field = "isFavorite"
	FieldLastPlayed Field = "lastPlayed"
	FieldDateAdded  Field = "dateAdded"
)

// Type returns the field's type class, and false for unknown field names.
func (f Field) Type() (FieldType, bool) {
	switch f {
	case FieldTitle, FieldArtist, FieldAlbum, FieldGenre:
		return StringField, true
	case FieldYear, FieldDuration, FieldPlayCount:
		return NumericField, true
	case FieldFavorite:
		return BooleanField, true
	case FieldLastPlayed, FieldDateAdded:
		return DateField, true
	default:
		return 0, false
	}
}

// Condition is a comparison operator applied to a field value.
type Condition string

const (
	Contains    Condition = "contains"
	Equals      Condition = "equals"
	StartsWith  Condition = "startsWith"
	EndsWith    Condition = "endsWith"
	GreaterThan Condition = "greaterThan"
	LessThan    Condition = "lessThan"
)

// legalConditions lists the condition set per field type.
var legalConditions = map[FieldType][]Condition{
	StringField:  {Contains, Equals, StartsWith, EndsWith},
	NumericField: {Equals, GreaterThan, LessThan},
	BooleanField: {Equals},
	// Dates support only the relative "N days" window. GreaterThan matches
	// tracks within the last N days, LessThan matches older ones; absolute
	// dates are a known limitation and are rejected at construction.
	DateField: {GreaterThan, LessThan},
}

// Rule is a single field/condition/value triple. Evaluation is pure: it never
// mutates the track and the same inputs always produce the same result.
type Rule struct {
	Field     Field     `json:"field"`
	Condition Condition `json:"condition"`
	Value     string    `json:"value"`
}

// NewRule builds a validated rule. Unknown fields, conditions illegal for the
// field's type and unparseable values are construction errors, so they cannot
// reach evaluation.
func NewRule(field Field, condition Condition, value string) (Rule, error) {
	rule := Rule{Field: field, Condition: condition, Value: value}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Validate checks the rule's field, condition and value shape.
func (r Rule) Validate() error {
	ft, ok := r.Field.Type()
	if !ok {
		return fmt.Errorf("unknown rule field: %q", r.Field)
	}

	legal := false
	for _, c := range legalConditions[ft] {
		if c == r.Condition {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("condition %q not valid for field %q", r.Condition, r.Field)
	}

	switch ft {
	case NumericField:
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			return fmt.Errorf("numeric rule value %q is not a number", r.Value)
		}
	case BooleanField:
		if _, err := strconv.ParseBool(r.Value); err != nil {
			return fmt.Errorf("boolean rule value %q is not true/false", r.Value)
		}
	case DateField:
		if _, err := parseDayWindow(r.Value); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether the track satisfies the rule. Rules that bypassed
// construction (e.g. decoded from stale persisted criteria) fail closed with
// a logged warning rather than matching anything.
func (r Rule) Matches(track models.Track, logger *logrus.Logger) bool {
	return r.matchesAt(track, time.Now(), logger)
}

func (r Rule) matchesAt(track models.Track, now time.Time, logger *logrus.Logger) bool {
	ft, ok := r.Field.Type()
	if !ok {
		if logger != nil {
			logger.WithField("field", string(r.Field)).Warn("Unknown smart playlist rule field")
		}
		return false
	}

	switch ft {
	case StringField:
		return matchString(r.stringValue(track), r.Condition, r.Value)
	case NumericField:
		return matchNumeric(r.numericValue(track), r.Condition, r.Value)
	case BooleanField:
		want, err := strconv.ParseBool(r.Value)
		if err != nil {
			return false
		}
		return track.Favorite == want
	case DateField:
		return matchDate(r.dateValue(track), r.Condition, r.Value, now)
	default:
		return false
	}
}

func (r Rule) stringValue(track models.Track) string {
	switch r.Field {
	case FieldTitle:
		return track.Title
	case FieldArtist:
		return track.Artist
	case FieldAlbum:
		return track.Album
	case FieldGenre:
		return track.Genre
	default:
		return ""
	}
}

func (r Rule) numericValue(track models.Track) float64 {
	switch r.Field {
	case FieldYear:
		return float64(track.Year)
	case FieldDuration:
		return float64(track.Duration)
	case FieldPlayCount:
		return float64(track.PlayCount)
	default:
		return 0
	}
}

func (r Rule) dateValue(track models.Track) time.Time {
	switch r.Field {
	case FieldLastPlayed:
		return track.LastPlayed
	case FieldDateAdded:
		return track.DateAdded
	default:
		return time.Time{}
	}
}

func matchString(value string, condition Condition, want string) bool {
	value = strings.ToLower(value)
	want = strings.ToLower(want)
	switch condition {
	case Contains:
		return strings.Contains(value, want)
	case Equals:
		return value == want
	case StartsWith:
		return strings.HasPrefix(value, want)
	case EndsWith:
		return strings.HasSuffix(value, want)
	default:
		return false
	}
}

func matchNumeric(value float64, condition Condition, wantStr string) bool {
	want, err := strconv.ParseFloat(wantStr, 64)
	if err != nil {
		// Unparseable values never match.
		return false
	}
	switch condition {
	case Equals:
		return value == want
	case GreaterThan:
		return value > want
	case LessThan:
		return value < want
	default:
		return false
	}
}

// matchDate evaluates the relative "N days" window. GreaterThan means the
// date falls within the last N days; LessThan means it is older. A zero date
// (never played) counts as the infinite past: it never falls within a window
// and is always older than any cutoff.
func matchDate(value time.Time, condition Condition, wantStr string, now time.Time) bool {
	days, err := parseDayWindow(wantStr)
	if err != nil {
		return false
	}
	cutoff := now.AddDate(0, 0, -days)

	switch condition {
	case GreaterThan:
		return !value.IsZero() && value.After(cutoff)
	case LessThan:
		return value.IsZero() || value.Before(cutoff)
	default:
		return false
	}
}

// parseDayWindow parses the "N days" (or "N day") relative-window form.
func parseDayWindow(value string) (int, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(value)))
	if len(fields) != 2 || (fields[1] != "days" && fields[1] != "day") {
		return 0, fmt.Errorf("date rule value %q must be of the form \"N days\"", value)
	}
	days, err := strconv.Atoi(fields[0])
	if err != nil || days < 0 {
		return 0, fmt.Errorf("date rule value %q must be of the form \"N days\"", value)
	}
	return days, nil
}
