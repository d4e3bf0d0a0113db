package model

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rotisserie/eris"
)

// ErrBadDate is returned when a show or target date cannot be parsed.
var ErrBadDate = eris.New("model: unparseable date")

// DefaultShowKind labels shows that carry neither a tag nor a type.
const DefaultShowKind = "show"

// Show is a single performance event by an artist.
type Show struct {
	ID       FlexString `json:"id,omitempty"`
	Artist   string     `json:"artist,omitempty"`
	Name     string     `json:"name,omitempty"`
	Date     string     `json:"date"`
	Province string     `json:"province,omitempty"`
	City     string     `json:"city"`
	Venue    string     `json:"venue,omitempty"`
	Tag      string     `json:"tag,omitempty"`
	Type     string     `json:"type,omitempty"`
	Lineup   string     `json:"lineup,omitempty"`
}

// Day returns the civil date of the show in loc.
func (s Show) Day(loc *time.Location) (time.Time, error) {
	return ParseDay(s.Date, loc)
}

// Kind returns the show's tag, falling back to its type.
func (s Show) Kind() string {
	switch {
	case s.Tag != "":
		return s.Tag
	case s.Type != "":
		return s.Type
	default:
		return DefaultShowKind
	}
}

// ParseDay parses a loosely formatted date ("2024-06-01",
// "2024-05-31T16:00:00.000Z", "2024/6/1") and returns midnight of that
// calendar day in loc. Timestamps carrying a zone are converted to loc
// before the day is taken.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, eris.Wrap(ErrBadDate, "empty date")
	}
	t, err := parseInstant(raw, loc)
	if err != nil {
		return time.Time{}, eris.Wrapf(ErrBadDate, "%q: %v", raw, err)
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// zoneSuffix matches a trailing UTC designator or numeric offset on a
// timestamp that has a clock part.
var zoneSuffix = regexp.MustCompile(`(?i)\d:\d{2}(?:\.\d+)?\s*(?:z|[+-]\d{2}:?\d{2})$`)

// parseInstant reads zoned timestamps as absolute instants and everything
// else as wall time in loc.
func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if !zoneSuffix.MatchString(raw) {
		return dateparse.ParseIn(raw, loc)
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return dateparse.ParseIn(raw, time.UTC)
}

// FlexString decodes a JSON string or number into a string. The backend is
// inconsistent about identifiers and prices.
type FlexString string

// UnmarshalJSON accepts strings, numbers and null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode string")
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrapf(err, "model: expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the raw value.
func (f FlexString) String() string { return string(f) }
