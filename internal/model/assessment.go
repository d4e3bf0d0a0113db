// Package model defines the domain types shared by the scoring engine, the
// roster and the backend client.
package model

import (
	"slices"
	"strings"
	"time"
)

// ScoreState explains whether an assessment carries a numeric score.
type ScoreState string

const (
	ScoreStateScored        ScoreState = "scored"
	ScoreStatePending       ScoreState = "pending"         // no target context yet
	ScoreStateNotInDatabase ScoreState = "not_in_database" // unknown to the pricing system
	ScoreStateFetchFailed   ScoreState = "fetch_failed"    // shows or pricing unavailable
)

// ArtistAssessment is one roster entry. Score is nil unless State is
// ScoreStateScored.
type ArtistAssessment struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Shows   []Show     `json:"shows"`
	Price   Price      `json:"price"`
	IsKnown bool       `json:"isKnown"`
	Score   *int       `json:"score"`
	State   ScoreState `json:"state"`
	AddedAt time.Time  `json:"addedAt"`
}

// Scored reports whether the assessment carries a numeric score.
func (a ArtistAssessment) Scored() bool {
	return a.State == ScoreStateScored && a.Score != nil
}

// Clone returns a copy that shares no slices or pointers with a.
func (a ArtistAssessment) Clone() ArtistAssessment {
	c := a
	c.Shows = slices.Clone(a.Shows)
	if a.Score != nil {
		s := *a.Score
		c.Score = &s
	}
	return c
}

// Pricing is the backend's answer to "what does this artist cost".
type Pricing struct {
	Price   Price `json:"num"`
	IsKnown bool  `json:"inDatabase"`
}

// Target is the city and date a roster is evaluated against.
type Target struct {
	City string `json:"city"`
	Date string `json:"date"`
}

// IsSet reports whether both city and date are present.
func (t Target) IsSet() bool {
	return strings.TrimSpace(t.City) != "" && strings.TrimSpace(t.Date) != ""
}

// Price is a quote as delivered by the backend: a number, or free text such
// as "12000元" or "no quote yet".
type Price = FlexString

// PriceAmount returns the leading integer of a price, the way a lenient
// integer parse would read "12000元". ok is false when no digits lead.
func PriceAmount(p Price) (amount int, ok bool) {
	s := strings.TrimSpace(string(p))
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		amount = amount*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		amount = -amount
	}
	return amount, true
}

// TotalPrice sums the numeric part of every price, ignoring non-numeric ones.
func TotalPrice(assessments []ArtistAssessment) int {
	total := 0
	for _, a := range assessments {
		if n, ok := PriceAmount(a.Price); ok {
			total += n
		}
	}
	return total
}
