package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	t.Parallel()

	shanghai := time.FixedZone("CST", 8*3600)

	tests := []struct {
		name string
		raw  string
		loc  *time.Location
		want string
	}{
		{name: "iso date", raw: "2024-06-01", loc: time.UTC, want: "2024-06-01"},
		{name: "slashes", raw: "2024/6/1", loc: time.UTC, want: "2024-06-01"},
		{name: "padded", raw: "  2024-01-31 ", loc: time.UTC, want: "2024-01-31"},
		{name: "utc timestamp converted to local day", raw: "2024-05-31T16:00:00.000Z", loc: shanghai, want: "2024-06-01"},
		{name: "nil location means utc", raw: "2024-05-31T16:00:00Z", loc: nil, want: "2024-05-31"},
		{name: "utc timestamp before local midnight", raw: "2024-05-31T15:59:59Z", loc: shanghai, want: "2024-05-31"},
		{name: "numeric offset", raw: "2024-06-30T20:00:00-04:00", loc: shanghai, want: "2024-07-01"},
		{name: "spaced offset", raw: "2024-05-31 20:00:00 +0000", loc: shanghai, want: "2024-06-01"},
		{name: "zoneless wall time stays on its day", raw: "2024-05-31 23:30:00", loc: shanghai, want: "2024-05-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDay(tt.raw, tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
			assert.Zero(t, got.Hour())
		})
	}
}

func TestParseDay_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "not a date", "2024-13-45"} {
		_, err := ParseDay(raw, time.UTC)
		require.Error(t, err, raw)
		assert.True(t, eris.Is(err, ErrBadDate), raw)
	}
}

func TestShowKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "festival", Show{Tag: "festival", Type: "livehouse"}.Kind())
	assert.Equal(t, "livehouse", Show{Type: "livehouse"}.Kind())
	assert.Equal(t, DefaultShowKind, Show{}.Kind())
}

func TestShowUnmarshal_FlexibleID(t *testing.T) {
	t.Parallel()

	var shows []Show
	err := json.Unmarshal([]byte(`[
		{"id": 42, "date": "2024-06-01", "city": "上海"},
		{"id": "abc", "date": "2024-06-02", "city": "北京"},
		{"id": null, "date": "2024-06-03", "city": "广州"}
	]`), &shows)
	require.NoError(t, err)
	require.Len(t, shows, 3)
	assert.Equal(t, "42", shows[0].ID.String())
	assert.Equal(t, "abc", shows[1].ID.String())
	assert.Empty(t, shows[2].ID)
}

func TestFlexString_RejectsObjects(t *testing.T) {
	t.Parallel()

	var f FlexString
	err := json.Unmarshal([]byte(`{"a":1}`), &f)
	assert.Error(t, err)
}

func TestPricing_Unmarshal(t *testing.T) {
	t.Parallel()

	var p Pricing
	require.NoError(t, json.Unmarshal([]byte(`{"num": 150000, "inDatabase": true}`), &p))
	assert.Equal(t, Price("150000"), p.Price)
	assert.True(t, p.IsKnown)

	require.NoError(t, json.Unmarshal([]byte(`{"num": "暂无报价", "inDatabase": false}`), &p))
	assert.Equal(t, Price("暂无报价"), p.Price)
	assert.False(t, p.IsKnown)
}

func TestPriceAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price  Price
		want   int
		wantOK bool
	}{
		{"12000", 12000, true},
		{"12000元", 12000, true},
		{" 8000 ", 8000, true},
		{"-50", -50, true},
		{"暂无报价", 0, false},
		{"", 0, false},
		{"1.5万", 1, true},
	}

	for _, tt := range tests {
		got, ok := PriceAmount(tt.price)
		assert.Equal(t, tt.wantOK, ok, string(tt.price))
		assert.Equal(t, tt.want, got, string(tt.price))
	}
}

func TestTotalPrice(t *testing.T) {
	t.Parallel()

	roster := []ArtistAssessment{
		{Name: "a", Price: "10000"},
		{Name: "b", Price: "暂无报价"},
		{Name: "c", Price: "2500元"},
	}
	assert.Equal(t, 12500, TotalPrice(roster))
	assert.Zero(t, TotalPrice(nil))
}

func TestArtistAssessment_CloneIsDeep(t *testing.T) {
	t.Parallel()

	score := 3
	a := ArtistAssessment{Name: "x", Shows: []Show{{City: "上海"}}, Score: &score, State: ScoreStateScored}
	c := a.Clone()
	c.Shows[0].City = "北京"
	*c.Score = 1

	assert.Equal(t, "上海", a.Shows[0].City)
	assert.Equal(t, 3, *a.Score)
	assert.True(t, a.Scored())
	assert.False(t, ArtistAssessment{State: ScoreStateScored}.Scored())
}

func TestArtistAssessment_CloneKeepsEmptyShows(t *testing.T) {
	t.Parallel()

	c := ArtistAssessment{Name: "x", Shows: []Show{}}.Clone()
	assert.NotNil(t, c.Shows)
	assert.Empty(t, c.Shows)
	assert.Nil(t, ArtistAssessment{Name: "y"}.Clone().Shows)
}

func TestTargetIsSet(t *testing.T) {
	t.Parallel()

	assert.True(t, Target{City: "北京", Date: "2024-06-15"}.IsSet())
	assert.False(t, Target{City: "北京"}.IsSet())
	assert.False(t, Target{City: " ", Date: "2024-06-15"}.IsSet())
}
