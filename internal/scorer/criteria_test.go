package scorer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/artist-check/internal/geo"
)

func TestDefaultCriteria(t *testing.T) {
	c := DefaultCriteria()
	assert.Equal(t, 300, c.Distance1)
	assert.Equal(t, 600, c.Distance2)
	assert.Equal(t, 3, c.Time1)
	assert.Equal(t, 6, c.Time2)
	assert.Equal(t, 12, c.Time3)
	assert.Equal(t, 6, c.TimeRange)

	want := map[string]int{
		"d1t1": 0, "d1t2": 1, "d1t3": 2, "d1t4": 3,
		"d2t1": 1, "d2t2": 2, "d2t3": 3, "d2t4": 4,
		"d3t1": 2, "d3t2": 3, "d3t3": 4, "d3t4": 5,
	}
	assert.Equal(t, want, c.Scores.toMap())
	require.NoError(t, ValidateCriteria(c))
}

func TestDefaultCriteria_Monotonic(t *testing.T) {
	m := DefaultCriteria().Scores
	for d := 0; d < 3; d++ {
		for tb := 1; tb < 4; tb++ {
			assert.GreaterOrEqual(t, m[d][tb], m[d][tb-1], "time band worsens in row %d", d)
		}
	}
	for tb := 0; tb < 4; tb++ {
		for d := 1; d < 3; d++ {
			assert.GreaterOrEqual(t, m[d][tb], m[d-1][tb], "distance band worsens in column %d", tb)
		}
	}
}

func TestValidateCriteria(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Criteria)
		wantErr []string
	}{
		{name: "defaults", mutate: func(*Criteria) {}},
		{
			name:    "zero distance1",
			mutate:  func(c *Criteria) { c.Distance1 = 0 },
			wantErr: []string{"distance1 must be > 0"},
		},
		{
			name:    "distance2 not above distance1",
			mutate:  func(c *Criteria) { c.Distance1 = 1200 },
			wantErr: []string{"distance2 must be > distance1"},
		},
		{
			name:    "negative time1",
			mutate:  func(c *Criteria) { c.Time1 = -1 },
			wantErr: []string{"time1 must be > 0"},
		},
		{
			name:    "time thresholds out of order",
			mutate:  func(c *Criteria) { c.Time2 = 12; c.Time3 = 6 },
			wantErr: []string{"time3 must be > time2"},
		},
		{
			name:    "zero time range",
			mutate:  func(c *Criteria) { c.TimeRange = 0 },
			wantErr: []string{"timeRange must be > 0"},
		},
		{
			name:    "score out of range",
			mutate:  func(c *Criteria) { c.Scores[1][2] = 9; c.Scores[0][0] = -1 },
			wantErr: []string{"d1t1 must be between 0 and 5", "d2t3 must be between 0 and 5"},
		},
		{
			name: "collects every problem",
			mutate: func(c *Criteria) {
				c.Distance2 = 0
				c.Time1 = 0
			},
			wantErr: []string{"distance2 must be > 0", "time1 must be > 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCriteria()
			tt.mutate(&c)
			err := ValidateCriteria(c)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestCriteriaBands(t *testing.T) {
	c := DefaultCriteria()

	assert.Equal(t, geo.BandInCity, c.DistanceBand(0))
	assert.Equal(t, geo.BandNearby, c.DistanceBand(301))
	assert.Equal(t, geo.BandWide, c.DistanceBand(1067))

	tests := []struct {
		months int
		want   TimeBand
	}{
		{0, TimeRecent},
		{3, TimeRecent},
		{4, TimeMid},
		{6, TimeMid},
		{7, TimeOlder},
		{12, TimeOlder},
		{13, TimeStale},
		{120, TimeStale},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.TimeBand(tt.months), "months=%d", tt.months)
	}
}

func TestScoreMatrix_JSON(t *testing.T) {
	c := DefaultCriteria()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"distance1": 300, "distance2": 600,
		"time1": 3, "time2": 6, "time3": 12, "timeRange": 6,
		"scores": {
			"d1t1": 0, "d1t2": 1, "d1t3": 2, "d1t4": 3,
			"d2t1": 1, "d2t2": 2, "d2t3": 3, "d2t4": 4,
			"d3t1": 2, "d3t2": 3, "d3t3": 4, "d3t4": 5
		}
	}`, string(data))

	var back Criteria
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}

func TestScoreMatrix_RejectsIncompleteMatrix(t *testing.T) {
	var m ScoreMatrix
	err := json.Unmarshal([]byte(`{"d1t1":0,"d1t2":1,"d1t3":2,"d1t4":3,"d2t1":1}`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing d2t2, d2t3, d2t4, d3t1")
	assert.Equal(t, ScoreMatrix{}, m, "target untouched on error")

	full := DefaultCriteria().Scores.toMap()
	full["d4t1"] = 1
	data, err := json.Marshal(full)
	require.NoError(t, err)
	err = json.Unmarshal(data, &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys d4t1")

	err = json.Unmarshal([]byte(`{"d1t1":"zero"}`), &m)
	assert.Error(t, err)
}

func TestScoreMatrix_YAML(t *testing.T) {
	doc := `
distance1: 1200
distance2: 1500
time1: 3
time2: 6
time3: 12
timeRange: 6
scores:
  d1t1: 0
  d1t2: 1
  d1t3: 2
  d1t4: 3
  d2t1: 1
  d2t2: 2
  d2t3: 3
  d2t4: 4
  d3t1: 2
  d3t2: 3
  d3t3: 4
  d3t4: 5
`
	var c Criteria
	require.NoError(t, yaml.Unmarshal([]byte(doc), &c))
	assert.Equal(t, 1200, c.Distance1)
	assert.Equal(t, DefaultCriteria().Scores, c.Scores)

	out, err := yaml.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(out), "d3t4: 5")

	var missing Criteria
	err = yaml.Unmarshal([]byte("scores:\n  d1t1: 0\n"), &missing)
	assert.Error(t, err)
}

func TestCellKey(t *testing.T) {
	assert.Equal(t, "d1t1", CellKey(geo.BandInCity, TimeRecent))
	assert.Equal(t, "d3t4", CellKey(geo.BandWide, TimeStale))
	assert.Equal(t, 4, DefaultCriteria().Scores.At(geo.BandWide, TimeOlder))
}
