package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	base := []Option{WithBaseURL(srv.URL), WithRetry(fastRetry()), WithRateLimit(0, 0)}
	return NewClient(append(base, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFetchShows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/performances/shows", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "万能青年旅店", q.Get("artist"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "date", q.Get("sort"))
		assert.Equal(t, "DESC", q.Get("order"))
		writeJSON(w, http.StatusOK, `{"success":true,"data":[
			{"id":17,"artist":"万能青年旅店","date":"2024-06-01","city":"上海","venue":"MAO"},
			{"id":"a9","artist":"万能青年旅店","date":"2024-01-01","city":"北京","type":"livehouse"}
		]}`)
	}, WithShowLimit(50))

	shows, err := c.FetchShows(context.Background(), "万能青年旅店")
	require.NoError(t, err)
	require.Len(t, shows, 2)
	assert.Equal(t, model.FlexString("17"), shows[0].ID)
	assert.Equal(t, "上海", shows[0].City)
	assert.Equal(t, "livehouse", shows[1].Kind())
}

func TestFetchShows_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"rejected", http.StatusOK, `{"success":false,"message":"bad artist"}`, "request rejected: bad artist"},
		{"not found", http.StatusNotFound, `nope`, "unexpected status 404"},
		{"malformed", http.StatusOK, `{"success":true,"data":{`, "decode response"},
		{"wrong data shape", http.StatusOK, `{"success":true,"data":{"city":"x"}}`, "decode shows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			shows, err := c.FetchShows(context.Background(), "someone")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), `fetch shows for "someone"`)
			assert.Nil(t, shows)
		})
	}
}

func TestFetchShows_EmptyData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":null}`)
	})
	shows, err := c.FetchShows(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, shows)
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, `busy`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true,"data":[]}`)
	})
	_, err := c.ListPerformances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, `bad`)
	})
	_, err := c.ListPerformances(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBreakerStopsCalls(t *testing.T) {
	var calls atomic.Int32
	b := resilience.NewBreaker(2, time.Hour)
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `down`)
	}, WithBreaker(b), WithRetry(resilience.RetryConfig{MaxAttempts: 1}))

	for i := 0; i < 4; i++ {
		_, _ = c.FetchShows(context.Background(), "x")
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, resilience.BreakerOpen, b.State())

	_, err := c.FetchShows(context.Background(), "x")
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
}

func TestCityShows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "杭州", q.Get("city"))
		assert.Equal(t, "600", q.Get("distance"))
		assert.Equal(t, "100", q.Get("limit"))
		writeJSON(w, http.StatusOK, `{"success":true,"data":[{"city":"上海","date":"2024-06-01"}]}`)
	})
	shows, err := c.CityShows(context.Background(), "杭州", 600, 0)
	require.NoError(t, err)
	assert.Len(t, shows, 1)
}

func TestFetchPricing(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantPrice model.Price
		wantKnown bool
		wantErr   bool
	}{
		{"known numeric", http.StatusOK, `{"success":true,"num":12000,"inDatabase":true}`, "12000", true, false},
		{"known text", http.StatusOK, `{"success":true,"num":"8万","inDatabase":true}`, "8万", true, false},
		{"not found envelope", http.StatusOK, `{"success":false}`, NoQuote, false, false},
		{"not found status", http.StatusNotFound, `{}`, NoQuote, false, false},
		{"server error", http.StatusInternalServerError, `oops`, "", false, true},
		{"garbage", http.StatusOK, `<html>`, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/art/新裤子", r.URL.Path)
				writeJSON(w, tt.status, tt.body)
			})
			p, err := c.FetchPricing(context.Background(), "新裤子")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, p.Price)
			assert.Equal(t, tt.wantKnown, p.IsKnown)
		})
	}
}

func TestFetchPricing_EscapesName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/art/AC%2FDC", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, `{"success":true,"num":1,"inDatabase":true}`)
	})
	_, err := c.FetchPricing(context.Background(), "AC/DC")
	require.NoError(t, err)
}

func TestSetPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/art/price", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"artist": "草东没有派对", "price": "15000"}, body)
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})
	require.NoError(t, c.SetPrice(context.Background(), "草东没有派对", "15000"))
}

func TestUpdateAndDeleteShow(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var s model.Show
			require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
			assert.Equal(t, "成都", s.City)
		}
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})
	ctx := context.Background()
	require.NoError(t, c.UpdateShow(ctx, model.Show{ID: "42", City: "成都", Date: "2024-07-01"}))
	require.NoError(t, c.DeleteShow(ctx, "42"))
	assert.Equal(t, []string{"PUT /api/shows/42", "DELETE /api/shows/42"}, seen)

	assert.Error(t, c.UpdateShow(ctx, model.Show{City: "成都"}))
	assert.Error(t, c.DeleteShow(ctx, ""))
}

func TestCreatePerformance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/performances", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "刺猬", r.FormValue("artist"))
		assert.Equal(t, "2024-08-09", r.FormValue("date"))
		assert.Equal(t, "武汉", r.FormValue("city"))
		f, hdr, err := r.FormFile("poster")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "poster.png", hdr.Filename)
		assert.Equal(t, "PNG", string(data))
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})
	err := c.CreatePerformance(context.Background(), NewPerformance{
		Artist: "刺猬", Date: "2024-08-09", Province: "湖北", City: "武汉", Venue: "VOX",
		Poster: strings.NewReader("PNG"), PosterName: "poster.png",
	})
	require.NoError(t, err)

	err = c.CreatePerformance(context.Background(), NewPerformance{Artist: "刺猬"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date is required")
}

func TestObserver(t *testing.T) {
	var ops []string
	var codes []int
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[]}`)
	}, WithObserver(func(op string, status int, _ time.Duration, err error) {
		ops = append(ops, op)
		codes = append(codes, status)
		assert.NoError(t, err)
	}))
	_, err := c.ListPerformances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"list_performances"}, ops)
	assert.Equal(t, []int{200}, codes)
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchShows(ctx, "x")
	require.Error(t, err)
}

func TestListArtists(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shows/artists", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"data":[
			{"id":3,"name":"万能青年旅店","latestPerformance":"2024-06-01T12:00:00.000Z","city":"上海",
			 "performances":[{"id":9,"date":"2024-06-01","city":"上海"},{"id":8,"date":"2024-01-01","city":"北京"}]}
		]}`)
	})

	artists, err := c.ListArtists(context.Background())
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, model.FlexString("3"), artists[0].ID)
	assert.Equal(t, "万能青年旅店", artists[0].Name)
	require.Len(t, artists[0].Performances, 2)
	assert.Equal(t, "北京", artists[0].Performances[1].City)
}

func TestRecentShows(t *testing.T) {
	var limit string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/performances/all-shows", r.URL.Path)
		assert.Equal(t, "date", r.URL.Query().Get("sort"))
		assert.Equal(t, "DESC", r.URL.Query().Get("order"))
		limit = r.URL.Query().Get("limit")
		writeJSON(w, http.StatusOK, `{"success":true,"data":[{"artist":"A","date":"2024-06-01","city":"上海"}]}`)
	})

	shows, err := c.RecentShows(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, shows, 1)
	assert.Equal(t, "20", limit)

	_, err = c.RecentShows(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "5", limit)
}
