// Package backend is a client for the performance-records REST API that
// supplies show histories and pricing.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/resilience"
)

const (
	defaultBaseURL   = "https://art-back.hkg1.zeabur.app"
	defaultShowLimit = 100

	// DefaultRecentLimit is how many records RecentShows asks for when no
	// limit is given.
	DefaultRecentLimit = 20

	// NoQuote is the price reported for artists the pricing system does not know.
	NoQuote model.Price = "暂无报价"
)

// Client talks to the performance-records backend.
type Client interface {
	// FetchShows returns an artist's shows, newest first.
	FetchShows(ctx context.Context, artist string) ([]model.Show, error)
	// CityShows returns shows within radiusKM of city.
	CityShows(ctx context.Context, city string, radiusKM, limit int) ([]model.Show, error)
	// ListPerformances returns every performance record.
	ListPerformances(ctx context.Context) ([]model.Show, error)
	// ListArtists returns the artist directory with each artist's records.
	ListArtists(ctx context.Context) ([]ArtistRecord, error)
	// RecentShows returns the most recent records across all artists,
	// newest first.
	RecentShows(ctx context.Context, limit int) ([]model.Show, error)
	// FetchPricing never fails for unknown artists; they come back as
	// NoQuote with IsKnown false.
	FetchPricing(ctx context.Context, artist string) (model.Pricing, error)
	SetPrice(ctx context.Context, artist string, price model.Price) error
	CreatePerformance(ctx context.Context, p NewPerformance) error
	UpdateShow(ctx context.Context, show model.Show) error
	DeleteShow(ctx context.Context, id string) error
}

// ArtistRecord is one entry of the artist directory: the artist, their
// latest performance and every record held for them.
type ArtistRecord struct {
	ID                model.FlexString `json:"id"`
	Name              string           `json:"name"`
	Avatar            string           `json:"avatar,omitempty"`
	LatestPerformance string           `json:"latestPerformance,omitempty"`
	PerformanceType   string           `json:"performanceType,omitempty"`
	Province          string           `json:"province,omitempty"`
	City              string           `json:"city,omitempty"`
	Venue             string           `json:"venue,omitempty"`
	Poster            string           `json:"poster,omitempty"`
	Performances      []model.Show     `json:"performances"`
}

// StatusError is a non-2xx answer that is not worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "backend: unexpected status " + strconv.Itoa(e.Code) + ": " + e.Body
}

// Observer is told about every attempt made against the backend.
type Observer func(op string, status int, elapsed time.Duration, err error)

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.http.Timeout = d }
}

// WithRateLimit caps requests per second. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

// WithBreaker routes every attempt through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) { c.breaker = b }
}

// WithShowLimit sets how many shows FetchShows asks for.
func WithShowLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.showLimit = n
		}
	}
}

// WithObserver installs a hook called after every attempt.
func WithObserver(o Observer) Option {
	return func(c *httpClient) { c.observe = o }
}

type httpClient struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.Breaker
	showLimit int
	observe   Observer
}

// NewClient creates a backend client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(5, 5),
		retry:     resilience.DefaultRetryConfig(),
		showLimit: defaultShowLimit,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type pricingEnvelope struct {
	Success bool `json:"success"`
	model.Pricing
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func (c *httpClient) FetchShows(ctx context.Context, artist string) ([]model.Show, error) {
	q := url.Values{}
	q.Set("artist", artist)
	q.Set("limit", strconv.Itoa(c.showLimit))
	q.Set("sort", "date")
	q.Set("order", "DESC")
	shows, err := c.shows(ctx, request{op: "fetch_shows", method: http.MethodGet, path: "/api/performances/shows", query: q})
	return shows, eris.Wrapf(err, "backend: fetch shows for %q", artist)
}

func (c *httpClient) CityShows(ctx context.Context, city string, radiusKM, limit int) ([]model.Show, error) {
	if limit <= 0 {
		limit = c.showLimit
	}
	q := url.Values{}
	q.Set("city", city)
	q.Set("distance", strconv.Itoa(radiusKM))
	q.Set("limit", strconv.Itoa(limit))
	shows, err := c.shows(ctx, request{op: "city_shows", method: http.MethodGet, path: "/api/performances/shows", query: q})
	return shows, eris.Wrapf(err, "backend: city shows for %q", city)
}

func (c *httpClient) ListPerformances(ctx context.Context) ([]model.Show, error) {
	shows, err := c.shows(ctx, request{op: "list_performances", method: http.MethodGet, path: "/api/performances"})
	return shows, eris.Wrap(err, "backend: list performances")
}

func (c *httpClient) ListArtists(ctx context.Context) ([]ArtistRecord, error) {
	data, err := c.envelope(ctx, request{op: "list_artists", method: http.MethodGet, path: "/api/shows/artists"})
	if err != nil {
		return nil, eris.Wrap(err, "backend: list artists")
	}
	var out []ArtistRecord
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "backend: decode artists")
	}
	return out, nil
}

func (c *httpClient) RecentShows(ctx context.Context, limit int) ([]model.Show, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "date")
	q.Set("order", "DESC")
	shows, err := c.shows(ctx, request{op: "recent_shows", method: http.MethodGet, path: "/api/performances/all-shows", query: q})
	return shows, eris.Wrap(err, "backend: recent shows")
}

func (c *httpClient) FetchPricing(ctx context.Context, artist string) (model.Pricing, error) {
	body, err := c.do(ctx, request{op: "fetch_pricing", method: http.MethodGet, path: "/api/art/" + url.PathEscape(artist)})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return model.Pricing{Price: NoQuote}, nil
		}
		return model.Pricing{}, eris.Wrapf(err, "backend: fetch pricing for %q", artist)
	}

	var env pricingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Pricing{}, eris.Wrapf(err, "backend: decode pricing for %q", artist)
	}
	if !env.Success {
		return model.Pricing{Price: NoQuote}, nil
	}
	return env.Pricing, nil
}

func (c *httpClient) SetPrice(ctx context.Context, artist string, price model.Price) error {
	body, err := json.Marshal(map[string]string{"artist": artist, "price": string(price)})
	if err != nil {
		return eris.Wrap(err, "backend: marshal price")
	}
	_, err = c.envelope(ctx, request{
		op: "set_price", method: http.MethodPost, path: "/api/art/price",
		body: body, contentType: "application/json",
	})
	return eris.Wrapf(err, "backend: set price for %q", artist)
}

func (c *httpClient) UpdateShow(ctx context.Context, show model.Show) error {
	if show.ID == "" {
		return eris.New("backend: update show: missing id")
	}
	body, err := json.Marshal(show)
	if err != nil {
		return eris.Wrap(err, "backend: marshal show")
	}
	_, err = c.envelope(ctx, request{
		op: "update_show", method: http.MethodPut, path: "/api/shows/" + url.PathEscape(show.ID.String()),
		body: body, contentType: "application/json",
	})
	return eris.Wrapf(err, "backend: update show %s", show.ID)
}

func (c *httpClient) DeleteShow(ctx context.Context, id string) error {
	if id == "" {
		return eris.New("backend: delete show: missing id")
	}
	_, err := c.envelope(ctx, request{op: "delete_show", method: http.MethodDelete, path: "/api/shows/" + url.PathEscape(id)})
	return eris.Wrapf(err, "backend: delete show %s", id)
}

func (c *httpClient) shows(ctx context.Context, req request) ([]model.Show, error) {
	data, err := c.envelope(ctx, req)
	if err != nil {
		return nil, err
	}
	var shows []model.Show
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return shows, nil
	}
	if err := json.Unmarshal(data, &shows); err != nil {
		return nil, eris.Wrap(err, "decode shows")
	}
	return shows, nil
}

// envelope performs req and returns the data member of a successful
// {success, data} answer.
func (c *httpClient) envelope(ctx context.Context, req request) (json.RawMessage, error) {
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	if !env.Success {
		if env.Message == "" {
			env.Message = "no message"
		}
		return nil, eris.Errorf("request rejected: %s", env.Message)
	}
	return env.Data, nil
}

func (c *httpClient) do(ctx context.Context, req request) ([]byte, error) {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("backend." + req.op)
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if c.breaker == nil {
			return c.attempt(ctx, req)
		}
		return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.attempt(ctx, req)
		})
	})
}

func (c *httpClient) attempt(ctx context.Context, req request) (body []byte, err error) {
	start := time.Now()
	status := 0
	if c.observe != nil {
		defer func() { c.observe(req.op, status, time.Since(start), err) }()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit wait")
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	var rdr io.Reader
	if req.body != nil {
		rdr = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, rdr)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck
	status = resp.StatusCode

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(se, resp.StatusCode)
		}
		return nil, se
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
