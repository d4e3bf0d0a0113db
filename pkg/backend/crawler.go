package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/resilience"
)

var (
	ErrNoArtists  = eris.New("backend: no artists to update")
	ErrNoCrawlers = eris.New("backend: no crawlers configured")
	// ErrAllCrawlersFailed is returned when not a single crawler answered.
	// A partial failure is reported in CrawlResult.Failed instead.
	ErrAllCrawlersFailed = eris.New("backend: every crawler failed")
)

// Crawler is a ticketing-site scraper that refreshes the records of the
// artists it is sent.
type Crawler struct {
	Name    string `json:"name"`
	BaseURL string `json:"url"`
}

// CrawlResult merges the answers of every crawler.
type CrawlResult struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Updates      []json.RawMessage `json:"updates"`
	Performances []model.Show      `json:"performances"`
	Failed       []string          `json:"failed,omitempty"`
}

type crawlEnvelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Updates      []json.RawMessage `json:"updates"`
		Performances []model.Show      `json:"performances"`
	} `json:"data"`
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithCrawlHTTPClient overrides the default http.Client.
func WithCrawlHTTPClient(hc *http.Client) UpdaterOption {
	return func(u *Updater) { u.http = hc }
}

// WithCrawlTimeout sets how long one crawler may take.
func WithCrawlTimeout(d time.Duration) UpdaterOption {
	return func(u *Updater) { u.http.Timeout = d }
}

// WithCrawlRetry overrides the retry policy for transient crawler failures.
func WithCrawlRetry(cfg resilience.RetryConfig) UpdaterOption {
	return func(u *Updater) { u.retry = cfg }
}

// Updater asks every configured crawler to refresh a list of artists.
type Updater struct {
	crawlers []Crawler
	http     *http.Client
	retry    resilience.RetryConfig
}

// NewUpdater creates an updater over crawlers.
func NewUpdater(crawlers []Crawler, opts ...UpdaterOption) *Updater {
	u := &Updater{
		crawlers: append([]Crawler{}, crawlers...),
		http:     &http.Client{Timeout: 2 * time.Minute},
		retry:    resilience.DefaultRetryConfig().WithRetries(1),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Crawlers returns the configured crawlers.
func (u *Updater) Crawlers() []Crawler {
	return append([]Crawler{}, u.crawlers...)
}

// Update sends artists to every crawler at once and merges what comes back.
// It fails only when every crawler fails.
func (u *Updater) Update(ctx context.Context, artists []string) (CrawlResult, error) {
	artists = cleanArtists(artists)
	if len(artists) == 0 {
		return CrawlResult{}, ErrNoArtists
	}
	if len(u.crawlers) == 0 {
		return CrawlResult{}, ErrNoCrawlers
	}
	body, err := json.Marshal(map[string][]string{"artists": artists})
	if err != nil {
		return CrawlResult{}, eris.Wrap(err, "backend: marshal crawl request")
	}

	type outcome struct {
		env crawlEnvelope
		err error
	}
	outcomes := make([]outcome, len(u.crawlers))
	var g errgroup.Group
	for i, cr := range u.crawlers {
		g.Go(func() error {
			env, err := u.crawl(ctx, cr, body)
			outcomes[i] = outcome{env: env, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := CrawlResult{Success: true, Updates: []json.RawMessage{}, Performances: []model.Show{}}
	var errs []error
	for i, o := range outcomes {
		name := u.crawlers[i].Name
		if o.err != nil {
			res.Failed = append(res.Failed, name)
			errs = append(errs, eris.Wrapf(o.err, "crawler %s", name))
			zap.L().Warn("backend: crawler failed", zap.String("crawler", name), zap.Error(o.err))
			continue
		}
		res.Updates = append(res.Updates, o.env.Data.Updates...)
		res.Performances = append(res.Performances, o.env.Data.Performances...)
	}

	switch {
	case len(res.Failed) == len(u.crawlers):
		res.Success = false
		res.Message = "update failed: no crawler reachable"
		return res, eris.Wrapf(ErrAllCrawlersFailed, "%v", errors.Join(errs...))
	case len(res.Failed) > 0:
		res.Message = "update complete, failed: " + strings.Join(res.Failed, ", ")
	default:
		res.Message = "update complete"
	}
	zap.L().Info("backend: crawl finished",
		zap.Strings("artists", artists),
		zap.Int("updates", len(res.Updates)),
		zap.Int("performances", len(res.Performances)),
		zap.Strings("failed", res.Failed),
	)
	return res, nil
}

func (u *Updater) crawl(ctx context.Context, cr Crawler, body []byte) (crawlEnvelope, error) {
	cfg := u.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("crawler." + cr.Name)
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (crawlEnvelope, error) {
		var env crawlEnvelope
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(cr.BaseURL, "/")+"/update", bytes.NewReader(body))
		if err != nil {
			return env, eris.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := u.http.Do(req)
		if err != nil {
			return env, eris.Wrap(err, "send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return env, eris.Wrap(err, "read response")
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			se := &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return env, resilience.NewTransientError(se, resp.StatusCode)
			}
			return env, se
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return env, eris.Wrap(err, "decode response")
		}
		if env.Success != nil && !*env.Success {
			return env, eris.Errorf("request rejected: %s", env.Message)
		}
		return env, nil
	})
}

// ParseArtistList splits a list typed as "甲、乙, 丙" into names.
func ParseArtistList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case '、', ',', '，', ';', '；', '\n':
			return true
		}
		return false
	})
	return cleanArtists(fields)
}

// cleanArtists trims names and drops blanks and repeats, keeping order.
func cleanArtists(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
