package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/config"
	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/metrics"
	"github.com/sells-group/artist-check/internal/resilience"
	"github.com/sells-group/artist-check/internal/roster"
	"github.com/sells-group/artist-check/internal/scorer"
	"github.com/sells-group/artist-check/internal/settings"
	"github.com/sells-group/artist-check/internal/store"
	"github.com/sells-group/artist-check/pkg/backend"
)

// appEnv holds everything the commands share: persistence, the gazetteer,
// the scoring engine, the backend client and the roster built on them.
type appEnv struct {
	Store     store.Store
	Gazetteer *geo.Gazetteer
	Loc       *time.Location
	Engine    *scorer.Engine
	Backend   backend.Client
	Updater   *backend.Updater
	Settings  *settings.Settings
	Roster    *roster.Manager
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp opens the configured store and backend and restores the saved
// session. Callers should defer env.Close().
func initApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	kv, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	env, err := newAppEnv(ctx, c, kv, newBackend(c.Backend))
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return env, nil
}

// newAppEnv assembles an environment around an open store and a backend.
func newAppEnv(ctx context.Context, c *config.Config, kv store.Store, be backend.Client) (*appEnv, error) {
	gaz, err := geo.Load(c.Gazetteer.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load gazetteer")
	}
	loc := c.Scoring.Location()
	engine := scorer.NewEngine(gaz, loc)
	s := settings.New(kv)
	mgr := roster.NewManager(engine, be, s,
		settings.NewCriteriaHolder(s), settings.NewTargetHolder(s, gaz, loc),
		c.Roster.FetchConcurrency)
	if err := mgr.Restore(ctx); err != nil {
		return nil, eris.Wrap(err, "restore session")
	}

	zap.L().Debug("app ready",
		zap.String("store", c.Store.Driver),
		zap.Int("cities", gaz.Len()),
		zap.String("timezone", loc.String()),
	)
	return &appEnv{
		Store:     kv,
		Gazetteer: gaz,
		Loc:       loc,
		Engine:    engine,
		Backend:   be,
		Updater:   newUpdater(c.Backend),
		Settings:  s,
		Roster:    mgr,
	}, nil
}

// newBackend builds the records API client from config, with a breaker
// that stops hammering the backend while it is down.
func newBackend(c config.BackendConfig) backend.Client {
	breaker := resilience.NewBreaker(5, 30*time.Second)
	breaker.OnChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("backend breaker state change",
			zap.String("from", from.String()), zap.String("to", to.String()))
	}
	return backend.NewClient(
		backend.WithBaseURL(c.BaseURL),
		backend.WithTimeout(time.Duration(c.TimeoutSecs)*time.Second),
		backend.WithRateLimit(c.RateLimit, c.Burst),
		backend.WithRetry(resilience.DefaultRetryConfig().WithRetries(c.MaxRetries)),
		backend.WithBreaker(breaker),
		backend.WithShowLimit(c.ShowLimit),
		backend.WithObserver(metrics.ObserveBackend),
	)
}

// newUpdater builds the crawler fan-out from config.
func newUpdater(c config.BackendConfig) *backend.Updater {
	crawlers := make([]backend.Crawler, 0, len(c.Crawlers))
	for _, cr := range c.Crawlers {
		crawlers = append(crawlers, backend.Crawler{Name: cr.Name, BaseURL: cr.URL})
	}
	opts := []backend.UpdaterOption{}
	if c.CrawlTimeoutSecs > 0 {
		opts = append(opts, backend.WithCrawlTimeout(time.Duration(c.CrawlTimeoutSecs)*time.Second))
	}
	return backend.NewUpdater(crawlers, opts...)
}
