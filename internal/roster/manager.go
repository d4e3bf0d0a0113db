// Package roster keeps the working set of artists under assessment and
// rescores it whenever the criteria or the target change.
package roster

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/artist-check/internal/metrics"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
	"github.com/sells-group/artist-check/internal/settings"
)

var (
	ErrEmptyName = eris.New("roster: artist name is empty")
	ErrDuplicate = eris.New("roster: artist already in roster")
	ErrNotFound  = eris.New("roster: artist not in roster")
	// ErrRemoved is returned by AddArtist when the artist was removed while
	// its data was still being fetched.
	ErrRemoved = eris.New("roster: artist removed before fetch completed")
)

// Backend is the part of the records API the roster needs.
type Backend interface {
	FetchShows(ctx context.Context, artist string) ([]model.Show, error)
	FetchPricing(ctx context.Context, artist string) (model.Pricing, error)
	SetPrice(ctx context.Context, artist string, price model.Price) error
}

// Manager owns the roster. All entries are rescored under one lock with a
// single criteria and target value, so a sweep never mixes two settings.
type Manager struct {
	engine      *scorer.Engine
	backend     Backend
	settings    *settings.Settings
	criteria    *settings.CriteriaHolder
	target      *settings.TargetHolder
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	entries []model.ArtistAssessment
}

// NewManager wires a manager to the holders. It subscribes to criteria and
// target changes, so it must be created once per holder pair.
func NewManager(engine *scorer.Engine, backend Backend, s *settings.Settings,
	criteria *settings.CriteriaHolder, target *settings.TargetHolder, concurrency int) *Manager {
	if concurrency < 1 {
		concurrency = 1
	}
	m := &Manager{
		engine:      engine,
		backend:     backend,
		settings:    s,
		criteria:    criteria,
		target:      target,
		concurrency: concurrency,
		now:         time.Now,
	}
	criteria.Subscribe(func(c scorer.Criteria) { m.rescoreAll("criteria", c, target.Current()) })
	target.Subscribe(func(t model.Target) { m.rescoreAll("target", criteria.Current(), t) })
	return m
}

// Restore loads the persisted remember flag, criteria, target and roster,
// rescores every entry and retries the fetch for entries that failed last
// time.
func (m *Manager) Restore(ctx context.Context) error {
	if _, err := m.settings.LoadRemember(ctx); err != nil {
		return eris.Wrap(err, "roster: restore remember flag")
	}
	if _, err := m.criteria.Load(ctx); err != nil {
		return eris.Wrap(err, "roster: restore criteria")
	}
	if _, err := m.target.Load(ctx); err != nil {
		return eris.Wrap(err, "roster: restore target")
	}
	saved, err := m.settings.LoadRoster(ctx)
	if err != nil {
		return eris.Wrap(err, "roster: restore entries")
	}

	c, t := m.criteria.Current(), m.target.Current()
	m.mu.Lock()
	m.entries = m.entries[:0]
	for _, a := range saved {
		if strings.TrimSpace(a.Name) == "" || m.indexByName(a.Name) >= 0 {
			continue
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		// Saved while its first fetch was still running.
		if a.Shows == nil && a.State != model.ScoreStateScored {
			a.State = model.ScoreStateFetchFailed
		}
		m.entries = append(m.entries, m.rescore(a, c, t))
	}
	n := len(m.entries)
	m.mu.Unlock()

	zap.L().Info("roster: restored", zap.Int("artists", n), zap.String("target_city", t.City))
	m.publish()

	_, err = m.refresh(ctx, func(a model.ArtistAssessment) bool {
		return a.State == model.ScoreStateFetchFailed
	})
	return err
}

// AddArtist fetches shows and pricing for name and adds the scored entry.
// A failed fetch still adds the artist, in the fetch_failed state.
func (m *Manager) AddArtist(ctx context.Context, name string) (model.ArtistAssessment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ArtistAssessment{}, ErrEmptyName
	}

	m.mu.Lock()
	if m.indexByName(name) >= 0 {
		m.mu.Unlock()
		return model.ArtistAssessment{}, eris.Wrapf(ErrDuplicate, "%q", name)
	}
	entry := model.ArtistAssessment{
		ID:      uuid.NewString(),
		Name:    name,
		State:   model.ScoreStatePending,
		AddedAt: m.now().UTC(),
	}
	m.entries = append(m.entries, entry)
	m.mu.Unlock()

	shows, pricing, fetchErr := m.fetch(ctx, name)

	m.mu.Lock()
	i := m.indexByID(entry.ID)
	if i < 0 {
		m.mu.Unlock()
		zap.L().Info("roster: dropping fetch for removed artist", zap.String("artist", name))
		return model.ArtistAssessment{}, eris.Wrapf(ErrRemoved, "%q", name)
	}
	entry = applyFetch(m.entries[i], shows, pricing, fetchErr)
	entry = m.rescore(entry, m.criteria.Current(), m.target.Current())
	m.entries[i] = entry
	m.mu.Unlock()

	if fetchErr != nil {
		zap.L().Warn("roster: artist added unscored, fetch failed",
			zap.String("artist", name), zap.Error(fetchErr))
	} else {
		zap.L().Info("roster: artist added",
			zap.String("artist", name),
			zap.Int("shows", len(entry.Shows)),
			zap.String("state", string(entry.State)),
		)
	}
	m.persist(ctx)
	return entry.Clone(), nil
}

// RemoveArtist drops name from the roster. An in-flight AddArtist for it
// discards its result.
func (m *Manager) RemoveArtist(ctx context.Context, name string) error {
	m.mu.Lock()
	i := m.indexByName(strings.TrimSpace(name))
	if i < 0 {
		m.mu.Unlock()
		return eris.Wrapf(ErrNotFound, "%q", name)
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	m.mu.Unlock()

	zap.L().Info("roster: artist removed", zap.String("artist", name))
	m.persist(ctx)
	return nil
}

// SetTarget commits a new target; the roster is rescored through the
// holder's notification.
func (m *Manager) SetTarget(ctx context.Context, t model.Target) error {
	if err := m.target.Set(ctx, t); err != nil {
		return err
	}
	m.persist(ctx)
	return nil
}

// Target returns the committed target.
func (m *Manager) Target() model.Target { return m.target.Current() }

// Criteria returns the committed criteria.
func (m *Manager) Criteria() scorer.Criteria { return m.criteria.Current() }

// UpdateCriteria validates and commits candidate. Shows are not refetched.
func (m *Manager) UpdateCriteria(ctx context.Context, candidate scorer.Criteria) error {
	if err := m.criteria.Save(ctx, candidate); err != nil {
		return err
	}
	m.persist(ctx)
	return nil
}

// ResetCriteria commits the default criteria.
func (m *Manager) ResetCriteria(ctx context.Context) (scorer.Criteria, error) {
	c, err := m.criteria.Reset(ctx)
	if err != nil {
		return c, err
	}
	m.persist(ctx)
	return c, nil
}

// SetRemember turns session persistence on or off. Turning it on writes
// the current target and roster straight away.
func (m *Manager) SetRemember(ctx context.Context, on bool) error {
	if err := m.settings.SetRemember(ctx, on); err != nil {
		return err
	}
	if !on {
		return nil
	}
	if err := m.settings.SaveTarget(ctx, m.target.Current()); err != nil {
		return err
	}
	return m.settings.SaveRoster(ctx, m.Snapshot())
}

// Remember reports whether the session is persisted.
func (m *Manager) Remember() bool { return m.settings.Remember() }

// Snapshot returns a copy of the roster in insertion order.
func (m *Manager) Snapshot() []model.ArtistAssessment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ArtistAssessment, len(m.entries))
	for i, a := range m.entries {
		out[i] = a.Clone()
	}
	return out
}

// Get returns one entry by name.
func (m *Manager) Get(name string) (model.ArtistAssessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexByName(strings.TrimSpace(name))
	if i < 0 {
		return model.ArtistAssessment{}, eris.Wrapf(ErrNotFound, "%q", name)
	}
	return m.entries[i].Clone(), nil
}

// Explain returns the per-show classification behind an entry's score.
func (m *Manager) Explain(name string) ([]scorer.ShowScore, error) {
	a, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return m.engine.Breakdown(a.Shows, m.target.Current(), m.criteria.Current()), nil
}

// TotalPrice sums the numeric prices of the roster.
func (m *Manager) TotalPrice() int {
	return model.TotalPrice(m.Snapshot())
}

// SetPrice records a quote for name in the backend and on the entry, which
// marks the artist as known to the pricing system.
func (m *Manager) SetPrice(ctx context.Context, name string, price model.Price) (model.ArtistAssessment, error) {
	name = strings.TrimSpace(name)
	if _, err := m.Get(name); err != nil {
		return model.ArtistAssessment{}, err
	}
	if err := m.backend.SetPrice(ctx, name, price); err != nil {
		return model.ArtistAssessment{}, eris.Wrapf(err, "roster: set price for %q", name)
	}

	m.mu.Lock()
	i := m.indexByName(name)
	if i < 0 {
		m.mu.Unlock()
		return model.ArtistAssessment{}, eris.Wrapf(ErrNotFound, "%q", name)
	}
	a := m.entries[i]
	a.Price = price
	a.IsKnown = true
	a = m.rescore(a, m.criteria.Current(), m.target.Current())
	m.entries[i] = a
	m.mu.Unlock()

	zap.L().Info("roster: price set", zap.String("artist", name), zap.String("price", string(price)))
	m.persist(ctx)
	return a.Clone(), nil
}

// RefreshResult counts the outcome of a Refresh.
type RefreshResult struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// Refresh refetches shows and pricing for every entry. An entry whose
// refetch fails keeps its previous data unless it had none.
func (m *Manager) Refresh(ctx context.Context) (RefreshResult, error) {
	return m.refresh(ctx, func(model.ArtistAssessment) bool { return true })
}

func (m *Manager) refresh(ctx context.Context, want func(model.ArtistAssessment) bool) (RefreshResult, error) {
	var targets []model.ArtistAssessment
	for _, a := range m.Snapshot() {
		if want(a) {
			targets = append(targets, a)
		}
	}
	if len(targets) == 0 {
		return RefreshResult{}, nil
	}

	var (
		res   RefreshResult
		resMu sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, a := range targets {
		g.Go(func() error {
			shows, pricing, err := m.fetch(gctx, a.Name)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			m.mu.Lock()
			i := m.indexByID(a.ID)
			if i >= 0 {
				cur := m.entries[i]
				if err == nil || cur.State == model.ScoreStateFetchFailed {
					cur = applyFetch(cur, shows, pricing, err)
				}
				m.entries[i] = m.rescore(cur, m.criteria.Current(), m.target.Current())
			}
			m.mu.Unlock()

			resMu.Lock()
			if err != nil {
				res.Failed++
			} else {
				res.Refreshed++
			}
			resMu.Unlock()
			if err != nil {
				zap.L().Warn("roster: refresh failed", zap.String("artist", a.Name), zap.Error(err))
			}
			return nil
		})
	}
	err := g.Wait()

	metrics.Recomputes.WithLabelValues("refresh").Inc()
	zap.L().Info("roster: refreshed", zap.Int("refreshed", res.Refreshed), zap.Int("failed", res.Failed))
	m.persist(ctx)
	return res, eris.Wrap(err, "roster: refresh")
}

// fetch loads shows and pricing concurrently.
func (m *Manager) fetch(ctx context.Context, name string) ([]model.Show, model.Pricing, error) {
	var (
		shows   []model.Show
		pricing model.Pricing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shows, err = m.backend.FetchShows(gctx, name)
		return err
	})
	g.Go(func() error {
		var err error
		pricing, err = m.backend.FetchPricing(gctx, name)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.ArtistFetches.WithLabelValues("failed").Inc()
		return nil, model.Pricing{}, err
	}
	metrics.ArtistFetches.WithLabelValues("ok").Inc()
	return shows, pricing, nil
}

func applyFetch(a model.ArtistAssessment, shows []model.Show, pricing model.Pricing, err error) model.ArtistAssessment {
	if err != nil {
		a.State = model.ScoreStateFetchFailed
		a.Score = nil
		return a
	}
	if shows == nil {
		shows = []model.Show{}
	}
	a.Shows = shows
	a.Price = pricing.Price
	a.IsKnown = pricing.IsKnown
	a.State = model.ScoreStatePending
	return a
}

// rescore derives State and Score from the entry's data. It never touches
// shows or pricing.
func (m *Manager) rescore(a model.ArtistAssessment, c scorer.Criteria, t model.Target) model.ArtistAssessment {
	a.Score = nil
	switch {
	case a.State == model.ScoreStateFetchFailed:
	case a.Shows == nil:
		// not fetched yet
		a.State = model.ScoreStatePending
	case !a.IsKnown:
		a.State = model.ScoreStateNotInDatabase
	case !t.IsSet():
		a.State = model.ScoreStatePending
	default:
		s := m.engine.ScoreArtist(a.Shows, t, c)
		a.Score = &s
		a.State = model.ScoreStateScored
	}
	return a
}

func (m *Manager) rescoreAll(trigger string, c scorer.Criteria, t model.Target) {
	m.mu.Lock()
	for i := range m.entries {
		m.entries[i] = m.rescore(m.entries[i], c, t)
	}
	n := len(m.entries)
	m.mu.Unlock()

	metrics.Recomputes.WithLabelValues(trigger).Inc()
	zap.L().Debug("roster: rescored", zap.String("trigger", trigger), zap.Int("artists", n))
	m.publish()
}

// persist writes the roster when remembering is on. Failures are logged;
// the in-memory roster stays authoritative.
func (m *Manager) persist(ctx context.Context) {
	snap := m.Snapshot()
	metrics.SetRoster(snap)
	if err := m.settings.SaveRoster(context.WithoutCancel(ctx), snap); err != nil {
		zap.L().Warn("roster: persist failed", zap.Error(err))
	}
}

func (m *Manager) publish() {
	metrics.SetRoster(m.Snapshot())
}

func (m *Manager) indexByName(name string) int {
	for i, a := range m.entries {
		if strings.EqualFold(a.Name, name) {
			return i
		}
	}
	return -1
}

func (m *Manager) indexByID(id string) int {
	for i, a := range m.entries {
		if a.ID == id {
			return i
		}
	}
	return -1
}
