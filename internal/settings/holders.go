package settings

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
)

// CriteriaHolder owns the committed criteria. Edits replace the whole value;
// subscribers are called after the swap, outside the lock, in the order they
// subscribed.
type CriteriaHolder struct {
	settings *Settings

	write sync.Mutex // serialises Save/Reset so persisted and in-memory order agree
	mu    sync.RWMutex
	cur   scorer.Criteria
	subs  []func(scorer.Criteria)
}

// NewCriteriaHolder starts from the defaults.
func NewCriteriaHolder(s *Settings) *CriteriaHolder {
	return &CriteriaHolder{settings: s, cur: scorer.DefaultCriteria()}
}

// Load replaces the current criteria with the persisted ones, if any.
// Subscribers are not notified.
func (h *CriteriaHolder) Load(ctx context.Context) (scorer.Criteria, error) {
	c, found, err := h.settings.LoadCriteria(ctx)
	if err != nil {
		return h.Current(), err
	}
	if !found {
		return h.Current(), nil
	}
	h.mu.Lock()
	h.cur = c
	h.mu.Unlock()
	return c, nil
}

// Current returns the committed criteria.
func (h *CriteriaHolder) Current() scorer.Criteria {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// Subscribe registers fn to receive every committed change.
func (h *CriteriaHolder) Subscribe(fn func(scorer.Criteria)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}

// Save validates and persists candidate, then commits it. On any error the
// previous criteria stay in force.
func (h *CriteriaHolder) Save(ctx context.Context, candidate scorer.Criteria) error {
	if err := scorer.ValidateCriteria(candidate); err != nil {
		return err
	}
	h.write.Lock()
	defer h.write.Unlock()
	if err := h.settings.SaveCriteria(ctx, candidate); err != nil {
		return err
	}
	h.commit(candidate)
	return nil
}

// Reset commits and persists the defaults.
func (h *CriteriaHolder) Reset(ctx context.Context) (scorer.Criteria, error) {
	def := scorer.DefaultCriteria()
	h.write.Lock()
	defer h.write.Unlock()
	if err := h.settings.SaveCriteria(ctx, def); err != nil {
		return h.Current(), err
	}
	h.commit(def)
	return def, nil
}

func (h *CriteriaHolder) commit(c scorer.Criteria) {
	h.mu.Lock()
	h.cur = c
	subs := slices.Clone(h.subs)
	h.mu.Unlock()

	zap.L().Info("settings: criteria committed",
		zap.Int("distance1", c.Distance1),
		zap.Int("distance2", c.Distance2),
		zap.Int("time1", c.Time1),
		zap.Int("time2", c.Time2),
		zap.Int("time3", c.Time3),
	)
	for _, fn := range subs {
		fn(c)
	}
}

// TargetHolder owns the target context the same way CriteriaHolder owns the
// criteria.
type TargetHolder struct {
	settings *Settings
	gaz      *geo.Gazetteer
	loc      *time.Location

	write sync.Mutex
	mu    sync.RWMutex
	cur   model.Target
	subs  []func(model.Target)
}

// NewTargetHolder creates an empty holder. gaz is only used to warn about
// unknown cities; such targets are accepted and leave every show unscorable.
func NewTargetHolder(s *Settings, gaz *geo.Gazetteer, loc *time.Location) *TargetHolder {
	return &TargetHolder{settings: s, gaz: gaz, loc: loc}
}

// Load restores the persisted target without notifying subscribers.
func (h *TargetHolder) Load(ctx context.Context) (model.Target, error) {
	t, err := h.settings.LoadTarget(ctx)
	if err != nil {
		return h.Current(), err
	}
	h.mu.Lock()
	h.cur = t
	h.mu.Unlock()
	return t, nil
}

// Current returns the committed target.
func (h *TargetHolder) Current() model.Target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// Subscribe registers fn to receive every committed change.
func (h *TargetHolder) Subscribe(fn func(model.Target)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}

// Set validates, persists and commits t. Either field may be empty; a
// non-empty date must parse.
func (h *TargetHolder) Set(ctx context.Context, t model.Target) error {
	t.City = strings.TrimSpace(t.City)
	t.Date = strings.TrimSpace(t.Date)
	if t.Date != "" {
		if _, err := model.ParseDay(t.Date, h.loc); err != nil {
			return eris.Wrapf(err, "settings: target date %q", t.Date)
		}
	}
	if t.City != "" && h.gaz != nil {
		if _, ok := h.gaz.Lookup(t.City); !ok {
			zap.L().Warn("settings: target city not in gazetteer, shows will be unscorable",
				zap.String("city", t.City))
		}
	}

	h.write.Lock()
	defer h.write.Unlock()
	if err := h.settings.SaveTarget(ctx, t); err != nil {
		return err
	}

	h.mu.Lock()
	h.cur = t
	subs := slices.Clone(h.subs)
	h.mu.Unlock()

	zap.L().Info("settings: target committed", zap.String("city", t.City), zap.String("date", t.Date))
	for _, fn := range subs {
		fn(t)
	}
	return nil
}
