// Package settings owns the persisted user settings (criteria, target
// context, roster cache and the remember flag) and the holders that swap
// criteria and target values and notify subscribers.
package settings

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
	"github.com/sells-group/artist-check/internal/store"
)

// Persisted keys.
const (
	KeyCriteria   = "criteria"
	KeyTargetCity = "targetCity"
	KeyTargetDate = "targetDate"
	KeyRoster     = "roster"
	KeyRemember   = "rememberSettings"
)

// Settings reads and writes typed values through a store.Store. Target and
// roster writes turn into deletes while the remember flag is off.
type Settings struct {
	kv store.Store

	mu       sync.RWMutex
	remember bool
}

// New wraps kv. The remember flag starts off until LoadRemember reads it.
func New(kv store.Store) *Settings {
	return &Settings{kv: kv}
}

// LoadRemember reads the persisted remember flag.
func (s *Settings) LoadRemember(ctx context.Context) (bool, error) {
	raw, err := s.kv.Get(ctx, KeyRemember)
	if err != nil {
		return false, eris.Wrap(err, "settings: load remember flag")
	}
	on := false
	if raw != nil {
		on, err = strconv.ParseBool(string(raw))
		if err != nil {
			zap.L().Warn("settings: ignoring malformed remember flag", zap.ByteString("value", raw))
			on = false
		}
	}
	s.mu.Lock()
	s.remember = on
	s.mu.Unlock()
	return on, nil
}

// Remember reports whether target and roster are persisted.
func (s *Settings) Remember() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remember
}

// SetRemember persists the flag. Turning it off clears the target and
// roster keys.
func (s *Settings) SetRemember(ctx context.Context, on bool) error {
	if err := s.kv.Set(ctx, KeyRemember, []byte(strconv.FormatBool(on))); err != nil {
		return eris.Wrap(err, "settings: save remember flag")
	}
	s.mu.Lock()
	s.remember = on
	s.mu.Unlock()
	if !on {
		return s.clearSession(ctx)
	}
	return nil
}

func (s *Settings) clearSession(ctx context.Context) error {
	return eris.Wrap(s.kv.Delete(ctx, KeyTargetCity, KeyTargetDate, KeyRoster), "settings: clear session")
}

// LoadCriteria returns the persisted criteria. found is false when none are
// stored or the stored value no longer decodes or validates.
func (s *Settings) LoadCriteria(ctx context.Context) (c scorer.Criteria, found bool, err error) {
	raw, err := s.kv.Get(ctx, KeyCriteria)
	if err != nil {
		return scorer.Criteria{}, false, eris.Wrap(err, "settings: load criteria")
	}
	if raw == nil {
		return scorer.Criteria{}, false, nil
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		zap.L().Warn("settings: stored criteria unreadable, ignoring", zap.Error(err))
		return scorer.Criteria{}, false, nil
	}
	// Older saves carry no display window.
	if c.TimeRange == 0 {
		c.TimeRange = scorer.DefaultTimeRange
	}
	if err := scorer.ValidateCriteria(c); err != nil {
		zap.L().Warn("settings: stored criteria invalid, ignoring", zap.Error(err))
		return scorer.Criteria{}, false, nil
	}
	return c, true, nil
}

// SaveCriteria persists c. Criteria are stored regardless of the remember
// flag.
func (s *Settings) SaveCriteria(ctx context.Context, c scorer.Criteria) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "settings: marshal criteria")
	}
	return eris.Wrap(s.kv.Set(ctx, KeyCriteria, data), "settings: save criteria")
}

// LoadTarget returns the persisted target, or a zero Target when the
// remember flag is off.
func (s *Settings) LoadTarget(ctx context.Context) (model.Target, error) {
	if !s.Remember() {
		return model.Target{}, nil
	}
	city, err := s.kv.Get(ctx, KeyTargetCity)
	if err != nil {
		return model.Target{}, eris.Wrap(err, "settings: load target city")
	}
	date, err := s.kv.Get(ctx, KeyTargetDate)
	if err != nil {
		return model.Target{}, eris.Wrap(err, "settings: load target date")
	}
	return model.Target{City: string(city), Date: string(date)}, nil
}

// SaveTarget persists t, or clears it when the remember flag is off.
func (s *Settings) SaveTarget(ctx context.Context, t model.Target) error {
	if !s.Remember() {
		return eris.Wrap(s.kv.Delete(ctx, KeyTargetCity, KeyTargetDate), "settings: clear target")
	}
	if err := s.kv.Set(ctx, KeyTargetCity, []byte(t.City)); err != nil {
		return eris.Wrap(err, "settings: save target city")
	}
	return eris.Wrap(s.kv.Set(ctx, KeyTargetDate, []byte(t.Date)), "settings: save target date")
}

// LoadRoster returns the cached roster, or nil when the remember flag is
// off or nothing is cached.
func (s *Settings) LoadRoster(ctx context.Context) ([]model.ArtistAssessment, error) {
	if !s.Remember() {
		return nil, nil
	}
	raw, err := s.kv.Get(ctx, KeyRoster)
	if err != nil {
		return nil, eris.Wrap(err, "settings: load roster")
	}
	if raw == nil {
		return nil, nil
	}
	var out []model.ArtistAssessment
	if err := json.Unmarshal(raw, &out); err != nil {
		zap.L().Warn("settings: cached roster unreadable, ignoring", zap.Error(err))
		return nil, nil
	}
	return out, nil
}

// SaveRoster caches the roster, or clears it when the remember flag is off.
func (s *Settings) SaveRoster(ctx context.Context, roster []model.ArtistAssessment) error {
	if !s.Remember() {
		return eris.Wrap(s.kv.Delete(ctx, KeyRoster), "settings: clear roster")
	}
	if roster == nil {
		roster = []model.ArtistAssessment{}
	}
	data, err := json.Marshal(roster)
	if err != nil {
		return eris.Wrap(err, "settings: marshal roster")
	}
	return eris.Wrap(s.kv.Set(ctx, KeyRoster, data), "settings: save roster")
}
