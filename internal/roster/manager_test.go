package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/artist-check/internal/geo"
	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
	"github.com/sells-group/artist-check/internal/settings"
	"github.com/sells-group/artist-check/internal/store"
)

type fakeBackend struct {
	mu          sync.Mutex
	shows       map[string][]model.Show
	pricing     map[string]model.Pricing
	failShows   map[string]bool
	showCalls   map[string]int
	prices      map[string]model.Price
	gate        chan struct{} // when set, FetchShows waits on it
	setPriceErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		shows:     map[string][]model.Show{},
		pricing:   map[string]model.Pricing{},
		failShows: map[string]bool{},
		showCalls: map[string]int{},
		prices:    map[string]model.Price{},
	}
}

func (f *fakeBackend) FetchShows(ctx context.Context, artist string) ([]model.Show, error) {
	f.mu.Lock()
	f.showCalls[artist]++
	gate := f.gate
	fail := f.failShows[artist]
	shows := f.shows[artist]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("backend: status 503")
	}
	return append([]model.Show(nil), shows...), nil
}

func (f *fakeBackend) FetchPricing(_ context.Context, artist string) (model.Pricing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pricing[artist]; ok {
		return p, nil
	}
	return model.Pricing{Price: "暂无报价"}, nil
}

func (f *fakeBackend) SetPrice(_ context.Context, artist string, price model.Price) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setPriceErr != nil {
		return f.setPriceErr
	}
	f.prices[artist] = price
	return nil
}

func (f *fakeBackend) calls(artist string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.showCalls[artist]
}

type harness struct {
	m       *Manager
	backend *fakeBackend
	kv      store.Store
	s       *settings.Settings
}

func newHarness(t *testing.T, kv store.Store, backend *fakeBackend) *harness {
	t.Helper()
	gaz, err := geo.Builtin()
	require.NoError(t, err)
	loc := time.FixedZone("CST", 8*3600)
	s := settings.New(kv)
	m := NewManager(scorer.NewEngine(gaz, loc), backend, s,
		settings.NewCriteriaHolder(s), settings.NewTargetHolder(s, gaz, loc), 2)
	return &harness{m: m, backend: backend, kv: kv, s: s}
}

// scenarioBackend serves one artist with a Shanghai show two weeks before the
// Beijing target and a Beijing show five months before it.
func scenarioBackend() *fakeBackend {
	b := newFakeBackend()
	b.shows["万能青年旅店"] = []model.Show{
		{City: "上海", Date: "2024-06-01"},
		{City: "北京", Date: "2024-01-01"},
	}
	b.pricing["万能青年旅店"] = model.Pricing{Price: "120000", IsKnown: true}
	b.shows["重塑雕像的权利"] = []model.Show{{City: "上海", Date: "2024-06-01"}}
	b.pricing["重塑雕像的权利"] = model.Pricing{Price: "80000元", IsKnown: true}
	return b
}

var beijingTarget = model.Target{City: "北京", Date: "2024-06-15"}

func score(t *testing.T, a model.ArtistAssessment) int {
	t.Helper()
	require.True(t, a.Scored(), "state=%s", a.State)
	return *a.Score
}

func TestAddArtist_Scores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))

	a, err := h.m.AddArtist(ctx, "  万能青年旅店 ")
	require.NoError(t, err)
	assert.Equal(t, "万能青年旅店", a.Name)
	assert.NotEmpty(t, a.ID)
	assert.Len(t, a.Shows, 2)
	assert.True(t, a.IsKnown)
	assert.Equal(t, 1, score(t, a))

	snap := h.m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, a, snap[0])
}

func TestAddArtist_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())

	_, err := h.m.AddArtist(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	_, err = h.m.AddArtist(ctx, "万能青年旅店")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, h.m.Snapshot(), 1)
}

func TestAddArtist_States(t *testing.T) {
	ctx := context.Background()
	b := scenarioBackend()
	b.shows["unknown act"] = []model.Show{{City: "上海", Date: "2024-06-01"}}
	b.failShows["offline act"] = true
	h := newHarness(t, store.NewMemory(), b)

	pending, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	assert.Equal(t, model.ScoreStatePending, pending.State)
	assert.Nil(t, pending.Score)

	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))

	unknown, err := h.m.AddArtist(ctx, "unknown act")
	require.NoError(t, err)
	assert.Equal(t, model.ScoreStateNotInDatabase, unknown.State)
	assert.Nil(t, unknown.Score)

	failed, err := h.m.AddArtist(ctx, "offline act")
	require.NoError(t, err)
	assert.Equal(t, model.ScoreStateFetchFailed, failed.State)
	assert.Nil(t, failed.Score)
	assert.False(t, failed.Scored())

	got, err := h.m.Get("万能青年旅店")
	require.NoError(t, err)
	assert.Equal(t, 1, score(t, got), "target change rescored the pending entry")
}

func TestAddArtist_NoShowsScoresMax(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	b.pricing["新人"] = model.Pricing{Price: "5000", IsKnown: true}
	h := newHarness(t, store.NewMemory(), b)
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))

	a, err := h.m.AddArtist(ctx, "新人")
	require.NoError(t, err)
	assert.Equal(t, scorer.MaxScore, score(t, a))
	assert.NotNil(t, a.Shows)
}

func TestUpdateCriteria_RescoresWithoutRefetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))

	_, err := h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)
	a, _ := h.m.Get("重塑雕像的权利")
	assert.Equal(t, 2, score(t, a), "Shanghai is in the wide band")
	calls := h.backend.calls("重塑雕像的权利")

	c := h.m.Criteria()
	c.Distance1 = 1200
	c.Distance2 = 1500
	require.NoError(t, h.m.UpdateCriteria(ctx, c))

	a, _ = h.m.Get("重塑雕像的权利")
	assert.Equal(t, 0, score(t, a), "Shanghai is now in-city")
	assert.Equal(t, calls, h.backend.calls("重塑雕像的权利"))

	def, err := h.m.ResetCriteria(ctx)
	require.NoError(t, err)
	assert.Equal(t, scorer.DefaultCriteria(), def)
	a, _ = h.m.Get("重塑雕像的权利")
	assert.Equal(t, 2, score(t, a))
}

func TestUpdateCriteria_InvalidKeepsScores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)

	c := h.m.Criteria()
	c.Distance1 = 1200 // distance2 stays 600
	require.Error(t, h.m.UpdateCriteria(ctx, c))
	assert.Equal(t, scorer.DefaultCriteria(), h.m.Criteria())
	a, _ := h.m.Get("重塑雕像的权利")
	assert.Equal(t, 2, score(t, a))
}

func TestSetTarget_Rescores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)

	require.NoError(t, h.m.SetTarget(ctx, model.Target{City: "上海", Date: "2024-06-15"}))
	a, _ := h.m.Get("重塑雕像的权利")
	assert.Equal(t, 0, score(t, a))

	require.Error(t, h.m.SetTarget(ctx, model.Target{City: "上海", Date: "next week-ish"}))
	assert.Equal(t, "上海", h.m.Target().City)

	require.NoError(t, h.m.SetTarget(ctx, model.Target{City: "上海"}))
	a, _ = h.m.Get("重塑雕像的权利")
	assert.Equal(t, model.ScoreStatePending, a.State)
}

func TestRemoveArtist(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	_, err = h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)

	require.NoError(t, h.m.RemoveArtist(ctx, "万能青年旅店"))
	snap := h.m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "重塑雕像的权利", snap[0].Name)

	assert.ErrorIs(t, h.m.RemoveArtist(ctx, "万能青年旅店"), ErrNotFound)
}

func TestRemoveDuringFetch_DropsResult(t *testing.T) {
	ctx := context.Background()
	b := scenarioBackend()
	b.gate = make(chan struct{})
	h := newHarness(t, store.NewMemory(), b)
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))

	done := make(chan error, 1)
	go func() {
		_, err := h.m.AddArtist(ctx, "万能青年旅店")
		done <- err
	}()

	require.Eventually(t, func() bool { return b.calls("万能青年旅店") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, h.m.RemoveArtist(ctx, "万能青年旅店"))
	close(b.gate)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRemoved)
	case <-time.After(2 * time.Second):
		t.Fatal("AddArtist did not return")
	}
	assert.Empty(t, h.m.Snapshot())
}

func TestSetPrice(t *testing.T) {
	ctx := context.Background()
	b := scenarioBackend()
	b.shows["unknown act"] = []model.Show{{City: "上海", Date: "2024-06-01"}}
	h := newHarness(t, store.NewMemory(), b)
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "unknown act")
	require.NoError(t, err)

	a, err := h.m.SetPrice(ctx, "unknown act", "30000")
	require.NoError(t, err)
	assert.True(t, a.IsKnown)
	assert.Equal(t, model.Price("30000"), a.Price)
	assert.Equal(t, 2, score(t, a))
	assert.Equal(t, model.Price("30000"), b.prices["unknown act"])

	_, err = h.m.SetPrice(ctx, "nobody", "1")
	assert.ErrorIs(t, err, ErrNotFound)

	b.setPriceErr = errors.New("backend down")
	_, err = h.m.SetPrice(ctx, "unknown act", "99")
	require.Error(t, err)
	got, _ := h.m.Get("unknown act")
	assert.Equal(t, model.Price("30000"), got.Price)
}

func TestTotalPrice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	_, err = h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)
	_, err = h.m.AddArtist(ctx, "no quote")
	require.NoError(t, err)
	assert.Equal(t, 200000, h.m.TotalPrice())
}

func TestExplain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, store.NewMemory(), scenarioBackend())
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)

	rows, err := h.m.Explain("万能青年旅店")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Score)
	assert.Equal(t, 1, rows[1].Score)

	_, err = h.m.Explain("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	b := scenarioBackend()
	b.failShows["重塑雕像的权利"] = true
	h := newHarness(t, store.NewMemory(), b)
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	_, err = h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)

	// New show history for one artist, recovery for the other.
	b.mu.Lock()
	b.shows["万能青年旅店"] = []model.Show{{City: "天津", Date: "2024-06-20"}}
	b.failShows["重塑雕像的权利"] = false
	b.mu.Unlock()

	res, err := h.m.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{Refreshed: 2}, res)

	a, _ := h.m.Get("万能青年旅店")
	assert.Len(t, a.Shows, 1)
	assert.Equal(t, 0, score(t, a))
	r, _ := h.m.Get("重塑雕像的权利")
	assert.Equal(t, 2, score(t, r))

	// A failing refresh keeps the last good data.
	b.mu.Lock()
	b.failShows["万能青年旅店"] = true
	b.mu.Unlock()
	res, err = h.m.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	a, _ = h.m.Get("万能青年旅店")
	assert.Equal(t, 0, score(t, a))
}

func TestRemember_PersistAndRestore(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	b := scenarioBackend()
	h := newHarness(t, kv, b)

	require.NoError(t, h.m.SetRemember(ctx, true))
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	c := h.m.Criteria()
	c.Distance1 = 1200
	c.Distance2 = 1500
	require.NoError(t, h.m.UpdateCriteria(ctx, c))
	calls := b.calls("万能青年旅店")

	// A fresh process over the same store.
	h2 := newHarness(t, kv, b)
	require.NoError(t, h2.m.Restore(ctx))
	assert.True(t, h2.m.Remember())
	assert.Equal(t, beijingTarget, h2.m.Target())
	assert.Equal(t, 1200, h2.m.Criteria().Distance1)

	snap := h2.m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0, score(t, snap[0]))
	assert.Equal(t, calls, b.calls("万能青年旅店"), "restored roster is not refetched")
}

func TestRestore_NoShowsArtistStaysScored(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	b := newFakeBackend()
	b.pricing["新人"] = model.Pricing{Price: "5000", IsKnown: true}
	h := newHarness(t, kv, b)
	require.NoError(t, h.m.SetRemember(ctx, true))
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "新人")
	require.NoError(t, err)

	raw, err := kv.Get(ctx, settings.KeyRoster)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"shows":[]`)

	h2 := newHarness(t, kv, b)
	require.NoError(t, h2.m.Restore(ctx))
	a, err := h2.m.Get("新人")
	require.NoError(t, err)
	assert.Equal(t, model.ScoreStateScored, a.State)
	assert.Equal(t, scorer.MaxScore, score(t, a))
	assert.NotNil(t, a.Shows)
}

func TestRemember_OffForgetsSession(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	h := newHarness(t, kv, scenarioBackend())

	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	c := h.m.Criteria()
	c.Time1 = 2
	require.NoError(t, h.m.UpdateCriteria(ctx, c))

	h2 := newHarness(t, kv, scenarioBackend())
	require.NoError(t, h2.m.Restore(ctx))
	assert.False(t, h2.m.Remember())
	assert.Empty(t, h2.m.Snapshot())
	assert.Equal(t, model.Target{}, h2.m.Target())
	assert.Equal(t, 2, h2.m.Criteria().Time1, "criteria persist regardless")

	// Switching on writes what is already there.
	require.NoError(t, h.m.SetRemember(ctx, true))
	raw, err := kv.Get(ctx, settings.KeyRoster)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "万能青年旅店")
}

func TestRestore_RetriesFailedEntries(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	b := scenarioBackend()
	b.failShows["万能青年旅店"] = true
	h := newHarness(t, kv, b)
	require.NoError(t, h.m.SetRemember(ctx, true))
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))
	_, err := h.m.AddArtist(ctx, "万能青年旅店")
	require.NoError(t, err)
	_, err = h.m.AddArtist(ctx, "重塑雕像的权利")
	require.NoError(t, err)

	b.mu.Lock()
	b.failShows["万能青年旅店"] = false
	b.mu.Unlock()
	before := b.calls("重塑雕像的权利")

	h2 := newHarness(t, kv, b)
	require.NoError(t, h2.m.Restore(ctx))
	a, err := h2.m.Get("万能青年旅店")
	require.NoError(t, err)
	assert.Equal(t, 1, score(t, a))
	assert.Equal(t, before, b.calls("重塑雕像的权利"))
}

func TestConcurrentAddsAndCriteriaChanges(t *testing.T) {
	ctx := context.Background()
	b := newFakeBackend()
	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range names {
		b.shows[n] = []model.Show{{City: "上海", Date: "2024-06-01"}}
		b.pricing[n] = model.Pricing{Price: "1", IsKnown: true}
	}
	h := newHarness(t, store.NewMemory(), b)
	require.NoError(t, h.m.SetTarget(ctx, beijingTarget))

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.m.AddArtist(ctx, n)
			assert.NoError(t, err)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c := scorer.DefaultCriteria()
		c.Distance1 = 1200
		c.Distance2 = 1500
		assert.NoError(t, h.m.UpdateCriteria(ctx, c))
	}()
	wg.Wait()

	for _, a := range h.m.Snapshot() {
		assert.Equal(t, 0, score(t, a), a.Name)
	}
	assert.Equal(t, 6, h.m.TotalPrice())
}
