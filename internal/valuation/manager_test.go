package valuation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnbot/dawn/internal/roblox"
	"github.com/dawnbot/dawn/internal/valuation"
	"github.com/dawnbot/dawn/pkg/logger"
	domain "github.com/dawnbot/dawn/pkg/types"
)

// memStore is an in-memory Store for exercising the manager without a
// database.
type memStore struct {
	mu          sync.Mutex
	rows        map[int64]domain.Collectible
	upsertCalls int
}

func newMemStore(seed ...domain.Collectible) *memStore {
	s := &memStore{rows: make(map[int64]domain.Collectible)}
	for _, c := range seed {
		s.rows[c.AssetID] = c
	}
	return s
}

func (s *memStore) UpsertCollectible(_ context.Context, c *domain.Collectible) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	c.UpdatedAt = time.Now()
	s.rows[c.AssetID] = *c
	return nil
}

func (s *memStore) FetchCollectible(_ context.Context, assetID int64) (*domain.Collectible, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[assetID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) FetchAllCollectibles(context.Context) ([]domain.Collectible, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Collectible, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) ListStaleCollectibles(ctx context.Context, limit int) ([]domain.Collectible, error) {
	all, _ := s.FetchAllCollectibles(ctx)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) CountCollectibles(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Ping(context.Context) error    { return nil }

func (s *memStore) upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertCalls
}

type fakeInventory struct {
	assets []domain.Asset
	err    error
	calls  atomic.Int32
}

func (f *fakeInventory) GetInventory(context.Context, int64) ([]domain.Asset, error) {
	f.calls.Add(1)
	return f.assets, f.err
}

// feedServer serves a Rolimons-shaped itemdetails payload and counts
// fetches.
func feedServer(t *testing.T, rows map[string][]any) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		payload := map[string]any{
			"item_count": len(rows),
			"items":      rows,
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func defaultRows() map[string][]any {
	// Row layout: [name, acronym, rap, value, default_value, demand,
	// trend, projected, hyped, rare].
	return map[string][]any{
		"1365767":  {"Red Baseball Cap", "RBC", 15000, 18000, -1, 2, 1, 0, 0, 0},
		"20573078": {"Shaggy", "", 35000, -1, -1, -1, -1, 0, 0, 0},
		"62724852": {"Clockwork's Headphones", "CWH", 250000, 300000, -1, 4, 2, 0, 0, 1},
	}
}

func asset(id int64) domain.Asset {
	return domain.Asset{AssetID: id, Raw: map[string]any{"assetId": float64(id)}}
}

func TestItemDetails_Lookup(t *testing.T) {
	t.Parallel()

	details := &valuation.ItemDetails{
		ItemCount: 3,
		Items: map[string][]any{
			"1365767": {"Red Baseball Cap", "RBC", float64(15000), float64(18000)},
			"20573078": {"Shaggy", "", float64(35000), float64(-1)},
			"99":      {"truncated row"},
		},
	}

	v, ok := details.Lookup(1365767)
	require.True(t, ok)
	assert.Equal(t, "Red Baseball Cap", v.Name)
	assert.Equal(t, int64(15000), v.RAP)
	assert.Equal(t, int64(18000), v.Value)

	v, ok = details.Lookup(20573078)
	require.True(t, ok)
	assert.Zero(t, v.Value, "unvalued items read as zero")

	_, ok = details.Lookup(99)
	assert.False(t, ok, "truncated rows are not valuations")

	_, ok = details.Lookup(424242)
	assert.False(t, ok)
}

func TestManager_Details_SnapshotSharedWithinTTL(t *testing.T) {
	t.Parallel()

	srv, hits := feedServer(t, defaultRows())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return clock
	}

	m := valuation.NewManager(newMemStore(), &fakeInventory{},
		valuation.WithDetailsURL(srv.URL),
		valuation.WithManagerNowFunc(now),
	)
	ctx := context.Background()

	first, err := m.Details(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.ItemCount)

	second, err := m.Details(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "snapshot is reused within the TTL")

	clockMu.Lock()
	clock = clock.Add(61 * time.Second)
	clockMu.Unlock()

	_, err = m.Details(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "stale snapshot triggers a refetch")
}

func TestManager_Details_BadStatusIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	m := valuation.NewManager(newMemStore(), &fakeInventory{},
		valuation.WithDetailsURL(srv.URL),
	)

	_, err := m.Details(context.Background())

	var unhandled *roblox.UnhandledResponseError
	require.ErrorAs(t, err, &unhandled)
	assert.Equal(t, http.StatusBadGateway, unhandled.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestManager_Details_TransportFailureRetriesWithFlatDelay(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead := srv.URL
	srv.Close()

	var mu sync.Mutex
	var delays []time.Duration
	m := valuation.NewManager(newMemStore(), &fakeInventory{},
		valuation.WithDetailsURL(dead),
		valuation.WithManagerSleepFunc(func(_ context.Context, d time.Duration) error {
			mu.Lock()
			defer mu.Unlock()
			delays = append(delays, d)
			return nil
		}),
	)

	_, err := m.Details(context.Background())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delays, 5)
	for _, d := range delays {
		assert.Equal(t, time.Minute, d)
	}
}

func TestManager_SyncNewCollectibles(t *testing.T) {
	t.Parallel()

	srv, hits := feedServer(t, defaultRows())
	st := newMemStore(domain.Collectible{AssetID: 1365767, Name: "Red Baseball Cap"})
	inv := &fakeInventory{assets: []domain.Asset{
		asset(1365767), asset(20573078), asset(62724852),
	}}

	m := valuation.NewManager(st, inv, valuation.WithDetailsURL(srv.URL))

	require.NoError(t, m.SyncNewCollectibles(context.Background()))

	assert.Equal(t, int32(1), inv.calls.Load())
	assert.Equal(t, 2, st.upserts(), "only untracked collectibles are inserted")
	assert.Equal(t, int32(1), hits.Load(), "one feed snapshot serves the whole scan")

	got, err := st.FetchCollectible(context.Background(), 62724852)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Clockwork's Headphones", got.Name)
	assert.Equal(t, int64(250000), got.RAP)
	assert.Equal(t, int64(300000), got.Value)
}

func TestManager_SyncNewCollectibles_SkipsItemsMissingFromFeed(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t, defaultRows())
	st := newMemStore()
	inv := &fakeInventory{assets: []domain.Asset{asset(1365767), asset(424242)}}

	m := valuation.NewManager(st, inv, valuation.WithDetailsURL(srv.URL))

	require.NoError(t, m.SyncNewCollectibles(context.Background()))
	assert.Equal(t, 1, st.upserts(), "items the feed does not know yet are skipped")
}

func TestManager_SyncNewCollectibles_InventoryErrorPropagates(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t, defaultRows())
	inv := &fakeInventory{err: fmt.Errorf("listing collapsed")}

	m := valuation.NewManager(newMemStore(), inv, valuation.WithDetailsURL(srv.URL))

	err := m.SyncNewCollectibles(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning catalog inventory")
}

func TestManager_RefreshCollectibles(t *testing.T) {
	t.Parallel()

	srv, hits := feedServer(t, defaultRows())
	st := newMemStore(
		domain.Collectible{AssetID: 1365767, Name: "Red Baseball Cap", RAP: 1},
		domain.Collectible{AssetID: 62724852, Name: "Clockwork's Headphones", RAP: 1},
	)

	m := valuation.NewManager(st, &fakeInventory{}, valuation.WithDetailsURL(srv.URL))

	require.NoError(t, m.RefreshCollectibles(context.Background()))

	assert.Equal(t, 2, st.upserts())
	assert.Equal(t, int32(1), hits.Load())

	got, err := st.FetchCollectible(context.Background(), 1365767)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(15000), got.RAP)
}

func TestManager_Valuation(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t, defaultRows())
	m := valuation.NewManager(newMemStore(), &fakeInventory{},
		valuation.WithDetailsURL(srv.URL),
	)
	ctx := context.Background()

	v, err := m.Valuation(ctx, 1365767)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), v.RAP)

	_, err = m.Valuation(ctx, 424242)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in item details feed")
}

func TestNewScheduler_RegistersBothTasks(t *testing.T) {
	t.Parallel()

	srv, _ := feedServer(t, defaultRows())
	m := valuation.NewManager(newMemStore(), &fakeInventory{},
		valuation.WithDetailsURL(srv.URL),
	)

	s, err := valuation.NewScheduler(m, time.Hour, time.Minute, logger.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 2)
}
