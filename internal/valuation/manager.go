// Package valuation keeps the local collectible valuation cache in
// step with the Rolimons item details feed and the Roblox catalog.
package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dawnbot/dawn/internal/metrics"
	"github.com/dawnbot/dawn/internal/roblox"
	"github.com/dawnbot/dawn/internal/store"
	"github.com/dawnbot/dawn/pkg/logger"
	domain "github.com/dawnbot/dawn/pkg/types"
)

const (
	defaultDetailsURL = "https://www.rolimons.com/itemapi/itemdetails"
	defaultDetailsTTL = time.Minute

	// The inventory of the Roblox user account (ID 1) holds one copy of
	// every collectible ever issued, which makes it a free catalog.
	defaultCatalogUserID = 1

	detailsRetryCeiling = 5
	detailsRetryDelay   = time.Minute
)

// InventorySource supplies user inventories. *roblox.Account satisfies
// it.
type InventorySource interface {
	GetInventory(ctx context.Context, userID int64) ([]domain.Asset, error)
}

// ItemValuation is one collectible's worth according to Rolimons.
type ItemValuation struct {
	Name  string
	RAP   int64
	Value int64
}

// ItemDetails is the Rolimons itemdetails payload. Each row is a
// positional array; only name, RAP and value are read.
type ItemDetails struct {
	ItemCount int              `json:"item_count"`
	Items     map[string][]any `json:"items"`
}

// Lookup returns the valuation for an asset ID, if Rolimons knows it.
func (d *ItemDetails) Lookup(assetID int64) (ItemValuation, bool) {
	row, ok := d.Items[strconv.FormatInt(assetID, 10)]
	if !ok || len(row) < 4 {
		return ItemValuation{}, false
	}

	v := ItemValuation{
		RAP:   rowInt(row[2]),
		Value: rowInt(row[3]),
	}
	if name, ok := row[0].(string); ok {
		v.Name = name
	}
	return v, true
}

// rowInt coerces a positional JSON cell to int64. Absent valuations
// come through as -1 or null; both read as 0.
func rowInt(cell any) int64 {
	f, ok := cell.(float64)
	if !ok || f < 0 {
		return 0
	}
	return int64(f)
}

// Manager keeps the collectible table current: it discovers newly
// issued collectibles from the catalog inventory and refreshes
// valuations from the Rolimons feed. The feed snapshot is cached for a
// TTL and shared by all callers; one fetch at a time.
type Manager struct {
	store  store.Store
	source InventorySource
	client *http.Client
	log    *slog.Logger

	detailsURL    string
	detailsTTL    time.Duration
	catalogUserID int64
	nowFunc       func() time.Time
	sleepFunc     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	details   *ItemDetails
	fetchedAt time.Time
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// WithDetailsURL overrides the Rolimons itemdetails endpoint.
func WithDetailsURL(u string) ManagerOption {
	return func(m *Manager) {
		m.detailsURL = u
	}
}

// WithDetailsTTL overrides how long a feed snapshot is reused.
func WithDetailsTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.detailsTTL = d
	}
}

// WithCatalogUserID overrides the user whose inventory serves as the
// collectible catalog.
func WithCatalogUserID(id int64) ManagerOption {
	return func(m *Manager) {
		m.catalogUserID = id
	}
}

// WithManagerHTTPClient overrides the HTTP client used for the feed.
func WithManagerHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) {
		m.client = c
	}
}

// WithManagerNowFunc overrides the time function for testing.
func WithManagerNowFunc(f func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = f
	}
}

// WithManagerSleepFunc overrides the retry sleep for testing.
func WithManagerSleepFunc(f func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		m.sleepFunc = f
	}
}

// NewManager creates a valuation manager over the given store and
// inventory source.
func NewManager(s store.Store, source InventorySource, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         s,
		source:        source,
		client:        &http.Client{Timeout: 30 * time.Second},
		log:           logger.NewNop(),
		detailsURL:    defaultDetailsURL,
		detailsTTL:    defaultDetailsTTL,
		catalogUserID: defaultCatalogUserID,
		nowFunc:       time.Now,
		sleepFunc: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Details returns a feed snapshot no older than the TTL. Concurrent
// callers during a refresh wait for the in-flight fetch; the lock
// covers the staleness check so a cold start costs one fetch, not one
// per caller.
func (m *Manager) Details(ctx context.Context) (*ItemDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.details != nil && m.nowFunc().Sub(m.fetchedAt) < m.detailsTTL {
		return m.details, nil
	}

	details, err := m.fetchDetails(ctx)
	if err != nil {
		metrics.ValuationSyncErrorsTotal.Inc()
		return nil, err
	}

	m.details = details
	m.fetchedAt = m.nowFunc()
	return details, nil
}

// fetchDetails pulls the feed, waiting out transport failures with a
// flat delay. Feed outages are overwhelmingly local connectivity blips,
// so the delay stays flat instead of backing off.
func (m *Manager) fetchDetails(ctx context.Context) (*ItemDetails, error) {
	for attempt := 0; ; attempt++ {
		details, err := m.fetchDetailsOnce(ctx)
		if err == nil {
			return details, nil
		}

		var unhandled *roblox.UnhandledResponseError
		if errors.As(err, &unhandled) || attempt >= detailsRetryCeiling {
			return nil, err
		}

		m.log.Warn("item details fetch failed, retrying",
			"attempt", attempt+1,
			"delay", detailsRetryDelay,
			"error", err,
		)
		if err := m.sleepFunc(ctx, detailsRetryDelay); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) fetchDetailsOnce(ctx context.Context) (*ItemDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.detailsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching item details: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading item details: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &roblox.UnhandledResponseError{
			StatusCode: resp.StatusCode,
			URL:        m.detailsURL,
		}
	}

	var details ItemDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, &roblox.UnhandledResponseError{
			StatusCode: resp.StatusCode,
			URL:        m.detailsURL,
			Err:        err,
		}
	}

	return &details, nil
}

// SyncNewCollectibles scans the catalog inventory and inserts any
// collectible not yet tracked.
func (m *Manager) SyncNewCollectibles(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.ValuationSyncDuration.Observe(time.Since(start).Seconds())
	}()

	assets, err := m.source.GetInventory(ctx, m.catalogUserID)
	if err != nil {
		metrics.ValuationSyncErrorsTotal.Inc()
		return fmt.Errorf("scanning catalog inventory: %w", err)
	}

	tracked, err := m.store.FetchAllCollectibles(ctx)
	if err != nil {
		metrics.ValuationSyncErrorsTotal.Inc()
		return fmt.Errorf("loading tracked collectibles: %w", err)
	}

	known := make(map[int64]struct{}, len(tracked))
	for _, c := range tracked {
		known[c.AssetID] = struct{}{}
	}

	added := 0
	for _, asset := range assets {
		if _, ok := known[asset.AssetID]; ok {
			continue
		}
		if err := m.updateCollectible(ctx, asset.AssetID); err != nil {
			metrics.ValuationSyncErrorsTotal.Inc()
			return err
		}
		added++
	}

	if n, err := m.store.CountCollectibles(ctx); err == nil {
		metrics.CollectiblesTracked.Set(float64(n))
	}

	m.log.Info("new collectible scan finished",
		"catalog_items", len(assets),
		"added", added,
	)
	return nil
}

// RefreshCollectibles re-reads every tracked collectible's valuation
// from the feed. Rows are updated one at a time; fanning out would
// spike memory on the full catalog for no gain since the feed snapshot
// is shared anyway.
func (m *Manager) RefreshCollectibles(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.ValuationSyncDuration.Observe(time.Since(start).Seconds())
	}()

	tracked, err := m.store.FetchAllCollectibles(ctx)
	if err != nil {
		metrics.ValuationSyncErrorsTotal.Inc()
		return fmt.Errorf("loading tracked collectibles: %w", err)
	}

	for _, c := range tracked {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.updateCollectible(ctx, c.AssetID); err != nil {
			metrics.ValuationSyncErrorsTotal.Inc()
			return err
		}
	}

	m.log.Info("valuation refresh finished", "collectibles", len(tracked))
	return nil
}

// Valuation returns the current feed valuation for one collectible.
func (m *Manager) Valuation(ctx context.Context, assetID int64) (ItemValuation, error) {
	details, err := m.Details(ctx)
	if err != nil {
		return ItemValuation{}, err
	}

	v, ok := details.Lookup(assetID)
	if !ok {
		return ItemValuation{}, fmt.Errorf("collectible %d not in item details feed", assetID)
	}
	return v, nil
}

func (m *Manager) updateCollectible(ctx context.Context, assetID int64) error {
	details, err := m.Details(ctx)
	if err != nil {
		return err
	}

	v, ok := details.Lookup(assetID)
	if !ok {
		// Newly issued items can lag the feed by a scan interval.
		m.log.Debug("collectible not in feed yet, skipping", "asset_id", assetID)
		return nil
	}

	c := &domain.Collectible{
		AssetID: assetID,
		Name:    v.Name,
		RAP:     v.RAP,
		Value:   v.Value,
	}
	if err := m.store.UpsertCollectible(ctx, c); err != nil {
		return fmt.Errorf("storing collectible %d: %w", assetID, err)
	}
	return nil
}
