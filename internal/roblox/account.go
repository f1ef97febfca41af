package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dawnbot/dawn/internal/metrics"
	"github.com/dawnbot/dawn/pkg/logger"
	domain "github.com/dawnbot/dawn/pkg/types"
)

const (
	defaultIdentityURL  = "https://users.roblox.com/v1/users/authenticated"
	defaultInventoryURL = "https://inventory.roblox.com/v1/users/%d/assets/collectibles?sortOrder=Asc&limit=100"

	defaultInventoryCacheTTL = 30 * time.Second
)

// ErrNotAuthenticated is returned by identity-dependent operations
// before Authenticate has succeeded.
var ErrNotAuthenticated = errors.New("not authenticated: call Authenticate first")

// Account is the user-facing facade over one authenticated session:
// authenticate, fetch inventories, done. The authenticated user's own
// inventory is cached briefly since it backs every subsequent action;
// other users' inventories are always fetched fresh.
type Account struct {
	engine    *Engine
	paginator *Paginator
	log       *slog.Logger

	identityURL  string
	inventoryURL string
	cacheTTL     time.Duration
	nowFunc      func() time.Time

	// invMu is the single-flight gate for the self-inventory cache:
	// the first caller past the TTL fetches, everyone else waits for
	// and reuses that result.
	invMu        sync.Mutex
	inv          []domain.Asset
	invFetchedAt time.Time
}

// AccountOption configures the Account.
type AccountOption func(*Account)

// WithAccountLogger sets the logger.
func WithAccountLogger(l *slog.Logger) AccountOption {
	return func(a *Account) {
		a.log = l
	}
}

// WithIdentityURL overrides the identity endpoint.
func WithIdentityURL(u string) AccountOption {
	return func(a *Account) {
		a.identityURL = u
	}
}

// WithInventoryURL overrides the inventory endpoint template. Must
// contain one %d verb for the user ID.
func WithInventoryURL(u string) AccountOption {
	return func(a *Account) {
		a.inventoryURL = u
	}
}

// WithInventoryCacheTTL overrides how long the self-inventory cache is
// served before refetching.
func WithInventoryCacheTTL(d time.Duration) AccountOption {
	return func(a *Account) {
		a.cacheTTL = d
	}
}

// WithNowFunc overrides the time function for testing.
func WithNowFunc(f func() time.Time) AccountOption {
	return func(a *Account) {
		a.nowFunc = f
	}
}

// NewAccount creates the facade on top of a request engine.
func NewAccount(engine *Engine, opts ...AccountOption) *Account {
	a := &Account{
		engine:       engine,
		log:          logger.NewNop(),
		identityURL:  defaultIdentityURL,
		inventoryURL: defaultInventoryURL,
		cacheTTL:     defaultInventoryCacheTTL,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.paginator = NewPaginator(engine, WithPaginatorLogger(a.log))
	return a
}

// Close releases the underlying HTTP connections.
func (a *Account) Close() {
	a.engine.Close()
}

// Authenticate resolves and records the identity behind the session
// cookie. Engine errors propagate untranslated.
func (a *Account) Authenticate(ctx context.Context) (domain.Identity, error) {
	resp, err := a.engine.Execute(ctx, http.MethodGet, a.identityURL, nil)
	if err != nil {
		return domain.Identity{}, err
	}

	var ident domain.Identity
	if err := json.Unmarshal(resp.Body, &ident); err != nil {
		return domain.Identity{}, &UnhandledResponseError{
			StatusCode: resp.StatusCode,
			URL:        a.identityURL,
			Err:        err,
		}
	}

	a.engine.Session().SetIdentity(ident)
	a.log.Info("authenticated", "user_id", ident.ID, "name", ident.Name)
	return ident, nil
}

// Identity returns the authenticated identity.
func (a *Account) Identity() (domain.Identity, error) {
	ident, ok := a.engine.Session().Identity()
	if !ok {
		return domain.Identity{}, ErrNotAuthenticated
	}
	return ident, nil
}

// GetInventory returns the full inventory of the given user. The
// authenticated user's own inventory goes through the cache; everyone
// else's is fetched fresh every time.
func (a *Account) GetInventory(ctx context.Context, userID int64) ([]domain.Asset, error) {
	if ident, ok := a.engine.Session().Identity(); ok && ident.ID == userID {
		return a.Inventory(ctx)
	}
	return a.paginator.CollectAll(ctx, fmt.Sprintf(a.inventoryURL, userID))
}

// Inventory returns the authenticated user's inventory, served from
// cache while fresher than the TTL. Concurrent callers during a refresh
// wait for the in-flight fetch rather than issuing their own; a failed
// refresh leaves the previous value in place for the next attempt.
func (a *Account) Inventory(ctx context.Context) ([]domain.Asset, error) {
	ident, err := a.Identity()
	if err != nil {
		return nil, err
	}

	a.invMu.Lock()
	defer a.invMu.Unlock()

	if !a.invFetchedAt.IsZero() && a.nowFunc().Sub(a.invFetchedAt) < a.cacheTTL {
		metrics.InventoryCacheHits.Inc()
		return a.inv, nil
	}

	metrics.InventoryCacheMisses.Inc()
	assets, err := a.paginator.CollectAll(ctx, fmt.Sprintf(a.inventoryURL, ident.ID))
	if err != nil {
		return nil, err
	}

	a.inv = assets
	a.invFetchedAt = a.nowFunc()
	return assets, nil
}
