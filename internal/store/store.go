// Package store defines the datastore abstraction for tracked
// collectible valuations. Business logic depends on the Store
// interface, never on concrete implementations, so it can be tested
// without a running database.
package store

import (
	"context"

	domain "github.com/dawnbot/dawn/pkg/types"
)

// Store defines all data access operations for collectible valuations.
type Store interface {
	// Collectibles
	UpsertCollectible(ctx context.Context, c *domain.Collectible) error
	FetchCollectible(ctx context.Context, assetID int64) (*domain.Collectible, error)
	FetchAllCollectibles(ctx context.Context) ([]domain.Collectible, error)
	ListStaleCollectibles(ctx context.Context, limit int) ([]domain.Collectible, error)
	CountCollectibles(ctx context.Context) (int64, error)

	// Migrations
	Migrate(ctx context.Context) error

	// Health
	Ping(ctx context.Context) error
}
