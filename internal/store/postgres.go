package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/dawnbot/dawn/pkg/types"
)

const defaultPoolSize = 10

// PostgresStore implements Store using pgxpool (connection-pooled
// PostgreSQL).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore with connection pooling.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	cfg.MaxConns = defaultPoolSize

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close gracefully shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending SQL schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, s.pool)
}

// UpsertCollectible inserts or updates a collectible by asset ID.
func (s *PostgresStore) UpsertCollectible(ctx context.Context, c *domain.Collectible) error {
	args := pgx.NamedArgs{
		"asset_id": c.AssetID,
		"name":     c.Name,
		"rap":      c.RAP,
		"value":    c.Value,
	}

	if err := s.pool.QueryRow(ctx, queryUpsertCollectible, args).Scan(&c.UpdatedAt); err != nil {
		return fmt.Errorf("upserting collectible %d: %w", c.AssetID, err)
	}
	return nil
}

// FetchCollectible retrieves a collectible by asset ID. A missing row
// is not an error; it returns (nil, nil).
func (s *PostgresStore) FetchCollectible(ctx context.Context, assetID int64) (*domain.Collectible, error) {
	c := &domain.Collectible{}
	err := scanCollectible(s.pool.QueryRow(ctx, queryFetchCollectible, assetID), c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching collectible %d: %w", assetID, err)
	}
	return c, nil
}

// FetchAllCollectibles returns every tracked collectible.
func (s *PostgresStore) FetchAllCollectibles(ctx context.Context) ([]domain.Collectible, error) {
	return s.queryCollectibles(ctx, queryFetchAllCollectibles)
}

// ListStaleCollectibles returns up to limit collectibles, least
// recently updated first.
func (s *PostgresStore) ListStaleCollectibles(ctx context.Context, limit int) ([]domain.Collectible, error) {
	return s.queryCollectibles(ctx, queryListStaleCollectibles, limit)
}

// CountCollectibles returns the number of tracked collectibles.
func (s *PostgresStore) CountCollectibles(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, queryCountCollectibles).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting collectibles: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) queryCollectibles(
	ctx context.Context,
	query string,
	args ...any,
) ([]domain.Collectible, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying collectibles: %w", err)
	}
	defer rows.Close()

	var collectibles []domain.Collectible
	for rows.Next() {
		var c domain.Collectible
		if err := scanCollectible(rows, &c); err != nil {
			return nil, fmt.Errorf("scanning collectible: %w", err)
		}
		collectibles = append(collectibles, c)
	}

	return collectibles, rows.Err()
}

// scannable abstracts pgx.Row and pgx.Rows for reuse.
type scannable interface {
	Scan(dest ...any) error
}

func scanCollectible(row scannable, c *domain.Collectible) error {
	return row.Scan(&c.AssetID, &c.Name, &c.RAP, &c.Value, &c.UpdatedAt)
}
