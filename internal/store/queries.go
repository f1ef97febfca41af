package store

// SQL lives here as constants; PostgresStore methods reference them.

const (
	queryUpsertCollectible = `
		INSERT INTO collectibles (asset_id, name, rap, value, updated_at)
		VALUES (@asset_id, @name, @rap, @value, now())
		ON CONFLICT (asset_id) DO UPDATE SET
			name = EXCLUDED.name,
			rap = EXCLUDED.rap,
			value = EXCLUDED.value,
			updated_at = now()
		RETURNING updated_at`

	queryFetchCollectible = `
		SELECT asset_id, name, rap, value, updated_at
		FROM collectibles
		WHERE asset_id = $1`

	queryFetchAllCollectibles = `
		SELECT asset_id, name, rap, value, updated_at
		FROM collectibles
		ORDER BY asset_id`

	queryListStaleCollectibles = `
		SELECT asset_id, name, rap, value, updated_at
		FROM collectibles
		ORDER BY updated_at ASC
		LIMIT $1`

	queryCountCollectibles = `
		SELECT count(*) FROM collectibles`
)
