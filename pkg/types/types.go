// Package types defines the core domain types shared across dawn.
package types

import (
	"encoding/json"
	"errors"
	"time"
)

// Identity is the authenticated Roblox account as reported by the
// users API.
type Identity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Asset is a single inventory item. Beyond the asset ID the payload is
// passed through untouched; the remote API adds and removes fields
// without notice and nothing downstream depends on them.
type Asset struct {
	AssetID int64
	Raw     map[string]any
}

// ErrMissingAssetID reports an inventory entry without an assetId field.
var ErrMissingAssetID = errors.New("inventory entry missing assetId")

// UnmarshalJSON validates assetId presence and keeps the rest opaque.
func (a *Asset) UnmarshalJSON(data []byte) error {
	var probe struct {
		AssetID *int64 `json:"assetId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.AssetID == nil {
		return ErrMissingAssetID
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.AssetID = *probe.AssetID
	a.Raw = raw
	return nil
}

// MarshalJSON emits the original payload.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Raw)
}

// Name returns the item name from the raw payload, if present.
func (a Asset) Name() string {
	if n, ok := a.Raw["name"].(string); ok {
		return n
	}
	return ""
}

// Collectible is one row of the local valuation cache.
type Collectible struct {
	AssetID   int64
	Name      string
	RAP       int64
	Value     int64
	UpdatedAt time.Time
}
