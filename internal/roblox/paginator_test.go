package roblox_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawnbot/dawn/internal/roblox"
)

type inventoryItem struct {
	AssetID int64  `json:"assetId"`
	Name    string `json:"name"`
}

// pagedListing serves fixed pages keyed by cursor, in the
// {data, nextPageCursor} envelope.
func pagedListing(pages map[string]struct {
	items []inventoryItem
	next  *string
}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":           page.items,
			"nextPageCursor": page.next,
		})
	}
}

func makeItems(start, n int) []inventoryItem {
	items := make([]inventoryItem, n)
	for i := range n {
		items[i] = inventoryItem{
			AssetID: int64(start + i),
			Name:    fmt.Sprintf("Item %d", start+i),
		}
	}
	return items
}

func strPtr(s string) *string { return &s }

func TestPaginator_CollectAll_StitchesAllPages(t *testing.T) {
	t.Parallel()

	pages := map[string]struct {
		items []inventoryItem
		next  *string
	}{
		"":         {items: makeItems(1, 100), next: strPtr("cursor-a")},
		"cursor-a": {items: makeItems(101, 100), next: strPtr("cursor-b")},
		"cursor-b": {items: makeItems(201, 50), next: nil},
	}

	f := newFakeAPI(t, pagedListing(pages))
	engine := newTestEngine(f)
	paginator := roblox.NewPaginator(engine)

	assets, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))
	require.NoError(t, err)

	assert.Len(t, assets, 250)
	assert.Equal(t, int64(1), assets[0].AssetID)
	assert.Equal(t, int64(250), assets[249].AssetID)
	assert.Equal(t, "Item 42", assets[41].Name())
	assert.Equal(t, int32(3), f.primaryCalls.Load(), "one request per page")
}

func TestPaginator_CollectAll_SinglePage(t *testing.T) {
	t.Parallel()

	pages := map[string]struct {
		items []inventoryItem
		next  *string
	}{
		"": {items: makeItems(1, 7), next: nil},
	}

	f := newFakeAPI(t, pagedListing(pages))
	paginator := roblox.NewPaginator(newTestEngine(f))

	assets, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))
	require.NoError(t, err)
	assert.Len(t, assets, 7)
	assert.Equal(t, int32(1), f.primaryCalls.Load())
}

func TestPaginator_CollectAll_EmptyListing(t *testing.T) {
	t.Parallel()

	pages := map[string]struct {
		items []inventoryItem
		next  *string
	}{
		"": {items: nil, next: nil},
	}

	f := newFakeAPI(t, pagedListing(pages))
	paginator := roblox.NewPaginator(newTestEngine(f))

	assets, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestPaginator_CollectAll_EmptyStringCursorEndsListing(t *testing.T) {
	t.Parallel()

	// Some endpoints signal the last page with "" instead of null.
	pages := map[string]struct {
		items []inventoryItem
		next  *string
	}{
		"": {items: makeItems(1, 3), next: strPtr("")},
	}

	f := newFakeAPI(t, pagedListing(pages))
	paginator := roblox.NewPaginator(newTestEngine(f))

	assets, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))
	require.NoError(t, err)
	assert.Len(t, assets, 3)
	assert.Equal(t, int32(1), f.primaryCalls.Load())
}

func TestPaginator_CollectAll_MalformedBody(t *testing.T) {
	t.Parallel()

	f := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html>definitely not json</html>")
	})
	paginator := roblox.NewPaginator(newTestEngine(f))

	_, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))

	var unhandled *roblox.UnhandledResponseError
	require.ErrorAs(t, err, &unhandled)
	assert.Equal(t, http.StatusOK, unhandled.StatusCode)
}

func TestPaginator_CollectAll_ItemMissingAssetID(t *testing.T) {
	t.Parallel()

	f := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"name":"no id here"}],"nextPageCursor":null}`)
	})
	paginator := roblox.NewPaginator(newTestEngine(f))

	_, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))

	var unhandled *roblox.UnhandledResponseError
	require.ErrorAs(t, err, &unhandled)
}

func TestPaginator_CollectAll_EngineErrorsPropagate(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	f := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		// First page succeeds, second page hits a revoked cookie.
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"data":[{"assetId":1}],"nextPageCursor":"cursor-a"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	paginator := roblox.NewPaginator(newTestEngine(f))

	_, err := paginator.CollectAll(context.Background(), f.url("/inventory?limit=100"))

	var cookieErr *roblox.InvalidCookieError
	require.ErrorAs(t, err, &cookieErr)
}
