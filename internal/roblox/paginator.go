package roblox

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dawnbot/dawn/pkg/logger"
	domain "github.com/dawnbot/dawn/pkg/types"
)

// Paginator stitches a cursor-paginated listing into one result. It
// never interprets the items beyond asset ID presence: pages arrive in
// server order and are appended as-is, duplicates included.
type Paginator struct {
	engine *Engine
	log    *slog.Logger
}

// PaginatorOption configures the Paginator.
type PaginatorOption func(*Paginator)

// WithPaginatorLogger sets the logger.
func WithPaginatorLogger(l *slog.Logger) PaginatorOption {
	return func(p *Paginator) {
		p.log = l
	}
}

// NewPaginator creates a Paginator on top of the given request engine.
func NewPaginator(engine *Engine, opts ...PaginatorOption) *Paginator {
	p := &Paginator{
		engine: engine,
		log:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type listingPage struct {
	Data           []domain.Asset `json:"data"`
	NextPageCursor *string        `json:"nextPageCursor"`
}

// CollectAll fetches every page reachable from baseURL, following the
// server-issued cursor until it is absent, and returns the stitched
// items. Engine errors propagate unchanged.
//
// The loop is iterative with an explicit accumulator: page count grows
// with the remote inventory (dozens of pages for large accounts, no
// upper bound), so recursive accumulation is off the table.
func (p *Paginator) CollectAll(ctx context.Context, baseURL string) ([]domain.Asset, error) {
	var assets []domain.Asset
	cursor := ""
	pages := 0

	for {
		u := baseURL
		if cursor != "" {
			u += "&cursor=" + url.QueryEscape(cursor)
		}

		resp, err := p.engine.Execute(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		var page listingPage
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, &UnhandledResponseError{
				StatusCode: resp.StatusCode,
				URL:        u,
				Err:        err,
			}
		}

		assets = append(assets, page.Data...)
		pages++

		if page.NextPageCursor == nil || *page.NextPageCursor == "" {
			break
		}
		cursor = *page.NextPageCursor
	}

	p.log.Debug("listing collected", "pages", pages, "items", len(assets))
	return assets, nil
}
