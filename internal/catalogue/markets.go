package catalogue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxPageSize is the largest page the catalogue endpoint will return.
const maxPageSize = 1000

// ListMarkets fetches a page of the market catalogue.
func (c *Client) ListMarkets(ctx context.Context, opts ListMarketsOptions) (*MarketsResponse, error) {
	query := url.Values{}

	if len(opts.EventTypeIDs) > 0 {
		query.Set("eventTypeIds", strings.Join(opts.EventTypeIDs, ","))
	}
	if len(opts.MarketTypes) > 0 {
		query.Set("marketTypes", strings.Join(opts.MarketTypes, ","))
	}
	if len(opts.CountryCodes) > 0 {
		query.Set("countryCodes", strings.Join(opts.CountryCodes, ","))
	}
	if len(opts.MarketIDs) > 0 {
		query.Set("marketIds", strings.Join(opts.MarketIDs, ","))
	}
	if !opts.StartTimeTo.IsZero() {
		query.Set("startTimeTo", opts.StartTimeTo.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var resp MarketsResponse
	if err := c.get(ctx, "/markets", query, &resp); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	return &resp, nil
}

// ListAllMarkets fetches every catalogue entry matching the given options
// by paginating through results.
func (c *Client) ListAllMarkets(ctx context.Context, opts ListMarketsOptions) ([]APIMarket, error) {
	var allMarkets []APIMarket
	opts.Limit = maxPageSize

	for {
		resp, err := c.ListMarkets(ctx, opts)
		if err != nil {
			return nil, err
		}

		allMarkets = append(allMarkets, resp.Markets...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return allMarkets, nil
}

// GetMarketBook fetches the current order book for a market.
func (c *Client) GetMarketBook(ctx context.Context, marketID string) (*MarketBookResponse, error) {
	var resp MarketBookResponse
	if err := c.get(ctx, "/markets/"+marketID+"/book", nil, &resp); err != nil {
		return nil, fmt.Errorf("get market book %s: %w", marketID, err)
	}

	return &resp, nil
}
