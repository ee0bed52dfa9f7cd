package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	DefaultPriceURL = "https://mempool.space/api/v1/prices"

	priceCacheTTL = 30 * time.Second
	priceCacheKey = "btcusd"

	// price is reported in whole USD and converted to 8-decimal fixed
	// point for the spell layer
	priceScale = 100_000_000
)

// PriceClient reads the BTC/USD spot price from a mempool.space style
// price endpoint. This is deliberately a single-source feed: aggregation
// is out of scope, and the value is frozen at spell construction anyway.
type PriceClient struct {
	url   string
	httpc *http.Client
	cache *ttlcache.Cache[string, uint64]
}

func NewPriceClient(url string) *PriceClient {
	c := &PriceClient{
		url:   url,
		httpc: &http.Client{Timeout: 15 * time.Second},
		cache: ttlcache.New[string, uint64](
			ttlcache.WithTTL[string, uint64](priceCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, uint64](),
		),
	}
	go c.cache.Start()
	return c
}

func (c *PriceClient) Close() {
	c.cache.Stop()
}

// BtcPriceUsd returns the current BTC/USD price, 8-decimal fixed point.
func (c *PriceClient) BtcPriceUsd(ctx context.Context) (uint64, error) {
	if item := c.cache.Get(priceCacheKey); item != nil {
		return item.Value(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: status %d: %s", c.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		USD float64 `json:"USD"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}
	if payload.USD <= 0 {
		return 0, fmt.Errorf("non-positive price in response: %v", payload.USD)
	}

	price := uint64(payload.USD * priceScale)
	c.cache.Set(priceCacheKey, price, ttlcache.DefaultTTL)
	return price, nil
}
