/*
Esplora-backed bitcoin data provider.

Thin read-only wrapper over an esplora-compatible REST API (blockstream,
mempool.space, or a self-hosted electrs). Raw transactions and fee
estimates are memoized with short TTLs: confirmed raw transactions never
change, and the fee estimate only needs block-level freshness.
*/
package chaindata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jellydator/ttlcache/v3"
	logger "github.com/sirupsen/logrus"

	"github.com/zkusd-io/spellbind/utxo"
)

const (
	DefaultBaseURL = "https://blockstream.info/testnet/api"

	rawTxCacheTTL = 10 * time.Minute
	feeCacheTTL   = 2 * time.Minute

	feeCacheKey = "fee"
)

// TxInfo is a transaction as seen by the data provider.
type TxInfo struct {
	TxID        string
	Hex         string // raw transaction, hex encoded
	Confirmed   bool
	BlockHeight int64 // 0 while unconfirmed
}

// Outspend reports whether a specific output has been spent.
type Outspend struct {
	Spent        bool
	SpendingTxID string
}

type Client struct {
	baseURL string
	httpc   *http.Client

	rawTxCache *ttlcache.Cache[string, string]
	feeCache   *ttlcache.Cache[string, float64]
}

func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		rawTxCache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](rawTxCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		feeCache: ttlcache.New[string, float64](
			ttlcache.WithTTL[string, float64](feeCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, float64](),
		),
	}
	go c.rawTxCache.Start()
	go c.feeCache.Start()
	return c
}

func (c *Client) Close() {
	c.rawTxCache.Stop()
	c.feeCache.Stop()
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// esplora wire shapes
type esploraStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

type esploraTx struct {
	TxID   string        `json:"txid"`
	Status esploraStatus `json:"status"`
}

type esploraUtxo struct {
	TxID   string        `json:"txid"`
	Vout   uint32        `json:"vout"`
	Value  int64         `json:"value"`
	Status esploraStatus `json:"status"`
}

type esploraOutspend struct {
	Spent bool   `json:"spent"`
	TxID  string `json:"txid"`
}

// GetTransaction fetches a transaction's raw hex and confirmation status.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*TxInfo, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return nil, fmt.Errorf("malformed txid %q: %w", txid, err)
	}

	body, err := c.get(ctx, "/tx/"+txid)
	if err != nil {
		return nil, err
	}
	var tx esploraTx
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("decode tx %s: %w", txid, err)
	}

	hex, err := c.getRawTxHex(ctx, txid, tx.Status.Confirmed)
	if err != nil {
		return nil, err
	}

	return &TxInfo{
		TxID:        tx.TxID,
		Hex:         hex,
		Confirmed:   tx.Status.Confirmed,
		BlockHeight: tx.Status.BlockHeight,
	}, nil
}

func (c *Client) getRawTxHex(ctx context.Context, txid string, confirmed bool) (string, error) {
	if item := c.rawTxCache.Get(txid); item != nil {
		return item.Value(), nil
	}

	body, err := c.get(ctx, "/tx/"+txid+"/hex")
	if err != nil {
		return "", err
	}
	hex := strings.TrimSpace(string(body))

	// only confirmed transactions are safe to memoize; an unconfirmed
	// one can be replaced
	if confirmed {
		c.rawTxCache.Set(txid, hex, ttlcache.DefaultTTL)
	}
	return hex, nil
}

// GetAddressUtxos lists the unspent outputs of an address.
func (c *Client) GetAddressUtxos(ctx context.Context, address string) ([]utxo.Info, error) {
	body, err := c.get(ctx, "/address/"+address+"/utxo")
	if err != nil {
		return nil, err
	}
	var raw []esploraUtxo
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode utxos of %s: %w", address, err)
	}

	infos := make([]utxo.Info, 0, len(raw))
	for _, u := range raw {
		infos = append(infos, utxo.Info{
			TxID:      u.TxID,
			Vout:      u.Vout,
			ValueSats: u.Value,
			Confirmed: u.Status.Confirmed,
		})
	}
	return infos, nil
}

// GetOutspend reports the spend status of a specific output.
func (c *Client) GetOutspend(ctx context.Context, txid string, vout uint32) (*Outspend, error) {
	body, err := c.get(ctx, fmt.Sprintf("/tx/%s/outspend/%d", txid, vout))
	if err != nil {
		return nil, err
	}
	var raw esploraOutspend
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode outspend %s:%d: %w", txid, vout, err)
	}
	return &Outspend{Spent: raw.Spent, SpendingTxID: raw.TxID}, nil
}

// GetBlockHeight returns the current chain tip height.
func (c *Client) GetBlockHeight(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode tip height: %w", err)
	}
	return height, nil
}

// GetFeeEstimate returns the sat/vB estimate for next-block confirmation.
func (c *Client) GetFeeEstimate(ctx context.Context) (float64, error) {
	if item := c.feeCache.Get(feeCacheKey); item != nil {
		return item.Value(), nil
	}

	body, err := c.get(ctx, "/fee-estimates")
	if err != nil {
		return 0, err
	}
	var estimates map[string]float64
	if err := json.Unmarshal(body, &estimates); err != nil {
		return 0, fmt.Errorf("decode fee estimates: %w", err)
	}

	fee, ok := estimates["1"]
	if !ok {
		// esplora keys estimates by confirmation target; fall back to
		// the fastest available one
		for _, v := range estimates {
			if v > fee {
				fee = v
			}
		}
	}
	if fee <= 0 {
		return 0, fmt.Errorf("no usable fee estimate in response")
	}

	c.feeCache.Set(feeCacheKey, fee, ttlcache.DefaultTTL)
	logger.WithField("satPerVb", fee).Debug("refreshed fee estimate")
	return fee, nil
}
