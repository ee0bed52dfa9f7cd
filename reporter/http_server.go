// This is a http type of reporter.
// It fetches data from the spell cache and pending store
// and publishes it on http routes for the UI, so a "burned UTXO"
// condition stays distinguishable from "network down".

package reporter

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zkusd-io/spellbind/pendingstore"
	"github.com/zkusd-io/spellbind/spellcache"
)

const (
	ROUTE_HEALTH  = "/health"
	ROUTE_PENDING = "/pending"
	ROUTE_BURNED  = "/burned"
	ROUTE_CACHE   = "/cache"
)

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port

	// upstream data sources
	cache   *spellcache.SpellCacheManager
	pending *pendingstore.Store
}

func NewHttpReporter(serverIP string, serverPort string, cache *spellcache.SpellCacheManager, pending *pendingstore.Store) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		cache:      cache,
		pending:    pending,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_HEALTH, Health)
	router.GET(ROUTE_PENDING, h.Pending)
	router.GET(ROUTE_BURNED, h.Burned)
	router.GET(ROUTE_CACHE, h.Cache)

	return router
}

// Hook up router & ip:port
func (h *HttpReporter) Run() {
	router := h.SetupRouter()
	address := h.serverIP + ":" + h.serverPort
	if err := router.Run(address); err != nil {
		panic(err)
	}
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Publish the live pending spell record, if any.
func (h *HttpReporter) Pending(c *gin.Context) {
	record, err := h.pending.Get(nil, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"pending": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending": gin.H{
			"collateralUtxo": record.CollateralUtxoID,
			"feeUtxo":        record.FeeUtxoID,
			"createdAt":      record.CreatedAt.UnixMilli(),
			"blockHeight":    record.Frozen.BlockHeight,
			"btcPriceUsd":    record.Frozen.BtcPriceUsd,
		},
	})
}

// Publish the UTXOs currently burned at the prover.
func (h *HttpReporter) Burned(c *gin.Context) {
	burned, err := h.cache.ListBurned()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"burned": burned})
}

// Publish every live cache entry.
func (h *HttpReporter) Cache(c *gin.Context) {
	entries, err := h.cache.Entries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, gin.H{
			"utxoId":     entries[i].UtxoID,
			"spellHash":  entries[i].SpellHash.Hex(),
			"status":     entries[i].Status,
			"retryCount": entries[i].RetryCount,
			"createdAt":  entries[i].CreatedAt.UnixMilli(),
			"error":      entries[i].ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}
