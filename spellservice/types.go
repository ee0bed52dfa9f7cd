package spellservice

import (
	"context"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/zkusd-io/spellbind/spell"
	"github.com/zkusd-io/spellbind/utxo"
)

// BlockHeightReader is the slice of the bitcoin data provider the
// orchestrator needs for freezing dynamic values.
type BlockHeightReader interface {
	GetBlockHeight(ctx context.Context) (int64, error)
}

// PriceFeed reports the current BTC/USD price in 8-decimal fixed point.
type PriceFeed interface {
	BtcPriceUsd(ctx context.Context) (uint64, error)
}

// Builder constructs the spell document for the logical operation.
// It must be deterministic in its arguments: all dynamic inputs come
// through frozen, so a retry with identical arguments yields an
// identical document.
type Builder func(params spell.Params, collateralUtxo, feeUtxo utxo.Info, frozen spell.FrozenValues) (spell.Body, error)

// SpellContext is the full result of a spell construction: everything a
// caller needs to submit the spell and track its vault.
type SpellContext struct {
	Body           spell.Body
	Hash           ethcommon.Hash
	CollateralUtxo utxo.Info
	FeeUtxo        utxo.Info
	Frozen         spell.FrozenValues
	Params         spell.Params
	VaultID        ethcommon.Hash
}

// PendingSpellInfo is the caller-facing view of the pending slot.
type PendingSpellInfo struct {
	Record    *spell.PendingRecord
	SpellHash ethcommon.Hash // recomputed from the record body, never stored
	ExpiresIn time.Duration  // remaining lifetime of the record
	// MatchesParams is exact field equality with the queried params,
	// independent of the store's own invalidation rules.
	MatchesParams bool
}
