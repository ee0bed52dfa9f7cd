/*
SpellService is the top-level coordinator of spell construction and retry.

The hard constraint it enforces: once a UTXO has been submitted to the
prover with one spell, every retry must resubmit a byte-identical spell.
Dynamic inputs (price, block height) are therefore frozen exactly once
per new construction, the result is persisted as the pending record, and
a retry reuses that record only when the params and both UTXOs match the
recorded ones exactly. Any mismatch forces a fresh construction with
freshly frozen values.

The service itself is stateless apart from the two injected stores; a
per-owner mutex around the public entry points serializes concurrent
construction for the same owner.
*/
package spellservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/zkusd-io/spellbind/pendingstore"
	"github.com/zkusd-io/spellbind/spell"
	"github.com/zkusd-io/spellbind/spellcache"
	"github.com/zkusd-io/spellbind/spellhash"
	"github.com/zkusd-io/spellbind/utxo"
)

type SpellService struct {
	pending *pendingstore.Store
	cache   *spellcache.SpellCacheManager
	chain   BlockHeightReader
	price   PriceFeed
	build   Builder

	// one mutex per owner address, protecting build paths
	mu       sync.Mutex
	ownerMus map[string]*sync.Mutex
}

func NewSpellService(
	pending *pendingstore.Store,
	cache *spellcache.SpellCacheManager,
	chain BlockHeightReader,
	price PriceFeed,
	build Builder,
) *SpellService {
	return &SpellService{
		pending:  pending,
		cache:    cache,
		chain:    chain,
		price:    price,
		build:    build,
		ownerMus: make(map[string]*sync.Mutex),
	}
}

// Cache exposes the availability cache, for selector wiring and for
// marking submission outcomes.
func (s *SpellService) Cache() *spellcache.SpellCacheManager {
	return s.cache
}

func (s *SpellService) ownerLock(ownerAddress string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.ownerMus[ownerAddress]
	if !ok {
		m = &sync.Mutex{}
		s.ownerMus[ownerAddress] = m
	}
	return m
}

// FetchFrozenValues captures the current block height and BTC/USD price
// and stamps them. Called exactly once per new spell construction, never
// on a reuse path.
func (s *SpellService) FetchFrozenValues(ctx context.Context) (spell.FrozenValues, error) {
	height, err := s.chain.GetBlockHeight(ctx)
	if err != nil {
		return spell.FrozenValues{}, fmt.Errorf("fetch block height: %w", err)
	}
	price, err := s.price.BtcPriceUsd(ctx)
	if err != nil {
		return spell.FrozenValues{}, fmt.Errorf("fetch btc price: %w", err)
	}
	frozen := spell.FrozenValues{
		BtcPriceUsd: price,
		BlockHeight: height,
		FrozenAt:    time.Now(),
	}
	logger.WithFields(logger.Fields{
		"btcPriceUsd": price,
		"blockHeight": height,
	}).Debug("froze dynamic spell values")
	return frozen, nil
}

// CheckPendingSpell reports the live pending record, if any, in a
// caller-friendly shape. Returns nil when no live record exists.
func (s *SpellService) CheckPendingSpell(currentParams spell.Params) (*PendingSpellInfo, error) {
	record, err := s.pending.Get(&currentParams, false)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	hash, err := spellhash.Hash(record.Body)
	if err != nil {
		return nil, err
	}

	expiresIn := s.pending.TTL() - time.Since(record.CreatedAt)
	if expiresIn < 0 {
		expiresIn = 0
	}

	return &PendingSpellInfo{
		Record:        record,
		SpellHash:     hash,
		ExpiresIn:     expiresIn,
		MatchesParams: record.Params.Matches(currentParams),
	}, nil
}

// BuildSpell constructs a new spell. When frozen is nil, fresh dynamic
// values are fetched; passing a non-nil frozen pins them (used when the
// caller already froze values for this logical operation). The result is
// persisted as the pending record before it is returned.
func (s *SpellService) BuildSpell(ctx context.Context, params spell.Params, collateralUtxo, feeUtxo utxo.Info, frozen *spell.FrozenValues) (*SpellContext, error) {
	lock := s.ownerLock(params.OwnerAddress)
	lock.Lock()
	defer lock.Unlock()

	return s.buildLocked(ctx, params, collateralUtxo, feeUtxo, frozen)
}

func (s *SpellService) buildLocked(ctx context.Context, params spell.Params, collateralUtxo, feeUtxo utxo.Info, frozen *spell.FrozenValues) (*SpellContext, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}

	if frozen == nil {
		fetched, err := s.FetchFrozenValues(ctx)
		if err != nil {
			return nil, err
		}
		frozen = &fetched
	}

	if err := ValidateParamsAtPrice(params, frozen.BtcPriceUsd); err != nil {
		return nil, err
	}

	body, err := s.build(params, collateralUtxo, feeUtxo, *frozen)
	if err != nil {
		return nil, fmt.Errorf("build spell: %w", err)
	}

	hash, err := spellhash.Hash(body)
	if err != nil {
		return nil, err
	}
	vaultID := spellhash.DeriveVaultID(collateralUtxo.ID())

	if err := s.pending.Save(body, collateralUtxo.ID(), feeUtxo.ID(), params, *frozen); err != nil {
		return nil, fmt.Errorf("persist pending spell: %w", err)
	}

	logger.WithFields(logger.Fields{
		"spellHash":      hash.Hex(),
		"vaultId":        vaultID.Hex(),
		"collateralUtxo": collateralUtxo.ID(),
		"feeUtxo":        feeUtxo.ID(),
	}).Info("built new spell")

	return &SpellContext{
		Body:           body,
		Hash:           hash,
		CollateralUtxo: collateralUtxo,
		FeeUtxo:        feeUtxo,
		Frozen:         *frozen,
		Params:         params,
		VaultID:        vaultID,
	}, nil
}

// GetOrCreateSpell reuses the pending spell when it targets exactly the
// same logical operation AND exactly the same UTXOs; otherwise it builds
// afresh (including new frozen values).
//
// The exact-UTXO-match requirement is load-bearing: reusing a spell body
// with different UTXOs would silently desynchronize the spell's committed
// inputs from the transaction's actual inputs.
func (s *SpellService) GetOrCreateSpell(ctx context.Context, params spell.Params, collateralUtxo, feeUtxo utxo.Info) (*SpellContext, error) {
	lock := s.ownerLock(params.OwnerAddress)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.pending.Get(&params, true)
	if err != nil {
		return nil, err
	}

	if record != nil &&
		record.Params.Matches(params) &&
		record.CollateralUtxoID == collateralUtxo.ID() &&
		record.FeeUtxoID == feeUtxo.ID() {

		hash, err := spellhash.Hash(record.Body)
		if err != nil {
			return nil, err
		}

		logger.WithFields(logger.Fields{
			"spellHash":      hash.Hex(),
			"collateralUtxo": record.CollateralUtxoID,
		}).Info("reusing pending spell")

		return &SpellContext{
			Body:           record.Body,
			Hash:           hash,
			CollateralUtxo: collateralUtxo,
			FeeUtxo:        feeUtxo,
			Frozen:         record.Frozen,
			Params:         record.Params,
			VaultID:        spellhash.DeriveVaultID(record.CollateralUtxoID),
		}, nil
	}

	return s.buildLocked(ctx, params, collateralUtxo, feeUtxo, nil)
}

// ClearPending empties the pending slot. Callers must invoke this after a
// confirmed success or an explicit user cancellation; a stale record left
// behind could incorrectly satisfy a later CheckPendingSpell if the
// parameters happen to coincide.
func (s *SpellService) ClearPending() error {
	return s.pending.Clear()
}

// ValidateParams is the orchestrator-surface wrapper of the package-level
// validation.
func (s *SpellService) ValidateParams(params spell.Params) error {
	return ValidateParams(params)
}
