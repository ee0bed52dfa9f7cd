/*
Store holds the single in-flight spell attempt so a failed proving or
broadcast attempt can be resumed without fabricating a new, incompatible
spell. Only one operation is in flight at a time by design: this is a
user-facing single-threaded workflow, not a queue, and the slot has
last-write-wins semantics. Concurrent construction of two spells for the
same owner must be serialized by the caller.
*/
package pendingstore

import (
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/zkusd-io/spellbind/spell"
)

// DefaultTTL is the lifetime of a pending record, deliberately shorter
// than the availability-cache TTL.
const DefaultTTL = 30 * time.Minute

type Store struct {
	backend PendingStorage
	ttl     time.Duration
}

func NewStore(backend PendingStorage, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{backend: backend, ttl: ttl}
}

// TTL returns the configured record lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Save overwrites the slot with a new pending record stamped now.
func (s *Store) Save(body spell.Body, collateralUtxoID, feeUtxoID string, params spell.Params, frozen spell.FrozenValues) error {
	return s.backend.Save(spell.PendingRecord{
		Body:             body,
		CollateralUtxoID: collateralUtxoID,
		FeeUtxoID:        feeUtxoID,
		Params:           params,
		Frozen:           frozen,
		CreatedAt:        time.Now(),
	})
}

// Get returns the live pending record, or nil when there is none.
//
// The record is invalidated (cleared and nil returned) when:
//   - it is older than the TTL;
//   - currentParams is given and its owner public key differs — a
//     different signer can never reuse another signer's pending spell,
//     strict or not;
//   - strict is set and collateral or debt differ from the stored params.
//
// Frozen values are returned exactly as stored, never recomputed.
func (s *Store) Get(currentParams *spell.Params, strict bool) (*spell.PendingRecord, error) {
	record, found, err := s.backend.Load()
	if err != nil {
		// A corrupt slot reads as empty; the pending record is a retry
		// optimization, not a source of truth.
		logger.Warnf("pending spell load failed, clearing slot: %v", err)
		return nil, s.backend.Clear()
	}
	if !found {
		return nil, nil
	}

	if time.Since(record.CreatedAt) > s.ttl {
		logger.WithField("createdAt", record.CreatedAt).Debug("pending spell expired")
		return nil, s.backend.Clear()
	}

	if currentParams != nil {
		if !record.Params.SameOwner(*currentParams) {
			logger.Debug("pending spell owner mismatch, invalidating")
			return nil, s.backend.Clear()
		}
		if strict &&
			(record.Params.CollateralSats != currentParams.CollateralSats ||
				record.Params.DebtUnits != currentParams.DebtUnits) {
			logger.Debug("pending spell params mismatch under strict check, invalidating")
			return nil, s.backend.Clear()
		}
	}

	return record, nil
}

// Clear empties the slot. Idempotent; always succeeds on an empty slot.
func (s *Store) Clear() error {
	return s.backend.Clear()
}
