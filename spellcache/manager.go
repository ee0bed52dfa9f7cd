/*
SpellCacheManager tracks which spell each UTXO was last submitted with.

The remote prover memoizes a UTXO-to-spell binding: once a UTXO has been
submitted with one spell it can never be validly submitted with a
different one until the prover's own cache entry expires. This manager
mirrors that state locally so submission attempts can be gated before
burning a UTXO. The TTL must match or exceed the prover's cache lifetime
to be meaningful; it is an operational assumption, not derived.
*/
package spellcache

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/zkusd-io/spellbind/spell"
	"github.com/zkusd-io/spellbind/spellhash"
)

// DefaultTTL mirrors the prover-side cache expiry.
const DefaultTTL = time.Hour

const (
	ReasonBurned   = "burned: UTXO reserved by prover cache for a different spell; retry after TTL or use a different UTXO"
	ReasonReserved = "reserved by a different spell"
)

// Availability is the answer to "may this UTXO be submitted with this
// spell right now".
type Availability struct {
	CanUse bool
	// CachedBody, when set, is the exact body previously submitted with
	// this UTXO. Callers should resubmit it rather than a freshly built
	// object: hashing equal is the only guarantee given, not full
	// representational equality.
	CachedBody spell.Body
	Reason     string
}

type SpellCacheManager struct {
	backend EntryStorage
	ttl     time.Duration

	// serializes read-modify-write cycles on individual entries
	mu sync.Mutex
}

func NewSpellCacheManager(backend EntryStorage, ttl time.Duration) *SpellCacheManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SpellCacheManager{backend: backend, ttl: ttl}
}

// CheckAvailability reports whether utxoID may be submitted with the
// candidate spell. Expired entries are purged as a side effect.
//
// A failed entry blocks reuse even when the candidate hashes equal to it:
// one failure burns the UTXO until TTL expiry. This is deliberately
// conservative; the prover-side state after a failure is unknowable from
// here, so the UTXO is treated as unsafe for the whole window.
func (m *SpellCacheManager) CheckAvailability(utxoID string, candidate spell.Body) (*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, found, err := m.backend.GetByUtxoID(utxoID)
	if err != nil {
		// A broken local cache row must never block the workflow;
		// losing the optimization is safe, refusing to proceed is not.
		logger.WithField("utxoId", utxoID).Warnf("spell cache load failed, treating as empty: %v", err)
		_ = m.backend.DeleteByUtxoID(utxoID)
		return &Availability{CanUse: true}, nil
	}
	if !found {
		return &Availability{CanUse: true}, nil
	}

	if entry.Expired(time.Now(), m.ttl) {
		if err := m.backend.DeleteByUtxoID(utxoID); err != nil {
			return nil, err
		}
		return &Availability{CanUse: true}, nil
	}

	if entry.Status == StatusFailed {
		return &Availability{CanUse: false, Reason: ReasonBurned}, nil
	}

	candidateHash, err := spellhash.Hash(candidate)
	if err != nil {
		return nil, err
	}
	if entry.SpellHash == candidateHash {
		return &Availability{CanUse: true, CachedBody: entry.Body}, nil
	}

	return &Availability{CanUse: false, Reason: ReasonReserved}, nil
}

// RegisterAttempt records a submission attempt of body with utxoID.
// An existing entry keeps its original CreatedAt (the TTL counts from
// first use, not latest retry) and has its retry count incremented.
func (m *SpellCacheManager) RegisterAttempt(utxoID string, body spell.Body) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := spellhash.Hash(body)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		UtxoID:    utxoID,
		SpellHash: h,
		Body:      body,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}

	prev, found, err := m.backend.GetByUtxoID(utxoID)
	if err != nil {
		logger.WithField("utxoId", utxoID).Warnf("spell cache load failed, registering fresh: %v", err)
	} else if found {
		entry.CreatedAt = prev.CreatedAt
		entry.RetryCount = prev.RetryCount + 1
	}

	if err := m.backend.Upsert(entry); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"utxoId":    utxoID,
		"spellHash": h.Hex(),
		"retry":     entry.RetryCount,
	}).Debug("registered spell submission attempt")

	return &entry, nil
}

// MarkSuccess moves the entry to its terminal success state: the UTXO is
// considered consumed. No-op if no entry exists.
func (m *SpellCacheManager) MarkSuccess(utxoID string) error {
	return m.setTerminal(utxoID, StatusSuccess, "")
}

// MarkFailed moves the entry to its terminal failed state, recording the
// remote error. The UTXO is treated as burned until TTL expiry.
// No-op if no entry exists.
func (m *SpellCacheManager) MarkFailed(utxoID string, errorMessage string) error {
	return m.setTerminal(utxoID, StatusFailed, errorMessage)
}

func (m *SpellCacheManager) setTerminal(utxoID string, status EntryStatus, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, found, err := m.backend.GetByUtxoID(utxoID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	entry.Status = status
	entry.ErrorMessage = errorMessage
	return m.backend.Upsert(*entry)
}

// ListBurned returns the UTXOs with an unexpired failed entry.
func (m *SpellCacheManager) ListBurned() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.backend.QueryByStatus(StatusFailed)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	burned := []string{}
	for i := range entries {
		if !entries[i].Expired(now, m.ttl) {
			burned = append(burned, entries[i].UtxoID)
		}
	}
	return burned, nil
}

// PurgeExpired removes every entry older than the TTL.
func (m *SpellCacheManager) PurgeExpired() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired, err := m.backend.QueryCreatedBefore(time.Now().Add(-m.ttl))
	if err != nil {
		return err
	}
	for i := range expired {
		if err := m.backend.DeleteByUtxoID(expired[i].UtxoID); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns every live entry, for status reporting.
func (m *SpellCacheManager) Entries() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.backend.QueryAll()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	live := []Entry{}
	for i := range all {
		if !all[i].Expired(now, m.ttl) {
			live = append(live, all[i])
		}
	}
	return live, nil
}
