package spellcache

import (
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/zkusd-io/spellbind/spell"
)

// EntryStatus is the lifecycle state of a cache entry.
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusSuccess EntryStatus = "success"
	StatusFailed  EntryStatus = "failed"
)

// Entry records which spell a UTXO was last submitted with.
// At most one live (unexpired) entry exists per UTXO, and its SpellHash
// is the sole spell the UTXO may currently be resubmitted with: the
// remote prover memoizes the binding and rejects anything else.
type Entry struct {
	UtxoID       string         // "<txid>:<vout>"
	SpellHash    ethcommon.Hash // content hash of Body
	Body         spell.Body     // the exact spell submitted, kept for reuse
	CreatedAt    time.Time      // first attempt; preserved across retries
	Status       EntryStatus
	ErrorMessage string // set on markFailed
	RetryCount   int
}

// Expired reports whether the entry is older than ttl at the given time.
func (e *Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// EntryStorage defines the persistence operations for cache entries.
// Implementations must survive process restarts; the manager layers
// TTL and availability semantics on top.
type EntryStorage interface {
	// Upsert inserts the entry, replacing any previous entry for the
	// same UTXO.
	Upsert(entry Entry) error

	// GetByUtxoID retrieves the entry for a UTXO.
	// Returns (nil, false, nil) when none exists.
	GetByUtxoID(utxoID string) (*Entry, bool, error)

	// DeleteByUtxoID removes the entry for a UTXO. No-op if absent.
	DeleteByUtxoID(utxoID string) error

	// QueryByStatus retrieves all entries with the given status.
	QueryByStatus(status EntryStatus) ([]Entry, error)

	// QueryCreatedBefore retrieves all entries created strictly before t.
	QueryCreatedBefore(t time.Time) ([]Entry, error)

	// QueryAll retrieves every entry.
	QueryAll() ([]Entry, error)
}
