/*
This file contains the shared data structures of the spell subsystem.
  - Body: the structured spell document handed to the prover.
  - Params: identifies the logical operation a spell encodes.
  - FrozenValues: dynamic inputs captured once per construction attempt.
  - PendingRecord: the single-slot in-flight spell attempt.
*/
package spell

import (
	"bytes"
	"time"
)

// DebtDecimals is the fixed-point scale of zkUSD debt units.
// 1 zkUSD = 1e8 base units, same scale as satoshis.
const DebtDecimals = 8

// DebtOne is one whole zkUSD in base units.
const DebtOne uint64 = 100_000_000

// Body is the structured spell document. It is built by an external
// spell builder and passed through to the prover; this subsystem only
// canonicalizes and hashes it, it never interprets individual fields.
type Body map[string]interface{}

// Params identifies the logical operation a spell encodes
// (e.g. open a vault with this much collateral and debt).
type Params struct {
	CollateralSats uint64 // collateral locked, in satoshi
	DebtUnits      uint64 // debt minted, 8-decimal fixed point
	OwnerPublicKey []byte // compressed public key of the vault owner
	OwnerAddress   string // btc address of the vault owner
}

// Matches reports whether two Params describe the same logical operation.
// All fields must be equal.
func (p Params) Matches(other Params) bool {
	return p.CollateralSats == other.CollateralSats &&
		p.DebtUnits == other.DebtUnits &&
		bytes.Equal(p.OwnerPublicKey, other.OwnerPublicKey) &&
		p.OwnerAddress == other.OwnerAddress
}

// SameOwner reports whether two Params share the same owner public key.
func (p Params) SameOwner(other Params) bool {
	return bytes.Equal(p.OwnerPublicKey, other.OwnerPublicKey)
}

// FrozenValues are the dynamic inputs (price, block height) captured once
// when a spell is first constructed. Retries of the same logical operation
// must reuse them bit-identically, otherwise the spell hash diverges and
// the bound UTXO becomes unusable at the prover.
type FrozenValues struct {
	BtcPriceUsd uint64    // BTC/USD, 8-decimal fixed point
	BlockHeight int64     // btc block height at capture time
	FrozenAt    time.Time // capture timestamp
}

// PendingRecord is the single-slot durable record of the most recent
// in-flight spell attempt. At most one live instance exists; it is owned
// by the orchestrator, which alone may create or delete it.
type PendingRecord struct {
	Body             Body
	CollateralUtxoID string // "<txid>:<vout>" of the collateral input
	FeeUtxoID        string // "<txid>:<vout>" of the fee/funding input
	Params           Params
	Frozen           FrozenValues
	CreatedAt        time.Time
}
