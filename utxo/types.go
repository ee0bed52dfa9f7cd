/*
This file contains low-level data structures for bitcoin UTXOs as seen by
the spell subsystem.
  - Info: a read-only view of an unspent output from the data provider.
  - ID/ParseID: the canonical "<txid>:<vout>" identifier form.
*/
package utxo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Info represents an unspent transaction output as reported by the
// bitcoin data provider. It is referenced, never owned: the UTXO itself
// lives on the ledger and this system never mutates it.
type Info struct {
	TxID      string // 64-character hexadecimal string, no 0x prefix
	Vout      uint32 // exact index of the Tx's outputs
	ValueSats int64  // in satoshi
	Confirmed bool   // whether the funding tx is in a block
}

// ID returns the canonical "<txid>:<vout>" identifier.
func (u *Info) ID() string {
	return ID(u.TxID, u.Vout)
}

// Hash returns the txid in chainhash form, for tx lookups.
func (u *Info) Hash() (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(u.TxID)
}

// Return a human-readable amount in BTC
// eg. 1e8 (satoshi) = 1.0 (BTC)
func (u *Info) AmountHuman() float64 {
	return float64(u.ValueSats) / 1e8
}

// ID formats the canonical UTXO identifier.
func ID(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// ParseID splits a canonical identifier back into txid and vout.
func ParseID(id string) (string, uint32, error) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("malformed utxo id %q", id)
	}
	txid := id[:idx]
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return "", 0, fmt.Errorf("malformed txid in utxo id %q: %w", id, err)
	}
	vout, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("malformed vout in utxo id %q: %w", id, err)
	}
	return txid, uint32(vout), nil
}
