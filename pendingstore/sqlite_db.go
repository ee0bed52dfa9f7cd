/*
SQLitePendingStorage is the durable backend of the pending spell store.

A single-row table (id forced to 1) holds the most recent in-flight spell
attempt. Satoshi and debt amounts are stored as TEXT so the encoding stays
big-integer-safe regardless of the sqlite INTEGER width.
*/
package pendingstore

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/zkusd-io/spellbind/common"
	"github.com/zkusd-io/spellbind/database"
	"github.com/zkusd-io/spellbind/spell"
)

// PendingStorage defines the persistence operations for the single-slot
// pending spell record.
type PendingStorage interface {
	// Save overwrites the slot unconditionally.
	Save(record spell.PendingRecord) error

	// Load retrieves the slot. Returns (nil, false, nil) when empty.
	Load() (*spell.PendingRecord, bool, error)

	// Clear empties the slot. Idempotent.
	Clear() error
}

type SQLitePendingStorage struct {
	stmtcache *database.StmtCache
}

var pendingSpellTable = `CREATE TABLE IF NOT EXISTS pending_spell (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	body TEXT NOT NULL,
	collateral_utxo_id TEXT NOT NULL,
	fee_utxo_id TEXT NOT NULL,
	collateral_sats TEXT NOT NULL,
	debt_units TEXT NOT NULL,
	owner_pubkey CHAR(66) NOT NULL,
	owner_address TEXT NOT NULL,
	btc_price_usd TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	frozen_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);`

var (
	querySavePending = `INSERT OR REPLACE INTO pending_spell (
		id, body, collateral_utxo_id, fee_utxo_id, collateral_sats, debt_units,
		owner_pubkey, owner_address, btc_price_usd, block_height, frozen_at, created_at
	) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	queryLoadPending = `SELECT body, collateral_utxo_id, fee_utxo_id, collateral_sats, debt_units,
		owner_pubkey, owner_address, btc_price_usd, block_height, frozen_at, created_at
		FROM pending_spell WHERE id = 1;`
	queryClearPending = `DELETE FROM pending_spell WHERE id = 1;`
)

func NewSQLitePendingStorage(db *sql.DB) (*SQLitePendingStorage, error) {
	if _, err := db.Exec(pendingSpellTable); err != nil {
		return nil, err
	}
	return &SQLitePendingStorage{stmtcache: database.NewStmtCache(db)}, nil
}

func (s *SQLitePendingStorage) Close() {
	s.stmtcache.Clear()
}

func (s *SQLitePendingStorage) Save(record spell.PendingRecord) error {
	stmt, err := s.stmtcache.Prepare(querySavePending)
	if err != nil {
		return err
	}

	body, err := json.Marshal(record.Body)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		string(body),
		record.CollateralUtxoID,
		record.FeeUtxoID,
		strconv.FormatUint(record.Params.CollateralSats, 10),
		strconv.FormatUint(record.Params.DebtUnits, 10),
		common.ByteSliceToPureHexStr(record.Params.OwnerPublicKey),
		record.Params.OwnerAddress,
		strconv.FormatUint(record.Frozen.BtcPriceUsd, 10),
		record.Frozen.BlockHeight,
		record.Frozen.FrozenAt.UnixMilli(),
		record.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLitePendingStorage) Load() (*spell.PendingRecord, bool, error) {
	stmt, err := s.stmtcache.Prepare(queryLoadPending)
	if err != nil {
		return nil, false, err
	}

	var (
		body           string
		collateralUtxo string
		feeUtxo        string
		collateralSats string
		debtUnits      string
		ownerPubkey    string
		ownerAddress   string
		btcPriceUsd    string
		blockHeight    int64
		frozenAtMs     int64
		createdAtMs    int64
	)
	if err := stmt.QueryRow().Scan(
		&body,
		&collateralUtxo,
		&feeUtxo,
		&collateralSats,
		&debtUnits,
		&ownerPubkey,
		&ownerAddress,
		&btcPriceUsd,
		&blockHeight,
		&frozenAtMs,
		&createdAtMs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	var spellBody spell.Body
	if err := json.Unmarshal([]byte(body), &spellBody); err != nil {
		return nil, false, err
	}
	collateral, err := strconv.ParseUint(collateralSats, 10, 64)
	if err != nil {
		return nil, false, err
	}
	debt, err := strconv.ParseUint(debtUnits, 10, 64)
	if err != nil {
		return nil, false, err
	}
	price, err := strconv.ParseUint(btcPriceUsd, 10, 64)
	if err != nil {
		return nil, false, err
	}

	record := &spell.PendingRecord{
		Body:             spellBody,
		CollateralUtxoID: collateralUtxo,
		FeeUtxoID:        feeUtxo,
		Params: spell.Params{
			CollateralSats: collateral,
			DebtUnits:      debt,
			OwnerPublicKey: common.HexStrToByteSlice(ownerPubkey),
			OwnerAddress:   ownerAddress,
		},
		Frozen: spell.FrozenValues{
			BtcPriceUsd: price,
			BlockHeight: blockHeight,
			FrozenAt:    time.UnixMilli(frozenAtMs),
		},
		CreatedAt: time.UnixMilli(createdAtMs),
	}
	return record, true, nil
}

func (s *SQLitePendingStorage) Clear() error {
	stmt, err := s.stmtcache.Prepare(queryClearPending)
	if err != nil {
		return err
	}
	_, err = stmt.Exec()
	return err
}
