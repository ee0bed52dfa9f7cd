/*
SQLiteEntryStorage is the durable backend of the availability cache.

It uses SQLite as the underlying storage engine. The spell body is stored
as canonical-agnostic JSON text: the body is opaque here, only equality of
its content hash matters, and the hash column is what queries key on.
*/
package spellcache

import (
	"database/sql"
	"encoding/json"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/zkusd-io/spellbind/database"
	"github.com/zkusd-io/spellbind/spell"
)

type SQLiteEntryStorage struct {
	stmtcache *database.StmtCache
}

var spellCacheTable = `CREATE TABLE IF NOT EXISTS spell_cache (
	utxo_id TEXT PRIMARY KEY NOT NULL,
	spell_hash CHAR(64) NOT NULL,
	body TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	status VARCHAR(10) NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	CONSTRAINT chk_status CHECK (status IN ('pending', 'success', 'failed'))
);
CREATE INDEX IF NOT EXISTS idx_spell_cache_status ON spell_cache (status);`

var (
	queryUpsertEntry = `INSERT OR REPLACE INTO spell_cache (
		utxo_id, spell_hash, body, created_at, status, error_message, retry_count
	) VALUES (?, ?, ?, ?, ?, ?, ?);`
	queryGetEntryByUtxoID    = `SELECT utxo_id, spell_hash, body, created_at, status, error_message, retry_count FROM spell_cache WHERE utxo_id = ?;`
	queryDeleteEntryByUtxoID = `DELETE FROM spell_cache WHERE utxo_id = ?;`
	queryEntriesByStatus     = `SELECT utxo_id, spell_hash, body, created_at, status, error_message, retry_count FROM spell_cache WHERE status = ?;`
	queryEntriesBefore       = `SELECT utxo_id, spell_hash, body, created_at, status, error_message, retry_count FROM spell_cache WHERE created_at < ?;`
	queryAllEntries          = `SELECT utxo_id, spell_hash, body, created_at, status, error_message, retry_count FROM spell_cache;`
)

func NewSQLiteEntryStorage(db *sql.DB) (*SQLiteEntryStorage, error) {
	if _, err := db.Exec(spellCacheTable); err != nil {
		return nil, err
	}
	return &SQLiteEntryStorage{stmtcache: database.NewStmtCache(db)}, nil
}

func (s *SQLiteEntryStorage) Close() {
	s.stmtcache.Clear()
}

// sqlEntry mirrors Entry with db-friendly column types.
// Timestamps are unix milliseconds.
type sqlEntry struct {
	UtxoID       string
	SpellHash    string
	Body         string
	CreatedAtMs  int64
	Status       string
	ErrorMessage string
	RetryCount   int
}

func (se *sqlEntry) encode(e *Entry) error {
	body, err := json.Marshal(e.Body)
	if err != nil {
		return err
	}
	se.UtxoID = e.UtxoID
	se.SpellHash = e.SpellHash.Hex()[2:]
	se.Body = string(body)
	se.CreatedAtMs = e.CreatedAt.UnixMilli()
	se.Status = string(e.Status)
	se.ErrorMessage = e.ErrorMessage
	se.RetryCount = e.RetryCount
	return nil
}

func (se *sqlEntry) decode() (*Entry, error) {
	var body spell.Body
	if err := json.Unmarshal([]byte(se.Body), &body); err != nil {
		return nil, err
	}
	return &Entry{
		UtxoID:       se.UtxoID,
		SpellHash:    ethcommon.HexToHash("0x" + se.SpellHash),
		Body:         body,
		CreatedAt:    time.UnixMilli(se.CreatedAtMs),
		Status:       EntryStatus(se.Status),
		ErrorMessage: se.ErrorMessage,
		RetryCount:   se.RetryCount,
	}, nil
}

func (s *SQLiteEntryStorage) Upsert(entry Entry) error {
	stmt, err := s.stmtcache.Prepare(queryUpsertEntry)
	if err != nil {
		return err
	}

	var se sqlEntry
	if err := se.encode(&entry); err != nil {
		return err
	}

	_, err = stmt.Exec(
		se.UtxoID,
		se.SpellHash,
		se.Body,
		se.CreatedAtMs,
		se.Status,
		se.ErrorMessage,
		se.RetryCount,
	)
	return err
}

func (s *SQLiteEntryStorage) GetByUtxoID(utxoID string) (*Entry, bool, error) {
	stmt, err := s.stmtcache.Prepare(queryGetEntryByUtxoID)
	if err != nil {
		return nil, false, err
	}

	var se sqlEntry
	if err := stmt.QueryRow(utxoID).Scan(
		&se.UtxoID,
		&se.SpellHash,
		&se.Body,
		&se.CreatedAtMs,
		&se.Status,
		&se.ErrorMessage,
		&se.RetryCount,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	entry, err := se.decode()
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (s *SQLiteEntryStorage) DeleteByUtxoID(utxoID string) error {
	stmt, err := s.stmtcache.Prepare(queryDeleteEntryByUtxoID)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(utxoID)
	return err
}

func (s *SQLiteEntryStorage) QueryByStatus(status EntryStatus) ([]Entry, error) {
	stmt, err := s.stmtcache.Prepare(queryEntriesByStatus)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteEntryStorage) QueryCreatedBefore(t time.Time) ([]Entry, error) {
	stmt, err := s.stmtcache.Prepare(queryEntriesBefore)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(t.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *SQLiteEntryStorage) QueryAll() ([]Entry, error) {
	stmt, err := s.stmtcache.Prepare(queryAllEntries)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		var se sqlEntry
		if err := rows.Scan(
			&se.UtxoID,
			&se.SpellHash,
			&se.Body,
			&se.CreatedAtMs,
			&se.Status,
			&se.ErrorMessage,
			&se.RetryCount,
		); err != nil {
			return nil, err
		}
		entry, err := se.decode()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}
