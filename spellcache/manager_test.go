package spellcache

import (
	"database/sql"
	"os"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zkusd-io/spellbind/common"
	"github.com/zkusd-io/spellbind/spell"
	"github.com/zkusd-io/spellbind/spellhash"
)

func randFile() string {
	return "./" + ethcommon.Hash(common.RandBytes32()).String() + ".db"
}

func newManager(t *testing.T, ttl time.Duration) (*SpellCacheManager, func()) {
	file := randFile()
	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)

	storage, err := NewSQLiteEntryStorage(db)
	require.NoError(t, err)

	close := func() {
		storage.Close()
		db.Close()
		os.Remove(file)
	}

	return NewSpellCacheManager(storage, ttl), close
}

func spellA() spell.Body {
	return spell.Body{"version": 4, "action": "open_vault", "collateral": "100000"}
}

func spellB() spell.Body {
	return spell.Body{"version": 4, "action": "open_vault", "collateral": "200000"}
}

const utxoX = "c7f436f44d97a8c67713e9cfecbd0f63222f8c6f1b6dc8af74cac860bf54e907:0"

func TestCheckAvailabilityNoEntry(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	avail, err := m.CheckAvailability(utxoX, spellA())
	require.NoError(t, err)
	assert.True(t, avail.CanUse)
	assert.Nil(t, avail.CachedBody)
}

// After registering spellA, the UTXO is exclusive to spellA: a different
// spell is refused, the same spell is allowed and gets the cached body back.
func TestCacheExclusivity(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)

	other, err := m.CheckAvailability(utxoX, spellB())
	require.NoError(t, err)
	assert.False(t, other.CanUse)
	assert.Equal(t, ReasonReserved, other.Reason)

	same, err := m.CheckAvailability(utxoX, spellA())
	require.NoError(t, err)
	assert.True(t, same.CanUse)
	require.NotNil(t, same.CachedBody)
	assert.Equal(t, spellhash.MustHash(spellA()), spellhash.MustHash(same.CachedBody))
}

func TestTTLExpiry(t *testing.T) {
	m, close := newManager(t, 50*time.Millisecond)
	defer close()

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	// expired entry is purged, any spell may use the UTXO again
	avail, err := m.CheckAvailability(utxoX, spellB())
	require.NoError(t, err)
	assert.True(t, avail.CanUse)

	_, found, err := m.backend.GetByUtxoID(utxoX)
	require.NoError(t, err)
	assert.False(t, found)
}

// A recorded failure burns the UTXO for the whole TTL window, even for
// the exact same spell. Conservative on purpose: the prover-side state
// after a failure is unknowable from here.
func TestFailedBlocksSameSpell(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)
	require.NoError(t, m.MarkFailed(utxoX, "prover rejected"))

	avail, err := m.CheckAvailability(utxoX, spellA())
	require.NoError(t, err)
	assert.False(t, avail.CanUse)
	assert.Equal(t, ReasonBurned, avail.Reason)
}

func TestRetryKeepsCreatedAtAndCounts(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	first, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)
	assert.Equal(t, 0, first.RetryCount)

	time.Sleep(5 * time.Millisecond)

	second, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)
	assert.Equal(t, 1, second.RetryCount)
	assert.Equal(t, first.CreatedAt.UnixMilli(), second.CreatedAt.UnixMilli())
}

func TestMarkTerminalNoEntryIsNoop(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	assert.NoError(t, m.MarkSuccess(utxoX))
	assert.NoError(t, m.MarkFailed(utxoX, "whatever"))
}

func TestListBurned(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	utxoY := "5cff4e4ff471c0341bf6154ba869e52a143f68487b78587f2db5a57f213fc518:1"

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)
	_, err = m.RegisterAttempt(utxoY, spellB())
	require.NoError(t, err)

	require.NoError(t, m.MarkFailed(utxoX, "prover rejected"))

	burned, err := m.ListBurned()
	require.NoError(t, err)
	assert.Equal(t, []string{utxoX}, burned)
}

func TestListBurnedSkipsExpired(t *testing.T) {
	m, close := newManager(t, 50*time.Millisecond)
	defer close()

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)
	require.NoError(t, m.MarkFailed(utxoX, "prover rejected"))

	time.Sleep(80 * time.Millisecond)

	burned, err := m.ListBurned()
	require.NoError(t, err)
	assert.Empty(t, burned)
}

func TestPurgeExpired(t *testing.T) {
	m, close := newManager(t, 50*time.Millisecond)
	defer close()

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, m.PurgeExpired())

	entries, err := m.backend.QueryAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSuccessBlocksDifferentSpell(t *testing.T) {
	m, close := newManager(t, time.Hour)
	defer close()

	_, err := m.RegisterAttempt(utxoX, spellA())
	require.NoError(t, err)
	require.NoError(t, m.MarkSuccess(utxoX))

	avail, err := m.CheckAvailability(utxoX, spellB())
	require.NoError(t, err)
	assert.False(t, avail.CanUse)
}
