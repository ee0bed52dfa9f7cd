package utxo

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
	"github.com/zkusd-io/spellbind/spellcache"
)

func newCache(t *testing.T) (*spellcache.SpellCacheManager, func()) {
	file := "./" + ethcommon.Hash(common.RandBytes32()).String() + ".db"
	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)

	storage, err := spellcache.NewSQLiteEntryStorage(db)
	require.NoError(t, err)

	close := func() {
		storage.Close()
		db.Close()
		os.Remove(file)
	}
	return spellcache.NewSpellCacheManager(storage, time.Hour), close
}

func candidate() spell.Body {
	return spell.Body{"version": 4, "action": "open_vault", "collateral": "1000000"}
}

func otherSpell() spell.Body {
	return spell.Body{"version": 4, "action": "open_vault", "collateral": "9999999"}
}

var (
	utxoSmallUnconfirmed = Info{TxID: "c7f436f44d97a8c67713e9cfecbd0f63222f8c6f1b6dc8af74cac860bf54e907", Vout: 0, ValueSats: 1000, Confirmed: false}
	utxoBigConfirmed     = Info{TxID: "5cff4e4ff471c0341bf6154ba869e52a143f68487b78587f2db5a57f213fc518", Vout: 0, ValueSats: 5000, Confirmed: true}
	utxoMidConfirmed     = Info{TxID: "8a7cf69a3372e9811e7a71d60cc1a347a76dd6f6d5b3018011a9e423c633bbd8", Vout: 1, ValueSats: 3000, Confirmed: true}
)

// A fresh unconfirmed UTXO wins over a bigger fresh confirmed one.
func TestSelectPrefersFreshUnconfirmed(t *testing.T) {
	cache, close := newCache(t)
	defer close()

	picked, reason, err := SelectBestUtxo(cache, []Info{utxoBigConfirmed, utxoSmallUnconfirmed}, candidate(), 500)
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, utxoSmallUnconfirmed.ID(), picked.ID())
	assert.Equal(t, "fresh unconfirmed", reason)
}

func TestSelectFreshHighestValue(t *testing.T) {
	cache, close := newCache(t)
	defer close()

	picked, _, err := SelectBestUtxo(cache, []Info{utxoMidConfirmed, utxoBigConfirmed}, candidate(), 500)
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, utxoBigConfirmed.ID(), picked.ID())
}

// A UTXO already bound to the candidate spell is preferred over burned
// ones, enabling a retry of the exact same operation.
func TestSelectSameSpellRetry(t *testing.T) {
	cache, close := newCache(t)
	defer close()

	_, err := cache.RegisterAttempt(utxoBigConfirmed.ID(), candidate())
	require.NoError(t, err)
	_, err = cache.RegisterAttempt(utxoMidConfirmed.ID(), otherSpell())
	require.NoError(t, err)

	picked, reason, err := SelectBestUtxo(cache, []Info{utxoBigConfirmed, utxoMidConfirmed}, candidate(), 500)
	require.NoError(t, err)
	require.NotNil(t, picked)
	assert.Equal(t, utxoBigConfirmed.ID(), picked.ID())
	assert.Equal(t, "retryable with same spell", reason)
}

func TestSelectInsufficientValue(t *testing.T) {
	cache, close := newCache(t)
	defer close()

	picked, reason, err := SelectBestUtxo(cache, []Info{utxoSmallUnconfirmed}, candidate(), 100_000)
	require.NoError(t, err)
	assert.Nil(t, picked)
	assert.Equal(t, ReasonInsufficientValue, reason)
}

// Only burned UTXOs left: nothing selectable, reason mentions reservation.
func TestSelectExhaustion(t *testing.T) {
	cache, close := newCache(t)
	defer close()

	for _, u := range []Info{utxoBigConfirmed, utxoMidConfirmed} {
		_, err := cache.RegisterAttempt(u.ID(), otherSpell())
		require.NoError(t, err)
	}

	picked, reason, err := SelectBestUtxo(cache, []Info{utxoBigConfirmed, utxoMidConfirmed}, candidate(), 500)
	require.NoError(t, err)
	assert.Nil(t, picked)
	assert.Equal(t, ReasonAllReserved, reason)
}

func TestParseID(t *testing.T) {
	txid, vout, err := ParseID("c7f436f44d97a8c67713e9cfecbd0f63222f8c6f1b6dc8af74cac860bf54e907:3")
	require.NoError(t, err)
	assert.Equal(t, "c7f436f44d97a8c67713e9cfecbd0f63222f8c6f1b6dc8af74cac860bf54e907", txid)
	assert.Equal(t, uint32(3), vout)

	_, _, err = ParseID("not-a-txid:0")
	assert.Error(t, err)
	_, _, err = ParseID("deadbeef")
	assert.Error(t, err)
}
