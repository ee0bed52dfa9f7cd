package pendingstore

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
)

func randFile() string {
	return "./" + ethcommon.Hash(common.RandBytes32()).String() + ".db"
}

func newStore(t *testing.T, ttl time.Duration) (*Store, func()) {
	file := randFile()
	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)

	storage, err := NewSQLitePendingStorage(db)
	require.NoError(t, err)

	close := func() {
		storage.Close()
		db.Close()
		os.Remove(file)
	}
	return NewStore(storage, ttl), close
}

func testParams() spell.Params {
	return spell.Params{
		CollateralSats: 1_000_000,
		DebtUnits:      200 * spell.DebtOne,
		OwnerPublicKey: common.HexStrToByteSlice("02b463e4a9f9e3d4e9f2a1c8d7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8a7"),
		OwnerAddress:   "tb1qr25l2p34sv4wnz4q0cuh4g9jd9qh2eua6y5awq",
	}
}

func testFrozen() spell.FrozenValues {
	return spell.FrozenValues{
		BtcPriceUsd: 65_000 * spell.DebtOne,
		BlockHeight: 900_000,
		FrozenAt:    time.Now(),
	}
}

func testBody() spell.Body {
	return spell.Body{"version": 4, "action": "open_vault"}
}

const (
	collateralUtxo = "c7f436f44d97a8c67713e9cfecbd0f63222f8c6f1b6dc8af74cac860bf54e907:0"
	feeUtxo        = "5cff4e4ff471c0341bf6154ba869e52a143f68487b78587f2db5a57f213fc518:0"
)

// Frozen values come back exactly as stored; a retry 10 minutes later
// must see the identical price and block height, never recomputed ones.
func TestGetReturnsFrozenValuesUnchanged(t *testing.T) {
	s, close := newStore(t, 30*time.Minute)
	defer close()

	params := testParams()
	frozen := testFrozen()
	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, params, frozen))

	record, err := s.Get(&params, true)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, frozen.BtcPriceUsd, record.Frozen.BtcPriceUsd)
	assert.Equal(t, frozen.BlockHeight, record.Frozen.BlockHeight)
	assert.Equal(t, frozen.FrozenAt.UnixMilli(), record.Frozen.FrozenAt.UnixMilli())
	assert.Equal(t, collateralUtxo, record.CollateralUtxoID)
	assert.Equal(t, feeUtxo, record.FeeUtxoID)
}

func TestGetExpiresAfterTTL(t *testing.T) {
	s, close := newStore(t, 50*time.Millisecond)
	defer close()

	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, testParams(), testFrozen()))

	time.Sleep(80 * time.Millisecond)

	record, err := s.Get(nil, false)
	require.NoError(t, err)
	assert.Nil(t, record)

	// the slot was cleared, a second Get confirms it stays empty
	record, err = s.Get(nil, false)
	require.NoError(t, err)
	assert.Nil(t, record)
}

// A different signer can never reuse another signer's pending spell,
// even under the non-strict check.
func TestOwnerIsolation(t *testing.T) {
	s, close := newStore(t, 30*time.Minute)
	defer close()

	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, testParams(), testFrozen()))

	other := testParams()
	other.OwnerPublicKey = common.HexStrToByteSlice("03a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90")

	record, err := s.Get(&other, false)
	require.NoError(t, err)
	assert.Nil(t, record)

	// record was cleared, the original owner cannot get it back either
	orig := testParams()
	record, err = s.Get(&orig, false)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStrictInvalidatesOnAmountMismatch(t *testing.T) {
	s, close := newStore(t, 30*time.Minute)
	defer close()

	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, testParams(), testFrozen()))

	changed := testParams()
	changed.DebtUnits += spell.DebtOne

	record, err := s.Get(&changed, true)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestNonStrictToleratesAmountMismatch(t *testing.T) {
	s, close := newStore(t, 30*time.Minute)
	defer close()

	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, testParams(), testFrozen()))

	changed := testParams()
	changed.CollateralSats *= 2

	record, err := s.Get(&changed, false)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, testParams().CollateralSats, record.Params.CollateralSats)
}

func TestSaveOverwritesSlot(t *testing.T) {
	s, close := newStore(t, 30*time.Minute)
	defer close()

	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, testParams(), testFrozen()))

	second := testParams()
	second.DebtUnits = 500 * spell.DebtOne
	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, second, testFrozen()))

	record, err := s.Get(nil, false)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, second.DebtUnits, record.Params.DebtUnits)
}

func TestClearIdempotent(t *testing.T) {
	s, close := newStore(t, 30*time.Minute)
	defer close()

	assert.NoError(t, s.Clear())
	require.NoError(t, s.Save(testBody(), collateralUtxo, feeUtxo, testParams(), testFrozen()))
	assert.NoError(t, s.Clear())
	assert.NoError(t, s.Clear())

	record, err := s.Get(nil, false)
	require.NoError(t, err)
	assert.Nil(t, record)
}
