package signer

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *LocalSigner {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	s, err := NewLocalSignerFromKey(key, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return s
}

func TestLocalSignerIdentity(t *testing.T) {
	s := newTestSigner(t)

	assert.Len(t, s.PublicKey(), 33)
	assert.NotEmpty(t, s.Address())

	pkScript, err := s.PkScript()
	require.NoError(t, err)
	// P2WPKH: OP_0 <20-byte-hash>
	assert.Len(t, pkScript, 22)
}

func TestSignInputProducesValidWitness(t *testing.T) {
	s := newTestSigner(t)

	pkScript, err := s.PkScript()
	require.NoError(t, err)

	const prevValue = int64(100_000)

	// spend one of our own outputs back to ourselves
	prevHash := chainhash.Hash{1, 2, 3}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(prevValue-1_000, pkScript))

	signed, err := s.SignInput(tx, 0, pkScript, prevValue)
	require.NoError(t, err)
	require.Len(t, signed.TxIn[0].Witness, 2)

	// the witness must satisfy the previous output's script
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, prevValue)
	vm, err := txscript.NewEngine(
		pkScript, signed, 0, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(signed, fetcher), prevValue, fetcher,
	)
	require.NoError(t, err)
	assert.NoError(t, vm.Execute())
}

func TestSignInputIndexOutOfRange(t *testing.T) {
	s := newTestSigner(t)

	tx := wire.NewMsgTx(wire.TxVersion)
	_, err := s.SignInput(tx, 0, nil, 0)
	assert.Error(t, err)
}
