/*
Opaque signing capability consumed by the spell workflow.

The workflow never inspects keys; it hands an unsigned transaction plus
the previous output's script and value to whatever implements Signer.
LocalSigner is the reference implementation: a single private key
receiving and spending via P2WPKH.
*/
package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Signer signs one input of an unsigned transaction.
type Signer interface {
	// Address is the human readable btc address of the signer.
	Address() string

	// PublicKey is the compressed public key of the signer.
	PublicKey() []byte

	// SignInput fills in the witness of input idx, spending a previous
	// output with the given locking script and value.
	SignInput(tx *wire.MsgTx, idx int, prevPkScript []byte, prevValueSats int64) (*wire.MsgTx, error)
}

// LocalSigner signs with a single local private key via P2WPKH.
type LocalSigner struct {
	chainConfig *chaincfg.Params
	privKey     *btcec.PrivateKey
	pubKey      *btcec.PublicKey
	p2wpkh      *btcutil.AddressWitnessPubKeyHash
}

// NewLocalSigner recovers a signer from a WIF private key string, the
// standard export format of bitcoin-core software.
func NewLocalSigner(privKeyWif string, chainConfig *chaincfg.Params) (*LocalSigner, error) {
	wif, err := btcutil.DecodeWIF(privKeyWif)
	if err != nil {
		return nil, fmt.Errorf("decode wif: %w", err)
	}
	if !wif.IsForNet(chainConfig) {
		return nil, fmt.Errorf("wif key is for a different network")
	}
	return newLocalSigner(wif.PrivKey, chainConfig)
}

// NewLocalSignerFromKey wraps an already-loaded private key.
func NewLocalSignerFromKey(privKey *btcec.PrivateKey, chainConfig *chaincfg.Params) (*LocalSigner, error) {
	return newLocalSigner(privKey, chainConfig)
}

func newLocalSigner(privKey *btcec.PrivateKey, chainConfig *chaincfg.Params) (*LocalSigner, error) {
	pubKey := privKey.PubKey()
	p2wpkh, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubKey.SerializeCompressed()), chainConfig)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		chainConfig: chainConfig,
		privKey:     privKey,
		pubKey:      pubKey,
		p2wpkh:      p2wpkh,
	}, nil
}

func (s *LocalSigner) Address() string {
	return s.p2wpkh.EncodeAddress()
}

func (s *LocalSigner) PublicKey() []byte {
	return s.pubKey.SerializeCompressed()
}

// SignInput produces the segwit witness for input idx.
// Both tx.TxIn and tx.TxOut shall be final before calling, otherwise the
// signature commits to the wrong digest and fails node validation.
func (s *LocalSigner) SignInput(tx *wire.MsgTx, idx int, prevPkScript []byte, prevValueSats int64) (*wire.MsgTx, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return nil, fmt.Errorf("input index %d out of range (%d inputs)", idx, len(tx.TxIn))
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(prevPkScript, prevValueSats)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	witness, err := txscript.WitnessSignature(
		tx, sigHashes, idx, prevValueSats, prevPkScript,
		txscript.SigHashAll, s.privKey, true,
	)
	if err != nil {
		return nil, fmt.Errorf("witness signature: %w", err)
	}
	tx.TxIn[idx].Witness = witness
	return tx, nil
}

// PkScript returns the P2WPKH locking script of the signer's own address,
// used when the workflow needs to recognize its own outputs.
func (s *LocalSigner) PkScript() ([]byte, error) {
	return txscript.PayToAddrScript(s.p2wpkh)
}
