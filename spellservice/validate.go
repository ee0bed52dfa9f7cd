package spellservice

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/zkusd-io/spellbind/spell"
)

// MinOwnerPubKeyLen is a format sanity bound (compressed secp256k1 key),
// not cryptographic validation; that is the signer's responsibility.
const MinOwnerPubKeyLen = 33

// MinCollateralRatioPct is the minimum collateralization, in percent.
// Below 110% a vault is liquidatable, so opening one there is refused
// outright.
const MinCollateralRatioPct = 110

var (
	ErrNonPositiveCollateral = errors.New("collateral must be strictly positive")
	ErrNonPositiveDebt       = errors.New("debt must be strictly positive")
	ErrUndercollateralized   = fmt.Errorf("collateral ratio below %d%%", MinCollateralRatioPct)
)

// ValidateParams rejects malformed params synchronously, before anything
// reaches the network.
func ValidateParams(p spell.Params) error {
	if p.CollateralSats == 0 {
		return ErrNonPositiveCollateral
	}
	if p.DebtUnits == 0 {
		return ErrNonPositiveDebt
	}
	if len(p.OwnerPublicKey) < MinOwnerPubKeyLen {
		return fmt.Errorf("owner public key too short: %d bytes, need at least %d", len(p.OwnerPublicKey), MinOwnerPubKeyLen)
	}
	if p.OwnerAddress == "" {
		return errors.New("owner address is empty")
	}
	return nil
}

// ValidateParamsAtPrice additionally checks the collateral ratio at the
// frozen BTC/USD price. priceUsd and debt are 8-decimal fixed point.
func ValidateParamsAtPrice(p spell.Params, priceUsd uint64) error {
	if err := ValidateParams(p); err != nil {
		return err
	}

	// collateralUsd = collateralSats * price / 1e8, kept in big.Int
	// to avoid overflow on large positions
	collateralUsd := new(big.Int).Mul(
		new(big.Int).SetUint64(p.CollateralSats),
		new(big.Int).SetUint64(priceUsd),
	)
	collateralUsd.Div(collateralUsd, big.NewInt(100_000_000))

	// require collateralUsd * 100 >= debt * MinCollateralRatioPct
	lhs := new(big.Int).Mul(collateralUsd, big.NewInt(100))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(p.DebtUnits), big.NewInt(MinCollateralRatioPct))
	if lhs.Cmp(rhs) < 0 {
		return ErrUndercollateralized
	}
	return nil
}
