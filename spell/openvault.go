package spell

import (
	"fmt"
)

// Charms app identity of the vault manager contract.
// The tag distinguishes app kinds inside a spell document.
const (
	VaultManagerTag = "n"
	TokenTag        = "t"
	SpellVersion    = 4
)

// OpenVaultSpell builds the charms spell document for opening a vault:
// the collateral UTXO goes in, a vault charm carrying collateral/debt/owner
// state comes out, and freshly minted zkUSD is paid to the owner address.
//
// All dynamic inputs are taken from frozen, never from the clock or the
// network, so repeated calls with identical arguments produce an
// identical document.
func OpenVaultSpell(vmVK, tokenVK string, params Params, collateralUtxoID string, frozen FrozenValues) Body {
	vmApp := fmt.Sprintf("%s/%s", VaultManagerTag, vmVK)
	tokenApp := fmt.Sprintf("%s/%s", TokenTag, tokenVK)

	return Body{
		"version": SpellVersion,
		"apps": map[string]interface{}{
			"$vm":    vmApp,
			"$zkusd": tokenApp,
		},
		"public_inputs": map[string]interface{}{
			"$vm": map[string]interface{}{
				"action":        "open_vault",
				"btc_price_usd": fmt.Sprintf("%d", frozen.BtcPriceUsd),
				"block_height":  frozen.BlockHeight,
			},
		},
		"ins": []interface{}{
			map[string]interface{}{
				"utxo_id": collateralUtxoID,
			},
		},
		"outs": []interface{}{
			map[string]interface{}{
				"address": params.OwnerAddress,
				"charms": map[string]interface{}{
					"$vm": map[string]interface{}{
						"collateral": fmt.Sprintf("%d", params.CollateralSats),
						"debt":       fmt.Sprintf("%d", params.DebtUnits),
						"owner":      fmt.Sprintf("%x", params.OwnerPublicKey),
					},
				},
			},
			map[string]interface{}{
				"address": params.OwnerAddress,
				"charms": map[string]interface{}{
					"$zkusd": fmt.Sprintf("%d", params.DebtUnits),
				},
			},
		},
	}
}
