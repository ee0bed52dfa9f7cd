/*
This file contains the selection of the best UTXO for a spell submission.

Freshness is prioritized over raw value: reusing a cached UTXO risks
burning it at the prover, and that loss outweighs minor fee or dust
inefficiency from picking a smaller output.
*/
package utxo

import (
	"sort"

	"github.com/zkusd-io/spellbind/spell"
	"github.com/zkusd-io/spellbind/spellcache"
)

const (
	ReasonInsufficientValue = "insufficient value"
	ReasonAllReserved       = "all eligible UTXOs reserved by different spells"
)

// AvailabilityChecker is the slice of the spell cache the selector needs.
type AvailabilityChecker interface {
	CheckAvailability(utxoID string, candidate spell.Body) (*spellcache.Availability, error)
}

// classification of a UTXO with respect to the candidate spell
type class int

const (
	classFresh     class = iota // no cache entry
	classSameSpell              // cache entry with matching hash, retryable
	classBurned                 // reserved by a different spell or failed
)

// SelectBestUtxo picks the UTXO to submit the candidate spell with.
//
// Eligible UTXOs (value >= minValueSats) are classified against the
// availability cache and picked in priority order:
//  1. fresh AND unconfirmed — most likely absent from the remote prover's
//     cache and cheapest to obtain again;
//  2. fresh, highest value first;
//  3. same-spell, highest value first — enables retrying the exact
//     operation;
//
// otherwise nothing is selectable and the reason says why. Ties within a
// tier break by descending value.
func SelectBestUtxo(cache AvailabilityChecker, available []Info, candidate spell.Body, minValueSats int64) (*Info, string, error) {
	eligible := []Info{}
	for _, u := range available {
		if u.ValueSats >= minValueSats {
			eligible = append(eligible, u)
		}
	}
	if len(eligible) == 0 {
		return nil, ReasonInsufficientValue, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ValueSats > eligible[j].ValueSats
	})

	var freshUnconfirmed, fresh, sameSpell []Info
	for _, u := range eligible {
		avail, err := cache.CheckAvailability(u.ID(), candidate)
		if err != nil {
			return nil, "", err
		}

		c := classBurned
		switch {
		case avail.CanUse && avail.CachedBody == nil:
			c = classFresh
		case avail.CanUse:
			c = classSameSpell
		}

		switch {
		case c == classFresh && !u.Confirmed:
			freshUnconfirmed = append(freshUnconfirmed, u)
		case c == classFresh:
			fresh = append(fresh, u)
		case c == classSameSpell:
			sameSpell = append(sameSpell, u)
		}
	}

	switch {
	case len(freshUnconfirmed) > 0:
		return &freshUnconfirmed[0], "fresh unconfirmed", nil
	case len(fresh) > 0:
		return &fresh[0], "fresh", nil
	case len(sameSpell) > 0:
		return &sameSpell[0], "retryable with same spell", nil
	}
	return nil, ReasonAllReserved, nil
}
