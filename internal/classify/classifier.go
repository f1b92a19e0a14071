// Package classify tags transfers as buys, sells or routing noise relative to a
// known set of swap-contract addresses.
package classify

import (
	"sort"
	"strings"

	"netbuy-ranker/internal/domain"
)

// SwapSet is the set of known swap-contract addresses, stored lower-cased.
type SwapSet map[string]struct{}

// NewSwapSet builds a set from addresses. Blank entries are ignored.
func NewSwapSet(addresses ...string) SwapSet {
	set := make(SwapSet, len(addresses))
	for _, a := range addresses {
		a = normalize(a)
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return set
}

// Contains reports whether address is a known swap contract.
func (s SwapSet) Contains(address string) bool {
	_, ok := s[normalize(address)]
	return ok
}

// Addresses returns the members in ascending order.
func (s SwapSet) Addresses() []string {
	out := make([]string, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Classify derives the category of a transfer from its endpoints.
//
//	both in set  -> skip (internal routing)
//	from in set  -> buy
//	to in set    -> sell
//	neither      -> unknown
//
// The both-in-set check runs first, so skip wins if the data is ever ambiguous.
func Classify(from, to string, swaps SwapSet) domain.Category {
	fromSwap := swaps.Contains(from)
	toSwap := swaps.Contains(to)

	switch {
	case fromSwap && toSwap:
		return domain.CategorySkip
	case fromSwap:
		return domain.CategoryBuy
	case toSwap:
		return domain.CategorySell
	default:
		return domain.CategoryUnknown
	}
}

// Wallet returns the end-user wallet credited by a transfer of the given category:
// the receiver of a buy, the sender of a sell, "" otherwise.
func Wallet(from, to string, category domain.Category) string {
	switch category {
	case domain.CategoryBuy:
		return normalize(to)
	case domain.CategorySell:
		return normalize(from)
	default:
		return ""
	}
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
