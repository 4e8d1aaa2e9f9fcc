package connector

import (
	"sort"

	"github.com/tdex-network/xbridge/internal/core/domain"
)

// maxCombinationItems bounds the exhaustive search of the best combination,
// bigger wallets fall back to picking the largest coins first.
const maxCombinationItems = 20

// selectUnspents returns a subset of utxos covering targetAmount. The goal of
// the strategy is to select as few utxos as possible, preferring those whose
// total is within a 10x ratio of the target.
func selectUnspents(utxos []domain.Utxo, targetAmount uint64) []domain.Utxo {
	sorted := append([]domain.Utxo(nil), utxos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})
	if domain.TotalAmount(sorted) < targetAmount {
		return nil
	}

	if len(sorted) > maxCombinationItems {
		selected := make([]domain.Utxo, 0)
		var total uint64
		for _, u := range sorted {
			selected = append(selected, u)
			total += u.Amount
			if total >= targetAmount {
				return selected
			}
		}
		return nil
	}

	indexes := getBestCombination(amounts(sorted), targetAmount)
	selected := make([]domain.Utxo, 0, len(indexes))
	for _, i := range indexes {
		selected = append(selected, sorted[i])
	}
	return selected
}

func amounts(utxos []domain.Utxo) []uint64 {
	values := make([]uint64, 0, len(utxos))
	for _, u := range utxos {
		values = append(values, u.Amount)
	}
	return values
}

// getCombinations returns the indexes of all the combinations of size
// elements of src.
func getCombinations(n, size, offset int, current []int, result [][]int) [][]int {
	if size == 0 {
		return append(result, append([]int(nil), current...))
	}
	for i := offset; i <= n-size; i++ {
		result = getCombinations(n, size-1, i+1, append(current, i), result)
	}
	return result
}

func sum(items []uint64, indexes []int) uint64 {
	var total uint64
	for _, i := range indexes {
		total += items[i]
	}
	return total
}

// getBestCombination returns the indexes of the smallest set of items whose
// sum is equal or greater than target, within a 10x ratio. It tries every
// combination of 1 element, then of 2 and so on. If none is within the ratio
// the first combination covering the target is returned.
func getBestCombination(items []uint64, target uint64) []int {
	var fallback []int
	for size := 1; size <= len(items); size++ {
		for _, combination := range getCombinations(len(items), size, 0, nil, nil) {
			total := sum(items, combination)
			if total < target {
				continue
			}
			if total <= target*10 {
				return combination
			}
			if fallback == nil {
				fallback = combination
			}
		}
	}
	return fallback
}
