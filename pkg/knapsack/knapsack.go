// Package knapsack implements the four bin-packing strategies spec.md
// §4.2 specifies over {item -> size} maps: first-fit, best-fit,
// worst-fit, and alternate-fit. Grounded on spec.md's algorithm
// descriptions; the original implementation's standalone knapsack
// module wasn't part of the retrieval pack, so the call shape (a map
// in, a ([]key, totalSize) pair out) is taken from
// filesystem.py/_getKnapsackFunction and generateFitted/generateSpan.
// Pure algorithmic code; see DESIGN.md for why this stays on the
// standard library rather than reaching for a third-party solver.
package knapsack

import "sort"

// Item is one candidate for a knapsack pass.
type Item[K comparable] struct {
	Key  K
	Size int64
}

// Algorithm is one of the four bin-packing strategies.
type Algorithm int

const (
	FirstFit Algorithm = iota
	BestFit
	WorstFit
	AlternateFit
)

// Fit runs the chosen algorithm over items for the given capacity,
// returning the selected keys in selection order and their total size.
// A size-0 item is always included and never counts against capacity.
// Ties in size break by key order (lexicographic, via less).
func Fit[K comparable](items map[K]int64, capacity int64, algo Algorithm, less func(a, b K) bool) ([]K, int64) {
	var zero []K
	nonzero := map[K]int64{}
	for k, v := range items {
		if v == 0 {
			zero = append(zero, k)
			continue
		}
		nonzero[k] = v
	}
	sort.Slice(zero, func(i, j int) bool { return less(zero[i], zero[j]) })

	bySize := sortedBySize(nonzero, less)
	var selected []K
	var total int64
	switch algo {
	case FirstFit:
		selected, total = firstFit(sortedByKey(nonzero, less), capacity)
	case BestFit:
		selected, total = extremeFit(bySize, capacity)
	case WorstFit:
		selected, total = extremeFit(bySize, capacity)
	case AlternateFit:
		selected, total = alternateFit(bySize, capacity)
	}
	return append(append([]K{}, zero...), selected...), total
}

func sortedBySize[K comparable](items map[K]int64, less func(a, b K) bool) []Item[K] {
	out := make([]Item[K], 0, len(items))
	for k, v := range items {
		out = append(out, Item[K]{Key: k, Size: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size < out[j].Size
		}
		return less(out[i].Key, out[j].Key)
	})
	return out
}

func sortedByKey[K comparable](items map[K]int64, less func(a, b K) bool) []Item[K] {
	out := make([]Item[K], 0, len(items))
	for k, v := range items {
		out = append(out, Item[K]{Key: k, Size: v})
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Key, out[j].Key) })
	return out
}

// firstFit walks items in stable traversal order, including each one
// that still fits in the remaining capacity.
func firstFit[K comparable](sorted []Item[K], capacity int64) ([]K, int64) {
	var selected []K
	var total int64
	for _, item := range sorted {
		if total+item.Size <= capacity {
			selected = append(selected, item.Key)
			total += item.Size
		}
	}
	return selected, total
}

// extremeFit repeatedly removes the largest remaining item that fits
// within the leftover capacity, breaking ties in favor of the smallest
// key (bySize is already sorted ascending by size, then key, so the
// run of items sharing the largest fitting size starts at its lowest
// index). best-fit and worst-fit share this definition: on a single
// accumulating bin, "closest to remaining capacity" and "largest that
// still fits" select the same item.
func extremeFit[K comparable](bySize []Item[K], capacity int64) ([]K, int64) {
	remaining := append([]Item[K]{}, bySize...)
	var selected []K
	var total int64
	left := capacity
	for {
		fitEnd := -1
		for i, item := range remaining {
			if item.Size <= left {
				fitEnd = i
			} else {
				break
			}
		}
		if fitEnd == -1 {
			break
		}
		fitStart := fitEnd
		for fitStart > 0 && remaining[fitStart-1].Size == remaining[fitEnd].Size {
			fitStart--
		}
		selected = append(selected, remaining[fitStart].Key)
		total += remaining[fitStart].Size
		left -= remaining[fitStart].Size
		remaining = append(remaining[:fitStart], remaining[fitStart+1:]...)
	}
	return selected, total
}

// alternateFit alternates one pick from the worst-fit side (largest
// fitting item) and one from the best-fit side (smallest fitting item,
// the opposite extreme) until nothing else fits.
func alternateFit[K comparable](bySize []Item[K], capacity int64) ([]K, int64) {
	remaining := append([]Item[K]{}, bySize...)
	var selected []K
	var total int64
	left := capacity
	useLargest := true
	for {
		idx := -1
		if useLargest {
			for i, item := range remaining {
				if item.Size <= left {
					idx = i
				} else {
					break
				}
			}
		} else {
			if len(remaining) > 0 && remaining[0].Size <= left {
				idx = 0
			}
		}
		if idx == -1 {
			break
		}
		selected = append(selected, remaining[idx].Key)
		total += remaining[idx].Size
		left -= remaining[idx].Size
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		useLargest = !useLargest
	}
	return selected, total
}
