package knapsack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strLess(a, b string) bool { return a < b }

func TestFirstFitStopsAtCapacity(t *testing.T) {
	items := map[string]int64{"a": 300, "b": 300, "c": 400, "d": 700}
	selected, total := Fit(items, 1000, FirstFit, strLess)
	assert.Equal(t, []string{"a", "b", "c"}, selected)
	assert.Equal(t, int64(1000), total)
}

func TestWorstFitMatchesWorkedExample(t *testing.T) {
	// spec.md §8 scenario 1: {a:300,b:300,c:400,d:700} cap=1000 worst-fit
	// spans into {d,a} (1000) then {c,b} (700).
	items := map[string]int64{"a": 300, "b": 300, "c": 400, "d": 700}

	selected, total := Fit(items, 1000, WorstFit, strLess)
	assert.Equal(t, []string{"d", "a"}, selected)
	assert.Equal(t, int64(1000), total)

	remaining := map[string]int64{}
	for k, v := range items {
		remaining[k] = v
	}
	for _, k := range selected {
		delete(remaining, k)
	}
	selected2, total2 := Fit(remaining, 1000, WorstFit, strLess)
	assert.Equal(t, []string{"c", "b"}, selected2)
	assert.Equal(t, int64(700), total2)
}

func TestAlternateFitAlternatesExtremes(t *testing.T) {
	items := map[string]int64{"a": 100, "b": 200, "c": 300, "d": 900}
	selected, total := Fit(items, 1000, AlternateFit, strLess)
	// Largest fitting first (d=900), then smallest remaining (a=100).
	assert.Equal(t, []string{"d", "a"}, selected)
	assert.Equal(t, int64(1000), total)
}

func TestZeroSizeItemsAlwaysIncluded(t *testing.T) {
	items := map[string]int64{"link": 0, "a": 2000}
	selected, total := Fit(items, 1000, FirstFit, strLess)
	assert.Equal(t, []string{"link"}, selected)
	assert.Equal(t, int64(0), total)
}

func TestTieBreakIsLexicographic(t *testing.T) {
	items := map[string]int64{"z": 500, "a": 500}
	selected, _ := Fit(items, 500, WorstFit, strLess)
	assert.Equal(t, []string{"a"}, selected)
}
