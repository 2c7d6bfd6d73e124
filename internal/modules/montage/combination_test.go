package montage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(v uint64) *uint64 { return &v }

func TestGenerate(t *testing.T) {
	t.Run("respects budget, size and uniqueness", func(t *testing.T) {
		durations := []float64{2, 3, 1.5, 4, 2.5, 1, 6, 3.5}
		gen := NewGenerator(GeneratorConfig{MaxDuration: 8, NumCombinations: 20, Seed: seed(7)})

		combos := gen.Generate(durations)
		require.NotEmpty(t, combos)
		assert.LessOrEqual(t, len(combos), 20)

		keys := make(map[string]bool)
		for _, c := range combos {
			assert.NotEmpty(t, c)
			assert.LessOrEqual(t, c.Duration(durations), 8.0+1e-9)
			assert.False(t, keys[c.Key()], "duplicate set %v", c)
			keys[c.Key()] = true

			members := make(map[int]bool)
			for _, idx := range c {
				assert.False(t, members[idx], "index repeated in %v", c)
				members[idx] = true
			}
		}
	})

	t.Run("four interval scenario", func(t *testing.T) {
		// "0-3,3-10,10-14,14-20": lead is 3s, content is 7s, 4s and 6s.
		durations := []float64{7, 4, 6}
		gen := NewGenerator(GeneratorConfig{MaxDuration: 10, NumCombinations: 30, Seed: seed(42)})

		combos := gen.Generate(durations)
		require.NotEmpty(t, combos)
		assert.LessOrEqual(t, len(combos), 30)
		for _, c := range combos {
			assert.LessOrEqual(t, c.Duration(durations), 10.0)
		}
		// Feasible sets are {0}, {1}, {2}, {1,2}; a greedy walk only yields maximal fits.
		for _, c := range combos {
			assert.Contains(t, []string{"0", "1,2"}, c.Key())
		}
	})

	t.Run("same seed gives same combinations", func(t *testing.T) {
		durations := []float64{1, 2, 3, 4, 5, 1, 2, 3}
		a := NewGenerator(GeneratorConfig{MaxDuration: 7, NumCombinations: 10, Seed: seed(99)}).Generate(durations)
		b := NewGenerator(GeneratorConfig{MaxDuration: 7, NumCombinations: 10, Seed: seed(99)}).Generate(durations)
		assert.Equal(t, a, b)
	})

	t.Run("returns fewer when the space is small", func(t *testing.T) {
		durations := []float64{5, 5}
		gen := NewGenerator(GeneratorConfig{MaxDuration: 5, NumCombinations: 30, AttemptMultiplier: 20, Seed: seed(1)})
		combos := gen.Generate(durations)
		assert.Len(t, combos, 2)
		assert.Equal(t, 600, gen.MaxAttempts())
	})

	t.Run("nothing fits the budget", func(t *testing.T) {
		gen := NewGenerator(GeneratorConfig{MaxDuration: 1, NumCombinations: 5, Seed: seed(3)})
		assert.Empty(t, gen.Generate([]float64{2, 3, 4}))
	})

	t.Run("empty pool or zero target", func(t *testing.T) {
		assert.Empty(t, NewGenerator(GeneratorConfig{MaxDuration: 10, NumCombinations: 5}).Generate(nil))
		assert.Empty(t, NewGenerator(GeneratorConfig{MaxDuration: 10}).Generate([]float64{1}))
	})

	t.Run("default multiplier", func(t *testing.T) {
		gen := NewGenerator(GeneratorConfig{MaxDuration: 10, NumCombinations: 3})
		assert.Equal(t, 3*DefaultAttemptMultiplier, gen.MaxAttempts())
	})
}

func TestCombinationKey(t *testing.T) {
	assert.Equal(t, Combination{3, 1, 2}.Key(), Combination{1, 2, 3}.Key())
	assert.NotEqual(t, Combination{1, 2}.Key(), Combination{1, 2, 3}.Key())
	assert.Equal(t, "2,10", Combination{10, 2}.Key())
}

func TestSequential(t *testing.T) {
	assert.Equal(t, []Combination{{0, 1, 2}}, Sequential(3))
	assert.Equal(t, []Combination{{}}, Sequential(0))
}
