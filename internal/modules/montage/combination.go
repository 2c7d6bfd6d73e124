package montage

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	DefaultAttemptMultiplier = 10

	// budgetEpsilon keeps float sums like 0.1+0.2 from tripping the budget.
	budgetEpsilon = 1e-9
)

// Combination is an ordered list of content clip indices.
type Combination []int

// Key returns the set identity of the combination: its sorted indices.
func (c Combination) Key() string {
	sorted := slices.Clone([]int(c))
	slices.Sort(sorted)
	return strings.Join(lo.Map(sorted, func(i int, _ int) string { return strconv.Itoa(i) }), ",")
}

// Duration sums the durations of the referenced clips.
func (c Combination) Duration(durations []float64) float64 {
	return lo.SumBy([]int(c), func(i int) float64 { return durations[i] })
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	MaxDuration       float64
	NumCombinations   int
	AttemptMultiplier int
	// Seed makes the generated combinations reproducible. Nil seeds from the runtime.
	Seed *uint64
}

// Generator samples distinct, duration-bounded combinations of content clips.
type Generator struct {
	maxDuration float64
	count       int
	multiplier  int
	rng         *rand.Rand
}

// NewGenerator creates a generator from config
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.AttemptMultiplier <= 0 {
		cfg.AttemptMultiplier = DefaultAttemptMultiplier
	}

	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	return &Generator{
		maxDuration: cfg.MaxDuration,
		count:       cfg.NumCombinations,
		multiplier:  cfg.AttemptMultiplier,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// MaxAttempts is the upper bound on sampling iterations.
func (g *Generator) MaxAttempts() int {
	return g.count * g.multiplier
}

// Generate returns up to NumCombinations distinct combinations over clips
// with the given durations. Fewer are returned when the search budget runs out.
func (g *Generator) Generate(durations []float64) []Combination {
	if g.count <= 0 || len(durations) == 0 || g.maxDuration <= 0 {
		return nil
	}

	seen := make(map[string]struct{}, g.count)
	result := make([]Combination, 0, g.count)

	for attempt := 0; attempt < g.MaxAttempts() && len(result) < g.count; attempt++ {
		selection := g.sample(durations)
		if len(selection) == 0 {
			continue
		}

		key := selection.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		g.rng.Shuffle(len(selection), func(i, j int) {
			selection[i], selection[j] = selection[j], selection[i]
		})
		result = append(result, selection)
	}

	return result
}

// sample walks one random permutation, greedily taking clips that still fit.
func (g *Generator) sample(durations []float64) Combination {
	var (
		selection Combination
		total     float64
	)
	for _, idx := range g.rng.Perm(len(durations)) {
		if total+durations[idx] <= g.maxDuration+budgetEpsilon {
			selection = append(selection, idx)
			total += durations[idx]
		}
		if total >= g.maxDuration-budgetEpsilon {
			break
		}
	}
	return selection
}

// Sequential returns the single combination that keeps every content clip in order.
func Sequential(n int) []Combination {
	if n == 0 {
		return []Combination{{}}
	}
	return []Combination{lo.Range(n)}
}
