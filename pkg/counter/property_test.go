package counter

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relTolerance = 1e-9

func randomValues(r *rand.Rand, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = r.NormFloat64()*100 + 1000
	}
	return values
}

// randomGroups splits values into between 1 and len(values) non-empty groups.
func randomGroups(r *rand.Rand, values []float64) [][]float64 {
	groups := make([][]float64, 0)
	for start := 0; start < len(values); {
		size := 1 + r.IntN(len(values)-start)
		groups = append(groups, values[start:start+size])
		start += size
	}
	r.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })
	return groups
}

// randomTree merges counters by repeatedly combining two random entries.
func randomTree(r *rand.Rand, counters []*Counter) *Counter {
	pool := append([]*Counter(nil), counters...)
	for len(pool) > 1 {
		i := r.IntN(len(pool))
		j := r.IntN(len(pool) - 1)
		if j >= i {
			j++
		}
		merged := pool[i].Clone()
		merged.Merge(pool[j])
		if i > j {
			i, j = j, i
		}
		pool[i] = merged
		pool = append(pool[:j], pool[j+1:]...)
	}
	return pool[0]
}

func assertEquivalent(t *testing.T, want, got *Counter) {
	t.Helper()
	require.Equal(t, want.Count(), got.Count())
	assert.InEpsilon(t, want.Mean(), got.Mean(), relTolerance)
	assert.InEpsilon(t, want.Sum(), got.Sum(), relTolerance)
	if want.Count() > 1 {
		assert.InEpsilon(t, want.Variance(), got.Variance(), relTolerance)
	}
	assert.Equal(t, want.Min(), got.Min())
	assert.Equal(t, want.Max(), got.Max())
}

func TestMerge_AssociativeCommutative(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))

	for round := 0; round < 200; round++ {
		values := randomValues(r, 2+r.IntN(300))
		seq := counterOf(values...)

		groups := randomGroups(r, values)
		parts := make([]*Counter, len(groups))
		for i, g := range groups {
			parts[i] = counterOf(g...)
		}

		// sequential fold in shuffled order
		folded := New()
		for _, p := range parts {
			folded.Merge(p)
		}
		assertEquivalent(t, seq, folded)

		// random tree shape
		assertEquivalent(t, seq, randomTree(r, parts))
	}
}

func TestMerge_ThroughBytes(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	values := randomValues(r, 500)
	seq := counterOf(values...)

	total := New()
	for _, g := range randomGroups(r, values) {
		require.NoError(t, total.MergeBytes(counterOf(g...).ToBytes()))
	}
	assertEquivalent(t, seq, total)
}

func TestRoundTrip_Random(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for round := 0; round < 100; round++ {
		c := counterOf(randomValues(r, r.IntN(20))...)
		got, err := Decode(c.ToBytes())
		require.NoError(t, err)
		assert.True(t, c.Equal(got))
	}
}
