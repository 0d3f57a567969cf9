// Package counter implements a fixed-size, mergeable summary of a stream of
// numeric observations. A Counter tracks the count, sum, second moment,
// minimum and maximum of the values folded into it, and serializes into
// exactly [EncodedSize] bytes.
//
// Counters built independently (one per shard, worker or stage) can be merged
// in any order and grouping. The result matches a single sequential pass over
// all values within floating-point tolerance, which makes the type suitable
// for distributed aggregation. A single Counter is not safe for concurrent
// use: give each goroutine its own Counter and merge them afterwards.
package counter

import (
	"math"
	"strconv"
	"strings"
)

// undefined is the value reported for statistics of an empty Counter.
// It is the canonical quiet NaN so encoded empty counters are stable across
// implementations.
var undefined = math.Float64frombits(0x7ff8000000000000)

// Undefined returns the sentinel reported by accessors of an empty Counter.
func Undefined() float64 {
	return undefined
}

// IsUndefined reports whether v is the undefined sentinel (or any NaN).
func IsUndefined(v float64) bool {
	return math.IsNaN(v)
}

// Counter holds the running statistics of a stream of observations.
// The zero value is not ready to use; create one with New.
type Counter struct {
	n   uint64  // count of values
	m2  float64 // second moment (sum of squared deviations from the mean)
	sum float64
	min float64
	max float64
}

// New returns an empty Counter.
func New() *Counter {
	c := &Counter{}
	c.Reset()
	return c
}

// Reset wipes all statistics.
func (c *Counter) Reset() {
	c.n = 0
	c.m2 = undefined
	c.sum = undefined
	c.min = undefined
	c.max = undefined
}

// Increment folds a single observation into the counter.
func (c *Counter) Increment(v float64) {
	c.merge(1, 0, v, v, v)
}

// Merge folds the statistics of other into c. Other is not modified.
func (c *Counter) Merge(other *Counter) {
	if other == nil {
		return
	}
	c.merge(other.n, other.m2, other.sum, other.min, other.max)
}

// merge applies the parallel variance update of Chan, Golub and LeVeque.
// The order of operations is significant for numerical stability.
func (c *Counter) merge(n uint64, m2, sum, lo, hi float64) {
	if n == 0 {
		return
	}

	if c.n == 0 {
		c.n = n
		c.m2 = m2
		c.sum = sum
		c.min = lo
		c.max = hi
		return
	}

	c.min = math.Min(c.min, lo)
	c.max = math.Max(c.max, hi)

	oldN := float64(c.n)
	meanDiff := sum/float64(n) - c.sum/oldN

	c.sum += sum
	c.n += n

	c.m2 = c.m2 + m2 + meanDiff*meanDiff*oldN*float64(n)/float64(c.n)
}

// Count returns the number of observations.
func (c *Counter) Count() uint64 {
	return c.n
}

// Sum returns the sum of all observations.
func (c *Counter) Sum() float64 {
	return c.sum
}

// M2 returns the accumulated second moment.
func (c *Counter) M2() float64 {
	return c.m2
}

// Mean returns the arithmetic mean, or the undefined sentinel when empty.
func (c *Counter) Mean() float64 {
	if c.n == 0 {
		return undefined
	}
	return c.sum / float64(c.n)
}

// Variance returns the Bessel-corrected sample variance.
// It is undefined for an empty counter and 0 for a single observation.
func (c *Counter) Variance() float64 {
	switch c.n {
	case 0:
		return undefined
	case 1:
		return 0
	default:
		return c.m2 / float64(c.n-1)
	}
}

// StdDev returns the sample standard deviation. NaN propagates.
func (c *Counter) StdDev() float64 {
	return math.Sqrt(c.Variance())
}

// Min returns the lowest observation.
func (c *Counter) Min() float64 {
	return c.min
}

// Max returns the highest observation.
func (c *Counter) Max() float64 {
	return c.max
}

// Clone returns an independent copy of c.
func (c *Counter) Clone() *Counter {
	cp := *c
	return &cp
}

// Equal reports whether both counters hold bit-identical state.
func (c *Counter) Equal(o *Counter) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.n == o.n &&
		math.Float64bits(c.m2) == math.Float64bits(o.m2) &&
		math.Float64bits(c.sum) == math.Float64bits(o.sum) &&
		math.Float64bits(c.min) == math.Float64bits(o.min) &&
		math.Float64bits(c.max) == math.Float64bits(o.max)
}

// String returns a JSON-like diagnostic representation. It is not meant for
// persistence; use ToBytes for that.
func (c *Counter) String() string {
	var b strings.Builder
	b.WriteString(`{"n":`)
	b.WriteString(strconv.FormatUint(c.n, 10))
	b.WriteString(`,"m2":`)
	b.WriteString(formatFloat(c.m2))
	b.WriteString(`,"sum":`)
	b.WriteString(formatFloat(c.sum))
	b.WriteString(`,"min":`)
	b.WriteString(formatFloat(c.min))
	b.WriteString(`,"max":`)
	b.WriteString(formatFloat(c.max))
	b.WriteString("}")
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
