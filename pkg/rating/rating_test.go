package rating

import (
	"testing"

	"github.com/mchmarny/tally/pkg/counter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lower = 1.0
	upper = 5.0
)

func ratingOf(values ...float64) *Rating {
	r := New(lower, upper)
	for _, v := range values {
		r.Increment(v)
	}
	return r
}

func TestNew(t *testing.T) {
	r := New(lower, upper)
	assert.Equal(t, 3.0, r.GlobalMean())
	assert.Equal(t, uint64(0), r.Count())
	assert.Equal(t, 3.0, r.MeanRating())
	assert.Equal(t, 3.0, r.BayesianScore())

	assert.Equal(t, 5.0, New(0, 10).GlobalMean())
	assert.Equal(t, -1.0, New(-2, 0).GlobalMean())
}

func TestBayesianScore_ManyGood(t *testing.T) {
	r := ratingOf(5, 5, 5, 5, 5)
	assert.Equal(t, 5.0, r.MeanRating())
	assert.Equal(t, uint64(5), r.Count())
	assert.InDelta(t, 5.0/6.0*5+1.0/6.0*3, r.BayesianScore(), 1e-12)
	assert.Equal(t, "Rating: 5.00 (5), SortedBy 4.67", r.String())
}

func TestBayesianScore_Cache(t *testing.T) {
	r := ratingOf(1, 1)
	first := r.BayesianScore()
	assert.Equal(t, first, r.BayesianScore())

	r.Increment(5)
	assert.NotEqual(t, first, r.BayesianScore())
	assert.InDelta(t, 0.75*(7.0/3.0)+0.25*3, r.BayesianScore(), 1e-12)
}

func TestSort_Ranking(t *testing.T) {
	noRatings := ratingOf()
	manyPoorRatings := ratingOf(1, 1, 1, 1, 1)
	manyGoodRatings := ratingOf(5, 5, 5, 5, 5)
	fewPoorRatings := ratingOf(1, 1)
	fewGoodRatings := ratingOf(5, 5)

	list := []*Rating{noRatings, manyGoodRatings, fewGoodRatings, manyPoorRatings, fewPoorRatings}
	Sort(list)

	assert.Same(t, manyGoodRatings, list[0])
	assert.Same(t, fewGoodRatings, list[1])
	assert.Same(t, noRatings, list[2])
	assert.Same(t, fewPoorRatings, list[3])
	assert.Same(t, manyPoorRatings, list[4])

	assert.Equal(t, noRatings.GlobalMean(), noRatings.BayesianScore())
}

func TestCompare(t *testing.T) {
	good := ratingOf(5)
	poor := ratingOf(1)
	assert.Equal(t, -1, Compare(good, poor))
	assert.Equal(t, 1, Compare(poor, good))
	assert.Equal(t, 0, Compare(good, ratingOf(5)))
}

func TestMerge(t *testing.T) {
	a := ratingOf(5, 5)
	c := counter.New()
	c.Increment(5)
	c.Increment(5)
	c.Increment(5)
	a.Merge(c)
	assert.Equal(t, uint64(5), a.Count())
	assert.Equal(t, "Rating: 5.00 (5), SortedBy 4.67", a.String())

	b := ratingOf(5, 5)
	require.NoError(t, b.MergeBytes(c.ToBytes()))
	assert.Equal(t, a.BayesianScore(), b.BayesianScore())

	assert.ErrorIs(t, b.MergeBytes([]byte{0}), counter.ErrMalformedEncoding)
	assert.Equal(t, uint64(5), b.Count())
}

func TestString_Empty(t *testing.T) {
	assert.Equal(t, "Rating: 3.00 (0), SortedBy 3.00", ratingOf().String())
}

func TestCounter_IsCopy(t *testing.T) {
	r := New(1, 5)
	r.Increment(5)
	r.Increment(5)
	before := r.BayesianScore()

	c := r.Counter()
	require.NoError(t, c.FromBytes(ratingOf(1, 1).Counter().ToBytes()))

	assert.Equal(t, uint64(2), r.Count())
	assert.Equal(t, 5.0, r.MeanRating())
	assert.Equal(t, before, r.BayesianScore())
}
