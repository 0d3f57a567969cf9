// Package rating ranks items by a Bayesian shrinkage score built on top of a
// [counter.Counter].
//
// The score blends the observed mean rating R of an item with a prior C:
//
//	w*R + (1-w)*C, where w = v/(v+m)
//
// v is the number of ratings and m a constant threshold. Items with few
// ratings stay close to the prior, items with many ratings approach their
// observed mean.
package rating

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/mchmarny/tally/pkg/counter"
)

// Threshold is the shrinkage constant m.
const Threshold = 1.0

// Rating is a counter of rating values with a prior global mean.
type Rating struct {
	counter    *counter.Counter
	globalMean float64

	cached      bool
	cachedCount uint64
	cachedScore float64
}

// New returns an empty Rating whose prior is the midpoint of [lower, upper].
func New(lower, upper float64) *Rating {
	return &Rating{
		counter:    counter.New(),
		globalMean: lower + (upper-lower)/2.0,
	}
}

// Increment adds one rating.
func (r *Rating) Increment(v float64) {
	r.counter.Increment(v)
}

// Merge folds the ratings summarized by c into r.
func (r *Rating) Merge(c *counter.Counter) {
	r.counter.Merge(c)
}

// MergeBytes folds an encoded counter into r.
func (r *Rating) MergeBytes(b []byte) error {
	if err := r.counter.MergeBytes(b); err != nil {
		return fmt.Errorf("merging rating: %w", err)
	}
	return nil
}

// Counter returns a copy of the underlying counter.
func (r *Rating) Counter() *counter.Counter {
	return r.counter.Clone()
}

// Count returns the number of ratings.
func (r *Rating) Count() uint64 {
	return r.counter.Count()
}

// GlobalMean returns the prior.
func (r *Rating) GlobalMean() float64 {
	return r.globalMean
}

// MeanRating returns the observed mean, or the prior when there are no ratings.
func (r *Rating) MeanRating() float64 {
	m := r.counter.Mean()
	if math.IsNaN(m) {
		return r.globalMean
	}
	return m
}

// BayesianScore returns the shrunk score used for ranking.
func (r *Rating) BayesianScore() float64 {
	n := r.counter.Count()
	if r.cached && r.cachedCount == n {
		return r.cachedScore
	}

	v := float64(n)
	w := v / (v + Threshold)
	r.cachedScore = w*r.MeanRating() + (1-w)*r.globalMean
	r.cachedCount = n
	r.cached = true
	return r.cachedScore
}

// Compare orders ratings by descending score: it returns -1 when a scores
// higher than b, 1 when lower and 0 on a tie.
func Compare(a, b *Rating) int {
	return cmp.Compare(b.BayesianScore(), a.BayesianScore())
}

// Sort orders ratings best first. Ties keep their input order.
func Sort(ratings []*Rating) {
	slices.SortStableFunc(ratings, Compare)
}

func (r *Rating) String() string {
	return fmt.Sprintf("Rating: %.2f (%d), SortedBy %.2f",
		r.MeanRating(), r.Count(), r.BayesianScore())
}
