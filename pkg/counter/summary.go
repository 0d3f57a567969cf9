package counter

// Summary is the derived statistics of a Counter in a form that encodes to
// JSON and YAML. Undefined values are omitted.
type Summary struct {
	Count    uint64   `json:"count" yaml:"count"`
	Sum      *float64 `json:"sum,omitempty" yaml:"sum,omitempty"`
	Mean     *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Variance *float64 `json:"variance,omitempty" yaml:"variance,omitempty"`
	StdDev   *float64 `json:"stddev,omitempty" yaml:"stddev,omitempty"`
	Min      *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Summary returns the derived statistics of c.
func (c *Counter) Summary() Summary {
	return Summary{
		Count:    c.n,
		Sum:      defined(c.Sum()),
		Mean:     defined(c.Mean()),
		Variance: defined(c.Variance()),
		StdDev:   defined(c.StdDev()),
		Min:      defined(c.Min()),
		Max:      defined(c.Max()),
	}
}

func defined(v float64) *float64 {
	if IsUndefined(v) {
		return nil
	}
	return &v
}
