package datapoint

import (
	"time"

	"golang.org/x/time/rate"
)

// rateObserver refines a data-point's mean-rate estimate from observed
// propagate timestamps with a simple EWMA of the inter-arrival interval,
// and uses a token-bucket Limiter set to the declared max rate to flag
// bursts past it. The max-rate estimate itself is only read, never
// changed.
type rateObserver struct {
	limiter  *rate.Limiter
	last     time.Time
	meanIval time.Duration
	seeded   bool
}

// emaWeight is how much each new inter-arrival interval contributes to
// the running mean; low weight favors a stable estimate over reacting to
// single bursts.
const emaWeight = 0.2

func newRateObserver(maxHz float64) *rateObserver {
	if maxHz <= 0 {
		maxHz = 1
	}
	return &rateObserver{limiter: rate.NewLimiter(rate.Limit(maxHz), 1)}
}

// Observe records one propagate at "now" and returns the refined
// mean-rate estimate in Hz, plus whether this propagate exceeded the
// declared max-rate burst allowance.
func (r *rateObserver) Observe(now time.Time) (meanHz float64, overMax bool) {
	overMax = !r.limiter.AllowN(now, 1)

	if !r.seeded {
		r.seeded = true
		r.last = now
		return 0, overMax
	}
	ival := now.Sub(r.last)
	r.last = now
	if r.meanIval == 0 {
		r.meanIval = ival
	} else {
		r.meanIval = time.Duration(float64(r.meanIval)*(1-emaWeight) + float64(ival)*emaWeight)
	}
	if r.meanIval <= 0 {
		return 0, overMax
	}
	return float64(time.Second) / float64(r.meanIval), overMax
}
