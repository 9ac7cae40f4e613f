// Package temporal computes recency weights and validity windows for
// evidence. Both the conflict reasoner and the opportunity scorer consume it;
// it never writes back to the graph.
package temporal

import (
	"math"
	"time"

	"github.com/pharmasignal/evigraph/pkg/types"
)

const (
	// defaultHalfLifeDays is the number of days for a recency weight to halve.
	// One year keeps Phase 3 readouts relevant while still separating a 2024
	// result from a 2020 one.
	defaultHalfLifeDays = 365.0

	hoursPerDay = 24.0
)

// Reasoner computes time-based weights over evidence. The zero value is not
// usable; construct with NewReasoner.
type Reasoner struct {
	halfLifeDays float64
}

// NewReasoner returns a Reasoner with the default one-year half-life.
func NewReasoner() *Reasoner {
	return &Reasoner{halfLifeDays: defaultHalfLifeDays}
}

// NewReasonerWithHalfLife returns a Reasoner with a custom half-life in days.
// halfLifeDays must be > 0; if it is not, the default is used.
func NewReasonerWithHalfLife(halfLifeDays float64) *Reasoner {
	if halfLifeDays <= 0 {
		halfLifeDays = defaultHalfLifeDays
	}
	return &Reasoner{halfLifeDays: halfLifeDays}
}

// RecencyWeight returns a weight in [0,1] for the evidence at the reference
// time now. The weight is a monotonically non-increasing function of
// now - extraction_timestamp:
//
//	weight = 2^(-daysSince / halfLife)
//
// Evidence extracted at or after now weights exactly 1.0. Newer evidence
// always weights >= older evidence, which the conflict dominance ordering
// and the scorer's monotonicity guarantees depend on.
func (r *Reasoner) RecencyWeight(ev *types.Evidence, now time.Time) float64 {
	if ev == nil {
		return 0
	}
	age := now.Sub(ev.ExtractionTimestamp)
	if age <= 0 {
		return 1.0
	}
	daysSince := age.Hours() / hoursPerDay
	weight := math.Pow(2, -daysSince/r.halfLifeDays)
	if weight > 1.0 {
		weight = 1.0
	}
	if weight < 0 {
		weight = 0
	}
	return weight
}

// IsValidAt reports whether the evidence's validity window covers the given
// instant: validity_start <= at and (validity_end is unset or at <=
// validity_end). Expired evidence is excluded from "currently valid" views
// but is never deleted from the graph.
func (r *Reasoner) IsValidAt(ev *types.Evidence, at time.Time) bool {
	if ev == nil {
		return false
	}
	if at.Before(ev.ValidityStart) {
		return false
	}
	if ev.ValidityEnd != nil && at.After(*ev.ValidityEnd) {
		return false
	}
	return true
}

// AgeDays returns the age of the evidence in days at the reference time,
// floored at zero.
func (r *Reasoner) AgeDays(ev *types.Evidence, now time.Time) float64 {
	if ev == nil {
		return 0
	}
	age := now.Sub(ev.ExtractionTimestamp)
	if age <= 0 {
		return 0
	}
	return age.Hours() / hoursPerDay
}
