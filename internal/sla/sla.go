// Package sla computes contractual deadline positions for batches.
package sla

import (
	"math"
	"time"
)

// AtRiskThresholdDays is the largest remaining-day count still reported as AT_RISK.
const AtRiskThresholdDays = 3

const day = 24 * time.Hour

// Band classifies a batch against its contractual delay.
type Band string

const (
	BandOK        Band = "OK"
	BandAtRisk    Band = "AT_RISK"
	BandOverdue   Band = "OVERDUE"
	BandUndefined Band = "UNDEFINED"
)

func (b Band) String() string { return string(b) }

// Result is the outcome of a computation. When Band is BandUndefined the day
// counts are meaningless and callers must not read them as "on time".
type Result struct {
	ElapsedDays   int
	RemainingDays int
	Band          Band
}

// Defined reports whether the result carries real day counts.
func (r Result) Defined() bool {
	return r.Band != BandUndefined
}

// Undefined is returned when the reception date or the contractual delay is missing.
var Undefined = Result{Band: BandUndefined}

// Compute derives elapsed/remaining days and the band. It is pure; results are
// never cached across calls.
func Compute(receptionDate *time.Time, contractualDelayDays *int, now time.Time) Result {
	if receptionDate == nil || receptionDate.IsZero() || contractualDelayDays == nil {
		return Undefined
	}

	elapsed := int(math.Floor(float64(now.Sub(*receptionDate)) / float64(day)))
	remaining := *contractualDelayDays - elapsed

	return Result{
		ElapsedDays:   elapsed,
		RemainingDays: remaining,
		Band:          bandFor(remaining),
	}
}

func bandFor(remaining int) Band {
	switch {
	case remaining < 0:
		return BandOverdue
	case remaining <= AtRiskThresholdDays:
		return BandAtRisk
	default:
		return BandOK
	}
}
