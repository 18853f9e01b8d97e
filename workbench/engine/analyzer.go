package engine

import (
	"fmt"
	"math"
	"sort"
)

// Stress constants
const (
	maxStress           = 100
	frictionPerPart     = 5
	massPerPart         = 15
	contactStressValue  = 75
	preloadStressFactor = 50
	rotationStressScale = 50
	rotationMediumLimit = 30
	rotationHighLimit   = 70
	pivotStressScale    = 100
	pivotHighLimit      = 50
	pivotCriticalLimit  = 80
)

func clampStress(v float64) float64 {
	return math.Max(0, math.Min(maxStress, v))
}

func label(c *Component) string {
	return fmt.Sprintf("%s #%d", c.Kind, c.ID)
}

func loaded(c *Component) bool {
	return c.State == Engaged || c.State == Preloaded
}

// ComputeMetrics derives the synthetic stress values from the current registry.
// impact carries the readouts of the last release, if any.
func ComputeMetrics(reg *Registry, t *Tuning, impact Forces) Metrics {
	all := reg.All()
	count := float64(len(all))
	actuator := reg.FindFirstOfKind(Actuator)
	hasSpring := reg.FindFirstOfKind(Spring) != nil

	m := Metrics{
		FrictionStress: clampStress(count * frictionPerPart),
		Forces:         impact,
	}
	if hasSpring {
		m.MassStress = clampStress(math.Min(count*massPerPart, maxStress))
	}
	if actuator != nil {
		m.RotationStress = clampStress(math.Abs(actuator.Rotation) / math.Pi * 100)
		if OverlappingOfKind(actuator, all, Retention) != nil {
			m.ContactStress = contactStressValue
		}
		if hasSpring {
			m.SpringStress = clampStress(actuator.Preload * preloadStressFactor)
			if loaded(actuator) {
				m.Forces.SpringForce = t.Physics.SpringConstant * t.Physics.Compression
			}
		}
	}
	return m
}

// ComputeImpact returns the readouts of an actuator driven by the stored spring energy
func ComputeImpact(t *Tuning, actuator *Component) Forces {
	if actuator == nil || actuator.Mass <= 0 {
		return Forces{}
	}
	energy := 0.5 * t.Physics.SpringConstant * t.Physics.Compression * t.Physics.Compression
	velocity := math.Sqrt(2 * energy / actuator.Mass)
	impact := 0.5 * actuator.Mass * velocity * velocity
	return Forces{
		Velocity:     velocity,
		ImpactEnergy: impact,
		ContactForce: impact * t.Physics.ContactFactor,
	}
}

// AnalyzeFailures builds the ranked failure report for the current registry
func AnalyzeFailures(reg *Registry) []FailureReport {
	all := reg.All()
	failures := []FailureReport{}
	actuator := reg.FindFirstOfKind(Actuator)

	if actuator != nil && loaded(actuator) {
		if stress := math.Abs(actuator.Rotation) * pivotStressScale; stress > pivotHighLimit {
			sev := SeverityHigh
			if stress > pivotCriticalLimit {
				sev = SeverityCritical
			}
			failures = append(failures, FailureReport{
				Component:   label(actuator),
				ComponentID: actuator.ID,
				Reason:      "excessive rotation stress on pivot",
				Severity:    sev,
			})
		}
	}

	for _, r := range reg.OfKind(Retention) {
		stress := math.Abs(r.Rotation) * rotationStressScale
		var sev Severity
		switch {
		case stress > rotationHighLimit:
			sev = SeverityHigh
		case stress > rotationMediumLimit:
			sev = SeverityMedium
		default:
			continue
		}
		failures = append(failures, FailureReport{
			Component:   label(r),
			ComponentID: r.ID,
			Reason:      "excessive rotation stress",
			Severity:    sev,
		})
	}

	for _, r := range reg.OfKind(Retention) {
		if r.State == Engaged {
			failures = append(failures, FailureReport{
				Component:   label(r),
				ComponentID: r.ID,
				Reason:      "high contact pressure at engagement surface",
				Severity:    SeverityMedium,
			})
		}
	}

	springs := reg.OfKind(Spring)
	for _, s := range springs {
		if CountOverlaps(s, all) > 1 {
			failures = append(failures, FailureReport{
				Component:   label(s),
				ComponentID: s.ID,
				Reason:      "multiple contact points",
				Severity:    SeverityMedium,
			})
		}
	}
	// a loaded actuator holds every spring compressed
	if actuator != nil && loaded(actuator) {
		for _, s := range springs {
			failures = append(failures, FailureReport{
				Component:   label(s),
				ComponentID: s.ID,
				Reason:      "material fatigue from repeated compression",
				Severity:    SeverityLow,
			})
		}
	}

	switch {
	case actuator != nil && reg.FindFirstOfKind(Retention) == nil:
		failures = append(failures, FailureReport{
			Component:   label(actuator),
			ComponentID: actuator.ID,
			Reason:      "no retention element",
			Severity:    SeverityHigh,
		})
	case actuator == nil && len(all) > 0:
		failures = append(failures, FailureReport{
			Component: "system",
			Reason:    "no actuator element",
			Severity:  SeverityCritical,
		})
	}

	SortFailures(failures)
	return failures
}

// SortFailures orders entries from CRITICAL down to LOW, keeping insertion order within a severity
func SortFailures(f []FailureReport) {
	sort.SliceStable(f, func(i, j int) bool {
		return f[i].Severity.Rank() > f[j].Severity.Rank()
	})
}
