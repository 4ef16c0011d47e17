package citation

import (
	"math"
	"time"
)

// NeutralFreshness is assigned when a document carries no usable timestamp.
const NeutralFreshness = 0.50

// FreshnessScore maps the age of a reference timestamp (usually crawled_at)
// to a step-decayed score. Boundaries are inclusive of the upper bound:
//
//	0 days → 1.00, ≤30 → 0.95, ≤90 → 0.85, ≤365 → 0.70, ≤1825 → 0.50, else 0.30
//
// A nil reference yields the neutral default. The score is monotonically
// non-increasing with age and bounded to [0.30, 1.00].
func FreshnessScore(ref *time.Time, now time.Time) float64 {
	if ref == nil {
		return NeutralFreshness
	}

	days := math.Floor(now.Sub(*ref).Hours() / 24)
	if days < 0 {
		// Clock skew or future-dated documents count as brand new.
		days = 0
	}

	switch {
	case days == 0:
		return 1.00
	case days <= 30:
		return 0.95
	case days <= 90:
		return 0.85
	case days <= 365:
		return 0.70
	case days <= 1825:
		return 0.50
	default:
		return 0.30
	}
}
