package models

import "time"

// Tier is the latency class assigned to a request by the severity router.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierStandard Tier = "standard"
)

// Valid reports whether the tier is one of the known classes.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierHigh, TierStandard:
		return true
	}
	return false
}

// TierPolicy bundles the per-tier knobs the dispatcher and cache honour.
// Values come from configuration; the zero value is never used directly.
type TierPolicy struct {
	Budget              time.Duration
	CacheTTL            time.Duration
	SimilarityThreshold float64
	// AllowApproximate gates semantic-cache reads on the synchronous path.
	AllowApproximate bool
	// SyncOracle permits a synchronous oracle call after all caches miss.
	SyncOracle bool
	// AsyncOracle schedules a follow-up oracle enrichment after responding.
	AsyncOracle bool
}
