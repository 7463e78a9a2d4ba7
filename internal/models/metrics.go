package models

import "time"

// RuntimeMetrics is a point-in-time summary of service counters.
type RuntimeMetrics struct {
	RequestsTotal     uint64    `json:"requests_total"`
	CacheHitRatio     float64   `json:"cache_hit_ratio"`
	SectionConflicts  uint64    `json:"section_conflicts"`
	WaitlistPromotion uint64    `json:"waitlist_promotions"`
	Goroutines        int       `json:"goroutines"`
	GeneratedAt       time.Time `json:"generated_at"`
}
