package models

import (
	"sort"
	"time"
)

// BlockReason explains a refused admission.
type BlockReason string

const (
	BlockReasonNone        BlockReason = ""
	BlockReasonWindowFull  BlockReason = "WINDOW_FULL"
	BlockReasonStoreFailed BlockReason = "STORE_FAILED"
)

// RateWindowRecord holds the admitted request times for one key, oldest first.
type RateWindowRecord struct {
	Key        string  `json:"key"`
	Timestamps []int64 `json:"timestamps"`
}

// NewRateWindowRecord returns an empty record for key.
func NewRateWindowRecord(key string) *RateWindowRecord {
	return &RateWindowRecord{Key: key, Timestamps: []int64{}}
}

// Prune drops timestamps that fell out of the window ending at now.
// An entry survives while now-ts < window, matching a trailing window of that width.
func (r *RateWindowRecord) Prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	kept := r.Timestamps[:0]
	for _, ts := range r.Timestamps {
		if time.Unix(0, ts).After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.Timestamps = kept
	sort.Slice(r.Timestamps, func(i, j int) bool { return r.Timestamps[i] < r.Timestamps[j] })
}

// Count returns the number of timestamps in the record.
func (r *RateWindowRecord) Count() int {
	return len(r.Timestamps)
}

// Append records an admitted request at now.
func (r *RateWindowRecord) Append(now time.Time) {
	r.Timestamps = append(r.Timestamps, now.UnixNano())
}

// Oldest returns the earliest timestamp, or zero when empty.
func (r *RateWindowRecord) Oldest() time.Time {
	if len(r.Timestamps) == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.Timestamps[0])
}

// AdmissionDecision is the outcome of one admission check.
type AdmissionDecision struct {
	Allowed    bool          `json:"allowed"`
	Reason     BlockReason   `json:"reason,omitempty"`
	Count      int           `json:"count"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}
