package models

import "time"

// FeedbackOutcome is a human validation verdict on a cached analysis.
type FeedbackOutcome string

const (
	FeedbackConfirmed FeedbackOutcome = "confirmed"
	FeedbackRejected  FeedbackOutcome = "rejected"
)

// FeedbackSignal references a cache entry by fingerprint and carries one
// validation verdict. Signals are append-only; replays are deduplicated by
// SignalID and never mutate prior signals.
type FeedbackSignal struct {
	SignalID    string
	Fingerprint string
	Outcome     FeedbackOutcome
	ValidatorID string
	SubmittedAt time.Time
}
