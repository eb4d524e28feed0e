package campaign

import "time"

// Stage is the active sale window. A zero allowance suspends public sales.
type Stage struct {
	OpeningTime        time.Time `json:"opening_time"`
	ClosingTime        time.Time `json:"closing_time"`
	Rate               uint64    `json:"rate"`
	RemainingAllowance uint64    `json:"remaining_allowance"`
}

// Open reports whether now is inside the stage window, bounds included.
func (s Stage) Open(now time.Time) bool {
	return !now.Before(s.OpeningTime) && !now.After(s.ClosingTime)
}

// StageParams configures a new stage. Limit is in contributed funds.
type StageParams struct {
	OpeningTime time.Time `json:"opening_time"`
	ClosingTime time.Time `json:"closing_time"`
	Rate        uint64    `json:"rate"`
	Limit       uint64    `json:"limit"`
}
