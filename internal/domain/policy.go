package domain

import "time"

// Policy holds the settlement constants exposed as configuration.
type Policy struct {
	PostingFee         int64          `json:"posting_fee"`
	StandardReward     int64          `json:"standard_reward"`
	DailyPostCap       int            `json:"daily_post_cap"`
	DefaultCap         int            `json:"default_submission_cap"`
	AutoApproveTimeout time.Duration  `json:"auto_approve_timeout"`
	SignupGrant        int64          `json:"signup_grant"`
	MaxProofBytes      int64          `json:"max_proof_bytes"`
	Location           *time.Location `json:"-"`
}

// DefaultPolicy returns the marketplace's standing rules.
func DefaultPolicy() Policy {
	return Policy{
		PostingFee:         25,
		StandardReward:     5,
		DailyPostCap:       5,
		DefaultCap:         50,
		AutoApproveTimeout: 12 * time.Hour,
		SignupGrant:        10,
		MaxProofBytes:      4 << 20,
		Location:           time.Local,
	}
}

// StartOfDay returns local midnight for t in the policy's location.
// Daily post caps reset at this instant.
func (p Policy) StartOfDay(t time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
