package model

import "database/sql"

// VerificationState is where a member stands in the challenge flow.
type VerificationState string

const (
	// StateNone marks a user known only from a /start command; no join event seen yet.
	StateNone             VerificationState = ""
	StateUnverified       VerificationState = "unverified"
	StatePendingChallenge VerificationState = "pending"
	StateVerified         VerificationState = "verified"
)

// User is a chat participant. PendingAnswer is valid iff State is StatePendingChallenge.
type User struct {
	ID            int64             `db:"id"`
	Username      string            `db:"username"`
	State         VerificationState `db:"state"`
	PendingAnswer sql.NullString    `db:"pending_answer"`
	InvitedBy     sql.NullInt64     `db:"invited_by"`
}

func (u *User) IsPending() bool {
	return u != nil && u.State == StatePendingChallenge && u.PendingAnswer.Valid
}

func (u *User) IsVerified() bool {
	return u != nil && u.State == StateVerified
}

// ReferralCounter tracks invites credited to one referrer.
type ReferralCounter struct {
	ReferrerID   int64 `db:"referrer_id"`
	InviteCount  int   `db:"invite_count"`
	RewardIssued bool  `db:"reward_issued"`
}
