package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SinaHo/community-gate-bot/internal/model"
)

// ErrStoreUnavailable wraps every failure talking to the backing store.
var ErrStoreUnavailable = errors.New("store unavailable")

// UserRepository stores users. Every state transition is a conditional
// write so that concurrent events for one user cannot both apply.
type UserRepository interface {
	// Register creates the user with no verification state if absent.
	Register(ctx context.Context, id int64, username string) error
	// EnsureMember creates the user as Unverified, or moves a stateless
	// record to Unverified. Pending or verified users are left untouched.
	EnsureMember(ctx context.Context, id int64, username string) (*model.User, error)
	// GetByID returns (nil, nil) if the user does not exist.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// IssueChallenge moves Unverified -> PendingChallenge storing answer.
	// Reports false if the user was not Unverified.
	IssueChallenge(ctx context.Context, id int64, answer string) (bool, error)
	// CompleteChallenge moves PendingChallenge -> Verified if answer equals
	// the stored one. Reports false otherwise.
	CompleteChallenge(ctx context.Context, id int64, answer string) (bool, error)
	// SetInvitedByIfAbsent registers the user if needed and sets invitedBy
	// only when it is unset. Reports whether this call set it.
	SetInvitedByIfAbsent(ctx context.Context, id int64, username string, referrerID int64) (bool, error)
	// ClearInvitedBy unsets invitedBy only while it still equals referrerID.
	// Reports whether this call cleared it.
	ClearInvitedBy(ctx context.Context, id int64, referrerID int64) (bool, error)
	List(ctx context.Context) ([]model.User, error)
}

// ReferralRepository stores per-referrer invite counters.
type ReferralRepository interface {
	// Increment atomically adds one invite, creating the counter if needed,
	// and returns the new count.
	Increment(ctx context.Context, referrerID int64) (int, error)
	// MarkRewardIssued flips rewardIssued from false to true. Reports
	// whether this call did the flip.
	MarkRewardIssued(ctx context.Context, referrerID int64) (bool, error)
	// GetByReferrer returns (nil, nil) if no counter exists.
	GetByReferrer(ctx context.Context, referrerID int64) (*model.ReferralCounter, error)
	List(ctx context.Context) ([]model.ReferralCounter, error)
}

// Store bundles both repositories of one backend.
type Store interface {
	Users() UserRepository
	Referrals() ReferralRepository
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
