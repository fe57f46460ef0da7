package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
)

// ErrMalformedReferrerID is returned for a /start argument that is not a
// positive integer id.
var ErrMalformedReferrerID = errors.New("malformed referrer id")

// DefaultRewardThreshold is the invite count that unlocks the reward.
const DefaultRewardThreshold = 3

// ReferralTracker owns the per-referrer invite counters.
type ReferralTracker interface {
	// RecordInvite credits one invite to referrerID. crossed is true only on
	// the call that issues the reward. On error, count is zero unless the
	// increment itself was committed.
	RecordInvite(ctx context.Context, referrerID int64) (count int, crossed bool, err error)
	// GetCount reports found=false when the user never had an invite.
	GetCount(ctx context.Context, userID int64) (count int, found bool, err error)
}

type referralTracker struct {
	counters   repository.ReferralRepository
	notifier   Notifier
	logger     *zap.SugaredLogger
	threshold  int
	rewardLink string
}

// NewReferralTracker constructs a ReferralTracker. A threshold below 1
// falls back to DefaultRewardThreshold.
func NewReferralTracker(
	counters repository.ReferralRepository,
	notifier Notifier,
	logger *zap.SugaredLogger,
	threshold int,
	rewardLink string,
) ReferralTracker {
	if threshold < 1 {
		threshold = DefaultRewardThreshold
	}
	return &referralTracker{
		counters:   counters,
		notifier:   notifier,
		logger:     logger,
		threshold:  threshold,
		rewardLink: rewardLink,
	}
}

func (t *referralTracker) RecordInvite(ctx context.Context, referrerID int64) (int, bool, error) {
	count, err := t.counters.Increment(ctx, referrerID)
	if err != nil {
		return 0, false, err
	}
	if count < t.threshold {
		return count, false, nil
	}

	// the flag flip is the single point deciding who sends the reward
	crossed, err := t.counters.MarkRewardIssued(ctx, referrerID)
	if err != nil {
		return count, false, err
	}
	if !crossed {
		return count, false, nil
	}

	t.logger.Infow("referral reward issued", "referrer_id", referrerID, "invite_count", count)
	msg := model.OutboundMessage{
		ChatID: referrerID,
		Text:   fmt.Sprintf(msgReward, t.threshold, t.rewardLink),
	}
	if err := t.notifier.Send(ctx, msg); err != nil {
		t.logger.Warnw("send reward failed", "referrer_id", referrerID, "error", err)
	}
	return count, true, nil
}

func (t *referralTracker) GetCount(ctx context.Context, userID int64) (int, bool, error) {
	c, err := t.counters.GetByReferrer(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	if c == nil {
		return 0, false, nil
	}
	return c.InviteCount, true, nil
}

// ParseReferrerID validates the argument of a /start command.
func ParseReferrerID(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, fmt.Errorf("%w: empty", ErrMalformedReferrerID)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedReferrerID, arg)
	}
	return id, nil
}
