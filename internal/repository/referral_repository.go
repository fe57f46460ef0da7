package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/jmoiron/sqlx"
)

type referralRepository struct {
	db *sqlx.DB
}

// NewReferralRepository constructs a ReferralRepository backed by PostgreSQL.
func NewReferralRepository(db *sqlx.DB) ReferralRepository {
	return &referralRepository{db: db}
}

// Increment relies on the row lock taken by the upsert, so concurrent
// invites for one referrer never lose an update.
func (r *referralRepository) Increment(ctx context.Context, referrerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		INSERT INTO referral_counters (referrer_id, invite_count) VALUES ($1, 1)
		ON CONFLICT (referrer_id) DO UPDATE
			SET invite_count = referral_counters.invite_count + 1,
			    updated_at = NOW()
		RETURNING invite_count
	`, referrerID)
	if err != nil {
		return 0, unavailable("increment invite count", err)
	}
	return count, nil
}

func (r *referralRepository) MarkRewardIssued(ctx context.Context, referrerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE referral_counters SET reward_issued = TRUE, updated_at = NOW()
		WHERE referrer_id = $1 AND NOT reward_issued
	`, referrerID)
	if err != nil {
		return false, unavailable("mark reward issued", err)
	}
	return affectedOne(res, "mark reward issued")
}

// GetByReferrer returns (nil, nil) if the referrer has no counter yet.
func (r *referralRepository) GetByReferrer(ctx context.Context, referrerID int64) (*model.ReferralCounter, error) {
	var c model.ReferralCounter
	err := r.db.GetContext(ctx, &c, `
		SELECT referrer_id, invite_count, reward_issued
		FROM referral_counters
		WHERE referrer_id = $1
	`, referrerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("select referral counter", err)
	}
	return &c, nil
}

func (r *referralRepository) List(ctx context.Context) ([]model.ReferralCounter, error) {
	var counters []model.ReferralCounter
	err := r.db.SelectContext(ctx, &counters, `
		SELECT referrer_id, invite_count, reward_issued
		FROM referral_counters
		ORDER BY referrer_id
	`)
	if err != nil {
		return nil, unavailable("list referral counters", err)
	}
	return counters, nil
}
