// Package diagnostics periodically logs a snapshot of the store. It is
// observability only: nothing in the verification flow depends on it.
package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
)

type Dumper struct {
	store  repository.Store
	logger *zap.SugaredLogger
}

func NewDumper(store repository.Store, logger *zap.SugaredLogger) *Dumper {
	return &Dumper{store: store, logger: logger}
}

// Snapshot is one dump of the store contents.
type Snapshot struct {
	Users    []model.User
	Counters []model.ReferralCounter
}

// Dump reads every user and counter and logs them.
func (d *Dumper) Dump(ctx context.Context) (*Snapshot, error) {
	users, err := d.store.Users().List(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := d.store.Referrals().List(ctx)
	if err != nil {
		return nil, err
	}

	verified := 0
	for _, u := range users {
		if u.IsVerified() {
			verified++
		}
		d.logger.Debugw("user",
			"id", u.ID,
			"username", u.Username,
			"state", string(u.State),
			"invited_by", u.InvitedBy.Int64,
		)
	}
	for _, c := range counters {
		d.logger.Debugw("invites",
			"referrer_id", c.ReferrerID,
			"invite_count", c.InviteCount,
			"reward_issued", c.RewardIssued,
		)
	}
	d.logger.Infow("store snapshot",
		"users", len(users),
		"verified", verified,
		"referrers", len(counters),
	)
	return &Snapshot{Users: users, Counters: counters}, nil
}

// Schedule registers the dump as a recurring job on a new scheduler and
// starts it. The caller owns Shutdown.
func (d *Dumper) Schedule(interval time.Duration) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := d.Dump(ctx); err != nil {
				d.logger.Warnw("store snapshot failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("schedule dump: %w", err)
	}
	s.Start()
	return s, nil
}
