package handler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
	"github.com/SinaHo/community-gate-bot/internal/service"
)

const (
	CommandStart        = "start"
	CommandChallengeRef = "challengeref"
)

// Options tunes the coordinator.
type Options struct {
	// GroupInviteHash is the invite hash used in personal referral links.
	GroupInviteHash string
	// RequireVerifiedReferrer counts an invite only if the referrer has
	// passed the challenge.
	RequireVerifiedReferrer bool
}

// Coordinator routes inbound events to the verifier and the tracker.
// It keeps no state of its own.
type Coordinator struct {
	verifier service.MembershipVerifier
	tracker  service.ReferralTracker
	users    repository.UserRepository
	notifier service.Notifier
	logger   *zap.SugaredLogger
	opts     Options
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(
	verifier service.MembershipVerifier,
	tracker service.ReferralTracker,
	users repository.UserRepository,
	notifier service.Notifier,
	logger *zap.SugaredLogger,
	opts Options,
) *Coordinator {
	return &Coordinator{
		verifier: verifier,
		tracker:  tracker,
		users:    users,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// Dispatch handles a single event. A returned error aborts only this event.
func (c *Coordinator) Dispatch(ctx context.Context, ev model.Event) error {
	switch e := ev.(type) {
	case model.MemberJoined:
		return c.handleJoin(ctx, e)
	case model.TextMessage:
		return c.handleText(ctx, e)
	case model.Command:
		return c.handleCommand(ctx, e)
	case model.ButtonPress:
		return c.handleButton(ctx, e)
	default:
		c.logger.Debugw("ignoring event", "kind", ev.Kind())
		return nil
	}
}

func (c *Coordinator) handleJoin(ctx context.Context, e model.MemberJoined) error {
	if e.IsAutomated {
		return nil
	}
	return c.verifier.OnJoin(ctx, e.ChatID, e.MemberID, e.Username)
}

func (c *Coordinator) handleText(ctx context.Context, e model.TextMessage) error {
	state, err := c.verifier.Status(ctx, e.UserID)
	if errors.Is(err, service.ErrUnknownUser) {
		return nil
	}
	if err != nil {
		return err
	}
	if state != model.StatePendingChallenge {
		return nil
	}
	_, err = c.verifier.OnAnswer(ctx, e.ChatID, e.UserID, e.Text)
	return err
}

func (c *Coordinator) handleCommand(ctx context.Context, e model.Command) error {
	switch e.Name {
	case CommandStart:
		return c.handleStart(ctx, e)
	case CommandChallengeRef:
		count, found, err := c.tracker.GetCount(ctx, e.UserID)
		if err != nil {
			return err
		}
		c.send(ctx, model.OutboundMessage{ChatID: e.ChatID, Text: service.InviteCountText(count, found)})
		return nil
	default:
		return nil
	}
}

func (c *Coordinator) handleStart(ctx context.Context, e model.Command) error {
	referrerID, err := service.ParseReferrerID(e.Args)
	if err == nil && referrerID == e.UserID {
		err = fmt.Errorf("%w: self referral", service.ErrMalformedReferrerID)
	}
	if err != nil {
		if e.Args != "" {
			c.logger.Debugw("skipping referral", "user_id", e.UserID, "error", err)
		}
		return c.users.Register(ctx, e.UserID, e.Username)
	}

	if c.opts.RequireVerifiedReferrer {
		state, err := c.verifier.Status(ctx, referrerID)
		if err != nil && !errors.Is(err, service.ErrUnknownUser) {
			return err
		}
		if state != model.StateVerified {
			c.logger.Infow("referrer not verified, invite not counted", "user_id", e.UserID, "referrer_id", referrerID)
			return c.users.Register(ctx, e.UserID, e.Username)
		}
	}

	set, err := c.users.SetInvitedByIfAbsent(ctx, e.UserID, e.Username, referrerID)
	if err != nil {
		return err
	}
	if !set {
		c.logger.Debugw("invitee already attributed", "user_id", e.UserID, "referrer_id", referrerID)
		return nil
	}

	count, crossed, err := c.tracker.RecordInvite(ctx, referrerID)
	if err != nil {
		if count == 0 {
			// nothing was credited, so a retried /start must be able to attribute again
			c.releaseAttribution(ctx, e.UserID, referrerID)
		}
		return err
	}
	c.logger.Infow("invite recorded",
		"user_id", e.UserID,
		"referrer_id", referrerID,
		"invite_count", count,
		"reward", crossed,
	)
	return nil
}

func (c *Coordinator) releaseAttribution(ctx context.Context, userID, referrerID int64) {
	if _, err := c.users.ClearInvitedBy(context.WithoutCancel(ctx), userID, referrerID); err != nil {
		c.logger.Errorw("release attribution failed", "user_id", userID, "referrer_id", referrerID, "error", err)
	}
}

func (c *Coordinator) handleButton(ctx context.Context, e model.ButtonPress) error {
	if e.ActionID != service.PromoActionID {
		return nil
	}
	state, err := c.verifier.Status(ctx, e.UserID)
	if err != nil && !errors.Is(err, service.ErrUnknownUser) {
		return err
	}
	if state != model.StateVerified {
		c.logger.Debugw("referral link refused", "user_id", e.UserID, "state", state)
		return nil
	}
	link := service.ReferralLink(c.opts.GroupInviteHash, e.UserID)
	c.send(ctx, model.OutboundMessage{ChatID: e.ChatID, Text: service.ReferralLinkText(link)})
	return nil
}

func (c *Coordinator) send(ctx context.Context, msg model.OutboundMessage) {
	if err := c.notifier.Send(ctx, msg); err != nil {
		c.logger.Warnw("send failed", "chat_id", msg.ChatID, "error", err)
	}
}
