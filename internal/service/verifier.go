package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
)

// ErrUnknownUser is returned for a user that has no record yet.
var ErrUnknownUser = errors.New("unknown user")

// MembershipVerifier owns the Unverified -> PendingChallenge -> Verified
// transitions of every user.
type MembershipVerifier interface {
	// OnJoin registers a new member and challenges them unless they are
	// already pending or verified.
	OnJoin(ctx context.Context, chatID, userID int64, username string) error
	// OnAnswer judges a reply against the pending challenge. It reports
	// true only on the call that verifies the user.
	OnAnswer(ctx context.Context, chatID, userID int64, text string) (bool, error)
	// Status returns ErrUnknownUser if the user has no record.
	Status(ctx context.Context, userID int64) (model.VerificationState, error)
}

type membershipVerifier struct {
	users     repository.UserRepository
	generator ChallengeGenerator
	notifier  Notifier
	logger    *zap.SugaredLogger
	threshold int
}

// NewMembershipVerifier constructs a MembershipVerifier. threshold only
// shapes the promo text sent after a successful answer.
func NewMembershipVerifier(
	users repository.UserRepository,
	generator ChallengeGenerator,
	notifier Notifier,
	logger *zap.SugaredLogger,
	threshold int,
) MembershipVerifier {
	return &membershipVerifier{
		users:     users,
		generator: generator,
		notifier:  notifier,
		logger:    logger,
		threshold: threshold,
	}
}

func (v *membershipVerifier) OnJoin(ctx context.Context, chatID, userID int64, username string) error {
	u, err := v.users.EnsureMember(ctx, userID, username)
	if err != nil {
		return err
	}
	if u.State != model.StateUnverified {
		return nil
	}

	challenge := v.generator.Generate()
	issued, err := v.users.IssueChallenge(ctx, userID, challenge.Answer)
	if err != nil {
		return err
	}
	if !issued {
		// a concurrent join already challenged this user
		return nil
	}

	v.logger.Infow("challenge issued", "user_id", userID, "chat_id", chatID)
	v.send(ctx, model.OutboundMessage{
		ChatID: chatID,
		Text:   fmt.Sprintf(msgChallenge, challenge.Question),
	})
	return nil
}

func (v *membershipVerifier) OnAnswer(ctx context.Context, chatID, userID int64, text string) (bool, error) {
	u, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !u.IsPending() {
		return false, nil
	}

	if u.PendingAnswer.String != text {
		v.logger.Infow("challenge failed", "user_id", userID)
		v.send(ctx, model.OutboundMessage{ChatID: chatID, Text: msgIncorrect})
		return false, nil
	}

	verified, err := v.users.CompleteChallenge(ctx, userID, text)
	if err != nil {
		return false, err
	}
	if !verified {
		// lost the race to a concurrent correct answer
		return false, nil
	}

	v.logger.Infow("user verified", "user_id", userID)
	v.send(ctx, model.OutboundMessage{ChatID: chatID, Text: msgCorrect})
	v.send(ctx, model.OutboundMessage{
		ChatID: chatID,
		Text:   fmt.Sprintf(msgPromo, v.threshold),
		Button: &model.Button{Text: msgPromoButton, ActionID: PromoActionID},
	})
	return true, nil
}

func (v *membershipVerifier) Status(ctx context.Context, userID int64) (model.VerificationState, error) {
	u, err := v.users.GetByID(ctx, userID)
	if err != nil {
		return model.StateNone, err
	}
	if u == nil {
		return model.StateNone, ErrUnknownUser
	}
	return u.State, nil
}

// send only logs delivery failures; the transition is already committed.
func (v *membershipVerifier) send(ctx context.Context, msg model.OutboundMessage) {
	if err := v.notifier.Send(ctx, msg); err != nil {
		v.logger.Warnw("send failed", "chat_id", msg.ChatID, "error", err)
	}
}
