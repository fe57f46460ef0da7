package service

import (
	"context"
	"fmt"

	"github.com/SinaHo/community-gate-bot/internal/model"
)

// Notifier delivers outbound messages to the chat platform.
type Notifier interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

// PromoActionID is the button action that asks for a personal referral link.
const PromoActionID = "join_promo"

const (
	msgChallenge      = "Please solve this captcha: %s"
	msgCorrect        = "Correct! Welcome to the group."
	msgIncorrect      = "Wrong answer, please try again."
	msgPromo          = "Join the promo: invite %d friends and unlock access to the VIP group."
	msgPromoButton    = "Join the promo"
	msgReward         = "Congratulations! You invited %d people. Here is your VIP group link: %s"
	msgReferralLink   = "Here is your personal promo link: %s"
	msgInviteCount    = "You have invited %d people."
	msgNoInvitesYet   = "You haven't invited anyone yet."
	referralLinkShape = "https://t.me/+%s?start=%d"
)

// ReferralLink is the personal deep link that credits userID as referrer.
func ReferralLink(groupInviteHash string, userID int64) string {
	return fmt.Sprintf(referralLinkShape, groupInviteHash, userID)
}

// InviteCountText is the reply to a count query.
func InviteCountText(count int, found bool) string {
	if !found {
		return msgNoInvitesYet
	}
	return fmt.Sprintf(msgInviteCount, count)
}

// ReferralLinkText wraps the personal link in its reply.
func ReferralLinkText(link string) string {
	return fmt.Sprintf(msgReferralLink, link)
}
