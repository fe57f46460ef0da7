package service_test

import (
	"context"
	"errors"
	"sync"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/SinaHo/community-gate-bot/internal/repository"
)

// recordingNotifier captures every message instead of delivering it.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.OutboundMessage
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg model.OutboundMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) messages() []model.OutboundMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.OutboundMessage(nil), n.sent...)
}

func (n *recordingNotifier) to(chatID int64) []model.OutboundMessage {
	var out []model.OutboundMessage
	for _, m := range n.messages() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// fixedGenerator always returns the same challenge and counts calls.
type fixedGenerator struct {
	challenge model.Challenge
	calls     int
}

func (g *fixedGenerator) Generate() model.Challenge {
	g.calls++
	return g.challenge
}

var errDBDown = errors.New("connection refused")

// brokenUsers fails every call with a store error.
type brokenUsers struct{}

func (brokenUsers) Register(context.Context, int64, string) error {
	return errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) EnsureMember(context.Context, int64, string) (*model.User, error) {
	return nil, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) GetByID(context.Context, int64) (*model.User, error) {
	return nil, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) IssueChallenge(context.Context, int64, string) (bool, error) {
	return false, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) CompleteChallenge(context.Context, int64, string) (bool, error) {
	return false, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) SetInvitedByIfAbsent(context.Context, int64, string, int64) (bool, error) {
	return false, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) ClearInvitedBy(context.Context, int64, int64) (bool, error) {
	return false, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}
func (brokenUsers) List(context.Context) ([]model.User, error) {
	return nil, errors.Join(repository.ErrStoreUnavailable, errDBDown)
}

// flakyCounters increments fine but fails to flag the reward once.
type flakyCounters struct {
	repository.ReferralRepository
	failMark bool
}

func (f *flakyCounters) MarkRewardIssued(ctx context.Context, referrerID int64) (bool, error) {
	if f.failMark {
		f.failMark = false
		return false, errors.Join(repository.ErrStoreUnavailable, errDBDown)
	}
	return f.ReferralRepository.MarkRewardIssued(ctx, referrerID)
}
