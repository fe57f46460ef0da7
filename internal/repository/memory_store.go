package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/SinaHo/community-gate-bot/internal/model"
)

// memoryStore keeps everything in process. One mutex guards both maps,
// which makes every method trivially atomic.
type memoryStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	counters map[int64]*model.ReferralCounter
}

// NewMemoryStore returns an empty in-process store. Data is lost on exit.
func NewMemoryStore() Store {
	return &memoryStore{
		users:    make(map[int64]*model.User),
		counters: make(map[int64]*model.ReferralCounter),
	}
}

func (s *memoryStore) Users() UserRepository         { return (*memoryUsers)(s) }
func (s *memoryStore) Referrals() ReferralRepository { return (*memoryReferrals)(s) }
func (s *memoryStore) Close() error                  { return nil }

type memoryUsers memoryStore

func (m *memoryUsers) Register(_ context.Context, id int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(id, username)
	return nil
}

func (m *memoryUsers) EnsureMember(_ context.Context, id int64, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.getOrCreate(id, username)
	if u.Username == "" {
		u.Username = username
	}
	if u.State == model.StateNone {
		u.State = model.StateUnverified
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) IssueChallenge(_ context.Context, id int64, answer string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.State != model.StateUnverified {
		return false, nil
	}
	u.State = model.StatePendingChallenge
	u.PendingAnswer = sql.NullString{String: answer, Valid: true}
	return true, nil
}

func (m *memoryUsers) CompleteChallenge(_ context.Context, id int64, answer string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsPending() || u.PendingAnswer.String != answer {
		return false, nil
	}
	u.State = model.StateVerified
	u.PendingAnswer = sql.NullString{}
	return true, nil
}

func (m *memoryUsers) SetInvitedByIfAbsent(_ context.Context, id int64, username string, referrerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.getOrCreate(id, username)
	if u.InvitedBy.Valid {
		return false, nil
	}
	u.InvitedBy = sql.NullInt64{Int64: referrerID, Valid: true}
	return true, nil
}

func (m *memoryUsers) ClearInvitedBy(_ context.Context, id int64, referrerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.InvitedBy.Valid || u.InvitedBy.Int64 != referrerID {
		return false, nil
	}
	u.InvitedBy = sql.NullInt64{}
	return true, nil
}

func (m *memoryUsers) List(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// getOrCreate must be called with mu held.
func (m *memoryUsers) getOrCreate(id int64, username string) *model.User {
	u, ok := m.users[id]
	if !ok {
		u = &model.User{ID: id, Username: username}
		m.users[id] = u
	}
	return u
}

type memoryReferrals memoryStore

func (m *memoryReferrals) Increment(_ context.Context, referrerID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[referrerID]
	if !ok {
		c = &model.ReferralCounter{ReferrerID: referrerID}
		m.counters[referrerID] = c
	}
	c.InviteCount++
	return c.InviteCount, nil
}

func (m *memoryReferrals) MarkRewardIssued(_ context.Context, referrerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[referrerID]
	if !ok || c.RewardIssued {
		return false, nil
	}
	c.RewardIssued = true
	return true, nil
}

func (m *memoryReferrals) GetByReferrer(_ context.Context, referrerID int64) (*model.ReferralCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[referrerID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryReferrals) List(_ context.Context) ([]model.ReferralCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters := make([]model.ReferralCounter, 0, len(m.counters))
	for _, c := range m.counters {
		counters = append(counters, *c)
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].ReferrerID < counters[j].ReferrerID })
	return counters, nil
}
