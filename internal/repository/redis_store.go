package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/SinaHo/community-gate-bot/internal/model"
)

// Users live in a hash per id (username, state, pending_answer, invited_by),
// counters in a hash per referrer (invite_count, reward_issued). Conditional
// transitions run as Lua scripts so each one is atomic on the server.

var registerScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'username', ARGV[1])
redis.call('HSETNX', KEYS[1], 'state', '')
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

var ensureMemberScript = redis.NewScript(`
local name = redis.call('HGET', KEYS[1], 'username')
if not name or name == '' then
  redis.call('HSET', KEYS[1], 'username', ARGV[1])
end
local state = redis.call('HGET', KEYS[1], 'state')
if not state or state == '' then
  redis.call('HSET', KEYS[1], 'state', ARGV[3])
end
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

var issueChallengeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') == ARGV[2] then
  redis.call('HSET', KEYS[1], 'state', ARGV[3], 'pending_answer', ARGV[1])
  return 1
end
return 0
`)

var completeChallengeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') == ARGV[2] and redis.call('HGET', KEYS[1], 'pending_answer') == ARGV[1] then
  redis.call('HSET', KEYS[1], 'state', ARGV[3])
  redis.call('HDEL', KEYS[1], 'pending_answer')
  return 1
end
return 0
`)

var setInvitedByScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'username', ARGV[1])
redis.call('HSETNX', KEYS[1], 'state', '')
redis.call('SADD', KEYS[2], ARGV[2])
return redis.call('HSETNX', KEYS[1], 'invited_by', ARGV[3])
`)

var clearInvitedByScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'invited_by') == ARGV[1] then
  return redis.call('HDEL', KEYS[1], 'invited_by')
end
return 0
`)

var markRewardScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
return redis.call('HSETNX', KEYS[1], 'reward_issued', '1')
`)

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. Keys are namespaced with prefix.
func NewRedisStore(rdb *redis.Client, prefix string) Store {
	return &redisStore{rdb: rdb, prefix: prefix}
}

// DialRedisStore connects and pings before returning the store.
func DialRedisStore(ctx context.Context, addr, password string, db int, prefix string) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, unavailable("redis ping", err)
	}
	return NewRedisStore(rdb, prefix), nil
}

func (s *redisStore) Users() UserRepository         { return (*redisUsers)(s) }
func (s *redisStore) Referrals() ReferralRepository { return (*redisReferrals)(s) }
func (s *redisStore) Close() error                  { return s.rdb.Close() }

func (s *redisStore) userKey(id int64) string    { return fmt.Sprintf("%suser:%d", s.prefix, id) }
func (s *redisStore) usersIndex() string         { return s.prefix + "users" }
func (s *redisStore) counterKey(id int64) string { return fmt.Sprintf("%sreferral:%d", s.prefix, id) }
func (s *redisStore) referrersIndex() string     { return s.prefix + "referrers" }
func (s *redisStore) userKeys(id int64) []string { return []string{s.userKey(id), s.usersIndex()} }

type redisUsers redisStore

func (r *redisUsers) store() *redisStore { return (*redisStore)(r) }

func (r *redisUsers) Register(ctx context.Context, id int64, username string) error {
	s := r.store()
	if err := registerScript.Run(ctx, s.rdb, s.userKeys(id), username, id).Err(); err != nil {
		return unavailable("register user", err)
	}
	return nil
}

func (r *redisUsers) EnsureMember(ctx context.Context, id int64, username string) (*model.User, error) {
	s := r.store()
	err := ensureMemberScript.Run(ctx, s.rdb, s.userKeys(id), username, id, string(model.StateUnverified)).Err()
	if err != nil {
		return nil, unavailable("ensure member", err)
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, unavailable("ensure member", redis.Nil)
	}
	return u, nil
}

func (r *redisUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	fields, err := r.store().rdb.HGetAll(ctx, r.store().userKey(id)).Result()
	if err != nil {
		return nil, unavailable("select user", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	u := &model.User{
		ID:       id,
		Username: fields["username"],
		State:    model.VerificationState(fields["state"]),
	}
	if answer, ok := fields["pending_answer"]; ok {
		u.PendingAnswer = sql.NullString{String: answer, Valid: true}
	}
	if raw, ok := fields["invited_by"]; ok {
		ref, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, unavailable(fmt.Sprintf("user %d has corrupt invited_by %q", id, raw), err)
		}
		u.InvitedBy = sql.NullInt64{Int64: ref, Valid: true}
	}
	return u, nil
}

func (r *redisUsers) IssueChallenge(ctx context.Context, id int64, answer string) (bool, error) {
	s := r.store()
	n, err := issueChallengeScript.Run(ctx, s.rdb, []string{s.userKey(id)},
		answer, string(model.StateUnverified), string(model.StatePendingChallenge)).Int()
	if err != nil {
		return false, unavailable("issue challenge", err)
	}
	return n == 1, nil
}

func (r *redisUsers) CompleteChallenge(ctx context.Context, id int64, answer string) (bool, error) {
	s := r.store()
	n, err := completeChallengeScript.Run(ctx, s.rdb, []string{s.userKey(id)},
		answer, string(model.StatePendingChallenge), string(model.StateVerified)).Int()
	if err != nil {
		return false, unavailable("complete challenge", err)
	}
	return n == 1, nil
}

func (r *redisUsers) SetInvitedByIfAbsent(ctx context.Context, id int64, username string, referrerID int64) (bool, error) {
	s := r.store()
	n, err := setInvitedByScript.Run(ctx, s.rdb, s.userKeys(id), username, id, referrerID).Int()
	if err != nil {
		return false, unavailable("set invited_by", err)
	}
	return n == 1, nil
}

func (r *redisUsers) ClearInvitedBy(ctx context.Context, id int64, referrerID int64) (bool, error) {
	s := r.store()
	n, err := clearInvitedByScript.Run(ctx, s.rdb, []string{s.userKey(id)}, strconv.FormatInt(referrerID, 10)).Int()
	if err != nil {
		return false, unavailable("clear invited_by", err)
	}
	return n == 1, nil
}

func (r *redisUsers) List(ctx context.Context) ([]model.User, error) {
	ids, err := r.store().members(ctx, r.store().usersIndex())
	if err != nil {
		return nil, unavailable("list users", err)
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u != nil {
			users = append(users, *u)
		}
	}
	return users, nil
}

type redisReferrals redisStore

func (r *redisReferrals) store() *redisStore { return (*redisStore)(r) }

func (r *redisReferrals) Increment(ctx context.Context, referrerID int64) (int, error) {
	s := r.store()
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, s.counterKey(referrerID), "invite_count", 1)
		pipe.SAdd(ctx, s.referrersIndex(), referrerID)
		return nil
	})
	if err != nil {
		return 0, unavailable("increment invite count", err)
	}
	return int(incr.Val()), nil
}

func (r *redisReferrals) MarkRewardIssued(ctx context.Context, referrerID int64) (bool, error) {
	s := r.store()
	n, err := markRewardScript.Run(ctx, s.rdb, []string{s.counterKey(referrerID)}).Int()
	if err != nil {
		return false, unavailable("mark reward issued", err)
	}
	return n == 1, nil
}

func (r *redisReferrals) GetByReferrer(ctx context.Context, referrerID int64) (*model.ReferralCounter, error) {
	fields, err := r.store().rdb.HGetAll(ctx, r.store().counterKey(referrerID)).Result()
	if err != nil {
		return nil, unavailable("select referral counter", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	c := &model.ReferralCounter{ReferrerID: referrerID}
	if raw, ok := fields["invite_count"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, unavailable(fmt.Sprintf("referrer %d has corrupt invite_count %q", referrerID, raw), err)
		}
		c.InviteCount = n
	}
	_, c.RewardIssued = fields["reward_issued"]
	return c, nil
}

func (r *redisReferrals) List(ctx context.Context) ([]model.ReferralCounter, error) {
	ids, err := r.store().members(ctx, r.store().referrersIndex())
	if err != nil {
		return nil, unavailable("list referral counters", err)
	}
	counters := make([]model.ReferralCounter, 0, len(ids))
	for _, id := range ids {
		c, err := r.GetByReferrer(ctx, id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			counters = append(counters, *c)
		}
	}
	return counters, nil
}

// members reads an id index set, sorted ascending.
func (s *redisStore) members(ctx context.Context, key string) ([]int64, error) {
	raw, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, m := range raw {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
