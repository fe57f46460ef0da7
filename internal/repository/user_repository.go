package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/SinaHo/community-gate-bot/internal/model"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, username, state, pending_answer, invited_by`

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a UserRepository backed by PostgreSQL.
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Register(ctx context.Context, id int64, username string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, username)
	if err != nil {
		return unavailable("register user", err)
	}
	return nil
}

func (r *userRepository) EnsureMember(ctx context.Context, id int64, username string) (*model.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, state) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
			SET state = EXCLUDED.state,
			    username = COALESCE(NULLIF(users.username, ''), EXCLUDED.username)
			WHERE users.state = ''
	`, id, username, model.StateUnverified)
	if err != nil {
		return nil, unavailable("ensure member", err)
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		// the row was just written; only a concurrent delete could get here
		return nil, unavailable("ensure member", sql.ErrNoRows)
	}
	return u, nil
}

// GetByID fetches a user row by id. Returns (nil, nil) if not found.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, unavailable("select user", err)
	}
	return &u, nil
}

func (r *userRepository) IssueChallenge(ctx context.Context, id int64, answer string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET state = $2, pending_answer = $3
		WHERE id = $1 AND state = $4
	`, id, model.StatePendingChallenge, answer, model.StateUnverified)
	if err != nil {
		return false, unavailable("issue challenge", err)
	}
	return affectedOne(res, "issue challenge")
}

func (r *userRepository) CompleteChallenge(ctx context.Context, id int64, answer string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET state = $2, pending_answer = NULL
		WHERE id = $1 AND state = $3 AND pending_answer = $4
	`, id, model.StateVerified, model.StatePendingChallenge, answer)
	if err != nil {
		return false, unavailable("complete challenge", err)
	}
	return affectedOne(res, "complete challenge")
}

func (r *userRepository) SetInvitedByIfAbsent(ctx context.Context, id int64, username string, referrerID int64) (bool, error) {
	// an ON CONFLICT update whose WHERE fails affects no rows
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, invited_by) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET invited_by = EXCLUDED.invited_by
			WHERE users.invited_by IS NULL
	`, id, username, referrerID)
	if err != nil {
		return false, unavailable("set invited_by", err)
	}
	return affectedOne(res, "set invited_by")
}

func (r *userRepository) ClearInvitedBy(ctx context.Context, id int64, referrerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET invited_by = NULL
		WHERE id = $1 AND invited_by = $2
	`, id, referrerID)
	if err != nil {
		return false, unavailable("clear invited_by", err)
	}
	return affectedOne(res, "clear invited_by")
}

func (r *userRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, unavailable("list users", err)
	}
	return users, nil
}

func affectedOne(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(op, err)
	}
	return n == 1, nil
}
