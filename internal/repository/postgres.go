package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

type migration struct {
	version string
	stmt    string
}

var migrations = []migration{
	{
		version: "0001_users",
		stmt: `
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL DEFAULT '',
				pending_answer TEXT,
				invited_by BIGINT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT users_pending_answer_state CHECK ((state = 'pending') = (pending_answer IS NOT NULL))
			);
		`,
	},
	{
		version: "0002_referral_counters",
		stmt: `
			CREATE TABLE IF NOT EXISTS referral_counters (
				referrer_id BIGINT PRIMARY KEY,
				invite_count INTEGER NOT NULL DEFAULT 0 CHECK (invite_count >= 0),
				reward_issued BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}

type postgresStore struct {
	db        *sqlx.DB
	users     UserRepository
	referrals ReferralRepository
}

// NewPostgresStore connects to PostgreSQL and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, unavailable("postgres connect", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &postgresStore{
		db:        db,
		users:     NewUserRepository(db),
		referrals: NewReferralRepository(db),
	}, nil
}

// Migrate applies each migration not yet recorded in the migrations table.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			version VARCHAR(255) NOT NULL UNIQUE,
			run_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return unavailable("create migrations table", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := db.GetContext(ctx, &applied, `SELECT EXISTS(SELECT 1 FROM migrations WHERE version = $1)`, m.version); err != nil {
			return unavailable("check migration", err)
		}
		if applied {
			continue
		}
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return unavailable("begin migration", err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return unavailable(fmt.Sprintf("apply migration %s", m.version), err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, m.version); err != nil {
			tx.Rollback()
			return unavailable(fmt.Sprintf("record migration %s", m.version), err)
		}
		if err := tx.Commit(); err != nil {
			return unavailable(fmt.Sprintf("commit migration %s", m.version), err)
		}
	}
	return nil
}

func (s *postgresStore) Users() UserRepository         { return s.users }
func (s *postgresStore) Referrals() ReferralRepository { return s.referrals }
func (s *postgresStore) Close() error                  { return s.db.Close() }
