package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates all tables needed by the service.
// Safe to call multiple times - uses IF NOT EXISTS.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
-- Programs
CREATE TABLE IF NOT EXISTS programs (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    capacity INTEGER NOT NULL DEFAULT 0 CHECK (capacity >= 0),
    start_at TIMESTAMPTZ NOT NULL,
    end_at TIMESTAMPTZ NOT NULL,
    visibility TEXT NOT NULL DEFAULT 'public' CHECK (visibility IN ('public', 'unlisted')),
    publish_at TIMESTAMPTZ,
    unpublish_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Registrations
CREATE TABLE IF NOT EXISTS registrations (
    id TEXT PRIMARY KEY,
    program_id TEXT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('REGISTERED', 'WAITLISTED', 'CANCELED', 'CHECKED_IN')),
    waitlist_position INTEGER,
    answers JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    canceled_at TIMESTAMPTZ,
    checked_in_at TIMESTAMPTZ,
    checked_in_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_registrations_program ON registrations(program_id);
CREATE INDEX IF NOT EXISTS idx_registrations_user ON registrations(user_id);
-- One live registration per (program, user); canceled rows are kept for audit.
CREATE UNIQUE INDEX IF NOT EXISTS idx_registrations_active
    ON registrations(program_id, user_id) WHERE status <> 'CANCELED';

-- Membership plans
CREATE TABLE IF NOT EXISTS membership_plans (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    duration_months INTEGER NOT NULL,
    price_cents INTEGER NOT NULL
);

-- Membership purchases
CREATE TABLE IF NOT EXISTS membership_transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    plan_id TEXT NOT NULL REFERENCES membership_plans(id),
    price_cents INTEGER NOT NULL,
    starts_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    canceled_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_membership_transactions_user ON membership_transactions(user_id);

INSERT INTO membership_plans (id, name, duration_months, price_cents) VALUES
    ('plan-student-semester', 'Student Semester Pass', 4, 0),
    ('plan-semester', 'Semester Pass', 4, 24100),
    ('plan-annual', 'Annual Member (12 mo)', 12, 48200)
ON CONFLICT (id) DO NOTHING;
`
