package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/broncorec/campusrec/internal/model"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	programs      *PostgresPrograms
	registrations *PostgresRegistrations
	memberships   *PostgresMemberships
}

// NewPostgres constructs a Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		programs:      &PostgresPrograms{db: pool},
		registrations: &PostgresRegistrations{db: pool},
		memberships:   &PostgresMemberships{db: pool},
	}
}

func (s *Postgres) Programs() ProgramStore           { return s.programs }
func (s *Postgres) Registrations() RegistrationStore { return s.registrations }
func (s *Postgres) Memberships() MembershipStore     { return s.memberships }

// ─── Programs ─────────────────────────────────────────────────────────────────

// PostgresPrograms handles persistence for programs.
type PostgresPrograms struct {
	db *pgxpool.Pool
}

const programColumns = `id, title, description, location, capacity,
	start_at, end_at, visibility, publish_at, unpublish_at, created_at`

func scanProgram(row pgx.Row) (*model.Program, error) {
	var p model.Program
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Location, &p.Capacity,
		&p.StartAt, &p.EndAt, &p.Visibility, &p.PublishAt, &p.UnpublishAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan program: %w", err)
	}
	return &p, nil
}

// Create inserts a new program.
func (r *PostgresPrograms) Create(ctx context.Context, p *model.Program) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO programs (id, title, description, location, capacity,
		 start_at, end_at, visibility, publish_at, unpublish_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Title, p.Description, p.Location, p.Capacity,
		p.StartAt, p.EndAt, p.Visibility, p.PublishAt, p.UnpublishAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

// Update rewrites all mutable program fields.
func (r *PostgresPrograms) Update(ctx context.Context, p *model.Program) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE programs SET title = $2, description = $3, location = $4,
		 capacity = $5, start_at = $6, end_at = $7, visibility = $8,
		 publish_at = $9, unpublish_at = $10
		 WHERE id = $1`,
		p.ID, p.Title, p.Description, p.Location, p.Capacity,
		p.StartAt, p.EndAt, p.Visibility, p.PublishAt, p.UnpublishAt,
	)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a single program or ErrNotFound.
func (r *PostgresPrograms) GetByID(ctx context.Context, id string) (*model.Program, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+programColumns+` FROM programs WHERE id = $1`, id)
	return scanProgram(row)
}

// List returns all programs ordered by start time.
func (r *PostgresPrograms) List(ctx context.Context) ([]model.Program, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+programColumns+` FROM programs ORDER BY start_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var programs []model.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		programs = append(programs, *p)
	}
	return programs, rows.Err()
}

// ─── Registrations ────────────────────────────────────────────────────────────

// PostgresRegistrations handles persistence for registrations.
type PostgresRegistrations struct {
	db *pgxpool.Pool
}

const registrationColumns = `id, program_id, user_id, status, waitlist_position,
	answers, created_at, canceled_at, checked_in_at, checked_in_by`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.ID, &reg.ProgramID, &reg.UserID, &reg.Status, &reg.WaitlistPosition,
		&reg.Answers, &reg.CreatedAt, &reg.CanceledAt, &reg.CheckedInAt, &reg.CheckedInBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return &reg, nil
}

// GetByID returns a single registration or ErrNotFound.
func (r *PostgresRegistrations) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	return scanRegistration(row)
}

// ListByProgram returns all registrations for a program in creation order.
func (r *PostgresRegistrations) ListByProgram(ctx context.Context, programID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE program_id = $1 ORDER BY created_at ASC`, programID)
}

// ListByUser returns all of a user's registrations, newest first.
func (r *PostgresRegistrations) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	return r.list(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *PostgresRegistrations) list(ctx context.Context, query string, arg any) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// RunProgramTx runs fn inside a transaction that holds a row-level
// exclusive lock on the program row (SELECT ... FOR UPDATE). Concurrent
// units of work for the same program block until the first commits, so two
// registrations racing for the last seat cannot both observe it free.
func (r *PostgresRegistrations) RunProgramTx(ctx context.Context, programID string, fn func(tx ProgramTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx,
		`SELECT `+programColumns+` FROM programs WHERE id = $1 FOR UPDATE`,
		programID)
	var p *model.Program
	p, err = scanProgram(row)
	if err != nil {
		return err
	}

	ptx := &pgProgramTx{ctx: ctx, tx: tx, program: *p}
	if err = fn(ptx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// pgProgramTx is the ProgramTx view over an open pgx transaction.
type pgProgramTx struct {
	ctx     context.Context
	tx      pgx.Tx
	program model.Program
}

func (t *pgProgramTx) Program() model.Program { return t.program }

func (t *pgProgramTx) ActiveCount() (int, error) {
	var count int
	err := t.tx.QueryRow(t.ctx,
		`SELECT COUNT(*) FROM registrations
		 WHERE program_id = $1 AND status IN ('REGISTERED', 'CHECKED_IN')`,
		t.program.ID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

func (t *pgProgramTx) NextWaitlistPosition() (int, error) {
	var maxPos int
	// Canceled rows keep their position, so the max never moves backwards
	// and positions are never reused.
	err := t.tx.QueryRow(t.ctx,
		`SELECT COALESCE(MAX(waitlist_position), 0) FROM registrations
		 WHERE program_id = $1`,
		t.program.ID,
	).Scan(&maxPos)
	if err != nil {
		return 0, fmt.Errorf("next waitlist position: %w", err)
	}
	return maxPos + 1, nil
}

func (t *pgProgramTx) EarliestWaitlisted() (*model.Registration, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE program_id = $1 AND status = 'WAITLISTED'
		 ORDER BY waitlist_position ASC LIMIT 1`,
		t.program.ID)
	reg, err := scanRegistration(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return reg, err
}

func (t *pgProgramTx) ActiveRegistrationFor(userID string) (*model.Registration, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE program_id = $1 AND user_id = $2 AND status <> 'CANCELED'
		 ORDER BY created_at DESC LIMIT 1`,
		t.program.ID, userID)
	reg, err := scanRegistration(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return reg, err
}

func (t *pgProgramTx) RegistrationByID(id string) (*model.Registration, error) {
	row := t.tx.QueryRow(t.ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE id = $1 AND program_id = $2`,
		id, t.program.ID)
	return scanRegistration(row)
}

func (t *pgProgramTx) InsertRegistration(reg *model.Registration) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO registrations (id, program_id, user_id, status, waitlist_position,
		 answers, created_at, canceled_at, checked_in_at, checked_in_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		reg.ID, reg.ProgramID, reg.UserID, reg.Status, reg.WaitlistPosition,
		reg.Answers, reg.CreatedAt, reg.CanceledAt, reg.CheckedInAt, reg.CheckedInBy,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (t *pgProgramTx) UpdateRegistration(reg *model.Registration) error {
	tag, err := t.tx.Exec(t.ctx,
		`UPDATE registrations SET status = $2, waitlist_position = $3,
		 canceled_at = $4, checked_in_at = $5, checked_in_by = $6
		 WHERE id = $1`,
		reg.ID, reg.Status, reg.WaitlistPosition,
		reg.CanceledAt, reg.CheckedInAt, reg.CheckedInBy,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Memberships ──────────────────────────────────────────────────────────────

// PostgresMemberships handles membership plans and purchases.
type PostgresMemberships struct {
	db *pgxpool.Pool
}

// Plans returns all membership plans.
func (r *PostgresMemberships) Plans(ctx context.Context) ([]model.MembershipPlan, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, duration_months, price_cents
		 FROM membership_plans ORDER BY price_cents ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []model.MembershipPlan
	for rows.Next() {
		var p model.MembershipPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.DurationMonths, &p.PriceCents); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// PlanByID returns a single plan or ErrNotFound.
func (r *PostgresMemberships) PlanByID(ctx context.Context, id string) (*model.MembershipPlan, error) {
	var p model.MembershipPlan
	err := r.db.QueryRow(ctx,
		`SELECT id, name, duration_months, price_cents
		 FROM membership_plans WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.DurationMonths, &p.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &p, nil
}

// ActiveFor returns the user's membership in force at now, or nil.
func (r *PostgresMemberships) ActiveFor(ctx context.Context, userID string, now time.Time) (*model.Membership, error) {
	var m model.Membership
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, plan_id, price_cents, starts_at, expires_at, canceled_at, created_at
		 FROM membership_transactions
		 WHERE user_id = $1 AND canceled_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC LIMIT 1`,
		userID, now,
	).Scan(&m.ID, &m.UserID, &m.PlanID, &m.PriceCents, &m.StartsAt, &m.ExpiresAt, &m.CanceledAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active membership: %w", err)
	}
	return &m, nil
}

// Create inserts a membership purchase record.
func (r *PostgresMemberships) Create(ctx context.Context, m *model.Membership) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO membership_transactions (id, user_id, plan_id, price_cents,
		 starts_at, expires_at, canceled_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.PlanID, m.PriceCents,
		m.StartsAt, m.ExpiresAt, m.CanceledAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// CancelActive marks the user's active membership canceled.
func (r *PostgresMemberships) CancelActive(ctx context.Context, userID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE membership_transactions SET canceled_at = $2
		 WHERE user_id = $1 AND canceled_at IS NULL AND expires_at > $2`,
		userID, now,
	)
	if err != nil {
		return false, fmt.Errorf("cancel membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
