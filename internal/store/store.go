// Package store implements persistence for programs, registrations, and
// memberships. Two backends are provided: Postgres (pgx) for production and
// an in-process memory store for tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/broncorec/campusrec/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Store bundles the three repositories a backend provides.
type Store interface {
	Programs() ProgramStore
	Registrations() RegistrationStore
	Memberships() MembershipStore
}

// ProgramStore handles persistence for programs.
type ProgramStore interface {
	Create(ctx context.Context, p *model.Program) error
	Update(ctx context.Context, p *model.Program) error
	GetByID(ctx context.Context, id string) (*model.Program, error)
	List(ctx context.Context) ([]model.Program, error)
}

// RegistrationStore handles persistence for registrations. All writes go
// through RunProgramTx so capacity decisions and their effects commit
// atomically per program.
type RegistrationStore interface {
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	ListByProgram(ctx context.Context, programID string) ([]model.Registration, error)
	ListByUser(ctx context.Context, userID string) ([]model.Registration, error)

	// RunProgramTx runs fn inside a unit of work that holds exclusive
	// access to the program's registration set. Two concurrent calls for
	// the same program serialize; the fn either commits entirely or not
	// at all. Returns ErrNotFound when the program does not exist.
	RunProgramTx(ctx context.Context, programID string, fn func(tx ProgramTx) error) error
}

// ProgramTx is the capacity ledger view available inside a program unit of
// work. Reads and writes all act on the same isolated snapshot.
type ProgramTx interface {
	// Program returns the program row as locked at transaction start.
	Program() model.Program
	// ActiveCount returns the number of seat-holding registrations
	// (REGISTERED or CHECKED_IN).
	ActiveCount() (int, error)
	// NextWaitlistPosition returns max(waitlist_position)+1 over all
	// rows of the program, or 1 when none carry a position. Monotonic
	// per program; positions are never reused, even across
	// cancellations.
	NextWaitlistPosition() (int, error)
	// EarliestWaitlisted returns the WAITLISTED row with the smallest
	// position, or nil when the waitlist is empty.
	EarliestWaitlisted() (*model.Registration, error)
	// ActiveRegistrationFor returns the user's non-CANCELED registration
	// for this program, or nil.
	ActiveRegistrationFor(userID string) (*model.Registration, error)
	RegistrationByID(id string) (*model.Registration, error)
	InsertRegistration(reg *model.Registration) error
	UpdateRegistration(reg *model.Registration) error
}

// MembershipStore handles membership plans and purchases.
type MembershipStore interface {
	Plans(ctx context.Context) ([]model.MembershipPlan, error)
	PlanByID(ctx context.Context, id string) (*model.MembershipPlan, error)
	// ActiveFor returns the user's membership in force at now, or nil.
	ActiveFor(ctx context.Context, userID string, now time.Time) (*model.Membership, error)
	Create(ctx context.Context, m *model.Membership) error
	// CancelActive marks the user's active membership canceled and
	// reports whether one existed.
	CancelActive(ctx context.Context, userID string, now time.Time) (bool, error)
}
