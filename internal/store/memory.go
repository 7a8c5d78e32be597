package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/broncorec/campusrec/internal/model"
)

// Memory is an in-process Store guarded by a single mutex. It implements
// the same unit-of-work contract as the Postgres store: RunProgramTx holds
// the lock for the whole callback, so program transactions serialize.
type Memory struct {
	mu            sync.Mutex
	programs      map[string]model.Program
	registrations map[string]model.Registration
	plans         []model.MembershipPlan
	memberships   map[string]model.Membership
}

// NewMemory constructs an empty memory store seeded with the default
// membership plans.
func NewMemory() *Memory {
	return &Memory{
		programs:      make(map[string]model.Program),
		registrations: make(map[string]model.Registration),
		memberships:   make(map[string]model.Membership),
		plans: []model.MembershipPlan{
			{ID: "plan-student-semester", Name: "Student Semester Pass", DurationMonths: 4, PriceCents: 0},
			{ID: "plan-semester", Name: "Semester Pass", DurationMonths: 4, PriceCents: 24100},
			{ID: "plan-annual", Name: "Annual Member (12 mo)", DurationMonths: 12, PriceCents: 48200},
		},
	}
}

func (m *Memory) Programs() ProgramStore           { return (*memoryPrograms)(m) }
func (m *Memory) Registrations() RegistrationStore { return (*memoryRegistrations)(m) }
func (m *Memory) Memberships() MembershipStore     { return (*memoryMemberships)(m) }

// ─── Programs ─────────────────────────────────────────────────────────────────

type memoryPrograms Memory

func (r *memoryPrograms) Create(ctx context.Context, p *model.Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[p.ID] = *p
	return nil
}

func (r *memoryPrograms) Update(ctx context.Context, p *model.Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.programs[p.ID]; !ok {
		return ErrNotFound
	}
	r.programs[p.ID] = *p
	return nil
}

func (r *memoryPrograms) GetByID(ctx context.Context, id string) (*model.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.programs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *memoryPrograms) List(ctx context.Context) ([]model.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	programs := make([]model.Program, 0, len(r.programs))
	for _, p := range r.programs {
		programs = append(programs, p)
	}
	sort.Slice(programs, func(i, j int) bool {
		return programs[i].StartAt.Before(programs[j].StartAt)
	})
	return programs, nil
}

// ─── Registrations ────────────────────────────────────────────────────────────

type memoryRegistrations Memory

func (r *memoryRegistrations) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &reg, nil
}

func (r *memoryRegistrations) ListByProgram(ctx context.Context, programID string) ([]model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var regs []model.Registration
	for _, reg := range r.registrations {
		if reg.ProgramID == programID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

func (r *memoryRegistrations) ListByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var regs []model.Registration
	for _, reg := range r.registrations {
		if reg.UserID == userID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.After(regs[j].CreatedAt)
	})
	return regs, nil
}

// RunProgramTx holds the store lock for the duration of fn. Writes apply to
// a staging copy and only merge back when fn returns nil, matching the
// commit-or-rollback behavior of the Postgres backend.
func (r *memoryRegistrations) RunProgramTx(ctx context.Context, programID string, fn func(tx ProgramTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.programs[programID]
	if !ok {
		return ErrNotFound
	}

	tx := &memProgramTx{store: (*Memory)(r), program: p, staged: make(map[string]model.Registration)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, reg := range tx.staged {
		r.registrations[id] = reg
	}
	return nil
}

// memProgramTx overlays staged writes on the store's registration map.
type memProgramTx struct {
	store   *Memory
	program model.Program
	staged  map[string]model.Registration
}

func (t *memProgramTx) Program() model.Program { return t.program }

// each visits every registration of the program, staged rows taking
// precedence over committed ones.
func (t *memProgramTx) each(visit func(reg model.Registration)) {
	for id, reg := range t.store.registrations {
		if reg.ProgramID != t.program.ID {
			continue
		}
		if staged, ok := t.staged[id]; ok {
			reg = staged
		}
		visit(reg)
	}
	for id, reg := range t.staged {
		if _, committed := t.store.registrations[id]; !committed {
			visit(reg)
		}
	}
}

func (t *memProgramTx) ActiveCount() (int, error) {
	count := 0
	t.each(func(reg model.Registration) {
		if reg.Status.HoldsSeat() {
			count++
		}
	})
	return count, nil
}

func (t *memProgramTx) NextWaitlistPosition() (int, error) {
	// Canceled rows keep their position, so the max never moves backwards
	// and positions are never reused.
	maxPos := 0
	t.each(func(reg model.Registration) {
		if reg.WaitlistPosition != nil && *reg.WaitlistPosition > maxPos {
			maxPos = *reg.WaitlistPosition
		}
	})
	return maxPos + 1, nil
}

func (t *memProgramTx) EarliestWaitlisted() (*model.Registration, error) {
	var earliest *model.Registration
	t.each(func(reg model.Registration) {
		if reg.Status != model.StatusWaitlisted || reg.WaitlistPosition == nil {
			return
		}
		if earliest == nil || *reg.WaitlistPosition < *earliest.WaitlistPosition {
			copied := reg
			earliest = &copied
		}
	})
	return earliest, nil
}

func (t *memProgramTx) ActiveRegistrationFor(userID string) (*model.Registration, error) {
	var latest *model.Registration
	t.each(func(reg model.Registration) {
		if reg.UserID != userID || reg.Status == model.StatusCanceled {
			return
		}
		if latest == nil || reg.CreatedAt.After(latest.CreatedAt) {
			copied := reg
			latest = &copied
		}
	})
	return latest, nil
}

func (t *memProgramTx) RegistrationByID(id string) (*model.Registration, error) {
	if reg, ok := t.staged[id]; ok && reg.ProgramID == t.program.ID {
		return &reg, nil
	}
	if reg, ok := t.store.registrations[id]; ok && reg.ProgramID == t.program.ID {
		return &reg, nil
	}
	return nil, ErrNotFound
}

func (t *memProgramTx) InsertRegistration(reg *model.Registration) error {
	t.staged[reg.ID] = *reg
	return nil
}

func (t *memProgramTx) UpdateRegistration(reg *model.Registration) error {
	if _, err := t.RegistrationByID(reg.ID); err != nil {
		return err
	}
	t.staged[reg.ID] = *reg
	return nil
}

// ─── Memberships ──────────────────────────────────────────────────────────────

type memoryMemberships Memory

func (r *memoryMemberships) Plans(ctx context.Context) ([]model.MembershipPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plans := make([]model.MembershipPlan, len(r.plans))
	copy(plans, r.plans)
	return plans, nil
}

func (r *memoryMemberships) PlanByID(ctx context.Context, id string) (*model.MembershipPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.plans {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryMemberships) ActiveFor(ctx context.Context, userID string, now time.Time) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Membership
	for _, m := range r.memberships {
		if m.UserID != userID || !m.ActiveAt(now) {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			copied := m
			latest = &copied
		}
	}
	return latest, nil
}

func (r *memoryMemberships) Create(ctx context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[m.ID] = *m
	return nil
}

func (r *memoryMemberships) CancelActive(ctx context.Context, userID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	canceled := false
	for id, m := range r.memberships {
		if m.UserID == userID && m.ActiveAt(now) {
			at := now
			m.CanceledAt = &at
			r.memberships[id] = m
			canceled = true
		}
	}
	return canceled, nil
}
