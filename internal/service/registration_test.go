package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/broncorec/campusrec/internal/model"
	"github.com/broncorec/campusrec/internal/store"
)

// fakeClock hands out strictly increasing timestamps so creation order is
// deterministic in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	store         *store.Memory
	clock         *fakeClock
	programs      *ProgramService
	registrations *RegistrationService
	memberships   *MembershipService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	clock := newFakeClock()
	return &testEnv{
		store:         mem,
		clock:         clock,
		programs:      NewProgramService(mem.Programs(), clock.Now),
		registrations: NewRegistrationService(mem.Programs(), mem.Registrations(), clock.Now),
		memberships:   NewMembershipService(mem.Memberships(), clock.Now),
	}
}

var staff = model.Actor{UserID: "staff-1", Staff: true}

func (e *testEnv) createProgram(t *testing.T, capacity int) *model.Program {
	t.Helper()
	start := e.clock.Now().Add(24 * time.Hour)
	p, err := e.programs.Create(context.Background(), staff, model.CreateProgramRequest{
		Title:    "Morning Bootcamp",
		Location: "Rec Center Court 2",
		Capacity: capacity,
		StartAt:  start,
		EndAt:    start.Add(90 * time.Minute),
	})
	if err != nil {
		t.Fatalf("create program: %v", err)
	}
	return p
}

func (e *testEnv) register(t *testing.T, programID, userID string) *model.RegisterResult {
	t.Helper()
	res, err := e.registrations.Register(context.Background(), programID, model.Actor{UserID: userID}, nil)
	if err != nil {
		t.Fatalf("register %s: %v", userID, err)
	}
	return res
}

func (e *testEnv) activeCount(t *testing.T, programID string) int {
	t.Helper()
	regs, err := e.store.Registrations().ListByProgram(context.Background(), programID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	count := 0
	for _, reg := range regs {
		if reg.Status.HoldsSeat() {
			count++
		}
	}
	return count
}

func TestRegisterDirectAdmission(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProgram(t, 10)

	res := env.register(t, p.ID, "user-a")
	if res.Status != model.StatusRegistered {
		t.Fatalf("expected REGISTERED, got %s", res.Status)
	}
	if res.Position != nil {
		t.Errorf("expected no waitlist position, got %d", *res.Position)
	}
}

func TestRegisterUnlimitedCapacity(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProgram(t, 0)

	for i := 0; i < 50; i++ {
		res := env.register(t, p.ID, "user-"+string(rune('a'+i%26))+string(rune('0'+i/26)))
		if res.Status != model.StatusRegistered {
			t.Fatalf("registration %d: expected REGISTERED, got %s", i, res.Status)
		}
	}
}

func TestRegisterWaitlistPositions(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProgram(t, 2)

	env.register(t, p.ID, "user-a")
	env.register(t, p.ID, "user-b")

	first := env.register(t, p.ID, "user-c")
	if first.Status != model.StatusWaitlisted || first.Position == nil || *first.Position != 1 {
		t.Fatalf("expected WAITLISTED position 1, got %+v", first)
	}
	second := env.register(t, p.ID, "user-d")
	if second.Status != model.StatusWaitlisted || second.Position == nil || *second.Position != 2 {
		t.Fatalf("expected WAITLISTED position 2, got %+v", second)
	}
	if got := env.activeCount(t, p.ID); got != 2 {
		t.Errorf("active count changed: got %d, want 2", got)
	}
}

func TestRegisterIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProgram(t, 1)

	first := env.register(t, p.ID, "user-a")
	second := env.register(t, p.ID, "user-a")

	if first.RegistrationID != second.RegistrationID {
		t.Errorf("retry created a new registration: %s vs %s", first.RegistrationID, second.RegistrationID)
	}
	if first.Status != second.Status {
		t.Errorf("retry changed status: %s vs %s", first.Status, second.Status)
	}

	regs, err := env.store.Registrations().ListByProgram(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("list registrations: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(regs))
	}

	// Same for a waitlisted user.
	env.register(t, p.ID, "user-b")
	again := env.register(t, p.ID, "user-b")
	if again.Status != model.StatusWaitlisted || again.Position == nil || *again.Position != 1 {
		t.Fatalf("waitlisted retry: expected WAITLISTED position 1, got %+v", again)
	}
}

func TestRegisterProgramNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registrations.Register(context.Background(), "missing", model.Actor{UserID: "user-a"}, nil)
	if err != ErrProgramNotFound {
		t.Fatalf("expected ErrProgramNotFound, got %v", err)
	}
}

func TestRegisterOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := env.clock.Now()
	future := base.Add(48 * time.Hour)
	past := base.Add(-48 * time.Hour)
	start := base.Add(72 * time.Hour)

	cases := []struct {
		name        string
		publishAt   *time.Time
		unpublishAt *time.Time
		wantErr     error
	}{
		{"not yet published", &future, nil, ErrProgramClosed},
		{"already unpublished", nil, &past, ErrProgramClosed},
		{"open window", &past, &future, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := env.programs.Create(ctx, staff, model.CreateProgramRequest{
				Title:       "Climbing Intro",
				Capacity:    5,
				StartAt:     start,
				EndAt:       start.Add(time.Hour),
				PublishAt:   tc.publishAt,
				UnpublishAt: tc.unpublishAt,
			})
			if err != nil {
				t.Fatalf("create program: %v", err)
			}
			_, err = env.registrations.Register(ctx, p.ID, model.Actor{UserID: "user-a"}, nil)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("register: %v", err)
			}
			if tc.wantErr != nil && err != tc.wantErr {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCancelPromotesEarliestWaitlisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProgram(t, 1)

	a := env.register(t, p.ID, "user-a")
	b := env.register(t, p.ID, "user-b")
	c := env.register(t, p.ID, "user-c")
	if b.Status != model.StatusWaitlisted || c.Status != model.StatusWaitlisted {
		t.Fatalf("setup: expected b and c waitlisted, got %s and %s", b.Status, c.Status)
	}

	res, err := env.registrations.Cancel(ctx, a.RegistrationID, model.Actor{UserID: "user-a"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !res.Canceled {
		t.Fatal("expected canceled=true")
	}
	if res.Promoted == nil || *res.Promoted != b.RegistrationID {
		t.Fatalf("expected promotion of %s, got %v", b.RegistrationID, res.Promoted)
	}

	promoted, err := env.store.Registrations().GetByID(ctx, b.RegistrationID)
	if err != nil {
		t.Fatalf("get promoted: %v", err)
	}
	if promoted.Status != model.StatusRegistered {
		t.Errorf("promoted status: got %s, want REGISTERED", promoted.Status)
	}
	if promoted.WaitlistPosition != nil {
		t.Errorf("promoted row kept waitlist position %d", *promoted.WaitlistPosition)
	}

	// C keeps its numeric position and is now the earliest.
	remaining, err := env.store.Registrations().GetByID(ctx, c.RegistrationID)
	if err != nil {
		t.Fatalf("get remaining: %v", err)
	}
	if remaining.Status != model.StatusWaitlisted || remaining.WaitlistPosition == nil || *remaining.WaitlistPosition != 2 {
		t.Fatalf("expected c WAITLISTED at position 2, got %+v", remaining)
	}

	if got := env.activeCount(t, p.ID); got != 1 {
		t.Errorf("active count: got %d, want 1", got)
	}
}

func TestCancelWaitlistedNoPromotion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProgram(t, 1)

	env.register(t, p.ID, "user-a")
	b := env.register(t, p.ID, "user-b")
	c := env.register(t, p.ID, "user-c")

	before := env.activeCount(t, p.ID)
	res, err := env.registrations.Cancel(ctx, b.RegistrationID, model.Actor{UserID: "user-b"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !res.Canceled {
		t.Fatal("expected canceled=true")
	}
	if res.Promoted != nil {
		t.Fatalf("canceling a waitlisted row promoted %s", *res.Promoted)
	}
	if got := env.activeCount(t, p.ID); got != before {
		t.Errorf("active count changed from %d to %d", before, got)
	}

	// C stays waitlisted at its original position.
	remaining, _ := env.store.Registrations().GetByID(ctx, c.RegistrationID)
	if remaining.Status != model.StatusWaitlisted || *remaining.WaitlistPosition != 2 {
		t.Fatalf("expected c unchanged at position 2, got %+v", remaining)
	}
}

func TestCancelIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProgram(t, 1)

	a := env.register(t, p.ID, "user-a")
	actor := model.Actor{UserID: "user-a"}

	first, err := env.registrations.Cancel(ctx, a.RegistrationID, actor)
	if err != nil || !first.Canceled {
		t.Fatalf("first cancel: res=%+v err=%v", first, err)
	}
	second, err := env.registrations.Cancel(ctx, a.RegistrationID, actor)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if second.Canceled {
		t.Error("re-cancel reported canceled=true")
	}
	if second.Promoted != nil {
		t.Error("re-cancel triggered a promotion")
	}
}

func TestCancelAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProgram(t, 1)
	a := env.register(t, p.ID, "user-a")

	if _, err := env.registrations.Cancel(ctx, a.RegistrationID, model.Actor{UserID: "user-b"}); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// Staff may cancel on the user's behalf.
	res, err := env.registrations.Cancel(ctx, a.RegistrationID, staff)
	if err != nil || !res.Canceled {
		t.Fatalf("staff cancel: res=%+v err=%v", res, err)
	}
}

func TestCancelNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registrations.Cancel(context.Background(), "missing", staff); err != ErrRegistrationNotFound {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
}

func TestWaitlistPositionsNeverReused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProgram(t, 1)

	env.register(t, p.ID, "user-a")
	b := env.register(t, p.ID, "user-b") // position 1
	env.register(t, p.ID, "user-c")      // position 2

	if _, err := env.registrations.Cancel(ctx, b.RegistrationID, model.Actor{UserID: "user-b"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// The freed position 1 must not be handed out again.
	d := env.register(t, p.ID, "user-d")
	if d.Status != model.StatusWaitlisted || d.Position == nil || *d.Position != 3 {
		t.Fatalf("expected position 3 after a waitlist cancellation, got %+v", d)
	}
}

func TestCanceledSeatHolderWithEmptyWaitlist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProgram(t, 2)
	a := env.register(t, p.ID, "user-a")

	res, err := env.registrations.Cancel(ctx, a.RegistrationID, model.Actor{UserID: "user-a"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !res.Canceled || res.Promoted != nil {
		t.Fatalf("expected plain cancellation, got %+v", res)
	}
}

func TestConcurrentRegistrationLastSeat(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProgram(t, 1)

	results := make([]*model.RegisterResult, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := []string{"user-a", "user-b"}[idx]
			res, err := env.registrations.Register(context.Background(), p.ID, model.Actor{UserID: user}, nil)
			if err != nil {
				t.Errorf("register %s: %v", user, err)
				return
			}
			results[idx] = res
		}(i)
	}
	wg.Wait()

	registered, waitlisted := 0, 0
	for _, res := range results {
		if res == nil {
			t.Fatal("missing result")
		}
		switch res.Status {
		case model.StatusRegistered:
			registered++
		case model.StatusWaitlisted:
			waitlisted++
			if res.Position == nil || *res.Position != 1 {
				t.Errorf("loser should be waitlisted at position 1, got %+v", res.Position)
			}
		}
	}
	if registered != 1 || waitlisted != 1 {
		t.Fatalf("expected exactly one winner: registered=%d waitlisted=%d", registered, waitlisted)
	}
}

func TestConcurrentRegistrationsNeverOverbook(t *testing.T) {
	env := newTestEnv(t)
	const capacity = 5
	const users = 20
	p := env.createProgram(t, capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	positions := make(map[int]bool)
	registered := 0

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := "user-" + string(rune('a'+idx))
			res, err := env.registrations.Register(context.Background(), p.ID, model.Actor{UserID: user}, nil)
			if err != nil {
				t.Errorf("register %s: %v", user, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Status == model.StatusRegistered {
				registered++
			} else {
				if res.Position == nil {
					t.Errorf("waitlisted without position")
					return
				}
				if positions[*res.Position] {
					t.Errorf("duplicate waitlist position %d", *res.Position)
				}
				positions[*res.Position] = true
			}
		}(i)
	}
	wg.Wait()

	if registered != capacity {
		t.Errorf("registered=%d, want %d", registered, capacity)
	}
	if len(positions) != users-capacity {
		t.Errorf("waitlisted=%d, want %d", len(positions), users-capacity)
	}
	for pos := 1; pos <= users-capacity; pos++ {
		if !positions[pos] {
			t.Errorf("missing waitlist position %d", pos)
		}
	}
	if got := env.activeCount(t, p.ID); got != capacity {
		t.Errorf("active count %d exceeds capacity %d", got, capacity)
	}
}
