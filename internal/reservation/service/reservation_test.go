package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"reservd/internal/calendar"
	"reservd/internal/reservation/cache"
	reservationerrors "reservd/internal/reservation/errors"
	"reservd/internal/reservation/repository"
	"reservd/internal/reservation/validator"
	"reservd/pkg/config"
	mongotx "reservd/pkg/db/mongo"
	apperrors "reservd/pkg/errors"
	"reservd/pkg/logger"
	"reservd/pkg/model"
)

// ────────────────────────────────────────────────
// In-memory fakes
// ────────────────────────────────────────────────

// fakeReservationRepo reproduces the store's exclusion semantics in memory:
// the insert checks overlapping active rows and the write under one mutex,
// mirroring the atomic guarded upsert.
type fakeReservationRepo struct {
	mu         sync.Mutex
	rows       map[string]*model.Reservation
	verifyFunc func(ctx context.Context, reservation *model.Reservation) error
}

func newFakeReservationRepo() *fakeReservationRepo {
	return &fakeReservationRepo{rows: make(map[string]*model.Reservation)}
}

func (f *fakeReservationRepo) Insert(_ context.Context, reservation *model.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.ResourceID != reservation.ResourceID || !row.IsActive() {
			continue
		}
		if row.Range().Overlaps(reservation.Range()) {
			return reservationerrors.ErrOverlap
		}
	}

	now := time.Now().UTC()
	reservation.CreatedAt = now
	reservation.UpdatedAt = now

	stored := *reservation
	f.rows[reservation.ID] = &stored
	return nil
}

func (f *fakeReservationRepo) VerifyExclusive(ctx context.Context, reservation *model.Reservation) error {
	if f.verifyFunc != nil {
		return f.verifyFunc(ctx, reservation)
	}
	// The in-memory insert is already atomic, so verification never loses.
	return nil
}

func (f *fakeReservationRepo) FindByID(_ context.Context, id string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return nil, reservationerrors.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeReservationRepo) FindAll(_ context.Context, filter repository.ListFilter, _ int, _ int64) ([]*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Reservation
	for _, row := range f.rows {
		if filter.UserID != "" && row.UserID != filter.UserID {
			continue
		}
		if filter.ResourceID != "" && row.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeReservationRepo) Count(ctx context.Context, filter repository.ListFilter) (int64, error) {
	rows, err := f.FindAll(ctx, filter, 0, 0)
	return int64(len(rows)), err
}

func (f *fakeReservationRepo) FindActiveOverlapping(_ context.Context, resourceID string, rng model.TimeRange, excludeID string) ([]*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Reservation
	for _, row := range f.rows {
		if row.ResourceID != resourceID || !row.IsActive() || row.ID == excludeID {
			continue
		}
		if row.Range().Overlaps(rng) {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeReservationRepo) UpdateMetadata(_ context.Context, id string, title string, description *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return reservationerrors.ErrNotFound
	}
	if title != "" {
		row.Title = title
	}
	if description != nil {
		row.Description = *description
	}
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeReservationRepo) SetStatus(_ context.Context, id string, status model.ReservationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return reservationerrors.ErrNotFound
	}
	row.Status = status
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeReservationRepo) SetCalendarEventID(_ context.Context, id string, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return reservationerrors.ErrNotFound
	}
	row.CalendarEventID = eventID
	return nil
}

func (f *fakeReservationRepo) FindCurrent(_ context.Context, resourceID string, at time.Time) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.ResourceID == resourceID && row.IsActive() && row.Range().Contains(at) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeReservationRepo) FindNext(_ context.Context, resourceID string, after time.Time) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var next *model.Reservation
	for _, row := range f.rows {
		if row.ResourceID != resourceID || !row.IsActive() || !row.StartAt.After(after) {
			continue
		}
		if next == nil || row.StartAt.Before(next.StartAt) {
			copied := *row
			next = &copied
		}
	}
	return next, nil
}

func (f *fakeReservationRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

func (f *fakeReservationRepo) deleteRow(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
}

func (f *fakeReservationRepo) putRow(reservation *model.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *reservation
	f.rows[reservation.ID] = &stored
}

func (f *fakeReservationRepo) activeCount(resourceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, row := range f.rows {
		if row.ResourceID == resourceID && row.IsActive() {
			count++
		}
	}
	return count
}

type fakeResourceRepo struct {
	resources map[string]*model.Resource
}

func (f *fakeResourceRepo) FindByID(_ context.Context, id string) (*model.Resource, error) {
	resource, ok := f.resources[id]
	if !ok {
		return nil, reservationerrors.ErrResourceNotFound
	}
	return resource, nil
}

func (f *fakeResourceRepo) FindAllActive(_ context.Context) ([]*model.Resource, error) {
	var out []*model.Resource
	for _, r := range f.resources {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeLockRepo is a per-resource mutex table with the same bounded-wait
// behavior as the Mongo lock collection.
type fakeLockRepo struct {
	mu       sync.Mutex
	locks    map[string]string
	wait     time.Duration
	acquired int
}

func newFakeLockRepo(wait time.Duration) *fakeLockRepo {
	return &fakeLockRepo{locks: make(map[string]string), wait: wait}
}

func (f *fakeLockRepo) Acquire(ctx context.Context, resourceID string) (string, error) {
	deadline := time.Now().Add(f.wait)
	for {
		f.mu.Lock()
		if _, held := f.locks[resourceID]; !held {
			token := uuid.New().String()
			f.locks[resourceID] = token
			f.acquired++
			f.mu.Unlock()
			return token, nil
		}
		f.mu.Unlock()

		if time.Now().After(deadline) {
			return "", reservationerrors.ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeLockRepo) Release(_ context.Context, resourceID string, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.locks[resourceID] != token {
		return reservationerrors.ErrLockNotOwned
	}
	delete(f.locks, resourceID)
	return nil
}

type mockSyncer struct {
	createFunc func(ctx context.Context, r *model.Reservation) (string, calendar.Outcome)
	updateFunc func(ctx context.Context, r *model.Reservation) calendar.Outcome
	deleteFunc func(ctx context.Context, eventID string) calendar.Outcome
}

func (m *mockSyncer) CreateEvent(ctx context.Context, r *model.Reservation) (string, calendar.Outcome) {
	if m.createFunc != nil {
		return m.createFunc(ctx, r)
	}
	return "evt-" + r.ID, calendar.Success
}

func (m *mockSyncer) UpdateEvent(ctx context.Context, r *model.Reservation) calendar.Outcome {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, r)
	}
	return calendar.Success
}

func (m *mockSyncer) DeleteEvent(ctx context.Context, eventID string) calendar.Outcome {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, eventID)
	}
	return calendar.Success
}

type capturePublisher struct {
	events chan *model.ReservationEvent
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(chan *model.ReservationEvent, 16)}
}

func (p *capturePublisher) PublishReservationEvent(_ context.Context, event *model.ReservationEvent) error {
	p.events <- event
	return nil
}

func (p *capturePublisher) wait(t *testing.T) *model.ReservationEvent {
	t.Helper()
	select {
	case event := <-p.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reservation event")
		return nil
	}
}

// ────────────────────────────────────────────────
// Test harness
// ────────────────────────────────────────────────

type serviceFixture struct {
	service   ReservationService
	repo      *fakeReservationRepo
	locks     *fakeLockRepo
	publisher *capturePublisher
	syncer    *mockSyncer
	resource  *model.Resource
	resources map[string]*model.Resource
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.JSON, Service: "test"})
	cfg := &config.Config{
		Log:                    log,
		ReadTimeout:            5 * time.Second,
		WriteTimeout:           5 * time.Second,
		LockWaitTimeout:        500 * time.Millisecond,
		LockTTL:                time.Second,
		LockRetryInterval:      time.Millisecond,
		MaxReservationDuration: 24 * time.Hour,
		SyncTimeout:            100 * time.Millisecond,
		StatusCacheTTL:         time.Second,
	}

	resource := &model.Resource{
		ID:       uuid.New().String(),
		Name:     "build-server-1",
		IsActive: true,
	}

	resources := map[string]*model.Resource{resource.ID: resource}
	repo := newFakeReservationRepo()
	locks := newFakeLockRepo(cfg.LockWaitTimeout)
	publisher := newCapturePublisher()
	syncer := &mockSyncer{}

	svc := NewReservationService(
		repo,
		&fakeResourceRepo{resources: resources},
		locks,
		validator.NewReservationValidator(log, cfg.MaxReservationDuration),
		syncer,
		publisher,
		cache.NewStatusCache(nil, cfg.StatusCacheTTL, log),
		cfg,
	)

	return &serviceFixture{
		service:   svc,
		repo:      repo,
		locks:     locks,
		publisher: publisher,
		syncer:    syncer,
		resource:  resource,
		resources: resources,
	}
}

func (f *serviceFixture) input(start, end time.Time) *model.ReservationInput {
	return &model.ReservationInput{
		ResourceID: f.resource.ID,
		Title:      "Deployment window",
		StartAt:    start,
		EndAt:      end,
	}
}

func futureSlot(offset, length time.Duration) (time.Time, time.Time) {
	start := time.Now().UTC().Add(time.Hour + offset).Truncate(time.Second)
	return start, start.Add(length)
}

func asAppError(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	return appErr
}

func testPrincipal() model.Principal {
	return model.Principal{UserID: uuid.New().String(), Role: model.RoleUser}
}

// ────────────────────────────────────────────────
// Create
// ────────────────────────────────────────────────

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reservation.ID == "" {
		t.Error("expected a generated reservation id")
	}
	if reservation.UserID != principal.UserID {
		t.Errorf("expected owner %s, got %s", principal.UserID, reservation.UserID)
	}
	if reservation.Status != model.StatusActive {
		t.Errorf("expected status active, got %s", reservation.Status)
	}

	event := f.publisher.wait(t)
	if event.Type != model.EventReservationCreated {
		t.Errorf("expected %s event, got %s", model.EventReservationCreated, event.Type)
	}
}

func TestCreate_OverlapRejected(t *testing.T) {
	f := newFixture(t)
	start, end := futureSlot(0, time.Hour)

	if _, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, end)); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := f.service.Create(context.Background(), testPrincipal(), f.input(start.Add(30*time.Minute), end.Add(30*time.Minute)))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, appErr.Code)
	}
}

func TestCreate_BackToBackAllowed(t *testing.T) {
	f := newFixture(t)
	start, end := futureSlot(0, time.Hour)

	if _, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, end)); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	// Starts exactly where the previous one ends.
	if _, err := f.service.Create(context.Background(), testPrincipal(), f.input(end, end.Add(time.Hour))); err != nil {
		t.Fatalf("back-to-back booking should succeed: %v", err)
	}
}

func TestCreate_InvalidRange(t *testing.T) {
	f := newFixture(t)
	start, _ := futureSlot(0, time.Hour)

	tests := []struct {
		name string
		end  time.Time
	}{
		{name: "zero duration", end: start},
		{name: "end before start", end: start.Add(-time.Hour)},
		{name: "exceeds max duration", end: start.Add(25 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, tt.end))
			appErr := asAppError(t, err)
			if appErr.Code != apperrors.CodeInvalidRange {
				t.Errorf("expected %s, got %s", apperrors.CodeInvalidRange, appErr.Code)
			}
		})
	}
}

func TestCreate_ResourceNotFound(t *testing.T) {
	f := newFixture(t)
	start, end := futureSlot(0, time.Hour)

	input := f.input(start, end)
	input.ResourceID = uuid.New().String()

	_, err := f.service.Create(context.Background(), testPrincipal(), input)
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %s", apperrors.CodeNotFound, appErr.Code)
	}
}

func TestCreate_ResourceInactive(t *testing.T) {
	f := newFixture(t)
	f.resource.IsActive = false
	start, end := futureSlot(0, time.Hour)

	_, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, end))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeResourceInactive {
		t.Errorf("expected %s, got %s", apperrors.CodeResourceInactive, appErr.Code)
	}
}

func TestCreate_ConcurrentSameSlotOneWins(t *testing.T) {
	f := newFixture(t)
	start, end := futureSlot(0, time.Hour)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Create(context.Background(), testPrincipal(), f.input(start, end))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		appErr := asAppError(t, err)
		if appErr.Code != apperrors.CodeConflict && appErr.Code != apperrors.CodeBusy {
			t.Errorf("unexpected failure kind under contention: %s", appErr.Code)
		}
	}

	if succeeded != 1 {
		t.Errorf("expected exactly one winner, got %d", succeeded)
	}
	if got := f.repo.activeCount(f.resource.ID); got != 1 {
		t.Errorf("expected exactly one active row, got %d", got)
	}
}

func TestCreate_DistinctResourcesDoNotContend(t *testing.T) {
	f := newFixture(t)
	other := &model.Resource{ID: uuid.New().String(), Name: "build-server-2", IsActive: true}
	f.resources[other.ID] = other

	start, end := futureSlot(0, time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.service.Create(context.Background(), testPrincipal(), f.input(start, end))
	}()
	go func() {
		defer wg.Done()
		input := f.input(start, end)
		input.ResourceID = other.ID
		_, errs[1] = f.service.Create(context.Background(), testPrincipal(), input)
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("booking %d on its own resource should succeed: %v", i, err)
		}
	}
}

func TestCreate_LockWaitTimeoutReturnsBusy(t *testing.T) {
	f := newFixture(t)
	start, end := futureSlot(0, time.Hour)

	// Hold the lock past the bounded wait so the booking cannot acquire it.
	token, err := f.locks.Acquire(context.Background(), f.resource.ID)
	if err != nil {
		t.Fatalf("failed to pre-acquire lock: %v", err)
	}
	defer func() {
		_ = f.locks.Release(context.Background(), f.resource.ID, token)
	}()

	_, err = f.service.Create(context.Background(), testPrincipal(), f.input(start, end))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeBusy {
		t.Errorf("expected %s, got %s", apperrors.CodeBusy, appErr.Code)
	}
}

func TestCreate_CalendarFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t)
	f.syncer.createFunc = func(context.Context, *model.Reservation) (string, calendar.Outcome) {
		return "", calendar.TransientFailure
	}

	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, end))
	if err != nil {
		t.Fatalf("booking must not fail on calendar errors: %v", err)
	}

	// The created event is still published, without a calendar event id.
	event := f.publisher.wait(t)
	if event.Type != model.EventReservationCreated {
		t.Errorf("expected created event, got %s", event.Type)
	}

	stored, err := f.repo.FindByID(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("reservation should be committed: %v", err)
	}
	if stored.CalendarEventID != "" {
		t.Errorf("expected no calendar event id, got %s", stored.CalendarEventID)
	}
}

func TestCreate_SyncDoesNotMutateReturnedReservation(t *testing.T) {
	f := newFixture(t)
	f.syncer.createFunc = func(context.Context, *model.Reservation) (string, calendar.Outcome) {
		time.Sleep(20 * time.Millisecond)
		return "evt-late", calendar.Success
	}

	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	// Encode the returned value while the sync is still in flight, the way
	// the handler serializes the response.
	for i := 0; i < 50; i++ {
		if _, err := json.Marshal(reservation); err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
	}

	f.publisher.wait(t)

	if reservation.CalendarEventID != "" {
		t.Errorf("returned reservation must not be mutated after Create, got calendar event id %s", reservation.CalendarEventID)
	}

	stored, err := f.repo.FindByID(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("reservation should be committed: %v", err)
	}
	if stored.CalendarEventID != "evt-late" {
		t.Errorf("expected persisted calendar event id evt-late, got %q", stored.CalendarEventID)
	}
}

// ────────────────────────────────────────────────
// Cancel
// ────────────────────────────────────────────────

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	f.publisher.wait(t)

	if err := f.service.Cancel(context.Background(), principal, reservation.ID); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	event := f.publisher.wait(t)
	if event.Type != model.EventReservationCancelled {
		t.Errorf("expected cancelled event, got %s", event.Type)
	}

	// Repeating the cancel is a silent success and publishes nothing.
	if err := f.service.Cancel(context.Background(), principal, reservation.ID); err != nil {
		t.Fatalf("repeat cancel should be a no-op success: %v", err)
	}
	select {
	case event := <-f.publisher.events:
		t.Errorf("repeat cancel should not publish, got %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancel_FreesSlot(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if err := f.service.Cancel(context.Background(), principal, reservation.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if _, err := f.service.Create(context.Background(), testPrincipal(), f.input(start, end)); err != nil {
		t.Fatalf("slot should be free after cancellation: %v", err)
	}
}

func TestCancel_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	owner := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), owner, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	stranger := testPrincipal()
	err = f.service.Cancel(context.Background(), stranger, reservation.ID)
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeNotOwner {
		t.Errorf("expected %s, got %s", apperrors.CodeNotOwner, appErr.Code)
	}

	admin := model.Principal{UserID: uuid.New().String(), Role: model.RoleAdmin}
	if err := f.service.Cancel(context.Background(), admin, reservation.ID); err != nil {
		t.Errorf("admin should be able to cancel any reservation: %v", err)
	}
}

// ────────────────────────────────────────────────
// Update
// ────────────────────────────────────────────────

func TestUpdate_MetadataOnly(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	updated, err := f.service.Update(context.Background(), principal, reservation.ID, &model.ReservationUpdate{
		Title: "Maintenance window",
	})
	if err != nil {
		t.Fatalf("metadata update failed: %v", err)
	}

	if updated.ID != reservation.ID {
		t.Errorf("metadata update must keep the same row, got new id %s", updated.ID)
	}
	if updated.Title != "Maintenance window" {
		t.Errorf("expected new title, got %q", updated.Title)
	}
	if !updated.StartAt.Equal(reservation.StartAt) || !updated.EndAt.Equal(reservation.EndAt) {
		t.Error("metadata update must not move the reservation")
	}
}

func TestUpdate_RangeChangeExcludesOwnRow(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	// Shift by 30 minutes; the new range overlaps the old row, which must
	// not count against its own update.
	newStart := start.Add(30 * time.Minute)
	newEnd := end.Add(30 * time.Minute)
	updated, err := f.service.Update(context.Background(), principal, reservation.ID, &model.ReservationUpdate{
		StartAt: &newStart,
		EndAt:   &newEnd,
	})
	if err != nil {
		t.Fatalf("range update overlapping only itself should succeed: %v", err)
	}

	if updated.ID == reservation.ID {
		t.Error("range change should produce a superseding row with a new id")
	}
	if got := f.repo.activeCount(f.resource.ID); got != 1 {
		t.Errorf("expected one active row after range update, got %d", got)
	}

	old, err := f.repo.FindByID(context.Background(), reservation.ID)
	if err != nil {
		t.Fatalf("prior row should still exist: %v", err)
	}
	if old.Status != model.StatusCancelled {
		t.Errorf("prior row should be cancelled, got %s", old.Status)
	}
}

func TestUpdate_RangeChangeConflicts(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	first, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	if _, err := f.service.Create(context.Background(), testPrincipal(), f.input(end, end.Add(time.Hour))); err != nil {
		t.Fatalf("second booking failed: %v", err)
	}

	// Extending the first reservation into the second must conflict, and
	// the first must survive unchanged.
	newEnd := end.Add(30 * time.Minute)
	_, err = f.service.Update(context.Background(), principal, first.ID, &model.ReservationUpdate{
		StartAt: &start,
		EndAt:   &newEnd,
	})
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, appErr.Code)
	}

	current, err := f.repo.FindByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("original reservation should survive a failed update: %v", err)
	}
	if current.Status != model.StatusActive {
		t.Errorf("original reservation should remain active, got %s", current.Status)
	}
	if !current.EndAt.Equal(end) {
		t.Error("original range should be unchanged after a failed update")
	}
}

func TestUpdate_LostVerificationRestoresPriorRow(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	original, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	f.publisher.wait(t)

	// Storage-level verification loses: the replacement row was rolled back.
	f.repo.verifyFunc = func(_ context.Context, replacement *model.Reservation) error {
		f.repo.deleteRow(replacement.ID)
		return reservationerrors.ErrOverlap
	}

	newStart := start.Add(3 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	_, err = f.service.Update(context.Background(), principal, original.ID, &model.ReservationUpdate{
		StartAt: &newStart,
		EndAt:   &newEnd,
	})
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, appErr.Code)
	}

	// The old slot was still free, so the booking is restored.
	restored, err := f.repo.FindByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("original reservation should survive: %v", err)
	}
	if restored.Status != model.StatusActive {
		t.Errorf("expected restored reservation to be active, got %s", restored.Status)
	}
	if got := f.repo.activeCount(f.resource.ID); got != 1 {
		t.Errorf("expected 1 active reservation, got %d", got)
	}
}

func TestUpdate_LostVerificationDoesNotResurrectTakenSlot(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	original, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	f.publisher.wait(t)

	intruder := &model.Reservation{
		ID:         uuid.New().String(),
		UserID:     uuid.New().String(),
		ResourceID: f.resource.ID,
		Title:      "Maintenance window",
		StartAt:    start,
		EndAt:      end,
		Status:     model.StatusActive,
	}

	// Storage-level verification loses, and a writer that bypassed the lock
	// has taken the vacated slot in the meantime.
	f.repo.verifyFunc = func(_ context.Context, replacement *model.Reservation) error {
		f.repo.deleteRow(replacement.ID)
		f.repo.putRow(intruder)
		return reservationerrors.ErrOverlap
	}

	newStart := start.Add(3 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	_, err = f.service.Update(context.Background(), principal, original.ID, &model.ReservationUpdate{
		StartAt: &newStart,
		EndAt:   &newEnd,
	})
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, appErr.Code)
	}

	// Reactivating the superseded row would double book the slot; it stays
	// cancelled and only the competing booking holds it.
	superseded, err := f.repo.FindByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("superseded reservation should still exist: %v", err)
	}
	if superseded.Status != model.StatusCancelled {
		t.Errorf("expected superseded reservation to stay cancelled, got %s", superseded.Status)
	}
	if got := f.repo.activeCount(f.resource.ID); got != 1 {
		t.Errorf("expected 1 active reservation, got %d", got)
	}
}

func TestUpdate_SyncDoesNotMutateReturnedReservation(t *testing.T) {
	f := newFixture(t)
	f.syncer.createFunc = func(context.Context, *model.Reservation) (string, calendar.Outcome) {
		return "", calendar.TransientFailure
	}
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	original, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	f.publisher.wait(t)

	// The replacement has no calendar event yet, so the background sync
	// creates one while the caller still holds the returned value.
	f.syncer.createFunc = func(context.Context, *model.Reservation) (string, calendar.Outcome) {
		time.Sleep(20 * time.Millisecond)
		return "evt-late", calendar.Success
	}

	newStart := start.Add(3 * time.Hour)
	newEnd := newStart.Add(time.Hour)
	updated, err := f.service.Update(context.Background(), principal, original.ID, &model.ReservationUpdate{
		StartAt: &newStart,
		EndAt:   &newEnd,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		if _, err := json.Marshal(updated); err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
	}

	f.publisher.wait(t)

	if updated.CalendarEventID != "" {
		t.Errorf("returned reservation must not be mutated after Update, got calendar event id %s", updated.CalendarEventID)
	}

	stored, err := f.repo.FindByID(context.Background(), updated.ID)
	if err != nil {
		t.Fatalf("replacement should be committed: %v", err)
	}
	if stored.CalendarEventID != "evt-late" {
		t.Errorf("expected persisted calendar event id evt-late, got %q", stored.CalendarEventID)
	}
}

func TestUpdate_PastReservationImmutable(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()

	// Seed an elapsed reservation directly; the public API refuses to
	// create one in the past.
	past := &model.Reservation{
		ID:         uuid.New().String(),
		UserID:     principal.UserID,
		ResourceID: f.resource.ID,
		Title:      "Old window",
		StartAt:    time.Now().UTC().Add(-2 * time.Hour),
		EndAt:      time.Now().UTC().Add(-time.Hour),
		Status:     model.StatusActive,
	}
	if err := f.repo.Insert(context.Background(), past); err != nil {
		t.Fatalf("failed to seed past reservation: %v", err)
	}

	_, err := f.service.Update(context.Background(), principal, past.ID, &model.ReservationUpdate{Title: "New title"})
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodePastReservation {
		t.Errorf("expected %s, got %s", apperrors.CodePastReservation, appErr.Code)
	}

	err = f.service.Cancel(context.Background(), principal, past.ID)
	appErr = asAppError(t, err)
	if appErr.Code != apperrors.CodePastReservation {
		t.Errorf("expected %s on cancel, got %s", apperrors.CodePastReservation, appErr.Code)
	}

	// Reads stay allowed.
	if _, err := f.service.GetByID(context.Background(), past.ID); err != nil {
		t.Errorf("reading a past reservation should succeed: %v", err)
	}
}

func TestUpdate_CancelledReservationImmutable(t *testing.T) {
	f := newFixture(t)
	principal := testPrincipal()
	start, end := futureSlot(0, time.Hour)

	reservation, err := f.service.Create(context.Background(), principal, f.input(start, end))
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}
	if err := f.service.Cancel(context.Background(), principal, reservation.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	_, err = f.service.Update(context.Background(), principal, reservation.ID, &model.ReservationUpdate{Title: "Too late"})
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, appErr.Code)
	}
}
