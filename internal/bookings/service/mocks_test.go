package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingserrors "fleetdesk/internal/bookings/errors"
	"fleetdesk/internal/bookings/validator"
	userrepo "fleetdesk/internal/users/repository"
	vehiclerepo "fleetdesk/internal/vehicles/repository"
	mongotx "fleetdesk/pkg/db/mongo"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/metrics"
	"fleetdesk/pkg/model"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics("fleetdesk_test")

var testLogger = logger.New(logger.Config{Level: logger.ERROR})

// oid produces a deterministic 24-hex identifier.
func oid(n int) string {
	return fmt.Sprintf("%024x", n)
}

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	seq      int

	replaceErr error
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*model.Booking), seq: 1000}
}

func (f *fakeBookingRepo) put(b *model.Booking) *model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == "" {
		f.seq++
		b.ID = oid(f.seq)
	}
	c := *b
	f.bookings[b.ID] = &c
	return b
}

func (f *fakeBookingRepo) get(id string) *model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bookings[id]; ok {
		c := *b
		return &c
	}
	return nil
}

func (f *fakeBookingRepo) Create(_ context.Context, b *model.Booking) error {
	b.CreatedAt = time.Now().UTC()
	f.put(b)
	return nil
}

func (f *fakeBookingRepo) FindByID(_ context.Context, id string) (*model.Booking, error) {
	if b := f.get(id); b != nil {
		return b, nil
	}
	return nil, bookingserrors.ErrNotFound
}

func (f *fakeBookingRepo) FindByIDs(_ context.Context, ids []string) ([]*model.Booking, error) {
	var out []*model.Booking
	for _, id := range ids {
		if b := f.get(id); b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) FindAll(_ context.Context, limit int, offset int64) ([]*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Booking
	for _, b := range f.bookings {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if int(offset) < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBookingRepo) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.bookings)), nil
}

func (f *fakeBookingRepo) Replace(_ context.Context, b *model.Booking) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.bookings[b.ID]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if stored.Revision != b.Revision {
		return bookingserrors.ErrRevisionConflict
	}
	c := *b
	c.Revision++
	f.bookings[b.ID] = &c
	b.Revision++
	return nil
}

func (f *fakeBookingRepo) MarkMerged(_ context.Context, ids []string, mergedInto string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		b, ok := f.bookings[id]
		if !ok {
			return bookingserrors.ErrNotFound
		}
		b.Status = model.StatusMerged
		b.IsActive = false
		b.MergedInto = mergedInto
		b.Revision++
	}
	return nil
}

func (f *fakeBookingRepo) FindApprovedByVehicleBefore(_ context.Context, vehicleID string, before time.Time, excludeID string) ([]*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Booking
	for _, b := range f.bookings {
		if b.VehicleID != vehicleID || b.Status != model.StatusApproved || b.ID == excludeID {
			continue
		}
		if b.ScheduledAt.Before(before) {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) FindByMergeOpID(_ context.Context, opID string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.MergeOpID == opID && b.Status == model.StatusShared {
			c := *b
			return &c, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

func (f *fakeBookingRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

type fakeVehicleRepo struct {
	mu       sync.Mutex
	vehicles map[string]*model.Vehicle
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{vehicles: make(map[string]*model.Vehicle)}
}

func (f *fakeVehicleRepo) put(v *model.Vehicle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *v
	f.vehicles[v.ID] = &c
}

func (f *fakeVehicleRepo) status(id string) model.VehicleStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vehicles[id]; ok {
		return v.Status
	}
	return ""
}

func (f *fakeVehicleRepo) Create(_ context.Context, v *model.Vehicle) error {
	f.put(v)
	return nil
}

func (f *fakeVehicleRepo) FindByID(_ context.Context, id string) (*model.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vehicles[id]; ok {
		c := *v
		return &c, nil
	}
	return nil, vehiclerepo.ErrNotFound
}

func (f *fakeVehicleRepo) FindAll(_ context.Context, _ int, _ int64) ([]*model.Vehicle, error) {
	return nil, nil
}

func (f *fakeVehicleRepo) Count(_ context.Context) (int64, error) {
	return int64(len(f.vehicles)), nil
}

func (f *fakeVehicleRepo) UpdateStatus(_ context.Context, id string, status model.VehicleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[id]
	if !ok {
		return vehiclerepo.ErrNotFound
	}
	v.Status = status
	return nil
}

type fakeUserRepo struct {
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) put(u *model.User) {
	f.users[u.ID] = u
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, userrepo.ErrNotFound
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (f *fakeUserRepo) FindByNumber(_ context.Context, number string) (*model.User, error) {
	for _, u := range f.users {
		if u.Number == number {
			return u, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

type fakeSlotLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
	released int
}

func newFakeSlotLocks() *fakeSlotLocks {
	return &fakeSlotLocks{held: make(map[string]bool)}
}

func (f *fakeSlotLocks) Acquire(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return bookingserrors.ErrSlotLocked
	}
	f.held[key] = true
	f.acquired++
	return nil
}

func (f *fakeSlotLocks) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released++
	return nil
}

type fakeNotifier struct {
	approved  int
	completed int
	cancelled int
	merged    int
	unmerged  int
	removed   int
	lastRole  string
}

func (f *fakeNotifier) BookingApproved(context.Context, *model.Booking)  { f.approved++ }
func (f *fakeNotifier) BookingCompleted(context.Context, *model.Booking) { f.completed++ }
func (f *fakeNotifier) BookingCancelled(_ context.Context, _ *model.Booking, role string) {
	f.cancelled++
	f.lastRole = role
}
func (f *fakeNotifier) BookingsMerged(context.Context, *model.Booking, []string) { f.merged++ }
func (f *fakeNotifier) BookingsUnmerged(context.Context, *model.Booking)         { f.unmerged++ }
func (f *fakeNotifier) PassengerRemoved(context.Context, *model.Booking, model.Passenger) {
	f.removed++
}

type fixture struct {
	svc      BookingService
	bookings *fakeBookingRepo
	vehicles *fakeVehicleRepo
	users    *fakeUserRepo
	locks    *fakeSlotLocks
	notifier *fakeNotifier
}

func newFixture() *fixture {
	f := &fixture{
		bookings: newFakeBookingRepo(),
		vehicles: newFakeVehicleRepo(),
		users:    newFakeUserRepo(),
		locks:    newFakeSlotLocks(),
		notifier: &fakeNotifier{},
	}
	f.svc = NewBookingService(
		f.bookings,
		f.vehicles,
		f.users,
		f.locks,
		validator.NewBookingValidator(),
		f.notifier,
		testMetrics,
		testLogger,
	)
	return f
}
