package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	doctorID uuid.UUID
	date     string
	time     TimeLabel
}

type overrideKey struct {
	doctorID uuid.UUID
	date     string
}

type memTxKey struct{}

// MemoryStore keeps scheduling state in process. It backs the "memory"
// storage driver and the service tests. WithTx holds the write lock for the
// whole callback and restores the previous state when the callback fails.
type MemoryStore struct {
	mu           sync.RWMutex
	weekly       map[uuid.UUID][]WeeklyAvailability
	overrides    map[overrideKey][]AvailabilityOverride
	appointments map[uuid.UUID]*Appointment
	slotBookings map[slotKey]uuid.UUID // booked slot -> appointment ID (prevents double-booking)
	treatments   map[uuid.UUID]*Treatment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		weekly:       make(map[uuid.UUID][]WeeklyAvailability),
		overrides:    make(map[overrideKey][]AvailabilityOverride),
		appointments: make(map[uuid.UUID]*Appointment),
		slotBookings: make(map[slotKey]uuid.UUID),
		treatments:   make(map[uuid.UUID]*Treatment),
	}
}

func (m *MemoryStore) Weekly() WeeklyAvailabilityRepository { return memWeekly{m} }
func (m *MemoryStore) Overrides() OverrideRepository { return memOverrides{m} }
func (m *MemoryStore) Appointments() AppointmentRepository { return memAppointments{m} }
func (m *MemoryStore) Treatments() TreatmentRepository { return memTreatments{m} }

func (m *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*MemoryStore)
	return owner == m
}

// rlock and lock are no-ops inside WithTx, which already holds the write lock.
func (m *MemoryStore) rlock(ctx context.Context) func() {
	if m.inTx(ctx) {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *MemoryStore) lock(ctx context.Context) func() {
	if m.inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, m)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	weekly       map[uuid.UUID][]WeeklyAvailability
	overrides    map[overrideKey][]AvailabilityOverride
	appointments map[uuid.UUID]*Appointment
	slotBookings map[slotKey]uuid.UUID
	treatments   map[uuid.UUID]*Treatment
}

func (m *MemoryStore) snapshot() memSnapshot {
	s := memSnapshot{
		weekly:       make(map[uuid.UUID][]WeeklyAvailability, len(m.weekly)),
		overrides:    make(map[overrideKey][]AvailabilityOverride, len(m.overrides)),
		appointments: make(map[uuid.UUID]*Appointment, len(m.appointments)),
		slotBookings: make(map[slotKey]uuid.UUID, len(m.slotBookings)),
		treatments:   make(map[uuid.UUID]*Treatment, len(m.treatments)),
	}
	for k, v := range m.weekly {
		s.weekly[k] = append([]WeeklyAvailability(nil), v...)
	}
	for k, v := range m.overrides {
		s.overrides[k] = append([]AvailabilityOverride(nil), v...)
	}
	for k, v := range m.appointments {
		s.appointments[k] = cloneAppointment(v)
	}
	for k, v := range m.slotBookings {
		s.slotBookings[k] = v
	}
	for k, v := range m.treatments {
		t := *v
		s.treatments[k] = &t
	}
	return s
}

func (m *MemoryStore) restore(s memSnapshot) {
	m.weekly = s.weekly
	m.overrides = s.overrides
	m.appointments = s.appointments
	m.slotBookings = s.slotBookings
	m.treatments = s.treatments
}

func cloneAppointment(a *Appointment) *Appointment {
	c := *a
	if a.Remarks != nil {
		r := *a.Remarks
		c.Remarks = &r
	}
	if a.Rating != nil {
		r := *a.Rating
		c.Rating = &r
	}
	c.Treatment = nil
	return &c
}

func keyOf(a *Appointment) slotKey {
	return slotKey{doctorID: a.DoctorID, date: a.Date.String(), time: a.Time}
}

// -- weekly availability --

type memWeekly struct{ m *MemoryStore }

func (r memWeekly) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*WeeklyAvailability, error) {
	defer r.m.rlock(ctx)()
	rows := r.m.weekly[doctorID]
	out := make([]*WeeklyAvailability, 0, len(rows))
	for i := range rows {
		w := rows[i]
		out = append(out, &w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return weekdayOrder(out[i].Weekday) < weekdayOrder(out[j].Weekday)
		}
		return out[i].StartTime.Minutes() < out[j].StartTime.Minutes()
	})
	return out, nil
}

func (r memWeekly) ListByDoctorAndWeekday(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]*WeeklyAvailability, error) {
	all, err := r.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	out := make([]*WeeklyAvailability, 0, len(all))
	for _, w := range all {
		if w.Weekday == day {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r memWeekly) ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, rows []*WeeklyAvailability) error {
	defer r.m.lock(ctx)()
	seen := make(map[string]bool, len(rows))
	next := make([]WeeklyAvailability, 0, len(rows))
	for _, w := range rows {
		key := w.Weekday.String() + " " + w.StartTime.String()
		if seen[key] {
			return fmt.Errorf("%w: duplicate weekly slot %s", ErrValidation, key)
		}
		seen[key] = true
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		w.DoctorID = doctorID
		next = append(next, *w)
	}
	if len(next) == 0 {
		delete(r.m.weekly, doctorID)
		return nil
	}
	r.m.weekly[doctorID] = next
	return nil
}

// -- overrides --

type memOverrides struct{ m *MemoryStore }

func (r memOverrides) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date Date) ([]*AvailabilityOverride, error) {
	defer r.m.rlock(ctx)()
	rows := r.m.overrides[overrideKey{doctorID: doctorID, date: date.String()}]
	out := make([]*AvailabilityOverride, 0, len(rows))
	for i := range rows {
		o := rows[i]
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Minutes() < out[j].StartTime.Minutes() })
	return out, nil
}

func (r memOverrides) ReplaceForDate(ctx context.Context, doctorID uuid.UUID, date Date, rows []*AvailabilityOverride) error {
	defer r.m.lock(ctx)()
	key := overrideKey{doctorID: doctorID, date: date.String()}
	seen := make(map[TimeLabel]bool, len(rows))
	next := make([]AvailabilityOverride, 0, len(rows))
	for _, o := range rows {
		if seen[o.StartTime] {
			return fmt.Errorf("%w: duplicate override for %s", ErrValidation, o.StartTime)
		}
		seen[o.StartTime] = true
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.DoctorID, o.Date = doctorID, date
		next = append(next, *o)
	}
	if len(next) == 0 {
		delete(r.m.overrides, key)
		return nil
	}
	r.m.overrides[key] = next
	return nil
}

// -- appointments --

type memAppointments struct{ m *MemoryStore }

func (r memAppointments) Create(ctx context.Context, a *Appointment) error {
	defer r.m.lock(ctx)()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusBooked
	}
	if a.Status == StatusBooked {
		if _, taken := r.m.slotBookings[keyOf(a)]; taken {
			return fmt.Errorf("%w: %s %s", ErrSlotConflict, a.Date, a.Time)
		}
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	r.m.appointments[a.ID] = cloneAppointment(a)
	if a.Status == StatusBooked {
		r.m.slotBookings[keyOf(a)] = a.ID
	}
	return nil
}

func (r memAppointments) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer r.m.rlock(ctx)()
	a, ok := r.m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

// GetByIDForUpdate needs no extra locking: inside WithTx the store is already
// exclusively held.
func (r memAppointments) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetByID(ctx, id)
}

func (r memAppointments) ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]TimeLabel, error) {
	defer r.m.rlock(ctx)()
	day := date.String()
	var out []TimeLabel
	for k := range r.m.slotBookings {
		if k.doctorID == doctorID && k.date == day {
			out = append(out, k.time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	return out, nil
}

func (r memAppointments) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) error {
	defer r.m.lock(ctx)()
	a, ok := r.m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.Status != from {
		return fmt.Errorf("%w: appointment %s is not %s", ErrInvalidState, id, from)
	}
	key := keyOf(a)
	if to == StatusBooked {
		if other, taken := r.m.slotBookings[key]; taken && other != id {
			return fmt.Errorf("%w: %s %s", ErrSlotConflict, a.Date, a.Time)
		}
		r.m.slotBookings[key] = id
	} else if from == StatusBooked {
		delete(r.m.slotBookings, key)
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memAppointments) Move(ctx context.Context, id uuid.UUID, date Date, t TimeLabel) error {
	defer r.m.lock(ctx)()
	a, ok := r.m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.Status != StatusBooked {
		return fmt.Errorf("%w: appointment %s is not booked", ErrInvalidState, id)
	}
	next := slotKey{doctorID: a.DoctorID, date: date.String(), time: t}
	if other, taken := r.m.slotBookings[next]; taken && other != id {
		return fmt.Errorf("%w: %s %s", ErrSlotConflict, date, t)
	}
	delete(r.m.slotBookings, keyOf(a))
	a.Date, a.Time = date, t
	a.UpdatedAt = time.Now().UTC()
	r.m.slotBookings[next] = id
	return nil
}

func (r memAppointments) ListByPatient(ctx context.Context, patientID uuid.UUID, scope PatientScope, today Date, limit, offset int) ([]*Appointment, int, error) {
	defer r.m.rlock(ctx)()
	var items []*Appointment
	for _, a := range r.m.appointments {
		if a.PatientID != patientID {
			continue
		}
		if past := a.Date.Before(today); past != (scope == ScopePast) {
			continue
		}
		items = append(items, cloneAppointment(a))
	}
	sortAppointments(items, scope == ScopePast)
	return pageOf(items, limit, offset), len(items), nil
}

func (r memAppointments) ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	defer r.m.rlock(ctx)()
	var items []*Appointment
	for _, a := range r.m.appointments {
		if a.DoctorID != doctorID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.PatientID != uuid.Nil && a.PatientID != filter.PatientID {
			continue
		}
		items = append(items, cloneAppointment(a))
	}
	sortAppointments(items, true)
	return pageOf(items, limit, offset), len(items), nil
}

func sortAppointments(items []*Appointment, desc bool) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if desc {
			a, b = b, a
		}
		return a.Date.Before(b.Date) || (a.Date.Equal(b.Date) && a.Time.Minutes() < b.Time.Minutes())
	})
}

func (r memAppointments) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.m.lock(ctx)()
	a, ok := r.m.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if a.Status == StatusBooked {
		delete(r.m.slotBookings, keyOf(a))
	}
	delete(r.m.appointments, id)
	delete(r.m.treatments, id)
	return nil
}

func pageOf(items []*Appointment, limit, offset int) []*Appointment {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []*Appointment{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// -- treatments --

type memTreatments struct{ m *MemoryStore }

func (r memTreatments) Create(ctx context.Context, t *Treatment) error {
	defer r.m.lock(ctx)()
	if _, exists := r.m.treatments[t.AppointmentID]; exists {
		return fmt.Errorf("%w: treatment already recorded for appointment %s", ErrInvalidState, t.AppointmentID)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	c := *t
	r.m.treatments[t.AppointmentID] = &c
	return nil
}

func (r memTreatments) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	defer r.m.rlock(ctx)()
	t, ok := r.m.treatments[appointmentID]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}
