package scheduling

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicflow/scheduler/internal/platform/metrics"
)

var tracer = otel.Tracer("scheduler.internal.domain.scheduling")

const (
	maxProblemLen   = 300
	maxDiagnosisLen = 200
)

// AttemptLimiter caps how often one patient may try to book.
type AttemptLimiter interface {
	Allow(ctx context.Context, id string) (bool, error)
}

type Service struct {
	weekly       WeeklyAvailabilityRepository
	overrides    OverrideRepository
	appointments AppointmentRepository
	treatments   TreatmentRepository
	tx           Transactor

	limiter AttemptLimiter
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithMetrics(m *metrics.BookingMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithAttemptLimiter(l AttemptLimiter) Option { return func(s *Service) { s.limiter = l } }

// WithLocation sets the clinic time zone used to decide what "today" is.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(weekly WeeklyAvailabilityRepository, overrides OverrideRepository, appts AppointmentRepository,
	treatments TreatmentRepository, tx Transactor, opts ...Option) *Service {
	s := &Service{
		weekly:       weekly,
		overrides:    overrides,
		appointments: appts,
		treatments:   treatments,
		tx:           tx,
		logger:       zerolog.Nop(),
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() Date { return Today(s.now(), s.loc) }

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrorCode(err))
	}
	span.End()
}

func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.tx.WithTx(ctx, fn)
	if err != nil && !isDomainErr(err) {
		err = persistenceErr(op, err)
	}
	if errors.Is(err, ErrPersistence) {
		s.logger.Error().Err(err).Str("op", op).Msg("scheduling storage failure")
	}
	return err
}

// -- Slot resolution --

func (s *Service) resolve(ctx context.Context, doctorID uuid.UUID, date Date) ([]SlotView, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveResolve(time.Since(start)) }()

	weekly, err := s.weekly.ListByDoctorAndWeekday(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, persistenceErr("list weekly availability", err)
	}
	overrides, err := s.overrides.ListByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, persistenceErr("list overrides", err)
	}
	booked, err := s.appointments.ListBookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, persistenceErr("list booked times", err)
	}

	w := make([]WeeklyAvailability, len(weekly))
	for i := range weekly {
		w[i] = *weekly[i]
	}
	o := make([]AvailabilityOverride, len(overrides))
	for i := range overrides {
		o[i] = *overrides[i]
	}
	return MergeSlots(w, o, booked), nil
}

// ResolveSlots returns every slot known for the doctor on date, blocked ones
// included, each flagged with its availability and booking state.
func (s *Service) ResolveSlots(ctx context.Context, doctorID uuid.UUID, date Date) (_ []SlotView, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.resolve_slots")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()), attribute.String("date", date.String()))

	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id is required")
	}
	if date.IsZero() {
		return nil, validationErr("date is required")
	}
	return s.resolve(ctx, doctorID, date)
}

// GetAvailableSlots returns the slots a patient is shown: open slots and
// booked slots. Slots blocked by an override and not booked are left out.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date Date) ([]SlotView, error) {
	views, err := s.ResolveSlots(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	return VisibleSlots(views), nil
}

// -- Booking --

func validateBooking(req BookingRequest) (BookingRequest, error) {
	if req.DoctorID == uuid.Nil {
		return req, validationErr("doctor_id is required")
	}
	if req.PatientID == uuid.Nil {
		return req, validationErr("patient_id is required")
	}
	if req.Date.IsZero() {
		return req, validationErr("date is required")
	}
	t, err := ParseTimeLabel(string(req.Time))
	if err != nil {
		return req, err
	}
	req.Time = t
	req.Problem = strings.TrimSpace(req.Problem)
	if req.Problem == "" {
		return req, validationErr("problem is required")
	}
	if utf8.RuneCountInString(req.Problem) > maxProblemLen {
		return req, validationErr("problem must be at most %d characters", maxProblemLen)
	}
	return req, nil
}

// checkSlot validates that label is open and free in the resolution.
func checkSlot(views []SlotView, label TimeLabel) error {
	v, ok := findSlot(views, label)
	switch {
	case ok && v.Bookable():
		return nil
	case ok && v.IsAvailable:
		return ErrSlotConflict
	default:
		return ErrSlotUnavailable
	}
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrSlotConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrSlotUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, ErrPastDate):
		return metrics.OutcomePastDate
	case errors.Is(err, ErrTooManyAttempts):
		return metrics.OutcomeThrottled
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

// BookAppointment books the requested slot for a patient. The slot is
// re-resolved and the appointment inserted inside one transaction; the
// storage layer rejects a second booked row for the same doctor, date and
// time, so of two concurrent attempts exactly one succeeds and the other
// fails with ErrSlotConflict.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.book_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("doctor.id", req.DoctorID.String()),
		attribute.String("patient.id", req.PatientID.String()),
		attribute.String("date", req.Date.String()),
		attribute.String("time", string(req.Time)),
	)
	defer func() { s.metrics.ObserveBooking(bookingOutcome(err)) }()

	req, err = validateBooking(req)
	if err != nil {
		return nil, err
	}
	if req.Date.Before(s.today()) {
		return nil, ErrPastDate
	}

	if s.limiter != nil {
		allowed, lerr := s.limiter.Allow(ctx, req.PatientID.String())
		if lerr != nil {
			s.logger.Warn().Err(lerr).Str("patient_id", req.PatientID.String()).Msg("booking throttle check failed")
		} else if !allowed {
			return nil, ErrTooManyAttempts
		}
	}

	appt := &Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		Time:      req.Time,
		Problem:   req.Problem,
		Status:    StatusBooked,
	}
	err = s.inTx(ctx, "book appointment", func(ctx context.Context) error {
		views, err := s.resolve(ctx, req.DoctorID, req.Date)
		if err != nil {
			return err
		}
		if err := checkSlot(views, req.Time); err != nil {
			return err
		}
		return s.appointments.Create(ctx, appt)
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.logger.Warn().
				Str("doctor_id", req.DoctorID.String()).
				Str("date", req.Date.String()).
				Str("time", string(req.Time)).
				Msg("booking lost slot race")
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()))
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("patient_id", appt.PatientID.String()).
		Str("date", appt.Date.String()).
		Str("time", string(appt.Time)).
		Msg("appointment booked")
	return appt, nil
}

// CancelAppointment cancels a booked, not yet past appointment owned by
// patientID. The slot becomes bookable again.
func (s *Service) CancelAppointment(ctx context.Context, id, patientID uuid.UUID) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.cancel_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("appointment.id", id.String()), attribute.String("patient.id", patientID.String()))

	if id == uuid.Nil || patientID == uuid.Nil {
		return nil, validationErr("appointment id and patient_id are required")
	}

	var appt *Appointment
	err = s.inTx(ctx, "cancel appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.PatientID != patientID {
			return ErrForbidden
		}
		if a.Status != StatusBooked || a.Date.Before(s.today()) {
			return ErrNotCancellable
		}
		if err := s.appointments.UpdateStatus(ctx, id, StatusBooked, StatusCancelled); err != nil {
			return err
		}
		a.Status = StatusCancelled
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusBooked), string(StatusCancelled))
	s.logger.Info().Str("appointment_id", id.String()).Str("patient_id", patientID.String()).Msg("appointment cancelled")
	return appt, nil
}

// DeleteAppointment removes one of the patient's appointments in any status,
// along with its treatment record. A booked slot becomes free again.
func (s *Service) DeleteAppointment(ctx context.Context, id, patientID uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.delete_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("appointment.id", id.String()), attribute.String("patient.id", patientID.String()))

	if id == uuid.Nil || patientID == uuid.Nil {
		return validationErr("appointment id and patient_id are required")
	}

	var status AppointmentStatus
	err = s.inTx(ctx, "delete appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.PatientID != patientID {
			return ErrForbidden
		}
		status = a.Status
		return s.appointments.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("patient_id", patientID.String()).
		Str("status", string(status)).
		Msg("appointment deleted")
	return nil
}

// CompleteAppointment records the treatment for a booked appointment of the
// requesting doctor and marks it completed, both in one transaction.
func (s *Service) CompleteAppointment(ctx context.Context, req CompletionRequest) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.complete_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("appointment.id", req.AppointmentID.String()), attribute.String("doctor.id", req.DoctorID.String()))

	if req.AppointmentID == uuid.Nil || req.DoctorID == uuid.Nil {
		return nil, validationErr("appointment id and doctor_id are required")
	}
	diagnosis := strings.TrimSpace(req.Diagnosis)
	if diagnosis == "" {
		return nil, validationErr("diagnosis is required")
	}
	if utf8.RuneCountInString(diagnosis) > maxDiagnosisLen {
		return nil, validationErr("diagnosis must be at most %d characters", maxDiagnosisLen)
	}

	var appt *Appointment
	err = s.inTx(ctx, "complete appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetByIDForUpdate(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if a.DoctorID != req.DoctorID {
			return ErrForbidden
		}
		if a.Status != StatusBooked {
			return ErrInvalidState
		}
		t := &Treatment{
			AppointmentID: a.ID,
			Diagnosis:     diagnosis,
			Prescription:  strings.TrimSpace(req.Prescription),
			Notes:         strings.TrimSpace(req.Notes),
		}
		if err := s.treatments.Create(ctx, t); err != nil {
			return err
		}
		if err := s.appointments.UpdateStatus(ctx, a.ID, StatusBooked, StatusCompleted); err != nil {
			return err
		}
		a.Status = StatusCompleted
		a.Treatment = t
		appt = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(StatusBooked), string(StatusCompleted))
	s.logger.Info().Str("appointment_id", appt.ID.String()).Str("doctor_id", req.DoctorID.String()).Msg("appointment completed")
	return appt, nil
}

// RescheduleAppointment moves a patient's booked appointment to another slot
// of the same doctor. Ownership and cancellability follow CancelAppointment;
// the target slot is checked as in BookAppointment.
func (s *Service) RescheduleAppointment(ctx context.Context, id, patientID uuid.UUID, date Date, t TimeLabel) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.reschedule_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("patient.id", patientID.String()),
		attribute.String("date", date.String()),
		attribute.String("time", string(t)),
	)

	if id == uuid.Nil || patientID == uuid.Nil {
		return nil, validationErr("appointment id and patient_id are required")
	}
	if date.IsZero() {
		return nil, validationErr("date is required")
	}
	if t, err = ParseTimeLabel(string(t)); err != nil {
		return nil, err
	}
	if date.Before(s.today()) {
		return nil, ErrPastDate
	}

	var appt *Appointment
	err = s.inTx(ctx, "reschedule appointment", func(ctx context.Context) error {
		a, err := s.appointments.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.PatientID != patientID {
			return ErrForbidden
		}
		if a.Status != StatusBooked || a.Date.Before(s.today()) {
			return ErrNotCancellable
		}
		appt = a
		if a.Date.Equal(date) && a.Time == t {
			return nil
		}

		views, err := s.resolve(ctx, a.DoctorID, date)
		if err != nil {
			return err
		}
		if err := checkSlot(views, t); err != nil {
			return err
		}
		if err := s.appointments.Move(ctx, id, date, t); err != nil {
			return err
		}
		a.Date, a.Time = date, t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("date", date.String()).
		Str("time", string(t)).
		Msg("appointment rescheduled")
	return appt, nil
}

// GetAppointment returns the appointment with its treatment, if recorded.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (_ *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.get_appointment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, persistenceErr("get appointment", err)
	}
	if a.Status == StatusCompleted {
		t, err := s.treatments.GetByAppointment(ctx, id)
		if err != nil {
			return nil, persistenceErr("get treatment", err)
		}
		a.Treatment = t
	}
	return a, nil
}

func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, scope PatientScope, limit, offset int) (_ []*Appointment, _ int, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.list_patient_appointments")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("patient.id", patientID.String()), attribute.String("scope", string(scope)))

	if patientID == uuid.Nil {
		return nil, 0, validationErr("patient_id is required")
	}
	if scope == "" {
		scope = ScopeUpcoming
	}
	if scope != ScopeUpcoming && scope != ScopePast {
		return nil, 0, validationErr("scope must be %q or %q", ScopeUpcoming, ScopePast)
	}
	if err := checkPage(limit, offset); err != nil {
		return nil, 0, err
	}
	items, total, err := s.appointments.ListByPatient(ctx, patientID, scope, s.today(), limit, offset)
	if err != nil {
		return nil, 0, persistenceErr("list patient appointments", err)
	}
	return items, total, nil
}

// ListDoctorAppointments pages through a doctor's appointments, newest
// first. A filter with a patient id gives the doctor's history with that
// patient.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) (_ []*Appointment, _ int, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.list_doctor_appointments")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()), attribute.String("status", string(filter.Status)))
	if filter.PatientID != uuid.Nil {
		span.SetAttributes(attribute.String("patient.id", filter.PatientID.String()))
	}

	if doctorID == uuid.Nil {
		return nil, 0, validationErr("doctor_id is required")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, validationErr("invalid appointment status: %s", filter.Status)
	}
	if err := checkPage(limit, offset); err != nil {
		return nil, 0, err
	}
	items, total, err := s.appointments.ListByDoctor(ctx, doctorID, filter, limit, offset)
	if err != nil {
		return nil, 0, persistenceErr("list doctor appointments", err)
	}
	return items, total, nil
}

func checkPage(limit, offset int) error {
	if limit < 0 {
		return validationErr("limit must not be negative")
	}
	if offset < 0 {
		return validationErr("offset must not be negative")
	}
	return nil
}

// -- Schedule editing --

// DaySchedule is one weekday of a doctor's weekly schedule.
type DaySchedule struct {
	Day   Weekday     `json:"day"`
	Times []TimeLabel `json:"times"`
}

func dedupeLabels(times []TimeLabel) ([]TimeLabel, error) {
	seen := make(map[TimeLabel]bool, len(times))
	out := make([]TimeLabel, 0, len(times))
	for _, raw := range times {
		t, err := ParseTimeLabel(string(raw))
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minutes() < out[j].Minutes() })
	return out, nil
}

// ReplaceWeeklySchedule replaces the doctor's whole weekly schedule with one
// 30-minute slot for every pair of days and times. Empty input clears it.
func (s *Service) ReplaceWeeklySchedule(ctx context.Context, doctorID uuid.UUID, days []Weekday, times []TimeLabel) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.replace_weekly_schedule")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))

	if doctorID == uuid.Nil {
		return validationErr("doctor_id is required")
	}
	daySet := make(map[Weekday]bool, len(days))
	for _, d := range days {
		if !d.Valid() {
			return validationErr("invalid weekday %d", int(d))
		}
		daySet[d] = true
	}
	labels, err := dedupeLabels(times)
	if err != nil {
		return err
	}

	var rows []*WeeklyAvailability
	for _, d := range Weekdays {
		if !daySet[d] {
			continue
		}
		for _, t := range labels {
			rows = append(rows, &WeeklyAvailability{
				DoctorID:  doctorID,
				Weekday:   d,
				StartTime: t,
				EndTime:   t.Add(SlotDuration),
			})
		}
	}
	span.SetAttributes(attribute.Int("slots", len(rows)))

	err = s.inTx(ctx, "replace weekly schedule", func(ctx context.Context) error {
		return s.weekly.ReplaceForDoctor(ctx, doctorID, rows)
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveScheduleEdit("weekly")
	s.logger.Info().Str("doctor_id", doctorID.String()).Int("slots", len(rows)).Msg("weekly schedule replaced")
	return nil
}

// GetWeeklySchedule returns the doctor's weekly slots grouped by day, Monday
// first. Days without slots are omitted.
func (s *Service) GetWeeklySchedule(ctx context.Context, doctorID uuid.UUID) (_ []DaySchedule, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.get_weekly_schedule")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()))

	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id is required")
	}
	rows, err := s.weekly.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, persistenceErr("list weekly availability", err)
	}

	byDay := make(map[Weekday][]TimeLabel)
	for _, w := range rows {
		byDay[w.Weekday] = append(byDay[w.Weekday], w.StartTime)
	}
	out := make([]DaySchedule, 0, len(byDay))
	for _, d := range Weekdays {
		times, ok := byDay[d]
		if !ok {
			continue
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Minutes() < times[j].Minutes() })
		out = append(out, DaySchedule{Day: d, Times: times})
	}
	return out, nil
}

// SetDailyOverrides makes selected the doctor's exact set of open slots on
// date. Weekly slots left out are blocked, selected slots outside the week are
// opened, and previous overrides for the date are replaced.
func (s *Service) SetDailyOverrides(ctx context.Context, doctorID uuid.UUID, date Date, selected []TimeLabel) (err error) {
	ctx, span := tracer.Start(ctx, "scheduling.set_daily_overrides")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()), attribute.String("date", date.String()))

	if doctorID == uuid.Nil {
		return validationErr("doctor_id is required")
	}
	if date.IsZero() {
		return validationErr("date is required")
	}
	labels, err := dedupeLabels(selected)
	if err != nil {
		return err
	}
	chosen := make(map[TimeLabel]bool, len(labels))
	for _, l := range labels {
		chosen[l] = true
	}

	var blocked, opened int
	err = s.inTx(ctx, "set daily overrides", func(ctx context.Context) error {
		weekly, err := s.weekly.ListByDoctorAndWeekday(ctx, doctorID, date.Weekday())
		if err != nil {
			return err
		}
		base := make(map[TimeLabel]bool, len(weekly))
		for _, w := range weekly {
			base[w.StartTime] = true
		}

		var rows []*AvailabilityOverride
		for _, w := range weekly {
			if !chosen[w.StartTime] {
				rows = append(rows, &AvailabilityOverride{StartTime: w.StartTime, EndTime: w.StartTime.Add(SlotDuration), IsAvailable: false})
				blocked++
			}
		}
		for _, l := range labels {
			if !base[l] {
				rows = append(rows, &AvailabilityOverride{StartTime: l, EndTime: l.Add(SlotDuration), IsAvailable: true})
				opened++
			}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].StartTime.Minutes() < rows[j].StartTime.Minutes() })
		return s.overrides.ReplaceForDate(ctx, doctorID, date, rows)
	})
	if err != nil {
		return err
	}

	s.metrics.ObserveScheduleEdit("override")
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("date", date.String()).
		Int("blocked", blocked).
		Int("opened", opened).
		Msg("daily overrides replaced")
	return nil
}

func (s *Service) GetDailyOverrides(ctx context.Context, doctorID uuid.UUID, date Date) (_ []*AvailabilityOverride, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.get_daily_overrides")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("doctor.id", doctorID.String()), attribute.String("date", date.String()))

	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id is required")
	}
	if date.IsZero() {
		return nil, validationErr("date is required")
	}
	rows, err := s.overrides.ListByDoctorAndDate(ctx, doctorID, date)
	if err != nil {
		return nil, persistenceErr("list overrides", err)
	}
	return rows, nil
}
