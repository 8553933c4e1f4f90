package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type WeeklyAvailabilityRepository interface {
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*WeeklyAvailability, error)
	ListByDoctorAndWeekday(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]*WeeklyAvailability, error)
	// ReplaceForDoctor deletes every row of the doctor and inserts rows.
	ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, rows []*WeeklyAvailability) error
}

type OverrideRepository interface {
	ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date Date) ([]*AvailabilityOverride, error)
	// ReplaceForDate deletes the doctor's overrides on date and inserts rows.
	ReplaceForDate(ctx context.Context, doctorID uuid.UUID, date Date, rows []*AvailabilityOverride) error
}

type AppointmentRepository interface {
	// Create inserts a booked appointment. A second booked row for the same
	// doctor, date and time fails with ErrSlotConflict.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetByIDForUpdate reads the appointment and locks it until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]TimeLabel, error)
	// UpdateStatus moves the appointment from one status to another and fails
	// with ErrInvalidState when it is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) error
	// Move changes the date and time of a booked appointment.
	Move(ctx context.Context, id uuid.UUID, date Date, t TimeLabel) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, scope PatientScope, today Date, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// Delete removes the appointment together with its treatment.
	Delete(ctx context.Context, id uuid.UUID) error
}

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	// GetByAppointment returns nil without error when none was recorded.
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error)
}

// Transactor runs fn as one all-or-nothing unit. Repository calls made with
// the ctx passed to fn join the unit.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
