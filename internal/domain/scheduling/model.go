package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle stage of an appointment. Completed and
// Cancelled are terminal.
type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

var validAppointmentStatuses = map[AppointmentStatus]bool{
	StatusBooked: true, StatusCompleted: true, StatusCancelled: true,
}

func (s AppointmentStatus) Valid() bool { return validAppointmentStatuses[s] }

// WeeklyAvailability maps to the weekly_availability table: one recurring
// open slot for a doctor on a weekday.
type WeeklyAvailability struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Weekday   Weekday   `db:"weekday" json:"weekday"`
	StartTime TimeLabel `db:"start_time" json:"start_time"`
	EndTime   TimeLabel `db:"end_time" json:"end_time"`
}

// AvailabilityOverride maps to the availability_override table. IsAvailable
// false blocks a weekly slot on Date; true opens a slot the week lacks.
type AvailabilityOverride struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date        Date      `db:"override_date" json:"date"`
	StartTime   TimeLabel `db:"start_time" json:"start_time"`
	EndTime     TimeLabel `db:"end_time" json:"end_time"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
}

// Appointment maps to the appointment table. Only booked rows occupy a slot.
type Appointment struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	DoctorID  uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID         `db:"patient_id" json:"patient_id"`
	Date      Date              `db:"appt_date" json:"date"`
	Time      TimeLabel         `db:"appt_time" json:"time"`
	Problem   string            `db:"problem" json:"problem"`
	Status    AppointmentStatus `db:"status" json:"status"`
	Remarks   *string           `db:"remarks" json:"remarks,omitempty"`
	Rating    *int              `db:"rating" json:"rating,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time         `db:"updated_at" json:"updated_at"`

	Treatment *Treatment `db:"-" json:"treatment,omitempty"`
}

// Treatment maps to the treatment table; at most one per appointment.
type Treatment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	Diagnosis     string    `db:"diagnosis" json:"diagnosis"`
	Prescription  string    `db:"prescription" json:"prescription,omitempty"`
	Notes         string    `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SlotSource tells where a resolved slot's availability came from.
type SlotSource string

const (
	SourceOpenDefault     SlotSource = "open-default"
	SourceOpenOverride    SlotSource = "open-override"
	SourceBlockedOverride SlotSource = "blocked-override"
)

// SlotView is one resolved slot. IsBooked and IsAvailable are independent: a
// blocked slot may still carry a booking made before the block.
type SlotView struct {
	Time        TimeLabel  `json:"time"`
	IsBooked    bool       `json:"is_booked"`
	IsAvailable bool       `json:"is_available"`
	Source      SlotSource `json:"source"`
}

// Bookable reports whether a new appointment may take this slot.
func (v SlotView) Bookable() bool { return v.IsAvailable && !v.IsBooked }

// PatientScope selects a patient's upcoming or past appointments.
type PatientScope string

const (
	ScopeUpcoming PatientScope = "upcoming"
	ScopePast     PatientScope = "past"
)

// DoctorAppointmentFilter narrows a doctor's appointment list. Zero fields
// match everything.
type DoctorAppointmentFilter struct {
	Status    AppointmentStatus
	PatientID uuid.UUID
}

// BookingRequest carries the inputs of BookAppointment.
type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      Date
	Time      TimeLabel
	Problem   string
}

// CompletionRequest carries the treatment recorded when a doctor completes a
// booked appointment.
type CompletionRequest struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	Diagnosis     string
	Prescription  string
	Notes         string
}
