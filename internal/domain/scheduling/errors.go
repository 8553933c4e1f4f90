package scheduling

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrPastDate            = errors.New("date is in the past")
	ErrSlotUnavailable     = errors.New("slot is not available")
	ErrSlotConflict        = errors.New("slot is already booked")
	ErrForbidden           = errors.New("requester does not own this appointment")
	ErrNotCancellable      = errors.New("appointment cannot be cancelled")
	ErrInvalidState        = errors.New("appointment is not in a valid state for this operation")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPersistence         = errors.New("storage failure")
	ErrTooManyAttempts     = errors.New("too many booking attempts")
)

// ErrorCode returns the stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrPastDate):
		return "past_date"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotCancellable):
		return "not_cancellable"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	default:
		return "internal_error"
	}
}

const (
	pgUniqueViolation = "23505"
	bookedSlotIndex   = "appointment_booked_slot_uq"
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// isDomainErr reports whether err already carries one of the package
// sentinels and can be returned as is.
func isDomainErr(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrPastDate, ErrSlotUnavailable, ErrSlotConflict, ErrForbidden,
		ErrNotCancellable, ErrInvalidState, ErrAppointmentNotFound, ErrPersistence, ErrTooManyAttempts,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// persistenceErr wraps a storage failure so it matches ErrPersistence and
// keeps the cause.
func persistenceErr(op string, err error) error {
	if err == nil || isDomainErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// translatePgErr maps driver errors onto package sentinels where one applies.
func translatePgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAppointmentNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == bookedSlotIndex {
			return fmt.Errorf("%w: %s", ErrSlotConflict, op)
		}
		return fmt.Errorf("%w: %s: duplicate %s", ErrInvalidState, op, pgErr.ConstraintName)
	}
	return persistenceErr(op, err)
}
