package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicflow/scheduler/internal/domain/scheduling"
	"github.com/clinicflow/scheduler/internal/platform/db"
	"github.com/clinicflow/scheduler/migrations"
)

func slotTimes(views []scheduling.SlotView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = string(v.Time)
	}
	return out
}

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	schema := uniqueSchema("mig")
	m := db.NewMigrator(globalDB.Pool, migrations.FS, schema)
	t.Cleanup(func() {
		_, _ = globalDB.Pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n == 0 {
		t.Fatal("expected at least one migration applied")
	}

	again, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("second Up: %v", err)
	}
	if again != 0 {
		t.Errorf("expected no pending migrations, applied %d", again)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("migration %d not marked applied", s.Version)
		}
	}
}

func TestWeeklyAndOverrides(t *testing.T) {
	ctx := context.Background()
	pool := migratedSchema(t, ctx, "sched")
	svc := newPGService(pool)
	doctorID := createTestDoctor(t, ctx, pool, "Dr. Weekly")
	monday := nextWeekday(scheduling.Monday)

	t.Run("ReplaceWeekly", func(t *testing.T) {
		err := svc.ReplaceWeeklySchedule(ctx, doctorID,
			[]scheduling.Weekday{scheduling.Monday, scheduling.Wednesday},
			[]scheduling.TimeLabel{"09:00", "09:30", "10:00"})
		if err != nil {
			t.Fatalf("ReplaceWeeklySchedule: %v", err)
		}
		schedule, err := svc.GetWeeklySchedule(ctx, doctorID)
		if err != nil {
			t.Fatalf("GetWeeklySchedule: %v", err)
		}
		if len(schedule) != 2 || schedule[0].Day != scheduling.Monday || len(schedule[0].Times) != 3 {
			t.Fatalf("unexpected schedule %+v", schedule)
		}
	})

	t.Run("ReplaceWeekly_FullReplace", func(t *testing.T) {
		err := svc.ReplaceWeeklySchedule(ctx, doctorID,
			[]scheduling.Weekday{scheduling.Monday},
			[]scheduling.TimeLabel{"09:00", "09:30"})
		if err != nil {
			t.Fatalf("ReplaceWeeklySchedule: %v", err)
		}
		schedule, _ := svc.GetWeeklySchedule(ctx, doctorID)
		if len(schedule) != 1 {
			t.Fatalf("expected Wednesday removed, got %+v", schedule)
		}
	})

	t.Run("Overrides", func(t *testing.T) {
		if err := svc.SetDailyOverrides(ctx, doctorID, monday, []scheduling.TimeLabel{"09:30", "14:00"}); err != nil {
			t.Fatalf("SetDailyOverrides: %v", err)
		}
		views, err := svc.GetAvailableSlots(ctx, doctorID, monday)
		if err != nil {
			t.Fatalf("GetAvailableSlots: %v", err)
		}
		got := slotTimes(views)
		if len(got) != 2 || got[0] != "09:30" || got[1] != "14:00" {
			t.Errorf("expected [09:30 14:00], got %v", got)
		}

		// the following Monday is untouched by the override
		views, _ = svc.GetAvailableSlots(ctx, doctorID, monday.AddDays(7))
		if got := slotTimes(views); len(got) != 2 || got[0] != "09:00" {
			t.Errorf("expected weekly slots next week, got %v", got)
		}
	})
}

func TestBookingLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := migratedSchema(t, ctx, "book")
	svc := newPGService(pool)
	doctorID := createTestDoctor(t, ctx, pool, "Dr. Booking")
	patientID := createTestPatient(t, ctx, pool, "Pat Booking")
	otherPatient := createTestPatient(t, ctx, pool, "Pat Other")
	monday := nextWeekday(scheduling.Monday)

	if err := svc.ReplaceWeeklySchedule(ctx, doctorID,
		[]scheduling.Weekday{scheduling.Monday},
		[]scheduling.TimeLabel{"09:00", "09:30", "10:00"}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}

	var booked *scheduling.Appointment
	t.Run("Book", func(t *testing.T) {
		appt, err := svc.BookAppointment(ctx, scheduling.BookingRequest{
			DoctorID: doctorID, PatientID: patientID, Date: monday, Time: "09:00", Problem: "back pain",
		})
		if err != nil {
			t.Fatalf("BookAppointment: %v", err)
		}
		if appt.Status != scheduling.StatusBooked {
			t.Errorf("expected booked, got %s", appt.Status)
		}
		booked = appt

		views, _ := svc.GetAvailableSlots(ctx, doctorID, monday)
		for _, v := range views {
			if v.Time == "09:00" && !v.IsBooked {
				t.Error("expected 09:00 marked booked")
			}
		}
	})

	t.Run("Book_Conflict", func(t *testing.T) {
		_, err := svc.BookAppointment(ctx, scheduling.BookingRequest{
			DoctorID: doctorID, PatientID: otherPatient, Date: monday, Time: "09:00", Problem: "fever",
		})
		if !errors.Is(err, scheduling.ErrSlotConflict) {
			t.Fatalf("expected ErrSlotConflict, got %v", err)
		}
	})

	t.Run("Reschedule_Conflict", func(t *testing.T) {
		other, err := svc.BookAppointment(ctx, scheduling.BookingRequest{
			DoctorID: doctorID, PatientID: otherPatient, Date: monday, Time: "09:30", Problem: "fever",
		})
		if err != nil {
			t.Fatalf("BookAppointment: %v", err)
		}
		_, err = svc.RescheduleAppointment(ctx, other.ID, otherPatient, monday, "09:00")
		if !errors.Is(err, scheduling.ErrSlotConflict) {
			t.Fatalf("expected ErrSlotConflict, got %v", err)
		}
	})

	t.Run("Reschedule", func(t *testing.T) {
		moved, err := svc.RescheduleAppointment(ctx, booked.ID, patientID, monday, "10:00")
		if err != nil {
			t.Fatalf("RescheduleAppointment: %v", err)
		}
		if moved.Time != "10:00" {
			t.Errorf("expected 10:00, got %s", moved.Time)
		}
	})

	t.Run("Cancel_FreesSlot", func(t *testing.T) {
		if _, err := svc.CancelAppointment(ctx, booked.ID, patientID); err != nil {
			t.Fatalf("CancelAppointment: %v", err)
		}
		if _, err := svc.BookAppointment(ctx, scheduling.BookingRequest{
			DoctorID: doctorID, PatientID: patientID, Date: monday, Time: "10:00", Problem: "back pain again",
		}); err != nil {
			t.Fatalf("rebook cancelled slot: %v", err)
		}
	})

	t.Run("Complete", func(t *testing.T) {
		appts, _, err := svc.ListPatientAppointments(ctx, otherPatient, scheduling.ScopeUpcoming, 10, 0)
		if err != nil || len(appts) != 1 {
			t.Fatalf("ListPatientAppointments: %v (%d)", err, len(appts))
		}
		req := scheduling.CompletionRequest{
			AppointmentID: appts[0].ID,
			DoctorID:      doctorID,
			Diagnosis:     "viral fever",
			Prescription:  "rest, fluids",
		}
		if _, err := svc.CompleteAppointment(ctx, req); err != nil {
			t.Fatalf("CompleteAppointment: %v", err)
		}
		if _, err := svc.CompleteAppointment(ctx, req); !errors.Is(err, scheduling.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState on second completion, got %v", err)
		}

		got, err := svc.GetAppointment(ctx, appts[0].ID)
		if err != nil {
			t.Fatalf("GetAppointment: %v", err)
		}
		if got.Status != scheduling.StatusCompleted || got.Treatment == nil || got.Treatment.Diagnosis != "viral fever" {
			t.Errorf("unexpected completed appointment %+v", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := svc.GetAppointment(ctx, uuid.New()); !errors.Is(err, scheduling.ErrAppointmentNotFound) {
			t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
		}
	})
}

func TestConcurrentBooking_OneWinner(t *testing.T) {
	ctx := context.Background()
	pool := migratedSchema(t, ctx, "race")
	svc := newPGService(pool)
	doctorID := createTestDoctor(t, ctx, pool, "Dr. Race")
	monday := nextWeekday(scheduling.Monday)

	if err := svc.ReplaceWeeklySchedule(ctx, doctorID,
		[]scheduling.Weekday{scheduling.Monday},
		[]scheduling.TimeLabel{"11:00"}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}

	const n = 12
	patients := make([]uuid.UUID, n)
	for i := range patients {
		patients[i] = createTestPatient(t, ctx, pool, "Racer")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
		other     []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := svc.BookAppointment(ctx, scheduling.BookingRequest{
				DoctorID: doctorID, PatientID: patientID, Date: monday, Time: "11:00", Problem: "checkup",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, scheduling.ErrSlotConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(patients[i])
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one booking, got %d", wins)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts, got %d (other errors: %v)", n-1, conflicts, other)
	}

	var count int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM appointment WHERE doctor_id = $1 AND status = 'booked'`, doctorID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one booked row, got %d", count)
	}
}

func TestConcurrentOverrideEdits_Serialised(t *testing.T) {
	ctx := context.Background()
	pool := migratedSchema(t, ctx, "ovr")
	svc := newPGService(pool)
	doctorID := createTestDoctor(t, ctx, pool, "Dr. Overrides")
	monday := nextWeekday(scheduling.Monday)

	if err := svc.ReplaceWeeklySchedule(ctx, doctorID,
		[]scheduling.Weekday{scheduling.Monday},
		[]scheduling.TimeLabel{"09:00", "09:30"}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.SetDailyOverrides(ctx, doctorID, monday, []scheduling.TimeLabel{"09:30", "15:00"})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(errs) != 0 {
		t.Fatalf("expected every edit to succeed, got %v", errs)
	}

	views, err := svc.GetAvailableSlots(ctx, doctorID, monday)
	if err != nil {
		t.Fatalf("GetAvailableSlots: %v", err)
	}
	if got := slotTimes(views); len(got) != 2 || got[0] != "09:30" || got[1] != "15:00" {
		t.Errorf("expected [09:30 15:00], got %v", got)
	}
}

func TestDeleteAppointment_CascadesTreatment(t *testing.T) {
	ctx := context.Background()
	pool := migratedSchema(t, ctx, "del")
	svc := newPGService(pool)
	doctorID := createTestDoctor(t, ctx, pool, "Dr. Delete")
	patientID := createTestPatient(t, ctx, pool, "Pat Delete")
	monday := nextWeekday(scheduling.Monday)

	if err := svc.ReplaceWeeklySchedule(ctx, doctorID,
		[]scheduling.Weekday{scheduling.Monday},
		[]scheduling.TimeLabel{"09:00"}); err != nil {
		t.Fatalf("ReplaceWeeklySchedule: %v", err)
	}
	appt, err := svc.BookAppointment(ctx, scheduling.BookingRequest{
		DoctorID: doctorID, PatientID: patientID, Date: monday, Time: "09:00", Problem: "rash",
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	if _, err := svc.CompleteAppointment(ctx, scheduling.CompletionRequest{
		AppointmentID: appt.ID, DoctorID: doctorID, Diagnosis: "dermatitis",
	}); err != nil {
		t.Fatalf("CompleteAppointment: %v", err)
	}

	history, total, err := svc.ListDoctorAppointments(ctx, doctorID,
		scheduling.DoctorAppointmentFilter{PatientID: patientID}, 10, 0)
	if err != nil || total != 1 || history[0].ID != appt.ID {
		t.Fatalf("ListDoctorAppointments: %v (total %d)", err, total)
	}

	if err := svc.DeleteAppointment(ctx, appt.ID, uuid.New()); !errors.Is(err, scheduling.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteAppointment(ctx, appt.ID, patientID); err != nil {
		t.Fatalf("DeleteAppointment: %v", err)
	}

	var treatments int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM treatment WHERE appointment_id = $1`, appt.ID).Scan(&treatments); err != nil {
		t.Fatalf("count: %v", err)
	}
	if treatments != 0 {
		t.Errorf("expected treatment removed with the appointment, got %d", treatments)
	}
}
