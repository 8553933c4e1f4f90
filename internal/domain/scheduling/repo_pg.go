package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/clinicflow/scheduler/internal/platform/db"
)

// =========== Weekly Availability Repository ===========

type weeklyRepoPG struct{ pool db.Querier }

func NewWeeklyAvailabilityRepoPG(pool db.Querier) WeeklyAvailabilityRepository {
	return &weeklyRepoPG{pool: pool}
}

func (r *weeklyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const weeklyCols = `id, doctor_id, weekday, start_time, end_time`

func scanWeekly(row pgx.Row) (*WeeklyAvailability, error) {
	var (
		w          WeeklyAvailability
		day        string
		start, end pgtype.Time
	)
	if err := row.Scan(&w.ID, &w.DoctorID, &day, &start, &end); err != nil {
		return nil, err
	}
	wd, err := ParseWeekday(day)
	if err != nil {
		return nil, fmt.Errorf("stored weekday: %w", err)
	}
	w.Weekday = wd
	w.StartTime = timeLabelFromPg(start)
	w.EndTime = timeLabelFromPg(end)
	return &w, nil
}

func (r *weeklyRepoPG) list(ctx context.Context, op, query string, args ...any) ([]*WeeklyAvailability, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgErr(op, err)
	}
	defer rows.Close()
	var items []*WeeklyAvailability
	for rows.Next() {
		w, err := scanWeekly(rows)
		if err != nil {
			return nil, translatePgErr(op, err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgErr(op, err)
	}
	return items, nil
}

func (r *weeklyRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*WeeklyAvailability, error) {
	items, err := r.list(ctx, "list weekly availability",
		`SELECT `+weeklyCols+` FROM weekly_availability WHERE doctor_id = $1 ORDER BY start_time`, doctorID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return weekdayOrder(items[i].Weekday) < weekdayOrder(items[j].Weekday)
	})
	return items, nil
}

func (r *weeklyRepoPG) ListByDoctorAndWeekday(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]*WeeklyAvailability, error) {
	return r.list(ctx, "list weekly availability",
		`SELECT `+weeklyCols+` FROM weekly_availability WHERE doctor_id = $1 AND weekday = $2 ORDER BY start_time`,
		doctorID, day.String())
}

// lockDoctorSchedule serialises schedule writers of one doctor until the
// surrounding transaction ends.
func lockDoctorSchedule(ctx context.Context, q db.Querier, doctorID uuid.UUID) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "doctor_schedule:"+doctorID.String())
	return err
}

func (r *weeklyRepoPG) ReplaceForDoctor(ctx context.Context, doctorID uuid.UUID, rows []*WeeklyAvailability) error {
	const op = "replace weekly availability"
	if err := lockDoctorSchedule(ctx, r.conn(ctx), doctorID); err != nil {
		return translatePgErr(op, err)
	}
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM weekly_availability WHERE doctor_id = $1`, doctorID); err != nil {
		return translatePgErr(op, err)
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(rows))
	days := make([]string, len(rows))
	starts := make([]pgtype.Time, len(rows))
	ends := make([]pgtype.Time, len(rows))
	for i, w := range rows {
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		w.DoctorID = doctorID
		ids[i], days[i], starts[i], ends[i] = w.ID, w.Weekday.String(), w.StartTime.PgTime(), w.EndTime.PgTime()
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO weekly_availability (id, doctor_id, weekday, start_time, end_time)
		SELECT u.id, $1, u.weekday, u.start_time, u.end_time
		FROM unnest($2::uuid[], $3::text[], $4::time[], $5::time[]) AS u(id, weekday, start_time, end_time)`,
		doctorID, ids, days, starts, ends)
	return translatePgErr(op, err)
}

// weekdayOrder ranks Monday first.
func weekdayOrder(d Weekday) int { return (int(d) + 6) % 7 }

// =========== Override Repository ===========

type overrideRepoPG struct{ pool db.Querier }

func NewOverrideRepoPG(pool db.Querier) OverrideRepository { return &overrideRepoPG{pool: pool} }

func (r *overrideRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const overrideCols = `id, doctor_id, override_date, start_time, end_time, is_available`

func scanOverride(row pgx.Row) (*AvailabilityOverride, error) {
	var (
		o          AvailabilityOverride
		date       time.Time
		start, end pgtype.Time
	)
	if err := row.Scan(&o.ID, &o.DoctorID, &date, &start, &end, &o.IsAvailable); err != nil {
		return nil, err
	}
	o.Date = DateOf(date)
	o.StartTime = timeLabelFromPg(start)
	o.EndTime = timeLabelFromPg(end)
	return &o, nil
}

func (r *overrideRepoPG) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date Date) ([]*AvailabilityOverride, error) {
	const op = "list availability overrides"
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+overrideCols+` FROM availability_override WHERE doctor_id = $1 AND override_date = $2 ORDER BY start_time`,
		doctorID, date.Time())
	if err != nil {
		return nil, translatePgErr(op, err)
	}
	defer rows.Close()
	var items []*AvailabilityOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, translatePgErr(op, err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgErr(op, err)
	}
	return items, nil
}

func (r *overrideRepoPG) ReplaceForDate(ctx context.Context, doctorID uuid.UUID, date Date, rows []*AvailabilityOverride) error {
	const op = "replace availability overrides"
	if err := lockDoctorSchedule(ctx, r.conn(ctx), doctorID); err != nil {
		return translatePgErr(op, err)
	}
	if _, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM availability_override WHERE doctor_id = $1 AND override_date = $2`,
		doctorID, date.Time()); err != nil {
		return translatePgErr(op, err)
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(rows))
	starts := make([]pgtype.Time, len(rows))
	ends := make([]pgtype.Time, len(rows))
	avail := make([]bool, len(rows))
	for i, o := range rows {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.DoctorID, o.Date = doctorID, date
		ids[i], starts[i], ends[i], avail[i] = o.ID, o.StartTime.PgTime(), o.EndTime.PgTime(), o.IsAvailable
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_override (id, doctor_id, override_date, start_time, end_time, is_available)
		SELECT u.id, $1, $2, u.start_time, u.end_time, u.is_available
		FROM unnest($3::uuid[], $4::time[], $5::time[], $6::bool[]) AS u(id, start_time, end_time, is_available)`,
		doctorID, date.Time(), ids, starts, ends, avail)
	return translatePgErr(op, err)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool db.Querier }

func NewAppointmentRepoPG(pool db.Querier) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, doctor_id, patient_id, appt_date, appt_time, problem, status,
	remarks, rating, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		date   time.Time
		at     pgtype.Time
		status string
	)
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &date, &at, &a.Problem, &status,
		&a.Remarks, &a.Rating, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Date = DateOf(date)
	a.Time = timeLabelFromPg(at)
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusBooked
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, appt_date, appt_time, problem, status,
			remarks, rating, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.DoctorID, a.PatientID, a.Date.Time(), a.Time.PgTime(), a.Problem, string(a.Status),
		a.Remarks, a.Rating, a.CreatedAt, a.UpdatedAt)
	return translatePgErr("create appointment", err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		return nil, translatePgErr("get appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translatePgErr("lock appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) ListBookedTimes(ctx context.Context, doctorID uuid.UUID, date Date) ([]TimeLabel, error) {
	const op = "list booked times"
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT appt_time FROM appointment WHERE doctor_id = $1 AND appt_date = $2 AND status = $3 ORDER BY appt_time`,
		doctorID, date.Time(), string(StatusBooked))
	if err != nil {
		return nil, translatePgErr(op, err)
	}
	defer rows.Close()
	var labels []TimeLabel
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, translatePgErr(op, err)
		}
		labels = append(labels, timeLabelFromPg(t))
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgErr(op, err)
	}
	return labels, nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return translatePgErr("update appointment status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s is not %s", ErrInvalidState, id, from)
	}
	return nil
}

func (r *appointmentRepoPG) Move(ctx context.Context, id uuid.UUID, date Date, t TimeLabel) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET appt_date = $2, appt_time = $3, updated_at = NOW() WHERE id = $1 AND status = $4`,
		id, date.Time(), t.PgTime(), string(StatusBooked))
	if err != nil {
		return translatePgErr("move appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s is not booked", ErrInvalidState, id)
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return translatePgErr("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) page(ctx context.Context, op, where string, order string, args []any, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, translatePgErr(op, err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM appointment WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		apptCols, where, order, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, translatePgErr(op, err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, translatePgErr(op, err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, translatePgErr(op, err)
	}
	return items, total, nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, scope PatientScope, today Date, limit, offset int) ([]*Appointment, int, error) {
	where, order := `patient_id = $1 AND appt_date >= $2`, `appt_date, appt_time`
	if scope == ScopePast {
		where, order = `patient_id = $1 AND appt_date < $2`, `appt_date DESC, appt_time DESC`
	}
	return r.page(ctx, "list patient appointments", where, order, []any{patientID, today.Time()}, limit, offset)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, filter DoctorAppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := `doctor_id = $1`
	args := []any{doctorID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.PatientID != uuid.Nil {
		args = append(args, filter.PatientID)
		where += fmt.Sprintf(` AND patient_id = $%d`, len(args))
	}
	return r.page(ctx, "list doctor appointments", where, `appt_date DESC, appt_time DESC`, args, limit, offset)
}

// =========== Treatment Repository ===========

type treatmentRepoPG struct{ pool db.Querier }

func NewTreatmentRepoPG(pool db.Querier) TreatmentRepository { return &treatmentRepoPG{pool: pool} }

func (r *treatmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO treatment (id, appointment_id, diagnosis, prescription, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.AppointmentID, t.Diagnosis, t.Prescription, t.Notes, t.CreatedAt)
	return translatePgErr("create treatment", err)
}

func (r *treatmentRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Treatment, error) {
	var (
		t                   Treatment
		prescription, notes *string
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, appointment_id, diagnosis, prescription, notes, created_at
		FROM treatment WHERE appointment_id = $1`, appointmentID).
		Scan(&t.ID, &t.AppointmentID, &t.Diagnosis, &prescription, &notes, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translatePgErr("get treatment", err)
	}
	if prescription != nil {
		t.Prescription = *prescription
	}
	if notes != nil {
		t.Notes = *notes
	}
	return &t, nil
}
