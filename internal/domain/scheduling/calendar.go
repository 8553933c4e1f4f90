package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// SlotDuration is the fixed width of every bookable slot.
const SlotDuration = 30 * time.Minute

// Weekday is a day of the week. It shares time.Weekday's numbering but
// renders and parses the full English name.
type Weekday time.Weekday

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// Weekdays lists every day in calendar-week order, Monday first.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (d Weekday) String() string { return time.Weekday(d).String() }

func (d Weekday) Valid() bool { return d >= Sunday && d <= Saturday }

// ParseWeekday accepts the English day name or its three-letter abbreviation,
// in any case.
func ParseWeekday(s string) (Weekday, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	for _, d := range Weekdays {
		name := strings.ToLower(d.String())
		if in == name || (len(in) == 3 && in == name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrValidation, s)
}

func (d Weekday) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Weekday) UnmarshalText(b []byte) error {
	w, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*d = w
	return nil
}

// TimeLabel identifies a slot by its start time, formatted "HH:MM".
type TimeLabel string

// ParseTimeLabel canonicalises "H:MM", "HH:MM" and "HH:MM:SS" (zero seconds)
// into a TimeLabel.
func ParseTimeLabel(s string) (TimeLabel, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return "", fmt.Errorf("%w: time %q must fall on a whole minute", ErrValidation, s)
		}
		return labelFromClock(t.Hour(), t.Minute()), nil
	}
	return "", fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrValidation, s)
}

// MustTimeLabel is ParseTimeLabel for constants; it panics on bad input.
func MustTimeLabel(s string) TimeLabel {
	l, err := ParseTimeLabel(s)
	if err != nil {
		panic(err)
	}
	return l
}

func labelFromClock(hour, minute int) TimeLabel {
	return TimeLabel(fmt.Sprintf("%02d:%02d", hour, minute))
}

func (l TimeLabel) String() string { return string(l) }

// Minutes returns the minutes elapsed since midnight.
func (l TimeLabel) Minutes() int {
	hh, mm, _ := strings.Cut(string(l), ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m
}

// Add returns the label d later, wrapping at midnight.
func (l TimeLabel) Add(d time.Duration) TimeLabel {
	total := (l.Minutes() + int(d/time.Minute)) % (24 * 60)
	if total < 0 {
		total += 24 * 60
	}
	return labelFromClock(total/60, total%60)
}

// PgTime converts the label into a Postgres TIME value.
func (l TimeLabel) PgTime() pgtype.Time {
	return pgtype.Time{Microseconds: int64(l.Minutes()) * int64(time.Minute/time.Microsecond), Valid: true}
}

func timeLabelFromPg(t pgtype.Time) TimeLabel {
	minutes := int(t.Microseconds / int64(time.Minute/time.Microsecond))
	return labelFromClock(minutes/60%24, minutes%60)
}

func (l *TimeLabel) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

const dateLayout = "2006-01-02"

// Date is a civil calendar date with no time-of-day or zone.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current date in loc.
func Today(now time.Time, loc *time.Location) Date {
	return DateOf(now.In(loc))
}

// ParseDate parses an ISO "YYYY-MM-DD" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrValidation, s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) Weekday() Weekday { return Weekday(d.t.Weekday()) }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Time() time.Time { return d.t }
func (d Date) String() string { return d.t.Format(dateLayout) }
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
