package domain

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the wire format of visit dates.
const DateLayout = "2006-01-02"

// Interval is the visit recurrence: a number of months, on_request, or custom
// (next visit entered by hand).
type Interval string

const (
	IntervalOnRequest Interval = "on_request"
	IntervalCustom    Interval = "custom"
)

// Intervals lists the values offered when scheduling a deadline.
var Intervals = []Interval{"1", "3", "6", "12", "24", "36", "60", IntervalOnRequest, IntervalCustom}

type DeadlineStatus string

const (
	DeadlinePending   DeadlineStatus = "pending"
	DeadlineOverdue   DeadlineStatus = "overdue"
	DeadlineCompleted DeadlineStatus = "completed"
)

// Months returns the interval length. ok is false for on_request and custom.
func (i Interval) Months() (int, bool) {
	n, err := strconv.Atoi(string(i))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Derived reports whether next_visit_date is computed from the interval.
func (i Interval) Derived() bool {
	_, ok := i.Months()
	return ok
}

func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if iv == IntervalOnRequest || iv == IntervalCustom || iv.Derived() {
		return iv, nil
	}
	return "", fmt.Errorf("invalid visit interval %q", s)
}

// AddMonths adds n calendar months, clamping to the last day of the target
// month (31 Jan + 1 month = 28/29 Feb).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// NextVisitDate derives the next visit from the last one. It returns "" when
// the interval is not a month count or the last visit is missing.
func NextVisitDate(lastVisit string, interval Interval) (string, error) {
	months, ok := interval.Months()
	if !ok || lastVisit == "" {
		return "", nil
	}
	last, err := time.Parse(DateLayout, lastVisit)
	if err != nil {
		return "", fmt.Errorf("invalid last_visit_date %q: %w", lastVisit, err)
	}
	return AddMonths(last, months).Format(DateLayout), nil
}

// StatusAt returns overdue iff next_visit_date is strictly before today.
func StatusAt(nextVisit string, today time.Time) DeadlineStatus {
	if nextVisit == "" {
		return DeadlinePending
	}
	next, err := time.Parse(DateLayout, nextVisit)
	if err != nil {
		return DeadlinePending
	}
	if next.Before(truncateDay(today)) {
		return DeadlineOverdue
	}
	return DeadlinePending
}

// Recompute refreshes the derived fields. Custom deadlines keep the entered
// next_visit_date; on_request deadlines have none. A completed status is kept
// until a later next visit is scheduled.
func (d *Deadline) Recompute(today time.Time) error {
	switch {
	case d.NextVisitInterval == IntervalOnRequest:
		d.NextVisitDate = ""
	case d.NextVisitInterval.Derived():
		next, err := NextVisitDate(d.LastVisitDate, d.NextVisitInterval)
		if err != nil {
			return err
		}
		d.NextVisitDate = next
	}
	if d.Status == DeadlineCompleted && !scheduledAfter(d.NextVisitDate, today) {
		return nil
	}
	d.Status = StatusAt(d.NextVisitDate, today)
	return nil
}

// MarkCompleted records a visit today and schedules the next one. Custom and
// on_request deadlines keep their next visit untouched: they stay pending
// when it is still ahead and are completed otherwise.
func (d *Deadline) MarkCompleted(today time.Time) error {
	d.LastVisitDate = truncateDay(today).Format(DateLayout)
	if !d.NextVisitInterval.Derived() {
		d.Status = DeadlineCompleted
		if scheduledAfter(d.NextVisitDate, today) {
			d.Status = DeadlinePending
		}
		return nil
	}
	next, err := NextVisitDate(d.LastVisitDate, d.NextVisitInterval)
	if err != nil {
		return err
	}
	d.NextVisitDate = next
	d.Status = StatusAt(next, today)
	return nil
}

// scheduledAfter reports whether nextVisit is a valid date after today.
func scheduledAfter(nextVisit string, today time.Time) bool {
	next, err := time.Parse(DateLayout, nextVisit)
	return err == nil && next.After(truncateDay(today))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
