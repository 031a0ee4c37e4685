package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextVisitDateAddsMonths(t *testing.T) {
	next, err := NextVisitDate("2024-06-15", "12")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", next)

	next, err = NextVisitDate("2024-01-31", "1")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", next)

	next, err = NextVisitDate("2024-06-15", IntervalOnRequest)
	require.NoError(t, err)
	assert.Empty(t, next)

	_, err = NextVisitDate("15/06/2024", "6")
	assert.Error(t, err)
}

func TestRecomputeStatus(t *testing.T) {
	today := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	cases := []struct {
		name     string
		d        Deadline
		wantNext string
		want     DeadlineStatus
	}{
		{"overdue", Deadline{LastVisitDate: "2024-06-15", NextVisitInterval: "12"}, "2025-06-15", DeadlineOverdue},
		{"pending", Deadline{LastVisitDate: "2025-01-10", NextVisitInterval: "12"}, "2026-01-10", DeadlinePending},
		{"due today", Deadline{LastVisitDate: "2025-06-01", NextVisitInterval: "1"}, "2025-07-01", DeadlinePending},
		{"custom keeps entered date", Deadline{LastVisitDate: "2020-01-01", NextVisitDate: "2025-09-01", NextVisitInterval: IntervalCustom}, "2025-09-01", DeadlinePending},
		{"on request has no next", Deadline{LastVisitDate: "2020-01-01", NextVisitDate: "2021-01-01", NextVisitInterval: IntervalOnRequest}, "", DeadlinePending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.d
			require.NoError(t, d.Recompute(today))
			assert.Equal(t, tc.wantNext, d.NextVisitDate)
			assert.Equal(t, tc.want, d.Status)
		})
	}
}

func TestMarkCompletedNeverOverdue(t *testing.T) {
	today := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	for _, iv := range []Interval{"1", "3", "6", "12", "24", "36", "60"} {
		d := Deadline{LastVisitDate: "2019-01-01", NextVisitInterval: iv, Status: DeadlineOverdue}
		require.NoError(t, d.MarkCompleted(today))
		assert.Equal(t, "2025-07-01", d.LastVisitDate)
		months, _ := iv.Months()
		assert.Equal(t, AddMonths(today, months).Format(DateLayout), d.NextVisitDate)
		assert.NotEqual(t, DeadlineOverdue, d.Status)
	}

	d := Deadline{LastVisitDate: "2019-01-01", NextVisitInterval: IntervalOnRequest, Status: DeadlineOverdue}
	require.NoError(t, d.MarkCompleted(today))
	assert.Equal(t, DeadlineCompleted, d.Status)
}

func TestMarkCompletedCustomDeadline(t *testing.T) {
	today := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		next string
		want DeadlineStatus
	}{
		{"past visit", "2024-06-01", DeadlineCompleted},
		{"visit today", "2025-07-01", DeadlineCompleted},
		{"no visit", "", DeadlineCompleted},
		{"visit ahead", "2025-09-01", DeadlinePending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Deadline{NextVisitDate: tc.next, NextVisitInterval: IntervalCustom, Status: DeadlineOverdue}
			require.NoError(t, d.MarkCompleted(today))
			assert.Equal(t, tc.want, d.Status)
			assert.Equal(t, tc.next, d.NextVisitDate)

			// the status survives a later refresh on the same day and after
			require.NoError(t, d.Recompute(today.AddDate(0, 0, 1)))
			assert.NotEqual(t, DeadlineOverdue, d.Status)
		})
	}
}

func TestRecomputeReopensCompletedWhenRescheduled(t *testing.T) {
	today := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	d := Deadline{NextVisitDate: "2024-06-01", NextVisitInterval: IntervalCustom, Status: DeadlineCompleted}
	require.NoError(t, d.Recompute(today))
	assert.Equal(t, DeadlineCompleted, d.Status)

	d.NextVisitDate = "2026-01-15"
	require.NoError(t, d.Recompute(today))
	assert.Equal(t, DeadlinePending, d.Status)
}

func TestDVRStatusRoundTrip(t *testing.T) {
	for _, st := range []DVRStatus{DVRBozza, DVRInLavorazione, DVRInRevisione, DVRInApprovazione, DVRApprovato, DVRArchiviato} {
		assert.Equal(t, st, FromBackendStatus(ToBackendStatus(st)), st)
	}
	// FINALIZZATO collapses into approved and reads back as APPROVATO.
	assert.Equal(t, BackendApproved, ToBackendStatus(DVRFinalizzato))
	assert.Equal(t, DVRApprovato, FromBackendStatus(ToBackendStatus(DVRFinalizzato)))
}

func TestFromBackendStatusVariants(t *testing.T) {
	assert.Equal(t, DVRInLavorazione, FromBackendStatus("In-Progress"))
	assert.Equal(t, DVRInLavorazione, FromBackendStatus("IN_PROGRESS"))
	assert.Equal(t, DVRInRevisione, FromBackendStatus("Review"))
	assert.Equal(t, DVRArchiviato, FromBackendStatus(" archived "))
	assert.Equal(t, DVRBozza, FromBackendStatus("something-else"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)
	r, err = ParseRole("Tecnico")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, r)
	_, err = ParseRole("guest")
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	_, err := ParseInterval("12")
	assert.NoError(t, err)
	_, err = ParseInterval("custom")
	assert.NoError(t, err)
	_, err = ParseInterval("weekly")
	assert.Error(t, err)
	_, err = ParseInterval("0")
	assert.Error(t, err)
}
