package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAvailability(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	base := Event{
		Capacity: 2,
		Status:   EventActive,
		StartsAt: now.Add(24 * time.Hour),
		EndsAt:   now.Add(48 * time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(e *Event)
		want   Availability
	}{
		{"open", func(e *Event) {}, Open},
		{"inactive", func(e *Event) { e.Status = EventInactive }, ClosedInactive},
		{"full status", func(e *Event) { e.Status = EventFull }, ClosedFull},
		{"expired status", func(e *Event) { e.Status = EventExpired }, ClosedExpired},
		{"ended", func(e *Event) { e.EndsAt = now }, ClosedExpired},
		{"at capacity", func(e *Event) { e.ConfirmedCount = 2 }, ClosedFull},
		{"unknown status", func(e *Event) { e.Status = "draft" }, ClosedInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base
			tt.mutate(&ev)
			assert.Equal(t, tt.want, ev.Availability(now))
			assert.Equal(t, tt.want == Open, ev.IsOpen(now))
		})
	}
}

func TestRegistrationTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusApproved))
	assert.True(t, StatusPending.CanTransition(StatusRejected))
	assert.False(t, StatusPending.CanTransition(StatusPending))
	for _, from := range []RegistrationStatus{StatusApproved, StatusRejected} {
		for _, to := range []RegistrationStatus{StatusPending, StatusApproved, StatusRejected} {
			assert.False(t, from.CanTransition(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusApproved.Active())
	assert.False(t, StatusRejected.Active())
}

func TestParseStatuses(t *testing.T) {
	s, err := ParseRegistrationStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)
	_, err = ParseRegistrationStatus("APPROVED")
	require.Error(t, err)

	e, err := ParseEventStatus("full")
	require.NoError(t, err)
	assert.Equal(t, EventFull, e)
	_, err = ParseEventStatus("")
	require.Error(t, err)
}
