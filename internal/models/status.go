package models

import "fmt"

type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

// Active registrations count against the one-per-event uniqueness rule.
func (s RegistrationStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// CanTransition is the complete registration transition table. Only pending
// registrations may be decided; approved and rejected are terminal.
func (s RegistrationStatus) CanTransition(to RegistrationStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	default:
		return false
	}
}

func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	switch RegistrationStatus(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return RegistrationStatus(s), nil
	}
	return "", fmt.Errorf("unknown registration status %q", s)
}

type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventInactive EventStatus = "inactive"
	EventFull     EventStatus = "full"
	EventExpired  EventStatus = "expired"
)

func ParseEventStatus(s string) (EventStatus, error) {
	switch EventStatus(s) {
	case EventActive, EventInactive, EventFull, EventExpired:
		return EventStatus(s), nil
	}
	return "", fmt.Errorf("unknown event status %q", s)
}
