package models

import "time"

type Participant struct {
	ID           int64
	ExternalID   int64 // telegram user id; 0 until known
	FirstName    string
	LastName     string
	NationalCode string
	Phone        string
	CreatedAt    time.Time
}

func (p Participant) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type Event struct {
	ID             int64
	Name           string
	Description    string
	Amount         int64
	CardNumber     string
	Capacity       int
	ConfirmedCount int
	Status         EventStatus
	StartsAt       time.Time
	EndsAt         time.Time
	Code           string
	CreatedAt      time.Time
}

// Availability explains whether an event accepts new registrations.
type Availability int

const (
	Open Availability = iota
	ClosedInactive
	ClosedFull
	ClosedExpired
)

// Availability reports the registration gate for the event at now: it must
// be active, not yet ended and below capacity.
func (e Event) Availability(now time.Time) Availability {
	switch e.Status {
	case EventFull:
		return ClosedFull
	case EventExpired:
		return ClosedExpired
	case EventActive:
	default:
		return ClosedInactive
	}
	if !e.EndsAt.IsZero() && !now.Before(e.EndsAt) {
		return ClosedExpired
	}
	if e.ConfirmedCount >= e.Capacity {
		return ClosedFull
	}
	return Open
}

func (e Event) IsOpen(now time.Time) bool {
	return e.Availability(now) == Open
}

// Evidence is the payment proof attached to a registration. At most one of
// FileRef and Text is set.
type Evidence struct {
	FileRef string
	Text    string
}

func (e Evidence) Empty() bool { return e.FileRef == "" && e.Text == "" }

type Registration struct {
	ID            int64
	ParticipantID int64
	EventID       int64
	Status        RegistrationStatus
	Evidence      Evidence
	SubmittedAt   time.Time
	DecidedAt     *time.Time
}

// RegistrationDetail is a registration joined with its participant and event
// name, as shown to admins and written to reports.
type RegistrationDetail struct {
	Registration
	Participant Participant
	EventName   string
}

// RejectedRegistration is the immutable archive copy written on rejection.
type RejectedRegistration struct {
	ID             int64
	RegistrationID int64
	ParticipantID  int64
	EventID        int64
	ExternalID     int64
	FirstName      string
	LastName       string
	NationalCode   string
	Phone          string
	Evidence       Evidence
	Reason         string
	SubmittedAt    time.Time
	RejectedAt     time.Time
}

// Snapshot is a point-in-time read of one event's ledger data for reports.
type Snapshot struct {
	Event    Event
	All      []RegistrationDetail
	Approved []RegistrationDetail
	Rejected []RejectedRegistration
	TakenAt  time.Time
}

type Stats struct {
	Events        int
	ActiveEvents  int
	Participants  int
	Registrations int
	Pending       int
	Approved      int
	Rejected      int
}

type Admin struct {
	TelegramID int64
	Super      bool
	CreatedAt  time.Time
}
