// Package session keeps the in-progress registration form of every
// participant. Nothing here is durable; a session only becomes a
// registration once the form is committed to the ledger.
package session

import (
	"time"

	"event-bot/internal/models"
)

type Step int

const (
	StepNone Step = iota
	StepFirstName
	StepLastName
	StepNationalCode
	StepPhone
	StepReceipt
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepFirstName:
		return "awaiting_first_name"
	case StepLastName:
		return "awaiting_last_name"
	case StepNationalCode:
		return "awaiting_national_code"
	case StepPhone:
		return "awaiting_phone"
	case StepReceipt:
		return "awaiting_receipt"
	case StepConfirmation:
		return "awaiting_confirmation"
	}
	return "unknown"
}

type Field int

const (
	FieldFirstName Field = iota + 1
	FieldLastName
	FieldNationalCode
	FieldPhone
	FieldReceiptRef
	FieldReceiptText
)

// Draft is the answer buffer of a form in progress.
type Draft struct {
	FirstName    string
	LastName     string
	NationalCode string
	Phone        string
	Evidence     models.Evidence
}

type Session struct {
	ParticipantID int64
	EventID       int64
	Step          Step
	Draft         Draft
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Session) SetStep(step Step) {
	s.Step = step
}

// SetField stores one answer. Receipt fields are exclusive: setting one
// clears the other.
func (s *Session) SetField(f Field, value string) {
	switch f {
	case FieldFirstName:
		s.Draft.FirstName = value
	case FieldLastName:
		s.Draft.LastName = value
	case FieldNationalCode:
		s.Draft.NationalCode = value
	case FieldPhone:
		s.Draft.Phone = value
	case FieldReceiptRef:
		s.Draft.Evidence = models.Evidence{FileRef: value}
	case FieldReceiptText:
		s.Draft.Evidence = models.Evidence{Text: value}
	}
}

// Field returns the stored answer and whether it is set.
func (s *Session) Field(f Field) (string, bool) {
	var v string
	switch f {
	case FieldFirstName:
		v = s.Draft.FirstName
	case FieldLastName:
		v = s.Draft.LastName
	case FieldNationalCode:
		v = s.Draft.NationalCode
	case FieldPhone:
		v = s.Draft.Phone
	case FieldReceiptRef:
		v = s.Draft.Evidence.FileRef
	case FieldReceiptText:
		v = s.Draft.Evidence.Text
	}
	return v, v != ""
}

// Reset clears the answer buffer, keeping the target event.
func (s *Session) Reset() {
	s.Draft = Draft{}
}
