package registration

import (
	"context"
	"io"

	"event-bot/internal/models"
	"event-bot/internal/session"
)

// Action is a button press that accompanies a turn.
type Action int

const (
	ActionNone Action = iota
	ActionConfirm
	ActionEdit
	ActionCancel
)

// Attachment is a file sent by the participant. It is only opened when the
// form is waiting for a receipt.
type Attachment struct {
	Name string
	Size int64 // 0 when unknown
	Open func(ctx context.Context) (io.ReadCloser, error)
}

type Input struct {
	Text   string
	Action Action
	File   *Attachment
}

type Outcome int

const (
	// OutcomeContinue: the answer was accepted and the form moved on.
	OutcomeContinue Outcome = iota
	// OutcomeRetry: the answer was rejected; the step is asked again.
	OutcomeRetry
	OutcomeCommitted
	OutcomeCancelled
	OutcomeAlreadyRegistered
	// OutcomeNoFlow: the participant has no form in progress.
	OutcomeNoFlow
	OutcomeEventClosed
	OutcomeEventNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeRetry:
		return "retry"
	case OutcomeCommitted:
		return "committed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeAlreadyRegistered:
		return "already_registered"
	case OutcomeNoFlow:
		return "no_flow"
	case OutcomeEventClosed:
		return "event_closed"
	case OutcomeEventNotFound:
		return "event_not_found"
	}
	return "unknown"
}

// Problem says why an answer was rejected.
type Problem int

const (
	ProblemNone Problem = iota
	ProblemName
	ProblemNationalCode
	ProblemPhone
	ProblemReceipt
	ProblemReceiptTooLarge
	ProblemConfirmation
)

// Reply describes the result of a turn. Rendering it into chat messages is
// the transport's job.
type Reply struct {
	Outcome Outcome
	// Step is the step the participant is now at (StepNone once the form ended).
	Step    session.Step
	Problem Problem

	Event        models.Event
	Draft        session.Draft
	Availability models.Availability
	Registration models.Registration
}
