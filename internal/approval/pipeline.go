// Package approval is the admin side of registrations: the pending queue
// and approve/reject decisions, with the participant told about the result.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"event-bot/internal/apperr"
	"event-bot/internal/metrics"
	"event-bot/internal/models"
)

type Decision int

const (
	DecisionApprove Decision = iota + 1
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	}
	return "unknown"
}

type Ledger interface {
	ListPending(ctx context.Context, eventID int64, limit int) ([]models.RegistrationDetail, error)
	GetRegistration(ctx context.Context, id int64) (models.RegistrationDetail, error)
	Approve(ctx context.Context, id int64) (models.RegistrationDetail, error)
	Reject(ctx context.Context, id int64, reason string) (models.RegistrationDetail, error)
}

type Authorizer interface {
	IsAdmin(ctx context.Context, id int64) (bool, error)
}

// Notification is the decision message owed to a participant.
type Notification struct {
	ExternalID     int64
	RegistrationID int64
	Decision       Decision
	EventID        int64
	EventName      string
	Reason         string
}

type Notifier interface {
	NotifyParticipant(ctx context.Context, n Notification) error
}

type Outcome struct {
	Registration models.RegistrationDetail
	Decision     Decision
	Notified     bool
}

type Deps struct {
	Ledger   Ledger
	Auth     Authorizer
	Notifier Notifier         // optional
	Metrics  *metrics.Metrics // optional
	Log      *slog.Logger

	// NotifyTimeout bounds the participant notification. Defaults to 10s.
	NotifyTimeout time.Duration
}

type Pipeline struct {
	ledger        Ledger
	auth          Authorizer
	notifier      Notifier
	metrics       *metrics.Metrics
	log           *slog.Logger
	notifyTimeout time.Duration
}

func New(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	timeout := d.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{
		ledger:        d.Ledger,
		auth:          d.Auth,
		notifier:      d.Notifier,
		metrics:       d.Metrics,
		log:           log.With("component", "approval"),
		notifyTimeout: timeout,
	}
}

func (p *Pipeline) authorize(ctx context.Context, actorID int64) error {
	ok, err := p.auth.IsAdmin(ctx, actorID)
	if err != nil {
		return fmt.Errorf("approval: authorize: %w", err)
	}
	if !ok {
		return apperr.New(apperr.CodePermission, "admin only", nil)
	}
	return nil
}

// ListPending returns the oldest pending registrations first. eventID 0
// covers all events.
func (p *Pipeline) ListPending(ctx context.Context, actorID, eventID int64, limit int) ([]models.RegistrationDetail, error) {
	if err := p.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return p.ledger.ListPending(ctx, eventID, limit)
}

func (p *Pipeline) Review(ctx context.Context, actorID, registrationID int64) (models.RegistrationDetail, error) {
	if err := p.authorize(ctx, actorID); err != nil {
		return models.RegistrationDetail{}, err
	}
	return p.ledger.GetRegistration(ctx, registrationID)
}

// Decide approves or rejects a pending registration. The participant
// notification is best effort: its failure is logged and never undoes the
// decision.
func (p *Pipeline) Decide(ctx context.Context, actorID, registrationID int64, decision Decision, reason string) (Outcome, error) {
	if err := p.authorize(ctx, actorID); err != nil {
		p.metrics.IncDecision(decision.String(), string(apperr.CodeOf(err)))
		return Outcome{}, err
	}

	var (
		d   models.RegistrationDetail
		err error
	)
	switch decision {
	case DecisionApprove:
		d, err = p.ledger.Approve(ctx, registrationID)
	case DecisionReject:
		d, err = p.ledger.Reject(ctx, registrationID, reason)
	default:
		err = apperr.New(apperr.CodeValidation, "unknown decision", nil)
	}
	if err != nil {
		p.metrics.IncDecision(decision.String(), string(apperr.CodeOf(err)))
		if !apperr.Soft(err) {
			p.log.Error("decision failed", "registration_id", registrationID, "decision", decision.String(), "err", err)
		}
		return Outcome{}, err
	}
	p.metrics.IncDecision(decision.String(), "ok")
	p.log.Info("registration decided",
		"registration_id", registrationID, "decision", decision.String(), "admin", actorID, "event_id", d.EventID)

	out := Outcome{Registration: d, Decision: decision}
	out.Notified = p.notify(ctx, Notification{
		ExternalID:     d.Participant.ExternalID,
		RegistrationID: d.ID,
		Decision:       decision,
		EventID:        d.EventID,
		EventName:      d.EventName,
		Reason:         reason,
	})
	return out, nil
}

func (p *Pipeline) notify(ctx context.Context, n Notification) bool {
	if p.notifier == nil || n.ExternalID == 0 {
		return false
	}
	// the decision is already committed; a cancelled request must not skip the message
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.notifyTimeout)
	defer cancel()

	if err := p.notifier.NotifyParticipant(nctx, n); err != nil {
		p.metrics.IncNotifyFailure()
		p.log.Warn("participant notification failed",
			"registration_id", n.RegistrationID, "participant", n.ExternalID, "err", err)
		return false
	}
	return true
}

// Describe turns a pipeline error into the short message shown to the admin.
func Describe(err error) string {
	switch apperr.CodeOf(err) {
	case "":
		return ""
	case apperr.CodeInvalidState:
		return "already processed"
	case apperr.CodeNotFound:
		return "not found"
	case apperr.CodeCapacityReached:
		return "event is at capacity"
	case apperr.CodePermission:
		return "access denied"
	case apperr.CodeValidation:
		return "invalid request"
	}
	return "internal error"
}
