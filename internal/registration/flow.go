// Package registration drives a participant through the registration form,
// one turn at a time, and commits the finished form to the ledger as a
// pending registration.
package registration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"event-bot/internal/apperr"
	"event-bot/internal/ledger"
	"event-bot/internal/metrics"
	"event-bot/internal/models"
	"event-bot/internal/session"
	"event-bot/internal/validate"
)

// Ledger is the part of the ledger the form needs.
type Ledger interface {
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	GetEventByCode(ctx context.Context, code string) (models.Event, error)
	HasActiveRegistration(ctx context.Context, nationalCode string, eventID int64) (bool, error)
	CreateRegistration(ctx context.Context, sub ledger.Submission) (models.Registration, error)
	ListByExternalID(ctx context.Context, externalID int64) ([]models.RegistrationDetail, error)
}

type ReceiptStore interface {
	Save(ctx context.Context, participantID int64, filename string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// SubmissionNotifier is told about every committed registration, typically
// to alert admins.
type SubmissionNotifier interface {
	RegistrationSubmitted(ctx context.Context, d models.RegistrationDetail) error
}

type Deps struct {
	Sessions *session.Store
	Ledger   Ledger
	Receipts ReceiptStore
	Notifier SubmissionNotifier // optional
	Metrics  *metrics.Metrics   // optional
	Log      *slog.Logger

	MaxReceiptBytes int64
}

type Flow struct {
	sessions *session.Store
	ledger   Ledger
	receipts ReceiptStore
	notifier SubmissionNotifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	maxBytes int64
	now      func() time.Time
}

func New(d Deps) *Flow {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Flow{
		sessions: d.Sessions,
		ledger:   d.Ledger,
		receipts: d.Receipts,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      log.With("component", "registration"),
		maxBytes: d.MaxReceiptBytes,
		now:      time.Now,
	}
}

// Begin starts (or restarts) the form for eventID. Closed or unknown events
// never create a session.
func (f *Flow) Begin(ctx context.Context, participantID, eventID int64) (Reply, error) {
	unlock := f.sessions.Lock(participantID)
	defer unlock()

	e, err := f.ledger.GetEvent(ctx, eventID)
	return f.begin(ctx, participantID, e, err)
}

// BeginByCode is Begin for a deep-link share code.
func (f *Flow) BeginByCode(ctx context.Context, participantID int64, code string) (Reply, error) {
	unlock := f.sessions.Lock(participantID)
	defer unlock()

	e, err := f.ledger.GetEventByCode(ctx, code)
	return f.begin(ctx, participantID, e, err)
}

func (f *Flow) begin(ctx context.Context, participantID int64, e models.Event, err error) (Reply, error) {
	if apperr.Is(err, apperr.CodeNotFound) {
		return Reply{Outcome: OutcomeEventNotFound}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("registration: load event: %w", err)
	}
	if av := e.Availability(f.now()); av != models.Open {
		return Reply{Outcome: OutcomeEventClosed, Event: e, Availability: av}, nil
	}

	sess := f.sessions.GetOrCreate(participantID)
	f.discardReceipt(ctx, sess.Draft)
	sess.EventID = e.ID
	sess.Reset()
	sess.SetStep(session.StepFirstName)
	f.sessions.Touch(sess)
	f.metrics.SetLiveSessions(f.sessions.Len())

	return Reply{Outcome: OutcomeContinue, Step: sess.Step, Event: e}, nil
}

// HandleTurn applies one participant message to their form. Malformed
// answers never return an error; they come back as OutcomeRetry.
func (f *Flow) HandleTurn(ctx context.Context, participantID int64, in Input) (reply Reply, err error) {
	start := f.now()
	unlock := f.sessions.Lock(participantID)
	defer unlock()
	defer func() {
		if err == nil {
			f.metrics.ObserveTurn(reply.Outcome.String(), time.Since(start))
		}
	}()

	sess, ok := f.sessions.Get(participantID)
	if !ok || sess.Step == session.StepNone {
		return Reply{Outcome: OutcomeNoFlow}, nil
	}
	if in.Action == ActionCancel || isCancel(in.Text) {
		f.abandon(ctx, sess)
		return Reply{Outcome: OutcomeCancelled}, nil
	}

	reply, err = f.step(ctx, sess, in)
	if err != nil {
		return Reply{}, err
	}
	if reply.Step != session.StepNone {
		f.sessions.Touch(sess)
		reply.Draft = sess.Draft
	}
	return reply, nil
}

func (f *Flow) step(ctx context.Context, sess *session.Session, in Input) (Reply, error) {
	text := strings.TrimSpace(in.Text)
	retry := func(p Problem) (Reply, error) {
		return Reply{Outcome: OutcomeRetry, Step: sess.Step, Problem: p}, nil
	}
	advance := func(field session.Field, value string, next session.Step) (Reply, error) {
		sess.SetField(field, value)
		sess.SetStep(next)
		return Reply{Outcome: OutcomeContinue, Step: next}, nil
	}

	switch sess.Step {
	case session.StepFirstName:
		name, ok := validate.ValidateName(text)
		if !ok {
			return retry(ProblemName)
		}
		return advance(session.FieldFirstName, name, session.StepLastName)

	case session.StepLastName:
		name, ok := validate.ValidateName(text)
		if !ok {
			return retry(ProblemName)
		}
		return advance(session.FieldLastName, name, session.StepNationalCode)

	case session.StepNationalCode:
		code, ok := validate.NormalizeNationalCode(text)
		if !ok {
			return retry(ProblemNationalCode)
		}
		active, err := f.ledger.HasActiveRegistration(ctx, code, sess.EventID)
		if err != nil {
			return Reply{}, fmt.Errorf("registration: check active registration: %w", err)
		}
		if active {
			f.abandon(ctx, sess)
			return Reply{Outcome: OutcomeAlreadyRegistered}, nil
		}
		return advance(session.FieldNationalCode, code, session.StepPhone)

	case session.StepPhone:
		phone, ok := validate.NormalizePhone(text)
		if !ok {
			return retry(ProblemPhone)
		}
		e, err := f.ledger.GetEvent(ctx, sess.EventID)
		if err != nil {
			return Reply{}, fmt.Errorf("registration: load event: %w", err)
		}
		r, err := advance(session.FieldPhone, phone, session.StepReceipt)
		r.Event = e
		return r, err

	case session.StepReceipt:
		if in.File != nil {
			return f.storeReceipt(ctx, sess, in.File)
		}
		if text == "" {
			return retry(ProblemReceipt)
		}
		return advance(session.FieldReceiptText, text, session.StepConfirmation)

	case session.StepConfirmation:
		switch {
		case in.Action == ActionConfirm || isConfirm(text):
			return f.commit(ctx, sess)
		case in.Action == ActionEdit || isEdit(text):
			f.discardReceipt(ctx, sess.Draft)
			sess.Reset()
			sess.SetStep(session.StepFirstName)
			return Reply{Outcome: OutcomeContinue, Step: session.StepFirstName}, nil
		}
		return retry(ProblemConfirmation)
	}
	return Reply{Outcome: OutcomeNoFlow}, nil
}

func (f *Flow) storeReceipt(ctx context.Context, sess *session.Session, file *Attachment) (Reply, error) {
	tooLarge := Reply{Outcome: OutcomeRetry, Step: sess.Step, Problem: ProblemReceiptTooLarge}
	if f.maxBytes > 0 && file.Size > f.maxBytes {
		return tooLarge, nil
	}
	if file.Open == nil {
		return Reply{Outcome: OutcomeRetry, Step: sess.Step, Problem: ProblemReceipt}, nil
	}

	rc, err := file.Open(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("registration: open receipt: %w", err)
	}
	defer rc.Close()

	ref, err := f.receipts.Save(ctx, sess.ParticipantID, file.Name, rc)
	if apperr.Is(err, apperr.CodeValidation) {
		return tooLarge, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("registration: save receipt: %w", err)
	}
	sess.SetField(session.FieldReceiptRef, ref)
	sess.SetStep(session.StepConfirmation)
	return Reply{Outcome: OutcomeContinue, Step: session.StepConfirmation}, nil
}

func (f *Flow) commit(ctx context.Context, sess *session.Session) (Reply, error) {
	e, err := f.ledger.GetEvent(ctx, sess.EventID)
	if err != nil && !apperr.Is(err, apperr.CodeNotFound) {
		return Reply{}, fmt.Errorf("registration: load event: %w", err)
	}
	if err != nil {
		f.abandon(ctx, sess)
		return Reply{Outcome: OutcomeEventNotFound}, nil
	}
	if av := e.Availability(f.now()); av != models.Open {
		f.abandon(ctx, sess)
		return Reply{Outcome: OutcomeEventClosed, Event: e, Availability: av}, nil
	}

	d := sess.Draft
	reg, err := f.ledger.CreateRegistration(ctx, ledger.Submission{
		ExternalID:   sess.ParticipantID,
		EventID:      sess.EventID,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		NationalCode: d.NationalCode,
		Phone:        d.Phone,
		Evidence:     d.Evidence,
		SubmittedAt:  f.now(),
	})
	if apperr.Is(err, apperr.CodeDuplicateActive) {
		f.abandon(ctx, sess)
		return Reply{Outcome: OutcomeAlreadyRegistered, Event: e}, nil
	}
	if err != nil {
		// the session stays at confirmation so the participant can retry
		return Reply{}, fmt.Errorf("registration: commit: %w", err)
	}

	f.end(sess.ParticipantID)
	f.metrics.IncSubmitted(strconv.FormatInt(e.ID, 10))
	f.log.Info("registration submitted",
		"registration_id", reg.ID, "event_id", e.ID, "participant", sess.ParticipantID)

	if f.notifier != nil {
		detail := models.RegistrationDetail{
			Registration: reg,
			Participant: models.Participant{
				ID:           reg.ParticipantID,
				ExternalID:   sess.ParticipantID,
				FirstName:    d.FirstName,
				LastName:     d.LastName,
				NationalCode: d.NationalCode,
				Phone:        d.Phone,
			},
			EventName: e.Name,
		}
		if err := f.notifier.RegistrationSubmitted(ctx, detail); err != nil {
			f.log.Warn("admin alert failed", "registration_id", reg.ID, "err", err)
		}
	}
	return Reply{Outcome: OutcomeCommitted, Event: e, Draft: d, Registration: reg}, nil
}

func (f *Flow) end(participantID int64) {
	f.sessions.Clear(participantID)
	f.metrics.SetLiveSessions(f.sessions.Len())
}

// abandon ends a form that will never be committed, removing its receipt.
func (f *Flow) abandon(ctx context.Context, sess *session.Session) {
	f.discardReceipt(ctx, sess.Draft)
	f.end(sess.ParticipantID)
}

// discardReceipt removes an uploaded receipt no registration refers to.
func (f *Flow) discardReceipt(ctx context.Context, d session.Draft) {
	ref := d.Evidence.FileRef
	if ref == "" {
		return
	}
	if err := f.receipts.Delete(ctx, ref); err != nil {
		f.log.Warn("delete receipt", "ref", ref, "err", err)
	}
}

// Cancel drops any form in progress. It reports whether there was one.
func (f *Flow) Cancel(ctx context.Context, participantID int64) bool {
	unlock := f.sessions.Lock(participantID)
	defer unlock()
	sess, ok := f.sessions.Get(participantID)
	if !ok {
		return false
	}
	f.abandon(ctx, sess)
	return sess.Step != session.StepNone
}

// Sweep evicts forms idle past the session TTL and removes their receipts.
// It returns how many forms were evicted.
func (f *Flow) Sweep(ctx context.Context, now time.Time) int {
	evicted := f.sessions.Sweep(now)
	for _, sess := range evicted {
		f.discardReceipt(ctx, sess.Draft)
	}
	if len(evicted) > 0 {
		f.metrics.AddEvicted(len(evicted))
	}
	f.metrics.SetLiveSessions(f.sessions.Len())
	return len(evicted)
}

// Status lists the registrations linked to the participant, newest first.
func (f *Flow) Status(ctx context.Context, participantID int64) ([]models.RegistrationDetail, error) {
	list, err := f.ledger.ListByExternalID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("registration: status: %w", err)
	}
	return list, nil
}

// InProgress reports the participant's current step, StepNone if idle.
func (f *Flow) InProgress(participantID int64) session.Step {
	unlock := f.sessions.Lock(participantID)
	defer unlock()
	if sess, ok := f.sessions.Get(participantID); ok {
		return sess.Step
	}
	return session.StepNone
}

func isCancel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "/cancel", "لغو", "انصراف":
		return true
	}
	return false
}

func isConfirm(text string) bool {
	switch strings.ToLower(text) {
	case "confirm", "yes", "تایید", "تایید میکنم":
		return true
	}
	return false
}

func isEdit(text string) bool {
	switch strings.ToLower(text) {
	case "edit", "ویرایش":
		return true
	}
	return false
}
