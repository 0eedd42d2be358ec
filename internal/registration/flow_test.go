package registration

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-bot/internal/apperr"
	"event-bot/internal/ledger"
	"event-bot/internal/models"
	"event-bot/internal/session"
)

const validCode = "0013542419"

var now = time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC)

type fakeLedger struct {
	mu        sync.Mutex
	events    map[int64]models.Event
	active    map[string]bool
	committed []ledger.Submission
	commitErr error
	lookupErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		events: map[int64]models.Event{
			1: {ID: 1, Name: "Cup", Code: "cup", Capacity: 2, Status: models.EventActive, Amount: 100, CardNumber: "6037", EndsAt: now.Add(time.Hour)},
			2: {ID: 2, Name: "Old", Code: "old", Capacity: 2, Status: models.EventActive, EndsAt: now.Add(-time.Hour)},
			3: {ID: 3, Name: "Full", Code: "full", Capacity: 1, ConfirmedCount: 1, Status: models.EventFull, EndsAt: now.Add(time.Hour)},
		},
		active: map[string]bool{},
	}
}

func (l *fakeLedger) GetEvent(_ context.Context, id int64) (models.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.events[id]
	if !ok {
		return models.Event{}, apperr.New(apperr.CodeNotFound, "event not found", nil)
	}
	return e, nil
}

func (l *fakeLedger) GetEventByCode(ctx context.Context, code string) (models.Event, error) {
	l.mu.Lock()
	var id int64
	for _, e := range l.events {
		if e.Code == code {
			id = e.ID
		}
	}
	l.mu.Unlock()
	return l.GetEvent(ctx, id)
}

func (l *fakeLedger) HasActiveRegistration(_ context.Context, code string, eventID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return false, l.lookupErr
	}
	return l.active[code], nil
}

func (l *fakeLedger) CreateRegistration(_ context.Context, sub ledger.Submission) (models.Registration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitErr != nil {
		return models.Registration{}, l.commitErr
	}
	if l.active[sub.NationalCode] {
		return models.Registration{}, apperr.New(apperr.CodeDuplicateActive, "duplicate", nil)
	}
	l.active[sub.NationalCode] = true
	l.committed = append(l.committed, sub)
	return models.Registration{
		ID: int64(len(l.committed)), EventID: sub.EventID, ParticipantID: 77,
		Status: models.StatusPending, Evidence: sub.Evidence, SubmittedAt: sub.SubmittedAt,
	}, nil
}

func (l *fakeLedger) ListByExternalID(_ context.Context, id int64) ([]models.RegistrationDetail, error) {
	return []models.RegistrationDetail{{Participant: models.Participant{ExternalID: id}}}, nil
}

type fakeReceipts struct {
	saved   map[string]string
	deleted []string
	err     error
}

func (r *fakeReceipts) Delete(_ context.Context, ref string) error {
	delete(r.saved, ref)
	r.deleted = append(r.deleted, ref)
	return nil
}

func (r *fakeReceipts) Save(_ context.Context, participantID int64, name string, rd io.Reader) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return "", err
	}
	ref := "ref/" + name
	r.saved[ref] = string(b)
	return ref, nil
}

type fakeNotifier struct {
	got []models.RegistrationDetail
	err error
}

func (n *fakeNotifier) RegistrationSubmitted(_ context.Context, d models.RegistrationDetail) error {
	n.got = append(n.got, d)
	return n.err
}

type harness struct {
	flow     *Flow
	ledger   *fakeLedger
	receipts *fakeReceipts
	notifier *fakeNotifier
	sessions *session.Store
}

func newHarness() *harness {
	h := &harness{
		ledger:   newFakeLedger(),
		receipts: &fakeReceipts{saved: map[string]string{}},
		notifier: &fakeNotifier{},
		sessions: session.New(time.Hour),
	}
	h.flow = New(Deps{
		Sessions:        h.sessions,
		Ledger:          h.ledger,
		Receipts:        h.receipts,
		Notifier:        h.notifier,
		MaxReceiptBytes: 8,
	})
	h.flow.now = func() time.Time { return now }
	return h
}

func (h *harness) say(t *testing.T, pid int64, text string) Reply {
	t.Helper()
	r, err := h.flow.HandleTurn(context.Background(), pid, Input{Text: text})
	require.NoError(t, err)
	return r
}

func (h *harness) press(t *testing.T, pid int64, a Action) Reply {
	t.Helper()
	r, err := h.flow.HandleTurn(context.Background(), pid, Input{Action: a})
	require.NoError(t, err)
	return r
}

// fillToConfirmation walks a fresh form for event 1 up to the confirmation step.
func (h *harness) fillToConfirmation(t *testing.T, pid int64) {
	t.Helper()
	r, err := h.flow.Begin(context.Background(), pid, 1)
	require.NoError(t, err)
	require.Equal(t, session.StepFirstName, r.Step)

	assert.Equal(t, session.StepLastName, h.say(t, pid, " Sara ").Step)
	assert.Equal(t, session.StepNationalCode, h.say(t, pid, "Ahmadi").Step)
	assert.Equal(t, session.StepPhone, h.say(t, pid, "۰۰۱۳۵۴۲۴۱۹").Step)
	r = h.say(t, pid, "+98 912 345 6789")
	assert.Equal(t, session.StepReceipt, r.Step)
	assert.Equal(t, "6037", r.Event.CardNumber)
	r = h.say(t, pid, "paid, tracking 5566")
	require.Equal(t, session.StepConfirmation, r.Step)
	assert.Equal(t, "09123456789", r.Draft.Phone)
}

func TestHappyPathCommitsPending(t *testing.T) {
	h := newHarness()
	h.fillToConfirmation(t, 10)

	r := h.press(t, 10, ActionConfirm)
	assert.Equal(t, OutcomeCommitted, r.Outcome)
	assert.Equal(t, models.StatusPending, r.Registration.Status)

	require.Len(t, h.ledger.committed, 1)
	sub := h.ledger.committed[0]
	assert.Equal(t, ledger.Submission{
		ExternalID: 10, EventID: 1, FirstName: "Sara", LastName: "Ahmadi",
		NationalCode: validCode, Phone: "09123456789",
		Evidence: models.Evidence{Text: "paid, tracking 5566"}, SubmittedAt: now,
	}, sub)

	_, ok := h.sessions.Get(10)
	assert.False(t, ok, "session is cleared after commit")
	require.Len(t, h.notifier.got, 1)
	assert.Equal(t, "Cup", h.notifier.got[0].EventName)
	assert.Equal(t, int64(10), h.notifier.got[0].Participant.ExternalID)
}

func TestMalformedInputRetriesWithoutAdvancing(t *testing.T) {
	h := newHarness()
	_, err := h.flow.Begin(context.Background(), 5, 1)
	require.NoError(t, err)

	r := h.say(t, 5, "   ")
	assert.Equal(t, OutcomeRetry, r.Outcome)
	assert.Equal(t, ProblemName, r.Problem)
	assert.Equal(t, session.StepFirstName, r.Step)

	h.say(t, 5, "Ali")
	h.say(t, 5, "Rezaei")

	r = h.say(t, 5, "1111111111")
	assert.Equal(t, ProblemNationalCode, r.Problem)
	assert.Equal(t, session.StepNationalCode, r.Step)

	h.say(t, 5, validCode)
	r = h.say(t, 5, "12345")
	assert.Equal(t, ProblemPhone, r.Problem)
	assert.Equal(t, session.StepPhone, r.Step)

	h.say(t, 5, "09123456789")
	r = h.say(t, 5, "")
	assert.Equal(t, ProblemReceipt, r.Problem)

	h.say(t, 5, "tx")
	r = h.say(t, 5, "maybe")
	assert.Equal(t, ProblemConfirmation, r.Problem)
	assert.Equal(t, session.StepConfirmation, r.Step)
	assert.Empty(t, h.ledger.committed)
}

func TestCancelFromEveryStep(t *testing.T) {
	for _, steps := range []int{0, 1, 2, 3, 4, 5} {
		h := newHarness()
		_, err := h.flow.Begin(context.Background(), 1, 1)
		require.NoError(t, err)
		answers := []string{"Sara", "Ahmadi", validCode, "09123456789", "tx"}
		for i := 0; i < steps && i < len(answers); i++ {
			h.say(t, 1, answers[i])
		}
		r := h.say(t, 1, "لغو")
		assert.Equal(t, OutcomeCancelled, r.Outcome, "after %d answers", steps)
		assert.Equal(t, session.StepNone, h.flow.InProgress(1))
	}

	h := newHarness()
	_, err := h.flow.Begin(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, h.press(t, 1, ActionCancel).Outcome)
	assert.Equal(t, OutcomeNoFlow, h.say(t, 1, "hello").Outcome)
}

func TestEditRestartsWithEmptyBuffer(t *testing.T) {
	h := newHarness()
	h.fillToConfirmation(t, 3)

	r := h.press(t, 3, ActionEdit)
	assert.Equal(t, OutcomeContinue, r.Outcome)
	assert.Equal(t, session.StepFirstName, r.Step)
	assert.Equal(t, session.Draft{}, r.Draft)

	sess, ok := h.sessions.Get(3)
	require.True(t, ok)
	assert.Equal(t, int64(1), sess.EventID)
}

func TestAlreadyRegisteredEndsFlow(t *testing.T) {
	h := newHarness()
	h.ledger.active[validCode] = true
	_, err := h.flow.Begin(context.Background(), 8, 1)
	require.NoError(t, err)
	h.say(t, 8, "Sara")
	h.say(t, 8, "Ahmadi")

	r := h.say(t, 8, validCode)
	assert.Equal(t, OutcomeAlreadyRegistered, r.Outcome)
	_, ok := h.sessions.Get(8)
	assert.False(t, ok)
}

func TestDuplicateAtCommitEndsFlow(t *testing.T) {
	h := newHarness()
	h.fillToConfirmation(t, 8)
	h.ledger.active[validCode] = true

	r := h.press(t, 8, ActionConfirm)
	assert.Equal(t, OutcomeAlreadyRegistered, r.Outcome)
	assert.Empty(t, h.notifier.got)
}

func TestStorageFailureKeepsConfirmation(t *testing.T) {
	h := newHarness()
	h.fillToConfirmation(t, 4)
	h.ledger.commitErr = apperr.Storage("insert", errors.New("disk full"))

	_, err := h.flow.HandleTurn(context.Background(), 4, Input{Action: ActionConfirm})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeStorage))
	assert.Equal(t, session.StepConfirmation, h.flow.InProgress(4))

	h.ledger.commitErr = nil
	assert.Equal(t, OutcomeCommitted, h.press(t, 4, ActionConfirm).Outcome)
}

func TestLookupFailureKeepsStep(t *testing.T) {
	h := newHarness()
	_, err := h.flow.Begin(context.Background(), 4, 1)
	require.NoError(t, err)
	h.say(t, 4, "Sara")
	h.say(t, 4, "Ahmadi")
	h.ledger.lookupErr = errors.New("db down")

	_, err = h.flow.HandleTurn(context.Background(), 4, Input{Text: validCode})
	require.Error(t, err)
	assert.Equal(t, session.StepNationalCode, h.flow.InProgress(4))
}

func TestNotifierFailureDoesNotFailCommit(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("telegram down")
	h.fillToConfirmation(t, 6)
	assert.Equal(t, OutcomeCommitted, h.press(t, 6, ActionConfirm).Outcome)
}

func TestReceiptFile(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.flow.Begin(ctx, 2, 1)
	require.NoError(t, err)
	for _, a := range []string{"Sara", "Ahmadi", validCode, "09123456789"} {
		h.say(t, 2, a)
	}

	opener := func(body string) func(context.Context) (io.ReadCloser, error) {
		return func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		}
	}

	r, err := h.flow.HandleTurn(ctx, 2, Input{File: &Attachment{Name: "big.jpg", Size: 9, Open: opener("123456789")}})
	require.NoError(t, err)
	assert.Equal(t, ProblemReceiptTooLarge, r.Problem)
	assert.Empty(t, h.receipts.saved)

	h.receipts.err = apperr.New(apperr.CodeValidation, "too large", nil)
	r, err = h.flow.HandleTurn(ctx, 2, Input{File: &Attachment{Name: "unknown.jpg", Open: opener("x")}})
	require.NoError(t, err)
	assert.Equal(t, ProblemReceiptTooLarge, r.Problem)
	h.receipts.err = nil

	r, err = h.flow.HandleTurn(ctx, 2, Input{File: &Attachment{Name: "r.jpg", Size: 3, Open: opener("img")}})
	require.NoError(t, err)
	assert.Equal(t, session.StepConfirmation, r.Step)
	assert.Equal(t, models.Evidence{FileRef: "ref/r.jpg"}, r.Draft.Evidence)
	assert.Equal(t, "img", h.receipts.saved["ref/r.jpg"])
}

func TestFileOutsideReceiptStepIsIgnored(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.flow.Begin(ctx, 2, 1)
	require.NoError(t, err)

	opened := false
	r, err := h.flow.HandleTurn(ctx, 2, Input{File: &Attachment{Name: "a.jpg", Open: func(context.Context) (io.ReadCloser, error) {
		opened = true
		return io.NopCloser(strings.NewReader("")), nil
	}}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, r.Outcome)
	assert.False(t, opened)
}

func TestBeginGate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	r, err := h.flow.Begin(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEventClosed, r.Outcome)
	assert.Equal(t, models.ClosedExpired, r.Availability)

	r, err = h.flow.BeginByCode(ctx, 1, "full")
	require.NoError(t, err)
	assert.Equal(t, models.ClosedFull, r.Availability)

	r, err = h.flow.Begin(ctx, 1, 99)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEventNotFound, r.Outcome)
	assert.Equal(t, 0, h.sessions.Len(), "closed events never create a session")

	r, err = h.flow.BeginByCode(ctx, 1, "cup")
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, r.Outcome)
	assert.Equal(t, 1, h.sessions.Len())
}

func TestEventClosingBeforeCommit(t *testing.T) {
	h := newHarness()
	h.fillToConfirmation(t, 9)

	e := h.ledger.events[1]
	e.Status = models.EventInactive
	h.ledger.events[1] = e

	r := h.press(t, 9, ActionConfirm)
	assert.Equal(t, OutcomeEventClosed, r.Outcome)
	assert.Equal(t, models.ClosedInactive, r.Availability)
	assert.Empty(t, h.ledger.committed)
}

func TestParticipantsDoNotShareForms(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.flow.Begin(ctx, 1, 1)
	require.NoError(t, err)
	_, err = h.flow.Begin(ctx, 2, 1)
	require.NoError(t, err)

	h.say(t, 1, "Sara")
	assert.Equal(t, session.StepLastName, h.flow.InProgress(1))
	assert.Equal(t, session.StepFirstName, h.flow.InProgress(2))
}

func TestStatus(t *testing.T) {
	h := newHarness()
	list, err := h.flow.Status(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(12), list[0].Participant.ExternalID)
}

// toReceiptFile fills a form for event 1 and uploads r.jpg as the receipt.
func (h *harness) toReceiptFile(t *testing.T, pid int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.flow.Begin(ctx, pid, 1)
	require.NoError(t, err)
	for _, a := range []string{"Sara", "Ahmadi", validCode, "09123456789"} {
		h.say(t, pid, a)
	}
	r, err := h.flow.HandleTurn(ctx, pid, Input{File: &Attachment{Name: "r.jpg", Size: 3,
		Open: func(context.Context) (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("img")), nil }}})
	require.NoError(t, err)
	require.Equal(t, session.StepConfirmation, r.Step)
	require.Contains(t, h.receipts.saved, "ref/r.jpg")
}

func TestAbandonedReceiptIsDeleted(t *testing.T) {
	t.Run("edit", func(t *testing.T) {
		h := newHarness()
		h.toReceiptFile(t, 2)
		h.press(t, 2, ActionEdit)
		assert.Equal(t, []string{"ref/r.jpg"}, h.receipts.deleted)
	})
	t.Run("cancel button", func(t *testing.T) {
		h := newHarness()
		h.toReceiptFile(t, 2)
		assert.Equal(t, OutcomeCancelled, h.press(t, 2, ActionCancel).Outcome)
		assert.Equal(t, []string{"ref/r.jpg"}, h.receipts.deleted)
	})
	t.Run("cancel command", func(t *testing.T) {
		h := newHarness()
		h.toReceiptFile(t, 2)
		assert.True(t, h.flow.Cancel(context.Background(), 2))
		assert.Equal(t, []string{"ref/r.jpg"}, h.receipts.deleted)
	})
	t.Run("restart", func(t *testing.T) {
		h := newHarness()
		h.toReceiptFile(t, 2)
		_, err := h.flow.Begin(context.Background(), 2, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"ref/r.jpg"}, h.receipts.deleted)
	})
	t.Run("duplicate at commit", func(t *testing.T) {
		h := newHarness()
		h.toReceiptFile(t, 2)
		h.ledger.active[validCode] = true
		assert.Equal(t, OutcomeAlreadyRegistered, h.press(t, 2, ActionConfirm).Outcome)
		assert.Equal(t, []string{"ref/r.jpg"}, h.receipts.deleted)
	})
	t.Run("evicted", func(t *testing.T) {
		h := newHarness()
		h.toReceiptFile(t, 2)
		assert.Equal(t, 1, h.flow.Sweep(context.Background(), time.Now().Add(2*time.Hour)))
		assert.Equal(t, []string{"ref/r.jpg"}, h.receipts.deleted)
		assert.Equal(t, session.StepNone, h.flow.InProgress(2))
	})
}

func TestCommittedReceiptIsKept(t *testing.T) {
	h := newHarness()
	h.toReceiptFile(t, 2)
	assert.Equal(t, OutcomeCommitted, h.press(t, 2, ActionConfirm).Outcome)
	assert.Empty(t, h.receipts.deleted)
	assert.Contains(t, h.receipts.saved, "ref/r.jpg")
}
