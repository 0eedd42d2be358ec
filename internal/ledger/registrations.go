package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"event-bot/internal/apperr"
	"event-bot/internal/models"
	"event-bot/internal/validate"
)

const detailSelect = `SELECT r.id, r.participant_id, r.event_id, r.status, r.receipt_ref, r.receipt_text,
       r.submitted_at, r.decided_at,
       p.external_id, p.first_name, p.last_name, p.national_code, p.phone, p.created_at,
       e.name
FROM registrations r
JOIN participants p ON p.id = r.participant_id
JOIN events e ON e.id = r.event_id`

// Submission is a completed registration form ready to be committed.
type Submission struct {
	ExternalID   int64
	EventID      int64
	FirstName    string
	LastName     string
	NationalCode string
	Phone        string
	Evidence     models.Evidence
	SubmittedAt  time.Time
}

func scanDetail(row rowScanner) (models.RegistrationDetail, error) {
	var (
		d                      models.RegistrationDetail
		status                 string
		submittedAt, createdAt int64
		decidedAt              sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.ParticipantID, &d.EventID, &status, &d.Evidence.FileRef, &d.Evidence.Text,
		&submittedAt, &decidedAt,
		&d.Participant.ExternalID, &d.Participant.FirstName, &d.Participant.LastName,
		&d.Participant.NationalCode, &d.Participant.Phone, &createdAt,
		&d.EventName); err != nil {
		return models.RegistrationDetail{}, err
	}
	st, err := models.ParseRegistrationStatus(status)
	if err != nil {
		return models.RegistrationDetail{}, err
	}
	d.Status = st
	d.SubmittedAt = fromMillis(submittedAt)
	d.DecidedAt = nullMillis(decidedAt)
	d.Participant.ID = d.ParticipantID
	d.Participant.CreatedAt = fromMillis(createdAt)
	return d, nil
}

func queryDetails(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, op, query string, args ...any) ([]models.RegistrationDetail, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	var out []models.RegistrationDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, apperr.Storage(op, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return out, nil
}

func getDetail(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id int64) (models.RegistrationDetail, error) {
	d, err := scanDetail(q.QueryRowContext(ctx, detailSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.RegistrationDetail{}, apperr.New(apperr.CodeNotFound, "registration not found", nil)
	}
	if err != nil {
		return models.RegistrationDetail{}, apperr.Storage("get registration", err)
	}
	return d, nil
}

// CreateRegistration commits a form as a pending registration. The
// participant is matched by national code and created on first use; a
// participant that already has a pending or approved registration for the
// event gets DUPLICATE_ACTIVE_REGISTRATION.
func (s *Store) CreateRegistration(ctx context.Context, sub Submission) (models.Registration, error) {
	code, ok := validate.NormalizeNationalCode(sub.NationalCode)
	if !ok {
		return models.Registration{}, apperr.New(apperr.CodeValidation, "invalid national code", nil)
	}
	if sub.Evidence.FileRef != "" && sub.Evidence.Text != "" {
		return models.Registration{}, apperr.New(apperr.CodeValidation, "receipt must be a file or a text, not both", nil)
	}
	if strings.TrimSpace(sub.FirstName) == "" || strings.TrimSpace(sub.LastName) == "" {
		return models.Registration{}, apperr.New(apperr.CodeValidation, "name is required", nil)
	}
	at := sub.SubmittedAt
	if at.IsZero() {
		at = s.now()
	}

	reg := models.Registration{
		EventID:     sub.EventID,
		Status:      models.StatusPending,
		Evidence:    sub.Evidence,
		SubmittedAt: fromMillis(toMillis(at)),
	}
	err := s.inTx(ctx, "create registration", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, sub.EventID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "event not found", nil)
		}
		if err != nil {
			return apperr.Storage("create registration", err)
		}

		// the latest form refreshes contact data; the first chat to register
		// a national code stays linked to it
		if _, err := tx.ExecContext(ctx, `INSERT INTO participants
    (external_id, first_name, last_name, national_code, phone, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (national_code) DO UPDATE SET
    first_name  = excluded.first_name,
    last_name   = excluded.last_name,
    phone       = excluded.phone,
    external_id = CASE WHEN participants.external_id = 0 THEN excluded.external_id ELSE participants.external_id END`,
			sub.ExternalID, sub.FirstName, sub.LastName, code, sub.Phone, toMillis(at)); err != nil {
			return apperr.Storage("upsert participant", err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM participants WHERE national_code = ?`, code).
			Scan(&reg.ParticipantID); err != nil {
			return apperr.Storage("load participant", err)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO registrations
    (participant_id, event_id, status, receipt_ref, receipt_text, submitted_at)
VALUES (?, ?, 'pending', ?, ?, ?)`,
			reg.ParticipantID, sub.EventID, sub.Evidence.FileRef, sub.Evidence.Text, toMillis(at))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.New(apperr.CodeDuplicateActive, "participant already registered for this event", err)
			}
			return apperr.Storage("insert registration", err)
		}
		reg.ID, err = res.LastInsertId()
		if err != nil {
			return apperr.Storage("insert registration", err)
		}
		return nil
	})
	if err != nil {
		return models.Registration{}, err
	}
	return reg, nil
}

// HasActiveRegistration reports whether the national code already holds a
// pending or approved registration for the event.
func (s *Store) HasActiveRegistration(ctx context.Context, nationalCode string, eventID int64) (bool, error) {
	code, ok := validate.NormalizeNationalCode(nationalCode)
	if !ok {
		return false, apperr.New(apperr.CodeValidation, "invalid national code", nil)
	}
	var found bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (
    SELECT 1 FROM registrations r
    JOIN participants p ON p.id = r.participant_id
    WHERE p.national_code = ? AND r.event_id = ? AND r.status IN ('pending', 'approved'))`,
		code, eventID).Scan(&found)
	if err != nil {
		return false, apperr.Storage("check active registration", err)
	}
	return found, nil
}

func (s *Store) GetRegistration(ctx context.Context, id int64) (models.RegistrationDetail, error) {
	return getDetail(ctx, s.db, id)
}

// ListPending returns pending registrations oldest first. eventID 0 lists
// every event; limit <= 0 means no limit.
func (s *Store) ListPending(ctx context.Context, eventID int64, limit int) ([]models.RegistrationDetail, error) {
	query := detailSelect + ` WHERE r.status = 'pending'`
	var args []any
	if eventID != 0 {
		query += ` AND r.event_id = ?`
		args = append(args, eventID)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY r.submitted_at ASC, r.id ASC LIMIT ?`
	args = append(args, limit)
	return queryDetails(ctx, s.db, "list pending", query, args...)
}

// ListByExternalID returns the registrations of the participant linked to
// the chat user, newest first.
func (s *Store) ListByExternalID(ctx context.Context, externalID int64) ([]models.RegistrationDetail, error) {
	return queryDetails(ctx, s.db, "list registrations",
		detailSelect+` WHERE p.external_id = ? ORDER BY r.submitted_at DESC, r.id DESC`, externalID)
}

// Approve moves a pending registration to approved. It fails with
// CAPACITY_REACHED when the event already has as many approvals as seats.
func (s *Store) Approve(ctx context.Context, id int64) (models.RegistrationDetail, error) {
	at := s.now()
	var out models.RegistrationDetail
	err := s.inTx(ctx, "approve registration", func(tx *sql.Tx) error {
		d, err := getDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanTransition(models.StatusApproved) {
			return apperr.New(apperr.CodeInvalidState, "registration already "+string(d.Status), nil)
		}

		var capacity, approved int
		if err := tx.QueryRowContext(ctx, `SELECT capacity,
    (SELECT COUNT(*) FROM registrations WHERE event_id = events.id AND status = 'approved')
FROM events WHERE id = ?`, d.EventID).Scan(&capacity, &approved); err != nil {
			return apperr.Storage("approve registration", err)
		}
		if approved >= capacity {
			return apperr.New(apperr.CodeCapacityReached, "event is full", nil)
		}

		if err := decide(ctx, tx, id, models.StatusApproved, at); err != nil {
			return err
		}
		if err := recount(ctx, tx, d.EventID, at); err != nil {
			return err
		}
		out, err = getDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.RegistrationDetail{}, err
	}
	return out, nil
}

// Reject moves a pending registration to rejected and writes its archive
// copy with the reason in the same transaction.
func (s *Store) Reject(ctx context.Context, id int64, reason string) (models.RegistrationDetail, error) {
	at := s.now()
	var out models.RegistrationDetail
	err := s.inTx(ctx, "reject registration", func(tx *sql.Tx) error {
		d, err := getDetail(ctx, tx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanTransition(models.StatusRejected) {
			return apperr.New(apperr.CodeInvalidState, "registration already "+string(d.Status), nil)
		}
		if err := decide(ctx, tx, id, models.StatusRejected, at); err != nil {
			return err
		}
		p := d.Participant
		if _, err := tx.ExecContext(ctx, `INSERT INTO rejected_registrations
    (registration_id, participant_id, event_id, external_id, first_name, last_name, national_code, phone,
     receipt_ref, receipt_text, reason, submitted_at, rejected_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.ParticipantID, d.EventID, p.ExternalID, p.FirstName, p.LastName, p.NationalCode, p.Phone,
			d.Evidence.FileRef, d.Evidence.Text, strings.TrimSpace(reason),
			toMillis(d.SubmittedAt), toMillis(at)); err != nil {
			return apperr.Storage("archive rejection", err)
		}
		if err := recount(ctx, tx, d.EventID, at); err != nil {
			return err
		}
		out, err = getDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.RegistrationDetail{}, err
	}
	return out, nil
}

// decide is the conditional status write. Zero affected rows means another
// decision got there first.
func decide(ctx context.Context, tx *sql.Tx, id int64, to models.RegistrationStatus, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE registrations SET status = ?, decided_at = ?
WHERE id = ? AND status = 'pending'`, string(to), toMillis(at), id)
	if err != nil {
		return apperr.Storage("decide registration", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("decide registration", err)
	}
	if n == 0 {
		return apperr.New(apperr.CodeInvalidState, "registration is no longer pending", nil)
	}
	return nil
}
