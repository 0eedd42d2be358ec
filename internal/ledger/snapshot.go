package ledger

import (
	"context"
	"database/sql"

	"event-bot/internal/apperr"
	"event-bot/internal/models"
)

func queryRejected(ctx context.Context, tx *sql.Tx, eventID int64) ([]models.RejectedRegistration, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, registration_id, participant_id, event_id, external_id,
       first_name, last_name, national_code, phone, receipt_ref, receipt_text, reason, submitted_at, rejected_at
FROM rejected_registrations WHERE event_id = ? ORDER BY rejected_at ASC, id ASC`, eventID)
	if err != nil {
		return nil, apperr.Storage("list rejected", err)
	}
	defer rows.Close()

	var out []models.RejectedRegistration
	for rows.Next() {
		var (
			r                       models.RejectedRegistration
			submittedAt, rejectedAt int64
		)
		if err := rows.Scan(&r.ID, &r.RegistrationID, &r.ParticipantID, &r.EventID, &r.ExternalID,
			&r.FirstName, &r.LastName, &r.NationalCode, &r.Phone, &r.Evidence.FileRef, &r.Evidence.Text,
			&r.Reason, &submittedAt, &rejectedAt); err != nil {
			return nil, apperr.Storage("list rejected", err)
		}
		r.SubmittedAt = fromMillis(submittedAt)
		r.RejectedAt = fromMillis(rejectedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list rejected", err)
	}
	return out, nil
}

// Snapshot reads an event, all of its registrations and its rejection
// archive in one transaction, so the three views agree with each other.
func (s *Store) Snapshot(ctx context.Context, eventID int64) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.inTx(ctx, "snapshot", func(tx *sql.Tx) error {
		e, err := getEvent(ctx, tx, "id = ?", eventID)
		if err != nil {
			return err
		}
		all, err := queryDetails(ctx, tx, "snapshot",
			detailSelect+` WHERE r.event_id = ? ORDER BY r.submitted_at ASC, r.id ASC`, eventID)
		if err != nil {
			return err
		}
		rejected, err := queryRejected(ctx, tx, eventID)
		if err != nil {
			return err
		}

		snap = models.Snapshot{Event: e, All: all, Rejected: rejected, TakenAt: s.now().UTC()}
		for _, d := range all {
			if d.Status == models.StatusApproved {
				snap.Approved = append(snap.Approved, d)
			}
		}
		return nil
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
    (SELECT COUNT(*) FROM events),
    (SELECT COUNT(*) FROM events WHERE status = 'active'),
    (SELECT COUNT(*) FROM participants),
    (SELECT COUNT(*) FROM registrations),
    (SELECT COUNT(*) FROM registrations WHERE status = 'pending'),
    (SELECT COUNT(*) FROM registrations WHERE status = 'approved'),
    (SELECT COUNT(*) FROM registrations WHERE status = 'rejected')`).
		Scan(&st.Events, &st.ActiveEvents, &st.Participants, &st.Registrations, &st.Pending, &st.Approved, &st.Rejected)
	if err != nil {
		return models.Stats{}, apperr.Storage("stats", err)
	}
	return st, nil
}
