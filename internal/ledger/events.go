package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"event-bot/internal/apperr"
	"event-bot/internal/models"
)

const eventColumns = `id, name, description, amount, card_number, capacity, confirmed_count,
       status, starts_at, ends_at, code, created_at`

// NewEvent is the admin input for CreateEvent.
type NewEvent struct {
	Name        string
	Description string
	Amount      int64
	CardNumber  string
	Capacity    int
	StartsAt    time.Time
	EndsAt      time.Time
}

func (in NewEvent) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.New(apperr.CodeValidation, "event name is required", nil)
	case in.Amount < 0:
		return apperr.New(apperr.CodeValidation, "amount must not be negative", nil)
	case strings.TrimSpace(in.CardNumber) == "":
		return apperr.New(apperr.CodeValidation, "card number is required", nil)
	case in.Capacity <= 0:
		return apperr.New(apperr.CodeValidation, "capacity must be positive", nil)
	case in.StartsAt.IsZero() || in.EndsAt.IsZero():
		return apperr.New(apperr.CodeValidation, "start and end dates are required", nil)
	case !in.EndsAt.After(in.StartsAt):
		return apperr.New(apperr.CodeValidation, "event must end after it starts", nil)
	}
	return nil
}

func newEventCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		e                           models.Event
		status                      string
		startsAt, endsAt, createdAt int64
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Amount, &e.CardNumber, &e.Capacity,
		&e.ConfirmedCount, &status, &startsAt, &endsAt, &e.Code, &createdAt); err != nil {
		return models.Event{}, err
	}
	st, err := models.ParseEventStatus(status)
	if err != nil {
		return models.Event{}, err
	}
	e.Status = st
	e.StartsAt = fromMillis(startsAt)
	e.EndsAt = fromMillis(endsAt)
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}

// CreateEvent stores a new active event with a fresh share code.
func (s *Store) CreateEvent(ctx context.Context, in NewEvent) (models.Event, error) {
	if err := in.validate(); err != nil {
		return models.Event{}, err
	}
	now := toMillis(s.now())

	var id int64
	err := s.inTx(ctx, "create event", func(tx *sql.Tx) error {
		// share codes are random; retry the rare collision
		for attempt := 0; attempt < 3; attempt++ {
			res, err := tx.ExecContext(ctx, `INSERT INTO events
    (name, description, amount, card_number, capacity, status, starts_at, ends_at, code, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, ?)`,
				strings.TrimSpace(in.Name), strings.TrimSpace(in.Description), in.Amount,
				strings.TrimSpace(in.CardNumber), in.Capacity,
				toMillis(in.StartsAt), toMillis(in.EndsAt), newEventCode(), now, now)
			if err != nil {
				if isUniqueViolation(err) {
					continue
				}
				return apperr.Storage("create event", err)
			}
			id, err = res.LastInsertId()
			if err != nil {
				return apperr.Storage("create event", err)
			}
			return nil
		}
		return apperr.Storage("create event", fmt.Errorf("could not allocate a unique code"))
	})
	if err != nil {
		return models.Event{}, err
	}
	return s.GetEvent(ctx, id)
}

func getEvent(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, where string, arg any) (models.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, apperr.New(apperr.CodeNotFound, "event not found", nil)
	}
	if err != nil {
		return models.Event{}, apperr.Storage("get event", err)
	}
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	return getEvent(ctx, s.db, "id = ?", id)
}

// GetEventByCode resolves a deep-link share code.
func (s *Store) GetEventByCode(ctx context.Context, code string) (models.Event, error) {
	return getEvent(ctx, s.db, "code = ?", strings.TrimSpace(code))
}

// ListEvents returns events newest first. With statuses given, only events
// in one of them are returned.
func (s *Store) ListEvents(ctx context.Context, statuses ...models.EventStatus) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("list events", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Storage("list events", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list events", err)
	}
	return out, nil
}

// SetEventActive switches an event between active and inactive. Activating
// an event that is already at capacity leaves it full. Expired events cannot
// be reopened.
func (s *Store) SetEventActive(ctx context.Context, id int64, active bool) (models.Event, error) {
	err := s.inTx(ctx, "set event status", func(tx *sql.Tx) error {
		e, err := getEvent(ctx, tx, "id = ?", id)
		if err != nil {
			return err
		}
		if e.Status == models.EventExpired {
			return apperr.New(apperr.CodeInvalidState, "event has expired", nil)
		}
		next := models.EventInactive
		if active {
			next = models.EventActive
			if e.ConfirmedCount >= e.Capacity {
				next = models.EventFull
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE events SET status = ?, updated_at = ? WHERE id = ?`,
			string(next), toMillis(s.now()), id); err != nil {
			return apperr.Storage("set event status", err)
		}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return s.GetEvent(ctx, id)
}

// ExpireEnded marks every active or full event whose end time is not after
// now as expired and returns how many changed.
func (s *Store) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET status = 'expired', updated_at = ?
WHERE status IN ('active', 'full') AND ends_at <= ?`, toMillis(now), toMillis(now))
	if err != nil {
		return 0, apperr.Storage("expire events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Storage("expire events", err)
	}
	return n, nil
}

// recount sets confirmed_count from the approved registrations and moves
// the event between active and full accordingly.
func recount(ctx context.Context, tx *sql.Tx, eventID int64, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE events
SET confirmed_count = (SELECT COUNT(*) FROM registrations r WHERE r.event_id = events.id AND r.status = 'approved'),
    updated_at = ?
WHERE id = ?`, toMillis(at), eventID); err != nil {
		return apperr.Storage("recount event", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE events
SET status = CASE
    WHEN status = 'active' AND confirmed_count >= capacity THEN 'full'
    WHEN status = 'full' AND confirmed_count < capacity THEN 'active'
    ELSE status END
WHERE id = ?`, eventID); err != nil {
		return apperr.Storage("recount event", err)
	}
	return nil
}
