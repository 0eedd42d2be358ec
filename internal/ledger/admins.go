package ledger

import (
	"context"
	"database/sql"
	"errors"

	"event-bot/internal/apperr"
	"event-bot/internal/models"
)

// AddAdmin grants admin rights to a chat user, updating the super flag if
// the user is already an admin.
func (s *Store) AddAdmin(ctx context.Context, telegramID int64, super bool) error {
	if telegramID == 0 {
		return apperr.New(apperr.CodeValidation, "admin id is required", nil)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO admins (telegram_id, is_super, created_at) VALUES (?, ?, ?)
ON CONFLICT (telegram_id) DO UPDATE SET is_super = excluded.is_super`,
		telegramID, super, toMillis(s.now()))
	if err != nil {
		return apperr.Storage("add admin", err)
	}
	return nil
}

func (s *Store) RemoveAdmin(ctx context.Context, telegramID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return apperr.Storage("remove admin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("remove admin", err)
	}
	if n == 0 {
		return apperr.New(apperr.CodeNotFound, "admin not found", nil)
	}
	return nil
}

// GetAdmin returns the stored admin or NOT_FOUND.
func (s *Store) GetAdmin(ctx context.Context, telegramID int64) (models.Admin, error) {
	var (
		a         models.Admin
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT telegram_id, is_super, created_at FROM admins WHERE telegram_id = ?`,
		telegramID).Scan(&a.TelegramID, &a.Super, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Admin{}, apperr.New(apperr.CodeNotFound, "admin not found", nil)
	}
	if err != nil {
		return models.Admin{}, apperr.Storage("get admin", err)
	}
	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_id, is_super, created_at FROM admins ORDER BY created_at, telegram_id`)
	if err != nil {
		return nil, apperr.Storage("list admins", err)
	}
	defer rows.Close()

	var out []models.Admin
	for rows.Next() {
		var (
			a         models.Admin
			createdAt int64
		)
		if err := rows.Scan(&a.TelegramID, &a.Super, &createdAt); err != nil {
			return nil, apperr.Storage("list admins", err)
		}
		a.CreatedAt = fromMillis(createdAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list admins", err)
	}
	return out, nil
}
