// Package access answers who may act as an admin. Super admins are fixed by
// configuration; plain admins come from configuration and the ledger.
package access

import (
	"context"

	"event-bot/internal/apperr"
	"event-bot/internal/models"
)

// AdminSource is the ledger side of the admin list.
type AdminSource interface {
	GetAdmin(ctx context.Context, telegramID int64) (models.Admin, error)
}

type Checker struct {
	super  map[int64]bool
	static map[int64]bool
	admins AdminSource
}

func NewChecker(superIDs, adminIDs []int64, admins AdminSource) *Checker {
	c := &Checker{super: map[int64]bool{}, static: map[int64]bool{}, admins: admins}
	for _, id := range superIDs {
		c.super[id] = true
	}
	for _, id := range adminIDs {
		c.static[id] = true
	}
	return c
}

func (c *Checker) IsSuperAdmin(_ context.Context, id int64) bool {
	return c.super[id]
}

// IsAdmin is true for super admins, configured admins and admins stored in
// the ledger. Ledger errors other than not-found are returned.
func (c *Checker) IsAdmin(ctx context.Context, id int64) (bool, error) {
	if c.super[id] || c.static[id] {
		return true, nil
	}
	if c.admins == nil {
		return false, nil
	}
	_, err := c.admins.GetAdmin(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case apperr.Is(err, apperr.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}
