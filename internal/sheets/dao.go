package sheets

import (
	"context"
	"fmt"
	"strings"

	"event-bot/internal/models"
	"event-bot/internal/report"
)

// SheetTitle is the tab that holds one table of one event.
func SheetTitle(eventID int64, table string) string {
	return fmt.Sprintf("E%d %s", eventID, table)
}

func a1(title, cell string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cell
}

// ExportSnapshot writes every report table of the snapshot to its own tab,
// creating missing tabs and replacing previous contents.
func (c *Client) ExportSnapshot(ctx context.Context, snap models.Snapshot) error {
	existing, err := c.api.SheetTitles(ctx)
	if err != nil {
		return fmt.Errorf("sheets: list tabs: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}

	for _, table := range report.Tables(snap) {
		title := SheetTitle(snap.Event.ID, table.Name)
		if !have[title] {
			if err := c.api.AddSheet(ctx, title); err != nil {
				return fmt.Errorf("sheets: add tab %q: %w", title, err)
			}
		}
		if err := c.api.Clear(ctx, a1(title, "A:Z")); err != nil {
			return fmt.Errorf("sheets: clear %q: %w", title, err)
		}
		if err := c.api.Update(ctx, a1(title, "A1"), toValues(table.Rows)); err != nil {
			return fmt.Errorf("sheets: write %q: %w", title, err)
		}
	}
	return nil
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		vals := make([]interface{}, len(row))
		for j, cell := range row {
			vals[j] = cell
		}
		out[i] = vals
	}
	return out
}
