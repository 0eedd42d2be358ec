// Package report renders an event snapshot as named tables for the
// spreadsheet export and as CSV for downloads.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"event-bot/internal/models"
	"event-bot/internal/util"
)

const (
	TableInfo     = "Event"
	TableAll      = "All registrations"
	TableApproved = "Approved"
	TableRejected = "Rejected"
	TableSummary  = "Summary"
)

const timeLayout = "2006-01-02 15:04"

// Table is a named grid of cells. Data tables carry a header row.
type Table struct {
	Name string
	Rows [][]string
}

var registrationHeader = []string{
	"#", "First name", "Last name", "National code", "Phone",
	"Status", "Submitted", "Decided", "Receipt text", "Receipt file", "Rejection reason",
}

var rejectedHeader = []string{
	"#", "Registration", "First name", "Last name", "National code", "Phone",
	"Submitted", "Rejected", "Receipt text", "Receipt file", "Reason",
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// Tables returns the snapshot as the five export tables, in display order.
func Tables(snap models.Snapshot) []Table {
	reasons := make(map[int64]string, len(snap.Rejected))
	for _, r := range snap.Rejected {
		reasons[r.RegistrationID] = r.Reason
	}
	return []Table{
		infoTable(snap.Event),
		registrationTable(TableAll, snap.All, reasons),
		registrationTable(TableApproved, snap.Approved, reasons),
		rejectedTable(snap.Rejected),
		summaryTable(snap),
	}
}

// Registrations is the all-registrations table on its own, as served for
// CSV download.
func Registrations(snap models.Snapshot) Table {
	return Tables(snap)[1]
}

func infoTable(e models.Event) Table {
	return Table{Name: TableInfo, Rows: [][]string{
		{"Name", e.Name},
		{"Description", e.Description},
		{"Amount", util.FormatAmount(e.Amount)},
		{"Card number", e.CardNumber},
		{"Capacity", strconv.Itoa(e.Capacity)},
		{"Confirmed", strconv.Itoa(e.ConfirmedCount)},
		{"Status", string(e.Status)},
		{"Starts", formatTime(e.StartsAt)},
		{"Ends", formatTime(e.EndsAt)},
		{"Code", e.Code},
		{"Created", formatTime(e.CreatedAt)},
	}}
}

func registrationTable(name string, regs []models.RegistrationDetail, reasons map[int64]string) Table {
	rows := make([][]string, 0, len(regs)+1)
	rows = append(rows, registrationHeader)
	for i, d := range regs {
		decided := ""
		if d.DecidedAt != nil {
			decided = formatTime(*d.DecidedAt)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			d.Participant.FirstName,
			d.Participant.LastName,
			d.Participant.NationalCode,
			d.Participant.Phone,
			string(d.Status),
			formatTime(d.SubmittedAt),
			decided,
			d.Evidence.Text,
			d.Evidence.FileRef,
			reasons[d.ID],
		})
	}
	return Table{Name: name, Rows: rows}
}

func rejectedTable(list []models.RejectedRegistration) Table {
	rows := make([][]string, 0, len(list)+1)
	rows = append(rows, rejectedHeader)
	for i, r := range list {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(r.RegistrationID, 10),
			r.FirstName,
			r.LastName,
			r.NationalCode,
			r.Phone,
			formatTime(r.SubmittedAt),
			formatTime(r.RejectedAt),
			r.Evidence.Text,
			r.Evidence.FileRef,
			r.Reason,
		})
	}
	return Table{Name: TableRejected, Rows: rows}
}

func summaryTable(snap models.Snapshot) Table {
	total := len(snap.All)
	approved := len(snap.Approved)
	rejected := 0
	for _, d := range snap.All {
		if d.Status == models.StatusRejected {
			rejected++
		}
	}
	remaining := snap.Event.Capacity - approved
	if remaining < 0 {
		remaining = 0
	}
	return Table{Name: TableSummary, Rows: [][]string{
		{"Event", snap.Event.Name},
		{"All registrations", strconv.Itoa(total)},
		{"Approved", strconv.Itoa(approved)},
		{"Rejected", strconv.Itoa(rejected)},
		{"Pending", strconv.Itoa(total - approved - rejected)},
		{"Capacity", strconv.Itoa(snap.Event.Capacity)},
		{"Seats left", strconv.Itoa(remaining)},
		{"Generated", formatTime(snap.TakenAt)},
	}}
}

// WriteCSV writes t as UTF-8 CSV with a byte order mark so spreadsheet
// programs detect the encoding of non-Latin names.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("report: write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	return nil
}

// FileName is the download name for an event's CSV.
func FileName(e models.Event) string {
	return fmt.Sprintf("event-%d-%s.csv", e.ID, e.Code)
}
