package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-bot/internal/models"
)

func sampleSnapshot() models.Snapshot {
	at := time.Date(2026, time.May, 1, 8, 30, 0, 0, time.UTC)
	decided := at.Add(time.Hour)
	approved := models.RegistrationDetail{
		Registration: models.Registration{ID: 1, Status: models.StatusApproved, SubmittedAt: at, DecidedAt: &decided,
			Evidence: models.Evidence{FileRef: "5/a.jpg"}},
		Participant: models.Participant{FirstName: "Sara", LastName: "Ahmadi", NationalCode: "0013542419", Phone: "09123456789"},
	}
	rejected := models.RegistrationDetail{
		Registration: models.Registration{ID: 2, Status: models.StatusRejected, SubmittedAt: at, DecidedAt: &decided,
			Evidence: models.Evidence{Text: "tx 12"}},
		Participant: models.Participant{FirstName: "نیما", LastName: "رضایی", NationalCode: "1234567891", Phone: "09350000000"},
	}
	pending := models.RegistrationDetail{
		Registration: models.Registration{ID: 3, Status: models.StatusPending, SubmittedAt: at},
		Participant:  models.Participant{FirstName: "Ali", LastName: "K", NationalCode: "1000000060", Phone: "09120000000"},
	}
	return models.Snapshot{
		Event:    models.Event{ID: 4, Name: "Cup", Capacity: 3, ConfirmedCount: 1, Amount: 1500000, Code: "abc", Status: models.EventActive},
		All:      []models.RegistrationDetail{approved, rejected, pending},
		Approved: []models.RegistrationDetail{approved},
		Rejected: []models.RejectedRegistration{{
			RegistrationID: 2, FirstName: "نیما", LastName: "رضایی", NationalCode: "1234567891",
			Reason: "wrong amount", SubmittedAt: at, RejectedAt: decided,
		}},
		TakenAt: decided,
	}
}

func TestTables(t *testing.T) {
	tables := Tables(sampleSnapshot())
	require.Len(t, tables, 5)

	names := make([]string, len(tables))
	for i, tb := range tables {
		names[i] = tb.Name
	}
	assert.Equal(t, []string{TableInfo, TableAll, TableApproved, TableRejected, TableSummary}, names)

	all := tables[1]
	require.Len(t, all.Rows, 4)
	assert.Equal(t, registrationHeader, all.Rows[0])
	assert.Equal(t, []string{"1", "Sara", "Ahmadi", "0013542419", "09123456789", "approved",
		"2026-05-01 08:30", "2026-05-01 09:30", "", "5/a.jpg", ""}, all.Rows[1])
	assert.Equal(t, "wrong amount", all.Rows[2][10])
	assert.Equal(t, "", all.Rows[3][7], "pending rows have no decision time")

	assert.Len(t, tables[2].Rows, 2)
	assert.Equal(t, "wrong amount", tables[3].Rows[1][10])

	summary := map[string]string{}
	for _, row := range tables[4].Rows {
		summary[row[0]] = row[1]
	}
	assert.Equal(t, "3", summary["All registrations"])
	assert.Equal(t, "1", summary["Approved"])
	assert.Equal(t, "1", summary["Rejected"])
	assert.Equal(t, "1", summary["Pending"])
	assert.Equal(t, "2", summary["Seats left"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Registrations(sampleSnapshot())))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"))

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "نیما", rows[2][1])
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "event-4-abc.csv", FileName(models.Event{ID: 4, Code: "abc"}))
}
