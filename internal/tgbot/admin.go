package tgbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"event-bot/internal/apperr"
	"event-bot/internal/approval"
	"event-bot/internal/ledger"
	"event-bot/internal/models"
	"event-bot/internal/report"
	"event-bot/internal/util"
	"event-bot/internal/validate"
)

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(validate.NormalizeDigits(s)), 10, 64)
	return id, err == nil && id > 0
}

func (a *App) handleAdminCommand(ctx context.Context, tgID int64, cmd, args string) error {
	switch cmd {
	case "admin":
		a.clearAdminFlow(tgID)
		return a.showAdminMenu(tgID)
	case "pending":
		var eventID int64
		if args != "" {
			id, ok := parseID(args)
			if !ok {
				return a.SendText(tgID, "Usage: /pending [event id]")
			}
			eventID = id
		}
		return a.showPending(ctx, tgID, eventID)
	case "review":
		id, ok := parseID(args)
		if !ok {
			return a.SendText(tgID, "Usage: /review <registration id>")
		}
		return a.review(ctx, tgID, id)
	case "stats":
		return a.showStats(ctx, tgID)
	case "newevent":
		if args != "" {
			return a.createEventFromLine(ctx, tgID, args)
		}
		return a.startNewEventFlow(tgID)
	case "export", "share":
		id, ok := parseID(args)
		if !ok {
			return a.SendText(tgID, fmt.Sprintf("Usage: /%s <event id>", cmd))
		}
		if cmd == "export" {
			return a.exportEvent(ctx, tgID, id)
		}
		return a.shareEvent(ctx, tgID, id)
	}
	return a.SendText(tgID, msgAdminHelp)
}

func (a *App) handleAdminCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "a:menu":
		return a.showAdminMenu(tgID)
	case "a:events":
		return a.showAdminEvents(ctx, tgID)
	case "a:pending":
		return a.showPending(ctx, tgID, 0)
	case "a:stats":
		return a.showStats(ctx, tgID)
	case "a:newevent":
		return a.startNewEventFlow(tgID)
	}

	// a:<action>:<id>
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return nil
	}
	id, ok := parseID(parts[2])
	if !ok {
		return nil
	}
	switch parts[1] {
	case "pending":
		return a.showPending(ctx, tgID, id)
	case "review":
		return a.review(ctx, tgID, id)
	case "receipt":
		return a.sendReceipt(ctx, tgID, id)
	case "approve":
		return a.decide(ctx, tgID, id, approval.DecisionApprove, "")
	case "reject":
		a.setAdminFlow(tgID, adminState{Flow: "reject", Data: map[string]string{"id": strconv.FormatInt(id, 10)}})
		return a.sendWithKeyboard(tgID, fmt.Sprintf("Send the reason for rejecting #%d:", id), noReasonKeyboard(id))
	case "noreason":
		a.clearAdminFlow(tgID)
		return a.decide(ctx, tgID, id, approval.DecisionReject, "")
	case "toggle":
		return a.toggleEvent(ctx, tgID, id)
	case "export":
		return a.exportEvent(ctx, tgID, id)
	case "share":
		return a.shareEvent(ctx, tgID, id)
	}
	return nil
}

func (a *App) handleAdminFlowInput(ctx context.Context, tgID int64, txt string, st adminState) error {
	switch st.Flow {
	case "reject":
		id, ok := parseID(st.Data["id"])
		if !ok {
			a.clearAdminFlow(tgID)
			return a.SendText(tgID, "Reset. /admin")
		}
		reason := strings.TrimSpace(txt)
		if reason == "" {
			return a.sendWithKeyboard(tgID, fmt.Sprintf("Send the reason as text, or reject #%d without one:", id), noReasonKeyboard(id))
		}
		a.clearAdminFlow(tgID)
		return a.decide(ctx, tgID, id, approval.DecisionReject, reason)
	case "newevent":
		return a.handleNewEventFlow(ctx, tgID, txt, st)
	default:
		a.clearAdminFlow(tgID)
		return a.SendText(tgID, "Reset. /admin")
	}
}

func noReasonKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reject without reason", "a:noreason:"+strconv.FormatInt(id, 10)),
		),
	)
}

// ---------- Screens ----------

func (a *App) showAdminMenu(tgID int64) error {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Events", "a:events"),
			tgbotapi.NewInlineKeyboardButtonData("⏳ Pending", "a:pending"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ New event", "a:newevent"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Stats", "a:stats"),
		),
	)
	return a.sendWithKeyboard(tgID, "🛠 Admin panel\n\n"+msgAdminHelp, kb)
}

func eventKeyboard(e models.Event) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(e.ID, 10)
	toggle := "▶️ Activate"
	if e.Status == models.EventActive || e.Status == models.EventFull {
		toggle = "⏸ Deactivate"
	}
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏳ Pending", "a:pending:"+id),
			tgbotapi.NewInlineKeyboardButtonData("📤 Export", "a:export:"+id),
			tgbotapi.NewInlineKeyboardButtonData("🔗 Share", "a:share:"+id),
		),
	}
	if e.Status != models.EventExpired {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, "a:toggle:"+id),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (a *App) showAdminEvents(ctx context.Context, tgID int64) error {
	events, err := a.ledger.ListEvents(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return a.SendText(tgID, "No events yet. Create one with /newevent.")
	}
	for _, e := range events {
		if err := a.sendWithKeyboard(tgID, adminEventCard(e), eventKeyboard(e)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) showPending(ctx context.Context, tgID, eventID int64) error {
	list, err := a.approval.ListPending(ctx, tgID, eventID, a.cfg.PendingPageSize)
	if err != nil {
		return a.softError(tgID, "Pending list", err)
	}
	if len(list) == 0 {
		return a.SendText(tgID, "No registrations are waiting for review.")
	}
	for _, d := range list {
		if err := a.sendWithKeyboard(tgID, registrationCard(d), reviewKeyboard(d.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) showStats(ctx context.Context, tgID int64) error {
	s, err := a.ledger.Stats(ctx)
	if err != nil {
		return err
	}
	return a.SendText(tgID, fmt.Sprintf(
		"📊 Stats\n\nEvents: %d (%d active)\nParticipants: %d\nRegistrations: %d\n⏳ Pending: %d\n✅ Approved: %d\n❌ Rejected: %d",
		s.Events, s.ActiveEvents, s.Participants, s.Registrations, s.Pending, s.Approved, s.Rejected))
}

// softError reports expected failures to the admin and passes the rest up.
func (a *App) softError(tgID int64, what string, err error) error {
	if apperr.Soft(err) {
		return a.SendText(tgID, fmt.Sprintf("⚠️ %s: %s.", what, approval.Describe(err)))
	}
	return err
}

// ---------- Review ----------

func (a *App) review(ctx context.Context, tgID, registrationID int64) error {
	d, err := a.approval.Review(ctx, tgID, registrationID)
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Registration #%d", registrationID), err)
	}
	if d.Status != models.StatusPending {
		return a.SendText(tgID, registrationCard(d))
	}
	return a.sendWithKeyboard(tgID, registrationCard(d), reviewKeyboard(d.ID))
}

func (a *App) decide(ctx context.Context, tgID, registrationID int64, decision approval.Decision, reason string) error {
	out, err := a.approval.Decide(ctx, tgID, registrationID, decision, reason)
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Registration #%d", registrationID), err)
	}
	text := fmt.Sprintf("✅ Registration #%d approved.", registrationID)
	if decision == approval.DecisionReject {
		text = fmt.Sprintf("❌ Registration #%d rejected.", registrationID)
	}
	if !out.Notified {
		text += "\n⚠️ The participant could not be notified."
	}
	return a.SendText(tgID, text)
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

func (a *App) sendReceipt(ctx context.Context, tgID, registrationID int64) error {
	d, err := a.approval.Review(ctx, tgID, registrationID)
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Registration #%d", registrationID), err)
	}
	ev := d.Evidence
	switch {
	case ev.Text != "":
		return a.SendText(tgID, fmt.Sprintf("🧾 #%d transaction: %s", d.ID, ev.Text))
	case ev.FileRef == "":
		return a.SendText(tgID, fmt.Sprintf("#%d has no receipt.", d.ID))
	}

	rc, err := a.receipts.Open(ctx, ev.FileRef)
	if apperr.Is(err, apperr.CodeNotFound) {
		return a.SendText(tgID, fmt.Sprintf("⚠️ The receipt file of #%d is missing.", d.ID))
	}
	if err != nil {
		return fmt.Errorf("tgbot: open receipt: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("tgbot: read receipt: %w", err)
	}

	file := tgbotapi.FileBytes{Name: filepath.Base(ev.FileRef), Bytes: data}
	caption := fmt.Sprintf("🧾 Receipt of #%d (%s)", d.ID, d.Participant.FullName())
	if isImage(ev.FileRef) {
		photo := tgbotapi.NewPhoto(tgID, file)
		photo.Caption = caption
		_, err = a.bot.Send(photo)
		return err
	}
	doc := tgbotapi.NewDocument(tgID, file)
	doc.Caption = caption
	_, err = a.bot.Send(doc)
	return err
}

// ---------- Events ----------

func (a *App) toggleEvent(ctx context.Context, tgID, eventID int64) error {
	e, err := a.ledger.GetEvent(ctx, eventID)
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Event #%d", eventID), err)
	}
	active := e.Status == models.EventInactive
	e, err = a.ledger.SetEventActive(ctx, eventID, active)
	if apperr.Is(err, apperr.CodeInvalidState) {
		return a.SendText(tgID, fmt.Sprintf("⚠️ Event #%d has ended and cannot be reopened.", eventID))
	}
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Event #%d", eventID), err)
	}
	return a.sendWithKeyboard(tgID, fmt.Sprintf("Event #%d is now %s.", e.ID, e.Status), eventKeyboard(e))
}

func (a *App) exportURL(eventID int64) string {
	if a.cfg.ExportSecret == "" {
		return ""
	}
	base := a.cfg.BasePublicURL
	if base == "" {
		base = "http://localhost" + a.cfg.HTTPAddr
	}
	return util.ExportURL(base, a.cfg.ExportSecret, eventID)
}

func (a *App) exportEvent(ctx context.Context, tgID, eventID int64) error {
	snap, err := a.ledger.Snapshot(ctx, eventID)
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Event #%d", eventID), err)
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, report.Registrations(snap)); err != nil {
		return fmt.Errorf("tgbot: export csv: %w", err)
	}
	doc := tgbotapi.NewDocument(tgID, tgbotapi.FileBytes{Name: report.FileName(snap.Event), Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("📤 %s\nAll: %d, approved: %d, rejected: %d",
		snap.Event.Name, len(snap.All), len(snap.Approved), len(snap.Rejected))
	if _, err := a.bot.Send(doc); err != nil {
		return err
	}

	var notes []string
	if a.sheets != nil {
		if err := a.sheets.ExportSnapshot(ctx, snap); err != nil {
			a.log.Warn("sheets export failed", "event_id", eventID, "err", err)
			notes = append(notes, "⚠️ Google Sheets export failed.")
		} else {
			notes = append(notes, "📊 Google Sheets updated: "+a.sheets.URL())
		}
	}
	if url := a.exportURL(eventID); url != "" {
		notes = append(notes, "🔗 CSV link: "+url)
	}
	if len(notes) == 0 {
		return nil
	}
	return a.SendText(tgID, strings.Join(notes, "\n"))
}

func (a *App) shareEvent(ctx context.Context, tgID, eventID int64) error {
	e, err := a.ledger.GetEvent(ctx, eventID)
	if err != nil {
		return a.softError(tgID, fmt.Sprintf("Event #%d", eventID), err)
	}
	link := util.EventLink(a.username, e.Code)
	png, err := util.QRCodePNG(link)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(tgID, tgbotapi.FileBytes{Name: fmt.Sprintf("event-%d.png", e.ID), Bytes: png})
	photo.Caption = e.Name + "\n" + link
	_, err = a.bot.Send(photo)
	return err
}

// ---------- Event creation ----------

func parseAmount(s string) (int64, bool) {
	s = strings.NewReplacer(",", "", " ", "").Replace(validate.NormalizeDigits(s))
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil && v >= 0
}

func parseCapacity(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(validate.NormalizeDigits(s)))
	return v, err == nil && v > 0
}

// parseTime accepts "2006-01-02 15:04" or a bare date, in UTC.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(validate.NormalizeDigits(s))
	for _, layout := range []string{timeLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseEventLine reads "name | amount | card | capacity | start | end | description".
// The description is optional.
func parseEventLine(line string) (ledger.NewEvent, string) {
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 6 {
		return ledger.NewEvent{}, "expected: name | amount | card | capacity | start | end | description"
	}
	in := ledger.NewEvent{Name: parts[0], CardNumber: parts[2]}
	if len(parts) > 6 {
		in.Description = strings.Join(parts[6:], "|")
	}
	var ok bool
	if in.Amount, ok = parseAmount(parts[1]); !ok {
		return in, "amount must be a whole number"
	}
	if in.Capacity, ok = parseCapacity(parts[3]); !ok {
		return in, "capacity must be a positive number"
	}
	if in.StartsAt, ok = parseTime(parts[4]); !ok {
		return in, "start must look like 2026-03-10 18:00"
	}
	if in.EndsAt, ok = parseTime(parts[5]); !ok {
		return in, "end must look like 2026-03-10 21:00"
	}
	return in, ""
}

func (a *App) createEventFromLine(ctx context.Context, tgID int64, line string) error {
	in, problem := parseEventLine(line)
	if problem != "" {
		return a.SendText(tgID, "⚠️ "+problem)
	}
	return a.createEvent(ctx, tgID, in)
}

func (a *App) createEvent(ctx context.Context, tgID int64, in ledger.NewEvent) error {
	e, err := a.ledger.CreateEvent(ctx, in)
	if apperr.Is(err, apperr.CodeValidation) {
		var ae *apperr.Error
		reason := "invalid event"
		if errors.As(err, &ae) {
			reason = ae.Reason
		}
		return a.SendText(tgID, "⚠️ "+reason)
	}
	if err != nil {
		return err
	}
	a.log.Info("event created", "event_id", e.ID, "admin", tgID)
	text := "✅ Event created and open for registration.\n\n" + adminEventCard(e)
	if a.username != "" {
		text += "\n" + util.EventLink(a.username, e.Code)
	}
	return a.sendWithKeyboard(tgID, text, eventKeyboard(e))
}

var newEventPrompts = []string{
	"Event name:",
	"Description (or - to skip):",
	"Amount in Toman (for example 1500000):",
	"Card number for payments:",
	"Capacity:",
	"Start (for example 2026-03-10 18:00, UTC):",
	"End (for example 2026-03-10 21:00, UTC):",
}

var newEventKeys = []string{"name", "description", "amount", "card", "capacity", "start", "end"}

func (a *App) startNewEventFlow(tgID int64) error {
	a.setAdminFlow(tgID, adminState{Flow: "newevent", Step: 0, Data: map[string]string{}})
	return a.SendText(tgID, "New event. Send /cancel to stop.\n\n"+newEventPrompts[0])
}

func (a *App) handleNewEventFlow(ctx context.Context, tgID int64, txt string, st adminState) error {
	if st.Data == nil {
		st.Data = map[string]string{}
	}
	if st.Step < 0 || st.Step >= len(newEventKeys) {
		a.clearAdminFlow(tgID)
		return a.SendText(tgID, "Reset. /admin")
	}

	key := newEventKeys[st.Step]
	var problem string
	switch key {
	case "name", "card":
		if txt == "" {
			problem = "This field is required."
		}
	case "description":
		if txt == "-" {
			txt = ""
		}
	case "amount":
		if _, ok := parseAmount(txt); !ok {
			problem = "Enter a whole number."
		}
	case "capacity":
		if _, ok := parseCapacity(txt); !ok {
			problem = "Enter a positive number."
		}
	case "start", "end":
		if _, ok := parseTime(txt); !ok {
			problem = "Use the format 2026-03-10 18:00."
		}
	}
	if problem != "" {
		return a.SendText(tgID, "⚠️ "+problem+"\n"+newEventPrompts[st.Step])
	}
	st.Data[key] = txt
	st.Step++

	if st.Step < len(newEventKeys) {
		a.setAdminFlow(tgID, st)
		return a.SendText(tgID, newEventPrompts[st.Step])
	}

	a.clearAdminFlow(tgID)
	in := ledger.NewEvent{
		Name:        st.Data["name"],
		Description: st.Data["description"],
		CardNumber:  st.Data["card"],
	}
	in.Amount, _ = parseAmount(st.Data["amount"])
	in.Capacity, _ = parseCapacity(st.Data["capacity"])
	in.StartsAt, _ = parseTime(st.Data["start"])
	in.EndsAt, _ = parseTime(st.Data["end"])
	return a.createEvent(ctx, tgID, in)
}

// ---------- Super admin ----------

func (a *App) handleSuperCommand(ctx context.Context, tgID int64, cmd, args string) error {
	switch cmd {
	case "admins":
		return a.showAdmins(ctx, tgID)
	case "addadmin", "removeadmin":
		id, ok := parseID(args)
		if !ok {
			return a.SendText(tgID, fmt.Sprintf("Usage: /%s <telegram id>", cmd))
		}
		if cmd == "addadmin" {
			if err := a.ledger.AddAdmin(ctx, id, false); err != nil {
				return a.softError(tgID, "Add admin", err)
			}
			a.log.Info("admin added", "admin", id, "by", tgID)
			return a.SendText(tgID, fmt.Sprintf("✅ %d is now an admin.", id))
		}
		err := a.ledger.RemoveAdmin(ctx, id)
		if apperr.Is(err, apperr.CodeNotFound) {
			return a.SendText(tgID, fmt.Sprintf("%d is not a stored admin. Admins from the environment are changed in the config.", id))
		}
		if err != nil {
			return err
		}
		a.log.Info("admin removed", "admin", id, "by", tgID)
		return a.SendText(tgID, fmt.Sprintf("✅ %d is no longer an admin.", id))
	}
	return nil
}

func (a *App) showAdmins(ctx context.Context, tgID int64) error {
	list, err := a.ledger.ListAdmins(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("👑 Super admins (config):")
	for _, id := range a.cfg.SuperAdminIDs {
		fmt.Fprintf(&b, "\n%d", id)
	}
	b.WriteString("\n\n🛠 Admins (config):")
	for _, id := range a.cfg.AdminIDs {
		fmt.Fprintf(&b, "\n%d", id)
	}
	b.WriteString("\n\n🛠 Admins (added):")
	for _, ad := range list {
		fmt.Fprintf(&b, "\n%d since %s", ad.TelegramID, formatTime(ad.CreatedAt))
	}
	return a.SendText(tgID, b.String())
}
