package tgbot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"event-bot/internal/models"
	"event-bot/internal/registration"
	"event-bot/internal/session"
	"event-bot/internal/util"
)

const (
	msgWelcome = "👋 Welcome! Pick an event to register for, or check your registrations.\n" +
		"Send /help for all commands."
	msgHelp = "Commands:\n" +
		"/events - open events\n" +
		"/status - your registrations\n" +
		"/cancel - stop the current form\n" +
		"/start <code> - register with an event link"
	msgAdminHelp = "Admin commands:\n" +
		"/events - all events with controls\n" +
		"/pending [event id] - registrations waiting for review\n" +
		"/review <registration id> - one registration with its buttons\n" +
		"/stats - totals\n" +
		"/newevent - create an event (step by step, or name | amount | card | capacity | start | end | description)\n" +
		"/export <event id> - CSV export\n" +
		"/share <event id> - QR code of the event link"
	msgInternalError   = "⚠️ Something went wrong. Please try again in a moment."
	msgAccessDenied    = "⛔ Access denied."
	msgCancelled       = "Cancelled."
	msgNothingToCancel = "Nothing to cancel."
	msgNoOpenEvents    = "There are no events open for registration right now."
	msgNoRegistrations = "You have no registrations yet. Use /events to register."
	msgFormExpired     = "This form has expired. Use /events to start again."
	msgEventNotFound   = "Event not found. Use /events to see open events."
)

const timeLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func statusIcon(s models.RegistrationStatus) string {
	switch s {
	case models.StatusApproved:
		return "✅"
	case models.StatusRejected:
		return "❌"
	}
	return "⏳"
}

func statusLabel(s models.RegistrationStatus) string {
	switch s {
	case models.StatusPending:
		return "waiting for review"
	case models.StatusApproved:
		return "approved"
	case models.StatusRejected:
		return "rejected"
	}
	return string(s)
}

func eventCard(e models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎫 %s\n", e.Name)
	if e.Description != "" {
		b.WriteString(e.Description + "\n")
	}
	fmt.Fprintf(&b, "\n💰 %s Toman", util.FormatAmount(e.Amount))
	seats := e.Capacity - e.ConfirmedCount
	if seats < 0 {
		seats = 0
	}
	fmt.Fprintf(&b, "\n👥 %d of %d seats left", seats, e.Capacity)
	fmt.Fprintf(&b, "\n📅 %s to %s (UTC)", formatTime(e.StartsAt), formatTime(e.EndsAt))
	return b.String()
}

// adminEventCard adds the fields only admins see.
func adminEventCard(e models.Event) string {
	return fmt.Sprintf("#%d [%s]\n%s\n💳 %s\n🔗 code: %s", e.ID, e.Status, eventCard(e), e.CardNumber, e.Code)
}

func evidenceLine(ev models.Evidence) string {
	switch {
	case ev.Empty():
		return "none"
	case ev.FileRef != "":
		return "receipt file attached"
	}
	return "transaction: " + ev.Text
}

func registrationCard(d models.RegistrationDetail) string {
	p := d.Participant
	return fmt.Sprintf("#%d %s\nEvent: %s\nName: %s\nNational code: %s\nPhone: %s\nReceipt: %s\nSubmitted: %s",
		d.ID, statusIcon(d.Status), d.EventName, p.FullName(), p.NationalCode, p.Phone,
		evidenceLine(d.Evidence), formatTime(d.SubmittedAt))
}

func draftSummary(d session.Draft) string {
	return fmt.Sprintf("Please check your details:\n\nFirst name: %s\nLast name: %s\nNational code: %s\nPhone: %s\nReceipt: %s",
		d.FirstName, d.LastName, d.NationalCode, d.Phone, evidenceLine(d.Evidence))
}

func problemText(p registration.Problem, maxBytes int64) string {
	switch p {
	case registration.ProblemName:
		return "❗ That name is not valid. Enter it again, up to 50 characters."
	case registration.ProblemNationalCode:
		return "❗ That national code is not valid. It must be the 10-digit code on your card."
	case registration.ProblemPhone:
		return "❗ That phone number is not valid. Example: 09123456789."
	case registration.ProblemReceipt:
		return "❗ Please send a photo or file of the receipt, or type the transaction number."
	case registration.ProblemReceiptTooLarge:
		return fmt.Sprintf("❗ The file is too large. The limit is %d MB.", maxBytes>>20)
	case registration.ProblemConfirmation:
		return "❗ Please use the buttons below to confirm, edit or cancel."
	}
	return ""
}

func prompt(r registration.Reply) string {
	switch r.Step {
	case session.StepFirstName:
		return "Enter your first name:"
	case session.StepLastName:
		return "Enter your last name:"
	case session.StepNationalCode:
		return "Enter your national code (10 digits):"
	case session.StepPhone:
		return "Enter your mobile number:"
	case session.StepReceipt:
		if r.Event.ID != 0 {
			return fmt.Sprintf("Pay %s Toman to card %s, then send a photo of the receipt or type the transaction number.",
				util.FormatAmount(r.Event.Amount), r.Event.CardNumber)
		}
		return "Send a photo of the payment receipt or type the transaction number:"
	case session.StepConfirmation:
		return draftSummary(r.Draft)
	}
	return ""
}

func cancelKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "r:cancel"),
		),
	)
	return &kb
}

func confirmKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", "r:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", "r:edit"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "r:cancel"),
		),
	)
	return &kb
}

func closedText(e models.Event, av models.Availability) string {
	switch av {
	case models.ClosedFull:
		return fmt.Sprintf("😔 %q is full.", e.Name)
	case models.ClosedExpired:
		return fmt.Sprintf("⌛ Registration for %q has ended.", e.Name)
	}
	return fmt.Sprintf("🔒 %q is not open for registration.", e.Name)
}

// renderReply turns a registration turn result into message text and an
// optional keyboard.
func renderReply(r registration.Reply, maxBytes int64) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch r.Outcome {
	case registration.OutcomeContinue, registration.OutcomeRetry:
		var parts []string
		if r.Outcome == registration.OutcomeRetry {
			parts = append(parts, problemText(r.Problem, maxBytes))
		}
		if r.Step == session.StepFirstName && r.Event.ID != 0 {
			parts = append(parts, "📝 Registration for "+r.Event.Name)
		}
		parts = append(parts, prompt(r))
		kb := cancelKeyboard()
		if r.Step == session.StepConfirmation {
			kb = confirmKeyboard()
		}
		return strings.Join(parts, "\n\n"), kb
	case registration.OutcomeCommitted:
		return fmt.Sprintf("✅ Your registration for %q was submitted (#%d).\nYou will get a message once it is reviewed.",
			r.Event.Name, r.Registration.ID), nil
	case registration.OutcomeCancelled:
		return "Registration cancelled. Use /events to start again.", nil
	case registration.OutcomeAlreadyRegistered:
		return "ℹ️ You already have an active registration for this event. Use /status to check it.", nil
	case registration.OutcomeEventClosed:
		return closedText(r.Event, r.Availability), nil
	case registration.OutcomeEventNotFound:
		return msgEventNotFound, nil
	}
	return msgHelp, nil
}
