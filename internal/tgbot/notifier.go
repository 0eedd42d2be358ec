package tgbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"event-bot/internal/approval"
	"event-bot/internal/models"
)

type AdminLister interface {
	ListAdmins(ctx context.Context) ([]models.Admin, error)
}

// Notifier delivers registration alerts to admins and decisions to
// participants.
type Notifier struct {
	bot      BotAPI
	staticID []int64
	admins   AdminLister
	log      *slog.Logger
}

func NewNotifier(bot BotAPI, staticAdmins []int64, admins AdminLister, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{bot: bot, staticID: staticAdmins, admins: admins, log: log.With("component", "notifier")}
}

func (n *Notifier) recipients(ctx context.Context) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range n.staticID {
		add(id)
	}
	if n.admins != nil {
		list, err := n.admins.ListAdmins(ctx)
		if err != nil {
			return out, err
		}
		for _, a := range list {
			add(a.TelegramID)
		}
	}
	return out, nil
}

// RegistrationSubmitted alerts every admin with review buttons.
func (n *Notifier) RegistrationSubmitted(ctx context.Context, d models.RegistrationDetail) error {
	ids, err := n.recipients(ctx)
	if err != nil {
		n.log.Warn("list admins", "err", err)
	}
	text := "🆕 New registration\n\n" + registrationCard(d)
	kb := reviewKeyboard(d.ID)

	var errs []error
	for _, id := range ids {
		msg := tgbotapi.NewMessage(id, text)
		msg.ReplyMarkup = kb
		if _, err := n.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("admin %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// NotifyParticipant tells the participant how their registration was decided.
func (n *Notifier) NotifyParticipant(ctx context.Context, note approval.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var text string
	switch note.Decision {
	case approval.DecisionApprove:
		text = fmt.Sprintf("✅ Your registration for %q is approved. See you there!", note.EventName)
	case approval.DecisionReject:
		text = fmt.Sprintf("❌ Your registration for %q was rejected.", note.EventName)
		if note.Reason != "" {
			text += "\nReason: " + note.Reason
		}
		text += "\nYou can register again with /start."
	default:
		return fmt.Errorf("unknown decision %d", note.Decision)
	}
	return sendText(n.bot, note.ExternalID, text)
}

func reviewKeyboard(registrationID int64) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(registrationID, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "a:approve:"+id),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "a:reject:"+id),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🧾 Receipt", "a:receipt:"+id),
		),
	)
}
