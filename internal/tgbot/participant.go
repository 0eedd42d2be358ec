package tgbot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"event-bot/internal/models"
	"event-bot/internal/registration"
)

// ---------- Screens / Menus ----------

func (a *App) showMainMenu(ctx context.Context, tgID int64) error {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎫 Open events", "u:events"),
			tgbotapi.NewInlineKeyboardButtonData("📋 My registrations", "u:status"),
		),
	)
	return a.sendWithKeyboard(tgID, msgWelcome, kb)
}

func (a *App) showEvents(ctx context.Context, tgID int64) error {
	ok, err := a.isAdmin(ctx, tgID)
	if err != nil {
		return err
	}
	if ok {
		return a.showAdminEvents(ctx, tgID)
	}
	return a.showOpenEvents(ctx, tgID)
}

func (a *App) showOpenEvents(ctx context.Context, tgID int64) error {
	events, err := a.ledger.ListEvents(ctx, models.EventActive)
	if err != nil {
		return err
	}
	now := a.now()
	sent := 0
	for _, e := range events {
		if !e.IsOpen(now) {
			continue
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📝 Register", "u:join:"+strconv.FormatInt(e.ID, 10)),
			),
		)
		if err := a.sendWithKeyboard(tgID, eventCard(e), kb); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		return a.SendText(tgID, msgNoOpenEvents)
	}
	return nil
}

func (a *App) showStatus(ctx context.Context, tgID int64) error {
	list, err := a.flow.Status(ctx, tgID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return a.SendText(tgID, msgNoRegistrations)
	}
	var b strings.Builder
	b.WriteString("📋 Your registrations:\n")
	for _, d := range list {
		fmt.Fprintf(&b, "\n%s #%d %s: %s", statusIcon(d.Status), d.ID, d.EventName, statusLabel(d.Status))
	}
	return a.SendText(tgID, b.String())
}

func (a *App) startByCode(ctx context.Context, tgID int64, code string) error {
	reply, err := a.flow.BeginByCode(ctx, tgID, code)
	if err != nil {
		return err
	}
	return a.sendReply(tgID, reply)
}

func (a *App) join(ctx context.Context, tgID int64, rawID string) error {
	eventID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return a.SendText(tgID, msgEventNotFound)
	}
	reply, err := a.flow.Begin(ctx, tgID, eventID)
	if err != nil {
		return err
	}
	return a.sendReply(tgID, reply)
}

func (a *App) sendReply(tgID int64, r registration.Reply) error {
	text, kb := renderReply(r, a.cfg.MaxReceiptBytes)
	msg := tgbotapi.NewMessage(tgID, text)
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) handleFormCallback(ctx context.Context, tgID int64, data string) error {
	var action registration.Action
	switch data {
	case "r:confirm":
		action = registration.ActionConfirm
	case "r:edit":
		action = registration.ActionEdit
	case "r:cancel":
		action = registration.ActionCancel
	default:
		return nil
	}
	reply, err := a.flow.HandleTurn(ctx, tgID, registration.Input{Action: action})
	if err != nil {
		return err
	}
	if reply.Outcome == registration.OutcomeNoFlow {
		return a.SendText(tgID, msgFormExpired)
	}
	return a.sendReply(tgID, reply)
}

func (a *App) handleUserCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "u:events":
		return a.showOpenEvents(ctx, tgID)
	case "u:status":
		return a.showStatus(ctx, tgID)
	}

	if strings.HasPrefix(data, "u:join:") {
		return a.join(ctx, tgID, strings.TrimPrefix(data, "u:join:"))
	}
	return nil
}

// ---------- Receipt files ----------

func (a *App) attachment(m *tgbotapi.Message) *registration.Attachment {
	switch {
	case len(m.Photo) > 0:
		// sizes are ascending; the last one is the original
		p := m.Photo[len(m.Photo)-1]
		return &registration.Attachment{Name: "receipt.jpg", Size: int64(p.FileSize), Open: a.fileOpener(p.FileID)}
	case m.Document != nil:
		name := m.Document.FileName
		if name == "" {
			name = "receipt"
		}
		return &registration.Attachment{Name: name, Size: int64(m.Document.FileSize), Open: a.fileOpener(m.Document.FileID)}
	}
	return nil
}

func (a *App) fileOpener(fileID string) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		url, err := a.bot.GetFileDirectURL(fileID)
		if err != nil {
			return nil, fmt.Errorf("tgbot: file url: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("tgbot: download file: %w", err)
		}
		resp, err := a.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tgbot: download file: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("tgbot: download file: status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}
