package tgbot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"event-bot/internal/approval"
	"event-bot/internal/config"
	"event-bot/internal/dispatch"
	"event-bot/internal/ledger"
	"event-bot/internal/models"
	"event-bot/internal/registration"
)

type Ledger interface {
	ListEvents(ctx context.Context, statuses ...models.EventStatus) ([]models.Event, error)
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	CreateEvent(ctx context.Context, in ledger.NewEvent) (models.Event, error)
	SetEventActive(ctx context.Context, id int64, active bool) (models.Event, error)
	Snapshot(ctx context.Context, eventID int64) (models.Snapshot, error)
	Stats(ctx context.Context) (models.Stats, error)
	AddAdmin(ctx context.Context, telegramID int64, super bool) error
	RemoveAdmin(ctx context.Context, telegramID int64) error
	ListAdmins(ctx context.Context) ([]models.Admin, error)
}

type Access interface {
	IsAdmin(ctx context.Context, id int64) (bool, error)
	IsSuperAdmin(ctx context.Context, id int64) bool
}

type ReceiptOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// SheetExporter mirrors event snapshots to a spreadsheet.
type SheetExporter interface {
	ExportSnapshot(ctx context.Context, snap models.Snapshot) error
	URL() string
}

type Submitter interface {
	Submit(ctx context.Context, key int64, job dispatch.Job) error
}

type Deps struct {
	Bot         BotAPI
	BotUsername string
	Flow        *registration.Flow
	Approval    *approval.Pipeline
	Ledger      Ledger
	Access      Access
	Receipts    ReceiptOpener
	Sheets      SheetExporter // optional
	Dispatcher  Submitter     // optional; updates run inline without one
	Log         *slog.Logger
}

type App struct {
	cfg      config.Config
	bot      BotAPI
	username string
	flow     *registration.Flow
	approval *approval.Pipeline
	ledger   Ledger
	access   Access
	receipts ReceiptOpener
	sheets   SheetExporter
	dispatch Submitter
	log      *slog.Logger
	http     *http.Client
	now      func() time.Time

	// multi-step admin input (event creation, rejection reasons)
	mu    sync.Mutex
	state map[int64]adminState
}

type adminState struct {
	Flow string
	Step int
	Data map[string]string
}

func New(cfg config.Config, d Deps) *App {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &App{
		cfg:      cfg,
		bot:      d.Bot,
		username: d.BotUsername,
		flow:     d.Flow,
		approval: d.Approval,
		ledger:   d.Ledger,
		access:   d.Access,
		receipts: d.Receipts,
		sheets:   d.Sheets,
		dispatch: d.Dispatcher,
		log:      log.With("component", "tgbot"),
		http:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
		state:    map[int64]adminState{},
	}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			a.dispatchUpdate(ctx, upd)
		}
	}
}

func senderID(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID
	}
	return 0
}

// dispatchUpdate queues the update on its sender's lane so one user's
// messages are handled in order.
func (a *App) dispatchUpdate(ctx context.Context, upd tgbotapi.Update) {
	key := senderID(upd)
	if key == 0 {
		return
	}
	job := func(ctx context.Context) { a.handleUpdate(ctx, upd) }
	if a.dispatch == nil {
		job(ctx)
		return
	}
	if err := a.dispatch.Submit(ctx, key, job); err != nil {
		a.log.Warn("drop update", "update_id", upd.UpdateID, "err", err)
	}
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	var err error
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		err = a.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		err = a.handleCallback(ctx, upd.CallbackQuery)
	default:
		return
	}
	if err != nil {
		a.log.Error("handle update", "update_id", upd.UpdateID, "user", senderID(upd), "err", err)
		_ = a.SendText(senderID(upd), msgInternalError)
	}
}

func (a *App) SendText(chatID int64, text string) error {
	return sendText(a.bot, chatID, text)
}

func (a *App) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) isAdmin(ctx context.Context, tgID int64) (bool, error) {
	ok, err := a.access.IsAdmin(ctx, tgID)
	if err != nil {
		return false, fmt.Errorf("tgbot: check admin: %w", err)
	}
	return ok, nil
}

func (a *App) adminFlow(tgID int64) (adminState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.state[tgID]
	return st, ok && st.Flow != ""
}

func (a *App) setAdminFlow(tgID int64, st adminState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state[tgID] = st
}

func (a *App) clearAdminFlow(tgID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.state[tgID]
	delete(a.state, tgID)
	return ok
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	tgID := m.From.ID

	if m.IsCommand() {
		return a.handleCommand(ctx, tgID, m.Command(), strings.TrimSpace(m.CommandArguments()))
	}

	// admin input flows run before the registration form
	if st, ok := a.adminFlow(tgID); ok {
		return a.handleAdminFlowInput(ctx, tgID, strings.TrimSpace(m.Text), st)
	}

	in := registration.Input{Text: m.Text}
	if m.Text == "" {
		in.Text = m.Caption
	}
	in.File = a.attachment(m)

	reply, err := a.flow.HandleTurn(ctx, tgID, in)
	if err != nil {
		return err
	}
	if reply.Outcome == registration.OutcomeNoFlow {
		return a.showMainMenu(ctx, tgID)
	}
	return a.sendReply(tgID, reply)
}

func (a *App) handleCommand(ctx context.Context, tgID int64, cmd, args string) error {
	switch cmd {
	case "start":
		a.clearAdminFlow(tgID)
		if args != "" {
			return a.startByCode(ctx, tgID, args)
		}
		return a.showMainMenu(ctx, tgID)
	case "help":
		return a.SendText(tgID, msgHelp)
	case "events":
		return a.showEvents(ctx, tgID)
	case "status":
		return a.showStatus(ctx, tgID)
	case "cancel":
		hadAdmin := a.clearAdminFlow(tgID)
		if a.flow.Cancel(ctx, tgID) || hadAdmin {
			return a.SendText(tgID, msgCancelled)
		}
		return a.SendText(tgID, msgNothingToCancel)
	case "admin", "pending", "review", "stats", "newevent", "export", "share":
		ok, err := a.isAdmin(ctx, tgID)
		if err != nil {
			return err
		}
		if !ok {
			return a.SendText(tgID, msgAccessDenied)
		}
		return a.handleAdminCommand(ctx, tgID, cmd, args)
	case "addadmin", "removeadmin", "admins":
		if !a.access.IsSuperAdmin(ctx, tgID) {
			return a.SendText(tgID, msgAccessDenied)
		}
		return a.handleSuperCommand(ctx, tgID, cmd, args)
	}
	return a.SendText(tgID, msgHelp)
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.bot.Request(cb)

	switch {
	case strings.HasPrefix(data, "r:"):
		return a.handleFormCallback(ctx, tgID, data)
	case strings.HasPrefix(data, "u:"):
		return a.handleUserCallback(ctx, tgID, data)
	case strings.HasPrefix(data, "a:"):
		ok, err := a.isAdmin(ctx, tgID)
		if err != nil {
			return err
		}
		if !ok {
			return a.SendText(tgID, msgAccessDenied)
		}
		return a.handleAdminCallback(ctx, tgID, data)
	}
	return nil
}
