package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"event-bot/internal/access"
	"event-bot/internal/approval"
	"event-bot/internal/config"
	"event-bot/internal/dispatch"
	"event-bot/internal/ledger"
	"event-bot/internal/metrics"
	"event-bot/internal/receipts"
	"event-bot/internal/registration"
	"event-bot/internal/server"
	"event-bot/internal/session"
	"event-bot/internal/sheets"
	"event-bot/internal/tgbot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("stopped", "err", err)
		os.Exit(1)
	}
	log.Info("bye")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	receiptStore, err := receipts.NewStore(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bot, err := tgbot.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return err
	}
	log.Info("authorized", "bot", bot.Self.UserName, "receipts", receiptStore.Name())

	checker := access.NewChecker(cfg.SuperAdminIDs, cfg.AdminIDs, store)
	notifier := tgbot.NewNotifier(bot, append(append([]int64{}, cfg.SuperAdminIDs...), cfg.AdminIDs...), store, log)
	sessions := session.New(cfg.SessionTTL)

	flow := registration.New(registration.Deps{
		Sessions:        sessions,
		Ledger:          store,
		Receipts:        receiptStore,
		Notifier:        notifier,
		Metrics:         m,
		Log:             log,
		MaxReceiptBytes: cfg.MaxReceiptBytes,
	})
	pipeline := approval.New(approval.Deps{
		Ledger:   store,
		Auth:     checker,
		Notifier: notifier,
		Metrics:  m,
		Log:      log,
	})
	dispatcher := dispatch.New(cfg.Workers, 64, log)

	deps := tgbot.Deps{
		Bot:         bot,
		BotUsername: bot.Self.UserName,
		Flow:        flow,
		Approval:    pipeline,
		Ledger:      store,
		Access:      checker,
		Receipts:    receiptStore,
		Dispatcher:  dispatcher,
		Log:         log,
	}
	if cfg.SheetsEnabled() {
		sh, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			return err
		}
		deps.Sheets = sh
	}
	app := tgbot.New(cfg, deps)

	httpSrv := server.New(cfg, server.Deps{Ledger: store, Gatherer: reg, Log: log})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		janitor(ctx, cfg.SweepInterval, flow, store, m, log)
		return nil
	})
	g.Go(func() error {
		if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// janitor evicts idle registration forms and expires ended events.
func janitor(ctx context.Context, every time.Duration, flow *registration.Flow, store *ledger.Store, m *metrics.Metrics, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := flow.Sweep(ctx, now); n > 0 {
				log.Debug("sessions evicted", "count", n)
			}

			n, err := store.ExpireEnded(ctx, now)
			if err != nil {
				log.Warn("expire events", "err", err)
				continue
			}
			if n > 0 {
				m.AddExpired(n)
				log.Info("events expired", "count", n)
			}
		}
	}
}
