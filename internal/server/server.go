package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"event-bot/internal/apperr"
	"event-bot/internal/config"
	"event-bot/internal/models"
	"event-bot/internal/report"
	"event-bot/internal/util"
)

type Snapshotter interface {
	Snapshot(ctx context.Context, eventID int64) (models.Snapshot, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Ledger interface {
		Snapshotter
		Pinger
	}
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

// New builds the side HTTP server: health, Prometheus metrics and signed
// CSV exports.
func New(cfg config.Config, d Deps) *http.Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.Ledger.Ping(ctx); err != nil {
			log.Warn("health check failed", "err", err)
			http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// CSV export (admin-only link with token = HMAC)
	mux.HandleFunc("GET /export/event.csv", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ExportSecret == "" {
			http.NotFound(w, r)
			return
		}
		rawID := r.URL.Query().Get("event_id")
		token := r.URL.Query().Get("token")
		eventID, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || token == "" {
			http.Error(w, "event_id and token required", http.StatusBadRequest)
			return
		}
		if !util.CheckExportToken(cfg.ExportSecret, eventID, token) {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		snap, err := d.Ledger.Snapshot(r.Context(), eventID)
		if apperr.Is(err, apperr.CodeNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error("export snapshot", "event_id", eventID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.FileName(snap.Event)+`"`)
		if err := report.WriteCSV(w, report.Registrations(snap)); err != nil {
			log.Warn("export write", "event_id", eventID, "err", err)
		}
	})

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
