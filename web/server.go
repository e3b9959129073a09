// Package web exposes the read-only report surface: a health probe and the
// JSON summary snapshot per group. Chat rendering happens in the telegram
// package; this is for dashboards and spreadsheets.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hieudm/groupledger/audit"
	"github.com/hieudm/groupledger/ledger"
	"github.com/hieudm/groupledger/middleware"
)

// Summarizer is the slice of the engine the report surface needs.
type Summarizer interface {
	Summary(ctx context.Context, chatID int64) (*ledger.Snapshot, error)
}

func NewRouter(engine Summarizer, apiTokenHash string, worker *audit.Worker) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.APIToken(apiTokenHash))

		r.Get("/api/groups/{chatID}/summary", func(w http.ResponseWriter, r *http.Request) {
			chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
			if err != nil {
				http.Error(w, "invalid chat id", http.StatusBadRequest)
				return
			}

			snap, err := engine.Summary(r.Context(), chatID)
			if err != nil {
				if errors.Is(err, ledger.ErrRateNotConfigured) {
					http.Error(w, "group not configured", http.StatusNotFound)
					return
				}
				slog.Error("failed to build summary", "chat_id", chatID, "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			worker.Log(audit.NewRecord(
				audit.WithAction("report.summary"),
				audit.WithMetadata(map[string]string{
					"chat_id": strconv.FormatInt(chatID, 10),
				}),
			))

			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(snap); err != nil {
				slog.Error("failed to encode summary", "chat_id", chatID, "error", err)
			}
		})
	})

	return router
}
