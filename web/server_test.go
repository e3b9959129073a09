package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hieudm/groupledger/audit"
	"github.com/hieudm/groupledger/ledger"
)

type stubEngine struct {
	snapshots map[int64]*ledger.Snapshot
}

func (s *stubEngine) Summary(ctx context.Context, chatID int64) (*ledger.Snapshot, error) {
	snap, ok := s.snapshots[chatID]
	if !ok {
		return nil, ledger.ErrRateNotConfigured
	}
	return snap, nil
}

type discardSink struct{}

func (discardSink) Save(ctx context.Context, r audit.Record) error { return nil }
func (discardSink) ByAction(ctx context.Context, action string) ([]audit.Record, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("reports"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	engine := &stubEngine{snapshots: map[int64]*ledger.Snapshot{
		-100123: {
			ChatID:          -100123,
			TotalSource:     1000000,
			TotalTarget:     67.12,
			RemainingTarget: 67.12,
			CurrencyUnit:    ledger.CurrencyUnit,
		},
	}}
	worker := audit.NewWorker(discardSink{}, 1)
	worker.Start()
	t.Cleanup(worker.Shutdown)
	return NewRouter(engine, string(hash), worker)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{"ok", "/api/groups/-100123/summary", "reports", http.StatusOK, `"total_source":1000000`},
		{"unknown group", "/api/groups/42/summary", "reports", http.StatusNotFound, ""},
		{"bad chat id", "/api/groups/abc/summary", "reports", http.StatusBadRequest, ""},
		{"no token", "/api/groups/-100123/summary", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}
