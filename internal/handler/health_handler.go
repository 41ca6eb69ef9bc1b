package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthPingTimeout はDB疎通確認の待ち時間の上限。
const healthPingTimeout = 2 * time.Second

// Pinger はDB疎通確認のためのインターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler は死活監視とDB疎通確認のHTTPハンドラー。
type HealthHandler struct {
	db  Pinger
	now func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// Health はDBに接続できれば200、できなければ503を返す。
// GET /health, GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Database:  "connected",
		Timestamp: h.now().UTC(),
	}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("health check: database unreachable", slog.String("error", err.Error()))
		resp.Status = "degraded"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
