package handler

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dropbeam/dropbeam/internal/hub"
)

type HealthHandler struct {
	db        *sqlx.DB
	events    *hub.Hub
	startedAt time.Time
}

func NewHealthHandler(db *sqlx.DB, events *hub.Hub) *HealthHandler {
	return &HealthHandler{db: db, events: events, startedAt: time.Now()}
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Database      string `json:"database"`
	Subscribers   int    `json:"subscribers"`
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Database:      "ok",
		Subscribers:   h.events.Connections(),
	}

	status := http.StatusOK
	err := h.db.PingContext(r.Context())
	if err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}
