package handler

import (
	"net/http"
	"time"

	"github.com/nextest/portal-auth/internal/health"
	"github.com/nextest/portal-auth/internal/http/response"
)

type HealthHandler struct {
	probes       *health.ProbeRunner
	redisEnabled bool
	now          func() time.Time
}

func NewHealthHandler(probes *health.ProbeRunner, redisEnabled bool) *HealthHandler {
	return &HealthHandler{probes: probes, redisEnabled: redisEnabled, now: time.Now}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Email     string    `json:"email"`
	Sessions  string    `json:"sessions,omitempty"`
}

// Health answers 503 only when the database is unreachable. A down redis
// degrades the status but keeps 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	results := h.probes.Run(r.Context())
	body := healthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC(),
		Database:  "disconnected",
		Email:     "not_configured",
	}
	if res, ok := health.Find(results, health.CheckDatabase); ok && res.Healthy {
		body.Database = "connected"
	}
	if res, ok := health.Find(results, health.CheckMail); ok && res.Healthy {
		body.Email = "configured"
	}
	if h.redisEnabled {
		body.Sessions = "disconnected"
		if res, ok := health.Find(results, health.CheckRedis); ok && res.Healthy {
			body.Sessions = "connected"
		} else {
			body.Status = "degraded"
		}
	}

	if body.Database != "connected" {
		body.Status = "error"
		response.JSON(w, r, http.StatusServiceUnavailable, body)
		return
	}
	response.JSON(w, r, http.StatusOK, body)
}
