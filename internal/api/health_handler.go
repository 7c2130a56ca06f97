package api

import (
	"net/http"
)

// ConnectionStatus reports the readiness of the mail connections.
type ConnectionStatus interface {
	IMAPConnected() bool
	SMTPConnected() bool
}

// HealthHandler serves /api/health with per-service readiness flags.
// Degraded (some service down) responds 503 so load balancers can see it,
// but the body still carries the full breakdown.
type HealthHandler struct {
	status ConnectionStatus
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(status ConnectionStatus) *HealthHandler {
	return &HealthHandler{status: status}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, _ *http.Request) {
	imapOK := h.status.IMAPConnected()
	smtpOK := h.status.SMTPConnected()

	state := "ok"
	code := http.StatusOK
	if !imapOK || !smtpOK {
		state = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// Small fixed shape; write directly.
	_, _ = w.Write([]byte(`{"status":"` + state + `","imap_connected":` + boolJSON(imapOK) + `,"smtp_connected":` + boolJSON(smtpOK) + `}`))
}

func boolJSON(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
