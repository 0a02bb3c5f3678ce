package httpapi

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	app "github.com/getdatasurge/frostguard/internal/app"
	billingsvc "github.com/getdatasurge/frostguard/internal/app/services/billing"
	ingestsvc "github.com/getdatasurge/frostguard/internal/app/services/ingest"
)

// WebhookConfig carries the shared secrets inbound webhooks are verified
// against. Empty secrets disable verification for that hook.
type WebhookConfig struct {
	// TTNSecret is compared against the X-Webhook-Token header the network
	// server is configured to send.
	TTNSecret string
}

// webhookHandler serves the unauthenticated inbound endpoints.
type webhookHandler struct {
	app *app.Application
	cfg WebhookConfig
}

// NewWebhookHandler returns a mux serving the uplink and billing webhooks.
// These paths bypass bearer auth; callers prove themselves with shared
// secrets instead.
func NewWebhookHandler(application *app.Application, cfg WebhookConfig) http.Handler {
	h := &webhookHandler{app: application, cfg: cfg}
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/ttn", h.uplink)
	mux.HandleFunc("/webhooks/billing", h.billing)
	return mux
}

func (h *webhookHandler) uplink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.cfg.TTNSecret != "" {
		token := r.Header.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.TTNSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid webhook token"))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rd, err := h.app.Ingest.IngestPayload(r.Context(), body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, rd)
	case errors.Is(err, ingestsvc.ErrDuplicate):
		// Acknowledge duplicates so the network server stops retrying.
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case errors.Is(err, ingestsvc.ErrUnknownDevice):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func (h *webhookHandler) billing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	signature := r.Header.Get("X-Signature")
	if err := h.app.Billing.ProcessWebhook(r.Context(), body, signature); err != nil {
		if errors.Is(err, billingsvc.ErrBadSignature) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
