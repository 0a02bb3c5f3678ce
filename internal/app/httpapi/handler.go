// Package httpapi exposes the REST surface over the application services.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/getdatasurge/frostguard/internal/app"
	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/contact"
	"github.com/getdatasurge/frostguard/internal/app/domain/policy"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	billingsvc "github.com/getdatasurge/frostguard/internal/app/services/billing"
	devicesvc "github.com/getdatasurge/frostguard/internal/app/services/devices"
	policysvc "github.com/getdatasurge/frostguard/internal/app/services/policies"
	"github.com/getdatasurge/frostguard/internal/app/storage"
	"github.com/getdatasurge/frostguard/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app    *app.Application
	audit  *AuditLog
	stream http.Handler
}

// NewHandler returns a mux exposing the core REST API. audit and stream
// are optional; their endpoints answer 404 when absent.
func NewHandler(application *app.Application, audit *AuditLog, stream http.Handler) http.Handler {
	h := &handler{app: application, audit: audit, stream: stream}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", application.Metrics.Handler())
	mux.HandleFunc("/plans", h.plans)
	mux.HandleFunc("/audit", h.auditEntries)
	mux.HandleFunc("/orgs", h.orgs)
	mux.HandleFunc("/orgs/", h.orgResources)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Health())
}

func (h *handler) plans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Billing.Plans())
}

func (h *handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func (h *handler) orgs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Name         string `json:"name"`
			Slug         string `json:"slug"`
			ContactEmail string `json:"contact_email"`
			Timezone     string `json:"timezone"`
			DigestHour   int    `json:"digest_hour"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		o, err := h.app.Orgs.Create(r.Context(), payload.Name, payload.Slug, payload.ContactEmail, payload.Timezone, payload.DigestHour)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)

	case http.MethodGet:
		orgs, err := h.app.Orgs.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, orgs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) orgResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/orgs"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	orgID := parts[0]

	// Tokens are scoped to one tenant; reject cross-tenant access.
	if claimed := middleware.GetOrgID(r.Context()); claimed != "" && claimed != orgID {
		writeError(w, http.StatusForbidden, errors.New("token not valid for this organization"))
		return
	}

	if len(parts) == 1 {
		h.orgByID(w, r, orgID)
		return
	}

	resource := parts[1]
	rest := parts[2:]
	switch resource {
	case "sites":
		h.orgSites(w, r, orgID, rest)
	case "units":
		h.orgUnits(w, r, orgID, rest)
	case "policies":
		h.orgPolicies(w, r, orgID, rest)
	case "contacts":
		h.orgContacts(w, r, orgID, rest)
	case "alerts":
		h.orgAlerts(w, r, orgID, rest)
	case "devices":
		h.orgDevices(w, r, orgID, rest)
	case "readings":
		h.orgReadings(w, r, orgID)
	case "notifications":
		h.orgNotifications(w, r, orgID, rest)
	case "reports":
		h.orgReports(w, r, orgID, rest)
	case "subscription":
		h.orgSubscription(w, r, orgID)
	case "stream":
		h.orgStream(w, r, orgID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// orgStream hands the upgrade off to the websocket hub, pinning the
// subscription to the path's organization.
func (h *handler) orgStream(w http.ResponseWriter, r *http.Request, orgID string) {
	if h.stream == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	q.Set("org_id", orgID)
	r2 := r.Clone(r.Context())
	r2.URL.RawQuery = q.Encode()
	h.stream.ServeHTTP(w, r2)
}

func (h *handler) orgByID(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		o, err := h.app.Orgs.Get(r.Context(), orgID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, o)

	case http.MethodPatch:
		var payload struct {
			Name         *string `json:"name"`
			ContactEmail *string `json:"contact_email"`
			Timezone     *string `json:"timezone"`
			DigestHour   *int    `json:"digest_hour"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		o, err := h.app.Orgs.Update(r.Context(), orgID, payload.Name, payload.ContactEmail, payload.Timezone, payload.DigestHour)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, o)

	case http.MethodDelete:
		if err := h.app.Orgs.Delete(r.Context(), orgID); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) orgSites(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				Name     string `json:"name"`
				Address  string `json:"address"`
				Timezone string `json:"timezone"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			s, err := h.app.Sites.Create(r.Context(), orgID, payload.Name, payload.Address, payload.Timezone)
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, s)

		case http.MethodGet:
			out, err := h.app.Sites.List(r.Context(), orgID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, out)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	siteID := rest[0]
	s, err := h.app.Sites.Get(r.Context(), siteID)
	if err != nil || s.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s)

	case http.MethodPatch:
		var payload struct {
			Name     *string `json:"name"`
			Address  *string `json:"address"`
			Timezone *string `json:"timezone"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Sites.Update(r.Context(), siteID, payload.Name, payload.Address, payload.Timezone)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := h.app.Sites.Delete(r.Context(), siteID); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) orgUnits(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				SiteID string `json:"site_id"`
				Name   string `json:"name"`
				Kind   string `json:"kind"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			u, err := h.app.Units.Create(r.Context(), orgID, payload.SiteID, payload.Name, unit.Kind(payload.Kind))
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, u)

		case http.MethodGet:
			out, err := h.app.Units.List(r.Context(), orgID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, out)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	unitID := rest[0]
	u, err := h.app.Units.Get(r.Context(), unitID)
	if err != nil || u.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, u)

		case http.MethodPatch:
			var payload struct {
				Name   *string `json:"name"`
				Kind   *string `json:"kind"`
				SiteID *string `json:"site_id"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			var kind *unit.Kind
			if payload.Kind != nil {
				k := unit.Kind(*payload.Kind)
				kind = &k
			}
			updated, err := h.app.Units.Update(r.Context(), unitID, payload.Name, kind, payload.SiteID)
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusOK, updated)

		case http.MethodDelete:
			if err := h.app.Units.Delete(r.Context(), unitID); err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch rest[1] {
	case "bind":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			DeviceID string `json:"device_id"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Units.BindDevice(r.Context(), unitID, payload.DeviceID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case "unbind":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		updated, err := h.app.Units.UnbindDevice(r.Context(), unitID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case "latest":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reading, err := h.app.Ingest.Latest(r.Context(), unitID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, reading)

	case "readings":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		from, to, limit, err := readingWindow(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		readings, err := h.app.Ingest.History(r.Context(), unitID, from, to, limit)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, readings)

	case "policy":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resolved, err := h.app.Policies.ResolveForUnit(r.Context(), u)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resolved)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) orgPolicies(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				Scope               string  `json:"scope"`
				ScopeID             string  `json:"scope_id"`
				MinTempC            float64 `json:"min_temp_c"`
				MaxTempC            float64 `json:"max_temp_c"`
				DelayMinutes        int     `json:"delay_minutes"`
				RepeatMinutes       int     `json:"repeat_minutes"`
				AckTimeoutMinutes   int     `json:"ack_timeout_minutes"`
				OfflineGraceMinutes int     `json:"offline_grace_minutes"`
				Enabled             *bool   `json:"enabled"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			enabled := true
			if payload.Enabled != nil {
				enabled = *payload.Enabled
			}
			p, err := h.app.Policies.Create(r.Context(), orgID, policy.Scope(payload.Scope), payload.ScopeID, policysvc.Input{
				MinTempC:            payload.MinTempC,
				MaxTempC:            payload.MaxTempC,
				DelayMinutes:        payload.DelayMinutes,
				RepeatMinutes:       payload.RepeatMinutes,
				AckTimeoutMinutes:   payload.AckTimeoutMinutes,
				OfflineGraceMinutes: payload.OfflineGraceMinutes,
				Enabled:             enabled,
			})
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, p)

		case http.MethodGet:
			out, err := h.app.Policies.List(r.Context(), orgID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, out)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	policyID := rest[0]
	p, err := h.app.Policies.Get(r.Context(), policyID)
	if err != nil || p.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, p)

	case http.MethodPatch:
		var payload struct {
			MinTempC            *float64 `json:"min_temp_c"`
			MaxTempC            *float64 `json:"max_temp_c"`
			DelayMinutes        *int     `json:"delay_minutes"`
			RepeatMinutes       *int     `json:"repeat_minutes"`
			AckTimeoutMinutes   *int     `json:"ack_timeout_minutes"`
			OfflineGraceMinutes *int     `json:"offline_grace_minutes"`
			Enabled             *bool    `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Policies.Update(r.Context(), policyID, payload.MinTempC, payload.MaxTempC, payload.DelayMinutes, payload.RepeatMinutes, payload.AckTimeoutMinutes, payload.OfflineGraceMinutes, payload.Enabled)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := h.app.Policies.Delete(r.Context(), policyID); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) orgContacts(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				SiteID   string   `json:"site_id"`
				Name     string   `json:"name"`
				Phone    string   `json:"phone"`
				Email    string   `json:"email"`
				Level    int      `json:"level"`
				Channels []string `json:"channels"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			c, err := h.app.Contacts.Create(r.Context(), orgID, payload.SiteID, payload.Name, payload.Phone, payload.Email, payload.Level, toChannels(payload.Channels))
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, c)

		case http.MethodGet:
			out, err := h.app.Contacts.List(r.Context(), orgID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, out)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	contactID := rest[0]
	c, err := h.app.Contacts.Get(r.Context(), contactID)
	if err != nil || c.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, c)

	case http.MethodPatch:
		var payload struct {
			Name     *string  `json:"name"`
			Phone    *string  `json:"phone"`
			Email    *string  `json:"email"`
			Level    *int     `json:"level"`
			Channels []string `json:"channels"`
			Enabled  *bool    `json:"enabled"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.app.Contacts.Update(r.Context(), contactID, payload.Name, payload.Phone, payload.Email, payload.Level, toChannels(payload.Channels), payload.Enabled)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := h.app.Contacts.Delete(r.Context(), contactID); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) orgAlerts(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status := alert.Status(r.URL.Query().Get("status"))
		unitID := r.URL.Query().Get("unit_id")
		out, err := h.app.Alerts.List(r.Context(), orgID, status, unitID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	alertID := rest[0]
	a, err := h.app.Alerts.Get(r.Context(), alertID)
	if err != nil || a.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, a)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch rest[1] {
	case "ack":
		var payload struct {
			By string `json:"by"`
		}
		// A bare POST acknowledges as the token's user.
		if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if payload.By == "" {
			payload.By = middleware.GetUserID(r.Context())
		}
		updated, err := h.app.Alerts.Acknowledge(r.Context(), alertID, payload.By)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case "resolve":
		updated, err := h.app.Alerts.Resolve(r.Context(), alertID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) orgDevices(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			var payload struct {
				UnitID  string `json:"unit_id"`
				DevEUI  string `json:"dev_eui"`
				JoinEUI string `json:"join_eui"`
				AppKey  string `json:"app_key"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			d, err := h.app.Devices.Register(r.Context(), orgID, payload.UnitID, payload.DevEUI, payload.JoinEUI, payload.AppKey)
			if err != nil {
				writeError(w, errorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, d)

		case http.MethodGet:
			out, err := h.app.Devices.List(r.Context(), orgID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, out)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	deviceID := rest[0]
	d, err := h.app.Devices.Get(r.Context(), deviceID)
	if err != nil || d.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch rest[1] {
	case "retry":
		updated, err := h.app.Devices.Retry(r.Context(), deviceID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case "deactivate":
		updated, err := h.app.Devices.Deactivate(r.Context(), deviceID)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// orgReadings lists readings for one of the org's units. Storage indexes
// readings by unit, so unit_id is required.
func (h *handler) orgReadings(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	unitID := r.URL.Query().Get("unit_id")
	if unitID == "" {
		writeError(w, http.StatusBadRequest, errors.New("unit_id is required"))
		return
	}
	u, err := h.app.Units.Get(r.Context(), unitID)
	if err != nil || u.OrgID != orgID {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	from, to, limit, err := readingWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	readings, err := h.app.Ingest.History(r.Context(), unitID, from, to, limit)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *handler) orgNotifications(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	out, err := h.app.Notifications.List(r.Context(), orgID, r.URL.Query().Get("alert_id"))
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) orgReports(w http.ResponseWriter, r *http.Request, orgID string, rest []string) {
	if len(rest) == 0 || rest[0] != "compliance" || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("from must be RFC 3339"))
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("to must be RFC 3339"))
		return
	}

	rep, err := h.app.Reports.Compliance(r.Context(), orgID, q.Get("site_id"), q.Get("unit_id"), from, to)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handler) orgSubscription(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sub, err := h.app.Billing.Subscription(r.Context(), orgID)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func toChannels(in []string) []contact.Channel {
	if in == nil {
		return nil
	}
	out := make([]contact.Channel, 0, len(in))
	for _, c := range in {
		out = append(out, contact.Channel(c))
	}
	return out
}

func readingWindow(r *http.Request) (from, to time.Time, limit int, err error) {
	q := r.URL.Query()
	to = time.Now().UTC()
	from = to.Add(-24 * time.Hour)

	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			return from, to, 0, errors.New("from must be RFC 3339")
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return from, to, 0, errors.New("to must be RFC 3339")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return from, to, 0, errors.New("limit must be a non-negative integer")
		}
	}
	return from, to, limit, nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, billingsvc.ErrLimitReached):
		return http.StatusPaymentRequired
	case errors.Is(err, devicesvc.ErrBadTransition):
		return http.StatusConflict
	case errors.Is(err, policysvc.ErrNoPolicy):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
