package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/getdatasurge/frostguard/internal/app"
	"github.com/getdatasurge/frostguard/internal/app/domain/billing"
	"github.com/getdatasurge/frostguard/internal/app/domain/unit"
	"github.com/getdatasurge/frostguard/internal/app/storage/memory"
)

const webhookSecret = "whsec_test"

func newWebhookApp(t *testing.T) (*app.Application, *memory.Store) {
	t.Helper()
	store := memory.New()
	application, err := app.New(app.Stores{
		Orgs:          store,
		Sites:         store,
		Units:         store,
		Policies:      store,
		Readings:      store,
		Alerts:        store,
		Contacts:      store,
		Notifications: store,
		Devices:       store,
		Subscriptions: store,
		Reports:       store,
	}, app.Options{BillingWebhookSecret: webhookSecret}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return application, store
}

func uplinkPayload(devEUI, receivedAt string, temp float64) []byte {
	return []byte(fmt.Sprintf(`{
		"end_device_ids": {"device_id": "sensor-1", "dev_eui": %q},
		"received_at": %q,
		"uplink_message": {
			"f_port": 2,
			"decoded_payload": {"temperature": %g, "humidity": 61.5, "battery": 3.58}
		}
	}`, devEUI, receivedAt, temp))
}

func TestUplinkWebhook(t *testing.T) {
	application, _ := newWebhookApp(t)
	ctx := context.Background()
	handler := NewWebhookHandler(application, WebhookConfig{TTNSecret: "ttn-token"})

	o, err := application.Orgs.Create(ctx, "Acme", "", "ops@acme.test", "UTC", 7)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	st, err := application.Sites.Create(ctx, o.ID, "Warehouse", "", "")
	if err != nil {
		t.Fatalf("create site: %v", err)
	}
	u, err := application.Units.Create(ctx, o.ID, st.ID, "Freezer 1", unit.KindFreezer)
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, err := application.Devices.Register(ctx, o.ID, u.ID, "70B3D57ED0001234", "70B3D57ED0000001", "2B7E151628AED2A6ABF7158809CF4F3C"); err != nil {
		t.Fatalf("register device: %v", err)
	}

	post := func(body []byte, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/ttn", bytes.NewReader(body))
		if token != "" {
			req.Header.Set("X-Webhook-Token", token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	payload := uplinkPayload("70B3D57ED0001234", "2026-03-10T08:00:00Z", -17.2)

	rec := post(payload, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	rec = post(payload, "ttn-token")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("uplink: expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Webhook retries must be acknowledged without creating a second reading.
	rec = post(payload, "ttn-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = post(uplinkPayload("AAAAAAAAAAAAAAAA", "2026-03-10T08:05:00Z", -17.0), "ttn-token")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown device: expected 404, got %d", rec.Code)
	}

	rec = post([]byte(`{"nope": true}`), "ttn-token")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid payload: expected 400, got %d", rec.Code)
	}

	got, err := application.Ingest.Latest(ctx, u.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.TempC != -17.2 {
		t.Fatalf("unexpected temp %v", got.TempC)
	}
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestBillingWebhook(t *testing.T) {
	application, _ := newWebhookApp(t)
	ctx := context.Background()
	handler := NewWebhookHandler(application, WebhookConfig{})

	o, err := application.Orgs.Create(ctx, "Acme", "", "ops@acme.test", "UTC", 7)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}

	event := map[string]any{
		"type": "subscription.updated",
		"data": map[string]any{
			"org_id":      o.ID,
			"customer_id": "cus_123",
			"plan":        "pro",
			"status":      "active",
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	post := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		req.Header.Set("X-Signature", signature)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post(payload, "sha256=deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: expected 401, got %d", rec.Code)
	}

	rec = post(payload, sign(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	sub, err := application.Billing.Subscription(ctx, o.ID)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.Plan != "pro" || sub.Status != billing.StatusActive {
		t.Fatalf("subscription not updated: plan=%q status=%q", sub.Plan, sub.Status)
	}
	if sub.ProviderCustomerID != "cus_123" {
		t.Fatalf("customer id not recorded: %q", sub.ProviderCustomerID)
	}
}
