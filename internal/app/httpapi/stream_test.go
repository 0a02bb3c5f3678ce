package httpapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/getdatasurge/frostguard/internal/app/domain/alert"
	"github.com/getdatasurge/frostguard/internal/app/domain/reading"
)

func TestHubPublishesToMatchingOrg(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/?org_id=org-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	other, _, err := websocket.DefaultDialer.Dial(wsURL+"/?org_id=org-2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer other.Close()

	hub.PublishReading(reading.Reading{ID: "r-1", OrgID: "org-1", UnitID: "u-1", TempC: -18.0})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got StreamEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "reading" || got.Reading == nil || got.Reading.ID != "r-1" || got.Reading.TempC != -18.0 {
		t.Fatalf("unexpected event: %+v", got)
	}

	if err := hub.NotifyAlert(context.Background(), alert.Alert{ID: "a-1", OrgID: "org-1", Kind: alert.KindHighTemp}, 1); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read alert: %v", err)
	}
	if got.Type != "alert" || got.Alert == nil || got.Alert.ID != "a-1" || got.Level != 1 {
		t.Fatalf("unexpected alert event: %+v", got)
	}

	// The other tenant's subscriber must not receive anything.
	_ = other.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if err := other.ReadJSON(&got); err == nil {
		t.Fatal("expected no message for non-matching org")
	}
}

func TestOrgScopedStreamRoute(t *testing.T) {
	application, _ := newTestApp(t)
	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(NewHandler(application, nil, hub))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/orgs/org-9/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.PublishReading(reading.Reading{ID: "r-2", OrgID: "org-9", TempC: 4.5})
	hub.PublishReading(reading.Reading{ID: "r-3", OrgID: "org-other", TempC: 9.9})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got StreamEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Reading == nil || got.Reading.ID != "r-2" {
		t.Fatalf("expected the org's reading, got %+v", got)
	}
}
