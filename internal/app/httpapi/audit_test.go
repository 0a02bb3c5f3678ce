package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestAuditRecordsMutatingRequests(t *testing.T) {
	application, _ := newTestApp(t)

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileAuditSink(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	auditBuf := NewAuditLog(10, sink)
	handler := WrapWithAudit(NewHandler(application, auditBuf, nil), auditBuf)

	rec := doJSON(t, handler, http.MethodPost, "/orgs", map[string]any{"name": "Acme"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create org: expected 201, got %d", rec.Code)
	}
	// Reads are not audited.
	if rec := doJSON(t, handler, http.MethodGet, "/orgs", nil); rec.Code != http.StatusOK {
		t.Fatalf("list orgs: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: expected 200, got %d", rec.Code)
	}
	var entries []AuditEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Method != http.MethodPost || entries[0].Path != "/orgs" || entries[0].Status != http.StatusCreated {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()
	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad jsonl line: %v", err)
		}
		lines++
	}
	if lines != 1 {
		t.Fatalf("expected 1 jsonl line, got %d", lines)
	}
}

func TestAuditRingBounded(t *testing.T) {
	l := NewAuditLog(3, nil)
	for i := 0; i < 5; i++ {
		l.add(AuditEntry{Method: http.MethodPost, Status: 200 + i})
	}
	got := l.listLimit(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Status != 202 || got[2].Status != 204 {
		t.Fatalf("expected oldest entries evicted, got %+v", got)
	}
}
