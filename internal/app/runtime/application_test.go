package runtime

import (
	"context"
	"testing"
)

func TestNewApplicationWithMemoryStores(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("REDIS_ADDR", "")

	a, err := NewApplication()
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if a.httpServer.Addr == "" {
		t.Fatal("expected a listen address")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewApplicationRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	if _, err := NewApplication(); err == nil {
		t.Fatal("expected config error without AUTH_JWT_SECRET")
	}
}
