package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name    string
	started bool
	stopped bool
	failOn  bool
	order   *[]string
}

func (r *recordingService) Name() string { return r.name }

func (r *recordingService) Start(context.Context) error {
	if r.failOn {
		return errors.New("boom")
	}
	r.started = true
	if r.order != nil {
		*r.order = append(*r.order, "start:"+r.name)
	}
	return nil
}

func (r *recordingService) Stop(context.Context) error {
	r.stopped = true
	if r.order != nil {
		*r.order = append(*r.order, "stop:"+r.name)
	}
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var order []string
	m := NewManager()
	a := &recordingService{name: "a", order: &order}
	b := &recordingService{name: "b", order: &order}

	if err := m.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := m.Register(b); err != nil {
		t.Fatalf("register b: %v", err)
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestManagerStartFailureUnwinds(t *testing.T) {
	m := NewManager()
	a := &recordingService{name: "a"}
	bad := &recordingService{name: "bad", failOn: true}

	m.Register(a)
	m.Register(bad)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !a.stopped {
		t.Fatal("expected a to be stopped after failed start")
	}
}

func TestManagerDuplicateRegistration(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "x"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "x"}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}
