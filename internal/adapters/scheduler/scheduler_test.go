package scheduler

import (
	"context"
	"errors"
	"testing"

	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/config"
	"warehouse-ledger/internal/core"

	"github.com/rs/zerolog"
)

func TestRegister_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	ran := false
	if err := s.Register("testjob", "@every 1h", func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Schedule != "@every 1h" {
		t.Fatalf("Jobs() = %+v", jobs)
	}
	if err := s.RunNow(context.Background(), "testjob"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !ran {
		t.Error("Run did not execute")
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRegister_Rejects(t *testing.T) {
	s := New(zerolog.Nop())
	noop := func(context.Context) error { return nil }

	if err := s.Register("dup", "@hourly", noop); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := s.Register("dup", "@daily", noop); err == nil {
		t.Error("expected error on duplicate")
	}
	if err := s.Register("bad", "every now and then", noop); err == nil {
		t.Error("expected error on invalid schedule")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Register("late", "@hourly", noop); err == nil {
		t.Error("expected error registering after start")
	}
}

func TestRunNow_PropagatesError(t *testing.T) {
	s := New(zerolog.Nop())
	boom := errors.New("boom")
	_ = s.Register("fails", "@daily", func(context.Context) error { return boom })

	if err := s.RunNow(context.Background(), "fails"); !errors.Is(err, boom) {
		t.Errorf("RunNow error = %v, want boom", err)
	}
}

type fakeReconciler struct {
	warehouses []core.Warehouse
	returned   []string
	cleanups   int
	failOn     string
}

func (f *fakeReconciler) ListWarehouses(ctx context.Context) (*app.WarehouseListResult, error) {
	return &app.WarehouseListResult{Warehouses: f.warehouses}, nil
}

func (f *fakeReconciler) ReturnToLost(ctx context.Context, req core.ReturnToLostRequest) (*core.ReconcileReport, error) {
	f.returned = append(f.returned, req.WarehouseCode)
	if req.WarehouseCode == f.failOn {
		return nil, &core.ValidationError{Field: "bin", Message: "missing"}
	}
	return &core.ReconcileReport{}, nil
}

func (f *fakeReconciler) CleanupExcessPending(ctx context.Context, req core.ExcessCleanupRequest) (*core.ReconcileReport, error) {
	f.cleanups++
	if req.WarehouseCode != "" || req.Actor != jobActor {
		return nil, errors.New("cleanup should scan all warehouses as the scheduler")
	}
	return &core.ReconcileReport{}, nil
}

func TestRegisterReconcileJobs(t *testing.T) {
	fake := &fakeReconciler{
		warehouses: []core.Warehouse{
			{Code: "WH1", Status: core.StatusActive},
			{Code: "OLD", Status: core.StatusInactive},
			{Code: "WH2", Status: core.StatusActive},
		},
		failOn: "WH1",
	}

	s := New(zerolog.Nop())
	names, err := RegisterReconcileJobs(s, fake, &config.Config{})
	if err != nil || len(names) != 0 {
		t.Fatalf("expected no jobs without schedules, got %v %v", names, err)
	}

	cfg := &config.Config{ExcessCleanupSchedule: "@daily", ReturnToLostSchedule: "0 * * * *"}
	names, err = RegisterReconcileJobs(s, fake, cfg)
	if err != nil {
		t.Fatalf("RegisterReconcileJobs: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 jobs, got %v", names)
	}

	if err := s.RunNow(context.Background(), JobExcessCleanup); err != nil {
		t.Errorf("excess cleanup: %v", err)
	}
	if fake.cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", fake.cleanups)
	}

	// WH1 fails but WH2 still runs; the inactive warehouse is skipped.
	err = s.RunNow(context.Background(), JobReturnToLost)
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected joined validation error, got %v", err)
	}
	if len(fake.returned) != 2 || fake.returned[0] != "WH1" || fake.returned[1] != "WH2" {
		t.Errorf("returned = %v", fake.returned)
	}
}
