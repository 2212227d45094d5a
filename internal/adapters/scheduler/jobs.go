package scheduler

import (
	"context"
	"errors"
	"fmt"

	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/config"
	"warehouse-ledger/internal/core"
)

// Job names accepted by `stockctl cron --job`.
const (
	JobExcessCleanup = "fix-excess-pending"
	JobReturnToLost  = "return-to-lost"
)

// Reconciler is the slice of app.ApplicationService the reconciliation jobs need.
type Reconciler interface {
	ListWarehouses(ctx context.Context) (*app.WarehouseListResult, error)
	ReturnToLost(ctx context.Context, req core.ReturnToLostRequest) (*core.ReconcileReport, error)
	CleanupExcessPending(ctx context.Context, req core.ExcessCleanupRequest) (*core.ReconcileReport, error)
}

const jobActor = "scheduler"

// RegisterReconcileJobs registers the reconciliation jobs that have a schedule in cfg.
// It returns the names it registered.
func RegisterReconcileJobs(s *Scheduler, svc Reconciler, cfg *config.Config) ([]string, error) {
	var names []string
	if cfg.ExcessCleanupSchedule != "" {
		err := s.Register(JobExcessCleanup, cfg.ExcessCleanupSchedule, func(ctx context.Context) error {
			_, err := svc.CleanupExcessPending(ctx, core.ExcessCleanupRequest{Actor: jobActor})
			return err
		})
		if err != nil {
			return names, err
		}
		names = append(names, JobExcessCleanup)
	}
	if cfg.ReturnToLostSchedule != "" {
		err := s.Register(JobReturnToLost, cfg.ReturnToLostSchedule, func(ctx context.Context) error {
			return returnToLostAll(ctx, svc)
		})
		if err != nil {
			return names, err
		}
		names = append(names, JobReturnToLost)
	}
	return names, nil
}

// returnToLostAll runs the job warehouse by warehouse; one failing warehouse does not stop the rest.
func returnToLostAll(ctx context.Context, svc Reconciler) error {
	list, err := svc.ListWarehouses(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, wh := range list.Warehouses {
		if wh.Status != core.StatusActive {
			continue
		}
		if _, err := svc.ReturnToLost(ctx, core.ReturnToLostRequest{WarehouseCode: wh.Code, Actor: jobActor}); err != nil {
			errs = append(errs, fmt.Errorf("warehouse %s: %w", wh.Code, err))
		}
	}
	return errors.Join(errs...)
}
