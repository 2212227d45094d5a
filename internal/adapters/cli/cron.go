package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"warehouse-ledger/internal/adapters/scheduler"
	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/core"
	"warehouse-ledger/internal/logger"

	"github.com/spf13/cobra"
)

func newCronCmd(env *Env) *cobra.Command {
	var jobName string
	var list bool
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Run the reconciliation scheduler, or a single job by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := scheduler.New(logger.Logger)
			if _, err := scheduler.RegisterReconcileJobs(s, lazyReconciler{env}, env.Config); err != nil {
				return err
			}

			if list {
				for _, j := range s.Jobs() {
					fmt.Fprintf(env.Out, "%-22s %s\n", j.Name, j.Schedule)
				}
				return nil
			}
			if jobName != "" {
				return s.RunNow(cmd.Context(), jobName)
			}
			if len(s.Jobs()) == 0 {
				return fmt.Errorf("no jobs scheduled; set RECONCILE_EXCESS_SCHEDULE or RECONCILE_RETURN_SCHEDULE")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := s.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "Scheduler started. Press Ctrl+C to exit.")
			<-ctx.Done()
			<-s.Stop().Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&jobName, "job", "j", "", "Run a single job by name and exit")
	cmd.Flags().BoolVar(&list, "list", false, "List configured jobs and exit")
	return cmd
}

// lazyReconciler opens the service on the first job run, so listing jobs needs no database.
type lazyReconciler struct {
	env *Env
}

func (r lazyReconciler) ListWarehouses(ctx context.Context) (*app.WarehouseListResult, error) {
	svc, err := r.env.service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.ListWarehouses(ctx)
}

func (r lazyReconciler) ReturnToLost(ctx context.Context, req core.ReturnToLostRequest) (*core.ReconcileReport, error) {
	svc, err := r.env.service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.ReturnToLost(ctx, req)
}

func (r lazyReconciler) CleanupExcessPending(ctx context.Context, req core.ExcessCleanupRequest) (*core.ReconcileReport, error) {
	svc, err := r.env.service(ctx)
	if err != nil {
		return nil, err
	}
	return svc.CleanupExcessPending(ctx, req)
}
