package cli

import (
	"time"

	"warehouse-ledger/internal/core"

	"github.com/spf13/cobra"
)

func newReturnToLostCmd(env *Env, g *globalFlags) *cobra.Command {
	var dryRun bool
	var ref string
	cmd := &cobra.Command{
		Use:   "return-to-lost",
		Short: "Move every positive RETURN balance into the LOST bin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.ReturnToLost(cmd.Context(), core.ReturnToLostRequest{
				WarehouseCode: g.warehouse, BatchRef: ref, DryRun: dryRun, Actor: g.actor,
			})
			if err != nil {
				return err
			}
			printReport(env.Out, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the moves without posting")
	cmd.Flags().StringVar(&ref, "ref", "", "Batch reference; a reference already posted is rejected")
	return cmd
}

func newFixExcessPendingCmd(env *Env, g *globalFlags) *cobra.Command {
	var dryRun bool
	var limit int
	cmd := &cobra.Command{
		Use:   "fix-excess-pending",
		Short: "Write off stuck EXCESS_PENDING quantities (all warehouses unless --warehouse)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.CleanupExcessPending(cmd.Context(), core.ExcessCleanupRequest{
				WarehouseCode: g.warehouse, DryRun: dryRun, Limit: limit, Actor: g.actor,
			})
			if report != nil {
				printReport(env.Out, report)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the write-offs without posting")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum items per warehouse (0 = no limit)")
	return cmd
}

func newZeroReturnCmd(env *Env, g *globalFlags) *cobra.Command {
	var dryRun bool
	var ref string
	cmd := &cobra.Command{
		Use:   "zero-return",
		Short: "Bring every RETURN balance to zero against the LOST bin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.ZeroReturnBin(cmd.Context(), core.ZeroReturnRequest{
				WarehouseCode: g.warehouse, BatchRef: ref, DryRun: dryRun, Actor: g.actor,
			})
			if err != nil {
				return err
			}
			printReport(env.Out, report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the moves without posting")
	cmd.Flags().StringVar(&ref, "ref", "", "Batch reference; a reference already posted is rejected")
	return cmd
}

func newResetBinsCmd(env *Env, g *globalFlags) *cobra.Command {
	var dryRun bool
	var bins string
	cmd := &cobra.Command{
		Use:   "reset-bins",
		Short: "Zero the listed virtual bins against outside stock (all warehouses unless --warehouse)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subtypes, err := core.ParseVirtualSubtypes(bins)
			if err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.ResetVirtualBins(cmd.Context(), core.ResetBinsRequest{
				WarehouseCode: g.warehouse, Bins: subtypes, DryRun: dryRun, Actor: g.actor,
			})
			if report != nil {
				printReport(env.Out, report)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the corrections without posting")
	cmd.Flags().StringVar(&bins, "bins", "RETURN,LOST", "Comma-separated virtual bins to reset")
	return cmd
}

func newAuditCmd(env *Env, g *globalFlags) *cobra.Command {
	var since time.Duration
	var model string
	var limit int
	var anomaliesOnly bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check recent batches for missing registration or unbalanced relocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.AuditBatches(cmd.Context(), core.AuditRequest{
				WarehouseCode: g.warehouse, Since: since, RefModel: model, Limit: limit,
			})
			if err != nil {
				return err
			}
			printAudit(env.Out, res, anomaliesOnly)
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 2*time.Hour, "Look-back window")
	cmd.Flags().StringVar(&model, "model", "", "Only batches with this ref_model")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum batches to report")
	cmd.Flags().BoolVar(&anomaliesOnly, "anomalies", false, "Only print batches with anomalies")
	return cmd
}
