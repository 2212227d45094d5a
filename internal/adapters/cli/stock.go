package cli

import (
	"fmt"

	"warehouse-ledger/internal/app"

	"github.com/spf13/cobra"
)

func newBalanceCmd(env *Env, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <location> <item>",
		Short: "Show one item's balance at a location or virtual bin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.GetBalance(cmd.Context(), g.warehouse, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "%s  %s  %s  %s\n", res.WarehouseCode, res.Location.Label(), res.ItemID, res.Qty.String())
			return nil
		},
	}
}

func newStockCmd(env *Env, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stock <location>",
		Short: "List non-zero balances at a location or virtual bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.GetLocationStock(cmd.Context(), g.warehouse, args[0])
			if err != nil {
				return err
			}
			printStock(env.Out, res)
			return nil
		},
	}
}

func newMoveCmd(env *Env, g *globalFlags) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Post an internal move read as JSON from stdin (see `stockctl schema move`)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req app.MoveRequest
			if err := decodeJSON(env.In, &req); err != nil {
				return err
			}
			if req.Warehouse == "" {
				req.Warehouse = g.warehouse
			}
			if req.Ref == "" {
				req.Ref = ref
			}
			if req.Actor == "" {
				req.Actor = g.actor
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.MoveStock(cmd.Context(), req)
			if err != nil {
				return err
			}
			printMoveResult(env.Out, res)
			if !res.Duplicate && len(res.Errors) > 0 {
				return fmt.Errorf("%d item(s) not moved", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "Batch reference (used when the payload has none)")
	return cmd
}

func newPutawayCmd(env *Env, g *globalFlags) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "putaway",
		Short: "Post putaway actions read as JSON from stdin (see `stockctl schema putaway`)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req app.PutawayRequest
			if err := decodeJSON(env.In, &req); err != nil {
				return err
			}
			if req.Warehouse == "" {
				req.Warehouse = g.warehouse
			}
			if req.Ref == "" {
				req.Ref = ref
			}
			if req.Actor == "" {
				req.Actor = g.actor
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Putaway(cmd.Context(), req)
			if err != nil {
				return err
			}
			printPutawayResult(env.Out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "Batch reference (used when the payload has none)")
	return cmd
}

func newPutawayListCmd(env *Env, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "putaway-list",
		Short: "List stock waiting in RETURN and RECEIVE bins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ListPutawayCandidates(cmd.Context(), g.warehouse)
			if err != nil {
				return err
			}
			printPutawayCandidates(env.Out, res)
			return nil
		},
	}
}

func newBatchCmd(env *Env, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <ref_model> <ref_id>",
		Short: "Show the ledger rows posted under one batch reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.GetBatch(cmd.Context(), g.warehouse, args[0], args[1])
			if err != nil {
				return err
			}
			printBatch(env.Out, res)
			return nil
		},
	}
}
