package cli

import (
	"fmt"
	"strings"

	"warehouse-ledger/internal/app"

	"github.com/spf13/cobra"
)

func newWarehouseCmd(env *Env, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "warehouse", Short: "Manage warehouses"}

	var in app.ProvisionWarehouseRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a warehouse with its standard virtual bins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ProvisionWarehouse(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Warehouse %s (id %d) created with %d virtual bins.\n",
				res.Warehouse.Code, res.Warehouse.ID, res.BinsCreated)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&in.Code, "code", "", "Warehouse code (unique)")
	f.StringVar(&in.Name, "name", "", "Warehouse name")
	f.StringVar(&in.GSTIN, "gstin", "", "15-character GSTIN")
	f.StringVar(&in.AddressLine1, "address1", "", "Address line 1")
	f.StringVar(&in.AddressLine2, "address2", "", "Address line 2")
	f.StringVar(&in.City, "city", "", "City")
	f.StringVar(&in.State, "state", "", "State")
	f.StringVar(&in.Pincode, "pincode", "", "Pincode")
	f.StringVar(&in.Country, "country", "", "Country (default India)")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List warehouses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ListWarehouses(cmd.Context())
			if err != nil {
				return err
			}
			printWarehouses(env.Out, res)
			return nil
		},
	}

	syncBins := &cobra.Command{
		Use:   "sync-bins",
		Short: "Ensure every warehouse has all standard virtual bins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.SyncVirtualBins(cmd.Context())
			if err != nil {
				return err
			}
			printSyncBins(env.Out, res)
			return nil
		},
	}

	cmd.AddCommand(create, list, syncBins)
	return cmd
}

func newLocationCmd(env *Env, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "location", Short: "Manage physical locations"}

	var displayName string
	add := &cobra.Command{
		Use:   "add <code>",
		Short: "Add a physical storage location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := svc.AddLocation(cmd.Context(), app.AddLocationRequest{Warehouse: g.warehouse, Code: args[0], DisplayName: displayName})
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Location %s (id %d) added.\n", loc.Code, loc.ID)
			return nil
		},
	}
	add.Flags().StringVar(&displayName, "name", "", "Display name (defaults to the code)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List physical locations and virtual bins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.ListLocations(cmd.Context(), g.warehouse)
			if err != nil {
				return err
			}
			printLocations(env.Out, res)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status <code> <ACTIVE|INACTIVE>",
		Short: "Activate or deactivate a physical location",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWarehouse(g); err != nil {
				return err
			}
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := svc.SetLocationStatus(cmd.Context(), g.warehouse, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Location %s is now %s.\n", loc.Code, loc.Status)
			return nil
		},
	}

	cmd.AddCommand(add, list, status)
	return cmd
}

func newItemCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Manage the item reference table"}

	var sku, name string
	register := &cobra.Command{
		Use:   "register <id>",
		Short: "Register or update an item mirrored from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := env.service(cmd.Context())
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			if err := svc.RegisterItem(cmd.Context(), app.RegisterItemRequest{ID: id, SKU: sku, Name: name}); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Item %s registered.\n", id)
			return nil
		},
	}
	register.Flags().StringVar(&sku, "sku", "", "SKU")
	register.Flags().StringVar(&name, "name", "", "Item name")

	cmd.AddCommand(register)
	return cmd
}
