package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"warehouse-ledger/internal/app"
	"warehouse-ledger/internal/config"
	"warehouse-ledger/internal/logger"

	"github.com/spf13/cobra"
)

// ServiceFactory opens the application service. The returned func releases its resources.
type ServiceFactory func(ctx context.Context) (app.ApplicationService, func(), error)

// Env is what every command needs. The service is opened lazily so that commands such as
// `schema` work without a database.
type Env struct {
	Config  *config.Config
	Open    ServiceFactory
	Migrate func(databaseURL string) (uint, error)
	In      io.Reader
	Out     io.Writer

	mu      sync.Mutex
	svc     app.ApplicationService
	closeFn func()
}

func (e *Env) service(ctx context.Context) (app.ApplicationService, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.svc != nil {
		return e.svc, nil
	}
	svc, closeFn, err := e.Open(ctx)
	if err != nil {
		return nil, err
	}
	e.svc, e.closeFn = svc, closeFn
	return svc, nil
}

// Close releases the service if one was opened.
func (e *Env) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closeFn != nil {
		e.closeFn()
		e.closeFn = nil
	}
	e.svc = nil
}

type globalFlags struct {
	warehouse string
	actor     string
	verbose   bool
}

// NewRootCommand builds the stockctl command tree.
func NewRootCommand(env *Env) *cobra.Command {
	if env.In == nil {
		env.In = os.Stdin
	}
	if env.Out == nil {
		env.Out = os.Stdout
	}
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Warehouse stock ledger: post movements, inspect balances, run reconciliation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.verbose {
				logger.SetLevel("debug")
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			env.Close()
		},
	}
	root.SetIn(env.In)
	root.SetOut(env.Out)

	pf := root.PersistentFlags()
	pf.StringVarP(&g.warehouse, "warehouse", "w", "", "Warehouse code or id")
	pf.StringVar(&g.actor, "actor", os.Getenv("USER"), "User recorded on posted ledger rows")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newMigrateCmd(env),
		newWarehouseCmd(env, g),
		newLocationCmd(env, g),
		newItemCmd(env),
		newBalanceCmd(env, g),
		newStockCmd(env, g),
		newMoveCmd(env, g),
		newPutawayCmd(env, g),
		newPutawayListCmd(env, g),
		newBatchCmd(env, g),
		newReturnToLostCmd(env, g),
		newFixExcessPendingCmd(env, g),
		newZeroReturnCmd(env, g),
		newResetBinsCmd(env, g),
		newAuditCmd(env, g),
		newSchemaCmd(env),
		newCronCmd(env),
	)
	return root
}

func newMigrateCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Config.RequireDatabase(); err != nil {
				return err
			}
			version, err := env.Migrate(env.Config.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "Schema at version %d.\n", version)
			return nil
		},
	}
}

func requireWarehouse(g *globalFlags) error {
	if g.warehouse == "" {
		return fmt.Errorf("--warehouse is required")
	}
	return nil
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
