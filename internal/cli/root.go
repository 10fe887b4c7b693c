// Package cli implements the command-line interface for dcb.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kilupskalvis/dcbranch/internal/config"
	"github.com/kilupskalvis/dcbranch/internal/core"
	"github.com/kilupskalvis/dcbranch/internal/inventory"
	"github.com/kilupskalvis/dcbranch/internal/store"
	"github.com/spf13/cobra"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config    *config.Config
	Logger    *slog.Logger
	Inventory inventory.Store
	Session   *store.Store
	Service   *core.Service
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
	if c.Inventory != nil {
		c.Inventory.Close()
	}
}

// Save persists the branching session for the next invocation
func (c *cmdContext) Save() {
	if err := c.Session.SaveState(c.Service.State()); err != nil {
		exitError("failed to save session: %v", err)
	}
}

// newLogger builds the slog logger configured for the repository
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// initStores loads config and opens the inventory and session stores (no service)
func initStores() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	c := &cmdContext{Config: cfg, Logger: newLogger(cfg)}

	inv, err := inventory.Open(cfg.Backend, cfg.DatabasePath())
	if err != nil {
		exitError("failed to open inventory: %v", err)
	}
	c.Inventory = inventory.NewRetryStore(inv, nil)

	c.Session, err = store.New(cfg.SessionPath())
	if err != nil {
		c.Close()
		exitError("failed to open session store: %v", err)
	}
	if err := c.Session.Initialize(); err != nil {
		c.Close()
		exitError("failed to initialize session store: %v", err)
	}

	return c
}

// initContext opens the stores and restores the branching service, starting
// a fresh session if none is saved
func initContext(ctx context.Context) *cmdContext {
	c := initStores()

	opts := []core.Option{
		core.WithLogger(c.Logger),
		core.WithAuthor(c.Config.Author),
		core.WithRootBranch(c.Config.RootBranch),
	}

	state, err := c.Session.LoadState()
	if err != nil {
		c.Close()
		exitError("failed to load session: %v", err)
	}

	if state == nil {
		c.Service, err = core.New(ctx, c.Inventory, opts...)
	} else {
		c.Service, err = core.Restore(ctx, c.Inventory, state, opts...)
	}
	if err != nil {
		c.Close()
		exitError("failed to start session: %v", err)
	}

	return c
}

var rootCmd = &cobra.Command{
	Use:   "dcb",
	Short: "Data-center inventory branching",
	Long: `dcb keeps a data-center inventory (sites, racks, devices) in a persisted
store and lets you fork isolated branches of it, stage device changes on a
branch, and merge a branch back into the store as one atomic operation.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
