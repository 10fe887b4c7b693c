package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dcbranch/internal/config"
	"github.com/kilupskalvis/dcbranch/internal/inventory"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new dcb repository",
	Long: `Initialize a new dcb repository in the current directory.
This creates a .dcb directory holding the configuration, the inventory
database and the branching session.

With --reset-session in an existing repository, all branches and commit
history are dropped and a fresh session starts from the persisted inventory.`,
	Run: runInit,
}

var (
	initBackend      string
	initResetSession bool
)

func init() {
	initCmd.Flags().StringVar(&initBackend, "backend", config.DefaultBackend, "Inventory backend (sqlite, bbolt, memory)")
	initCmd.Flags().BoolVar(&initResetSession, "reset-session", false, "Drop all branches and history of an existing repository")
}

func runInit(cmd *cobra.Command, args []string) {
	if initResetSession {
		c := initStores()
		defer c.Close()
		if err := c.Session.ResetState(); err != nil {
			exitError("failed to reset session: %v", err)
		}
		color.New(color.FgYellow).Println("Session reset; all branches and history dropped")
		return
	}

	// Check if already initialized
	if _, err := config.FindRoot(); err == nil {
		exitError("dcb repository already exists")
	}

	switch initBackend {
	case inventory.BackendSQLite, inventory.BackendBolt, inventory.BackendMemory:
	default:
		exitError("unknown backend %q", initBackend)
	}

	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(cwd, initBackend)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}

	// Create the inventory schema
	inv, err := inventory.Open(cfg.Backend, cfg.DatabasePath())
	if err != nil {
		exitError("failed to create inventory: %v", err)
	}
	inv.Close()

	c := initContext(context.Background())
	defer c.Close()
	c.Save()

	fmt.Printf("Initialized dcb repository in %s/\n", config.DCBDir)
	fmt.Printf("Inventory backend: %s (%s)\n", cfg.Backend, cfg.DatabasePath())
	fmt.Printf("Root branch: %s\n", c.Service.RootBranch())
	fmt.Printf("\nRun 'dcb seed <file.yaml>' to import sites, racks and devices.\n")
}
