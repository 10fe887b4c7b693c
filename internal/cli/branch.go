package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch [name]",
	Short: "List or create branches",
	Long: `Manage branches of the inventory.

Without arguments, lists all branches with their state.
With a name argument, forks a new branch from the active branch and
switches to it.

Examples:
  dcb branch                 # List all branches
  dcb branch rack-refresh    # Fork 'rack-refresh' from the active branch`,
	Args: cobra.MaximumNArgs(1),
	Run:  runBranch,
}

var branchAll bool

func init() {
	branchCmd.Flags().BoolVarP(&branchAll, "all", "a", false, "Include merged and discarded branches")
}

func runBranch(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	svc := c.Service

	// Create branch
	if len(args) > 0 {
		parent := svc.ActiveBranch().Name
		b, err := svc.CreateBranch(args[0])
		if err != nil {
			exitError("%v", err)
		}
		c.Save()
		fmt.Printf("Created branch '%s' from '%s'\n", b.Name, parent)
		fmt.Printf("Switched to branch '%s'\n", b.Name)
		return
	}

	// List branches
	active := svc.ActiveBranch().Name
	green := color.New(color.FgGreen)
	faint := color.New(color.Faint)

	for _, b := range svc.ListBranches() {
		if !b.IsOpen() && !branchAll {
			continue
		}
		pending, _ := svc.Pending(b.Name)
		line := b.Name
		if b.Parent != "" {
			line += fmt.Sprintf(" <- %s", b.Parent)
		}

		switch {
		case b.Name == active:
			green.Printf("* %s", line)
		case !b.IsOpen():
			faint.Printf("  %s", line)
		default:
			fmt.Printf("  %s", line)
		}
		if !b.IsOpen() {
			faint.Printf(" [%s]", b.State())
		} else if pending > 0 {
			color.New(color.FgYellow).Printf(" (%d staged)", pending)
		}
		fmt.Println()
	}
}
