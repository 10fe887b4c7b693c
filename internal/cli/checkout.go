package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch>",
	Short: "Switch the active branch",
	Long: `Switch the active branch. Staged changes stay on the branch they were
made on; nothing is written to the persisted inventory.

Examples:
  dcb checkout main              # Switch to the root branch
  dcb checkout -b rack-refresh   # Fork and switch to a new branch`,
	Args: cobra.ExactArgs(1),
	Run:  runCheckout,
}

var checkoutCreate bool

func init() {
	checkoutCmd.Flags().BoolVarP(&checkoutCreate, "branch", "b", false, "Create a new branch from the active branch")
}

func runCheckout(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	name := args[0]
	if checkoutCreate {
		if _, err := c.Service.CreateBranch(name); err != nil {
			exitError("%v", err)
		}
		c.Save()
		fmt.Printf("Switched to a new branch '%s'\n", name)
		return
	}

	if c.Service.ActiveBranch().Name == name {
		fmt.Printf("Already on '%s'\n", name)
		return
	}
	if err := c.Service.SetActiveBranch(name); err != nil {
		exitError("%v", err)
	}
	c.Save()
	fmt.Printf("Switched to branch '%s'\n", name)
}
