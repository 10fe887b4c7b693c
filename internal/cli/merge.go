package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dcbranch/internal/core"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the active branch into the persisted inventory",
	Long: `Reconcile the active branch's snapshot into the persisted inventory in
one transaction. Devices only on the branch are created, devices only in the
inventory are deleted, and changed devices are updated.

On success the branch is marked merged, a merge commit is recorded on its
parent, and the parent becomes the active branch. On failure nothing changes.`,
	Args: cobra.NoArgs,
	Run:  runMerge,
}

func runMerge(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	result, err := c.Service.MergeActiveBranch(context.Background())
	if err != nil {
		var mergeErr *core.MergeError
		if errors.As(err, &mergeErr) && mergeErr.Reason == core.MergeAlreadyMerged {
			fmt.Printf("Branch '%s' is already merged\n", mergeErr.Branch)
			return
		}
		exitError("%v", err)
	}
	c.Save()

	fmt.Printf("Merged '%s' into '%s' ", result.Branch, result.Target)
	color.New(color.FgYellow).Printf("(%s)\n", result.Commit.ShortID())
	color.New(color.FgGreen).Printf("  %d created\n", result.Created)
	color.New(color.FgYellow).Printf("  %d updated\n", result.Updated)
	color.New(color.FgRed).Printf("  %d deleted\n", result.Deleted)
	fmt.Printf("  %d unchanged\n", result.Unchanged)
	fmt.Printf("\nSwitched to branch '%s'\n", result.Target)
}
