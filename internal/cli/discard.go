package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard [branch]",
	Short: "Abandon a branch without merging it",
	Long: `Abandon a branch and drop its staged state. The branch stays in the
history as discarded. Defaults to the active branch; if the active branch is
discarded, its nearest open ancestor becomes active.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runDiscard,
}

func runDiscard(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	name := c.Service.ActiveBranch().Name
	if len(args) > 0 {
		name = args[0]
	}

	if err := c.Service.DiscardBranch(name); err != nil {
		exitError("%v", err)
	}
	c.Save()

	fmt.Printf("Discarded branch '%s'\n", name)
	fmt.Printf("On branch %s\n", c.Service.ActiveBranch().Name)
}
