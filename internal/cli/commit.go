package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record staged changes on the active branch",
	Long: `Record a commit on the active branch's history. Commits are log entries;
they do not write to the persisted inventory. Use 'dcb merge' for that.`,
	Run: runCommit,
}

var commitMessage string

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message")
	_ = commitCmd.MarkFlagRequired("message")
}

func runCommit(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	commit, err := c.Service.Commit(commitMessage)
	if err != nil {
		exitError("%v", err)
	}
	c.Save()

	yellow := color.New(color.FgYellow)
	fmt.Printf("[%s ", commit.Branch)
	yellow.Print(commit.ShortID())
	fmt.Printf("] %s\n", commit.Message)
}
