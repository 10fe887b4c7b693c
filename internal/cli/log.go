package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit history",
	Long:  `Display the commit history across all branches, newest first.`,
	Run:   runLog,
}

var (
	logOneline bool
	logLimit   int
	logBranch  string
)

func init() {
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "Show each commit on a single line")
	logCmd.Flags().IntVarP(&logLimit, "n", "n", 0, "Limit the number of commits to show")
	logCmd.Flags().StringVar(&logBranch, "branch", "", "Only show commits on this branch")
	_ = logCmd.RegisterFlagCompletionFunc("branch", completeBranches(false))
}

func runLog(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	svc := c.Service
	var commits []*models.Commit
	if logBranch != "" {
		var err error
		if commits, err = svc.BranchLog(logBranch); err != nil {
			exitError("%v", err)
		}
	} else {
		commits = svc.Commits()
	}

	if len(commits) == 0 {
		fmt.Println("No commits yet")
		return
	}

	// Newest first
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	if logLimit > 0 && logLimit < len(commits) {
		commits = commits[:logLimit]
	}

	active := svc.ActiveBranch().Name
	heads := make(map[int64]string)
	for _, b := range svc.ListBranches() {
		if cs, err := svc.BranchLog(b.Name); err == nil && len(cs) > 0 {
			heads[cs[len(cs)-1].ID] = b.Name
		}
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	printHead := func(id int64) {
		name, ok := heads[id]
		if !ok {
			return
		}
		if name == active {
			cyan.Print(" (HEAD -> ")
			green.Print(name)
			cyan.Print(")")
		} else {
			cyan.Printf(" (%s)", name)
		}
	}

	for _, commit := range commits {
		if logOneline {
			yellow.Print(commit.ShortID())
			printHead(commit.ID)
			fmt.Printf(" %s\n", commit.Message)
			continue
		}

		yellow.Printf("commit %s", commit.ShortID())
		printHead(commit.ID)
		fmt.Println()
		fmt.Printf("Branch: %s\n", commit.Branch)
		fmt.Printf("Author: %s\n", commit.Author)
		fmt.Printf("Date:   %s\n", commit.Timestamp.Format("Mon Jan 2 15:04:05 2006"))
		fmt.Printf("\n    %s\n\n", commit.Message)
	}
}
