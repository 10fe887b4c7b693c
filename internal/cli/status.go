package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active branch and its staged changes",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	c := initContext(ctx)
	defer c.Close()

	svc := c.Service
	active := svc.ActiveBranch()

	fmt.Printf("On branch %s", active.Name)
	if !active.IsRoot() {
		fmt.Printf(" (forked from %s)", active.Parent)
	}
	fmt.Println()

	if active.IsRoot() {
		color.New(color.FgYellow).Println("The root branch mirrors the persisted inventory and is read-only.")
		fmt.Println("  (use \"dcb checkout -b <name>\" to start a branch)")
	}

	snap, err := svc.ActiveSnapshot()
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Devices: %d\n", snap.Len())
	if saved, err := c.Session.SavedAt(); err == nil && !saved.IsZero() {
		fmt.Printf("Session saved %s\n", saved.Local().Format("2006-01-02 15:04:05"))
	}

	pending, err := svc.Pending(active.Name)
	if err != nil {
		exitError("%v", err)
	}
	if pending == 0 {
		fmt.Println("\nNothing staged since the last commit")
	} else {
		fmt.Printf("\nStaged changes since the last commit: %d\n", pending)
		fmt.Println("  (use \"dcb commit -m <message>\" to record them)")
	}

	if active.IsRoot() {
		return
	}

	plan, err := svc.PreviewMerge(ctx)
	if err != nil {
		c.Logger.Debug("merge preview unavailable", "error", err)
		return
	}
	if plan.IsEmpty() {
		fmt.Println("Branch matches the persisted inventory")
		return
	}
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	fmt.Print("Merge would apply: ")
	green.Printf("%d create(s) ", len(plan.Creates))
	yellow.Printf("%d update(s) ", len(plan.Updates))
	red.Printf("%d delete(s)\n", len(plan.Deletes))
}
