package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show what merging the active branch would change",
	Long: `Compare the active branch's snapshot with the persisted inventory and
show the creates, updates and deletes a merge would apply. Nothing is written.`,
	Run: runDiff,
}

var diffStat bool

func init() {
	diffCmd.Flags().BoolVar(&diffStat, "stat", false, "Show only a summary of changes")
}

func runDiff(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	plan, err := c.Service.PreviewMerge(context.Background())
	if err != nil {
		exitError("%v", err)
	}

	if plan.IsEmpty() {
		fmt.Printf("No differences between '%s' and the persisted inventory\n", plan.Branch)
		return
	}

	fmt.Printf("Merging '%s' into '%s' would apply:\n\n", plan.Branch, plan.Target)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	if diffStat {
		green.Printf("  %d to create\n", len(plan.Creates))
		yellow.Printf("  %d to update\n", len(plan.Updates))
		red.Printf("  %d to delete\n", len(plan.Deletes))
		fmt.Printf("  %d unchanged\n", plan.Unchanged)
		return
	}

	for _, op := range plan.Creates {
		green.Printf("+ %s %s\n", op.ObjectID, op.Current.Name)
	}
	for _, op := range plan.Updates {
		yellow.Printf("~ %s %s\n", op.ObjectID, op.Current.Name)
		for _, line := range deviceChanges(op.Previous, op.Current) {
			fmt.Printf("    %s\n", line)
		}
	}
	for _, op := range plan.Deletes {
		red.Printf("- %s %s\n", op.ObjectID, op.Previous.Name)
	}

	fmt.Printf("\n%d change(s), %d unchanged\n", plan.TotalChanges(), plan.Unchanged)
}

// deviceChanges describes the column differences between two versions of a device
func deviceChanges(prev, curr *models.Device) []string {
	var lines []string
	field := func(name string, a, b any) {
		if fmt.Sprint(a) != fmt.Sprint(b) {
			lines = append(lines, fmt.Sprintf("%s: %v -> %v", name, a, b))
		}
	}
	field("name", prev.Name, curr.Name)
	field("site", prev.SiteID, curr.SiteID)
	field("rack", prev.RackID, curr.RackID)
	field("role", prev.RoleID, curr.RoleID)
	field("platform", prev.PlatformID, curr.PlatformID)
	field("position", prev.Position, curr.Position)
	field("status", prev.Status, curr.Status)
	field("serial", prev.Serial, curr.Serial)
	field("asset_tag", prev.AssetTag, curr.AssetTag)
	field("tags", prev.Tags, curr.Tags)
	field("custom_fields", prev.CustomFields, curr.CustomFields)
	return lines
}
