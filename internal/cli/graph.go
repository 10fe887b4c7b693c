package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Draw the branch and merge history",
	Long: `Draw the commit history as lanes, one per branch, newest first.
Forks and merges are marked on the commit where they happen.`,
	Run: runGraph,
}

var laneColors = []color.Attribute{
	color.FgGreen,
	color.FgCyan,
	color.FgMagenta,
	color.FgBlue,
	color.FgYellow,
	color.FgRed,
}

// laneSpan is the range of commit positions a lane is drawn over
type laneSpan struct {
	from, to int
}

func runGraph(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()

	g := c.Service.Graph()
	if len(g.Nodes) == 0 {
		fmt.Println("No commits yet")
		return
	}

	lanes := g.LaneCount()
	spans := laneSpans(g)
	labels := make(map[int64][]*models.GraphLabel)
	for _, l := range g.Labels {
		labels[l.Head] = append(labels[l.Head], l)
	}

	for i := len(g.Nodes) - 1; i >= 0; i-- {
		n := g.Nodes[i]
		for lane := 0; lane < lanes; lane++ {
			col := color.New(laneColors[lane%len(laneColors)])
			span, ok := spans[lane]
			switch {
			case lane == n.Lane:
				col.Print("* ")
			case ok && n.X >= span.from && n.X <= span.to:
				col.Print("| ")
			default:
				fmt.Print("  ")
			}
		}

		color.New(color.FgYellow).Printf("%-4s", fmt.Sprintf("c%d", n.CommitID))
		for _, l := range labels[n.CommitID] {
			printLabel(l)
		}
		fmt.Printf(" %s\n", n.Message)
	}
}

// laneSpans computes, for every lane, the positions from its fork point to
// its last commit or the merge that closed it
func laneSpans(g *models.Graph) map[int]laneSpan {
	byID := make(map[int64]*models.GraphNode, len(g.Nodes))
	spans := make(map[int]laneSpan)
	for _, n := range g.Nodes {
		byID[n.CommitID] = n
		s, ok := spans[n.Lane]
		if !ok {
			s = laneSpan{from: n.X, to: n.X}
		}
		s.from = min(s.from, n.X)
		s.to = max(s.to, n.X)
		spans[n.Lane] = s
	}

	for _, e := range g.Edges {
		from, to := byID[e.From], byID[e.To]
		if from == nil || to == nil {
			continue
		}
		switch e.Kind {
		case models.EdgeFork:
			s := spans[to.Lane]
			s.from = min(s.from, from.X+1)
			spans[to.Lane] = s
		case models.EdgeMerge:
			s := spans[from.Lane]
			s.to = max(s.to, to.X-1)
			spans[from.Lane] = s
		}
	}
	return spans
}

func printLabel(l *models.GraphLabel) {
	var parts []string
	if l.Active {
		parts = append(parts, "HEAD -> "+l.Branch)
	} else {
		parts = append(parts, l.Branch)
	}
	if l.Merged {
		parts = append(parts, "merged")
	}
	text := "(" + strings.Join(parts, ", ") + ")"
	if l.Active {
		color.New(color.FgGreen, color.Bold).Print(" " + text)
		return
	}
	color.New(color.FgCyan).Print(" " + text)
}
