package core

import "github.com/kilupskalvis/dcbranch/internal/models"

// BuildGraph lays out the commit log as a lane graph.
//
// Lanes are assigned in first-appearance order with the root branch pinned
// to lane 0. Commits are placed left to right in log order, so simultaneous
// events are ordered by insertion. Each commit is linked to the previous
// commit on its branch; the first commit of a forked branch is linked from
// the parent's head at that point; a merge commit is linked from the merged
// branch's head. Labels mark every branch head.
func BuildGraph(branches []*models.Branch, commits []*models.Commit, active string) *models.Graph {
	g := &models.Graph{
		Nodes:  make([]*models.GraphNode, 0, len(commits)),
		Edges:  make([]*models.GraphEdge, 0),
		Labels: make([]*models.GraphLabel, 0, len(branches)),
		Lanes:  make(map[string]int),
	}

	for _, b := range branches {
		if b.IsRoot() {
			g.Lanes[b.Name] = 0
		}
	}
	assignLane := func(name string) {
		if _, ok := g.Lanes[name]; !ok {
			g.Lanes[name] = len(g.Lanes)
		}
	}
	for _, c := range commits {
		assignLane(c.Branch)
	}
	for _, b := range branches {
		assignLane(b.Name)
	}

	heads := make(map[string]*models.GraphNode)
	for x, c := range commits {
		node := &models.GraphNode{
			CommitID: c.ID,
			Branch:   c.Branch,
			Message:  c.Message,
			X:        x,
			Lane:     g.Lanes[c.Branch],
		}
		g.Nodes = append(g.Nodes, node)

		if prev, ok := heads[c.Branch]; ok {
			g.Edges = append(g.Edges, &models.GraphEdge{From: prev.CommitID, To: c.ID, Kind: models.EdgeLinear})
		} else if branch, parent, ok := models.ParseForkMessage(c.Message); ok && branch == c.Branch {
			if from, ok := heads[parent]; ok {
				g.Edges = append(g.Edges, &models.GraphEdge{From: from.CommitID, To: c.ID, Kind: models.EdgeFork})
			}
		}

		if merged, _, ok := models.ParseMergeMessage(c.Message); ok {
			if from, ok := heads[merged]; ok {
				g.Edges = append(g.Edges, &models.GraphEdge{From: from.CommitID, To: c.ID, Kind: models.EdgeMerge})
			}
		}

		heads[c.Branch] = node
	}

	for _, b := range branches {
		head, ok := heads[b.Name]
		if !ok {
			continue
		}
		g.Labels = append(g.Labels, &models.GraphLabel{
			Branch: b.Name,
			X:      head.X,
			Lane:   head.Lane,
			Head:   head.CommitID,
			Merged: b.Merged,
			Active: b.Name == active,
		})
	}

	return g
}
