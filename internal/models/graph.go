package models

// EdgeKind distinguishes the edges of the branch graph
type EdgeKind string

const (
	EdgeLinear EdgeKind = "linear" // Previous commit on the same branch
	EdgeFork   EdgeKind = "fork"   // Parent head at fork time -> first commit of the branch
	EdgeMerge  EdgeKind = "merge"  // Merged branch head -> merge commit on the target
)

// GraphNode is one commit placed on the layout grid
type GraphNode struct {
	CommitID int64  `json:"commit_id"`
	Branch   string `json:"branch"`
	Message  string `json:"message"`
	X        int    `json:"x"`    // Position in commit log order
	Lane     int    `json:"lane"` // Branch lane, root is 0
}

// GraphEdge connects two commits
type GraphEdge struct {
	From int64    `json:"from"`
	To   int64    `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// GraphLabel marks a branch head
type GraphLabel struct {
	Branch string `json:"branch"`
	X      int    `json:"x"`
	Lane   int    `json:"lane"`
	Head   int64  `json:"head"`
	Merged bool   `json:"merged"`
	Active bool   `json:"active"`
}

// Graph is a renderable layout of branch and merge history
type Graph struct {
	Nodes  []*GraphNode   `json:"nodes"`
	Edges  []*GraphEdge   `json:"edges"`
	Labels []*GraphLabel  `json:"labels"`
	Lanes  map[string]int `json:"lanes"`
}

// EdgesOfKind returns the edges of the given kind in insertion order
func (g *Graph) EdgesOfKind(kind EdgeKind) []*GraphEdge {
	var edges []*GraphEdge
	for _, e := range g.Edges {
		if e.Kind == kind {
			edges = append(edges, e)
		}
	}
	return edges
}

// LaneCount returns the number of distinct lanes in the layout
func (g *Graph) LaneCount() int {
	return len(g.Lanes)
}
