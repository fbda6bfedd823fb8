// Package strategymap turns one institution's cycle into a renderable
// node-and-edge map: the graph model, default coordinates for nodes that were
// never dragged, Bezier edge routing, and the client drag state machine.
package strategymap

import (
	"compass/api/internal/store"
)

type NodeKind string

const (
	NodeInstitution NodeKind = "institution"
	NodeGuideline   NodeKind = "guideline"
	NodeInitiative  NodeKind = "initiative"
)

type EdgeType string

const (
	EdgeHierarchy  EdgeType = "hierarchy"
	EdgeAssignment EdgeType = "assignment"
)

type Node struct {
	ID           string
	Kind         NodeKind
	Title        string
	Depth        int
	RelationType string
	LineSide     string
	Score        int
	Comments     int
	StoredX      *int
	StoredY      *int
}

type Edge struct {
	From     string
	To       string
	Type     EdgeType
	LineSide string
}

// Graph holds nodes in traversal order: the institution anchor first, then
// guidelines in pre-order, then initiatives in list order. The layout engine
// relies on that ordering.
type Graph struct {
	Nodes []Node
	Edges []Edge

	index map[string]int
}

type Input struct {
	Institution   store.Institution
	Cycle         store.Cycle
	Guidelines    []store.Guideline
	Initiatives   []store.Initiative
	Totals        []store.VoteTotal
	CommentCounts []store.CommentCount
}

// Build assembles the map graph. Children with a parent id that does not
// resolve are surfaced as roots rather than dropped, and a visited set keeps
// the traversal finite even if stored data contains a relation cycle.
func Build(in Input) *Graph {
	g := &Graph{index: make(map[string]int)}

	totals := make(map[string]int, len(in.Totals))
	for _, t := range in.Totals {
		totals[t.TargetKind+":"+t.TargetID] = t.Total
	}
	comments := make(map[string]int, len(in.CommentCounts))
	for _, c := range in.CommentCounts {
		comments[c.TargetKind+":"+c.TargetID] = c.Count
	}

	g.add(Node{
		ID:      in.Institution.ID,
		Kind:    NodeInstitution,
		Title:   in.Institution.Name,
		StoredX: in.Cycle.MapX,
		StoredY: in.Cycle.MapY,
	})

	byID := make(map[string]store.Guideline, len(in.Guidelines))
	for _, gl := range in.Guidelines {
		byID[gl.ID] = gl
	}

	children := make(map[string][]store.Guideline)
	var roots []store.Guideline
	for _, gl := range in.Guidelines {
		if gl.RelationType == store.RelationChild && gl.ParentGuidelineID != nil {
			if _, ok := byID[*gl.ParentGuidelineID]; ok {
				children[*gl.ParentGuidelineID] = append(children[*gl.ParentGuidelineID], gl)
				continue
			}
		}
		roots = append(roots, gl)
	}

	visited := make(map[string]bool, len(in.Guidelines))
	var walk func(gl store.Guideline, depth int, parentID string)
	walk = func(gl store.Guideline, depth int, parentID string) {
		if visited[gl.ID] {
			return
		}
		visited[gl.ID] = true
		g.add(Node{
			ID:           gl.ID,
			Kind:         NodeGuideline,
			Title:        gl.Title,
			Depth:        depth,
			RelationType: gl.RelationType,
			LineSide:     gl.LineSide,
			Score:        totals[store.KindGuideline+":"+gl.ID],
			Comments:     comments[store.KindGuideline+":"+gl.ID],
			StoredX:      gl.MapX,
			StoredY:      gl.MapY,
		})
		g.Edges = append(g.Edges, Edge{From: gl.ID, To: parentID, Type: EdgeHierarchy, LineSide: gl.LineSide})
		for _, child := range children[gl.ID] {
			walk(child, depth+1, gl.ID)
		}
	}
	for _, root := range roots {
		walk(root, 0, in.Institution.ID)
	}
	// A corrupt parent chain can form a loop that never reaches a root, in
	// which case every member sits in the children index and the walk above
	// misses it. Surface whatever is left the same way unresolved parents
	// are handled.
	for _, gl := range in.Guidelines {
		if !visited[gl.ID] {
			walk(gl, 0, in.Institution.ID)
		}
	}

	for _, init := range in.Initiatives {
		g.add(Node{
			ID:       init.ID,
			Kind:     NodeInitiative,
			Title:    init.Title,
			LineSide: init.LineSide,
			Score:    totals[store.KindInitiative+":"+init.ID],
			Comments: comments[store.KindInitiative+":"+init.ID],
			StoredX:  init.MapX,
			StoredY:  init.MapY,
		})
		for _, gid := range init.GuidelineIDs {
			if _, ok := g.index[gid]; !ok {
				continue
			}
			g.Edges = append(g.Edges, Edge{From: init.ID, To: gid, Type: EdgeAssignment, LineSide: init.LineSide})
		}
	}

	return g
}

func (g *Graph) add(n Node) {
	g.index[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
}

// Node looks a node up by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}
