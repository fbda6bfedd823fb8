package strategymap

import "math"

// Layout geometry. All values are map-space pixels.
const (
	originX = 480.0
	originY = 60.0

	rootOffsetY = 180.0
	rowHeight   = 130.0
	colWidth    = 260.0

	gridColumns = 4
	gridStepX   = 230.0
	gridStepY   = 160.0
	gridGapX    = 180.0

	nodeWidth         = 180.0
	parentWidthFactor = 1.5
	baseHeight        = 56.0
	voteRowHeight     = 16.0
	squaresPerRow     = 5
	commentFooter     = 20.0

	fitPadding = 80.0
)

type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) CenterX() float64 { return r.X + r.W/2 }
func (r Rect) CenterY() float64 { return r.Y + r.H/2 }

type PlacedNode struct {
	Node
	Rect Rect
}

type RoutedEdge struct {
	Edge
	Path Path
}

type Layout struct {
	Nodes []PlacedNode
	Edges []RoutedEdge

	rects map[string]Rect
}

// Compute places every node and routes every edge. Stored coordinates always
// win; the depth-first guideline layout and the initiative grid only fill in
// nodes that were never dragged. A dragged node still consumes its default
// slot, so its siblings keep stable positions.
func Compute(g *Graph) *Layout {
	l := &Layout{rects: make(map[string]Rect, len(g.Nodes))}

	cursorY := originY + rootOffsetY
	gridIndex := 0
	maxGuidelineCol := 0.0

	for _, n := range g.Nodes {
		var defX, defY float64
		switch n.Kind {
		case NodeInstitution:
			defX, defY = originX, originY
		case NodeGuideline:
			defX = originX + float64(n.Depth+1)*colWidth
			defY = cursorY
			cursorY += rowHeight
			if defX > maxGuidelineCol {
				maxGuidelineCol = defX
			}
		case NodeInitiative:
			gridOriginX := maxGuidelineCol + colWidth + gridGapX
			defX = gridOriginX + float64(gridIndex%gridColumns)*gridStepX
			defY = originY + rootOffsetY + float64(gridIndex/gridColumns)*gridStepY
			gridIndex++
		}

		r := Rect{X: defX, Y: defY, W: widthFor(n), H: heightFor(n)}
		if n.StoredX != nil && n.StoredY != nil {
			r.X, r.Y = float64(*n.StoredX), float64(*n.StoredY)
		}
		l.rects[n.ID] = r
		l.Nodes = append(l.Nodes, PlacedNode{Node: n, Rect: r})
	}

	for _, e := range g.Edges {
		from, okFrom := l.rects[e.From]
		to, okTo := l.rects[e.To]
		if !okFrom || !okTo {
			continue
		}
		fromNode, _ := g.Node(e.From)
		toNode, _ := g.Node(e.To)
		path := Route(from, to, Side(fromNode.LineSide), Side(toNode.LineSide))
		l.Edges = append(l.Edges, RoutedEdge{Edge: e, Path: path})
	}

	return l
}

func widthFor(n Node) float64 {
	if n.Kind == NodeGuideline && n.RelationType == "parent" {
		return nodeWidth * parentWidthFactor
	}
	return nodeWidth
}

// heightFor grows the node by one vote-square row per squaresPerRow points,
// plus a footer strip when the node carries comments.
func heightFor(n Node) float64 {
	h := baseHeight
	if n.Score > 0 {
		rows := math.Ceil(float64(n.Score) / squaresPerRow)
		h += rows * voteRowHeight
	}
	if n.Comments > 0 {
		h += commentFooter
	}
	return h
}

// Rect returns a placed node's rectangle.
func (l *Layout) Rect(id string) (Rect, bool) {
	r, ok := l.rects[id]
	return r, ok
}

// Bounds is the whole-graph bounding box grown by the fit padding. Used to
// center the viewport on load or on explicit reset.
func (l *Layout) Bounds() Rect {
	if len(l.Nodes) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range l.Nodes {
		minX = math.Min(minX, n.Rect.X)
		minY = math.Min(minY, n.Rect.Y)
		maxX = math.Max(maxX, n.Rect.X+n.Rect.W)
		maxY = math.Max(maxY, n.Rect.Y+n.Rect.H)
	}
	return Rect{
		X: minX - fitPadding,
		Y: minY - fitPadding,
		W: maxX - minX + 2*fitPadding,
		H: maxY - minY + 2*fitPadding,
	}
}

// FitTransform computes the scale and translation that centers the padded
// bounds inside a viewport. Scale never exceeds 1.
func (l *Layout) FitTransform(viewportW, viewportH float64) (scale, offsetX, offsetY float64) {
	b := l.Bounds()
	if b.W <= 0 || b.H <= 0 || viewportW <= 0 || viewportH <= 0 {
		return 1, 0, 0
	}
	scale = math.Min(viewportW/b.W, viewportH/b.H)
	if scale > 1 {
		scale = 1
	}
	offsetX = (viewportW-b.W*scale)/2 - b.X*scale
	offsetY = (viewportH-b.H*scale)/2 - b.Y*scale
	return scale, offsetX, offsetY
}
