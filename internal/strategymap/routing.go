package strategymap

import "fmt"

type Side string

const (
	SideAuto   Side = "auto"
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

// controlOffset is how far each Bezier control point sits out from its anchor,
// perpendicular to the anchor's side.
const controlOffset = 60.0

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Path is a cubic Bezier from Start to End with two control points.
type Path struct {
	Start    Point `json:"start"`
	Control1 Point `json:"c1"`
	Control2 Point `json:"c2"`
	End      Point `json:"end"`

	FromSide Side `json:"fromSide"`
	ToSide   Side `json:"toSide"`
}

// SVG renders the path as an SVG path-data string.
func (p Path) SVG() string {
	return fmt.Sprintf("M %.1f,%.1f C %.1f,%.1f %.1f,%.1f %.1f,%.1f",
		p.Start.X, p.Start.Y, p.Control1.X, p.Control1.Y, p.Control2.X, p.Control2.Y, p.End.X, p.End.Y)
}

// Route connects two rectangles. An explicit side wins; auto picks the side
// facing the other rectangle's center, so two auto nodes always exit and
// enter on opposite logical sides. Routing is pure: unchanged rectangles
// yield an identical path.
func Route(from, to Rect, fromSide, toSide Side) Path {
	fs := resolveSide(fromSide, from, to)
	ts := resolveSide(toSide, to, from)
	// Two auto sides only agree when the centers coincide; the symmetric
	// picks would otherwise be mirrors of each other. Force opposite sides
	// so the edge still exits one node and enters the other.
	if fs == ts && fromSide == SideAuto && toSide == SideAuto {
		fs, ts = SideRight, SideLeft
	}
	start := anchorPoint(from, fs)
	end := anchorPoint(to, ts)
	return Path{
		Start:    start,
		Control1: offsetFrom(start, fs),
		Control2: offsetFrom(end, ts),
		End:      end,
		FromSide: fs,
		ToSide:   ts,
	}
}

func resolveSide(s Side, self, other Rect) Side {
	switch s {
	case SideLeft, SideRight, SideTop, SideBottom:
		return s
	}
	dx := other.CenterX() - self.CenterX()
	dy := other.CenterY() - self.CenterY()
	if abs(dx) >= abs(dy) {
		if dx >= 0 {
			return SideRight
		}
		return SideLeft
	}
	if dy >= 0 {
		return SideBottom
	}
	return SideTop
}

func anchorPoint(r Rect, s Side) Point {
	switch s {
	case SideLeft:
		return Point{X: r.X, Y: r.CenterY()}
	case SideRight:
		return Point{X: r.X + r.W, Y: r.CenterY()}
	case SideTop:
		return Point{X: r.CenterX(), Y: r.Y}
	default:
		return Point{X: r.CenterX(), Y: r.Y + r.H}
	}
}

func offsetFrom(p Point, s Side) Point {
	switch s {
	case SideLeft:
		return Point{X: p.X - controlOffset, Y: p.Y}
	case SideRight:
		return Point{X: p.X + controlOffset, Y: p.Y}
	case SideTop:
		return Point{X: p.X, Y: p.Y - controlOffset}
	default:
		return Point{X: p.X, Y: p.Y + controlOffset}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
