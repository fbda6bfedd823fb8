package export

import (
	"bytes"
	"fmt"
	"text/template"

	"compass/api/internal/strategymap"
)

// svgNode is one rendered rectangle with its label.
type svgNode struct {
	X, Y, W, H float64
	LabelX     float64
	LabelY     float64
	Kind       string
	Title      string
	Score      int
}

// svgEdge is one rendered Bezier path.
type svgEdge struct {
	D    string
	Kind string
}

type svgData struct {
	ViewBox string
	Width   float64
	Height  float64
	Nodes   []svgNode
	Edges   []svgEdge
}

var svgTemplate = template.Must(template.New("map").Parse(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="{{.ViewBox}}" width="{{printf "%.0f" .Width}}" height="{{printf "%.0f" .Height}}">
  <style>
    .node { stroke: #1f2937; stroke-width: 1.5; rx: 8; }
    .node.institution { fill: #1f2937; }
    .node.guideline { fill: #e0e7ff; }
    .node.initiative { fill: #d1fae5; }
    .edge { fill: none; stroke: #9ca3af; stroke-width: 1.5; }
    .edge.assignment { stroke-dasharray: 5 4; }
    .label { font: 12px sans-serif; fill: #111827; }
    .label.institution { fill: #f9fafb; font-weight: bold; }
    .score { font: 10px sans-serif; fill: #4b5563; }
  </style>
{{- range .Edges}}
  <path class="edge {{.Kind}}" d="{{.D}}"/>
{{- end}}
{{- range .Nodes}}
  <g>
    <rect class="node {{.Kind}}" x="{{printf "%.1f" .X}}" y="{{printf "%.1f" .Y}}" width="{{printf "%.1f" .W}}" height="{{printf "%.1f" .H}}" rx="8"/>
    <text class="label {{.Kind}}" x="{{printf "%.1f" .LabelX}}" y="{{printf "%.1f" .LabelY}}">{{.Title}}</text>
    {{- if gt .Score 0}}
    <text class="score" x="{{printf "%.1f" .LabelX}}" y="{{printf "%.1f" .LabelYScore}}">{{.Score}} pts</text>
    {{- end}}
  </g>
{{- end}}
</svg>
`))

// LabelYScore places the score line under the title.
func (n svgNode) LabelYScore() float64 {
	return n.LabelY + 14
}

// RenderSVG turns a computed layout into a standalone SVG document.
func RenderSVG(l *strategymap.Layout) ([]byte, error) {
	bounds := l.Bounds()
	data := svgData{
		ViewBox: fmt.Sprintf("%.0f %.0f %.0f %.0f", bounds.X, bounds.Y, bounds.W, bounds.H),
		Width:   bounds.W,
		Height:  bounds.H,
	}

	for _, n := range l.Nodes {
		data.Nodes = append(data.Nodes, svgNode{
			X:      n.Rect.X,
			Y:      n.Rect.Y,
			W:      n.Rect.W,
			H:      n.Rect.H,
			LabelX: n.Rect.X + 10,
			LabelY: n.Rect.Y + 20,
			Kind:   string(n.Kind),
			Title:  escapeText(n.Title),
			Score:  n.Score,
		})
	}
	for _, e := range l.Edges {
		data.Edges = append(data.Edges, svgEdge{D: e.Path.SVG(), Kind: string(e.Type)})
	}

	var buf bytes.Buffer
	if err := svgTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render svg: %w", err)
	}
	return buf.Bytes(), nil
}

// escapeText escapes the XML special characters that can occur in titles.
func escapeText(s string) string {
	var out bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			out.WriteString("&amp;")
		case '<':
			out.WriteString("&lt;")
		case '>':
			out.WriteString("&gt;")
		case '"':
			out.WriteString("&quot;")
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}
