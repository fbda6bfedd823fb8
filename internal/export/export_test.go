package export

import (
	"context"
	"strings"
	"testing"

	"compass/api/internal/store"
	"compass/api/internal/strategymap"
)

type fakeMapSource struct {
	institution store.Institution
	cycle       store.Cycle
	guidelines  []store.Guideline
	initiatives []store.Initiative
	totals      []store.VoteTotal
	comments    []store.CommentCount
}

func (f *fakeMapSource) GetInstitution(ctx context.Context, id string) (store.Institution, error) {
	return f.institution, nil
}

func (f *fakeMapSource) GetCurrentCycle(ctx context.Context, institutionID string) (store.Cycle, error) {
	return f.cycle, nil
}

func (f *fakeMapSource) GetCycle(ctx context.Context, id string) (store.Cycle, error) {
	return f.cycle, nil
}

func (f *fakeMapSource) ListGuidelines(ctx context.Context, cycleID string) ([]store.Guideline, error) {
	return f.guidelines, nil
}

func (f *fakeMapSource) ListInitiatives(ctx context.Context, cycleID string) ([]store.Initiative, error) {
	return f.initiatives, nil
}

func (f *fakeMapSource) ListVoteTotals(ctx context.Context, cycleID string) ([]store.VoteTotal, error) {
	return f.totals, nil
}

func (f *fakeMapSource) ListCommentCounts(ctx context.Context, cycleID string) ([]store.CommentCount, error) {
	return f.comments, nil
}

func newFakeSource() *fakeMapSource {
	return &fakeMapSource{
		institution: store.Institution{ID: "inst_1", Name: "Acme"},
		cycle:       store.Cycle{ID: "cyc_1", InstitutionID: "inst_1", State: store.CycleOpen},
		guidelines: []store.Guideline{
			{ID: "gl_a", CycleID: "cyc_1", Title: "Growth & Scale", RelationType: store.RelationParent, LineSide: "auto"},
		},
		initiatives: []store.Initiative{
			{ID: "in_1", CycleID: "cyc_1", Title: "Open Berlin office", LineSide: "auto", GuidelineIDs: []string{"gl_a"}},
		},
		totals: []store.VoteTotal{
			{TargetKind: store.KindGuideline, TargetID: "gl_a", Total: 7},
		},
	}
}

func TestRenderSVG(t *testing.T) {
	src := newFakeSource()
	graph := strategymap.Build(strategymap.Input{
		Institution: src.institution,
		Cycle:       src.cycle,
		Guidelines:  src.guidelines,
		Initiatives: src.initiatives,
		Totals:      src.totals,
	})
	layout := strategymap.Compute(graph)

	svg, err := RenderSVG(layout)
	if err != nil {
		t.Fatalf("RenderSVG failed: %v", err)
	}

	out := string(svg)
	if !strings.Contains(out, "<svg") || !strings.Contains(out, "</svg>") {
		t.Error("output is not an SVG document")
	}
	if !strings.Contains(out, "Growth &amp; Scale") {
		t.Error("guideline title missing or not escaped")
	}
	if !strings.Contains(out, "Open Berlin office") {
		t.Error("initiative title missing")
	}
	if !strings.Contains(out, "7 pts") {
		t.Error("vote score missing")
	}
	// one hierarchy edge and one assignment edge
	if strings.Count(out, `class="edge`) != 2 {
		t.Errorf("expected 2 edges, got %d", strings.Count(out, `class="edge`))
	}
	if !strings.Contains(out, "edge assignment") {
		t.Error("assignment edge styling missing")
	}
}

func TestServiceExportSVG(t *testing.T) {
	svc := NewService(newFakeSource(), nil)

	result, err := svc.Export(context.Background(), Request{
		InstitutionID: "inst_1",
		Format:        FormatSVG,
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if result.MimeType != "image/svg+xml" {
		t.Errorf("mime type = %s, want image/svg+xml", result.MimeType)
	}
	if result.Filename != "Acme-strategy-map.svg" {
		t.Errorf("filename = %s", result.Filename)
	}
	if len(result.Data) == 0 {
		t.Error("empty export data")
	}
}

func TestServiceExportUnsupportedFormat(t *testing.T) {
	svc := NewService(newFakeSource(), nil)

	_, err := svc.Export(context.Background(), Request{
		InstitutionID: "inst_1",
		Format:        Format("docx"),
	})
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSnapshotWithoutArchive(t *testing.T) {
	svc := NewService(newFakeSource(), nil)

	_, err := svc.Snapshot(context.Background(), Request{InstitutionID: "inst_1"})
	if err != ErrArchiveUnavailable {
		t.Errorf("err = %v, want ErrArchiveUnavailable", err)
	}
	_, err = svc.Snapshots(context.Background(), "cyc_1")
	if err != ErrArchiveUnavailable {
		t.Errorf("err = %v, want ErrArchiveUnavailable", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Acme strategy map", "Acme-strategy-map"},
		{"weird/\\:chars*?", "weirdchars"},
		{"", "strategy-map"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWrapSVGHTML(t *testing.T) {
	html := wrapSVGHTML([]byte("<svg></svg>"), "Acme <map>")
	if !strings.Contains(html, "<svg></svg>") {
		t.Error("svg body missing")
	}
	if !strings.Contains(html, "Acme &lt;map&gt;") {
		t.Error("title not escaped")
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Errorf("percentEncodeForDataURL = %q", got)
	}
}
