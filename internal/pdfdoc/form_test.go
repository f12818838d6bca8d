package pdfdoc

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/matrix"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

const tolerance = 0.01

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

// assertFillsBBox は box の四隅を m で写した結果が bbox にちょうど収まることを確認します。
func assertFillsBBox(t *testing.T, m matrix.Matrix, box, bbox *types.Rectangle) {
	t.Helper()
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range []types.Point{
		{X: box.LL.X, Y: box.LL.Y},
		{X: box.UR.X, Y: box.LL.Y},
		{X: box.LL.X, Y: box.UR.Y},
		{X: box.UR.X, Y: box.UR.Y},
	} {
		p := m.Transform(c)
		if p.X < bbox.LL.X-tolerance || p.X > bbox.UR.X+tolerance || p.Y < bbox.LL.Y-tolerance || p.Y > bbox.UR.Y+tolerance {
			t.Fatalf("corner (%g,%g) -> (%.2f,%.2f) outside bbox %v", c.X, c.Y, p.X, p.Y, bbox)
		}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	if !near(minX, bbox.LL.X) || !near(maxX, bbox.UR.X) || !near(minY, bbox.LL.Y) || !near(maxY, bbox.UR.Y) {
		t.Fatalf("page maps to [%.2f %.2f %.2f %.2f], want bbox %v", minX, minY, maxX, maxY, bbox)
	}
}

func TestFormMatrixMapsPageOntoBBox(t *testing.T) {
	box := types.RectForWidthAndHeight(10, 20, 200, 300)
	tests := []struct {
		rotate int
		w, h   float64
	}{
		{rotate: 0, w: 200, h: 300},
		{rotate: 90, w: 300, h: 200},
		{rotate: 180, w: 200, h: 300},
		{rotate: 270, w: 300, h: 200},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("rotate %d", tt.rotate), func(t *testing.T) {
			g := geometry{box: box, rotate: tt.rotate}
			if w, h := g.size(); w != tt.w || h != tt.h {
				t.Fatalf("size = %gx%g, want %gx%g", w, h, tt.w, tt.h)
			}
			assertFillsBBox(t, formMatrix(g), box, types.RectForWidthAndHeight(0, 0, tt.w, tt.h))
		})
	}
}

type sheetDraw struct {
	name   string
	sx, sy float64
	tx, ty float64
}

// parseDraws は "q sx 0 0 sy tx ty cm /Fm Do Q" 形式の描画命令を読み取ります。
func parseDraws(t *testing.T, content []byte) []sheetDraw {
	t.Helper()
	var draws []sheetDraw
	for _, line := range strings.Split(string(content), "\n") {
		f := strings.Fields(line)
		if len(f) != 11 || f[7] != "cm" || f[9] != "Do" {
			continue
		}
		nums := parseNumbers(t, f[1:7])
		draws = append(draws, sheetDraw{name: strings.TrimPrefix(f[8], "/"), sx: nums[0], sy: nums[3], tx: nums[4], ty: nums[5]})
	}
	return draws
}

// leadingMatrix はフォーム内容の先頭にある "q a b c d e f cm" を行列にします。
func leadingMatrix(t *testing.T, content []byte) matrix.Matrix {
	t.Helper()
	f := strings.Fields(string(content))
	if len(f) < 8 || f[0] != "q" || f[7] != "cm" {
		t.Fatalf("form content does not start with a matrix: %.60q", content)
	}
	n := parseNumbers(t, f[1:7])
	return matrix.Matrix{{n[0], n[1], 0}, {n[2], n[3], 0}, {n[4], n[5], 1}}
}

func parseNumbers(t *testing.T, fields []string) []float64 {
	t.Helper()
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			t.Fatalf("bad number %q: %v", s, err)
		}
		out[i] = v
	}
	return out
}

func writeInputs(t *testing.T, pages ...testPage) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = filepath.Join(dir, fmt.Sprintf("src-%d.pdf", i))
		if err := os.WriteFile(paths[i], buildPDF(p), 0o640); err != nil {
			t.Fatalf("failed to write input: %v", err)
		}
	}
	return paths
}

// sheetDraws は出力 ctx の pageNr ページの描画命令と XObject 辞書を返します。
func sheetDraws(t *testing.T, ctx *model.Context, pageNr int) ([]sheetDraw, types.Dict) {
	t.Helper()
	pageDict, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil || pageDict == nil {
		t.Fatalf("page %d not found: %v", pageNr, err)
	}
	content, err := pageContent(ctx, pageDict)
	if err != nil {
		t.Fatalf("failed to read sheet content: %v", err)
	}
	res, err := ctx.DereferenceDict(pageDict["Resources"])
	if err != nil || res == nil {
		t.Fatalf("sheet has no resources: %v", err)
	}
	xobjects, err := ctx.DereferenceDict(res["XObject"])
	if err != nil {
		t.Fatalf("failed to read XObject resources: %v", err)
	}
	return parseDraws(t, content), xobjects
}

func TestEngineDrawsSourcesAtPlacementRects(t *testing.T) {
	pages := []testPage{
		{width: 200, height: 300},
		{width: 200, height: 300, rotate: 90},
		{width: 100, height: 150, llx: 50, lly: 40},
		{width: 200, height: 300, rotate: 270},
	}
	backend := New()
	engine := impose.NewEngine(backend, impose.WithLogger(log.New(io.Discard, "", 0)))
	result, err := engine.Run(context.Background(), impose.RunRequest{
		Paths:       writeInputs(t, pages...),
		Capacity:    4,
		Orientation: impose.Portrait,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	placements := result.Sheets[0].Placements
	if len(placements) != len(pages) {
		t.Fatalf("placements = %d, want %d", len(placements), len(pages))
	}

	out, err := backend.Load(result.PDF)
	if err != nil {
		t.Fatalf("failed to reload output: %v", err)
	}
	defer out.Close()
	ctx := out.(*Document).ctx

	draws, xobjects := sheetDraws(t, ctx, 1)
	if len(draws) != len(placements) {
		t.Fatalf("draw commands = %d, want %d", len(draws), len(placements))
	}
	for i, p := range placements {
		d := draws[i]
		if !near(d.tx, p.Rect.X) || !near(d.ty, p.Rect.Y) {
			t.Fatalf("slot %d drawn at (%.2f,%.2f), want (%.2f,%.2f)", p.Slot, d.tx, d.ty, p.Rect.X, p.Rect.Y)
		}

		sd, _, err := ctx.DereferenceStreamDict(xobjects[d.name])
		if err != nil || sd == nil {
			t.Fatalf("form %s not found: %v", d.name, err)
		}
		if err := sd.Decode(); err != nil {
			t.Fatalf("failed to decode form %s: %v", d.name, err)
		}
		bbox, err := ctx.RectForArray(sd.ArrayEntry("BBox"))
		if err != nil {
			t.Fatalf("form %s has no BBox: %v", d.name, err)
		}
		if !near(d.sx*bbox.Width(), p.Rect.Width) || !near(d.sy*bbox.Height(), p.Rect.Height) {
			t.Fatalf("slot %d drawn %.2fx%.2f, want %.2fx%.2f", p.Slot, d.sx*bbox.Width(), d.sy*bbox.Height(), p.Rect.Width, p.Rect.Height)
		}

		src := pages[p.Source]
		box := types.RectForWidthAndHeight(src.llx, src.lly, src.width, src.height)
		assertFillsBBox(t, leadingMatrix(t, sd.Content), box, bbox)
	}
}

// unreadableContentBackend は幅 width のソースだけ内容を読めない状態にして返します。
type unreadableContentBackend struct {
	*Backend
	width float64
}

func (b unreadableContentBackend) Load(data []byte) (impose.Document, error) {
	doc, err := b.Backend.Load(data)
	if err != nil {
		return nil, err
	}
	if w, _, _ := doc.PageSize(0); w == b.width {
		pageDict, _, _, err := doc.(*Document).ctx.PageDict(1, false)
		if err != nil {
			return nil, err
		}
		pageDict.Update("Contents", types.Integer(42))
	}
	return doc, nil
}

func TestEngineLeavesCellBlankForUnreadableContent(t *testing.T) {
	backend := unreadableContentBackend{Backend: New(), width: 123}
	engine := impose.NewEngine(backend, impose.WithLogger(log.New(io.Discard, "", 0)))
	result, err := engine.Run(context.Background(), impose.RunRequest{
		Paths: writeInputs(t,
			testPage{width: 100, height: 100},
			testPage{width: 123, height: 100},
			testPage{width: 100, height: 100},
		),
		Capacity:    4,
		Orientation: impose.Portrait,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1", result.Warnings)
	}
	if w := result.Warnings[0]; w.Kind != impose.WarningPlacementFailed || w.Input != 1 || w.Slot != 1 {
		t.Fatalf("unexpected warning: %+v", w)
	}
	if got := len(result.Sheets[0].Placements); got != 2 {
		t.Fatalf("placements = %d, want 2", got)
	}

	out, err := backend.Backend.Load(result.PDF)
	if err != nil {
		t.Fatalf("failed to reload output: %v", err)
	}
	defer out.Close()
	if out.PageCount() != 1 {
		t.Fatalf("output pages = %d, want 1", out.PageCount())
	}
	if draws, _ := sheetDraws(t, out.(*Document).ctx, 1); len(draws) != 2 {
		t.Fatalf("draw commands = %d, want 2", len(draws))
	}
}
