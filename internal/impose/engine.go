package impose

import (
	"context"
	"fmt"
	"log"
	"os"
)

// 進捗ステージ名
const (
	StageLoad    = "load"
	StageProcess = "process"
	StageWrite   = "write"
)

const defaultWorkers = 4

// SourceReader は入力パスから文書のバイト列を取得します。
type SourceReader func(ctx context.Context, path string) ([]byte, error)

// Engine は面付け処理の実行単位です。状態を持たないため複数の実行で共有できます。
type Engine struct {
	backend Backend
	read    SourceReader
	logger  *log.Logger
	workers int
}

// Option は Engine の設定を変更します。
type Option func(*Engine)

// WithReader は入力の取得方法を差し替えます。
func WithReader(r SourceReader) Option {
	return func(e *Engine) {
		if r != nil {
			e.read = r
		}
	}
}

// WithLogger はスキップ等の警告の出力先を設定します。
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWorkers は並列読み込み数を設定します。
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine は Engine を作成します。
func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		read:    readFile,
		logger:  log.Default(),
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func readFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Validate は実行前に入力の妥当性を検証します。
func (r RunRequest) Validate() error {
	if len(r.Paths) == 0 {
		return ErrNoInputProvided
	}
	if r.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive (got %d)", ErrInvalidRequest, r.Capacity)
	}
	if !r.Orientation.Valid() {
		return fmt.Errorf("%w: unknown orientation %q", ErrInvalidRequest, r.Orientation)
	}
	return nil
}

// Run は入力を読み込み、capacity 枚ずつ1ページに面付けした文書を返します。
// 個別ソースの読み込み失敗や配置失敗は Result.Warnings に記録され、実行は中断しません。
func (e *Engine) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.backend == nil {
		return nil, fmt.Errorf("%w: backend is nil", ErrInvalidRequest)
	}

	sources, warnings, err := e.collect(ctx, req.Paths, req.Progress)
	if err != nil {
		return nil, err
	}
	defer releaseSources(sources)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %d input(s) skipped", ErrNoValidSources, len(warnings))
	}

	canvas := CanvasFor(req.Orientation)
	grid := Plan(req.Capacity, req.Orientation, canvas)
	metrics := Compose(canvas, grid, req.Orientation)

	out, err := e.backend.NewOutput()
	if err != nil {
		return nil, fmt.Errorf("create output document: %w", err)
	}

	batches := ceilDiv(len(sources), req.Capacity)
	sheets := make([]Sheet, 0, batches)
	for b := 0; b < batches; b++ {
		start := b * req.Capacity
		end := min(start+req.Capacity, len(sources))

		sheet, sheetWarnings, err := e.composeSheet(ctx, out, b, sources[start:end], canvas, grid, metrics, req.Orientation)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
		warnings = append(warnings, sheetWarnings...)
		reportProgress(req.Progress, StageProcess, b+1, batches)
	}

	data, err := out.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	reportProgress(req.Progress, StageWrite, 1, 1)

	return &Result{
		PDF:         data,
		Canvas:      canvas,
		Grid:        grid,
		Metrics:     metrics,
		Sheets:      sheets,
		SourceCount: len(sources),
		Warnings:    warnings,
	}, nil
}

// composeSheet は1バッチ分の出力ページを作成し、各ソースを描画します。
// 描画は1ページにつき1スレッドで行います。
func (e *Engine) composeSheet(ctx context.Context, out OutputDocument, index int, batch []SourcePage, canvas Canvas, grid GridPlan, m CellMetrics, o Orientation) (Sheet, []Warning, error) {
	sheet := Sheet{Index: index, Placements: make([]Placement, 0, len(batch))}

	page, err := out.CreatePage(canvas.Width, canvas.Height)
	if err != nil {
		return sheet, nil, fmt.Errorf("create sheet %d: %w", index+1, err)
	}

	var warnings []Warning
	for j, src := range batch {
		if err := ctx.Err(); err != nil {
			return sheet, nil, err
		}

		placement := Place(j, src.Width, src.Height, canvas, grid, m, o)
		placement.Source = src.Input

		if err := e.draw(out, page, src, placement); err != nil {
			w := Warning{
				Kind:  WarningPlacementFailed,
				Path:  src.Path,
				Input: src.Input,
				Sheet: index,
				Slot:  j,
				Err:   err,
			}
			e.logger.Printf("leave cell blank: %v", w)
			warnings = append(warnings, w)
			continue
		}
		sheet.Placements = append(sheet.Placements, placement)
	}
	return sheet, warnings, nil
}

func (e *Engine) draw(out OutputDocument, page PageRef, src SourcePage, p Placement) error {
	embedded, err := out.EmbedPage(src.doc, 0)
	if err != nil {
		return fmt.Errorf("embed page: %w", err)
	}
	if err := out.DrawEmbeddedPage(page, embedded, p.Rect); err != nil {
		return fmt.Errorf("draw page: %w", err)
	}
	return nil
}

func reportProgress(cb ProgressFunc, stage string, done, total int) {
	if cb == nil {
		return
	}
	cb(stage, done, total)
}
