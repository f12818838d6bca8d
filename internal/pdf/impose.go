package pdf

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
	"github.com/qiuxuhao/pdf-merge-tool/internal/storage"
)

const imposedFilename = "imposed.pdf"

// ImposeOptions は面付けのパラメータです。ゼロ値の項目は設定の既定値で補われます。
type ImposeOptions struct {
	Capacity    int
	Orientation impose.Orientation
}

type imposeState struct {
	ws          storage.Workspace
	files       []storedFile
	capacity    int
	orientation impose.Orientation
}

// ImposeMultipart はアップロードされたPDFを保存し、その場で面付けします。
func (s *Service) ImposeMultipart(ctx context.Context, files []*multipart.FileHeader, opts ImposeOptions) (_ *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	state, _, err := s.prepareImpose(ctx, files, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = s.storage.Remove(state.ws)
		}
	}()
	return s.executeImpose(ctx, state, nil)
}

// PrepareImposeJob は入力を保存してマニフェストを書き出します。実行は RunJob で行います。
func (s *Service) PrepareImposeJob(ctx context.Context, files []*multipart.FileHeader, opts ImposeOptions) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, manifest, err := s.prepareImpose(ctx, files, opts)
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func (s *Service) resolveOptions(opts ImposeOptions) (ImposeOptions, error) {
	if opts.Capacity == 0 {
		opts.Capacity = s.cfg.DefaultCapacity
	}
	if opts.Capacity <= 0 {
		return opts, newError("INVALID_INPUT", "1枚あたりの枚数は1以上で指定してください。", nil)
	}
	if opts.Orientation == "" {
		o, err := impose.ParseOrientation(s.cfg.DefaultOrientation)
		if err != nil {
			return opts, err
		}
		opts.Orientation = o
	}
	if !opts.Orientation.Valid() {
		return opts, newError("INVALID_INPUT", "向きは portrait または landscape で指定してください。", nil)
	}
	return opts, nil
}

func (s *Service) prepareImpose(ctx context.Context, files []*multipart.FileHeader, opts ImposeOptions) (*imposeState, *JobManifest, error) {
	if len(files) == 0 {
		return nil, nil, newError("INVALID_INPUT", "PDFファイルを選択してください。", impose.ErrNoInputProvided)
	}
	if s.cfg.MaxFiles > 0 && len(files) > s.cfg.MaxFiles {
		return nil, nil, newError("LIMIT_EXCEEDED",
			fmt.Sprintf("一度に処理できるファイルは%d件までです。", s.cfg.MaxFiles), nil)
	}
	opts, err := s.resolveOptions(opts)
	if err != nil {
		return nil, nil, err
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, nil, err
	}

	stored := make([]storedFile, 0, len(files))
	for i, fh := range files {
		sf, err := s.storeMultipartFile(ctx, fh, ws.InDir, i)
		if err != nil {
			_ = s.storage.Remove(ws)
			return nil, nil, err
		}
		stored = append(stored, sf)
	}

	manifest := &JobManifest{
		JobID:       ws.JobID,
		Operation:   OperationImpose,
		Files:       toJobFiles(stored),
		Capacity:    opts.Capacity,
		Orientation: opts.Orientation,
		CreatedAt:   s.now().UTC(),
	}
	if err := writeManifest(ws, manifest); err != nil {
		_ = s.storage.Remove(ws)
		return nil, nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}

	return &imposeState{
		ws:          ws,
		files:       stored,
		capacity:    opts.Capacity,
		orientation: opts.Orientation,
	}, manifest, nil
}

func (s *Service) executeImpose(ctx context.Context, state *imposeState, progress ProgressReporter) (*Result, error) {
	paths := make([]string, len(state.files))
	for i, f := range state.files {
		paths[i] = f.path
	}

	reportProgress(progress, impose.StageLoad, 0)
	out, err := s.engine.Run(ctx, impose.RunRequest{
		Paths:       paths,
		Capacity:    state.capacity,
		Orientation: state.orientation,
		Progress:    engineProgress(progress),
	})
	if err != nil {
		return nil, mapEngineError(err)
	}

	outputPath := filepath.Join(state.ws.OutDir, imposedFilename)
	if err := os.WriteFile(outputPath, out.PDF, 0o640); err != nil {
		return nil, fmt.Errorf("面付け結果の保存に失敗しました: %w", err)
	}

	meta := buildMeta(state, out)
	if err := writeJSON(metaPath(state.ws), meta); err != nil {
		return nil, fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}
	for _, w := range meta.Warnings {
		s.logger.Printf("job %s: %s %s: %s", state.ws.JobID, w.Kind, w.File, w.Message)
	}

	s.scheduleCleanup(state.ws)
	reportProgress(progress, impose.StageWrite, 100)

	return &Result{
		JobID:          state.ws.JobID,
		Operation:      OperationImpose,
		OutputPath:     outputPath,
		OutputFilename: imposedFilename,
		OutputSize:     int64(len(out.PDF)),
		ResultKind:     ResultKindPDF,
		Meta:           meta,
		jobDir:         state.ws.Dir,
	}, nil
}

func buildMeta(state *imposeState, out *impose.Result) *ImposeMeta {
	names := make(map[string]string, len(state.files))
	sources := make([]SourceFileMeta, len(state.files))
	for i, f := range state.files {
		names[f.path] = f.originalName
		sources[i] = SourceFileMeta{Name: f.originalName, Size: f.size, Pages: f.pages}
	}

	placed := 0
	for _, sh := range out.Sheets {
		placed += len(sh.Placements)
	}

	meta := &ImposeMeta{
		Capacity:    state.capacity,
		Orientation: state.orientation,
		Canvas:      out.Canvas,
		Grid:        out.Grid,
		Metrics:     out.Metrics,
		TotalSheets: len(out.Sheets),
		Placed:      placed,
		Sources:     sources,
	}
	for _, w := range out.Warnings {
		name := names[w.Path]
		if name == "" {
			name = filepath.Base(w.Path)
		}
		msg := "ページがありません"
		if w.Err != nil {
			msg = w.Err.Error()
		}
		wm := WarningMeta{Kind: w.Kind, File: name, Message: msg}
		if w.Kind == impose.WarningPlacementFailed {
			sheet, slot := w.Sheet, w.Slot
			wm.Sheet, wm.Slot = &sheet, &slot
		}
		meta.Warnings = append(meta.Warnings, wm)
	}
	return meta
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, impose.ErrNoValidSources):
		return newError("NO_VALID_SOURCES", "面付けできるPDFがありませんでした。ファイルが破損していないか確認してください。", err)
	case errors.Is(err, impose.ErrNoInputProvided):
		return newError("INVALID_INPUT", "PDFファイルを選択してください。", err)
	case errors.Is(err, impose.ErrInvalidRequest):
		return newError("INVALID_INPUT", "面付けの指定が不正です。", err)
	case errors.Is(err, impose.ErrSerializationFailed):
		return fmt.Errorf("面付け結果の書き出しに失敗しました: %w", err)
	default:
		return err
	}
}
