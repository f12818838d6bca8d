package impose

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type loadOutcome struct {
	page    *SourcePage
	warning *Warning
}

// collect は入力パスを並列に読み込み、入力順を保ったまま有効なソースを返します。
// 個別の失敗は警告として返し、処理は続けます。
func (e *Engine) collect(ctx context.Context, paths []string, progress ProgressFunc) ([]SourcePage, []Warning, error) {
	outcomes := make([]loadOutcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.loadOne(gctx, i, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		releaseOutcomes(outcomes)
		return nil, nil, err
	}

	sources := make([]SourcePage, 0, len(paths))
	var warnings []Warning
	for i, o := range outcomes {
		switch {
		case o.warning != nil:
			e.logger.Printf("skip source %d (%s): %v", i, o.warning.Path, o.warning)
			warnings = append(warnings, *o.warning)
		case o.page != nil:
			sources = append(sources, *o.page)
		}
		reportProgress(progress, StageLoad, i+1, len(paths))
	}
	return sources, warnings, nil
}

func (e *Engine) loadOne(ctx context.Context, input int, path string) loadOutcome {
	fail := func(kind WarningKind, err error) loadOutcome {
		return loadOutcome{warning: &Warning{Kind: kind, Path: path, Input: input, Err: err}}
	}

	data, err := e.read(ctx, path)
	if err != nil {
		return fail(WarningSourceLoadFailed, err)
	}
	doc, err := e.backend.Load(data)
	if err != nil {
		return fail(WarningSourceLoadFailed, err)
	}
	if doc.PageCount() <= 0 {
		_ = doc.Close()
		return fail(WarningEmptySource, nil)
	}

	width, height, err := doc.PageSize(0)
	if err != nil {
		_ = doc.Close()
		return fail(WarningSourceLoadFailed, fmt.Errorf("read page size: %w", err))
	}
	if width <= 0 || height <= 0 {
		_ = doc.Close()
		return fail(WarningSourceLoadFailed, fmt.Errorf("invalid page size %.2fx%.2f", width, height))
	}

	return loadOutcome{page: &SourcePage{
		Path:   path,
		Input:  input,
		Width:  width,
		Height: height,
		doc:    doc,
	}}
}

func releaseOutcomes(outcomes []loadOutcome) {
	for _, o := range outcomes {
		if o.page != nil && o.page.doc != nil {
			_ = o.page.doc.Close()
		}
	}
}

func releaseSources(sources []SourcePage) {
	for _, s := range sources {
		if s.doc != nil {
			_ = s.doc.Close()
		}
	}
}
