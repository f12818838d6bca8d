package pdf

import (
	"context"
	"fmt"
)

// RunJob はジョブIDに対応するPDF処理を実行します。失敗時はワークスペースを削除します。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := s.workspaceFor(jobID)
	if err != nil {
		return nil, err
	}
	manifest, err := loadManifest(ws)
	if err != nil {
		_ = s.storage.Remove(ws)
		return nil, err
	}

	stored := storedFilesFromManifest(ws, manifest)
	if len(stored) == 0 {
		_ = s.storage.Remove(ws)
		return nil, fmt.Errorf("manifest has no input files")
	}

	var (
		result *Result
		runErr error
	)
	switch manifest.Operation {
	case OperationImpose:
		state := &imposeState{
			ws:          ws,
			files:       stored,
			capacity:    manifest.Capacity,
			orientation: manifest.Orientation,
		}
		result, runErr = s.executeImpose(ctx, state, reporter)
	default:
		_ = s.storage.Remove(ws)
		return nil, fmt.Errorf("unsupported operation: %q", manifest.Operation)
	}

	if runErr != nil {
		if cleanupErr := s.storage.Remove(ws); cleanupErr != nil {
			runErr = fmt.Errorf("%w (ワークスペースの削除にも失敗しました: %v)", runErr, cleanupErr)
		}
		return nil, runErr
	}

	return result, nil
}
