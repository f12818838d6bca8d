package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/qiuxuhao/pdf-merge-tool/internal/pdf"
)

// handleImposeTask はキューから取り出した面付けジョブを実行し、結果を記録します。
// 入力起因の失敗はジョブ記録に残し、タスク自体は再試行しません。
func (m *Manager) handleImposeTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: decode payload: %v", asynq.SkipRetry, err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("%w: missing jobId in payload", asynq.SkipRetry)
	}

	if err := m.store.Update(ctx, payload.JobID, func(r *Record) {
		r.Status = StatusRunning
		r.Progress = ProgressInfo{Percent: 0, Stage: "load"}
		r.Error = nil
	}); err != nil {
		return err
	}

	result, err := m.runner.RunJob(ctx, payload.JobID, m.progressReporter(ctx, payload.JobID))
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

// progressReporter は同じ値の連続した書き込みを省きます。
func (m *Manager) progressReporter(ctx context.Context, jobID string) pdf.ProgressReporter {
	last := ProgressInfo{Percent: -1}
	return func(stage string, percent int) {
		next := ProgressInfo{Stage: stage, Percent: percent}
		if next == last {
			return
		}
		last = next
		if err := m.store.Update(ctx, jobID, func(r *Record) { r.applyProgress(next) }); err != nil {
			m.logger.Printf("failed to update progress job=%s: %v", jobID, err)
		}
	}
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *pdf.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	downloadURL := m.buildDownloadURL(result)
	return m.store.Update(ctx, jobID, func(r *Record) {
		r.Status = StatusSucceeded
		r.Progress = ProgressInfo{Percent: 100, Stage: "completed"}
		r.DownloadURL = downloadURL
		r.Meta = result.Meta
		r.Error = nil
	})
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	info := &ErrorInfo{Code: "INTERNAL_ERROR", Message: err.Error()}
	var apiErr *pdf.Error
	if errors.As(err, &apiErr) {
		info = &ErrorInfo{Code: apiErr.Code, Message: apiErr.Message}
	}
	m.logger.Printf("job %s failed: %v", jobID, err)
	return m.store.Update(ctx, jobID, func(r *Record) {
		r.Status = StatusFailed
		r.Error = info
	})
}
