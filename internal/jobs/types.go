// Package jobs は面付けジョブを Asynq で非同期実行し、状態を Redis に保存します。
package jobs

import (
	"errors"
	"time"
)

// ErrJobNotFound は更新対象のジョブ記録が存在しない場合に返されます。
var ErrJobNotFound = errors.New("jobs: job not found")

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// Terminal は完了または失敗のどちらかであれば true を返します。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID       string       `json:"jobId"`
	Operation   string       `json:"operation"`
	Status      Status       `json:"status"`
	Progress    ProgressInfo `json:"progress"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	Meta        any          `json:"meta,omitempty"`
	Error       *ErrorInfo   `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// applyProgress は完了済みのジョブや後退する進捗を無視して反映します。
func (r *Record) applyProgress(p ProgressInfo) {
	if r.Status.Terminal() {
		return
	}
	if p.Percent < r.Progress.Percent {
		p.Percent = r.Progress.Percent
	}
	r.Progress = p
}
