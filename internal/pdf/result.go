package pdf

import (
	"sync"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

// OperationType はPDF処理の種別を表します。
type OperationType string

const (
	OperationImpose OperationType = "impose"
)

// ResultKind は生成される成果物の種別を表します。
type ResultKind string

const (
	ResultKindPDF ResultKind = "pdf"
)

// Result はPDF処理の成果を表します。
type Result struct {
	JobID          string        `json:"jobId"`
	Operation      OperationType `json:"operation"`
	OutputPath     string        `json:"outputPath"`
	OutputFilename string        `json:"outputFilename"`
	OutputSize     int64         `json:"outputSize"`
	ResultKind     ResultKind    `json:"resultKind"`
	Meta           any           `json:"meta,omitempty"`

	jobDir      string
	cleanupOnce sync.Once
	cleanupErr  error
}

// Cleanup は作業ディレクトリを削除します。
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.jobDir)
	})
	return r.cleanupErr
}

// ImposeMeta は面付け処理のメタデータです。meta.json として保存されます。
type ImposeMeta struct {
	Capacity    int                `json:"capacity"`
	Orientation impose.Orientation `json:"orientation"`
	Canvas      impose.Canvas      `json:"canvas"`
	Grid        impose.GridPlan    `json:"grid"`
	Metrics     impose.CellMetrics `json:"metrics"`
	TotalSheets int                `json:"totalSheets"`
	Placed      int                `json:"placed"`
	Sources     []SourceFileMeta   `json:"sources"`
	Warnings    []WarningMeta      `json:"warnings,omitempty"`
}

// WarningMeta はスキップされた入力や配置の情報です。
// Sheet と Slot は配置失敗のときだけ出力されます（0 始まり）。
type WarningMeta struct {
	Kind    impose.WarningKind `json:"kind"`
	File    string             `json:"file"`
	Sheet   *int               `json:"sheet,omitempty"`
	Slot    *int               `json:"slot,omitempty"`
	Message string             `json:"message"`
}
