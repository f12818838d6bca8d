package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
	"github.com/qiuxuhao/pdf-merge-tool/internal/storage"
)

const manifestFilename = "manifest.json"

// JobManifest はジョブに必要な情報を保持します。
type JobManifest struct {
	JobID       string             `json:"jobId"`
	Operation   OperationType      `json:"operation"`
	Files       []JobFile          `json:"files"`
	Capacity    int                `json:"capacity"`
	Orientation impose.Orientation `json:"orientation"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// JobFile はジョブ入力ファイルのメタデータを表します。
type JobFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
}

// TotalSize は入力ファイルの合計サイズです。
func (m *JobManifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

func writeManifest(ws storage.Workspace, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	if err := writeJSON(manifestPath(ws), manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func loadManifest(ws storage.Workspace) (*JobManifest, error) {
	data, err := os.ReadFile(manifestPath(ws))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
