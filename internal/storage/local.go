// Package storage はジョブごとの作業ディレクトリを管理します。
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidJobID はジョブIDとして解釈できない値に対して返されます。
var ErrInvalidJobID = errors.New("storage: invalid job id")

// Workspace はジョブ1件分の入出力ディレクトリです。
type Workspace struct {
	JobID  string
	Dir    string
	InDir  string
	OutDir string
}

// Local はローカルファイルシステム上にワークスペースを作成します。
// 保存先: <base>/<jobID>/in|out/
type Local struct {
	base string
}

// NewLocal は Local を作成します。base が空の場合は OS の一時ディレクトリ配下を使います。
func NewLocal(base string) *Local {
	if base == "" {
		base = filepath.Join(os.TempDir(), "pdf-merge-tool")
	}
	return &Local{base: base}
}

// Base はワークスペースのルートを返します。
func (l *Local) Base() string {
	return l.base
}

// Create は新しいジョブIDでワークスペースを作成します。
func (l *Local) Create() (Workspace, error) {
	ws := l.layout(uuid.NewString())
	for _, dir := range []string{ws.InDir, ws.OutDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = os.RemoveAll(ws.Dir)
			return Workspace{}, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
		}
	}
	return ws, nil
}

// Open は既存ジョブのワークスペースを返します。ディレクトリの存在は確認しません。
func (l *Local) Open(jobID string) (Workspace, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return Workspace{}, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return l.layout(jobID), nil
}

// Remove はワークスペースを削除します。存在しない場合は何もしません。
func (l *Local) Remove(ws Workspace) error {
	if ws.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(ws.Dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ScheduleRemoval は after 経過後にワークスペースを削除します。
func (l *Local) ScheduleRemoval(ws Workspace, after time.Duration) *time.Timer {
	return time.AfterFunc(after, func() {
		_ = l.Remove(ws)
	})
}

func (l *Local) layout(jobID string) Workspace {
	dir := filepath.Join(l.base, jobID)
	return Workspace{
		JobID:  jobID,
		Dir:    dir,
		InDir:  filepath.Join(dir, "in"),
		OutDir: filepath.Join(dir, "out"),
	}
}
