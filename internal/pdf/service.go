// Package pdf はアップロードされたPDFの面付け処理をHTTP/ジョブ向けに提供します。
package pdf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/qiuxuhao/pdf-merge-tool/internal/config"
	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
	"github.com/qiuxuhao/pdf-merge-tool/internal/storage"
)

// Error はAPIレスポンスに変換されるエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// SourceFileMeta はアップロードされた入力ファイルの情報です。
type SourceFileMeta struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages"`
}

type storedFile struct {
	path         string
	originalName string
	size         int64
	pages        int
}

// Service はワークスペース管理と面付けエンジンをまとめます。
type Service struct {
	cfg     *config.Config
	storage *storage.Local
	backend impose.Backend
	engine  *impose.Engine
	logger  *log.Logger
	now     func() time.Time
}

// NewService は Service を作成します。logger が nil の場合は log.Default() を使います。
func NewService(cfg *config.Config, store *storage.Local, backend impose.Backend, logger *log.Logger) *Service {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if store == nil {
		store = storage.NewLocal(cfg.WorkDir)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:     cfg,
		storage: store,
		backend: backend,
		engine: impose.NewEngine(backend,
			impose.WithLogger(logger),
			impose.WithWorkers(cfg.LoadWorkers),
		),
		logger: logger,
		now:    time.Now,
	}
}

// DiscardJob は未実行ジョブのワークスペースを削除します。
func (s *Service) DiscardJob(jobID string) error {
	ws, err := s.storage.Open(jobID)
	if err != nil {
		return err
	}
	return s.storage.Remove(ws)
}

func (s *Service) createWorkspace() (storage.Workspace, error) {
	ws, err := s.storage.Create()
	if err != nil {
		return storage.Workspace{}, err
	}
	return ws, nil
}

func (s *Service) workspaceFor(jobID string) (storage.Workspace, error) {
	ws, err := s.storage.Open(jobID)
	if err != nil {
		return storage.Workspace{}, newError("INVALID_INPUT", "ジョブIDが不正です。", err)
	}
	return ws, nil
}

func (s *Service) scheduleCleanup(ws storage.Workspace) {
	s.storage.ScheduleRemoval(ws, s.cfg.JobTTL())
}

// storeMultipartFile はアップロードを検証して dir に保存します。
// PDFとして解析できないファイルは pages=0 のまま保存し、面付け時に警告として扱います。
func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, dir string, index int) (storedFile, error) {
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}
	if file == nil {
		return storedFile{}, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return storedFile{}, newError("LIMIT_EXCEEDED",
			fmt.Sprintf("%s のサイズが上限(%dMB)を超えています。", file.Filename, s.cfg.MaxFileSize/(1024*1024)), nil)
	}

	src, err := file.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to open upload %q: %w", file.Filename, err)
	}
	defer src.Close()

	var reader io.Reader = src
	if s.cfg.MaxFileSize > 0 {
		reader = io.LimitReader(src, s.cfg.MaxFileSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to read upload %q: %w", file.Filename, err)
	}
	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return storedFile{}, newError("LIMIT_EXCEEDED",
			fmt.Sprintf("%s のサイズが上限(%dMB)を超えています。", file.Filename, s.cfg.MaxFileSize/(1024*1024)), nil)
	}

	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return storedFile{}, newError("INVALID_INPUT",
			fmt.Sprintf("%s はPDFファイルではありません (%s)。", file.Filename, mt.String()), nil)
	}

	pages := s.countPages(data)
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		return storedFile{}, newError("LIMIT_EXCEEDED",
			fmt.Sprintf("%s のページ数(%d)が上限(%d)を超えています。", file.Filename, pages, s.cfg.MaxPages), nil)
	}

	path := filepath.Join(dir, fmt.Sprintf("%03d.pdf", index))
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return storedFile{}, fmt.Errorf("failed to store upload %q: %w", file.Filename, err)
	}

	return storedFile{
		path:         path,
		originalName: filepath.Base(file.Filename),
		size:         int64(len(data)),
		pages:        pages,
	}, nil
}

// countPages は解析できない場合に 0 を返します。
func (s *Service) countPages(data []byte) int {
	if s.backend == nil {
		return 0
	}
	doc, err := s.backend.Load(data)
	if err != nil {
		return 0
	}
	defer doc.Close()
	return doc.PageCount()
}

func writeJSON(path string, v any) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
