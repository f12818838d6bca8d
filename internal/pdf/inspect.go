package pdf

import (
	"context"
	"mime/multipart"
	"os"
)

// InspectResult はアップロードされたPDFの基本メタデータを表します。
type InspectResult struct {
	Source SourceFileMeta `json:"source"`
	Width  float64        `json:"width,omitempty"`
	Height float64        `json:"height,omitempty"`
}

// InspectMultipart は単一PDFファイルを受け取り、ページ数と先頭ページのサイズを返します。
func (s *Service) InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.storage.Remove(ws)
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.InDir, 0)
	if err != nil {
		return nil, err
	}
	if stored.pages == 0 {
		return nil, newError("UNSUPPORTED_PDF", "PDFを読み込めませんでした。", nil)
	}

	result := &InspectResult{
		Source: SourceFileMeta{
			Name:  stored.originalName,
			Size:  stored.size,
			Pages: stored.pages,
		},
	}
	if w, h, err := s.firstPageSize(stored.path); err == nil {
		result.Width, result.Height = w, h
	}
	return result, nil
}

func (s *Service) firstPageSize(path string) (float64, float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	doc, err := s.backend.Load(data)
	if err != nil {
		return 0, 0, err
	}
	defer doc.Close()
	return doc.PageSize(0)
}
