package pdf

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

// JobRunner はジョブを実行できるサービスが実装します。
type JobRunner interface {
	RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error)
	DiscardJob(jobID string) error
}

// ImposeService は面付けジョブの準備と実行を提供します。
type ImposeService interface {
	JobRunner
	PrepareImposeJob(ctx context.Context, files []*multipart.FileHeader, opts ImposeOptions) (*JobManifest, error)
}

// InspectService は単一PDFのメタデータ取得を提供します。
type InspectService interface {
	InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error)
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, op OperationType, jobID string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
	AsyncThresholdFiles int
}

// ImposeHandler は POST /api/pdf/impose のハンドラーを返します。
func ImposeHandler(svc ImposeService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := form.File["files[]"]
		if len(files) == 0 {
			files = form.File["files"]
		}
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされたPDFファイルが見つかりません。",
			})
			return
		}

		imposeOpts, err := parseImposeOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		manifest, err := svc.PrepareImposeJob(c.Request.Context(), files, imposeOpts)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if shouldProcessAsync(manifest, opts) {
			if err := opts.Scheduler.Schedule(c.Request.Context(), manifest.Operation, manifest.JobID); err != nil {
				if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
					err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
				}
				respondWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"jobId": manifest.JobID})
			return
		}

		result, err := svc.RunJob(c.Request.Context(), manifest.JobID, nil)
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer result.Cleanup()

		if err := streamResult(c, result, "面付け結果の読み込みに失敗しました"); err != nil {
			respondWithError(c, err)
		}
	}
}

// InspectHandler は POST /api/pdf/inspect のハンドラーを返します。
func InspectHandler(svc InspectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		result, err := svc.InspectMultipart(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func shouldProcessAsync(manifest *JobManifest, opts HandlerOptions) bool {
	if manifest == nil || opts.Scheduler == nil {
		return false
	}
	if opts.AsyncThresholdBytes > 0 && manifest.TotalSize() > opts.AsyncThresholdBytes {
		return true
	}
	if opts.AsyncThresholdFiles > 0 && len(manifest.Files) > opts.AsyncThresholdFiles {
		return true
	}
	return false
}

// parseImposeOptions は capacity（別名 pagesPerSheet）と orientation を読み取ります。
// 未指定の項目はゼロ値のまま返し、サービス側の既定値に任せます。
func parseImposeOptions(c *gin.Context) (ImposeOptions, error) {
	var opts ImposeOptions

	raw := strings.TrimSpace(c.PostForm("capacity"))
	if raw == "" {
		raw = strings.TrimSpace(c.PostForm("pagesPerSheet"))
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return opts, errors.New("capacity は1以上の整数で指定してください。")
		}
		opts.Capacity = n
	}

	if rawOrientation := strings.TrimSpace(c.PostForm("orientation")); rawOrientation != "" {
		o, err := impose.ParseOrientation(rawOrientation)
		if err != nil {
			return opts, errors.New("orientation は portrait または landscape で指定してください。")
		}
		opts.Orientation = o
	}

	return opts, nil
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		switch apiErr.Code {
		case "LIMIT_EXCEEDED":
			status = http.StatusRequestEntityTooLarge
		case "NO_VALID_SOURCES", "UNSUPPORTED_PDF":
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("PDFファイルを選択してください。")
	}
	for _, key := range []string{"file", "file[]", "files", "files[]"} {
		if files := form.File[key]; len(files) > 0 {
			return files[0], nil
		}
	}
	return nil, errors.New("PDFファイルを選択してください。")
}

func streamResult(c *gin.Context, result *Result, readErrMsg string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	WriteDownloadHeaders(c, result)
	c.DataFromReader(http.StatusOK, result.OutputSize, ContentType(result.ResultKind), file, nil)
	return nil
}

// ContentType は成果物種別に対応する Content-Type を返します。
func ContentType(kind ResultKind) string {
	if kind == ResultKindPDF {
		return "application/pdf"
	}
	return "application/octet-stream"
}

// WriteDownloadHeaders はダウンロード用のレスポンスヘッダーを設定します。
func WriteDownloadHeaders(c *gin.Context, result *Result) {
	encodedName := url.PathEscape(result.OutputFilename)
	c.Header("Content-Type", ContentType(result.ResultKind))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", result.JobID)
	if meta, ok := result.Meta.(*ImposeMeta); ok {
		c.Header("X-Total-Sheets", strconv.Itoa(meta.TotalSheets))
		c.Header("X-Warning-Count", strconv.Itoa(len(meta.Warnings)))
	}
}
