package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/qiuxuhao/pdf-merge-tool/internal/config"
	"github.com/qiuxuhao/pdf-merge-tool/internal/jobs"
	"github.com/qiuxuhao/pdf-merge-tool/internal/pdf"
)

const redisPingTimeout = 3 * time.Second

// pdfJobScheduler は pdf.JobScheduler を jobs.Manager に橋渡しします。
type pdfJobScheduler struct {
	manager *jobs.Manager
}

func (s *pdfJobScheduler) Schedule(ctx context.Context, op pdf.OperationType, jobID string) error {
	if _, err := s.manager.Enqueue(ctx, &jobs.TaskPayload{JobID: jobID, Operation: op}); err != nil {
		return fmt.Errorf("enqueue %s job %s: %w", op, jobID, err)
	}
	return nil
}

// setupJobs は Redis に接続できた場合だけジョブマネージャーを返します。
func setupJobs(cfg *config.Config, pdfService *pdf.Service, logger *log.Logger) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse QUEUE_REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opt.Addr, err)
	}

	return jobs.NewManager(cfg, pdfService, jobs.NewStore(rdb, cfg.JobTTL()), logger)
}

// recordLookup はジョブ状態の参照先です。
type recordLookup interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

// resultOpener はジョブ成果物の参照先です。
type resultOpener interface {
	OpenResultFile(jobID string) (*pdf.Result, *os.File, error)
}

// jobStatusView は GET /api/jobs/:id の応答です。
type jobStatusView struct {
	JobID       string            `json:"jobId"`
	Operation   string            `json:"operation"`
	Status      jobs.Status       `json:"status"`
	Progress    jobs.ProgressInfo `json:"progress"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	Meta        any               `json:"meta,omitempty"`
	Error       *jobs.ErrorInfo   `json:"error,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

func newJobStatusView(r *jobs.Record) jobStatusView {
	v := jobStatusView{
		JobID:     r.JobID,
		Operation: r.Operation,
		Status:    r.Status,
		Progress:  r.Progress,
		Meta:      r.Meta,
		Error:     r.Error,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}
	// 完了前のジョブにはダウンロード先を見せない
	if r.Status == jobs.StatusSucceeded {
		v.DownloadURL = r.DownloadURL
	}
	return v
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

func jobIDParam(c *gin.Context) (string, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		abortJSON(c, http.StatusBadRequest, "INVALID_INPUT", "jobId を指定してください。")
		return "", false
	}
	return jobID, true
}

func jobStatusHandler(lookup recordLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}

		record, err := lookup.GetRecord(c.Request.Context(), jobID)
		switch {
		case err != nil:
			abortJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ジョブ情報の取得に失敗しました。")
		case record == nil:
			abortJSON(c, http.StatusNotFound, "JOB_NOT_FOUND", "指定されたジョブは存在しません。")
		default:
			c.JSON(http.StatusOK, newJobStatusView(record))
		}
	}
}

func jobDownloadHandler(opener resultOpener) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}

		result, file, err := opener.OpenResultFile(jobID)
		if err != nil {
			var apiErr *pdf.Error
			switch {
			case errors.As(err, &apiErr):
				abortJSON(c, http.StatusBadRequest, apiErr.Code, apiErr.Message)
			case errors.Is(err, fs.ErrNotExist):
				abortJSON(c, http.StatusNotFound, "JOB_RESULT_NOT_FOUND", "ジョブの成果物が見つかりませんでした。")
			default:
				abortJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "ジョブの成果物取得に失敗しました。")
			}
			return
		}
		defer file.Close()

		pdf.WriteDownloadHeaders(c, result)
		c.DataFromReader(http.StatusOK, result.OutputSize, pdf.ContentType(result.ResultKind), file, nil)
	}
}
