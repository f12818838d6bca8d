package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/qiuxuhao/pdf-merge-tool/internal/impose"
)

type stubImposeService struct {
	manifest  *JobManifest
	prepErr   error
	result    *Result
	runErr    error
	gotOpts   ImposeOptions
	discarded []string
}

func (s *stubImposeService) PrepareImposeJob(ctx context.Context, files []*multipart.FileHeader, opts ImposeOptions) (*JobManifest, error) {
	s.gotOpts = opts
	if s.prepErr != nil {
		return nil, s.prepErr
	}
	return s.manifest, nil
}

func (s *stubImposeService) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	return s.result, s.runErr
}

func (s *stubImposeService) DiscardJob(jobID string) error {
	s.discarded = append(s.discarded, jobID)
	return nil
}

type stubScheduler struct {
	err       error
	scheduled []string
}

func (s *stubScheduler) Schedule(ctx context.Context, op OperationType, jobID string) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, jobID)
	return nil
}

func newMultipartRequest(t *testing.T, fields map[string]string, names ...string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, name := range names {
		fileWriter, err := writer.CreateFormFile("files[]", name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := io.Copy(fileWriter, bytes.NewReader([]byte("%PDF-1.4\n"))); err != nil {
			t.Fatalf("failed to write dummy file: %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/impose", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serveImpose(svc ImposeService, opts HandlerOptions, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/impose", ImposeHandler(svc, opts))
	router.ServeHTTP(rec, req)
	return rec
}

func TestParseImposeOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		body    string
		want    ImposeOptions
		wantErr bool
	}{
		{name: "empty", body: "", want: ImposeOptions{}},
		{name: "capacity and orientation", body: "capacity=6&orientation=landscape", want: ImposeOptions{Capacity: 6, Orientation: impose.Landscape}},
		{name: "alias", body: "pagesPerSheet=3", want: ImposeOptions{Capacity: 3}},
		{name: "upper case orientation", body: "orientation=Portrait", want: ImposeOptions{Orientation: impose.Portrait}},
		{name: "zero capacity", body: "capacity=0", wantErr: true},
		{name: "non numeric capacity", body: "capacity=four", wantErr: true},
		{name: "unknown orientation", body: "orientation=diagonal", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
			ctx.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			ctx.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			got, err := parseImposeOptions(ctx)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseImposeOptions returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestImposeHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobDir := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("failed to create jobDir: %v", err)
	}

	outputPath := filepath.Join(jobDir, imposedFilename)
	pdfData := []byte("%PDF-1.4\n% dummy pdf content\n")
	if err := os.WriteFile(outputPath, pdfData, 0o640); err != nil {
		t.Fatalf("failed to create output file: %v", err)
	}

	service := &stubImposeService{
		manifest: &JobManifest{JobID: "job-123", Operation: OperationImpose, Files: []JobFile{{Size: 10}}},
		result: &Result{
			JobID:          "job-123",
			Operation:      OperationImpose,
			OutputPath:     outputPath,
			OutputFilename: imposedFilename,
			OutputSize:     int64(len(pdfData)),
			ResultKind:     ResultKindPDF,
			Meta:           &ImposeMeta{TotalSheets: 2, Warnings: []WarningMeta{{Kind: impose.WarningSourceLoadFailed}}},
			jobDir:         jobDir,
		},
	}

	req := newMultipartRequest(t, map[string]string{"capacity": "5", "orientation": "portrait"}, "a.pdf", "b.pdf")
	rec := serveImpose(service, HandlerOptions{}, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if rec.Header().Get("X-Job-Id") != "job-123" {
		t.Fatalf("unexpected X-Job-Id header: %s", rec.Header().Get("X-Job-Id"))
	}
	if rec.Header().Get("X-Total-Sheets") != "2" || rec.Header().Get("X-Warning-Count") != "1" {
		t.Fatalf("unexpected meta headers: %v", rec.Header())
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfData) {
		t.Fatalf("unexpected response body: %q", rec.Body.Bytes())
	}
	if service.gotOpts != (ImposeOptions{Capacity: 5, Orientation: impose.Portrait}) {
		t.Fatalf("unexpected options passed to service: %+v", service.gotOpts)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("expected jobDir to be removed, stat err=%v", err)
	}
}

func TestImposeHandlerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		prepErr  error
		runErr   error
		wantCode int
		wantBody string
	}{
		{
			name:     "limit exceeded",
			prepErr:  &Error{Code: "LIMIT_EXCEEDED", Message: "サイズ上限を超えています"},
			wantCode: http.StatusRequestEntityTooLarge,
			wantBody: "LIMIT_EXCEEDED",
		},
		{
			name:     "no valid sources",
			runErr:   newError("NO_VALID_SOURCES", "面付けできるPDFがありません", impose.ErrNoValidSources),
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "NO_VALID_SOURCES",
		},
		{
			name:     "canceled",
			runErr:   context.Canceled,
			wantCode: http.StatusRequestTimeout,
			wantBody: "REQUEST_CANCELED",
		},
		{
			name:     "internal",
			runErr:   errors.New("disk full"),
			wantCode: http.StatusInternalServerError,
			wantBody: "INTERNAL_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubImposeService{
				manifest: &JobManifest{JobID: "job-1", Operation: OperationImpose},
				prepErr:  tt.prepErr,
				runErr:   tt.runErr,
			}
			rec := serveImpose(service, HandlerOptions{}, newMultipartRequest(t, nil, "a.pdf"))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var payload map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if payload["code"] != tt.wantBody {
				t.Fatalf("unexpected code: %s", payload["code"])
			}
		})
	}
}

func TestImposeHandlerInvalidCapacity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubImposeService{}

	rec := serveImpose(service, HandlerOptions{}, newMultipartRequest(t, map[string]string{"capacity": "-1"}, "a.pdf"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestImposeHandlerNoFiles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := serveImpose(&stubImposeService{}, HandlerOptions{}, newMultipartRequest(t, map[string]string{"capacity": "4"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestImposeHandlerAsync(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manifest := &JobManifest{
		JobID:     "job-async",
		Operation: OperationImpose,
		Files:     []JobFile{{Size: 10}, {Size: 10}, {Size: 10}},
	}
	service := &stubImposeService{manifest: manifest}
	scheduler := &stubScheduler{}

	rec := serveImpose(service, HandlerOptions{Scheduler: scheduler, AsyncThresholdFiles: 2}, newMultipartRequest(t, nil, "a.pdf", "b.pdf", "c.pdf"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["jobId"] != "job-async" {
		t.Fatalf("unexpected jobId: %s", payload["jobId"])
	}
	if len(scheduler.scheduled) != 1 {
		t.Fatalf("expected one scheduled job, got %v", scheduler.scheduled)
	}
}

func TestImposeHandlerScheduleFailureDiscardsJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubImposeService{manifest: &JobManifest{
		JobID:     "job-x",
		Operation: OperationImpose,
		Files:     []JobFile{{Size: 100}},
	}}
	scheduler := &stubScheduler{err: errors.New("redis down")}

	rec := serveImpose(service, HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 10}, newMultipartRequest(t, nil, "a.pdf"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(service.discarded) != 1 || service.discarded[0] != "job-x" {
		t.Fatalf("expected job to be discarded, got %v", service.discarded)
	}
}

func TestShouldProcessAsync(t *testing.T) {
	manifest := &JobManifest{Files: []JobFile{{Size: 40}, {Size: 40}}}
	scheduler := &stubScheduler{}

	if shouldProcessAsync(manifest, HandlerOptions{AsyncThresholdBytes: 1}) {
		t.Fatal("no scheduler means sync processing")
	}
	if shouldProcessAsync(manifest, HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 100, AsyncThresholdFiles: 5}) {
		t.Fatal("below both thresholds should be sync")
	}
	if !shouldProcessAsync(manifest, HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 50}) {
		t.Fatal("over byte threshold should be async")
	}
	if !shouldProcessAsync(manifest, HandlerOptions{Scheduler: scheduler, AsyncThresholdFiles: 1}) {
		t.Fatal("over file threshold should be async")
	}
}
