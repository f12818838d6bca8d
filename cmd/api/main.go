// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/qiuxuhao/pdf-merge-tool/internal/auth"
	"github.com/qiuxuhao/pdf-merge-tool/internal/config"
	"github.com/qiuxuhao/pdf-merge-tool/internal/jobs"
	"github.com/qiuxuhao/pdf-merge-tool/internal/pdf"
	"github.com/qiuxuhao/pdf-merge-tool/internal/pdfdoc"
	"github.com/qiuxuhao/pdf-merge-tool/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token",
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンと面付け結果を読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token", "X-Job-Id", "X-Total-Sheets", "X-Warning-Count", "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	logger := log.Default()
	pdfService := pdf.NewService(cfg, storage.NewLocal(cfg.WorkDir), pdfdoc.New(), logger)

	manager, err := setupJobs(cfg, pdfService, logger)
	if err != nil {
		// Redis が無くても同期処理だけで動かせるようにする
		logger.Printf("async jobs disabled: %v", err)
		manager = nil
	} else {
		manager.StartWorkers()
	}

	setupRoutes(router, cfg, pdfService, manager)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("Starting API server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown: %v", err)
	}
	if manager != nil {
		if err := manager.Shutdown(ctx); err != nil {
			logger.Printf("job manager shutdown: %v", err)
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pdf-merge-tool-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。manager が nil の場合は同期処理のみ。
func setupRoutes(router *gin.Engine, cfg *config.Config, pdfService *pdf.Service, manager *jobs.Manager) {
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(cfg)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		if authManager.Enabled() {
			protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		}
		{
			opts := pdf.HandlerOptions{
				AsyncThresholdBytes: cfg.AsyncThresholdBytes,
				AsyncThresholdFiles: cfg.AsyncThresholdFiles,
			}
			if manager != nil {
				opts.Scheduler = &pdfJobScheduler{manager: manager}
				protected.GET("/jobs/:id", jobStatusHandler(manager))
			}
			protected.POST("/pdf/impose", pdf.ImposeHandler(pdfService, opts))
			protected.POST("/pdf/inspect", pdf.InspectHandler(pdfService))
			protected.GET("/jobs/:id/download", jobDownloadHandler(pdfService))
		}
	}
}
