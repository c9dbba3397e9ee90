package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pointsmith/pointsmith/internal/backup"
	"github.com/pointsmith/pointsmith/internal/database"
	"github.com/pointsmith/pointsmith/internal/logging"
	"github.com/pointsmith/pointsmith/internal/push"
	"github.com/pointsmith/pointsmith/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("POINTSMITH_LOG_LEVEL"))

	port := envOr("POINTSMITH_PORT", "8080")
	dbPath := envOr("POINTSMITH_DB_PATH", "pointsmith.db")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	vapidPublic := os.Getenv("POINTSMITH_VAPID_PUBLIC_KEY")
	vapidPrivate := os.Getenv("POINTSMITH_VAPID_PRIVATE_KEY")
	if vapidPublic == "" || vapidPrivate == "" {
		// Ephemeral keys keep push working in dev; existing browser
		// subscriptions break on every restart, so set real keys in
		// production.
		vapidPublic, vapidPrivate, err = push.GenerateVAPIDKeys()
		if err != nil {
			logger.Error("failed to generate VAPID keys", "error", err)
			os.Exit(1)
		}
		logger.Warn("VAPID keys not configured, generated ephemeral pair")
	}

	cfg := server.Config{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		PostmarkToken:   os.Getenv("POINTSMITH_POSTMARK_TOKEN"),
		FromEmail:       envOr("POINTSMITH_FROM_EMAIL", "noreply@pointsmith.app"),
		BaseURL:         envOr("POINTSMITH_BASE_URL", "http://localhost:"+port),
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("POINTSMITH_S3_ENDPOINT"),
				Bucket:    os.Getenv("POINTSMITH_S3_BUCKET"),
				Region:    envOr("POINTSMITH_S3_REGION", "auto"),
				AccessKey: os.Getenv("POINTSMITH_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("POINTSMITH_S3_SECRET_KEY"),
			},
			DBPath:        dbPath,
			Passphrase:    os.Getenv("POINTSMITH_BACKUP_PASSPHRASE"),
			ScheduleHour:  envInt("POINTSMITH_BACKUP_HOUR", 3),
			RetentionDays: envInt("POINTSMITH_BACKUP_RETENTION_DAYS", 30),
		},
	}

	srv := server.New(db, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mgr := srv.BackupManager(); mgr.Enabled() {
		mgr.Start(ctx)
		defer mgr.Stop()
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Pointsmith running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
