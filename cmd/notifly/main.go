package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/config"
	"github.com/dukerupert/notifly/internal/database"
	"github.com/dukerupert/notifly/internal/email"
	"github.com/dukerupert/notifly/internal/logging"
	"github.com/dukerupert/notifly/internal/metrics"
	"github.com/dukerupert/notifly/internal/push"
	"github.com/dukerupert/notifly/internal/server"
)

func main() {
	// A missing .env file is fine; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("NOTIFLY_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var pushSvc *push.Service
	if cfg.PushEnabled() {
		pushSvc = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	} else {
		logger.Warn("VAPID keys not configured, push delivery disabled")
	}

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.BaseURL)
	if !emailClient.Configured() {
		logger.Warn("postmark token not configured, email delivery disabled")
	}

	srv := server.New(server.Options{
		DB:             db,
		Issuer:         auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL),
		Email:          emailClient,
		Push:           pushSvc,
		Backup:         cfg.Backup(),
		Metrics:        metrics.New(),
		EventRateLimit: cfg.EventRateLimit,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	if cfg.AdminEmail != "" {
		admin, err := srv.UserStore().EnsureUser(cfg.AdminEmail, "Admin", auth.RoleAdmin)
		if err != nil {
			logger.Error("failed to create admin user", "error", err)
			os.Exit(1)
		}
		logger.Info("admin user ready", "user_id", admin.ID, "email", admin.Email)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	dispatcher := srv.Dispatcher()
	dispatcher.SetCleanupInterval(cfg.CleanupInterval)
	dispatcher.Start(bgCtx)

	backups := srv.Backups()
	if backups.Enabled() {
		backups.Start(bgCtx)
	} else {
		logger.Info("backup storage not configured, scheduled backups disabled")
	}

	// Rate limiter cleanup
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("notifly starting", "addr", httpServer.Addr, "push", pushSvc.Enabled(), "email", emailClient.Configured())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	dispatcher.Stop()
	backups.Stop()
	bgCancel()
}
