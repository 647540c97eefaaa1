package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance-tracker/internal/auth"
	"finance-tracker/internal/config"
	"finance-tracker/internal/handlers"
	applog "finance-tracker/internal/log"
	"finance-tracker/internal/storage"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout      = 30 * time.Second
	sessionSweepInterval = time.Hour
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: "server",
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("Database ready", "path", cfg.DBPath)

	if err := ensureAdmin(ctx, db, cfg, logger); err != nil {
		return err
	}

	h := handlers.NewHandlers(db, cfg.TemplateDir, cfg.SecureCookie,
		handlers.WithSessionDuration(cfg.SessionDuration))

	srv := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        applog.Middleware(logger)(h.SecurityHeaders(setupRouter(h, cfg.StaticDir))),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweepSessions(gctx, db, logger)
		return nil
	})
	return g.Wait()
}

// setupRouter registers every route. Everything except the auth pages and
// static assets sits behind the session gate.
func setupRouter(h *handlers.Handlers, staticDir string) http.Handler {
	mux := http.NewServeMux()

	protected := func(f http.HandlerFunc) http.Handler {
		return h.AuthMiddleware(f)
	}

	mux.Handle("GET /{$}", protected(h.Dashboard))
	mux.Handle("POST /add_expense", protected(h.AddExpense))
	mux.Handle("POST /edit_expense/{id}", protected(h.EditExpense))
	mux.Handle("POST /delete_expense/{id}", protected(h.DeleteExpense))
	mux.Handle("GET /api/stats", protected(h.APIStats))
	mux.Handle("GET /chart/trend.png", protected(h.TrendChart))
	mux.Handle("GET /chart/categories.png", protected(h.CategoryChart))

	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /logout", h.Logout)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	mux.HandleFunc("GET /healthz", h.Health)

	return mux
}

// ensureAdmin creates the ADMIN_USER account on first start.
func ensureAdmin(ctx context.Context, db *storage.DB, cfg *config.Config, logger *applog.Logger) error {
	if cfg.AdminUser == "" {
		return nil
	}
	exists, err := db.UsernameExists(ctx, cfg.AdminUser)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	user, err := db.CreateUser(ctx, cfg.AdminUser, cfg.AdminEmail, hash)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	logger.Info("Created admin user", "username", user.Username, applog.FieldUserID, user.ID)
	return nil
}

// sweepSessions removes expired sessions until ctx is done.
func sweepSessions(ctx context.Context, db *storage.DB, logger *applog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := db.CleanExpiredSessions(ctx)
			if err != nil {
				logger.Warn("Failed to clean expired sessions", applog.FieldError, err)
				continue
			}
			if removed > 0 {
				logger.Info("Removed expired sessions", "count", removed)
			}
		}
	}
}
