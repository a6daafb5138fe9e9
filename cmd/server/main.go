package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budget-tracker/internal/config"
	"budget-tracker/internal/handlers"
	applog "budget-tracker/internal/log"
	"budget-tracker/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", applog.FieldError, err)
		os.Exit(1)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		logger.Error("open database", applog.FieldError, err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PurgeExpiredSessions(); err != nil {
		logger.Warn("purge expired sessions", applog.FieldError, err)
	}

	h := handlers.NewHandlers(db, cfg.SessionTTL, cfg.SecureCookie)
	router := applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(setupRouter(h))

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("starting budget-tracker server", "port", cfg.Port, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", applog.FieldError, err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped")
}

// setupRouter wires every route. Form-driven routes redirect unauthenticated
// requests to /login; the export API answers with JSON errors instead.
func setupRouter(h *handlers.Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /logout", h.Logout)

	mux.Handle("GET /{$}", h.RequireAuth(http.HandlerFunc(h.Index)))
	mux.Handle("POST /add", h.RequireAuth(http.HandlerFunc(h.AddEntry)))
	mux.Handle("POST /delete/{id}", h.RequireAuth(http.HandlerFunc(h.DeleteEntry)))

	mux.Handle("GET /api/export", h.RequireAuthAPI(http.HandlerFunc(h.Export)))

	return mux
}
