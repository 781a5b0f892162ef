package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digitalmarketplace/trybuy-front/internal/apiclient"
	"github.com/digitalmarketplace/trybuy-front/internal/authstate"
	"github.com/digitalmarketplace/trybuy-front/internal/callback"
	"github.com/digitalmarketplace/trybuy-front/internal/config"
	"github.com/digitalmarketplace/trybuy-front/internal/crypto"
	"github.com/digitalmarketplace/trybuy-front/internal/idp"
	"github.com/digitalmarketplace/trybuy-front/internal/log"
	"github.com/digitalmarketplace/trybuy-front/internal/returnurl"
	"github.com/digitalmarketplace/trybuy-front/internal/server"
	"github.com/digitalmarketplace/trybuy-front/internal/storage"
	"github.com/digitalmarketplace/trybuy-front/internal/token"
)

// stateTTL bounds how long a login redirect's signed state stays valid
const stateTTL = 10 * time.Minute

// TryBuyFront is the complete authenticating front application
type TryBuyFront struct {
	config     config.Config
	httpServer *server.HTTPServer
	sessions   storage.SessionStore
}

// NewTryBuyFront creates the application with all dependencies built
func NewTryBuyFront(ctx context.Context, cfg config.Config) (*TryBuyFront, error) {
	log.LogInfoWithFields("trybuyfront", "Building application", map[string]any{
		"baseURL": cfg.Front.BaseURL,
		"api":     cfg.API.BaseURL,
	})

	sessions, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	var validator token.Validator
	if tv := cfg.TokenValidation; tv != nil && tv.Enabled {
		validator = token.ExpiryValidator{Grace: tv.Grace}
	}

	auth := authstate.NewManager(sessions, validator)

	blocklist := cfg.Front.BlockedReturnPaths
	if len(blocklist) == 0 {
		blocklist = []string{cfg.Front.CallbackPath}
	}
	returns := returnurl.New(sessions, cfg.Front.DefaultPath, blocklist)

	signer := crypto.NewTokenSigner([]byte(cfg.Front.StateSigningSecret), stateTTL)

	orch := callback.New(sessions, auth, returns, signer, cfg.Front.DefaultPath)

	provider := idp.NewTrialProvider(
		cfg.IdP.AuthorizationURL,
		cfg.IdP.ClientID,
		cfg.IdP.RedirectURL,
		cfg.IdP.Scopes,
	)

	api := apiclient.NewClient(cfg.API.BaseURL, cfg.API.Timeout)

	handlers := server.NewHandlers(&cfg, sessions, auth, returns, orch, signer, provider, api)

	mux := buildHTTPHandler(cfg, handlers)
	httpServer := server.NewHTTPServer(mux, cfg.Front.Addr)

	return &TryBuyFront{
		config:     cfg,
		httpServer: httpServer,
		sessions:   sessions,
	}, nil
}

// Run starts the application and blocks until shutdown
func (t *TryBuyFront) Run() error {
	log.LogInfoWithFields("trybuyfront", "Starting application", map[string]any{
		"addr": t.config.Front.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := t.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go t.runSessionSweeper(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("trybuyfront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("trybuyfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("trybuyfront", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("trybuyfront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := t.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("trybuyfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if closer, ok := t.sessions.(*storage.FirestoreStore); ok {
		if err := closer.Close(); err != nil {
			log.LogWarnWithFields("trybuyfront", "Failed to close session store", map[string]any{
				"error": err.Error(),
			})
		}
	}

	log.LogInfoWithFields("trybuyfront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}

// runSessionSweeper periodically removes idle sessions
func (t *TryBuyFront) runSessionSweeper(ctx context.Context) {
	timeout := 24 * time.Hour
	interval := time.Hour
	if sc := t.config.Front.Sessions; sc != nil {
		if sc.Timeout > 0 {
			timeout = sc.Timeout
		}
		if sc.CleanupInterval > 0 {
			interval = sc.CleanupInterval
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			switch store := t.sessions.(type) {
			case *storage.MemoryStore:
				removed = store.Sweep(timeout)
			case *storage.FirestoreStore:
				n, err := store.Sweep(ctx, timeout)
				if err != nil {
					log.LogWarnWithFields("trybuyfront", "Session sweep failed", map[string]any{
						"error": err.Error(),
					})
					continue
				}
				removed = n
			}
			if removed > 0 {
				log.LogInfoWithFields("trybuyfront", "Swept idle sessions", map[string]any{
					"removed": removed,
				})
			}
		}
	}
}

// setupStorage creates the session store based on configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.SessionStore, error) {
	if sc := cfg.Front.Sessions; sc != nil && sc.Storage == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore session storage", map[string]any{
			"project":    sc.GCPProject,
			"database":   sc.FirestoreDatabase,
			"collection": sc.FirestoreCollection,
		})
		store, err := storage.NewFirestoreStore(ctx, sc.GCPProject, sc.FirestoreDatabase, sc.FirestoreCollection)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore session store: %w", err)
		}
		return store, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory session storage", map[string]any{})
	return storage.NewMemoryStore(), nil
}

// buildHTTPHandler creates the complete HTTP handler with all routing and middleware
func buildHTTPHandler(cfg config.Config, handlers *server.Handlers) http.Handler {
	mux := http.NewServeMux()

	corsMiddleware := server.NewCORSMiddleware(cfg.Front.AllowedOrigins)
	tryLogger := server.NewLoggerMiddleware("try")
	adminLogger := server.NewLoggerMiddleware("admin")
	tryRecover := server.NewRecoverMiddleware("try")

	tryMiddleware := []server.MiddlewareFunc{
		corsMiddleware,
		tryLogger,
		tryRecover,
	}

	mux.Handle("/health", server.NewHealthHandler())

	mux.Handle("/try/login", server.ChainMiddleware(http.HandlerFunc(handlers.LoginHandler), tryMiddleware...))
	mux.Handle(cfg.Front.CallbackPath, server.ChainMiddleware(http.HandlerFunc(handlers.CallbackHandler), tryMiddleware...))
	mux.Handle("/try/logout", server.ChainMiddleware(http.HandlerFunc(handlers.LogoutHandler), tryMiddleware...))
	mux.Handle("/try/status", server.ChainMiddleware(http.HandlerFunc(handlers.StatusHandler), tryMiddleware...))
	mux.Handle("/try/profile", server.ChainMiddleware(http.HandlerFunc(handlers.ProfileHandler), tryMiddleware...))
	mux.Handle("/try/consent", server.ChainMiddleware(http.HandlerFunc(handlers.ConsentHandler), tryMiddleware...))

	if admin := cfg.Front.Admin; admin != nil && admin.Enabled {
		log.LogInfoWithFields("server", "Admin endpoints enabled", map[string]any{
			"username": admin.Username,
		})
		adminMiddleware := []server.MiddlewareFunc{
			adminLogger,
			server.NewAdminAuthMiddleware(admin),
			tryRecover,
		}
		mux.Handle("/admin/logging", server.ChainMiddleware(http.HandlerFunc(handlers.AdminLoggingHandler), adminMiddleware...))
	}

	log.LogInfoWithFields("server", "Routes initialized", nil)
	return mux
}
