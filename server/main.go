package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/joho/godotenv"
	"github.com/tomhv/usagegraph/server/internal/auth"
	"github.com/tomhv/usagegraph/server/internal/database"
	"github.com/tomhv/usagegraph/server/internal/handlers"
	"github.com/tomhv/usagegraph/server/internal/middleware"
	"github.com/tomhv/usagegraph/server/internal/templates"
	"golang.org/x/time/rate"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Load configuration from environment (.env optional)
	godotenv.Load()
	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "./usagegraph.db")

	// Open database
	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Setup session manager with SQLite store
	sessionMgr := scs.New()
	sessionMgr.Store = sqlite3store.New(db.DB)
	sessionMgr.Lifetime = 7 * 24 * time.Hour
	sessionMgr.Cookie.Secure = false // Set to true in production with HTTPS
	sessionMgr.Cookie.SameSite = http.SameSiteLaxMode

	// Parse templates
	tmpl, err := templates.Parse()
	if err != nil {
		logger.Error("failed to parse templates", "error", err)
		os.Exit(1)
	}

	// Create handlers
	h := handlers.New(db, sessionMgr, tmpl)
	authMiddleware := auth.NewMiddleware(db, sessionMgr)

	// Rate limit auth endpoints against credential stuffing
	authLimiter := middleware.NewIPRateLimiter(rate.Every(time.Second), 5)

	// Setup routes
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/", h.Index)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/partial/auth", h.PartialAuth)
	mux.Handle("/login", authLimiter.LimitFunc(h.Login))
	mux.Handle("/register", authLimiter.LimitFunc(h.Register))

	// Protected routes (session-based)
	mux.Handle("/logout", authMiddleware.RequireAuth(http.HandlerFunc(h.Logout)))
	mux.Handle("/partial/dashboard", authMiddleware.RequireAuth(http.HandlerFunc(h.PartialDashboard)))
	mux.Handle("/partial/usage-table", authMiddleware.RequireAuth(http.HandlerFunc(h.PartialUsageTable)))

	// API routes (API key-based)
	mux.Handle("/api/sync", authMiddleware.RequireAPIKey(http.HandlerFunc(h.APISync)))
	mux.Handle("/api/sync/status", authMiddleware.RequireAPIKey(http.HandlerFunc(h.APISyncStatus)))
	mux.Handle("/api/graph", authMiddleware.RequireAPIKey(http.HandlerFunc(h.APIGraph)))

	// Wrap with session and security header middleware
	handler := middleware.SecurityHeaders(sessionMgr.LoadAndSave(mux))

	// Start server
	addr := ":" + port
	logger.Info("starting usagegraph-server", "addr", addr, "db", dbPath)

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
