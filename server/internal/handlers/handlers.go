package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/tomhv/usagegraph/internal/aggregator"
	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/internal/pricing"
	"github.com/tomhv/usagegraph/internal/summary"
	"github.com/tomhv/usagegraph/server/internal/auth"
	"github.com/tomhv/usagegraph/server/internal/database"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db         *database.DB
	sessionMgr *scs.SessionManager
	templates  *template.Template
	catalog    *pricing.Catalog
	cache      *GraphCache
}

// New creates a new Handler
func New(db *database.DB, sessionMgr *scs.SessionManager, templates *template.Template) *Handler {
	return &Handler{
		db:         db,
		sessionMgr: sessionMgr,
		templates:  templates,
		catalog:    pricing.EmbeddedCatalog(),
		cache:      NewGraphCache(),
	}
}

// buildGraph computes the graph result for a user from stored messages,
// consulting the cache first. Nothing derived is written back to the database.
func (h *Handler) buildGraph(userID string) (model.GraphResult, error) {
	if result, ok := h.cache.Get(userID); ok {
		return result, nil
	}

	gen := h.cache.Begin(userID)
	start := time.Now()

	messages, err := h.db.LoadMessages(userID)
	if err != nil {
		return model.GraphResult{}, err
	}

	days := aggregator.ByDate(messages)
	result := summary.BuildGraphResult(days, time.Since(start).Milliseconds())

	h.cache.Store(userID, gen, result)
	return result, nil
}

// Index handles the main page
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	userID := h.sessionMgr.GetString(r.Context(), "userID")

	if userID == "" {
		// Not logged in - show auth page
		h.templates.ExecuteTemplate(w, "index.html", map[string]interface{}{
			"Content": "auth",
		})
		return
	}

	// Logged in - show dashboard
	user, err := h.db.GetUserByID(userID)
	if err != nil || user == nil {
		h.sessionMgr.Destroy(r.Context())
		h.templates.ExecuteTemplate(w, "index.html", map[string]interface{}{
			"Content": "auth",
		})
		return
	}

	graph, err := h.buildGraph(userID)
	if err != nil {
		slog.Error("failed to build usage graph", "user", userID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.templates.ExecuteTemplate(w, "index.html", map[string]interface{}{
		"Content": "dashboard",
		"User":    user,
		"Graph":   graph,
	})
}

// PartialAuth returns the auth form fragment
func (h *Handler) PartialAuth(w http.ResponseWriter, r *http.Request) {
	h.templates.ExecuteTemplate(w, "auth.html", nil)
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.renderError(w, "Username and password are required")
		return
	}

	user, err := h.db.GetUserByUsername(username)
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	if user == nil || !auth.CheckPassword(password, user.PasswordHash) {
		h.renderError(w, "Invalid username or password")
		return
	}

	// Create session
	h.sessionMgr.Put(r.Context(), "userID", user.ID)

	// Return dashboard fragment
	h.renderDashboard(w, user)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.renderError(w, "Username and password are required")
		return
	}

	if len(username) < 3 {
		h.renderError(w, "Username must be at least 3 characters")
		return
	}

	if len(password) < 8 {
		h.renderError(w, "Password must be at least 8 characters")
		return
	}

	// Check if username exists
	existing, _ := h.db.GetUserByUsername(username)
	if existing != nil {
		h.renderError(w, "Username already taken")
		return
	}

	// Create user
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	userID, err := auth.GenerateID()
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		h.renderError(w, "An error occurred")
		return
	}

	user := &database.User{
		ID:           userID,
		Username:     username,
		PasswordHash: passwordHash,
		APIKey:       apiKey,
		CreatedAt:    time.Now(),
	}

	if err := h.db.CreateUser(user); err != nil {
		h.renderError(w, "Failed to create account")
		return
	}

	// Create session
	h.sessionMgr.Put(r.Context(), "userID", user.ID)

	// Return dashboard fragment
	h.renderDashboard(w, user)
}

// Logout handles user logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessionMgr.Destroy(r.Context())
	h.templates.ExecuteTemplate(w, "auth.html", nil)
}

// PartialDashboard returns the dashboard fragment
func (h *Handler) PartialDashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.templates.ExecuteTemplate(w, "auth.html", nil)
		return
	}
	h.renderDashboard(w, user)
}

// PartialUsageTable returns the usage table fragment
func (h *Handler) PartialUsageTable(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	graph, err := h.buildGraph(user.ID)
	if err != nil {
		h.renderError(w, "Failed to load usage data")
		return
	}

	h.templates.ExecuteTemplate(w, "usage-table.html", map[string]interface{}{
		"Graph": graph,
	})
}

// SyncRequest represents the incoming sync data
type SyncRequest struct {
	ClientID   string                 `json:"client_id"`
	ClientName string                 `json:"client_name"`
	Messages   []model.UnifiedMessage `json:"messages"`
}

// SyncResponse represents the sync API response
type SyncResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Inserted int64  `json:"inserted,omitempty"`
}

// APISync handles the sync endpoint
func (h *Handler) APISync(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ClientID == "" {
		h.jsonError(w, "client_id is required", http.StatusBadRequest)
		return
	}

	if len(req.Messages) == 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SyncResponse{
			Success:  true,
			Message:  "No messages to sync",
			Inserted: 0,
		})
		return
	}

	// Get or create client
	clientName := req.ClientName
	if clientName == "" {
		clientName = req.ClientID
	}
	_, err := h.db.GetOrCreateClient(user.ID, req.ClientID, clientName)
	if err != nil {
		h.jsonError(w, "Failed to create client", http.StatusInternalServerError)
		return
	}

	// Drop messages the schema cannot hold
	messages := make([]model.UnifiedMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.ModelID == "" || m.Timestamp <= 0 || m.Date == "" || hasNegativeTokens(m.Tokens) {
			continue
		}
		messages = append(messages, m)
	}

	inserted, err := h.db.InsertMessages(user.ID, req.ClientID, messages, h.catalog)
	if err != nil {
		h.jsonError(w, "Failed to insert messages", http.StatusInternalServerError)
		return
	}

	// Update last sync time and drop any cached graph
	h.db.UpdateClientLastSync(req.ClientID, time.Now())
	if inserted > 0 {
		h.cache.Invalidate(user.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SyncResponse{
		Success:  true,
		Message:  "Sync completed",
		Inserted: inserted,
	})
}

func hasNegativeTokens(t model.TokenBreakdown) bool {
	return t.Input < 0 || t.Output < 0 || t.CacheRead < 0 || t.CacheWrite < 0 || t.Reasoning < 0
}

// SyncStatusResponse represents the sync status response
type SyncStatusResponse struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// APISyncStatus returns the sync status for a client
func (h *Handler) APISyncStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		h.jsonError(w, "client_id is required", http.StatusBadRequest)
		return
	}

	lastSync, err := h.db.GetClientSyncStatus(user.ID, clientID)
	if err != nil {
		h.jsonError(w, "Failed to get sync status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SyncStatusResponse{
		LastSyncAt: lastSync,
	})
}

// APIGraph returns the full graph result for the authenticated user.
// With ?interval=<duration> it returns interval buckets of that width instead.
func (h *Handler) APIGraph(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		h.jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if interval := r.URL.Query().Get("interval"); interval != "" {
		width, err := time.ParseDuration(interval)
		if err != nil || width <= 0 {
			h.jsonError(w, "Invalid interval (use a duration like 5m or 1h)", http.StatusBadRequest)
			return
		}

		messages, err := h.db.LoadMessages(user.ID)
		if err != nil {
			h.jsonError(w, "Failed to load messages", http.StatusInternalServerError)
			return
		}

		buckets := aggregator.ByInterval(messages, width.Milliseconds())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(buckets)
		return
	}

	graph, err := h.buildGraph(user.ID)
	if err != nil {
		h.jsonError(w, "Failed to compute graph", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(graph)
}

func (h *Handler) renderDashboard(w http.ResponseWriter, user *database.User) {
	graph, err := h.buildGraph(user.ID)
	if err != nil {
		slog.Error("failed to build usage graph", "user", user.ID, "error", err)
		h.renderError(w, "Failed to load usage data")
		return
	}

	// Retarget to #content for successful auth (forms target error div by default)
	w.Header().Set("HX-Retarget", "#content")
	w.Header().Set("HX-Reswap", "innerHTML")

	h.templates.ExecuteTemplate(w, "dashboard.html", map[string]interface{}{
		"User":  user,
		"Graph": graph,
	})
}

func (h *Handler) renderError(w http.ResponseWriter, message string) {
	h.templates.ExecuteTemplate(w, "error.html", map[string]interface{}{
		"Error": message,
	})
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	// Check database connectivity
	if err := h.db.Ping(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
