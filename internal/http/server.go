package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"scadenze/internal/amqp"
	"scadenze/internal/core"
	"scadenze/internal/notify"
)

// SyncPublisher enqueues sync requests for the worker.
type SyncPublisher interface {
	PublishSyncRequest(ctx context.Context, msg *amqp.SyncRequestMessage) error
}

// SettingsStore loads and saves the notification settings.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (core.Settings, error)
	SaveSettings(ctx context.Context, settings core.Settings) error
}

// ScheduleReader reads the currently scheduled notification set.
type ScheduleReader interface {
	ListScheduled(ctx context.Context, moduleID string) ([]notify.Record, error)
}

type Server struct {
	http.Server
	publisher   SyncPublisher
	settings    SettingsStore
	schedules   ScheduleReader
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// stop gracefully shuts down the rate limiter cleanup goroutine
func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, publisher SyncPublisher, settings SettingsStore, schedules ScheduleReader) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		publisher:   publisher,
		settings:    settings,
		schedules:   schedules,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/sync", s.withSecurityHeaders(s.handleSync))
	mux.HandleFunc("/sync/entity", s.withSecurityHeaders(s.handleSyncEntity))
	mux.HandleFunc("/notifications/clear", s.withSecurityHeaders(s.handleClearNotifications))
	mux.HandleFunc("/notifications", s.withSecurityHeaders(s.handleListNotifications))
	mux.HandleFunc("/settings", s.withSecurityHeaders(s.handleSettings))
	mux.HandleFunc("/status", s.withSecurityHeaders(s.handleStatus))

	return s
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		// Generate request ID for tracing
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Apply rate limiting to mutating requests
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Create a custom response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		// Log request completion
		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSync enqueues a full reconciliation pass.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.publisher.PublishSyncRequest(r.Context(), amqp.NewFullSyncMessage()); err != nil {
		slog.ErrorContext(r.Context(), "Failed to publish sync request", "error", err)
		writeError(w, http.StatusServiceUnavailable, "sync request could not be enqueued")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

// handleSyncEntity enqueues a sync pass scoped to one obligation.
func (s *Server) handleSyncEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		EntityID int64  `json:"entity_id"`
		Section  string `json:"section"`
		Cancel   bool   `json:"cancel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EntityID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "entity_id must be positive")
		return
	}
	section := core.Section(strings.TrimSpace(req.Section))
	if err := section.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown section "+strconv.Quote(req.Section))
		return
	}

	msg := amqp.NewEntitySyncMessage(req.EntityID, section)
	if req.Cancel {
		msg = amqp.NewCancelEntityMessage(req.EntityID, section)
	}
	if err := s.publisher.PublishSyncRequest(r.Context(), msg); err != nil {
		slog.ErrorContext(r.Context(), "Failed to publish entity sync request",
			"error", err, "entity_id", req.EntityID, "section", section)
		writeError(w, http.StatusServiceUnavailable, "sync request could not be enqueued")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "sync requested",
		"entity_id": req.EntityID,
		"section":   section,
	})
}

// handleClearNotifications enqueues a request to drop the whole schedule.
func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.publisher.PublishSyncRequest(r.Context(), amqp.NewClearAllMessage()); err != nil {
		slog.ErrorContext(r.Context(), "Failed to publish clear request", "error", err)
		writeError(w, http.StatusServiceUnavailable, "clear request could not be enqueued")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "clear requested"})
}

// handleListNotifications returns the currently scheduled set.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recs, err := s.schedules.ListScheduled(r.Context(), notify.ModuleID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list scheduled notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list scheduled notifications")
		return
	}

	type item struct {
		Key            string `json:"key"`
		EntityID       int64  `json:"entity_id"`
		Section        string `json:"section"`
		OccurrenceDate string `json:"occurrence_date"`
		FireAt         string `json:"fire_at"`
		Channel        string `json:"channel"`
		Title          string `json:"title"`
	}
	items := make([]item, 0, len(recs))
	for _, rec := range recs {
		items = append(items, item{
			Key:            rec.Key,
			EntityID:       rec.EntityID,
			Section:        string(rec.Section),
			OccurrenceDate: rec.OccurrenceDate.String(),
			FireAt:         rec.FireAt.Format(time.RFC3339),
			Channel:        string(rec.Channel),
			Title:          rec.Title,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items, "count": len(items)})
}

// handleSettings reads or replaces the notification settings. A settings
// change enqueues a full sync so the schedule converges on the new
// configuration.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.LoadSettings(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to load settings", "error", err)
			writeError(w, http.StatusInternalServerError, "could not load settings")
			return
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var settings core.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := settings.Validate(); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := s.settings.SaveSettings(r.Context(), settings); err != nil {
			slog.ErrorContext(r.Context(), "Failed to save settings", "error", err)
			writeError(w, http.StatusInternalServerError, "could not save settings")
			return
		}
		if err := s.publisher.PublishSyncRequest(r.Context(), amqp.NewFullSyncMessage()); err != nil {
			slog.WarnContext(r.Context(), "Settings saved but sync request failed", "error", err)
		}
		writeJSON(w, http.StatusOK, settings)

	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleStatus reports how many notifications are scheduled per section.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	recs, err := s.schedules.ListScheduled(r.Context(), notify.ModuleID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list scheduled notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "could not read schedule status")
		return
	}

	bySection := make(map[string]int)
	for _, rec := range recs {
		bySection[string(rec.Section)]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduled":  len(recs),
		"by_section": bySection,
	})
}
