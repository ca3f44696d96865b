// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/ollama"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultListen is the address the relay binds by default.
	DefaultListen = "127.0.0.1:4000"

	// MaxRequestBodySize bounds JSON request bodies (1MB).
	MaxRequestBodySize = 1 << 20

	// MaxMessageLength bounds a single user message.
	MaxMessageLength = 100000

	// Version is the relay version.
	Version = "0.1.0"
)

const greeting = `Hello! I'm your healthcare assistant. I can help you with general health information and wellness advice.
Please note that I'm not a replacement for professional medical advice. How can I assist you today?`

// ============================================================================
// CONFIG
// ============================================================================

// Config configures a relay Server.
type Config struct {
	// Listen is the host:port to bind (default: 127.0.0.1:4000)
	Listen string

	// Tokens are the accepted bearer credentials. Empty disables auth.
	Tokens []string

	// Model is the Ollama model used for replies and insights.
	Model string

	// RequestsPerMinute limits each client. Zero disables limiting.
	RequestsPerMinute int

	// SessionTTL is how long a session lives (default: 24h)
	SessionTTL time.Duration

	// Logger receives request and event logs (default: log.Default())
	Logger *log.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server relays the assistant protocol to a local Ollama instance.
type Server struct {
	cfg      Config
	ollama   *ollama.Client
	sessions *SessionTable
	limiter  *RateLimiter
	logger   *log.Logger

	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server

	exchanges atomic.Int64
}

// New creates a relay backed by the given Ollama client.
func New(cfg Config, oc *ollama.Client) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if oc == nil {
		oc = ollama.NewClient()
	}
	if cfg.Model == "" {
		cfg.Model = oc.GetDefaultModel()
	}

	s := &Server{
		cfg:      cfg,
		ollama:   oc,
		sessions: NewSessionTable(cfg.SessionTTL),
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerMinute)
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter, s.logger))
	}
	s.handler = Chain(middlewares...)(s.mux)
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions returns the session table.
func (s *Server) Sessions() *SessionTable {
	return s.sessions
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	auth := AuthMiddleware(s.cfg.Tokens, s.logger)

	s.mux.Handle("GET /start_session", auth(http.HandlerFunc(s.handleStartSession)))
	s.mux.Handle("POST /chat/{sid}", auth(http.HandlerFunc(s.handleChat)))
	s.mux.Handle("POST /process_file/{sid}", auth(http.HandlerFunc(s.handleProcessFile)))
	s.mux.Handle("POST /tts", auth(http.HandlerFunc(s.handleTTS)))

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.logger.Printf("SESSION_STARTED | session=%s", sess.ID)
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("sid"))
	if sess == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid session ID.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req client.TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return
		}
		s.logger.Printf("Invalid request body: %v", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"bot_response":     greeting,
			"insights":         FallbackInsights(),
			"is_first_message": true,
		})
		return
	}
	if len(message) > MaxMessageLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Message exceeds maximum length of %d", MaxMessageLength))
		return
	}

	s.stream(w, r, sess, exchangeParams{
		prompt:   message,
		summary:  message,
		language: languageOr(req.Language, "English"),
	})
}

func (s *Server) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("sid"))
	if sess == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid session ID.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, client.MaxUploadBytes+MaxRequestBodySize)
	if err := r.ParseMultipartForm(MaxRequestBodySize); err != nil {
		s.writeError(w, http.StatusBadRequest, "No file provided.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file provided.")
		return
	}
	defer file.Close()

	if r.FormValue("user") == "" {
		s.writeError(w, http.StatusBadRequest, "User email is required.")
		return
	}
	name := filepath.Base(header.Filename)
	if name == "" || name == "." {
		s.writeError(w, http.StatusBadRequest, "No file selected.")
		return
	}
	if err := client.ValidateUpload(name); err != nil {
		s.writeError(w, http.StatusBadRequest, "File type not allowed.")
		return
	}

	language := languageOr(r.FormValue("language"), "English")
	summary := fmt.Sprintf("I've uploaded a document named %s. Can you analyze it for me?", name)
	if note := strings.TrimSpace(r.FormValue("user_message")); note != "" {
		summary += " " + note
	}

	if !isTextFile(name) {
		s.logger.Printf("FILE_NOT_ANALYSED | session=%s name=%s", sess.ID, name)
		s.streamStatic(w, fmt.Sprintf("I received %s, but this server can only analyse plain text documents.", name), false)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, client.MaxUploadBytes))
	if err != nil || len(strings.TrimSpace(string(data))) == 0 || !utf8.Valid(data) {
		s.writeError(w, http.StatusBadRequest, "Failed to extract text from file or file is empty")
		return
	}

	s.logger.Printf("FILE_RECEIVED | session=%s name=%s bytes=%d", sess.ID, name, len(data))
	s.stream(w, r, sess, exchangeParams{
		prompt:   documentPrompt(string(data)),
		summary:  summary,
		language: language,
		file:     true,
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusNotImplemented, "Text-to-speech is not available on this server.")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ollama.CheckRunning(ctx); err != nil {
		status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"version":   Version,
		"model":     s.cfg.Model,
		"sessions":  s.sessions.Len(),
		"exchanges": s.exchanges.Load(),
	})
}

// ============================================================================
// STREAMING
// ============================================================================

type exchangeParams struct {
	prompt   string // sent to the model
	summary  string // what the user asked, for insights
	language string
	file     bool
}

// streamLine is one NDJSON event line.
type streamLine struct {
	Chunk         string    `json:"chunk"`
	Done          bool      `json:"done"`
	Insights      []Insight `json:"insights,omitempty"`
	FileProcessed *bool     `json:"file_processed,omitempty"`
}

// stream relays a model reply as NDJSON chunk lines followed by a done
// line carrying insights.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, sess *Session, p exchangeParams) {
	ctx := r.Context()
	s.exchanges.Add(1)
	start := time.Now()

	messages := []ollama.Message{ollama.NewSystemMessage(chatInstruction)}
	messages = append(messages, sess.History()...)
	messages = append(messages, ollama.NewUserMessage(p.prompt))

	enc, flush := s.beginStream(w)

	var reply strings.Builder
	chunks := 0
	err := s.ollama.ChatStream(ctx, s.cfg.Model, messages, func(c ollama.StreamChunk) {
		if c.Content == "" {
			return
		}
		reply.WriteString(c.Content)
		chunks++
		if encErr := enc.Encode(streamLine{Chunk: c.Content}); encErr == nil {
			flush()
		}
	})
	if err != nil {
		s.logger.Printf("STREAM_ERROR | session=%s chunks=%d error=%v", sess.ID, chunks, err)
		enc.Encode(map[string]string{"error": "Streaming failed from model API."})
		flush()
		return
	}

	sess.Append(p.prompt, p.summary, reply.String())
	insights := s.generateInsights(ctx, sess.Recent(), p.language)

	done := streamLine{Done: true, Insights: insights}
	if p.file {
		processed := true
		done.FileProcessed = &processed
	}
	enc.Encode(done)
	flush()

	s.logger.Printf("EXCHANGE_RELAYED | session=%s chunks=%d insights=%d duration=%s",
		sess.ID, chunks, len(insights), time.Since(start).Round(time.Millisecond))
}

// streamStatic sends a fixed reply as a one-chunk stream.
func (s *Server) streamStatic(w http.ResponseWriter, text string, fileProcessed bool) {
	enc, flush := s.beginStream(w)
	enc.Encode(streamLine{Chunk: text})
	enc.Encode(streamLine{Done: true, Insights: FallbackInsights(), FileProcessed: &fileProcessed})
	flush()
}

func (s *Server) beginStream(w http.ResponseWriter) (*json.Encoder, func()) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	return json.NewEncoder(w), flush
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Printf("RELAY_LISTENING | addr=%s model=%s auth=%t", ln.Addr(), s.cfg.Model, len(s.cfg.Tokens) > 0)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func languageOr(lang, fallback string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return fallback
}

func isTextFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".txt")
}
