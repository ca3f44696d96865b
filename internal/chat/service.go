// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/config"
	"github.com/Anthonyvijay10/GrealthAI/internal/exchange"
	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/playback"
	"github.com/Anthonyvijay10/GrealthAI/internal/session"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
	"github.com/Anthonyvijay10/GrealthAI/internal/store"
)

// ErrClosed is returned by operations on a closed service.
var ErrClosed = errors.New("chat: service closed")

// API is the assistant service used by a Service. *client.Client
// implements it.
type API interface {
	session.Starter
	exchange.Streamer
	Synthesize(ctx context.Context, credential, text, language string) ([]byte, error)
}

// Options configures a Service.
type Options struct {
	// API overrides the client built from the config
	API API

	// Transcripts persists conversations (optional)
	Transcripts storage.Store

	// Player outputs synthesized audio (optional; playback is disabled
	// without one)
	Player playback.Player

	// Logger receives events from every component (default: log.Default())
	Logger *log.Logger

	// OnState observes exchange state transitions (optional)
	OnState func(kind exchange.Kind, state exchange.State)
}

// Request is one user submission.
type Request struct {
	Message string
	File    *exchange.FileInput
}

func (r Request) kind() exchange.Kind {
	if r.File != nil {
		return exchange.KindFile
	}
	return exchange.KindText
}

// =============================================================================
// SERVICE
// =============================================================================

// Service wires the session, the record store, exchanges, playback and
// persistence into one conversation.
type Service struct {
	api         API
	sessions    *session.Manager
	records     *store.Store
	player      *playback.Coordinator
	transcripts storage.Store
	logger      *log.Logger
	onState     func(exchange.Kind, exchange.State)

	mu         sync.Mutex
	cfg        *config.Config // replaced, never mutated
	transcript *model.Transcript
	closed     bool

	// Exchanges started by Submit run under ctx
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a service from cfg. Credentials in cfg.Auth are installed
// on the session manager.
func New(cfg *config.Config, opts Options) *Service {
	cfg = cfg.Clone()
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	api := opts.API
	if api == nil {
		api = NewClient(cfg, opts.Logger)
	}

	sessions := session.NewManager(api, session.Config{
		MaxAge:      cfg.Auth.SessionMaxAge(),
		IdleTimeout: cfg.Auth.SessionIdle(),
		Logger:      opts.Logger,
	})
	if cfg.Auth.Token != "" {
		sessions.SetCredentials(cfg.Auth.UserIdentity, cfg.Auth.Token)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		api:         api,
		sessions:    sessions,
		records:     store.New(),
		transcripts: opts.Transcripts,
		logger:      opts.Logger,
		onState:     opts.OnState,
		cfg:         cfg,
		transcript:  model.NewTranscript(cfg.Exchange.TargetLanguage),
		ctx:         ctx,
		cancel:      cancel,
	}

	if opts.Player != nil {
		s.player = playback.NewCoordinator(s.records, s.synthesizer(), opts.Player, playback.Config{
			CacheEntries: cfg.Playback.CacheEntries,
			Logger:       opts.Logger,
		})
	}
	return s
}

// NewClient builds the service client described by cfg.
func NewClient(cfg *config.Config, logger *log.Logger) *client.Client {
	rps := cfg.Server.RequestsPerSecond
	if rps == 0 {
		rps = -1
	}
	return client.NewClientWithConfig(&client.ClientConfig{
		BaseURL:           cfg.Server.BaseURL,
		Timeout:           cfg.Server.RequestTimeout(),
		ConnectTimeout:    cfg.Server.ConnectTimeout(),
		RequestsPerSecond: rps,
		Logger:            logger,
	})
}

// Records returns the record store backing the conversation.
func (s *Service) Records() *store.Store {
	return s.records
}

// Sessions returns the session manager.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Playback returns the playback coordinator, or nil without a player.
func (s *Service) Playback() *playback.Coordinator {
	return s.player
}

// Config returns a copy of the active configuration.
func (s *Service) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// SetConfig applies a reloaded configuration to future exchanges. The
// service address and stored credentials are not re-read.
func (s *Service) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
	s.logger.Printf("CONFIG_APPLIED | language=%s inactivity=%s", cfg.Exchange.TargetLanguage, cfg.Exchange.InactivityTimeout())
}

// Language returns the reply language.
func (s *Service) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Exchange.TargetLanguage
}

// SetLanguage changes the reply language. name may be a language name or
// a BCP 47 tag.
func (s *Service) SetLanguage(name string) (string, error) {
	lang, err := config.NormalizeLanguage(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	cfg := s.cfg.Clone()
	cfg.Exchange.TargetLanguage = lang
	s.cfg = cfg
	s.mu.Unlock()
	return lang, nil
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Login installs the credentials issued by the identity provider.
func (s *Service) Login(identity, credential string) {
	s.sessions.SetCredentials(identity, credential)
}

// Logout drops the session and credentials.
func (s *Service) Logout() {
	s.sessions.Logout()
}

// =============================================================================
// EXCHANGES
// =============================================================================

// Send runs one exchange and blocks until it ends. Every outcome,
// including not being logged in, is reflected in the record store.
func (s *Service) Send(ctx context.Context, req Request) exchange.Outcome {
	if s.isClosed() {
		return exchange.Outcome{State: exchange.StateFailed, Err: ErrClosed}
	}

	kind := req.kind()
	sess, err := s.sessions.Acquire(ctx)
	if err != nil && !errors.Is(err, session.ErrNoCredentials) {
		// The service could not be reached or refused the credential
		if client.IsUnauthorized(err) {
			s.sessions.Invalidate("unauthorized")
		}
		return s.failBeforeExchange(kind, err)
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	params := exchange.Params{
		Kind:         kind,
		SessionID:    sess.ID,
		Credential:   sess.Credential,
		Identity:     sess.Identity,
		Language:     cfg.Exchange.TargetLanguage,
		Message:      req.Message,
		File:         req.File,
		LanguageHint: cfg.Exchange.LanguageHint,
	}
	opts := exchange.Options{
		InactivityTimeout: cfg.Exchange.InactivityTimeout(),
		MaxLineBytes:      cfg.Exchange.MaxLineBytes,
		Logger:            s.logger,
	}
	if s.onState != nil {
		opts.OnState = func(st exchange.State) { s.onState(kind, st) }
	}

	out := exchange.New(s.records, s.api, params, opts).Run(ctx)
	switch {
	case out.State == exchange.StateComplete:
		s.sessions.RecordActivity()
	case client.IsUnauthorized(out.Err):
		s.sessions.Invalidate("unauthorized")
	}
	return out
}

// Submit starts an exchange in the background. The returned channel
// receives the outcome once. Exchanges are independent: a text exchange
// and a file exchange may be in flight at the same time.
func (s *Service) Submit(req Request) <-chan exchange.Outcome {
	result := make(chan exchange.Outcome, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		result <- exchange.Outcome{State: exchange.StateFailed, Err: ErrClosed}
		return result
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		result <- s.Send(s.ctx, req)
	}()
	return result
}

// failBeforeExchange reports a failure that happened before an exchange
// could start.
func (s *Service) failBeforeExchange(kind exchange.Kind, cause error) exchange.Outcome {
	out := exchange.Outcome{State: exchange.StateFailed, Err: cause}
	rec := model.NewErrorRecord(exchange.FailureText(kind, cause))
	if err := s.records.Insert(rec); err == nil {
		out.ErrorRecordID = rec.ID
	}
	s.logger.Printf("EXCHANGE_REJECTED | kind=%s reason=%q", kind, cause.Error())
	return out
}

// =============================================================================
// PLAYBACK
// =============================================================================

// TogglePlayback plays or pauses the spoken version of a finalized record.
func (s *Service) TogglePlayback(ctx context.Context, id string) (bool, error) {
	if s.player == nil {
		return false, errors.New("chat: playback is not configured")
	}
	return s.player.Toggle(ctx, id, s.Language())
}

// synthesizer adapts the client to playback using the current credential.
func (s *Service) synthesizer() playback.Synthesizer {
	return playback.SynthesizerFunc(func(ctx context.Context, text, language string) ([]byte, error) {
		credential := s.sessions.Credential()
		if credential == "" {
			return nil, session.ErrNoCredentials
		}
		audio, err := s.api.Synthesize(ctx, credential, text, language)
		if client.IsUnauthorized(err) {
			s.sessions.Invalidate("unauthorized")
		}
		return audio, err
	})
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

// Transcript returns a snapshot of the finalized records.
func (s *Service) Transcript() *model.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *s.transcript
	t.Language = s.cfg.Exchange.TargetLanguage
	t.SetRecords(s.records.Records())
	return &t
}

// Save persists the conversation. Empty conversations are not saved.
func (s *Service) Save() (*model.Transcript, error) {
	if s.transcripts == nil {
		return nil, errors.New("chat: no transcript store configured")
	}
	t := s.Transcript()
	if t.IsEmpty() {
		return t, nil
	}
	if err := s.transcripts.Save(t); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}

	s.mu.Lock()
	s.transcript.ID = t.ID
	s.transcript.Title = t.Title
	s.transcript.CreatedAt = t.CreatedAt
	s.mu.Unlock()

	s.logger.Printf("TRANSCRIPT_SAVED | id=%s records=%d", t.ID, len(t.Records))
	return t, nil
}

// Resume replaces the conversation with a saved transcript. Saving
// afterwards updates that transcript.
func (s *Service) Resume(id string) (*model.Transcript, error) {
	if s.transcripts == nil {
		return nil, errors.New("chat: no transcript store configured")
	}
	t, err := s.transcripts.Load(id)
	if err != nil {
		return nil, err
	}

	s.records.Reset()
	for _, r := range t.Records {
		err := s.records.Insert(r)
		if errors.Is(err, store.ErrDuplicateID) {
			// Resumed before in this process; ids are never reused
			r.ID = model.NewID()
			err = s.records.Insert(r)
		}
		if err != nil {
			return nil, fmt.Errorf("restore record %s: %w", r.ID, err)
		}
	}

	s.mu.Lock()
	s.transcript = &model.Transcript{
		ID:        t.ID,
		Title:     t.Title,
		Language:  t.Language,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	s.mu.Unlock()
	return t, nil
}

// =============================================================================
// TEARDOWN
// =============================================================================

// Close saves the finalized conversation when auto-save is on, then
// cancels in-flight exchanges, waits for them and closes the record store.
// Exchanges still running at Close are not persisted.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	autoSave := s.cfg.Storage.AutoSave
	s.mu.Unlock()

	var err error
	if autoSave && s.transcripts != nil {
		_, err = s.Save()
	}

	s.cancel()
	s.wg.Wait()
	if s.player != nil {
		s.player.Stop()
	}
	s.records.Close()
	return err
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
