// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/store"
	"github.com/Anthonyvijay10/GrealthAI/internal/stream"
)

// Sentinel errors reported in Outcome.Err.
var (
	ErrNotReady       = errors.New("exchange: no authenticated session")
	ErrAlreadyStarted = errors.New("exchange: orchestrator already ran")
	ErrStalled        = errors.New("exchange: no data from service within inactivity timeout")
	ErrEmptyMessage   = errors.New("exchange: nothing to send")
)

// ServiceError is an error event reported by the service mid-stream.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// =============================================================================
// STATE
// =============================================================================

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateOpening    State = "opening"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateComplete   State = "complete"
	StateFailing    State = "failing"
	StateFailed     State = "failed"
)

// IsTerminal reports whether the state is complete or failed.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// Kind selects the exchange endpoint.
type Kind int

const (
	KindText Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "text"
}

// =============================================================================
// PARAMETERS
// =============================================================================

// Streamer opens exchange streams.
type Streamer interface {
	OpenTextStream(ctx context.Context, sessionID, credential string, r client.TextRequest) (io.ReadCloser, error)
	OpenFileStream(ctx context.Context, sessionID, credential string, r client.FileRequest) (io.ReadCloser, error)
}

// FileInput is the file sent by a file exchange.
type FileInput struct {
	Name        string
	Content     io.Reader
	Size        int64
	ContentType string

	// Path is a local handle kept on the user record for previews.
	Path string
}

// Params carries everything an exchange needs. Nothing is read from
// ambient state.
type Params struct {
	Kind Kind

	// SessionID and Credential come from the session manager. Either one
	// empty means the client is not ready and no request is sent.
	SessionID  string
	Credential string
	Identity   string

	Language string
	Message  string
	File     *FileInput

	// LanguageHint appends an instruction to answer in Language to the
	// outgoing message. The user record shows the message as typed.
	LanguageHint bool
}

// Options tunes an orchestrator.
type Options struct {
	// InactivityTimeout fails the exchange when no bytes arrive for this
	// long (0 disables)
	InactivityTimeout time.Duration

	// MaxLineBytes bounds a single stream line (default: stream.DefaultMaxLineSize)
	MaxLineBytes int

	// Logger receives exchange events (default: log.Default())
	Logger *log.Logger

	// OnState is called on every state transition, from the Run goroutine.
	OnState func(State)
}

// Outcome reports how an exchange ended.
type Outcome struct {
	State State

	UserRecordID     string
	ReplyRecordID    string
	ErrorRecordID    string
	AdvisoryRecordID string

	// Reply is set when State is StateComplete.
	Reply stream.Reply

	// FileProcessed is the service's confirmation for file exchanges.
	FileProcessed bool

	// Malformed counts stream lines that were dropped.
	Malformed int64

	// Err is the cause of failure, nil on success.
	Err error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs a single exchange against a store.
type Orchestrator struct {
	records *store.Store
	api     Streamer
	params  Params
	opts    Options
	logger  *log.Logger

	started atomic.Bool

	mu    sync.Mutex
	state State

	// Record ids owned by this exchange
	userID        string
	placeholderID string
}

// New creates an orchestrator. Nothing happens until Run.
func New(records *store.Store, api Streamer, p Params, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Orchestrator{
		records: records,
		api:     api,
		params:  p,
		opts:    opts,
		logger:  opts.Logger,
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	if o.opts.OnState != nil {
		o.opts.OnState(s)
	}
}

// Run executes the exchange and blocks until it is complete or failed.
// Cancelling ctx aborts the stream and fails the exchange.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	if !o.started.CompareAndSwap(false, true) {
		return Outcome{State: o.State(), Err: ErrAlreadyStarted}
	}

	p := o.params
	if err := o.validate(); err != nil {
		return o.reject(err)
	}
	if p.SessionID == "" || p.Credential == "" {
		return o.reject(ErrNotReady)
	}

	// --- opening ---
	o.setState(StateOpening)
	o.logger.Printf("EXCHANGE_START | kind=%s language=%s", p.Kind, p.Language)

	user := model.NewUserRecord(o.userBody(), o.attachment())
	placeholder := model.NewPlaceholder()
	if err := o.records.Insert(user); err != nil {
		return o.abandon(err)
	}
	o.userID = user.ID
	if err := o.records.Insert(placeholder); err != nil {
		return o.abandon(err)
	}
	o.placeholderID = placeholder.ID

	out := Outcome{UserRecordID: user.ID}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := newWatchdog(o.opts.InactivityTimeout, func() { cancel(ErrStalled) })
	defer watchdog.Stop()

	body, err := o.open(runCtx)
	if err != nil {
		return o.fail(runCtx, out, err)
	}
	defer body.Close()

	// --- streaming ---
	o.setState(StateStreaming)
	watchdog.Reset()
	events := stream.NewEventReaderSize(watchdog.Wrap(body), o.opts.MaxLineBytes, o.logger)
	acc := stream.NewAccumulator()

	for {
		ev, err := events.Next()
		out.Malformed = events.Malformed()
		if errors.Is(err, stream.ErrIncomplete) && acc.Body() != "" {
			// Clean close after content: keep what arrived, without annotations
			o.logger.Printf("EXCHANGE_UNTERMINATED | kind=%s bytes=%d", p.Kind, len(acc.Body()))
			return o.finalize(out, placeholder, acc, stream.DoneEvent{})
		}
		if err != nil {
			return o.fail(runCtx, out, err)
		}

		switch e := ev.(type) {
		case stream.ChunkEvent:
			o.records.UpdateBody(placeholder.ID, acc.Append(e.Text))

		case stream.DoneEvent:
			if e.Text != "" {
				o.records.UpdateBody(placeholder.ID, acc.Append(e.Text))
			}
			return o.finalize(out, placeholder, acc, e)

		case stream.ErrorEvent:
			return o.fail(runCtx, out, &ServiceError{Message: e.Message})
		}
	}
}

// open sends the request for the configured kind.
func (o *Orchestrator) open(ctx context.Context) (io.ReadCloser, error) {
	p := o.params
	message := p.Message
	if p.LanguageHint && message != "" && p.Language != "" {
		message = fmt.Sprintf("%s explain only in %s language", message, strings.ToLower(p.Language))
	}

	if p.Kind == KindFile {
		return o.api.OpenFileStream(ctx, p.SessionID, p.Credential, client.FileRequest{
			Name:     p.File.Name,
			Content:  p.File.Content,
			Language: p.Language,
			User:     p.Identity,
			Message:  message,
		})
	}
	return o.api.OpenTextStream(ctx, p.SessionID, p.Credential, client.TextRequest{
		Message:  message,
		Language: p.Language,
		Email:    p.Identity,
	})
}

// finalize swaps the placeholder for the terminal record.
func (o *Orchestrator) finalize(out Outcome, placeholder model.Record, acc *stream.Accumulator, done stream.DoneEvent) Outcome {
	o.setState(StateFinalizing)

	reply := acc.Finalize(done.Insights)
	final := placeholder.Finalize(reply.Body, reply.Annotations)
	o.records.Replace(placeholder.ID, final)
	o.records.UpdateStatus(o.userID, model.StatusComplete)

	out.State = StateComplete
	out.ReplyRecordID = final.ID
	out.Reply = reply

	if o.params.Kind == KindFile {
		out.FileProcessed = done.FileFullyProcessed()
		if !out.FileProcessed {
			advisory := model.NewSystemRecord(AdvisoryText)
			if err := o.records.Insert(advisory); err == nil {
				out.AdvisoryRecordID = advisory.ID
			}
		}
	}

	o.setState(StateComplete)
	o.logger.Printf("EXCHANGE_COMPLETE | kind=%s chunks=%d ttfc=%s duration=%s annotations=%d malformed=%d",
		o.params.Kind, reply.Stats.Chunks, reply.Stats.TTFC.Round(time.Millisecond),
		reply.Stats.Duration.Round(time.Millisecond), len(reply.Annotations), out.Malformed)
	return out
}

// fail removes the placeholder and reports the cause as a system record.
// Partial reply text is discarded.
func (o *Orchestrator) fail(ctx context.Context, out Outcome, cause error) Outcome {
	o.setState(StateFailing)

	// A cancelled context explains the read error better than the read error
	if ctxCause := context.Cause(ctx); ctxCause != nil && !errors.Is(cause, ctxCause) {
		cause = fmt.Errorf("%w: %w", ctxCause, cause)
	}

	o.records.Remove(o.placeholderID)
	errRec := model.NewErrorRecord(o.errorText(cause))
	if err := o.records.Insert(errRec); err == nil {
		out.ErrorRecordID = errRec.ID
	}
	o.records.UpdateStatus(o.userID, model.StatusFailed)

	out.State = StateFailed
	out.Err = cause
	o.setState(StateFailed)
	o.logger.Printf("EXCHANGE_FAILED | kind=%s reason=%q malformed=%d", o.params.Kind, cause.Error(), out.Malformed)
	return out
}

// reject fails before anything is sent: one system record, no user
// record, no network call.
func (o *Orchestrator) reject(cause error) Outcome {
	out := Outcome{State: StateFailed, Err: cause}
	errRec := model.NewErrorRecord(o.errorText(cause))
	if err := o.records.Insert(errRec); err == nil {
		out.ErrorRecordID = errRec.ID
	}
	o.setState(StateFailed)
	o.logger.Printf("EXCHANGE_REJECTED | kind=%s reason=%q", o.params.Kind, cause.Error())
	return out
}

// abandon ends an exchange whose store has been torn down.
func (o *Orchestrator) abandon(cause error) Outcome {
	o.records.Remove(o.userID)
	o.setState(StateFailed)
	return Outcome{State: StateFailed, UserRecordID: o.userID, Err: cause}
}

// validate checks the parameters for the configured kind.
func (o *Orchestrator) validate() error {
	p := o.params
	if p.Kind == KindFile {
		if p.File == nil || p.File.Content == nil {
			return ErrEmptyMessage
		}
		return client.ValidateUpload(p.File.Name)
	}
	if strings.TrimSpace(p.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// userBody is the text of the user record.
func (o *Orchestrator) userBody() string {
	p := o.params
	if p.Kind != KindFile {
		return p.Message
	}
	if p.Message != "" {
		return p.Message + "\nwith file: " + p.File.Name
	}
	return "Uploaded " + p.File.Name
}

func (o *Orchestrator) attachment() *model.Attachment {
	f := o.params.File
	if o.params.Kind != KindFile || f == nil {
		return nil
	}
	return &model.Attachment{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		URL:         f.Path,
	}
}
