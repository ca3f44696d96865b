// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/store"
	"github.com/Anthonyvijay10/GrealthAI/internal/stream"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// fakeStreamer serves a scripted body or a live pipe.
type fakeStreamer struct {
	mu       sync.Mutex
	payload  string
	openErr  error
	pipe     *io.PipeReader
	calls    int
	lastText client.TextRequest
	lastFile client.FileRequest
}

func (f *fakeStreamer) body(ctx context.Context) (io.ReadCloser, error) {
	f.calls++
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.pipe != nil {
		pr := f.pipe
		// Mirror net/http: a cancelled request unblocks body reads
		go func() {
			<-ctx.Done()
			pr.CloseWithError(context.Cause(ctx))
		}()
		return pr, nil
	}
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

func (f *fakeStreamer) OpenTextStream(ctx context.Context, sessionID, credential string, r client.TextRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastText = r
	return f.body(ctx)
}

func (f *fakeStreamer) OpenFileStream(ctx context.Context, sessionID, credential string, r client.FileRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFile = r
	return f.body(ctx)
}

func (f *fakeStreamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quiet() Options {
	return Options{Logger: log.New(io.Discard, "", 0)}
}

func textParams(msg string) Params {
	return Params{
		Kind:       KindText,
		SessionID:  "sess-1",
		Credential: "jwt",
		Identity:   "user@example.com",
		Language:   "English",
		Message:    msg,
	}
}

func fileParams(name, content, msg string) Params {
	p := textParams(msg)
	p.Kind = KindFile
	p.File = &FileInput{Name: name, Content: strings.NewReader(content), Size: int64(len(content))}
	return p
}

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func roles(recs []model.Record) []model.Role {
	out := make([]model.Role, len(recs))
	for i, r := range recs {
		out[i] = r.Role
	}
	return out
}

func assertNoStreaming(t *testing.T, recs []model.Record) {
	t.Helper()
	for _, r := range recs {
		assert.NotEqual(t, model.StatusStreaming, r.Status, "record %s still streaming", r.ID)
		assert.NotEqual(t, model.StatusPending, r.Status, "record %s still pending", r.ID)
	}
}

// =============================================================================
// SUCCESS PATH
// =============================================================================

func TestRun_TextExchangeEndToEnd(t *testing.T) {
	s := store.New()
	var bodies []string
	var placeholderID string
	s.Subscribe(func(c store.Change) {
		if c.Op == store.OpInsert && c.Record.Status == model.StatusStreaming {
			placeholderID = c.ID
		}
		if c.Op == store.OpUpdate && c.ID == placeholderID {
			bodies = append(bodies, c.Record.Body)
		}
	})

	api := &fakeStreamer{payload: lines(
		`{"chunk":"Fever ","done":false}`,
		`{"chunk":"is a rise ","done":false}`,
		`{"chunk":"in body temperature.","done":false}`,
		`{"chunk":"","done":true,"insights":[{"type":"symptom_analysis","content":"Common symptom of infection","severity":"low"}],"is_first_message":true}`,
	)}

	var states []State
	opts := quiet()
	opts.OnState = func(s State) { states = append(states, s) }

	out := New(s, api, textParams("What is fever?"), opts).Run(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, StateComplete, out.State)
	assert.Equal(t, []State{StateOpening, StateStreaming, StateFinalizing, StateComplete}, states)
	assert.Equal(t, []string{"Fever ", "Fever is a rise ", "Fever is a rise in body temperature."}, bodies)

	recs := s.Records()
	require.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant}, roles(recs))
	assert.Equal(t, "What is fever?", recs[0].Body)
	assert.Equal(t, model.StatusComplete, recs[0].Status)

	reply := recs[1]
	assert.Equal(t, "Fever is a rise in body temperature.", reply.Body)
	assert.Equal(t, model.StatusComplete, reply.Status)
	assert.Equal(t, out.ReplyRecordID, reply.ID)
	assert.NotEqual(t, placeholderID, reply.ID, "terminal record gets a new id")
	assert.Equal(t, []model.Annotation{{Kind: "symptom_analysis", Text: "Common symptom of infection", Severity: model.SeverityLow}}, reply.Annotations)
	assertNoStreaming(t, recs)

	assert.Equal(t, client.TextRequest{Message: "What is fever?", Language: "English", Email: "user@example.com"}, api.lastText)
}

func TestRun_LanguageHint(t *testing.T) {
	s := store.New()
	api := &fakeStreamer{payload: lines(`{"chunk":"Bukhar","done":false}`, `{"done":true}`)}
	p := textParams("What is fever?")
	p.Language = "Hindi"
	p.LanguageHint = true

	out := New(s, api, p, quiet()).Run(context.Background())

	require.Equal(t, StateComplete, out.State)
	assert.Equal(t, "What is fever? explain only in hindi language", api.lastText.Message)
	rec, ok := s.Get(out.UserRecordID)
	require.True(t, ok)
	assert.Equal(t, "What is fever?", rec.Body)
}

func TestRun_CleanCloseWithoutDoneKeepsReply(t *testing.T) {
	tests := []struct {
		name         string
		kind         Kind
		wantRoles    []model.Role
		wantAdvisory bool
	}{
		{"text", KindText, []model.Role{model.RoleUser, model.RoleAssistant}, false},
		{"file is unconfirmed", KindFile, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleSystem}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New()
			api := &fakeStreamer{payload: lines(`{"chunk":"Fever "}`, `{"chunk":"is..."}`)}
			p := textParams("What is fever?")
			if tt.kind == KindFile {
				p = fileParams("labs.txt", "Hb 13", "")
			}

			out := New(s, api, p, quiet()).Run(context.Background())

			require.NoError(t, out.Err)
			assert.Equal(t, StateComplete, out.State)
			assert.Equal(t, "Fever is...", out.Reply.Body)
			assert.Nil(t, out.Reply.Annotations)

			recs := s.Records()
			require.Equal(t, tt.wantRoles, roles(recs))
			assert.Equal(t, model.StatusComplete, recs[0].Status)
			assert.Equal(t, "Fever is...", recs[1].Body)
			assert.Equal(t, out.ReplyRecordID, recs[1].ID)
			if tt.wantAdvisory {
				assert.Equal(t, AdvisoryText, recs[2].Body)
				assert.False(t, out.FileProcessed)
			}
			assertNoStreaming(t, recs)
		})
	}
}

func TestRun_MalformedLinesDoNotFailExchange(t *testing.T) {
	s := store.New()
	api := &fakeStreamer{payload: lines(`{"chunk":"A"}`, `{broken`, `not json`, `{"chunk":"B"}`, `{"done":true}`)}

	out := New(s, api, textParams("hi"), quiet()).Run(context.Background())

	require.Equal(t, StateComplete, out.State)
	assert.Equal(t, int64(2), out.Malformed)
	assert.Equal(t, "AB", out.Reply.Body)
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestRun_ErrorEventTruncates(t *testing.T) {
	s := store.New()
	api := &fakeStreamer{payload: lines(
		`{"chunk":"A","done":false}`,
		`{"error":"E"}`,
		`{"chunk":"never read","done":false}`,
	)}

	out := New(s, api, textParams("What is fever?"), quiet()).Run(context.Background())

	assert.Equal(t, StateFailed, out.State)
	var svcErr *ServiceError
	require.ErrorAs(t, out.Err, &svcErr)
	assert.Equal(t, "E", svcErr.Message)

	recs := s.Records()
	require.Equal(t, []model.Role{model.RoleUser, model.RoleSystem}, roles(recs))
	assert.Equal(t, model.StatusFailed, recs[0].Status)
	assert.Equal(t, "Error: E", recs[1].Body)
	assert.Equal(t, model.StatusFailed, recs[1].Status)
	for _, r := range recs {
		assert.NotContains(t, r.Body, "never read")
		assert.NotEqual(t, model.RoleAssistant, r.Role, "partial reply must not survive")
	}
	assertNoStreaming(t, recs)
}

func TestRun_NotReady(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "text without session",
			params: func() Params { p := textParams("hi"); p.SessionID = ""; return p }(),
			want:   notReadyText,
		},
		{
			name:   "file without credential",
			params: func() Params { p := fileParams("labs.pdf", "%PDF", ""); p.Credential = ""; return p }(),
			want:   notReadyFileText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New()
			api := &fakeStreamer{}
			var states []State
			opts := quiet()
			opts.OnState = func(s State) { states = append(states, s) }

			out := New(s, api, tt.params, opts).Run(context.Background())

			assert.ErrorIs(t, out.Err, ErrNotReady)
			assert.Equal(t, []State{StateFailed}, states, "straight to failed")
			assert.Zero(t, api.callCount(), "no network call")

			recs := s.Records()
			require.Len(t, recs, 1)
			assert.Equal(t, model.RoleSystem, recs[0].Role)
			assert.Equal(t, tt.want, recs[0].Body)
		})
	}
}

func TestRun_RejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		prefix string
	}{
		{"empty message", textParams("   "), "Error: nothing to send"},
		{"bad extension", fileParams("virus.exe", "MZ", ""), "Upload failed: unsupported file type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New()
			api := &fakeStreamer{}

			out := New(s, api, tt.params, quiet()).Run(context.Background())

			assert.Equal(t, StateFailed, out.State)
			assert.Zero(t, api.callCount())
			recs := s.Records()
			require.Len(t, recs, 1)
			assert.True(t, strings.HasPrefix(recs[0].Body, tt.prefix), "got %q", recs[0].Body)
		})
	}
}

func TestRun_TransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeStreamer
		kind    Kind
		wantMsg string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "unauthorized",
			api:     &fakeStreamer{openErr: &client.ClientError{Type: client.ErrTypeUnauthorized, Message: "Invalid token", StatusCode: 401}},
			wantMsg: "Error: your session has expired, please log in again",
			check:   func(t *testing.T, err error) { assert.True(t, client.IsUnauthorized(err)) },
		},
		{
			name:    "server error on upload",
			api:     &fakeStreamer{openErr: &client.ClientError{Type: client.ErrTypeStatus, Message: "service returned 500 Internal Server Error", StatusCode: 500}},
			kind:    KindFile,
			wantMsg: "Upload failed: service returned 500 Internal Server Error",
		},
		{
			name:    "stream ends without content or terminal event",
			api:     &fakeStreamer{payload: ""},
			wantMsg: "Error: the response ended unexpectedly",
			check:   func(t *testing.T, err error) { assert.ErrorIs(t, err, stream.ErrIncomplete) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New()
			p := textParams("What is fever?")
			if tt.kind == KindFile {
				p = fileParams("labs.txt", "Hb 13", "")
			}

			out := New(s, tt.api, p, quiet()).Run(context.Background())

			assert.Equal(t, StateFailed, out.State)
			if tt.check != nil {
				tt.check(t, out.Err)
			}
			recs := s.Records()
			require.Equal(t, []model.Role{model.RoleUser, model.RoleSystem}, roles(recs))
			assert.Equal(t, tt.wantMsg, recs[1].Body)
			assertNoStreaming(t, recs)
		})
	}
}

func TestRun_InactivityTimeout(t *testing.T) {
	s := store.New()
	pr, pw := io.Pipe()
	defer pw.Close()
	api := &fakeStreamer{pipe: pr}

	go func() {
		_, _ = io.WriteString(pw, `{"chunk":"Fever "}`+"\n")
		// then silence
	}()

	opts := quiet()
	opts.InactivityTimeout = 50 * time.Millisecond
	start := time.Now()
	out := New(s, api, textParams("What is fever?"), opts).Run(context.Background())

	assert.ErrorIs(t, out.Err, ErrStalled)
	assert.Less(t, time.Since(start), 2*time.Second)
	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "Error: the service stopped responding", recs[1].Body)
}

func TestRun_CancellationRollsBack(t *testing.T) {
	s := store.New()
	pr, pw := io.Pipe()
	defer pw.Close()
	api := &fakeStreamer{pipe: pr}

	ctx, cancel := context.WithCancel(context.Background())
	s.Subscribe(func(c store.Change) {
		if c.Op == store.OpUpdate && c.Record.Body == "Fever " {
			cancel()
		}
	})
	go func() {
		_, _ = io.WriteString(pw, `{"chunk":"Fever "}`+"\n")
	}()

	out := New(s, api, textParams("What is fever?"), quiet()).Run(ctx)

	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	recs := s.Records()
	require.Equal(t, []model.Role{model.RoleUser, model.RoleSystem}, roles(recs))
	assert.Equal(t, "Error: request canceled", recs[1].Body)
	assertNoStreaming(t, recs)
}

func TestRun_TeardownMidStreamLeavesStoreUntouched(t *testing.T) {
	s := store.New()
	pr, pw := io.Pipe()
	api := &fakeStreamer{pipe: pr}

	s.Subscribe(func(c store.Change) {
		if c.Op == store.OpUpdate && c.Record.Body == "Fever " {
			go s.Close()
		}
	})

	go func() {
		_, _ = io.WriteString(pw, `{"chunk":"Fever "}`+"\n")
		for !s.Closed() {
			time.Sleep(time.Millisecond)
		}
		_, _ = io.WriteString(pw, `{"chunk":"is hot"}`+"\n")
		_, _ = io.WriteString(pw, `{"chunk":"","done":true}`+"\n")
		pw.Close()
	}()

	out := New(s, api, textParams("What is fever?"), quiet()).Run(context.Background())

	assert.Equal(t, StateComplete, out.State)
	recs := s.Records()
	require.Len(t, recs, 2, "no records added after teardown")
	assert.Equal(t, "Fever ", recs[1].Body, "no updates after teardown")
	assert.Equal(t, model.StatusStreaming, recs[1].Status)
}

func TestRun_OnlyOnce(t *testing.T) {
	s := store.New()
	api := &fakeStreamer{payload: lines(`{"chunk":"x"}`, `{"done":true}`)}
	o := New(s, api, textParams("hi"), quiet())

	first := o.Run(context.Background())
	second := o.Run(context.Background())

	assert.Equal(t, StateComplete, first.State)
	assert.ErrorIs(t, second.Err, ErrAlreadyStarted)
	assert.Equal(t, 1, api.callCount())
	assert.Equal(t, 2, s.Len())
}

// =============================================================================
// FILE EXCHANGES
// =============================================================================

func TestRun_FilePartialProcessing(t *testing.T) {
	tests := []struct {
		name         string
		doneLine     string
		wantAdvisory bool
	}{
		{"not processed", `{"chunk":"","done":true,"file_processed":false}`, true},
		{"flag absent", `{"chunk":"","done":true}`, true},
		{"processed", `{"chunk":"","done":true,"file_processed":true}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.New()
			api := &fakeStreamer{payload: lines(`{"chunk":"Hemoglobin is normal.","done":false}`, tt.doneLine)}

			out := New(s, api, fileParams("report.txt", "Hb 13.5", ""), quiet()).Run(context.Background())

			assert.Equal(t, StateComplete, out.State)
			assert.Equal(t, !tt.wantAdvisory, out.FileProcessed)

			recs := s.Records()
			if tt.wantAdvisory {
				require.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleSystem}, roles(recs))
				assert.Equal(t, AdvisoryText, recs[2].Body)
				assert.Equal(t, out.AdvisoryRecordID, recs[2].ID)
			} else {
				require.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant}, roles(recs))
			}
			assert.Equal(t, "Uploaded report.txt", recs[0].Body)
			require.NotNil(t, recs[0].Attachment)
			assert.Equal(t, "report.txt", recs[0].Attachment.Name)
			assert.Equal(t, "Hemoglobin is normal.", recs[1].Body)
			assertNoStreaming(t, recs)
		})
	}
}

func TestRun_FileWithMessage(t *testing.T) {
	s := store.New()
	api := &fakeStreamer{payload: lines(`{"chunk":"ok"}`, `{"done":true,"file_processed":true}`)}

	out := New(s, api, fileParams("scan.png", "\x89PNG", "Is this a rash?"), quiet()).Run(context.Background())

	require.Equal(t, StateComplete, out.State)
	rec, _ := s.Get(out.UserRecordID)
	assert.Equal(t, "Is this a rash?\nwith file: scan.png", rec.Body)
	assert.Equal(t, "scan.png", api.lastFile.Name)
	assert.Equal(t, "user@example.com", api.lastFile.User)
	assert.Equal(t, "Is this a rash?", api.lastFile.Message)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRun_ConcurrentTextAndFileExchanges(t *testing.T) {
	s := store.New()

	textPR, textPW := io.Pipe()
	filePR, filePW := io.Pipe()
	textAPI := &fakeStreamer{pipe: textPR}
	fileAPI := &fakeStreamer{pipe: filePR}

	var wg sync.WaitGroup
	var textOut, fileOut Outcome
	wg.Add(2)
	go func() {
		defer wg.Done()
		textOut = New(s, textAPI, textParams("What is fever?"), quiet()).Run(context.Background())
	}()
	go func() {
		defer wg.Done()
		fileOut = New(s, fileAPI, fileParams("labs.txt", "Hb 9", ""), quiet()).Run(context.Background())
	}()

	// Interleave the two streams line by line
	write := func(w *io.PipeWriter, line string) {
		_, err := io.WriteString(w, line+"\n")
		assert.NoError(t, err)
	}
	write(textPW, `{"chunk":"Fever "}`)
	write(filePW, `{"chunk":"Low "}`)
	write(textPW, `{"chunk":"is heat."}`)
	write(filePW, `{"chunk":"hemoglobin."}`)
	write(filePW, `{"done":true,"file_processed":true}`)
	write(textPW, `{"done":true}`)
	textPW.Close()
	filePW.Close()
	wg.Wait()

	require.Equal(t, StateComplete, textOut.State)
	require.Equal(t, StateComplete, fileOut.State)

	textReply, ok := s.Get(textOut.ReplyRecordID)
	require.True(t, ok)
	fileReply, ok := s.Get(fileOut.ReplyRecordID)
	require.True(t, ok)
	assert.Equal(t, "Fever is heat.", textReply.Body)
	assert.Equal(t, "Low hemoglobin.", fileReply.Body)

	recs := s.Records()
	assert.Len(t, recs, 4)
	assertNoStreaming(t, recs)
}

func TestFailureText(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		cause error
		want  string
	}{
		{"not ready text", KindText, ErrNotReady, "Cannot send message: Please ensure you're logged in and the session is initialized."},
		{"not ready file", KindFile, ErrNotReady, "Cannot upload file: Please ensure you're logged in and the session is initialized."},
		{"service error", KindText, &ServiceError{Message: "model overloaded"}, "Error: model overloaded"},
		{"stalled upload", KindFile, ErrStalled, "Upload failed: the service stopped responding"},
		{"unauthorized", KindText, client.ErrUnauthorized, "Error: your session has expired, please log in again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureText(tt.kind, tt.cause))
		})
	}
}
