// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anthonyvijay10/GrealthAI/internal/config"
	"github.com/Anthonyvijay10/GrealthAI/internal/exchange"
	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
)

// =============================================================================
// FAKE ASSISTANT SERVICE
// =============================================================================

type fakeService struct {
	mu          sync.Mutex
	sessions    int
	chats       []map[string]string
	uploads     []map[string]string
	ttsRequests int
	rejectChat  bool
	holdChat    bool
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /start_session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"Invalid token"}`)
			return
		}
		f.mu.Lock()
		f.sessions++
		n := f.sessions
		f.mu.Unlock()
		fmt.Fprintf(w, `{"session_id":"sess-%d"}`, n)
	})

	mux.HandleFunc("POST /chat/{sid}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		reject, hold := f.rejectChat, f.holdChat
		f.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"Invalid token"}`)
			return
		}

		var body map[string]string
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		body["session"] = r.PathValue("sid")
		f.mu.Lock()
		f.chats = append(f.chats, body)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"chunk":"Fever is ","done":false}`)
		w.(http.Flusher).Flush()
		if hold {
			<-r.Context().Done()
			return
		}
		fmt.Fprintln(w, `{"chunk":"a raised temperature.","done":false}`)
		fmt.Fprintln(w, `{"done":true,"insights":[{"type":"tip","content":"Drink fluids","severity":"low"}]}`)
	})

	mux.HandleFunc("POST /process_file/{sid}", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		content, _ := io.ReadAll(file)
		f.mu.Lock()
		f.uploads = append(f.uploads, map[string]string{
			"name":    header.Filename,
			"content": string(content),
			"message": r.FormValue("user_message"),
			"user":    r.FormValue("user"),
		})
		f.mu.Unlock()

		fmt.Fprintln(w, `{"chunk":"Your report looks normal.","done":false}`)
		fmt.Fprintln(w, `{"done":true,"file_processed":true}`)
	})

	mux.HandleFunc("POST /tts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.ttsRequests++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-audio"))
	})

	return mux
}

func (f *fakeService) chatLog() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.chats...)
}

func (f *fakeService) uploadLog() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.uploads...)
}

func (f *fakeService) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeService) ttsCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttsRequests
}

type fakePlayer struct {
	mu     sync.Mutex
	played map[string][]byte
}

func (p *fakePlayer) Play(id string, audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.played == nil {
		p.played = make(map[string][]byte)
	}
	p.played[id] = audio
	return nil
}

func (p *fakePlayer) Pause(id string) {}

func newTestService(t *testing.T, fake *fakeService, token string, opts Options) *Service {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL
	cfg.Server.RequestsPerSecond = 0
	cfg.Auth.UserIdentity = "asha@example.com"
	cfg.Auth.Token = token
	cfg.Exchange.TargetLanguage = "Tamil"
	cfg.Storage.AutoSave = false

	opts.Logger = log.New(io.Discard, "", 0)
	svc := New(cfg, opts)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// =============================================================================
// TESTS
// =============================================================================

func TestService_NotLoggedIn(t *testing.T) {
	fake := &fakeService{}
	svc := newTestService(t, fake, "", Options{})

	out := svc.Send(context.Background(), Request{Message: "What is fever?"})
	assert.Equal(t, exchange.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, exchange.ErrNotReady)

	recs := svc.Records().Records()
	require.Len(t, recs, 1)
	assert.Equal(t, model.RoleSystem, recs[0].Role)
	assert.Contains(t, recs[0].Body, "Cannot send message")
	assert.Zero(t, fake.sessionCount())
}

func TestService_SendText(t *testing.T) {
	fake := &fakeService{}
	svc := newTestService(t, fake, "good-token", Options{})

	out := svc.Send(context.Background(), Request{Message: "What is fever?"})
	require.NoError(t, out.Err)
	assert.Equal(t, exchange.StateComplete, out.State)

	recs := svc.Records().Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "What is fever?", recs[0].Body)
	assert.Equal(t, model.StatusComplete, recs[0].Status)
	assert.Equal(t, "Fever is a raised temperature.", recs[1].Body)
	require.Len(t, recs[1].Annotations, 1)
	assert.Equal(t, "Drink fluids", recs[1].Annotations[0].Text)

	require.Len(t, fake.chatLog(), 1)
	assert.Equal(t, "What is fever? explain only in tamil language", fake.chatLog()[0]["user_message"])
	assert.Equal(t, "Tamil", fake.chatLog()[0]["language"])
	assert.Equal(t, "asha@example.com", fake.chatLog()[0]["email"])

	// The session is reused
	out = svc.Send(context.Background(), Request{Message: "And chills?"})
	require.NoError(t, out.Err)
	assert.Equal(t, 1, fake.sessionCount())
	assert.Equal(t, fake.chatLog()[0]["session"], fake.chatLog()[1]["session"])
}

func TestService_SetLanguage(t *testing.T) {
	fake := &fakeService{}
	svc := newTestService(t, fake, "good-token", Options{})

	lang, err := svc.SetLanguage("hi")
	require.NoError(t, err)
	assert.Equal(t, "Hindi", lang)

	_, err = svc.SetLanguage("Klingon")
	assert.Error(t, err)
	assert.Equal(t, "Hindi", svc.Language())

	svc.Send(context.Background(), Request{Message: "Hello"})
	require.Len(t, fake.chatLog(), 1)
	assert.Equal(t, "Hindi", fake.chatLog()[0]["language"])
}

func TestService_UnauthorizedSessionStart(t *testing.T) {
	fake := &fakeService{}
	svc := newTestService(t, fake, "stale-token", Options{})

	out := svc.Send(context.Background(), Request{Message: "Hi"})
	assert.Equal(t, exchange.StateFailed, out.State)
	assert.False(t, svc.Sessions().HasCredentials())

	recs := svc.Records().Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "Error: your session has expired, please log in again", recs[0].Body)

	// Logged out now: the next attempt is not-ready, without a request
	out = svc.Send(context.Background(), Request{Message: "Hi again"})
	assert.ErrorIs(t, out.Err, exchange.ErrNotReady)
}

func TestService_UnauthorizedMidConversation(t *testing.T) {
	fake := &fakeService{rejectChat: true}
	svc := newTestService(t, fake, "good-token", Options{})

	out := svc.Send(context.Background(), Request{Message: "Hi"})
	assert.Equal(t, exchange.StateFailed, out.State)
	assert.False(t, svc.Sessions().HasCredentials())
	_, active := svc.Sessions().Current()
	assert.False(t, active)

	// No silent re-acquire with the rejected token
	out = svc.Send(context.Background(), Request{Message: "Hi again"})
	assert.ErrorIs(t, out.Err, exchange.ErrNotReady)
	assert.Equal(t, 1, fake.sessionCount())
}

func TestService_UnreachableService(t *testing.T) {
	cfg := config.Default()
	cfg.Server.BaseURL = "http://127.0.0.1:1"
	cfg.Server.ConnectTimeoutSecs = 1
	cfg.Auth.Token = "good-token"
	cfg.Storage.AutoSave = false
	svc := New(cfg, Options{Logger: log.New(io.Discard, "", 0)})
	defer svc.Close()

	out := svc.Send(context.Background(), Request{Message: "Hi"})
	assert.Equal(t, exchange.StateFailed, out.State)
	recs := svc.Records().Records()
	require.Len(t, recs, 1)
	assert.True(t, strings.HasPrefix(recs[0].Body, "Error: "), recs[0].Body)
	assert.True(t, svc.Sessions().HasCredentials())
}

func TestService_ConcurrentTextAndFile(t *testing.T) {
	fake := &fakeService{}
	svc := newTestService(t, fake, "good-token", Options{})

	text := svc.Submit(Request{Message: "What is fever?"})
	file := svc.Submit(Request{
		Message: "Please check",
		File:    &exchange.FileInput{Name: "report.txt", Content: strings.NewReader("hb 13.5")},
	})

	for _, ch := range []<-chan exchange.Outcome{text, file} {
		select {
		case out := <-ch:
			require.NoError(t, out.Err)
			assert.Equal(t, exchange.StateComplete, out.State)
		case <-time.After(5 * time.Second):
			t.Fatal("exchange did not finish")
		}
	}

	assert.Equal(t, 4, svc.Records().Len())
	require.Len(t, fake.uploadLog(), 1)
	assert.Equal(t, "report.txt", fake.uploadLog()[0]["name"])
	assert.Equal(t, "hb 13.5", fake.uploadLog()[0]["content"])
	assert.Equal(t, "asha@example.com", fake.uploadLog()[0]["user"])
	assert.Equal(t, 1, fake.sessionCount())
}

func TestService_CloseCancelsInFlight(t *testing.T) {
	fake := &fakeService{holdChat: true}
	streaming := make(chan struct{})
	var once sync.Once
	svc := newTestService(t, fake, "good-token", Options{
		OnState: func(kind exchange.Kind, st exchange.State) {
			if st == exchange.StateStreaming {
				once.Do(func() { close(streaming) })
			}
		},
	})

	result := svc.Submit(Request{Message: "Long question"})
	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		t.Fatal("exchange never started streaming")
	}

	require.NoError(t, svc.Close())
	out := <-result
	assert.Equal(t, exchange.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.True(t, svc.Records().Closed())

	late := <-svc.Submit(Request{Message: "after close"})
	assert.ErrorIs(t, late.Err, ErrClosed)
}

func TestService_SaveAndResume(t *testing.T) {
	fake := &fakeService{}
	transcripts, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := newTestService(t, fake, "good-token", Options{Transcripts: transcripts})

	svc.Send(context.Background(), Request{Message: "What is fever?"})
	saved, err := svc.Save()
	require.NoError(t, err)
	assert.Equal(t, "What is fever?", saved.Title)
	assert.Len(t, saved.Records, 2)

	// Saving again updates the same transcript
	svc.Send(context.Background(), Request{Message: "And chills?"})
	again, err := svc.Save()
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)

	metas, err := transcripts.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 4, metas[0].RecordCount)

	resumed, err := svc.Resume(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, svc.Records().Len())
	assert.Equal(t, resumed.Records[0].Body, svc.Records().Records()[0].Body)
}

func TestService_Playback(t *testing.T) {
	fake := &fakeService{}
	player := &fakePlayer{}
	svc := newTestService(t, fake, "good-token", Options{Player: player})

	out := svc.Send(context.Background(), Request{Message: "What is fever?"})
	require.NoError(t, out.Err)

	playing, err := svc.TogglePlayback(context.Background(), out.ReplyRecordID)
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, []byte("ID3-audio"), player.played[out.ReplyRecordID])

	playing, err = svc.TogglePlayback(context.Background(), out.ReplyRecordID)
	require.NoError(t, err)
	assert.False(t, playing)

	// Cached audio is reused
	_, err = svc.TogglePlayback(context.Background(), out.ReplyRecordID)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.ttsCount())
}

func TestService_PlaybackFollowsLanguage(t *testing.T) {
	fake := &fakeService{}
	svc := newTestService(t, fake, "good-token", Options{Player: &fakePlayer{}})

	out := svc.Send(context.Background(), Request{Message: "What is fever?"})
	require.NoError(t, out.Err)

	_, err := svc.TogglePlayback(context.Background(), out.ReplyRecordID)
	require.NoError(t, err)
	_, err = svc.TogglePlayback(context.Background(), out.ReplyRecordID)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.ttsCount())

	_, err = svc.SetLanguage("Hindi")
	require.NoError(t, err)
	playing, err := svc.TogglePlayback(context.Background(), out.ReplyRecordID)
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, 2, fake.ttsCount())
	assert.True(t, svc.Playback().Cached(out.ReplyRecordID, "Hindi"))
}

func TestService_PlaybackDisabled(t *testing.T) {
	svc := newTestService(t, &fakeService{}, "good-token", Options{})
	assert.Nil(t, svc.Playback())
	_, err := svc.TogglePlayback(context.Background(), "rec_x")
	assert.Error(t, err)
}
