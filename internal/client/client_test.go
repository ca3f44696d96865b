// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{
		BaseURL:           srv.URL,
		RequestsPerSecond: -1,
		Logger:            log.New(io.Discard, "", 0),
	})
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example.test/"})

	assert.Equal(t, "http://example.test", c.BaseURL())
	assert.Equal(t, 30*time.Second, c.config.Timeout)
	assert.Equal(t, float64(5), c.config.RequestsPerSecond)
	assert.Equal(t, 3, c.config.Burst)
	assert.Equal(t, "grealth", c.config.UserAgent)
}

func TestNewClient_NilConfig(t *testing.T) {
	c := NewClientWithConfig(nil)
	assert.Equal(t, "http://127.0.0.1:4000", c.BaseURL())
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestStartSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/start_session", r.URL.Path)
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-42"})
	}))

	id, err := c.StartSession(context.Background(), "jwt-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-42", id)
}

func TestStartSession_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		target  error
		message string
	}{
		{"unauthorized with message", 401, `{"error":"Invalid token"}`, ErrUnauthorized, "Invalid token"},
		{"unauthorized bare", 401, ``, ErrUnauthorized, "unauthorized"},
		{"server error", 500, `{"error":"boom"}`, &ClientError{Type: ErrTypeStatus}, "boom"},
		{"bad gateway text", 502, `upstream down`, &ClientError{Type: ErrTypeStatus}, "service returned 502 Bad Gateway"},
		{"missing id", 200, `{}`, ErrInvalidResponse, "session response has no session_id"},
		{"not json", 200, `<html>`, ErrInvalidResponse, "failed to decode session response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			_, err := c.StartSession(context.Background(), "jwt")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestStartSession_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url, RequestsPerSecond: -1, Logger: log.New(io.Discard, "", 0)})
	_, err := c.StartSession(context.Background(), "jwt")

	assert.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, IsUnauthorized(err))
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestOpenTextStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/sess-1", r.URL.Path)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{
			"user_message": "What is fever?",
			"language":     "English",
			"email":        "user@example.com",
		}, body)

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"chunk":"Fever","done":false}`+"\n"+`{"chunk":"","done":true}`+"\n")
	}))

	body, err := c.OpenTextStream(context.Background(), "sess-1", "jwt", TextRequest{
		Message: "What is fever?", Language: "English", Email: "user@example.com",
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestOpenTextStream_MissingSession(t *testing.T) {
	c := NewClient()
	_, err := c.OpenTextStream(context.Background(), "", "jwt", TextRequest{Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOpenTextStream_Canceled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer close(release)

	ctx, cancel := context.WithCancelCause(context.Background())
	stalled := errors.New("stalled")
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(stalled)
	}()

	_, err := c.OpenTextStream(ctx, "sess-1", "jwt", TextRequest{Message: "hi"})
	assert.True(t, IsCanceled(err))
	assert.ErrorIs(t, err, stalled)
}

func TestOpenFileStream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/process_file/sess-1", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		assert.Equal(t, "English", r.FormValue("language"))
		assert.Equal(t, "user@example.com", r.FormValue("user"))
		assert.Equal(t, "Is this normal?", r.FormValue("user_message"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "report.txt", hdr.Filename)
		assert.Equal(t, "Hemoglobin: 13.5", string(data))

		_, _ = io.WriteString(w, `{"chunk":"","done":true,"file_processed":true}`+"\n")
	}))

	body, err := c.OpenFileStream(context.Background(), "sess-1", "jwt", FileRequest{
		Name:     "/tmp/report.txt",
		Content:  strings.NewReader("Hemoglobin: 13.5"),
		Language: "English",
		User:     "user@example.com",
		Message:  "Is this normal?",
	})
	require.NoError(t, err)
	body.Close()
}

func TestOpenFileStream_RejectedBeforeNetwork(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.OpenFileStream(context.Background(), "sess-1", "jwt", FileRequest{
		Name:    "payload.exe",
		Content: strings.NewReader("MZ"),
	})

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.False(t, called)
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"scan.PNG", true},
		{"photo.jpeg", true},
		{"labs.pdf", true},
		{"notes.txt", true},
		{"archive.zip", false},
		{"noext", false},
	}
	for _, tt := range tests {
		err := ValidateUpload(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateUpload(%q) error = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

// =============================================================================
// SPEECH TESTS
// =============================================================================

func TestSynthesize(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts", r.URL.Path)
		var body synthesizeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, synthesizeRequest{Text: "Rest well", Language: "Hindi"}, body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0x49, 0x44, 0x33})
	}))

	audio, err := c.Synthesize(context.Background(), "jwt", "Rest well", "Hindi")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x49, 0x44, 0x33}, audio)
}

func TestSynthesize_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	c := NewClientWithConfig(&ClientConfig{
		BaseURL:           srv.URL,
		RequestsPerSecond: -1,
		MaxAudioBytes:     1024,
		Logger:            log.New(io.Discard, "", 0),
	})

	_, err := c.Synthesize(context.Background(), "jwt", "x", "English")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestClientError_IsMatchesByType(t *testing.T) {
	err := &ClientError{Type: ErrTypeUnauthorized, Message: "Invalid token", StatusCode: 401}

	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.True(t, IsUnauthorized(err))

	wrapped := errors.Join(errors.New("exchange failed"), err)
	assert.True(t, IsUnauthorized(wrapped))
}
