// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
)

// AllowedExtensions lists the upload types the service accepts.
var AllowedExtensions = []string{"png", "jpg", "jpeg", "pdf", "txt"}

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 20 << 20

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TextRequest is the body of a text exchange.
type TextRequest struct {
	Message  string `json:"user_message"`
	Language string `json:"language"`
	Email    string `json:"email"`
}

// FileRequest describes a file exchange.
type FileRequest struct {
	// Name is the file name sent to the service; its extension must be
	// one of AllowedExtensions.
	Name    string
	Content io.Reader

	Language string
	User     string

	// Message is optional text sent along with the file.
	Message string
}

// ValidateUpload checks that name has an accepted extension.
func ValidateUpload(name string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return &ClientError{
		Type:    ErrTypeInvalidRequest,
		Message: fmt.Sprintf("unsupported file type %q (allowed: %s)", filepath.Ext(name), strings.Join(AllowedExtensions, ", ")),
	}
}

// =============================================================================
// STREAMING EXCHANGES
// =============================================================================

// OpenTextStream starts a text exchange and returns the event stream.
// The caller must close the returned body.
func (c *Client) OpenTextStream(ctx context.Context, sessionID, credential string, r TextRequest) (io.ReadCloser, error) {
	if sessionID == "" {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "missing session id"}
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat/"+url.PathEscape(sessionID), credential, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.do(ctx, c.streamClient, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// OpenFileStream uploads a file and returns the analysis event stream.
// The caller must close the returned body.
func (c *Client) OpenFileStream(ctx context.Context, sessionID, credential string, r FileRequest) (io.ReadCloser, error) {
	if sessionID == "" {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "missing session id"}
	}
	if err := ValidateUpload(r.Name); err != nil {
		return nil, err
	}
	if r.Content == nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "missing file content"}
	}

	body, contentType, err := encodeUpload(r)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/process_file/"+url.PathEscape(sessionID), credential, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.do(ctx, c.streamClient, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// encodeUpload builds the multipart body in memory.
func encodeUpload(r FileRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(r.Name))
	if err != nil {
		return nil, "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to encode upload", Cause: err}
	}
	n, err := io.Copy(part, io.LimitReader(r.Content, MaxUploadBytes+1))
	if err != nil {
		return nil, "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to read file", Cause: err}
	}
	if n > MaxUploadBytes {
		return nil, "", &ClientError{Type: ErrTypeInvalidRequest, Message: fmt.Sprintf("file exceeds %d MiB", MaxUploadBytes>>20)}
	}

	fields := []struct{ key, value string }{
		{"language", r.Language},
		{"user", r.User},
	}
	if r.Message != "" {
		fields = append(fields, struct{ key, value string }{"user_message", r.Message})
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to encode upload", Cause: err}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to encode upload", Cause: err}
	}
	return &buf, w.FormDataContentType(), nil
}

// =============================================================================
// SPEECH SYNTHESIS
// =============================================================================

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Synthesize converts text to speech and returns the encoded audio.
func (c *Client) Synthesize(ctx context.Context, credential, text, language string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Language: language})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/tts", credential, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.do(ctx, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxAudioBytes+1))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if int64(len(audio)) > c.config.MaxAudioBytes {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "audio response too large"}
	}
	if len(audio) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "empty audio response"}
	}
	return audio, nil
}
