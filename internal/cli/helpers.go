// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Helpers shared by several commands.

package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/exchange"
	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
)

// maxStdinMessage bounds a message read from a pipe.
const maxStdinMessage = 64 * 1024

// openUpload opens path for a file exchange. The caller closes the
// returned file once the exchange ends.
func openUpload(path string) (*exchange.FileInput, io.Closer, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, NewValidationError("file", "", "a file path is required")
	}
	name := filepath.Base(path)
	if err := client.ValidateUpload(name); err != nil {
		return nil, nil, &ValidationError{
			Field:   "file",
			Value:   name,
			Reason:  err.Error(),
			Example: "grealth upload report.pdf",
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		f.Close()
		return nil, nil, NewValidationError("file", path, "is a directory")
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &exchange.FileInput{
		Name:        name,
		Content:     f,
		Size:        st.Size(),
		ContentType: contentType,
		Path:        abs,
	}, f, nil
}

// readMessage joins args into a message. With no args, or a single "-",
// the message is read from in.
func readMessage(args []string, in io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}
	if in == nil {
		return "", nil
	}
	if f, ok := in.(*os.File); ok && f == os.Stdin && IsTTY() {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(in, maxStdinMessage))
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// resolveTranscript loads a transcript by id or by its 1-based position
// in the list.
func resolveTranscript(store storage.Store, ref string) (*model.Transcript, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		metas, err := store.List()
		if err != nil {
			return nil, err
		}
		if n < 1 || n > len(metas) {
			return nil, &NotFoundError{Resource: "conversation", ID: ref}
		}
		ref = metas[n-1].ID
	}

	t, err := store.Load(ref)
	if errors.Is(err, storage.ErrTranscriptNotFound) {
		return nil, &NotFoundError{Resource: "conversation", ID: ref}
	}
	return t, err
}

// replyID returns the id of the nth finalized assistant reply (1-based).
func replyID(records []model.Record, n int) (string, bool) {
	count := 0
	for _, r := range records {
		if r.Role != model.RoleAssistant || r.Status != model.StatusComplete {
			continue
		}
		count++
		if count == n {
			return r.ID, true
		}
	}
	return "", false
}

// countReplies returns the number of finalized assistant replies.
func countReplies(records []model.Record) int {
	count := 0
	for _, r := range records {
		if r.Role == model.RoleAssistant && r.Status == model.StatusComplete {
			count++
		}
	}
	return count
}
