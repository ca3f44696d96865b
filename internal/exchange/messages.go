// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package exchange

import (
	"context"
	"errors"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/stream"
)

// User-visible texts for system records.
const (
	AdvisoryText = "File was uploaded but may not have been fully processed"

	notReadyText     = "Cannot send message: Please ensure you're logged in and the session is initialized."
	notReadyFileText = "Cannot upload file: Please ensure you're logged in and the session is initialized."
)

// errorText renders the system record for a failed exchange.
func (o *Orchestrator) errorText(cause error) string {
	return FailureText(o.params.Kind, cause)
}

// FailureText renders the system record text for an exchange of the given
// kind that failed with cause.
func FailureText(kind Kind, cause error) string {
	if errors.Is(cause, ErrNotReady) {
		if kind == KindFile {
			return notReadyFileText
		}
		return notReadyText
	}

	prefix := "Error: "
	if kind == KindFile {
		prefix = "Upload failed: "
	}
	return prefix + describe(cause)
}

// describe turns a failure cause into a short readable reason.
func describe(err error) string {
	var svcErr *ServiceError
	var cliErr *client.ClientError

	switch {
	case errors.As(err, &svcErr):
		return svcErr.Message
	case errors.Is(err, ErrStalled):
		return "the service stopped responding"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	case errors.Is(err, ErrEmptyMessage):
		return "nothing to send"
	case errors.Is(err, client.ErrUnauthorized):
		return "your session has expired, please log in again"
	case errors.Is(err, stream.ErrIncomplete):
		return "the response ended unexpectedly"
	case errors.Is(err, stream.ErrLineTooLong):
		return "the response could not be read"
	case errors.As(err, &cliErr):
		return cliErr.Message
	default:
		return err.Error()
	}
}
