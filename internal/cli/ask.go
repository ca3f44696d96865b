// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot questions and file uploads.

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Anthonyvijay10/GrealthAI/internal/chat"
	"github.com/Anthonyvijay10/GrealthAI/internal/exchange"
	"github.com/Anthonyvijay10/GrealthAI/internal/model"
	"github.com/Anthonyvijay10/GrealthAI/internal/render"
)

// askResult is the --json form of a finished exchange.
type askResult struct {
	State         string             `json:"state"`
	Reply         string             `json:"reply"`
	Insights      []model.Annotation `json:"insights"`
	FileProcessed bool               `json:"file_processed,omitempty"`
	Malformed     int64              `json:"malformed_lines,omitempty"`
	Language      string             `json:"language"`
}

func (a *app) newAskCmd() *cobra.Command {
	var filePath string
	var save bool
	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Ask a single question",
		Long: "Ask a single question and print the streamed reply with its insights.\n\n" +
			"With no message, or \"-\", the message is read from stdin.",
		Example: "  grealth ask What are the symptoms of dehydration?\n" +
			"  echo \"Is 38.5C a fever?\" | grealth ask\n" +
			"  grealth ask --file results.pdf Summarise these lab results",
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if msg == "" && filePath == "" {
				return &ValidationError{
					Field:   "message",
					Reason:  "nothing to ask",
					Example: "grealth ask What is a normal resting heart rate?",
				}
			}
			return a.runOnce(cmd, msg, filePath, save)
		},
	}
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "attach a file for analysis")
	cmd.Flags().BoolVar(&save, "save", false, "save the exchange as a conversation")
	return cmd
}

func (a *app) newUploadCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "upload <file> [message...]",
		Short: "Send a file for analysis",
		Long: "Send a document or image to the assistant for analysis.\n" +
			"Only text documents are analysed in full; other accepted types get a short acknowledgement.",
		Example: "  grealth upload notes.txt\n  grealth upload scan.png What does this show?",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(args[1:], nil)
			if err != nil {
				return err
			}
			return a.runOnce(cmd, msg, args[0], save)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "save the exchange as a conversation")
	return cmd
}

// runOnce runs a single exchange and prints its outcome.
func (a *app) runOnce(cmd *cobra.Command, message, filePath string, save bool) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Storage.AutoSave = save

	req := chat.Request{Message: message}
	if filePath != "" {
		file, closer, err := openUpload(filePath)
		if err != nil {
			return err
		}
		defer closer.Close()
		req.File = file
	}

	opts := chat.Options{Logger: a.logger}
	if save {
		transcripts, err := a.openTranscripts(cfg)
		if err != nil {
			return err
		}
		defer transcripts.Close()
		opts.Transcripts = transcripts
	}
	svc := chat.New(cfg, opts)

	out := cmd.OutOrStdout()
	var detach func()
	if !a.jsonOutput {
		printer := render.NewPrinter(out, a.newRenderer(cfg, out))
		detach = printer.Attach(svc.Records())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome := svc.Send(ctx, req)
	closeErr := svc.Close()
	if detach != nil {
		detach()
	}

	if a.jsonOutput {
		if outcome.Err != nil {
			resp := NewJSONErrorResponse("ask", outcome.Err)
			resp.Data = a.askResult(svc, outcome)
			if err := resp.Write(out); err != nil {
				return err
			}
			return silentError{outcome.Err}
		}
		return NewJSONResponse("ask", a.askResult(svc, outcome)).Write(out)
	}

	if outcome.Err != nil {
		// Already printed as a system record
		return silentError{outcome.Err}
	}
	if closeErr != nil {
		return fmt.Errorf("save conversation: %w", closeErr)
	}
	return nil
}

func (a *app) askResult(svc *chat.Service, out exchange.Outcome) askResult {
	res := askResult{
		State:         string(out.State),
		FileProcessed: out.FileProcessed,
		Malformed:     out.Malformed,
		Language:      svc.Language(),
		Insights:      []model.Annotation{},
	}
	if out.State == exchange.StateComplete {
		res.Reply = out.Reply.Body
		if out.Reply.Annotations != nil {
			res.Insights = out.Reply.Annotations
		}
	}
	return res
}

// silentError carries a failure that has already been shown. Execute
// uses it for the exit code only.
type silentError struct {
	err error
}

func (e silentError) Error() string { return e.err.Error() }
func (e silentError) Unwrap() error { return e.err }
