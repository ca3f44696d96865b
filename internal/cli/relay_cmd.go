// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// relay_cmd.go - Development relay backed by a local Ollama model.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Anthonyvijay10/GrealthAI/internal/ollama"
	"github.com/Anthonyvijay10/GrealthAI/internal/server"
)

func (a *app) newRelayCmd() *cobra.Command {
	var listen, model, ollamaURL string
	var tokens []string
	var rpm int
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the assistant protocol from a local Ollama model",
		Long: "Run a development server that speaks the assistant protocol and answers\n" +
			"with a local Ollama model. Point a client at it with --base-url.\n\n" +
			"With no tokens configured every request is accepted.",
		Example: "  grealth relay\n" +
			"  grealth relay --listen 127.0.0.1:4000 --model gemma3:1b --token dev-token\n" +
			"  grealth --base-url http://127.0.0.1:4000 chat",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Relay.Listen = listen
			}
			if flags.Changed("model") {
				cfg.Relay.Model = model
			}
			if flags.Changed("ollama-url") {
				cfg.Relay.OllamaURL = ollamaURL
			}
			if flags.Changed("token") {
				cfg.Relay.Tokens = tokens
			}
			if flags.Changed("rate-limit") {
				cfg.Relay.RequestsPerMinute = rpm
			}

			oc := ollama.NewClientWithConfig(&ollama.ClientConfig{
				BaseURL:      cfg.Relay.OllamaURL,
				DefaultModel: cfg.Relay.Model,
			})
			out := cmd.OutOrStdout()
			styles := a.styles(cfg, out)

			checkCtx, cancelCheck := context.WithTimeout(cmd.Context(), 3*time.Second)
			if err := oc.CheckRunning(checkCtx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v at %s; replies will fail until it starts\n",
					styles.Warning.Render("[Warning]"), err, cfg.Relay.OllamaURL)
			}
			cancelCheck()

			srv := server.New(server.Config{
				Listen:            cfg.Relay.Listen,
				Tokens:            cfg.Relay.Tokens,
				Model:             cfg.Relay.Model,
				RequestsPerMinute: cfg.Relay.RequestsPerMinute,
				SessionTTL:        cfg.Relay.SessionTTL(),
				Logger:            a.logger,
			}, oc)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			fmt.Fprintln(out, styles.Title.Render("grealth relay"))
			fmt.Fprintln(out, styles.Field("Listening:", "http://"+cfg.Relay.Listen))
			fmt.Fprintln(out, styles.Field("Model:", cfg.Relay.Model))
			if len(cfg.Relay.Tokens) == 0 {
				fmt.Fprintln(out, styles.Field("Auth:", styles.Warning.Render("disabled (no tokens)")))
			} else {
				fmt.Fprintln(out, styles.Field("Auth:", fmt.Sprintf("%d token(s)", len(cfg.Relay.Tokens))))
			}
			fmt.Fprintln(out, styles.Dim.Render("Press Ctrl+C to stop."))

			select {
			case err := <-errCh:
				if err != nil {
					return NewCommandError("relay", "start", "server stopped", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			fmt.Fprintln(out, "Relay stopped.")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", server.DefaultListen, "address to listen on")
	cmd.Flags().StringVarP(&model, "model", "m", ollama.DefaultModel, "Ollama model")
	cmd.Flags().StringVar(&ollamaURL, "ollama-url", ollama.DefaultBaseURL, "Ollama API URL")
	cmd.Flags().StringArrayVar(&tokens, "token", nil, "accepted bearer token (repeatable)")
	cmd.Flags().IntVar(&rpm, "rate-limit", 0, "requests per minute per client (0 = unlimited)")
	return cmd
}
