// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Login and logout.
//
// The identity provider issues the bearer token; grealth only stores it
// (config file, 0600) together with the user's email address.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Anthonyvijay10/GrealthAI/internal/chat"
)

func (a *app) newLoginCmd() *cobra.Command {
	var email, token string
	var verify bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the credentials issued by the identity provider",
		Long: "Store your email address and bearer token for the assistant service.\n\n" +
			"Without --token the token is read from stdin (hidden when typed at a terminal).",
		Example: "  grealth login --email you@example.com\n" +
			"  grealth login --email you@example.com --token \"$TOKEN\" --verify",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if email == "" {
				email = cfg.Auth.UserIdentity
			}
			if _, err := mail.ParseAddress(email); err != nil {
				return &ValidationError{Field: "email", Value: email, Reason: "not a valid email address", Example: "--email you@example.com"}
			}

			if token == "" {
				token, err = readToken(cmd)
				if err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return NewValidationError("token", "", "a token is required")
			}

			if verify {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				api := chat.NewClient(cfg, a.logger)
				if _, err := api.StartSession(ctx, token); err != nil {
					return NewCommandError("login", "verify", "the service did not accept the token", err)
				}
			}

			cfg.Auth.UserIdentity = email
			cfg.Auth.Token = token
			path, err := a.saveConfig(cfg)
			if err != nil {
				return err
			}
			a.logger.Printf("LOGIN | identity=%s verified=%t", email, verify)
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (saved to %s)\n", email, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "your email address")
	cmd.Flags().StringVarP(&token, "token", "t", "", "bearer token from the identity provider")
	cmd.Flags().BoolVar(&verify, "verify", false, "start a session to check the token before saving")
	return cmd
}

func (a *app) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Auth.Token == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			cfg.Auth.Token = ""
			if _, err := a.saveConfig(cfg); err != nil {
				return err
			}
			a.logger.Printf("LOGOUT | identity=%s", cfg.Auth.UserIdentity)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// readToken prompts for a token without echo on a terminal, or reads the
// first line of piped input.
func readToken(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && f == os.Stdin && IsTTY() {
		fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read token: %w", err)
	}
	return line, nil
}
