// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Anthonyvijay10/GrealthAI/internal/chat"
	"github.com/Anthonyvijay10/GrealthAI/internal/config"
	"github.com/Anthonyvijay10/GrealthAI/internal/playback"
	"github.com/Anthonyvijay10/GrealthAI/internal/render"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
)

// LogFileName is written in the config directory unless --verbose is set.
const LogFileName = "grealth.log"

// app holds the global flags and state shared by every command.
type app struct {
	version string
	commit  string
	date    string

	configPath string
	verbose    bool
	noColor    bool
	jsonOutput bool
	language   string
	baseURL    string

	logger  *log.Logger
	logFile *os.File
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	a := &app{version: version, commit: commit, date: date}
	rootCmd := a.rootCommand()

	err := rootCmd.Execute()
	a.closeLog()
	if err != nil {
		var shown silentError
		if errors.As(err, &shown) {
			os.Exit(GetExitCode(err))
		}
		DisplayError(os.Stderr, newStyles(os.Stderr, !a.noColor && colorsEnabled("auto", os.Stderr)), err, a.jsonOutput)
		os.Exit(GetExitCode(err))
	}
}

// NewRootCommand builds the command tree. Execute uses it; tests drive it
// directly with SetArgs and SetOut.
func NewRootCommand(version, commit, date string) *cobra.Command {
	a := &app{version: version, commit: commit, date: date}
	return a.rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "grealth",
		Short: "Terminal client for the Grealth health assistant",
		Long: "grealth talks to the Grealth health assistant: streamed answers with\n" +
			"health insights, file analysis, spoken replies and saved conversations.\n\n" +
			"Running grealth with no subcommand starts an interactive chat.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogging(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, "")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file path (default ~/.grealth/config.toml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log events to stderr instead of "+LogFileName)
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&a.jsonOutput, "json", false, "machine-readable output where supported")
	pf.StringVarP(&a.language, "language", "l", "", "reply language (name or BCP 47 tag)")
	pf.StringVar(&a.baseURL, "base-url", "", "override the assistant service URL")

	// Subcommands
	rootCmd.AddCommand(a.newChatCmd())
	rootCmd.AddCommand(a.newAskCmd())
	rootCmd.AddCommand(a.newUploadCmd())
	rootCmd.AddCommand(a.newHistoryCmd())
	rootCmd.AddCommand(a.newLoginCmd())
	rootCmd.AddCommand(a.newLogoutCmd())
	rootCmd.AddCommand(a.newConfigCmd())
	rootCmd.AddCommand(a.newRelayCmd())
	rootCmd.AddCommand(a.newVersionCmd())

	return rootCmd
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return NewJSONResponse("version", map[string]string{
					"version": a.version,
					"commit":  a.commit,
					"date":    a.date,
				}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "grealth version %s (commit: %s, built: %s)\n", a.version, a.commit, a.date)
			return nil
		},
	}
}

// =============================================================================
// LOGGING
// =============================================================================

// setupLogging sends event logs to the log file, or to stderr with
// --verbose. A log file that cannot be opened silences logging.
func (a *app) setupLogging(cmd *cobra.Command) error {
	if a.logger != nil {
		return nil
	}
	if a.verbose {
		a.logger = log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	} else {
		a.logger = log.New(io.Discard, "", 0)
		if err := config.EnsureConfigDir(); err == nil {
			dir, _ := config.ConfigDir()
			f, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err == nil {
				a.logFile = f
				a.logger = log.New(f, "", log.LstdFlags)
			}
		}
	}
	log.SetOutput(a.logger.Writer())
	return nil
}

func (a *app) closeLog() {
	if a.logFile != nil {
		log.SetOutput(os.Stderr)
		a.logger.SetOutput(io.Discard)
		a.logFile.Close()
		a.logFile = nil
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// loadConfig loads the config file and applies flag overrides.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if a.configPath != "" {
		loaded, err := config.LoadFromPath(a.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		loaded, err := config.Load()
		if loaded == nil {
			return nil, err
		}
		if err != nil {
			// Defaults are usable; say why the file was ignored
			a.logger.Printf("CONFIG_IGNORED | error=%q", err.Error())
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
		}
		cfg = loaded
	}
	return cfg, a.applyOverrides(cfg)
}

// applyOverrides applies --language and --base-url to cfg.
func (a *app) applyOverrides(cfg *config.Config) error {
	if a.language != "" {
		lang, err := config.NormalizeLanguage(a.language)
		if err != nil {
			return &ValidationError{
				Field:   "language",
				Value:   a.language,
				Reason:  err.Error(),
				Example: "--language spanish",
			}
		}
		cfg.Exchange.TargetLanguage = lang
	}
	if a.baseURL != "" {
		cfg.Server.BaseURL = strings.TrimRight(a.baseURL, "/")
	}
	return nil
}

// configFile returns the config file in use: --config, else the first
// existing TOML, JSON or YAML file, else the default TOML path.
func (a *app) configFile() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	for _, pathFn := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON, config.ConfigPathYAML} {
		path, err := pathFn()
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return config.ConfigPathTOML()
}

// saveConfig writes cfg to the config file in use.
func (a *app) saveConfig(cfg *config.Config) (string, error) {
	path, err := a.configFile()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return path, config.SaveTo(cfg, path)
}

// =============================================================================
// SHARED CONSTRUCTORS
// =============================================================================

// color reports whether output to w is styled.
func (a *app) color(cfg *config.Config, w io.Writer) bool {
	return !a.noColor && colorsEnabled(cfg.UI.Color, w)
}

func (a *app) styles(cfg *config.Config, w io.Writer) cliStyles {
	return newStyles(w, a.color(cfg, w))
}

// newRenderer creates a record renderer for output written to w.
func (a *app) newRenderer(cfg *config.Config, w io.Writer) *render.Renderer {
	width := cfg.UI.Width
	if width <= 0 {
		width = render.DefaultWidth
		if isTerminalWriter(w) {
			width = GetTerminalWidth()
		}
	}
	return render.New(w, render.Options{
		Width:    width,
		Color:    a.color(cfg, w),
		Markdown: cfg.UI.Markdown,
	})
}

// openTranscripts opens the configured transcript store.
func (a *app) openTranscripts(cfg *config.Config) (storage.Store, error) {
	dir, err := cfg.StorageDir()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.Backend, dir)
}

// newService creates a chat service with playback through an external
// command. transcripts may be nil.
func (a *app) newService(cfg *config.Config, transcripts storage.Store) (*chat.Service, *playback.CommandPlayer, error) {
	audioDir, err := cfg.AudioDir()
	if err != nil {
		return nil, nil, err
	}
	player := playback.NewCommandPlayer(audioDir, cfg.Playback.Command)

	svc := chat.New(cfg, chat.Options{
		Transcripts: transcripts,
		Player:      player,
		Logger:      a.logger,
	})
	player.OnFinished = func(id string) {
		if c := svc.Playback(); c != nil {
			c.Finished(id)
		}
	}
	return svc, player, nil
}
