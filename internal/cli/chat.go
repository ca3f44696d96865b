// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for grealth.
//
// Replies stream into the terminal as they arrive. Input has readline
// style editing and history (peterh/liner); slash commands attach files,
// play replies aloud, change language and manage saved conversations.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/Anthonyvijay10/GrealthAI/internal/chat"
	"github.com/Anthonyvijay10/GrealthAI/internal/config"
	"github.com/Anthonyvijay10/GrealthAI/internal/playback"
	"github.com/Anthonyvijay10/GrealthAI/internal/render"
	"github.com/Anthonyvijay10/GrealthAI/internal/session"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
)

// HistoryFileName holds input history in the config directory.
const HistoryFileName = "chat_history"

func (a *app) newChatCmd() *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: "Start an interactive conversation with the assistant.\n\n" +
			"Type a message and press Enter. Type /help for commands.",
		Example: "  grealth chat\n  grealth chat --language hindi\n  grealth chat --resume 1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, resume)
		},
	}
	cmd.Flags().StringVarP(&resume, "resume", "r", "", "continue a saved conversation (id or list number)")
	return cmd
}

// =============================================================================
// INPUT WITH HISTORY
// =============================================================================

// lineReader reads one line of user input per call.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close() error
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, HistoryFileName),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt. Non-empty input
// is added to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	c.SaveHistory()
	return c.line.Close()
}

// scanReader reads input lines from a non-terminal reader.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxStdinMessage)
	return &scanReader{sc: sc}
}

func (s *scanReader) ReadInput(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

func (s *scanReader) Close() error { return nil }

// =============================================================================
// CHAT SESSION
// =============================================================================

// chatSession is the state of one interactive chat.
type chatSession struct {
	app         *app
	svc         *chat.Service
	transcripts storage.Store
	player      *playback.CommandPlayer
	renderer    *render.Renderer
	printer     *render.Printer
	detach      func()
	styles      cliStyles
	out         io.Writer
	errOut      io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc

	// Uploads run in the background while the user keeps chatting
	uploads sync.WaitGroup
	pending atomic.Int32
}

// runChat runs the interactive loop until /quit, EOF or Ctrl+C at the prompt.
func (a *app) runChat(cmd *cobra.Command, resume string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	styles := a.styles(cfg, out)

	transcripts, err := a.openTranscripts(cfg)
	if err != nil {
		// Chat still works; saving does not
		a.logger.Printf("TRANSCRIPTS_UNAVAILABLE | error=%q", err.Error())
		fmt.Fprintf(errOut, "%s saved conversations unavailable: %v\n", styles.Warning.Render("[Warning]"), err)
		transcripts = nil
	}
	if transcripts != nil {
		defer transcripts.Close()
	}

	svc, player, err := a.newService(cfg, transcripts)
	if err != nil {
		return err
	}
	defer player.Close()

	renderer := a.newRenderer(cfg, out)
	s := &chatSession{
		app:         a,
		svc:         svc,
		transcripts: transcripts,
		player:      player,
		renderer:    renderer,
		printer:     render.NewPrinter(out, renderer),
		styles:      styles,
		out:         out,
		errOut:      errOut,
	}
	player.OnSaved = func(id, path string) {
		if player.Command == "" {
			fmt.Fprintf(out, "%s saved to %s\n", styles.Info.Render("[Audio]"), path)
		}
	}
	s.detach = s.printer.Attach(svc.Records())
	defer func() {
		// Close saves before the printer goes away
		if err := svc.Close(); err != nil {
			fmt.Fprintf(errOut, "%s %v\n", styles.Error.Render("[Error]"), err)
		}
		s.detach()
	}()

	if resume != "" {
		if err := s.resume(resume); err != nil {
			return err
		}
	}

	// Config file changes apply to the next exchange
	ctx, stopWatch := context.WithCancel(cmd.Context())
	defer stopWatch()
	if path, err := a.configFile(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := config.Watch(ctx, path, s.onConfigChange); err != nil {
				a.logger.Printf("CONFIG_WATCH_FAILED | path=%s error=%q", path, err.Error())
			}
		}
	}

	// First Ctrl+C during a reply cancels it
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				if s.cancelCurrent() {
					fmt.Fprintln(errOut, "\n"+styles.Warning.Render("[Cancelled]"))
				}
			}
		}
	}()

	var input lineReader
	if f, ok := cmd.InOrStdin().(*os.File); ok && f == os.Stdin && IsTTY() {
		input = NewChatCLI()
	} else {
		input = newScanReader(cmd.InOrStdin())
	}
	defer input.Close()

	s.printWelcome()
	return s.loop(input)
}

// loop reads and handles input until the user leaves.
func (s *chatSession) loop(input lineReader) error {
	defer s.waitUploads()
	for {
		line, err := input.ReadInput(s.styles.Prompt.Render("grealth> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or end of piped input
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			shouldContinue, err := s.handleSlashCommand(line)
			if err != nil {
				fmt.Fprintf(s.errOut, "%s %v\n", s.styles.Error.Render("[Error]"), err)
			}
			if !shouldContinue {
				return nil
			}
			continue
		}

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		s.send(chat.Request{Message: line})
	}
}

// send runs one exchange. Failures are shown by the printer as system
// records, so nothing is returned.
func (s *chatSession) send(req chat.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.svc.Send(ctx, req)

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
	cancel()
}

// upload starts a file exchange in the background and returns to the
// prompt. The reply streams in like any other; closer is released once
// the exchange ends.
func (s *chatSession) upload(req chat.Request, closer io.Closer) {
	s.printer.Notice(fmt.Sprintf("%s %s sent, the reply will appear when ready", s.styles.Info.Render("[Upload]"), req.File.Name))
	s.uploads.Add(1)
	s.pending.Add(1)
	result := s.svc.Submit(req)

	go func() {
		defer s.uploads.Done()
		defer s.pending.Add(-1)
		defer closer.Close()
		out := <-result
		s.app.logger.Printf("CHAT_UPLOAD_DONE | file=%s state=%s", req.File.Name, out.State)
	}()
}

// waitUploads blocks until background uploads have finished.
func (s *chatSession) waitUploads() {
	if n := s.pending.Load(); n > 0 {
		s.printer.Notice(fmt.Sprintf("%s waiting for %d upload(s) to finish", s.styles.Info.Render("[Upload]"), n))
	}
	s.uploads.Wait()
}

// cancelCurrent cancels the running exchange and reports whether there
// was one.
func (s *chatSession) cancelCurrent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

func (s *chatSession) onConfigChange(cfg *config.Config, err error) {
	if err != nil {
		fmt.Fprintf(s.errOut, "%s reload failed, keeping previous settings: %v\n", s.styles.Warning.Render("[Config]"), err)
		return
	}
	if err := s.app.applyOverrides(cfg); err != nil {
		fmt.Fprintf(s.errOut, "%s %v\n", s.styles.Warning.Render("[Config]"), err)
		return
	}
	s.svc.SetConfig(cfg)
	fmt.Fprintf(s.out, "%s reloaded (language: %s)\n", s.styles.Info.Render("[Config]"), cfg.Exchange.TargetLanguage)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func (s *chatSession) handleSlashCommand(input string) (bool, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/file", "/f":
		if len(args) == 0 {
			return true, errors.New("usage: /file <path> [message]")
		}
		file, closer, err := openUpload(args[0])
		if err != nil {
			return true, err
		}
		s.upload(chat.Request{Message: strings.Join(args[1:], " "), File: file}, closer)
		return true, nil

	case "/play", "/p":
		return true, s.togglePlayback(args)

	case "/lang", "/language":
		return true, s.handleLanguage(args)

	case "/save":
		return true, s.save()

	case "/history":
		return true, s.listHistory()

	case "/resume":
		if len(args) != 1 {
			return true, errors.New("usage: /resume <number|id>")
		}
		return true, s.resume(args[0])

	case "/login":
		if len(args) != 2 {
			return true, errors.New("usage: /login <email> <token>")
		}
		s.svc.Login(args[0], args[1])
		fmt.Fprintf(s.out, "%s logged in as %s\n", s.styles.Success.Render("[OK]"), args[0])
		return true, nil

	case "/logout":
		s.svc.Logout()
		fmt.Fprintf(s.out, "%s logged out\n", s.styles.Success.Render("[OK]"))
		return true, nil

	case "/status", "/s":
		s.printStatus()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// togglePlayback plays or pauses reply n (default: the latest).
func (s *chatSession) togglePlayback(args []string) error {
	records := s.svc.Records().Records()
	n := 0
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return NewValidationError("reply number", args[0], "must be a positive number")
		}
		n = v
	} else {
		n = countReplies(records)
	}
	id, ok := replyID(records, n)
	if !ok {
		return &NotFoundError{Resource: "reply", ID: strconv.Itoa(n)}
	}

	playing, err := s.svc.TogglePlayback(context.Background(), id)
	if err != nil {
		return err
	}
	if playing {
		fmt.Fprintf(s.out, "%s reply %d\n", s.styles.Info.Render("[Playing]"), n)
	} else {
		fmt.Fprintf(s.out, "%s reply %d\n", s.styles.Info.Render("[Paused]"), n)
	}
	return nil
}

func (s *chatSession) handleLanguage(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(s.out, s.styles.Field("Language:", s.svc.Language()))
		fmt.Fprintln(s.out, s.styles.Dim.Render("Available: "+strings.Join(config.LanguageNames(), ", ")))
		return nil
	}
	lang, err := s.svc.SetLanguage(strings.Join(args, " "))
	if err != nil {
		return &ValidationError{Field: "language", Value: strings.Join(args, " "), Reason: err.Error()}
	}
	fmt.Fprintf(s.out, "%s replies will be in %s\n", s.styles.Success.Render("[OK]"), lang)
	return nil
}

func (s *chatSession) save() error {
	if s.transcripts == nil {
		return errors.New("saved conversations are unavailable")
	}
	t, err := s.svc.Save()
	if err != nil {
		return err
	}
	if t.IsEmpty() {
		fmt.Fprintln(s.out, s.styles.Dim.Render("Nothing to save yet."))
		return nil
	}
	fmt.Fprintf(s.out, "%s saved %q (%s)\n", s.styles.Success.Render("[OK]"), t.Title, t.ID)
	return nil
}

func (s *chatSession) listHistory() error {
	if s.transcripts == nil {
		return errors.New("saved conversations are unavailable")
	}
	metas, err := s.transcripts.List()
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, storage.FormatList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(s.out)
	}
	return nil
}

// resume replaces the conversation with a saved one and prints it.
// The printer is detached while records are restored so they are shown
// once, as a transcript.
func (s *chatSession) resume(ref string) error {
	if s.transcripts == nil {
		return errors.New("saved conversations are unavailable")
	}
	saved, err := resolveTranscript(s.transcripts, ref)
	if err != nil {
		return err
	}

	s.detach()
	t, err := s.svc.Resume(saved.ID)
	s.detach = s.printer.Attach(s.svc.Records())
	if err != nil {
		return err
	}
	if t.Language != "" {
		s.svc.SetLanguage(t.Language)
	}

	fmt.Fprint(s.out, s.renderer.Transcript(t))
	fmt.Fprintln(s.out, s.styles.Separator(0))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *chatSession) printWelcome() {
	cfg := s.svc.Config()
	fmt.Fprintln(s.out, s.styles.Title.Render("Grealth health assistant"))
	fmt.Fprintln(s.out, s.styles.Separator(30))
	fmt.Fprintln(s.out, s.styles.Field("Service:", cfg.Server.BaseURL))
	fmt.Fprintln(s.out, s.styles.Field("Language:", s.svc.Language()))
	if st := s.svc.Sessions().GetStatus(); st.LoggedIn {
		fmt.Fprintln(s.out, s.styles.Field("User:", st.Identity))
	} else {
		fmt.Fprintln(s.out, s.styles.Field("User:", s.styles.Warning.Render("not logged in (grealth login)")))
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, s.styles.Dim.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(s.out, s.styles.Dim.Render("The assistant gives general information, not medical advice."))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printHelp() {
	rows := [][2]string{
		{"/file <path> [msg]", "Send a file for analysis in the background"},
		{"/play [n]", "Play or pause reply n aloud (default: latest)"},
		{"/lang [name]", "Show or change the reply language"},
		{"/save", "Save this conversation"},
		{"/history", "List saved conversations"},
		{"/resume <n|id>", "Continue a saved conversation"},
		{"/login <email> <tok>", "Set credentials for this chat"},
		{"/logout", "Drop the session and credentials"},
		{"/status", "Show session status"},
		{"/quit", "Leave (also: exit, Ctrl+D)"},
	}
	fmt.Fprintln(s.out, s.styles.Title.Render("Commands"))
	for _, r := range rows {
		fmt.Fprintln(s.out, "  "+s.styles.Field(r[0], r[1]))
	}
	fmt.Fprintln(s.out, s.styles.Dim.Render("Ctrl+C cancels a reply in progress."))
}

func (s *chatSession) printStatus() {
	st := s.svc.Sessions().GetStatus()
	fmt.Fprintln(s.out, s.styles.Title.Render("Session"))
	if !st.LoggedIn {
		fmt.Fprintln(s.out, "  "+s.styles.Field("Logged in:", "no"))
		return
	}
	fmt.Fprintln(s.out, "  "+s.styles.Field("User:", st.Identity))
	if !st.Active {
		fmt.Fprintln(s.out, "  "+s.styles.Field("Session:", "none (starts with the next message)"))
		return
	}
	fmt.Fprintln(s.out, "  "+s.styles.Field("Session age:", session.FormatDuration(st.Age)))
	fmt.Fprintln(s.out, "  "+s.styles.Field("Idle:", session.FormatDuration(st.IdleTime)))
	fmt.Fprintln(s.out, "  "+s.styles.Field("Expires in:", session.FormatDuration(st.RemainingTime)))
}
