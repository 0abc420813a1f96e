package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/zhouzirui/streamchat/internal/client/orchestrator"
	"github.com/zhouzirui/streamchat/internal/client/render"
	"github.com/zhouzirui/streamchat/internal/client/session"
	"github.com/zhouzirui/streamchat/internal/client/transcript"
)

type options struct {
	server      string
	sessionFile string
	plain       bool
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "chat",
		Short:         "Chat with the streamchat relay from a terminal",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", envOr("STREAMCHAT_SERVER", "http://localhost:8080"), "relay base URL")
	cmd.Flags().StringVar(&opts.sessionFile, "session-file", os.Getenv("STREAMCHAT_SESSION_FILE"), "where the session id is kept (default ~/.streamchat/session.json)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "disable colours and markdown rendering")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func sessionStorage(path string) session.Storage {
	if path == "" {
		p, err := session.DefaultPath()
		if err != nil {
			zap.S().Warnw("no home directory, session id will not persist", "err", err)
			return nil
		}
		path = p
	}
	return session.NewFileStorage(path)
}

func run(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	zlogger := newLogger(opts.verbose)
	defer func() { _ = zlogger.Sync() }()
	undo := zap.ReplaceGlobals(zlogger)
	defer undo()

	ansi, width := false, 0
	if f, ok := out.(*os.File); ok && !opts.plain && term.IsTerminal(int(f.Fd())) {
		ansi = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
	}

	display := render.NewTerminal(out, ansi, width)
	ids := session.NewManager(sessionStorage(opts.sessionFile))
	store := transcript.New()
	store.Subscribe(display.Handle)

	orch := orchestrator.New(opts.server, ids, store)

	display.Info(fmt.Sprintf("session %s · %s · /reset clears, /exit quits", ids.ID(), opts.server))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		display.Prompt()
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			store.Reset()
			display.Info("transcript cleared")
			continue
		}

		if err := submit(ctx, orch, line, lines, display); err != nil {
			return nil
		}
	}
}

// submit runs one turn. Lines typed while it streams are dropped with a
// notice; a non-nil return means the REPL should stop.
func submit(ctx context.Context, orch *orchestrator.Orchestrator, line string, lines <-chan string, display *render.Terminal) error {
	done := make(chan error, 1)
	go func() { done <- orch.Submit(ctx, line) }()

	for {
		select {
		case err := <-done:
			var te *orchestrator.TurnError
			switch {
			case err == nil:
			case errors.As(err, &te):
				display.Error(te.UserMessage())
			case errors.Is(err, context.Canceled):
				return err
			default:
				display.Error(orchestrator.GenericErrorMessage)
			}
			return nil
		case l, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if strings.TrimSpace(l) != "" {
				display.Info("still answering, input ignored")
			}
		}
	}
}
