// Package app implements the parley command tree.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/logging"
)

// Runner executes one CLI invocation against the given streams.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Execute runs args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// exitError carries a non-zero exit code whose message was already printed.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError marks argument mistakes; they exit 2 with usage text.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func (r Runner) Execute(ctx context.Context, args []string) int {
	env := &commandEnv{runner: r}
	root := newRootCommand(env)
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)

	err := root.ExecuteContext(ctx)
	env.close()
	if err == nil {
		return 0
	}

	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	var usage usageError
	if errors.As(err, &usage) || isCobraUsageError(err) {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, root.UsageString())
		return 2
	}

	fmt.Fprintf(r.Stderr, "error: %v\n", err)
	if env.logger != nil {
		env.logger.Error("command failed", "error", err.Error())
	}
	return 1
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "arg(s), received")
}

// commandEnv is the per-invocation state shared by subcommands.
type commandEnv struct {
	runner     Runner
	configPath string

	loaded     config.Loaded
	logger     *slog.Logger
	logRuntime logging.Runtime
	ready      bool
}

// setup loads config and opens the runtime log. Commands that need neither skip it.
func (e *commandEnv) setup(cmd *cobra.Command) error {
	if e.ready {
		return nil
	}

	loaded, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.loaded = loaded

	logFile, err := config.LogFile(loaded.Config)
	if err != nil {
		return err
	}
	logRuntime, err := logging.New(logging.Options{Level: loaded.Config.Log.Level, File: logFile})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	e.logRuntime = logRuntime
	e.logger = e.runner.Logger
	if e.logger == nil {
		e.logger = logRuntime.Logger
	}

	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(e.runner.Stderr, "warning: %s\n", msg)
		e.logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	e.logger.Info("command start",
		"command", cmd.Name(),
		"config", loaded.Path,
		"log", logRuntime.Path,
	)
	e.ready = true
	return nil
}

func (e *commandEnv) close() {
	_ = e.logRuntime.Close()
}

func (e *commandEnv) config() config.Config {
	return e.loaded.Config
}

func newRootCommand(env *commandEnv) *cobra.Command {
	root := &cobra.Command{
		Use:   "parley",
		Short: "Speech-to-chat for conference sessions",
		Long: `parley captures microphone audio, finds speech with a VAD, transcribes each
utterance with a local recognizer and forwards the text into a conference chat.

Run "parley run" to start the owner session, then control it with
"parley toggle", "parley status" and "parley text".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipSetup"] == "true" {
				return nil
			}
			return env.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&env.configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/parley/config.yaml)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.AddCommand(
		newRunCommand(env),
		newToggleCommand(env),
		newForwardCommand("start", "Open the microphone in the running session"),
		newForwardCommand("stop", "Close the microphone and discard buffered audio"),
		newForwardCommand("quit", "Shut down the running session"),
		newStatusCommand(),
		newTextCommand(),
		newDevicesCommand(),
		newDoctorCommand(env),
		newConfigCommand(env),
		newModelsCommand(env),
		newTranscriptsCommand(env),
		newTranscribeCommand(env),
		newVersionCommand(),
	)
	return root
}
