package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/ipc"
)

const forwardTimeout = 220 * time.Millisecond

var errNoSession = errors.New("no active parley session; start one with `parley run`")

func newToggleCommand(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Start or stop capture; becomes the owner session when none is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			socketPath, err := ipc.RuntimeSocketPath()
			if err != nil {
				return err
			}

			resp, handled, err := tryForward(cmd.Context(), socketPath, ipc.CommandToggle)
			if handled {
				if err != nil {
					return err
				}
				printState(cmd, resp)
				return nil
			}
			return runOwner(cmd, env, ownerOptions{autoStart: true})
		},
	}
}

func newForwardCommand(command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := forwardOrFail(cmd.Context(), command)
			if err != nil {
				return err
			}
			printState(cmd, resp)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the running session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			socketPath, err := ipc.RuntimeSocketPath()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "idle")
				return nil
			}

			resp, handled, err := tryForward(cmd.Context(), socketPath, ipc.CommandStatus)
			if !handled {
				fmt.Fprintln(cmd.OutOrStdout(), "idle")
				return nil
			}
			if err != nil {
				return err
			}
			if resp.State == "" {
				resp.State = "idle"
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.State)
			if resp.Family != "" || resp.Device != "" {
				st := newStyles(cmd.OutOrStdout())
				if resp.Family != "" {
					fmt.Fprintln(cmd.OutOrStdout(), st.field("model", resp.Family))
				}
				if resp.Device != "" {
					fmt.Fprintln(cmd.OutOrStdout(), st.field("input", resp.Device))
				}
			}
			return nil
		},
	}
}

func newTextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "text",
		Short: "Print the most recent transcript of the running session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := forwardOrFail(cmd.Context(), ipc.CommandText)
			if err != nil {
				return err
			}
			if resp.Text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			}
			return nil
		},
	}
}

func printState(cmd *cobra.Command, resp ipc.Response) {
	msg := resp.Message
	if msg == "" {
		msg = resp.State
	}
	if msg != "" {
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	}
}

func forwardOrFail(ctx context.Context, command string) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		return ipc.Response{}, errNoSession
	}
	return resp, err
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.Unreachable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
