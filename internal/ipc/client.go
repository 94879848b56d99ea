package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// Client sends commands to the owner listening on Path.
type Client struct {
	Path    string
	Timeout time.Duration
}

// Do performs one request/response exchange. The exchange ends at the earlier
// of the ctx deadline and Timeout; cancelling ctx aborts it.
func (c Client) Do(ctx context.Context, req Request) (Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := writeMessage(conn, req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := readLine(newReader(conn))
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Send is a one-shot Client.Do.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	return Client{Path: path, Timeout: timeout}.Do(ctx, req)
}

// Probe reports whether a responsive owner is listening on path. Nobody
// listening is (false, nil); an owner that answers too slowly is an error.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	switch {
	case err == nil:
		return true, nil
	case Unreachable(err):
		return false, nil
	default:
		return false, fmt.Errorf("probe socket: %w", err)
	}
}

// Unreachable reports dial failures that mean no owner is running: the socket
// file is missing, or it exists but nothing accepts on it.
func Unreachable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		strings.Contains(err.Error(), "no such file or directory")
}
