package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// SocketName is the owner socket file name inside the runtime directory.
const SocketName = "parley.sock"

// ErrAlreadyRunning reports a responsive owner on the socket.
var ErrAlreadyRunning = errors.New("parley session already running")

// RuntimeSocketPath returns $XDG_RUNTIME_DIR/parley.sock.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// AcquireOptions tunes stale-socket recovery.
type AcquireOptions struct {
	// ProbeTimeout bounds the status probe sent to an existing socket.
	ProbeTimeout time.Duration
	// Retries is how many times a reclaimed path is listened on again.
	Retries int
	// Rescue runs after a stale socket file is removed.
	Rescue func(context.Context) error
}

// Acquire listens on path. A socket file left by a dead owner is removed and
// the listen retried; a live owner yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 200 * time.Millisecond
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		if err := reclaim(ctx, path, opts); err != nil {
			return nil, err
		}
		if attempt >= opts.Retries {
			return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, opts.Retries)
		}

		backoff := time.Duration(25*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// reclaim removes path when nothing answers on it. An inconclusive probe
// leaves the file alone.
func reclaim(ctx context.Context, path string, opts AcquireOptions) error {
	alive, err := Probe(ctx, path, opts.ProbeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	if opts.Rescue != nil {
		_ = opts.Rescue(ctx)
	}
	return nil
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
