package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireFreshPath(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "nested", SocketName)

	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{})
	require.NoError(t, err)
	defer listener.Close()

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAcquireRecoversStaleSocket(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), SocketName)
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	rescues := 0
	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{
		ProbeTimeout: 50 * time.Millisecond,
		Retries:      2,
		Rescue: func(context.Context) error {
			rescues++
			return nil
		},
	})
	require.NoError(t, err)
	defer listener.Close()
	require.Equal(t, 1, rescues)
}

func TestAcquireReturnsAlreadyRunningWhenSocketResponsive(t *testing.T) {
	t.Parallel()

	socketPath, _ := serve(t, func(context.Context, Request) Response {
		return Response{OK: true, State: "capturing"}
	})

	_, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 80 * time.Millisecond, Retries: 1})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireDoesNotUnlinkWhenProbeInconclusive(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), SocketName)
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				time.Sleep(250 * time.Millisecond)
			}()
		}
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 30 * time.Millisecond})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "probe existing socket")

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
	require.NoError(t, listener.Close())
	<-acceptDone
}

func TestRuntimeSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := RuntimeSocketPath()
	require.Error(t, err)

	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, SocketName), path)
}
