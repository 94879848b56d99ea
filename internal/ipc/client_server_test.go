package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serve starts Serve on a fresh socket and returns its path plus a shutdown func.
func serve(t *testing.T, handler HandlerFunc) (string, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), SocketName)
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, listener, handler) }()

	var stopped bool
	shutdown := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(shutdown)
	return socketPath, shutdown
}

// rawServer accepts one connection and lets fn drive it.
func rawServer(t *testing.T, fn func(net.Conn)) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), SocketName)
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}()
	return socketPath
}

func TestSendRoundTrip(t *testing.T) {
	socketPath, _ := serve(t, func(_ context.Context, req Request) Response {
		if req.Command != CommandStatus {
			return Response{OK: false, Error: "unexpected " + req.Command}
		}
		return Response{OK: true, State: "capturing", Capturing: true, Family: "hmm", Text: "Hello."}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, Response{OK: true, State: "capturing", Capturing: true, Family: "hmm", Text: "Hello."}, resp)
}

func TestClientHonorsContextDeadline(t *testing.T) {
	socketPath := rawServer(t, func(conn net.Conn) {
		_, _ = newReader(conn).ReadSlice('\n')
		time.Sleep(300 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := Client{Path: socketPath, Timeout: 5 * time.Second}.Do(ctx, Request{Command: CommandStatus})
	require.Error(t, err)
	require.Less(t, time.Since(started), 250*time.Millisecond)
}

func TestSendDecodeResponseError(t *testing.T) {
	socketPath := rawServer(t, func(conn net.Conn) {
		_, _ = bufio.NewReader(conn).ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	})

	_, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	socketPath := rawServer(t, func(conn net.Conn) {
		_, _ = bufio.NewReader(conn).ReadBytes('\n')
	})

	_, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	socketPath, _ := serve(t, func(context.Context, Request) Response { return Response{OK: true} })

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "decode request")
}

func TestServeRejectsOversizedRequest(t *testing.T) {
	socketPath, _ := serve(t, func(context.Context, Request) Response { return Response{OK: true} })

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	payload := `{"command":"` + strings.Repeat("x", MaxMessageBytes) + "\"}\n"
	go func() { _, _ = conn.Write([]byte(payload)) }()

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, ErrMessageTooLarge.Error())
}

func TestServeRecoversHandlerPanic(t *testing.T) {
	socketPath, _ := serve(t, func(_ context.Context, req Request) Response {
		if req.Command == CommandToggle {
			panic("boom")
		}
		return Response{OK: true, State: "ready"}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandToggle}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "handle toggle: boom")

	resp, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
}

func TestServeRejectsUnknownCommand(t *testing.T) {
	calls := make(chan string, 1)
	socketPath, shutdown := serve(t, func(_ context.Context, req Request) Response {
		calls <- req.Command
		return Response{OK: true}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: "paste"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")

	shutdown()
	require.Empty(t, calls)
}

func TestProbe(t *testing.T) {
	socketPath, shutdown := serve(t, func(_ context.Context, req Request) Response {
		return Response{OK: req.Command == CommandStatus, State: "ready"}
	})

	alive, err := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, alive)

	shutdown()

	alive, err = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestUnreachable(t *testing.T) {
	require.False(t, Unreachable(nil))
	require.True(t, Unreachable(os.ErrNotExist))
	require.True(t, Unreachable(syscall.ECONNREFUSED))
	require.True(t, Unreachable(errors.New("dial unix /tmp/parley.sock: connect: no such file or directory")))
	require.False(t, Unreachable(errors.New("read response: i/o timeout")))

	_, err := Send(context.Background(), filepath.Join(t.TempDir(), SocketName), Request{Command: CommandStatus}, 50*time.Millisecond)
	require.True(t, Unreachable(err), err)
}

func TestKnownCommand(t *testing.T) {
	for _, cmd := range Commands() {
		require.True(t, KnownCommand(cmd), cmd)
	}
	require.True(t, KnownCommand(" status "))
	require.False(t, KnownCommand(""))
	require.False(t, KnownCommand("cancel"))

	cmds := Commands()
	cmds[0] = "mutated"
	require.Equal(t, CommandToggle, Commands()[0])
}
