package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// RequestTimeout bounds reading a request and writing its response.
const RequestTimeout = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx ends, then waits for
// in-flight connections. Unknown commands never reach handler.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(RequestTimeout))
	resp := dispatch(ctx, conn, handler)
	_ = conn.SetWriteDeadline(time.Now().Add(RequestTimeout))
	_ = writeMessage(conn, resp)
}

func dispatch(ctx context.Context, conn net.Conn, handler Handler) (resp Response) {
	line, err := readLine(newReader(conn))
	if err != nil {
		return failure("read request: %v", err)
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return failure("decode request: %v", err)
	}
	if !KnownCommand(req.Command) {
		return failure("unknown command %q", req.Command)
	}

	defer func() {
		if r := recover(); r != nil {
			resp = failure("handle %s: %v", req.Command, r)
		}
	}()
	return handler.Handle(ctx, req)
}

func failure(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}
