// Package ipc carries control commands between parley invocations and the
// owner session over a unix socket, one JSON line per message.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
)

// Commands accepted by the session owner.
const (
	CommandToggle = "toggle"
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandStatus = "status"
	CommandText   = "text"
	CommandQuit   = "quit"
)

var knownCommands = []string{CommandToggle, CommandStart, CommandStop, CommandStatus, CommandText, CommandQuit}

// MaxMessageBytes bounds one encoded request or response line.
const MaxMessageBytes = 64 << 10

// ErrMessageTooLarge is returned for lines longer than MaxMessageBytes.
var ErrMessageTooLarge = errors.New("ipc message exceeds size limit")

// Request is one command.
type Request struct {
	Command string `json:"command"`
}

// Response answers one Request.
type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	Capturing bool   `json:"capturing,omitempty"`
	Family    string `json:"family,omitempty"`
	Device    string `json:"device,omitempty"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// KnownCommand reports whether command is part of the protocol.
func KnownCommand(command string) bool {
	return slices.Contains(knownCommands, strings.TrimSpace(command))
}

// Commands lists the protocol commands in a stable order.
func Commands() []string {
	return slices.Clone(knownCommands)
}

func newReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, MaxMessageBytes)
}

// readLine returns one newline-terminated message without copying past the limit.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, ErrMessageTooLarge
	}
	return line, err
}

func writeMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(data) >= MaxMessageBytes {
		return ErrMessageTooLarge
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
