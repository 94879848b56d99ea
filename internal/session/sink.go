package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/journal"
	"github.com/parleyhq/parley/internal/pipeline"
)

// Sink receives every published transcript.
type Sink interface {
	Name() string
	Publish(context.Context, pipeline.Transcript) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	Label string
	Fn    func(context.Context, pipeline.Transcript) error
}

func (f SinkFunc) Name() string { return f.Label }

func (f SinkFunc) Publish(ctx context.Context, tr pipeline.Transcript) error {
	return f.Fn(ctx, tr)
}

// ChatSink forwards transcripts as chat messages into room.
func ChatSink(sender chat.Sender, room, from string) Sink {
	return SinkFunc{Label: "chat", Fn: func(ctx context.Context, tr pipeline.Transcript) error {
		return sender.Send(ctx, chat.Message{
			Type:      chat.MessageType,
			ID:        tr.ID,
			Room:      room,
			From:      from,
			Message:   tr.Text,
			Timestamp: tr.DecodedAt.UnixMilli(),
		})
	}}
}

// JournalSink appends transcripts to the local journal.
func JournalSink(j *journal.Journal, room, from string) Sink {
	return SinkFunc{Label: "journal", Fn: func(_ context.Context, tr pipeline.Transcript) error {
		return j.Append(journal.Entry{
			ID:        tr.ID,
			Room:      room,
			From:      from,
			Text:      tr.Text,
			Start:     tr.Start,
			Duration:  tr.Duration,
			DecodedAt: tr.DecodedAt,
		})
	}}
}

// WriterSink prints one line per transcript.
func WriterSink(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc{Label: "stdout", Fn: func(_ context.Context, tr pipeline.Transcript) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(w, tr.Text)
		return err
	}}
}
