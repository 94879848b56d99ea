// Package journal persists published transcripts in a local badger store.
package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "room/"

// Entry is one stored transcript.
type Entry struct {
	ID        string        `msgpack:"id"`
	Room      string        `msgpack:"room"`
	From      string        `msgpack:"from,omitempty"`
	Text      string        `msgpack:"text"`
	Start     time.Duration `msgpack:"start"`
	Duration  time.Duration `msgpack:"duration"`
	DecodedAt time.Time     `msgpack:"decoded_at"`
}

// Options configures Open.
type Options struct {
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// Journal is an append-only transcript log.
type Journal struct {
	db *badger.DB
}

// Open opens or creates the journal.
func Open(opts Options) (*Journal, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("journal dir is required")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the store.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores e under its room, ordered by DecodedAt.
func (j *Journal) Append(e Entry) error {
	if e.Room == "" {
		return errors.New("journal entry room is empty")
	}
	if e.ID == "" {
		return errors.New("journal entry id is empty")
	}
	if e.DecodedAt.IsZero() {
		e.DecodedAt = time.Now()
	}

	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	key := entryKey(e.Room, e.DecodedAt, e.ID)
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// List returns up to limit most recent entries of room, oldest first.
// A non-positive limit returns every entry.
func (j *Journal) List(room string, limit int) ([]Entry, error) {
	prefix := roomPrefix(room)
	var out []Entry

	err := j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.Reverse = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := msgpack.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode journal entry %q: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Rooms returns every room with at least one entry.
func (j *Journal) Rooms() ([]string, error) {
	var rooms []string
	err := j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		last := ""
		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), keyPrefix)
			escaped, _, ok := strings.Cut(rest, "/")
			if !ok || escaped == last {
				continue
			}
			last = escaped
			room, err := url.PathUnescape(escaped)
			if err != nil {
				return fmt.Errorf("decode journal room %q: %w", escaped, err)
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}

// Room names are path-escaped in keys so "/" inside a name stays in one segment.
func roomPrefix(room string) []byte {
	return []byte(keyPrefix + url.PathEscape(room) + "/")
}

// entryKey zero-pads the timestamp so byte order matches time order.
func entryKey(room string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", keyPrefix, url.PathEscape(room), at.UnixNano(), id))
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Error("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
	}
}

func (l badgerLogger) Warningf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
	}
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
