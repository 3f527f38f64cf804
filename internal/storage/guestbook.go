package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
)

// Common errors
var (
	ErrClosed         = errors.New("storage: guestbook closed")
	ErrUnsupportedURL = errors.New("storage: unsupported database url")
	ErrEmptyMessage   = errors.New("storage: author and message are required")
)

var messagePrefix = []byte("msg/")

// Message is one guestbook entry.
type Message struct {
	Author  string `json:"author"`
	Message string `json:"message"`
}

// Options configures a Guestbook.
type Options struct {
	// Dir is the Badger directory. Empty means in-memory.
	Dir string

	// GCInterval is the interval between value log GC runs. Ignored in
	// memory mode. Default: 10m
	GCInterval time.Duration

	// GCDiscardRatio is passed to RunValueLogGC. Default: 0.5
	GCDiscardRatio float64

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultOptions returns on-disk options for dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:            dir,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// ParseURL maps a database url onto Options.
//
//	badger:///var/lib/servus   on-disk store in /var/lib/servus
//	badger:data                on-disk store in ./data
//	memory:                    in-memory store
func ParseURL(raw string) (Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	switch u.Scheme {
	case "memory", "mem":
		return DefaultOptions(""), nil
	case "badger":
		dir := u.Path
		if dir == "" {
			dir = u.Opaque
		}
		if dir == "" {
			return Options{}, fmt.Errorf("%w: %q has no directory", ErrUnsupportedURL, raw)
		}
		return DefaultOptions(dir), nil
	default:
		return Options{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
}

// Guestbook stores messages in Badger. It is safe for concurrent use.
type Guestbook struct {
	db     *badger.DB
	opts   Options
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Open opens the guestbook described by a database url.
func Open(rawURL string, logger *slog.Logger) (*Guestbook, error) {
	opts, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return OpenGuestbook(opts, logger)
}

// OpenGuestbook opens or creates a guestbook.
func OpenGuestbook(opts Options, logger *slog.Logger) (*Guestbook, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = 10 * time.Minute
	}
	if opts.GCDiscardRatio <= 0 || opts.GCDiscardRatio >= 1 {
		opts.GCDiscardRatio = 0.5
	}

	bopts := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	bopts.SyncWrites = opts.SyncWrites

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	g := &Guestbook{
		db:     db,
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if opts.Dir == "" {
		close(g.doneCh)
	} else {
		go g.gcLoop()
	}

	logger.Info("guestbook opened", "dir", opts.Dir, "in_memory", opts.Dir == "")
	return g, nil
}

// Insert appends a message.
func (g *Guestbook) Insert(ctx context.Context, m Message) error {
	if m.Author == "" || m.Message == "" {
		return ErrEmptyMessage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := append(append([]byte(nil), messagePrefix...), ulid.Make().String()...)
	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	return g.wrap("insert", err)
}

// All returns every message in insertion order.
func (g *Guestbook) All(ctx context.Context) ([]Message, error) {
	messages := make([]Message, 0)

	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = messagePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var m Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, g.wrap("list", err)
	}
	return messages, nil
}

// Len returns the number of stored messages.
func (g *Guestbook) Len(ctx context.Context) (int, error) {
	n := 0
	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = messagePrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, g.wrap("count", err)
}

// Close stops background GC and closes the database. Later calls return
// the first call's result.
func (g *Guestbook) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopCh)
		<-g.doneCh

		if err := g.db.Close(); err != nil {
			g.closeErr = fmt.Errorf("close db: %w", err)
			return
		}
		g.logger.Info("guestbook closed")
	})
	return g.closeErr
}

func (g *Guestbook) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// gcLoop runs periodic value log garbage collection.
func (g *Guestbook) gcLoop() {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.runGC()
		case <-g.stopCh:
			return
		}
	}
}

func (g *Guestbook) runGC() {
	start := time.Now()
	rounds := 0
	for {
		err := g.db.RunValueLogGC(g.opts.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			g.logger.Error("value log gc failed", "error", err)
			return
		}
		rounds++
	}
	g.logger.Debug("value log gc completed", "rounds", rounds, "elapsed", time.Since(start))
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
