// Package audit records what the execution engine did to the machine.
// Entries are append-only: there is no update or delete path.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/redact"
)

const defaultMaxLogBytes = 10 << 20

// Entry is one audit record.
type Entry struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	ActionID     string    `json:"actionId,omitempty"`
	ActionType   string    `json:"actionType,omitempty"`
	TargetID     string    `json:"targetId,omitempty"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Output       string    `json:"output,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Repository stores entries. ListAudit returns a session's entries in
// append order.
type Repository interface {
	AppendAudit(ctx context.Context, e *Entry) error
	ListAudit(ctx context.Context, sessionID string) ([]Entry, error)
}

// Logger appends entries to the repository and, when a mirror path is
// configured, to a JSONL file with secrets redacted.
type Logger struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	path     string
	file     *os.File
	maxBytes int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithMirror writes every entry to a JSONL file at path as well.
func WithMirror(path string) Option {
	return func(l *Logger) { l.path = path }
}

// WithMaxBytes sets the size at which the mirror file is rotated to
// path.1.
func WithMaxBytes(n int64) Option {
	return func(l *Logger) { l.maxBytes = n }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

func New(repo Repository, log *zap.Logger, opts ...Option) (*Logger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Logger{repo: repo, log: log, now: time.Now, maxBytes: defaultMaxLogBytes}
	for _, o := range opts {
		o(l)
	}
	if l.path != "" {
		if err := l.open(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Logger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open audit mirror: %w", err)
	}
	l.file = file
	return nil
}

// Record fills in the id and timestamp when missing and appends the entry.
// The repository write is authoritative; a mirror failure is logged and
// does not fail the call.
func (l *Logger) Record(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if err := l.repo.AppendAudit(ctx, &e); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	if err := l.mirror(e); err != nil {
		l.log.Warn("audit mirror write failed", zap.String("path", l.path), zap.Error(err))
	}
	return &e, nil
}

func (l *Logger) List(ctx context.Context, sessionID string) ([]Entry, error) {
	return l.repo.ListAudit(ctx, sessionID)
}

func (l *Logger) mirror(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	e.Output = redact.Redact(e.Output)
	e.ErrorMessage = redact.Redact(e.ErrorMessage)

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := l.rotateIfNeeded(int64(len(data))); err != nil {
		return err
	}
	_, err = l.file.Write(data)
	return err
}

func (l *Logger) rotateIfNeeded(incoming int64) error {
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size()+incoming <= l.maxBytes || info.Size() == 0 {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
