// Package session tracks a cleanup session through its lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle position of a session.
type Status string

const (
	StatusNew              Status = "NEW"
	StatusScanned          Status = "SCANNED"
	StatusPlanned          Status = "PLANNED"
	StatusPendingApprovals Status = "PENDING_APPROVALS"
	StatusReadyToExecute   Status = "READY_TO_EXECUTE"
	StatusExecuting        Status = "EXECUTING"
	StatusCompleted        Status = "COMPLETED"
	StatusFailed           Status = "FAILED"
)

var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
)

var transitions = map[Status][]Status{
	StatusNew:              {StatusScanned, StatusFailed},
	StatusScanned:          {StatusPlanned, StatusFailed},
	StatusPlanned:          {StatusPendingApprovals, StatusReadyToExecute, StatusFailed},
	StatusPendingApprovals: {StatusReadyToExecute, StatusPlanned, StatusFailed},
	StatusReadyToExecute:   {StatusExecuting, StatusFailed},
	StatusExecuting:        {StatusCompleted, StatusFailed},
	StatusCompleted:        nil,
	StatusFailed:           {StatusNew},
}

// CanTransition reports whether from→to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error wrapping ErrInvalidTransition when
// from→to is not legal.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Session is one run of the cleanup pipeline on a machine.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Status     Status    `json:"status"`
	AppVersion string    `json:"appVersion"`
}

// Repository persists sessions. CurrentSession returns the most recently
// created session.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	CurrentSession(ctx context.Context) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
}

// Service creates sessions and moves them through the state machine.
type Service struct {
	repo       Repository
	appVersion string
	now        func() time.Time
}

func NewService(repo Repository, appVersion string) *Service {
	return &Service{repo: repo, appVersion: appVersion, now: time.Now}
}

// Create starts a new session in NEW.
func (s *Service) Create(ctx context.Context) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     StatusNew,
		AppVersion: s.appVersion,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *Service) Current(ctx context.Context) (*Session, error) {
	return s.repo.CurrentSession(ctx)
}

// Transition moves the session to the given status. Moving to the status
// the session already has is a no-op.
func (s *Service) Transition(ctx context.Context, id string, to Status) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == to {
		return sess, nil
	}
	if err := ValidateTransition(sess.Status, to); err != nil {
		return nil, err
	}
	sess.Status = to
	sess.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session %s: %w", id, err)
	}
	return sess, nil
}
