package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxChanges is the largest number of changes a proposal may carry.
const MaxChanges = 5

var (
	ErrNotFound          = errors.New("proposal not found")
	ErrInvalidTransition = errors.New("invalid proposal status transition")
	ErrInvalidRequest    = errors.New("invalid proposal request")
)

// Repository persists proposals.
type Repository interface {
	CreateProposal(ctx context.Context, p *Proposal) error
	GetProposal(ctx context.Context, id string) (*Proposal, error)
	ListProposals(ctx context.Context, sessionID string) ([]*Proposal, error)
	// UpdateProposalStatus moves a proposal from one status to another in a
	// single step. It returns ErrInvalidTransition when the stored status is
	// no longer from.
	UpdateProposalStatus(ctx context.Context, id string, from, to Status, at time.Time) error
}

// CreateRequest is the input for Create.
type CreateRequest struct {
	Title    string     `json:"title" validate:"required,max=200"`
	Changes  []Change   `json:"changes" validate:"required,min=1,max=5,dive"`
	Evidence []Evidence `json:"evidence,omitempty" validate:"omitempty,dive"`
}

// Service manages the proposal lifecycle. Status moves once, from PENDING
// to APPROVED or REJECTED.
type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New(), now: func() time.Time { return time.Now().UTC() }}
}

// Create persists a new PENDING proposal with its computed risk. Safety
// validation of the change set is the caller's responsibility (see guard).
func (s *Service) Create(ctx context.Context, sessionID string, req CreateRequest) (*Proposal, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	now := s.now()
	p := &Proposal{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Title:     req.Title,
		Status:    StatusPending,
		Risk:      ComputeRisk(req.Changes),
		CreatedAt: now,
		UpdatedAt: now,
		Changes:   req.Changes,
		Evidence:  req.Evidence,
	}
	if err := s.repo.CreateProposal(ctx, p); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Proposal, error) {
	return s.repo.GetProposal(ctx, id)
}

func (s *Service) List(ctx context.Context, sessionID string) ([]*Proposal, error) {
	return s.repo.ListProposals(ctx, sessionID)
}

func (s *Service) Approve(ctx context.Context, id string) (*Proposal, error) {
	return s.transition(ctx, id, StatusApproved, "approve")
}

func (s *Service) Reject(ctx context.Context, id string) (*Proposal, error) {
	return s.transition(ctx, id, StatusRejected, "reject")
}

func (s *Service) transition(ctx context.Context, id string, to Status, verb string) (*Proposal, error) {
	p, err := s.repo.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot %s proposal in status %s, must be PENDING", ErrInvalidTransition, verb, p.Status)
	}
	now := s.now()
	err = s.repo.UpdateProposalStatus(ctx, id, StatusPending, to, now)
	if errors.Is(err, ErrInvalidTransition) {
		return nil, fmt.Errorf("%w: cannot %s proposal %s, it was decided concurrently", ErrInvalidTransition, verb, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update proposal %s: %w", id, err)
	}
	p.Status = to
	p.UpdatedAt = now
	return p, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Namespace()+" is required")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must have %s %s", fe.Namespace(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
