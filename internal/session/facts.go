package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gzhole/migclean/internal/inventory"
)

var ErrFactKeyRequired = errors.New("fact key is required")

// FactRepository persists user facts. ListFacts returns facts in insertion
// order.
type FactRepository interface {
	AddFact(ctx context.Context, f *inventory.UserFact) error
	ListFacts(ctx context.Context, sessionID string) ([]inventory.UserFact, error)
}

// FactService records migration context supplied by the user or the
// advisor.
type FactService struct {
	repo FactRepository
	now  func() time.Time
}

func NewFactService(repo FactRepository) *FactService {
	return &FactService{repo: repo, now: time.Now}
}

// Add stores a fact. The source defaults to USER.
func (s *FactService) Add(ctx context.Context, sessionID, key, value string, source inventory.FactSource) (*inventory.UserFact, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrFactKeyRequired
	}
	switch source {
	case inventory.FactSourceUser, inventory.FactSourceAI:
	case "":
		source = inventory.FactSourceUser
	default:
		return nil, fmt.Errorf("unknown fact source %q", source)
	}
	f := &inventory.UserFact{
		SessionID: sessionID,
		Key:       key,
		Value:     strings.TrimSpace(value),
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AddFact(ctx, f); err != nil {
		return nil, fmt.Errorf("add fact %s: %w", key, err)
	}
	return f, nil
}

func (s *FactService) List(ctx context.Context, sessionID string) ([]inventory.UserFact, error) {
	return s.repo.ListFacts(ctx, sessionID)
}
