// Package pipeline wires the cleanup components to persistence and drives
// a session from scan to execution: scan, plan, propose, approve, merge,
// queue, execute, rescan and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/audit"
	"github.com/gzhole/migclean/internal/execution"
	"github.com/gzhole/migclean/internal/guard"
	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/rules"
	"github.com/gzhole/migclean/internal/session"
)

var (
	// ErrNoUserFacts is returned when a merge claims fact support but the
	// session has no recorded facts.
	ErrNoUserFacts = errors.New("session has no user facts")
	// ErrNoBaseline is returned by DeltaReport when there is nothing to
	// compare the latest snapshot against.
	ErrNoBaseline = errors.New("delta report needs at least two snapshots")
)

// Store is the persistence the pipeline needs.
type Store interface {
	session.Repository
	session.FactRepository
	inventory.SnapshotRepository
	plan.Repository
	proposal.Repository
	execution.Repository
	audit.Repository
	ListSnapshots(ctx context.Context, sessionID string) ([]inventory.Snapshot, error)
	LatestQueue(ctx context.Context, sessionID string) (*execution.Queue, error)
}

// Options configures New.
type Options struct {
	Rules      *rules.RuleSet
	Handlers   execution.Registry
	Audit      *audit.Logger
	Progress   execution.ProgressSink
	Log        *zap.Logger
	AppVersion string
}

// Service is the single entry point used by the CLI and the advisor.
type Service struct {
	store     Store
	rules     *rules.RuleSet
	policy    guard.Policy
	sessions  *session.Service
	facts     *session.FactService
	proposals *proposal.Service
	builder   *plan.Builder
	merger    *plan.Merger
	engine    *execution.Engine
	audit     *audit.Logger
	log       *zap.Logger

	mergeLocks sync.Map // session id -> *sync.Mutex
}

// New builds a Service. A nil rule set means the embedded defaults.
func New(store Store, opts Options) (*Service, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	rs := opts.Rules
	if rs == nil {
		rs = rules.Default()
	}
	auditLog := opts.Audit
	if auditLog == nil {
		var err error
		if auditLog, err = audit.New(store, log); err != nil {
			return nil, err
		}
	}
	handlers := opts.Handlers
	if handlers == nil {
		handlers = execution.DefaultRegistry(execution.NewExecRunner(log))
	}

	return &Service{
		store:     store,
		rules:     rs,
		policy:    guard.PolicyForLimits(rs.Limits),
		sessions:  session.NewService(store, opts.AppVersion),
		facts:     session.NewFactService(store),
		proposals: proposal.NewService(store),
		builder:   plan.NewBuilder(rs),
		merger:    plan.NewMerger(rs, store, log.Named("merge")),
		engine:    execution.NewEngine(store, auditLog, handlers, log, execution.WithProgress(opts.Progress)),
		audit:     auditLog,
		log:       log.Named("pipeline"),
	}, nil
}

// Policy returns the guard policy derived from the rule set limits.
func (s *Service) Policy() guard.Policy { return s.policy }

// Rules returns the active rule set.
func (s *Service) Rules() *rules.RuleSet { return s.rules }

func (s *Service) StartSession(ctx context.Context) (*session.Session, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("session started", zap.String("session", sess.ID))
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.sessions.Get(ctx, id)
}

func (s *Service) CurrentSession(ctx context.Context) (*session.Session, error) {
	return s.sessions.Current(ctx)
}

// ResetSession moves a FAILED session back to NEW.
func (s *Service) ResetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.sessions.Transition(ctx, id, session.StatusNew)
}

// ScanReport is the outcome of Scan.
type ScanReport struct {
	Snapshot    *inventory.Snapshot `json:"snapshot"`
	Diagnostics []string            `json:"diagnostics,omitempty"`
}

// Scan runs scanner and persists the snapshot. The first scan moves a NEW
// session to SCANNED; later scans are rescans and leave the status alone.
func (s *Service) Scan(ctx context.Context, sessionID string, scanner *inventory.Scanner) (*ScanReport, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := scanner.Scan(ctx)
	snap := inventory.NewSnapshot(sessionID, res)
	if err := s.store.CreateSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	if sess.Status == session.StatusNew {
		if _, err := s.sessions.Transition(ctx, sessionID, session.StatusScanned); err != nil {
			return nil, err
		}
	}
	s.log.Info("scan complete",
		zap.String("session", sessionID),
		zap.String("snapshot", snap.ID),
		zap.Int("items", len(snap.Items)),
		zap.Int("diagnostics", len(res.Diagnostics)))
	return &ScanReport{Snapshot: snap, Diagnostics: res.Diagnostics}, nil
}

func (s *Service) LatestSnapshot(ctx context.Context, sessionID string) (*inventory.Snapshot, error) {
	return s.store.LatestSnapshot(ctx, sessionID)
}

func (s *Service) ListSnapshots(ctx context.Context, sessionID string) ([]inventory.Snapshot, error) {
	return s.store.ListSnapshots(ctx, sessionID)
}

func (s *Service) AddFact(ctx context.Context, sessionID, key, value string, source inventory.FactSource) (*inventory.UserFact, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.facts.Add(ctx, sessionID, key, value, source)
}

func (s *Service) ListFacts(ctx context.Context, sessionID string) ([]inventory.UserFact, error) {
	return s.facts.List(ctx, sessionID)
}

// GeneratePlan builds a fresh plan from the latest snapshot and the
// session's facts, and moves the session to PLANNED.
func (s *Service) GeneratePlan(ctx context.Context, sessionID string) (*plan.Plan, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(sess, session.StatusPlanned); err != nil {
		return nil, err
	}
	snap, err := s.store.LatestSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	facts, err := s.facts.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	p := s.builder.Build(sessionID, snap, facts)
	if err := s.store.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	if _, err := s.sessions.Transition(ctx, sessionID, session.StatusPlanned); err != nil {
		return nil, err
	}
	s.log.Info("plan generated",
		zap.String("session", sessionID),
		zap.String("plan", p.ID),
		zap.Int("items", len(p.Items)))
	return p, nil
}

func (s *Service) CurrentPlan(ctx context.Context, sessionID string) (*plan.Plan, error) {
	return s.store.CurrentPlan(ctx, sessionID)
}

// CreateProposal validates req against the guard, with the current plan as
// context when there is one, and stores it as PENDING. A PLANNED session
// moves to PENDING_APPROVALS.
func (s *Service) CreateProposal(ctx context.Context, sessionID string, req proposal.CreateRequest) (*proposal.Proposal, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	current, err := s.store.CurrentPlan(ctx, sessionID)
	if err != nil && !errors.Is(err, plan.ErrNotFound) {
		return nil, err
	}
	if err := s.policy.Check(req.Changes, current); err != nil {
		s.log.Warn("proposal rejected by guard", zap.String("session", sessionID), zap.Error(err))
		return nil, err
	}

	p, err := s.proposals.Create(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusPlanned {
		if _, err := s.sessions.Transition(ctx, sessionID, session.StatusPendingApprovals); err != nil {
			return nil, err
		}
	}
	s.log.Info("proposal created",
		zap.String("session", sessionID),
		zap.String("proposal", p.ID),
		zap.String("risk", string(p.Risk)),
		zap.Int("changes", len(p.Changes)))
	return p, nil
}

func (s *Service) ListProposals(ctx context.Context, sessionID string) ([]*proposal.Proposal, error) {
	return s.proposals.List(ctx, sessionID)
}

func (s *Service) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	return s.proposals.Get(ctx, id)
}

func (s *Service) ApproveProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	p, err := s.proposals.Approve(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("proposal approved", zap.String("proposal", id))
	return p, nil
}

func (s *Service) RejectProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	p, err := s.proposals.Reject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("proposal rejected", zap.String("proposal", id))
	return p, nil
}

// MergeProposal applies an APPROVED proposal to the current plan. Merges
// for one session are serialised. withFacts raises the delta ceiling and
// requires the session to have at least one user fact. The guard's shape
// checks run again here; hard-blocked targets are reported as skipped by
// the merge itself.
func (s *Service) MergeProposal(ctx context.Context, proposalID string, withFacts bool) (*plan.MergeResult, error) {
	prop, err := s.proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockSession(prop.SessionID)
	defer unlock()

	if withFacts {
		facts, err := s.facts.List(ctx, prop.SessionID)
		if err != nil {
			return nil, err
		}
		if len(facts) == 0 {
			return nil, fmt.Errorf("merge %s with facts: %w", proposalID, ErrNoUserFacts)
		}
	}
	if err := s.policy.Check(prop.Changes, nil); err != nil {
		return nil, err
	}

	res, err := s.merger.Merge(ctx, prop, withFacts)
	if err != nil {
		return nil, err
	}
	s.log.Info("proposal merged",
		zap.String("proposal", proposalID),
		zap.Int("applied", len(res.Applied)),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

func (s *Service) lockSession(sessionID string) func() {
	v, _ := s.mergeLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) checkTransition(sess *session.Session, to session.Status) error {
	if sess.Status == to {
		return nil
	}
	return session.ValidateTransition(sess.Status, to)
}
