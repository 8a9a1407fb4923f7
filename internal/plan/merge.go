package plan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/rules"
)

var ErrProposalNotApproved = errors.New("proposal not approved")

// ChangeResult pairs a change with the outcome message for it.
type ChangeResult struct {
	Change  proposal.Change `json:"change"`
	Message string          `json:"message"`
}

// MergeResult lists applied and skipped changes of one merge.
type MergeResult struct {
	ProposalID string         `json:"proposalId"`
	Applied    []ChangeResult `json:"applied"`
	Skipped    []ChangeResult `json:"skipped"`
}

// Merger applies approved proposals to the current plan. Callers must not
// merge concurrently into the same session.
type Merger struct {
	rules *rules.RuleSet
	repo  Repository
	log   *zap.Logger
}

func NewMerger(rs *rules.RuleSet, repo Repository, log *zap.Logger) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{rules: rs, repo: repo, log: log}
}

// Merge loads the session's current plan, applies prop and persists every
// item that received an applied change.
func (m *Merger) Merge(ctx context.Context, prop *proposal.Proposal, hasUserFact bool) (*MergeResult, error) {
	if prop.Status != proposal.StatusApproved {
		return nil, fmt.Errorf("%w: cannot merge proposal in status %s, must be APPROVED", ErrProposalNotApproved, prop.Status)
	}
	p, err := m.repo.CurrentPlan(ctx, prop.SessionID)
	if err != nil {
		return nil, fmt.Errorf("no current plan for session %s: %w", prop.SessionID, err)
	}

	res, err := m.Apply(p, prop, hasUserFact)
	if err != nil {
		return nil, err
	}

	persisted := make(map[string]bool)
	for _, a := range res.Applied {
		id := a.Change.TargetID
		if persisted[id] {
			continue
		}
		item := p.Item(id)
		if item == nil {
			continue
		}
		if err := m.repo.UpdatePlanItem(ctx, p.ID, *item); err != nil {
			return nil, fmt.Errorf("update plan item %s: %w", id, err)
		}
		persisted[id] = true
	}
	return res, nil
}

// Apply mutates p in memory. It never fails for individual changes; those
// are reported in Skipped.
func (m *Merger) Apply(p *Plan, prop *proposal.Proposal, hasUserFact bool) (*MergeResult, error) {
	if prop.Status != proposal.StatusApproved {
		return nil, fmt.Errorf("%w: cannot merge proposal in status %s, must be APPROVED", ErrProposalNotApproved, prop.Status)
	}
	res := &MergeResult{ProposalID: prop.ID}
	apply := func(c proposal.Change, msg string) {
		res.Applied = append(res.Applied, ChangeResult{Change: c, Message: msg})
		mergeChanges.WithLabelValues(string(c.Type), "applied").Inc()
	}
	skip := func(c proposal.Change, msg string) {
		res.Skipped = append(res.Skipped, ChangeResult{Change: c, Message: msg})
		mergeChanges.WithLabelValues(string(c.Type), "skipped").Inc()
		m.log.Info("merge change skipped",
			zap.String("proposal", prop.ID),
			zap.String("target", c.TargetID),
			zap.String("type", string(c.Type)),
			zap.String("reason", msg))
	}

	for _, c := range prop.Changes {
		item := p.Item(c.TargetID)
		if item == nil {
			skip(c, "Target item not found in plan.")
			continue
		}
		if item.Blocked() && c.Type.TouchesScore() {
			skip(c, "Item is hard-blocked; change rejected.")
			continue
		}

		switch c.Type {
		case proposal.ChangeScoreDelta:
			apply(c, m.applyDelta(item, c, hasUserFact))

		case proposal.ChangeRecommendation:
			rec, ok := rules.ParseRecommendation(c.Value)
			if !ok {
				skip(c, "Invalid recommendation value: "+c.Value)
				continue
			}
			// Score is deliberately left alone; the label may disagree
			// with the bands afterwards.
			item.Recommendation = rec
			item.AIRationale = append(item.AIRationale, fmt.Sprintf("Recommendation changed to %s: %s", rec, c.Reason))
			apply(c, fmt.Sprintf("Recommendation set to %s.", rec))

		case proposal.ChangePinProtect:
			item.AIRationale = append(item.AIRationale, "Pinned: "+c.Reason)
			if item.Blocked() {
				apply(c, "Applied; item is already hard-blocked.")
				continue
			}
			item.Recommendation = rules.RecommendKeep
			apply(c, "Applied.")

		case proposal.ChangeNoteAdd:
			note := c.Note
			if note == "" {
				note = c.Reason
			}
			item.Notes = append(item.Notes, note)
			item.AIRationale = append(item.AIRationale, "Note added: "+c.Reason)
			apply(c, "Applied.")

		case proposal.ChangeFactRequest:
			item.AIRationale = append(item.AIRationale, "Fact requested: "+c.Reason)
			apply(c, "Fact request recorded.")

		default:
			skip(c, fmt.Sprintf("Unknown change type: %s", c.Type))
		}
	}
	return res, nil
}

func (m *Merger) applyDelta(item *Item, c proposal.Change, hasUserFact bool) string {
	l := m.rules.Limits
	lo, hi := l.AIDeltaMin, l.AIDeltaMax
	if hasUserFact {
		lo, hi = -l.AIDeltaMaxWithUserFact, l.AIDeltaMaxWithUserFact
	}
	delta := c.DeltaValue()
	clamped := min(max(delta, lo), hi)

	item.AIScoreDelta += clamped
	item.FinalScore = l.Clamp(item.BaselineScore + item.AIScoreDelta)
	item.Recommendation = m.rules.Recommend(item.FinalScore)

	note := ""
	if clamped != delta {
		note = fmt.Sprintf(" (clamped from %d to %d)", delta, clamped)
	}
	item.AIRationale = append(item.AIRationale, fmt.Sprintf("Score delta %s%s: %s", signed(clamped), note, c.Reason))
	return fmt.Sprintf("Applied delta %d%s. New score: %d.", clamped, note, item.FinalScore)
}

func signed(n int) string {
	if n == 0 {
		return "0"
	}
	return fmt.Sprintf("%+d", n)
}
