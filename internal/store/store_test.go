package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gzhole/migclean/internal/audit"
	"github.com/gzhole/migclean/internal/execution"
	"github.com/gzhole/migclean/internal/inventory"
	"github.com/gzhole/migclean/internal/plan"
	"github.com/gzhole/migclean/internal/proposal"
	"github.com/gzhole/migclean/internal/rules"
	"github.com/gzhole/migclean/internal/scoring"
	"github.com/gzhole/migclean/internal/session"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 123456789, time.UTC)

func seedSession(t *testing.T, s *Store, id string) *session.Session {
	t.Helper()
	sess := &session.Session{ID: id, CreatedAt: t0, UpdatedAt: t0, Status: session.StatusNew, AppVersion: "test"}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)

	if _, err := s.CurrentSession(ctx); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	seedSession(t, s, "s1")
	second := seedSession(t, s, "s2")

	cur, err := s.CurrentSession(ctx)
	if err != nil || cur.ID != "s2" {
		t.Fatalf("CurrentSession = %+v, %v", cur, err)
	}
	if !cur.CreatedAt.Equal(t0) {
		t.Errorf("created_at round trip: %v", cur.CreatedAt)
	}

	second.Status = session.StatusScanned
	second.UpdatedAt = t0.Add(time.Minute)
	if err := s.UpdateSession(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetSession(ctx, "s2")
	if got.Status != session.StatusScanned {
		t.Errorf("status = %s", got.Status)
	}
	if err := s.UpdateSession(ctx, &session.Session{ID: "missing"}); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFacts(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)
	seedSession(t, s, "s1")

	for _, f := range []inventory.UserFact{
		{SessionID: "s1", Key: "old_platform_vendor", Value: "intel", Source: inventory.FactSourceUser, CreatedAt: t0},
		{SessionID: "s1", Key: "old_gpu_vendor", Value: "nvidia", Source: inventory.FactSourceAI, CreatedAt: t0},
	} {
		f := f
		if err := s.AddFact(ctx, &f); err != nil {
			t.Fatal(err)
		}
	}
	facts, err := s.ListFacts(ctx, "s1")
	if err != nil || len(facts) != 2 {
		t.Fatalf("ListFacts = %v, %v", facts, err)
	}
	if facts[0].Key != "old_platform_vendor" || facts[1].Source != inventory.FactSourceAI {
		t.Errorf("facts = %+v", facts)
	}
	if err := s.AddFact(ctx, &inventory.UserFact{SessionID: "nope", Key: "k", CreatedAt: t0}); err == nil {
		t.Error("expected foreign key violation for unknown session")
	}
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)
	seedSession(t, s, "s1")

	if _, err := s.LatestSnapshot(ctx, "s1"); !errors.Is(err, inventory.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	present := false
	items := []inventory.Item{{ID: "drv:oem1.inf", Type: inventory.TypeDriver, Vendor: "Intel", Present: &present,
		Signature: &inventory.Signature{Signed: true, Signer: "Intel"}}}
	first := &inventory.Snapshot{ID: "snap1", SessionID: "s1", CreatedAt: t0, Items: items,
		Summary: inventory.Summarize(items, inventory.Platform{CPU: "i7"})}
	second := &inventory.Snapshot{ID: "snap2", SessionID: "s1", CreatedAt: t0.Add(time.Hour)}
	for _, snap := range []*inventory.Snapshot{first, second} {
		if err := s.CreateSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.LatestSnapshot(ctx, "s1")
	if err != nil || latest.ID != "snap2" {
		t.Fatalf("LatestSnapshot = %+v, %v", latest, err)
	}
	got, err := s.GetSnapshot(ctx, "snap1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 1 || *got.Items[0].Present || got.Items[0].Signature.Signer != "Intel" || got.Summary.Platform.CPU != "i7" {
		t.Errorf("snapshot round trip lost data: %+v", got)
	}
	list, _ := s.ListSnapshots(ctx, "s1")
	if len(list) != 2 || list[0].ID != "snap1" || list[0].Summary.Drivers != 1 {
		t.Errorf("ListSnapshots = %+v", list)
	}
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)
	seedSession(t, s, "s1")

	if _, err := s.CurrentPlan(ctx, "s1"); !errors.Is(err, plan.ErrNotFound) {
		t.Fatalf("expected plan.ErrNotFound, got %v", err)
	}

	p := &plan.Plan{ID: "p1", SessionID: "s1", CreatedAt: t0, Items: []plan.Item{
		{ItemID: "drv:b", BaselineScore: 45, FinalScore: 45, Recommendation: rules.RecommendReview, EngineRationale: []string{"x"}},
		{ItemID: "drv:a", Recommendation: rules.RecommendBlocked,
			HardBlocks: []scoring.HardBlock{{Code: "MICROSOFT_INBOX", Message: "inbox"}}, BlockedReason: "MICROSOFT_INBOX: inbox"},
	}}
	if err := s.CreatePlan(ctx, p); err != nil {
		t.Fatal(err)
	}

	cur, err := s.CurrentPlan(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cur.Items) != 2 || cur.Items[0].ItemID != "drv:b" || !cur.Items[1].Blocked() {
		t.Fatalf("items out of order or lost: %+v", cur.Items)
	}

	item := cur.Items[0]
	item.AIScoreDelta = 10
	item.FinalScore = 55
	item.Recommendation = rules.RecommendRemoveStage2
	if err := s.UpdatePlanItem(ctx, "p1", item); err != nil {
		t.Fatal(err)
	}
	cur, _ = s.CurrentPlan(ctx, "s1")
	if cur.Item("drv:b").FinalScore != 55 {
		t.Errorf("update not persisted: %+v", cur.Item("drv:b"))
	}
	if err := s.UpdatePlanItem(ctx, "p1", plan.Item{ItemID: "drv:zzz"}); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.CreatePlan(ctx, &plan.Plan{ID: "p2", SessionID: "s1", CreatedAt: t0}); err != nil {
		t.Fatal(err)
	}
	cur, _ = s.CurrentPlan(ctx, "s1")
	if cur.ID != "p2" {
		t.Errorf("current plan = %s", cur.ID)
	}
}

func TestProposals(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)
	seedSession(t, s, "s1")

	delta := 10
	p := &proposal.Proposal{
		ID: "pr1", SessionID: "s1", Title: "Raise", Status: proposal.StatusPending, Risk: proposal.RiskLow,
		CreatedAt: t0, UpdatedAt: t0,
		Changes:  []proposal.Change{{Type: proposal.ChangeScoreDelta, TargetID: "drv:a", Delta: &delta, Reason: "r"}},
		Evidence: []proposal.Evidence{{Kind: "inventory", Path: "vendor", Value: "Intel"}},
	}
	if err := s.CreateProposal(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateProposal(ctx, &proposal.Proposal{ID: "pr2", SessionID: "s1", Title: "Note",
		Status: proposal.StatusPending, Risk: proposal.RiskLow, CreatedAt: t0, UpdatedAt: t0}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProposal(ctx, "pr1")
	if err != nil {
		t.Fatal(err)
	}
	if *got.Changes[0].Delta != 10 || got.Evidence[0].Value != "Intel" {
		t.Errorf("round trip = %+v", got)
	}

	if err := s.UpdateProposalStatus(ctx, "pr1", proposal.StatusPending, proposal.StatusApproved, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListProposals(ctx, "s1")
	if len(list) != 2 || list[0].Status != proposal.StatusApproved || list[1].Evidence != nil {
		t.Errorf("list = %+v", list)
	}
	if _, err := s.GetProposal(ctx, "missing"); !errors.Is(err, proposal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateProposalStatus(ctx, "missing", proposal.StatusPending, proposal.StatusRejected, t0); !errors.Is(err, proposal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateProposalStatus(ctx, "pr1", proposal.StatusPending, proposal.StatusRejected, t0); !errors.Is(err, proposal.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for decided proposal, got %v", err)
	}
	if got, _ := s.GetProposal(ctx, "pr1"); got.Status != proposal.StatusApproved {
		t.Errorf("status = %s, want APPROVED", got.Status)
	}
}

func TestQueues(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)
	seedSession(t, s, "s1")

	p := &plan.Plan{SessionID: "s1", Items: []plan.Item{
		{ItemID: "svc:Foo", Recommendation: rules.RecommendRemoveStage1},
		{ItemID: "app:Bar", Recommendation: rules.RecommendRemoveStage2},
	}}
	q := execution.BuildQueue(p, execution.BuildOptions{Commands: map[string]string{"app:Bar": "unins.exe /S"}})
	if err := s.CreateQueue(ctx, q); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetQueue(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Actions) != 3 || got.Actions[0].Type != execution.ActionCreateRestorePoint || got.Actions[2].Command != "unins.exe /S" {
		t.Fatalf("queue = %+v", got)
	}

	a := got.Actions[1]
	a.Status = execution.StatusCompleted
	a.Output = "SUCCESS"
	now := t0
	a.StartedAt, a.CompletedAt = &now, &now
	if err := s.UpdateAction(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateQueueStatus(ctx, q.ID, execution.StatusRunning); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestQueue(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Status != execution.StatusRunning || latest.Actions[1].Output != "SUCCESS" || !latest.Actions[1].CompletedAt.Equal(t0) {
		t.Errorf("latest = %+v", latest)
	}
	if latest.Actions[0].StartedAt != nil {
		t.Error("unset timestamps must stay nil")
	}
	if _, err := s.GetQueue(ctx, "missing"); !errors.Is(err, execution.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := tempDB(t)

	for i, status := range []string{"RUNNING", "COMPLETED"} {
		e := &audit.Entry{ID: string(rune('a' + i)), SessionID: "s1", ActionID: "act", ActionType: "DISABLE_SERVICE",
			TargetID: "svc:Foo", Status: status, Timestamp: t0}
		if err := s.AppendAudit(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendAudit(ctx, &audit.Entry{ID: "a", SessionID: "s1", Status: "FAILED", Timestamp: t0}); err == nil {
		t.Error("duplicate entry ids must be rejected")
	}

	entries, err := s.ListAudit(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Status != "RUNNING" || entries[1].Status != "COMPLETED" || entries[1].Output != "" {
		t.Errorf("entries = %+v", entries)
	}
}
