package inventory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeltaStatus classifies how an item changed between two snapshots.
type DeltaStatus string

const (
	DeltaRemoved   DeltaStatus = "REMOVED"
	DeltaChanged   DeltaStatus = "CHANGED"
	DeltaUnchanged DeltaStatus = "UNCHANGED"
	DeltaAdded     DeltaStatus = "ADDED"
)

// PropertyChange is one differing property. Nil values mean "not reported".
type PropertyChange struct {
	Property string  `json:"property"`
	Old      *string `json:"old,omitempty"`
	New      *string `json:"new,omitempty"`
}

type DeltaItem struct {
	ItemID      string           `json:"itemId"`
	Type        ItemType         `json:"itemType"`
	DisplayName string           `json:"displayName"`
	Status      DeltaStatus      `json:"status"`
	Changes     []PropertyChange `json:"changes,omitempty"`
}

type DeltaSummary struct {
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Added     int `json:"added"`
}

// DeltaReport compares a pre-execution snapshot with a later rescan.
type DeltaReport struct {
	ID             string       `json:"id"`
	SessionID      string       `json:"sessionId"`
	PreSnapshotID  string       `json:"preSnapshotId"`
	PostSnapshotID string       `json:"postSnapshotId"`
	CreatedAt      time.Time    `json:"createdAt"`
	Summary        DeltaSummary `json:"summary"`
	Items          []DeltaItem  `json:"items"`
	NextSteps      []string     `json:"nextSteps"`
}

// Compare builds a delta report. Items are ordered by id.
func Compare(sessionID string, pre, post *Snapshot) *DeltaReport {
	preItems := make(map[string]Item, len(pre.Items))
	for _, it := range pre.Items {
		preItems[it.ID] = it
	}
	postItems := make(map[string]Item, len(post.Items))
	for _, it := range post.Items {
		postItems[it.ID] = it
	}

	ids := make([]string, 0, len(preItems)+len(postItems))
	for id := range preItems {
		ids = append(ids, id)
	}
	for id := range postItems {
		if _, ok := preItems[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	r := &DeltaReport{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		PreSnapshotID:  pre.ID,
		PostSnapshotID: post.ID,
		CreatedAt:      time.Now().UTC(),
	}
	for _, id := range ids {
		before, inPre := preItems[id]
		after, inPost := postItems[id]
		switch {
		case inPre && !inPost:
			r.Items = append(r.Items, DeltaItem{ItemID: id, Type: before.Type, DisplayName: before.DisplayName, Status: DeltaRemoved})
			r.Summary.Removed++
		case !inPre && inPost:
			r.Items = append(r.Items, DeltaItem{ItemID: id, Type: after.Type, DisplayName: after.DisplayName, Status: DeltaAdded})
			r.Summary.Added++
		default:
			changes := compareItems(before, after)
			status := DeltaUnchanged
			if len(changes) > 0 {
				status = DeltaChanged
				r.Summary.Changed++
			} else {
				r.Summary.Unchanged++
			}
			r.Items = append(r.Items, DeltaItem{ItemID: id, Type: before.Type, DisplayName: before.DisplayName, Status: status, Changes: changes})
		}
	}
	r.NextSteps = nextSteps(r)
	return r
}

func compareItems(pre, post Item) []PropertyChange {
	var changes []PropertyChange
	add := func(name string, before, after *string) {
		if (before == nil) != (after == nil) || (before != nil && *before != *after) {
			changes = append(changes, PropertyChange{Property: name, Old: before, New: after})
		}
	}
	add("Version", optString(pre.Version), optString(post.Version))
	add("Vendor", optString(pre.Vendor), optString(post.Vendor))
	add("Provider", optString(pre.Provider), optString(post.Provider))
	add("DriverInf", optString(pre.DriverInf), optString(post.DriverInf))
	add("DriverStorePublishedName", optString(pre.DriverStorePublishedName), optString(post.DriverStorePublishedName))
	add("Present", optBool(pre.Present), optBool(post.Present))
	add("Running", optBool(pre.Running), optBool(post.Running))
	add("StartType", optInt(pre.StartType), optInt(post.StartType))
	return changes
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optBool(b *bool) *string {
	if b == nil {
		return nil
	}
	s := strconv.FormatBool(*b)
	return &s
}

func optInt(i *int) *string {
	if i == nil {
		return nil
	}
	s := strconv.Itoa(*i)
	return &s
}

func nextSteps(r *DeltaReport) []string {
	var steps []string
	s := r.Summary
	if s.Removed > 0 {
		steps = append(steps,
			fmt.Sprintf("%d item(s) successfully removed.", s.Removed),
			"Reboot to complete driver removal and release locked files.")
	}
	if s.Changed > 0 {
		steps = append(steps, fmt.Sprintf("%d item(s) changed (e.g. services disabled). Verify expected state.", s.Changed))
		startTypeChanged := 0
		for _, it := range r.Items {
			if it.Status != DeltaChanged || it.Type != TypeService {
				continue
			}
			for _, c := range it.Changes {
				if c.Property == "StartType" {
					startTypeChanged++
					break
				}
			}
		}
		if startTypeChanged > 0 {
			steps = append(steps, fmt.Sprintf("  %d service(s) had start type changed.", startTypeChanged))
		}
	}
	if s.Unchanged > 0 {
		steps = append(steps, fmt.Sprintf("%d item(s) remain unchanged.", s.Unchanged))
	}
	if s.Added > 0 {
		steps = append(steps, fmt.Sprintf("%d new item(s) detected since the initial scan.", s.Added))
	}
	if s.Removed == 0 && s.Changed == 0 {
		steps = append(steps, "No items were removed or changed. Review the execution log for errors.")
	}
	steps = append(steps, "Run a final system check to confirm stability before normal use.")
	return steps
}

// Markdown renders the report as a markdown document.
func (r *DeltaReport) Markdown() string {
	var b strings.Builder
	b.WriteString("# Delta Report\n\n")
	fmt.Fprintf(&b, "**Session:** %s\n", r.SessionID)
	fmt.Fprintf(&b, "**Generated:** %s\n", r.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "**Pre-snapshot:** %s\n", r.PreSnapshotID)
	fmt.Fprintf(&b, "**Post-snapshot:** %s\n\n", r.PostSnapshotID)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Status | Count |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Removed | %d |\n", r.Summary.Removed)
	fmt.Fprintf(&b, "| Changed | %d |\n", r.Summary.Changed)
	fmt.Fprintf(&b, "| Unchanged | %d |\n", r.Summary.Unchanged)
	fmt.Fprintf(&b, "| Added | %d |\n\n", r.Summary.Added)

	writeList := func(title string, status DeltaStatus) {
		if !r.has(status) {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		for _, it := range r.Items {
			if it.Status == status {
				fmt.Fprintf(&b, "- **%s** (`%s`): %s\n", it.DisplayName, it.ItemID, it.Type)
			}
		}
		b.WriteString("\n")
	}

	writeList("Removed Items", DeltaRemoved)
	if r.has(DeltaChanged) {
		b.WriteString("## Changed Items\n\n")
		for _, it := range r.Items {
			if it.Status != DeltaChanged {
				continue
			}
			fmt.Fprintf(&b, "### %s (`%s`)\n", it.DisplayName, it.ItemID)
			for _, c := range it.Changes {
				fmt.Fprintf(&b, "- %s: `%s` -> `%s`\n", c.Property, orNull(c.Old), orNull(c.New))
			}
			b.WriteString("\n")
		}
	}
	writeList("New Items", DeltaAdded)

	b.WriteString("## Next Steps\n\n")
	for _, s := range r.NextSteps {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}

func (r *DeltaReport) has(status DeltaStatus) bool {
	for _, it := range r.Items {
		if it.Status == status {
			return true
		}
	}
	return false
}

func orNull(s *string) string {
	if s == nil {
		return "(null)"
	}
	return *s
}
