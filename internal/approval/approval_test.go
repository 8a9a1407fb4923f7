package approval

import (
	"bytes"
	"strings"
	"testing"
)

func TestAsk(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		approved   bool
		userAction string
	}{
		{"approve", "a\n", true, "approve"},
		{"yes", "YES\n", true, "approve"},
		{"deny", "d\n", false, "deny"},
		{"retry after garbage", "maybe\ny\n", true, "approve"},
		{"eof", "", false, "error_reading_input"},
		{"no trailing newline", "n", false, "deny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			a := &Asker{In: strings.NewReader(tt.input), Out: &out}
			got := a.Ask(Prompt{Title: "Approve proposal", Subject: "Proposal p1", Details: []string{"score_delta drv:a"}})
			if got.Approved != tt.approved || got.UserAction != tt.userAction {
				t.Errorf("Ask = %+v, want approved=%v action=%s", got, tt.approved, tt.userAction)
			}
			if !strings.Contains(out.String(), "Proposal p1") {
				t.Errorf("prompt not written: %q", out.String())
			}
		})
	}
}

func TestAsk_NonInteractiveDenies(t *testing.T) {
	a := &Asker{In: strings.NewReader("a\n"), Out: &bytes.Buffer{}, Interactive: func() bool { return false }}
	got := a.Ask(Prompt{Title: "Execute"})
	if got.Approved || got.UserAction != "auto_deny_non_interactive" {
		t.Errorf("Ask = %+v", got)
	}
}
