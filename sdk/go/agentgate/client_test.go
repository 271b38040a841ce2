package agentgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/oversight-dev/agentgate/internal/audit"
	"github.com/oversight-dev/agentgate/internal/gate"
)

func testClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf(`
state_dir: %s
block_sensitive_operations:
  - "DROP DATABASE"
security_sensitive_file_patterns:
  - "*key*"
`, dir)
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := New(WithConfig(cfgPath), WithAgent("tester"), WithSession("s1"), WithUser("alice"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c, dir
}

func TestWrapCallsToolAndAudits(t *testing.T) {
	c, dir := testClient(t)

	var called bool
	guarded := c.Wrap(func(ctx context.Context, action Action) (Outcome, error) {
		called = true
		return Outcome{CostUSD: 0.10, Status: "success"}, nil
	})

	out, err := guarded(context.Background(), Action{Operation: "run tests", Tool: "shell", EstimatedUSD: 0.20})
	if err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected the tool function to run")
	}
	if out.CostUSD != 0.10 {
		t.Errorf("expected the tool outcome back, got %+v", out)
	}

	entries, err := audit.ReadSegment(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Type != audit.TypeToolCall || entries[0].Agent != "tester" || entries[0].User != "alice" {
		t.Errorf("unexpected audit envelope: %+v", entries[0])
	}
}

func TestWrapBlocksWithoutCallingTool(t *testing.T) {
	c, dir := testClient(t)

	guarded := c.Wrap(func(ctx context.Context, action Action) (Outcome, error) {
		t.Fatal("the tool must not run for a blocked action")
		return Outcome{}, nil
	})

	_, err := guarded(context.Background(), Action{Operation: "psql -c 'DROP DATABASE prod'", Tool: "shell"})
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %v", err)
	}
	if blocked.ReasonCode != gate.ReasonBlockedOperation {
		t.Errorf("expected reason %s, got %s", gate.ReasonBlockedOperation, blocked.ReasonCode)
	}

	entries, err := audit.ReadSegment(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Type != audit.TypeDecision {
		t.Fatalf("expected one decision entry for the rejection, got %+v", entries)
	}
}

func TestWrapPropagatesToolError(t *testing.T) {
	c, _ := testClient(t)

	toolErr := errors.New("compile failed")
	guarded := c.Wrap(func(ctx context.Context, action Action) (Outcome, error) {
		return Outcome{}, toolErr
	})

	_, err := guarded(context.Background(), Action{Operation: "go build", Tool: "shell"})
	if !errors.Is(err, toolErr) {
		t.Errorf("expected the tool error back, got %v", err)
	}
}

func TestSessionIDPinned(t *testing.T) {
	c, _ := testClient(t)
	if c.SessionID() != "s1" {
		t.Errorf("expected pinned session id, got %q", c.SessionID())
	}
}
