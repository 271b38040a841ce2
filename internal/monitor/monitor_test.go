package monitor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oversight-dev/agentgate/internal/audit"
)

func testAuditLog(t *testing.T) (*audit.Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	return audit.New(path, audit.Options{}), path
}

// --- Formatting tests ---

func TestFormatEntryToolCall(t *testing.T) {
	line := FormatEntry(audit.Entry{
		Timestamp: "2026-03-01T12:30:45.000Z",
		Type:      audit.TypeToolCall,
		Agent:     "builder",
		Tool:      "shell",
		File:      "main.go",
	})
	for _, want := range []string{"12:30:45", "tool_call", "builder", "shell main.go"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in line %q", want, line)
		}
	}
}

func TestFormatEntryDecision(t *testing.T) {
	line := FormatEntry(audit.Entry{
		Type:     audit.TypeDecision,
		Agent:    "builder",
		Decision: "reject",
		Reason:   "rate_limit: 101 calls in the last hour",
	})
	if !strings.Contains(line, "REJECT rate_limit") {
		t.Errorf("expected decision detail in line %q", line)
	}
}

func TestFormatEntryUnparseableTimestamp(t *testing.T) {
	line := FormatEntry(audit.Entry{Timestamp: "garbage", Type: audit.TypeToolCall, Agent: "a"})
	if !strings.Contains(line, "garbage") {
		t.Errorf("expected raw timestamp preserved, got %q", line)
	}
}

// --- Drain tests ---

func TestDrainReadsOnlyNewEntries(t *testing.T) {
	l, path := testAuditLog(t)
	var out bytes.Buffer
	tailer := NewTailer(path, &out)

	if err := l.Append(audit.Entry{Type: audit.TypeToolCall, Agent: "builder", Tool: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := tailer.drain(); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out.String(), "\n"); n != 1 {
		t.Fatalf("expected 1 line after first drain, got %d", n)
	}

	if err := l.Append(audit.Entry{Type: audit.TypeToolCall, Agent: "builder", Tool: "second"}); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := tailer.drain(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "second") || strings.Contains(out.String(), "first") {
		t.Errorf("expected only the new entry, got %q", out.String())
	}
}

func TestDrainMissingFileIsQuiet(t *testing.T) {
	tailer := NewTailer(filepath.Join(t.TempDir(), "audit.log"), &bytes.Buffer{})
	if err := tailer.drain(); err != nil {
		t.Errorf("missing log is not an error, got %v", err)
	}
}

func TestDrainResetsAfterRotation(t *testing.T) {
	l, path := testAuditLog(t)
	var out bytes.Buffer
	tailer := NewTailer(path, &out)

	// Push the offset well past the size of a fresh segment
	for i := 0; i < 5; i++ {
		if err := l.Append(audit.Entry{Type: audit.TypeToolCall, Agent: "builder", Tool: "pad-entry"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tailer.drain(); err != nil {
		t.Fatal(err)
	}

	// Rotation renames the live segment away and starts a fresh one
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	fresh := audit.New(path, audit.Options{})
	if err := fresh.Append(audit.Entry{Type: audit.TypeToolCall, Agent: "builder", Tool: "post-rotate"}); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := tailer.drain(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "post-rotate") {
		t.Errorf("expected the fresh segment to be read from the start, got %q", out.String())
	}
}
