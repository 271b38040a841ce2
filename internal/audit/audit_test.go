package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLog(t *testing.T, opts Options) *Log {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "audit.log"), opts)
}

// --- Append and chain tests ---

func TestAppendCreatesChainedEntries(t *testing.T) {
	l := testLog(t, Options{})

	for i := 0; i < 3; i++ {
		err := l.Append(Entry{Type: TypeToolCall, Agent: "builder", Tool: "shell"})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ReadSegment(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].PrevHash != GenesisHash {
		t.Errorf("expected genesis prev_hash on first entry, got %q", entries[0].PrevHash)
	}

	result := Verify(l.Path())
	if !result.Valid {
		t.Errorf("expected valid chain: %s", result.Error)
	}
}

func TestAppendRecoversChainAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	first := New(path, Options{})
	if err := first.Append(Entry{Type: TypeDecision, Decision: "reject", Reason: "rate_limit"}); err != nil {
		t.Fatal(err)
	}

	// A separate process appends next
	second := New(path, Options{})
	if err := second.Append(Entry{Type: TypeDecision, Decision: "accept"}); err != nil {
		t.Fatal(err)
	}

	result := Verify(path)
	if !result.Valid {
		t.Errorf("expected chain to survive reopening: %s", result.Error)
	}
	if result.Lines != 2 {
		t.Errorf("expected 2 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := testLog(t, Options{})
	for i := 0; i < 2; i++ {
		if err := l.Append(Entry{Type: TypeToolCall, Agent: "builder"}); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte(nil), data...)
	tampered[20] ^= 0x01
	if err := os.WriteFile(l.Path(), tampered, 0600); err != nil {
		t.Fatal(err)
	}

	result := Verify(l.Path())
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
}

// --- Rotation tests ---

func TestRotationLosesNoRecords(t *testing.T) {
	// Tiny segment cap so a handful of appends forces exactly 2 rotations
	l := testLog(t, Options{MaxBytes: 400, MaxBackups: 5})

	var appended int
	for rotations := 0; rotations < 2; {
		err := l.Append(Entry{Type: TypeToolCall, Agent: "builder", Tool: "shell", File: "main.go"})
		if err != nil {
			t.Fatal(err)
		}
		appended++
		if _, err := os.Stat(fmt.Sprintf("%s.%d", l.Path(), rotations+1)); err == nil {
			rotations++
		}
	}
	// A few more into the fresh live segment
	for i := 0; i < 2; i++ {
		if err := l.Append(Entry{Type: TypeToolCall, Agent: "builder"}); err != nil {
			t.Fatal(err)
		}
		appended++
	}

	var recovered int
	for _, seg := range []string{l.Path(), l.Path() + ".1", l.Path() + ".2"} {
		entries, err := ReadSegment(seg)
		if err != nil {
			t.Fatalf("%s: %v", seg, err)
		}
		recovered += len(entries)

		result := Verify(seg)
		if !result.Valid {
			t.Errorf("%s: expected valid chain per segment: %s", seg, result.Error)
		}
	}
	if recovered != appended {
		t.Errorf("expected %d records recovered across segments, got %d", appended, recovered)
	}
	if _, err := os.Stat(l.Path() + ".3"); err == nil {
		t.Error("expected exactly 2 rotated segments")
	}
}

func TestRotationDropsOldestBeyondBackups(t *testing.T) {
	l := testLog(t, Options{MaxBytes: 1, MaxBackups: 2})

	// Every append rotates; only .1 and .2 may remain
	for i := 0; i < 5; i++ {
		if err := l.Append(Entry{Type: TypeToolCall, Agent: "builder"}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := os.Stat(l.Path() + ".2"); err != nil {
		t.Error("expected .2 to exist")
	}
	if _, err := os.Stat(l.Path() + ".3"); err == nil {
		t.Error("expected nothing beyond .2")
	}
}

// --- Retention tests ---

func TestRetentionBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	l := New(path, Options{RetentionDays: 90, MaxBackups: 5})

	atBoundary := path + ".1"
	pastBoundary := path + ".2"
	if err := os.WriteFile(atBoundary, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pastBoundary, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	exactly := now.Add(-90 * 24 * time.Hour)
	older := now.Add(-91 * 24 * time.Hour)
	if err := os.Chtimes(atBoundary, exactly, exactly); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(pastBoundary, older, older); err != nil {
		t.Fatal(err)
	}

	// Sweep against the same clock the mtimes were derived from, so the
	// at-boundary segment is exactly retention_days old, not a hair over.
	l.sweepRetention(now)

	if _, err := os.Stat(atBoundary); err != nil {
		t.Error("segment exactly retention_days old must be kept")
	}
	if _, err := os.Stat(pastBoundary); err == nil {
		t.Error("segment older than retention_days must be deleted")
	}
}

func TestRetentionNeverTouchesLiveSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	l := New(path, Options{RetentionDays: 1, MaxBackups: 5})

	if err := l.Append(Entry{Type: TypeToolCall, Agent: "builder"}); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if err := l.Sweep(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("the live segment is never retention-deleted")
	}
}

// --- Tail tests ---

func TestTailReturnsLastEntries(t *testing.T) {
	l := testLog(t, Options{})
	for i := 0; i < 5; i++ {
		err := l.Append(Entry{Type: TypeToolCall, Agent: "builder", Tool: fmt.Sprintf("tool%d", i)})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := Tail(l.Path(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Tool != "tool3" || entries[1].Tool != "tool4" {
		t.Errorf("expected the last two entries in order, got %q %q", entries[0].Tool, entries[1].Tool)
	}
}
