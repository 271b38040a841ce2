// Package monitor tails the live audit segment and renders new entries
// as they land, for a human watching agent activity in real time.
package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oversight-dev/agentgate/internal/audit"
)

// debounce coalesces bursts of write events into one read.
const debounce = 200 * time.Millisecond

// Tailer follows the live audit segment and writes formatted entries.
type Tailer struct {
	path   string
	out    io.Writer
	offset int64
}

// NewTailer creates a tailer for the audit log at path.
func NewTailer(path string, out io.Writer) *Tailer {
	return &Tailer{path: path, out: out}
}

// Run prints existing entries, then blocks following new ones until ctx
// is cancelled. Rotation is handled by detecting the live file shrink
// (the segment was renamed away and a fresh one started).
func (t *Tailer) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("monitor: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("monitor: create directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("monitor: watch %s: %w", dir, err)
	}

	if err := t.drain(); err != nil {
		return err
	}

	// One timer resets on each event; when it fires, accumulated
	// writes flush in a single drain.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != t.path {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "monitor: watch error: %v\n", err)
		case <-timer.C:
			if err := t.drain(); err != nil {
				return err
			}
		}
	}
}

// drain reads entries appended since the last offset.
func (t *Tailer) drain() error {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.offset = 0
			return nil
		}
		return fmt.Errorf("monitor: open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("monitor: stat log: %w", err)
	}
	if info.Size() < t.offset {
		// Rotated: fresh segment, start over
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return fmt.Errorf("monitor: seek: %w", err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		t.offset += int64(len(line)) + 1

		var e audit.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		fmt.Fprintln(t.out, FormatEntry(e))
	}
	return scanner.Err()
}

// FormatEntry renders one audit entry as a single aligned console line.
func FormatEntry(e audit.Entry) string {
	ts := e.Timestamp
	if parsed, err := time.Parse(audit.TimestampFormat, ts); err == nil {
		ts = parsed.Format("15:04:05")
	}

	detail := ""
	switch e.Type {
	case audit.TypeToolCall:
		detail = strings.TrimSpace(e.Tool + " " + e.File)
	case audit.TypeFileChange:
		detail = strings.TrimSpace(e.Action + " " + e.File)
	case audit.TypeAPICall:
		detail = strings.TrimSpace(e.Service + " " + e.Operation + " " + e.Target)
	case audit.TypeDecision:
		detail = strings.TrimSpace(strings.ToUpper(e.Decision) + " " + e.Reason)
	}

	return fmt.Sprintf("%-8s %-12s %-10s %s", ts, e.Type, e.Agent, detail)
}
