// Package audit implements the durable decision trail: an append-only
// JSONL log with per-segment SHA-256 hash chaining, size-based rotation,
// and retention-bounded cleanup of rotated segments. Maintenance
// piggybacks on Append; there is no background scheduler.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// GenesisHash is the prev_hash for the first entry in a fresh segment.
// Rotation starts a new chain; Verify checks one segment at a time.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// TimestampFormat is the wire format for entry timestamps (UTC, ms).
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Options bound the log's on-disk footprint.
type Options struct {
	MaxBytes      int64 // rotate when the live segment reaches this size
	MaxBackups    int   // rotated generations kept: audit.log.1 .. .N
	RetentionDays int   // rotated segments strictly older are deleted
}

// Log appends entries to a rotating JSONL file set shared across gate
// processes. Each Append holds an exclusive flock for the whole
// sweep-rotate-append sequence, so two processes cannot rotate
// simultaneously or interleave half-written lines.
type Log struct {
	path string
	opts Options
	mu   sync.Mutex
}

// New returns a log writing to path. The file is created on first append.
func New(path string, opts Options) *Log {
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	return &Log{path: path, opts: opts}
}

// Path returns the live segment location.
func (l *Log) Path() string {
	return l.path
}

// Append serializes the entry as one self-contained line and appends it
// to the live segment, rotating first if the segment is full and
// sweeping expired rotated segments. The entry's PrevHash is set from
// the current chain tail; Timestamp is filled if empty.
//
// Errors surface to the caller (the record is never dropped silently),
// but callers treat an audit failure as non-fatal to the operation that
// already ran.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("audit: create directory: %w", err)
	}

	unlock, err := l.lock()
	if err != nil {
		return err
	}
	defer unlock()

	l.sweepRetention(time.Now())

	if info, err := os.Stat(l.path); err == nil && l.opts.MaxBytes > 0 && info.Size() >= l.opts.MaxBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	prevHash, err := chainTail(l.path)
	if err != nil {
		return err
	}

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	return nil
}

// lock takes an exclusive advisory lock on a sidecar file. The live
// segment itself is never locked: rotation renames it away.
func (l *Log) lock() (func(), error) {
	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("audit: flock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// rotate shifts rotated segments up one generation and moves the live
// segment to .1. The oldest generation falls off the end. Renames only;
// completed segments are never edited.
func (l *Log) rotate() error {
	for i := l.opts.MaxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", l.path, i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := fmt.Sprintf("%s.%d", l.path, i+1)
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("audit: rotate %s: %w", src, err)
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("audit: rotate live segment: %w", err)
	}
	return nil
}

// sweepRetention deletes rotated segments whose modification time is
// strictly older than the retention period. A segment exactly at the
// boundary is kept. The live segment is never touched. Best-effort.
func (l *Log) sweepRetention(now time.Time) {
	if l.opts.RetentionDays <= 0 {
		return
	}
	maxAge := time.Duration(l.opts.RetentionDays) * 24 * time.Hour
	for i := 1; i <= l.opts.MaxBackups+1; i++ {
		seg := fmt.Sprintf("%s.%d", l.path, i)
		info, err := os.Stat(seg)
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			_ = os.Remove(seg)
		}
	}
}

// Sweep runs the retention sweep outside of an append, for manual
// pruning.
func (l *Log) Sweep() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("audit: create directory: %w", err)
	}

	unlock, err := l.lock()
	if err != nil {
		return err
	}
	defer unlock()

	l.sweepRetention(time.Now())
	return nil
}

// chainTail reads the last line of a segment and returns its hash, or
// the genesis hash for a missing or empty segment.
func chainTail(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return GenesisHash, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lastLine []byte
	for scanner.Scan() {
		lastLine = append(lastLine[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("audit: scan existing log: %w", err)
	}
	if len(lastLine) == 0 {
		return GenesisHash, nil
	}
	return HashLine(lastLine), nil
}

// maxLineBytes bounds a single record; diffs can be large.
const maxLineBytes = 4 << 20

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// ReadSegment parses every entry in one segment file.
func ReadSegment(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open segment: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: parse segment line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan segment: %w", err)
	}
	return entries, nil
}

// Tail returns the last n entries of a segment, oldest first.
func Tail(path string, n int) ([]Entry, error) {
	entries, err := ReadSegment(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
