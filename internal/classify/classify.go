// Package classify matches candidate operations against the configured
// security rules: advisory sensitive-path and sensitive-filename
// patterns, and hard blocked-operation patterns.
package classify

import (
	"path/filepath"
	"strings"
)

// Verdict is the severity of the most severe match.
type Verdict int

const (
	Clean Verdict = iota
	SensitivePath
	SensitiveFilename
	Blocked
)

func (v Verdict) String() string {
	switch v {
	case SensitivePath:
		return "sensitive_path"
	case SensitiveFilename:
		return "sensitive_filename"
	case Blocked:
		return "blocked_operation"
	default:
		return "clean"
	}
}

// Advisory reports whether the verdict warns without rejecting.
func (v Verdict) Advisory() bool {
	return v == SensitivePath || v == SensitiveFilename
}

// Result is the classification outcome plus the pattern that matched.
type Result struct {
	Verdict Verdict
	Pattern string
}

// Classifier holds the configured pattern lists.
type Classifier struct {
	paths     []string
	filenames []string
	blocked   []string
}

// New builds a classifier from the configured pattern lists.
func New(sensitivePaths, sensitiveFilenames, blockedOperations []string) *Classifier {
	return &Classifier{
		paths:     sensitivePaths,
		filenames: sensitiveFilenames,
		blocked:   blockedOperations,
	}
}

// Classify matches the file path and operation string against all three
// lists and returns the most severe result: Blocked beats the advisory
// verdicts, which beat Clean.
//
// Matching is plain case-sensitive substring containment, the canonical
// semantics for these rules. Patterns may carry '*' wildcards (policy
// files commonly write "*key*"); wildcards are stripped before the
// containment test. Blocked-operation patterns are tested against the
// operation string and the file path; path patterns against the path;
// filename patterns against the path's base name and the full path.
func (c *Classifier) Classify(filePath, operation string) Result {
	for _, p := range c.blocked {
		if containsPattern(operation, p) || containsPattern(filePath, p) {
			return Result{Verdict: Blocked, Pattern: p}
		}
	}

	base := filepath.Base(filePath)
	for _, p := range c.filenames {
		if containsPattern(base, p) || containsPattern(filePath, p) {
			return Result{Verdict: SensitiveFilename, Pattern: p}
		}
	}
	for _, p := range c.paths {
		if containsPattern(filePath, p) {
			return Result{Verdict: SensitivePath, Pattern: p}
		}
	}

	return Result{Verdict: Clean}
}

// containsPattern is the single matching primitive: strip '*' wildcards,
// then case-sensitive substring containment. Empty patterns never match.
func containsPattern(s, pattern string) bool {
	stripped := strings.ReplaceAll(pattern, "*", "")
	if stripped == "" || s == "" {
		return false
	}
	return strings.Contains(s, stripped)
}
