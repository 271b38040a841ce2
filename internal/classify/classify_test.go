package classify

import "testing"

func TestCleanByDefault(t *testing.T) {
	c := New(nil, nil, nil)
	res := c.Classify("src/main.go", "edit src/main.go")
	if res.Verdict != Clean {
		t.Errorf("expected clean, got %s", res.Verdict)
	}
}

func TestBlockedOperation(t *testing.T) {
	c := New(nil, nil, []string{"DROP DATABASE"})
	res := c.Classify("", "DROP DATABASE users")
	if res.Verdict != Blocked {
		t.Errorf("expected blocked, got %s", res.Verdict)
	}
	if res.Pattern != "DROP DATABASE" {
		t.Errorf("expected matched pattern, got %q", res.Pattern)
	}
}

func TestSensitiveFilenameWildcard(t *testing.T) {
	c := New(nil, []string{"*key*"}, nil)
	res := c.Classify("secrets/api_key.txt", "read")
	if res.Verdict != SensitiveFilename {
		t.Errorf("expected sensitive_filename, got %s", res.Verdict)
	}
}

func TestSensitivePath(t *testing.T) {
	c := New([]string{"secrets/"}, nil, nil)
	res := c.Classify("secrets/config.yaml", "read")
	if res.Verdict != SensitivePath {
		t.Errorf("expected sensitive_path, got %s", res.Verdict)
	}
}

func TestBlockedWinsOverAdvisory(t *testing.T) {
	c := New([]string{"secrets/"}, []string{"*key*"}, []string{"secrets/"})
	res := c.Classify("secrets/api_key.txt", "read secrets/api_key.txt")
	if res.Verdict != Blocked {
		t.Errorf("expected blocked to win over advisory matches, got %s", res.Verdict)
	}
}

func TestFilenameWinsOverPath(t *testing.T) {
	c := New([]string{"secrets/"}, []string{"*key*"}, nil)
	res := c.Classify("secrets/api_key.txt", "read")
	if res.Verdict != SensitiveFilename {
		t.Errorf("expected filename match checked first, got %s", res.Verdict)
	}
}

func TestMatchingIsCaseSensitive(t *testing.T) {
	c := New(nil, nil, []string{"DROP DATABASE"})
	res := c.Classify("", "drop database users")
	if res.Verdict != Clean {
		t.Errorf("expected case-sensitive miss, got %s", res.Verdict)
	}
}

func TestSubstringOverMatch(t *testing.T) {
	// Documented substring semantics: "key" inside "keyboard" matches
	c := New(nil, []string{"key"}, nil)
	res := c.Classify("src/keyboard.ts", "edit")
	if res.Verdict != SensitiveFilename {
		t.Errorf("expected substring containment match, got %s", res.Verdict)
	}
}

func TestEmptyPatternNeverMatches(t *testing.T) {
	c := New([]string{""}, []string{"*"}, []string{"**"})
	res := c.Classify("anything", "anything")
	if res.Verdict != Clean {
		t.Errorf("expected empty and wildcard-only patterns to never match, got %s", res.Verdict)
	}
}

func TestAdvisoryHelper(t *testing.T) {
	if Blocked.Advisory() || Clean.Advisory() {
		t.Error("blocked and clean are not advisory")
	}
	if !SensitivePath.Advisory() || !SensitiveFilename.Advisory() {
		t.Error("path and filename verdicts are advisory")
	}
}

func TestBlockedPatternAgainstFilePath(t *testing.T) {
	c := New(nil, nil, []string{".ssh/id_rsa"})
	res := c.Classify("/home/dev/.ssh/id_rsa", "cat")
	if res.Verdict != Blocked {
		t.Errorf("expected blocked via file path, got %s", res.Verdict)
	}
}
