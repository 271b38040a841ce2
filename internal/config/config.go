package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is absent or unusable.
const (
	DefaultDailyBudgetUSD        = 100.0
	DefaultPerSessionLimitUSD    = 10.0
	DefaultExpensiveThresholdUSD = 1.0
	DefaultCallsPerHour          = 100
	DefaultRetentionDays         = 90
	DefaultMaxAuditFileBytes     = 10 << 20
	DefaultMaxAuditBackups       = 5
)

// Config holds all gate policy parameters, fully populated.
// Values are immutable once loaded; the gate never writes config back.
type Config struct {
	Enabled               bool
	DailyBudgetUSD        float64
	PerSessionLimitUSD    float64
	ExpensiveThresholdUSD float64
	RateLimits            map[string]int
	SensitivePaths        []string
	SensitiveFilePatterns []string
	BlockedOperations     []string
	RetentionDays         int
	AuditEnabled          bool
	MaxAuditFileBytes     int64
	MaxAuditBackups       int
	StateDir              string
}

// Warning reports a config field that was replaced with its default.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	if w.Field == "" {
		return w.Message
	}
	return w.Field + ": " + w.Message
}

// rawConfig mirrors the YAML document with pointer fields so that
// absent and present-but-zero values can be told apart.
type rawConfig struct {
	Enabled               *bool          `yaml:"enabled"`
	DailyBudgetUSD        *float64       `yaml:"daily_budget_usd"`
	PerSessionLimitUSD    *float64       `yaml:"per_session_limit_usd"`
	ExpensiveThresholdUSD *float64       `yaml:"expensive_operation_threshold_usd"`
	RateLimits            map[string]int `yaml:"rate_limits"`
	SensitivePaths        []string       `yaml:"security_sensitive_paths"`
	SensitiveFilePatterns []string       `yaml:"security_sensitive_file_patterns"`
	BlockedOperations     []string       `yaml:"block_sensitive_operations"`
	RetentionDays         *int           `yaml:"retention_days"`
	AuditEnabled          *bool          `yaml:"audit_enabled"`
	MaxAuditFileBytes     *int64         `yaml:"max_audit_file_bytes"`
	MaxAuditBackups       *int           `yaml:"max_audit_backups"`
	StateDir              *string        `yaml:"state_dir"`
}

// DefaultStateDir returns the directory holding gate.db and the audit log.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agentgate")
	}
	return filepath.Join(home, ".agentgate")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// DefaultConfig returns the fully-defaulted configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:               true,
		DailyBudgetUSD:        DefaultDailyBudgetUSD,
		PerSessionLimitUSD:    DefaultPerSessionLimitUSD,
		ExpensiveThresholdUSD: DefaultExpensiveThresholdUSD,
		RateLimits:            map[string]int{},
		RetentionDays:         DefaultRetentionDays,
		AuditEnabled:          true,
		MaxAuditFileBytes:     DefaultMaxAuditFileBytes,
		MaxAuditBackups:       DefaultMaxAuditBackups,
		StateDir:              DefaultStateDir(),
	}
}

// Load reads gate configuration from a YAML file. It never fails hard:
// a missing file, unparseable document, or unusable field value degrades
// to the documented default and is reported as a Warning. Unknown fields
// are ignored.
func Load(path string) (*Config, []Warning) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	var warnings []Warning

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			warnings = append(warnings, Warning{Field: "config", Message: fmt.Sprintf("%s not found, using defaults", path)})
		} else {
			warnings = append(warnings, Warning{Field: "config", Message: fmt.Sprintf("cannot read %s (%v), using defaults", path, err)})
		}
		return cfg, warnings
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		// yaml.TypeError carries partial results: keep what decoded,
		// warn per mismatched field. Anything else means the document
		// is unusable as a whole.
		if te, ok := err.(*yaml.TypeError); ok {
			for _, e := range te.Errors {
				warnings = append(warnings, Warning{Field: "config", Message: e + ", using default"})
			}
		} else {
			warnings = append(warnings, Warning{Field: "config", Message: fmt.Sprintf("cannot parse %s (%v), using defaults", path, err)})
			return cfg, warnings
		}
	}

	warnings = append(warnings, apply(cfg, &raw)...)
	return cfg, warnings
}

// apply merges decoded values over defaults, rejecting unusable ones.
func apply(cfg *Config, raw *rawConfig) []Warning {
	var warnings []Warning

	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
	if raw.AuditEnabled != nil {
		cfg.AuditEnabled = *raw.AuditEnabled
	}
	if raw.DailyBudgetUSD != nil {
		if *raw.DailyBudgetUSD < 0 {
			warnings = append(warnings, Warning{Field: "daily_budget_usd", Message: fmt.Sprintf("negative value %.2f, using default %.2f", *raw.DailyBudgetUSD, DefaultDailyBudgetUSD)})
		} else {
			cfg.DailyBudgetUSD = *raw.DailyBudgetUSD
		}
	}
	if raw.PerSessionLimitUSD != nil {
		if *raw.PerSessionLimitUSD < 0 {
			warnings = append(warnings, Warning{Field: "per_session_limit_usd", Message: fmt.Sprintf("negative value %.2f, using default %.2f", *raw.PerSessionLimitUSD, DefaultPerSessionLimitUSD)})
		} else {
			cfg.PerSessionLimitUSD = *raw.PerSessionLimitUSD
		}
	}
	if raw.ExpensiveThresholdUSD != nil {
		if *raw.ExpensiveThresholdUSD < 0 {
			warnings = append(warnings, Warning{Field: "expensive_operation_threshold_usd", Message: fmt.Sprintf("negative value %.2f, using default %.2f", *raw.ExpensiveThresholdUSD, DefaultExpensiveThresholdUSD)})
		} else {
			cfg.ExpensiveThresholdUSD = *raw.ExpensiveThresholdUSD
		}
	}
	if raw.RateLimits != nil {
		for agent, limit := range raw.RateLimits {
			if limit <= 0 {
				warnings = append(warnings, Warning{Field: "rate_limits." + agent, Message: fmt.Sprintf("non-positive limit %d ignored, using default %d", limit, DefaultCallsPerHour)})
				continue
			}
			cfg.RateLimits[agent] = limit
		}
	}
	if raw.SensitivePaths != nil {
		cfg.SensitivePaths = raw.SensitivePaths
	}
	if raw.SensitiveFilePatterns != nil {
		cfg.SensitiveFilePatterns = raw.SensitiveFilePatterns
	}
	if raw.BlockedOperations != nil {
		cfg.BlockedOperations = raw.BlockedOperations
	}
	if raw.RetentionDays != nil {
		if *raw.RetentionDays <= 0 {
			warnings = append(warnings, Warning{Field: "retention_days", Message: fmt.Sprintf("non-positive value %d, using default %d", *raw.RetentionDays, DefaultRetentionDays)})
		} else {
			cfg.RetentionDays = *raw.RetentionDays
		}
	}
	if raw.MaxAuditFileBytes != nil {
		if *raw.MaxAuditFileBytes <= 0 {
			warnings = append(warnings, Warning{Field: "max_audit_file_bytes", Message: fmt.Sprintf("non-positive value %d, using default %d", *raw.MaxAuditFileBytes, DefaultMaxAuditFileBytes)})
		} else {
			cfg.MaxAuditFileBytes = *raw.MaxAuditFileBytes
		}
	}
	if raw.MaxAuditBackups != nil {
		if *raw.MaxAuditBackups <= 0 {
			warnings = append(warnings, Warning{Field: "max_audit_backups", Message: fmt.Sprintf("non-positive value %d, using default %d", *raw.MaxAuditBackups, DefaultMaxAuditBackups)})
		} else {
			cfg.MaxAuditBackups = *raw.MaxAuditBackups
		}
	}
	if raw.StateDir != nil && *raw.StateDir != "" {
		cfg.StateDir = *raw.StateDir
	}

	return warnings
}

// RateLimitFor returns the calls-per-hour limit for an agent.
// Agents without an explicit entry get the default limit.
func (c *Config) RateLimitFor(agent string) int {
	if limit, ok := c.RateLimits[agent]; ok && limit > 0 {
		return limit
	}
	return DefaultCallsPerHour
}

// DatabasePath returns the SQLite store location under the state dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StateDir, "gate.db")
}

// AuditLogPath returns the live audit segment location under the state dir.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.StateDir, "audit.log")
}

// DefaultConfigYAML returns a commented starter config for agentgate init.
func DefaultConfigYAML() string {
	return `# agentgate policy configuration
# Generated by: agentgate init
#
# Every field is optional. Absent or unusable values fall back to the
# defaults shown here.

# Master switch. When false, pre-phase checks admit everything;
# post-phase auditing still runs.
enabled: true

# Spending limits in USD. A proposed total exactly equal to the limit
# passes; strictly greater is rejected.
daily_budget_usd: 100.00
per_session_limit_usd: 10.00

# Operations whose estimated cost meets this threshold get an advisory
# warning (never a rejection).
expensive_operation_threshold_usd: 1.00

# Calls per trailing hour, per agent. Unlisted agents get 100.
rate_limits:
  builder: 100
  tester: 200

# Advisory patterns: a match attaches a warning to an accepted verdict.
# Matching is case-sensitive substring containment; '*' wildcards in a
# pattern are stripped before matching.
security_sensitive_paths:
  - secrets/
  - .ssh/
  - .aws/
security_sensitive_file_patterns:
  - "*key*"
  - "*.pem"
  - .env

# Hard blocks: a match rejects the operation outright.
block_sensitive_operations:
  - "DROP DATABASE"
  - "rm -rf /"
  - "git push --force"

# Audit log rotation and retention.
retention_days: 90
audit_enabled: true
max_audit_file_bytes: 10485760
max_audit_backups: 5

# Where gate.db and audit.log live. Default: ~/.agentgate
# state_dir: /var/lib/agentgate
`
}
