package agentgate

import "fmt"

// Action describes what a tool intends to do.
type Action struct {
	Operation    string  // the operation string, e.g. a shell command
	Tool         string  // tool name: "shell", "edit", "http_request"
	File         string  // file path the operation touches, if any
	EstimatedUSD float64 // estimated cost, reserved against the budget
}

// Outcome describes what a tool actually did, reported after execution.
type Outcome struct {
	CostUSD      float64
	Model        string
	InputTokens  int
	OutputTokens int
	Diff         string
	Status       string
}

// BlockedError is returned when the gate rejects an action.
type BlockedError struct {
	Action     Action
	ReasonCode string
	Reason     string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("agentgate blocked (%s): %s", e.ReasonCode, e.Reason)
}

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	agentID    string
	sessionID  string
	user       string
}

// WithConfig sets the path to the gate config YAML.
func WithConfig(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithAgent sets the agent identifier used for rate limiting and audit.
func WithAgent(id string) Option {
	return func(c *clientConfig) { c.agentID = id }
}

// WithSession pins the session ID; a fresh one is generated otherwise.
func WithSession(id string) Option {
	return func(c *clientConfig) { c.sessionID = id }
}

// WithUser sets the user recorded in audit envelopes.
func WithUser(user string) Option {
	return func(c *clientConfig) { c.user = user }
}
