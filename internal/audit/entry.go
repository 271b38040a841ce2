package audit

// Entry types. Each line in the log carries exactly one of these in its
// "type" field and only the payload fields relevant to that type.
const (
	TypeToolCall   = "tool_call"
	TypeFileChange = "file_change"
	TypeAPICall    = "api_call"
	TypeDecision   = "decision"
)

// Entry is one line in the hash-chained JSONL audit log. The envelope
// (ts, type, agent, user, session_id, prev_hash) is shared by all types;
// payload fields are omitted when empty so every record is
// self-describing. All fields are plain struct members (no
// map[string]any) to guarantee deterministic json.Marshal field order
// for reproducible hashing.
type Entry struct {
	Timestamp string `json:"ts"`
	Type      string `json:"type"`
	Agent     string `json:"agent,omitempty"`
	User      string `json:"user,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// tool_call
	Tool string `json:"tool,omitempty"`

	// tool_call, file_change
	File string `json:"file,omitempty"`

	// file_change
	Action string `json:"action,omitempty"`
	Diff   string `json:"diff,omitempty"`

	// api_call
	Service   string `json:"service,omitempty"`
	Operation string `json:"operation,omitempty"`
	Target    string `json:"target,omitempty"`

	// decision
	Decision string `json:"decision,omitempty"`
	Reason   string `json:"reason,omitempty"`

	PrevHash string `json:"prev_hash"`
}
