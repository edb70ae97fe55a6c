package approval

import "time"

// Status of a DocumentApproval. Every status except pending is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// ChangeType names the kind of effect an approval applies.
type ChangeType string

const (
	ChangeTypeEdit   ChangeType = "edit"   // overwrite an existing file's content
	ChangeTypeCreate ChangeType = "create" // write a new file
	ChangeTypeCopy   ChangeType = "copy"   // copy a Drive file into a folder
)

// DocumentApproval is a proposed content mutation awaiting a human decision.
type DocumentApproval struct {
	ID              string     `json:"id" db:"id"`
	FileID          string     `json:"file_id" db:"file_id"`
	Title           string     `json:"title" db:"title"`
	Description     string     `json:"description" db:"description"`
	ChangeType      ChangeType `json:"change_type" db:"change_type"`
	OriginalContent string     `json:"original_content" db:"original_content"`
	ProposedContent string     `json:"proposed_content" db:"proposed_content"`
	AIReasoning     string     `json:"ai_reasoning" db:"ai_reasoning"`
	ConfidenceScore int        `json:"confidence_score" db:"confidence_score"` // 0-100
	Status          Status     `json:"status" db:"status"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at" db:"expires_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty" db:"decided_at"`

	// Provenance
	SessionID  string `json:"session_id,omitempty" db:"session_id"`
	UserID     string `json:"user_id,omitempty" db:"user_id"`
	ModelID    string `json:"model_id,omitempty" db:"model_id"`
	ToolCallID string `json:"tool_call_id,omitempty" db:"tool_call_id"`

	// Payload carries change-type specific data (e.g. target folder for copies).
	Payload map[string]interface{} `json:"payload,omitempty" db:"payload"`
}

// IsExpiredAt reports whether a pending record has passed its expiry at now.
func (a *DocumentApproval) IsExpiredAt(now time.Time) bool {
	return a.Status == StatusPending && !now.Before(a.ExpiresAt)
}

// PendingFilter narrows a pending listing. Nil fields match every record.
type PendingFilter struct {
	FileID *string
	UserID *string
}

// Matches reports whether a record passes the filter.
func (f PendingFilter) Matches(a *DocumentApproval) bool {
	if f.FileID != nil && a.FileID != *f.FileID {
		return false
	}
	if f.UserID != nil && a.UserID != *f.UserID {
		return false
	}
	return true
}

// PayloadString returns a string payload value or "".
func (a *DocumentApproval) PayloadString(key string) string {
	v, _ := a.Payload[key].(string)
	return v
}

// ClampConfidence bounds a score to 0-100.
func ClampConfidence(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

// Proposal is an intended effect returned by a content-mutating tool.
// It becomes a DocumentApproval; nothing is applied until a human approves.
type Proposal struct {
	FileID          string
	Title           string
	Description     string
	ChangeType      ChangeType
	OriginalContent string
	ProposedContent string
	Reasoning       string

	// Confidence is the model-supplied score; nil lets the handler default apply.
	Confidence *int
	// TTL overrides the default approval lifetime when positive.
	TTL time.Duration

	Payload map[string]interface{}

	// Filled in by the tool executor
	SessionID  string
	UserID     string
	ModelID    string
	ToolCallID string
}
