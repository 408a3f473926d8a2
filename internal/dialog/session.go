package dialog

import (
	"context"
	"time"
)

// State tags the session FSM.
type State string

const (
	// StateIdle means no active intent; all input is a fresh classification
	// request.
	StateIdle State = "idle"
	// StateCollecting means an intent is active and input answers the slot
	// currently being requested.
	StateCollecting State = "collecting"
)

// Choice is one selectable option in a rendered choice set.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Prompt is an outbound request for the next slot value. Token identifies the
// rendered choice set; answers referencing a superseded token are rejected.
type Prompt struct {
	Token     string   `json:"token"`
	Slot      string   `json:"slot"`
	Text      string   `json:"text"`
	Choices   []Choice `json:"choices,omitempty"`
	Error     string   `json:"error,omitempty"`
	AllowBack bool     `json:"allow_back,omitempty"`
}

// FilledSlot binds a validated value to a slot name. The slice preserves fill
// order so back navigation can unwind.
type FilledSlot struct {
	Name  string `json:"name"`
	Value Choice `json:"value"`
}

// Session is the per-user conversation state. It is a plain serializable
// value; all mutation happens under the manager's per-user lock.
type Session struct {
	PlatformUserID int64             `json:"platform_user_id"`
	InternalUserID string            `json:"internal_user_id,omitempty"`
	PatientName    string            `json:"patient_name,omitempty"`
	State          State             `json:"state"`
	Intent         string            `json:"intent,omitempty"`
	Filled         []FilledSlot      `json:"filled,omitempty"`
	Prefill        map[string]string `json:"prefill,omitempty"`
	LastPrompt     *Prompt           `json:"last_prompt,omitempty"`
	Attempts       int               `json:"attempts,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewSession creates an idle session for a platform user.
func NewSession(platformUserID int64) *Session {
	now := time.Now().UTC()
	return &Session{
		PlatformUserID: platformUserID,
		State:          StateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ClearIntent reverts the session to idle, keeping the identity mapping.
func (s *Session) ClearIntent() {
	s.State = StateIdle
	s.Intent = ""
	s.Filled = nil
	s.Prefill = nil
	s.LastPrompt = nil
	s.Attempts = 0
}

// Store persists sessions keyed by platform user id. Load returns nil for an
// absent or expired session. Implementations must be safe for concurrent use
// across users; per-user ordering is the manager's job.
type Store interface {
	Load(ctx context.Context, platformUserID int64) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context, platformUserID int64) error
}
