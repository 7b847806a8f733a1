package entities

import "time"

type Phase string

const (
	PhaseNew           Phase = "NEW"
	PhaseAwaitName     Phase = "AWAIT_NAME"
	PhaseAwaitPhone    Phase = "AWAIT_PHONE"
	PhaseAwaitQuestion Phase = "AWAIT_QUESTION"
	PhaseCompleted     Phase = "COMPLETED"
	PhaseCancelled     Phase = "CANCELLED"
)

// Terminal reports whether the phase ends a conversation.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}

// Guided reports whether the phase is inside the lead-capture flow.
func (p Phase) Guided() bool {
	return p == PhaseAwaitName || p == PhaseAwaitPhone || p == PhaseAwaitQuestion
}

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per (channel, user) dialogue record.
type ConversationState struct {
	Channel           Channel
	UserID            string
	ConversationID    string
	Phase             Phase
	CollectedName     string
	CollectedPhone    string
	CollectedQuestion string
	Transcript        []Turn
	UpdatedAt         time.Time
}

// ClearCollected drops the lead fields gathered so far.
func (s *ConversationState) ClearCollected() {
	s.CollectedName = ""
	s.CollectedPhone = ""
	s.CollectedQuestion = ""
}

type LeadStatus string

const (
	LeadCompleted LeadStatus = "completed"
	LeadCancelled LeadStatus = "cancelled"
)

// LeadRecord is the snapshot forwarded to the operator when a flow ends.
type LeadRecord struct {
	Status         LeadStatus
	ConversationID string
	Channel        Channel
	UserID         string
	Username       string
	DisplayName    string
	Name           string
	Phone          string
	Question       string
	Transcript     []Turn
}
