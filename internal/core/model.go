package core

import (
	"time"
)

// Intent is the classified purpose of an inbound student email.
type Intent string

const (
	IntentAssignmentQuestion   Intent = "assignment_question"
	IntentGradeInquiry         Intent = "grade_inquiry"
	IntentConceptualQuestion   Intent = "conceptual_question"
	IntentAdministrative       Intent = "administrative"
	IntentTechnicalIssue       Intent = "technical_issue"
	IntentPersonalCircumstance Intent = "personal_circumstance"
	IntentOther                Intent = "other"
)

// NormalizeIntent maps an arbitrary classifier label onto the closed intent
// set, falling back to IntentOther for anything unrecognized.
func NormalizeIntent(label string) Intent {
	switch Intent(label) {
	case IntentAssignmentQuestion, IntentGradeInquiry, IntentConceptualQuestion,
		IntentAdministrative, IntentTechnicalIssue, IntentPersonalCircumstance,
		IntentOther:
		return Intent(label)
	default:
		return IntentOther
	}
}

// Message represents an inbound email message
type Message struct {
	ID         string
	SenderAddr string
	SenderName string
	Subject    string
	Body       string
	ReceivedAt time.Time
	ThreadID   string
}

// Classification represents the result of intent classification
type Classification struct {
	Intent     Intent
	Confidence float64
}

// Interaction is one inbound message plus the response that was sent for it.
type Interaction struct {
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Response  string    `json:"response"`
	Intent    Intent    `json:"intent"`
}

// Sender is a student with accumulated interaction history. The identity
// (email address) is the primary key everywhere senders are stored.
type Sender struct {
	Identity        string        `json:"identity"`
	Name            string        `json:"name"`
	History         []Interaction `json:"history"`
	LastInteraction time.Time     `json:"last_interaction"`
}

// RecentHistory returns up to limit of the most recent interactions.
func (s *Sender) RecentHistory(limit int) []Interaction {
	if limit <= 0 || len(s.History) <= limit {
		return s.History
	}
	return s.History[len(s.History)-limit:]
}

// Clone returns a deep copy whose history does not alias the original.
func (s *Sender) Clone() *Sender {
	dup := *s
	dup.History = make([]Interaction, len(s.History))
	copy(dup.History, s.History)
	return &dup
}

// ApprovalStatus is the lifecycle state of an approval item
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRevised   ApprovalStatus = "revised"
	ApprovalDiscarded ApprovalStatus = "discarded"
)

// ApprovalItem pairs an inbound message with a drafted response awaiting
// human review. Once resolved or discarded it leaves the active queue; its
// ID is never reused.
type ApprovalItem struct {
	ID        string
	Message   *Message
	Sender    *Sender
	Intent    Intent
	Draft     string
	CreatedAt time.Time
	Status    ApprovalStatus
}
