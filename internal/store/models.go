package store

import "time"

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Speaker identifies which side of the call produced an utterance.
type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerOperator Speaker = "operator"
)

// ValidSpeaker reports whether s is a known speaker role.
func ValidSpeaker(s Speaker) bool {
	return s == SpeakerCustomer || s == SpeakerOperator
}

// Session is the durable record of one customer-to-operator call attempt.
// Sessions are never deleted, only marked ended.
type Session struct {
	ID            string     `json:"id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	OperatorID    *string    `json:"operator_id,omitempty"`
	Status        Status     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// LogEntry is one final transcription result in the conversation log.
// Interim results are never persisted as entries.
type LogEntry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Suggestion is one AI-generated reply suggestion surfaced to an operator.
type Suggestion struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Suggestion string    `json:"suggestion"`
	Context    string    `json:"context"`
	Used       bool      `json:"used"`
	CreatedAt  time.Time `json:"created_at"`
}

// KnowledgeEntry is one Q&A document in the knowledge base with its embedding.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Embedding []float64 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
