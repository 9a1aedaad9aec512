package core

import (
	"context"
	"errors"
	"time"
)

// ErrSenderNotFound is returned by a KnowledgeStore when no record exists
// for the requested identity.
var ErrSenderNotFound = errors.New("sender not found")

// Transport defines the interface for fetching and delivering email
type Transport interface {
	// FetchSince returns messages received after the given time
	FetchSince(ctx context.Context, since time.Time) ([]*Message, error)

	// Send delivers an outgoing message
	Send(ctx context.Context, to, subject, body string) error
}

// Classifier defines the interface for intent classification services
type Classifier interface {
	// Classify maps a message's subject and body to an intent and confidence
	Classify(ctx context.Context, subject, body string) (*Classification, error)
}

// Responder defines the interface for response generation services
type Responder interface {
	// Generate produces reply text for a message given the sender's history
	// and the classified intent. An empty result with a nil error means the
	// provider could not produce a usable draft.
	Generate(ctx context.Context, msg *Message, sender *Sender, intent Intent) (string, error)
}

// KnowledgeStore defines the interface for durable Sender persistence
type KnowledgeStore interface {
	// Get retrieves a sender record, or ErrSenderNotFound
	Get(ctx context.Context, identity string) (*Sender, error)

	// Add inserts a new sender record
	Add(ctx context.Context, sender *Sender) error

	// Update replaces an existing sender record
	Update(ctx context.Context, sender *Sender) error
}
