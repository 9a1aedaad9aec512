package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SenderLedger is a read-through cache over the KnowledgeStore. Once a
// sender is loaded the cached record is authoritative for the process
// lifetime; the store is written through on create and on every recorded
// interaction. Per-identity locks keep concurrent first contact from the
// same address from creating two records, without serializing unrelated
// senders behind one mutex.
type SenderLedger struct {
	store  KnowledgeStore
	logger *zap.Logger

	mu      sync.Mutex
	senders map[string]*Sender
	locks   map[string]*sync.Mutex
}

// NewSenderLedger creates a ledger backed by the given store.
func NewSenderLedger(store KnowledgeStore, logger *zap.Logger) *SenderLedger {
	return &SenderLedger{
		store:   store,
		logger:  logger,
		senders: make(map[string]*Sender),
		locks:   make(map[string]*sync.Mutex),
	}
}

// GetOrCreate returns the cached sender, loading it from the store or
// constructing a new record on first contact.
func (l *SenderLedger) GetOrCreate(ctx context.Context, identity, name string) (*Sender, error) {
	keyLock := l.lockFor(identity)
	keyLock.Lock()
	defer keyLock.Unlock()

	if sender := l.cached(identity); sender != nil {
		return sender, nil
	}

	sender, err := l.store.Get(ctx, identity)
	switch {
	case err == nil:
		// loaded from store
	case err == ErrSenderNotFound:
		sender = &Sender{Identity: identity, Name: name}
		if err := l.store.Add(ctx, sender); err != nil {
			return nil, fmt.Errorf("failed to persist new sender %s: %w", identity, err)
		}
		l.logger.Info("Created new sender record", zap.String("identity", identity))
	default:
		return nil, fmt.Errorf("failed to load sender %s: %w", identity, err)
	}

	l.mu.Lock()
	l.senders[identity] = sender
	l.mu.Unlock()
	return sender, nil
}

// RecordInteraction appends an interaction to the sender's history, bumps
// the last-interaction timestamp, and writes the record through to the
// store. Every successful send must be followed by this call. Appends for
// one sender land in send-completion order, which under parallel batch
// processing is not necessarily arrival order.
//
// The store receives a snapshot cloned under the key lock; the live record
// is never read outside it, so a concurrent append for the same sender
// cannot race the store write.
func (l *SenderLedger) RecordInteraction(ctx context.Context, sender *Sender, msg *Message, responseText string, intent Intent) error {
	keyLock := l.lockFor(sender.Identity)
	keyLock.Lock()
	now := time.Now()
	sender.History = append(sender.History, Interaction{
		Timestamp: now,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Response:  responseText,
		Intent:    intent,
	})
	sender.LastInteraction = now
	snapshot := sender.Clone()
	keyLock.Unlock()

	if err := l.store.Update(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to update sender %s: %w", sender.Identity, err)
	}
	return nil
}

// Snapshot returns a deep copy of the sender taken under its key lock. Any
// read of the record outside the lock, such as prompt building, must go
// through a snapshot so a concurrent RecordInteraction cannot mutate the
// history mid-read.
func (l *SenderLedger) Snapshot(sender *Sender) *Sender {
	keyLock := l.lockFor(sender.Identity)
	keyLock.Lock()
	defer keyLock.Unlock()
	return sender.Clone()
}

func (l *SenderLedger) cached(identity string) *Sender {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.senders[identity]
}

func (l *SenderLedger) lockFor(identity string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[identity] = lock
	}
	return lock
}
