// Package audit records structured operational audit events for the ledger
// daemon, separate from the transaction log (which is the authoritative
// financial audit trail).
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventMutation EventType = "MUTATION"
	EventSystem   EventType = "SYSTEM"
	EventGenesis  EventType = "GENESIS"
)

// Event represents a structured audit record.
type Event struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actor_id"`
	Type      EventType         `json:"type"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events.
type Logger interface {
	Record(ctx context.Context, actorID string, eventType EventType, action, resource string, metadata map[string]string) error
}

// logger implements Logger, writing structured JSON to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(_ context.Context, actorID string, eventType EventType, action, resource string, metadata map[string]string) error {
	if actorID == "" {
		actorID = "system"
	}
	event := Event{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}
