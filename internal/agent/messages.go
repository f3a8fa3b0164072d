package agent

import (
	"sync"
	"time"

	"github.com/aristath/goalrunner/internal/scheduler"
)

// DefaultRecentMessages is how many messages are folded into a prompt.
const DefaultRecentMessages = 5

// Message is one inter-agent message.
type Message struct {
	FromRole  scheduler.Role
	ToRole    scheduler.Role
	Content   string
	TaskID    string
	Timestamp time.Time
}

// MessageLog is an append-only, concurrency-safe message history.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{now: time.Now}
}

// Append adds a message, stamping it when Timestamp is zero.
func (l *MessageLog) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now()
	}
	l.messages = append(l.messages, msg)
}

// Recent returns a copy of the last n messages, oldest first.
func (l *MessageLog) Recent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := len(l.messages) - n
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), l.messages[start:]...)
}

// All returns a copy of every message.
func (l *MessageLog) All() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Message(nil), l.messages...)
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
