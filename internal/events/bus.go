// Package events provides a channel-based pub-sub bus for pipeline run updates.
package events

import (
	"sync"
	"time"

	"github.com/tenderwise/tenderflow/internal/models"
)

// RunEvent describes one observable pipeline state transition.
type RunEvent struct {
	Kind      string            `json:"kind"` // "task" or "run"
	TenderID  string            `json:"tenderId"`
	RunID     string            `json:"runId"`
	TaskID    string            `json:"taskId,omitempty"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// TaskEvent builds a task transition event.
func TaskEvent(tenderID, runID, taskID string, status models.TaskStatus, errMsg string) RunEvent {
	return RunEvent{
		Kind:      "task",
		TenderID:  tenderID,
		RunID:     runID,
		TaskID:    taskID,
		Status:    string(status),
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

// StatusEvent builds a run-level transition event.
func StatusEvent(tenderID, runID string, status models.RunStatus, errMsg string) RunEvent {
	return RunEvent{
		Kind:      "run",
		TenderID:  tenderID,
		RunID:     runID,
		Status:    string(status),
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

// Bus fans run events out to subscribers. Publishing never blocks: a
// subscriber with a full channel misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan RunEvent
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every published event.
// bufSize defaults to 64 if <= 0.
func (b *Bus) Subscribe(bufSize int) <-chan RunEvent {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan RunEvent, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes a channel returned by Subscribe and closes it.
func (b *Bus) Unsubscribe(ch <-chan RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish sends an event to all subscribers without blocking.
func (b *Bus) Publish(ev RunEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
