package core

import (
	"sync"
	"time"
)

// DebugStatus tags a debug entry.
type DebugStatus string

const (
	DebugPending DebugStatus = "pending"
	DebugSuccess DebugStatus = "success"
	DebugError   DebugStatus = "error"
	DebugInfo    DebugStatus = "info"
)

// DebugEvent is one append-only diagnostic entry. Purely observational;
// it surfaces decisions, it never drives them.
type DebugEvent struct {
	Timestamp time.Time   `json:"ts"`
	Step      string      `json:"step"`
	Status    DebugStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
}

// DebugLog is a bounded append-only event feed for diagnostics UIs.
type DebugLog struct {
	mu   sync.RWMutex
	buf  []DebugEvent
	max  int
	subs []chan DebugEvent
}

func NewDebugLog(max int) *DebugLog {
	if max <= 0 {
		max = 256
	}
	return &DebugLog{max: max}
}

func (l *DebugLog) Append(step string, status DebugStatus, detail string) {
	ev := DebugEvent{Timestamp: time.Now(), Step: step, Status: status, Detail: detail}
	l.mu.Lock()
	l.buf = append(l.buf, ev)
	if len(l.buf) > l.max {
		l.buf = l.buf[len(l.buf)-l.max:]
	}
	subs := make([]chan DebugEvent, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Snapshot returns a copy of the retained feed, oldest first.
func (l *DebugLog) Snapshot() []DebugEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]DebugEvent, len(l.buf))
	copy(out, l.buf)
	return out
}

// Subscribe returns a channel receiving future entries. Slow consumers
// miss entries rather than block the producer.
func (l *DebugLog) Subscribe() (<-chan DebugEvent, func()) {
	ch := make(chan DebugEvent, 64)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		for i, s := range l.subs {
			if s == ch {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
