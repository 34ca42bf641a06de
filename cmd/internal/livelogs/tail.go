// Package livelogs collects the backend's log_entry frames for display.
//
// Entries are kept newest-first in a bounded buffer. Followers receive each
// entry as it arrives; pausing holds delivery (collection continues) and
// resuming flushes what arrived in the meantime, oldest first.
package livelogs

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

// DefaultCapacity bounds the buffer when NewTail gets a non-positive size.
const DefaultCapacity = 500

// Source is the channel side of a Tail.
type Source interface {
	Subscribe(typ string, fn func(v1.Envelope)) (cancel func())
}

type follower struct {
	id uint64
	fn func(v1.LogEntry)
}

// Tail is a bounded, newest-first log buffer with pausable delivery.
type Tail struct {
	log *slog.Logger
	cap int

	mu        sync.Mutex
	entries   []v1.LogEntry // newest first
	held      []v1.LogEntry // arrival order, while paused
	paused    bool
	followers []follower
	nextID    uint64
	dropped   int
}

// NewTail returns an empty Tail holding at most capacity entries.
func NewTail(capacity int, log *slog.Logger) *Tail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tail{log: log, cap: capacity}
}

// Attach feeds log_entry frames from src into t.
func (t *Tail) Attach(src Source) (cancel func()) {
	return src.Subscribe(v1.TypeLogEntry, func(e v1.Envelope) {
		var entry v1.LogEntry
		if err := e.Into(&entry); err != nil {
			t.log.Warn("livelogs.entry.malformed", "err", err)
			return
		}
		t.Add(entry)
	})
}

// Add records entry and delivers it unless paused.
func (t *Tail) Add(entry v1.LogEntry) {
	entry.Level = NormalizeLevel(entry.Level)

	t.mu.Lock()
	t.entries = append(t.entries, v1.LogEntry{})
	copy(t.entries[1:], t.entries)
	t.entries[0] = entry
	if len(t.entries) > t.cap {
		t.entries = t.entries[:t.cap]
		t.dropped++
	}

	if t.paused {
		t.held = append(t.held, entry)
		if len(t.held) > t.cap {
			t.held = t.held[len(t.held)-t.cap:]
		}
		t.mu.Unlock()
		return
	}
	fns := t.followersLocked()
	t.mu.Unlock()

	for _, fn := range fns {
		fn(entry)
	}
}

// Follow registers fn for new entries.
func (t *Tail) Follow(fn func(v1.LogEntry)) (cancel func()) {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.followers = append(t.followers, follower{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, f := range t.followers {
			if f.id == id {
				t.followers = append(t.followers[:i:i], t.followers[i+1:]...)
				return
			}
		}
	}
}

// Pause holds delivery to followers. Entries are still recorded.
func (t *Tail) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Resume restarts delivery, first flushing entries held while paused.
// It returns how many were flushed.
func (t *Tail) Resume() int {
	t.mu.Lock()
	if !t.paused {
		t.mu.Unlock()
		return 0
	}
	t.paused = false
	held := t.held
	t.held = nil
	fns := t.followersLocked()
	t.mu.Unlock()

	for _, e := range held {
		for _, fn := range fns {
			fn(e)
		}
	}
	return len(held)
}

// Toggle flips between paused and running and reports the new paused state.
func (t *Tail) Toggle() (paused bool) {
	t.mu.Lock()
	p := t.paused
	t.mu.Unlock()
	if p {
		t.Resume()
		return false
	}
	t.Pause()
	return true
}

// Paused reports whether delivery is held.
func (t *Tail) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Entries returns a newest-first snapshot.
func (t *Tail) Entries() []v1.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]v1.LogEntry(nil), t.entries...)
}

// Len returns the number of buffered entries.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Evicted returns how many entries fell off the end of the buffer.
func (t *Tail) Evicted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Clear empties the buffer and anything held.
func (t *Tail) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.held = nil
}

func (t *Tail) followersLocked() []func(v1.LogEntry) {
	fns := make([]func(v1.LogEntry), 0, len(t.followers))
	for _, f := range t.followers {
		fns = append(fns, f.fn)
	}
	return fns
}

// NormalizeLevel maps a level to ERROR, WARN or INFO. Anything unknown is INFO.
func NormalizeLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case v1.LevelError:
		return v1.LevelError
	case v1.LevelWarn, "WARNING":
		return v1.LevelWarn
	default:
		return v1.LevelInfo
	}
}

// Format renders one line: "15:04 | 02/01/2006 LEVEL message".
// A zero timestamp renders as "--:-- | --/--/----".
func Format(e v1.LogEntry, loc *time.Location) string {
	stamp := "--:-- | --/--/----"
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		if loc != nil {
			ts = ts.In(loc)
		}
		stamp = ts.Format("15:04 | 02/01/2006")
	}
	return fmt.Sprintf("%s %-5s %s", stamp, NormalizeLevel(e.Level), e.Message)
}
