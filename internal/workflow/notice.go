package workflow

import (
	"sync"
	"time"

	"vizflow/internal/viz"
)

// maxNotices bounds the board; the oldest notice is dropped first.
const maxNotices = 50

// Notice is a dismissible, user-visible report of a failed operation.
type Notice struct {
	ID      int       `json:"id"`
	Kind    viz.Kind  `json:"kind"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NoticeBoard collects notices for one session.
type NoticeBoard struct {
	mu    sync.Mutex
	now   func() time.Time
	next  int
	items []Notice
}

func newNoticeBoard(now func() time.Time) *NoticeBoard {
	return &NoticeBoard{now: now, next: 1}
}

// Post records a notice for err raised by op.
func (b *NoticeBoard) Post(op string, err error) Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := Notice{
		ID:      b.next,
		Kind:    viz.Classify(err),
		Op:      op,
		Message: err.Error(),
		At:      b.now(),
	}
	b.next++
	b.items = append(b.items, n)
	if len(b.items) > maxNotices {
		b.items = append([]Notice(nil), b.items[len(b.items)-maxNotices:]...)
	}
	return n
}

// List returns the undismissed notices, oldest first.
func (b *NoticeBoard) List() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice(nil), b.items...)
}

// Dismiss removes the notice with id. It reports whether one was removed.
func (b *NoticeBoard) Dismiss(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// DismissAll empties the board.
func (b *NoticeBoard) DismissAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}
