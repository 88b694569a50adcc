package bot

import (
	"sync"

	"sokol-alert/core/telegram"
)

// updateQueue serializes updates per key while keeping different keys
// concurrent. Messages and callbacks from one subscriber are handled
// in receipt order; a session answer arriving right behind another one
// must not be applied first.
type updateQueue struct {
	mu      sync.Mutex
	pending map[int64][]telegram.Update
	active  map[int64]bool
}

func newUpdateQueue() *updateQueue {
	return &updateQueue{
		pending: map[int64][]telegram.Update{},
		active:  map[int64]bool{},
	}
}

// Push appends the update to the key's queue and starts a drain worker
// unless one is already running for that key.
func (q *updateQueue) Push(key int64, upd telegram.Update, run func(telegram.Update)) {
	q.mu.Lock()
	q.pending[key] = append(q.pending[key], upd)
	if q.active[key] {
		q.mu.Unlock()
		return
	}
	q.active[key] = true
	q.mu.Unlock()

	go func() {
		for {
			q.mu.Lock()
			items := q.pending[key]
			if len(items) == 0 {
				delete(q.pending, key)
				delete(q.active, key)
				q.mu.Unlock()
				return
			}
			next := items[0]
			q.pending[key] = items[1:]
			q.mu.Unlock()
			run(next)
		}
	}()
}

// updateAuthor picks the serialization key for an update. Updates with
// no identifiable author do not need ordering.
func updateAuthor(upd telegram.Update) (int64, bool) {
	if upd.CallbackQuery != nil {
		return upd.CallbackQuery.From.ID, true
	}
	if upd.Message != nil && upd.Message.From != nil {
		return upd.Message.From.ID, true
	}
	return 0, false
}
