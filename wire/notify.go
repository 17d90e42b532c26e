package wire

import (
	"sync"

	"github.com/golang-collections/go-datastructures/queue"

	"github.com/user/gattclient/logger"
	"github.com/user/gattclient/wire/att"
)

// DefaultMaxSubscriptions is the capacity of the subscription table
const DefaultMaxSubscriptions = 16

// NotificationHandler receives the value of a notification or indication.
// With synchronous dispatch it runs on the receive goroutine, value is only
// valid for the duration of the call, and the handler must not block or call
// back into the Device.
type NotificationHandler func(value []byte)

type subscription struct {
	valueHandle att.Handle
	indicate    bool
	handler     NotificationHandler
}

// subscriptionTable is append-only with a fixed capacity.
type subscriptionTable struct {
	mu      sync.RWMutex
	entries []subscription
	limit   int
}

func newSubscriptionTable(limit int) *subscriptionTable {
	return &subscriptionTable{entries: make([]subscription, 0, limit), limit: limit}
}

func (t *subscriptionTable) full() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) >= t.limit
}

func (t *subscriptionTable) add(s subscription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= t.limit {
		return att.ErrFull
	}
	t.entries = append(t.entries, s)
	return nil
}

// lookup returns the handlers registered for a value handle
func (t *subscriptionTable) lookup(h att.Handle) []NotificationHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []NotificationHandler
	for _, s := range t.entries {
		if s.valueHandle == h {
			out = append(out, s.handler)
		}
	}
	return out
}

func (t *subscriptionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// dispatcher runs notification handlers
type dispatcher interface {
	dispatch(h NotificationHandler, value []byte)
	close()
}

type syncDispatcher struct{}

func (syncDispatcher) dispatch(h NotificationHandler, value []byte) { h(value) }
func (syncDispatcher) close()                                      {}

type delivery struct {
	handler NotificationHandler
	value   []byte
}

// queueDispatcher hands notifications to a single worker goroutine so slow
// handlers do not stall the receive loop. Ordering is preserved.
type queueDispatcher struct {
	prefix string
	q      *queue.Queue
}

func newQueueDispatcher(prefix string, hint int64) *queueDispatcher {
	d := &queueDispatcher{prefix: prefix, q: queue.New(hint)}
	go d.run()
	return d
}

func (d *queueDispatcher) dispatch(h NotificationHandler, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	if err := d.q.Put(delivery{handler: h, value: v}); err != nil {
		logger.Debug(d.prefix, "notification dropped: %v", err)
	}
}

func (d *queueDispatcher) run() {
	for {
		items, err := d.q.Get(1)
		if err != nil {
			return
		}
		for _, item := range items {
			dl := item.(delivery)
			dl.handler(dl.value)
		}
	}
}

func (d *queueDispatcher) close() {
	d.q.Dispose()
}
