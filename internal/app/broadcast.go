package app

import (
	"log/slog"
	"sync"

	"live-quiz-service/internal/domain"
)

// Subscriber receives session events. Deliver may block; the router calls it from a
// dedicated goroutine per subscriber, one event at a time, in publish order.
type Subscriber interface {
	Deliver(ev domain.Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ev domain.Event) error

func (f SubscriberFunc) Deliver(ev domain.Event) error {
	return f(ev)
}

const defaultMailboxSize = 64

// BroadcastRouter fans session events out to member and watcher mailboxes.
type BroadcastRouter struct {
	log    *slog.Logger
	buffer int

	mu          sync.RWMutex
	rooms       map[string]*room
	nextWatcher uint64
}

type room struct {
	members  map[string]*mailbox
	watchers map[uint64]*mailbox
}

// NewBroadcastRouter creates a router whose mailboxes hold up to buffer pending events.
func NewBroadcastRouter(log *slog.Logger, buffer int) *BroadcastRouter {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultMailboxSize
	}
	return &BroadcastRouter{
		log:    log,
		buffer: buffer,
		rooms:  make(map[string]*room),
	}
}

// Publish enqueues ev for every subscriber of the session without blocking and
// returns how many mailboxes accepted it.
func (r *BroadcastRouter) Publish(code string, ev domain.Event) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[code]
	if !ok {
		return 0
	}
	sent := 0
	for userID, mb := range rm.members {
		if mb.offer(ev) {
			sent++
		} else {
			r.log.Warn("dropping event for slow member", "code", code, "user", userID, "type", ev.Type, "seq", ev.Seq)
		}
	}
	for _, mb := range rm.watchers {
		if mb.offer(ev) {
			sent++
		} else {
			r.log.Warn("dropping event for slow watcher", "code", code, "type", ev.Type, "seq", ev.Seq)
		}
	}
	return sent
}

// Send enqueues ev for a single member only.
func (r *BroadcastRouter) Send(code, userID string, ev domain.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return false
	}
	mb, ok := rm.members[userID]
	if !ok {
		return false
	}
	return mb.offer(ev)
}

// attach binds sub as the member's only subscriber, replacing any earlier one.
// A nil sub just drops the previous binding.
func (r *BroadcastRouter) attach(code, userID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.roomLocked(code)
	if old, ok := rm.members[userID]; ok {
		old.close()
		delete(rm.members, userID)
	}
	if sub != nil {
		rm.members[userID] = r.newMailbox(sub)
	}
}

func (r *BroadcastRouter) detach(code, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return
	}
	if mb, ok := rm.members[userID]; ok {
		mb.close()
		delete(rm.members, userID)
	}
}

// Watch subscribes an observer that is not a session member. The returned cancel
// function is safe to call more than once.
func (r *BroadcastRouter) Watch(code string, sub Subscriber) func() {
	r.mu.Lock()
	r.nextWatcher++
	id := r.nextWatcher
	r.roomLocked(code).watchers[id] = r.newMailbox(sub)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		rm, ok := r.rooms[code]
		if !ok {
			return
		}
		if mb, ok := rm.watchers[id]; ok {
			mb.close()
			delete(rm.watchers, id)
		}
	}
}

// CloseRoom stops every mailbox of the session.
func (r *BroadcastRouter) CloseRoom(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return
	}
	for _, mb := range rm.members {
		mb.close()
	}
	for _, mb := range rm.watchers {
		mb.close()
	}
	delete(r.rooms, code)
}

// Subscribers returns the number of live mailboxes for the session.
func (r *BroadcastRouter) Subscribers(code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[code]
	if !ok {
		return 0
	}
	return len(rm.members) + len(rm.watchers)
}

func (r *BroadcastRouter) roomLocked(code string) *room {
	rm, ok := r.rooms[code]
	if !ok {
		rm = &room{
			members:  make(map[string]*mailbox),
			watchers: make(map[uint64]*mailbox),
		}
		r.rooms[code] = rm
	}
	return rm
}

func (r *BroadcastRouter) newMailbox(sub Subscriber) *mailbox {
	mb := &mailbox{
		sub:   sub,
		queue: make(chan domain.Event, r.buffer),
	}
	go mb.run(r.log)
	return mb
}

// mailbox is a FIFO in front of one subscriber. offer and close are only called
// under the router lock, so a send never races the close.
type mailbox struct {
	sub    Subscriber
	queue  chan domain.Event
	closed bool
}

func (m *mailbox) offer(ev domain.Event) bool {
	if m.closed {
		return false
	}
	select {
	case m.queue <- ev:
		return true
	default:
		return false
	}
}

func (m *mailbox) close() {
	if m.closed {
		return
	}
	m.closed = true
	close(m.queue)
}

func (m *mailbox) run(log *slog.Logger) {
	for ev := range m.queue {
		if err := m.sub.Deliver(ev); err != nil {
			log.Debug("event delivery failed", "code", ev.Code, "type", ev.Type, "error", err)
		}
	}
}
