package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Evictor removes ended sessions.
type Evictor interface {
	Evict(ctx context.Context, code string) bool
}

// EvictionTimer removes ended sessions after a fixed retention using in-process
// timers. Pending evictions are lost on restart, which is harmless because the
// sessions are lost too.
type EvictionTimer struct {
	delay time.Duration
	log   *slog.Logger

	mu      sync.Mutex
	evictor Evictor
	timers  map[string]*time.Timer
}

func NewEvictionTimer(delay time.Duration, log *slog.Logger) *EvictionTimer {
	if log == nil {
		log = slog.Default()
	}
	return &EvictionTimer{
		delay:  delay,
		log:    log,
		timers: make(map[string]*time.Timer),
	}
}

// Attach sets the component that performs evictions. The service that schedules
// evictions is usually also the evictor, so it is wired after construction.
func (e *EvictionTimer) Attach(evictor Evictor) {
	e.mu.Lock()
	e.evictor = evictor
	e.mu.Unlock()
}

func (e *EvictionTimer) ScheduleEviction(_ context.Context, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[code]; ok {
		t.Stop()
	}
	e.timers[code] = time.AfterFunc(e.delay, func() { e.fire(code) })
	return nil
}

// Stop cancels every pending eviction.
func (e *EvictionTimer) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for code, t := range e.timers {
		t.Stop()
		delete(e.timers, code)
	}
}

// Pending reports how many evictions are scheduled.
func (e *EvictionTimer) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

func (e *EvictionTimer) fire(code string) {
	e.mu.Lock()
	evictor := e.evictor
	delete(e.timers, code)
	e.mu.Unlock()

	if evictor == nil {
		return
	}
	if evictor.Evict(context.Background(), code) {
		e.log.Debug("evicted ended session", "code", code)
	}
}
