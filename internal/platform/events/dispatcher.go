package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Handler consumes one event. Returning an error only affects logging; the
// dispatcher does not re-deliver, downstream consumers own their retries.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher fans committed events out to registered handlers on a worker
// pool. Publish enqueues without blocking the mutation path; when the buffer
// is full the event is logged and dropped rather than stalling a caller.
type Dispatcher struct {
	log      zerolog.Logger
	queue    chan Event
	handlers map[string][]Handler
	mu       sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	once     sync.Once
}

// NewDispatcher creates a dispatcher with the given buffer size and worker
// count. Workers start immediately.
func NewDispatcher(log zerolog.Logger, bufferSize, workers int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		log:      log,
		queue:    make(chan Event, bufferSize),
		handlers: make(map[string][]Handler),
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	return d
}

// Subscribe registers a handler for an event type. The pattern "*" receives
// every event.
func (d *Dispatcher) Subscribe(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Publish enqueues an event. Never blocks; a full buffer drops the event with
// a warning since delivery is at-least-once only while the process is healthy.
func (d *Dispatcher) Publish(ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.log.Warn().Str("event_id", ev.ID).Str("type", ev.Type).Msg("event buffer full, dropping event")
	}
}

// Close stops the workers after draining any queued events.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
		d.cancel()
	})
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for ev := range d.queue {
		d.dispatch(ctx, ev)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	handlers := append([]Handler{}, d.handlers[ev.Type]...)
	handlers = append(handlers, d.handlers["*"]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			d.log.Error().Err(err).Str("event_id", ev.ID).Str("type", ev.Type).Msg("event handler failed")
			continue
		}
	}
	d.log.Debug().Str("event_id", ev.ID).Str("type", ev.Type).Msg("event dispatched")
}
