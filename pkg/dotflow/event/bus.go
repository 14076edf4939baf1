package event

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// Handler consumes events delivered to a subscription. It runs on the
// subscription's own goroutine, so a slow handler delays only its own
// subscription, never the publisher.
type Handler func(ev dotflow.Event)

// Config tunes bus behavior.
type Config struct {
	// BufferSize is the per-subscription channel buffer. Default 256.
	BufferSize int

	// OnDrop is called with the evicted event when a subscription's
	// buffer overflows. Publish keeps the newest event and drops the
	// oldest.
	OnDrop func(ev dotflow.Event, subscriberID string)
}

const defaultBufferSize = 256

// Bus is an in-memory pub/sub fan-out for engine lifecycle events.
// Publish never blocks: each subscription buffers independently and
// overflowing buffers evict their oldest event. Safe for concurrent
// use.
type Bus struct {
	cfg Config

	mu        sync.RWMutex
	subs      map[string]*Subscription
	byType    map[dotflow.EventType]map[string]*Subscription
	wildcards map[string]*Subscription

	closed atomic.Bool
}

// NewBus creates a bus. A zero Config takes the defaults.
func NewBus(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Bus{
		cfg:       cfg,
		subs:      make(map[string]*Subscription),
		byType:    make(map[dotflow.EventType]map[string]*Subscription),
		wildcards: make(map[string]*Subscription),
	}
}

// Subscription is one consumer's attachment to the bus.
type Subscription struct {
	id      string
	types   []dotflow.EventType
	handler Handler
	events  chan dotflow.Event
	done    chan struct{}
	paused  atomic.Bool
	bus     *Bus
	once    sync.Once
}

// ID returns the subscription's unique id, as passed to OnDrop.
func (s *Subscription) ID() string { return s.id }

// Subscribe attaches a handler for the given event types. An empty
// type list subscribes to everything. Returns nil when the bus is
// closed.
func (b *Bus) Subscribe(types []dotflow.EventType, fn Handler) *Subscription {
	if b.closed.Load() || fn == nil {
		return nil
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		types:   types,
		handler: fn,
		events:  make(chan dotflow.Event, b.cfg.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*Subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}
	b.mu.Unlock()

	go sub.deliver()
	return sub
}

// SubscribeAll attaches a handler for every event type.
func (b *Bus) SubscribeAll(fn Handler) *Subscription {
	return b.Subscribe(nil, fn)
}

// Publish fans an event out to matching subscriptions without
// blocking. Paused subscriptions are skipped; full buffers drop their
// oldest event (reported through OnDrop) to admit the new one.
func (b *Bus) Publish(ev dotflow.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := b.matching(ev.Type)
	b.mu.RUnlock()

	for _, sub := range targets {
		if sub.paused.Load() {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			// Buffer full: evict the oldest so the newest lands.
			select {
			case dropped := <-sub.events:
				if b.cfg.OnDrop != nil {
					b.cfg.OnDrop(dropped, sub.id)
				}
			default:
			}
			select {
			case sub.events <- ev:
			default:
			}
		}
	}
}

func (b *Bus) matching(t dotflow.EventType) []*Subscription {
	targets := make([]*Subscription, 0, len(b.wildcards))
	if typed, ok := b.byType[t]; ok {
		for _, sub := range typed {
			targets = append(targets, sub)
		}
	}
	for _, sub := range b.wildcards {
		targets = append(targets, sub)
	}
	return targets
}

// Close stops delivery on every subscription. Publishing to a closed
// bus is a silent no-op. Close is idempotent.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.stop()
	}
	b.subs = make(map[string]*Subscription)
	b.byType = make(map[dotflow.EventType]map[string]*Subscription)
	b.wildcards = make(map[string]*Subscription)
	return nil
}

// deliver pumps buffered events into the handler until the
// subscription stops. Events buffered while paused are discarded at
// delivery time.
func (s *Subscription) deliver() {
	for {
		select {
		case ev := <-s.events:
			if s.paused.Load() {
				continue
			}
			s.handler(ev)
		case <-s.done:
			return
		}
	}
}

// Unsubscribe detaches from the bus and stops the delivery goroutine.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	delete(s.bus.wildcards, s.id)
	for _, t := range s.types {
		if typed, ok := s.bus.byType[t]; ok {
			delete(typed, s.id)
		}
	}
	s.bus.mu.Unlock()

	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Pause stops delivery until Resume. Events arriving while paused are
// dropped rather than queued.
func (s *Subscription) Pause() { s.paused.Store(true) }

// Resume restarts delivery after Pause.
func (s *Subscription) Resume() { s.paused.Store(false) }

// IsPaused reports whether the subscription is paused.
func (s *Subscription) IsPaused() bool { return s.paused.Load() }
