// Package bridge forwards session output and exit notifications to the
// single UI endpoint attached to the host.
//
// The UI attaches with Subscribe; every session emits through its own Sink.
// A Sink moves through subscribed, data*, exit, unsubscribed: nothing it
// receives after Exit is forwarded. A slow reader only grows its backlog;
// events are never dropped while a subscriber is attached.
package bridge

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remote-agent-terminal/claude-terminal/internal/fifo"
	"github.com/remote-agent-terminal/claude-terminal/internal/metrics"
)

// DefaultBacklogWarning is the number of undelivered events at which the
// bridge warns about a lagging subscriber.
const DefaultBacklogWarning = 4096

// EventType identifies a notification.
type EventType string

const (
	EventData EventType = "data"
	EventExit EventType = "exit"
)

// Event is one notification for the UI, tagged with its session.
// Data is encoded as base64 in JSON so chunks that split a UTF-8 sequence
// survive transport.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      []byte    `json:"data,omitempty"`
	ExitCode  *int      `json:"exitCode,omitempty"`
}

// Subscription is an attached UI endpoint. Events are queued without bound
// so publishers never block and nothing is dropped while it is attached.
type Subscription struct {
	id        string
	queue     *fifo.Queue[Event]
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription() *Subscription {
	s := &Subscription{
		id:     uuid.NewString(),
		queue:  fifo.New[Event](),
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

// pump hands queued events to the reader in order.
func (s *Subscription) pump() {
	defer close(s.events)
	for {
		ev, ok := s.queue.Pop()
		if !ok {
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// ID returns the subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the subscription has ended.
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Backlog returns the number of events queued but not yet read.
func (s *Subscription) Backlog() int {
	return s.queue.Len()
}

// send queues ev. It returns the backlog and false once the subscription
// has ended.
func (s *Subscription) send(ev Event) (int, bool) {
	return s.queue.Push(ev)
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.queue.Close()
	})
}

// Bridge routes session events to the current subscription.
type Bridge struct {
	backlogWarning int
	logger         *zap.Logger
	metrics        *metrics.Metrics

	mu      sync.RWMutex
	current *Subscription
}

// Options configures a Bridge.
type Options struct {
	// BacklogWarning defaults to DefaultBacklogWarning.
	BacklogWarning int
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// New creates a Bridge with no subscriber.
func New(opts Options) *Bridge {
	if opts.BacklogWarning <= 0 {
		opts.BacklogWarning = DefaultBacklogWarning
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bridge{
		backlogWarning: opts.BacklogWarning,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
}

// Subscribe attaches a new UI endpoint. The previous subscription, if any,
// is closed.
func (b *Bridge) Subscribe() *Subscription {
	sub := newSubscription()

	b.mu.Lock()
	prev := b.current
	b.current = sub
	b.mu.Unlock()

	if prev != nil {
		prev.close()
		b.logger.Info("subscriber replaced",
			zap.String("previous", prev.id),
			zap.String("subscriber", sub.id))
	} else {
		b.logger.Info("subscriber attached", zap.String("subscriber", sub.id))
	}
	b.metrics.SetSubscribers(1)
	return sub
}

// Unsubscribe ends sub. It has no effect if sub was already replaced.
func (b *Bridge) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	current := b.current == sub
	if current {
		b.current = nil
	}
	b.mu.Unlock()

	sub.close()
	if current {
		b.metrics.SetSubscribers(0)
		b.logger.Info("subscriber detached", zap.String("subscriber", sub.id))
	}
}

// Subscribed reports whether a UI endpoint is attached.
func (b *Bridge) Subscribed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current != nil && !b.current.Closed()
}

// Close ends the current subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	sub := b.current
	b.current = nil
	b.mu.Unlock()

	if sub != nil {
		sub.close()
		b.metrics.SetSubscribers(0)
	}
}

// Attach returns the sink a session emits through.
func (b *Bridge) Attach(sessionID string) *Sink {
	return &Sink{bridge: b, sessionID: sessionID}
}

func (b *Bridge) publish(ev Event) {
	b.mu.RLock()
	sub := b.current
	b.mu.RUnlock()

	if sub == nil {
		b.metrics.IncEventsDropped(string(ev.Type), metrics.DropNoSubscriber)
		return
	}

	backlog, ok := sub.send(ev)
	if !ok {
		b.metrics.IncEventsDropped(string(ev.Type), metrics.DropNoSubscriber)
		return
	}
	b.metrics.IncEventsDelivered(string(ev.Type))
	if backlog == b.backlogWarning {
		b.logger.Warn("subscriber is lagging",
			zap.String("subscriber", sub.id),
			zap.String("session_id", ev.SessionID),
			zap.Int("backlog", backlog))
	}
}

// Sink emits the events of one session.
type Sink struct {
	bridge    *Bridge
	sessionID string

	mu     sync.Mutex
	exited bool
}

// SessionID returns the session the sink belongs to.
func (s *Sink) SessionID() string {
	return s.sessionID
}

// Data forwards an output chunk. Chunks after Exit are dropped.
func (s *Sink) Data(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exited {
		s.bridge.metrics.IncEventsDropped(string(EventData), metrics.DropAfterExit)
		return
	}
	s.bridge.publish(Event{Type: EventData, SessionID: s.sessionID, Data: data})
}

// Exit forwards the exit notification. Only the first call has an effect;
// it reports whether this call was that one.
func (s *Sink) Exit(exitCode int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exited {
		return false
	}
	s.exited = true

	code := exitCode
	s.bridge.publish(Event{Type: EventExit, SessionID: s.sessionID, ExitCode: &code})
	return true
}
