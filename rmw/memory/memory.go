// Package memory is a process-local rmw implementation. Runtimes attached to the same Bus
// see each other's publishes. Used for development and for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/rmw"
	"github.com/pingcap/failpoint"
)

const ID = "memory"

// FailpointDropPublish drops every publish on the bus while enabled.
const FailpointDropPublish = "github.com/celerway/commtest/rmw/memory/dropPublish"

// DefaultBus is used by runtimes created through the rmw registry.
var DefaultBus = NewBus()

func init() {
	rmw.Register(ID, func(p config.Params, logger *log.Logger) (rmw.Runtime, error) {
		return New(DefaultBus, p.QueueSize, logger), nil
	})
}

// Bus connects runtimes in the same process.
type Bus struct {
	mu       sync.RWMutex
	runtimes map[*Runtime]struct{}
	retained map[string][][]byte
	changed  chan struct{}
}

func NewBus() *Bus {
	return &Bus{
		runtimes: make(map[*Runtime]struct{}),
		retained: make(map[string][][]byte),
		changed:  make(chan struct{}),
	}
}

func (b *Bus) attach(r *Runtime) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runtimes[r] = struct{}{}
}

func (b *Bus) detach(r *Runtime) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.runtimes, r)
	b.notifyLocked()
}

// notifyLocked wakes up everybody in WaitForSubscribers. Caller holds mu.
func (b *Bus) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Bus) subscriptionsChanged() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyLocked()
}

// Publish hands the payload to every subscription on topic in every attached runtime.
// Transient local publishes are also retained, up to depth, for later subscribers.
func (b *Bus) Publish(ctx context.Context, topic string, qos rmw.QoSProfile, payload []byte) (int, error) {
	if v, err := failpoint.Eval(FailpointDropPublish); err == nil {
		if drop, ok := v.(bool); ok && drop {
			return 0, nil
		}
	}
	b.mu.Lock()
	if qos.Durability == rmw.TransientLocal {
		kept := append(b.retained[topic], append([]byte(nil), payload...))
		if qos.Depth > 0 && len(kept) > qos.Depth {
			kept = kept[len(kept)-qos.Depth:]
		}
		b.retained[topic] = kept
	}
	targets := make([]*Runtime, 0, len(b.runtimes))
	for r := range b.runtimes {
		targets = append(targets, r)
	}
	b.mu.Unlock()

	delivered := 0
	for _, r := range targets {
		delivered += r.d.Deliver(ctx, topic, payload)
	}
	return delivered, ctx.Err()
}

func (b *Bus) retainedFor(topic string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([][]byte(nil), b.retained[topic]...)
}

// SubscriberCount counts subscriptions on topic across attached runtimes.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for r := range b.runtimes {
		n += r.d.SubscriberCount(topic)
	}
	return n
}

// WaitForSubscribers blocks until topic has at least n subscriptions.
func (b *Bus) WaitForSubscribers(ctx context.Context, topic string, n int) error {
	for {
		b.mu.RLock()
		changed := b.changed
		b.mu.RUnlock()
		if b.SubscriberCount(topic) >= n {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type Runtime struct {
	bus    *Bus
	d      *rmw.Dispatcher
	logger *log.Logger
	once   sync.Once
}

func New(bus *Bus, queueSize int, logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.Default()
	}
	return &Runtime{
		bus:    bus,
		d:      rmw.NewDispatcher(queueSize),
		logger: logger,
	}
}

func (r *Runtime) ID() string {
	return ID
}

func (r *Runtime) Init(ctx context.Context) error {
	r.bus.attach(r)
	r.logger.Debug("Attached to in-process bus")
	return ctx.Err()
}

func (r *Runtime) Subscribe(topic string, qos rmw.QoSProfile, cb rmw.Callback) (rmw.Subscription, error) {
	sub, err := r.d.Add(topic, qos, cb, func() error {
		r.bus.subscriptionsChanged()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if qos.Durability == rmw.TransientLocal {
		// nobody is spinning yet, so a full queue would block forever
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		for _, payload := range r.bus.retainedFor(topic) {
			if !r.d.DeliverTo(ctx, sub, payload) {
				r.logger.Warnf("Queue full, dropped retained messages on %s", topic)
				break
			}
		}
		cancel()
	}
	r.bus.subscriptionsChanged()
	return sub, nil
}

func (r *Runtime) Publish(ctx context.Context, topic string, qos rmw.QoSProfile, payload []byte) error {
	n, err := r.bus.Publish(ctx, topic, qos, payload)
	r.logger.Tracef("Published on %s to %d subscriptions", topic, n)
	return err
}

func (r *Runtime) SpinOnce(ctx context.Context, timeout time.Duration) error {
	return r.d.SpinOnce(ctx, timeout)
}

func (r *Runtime) Shutdown() error {
	r.once.Do(func() {
		r.d.Close()
		r.bus.detach(r)
		r.logger.Debug("Detached from in-process bus")
	})
	return nil
}
