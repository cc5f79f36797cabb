package rmw

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type delivery struct {
	sub     *subscription
	payload []byte
}

type subscription struct {
	id      int
	topic   string
	qos     QoSProfile
	cb      Callback
	onClose func() error
	d       *Dispatcher
	pending atomic.Int32
	closed  atomic.Bool
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.d.remove(s)
	if s.onClose != nil {
		return s.onClose()
	}
	return nil
}

// Dispatcher queues payloads delivered by transport goroutines until the owner of the
// runtime calls SpinOnce. All callbacks run inside SpinOnce.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    int
	subs      map[string]map[int]*subscription
	queue     chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		subs:  make(map[string]map[int]*subscription),
		queue: make(chan delivery, queueSize),
		done:  make(chan struct{}),
	}
}

// Add registers a callback for a topic. onClose, if set, runs once when the returned
// subscription is closed and lets the transport tear down its side.
func (d *Dispatcher) Add(topic string, qos QoSProfile, cb Callback, onClose func() error) (Subscription, error) {
	if cb == nil {
		return nil, errors.New("nil callback")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.done:
		return nil, ErrShutdown
	default:
	}
	if _, ok := d.subs[topic]; !ok {
		d.subs[topic] = make(map[int]*subscription)
	}
	s := &subscription{
		id:      d.nextID,
		topic:   topic,
		qos:     qos,
		cb:      cb,
		onClose: onClose,
		d:       d,
	}
	d.nextID++
	d.subs[topic][s.id] = s
	return s, nil
}

func (d *Dispatcher) remove(s *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if byTopic, ok := d.subs[s.topic]; ok {
		delete(byTopic, s.id)
		if len(byTopic) == 0 {
			delete(d.subs, s.topic)
		}
	}
}

func (d *Dispatcher) snapshot(topic string) []*subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*subscription, 0, len(d.subs[topic]))
	for _, s := range d.subs[topic] {
		out = append(out, s)
	}
	return out
}

// SubscriberCount returns the number of open subscriptions on a topic.
func (d *Dispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[topic])
}

// Deliver queues a payload for every subscription on the topic and returns how many
// subscriptions got it. Best effort subscriptions lose the payload when their depth is
// used up or the queue is full. Reliable ones wait for room, for ctx or for Close.
func (d *Dispatcher) Deliver(ctx context.Context, topic string, payload []byte) int {
	subs := d.snapshot(topic)
	if len(subs) == 0 {
		return 0
	}
	data := append([]byte(nil), payload...)
	queued := 0
	for _, s := range subs {
		if d.enqueue(ctx, s, data) {
			queued++
		}
		if ctx.Err() != nil {
			break
		}
	}
	return queued
}

// DeliverTo queues a payload for one subscription created by this dispatcher.
func (d *Dispatcher) DeliverTo(ctx context.Context, sub Subscription, payload []byte) bool {
	s, ok := sub.(*subscription)
	if !ok || s.d != d || s.closed.Load() {
		return false
	}
	return d.enqueue(ctx, s, append([]byte(nil), payload...))
}

func (d *Dispatcher) enqueue(ctx context.Context, s *subscription, data []byte) bool {
	dl := delivery{sub: s, payload: data}
	if s.qos.Reliability == BestEffort {
		if s.qos.Depth > 0 && int(s.pending.Load()) >= s.qos.Depth {
			return false
		}
		select {
		case d.queue <- dl:
			s.pending.Add(1)
			return true
		default:
			return false
		}
	}
	select {
	case d.queue <- dl:
		s.pending.Add(1)
		return true
	case <-ctx.Done():
	case <-d.done:
	}
	return false
}

// SpinOnce runs the callback for at most one queued payload and returns its error.
// It returns nil when the timeout expires without work.
func (d *Dispatcher) SpinOnce(ctx context.Context, timeout time.Duration) error {
	select {
	case <-d.done:
		return ErrShutdown
	default:
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case dl := <-d.queue:
		dl.sub.pending.Add(-1)
		if dl.sub.closed.Load() {
			return nil
		}
		return dl.sub.cb(dl.payload)
	case <-expired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrShutdown
	}
}

// Pending returns the number of queued payloads.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close releases blocked deliverers and makes further spins fail with ErrShutdown.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}
