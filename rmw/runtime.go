// Package rmw is the middleware layer the communication tests drive. A Runtime wraps one
// transport (MQTT, Kafka, libp2p GossipSub or the in-process bus). Transports hand incoming
// payloads to a Dispatcher; the caller pumps the Dispatcher with SpinOnce so that callbacks
// run on the caller's goroutine.
package rmw

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
)

var (
	ErrUnknownImplementation = errors.New("unknown rmw implementation")
	ErrShutdown              = errors.New("runtime is shut down")
)

// Callback handles one raw payload. A returned error aborts the SpinOnce that invoked it.
type Callback func(payload []byte) error

type Subscription interface {
	Topic() string
	Close() error
}

type Runtime interface {
	ID() string
	Init(ctx context.Context) error
	Subscribe(topic string, qos QoSProfile, cb Callback) (Subscription, error)
	Publish(ctx context.Context, topic string, qos QoSProfile, payload []byte) error
	// SpinOnce dispatches at most one pending payload. A timeout <= 0 waits until a
	// payload arrives or ctx is done.
	SpinOnce(ctx context.Context, timeout time.Duration) error
	Shutdown() error
}

// Factory builds a Runtime from the run parameters.
type Factory func(p config.Params, logger *log.Logger) (Runtime, error)

// DefaultImplementation is listed first by Implementations.
const DefaultImplementation = "mqtt"

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes an implementation available under id. Implementations register
// themselves from init.
func Register(id string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("rmw: Register factory is nil")
	}
	if _, dup := factories[id]; dup {
		panic("rmw: Register called twice for " + id)
	}
	factories[id] = f
}

// Implementations lists the registered ids, the default first and the rest sorted.
func Implementations() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	ids := make([]string, 0, len(factories))
	for id := range factories {
		if id != DefaultImplementation {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if _, ok := factories[DefaultImplementation]; ok {
		ids = append([]string{DefaultImplementation}, ids...)
	}
	return ids
}

// New creates a runtime of the given implementation. The runtime is not initialized.
func New(id string, p config.Params, logger *log.Logger) (Runtime, error) {
	factoriesMu.RLock()
	f, ok := factories[id]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %v)", ErrUnknownImplementation, id, Implementations())
	}
	if logger == nil {
		logger = log.Default()
	}
	return f(p, logger.WithPrefix("rmw-"+id))
}

// TopicName is the topic a message type is exchanged on.
func TopicName(messageName string) string {
	return "test_message_" + messageName
}
