package rmw

import (
	"context"
	"fmt"
	"time"

	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/msg"
)

// Node is a named handle on a runtime that deals in typed messages.
type Node struct {
	name   string
	rt     Runtime
	logger *log.Logger
}

func NewNode(rt Runtime, name string, logger *log.Logger) *Node {
	if logger == nil {
		logger = log.Default()
	}
	return &Node{
		name:   name,
		rt:     rt,
		logger: logger.WithPrefix(name),
	}
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Runtime() Runtime {
	return n.rt
}

// CreateSubscription decodes every payload on topic as typ and hands it to cb.
// Payloads that fail to decode abort the spin with the decode error.
func (n *Node) CreateSubscription(typ msg.Type, topic string, cb func(msg.Message) error, qos QoSProfile) (Subscription, error) {
	n.logger.Debugf("Subscribing to %s (%s) with qos %s", topic, typ.Name(), qos)
	return n.rt.Subscribe(topic, qos, func(payload []byte) error {
		m, err := typ.Unmarshal(payload)
		if err != nil {
			return fmt.Errorf("decoding message on %s: %w", topic, err)
		}
		return cb(m)
	})
}

func (n *Node) CreatePublisher(typ msg.Type, topic string, qos QoSProfile) *Publisher {
	return &Publisher{
		typ:   typ,
		topic: topic,
		qos:   qos,
		rt:    n.rt,
	}
}

func (n *Node) SpinOnce(ctx context.Context, timeout time.Duration) error {
	return n.rt.SpinOnce(ctx, timeout)
}

type Publisher struct {
	typ   msg.Type
	topic string
	qos   QoSProfile
	rt    Runtime
}

func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) Publish(ctx context.Context, m msg.Message) error {
	if m.TypeName() != p.typ.Name() {
		return fmt.Errorf("%w: publisher for '%s' got '%s'", msg.ErrTypeMismatch, p.typ.Name(), m.TypeName())
	}
	payload, err := msg.Marshal(m)
	if err != nil {
		return err
	}
	return p.rt.Publish(ctx, p.topic, p.qos, payload)
}
