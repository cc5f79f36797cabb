// Package harness drives the communication tests. Run is the listener side: it subscribes
// to the topic of one message type and checks that every fixture message arrives. Publish
// is the talker side.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/fixtures"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/msg"
	"github.com/celerway/commtest/observability"
	"github.com/celerway/commtest/rmw"
)

const DefaultNodeName = "subscriber"

type Params struct {
	MessageName string
	// Runtime is used when set. Otherwise one is created from Implementation and Config.
	Runtime        rmw.Runtime
	Implementation string
	Config         config.Params
	Cycles         int
	SpinTimeout    time.Duration
	QoS            rmw.QoSProfile
	NodeName       string
	ObsChannel     observability.Channel
	Logger         *log.Logger
	// Subscribed is called once the subscription is open, before the loop starts.
	Subscribed func()
}

type Result struct {
	Expected int
	Received int
	Cycles   int
}

type listener struct {
	expected []msg.Message
	received []bool
	count    int
	obsCh    observability.Channel
	logger   *log.Logger
}

// handle classifies one delivered message. Only the first delivery of an expected
// message is counted.
func (l *listener) handle(ctx context.Context, m msg.Message) error {
	for i, want := range l.expected {
		if !want.Equal(m) {
			continue
		}
		l.logger.Infof("received message #%d of %d", i+1, len(l.expected))
		if l.received[i] {
			l.logger.Debugf("message #%d already received", i+1)
			observability.Report(ctx, l.obsCh, observability.MessageDuplicate)
			return nil
		}
		l.received[i] = true
		l.count++
		observability.Report(ctx, l.obsCh, observability.MessageReceived)
		return nil
	}
	observability.Report(ctx, l.obsCh, observability.MessageUnexpected)
	return &UnexpectedMessageError{Message: m}
}

func (l *listener) done() bool {
	return l.count == len(l.expected)
}

// Run subscribes to the topic of p.MessageName and spins the runtime until every expected
// message was received or p.Cycles spins have been made. The runtime is shut down before
// Run returns, also when the message name is unknown. A cancelled ctx ends the run with
// ctx.Err().
func Run(ctx context.Context, p Params) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	var res Result
	rt := p.Runtime
	if rt == nil {
		var err error
		rt, err = rmw.New(p.Implementation, p.Config, logger)
		if err != nil {
			return res, err
		}
	}
	defer func() {
		if err := rt.Shutdown(); err != nil {
			logger.Warnf("runtime shutdown: %s", err)
		}
	}()

	typ, err := msg.Lookup(p.MessageName)
	if err != nil {
		return res, err
	}
	expected, err := fixtures.ForType(p.MessageName)
	if err != nil {
		return res, err
	}
	res.Expected = len(expected)
	if p.Cycles <= 0 {
		return res, fmt.Errorf("number of cycles must be positive, got %d", p.Cycles)
	}
	if err := rt.Init(ctx); err != nil {
		return res, fmt.Errorf("initializing %s runtime: %w", rt.ID(), err)
	}

	nodeName := p.NodeName
	if nodeName == "" {
		nodeName = DefaultNodeName
	}
	node := rmw.NewNode(rt, nodeName, logger)
	l := &listener{
		expected: expected,
		received: make([]bool, len(expected)),
		obsCh:    p.ObsChannel,
		logger:   logger,
	}
	topic := rmw.TopicName(p.MessageName)
	sub, err := node.CreateSubscription(typ, topic, func(m msg.Message) error {
		return l.handle(ctx, m)
	}, p.QoS)
	if err != nil {
		return res, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	defer sub.Close()
	if p.Subscribed != nil {
		p.Subscribed()
	}

	logger.Info("subscriber: beginning loop")
	for ctx.Err() == nil && res.Cycles < p.Cycles && !l.done() {
		err := node.SpinOnce(ctx, p.SpinTimeout)
		res.Cycles++
		observability.Report(ctx, p.ObsChannel, observability.SpinCycle)
		if err != nil && !errors.Is(err, ctx.Err()) {
			res.Received = l.count
			return res, err
		}
	}
	res.Received = l.count
	switch {
	case l.done():
		observability.Report(ctx, p.ObsChannel, observability.DeliveryComplete)
		return res, nil
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		observability.Report(ctx, p.ObsChannel, observability.DeliveryIncomplete)
		return res, &IncompleteDeliveryError{Expected: res.Expected, Actual: res.Received}
	}
}
