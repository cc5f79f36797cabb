// Package bridge relays raw payloads from one rmw implementation to another, so that a
// talker on one transport can be checked by a listener on a different one.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/msg"
	"github.com/celerway/commtest/observability"
	"github.com/celerway/commtest/rmw"
)

// DefaultTopics returns the topics of every registered message type.
func DefaultTopics() []string {
	names := msg.Names()
	topics := make([]string, 0, len(names))
	for _, name := range names {
		topics = append(topics, rmw.TopicName(name))
	}
	return topics
}

// Run initializes both runtimes, subscribes to the topics on the source and republishes
// everything on the destination until ctx is cancelled. Both runtimes are shut down on
// return. It returns the number of relayed payloads.
func Run(ctx context.Context, p Params) (int, error) {
	if p.From == nil || p.To == nil {
		return 0, errors.New("bridge needs a source and a destination runtime")
	}
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	br := &bridge{
		from:   p.From,
		to:     p.To,
		qos:    p.QoS,
		obsCh:  p.ObsChannel,
		logger: logger.WithPrefix("bridge"),
	}
	defer br.shutdown()

	if err := br.from.Init(ctx); err != nil {
		return 0, fmt.Errorf("initializing source %s: %w", br.from.ID(), err)
	}
	if err := br.to.Init(ctx); err != nil {
		return 0, fmt.Errorf("initializing destination %s: %w", br.to.ID(), err)
	}
	topics := p.Topics
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	for _, topic := range topics {
		sub, err := br.from.Subscribe(topic, br.qos, br.relayTo(ctx, topic))
		if err != nil {
			return 0, fmt.Errorf("subscribing to %s on %s: %w", topic, br.from.ID(), err)
		}
		defer sub.Close()
	}
	br.logger.Infof("Relaying %d topics from %s to %s", len(topics), br.from.ID(), br.to.ID())
	if p.Subscribed != nil {
		p.Subscribed()
	}
	return br.mainloop(ctx, p.SpinTimeout)
}

func (br *bridge) relayTo(ctx context.Context, topic string) rmw.Callback {
	return func(payload []byte) error {
		if err := br.to.Publish(ctx, topic, br.qos, payload); err != nil {
			return fmt.Errorf("relaying %s to %s: %w", topic, br.to.ID(), err)
		}
		br.relayed++
		br.logger.Tracef("Relayed %d bytes on %s", len(payload), topic)
		observability.Report(ctx, br.obsCh, observability.MessageRelayed)
		return nil
	}
}

func (br *bridge) mainloop(ctx context.Context, spinTimeout time.Duration) (int, error) {
	keepRunning := true
	for keepRunning {
		err := br.from.SpinOnce(ctx, spinTimeout)
		switch {
		case ctx.Err() != nil:
			br.logger.Debug("Bridge shutting down.")
			keepRunning = false
		case err != nil:
			return br.relayed, err
		}
	}
	return br.relayed, nil
}

func (br *bridge) shutdown() {
	if err := br.from.Shutdown(); err != nil {
		br.logger.Warnf("Shutting down %s: %s", br.from.ID(), err)
	}
	if err := br.to.Shutdown(); err != nil {
		br.logger.Warnf("Shutting down %s: %s", br.to.ID(), err)
	}
}
