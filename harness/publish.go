package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/fixtures"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/msg"
	"github.com/celerway/commtest/rmw"
)

type PublishParams struct {
	MessageName    string
	Runtime        rmw.Runtime
	Implementation string
	Config         config.Params
	Cycles         int
	Period         time.Duration
	QoS            rmw.QoSProfile
	NodeName       string
	Logger         *log.Logger
	// Initialized, if set, runs after Init and before the first publish. Used to wait for
	// listeners on transports without durable delivery.
	Initialized func(ctx context.Context, rt rmw.Runtime) error
}

// Publish sends the full fixture set of p.MessageName once per cycle and sleeps p.Period
// between cycles. It returns the number of messages published.
func Publish(ctx context.Context, p PublishParams) (int, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	rt := p.Runtime
	if rt == nil {
		var err error
		rt, err = rmw.New(p.Implementation, p.Config, logger)
		if err != nil {
			return 0, err
		}
	}
	defer func() {
		if err := rt.Shutdown(); err != nil {
			logger.Warnf("runtime shutdown: %s", err)
		}
	}()

	typ, err := msg.Lookup(p.MessageName)
	if err != nil {
		return 0, err
	}
	messages, err := fixtures.ForType(p.MessageName)
	if err != nil {
		return 0, err
	}
	if p.Cycles <= 0 {
		return 0, fmt.Errorf("number of cycles must be positive, got %d", p.Cycles)
	}
	if err := rt.Init(ctx); err != nil {
		return 0, fmt.Errorf("initializing %s runtime: %w", rt.ID(), err)
	}
	if p.Initialized != nil {
		if err := p.Initialized(ctx, rt); err != nil {
			return 0, err
		}
	}
	nodeName := p.NodeName
	if nodeName == "" {
		nodeName = "publisher"
	}
	pub := rmw.NewNode(rt, nodeName, logger).CreatePublisher(typ, rmw.TopicName(p.MessageName), p.QoS)

	logger.Info("publisher: beginning loop")
	sent := 0
	for cycle := 0; cycle < p.Cycles; cycle++ {
		if cycle > 0 && p.Period > 0 {
			select {
			case <-time.After(p.Period):
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
		for i, m := range messages {
			if err := pub.Publish(ctx, m); err != nil {
				return sent, fmt.Errorf("publishing message #%d of %d: %w", i+1, len(messages), err)
			}
			sent++
			logger.Debugf("published message #%d of %d", i+1, len(messages))
		}
		logger.Infof("publisher: cycle %d of %d done", cycle+1, p.Cycles)
	}
	return sent, nil
}
