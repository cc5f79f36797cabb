// Package mqtt is the rmw implementation on top of an MQTT broker.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/rmw"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const ID = "mqtt"

const tokenTimeout = 10 * time.Second

func init() {
	rmw.Register(ID, func(p config.Params, logger *log.Logger) (rmw.Runtime, error) {
		params := Params{
			Broker:    p.MQTT.Broker,
			Port:      p.MQTT.Port,
			Clientid:  p.MQTT.ClientId,
			Tls:       p.MQTT.Tls,
			QueueSize: p.QueueSize,
		}
		if p.MQTT.Tls {
			tlsConfig, err := NewTlsConfig(p.MQTT.TlsRootCrtFile, p.MQTT.ClientCertFile, p.MQTT.ClientKeyFile)
			if err != nil {
				return nil, err
			}
			params.TlsConfig = tlsConfig
		}
		return New(params, logger), nil
	})
}

type Params struct {
	Broker    string
	Port      int
	Clientid  string
	Tls       bool
	TlsConfig *tls.Config
	QueueSize int
}

type client struct {
	paho     paho.Client
	params   Params
	clientId string
	d        *rmw.Dispatcher
	logger   *log.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	topics map[string]*topicState
	once   sync.Once
}

type topicState struct {
	qos  byte
	refs int
}

// New creates an MQTT runtime. A client id is generated when none is given.
func New(p Params, logger *log.Logger) rmw.Runtime {
	if logger == nil {
		logger = log.Default()
	}
	clientId := p.Clientid
	if clientId == "" {
		clientId = "commtest-" + uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		params:   p,
		clientId: clientId,
		d:        rmw.NewDispatcher(p.QueueSize),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[string]*topicState),
	}
}

func (c *client) ID() string {
	return ID
}

func brokerURL(p Params) string {
	if p.Tls {
		return fmt.Sprintf("ssl://%s:%d", p.Broker, p.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", p.Broker, p.Port)
}

func (c *client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(c.params))
	if c.params.Tls {
		opts.SetTLSConfig(c.params.TlsConfig)
	}
	opts.SetClientID(c.clientId)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warnf("Lost connection to broker: %s", err)
	})
	// A clean session forgets subscriptions, so they are renewed on every (re)connect.
	opts.SetOnConnectHandler(func(pc paho.Client) {
		c.logger.Debugf("Client %s connected to %s", c.clientId, brokerURL(c.params))
		c.resubscribe(pc)
	})
	return opts
}

// Init connects to the broker. Blocks until the connection is established or fails.
func (c *client) Init(ctx context.Context) error {
	c.logger.Debugf("Broker: %s:%d (tls: %v)", c.params.Broker, c.params.Port, c.params.Tls)
	c.paho = paho.NewClient(c.options())
	token := c.paho.Connect()
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("connecting to %s: %w", brokerURL(c.params), err)
	}
	return nil
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(tokenTimeout):
		return errors.New("timed out waiting for broker")
	}
}

func mqttQos(q rmw.QoSProfile) byte {
	if q.Reliability == rmw.BestEffort {
		return 0
	}
	return 1
}

func (c *client) handler(_ paho.Client, m paho.Message) {
	n := c.d.Deliver(c.ctx, m.Topic(), m.Payload())
	c.logger.Tracef("Message on %s queued for %d subscriptions", m.Topic(), n)
}

func (c *client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, st := range c.topics {
		token := pc.Subscribe(topic, st.qos, c.handler)
		go func(topic string) {
			if err := waitToken(c.ctx, token); err != nil {
				c.logger.Errorf("Renewing subscription on %s: %s", topic, err)
			}
		}(topic)
	}
}

func (c *client) Subscribe(topic string, qos rmw.QoSProfile, cb rmw.Callback) (rmw.Subscription, error) {
	if c.paho == nil {
		return nil, errors.New("mqtt runtime not initialized")
	}
	sub, err := c.d.Add(topic, qos, cb, func() error { return c.release(topic) })
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	st, ok := c.topics[topic]
	if !ok {
		st = &topicState{qos: mqttQos(qos)}
		c.topics[topic] = st
	}
	st.refs++
	c.mu.Unlock()
	if ok {
		return sub, nil
	}
	if err := waitToken(c.ctx, c.paho.Subscribe(topic, st.qos, c.handler)); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	c.logger.Debugf("Subscribed to %s with qos %d", topic, st.qos)
	return sub, nil
}

func (c *client) release(topic string) error {
	c.mu.Lock()
	st, ok := c.topics[topic]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	st.refs--
	last := st.refs <= 0
	if last {
		delete(c.topics, topic)
	}
	c.mu.Unlock()
	if !last || c.paho == nil || !c.paho.IsConnected() {
		return nil
	}
	return waitToken(c.ctx, c.paho.Unsubscribe(topic))
}

// Publish sends the payload. Transient local publishes are retained by the broker, which
// keeps the last one per topic.
func (c *client) Publish(ctx context.Context, topic string, qos rmw.QoSProfile, payload []byte) error {
	if c.paho == nil {
		return errors.New("mqtt runtime not initialized")
	}
	retained := qos.Durability == rmw.TransientLocal
	if err := waitToken(ctx, c.paho.Publish(topic, mqttQos(qos), retained, payload)); err != nil {
		return fmt.Errorf("publishing on %s: %w", topic, err)
	}
	return nil
}

func (c *client) SpinOnce(ctx context.Context, timeout time.Duration) error {
	return c.d.SpinOnce(ctx, timeout)
}

func (c *client) Shutdown() error {
	c.once.Do(func() {
		c.cancel()
		c.d.Close()
		if c.paho != nil {
			c.paho.Disconnect(250) // also stops a pending reconnect
		}
		c.logger.Debug("MQTT client shut down")
	})
	return nil
}
