// Package kafka is the rmw implementation on top of a Kafka cluster. Every subscription
// gets its own partition reader; publishes go through one writer per topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/rmw"
	gokafka "github.com/segmentio/kafka-go"
)

const ID = "kafka"

func init() {
	rmw.Register(ID, func(p config.Params, logger *log.Logger) (rmw.Runtime, error) {
		if len(p.Kafka.Brokers) == 0 {
			return nil, errors.New("kafka: no brokers configured")
		}
		return New(Params{
			Brokers:       p.Kafka.Brokers,
			RetryInterval: p.Kafka.RetryInterval,
			Timeout:       p.Kafka.Timeout,
			QueueSize:     p.QueueSize,
		}, logger), nil
	})
}

type Params struct {
	Brokers       []string
	RetryInterval time.Duration
	Timeout       time.Duration
	QueueSize     int
}

type runtime struct {
	params Params
	d      *rmw.Dispatcher
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// overridden in tests
	ping      func(ctx context.Context) error
	newWriter func(topic string, qos rmw.QoSProfile) KafkaWriter
	newReader func(topic string) KafkaReader

	mu      sync.Mutex
	writers map[string]KafkaWriter
	subs    map[rmw.Subscription]struct{}
	once    sync.Once
}

func New(p Params, logger *log.Logger) rmw.Runtime {
	return newRuntime(p, logger)
}

func newRuntime(p Params, logger *log.Logger) *runtime {
	if logger == nil {
		logger = log.Default()
	}
	if p.Timeout <= 0 {
		p.Timeout = 10 * time.Second
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &runtime{
		params:  p,
		d:       rmw.NewDispatcher(p.QueueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		writers: make(map[string]KafkaWriter),
		subs:    make(map[rmw.Subscription]struct{}),
	}
	r.ping = r.dialBrokers
	r.newWriter = r.makeWriter
	r.newReader = r.makeReader
	return r
}

func (r *runtime) ID() string {
	return ID
}

// dialBrokers succeeds when at least one broker answers.
func (r *runtime) dialBrokers(ctx context.Context) error {
	var errs []error
	for _, broker := range r.params.Brokers {
		conn, err := gokafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *runtime) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.params.Timeout)
	defer cancel()
	if err := r.ping(ctx); err != nil {
		return fmt.Errorf("kafka brokers %v unreachable: %w", r.params.Brokers, err)
	}
	r.logger.Debugf("Kafka brokers %v reachable", r.params.Brokers)
	return nil
}

func (r *runtime) makeWriter(topic string, qos rmw.QoSProfile) KafkaWriter {
	acks := gokafka.RequireAll
	if qos.Reliability == rmw.BestEffort {
		acks = gokafka.RequireNone
	}
	return &gokafka.Writer{
		Addr:         gokafka.TCP(r.params.Brokers...),
		Topic:        topic,
		MaxAttempts:  10,
		BatchSize:    1,
		BatchTimeout: time.Millisecond * 20, // Write more or less right away.
		RequiredAcks: acks,
		ErrorLogger:  r.logger.WithPrefix("kafka-internal"),
	}
}

func (r *runtime) makeReader(topic string) KafkaReader {
	return gokafka.NewReader(gokafka.ReaderConfig{
		Brokers:     r.params.Brokers,
		Topic:       topic,
		MaxWait:     500 * time.Millisecond,
		ErrorLogger: r.logger.WithPrefix("kafka-internal"),
	})
}

func (r *runtime) writer(topic string, qos rmw.QoSProfile) KafkaWriter {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[topic]
	if !ok {
		w = r.newWriter(topic, qos)
		r.writers[topic] = w
	}
	return w
}

// Subscribe starts a reader for topic. Volatile subscriptions start at the end of the log,
// transient local ones replay it from the beginning.
func (r *runtime) Subscribe(topic string, qos rmw.QoSProfile, cb rmw.Callback) (rmw.Subscription, error) {
	reader := r.newReader(topic)
	offset := gokafka.LastOffset
	if qos.Durability == rmw.TransientLocal {
		offset = gokafka.FirstOffset
	}
	if err := reader.SetOffset(offset); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("setting offset on %s: %w", topic, err)
	}
	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	var sub rmw.Subscription
	sub, err := r.d.Add(topic, qos, cb, func() error {
		cancel()
		err := reader.Close()
		<-done
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
		return err
	})
	if err != nil {
		cancel()
		_ = reader.Close()
		return nil, err
	}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		r.readLoop(ctx, reader, sub)
	}()
	r.logger.Debugf("Reading %s from offset %d", topic, offset)
	return sub, nil
}

func (r *runtime) readLoop(ctx context.Context, reader KafkaReader, sub rmw.Subscription) {
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warnf("Reading %s: %s (retrying in %v)", sub.Topic(), err, r.params.RetryInterval)
			select {
			case <-time.After(r.params.RetryInterval):
				continue
			case <-ctx.Done():
				return
			}
		}
		r.logger.Tracef("Message at offset %d on %s", m.Offset, sub.Topic())
		r.d.DeliverTo(ctx, sub, m.Value)
	}
}

func (r *runtime) Publish(ctx context.Context, topic string, qos rmw.QoSProfile, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.params.Timeout)
	defer cancel()
	err := r.writer(topic, qos).WriteMessages(ctx, gokafka.Message{Value: payload})
	if err != nil {
		return fmt.Errorf("writing to %s: %w", topic, err)
	}
	return nil
}

func (r *runtime) SpinOnce(ctx context.Context, timeout time.Duration) error {
	return r.d.SpinOnce(ctx, timeout)
}

func (r *runtime) Shutdown() error {
	var errs []error
	r.once.Do(func() {
		r.cancel()
		r.d.Close()
		r.mu.Lock()
		open := make([]rmw.Subscription, 0, len(r.subs))
		for sub := range r.subs {
			open = append(open, sub)
		}
		r.mu.Unlock()
		for _, sub := range open {
			if err := sub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.wg.Wait()
		r.mu.Lock()
		for topic, w := range r.writers {
			if err := w.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing writer for %s: %w", topic, err))
			}
		}
		r.writers = map[string]KafkaWriter{}
		r.mu.Unlock()
		r.logger.Debug("Kafka runtime shut down")
	})
	return errors.Join(errs...)
}
