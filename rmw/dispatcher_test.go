package rmw

import (
	"context"
	"errors"
	"testing"
	"time"

	is2 "github.com/matryer/is"
)

func TestDispatcher_DeliverAndSpin(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(10)
	defer d.Close()
	var got []string
	sub, err := d.Add("chatter", DefaultQoS, func(payload []byte) error {
		got = append(got, string(payload))
		return nil
	}, nil)
	is.NoErr(err)
	is.Equal(sub.Topic(), "chatter")
	is.Equal(d.SubscriberCount("chatter"), 1)

	is.Equal(d.Deliver(context.Background(), "chatter", []byte("one")), 1)
	is.Equal(d.Deliver(context.Background(), "chatter", []byte("two")), 1)
	is.Equal(d.Deliver(context.Background(), "other", []byte("lost")), 0)
	is.Equal(d.Pending(), 2)

	ctx := context.Background()
	is.NoErr(d.SpinOnce(ctx, time.Second))
	is.Equal(got, []string{"one"}) // one callback per spin
	is.NoErr(d.SpinOnce(ctx, time.Second))
	is.Equal(got, []string{"one", "two"})
}

func TestDispatcher_SpinTimeout(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(1)
	defer d.Close()
	start := time.Now()
	is.NoErr(d.SpinOnce(context.Background(), 20*time.Millisecond))
	is.True(time.Since(start) >= 20*time.Millisecond)
}

func TestDispatcher_SpinCancelled(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(1)
	defer d.Close()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := d.SpinOnce(ctx, 0) // blocks until cancel
	is.True(errors.Is(err, context.Canceled))
}

func TestDispatcher_CallbackError(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(1)
	defer d.Close()
	boom := errors.New("boom")
	_, err := d.Add("t", DefaultQoS, func([]byte) error { return boom }, nil)
	is.NoErr(err)
	d.Deliver(context.Background(), "t", []byte("x"))
	is.Equal(d.SpinOnce(context.Background(), time.Second), boom)
}

func TestDispatcher_BestEffortDrops(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(10)
	defer d.Close()
	qos := QoSProfile{Reliability: BestEffort, Depth: 2}
	_, err := d.Add("t", qos, func([]byte) error { return nil }, nil)
	is.NoErr(err)
	for i := 0; i < 5; i++ {
		d.Deliver(context.Background(), "t", []byte("x"))
	}
	is.Equal(d.Pending(), 2) // depth caps the backlog
}

func TestDispatcher_ReliableBlocksUntilClose(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(1)
	_, err := d.Add("t", DefaultQoS, func([]byte) error { return nil }, nil)
	is.NoErr(err)
	is.Equal(d.Deliver(context.Background(), "t", []byte("fills the queue")), 1)
	done := make(chan int)
	go func() {
		done <- d.Deliver(context.Background(), "t", []byte("waits"))
	}()
	select {
	case <-done:
		is.Fail() // should still be waiting for room
	case <-time.After(20 * time.Millisecond):
	}
	d.Close()
	select {
	case n := <-done:
		is.Equal(n, 0)
	case <-time.After(time.Second):
		is.Fail() // close did not release the deliverer
	}
	is.Equal(d.SpinOnce(context.Background(), time.Millisecond), ErrShutdown)
	_, err = d.Add("t", DefaultQoS, func([]byte) error { return nil }, nil)
	is.Equal(err, ErrShutdown)
}

func TestDispatcher_ClosedSubscriptionSkipsQueued(t *testing.T) {
	is := is2.New(t)
	d := NewDispatcher(4)
	defer d.Close()
	calls := 0
	closed := 0
	sub, err := d.Add("t", DefaultQoS, func([]byte) error {
		calls++
		return nil
	}, func() error {
		closed++
		return nil
	})
	is.NoErr(err)
	d.Deliver(context.Background(), "t", []byte("x"))
	is.NoErr(sub.Close())
	is.NoErr(sub.Close())
	is.Equal(closed, 1)
	is.Equal(d.SubscriberCount("t"), 0)
	is.NoErr(d.SpinOnce(context.Background(), time.Second))
	is.Equal(calls, 0)
}
