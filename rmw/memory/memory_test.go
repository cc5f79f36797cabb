package memory

import (
	"context"
	"testing"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/rmw"
	is2 "github.com/matryer/is"
	"github.com/pingcap/failpoint"
)

func TestRuntime_PubSubAcrossRuntimes(t *testing.T) {
	is := is2.New(t)
	ctx := context.Background()
	bus := NewBus()
	talker := New(bus, 10, nil)
	listener := New(bus, 10, nil)
	is.NoErr(talker.Init(ctx))
	is.NoErr(listener.Init(ctx))
	defer talker.Shutdown()
	defer listener.Shutdown()

	var got []string
	_, err := listener.Subscribe("chatter", rmw.DefaultQoS, func(p []byte) error {
		got = append(got, string(p))
		return nil
	})
	is.NoErr(err)
	is.Equal(bus.SubscriberCount("chatter"), 1)

	is.NoErr(talker.Publish(ctx, "chatter", rmw.DefaultQoS, []byte("hello")))
	is.NoErr(listener.SpinOnce(ctx, time.Second))
	is.Equal(got, []string{"hello"})
}

func TestBus_WaitForSubscribers(t *testing.T) {
	is := is2.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus := NewBus()
	r := New(bus, 10, nil)
	is.NoErr(r.Init(ctx))
	defer r.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- bus.WaitForSubscribers(ctx, "t", 1)
	}()
	time.Sleep(10 * time.Millisecond)
	_, err := r.Subscribe("t", rmw.DefaultQoS, func([]byte) error { return nil })
	is.NoErr(err)
	is.NoErr(<-done)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	is.True(bus.WaitForSubscribers(short, "t", 2) != nil)
}

func TestRuntime_TransientLocalReplay(t *testing.T) {
	is := is2.New(t)
	ctx := context.Background()
	bus := NewBus()
	qos := rmw.QoSProfile{Reliability: rmw.Reliable, Durability: rmw.TransientLocal, Depth: 2}
	talker := New(bus, 10, nil)
	is.NoErr(talker.Init(ctx))
	defer talker.Shutdown()
	for _, s := range []string{"a", "b", "c"} {
		is.NoErr(talker.Publish(ctx, "t", qos, []byte(s)))
	}

	late := New(bus, 10, nil)
	is.NoErr(late.Init(ctx))
	defer late.Shutdown()
	var got []string
	_, err := late.Subscribe("t", qos, func(p []byte) error {
		got = append(got, string(p))
		return nil
	})
	is.NoErr(err)
	is.NoErr(late.SpinOnce(ctx, time.Second))
	is.NoErr(late.SpinOnce(ctx, time.Second))
	is.Equal(got, []string{"b", "c"}) // depth 2 keeps the last two
}

func TestRuntime_DropFailpoint(t *testing.T) {
	is := is2.New(t)
	ctx := context.Background()
	is.NoErr(failpoint.Enable(FailpointDropPublish, "return(true)"))
	defer func() {
		is.NoErr(failpoint.Disable(FailpointDropPublish))
	}()
	bus := NewBus()
	r := New(bus, 10, nil)
	is.NoErr(r.Init(ctx))
	defer r.Shutdown()
	calls := 0
	_, err := r.Subscribe("t", rmw.DefaultQoS, func([]byte) error {
		calls++
		return nil
	})
	is.NoErr(err)
	is.NoErr(r.Publish(ctx, "t", rmw.DefaultQoS, []byte("lost")))
	is.NoErr(r.SpinOnce(ctx, 10*time.Millisecond))
	is.Equal(calls, 0)
}

func TestRuntime_Shutdown(t *testing.T) {
	is := is2.New(t)
	ctx := context.Background()
	bus := NewBus()
	r := New(bus, 10, nil)
	is.NoErr(r.Init(ctx))
	is.NoErr(r.Shutdown())
	is.NoErr(r.Shutdown())
	is.Equal(r.SpinOnce(ctx, time.Millisecond), rmw.ErrShutdown)
	_, err := r.Subscribe("t", rmw.DefaultQoS, func([]byte) error { return nil })
	is.Equal(err, rmw.ErrShutdown)
}

func TestRegistered(t *testing.T) {
	is := is2.New(t)
	rt, err := rmw.New(ID, config.Default(), nil)
	is.NoErr(err)
	is.Equal(rt.ID(), ID)
}
