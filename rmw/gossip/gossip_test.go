package gossip

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/celerway/commtest/rmw"
	is2 "github.com/matryer/is"
)

func localParams() Params {
	return Params{
		ListenAddrs: []string{"/ip4/127.0.0.1/tcp/0"},
		Rendezvous:  "commtest-unit",
		QueueSize:   10,
	}
}

func TestNotInitialized(t *testing.T) {
	is := is2.New(t)
	rt := New(localParams(), nil)
	defer rt.Shutdown()
	_, err := rt.Subscribe("t", rmw.DefaultQoS, func([]byte) error { return nil })
	is.True(err != nil)
	is.True(rt.Publish(context.Background(), "t", rmw.DefaultQoS, []byte("x")) != nil)
}

func TestInit_BadListenAddr(t *testing.T) {
	is := is2.New(t)
	p := localParams()
	p.ListenAddrs = []string{"not-a-multiaddr"}
	rt := New(p, nil)
	defer rt.Shutdown()
	is.True(rt.Init(context.Background()) != nil)
}

func TestIdentityKeyIsStable(t *testing.T) {
	is := is2.New(t)
	path := filepath.Join(t.TempDir(), "keys", "identity.key")
	a, err := loadOrCreateIdentityKey(path)
	is.NoErr(err)
	b, err := loadOrCreateIdentityKey(path)
	is.NoErr(err)
	is.True(a.Equals(b))
}

func TestTwoPeers(t *testing.T) {
	is := is2.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	listener := New(localParams(), nil)
	is.NoErr(listener.Init(ctx))
	defer listener.Shutdown()
	is.True(len(listener.ListenAddrs()) > 0)

	p := localParams()
	p.Bootstrap = listener.ListenAddrs()[:1]
	talker := New(p, nil)
	is.NoErr(talker.Init(ctx))
	defer talker.Shutdown()

	const topic = "test_message_empty"
	var got []string
	_, err := listener.Subscribe(topic, rmw.DefaultQoS, func(b []byte) error {
		got = append(got, string(b))
		return nil
	})
	is.NoErr(err)
	_, err = talker.Subscribe(topic, rmw.DefaultQoS, func([]byte) error { return nil })
	is.NoErr(err)
	is.NoErr(talker.WaitForPeers(ctx, topic, 1))

	for len(got) == 0 {
		is.NoErr(talker.Publish(ctx, topic, rmw.DefaultQoS, []byte("hello")))
		err := listener.SpinOnce(ctx, 500*time.Millisecond)
		if err != nil && err != context.DeadlineExceeded {
			is.NoErr(err)
		}
		is.NoErr(ctx.Err())
	}
	is.Equal(got[0], "hello")
}
