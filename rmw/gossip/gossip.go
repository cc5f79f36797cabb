// Package gossip is the rmw implementation on top of a libp2p GossipSub mesh. Peers find
// each other through mDNS on the local network or through bootstrap addresses.
package gossip

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/rmw"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

const ID = "gossip"

func init() {
	rmw.Register(ID, func(p config.Params, logger *log.Logger) (rmw.Runtime, error) {
		return New(Params{
			ListenAddrs:     p.Gossip.ListenAddrs,
			Bootstrap:       p.Gossip.Bootstrap,
			Rendezvous:      p.Gossip.Rendezvous,
			EnableMDNS:      p.Gossip.EnableMDNS,
			IdentityKeyFile: p.Gossip.IdentityKeyFile,
			QueueSize:       p.QueueSize,
		}, logger), nil
	})
}

type Params struct {
	ListenAddrs     []string
	Bootstrap       []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
	QueueSize       int
}

type Runtime struct {
	params Params
	d      *rmw.Dispatcher
	logger *log.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	host host.Host
	ps   *pubsub.PubSub
	mdns mdns.Service

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	once   sync.Once
}

func New(p Params, logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		params: p,
		d:      rmw.NewDispatcher(p.QueueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[string]*pubsub.Topic),
	}
}

func (r *Runtime) ID() string {
	return ID
}

// Init starts the libp2p host, joins GossipSub and connects to the bootstrap peers.
// Unreachable bootstrap peers are logged, not fatal.
func (r *Runtime) Init(ctx context.Context) error {
	listenAddrs := make([]ma.Multiaddr, 0, len(r.params.ListenAddrs))
	for _, s := range r.params.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	opts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if r.params.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(r.params.IdentityKeyFile)
		if err != nil {
			return fmt.Errorf("load identity key: %w", err)
		}
		opts = append(opts, libp2p.Identity(key))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(r.ctx, h)
	if err != nil {
		_ = h.Close()
		return fmt.Errorf("create gossipsub: %w", err)
	}
	r.host = h
	r.ps = ps
	r.logger.Infof("Peer %s listening on %v", h.ID(), r.ListenAddrs())

	if r.params.EnableMDNS {
		r.mdns = mdns.NewMdnsService(h, r.params.Rendezvous, &mdnsNotifee{host: h, logger: r.logger})
		if err := r.mdns.Start(); err != nil {
			r.logger.Warnf("mdns start error: %s", err)
		}
	}
	for _, raw := range r.params.Bootstrap {
		if err := r.connect(ctx, raw); err != nil {
			r.logger.Warnf("Bootstrap peer %s: %s", raw, err)
		}
	}
	return ctx.Err()
}

func (r *Runtime) connect(ctx context.Context, raw string) error {
	addr, err := ma.NewMultiaddr(raw)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return err
	}
	if err := r.host.Connect(ctx, *info); err != nil {
		return err
	}
	r.logger.Debugf("Connected bootstrap peer %s", info.ID)
	return nil
}

func (r *Runtime) topic(name string) (*pubsub.Topic, error) {
	if r.ps == nil {
		return nil, errors.New("gossip runtime not initialized")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.topics[name]; ok {
		return t, nil
	}
	t, err := r.ps.Join(name)
	if err != nil {
		return nil, err
	}
	r.topics[name] = t
	return t, nil
}

func (r *Runtime) Subscribe(topic string, qos rmw.QoSProfile, cb rmw.Callback) (rmw.Subscription, error) {
	t, err := r.topic(topic)
	if err != nil {
		return nil, err
	}
	psSub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	sub, err := r.d.Add(topic, qos, cb, func() error {
		cancel()
		psSub.Cancel()
		<-done
		return nil
	})
	if err != nil {
		cancel()
		psSub.Cancel()
		return nil, err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		for {
			m, err := psSub.Next(ctx)
			if err != nil {
				return
			}
			r.d.DeliverTo(ctx, sub, m.Data)
		}
	}()
	return sub, nil
}

func (r *Runtime) Publish(ctx context.Context, topic string, _ rmw.QoSProfile, payload []byte) error {
	t, err := r.topic(topic)
	if err != nil {
		return err
	}
	if err := t.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publishing on %s: %w", topic, err)
	}
	return nil
}

// WaitForPeers blocks until topic has at least n peers in the mesh.
func (r *Runtime) WaitForPeers(ctx context.Context, topic string, n int) error {
	t, err := r.topic(topic)
	if err != nil {
		return err
	}
	for len(t.ListPeers()) < n {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runtime) SpinOnce(ctx context.Context, timeout time.Duration) error {
	return r.d.SpinOnce(ctx, timeout)
}

// ListenAddrs returns dialable addresses including the peer id.
func (r *Runtime) ListenAddrs() []string {
	if r.host == nil {
		return nil
	}
	out := make([]string, 0, len(r.host.Addrs()))
	for _, addr := range r.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), r.host.ID().String()))
	}
	return out
}

func (r *Runtime) Shutdown() error {
	var err error
	r.once.Do(func() {
		r.cancel()
		r.d.Close()
		r.wg.Wait()
		if r.mdns != nil {
			_ = r.mdns.Close()
		}
		r.mu.Lock()
		for _, t := range r.topics {
			_ = t.Close()
		}
		r.mu.Unlock()
		if r.host != nil {
			err = r.host.Close()
		}
		r.logger.Debug("Gossip runtime shut down")
	})
	return err
}

type mdnsNotifee struct {
	host   host.Host
	logger *log.Logger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		n.logger.Debugf("mdns connect failed %s: %s", info.ID, err)
	}
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
