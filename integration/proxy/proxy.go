// Package proxy is a TCP proxy used by the integration tests to put something between a
// runtime and its broker, so that the connection can be cut on purpose.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/celerway/commtest/log"
)

type Proxy struct {
	listener net.Listener
	target   string
	logger   *log.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Start listens on a random local port and forwards every connection to target until ctx
// is cancelled.
func Start(ctx context.Context, target string, logger *log.Logger) (*Proxy, error) {
	if logger == nil {
		logger = log.Default()
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("proxy listen: %w", err)
	}
	p := &Proxy{
		listener: listener,
		target:   target,
		logger:   logger.WithPrefix("proxy"),
		conns:    make(map[net.Conn]struct{}),
	}
	p.logger.Infof("Setting up a proxy from %s --> %s", listener.Addr(), target)
	p.wg.Add(1)
	go p.accept()
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	return p, nil
}

// Port is the local port clients should connect to.
func (p *Proxy) Port() int {
	return p.listener.Addr().(*net.TCPAddr).Port
}

func (p *Proxy) accept() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			p.logger.Debugf("proxy stops accepting: %s", err)
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.forward(conn)
		}()
	}
}

func (p *Proxy) forward(conn net.Conn) {
	conn2, err := net.Dial("tcp", p.target)
	if err != nil {
		p.logger.Errorf("error dialing remote addr %s: %s", p.target, err)
		_ = conn.Close()
		return
	}
	p.track(conn, conn2)
	go func() {
		_, _ = io.Copy(conn2, conn)
		_ = conn2.Close()
	}()
	_, _ = io.Copy(conn, conn2)
	_ = conn.Close()
	_ = conn2.Close()
	p.untrack(conn, conn2)
}

func (p *Proxy) track(conns ...net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range conns {
		p.conns[c] = struct{}{}
	}
}

func (p *Proxy) untrack(conns ...net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range conns {
		delete(p.conns, c)
	}
}

// CutConnections closes every open connection but keeps accepting new ones.
func (p *Proxy) CutConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for c := range p.conns {
		_ = c.Close()
		n++
	}
	return n / 2
}

// Close stops the proxy and waits for the forwarding goroutines.
func (p *Proxy) Close() {
	_ = p.listener.Close()
	p.CutConnections()
	p.wg.Wait()
}
