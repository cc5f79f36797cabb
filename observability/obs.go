// Package observability exposes prometheus metrics and a health endpoint for the test
// processes. Components report through a Channel.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/celerway/commtest/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Initialize(params Params) *Observability {
	reg := prometheus.NewRegistry()
	logger := params.Logger
	if logger == nil {
		logger = log.Default()
	}
	obs := &Observability{
		channel:    params.Channel,
		logger:     logger.WithPrefix("observability"),
		healthPort: params.HealthPort,
		promReg:    reg,
		listening:  make(chan struct{}),
	}
	obs.received = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "messages_received",
		Help: "Number of expected messages received for the first time",
	})
	obs.duplicates = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "messages_duplicate",
		Help: "Number of expected messages received again",
	})
	obs.unexpected = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "messages_unexpected",
		Help: "Number of messages matching no expected message",
	})
	obs.spinCycles = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "spin_cycles",
		Help: "Number of spin cycles run",
	})
	obs.relayed = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "relayed_messages",
		Help: "Number of payloads relayed between runtimes",
	})
	obs.deliveryComplete = promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name: "delivery_complete",
		Help: "Set to 1 once every expected message has been received",
	})
	return obs
}

// Run handles status messages and serves /metrics and /healthz until ctx is cancelled.
func (obs *Observability) Run(ctx context.Context) error {
	obs.logger.Debug("Observability worker is running")
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case msg := <-obs.channel:
				obs.handleChannelMessage(msg)
			case <-ctx.Done():
				return
			}
		}
	}()
	err := obs.runHttpServer(ctx) // returns when ctx is cancelled
	wg.Wait()
	obs.logger.Info("Observability worker is done")
	return err
}

// Router returns the http handler serving the metrics and health endpoints.
func (obs *Observability) Router() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Handle("/metrics", promhttp.HandlerFor(obs.promReg, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", obs.HealthzHandler)
	return router
}

func (obs *Observability) runHttpServer(ctx context.Context) error {
	listenPort := fmt.Sprintf(":%d", obs.healthPort)
	obs.logger.Infof("Observability service attempting to listen to port %s", listenPort)
	l, err := net.Listen("tcp", listenPort)
	if err != nil {
		close(obs.listening)
		return fmt.Errorf("observability listen on %s: %w", listenPort, err)
	}
	obs.listener = l
	close(obs.listening)

	srv := &http.Server{
		Handler:           obs.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("observability service shutdown: %w", err)
	}
	return <-errCh
}

// Port blocks until the http server has started listening and returns the port. It
// returns 0 when listening failed.
func (obs *Observability) Port() int {
	<-obs.listening
	if obs.listener == nil {
		return 0
	}
	return obs.listener.Addr().(*net.TCPAddr).Port
}

func (obs *Observability) handleChannelMessage(msg StatusMessage) {
	obs.logger.Tracef("Observability received %s", msg)

	switch msg {
	case MessageReceived:
		obs.received.Inc()
	case MessageDuplicate:
		obs.duplicates.Inc()
	case MessageUnexpected:
		obs.unexpected.Inc()
	case SpinCycle:
		obs.spinCycles.Inc()
	case MessageRelayed:
		obs.relayed.Inc()
	case DeliveryComplete:
		obs.deliveryComplete.Set(1)
	case DeliveryIncomplete:
		obs.deliveryComplete.Set(0)
	default:
		obs.logger.Errorf("Observability: Unknown message received: %d", int(msg))
	}
}

func GetChannel(size int) Channel {
	return make(Channel, size)
}

// Report sends msg on ch unless ch is nil or ctx is done first.
func Report(ctx context.Context, ch Channel, msg StatusMessage) {
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

func (obs *Observability) HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	if obs.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	} else {
		w.WriteHeader(http.StatusLocked)
		_, _ = w.Write([]byte("not ready"))
	}
}

func (obs *Observability) Ready() {
	obs.ready.Store(true)
}
