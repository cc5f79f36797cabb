package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/observability"
)

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Logger returns the default logger at the configured level.
func Logger(p config.Params) *log.Logger {
	logger := log.Default()
	if p.LogLevel != "" {
		_ = logger.SetLevelFromString(p.LogLevel)
	}
	logger.Debugf("Log level set to %s", logger.Level())
	return logger
}

// Monitor is a running observability service, or nothing when no health port is set.
type Monitor struct {
	obs  *observability.Observability
	ch   observability.Channel
	done chan error
}

// StartMonitor starts the observability service on p.HealthPort. A zero port gives a
// Monitor that does nothing.
func StartMonitor(ctx context.Context, p config.Params, logger *log.Logger) *Monitor {
	m := &Monitor{}
	if p.HealthPort <= 0 {
		return m
	}
	m.ch = observability.GetChannel(100)
	m.obs = observability.Initialize(observability.Params{
		Channel:    m.ch,
		HealthPort: p.HealthPort,
		Logger:     logger,
	})
	m.done = make(chan error, 1)
	go func() {
		m.done <- m.obs.Run(ctx)
	}()
	return m
}

// Channel is nil when the monitor is disabled.
func (m *Monitor) Channel() observability.Channel {
	return m.ch
}

func (m *Monitor) Ready() {
	if m.obs != nil {
		m.obs.Ready()
	}
}

// Wait blocks until the service has stopped. The context passed to StartMonitor must be
// done first.
func (m *Monitor) Wait() error {
	if m.done == nil {
		return nil
	}
	return <-m.done
}
