package observability

import (
	"net"
	"sync/atomic"

	"github.com/celerway/commtest/log"
	"github.com/prometheus/client_golang/prometheus"
)

type Channel chan StatusMessage

type StatusMessage int

const (
	MessageReceived StatusMessage = iota
	MessageDuplicate
	MessageUnexpected
	SpinCycle
	MessageRelayed
	DeliveryComplete
	DeliveryIncomplete
)

func (d StatusMessage) String() string {
	if d < MessageReceived || d > DeliveryIncomplete {
		return "Unknown"
	}
	return [...]string{"MessageReceived", "MessageDuplicate", "MessageUnexpected", "SpinCycle",
		"MessageRelayed", "DeliveryComplete", "DeliveryIncomplete"}[d]
}

type Params struct {
	Channel    Channel
	HealthPort int
	Logger     *log.Logger
}

type Observability struct {
	channel          Channel
	received         prometheus.Counter
	duplicates       prometheus.Counter
	unexpected       prometheus.Counter
	spinCycles       prometheus.Counter
	relayed          prometheus.Counter
	deliveryComplete prometheus.Gauge
	logger           *log.Logger
	ready            atomic.Bool
	healthPort       int
	promReg          *prometheus.Registry
	listener         net.Listener
	listening        chan struct{}
}
