package bridge

import (
	"time"

	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/observability"
	"github.com/celerway/commtest/rmw"
)

type Params struct {
	From rmw.Runtime
	To   rmw.Runtime
	// Topics to relay. Empty means the topics of every registered message type.
	Topics      []string
	QoS         rmw.QoSProfile
	SpinTimeout time.Duration
	ObsChannel  observability.Channel
	Logger      *log.Logger
	// Subscribed is called once every source subscription is open.
	Subscribed func()
}

type bridge struct {
	from    rmw.Runtime
	to      rmw.Runtime
	qos     rmw.QoSProfile
	obsCh   observability.Channel
	logger  *log.Logger
	relayed int
}
