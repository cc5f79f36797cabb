package rmw

import (
	"fmt"

	"github.com/celerway/commtest/config"
)

type Reliability int

const (
	Reliable Reliability = iota
	BestEffort
)

func (r Reliability) String() string {
	if r == BestEffort {
		return "best_effort"
	}
	return "reliable"
}

type Durability int

const (
	Volatile Durability = iota
	TransientLocal
)

func (d Durability) String() string {
	if d == TransientLocal {
		return "transient_local"
	}
	return "volatile"
}

// QoSProfile describes how a subscription wants its messages delivered. Reliable
// deliveries wait for room in the queue; best effort deliveries are dropped when it is full.
// Durability decides whether a late joiner sees messages published before it subscribed,
// for the implementations that can offer that.
type QoSProfile struct {
	Reliability Reliability
	Durability  Durability
	Depth       int
}

var DefaultQoS = QoSProfile{
	Reliability: Reliable,
	Durability:  Volatile,
	Depth:       10,
}

func (q QoSProfile) String() string {
	return fmt.Sprintf("%s/%s/depth=%d", q.Reliability, q.Durability, q.Depth)
}

// QoSFromParams converts the configured profile. Unknown values fall back to the default.
func QoSFromParams(p config.QoSParams) QoSProfile {
	q := DefaultQoS
	if p.Reliability == "best_effort" {
		q.Reliability = BestEffort
	}
	if p.Durability == "transient_local" {
		q.Durability = TransientLocal
	}
	if p.Depth > 0 {
		q.Depth = p.Depth
	}
	return q
}
