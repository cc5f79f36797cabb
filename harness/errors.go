package harness

import (
	"fmt"

	"github.com/celerway/commtest/msg"
)

// UnexpectedMessageError is returned as soon as a delivered message matches none of the
// expected messages.
type UnexpectedMessageError struct {
	Message msg.Message
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("received unexpected message: %+v", e.Message)
}

// IncompleteDeliveryError is returned when the cycle budget ran out before every expected
// message arrived.
type IncompleteDeliveryError struct {
	Expected int
	Actual   int
}

func (e *IncompleteDeliveryError) Error() string {
	return fmt.Sprintf("expected %d distinct messages, received %d", e.Expected, e.Actual)
}
