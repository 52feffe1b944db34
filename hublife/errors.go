// Package hublife implements the distributed hub lifetime manager: the public facade
// that routes invocations to connections, users, and groups across a server cluster
// coordinated over a pub/sub broker.
package hublife

import (
	"errors"

	"github.com/alwitt/hublife/internal/ackwait"
)

// ErrArgumentNull is returned when a required identifier (connection ID, group name,
// or a batch list) is empty.
var ErrArgumentNull = errors.New("required argument is empty")

// ErrAckTimeout is returned by AddGroup/RemoveGroup when the target server does not
// ack a group-management command within the configured timeout.
var ErrAckTimeout = ackwait.ErrAckTimeout

// ErrManagerShutdown is returned to any AddGroup/RemoveGroup call still outstanding
// when Dispose is called.
var ErrManagerShutdown = ackwait.ErrManagerShutdown
