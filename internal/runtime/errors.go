package runtime

import (
	"errors"
	"fmt"

	"github.com/aretw0/flujos/pkg/domain"
)

// ErrStepLimit is returned when an inbound message drives more node executions than allowed,
// which only happens on cycles that never suspend.
var ErrStepLimit = errors.New("step limit exceeded")

// ErrNodeMissing is returned when the instance points at a node the flow no longer has.
var ErrNodeMissing = errors.New("node not found in flow")

// ErrNoAdapter is returned when a node needs an adapter the engine was built without.
var ErrNoAdapter = errors.New("adapter not configured")

// ErrNoRoute is returned when a node finishes but none of its edges applies.
var ErrNoRoute = errors.New("no matching edge")

// NodeError represents a failure while executing a node.
type NodeError struct {
	NodeID string
	Tipo   domain.NodeType
	Cause  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.Tipo, e.Cause)
}

func (e *NodeError) Unwrap() error {
	return e.Cause
}
