package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter   EventType = "node_enter"
	EventNodeLeave   EventType = "node_leave"
	EventAdapterCall EventType = "adapter_call"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	FlowID     string    `json:"flow_id"`
	InstanceID string    `json:"instance_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NodeType NodeType      `json:"node_type"`
	Estado   LogEstado     `json:"estado,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// AdapterEvent represents a call to a side-effect adapter.
type AdapterEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	Adapter  string        `json:"adapter"`
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter   func(context.Context, *NodeEvent)
	OnNodeLeave   func(context.Context, *NodeEvent)
	OnAdapterCall func(context.Context, *AdapterEvent)
}

// ChainHooks returns hooks that invoke each set in order, skipping nil callbacks.
func ChainHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *NodeEvent) {
			for _, h := range sets {
				if h.OnNodeEnter != nil {
					h.OnNodeEnter(ctx, e)
				}
			}
		},
		OnNodeLeave: func(ctx context.Context, e *NodeEvent) {
			for _, h := range sets {
				if h.OnNodeLeave != nil {
					h.OnNodeLeave(ctx, e)
				}
			}
		},
		OnAdapterCall: func(ctx context.Context, e *AdapterEvent) {
			for _, h := range sets {
				if h.OnAdapterCall != nil {
					h.OnAdapterCall(ctx, e)
				}
			}
		},
	}
}
