package domain

import "errors"

// ErrFlowNotFound is returned when a flow ID cannot be found in the store.
var ErrFlowNotFound = errors.New("flow not found")

// ErrInstanceNotFound is returned when a conversation instance cannot be found in the store.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrVersionConflict is returned when a write is based on a stale version of the record.
var ErrVersionConflict = errors.New("version conflict")

// ErrInvalidTransition is returned when a lifecycle change is not allowed from the current estado.
var ErrInvalidTransition = errors.New("invalid estado transition")

// ErrNoStartNode is returned when a flow has no inicio node to start from.
var ErrNoStartNode = errors.New("flow has no inicio node")

// ErrInstanceClosed is returned when an operation targets an instance in a terminal estado.
var ErrInstanceClosed = errors.New("instance is closed")

// ErrUnknownNodeType is returned when decoding a node whose tipo is not one of the known kinds.
var ErrUnknownNodeType = errors.New("unknown node type")
