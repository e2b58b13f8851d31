// Package middleware wraps instance and log stores with privacy behavior: encryption of
// conversation data at rest and masking of sensitive keys in execution logs.
package middleware

import "github.com/aretw0/flujos/pkg/ports"

// InstanceMiddleware allows wrapping an InstanceStore to add behavior.
type InstanceMiddleware func(ports.InstanceStore) ports.InstanceStore

// LogMiddleware allows wrapping a LogStore to add behavior.
type LogMiddleware func(ports.LogStore) ports.LogStore
