package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/ports"
)

// Mask replaces the values of masked keys.
const Mask = "***"

type piiMiddleware struct {
	next     ports.LogStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of log data keys
// matching any of the patterns, at any depth.
func NewPIIMiddleware(patternStrings []string) (LogMiddleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.LogStore) ports.LogStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Append(ctx context.Context, entries ...domain.LogEntry) error {
	masked := make([]domain.LogEntry, len(entries))
	for i, e := range entries {
		// Copy so the entries reported to the caller keep their values.
		e.DatosEntrada = deepCopyMap(e.DatosEntrada)
		e.DatosSalida = deepCopyMap(e.DatosSalida)
		maskMap(e.DatosEntrada, m.patterns)
		maskMap(e.DatosSalida, m.patterns)
		masked[i] = e
	}
	return m.next.Append(ctx, masked...)
}

func (m *piiMiddleware) List(ctx context.Context, conversacionID string) ([]domain.LogEntry, error) {
	return m.next.List(ctx, conversacionID)
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		// Handle nested maps
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v // shallow copy of value
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && !masked {
			maskMap(subMap, patterns)
		}
	}
}
