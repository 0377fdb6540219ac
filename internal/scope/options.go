package scope

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/depscope/internal/cachemanager"
	"github.com/zjrosen/depscope/internal/component"
	"github.com/zjrosen/depscope/internal/pubsub"
)

// Option configures a Scope.
type Option func(*Scope)

// WithName labels the scope in logs, spans and published changes.
func WithName(name string) Option {
	return func(s *Scope) { s.name = name }
}

// WithTracer records a span per registration, removal and clear.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scope) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithPublisher publishes membership changes after they take effect.
func WithPublisher(p pubsub.Publisher[Change]) Option {
	return func(s *Scope) { s.publisher = p }
}

// WithQueryCache memoizes Find results per descriptor. Cached results are
// dropped whenever membership changes.
func WithQueryCache(cache cachemanager.CacheManager[string, []component.Component], ttl time.Duration) Option {
	return func(s *Scope) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithVetLogging logs every strict-occupancy check made during removal.
func WithVetLogging(enabled bool) Option {
	return func(s *Scope) { s.vetLogging = enabled }
}
