// Package flags holds the boolean switches that turn optional scope machinery
// on and off. Flags are read-only after initialization and unknown flags read
// as disabled.
package flags

import (
	"maps"

	"github.com/zjrosen/depscope/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagQueryCache memoizes scope lookups by descriptor until membership
	// changes.
	FlagQueryCache = "query-cache"

	// FlagPublishEvents streams membership changes of manifest runs into the
	// run report.
	FlagPublishEvents = "publish-events"

	// FlagVetLogging logs every strict-occupancy check made during removal,
	// including the ones that pass.
	FlagVetLogging = "vet-logging"
)

// Defaults returns the flag values used when configuration sets none.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagQueryCache:    false,
		FlagPublishEvents: true,
		FlagVetLogging:    false,
	}
}

// Registry holds feature flag state loaded from configuration.
// Flags are read-only after initialization.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. The map is copied.
// If flags is nil, an empty registry is created (all flags disabled).
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(flags), "flags", r.All())
	return r
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags (safe default).
// Returns false when called on nil registry (nil-safe).
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", false)
		return false
	}
	return value
}

// With returns a copy of r with name set to value.
func (r *Registry) With(name string, value bool) *Registry {
	next := r.All()
	next[name] = value
	return &Registry{flags: next}
}

// All returns a copy of all flags (for debugging/logging).
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	result := make(map[string]bool, len(r.flags))
	maps.Copy(result, r.flags)
	return result
}
