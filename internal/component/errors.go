package component

import (
	"errors"
	"fmt"
)

// ErrDescriptorUnresolved is matched by every DescriptorResolutionError.
var ErrDescriptorUnresolved = errors.New("descriptor could not be resolved")

// DescriptorResolutionError is returned when an identity contract is built
// without a usable descriptor.
type DescriptorResolutionError struct {
	// Contract names the identity being built: "unique", "named" or "wrapper".
	Contract string
	// Reason is a short human description.
	Reason string
}

func (e *DescriptorResolutionError) Error() string {
	return fmt.Sprintf("%s component: %s: %s", e.Contract, ErrDescriptorUnresolved, e.Reason)
}

// Is makes errors.Is(err, ErrDescriptorUnresolved) succeed.
func (e *DescriptorResolutionError) Is(target error) bool {
	return target == ErrDescriptorUnresolved
}
