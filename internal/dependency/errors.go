package dependency

import (
	"errors"
	"fmt"

	"github.com/zjrosen/depscope/internal/component"
)

// Sentinel errors for dependency operations.
var (
	// ErrMissingDependency is matched by MissingDependencyError.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrStructuralRemoval is matched by StructuralRemovalError.
	ErrStructuralRemoval = errors.New("component is held by a strict dependency")
)

// MissingDependencyError is returned when a strict slot is read before it has
// been filled, or when a lookup finds no unique match.
type MissingDependencyError struct {
	Descriptor component.Descriptor
	Detail     string
}

func (e *MissingDependencyError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrMissingDependency, e.Descriptor, e.Detail)
	}
	return fmt.Sprintf("%s: %s", ErrMissingDependency, e.Descriptor)
}

// Is makes errors.Is(err, ErrMissingDependency) succeed.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}

// StructuralRemovalError is returned when a component cannot leave because a
// live strict slot holds it.
type StructuralRemovalError struct {
	Component component.Component
	// Slot is the descriptor of the first strict slot found holding it.
	Slot component.Descriptor
	// Holder identifies the dependent owning that slot, when known.
	Holder component.Component
}

func (e *StructuralRemovalError) Error() string {
	msg := fmt.Sprintf("cannot remove %s: strict %s dependency", component.KeyString(e.Component), e.Slot)
	if e.Holder != nil {
		msg += " of " + component.KeyString(e.Holder)
	}
	return msg + " still holds it"
}

// Is makes errors.Is(err, ErrStructuralRemoval) succeed.
func (e *StructuralRemovalError) Is(target error) bool {
	return target == ErrStructuralRemoval
}
