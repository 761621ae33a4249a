package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by sphere operations. Callers match them with errors.Is.
var (
	// ErrInvalidAmount reports a non-positive or non-finite quantity.
	ErrInvalidAmount = errors.New("amount must be a positive finite number")
	// ErrForbiddenState reports a material whose natural state the sphere cannot hold.
	ErrForbiddenState = errors.New("material state not permitted in sphere")
	// ErrUnknownMaterial reports a material lookup miss.
	ErrUnknownMaterial = errors.New("unknown material")
	// ErrInsufficientQuantity reports a removal from an absent or empty row.
	ErrInsufficientQuantity = errors.New("insufficient material quantity")
	// ErrInvalidLayer reports a layer name the sphere does not define.
	ErrInvalidLayer = errors.New("invalid layer")
)

// NotFoundError reports a missing entity in a store or transaction.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}
