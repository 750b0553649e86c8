package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrRevisionConflict means the document changed between read and write;
	// the optimistic-lock CAS matched nothing.
	ErrRevisionConflict = errors.New("booking was modified concurrently")

	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrSlotLocked means another approval currently holds the advisory
	// lock for the same vehicle/time slot.
	ErrSlotLocked = errors.New("slot is locked by another operation")
)
