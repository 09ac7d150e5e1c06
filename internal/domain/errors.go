package domain

import "errors"

// Sentinel errors for the hold lifecycle. Handlers translate these into
// typed wire responses; they are never sent across the transport as raw
// faults.
var (
	// ErrSlotUnavailable is returned by acquire when a live hold or a
	// confirmed booking already occupies the slot.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrNotFound is returned when a hold id does not reference a live hold.
	ErrNotFound = errors.New("hold not found")

	// ErrNotOwner is returned when a session operates on a hold it did not
	// acquire, regardless of whether the hold id is correct.
	ErrNotOwner = errors.New("session does not own hold")

	// ErrExpired is returned by convert when the hold passed its TTL before
	// the conversion; the caller must re-acquire.
	ErrExpired = errors.New("hold expired")

	// ErrAlreadyHeld is the store-level duplicate-insert error.
	ErrAlreadyHeld = errors.New("slot already held")
)
