package wire

import "errors"

// Engine error taxonomy. All are handled per event: the consumer loop
// logs and continues, no partial state is committed for the failing
// event, and no error here may stop the loop.
var (
	// ErrDecode marks a malformed or unresolvable signaling payload.
	// The event is dropped without retry.
	ErrDecode = errors.New("malformed signaling payload")

	// ErrValidation marks a well-formed event carrying an invalid field,
	// such as a phone number that is not 11 digits.
	ErrValidation = errors.New("invalid event field")

	// ErrAmbiguousDirectory marks a signaling account that resolved to
	// zero or multiple agents where exactly one is required.
	ErrAmbiguousDirectory = errors.New("signaling account does not resolve to exactly one agent")

	// ErrUnknownReference marks a dialplan id that does not resolve to a
	// known campaign. Such an event cannot be attributed and must not be
	// recorded with partial data.
	ErrUnknownReference = errors.New("unknown campaign reference")
)
