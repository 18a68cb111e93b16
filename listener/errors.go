package listener

import (
	"errors"
	"fmt"
)

var (
	// Argument errors
	ErrInvalidArgument      = errors.New("listener: invalid argument")
	ErrNilFactory           = fmt.Errorf("%w: container factory must not be nil", ErrInvalidArgument)
	ErrNilConnectionFactory = fmt.Errorf("%w: connection factory must not be nil", ErrInvalidArgument)
	ErrNilSettings          = fmt.Errorf("%w: listener settings must not be nil", ErrInvalidArgument)

	// Factory errors
	ErrNoConnectionFactory = errors.New("listener: factory has no connection factory bound")
	ErrNoHandler           = errors.New("listener: endpoint has no handler")
	ErrNoDestination       = errors.New("listener: endpoint has no destination name")

	// Container errors
	ErrContainerClosed    = errors.New("listener: container is stopped")
	ErrUnknownDestination = errors.New("listener: unknown destination")
)

// ConcurrencyError reports an unparsable concurrency specification.
type ConcurrencyError struct {
	Spec string
	Err  error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("listener: invalid concurrency specification %q: %v", e.Spec, e.Err)
}

func (e *ConcurrencyError) Unwrap() error {
	return e.Err
}
