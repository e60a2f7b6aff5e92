package cluster

import "errors"

// Registry error kinds. Callers should match them with errors.Is.
var (
	// ErrInvalidName indicates a cluster name is empty
	ErrInvalidName = errors.New("invalid cluster name")

	// ErrDuplicateName indicates a cluster with the same name already exists
	ErrDuplicateName = errors.New("cluster name already exists")

	// ErrInvalidEndpoint indicates the endpoint is not a usable RPC address
	ErrInvalidEndpoint = errors.New("invalid cluster endpoint")

	// ErrInvalidNetwork indicates a network outside the known variants
	ErrInvalidNetwork = errors.New("unknown network")

	// ErrNotFound indicates no cluster has the requested name
	ErrNotFound = errors.New("cluster not found")

	// ErrCannotDeleteActive indicates an attempt to delete the active cluster
	ErrCannotDeleteActive = errors.New("cannot delete the active cluster")

	// ErrInvariantViolation indicates the registry reached a state that should be impossible
	ErrInvariantViolation = errors.New("cluster registry invariant violated")
)

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError returns true if the error came from validating user input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidEndpoint) ||
		errors.Is(err, ErrInvalidNetwork)
}

// IsConflict returns true if the request conflicts with current registry state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateName) || errors.Is(err, ErrCannotDeleteActive)
}
