package probe

// Status represents the health of the active cluster as shown to the user.
type Status string

const (
	// StatusUnknown indicates no probe has run yet.
	StatusUnknown Status = "unknown"

	// StatusChecking indicates a probe is in flight.
	StatusChecking Status = "checking"

	// StatusHealthy indicates the endpoint answered getVersion.
	StatusHealthy Status = "healthy"

	// StatusUnreachable indicates the probe failed after its retry.
	StatusUnreachable Status = "unreachable"
)
