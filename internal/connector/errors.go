package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFlowInProgress rejects a second authorization attempt while one
	// is pending for the same connector. Expected during normal operation;
	// the UI disables the action instead of queueing.
	ErrAuthFlowInProgress = errors.New("connector: auth flow already in progress")

	// ErrNoToken means no token is stored for the connector.
	ErrNoToken = errors.New("connector: no stored token")

	// ErrNotConnected means a live-session operation was invoked while the
	// connector has no open session.
	ErrNotConnected = errors.New("connector: not connected")

	// ErrNotFound is returned by the registry for an unknown connector id.
	ErrNotFound = errors.New("connector: not found")
)

// ExchangeError covers authorization-step failures: state mismatch, denied
// consent, or a failed code exchange. The pending flow state is always
// cleared; the flow is never retried.
type ExchangeError struct {
	Reason string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connector: auth exchange failed: %s: %v", e.Reason, e.Err)
	}
	return "connector: auth exchange failed: " + e.Reason
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError reports a failed token refresh. Transient failures (network,
// 5xx) are retried with backoff and keep the stored token; permanent ones
// (invalid_grant, revocation) delete it and disconnect the connector.
type RefreshError struct {
	Transient bool
	Err       error
}

func (e *RefreshError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("connector: token refresh failed (%s): %v", kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
