package internal

import (
	"errors"
	"fmt"
)

// ErrUnsupportedEvent marks an event type outside the supported set. The
// endpoint still acknowledges these with a 2xx so GitHub does not disable the
// webhook, but nothing is delivered.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// ErrLaneSaturated is returned by Scheduler.Enqueue when the repository's lane
// has hit its queue depth bound.
var ErrLaneSaturated = errors.New("delivery lane saturated")

// ErrSchedulerClosed is returned by Scheduler.Enqueue after Close has started.
var ErrSchedulerClosed = errors.New("scheduler is closed")

// MalformedPayloadError describes a payload that could not be decoded or is
// missing a required field. It surfaces to the sender as a 400.
type MalformedPayloadError struct {
	EventType string
	Reason    string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %s", e.EventType, e.Reason)
}

// TransientDeliveryError is a sink failure worth retrying: network errors,
// 429s, and 5xx responses.
type TransientDeliveryError struct {
	Status int
	Err    error
}

func (e *TransientDeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("transient delivery failure: sink returned %d", e.Status)
}

func (e *TransientDeliveryError) Unwrap() error { return e.Err }

// TerminalDeliveryError is a sink failure that retrying cannot fix (4xx other
// than 429). The task goes straight to the dead-letter record.
type TerminalDeliveryError struct {
	Status int
	Body   string
}

func (e *TerminalDeliveryError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("terminal delivery failure: sink returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("terminal delivery failure: sink returned %d", e.Status)
}
