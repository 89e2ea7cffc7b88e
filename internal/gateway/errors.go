package gateway

import (
	"errors"
	"fmt"
)

// Class is the coarse failure classification for a remote call. Retry policy
// lives with the caller; the gateway only classifies.
type Class string

const (
	// ClassTransport covers network and infrastructure failures. Callers
	// tolerate these by continuing or isolating per task.
	ClassTransport Class = "transport"
	// ClassPreconditionMissing means the callee expects setup that does not
	// exist yet. Callers may self-heal exactly once.
	ClassPreconditionMissing Class = "precondition_missing"
	// ClassRejected means the callee explicitly declined, e.g. a quota or
	// connection limit was reached. Terminal, never retried.
	ClassRejected Class = "rejected"
	// ClassUnknown is everything the gateway cannot classify.
	ClassUnknown Class = "unknown"
)

// RemoteError is a typed failure from a gateway operation.
type RemoteError struct {
	Op         string
	Class      Class
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s: %s (%s, status %d)", e.Op, e.Message, e.Class, e.StatusCode)
	}
	return fmt.Sprintf("gateway %s: %s (%s)", e.Op, e.Message, e.Class)
}

// IsTransport reports whether err is a transport-class remote failure.
func IsTransport(err error) bool {
	return hasClass(err, ClassTransport)
}

// IsPreconditionMissing reports whether err is a precondition-missing failure.
func IsPreconditionMissing(err error) bool {
	return hasClass(err, ClassPreconditionMissing)
}

// IsRejected reports whether err is an explicit rejection (quota/limit).
func IsRejected(err error) bool {
	return hasClass(err, ClassRejected)
}

func hasClass(err error, class Class) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Class == class
}
