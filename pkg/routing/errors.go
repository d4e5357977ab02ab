package routing

import (
	"errors"
	"fmt"

	"github.com/azybler/chroute/pkg/graph"
)

var (
	// ErrNoRoute is returned when no route exists between the two points.
	ErrNoRoute = errors.New("no route found")

	// ErrInvalidQuery reports a malformed call: empty point lists, missing
	// seeds, unknown vertices or a negative weight bound.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnsupported is wrapped by OperationError for operations the
	// hierarchy search cannot answer.
	ErrUnsupported = errors.New("operation not supported")

	// ErrCorruptGraph matches every CorruptGraphError.
	ErrCorruptGraph = errors.New("corrupt graph")
)

// OperationError reports an operation that failed as a whole.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OperationError) Unwrap() error { return e.Err }

// CorruptGraphError reports a shortcut that cannot be expanded, either
// because the expansion recursed past the depth limit or because an arc it
// refers to does not exist.
type CorruptGraphError struct {
	From, To graph.VertexID
	Depth    int
	Reason   string
}

func (e *CorruptGraphError) Error() string {
	return fmt.Sprintf("corrupt graph: expanding %d->%d at depth %d: %s", e.From, e.To, e.Depth, e.Reason)
}

func (e *CorruptGraphError) Is(target error) bool { return target == ErrCorruptGraph }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
