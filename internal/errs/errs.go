package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an installer error so the CLI can map it to an exit code
// and the executor can decide whether an action is retryable.
type Kind int

const (
	// KindExecution is a non-zero exit from an invoked tool. Fatal, never
	// retried automatically.
	KindExecution Kind = iota
	// KindValidation is a bad or missing configuration variable. Fatal
	// before any state is touched.
	KindValidation
	// KindNetwork is a failed clone, fetch or download. Retried a bounded
	// number of times before becoming fatal.
	KindNetwork
	// KindHealth is a failed post-action health check. Reported as degraded
	// rather than halting the run.
	KindHealth
	// KindLock means another hoover invocation holds the installation lock.
	KindLock
)

// Exit codes per kind. 0 is reserved for success, 1 for plain execution
// failures so that unclassified errors still exit non-zero.
const (
	ExitOK         = 0
	ExitExecution  = 1
	ExitValidation = 2
	ExitNetwork    = 3
	ExitHealth     = 4
	ExitLock       = 5
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindHealth:
		return "health"
	case KindLock:
		return "lock"
	default:
		return "execution"
	}
}

// Error tags a wrapped error with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two tagged errors by kind alone, so callers can
// test against e.g. errs.New(errs.KindLock, "busy") sentinels.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Kind == te.Kind
}

// New creates a tagged error with a formatted message and no cause.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error. A nil err yields nil so call sites can wrap
// unconditionally.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err, defaulting to KindExecution for untagged
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExecution
}

// ExitCode maps an error to the CLI exit code for its kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindValidation:
		return ExitValidation
	case KindNetwork:
		return ExitNetwork
	case KindHealth:
		return ExitHealth
	case KindLock:
		return ExitLock
	default:
		return ExitExecution
	}
}
