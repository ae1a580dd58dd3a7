// Package errs defines the typed error taxonomy shared by every CoverFS
// component, so that callers down at the inode-level API can distinguish
// "surface this to the user" errors from fatal ones without parsing strings.
package errs

import "fmt"

// Kind classifies an Error. See spec §7 for the full taxonomy and recovery
// semantics of each kind.
type Kind int

const (
	// NotFound covers a missing directory entry or an inode id with no
	// fragments.
	NotFound Kind = iota
	// NotADirectory means traversal expected a directory but found a file.
	NotADirectory
	// NotAFile means OpenFile found a directory.
	NotAFile
	// AlreadyExists means Create hit an existing name.
	AlreadyExists
	// NoSpace means no FREE descriptor slot, or no container space for a
	// requested allocation.
	NoSpace
	// BadPassphrase means the wrap/unwrap check token comparison failed.
	BadPassphrase
	// CorruptVolume means bad magic, CRC, or an unknown version.
	CorruptVolume
	// IoError means the underlying block device failed.
	IoError
	// InvariantViolation means an internal consistency check failed; it
	// indicates a bug, not a condition a caller could have avoided.
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NotADirectory:
		return "not a directory"
	case NotAFile:
		return "not a file"
	case AlreadyExists:
		return "already exists"
	case NoSpace:
		return "no space"
	case BadPassphrase:
		return "bad passphrase"
	case CorruptVolume:
		return "corrupt volume"
	case IoError:
		return "io error"
	case InvariantViolation:
		return "invariant violation"
	default:
		return "unknown error"
	}
}

// Error is a typed CoverFS error. It wraps an optional underlying cause so
// errors.Is/errors.As keep working through the typed Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write `errors.Is(err, errs.New(errs.NotFound, ""))` or, more idiomatically,
// use the Kind-testing helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Of reports the Kind of err if it is (or wraps) a CoverFS *Error, and ok.
func Of(err error) (Kind, bool) {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return 0, false
	}
	return e.Kind, true
}

// Is reports whether err is (or wraps) a CoverFS *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
