package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrUnknownModule matches every *UnknownModuleError.
	ErrUnknownModule = errors.New("unknown module")
	// ErrInvalidSpec indicates a resource spec a module cannot accept.
	ErrInvalidSpec = errors.New("invalid resource spec")
	// ErrNotSupported indicates an operation the resource type does not allow.
	ErrNotSupported = errors.New("operation not supported")
)

// UnknownModuleError is returned by Lookup when an identifier is not registered.
type UnknownModuleError struct {
	ID    string
	Known []string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module %q (registered: %s)", e.ID, strings.Join(e.Known, ", "))
}

// Is makes errors.Is(err, ErrUnknownModule) hold.
func (e *UnknownModuleError) Is(target error) bool {
	return target == ErrUnknownModule
}

// VersionMismatchError is returned by Require when the registry is older than
// the version a host needs.
type VersionMismatchError struct {
	Have string
	Want string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("registry version %s is older than required %s", e.Have, e.Want)
}

// Class tells a host whether an operation failure is worth retrying.
type Class int

const (
	ClassPermanent Class = iota
	ClassTransient
)

func (c Class) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "permanent"
}

// OperationError is the error type every module operation returns.
type OperationError struct {
	Module   string
	Op       string
	Resource string
	Class    Class
	Err      error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Module)
	b.WriteString(": ")
	b.WriteString(e.Op)
	if e.Resource != "" {
		b.WriteString(" ")
		b.WriteString(e.Resource)
	}
	b.WriteString(" (")
	b.WriteString(e.Class.String())
	b.WriteString("): ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient.
func (e *OperationError) Retryable() bool {
	return e.Class == ClassTransient
}

// Wrap turns err into an *OperationError, classifying it from its gRPC or
// HTTP status. Errors that already are *OperationError are returned as is.
func Wrap(module, op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &OperationError{Module: module, Op: op, Resource: resource, Class: Classify(err), Err: err}
}

// Transient wraps err as a retryable failure.
func Transient(module, op, resource string, err error) error {
	return &OperationError{Module: module, Op: op, Resource: resource, Class: ClassTransient, Err: err}
}

// Permanent wraps err as a terminal failure.
func Permanent(module, op, resource string, err error) error {
	return &OperationError{Module: module, Op: op, Resource: resource, Class: ClassPermanent, Err: err}
}

// IsRetryable reports whether err is, or wraps, a transient failure.
func IsRetryable(err error) bool {
	return ClassOf(err) == ClassTransient
}

// ClassOf returns the class carried by err, classifying it when err is not an
// *OperationError.
func ClassOf(err error) Class {
	if err == nil {
		return ClassPermanent
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Class
	}
	return Classify(err)
}

// Classify maps a raw error from a cloud client to a Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassPermanent
	case errors.Is(err, ErrInvalidSpec), errors.Is(err, ErrNotSupported):
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassPermanent
	}

	if ae, ok := apierror.FromError(err); ok {
		if code := ae.HTTPCode(); code > 0 {
			return classifyHTTP(code)
		}
		if st := ae.GRPCStatus(); st != nil {
			return classifyCode(st.Code())
		}
	}
	if st, ok := status.FromError(err); ok {
		return classifyCode(st.Code())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	return ClassPermanent
}

func classifyCode(code codes.Code) Class {
	switch code {
	case codes.Unavailable,
		codes.ResourceExhausted,
		codes.DeadlineExceeded,
		codes.Aborted,
		codes.Internal,
		codes.Unknown:
		return ClassTransient
	default:
		return ClassPermanent
	}
}

func classifyHTTP(code int) Class {
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return ClassTransient
	}
	return ClassPermanent
}
