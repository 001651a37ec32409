package viz

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBusy is returned when an operation is attempted while another request
// is still in flight for the same session.
var ErrBusy = errors.New("another request is in flight")

// ValidationError is a precondition checked locally. It never reaches the
// network.
type ValidationError struct {
	Op      string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Validationf builds a ValidationError.
func Validationf(op, format string, args ...any) error {
	return &ValidationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// NetworkError is a transport-level failure: no response was received.
// Timeouts and cancellations are reported as NetworkError too.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError means a response was received and it reports failure.
type ServiceError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// DataShapeError means the response reported success but lacks the fields
// the operation needs.
type DataShapeError struct {
	Op      string
	Message string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %s", e.Op, e.Message)
}

// DataShapef builds a DataShapeError.
func DataShapef(op, format string, args ...any) error {
	return &DataShapeError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// Kind names the category of a workflow failure.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
	KindService    Kind = "service"
	KindDataShape  Kind = "data_shape"
	KindBusy       Kind = "busy"
	KindInternal   Kind = "internal"
)

// Classify returns the kind of err. Errors outside the taxonomy are
// KindInternal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBusy):
		return KindBusy
	case IsValidation(err):
		return KindValidation
	case IsNetwork(err):
		return KindNetwork
	case IsService(err):
		return KindService
	case IsDataShape(err):
		return KindDataShape
	}
	return KindInternal
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNetwork reports whether err is a *NetworkError.
func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsService reports whether err is a *ServiceError.
func IsService(err error) bool {
	var target *ServiceError
	return errors.As(err, &target)
}

// IsDataShape reports whether err is a *DataShapeError.
func IsDataShape(err error) bool {
	var target *DataShapeError
	return errors.As(err, &target)
}

// HasStatusCode reports whether err is a ServiceError with the given HTTP status.
func HasStatusCode(err error, code int) bool {
	var target *ServiceError
	return errors.As(err, &target) && target.StatusCode == code
}

// IsUnauthorized reports whether err is a ServiceError with HTTP 401.
func IsUnauthorized(err error) bool { return HasStatusCode(err, http.StatusUnauthorized) }

// IsNotFound reports whether err is a ServiceError with HTTP 404.
func IsNotFound(err error) bool { return HasStatusCode(err, http.StatusNotFound) }
