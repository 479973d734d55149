package odoo

import (
	"encoding/json"
	"errors"

	"github.com/aatumaykin/odoosweep/internal/rpc"
)

// ErrorCode is the closed set of failure codes an operation can report.
type ErrorCode string

const (
	CodeAuthFailed      ErrorCode = "AUTH_FAILED"
	CodeAuthError       ErrorCode = "AUTH_ERROR"
	CodeSearchError     ErrorCode = "SEARCH_ERROR"
	CodeSearchReadError ErrorCode = "SEARCH_READ_ERROR"
	CodeReadError       ErrorCode = "READ_ERROR"
	CodeCreateError     ErrorCode = "CREATE_ERROR"
	CodeUpdateError     ErrorCode = "UPDATE_ERROR"
	CodeDeleteError     ErrorCode = "DELETE_ERROR"
	CodeCountError      ErrorCode = "COUNT_ERROR"
	CodeExecuteError    ErrorCode = "EXECUTE_ERROR"
	CodeReportError     ErrorCode = "REPORT_ERROR"
	CodeMetadataError   ErrorCode = "METADATA_ERROR"
)

// OpError describes why an operation failed.
type OpError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Cause   error     `json:"-"`
}

func (e *OpError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *OpError) Unwrap() error {
	return e.Cause
}

// Metadata accompanies every envelope.
type Metadata struct {
	ElapsedMs     int64  `json:"elapsedMs"`
	RecordCount   *int   `json:"recordCount,omitempty"`
	ServerVersion string `json:"serverVersion,omitempty"`
}

// Envelope is the outcome of a façade operation: Data on success, Err on
// failure, never both.
type Envelope[T any] struct {
	Data T
	Err  *OpError
	Meta Metadata
}

// OK reports whether the operation succeeded.
func (e Envelope[T]) OK() bool {
	return e.Err == nil
}

// Error returns the failure as an error value, or nil.
func (e Envelope[T]) Error() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

func (e Envelope[T]) MarshalJSON() ([]byte, error) {
	type wire struct {
		Success  bool     `json:"success"`
		Data     any      `json:"data,omitempty"`
		Error    *OpError `json:"error,omitempty"`
		Metadata Metadata `json:"metadata"`
	}
	w := wire{Success: e.OK(), Error: e.Err, Metadata: e.Meta}
	if e.OK() {
		w.Data = e.Data
	}
	return json.Marshal(w)
}

func ok[T any](data T, meta Metadata) Envelope[T] {
	return Envelope[T]{Data: data, Meta: meta}
}

// fail wraps err under code. Authentication failures keep their own code
// so callers can tell bad credentials from a failed operation.
func fail[T any](code ErrorCode, err error, meta Metadata) Envelope[T] {
	var prior *OpError
	if errors.As(err, &prior) && (prior.Code == CodeAuthFailed || prior.Code == CodeAuthError) {
		code = prior.Code
	}
	return Envelope[T]{Err: newOpError(code, err), Meta: meta}
}

// newOpError keeps the remote message readable and records the exception
// class or transport kind in Detail.
func newOpError(code ErrorCode, err error) *OpError {
	op := &OpError{Code: code, Message: err.Error(), Cause: err}

	var remote *rpc.RemoteMethodError
	var transport *rpc.TransportError
	var auth *rpc.AuthError
	var prior *OpError

	switch {
	case errors.As(err, &prior):
		op.Message = prior.Message
		op.Detail = prior.Detail
	case errors.As(err, &remote):
		op.Message = remote.Message
		op.Detail = remote.Exception
	case errors.As(err, &auth):
		op.Detail = "auth"
	case errors.As(err, &transport):
		if transport.Timeout {
			op.Detail = "timeout"
		} else {
			op.Detail = "transport"
		}
	}
	return op
}

func intPtr(n int) *int {
	return &n
}
