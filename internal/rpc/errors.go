package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aatumaykin/odoosweep/internal/retry"
)

// AuthError means the credentials were rejected or authentication could not
// complete. It is never retried and aborts cleanup runs.
type AuthError struct {
	Instance string
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed for instance %q: %s", e.Instance, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the server refused the credentials, as opposed
// to the login call itself failing.
func (e *AuthError) Rejected() bool {
	if e.Err == nil {
		return true
	}
	var remote *RemoteMethodError
	return errors.As(e.Err, &remote) && remote.AccessDenied()
}

// TransportError covers network failures, timeouts, unexpected HTTP status
// codes and undecodable responses.
type TransportError struct {
	Service    string
	Method     string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s.%s: request timeout: %v", e.Service, e.Method, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s.%s: unexpected HTTP status %d: %v", e.Service, e.Method, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s.%s: %v", e.Service, e.Method, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteMethodError is a fault raised by the platform itself: access
// rights, validation or integrity violations, unknown models or methods.
type RemoteMethodError struct {
	Service   string
	Method    string
	Code      int
	Message   string
	Exception string // server exception class, e.g. odoo.exceptions.AccessError
	Debug     string
}

func (e *RemoteMethodError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("%s.%s: %s (%s)", e.Service, e.Method, e.Message, e.Exception)
	}
	return fmt.Sprintf("%s.%s: %s", e.Service, e.Method, e.Message)
}

// AccessDenied reports whether the server rejected the credentials.
func (e *RemoteMethodError) AccessDenied() bool {
	return strings.Contains(e.Exception, "AccessDenied")
}

func newRemoteError(service, method string, re *responseError) *RemoteMethodError {
	msg := re.Data.Message
	if msg == "" {
		msg = re.Message
	}
	return &RemoteMethodError{
		Service:   service,
		Method:    method,
		Code:      re.Code,
		Message:   msg,
		Exception: re.Data.Name,
		Debug:     re.Data.Debug,
	}
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsRemote(err error) bool {
	var target *RemoteMethodError
	return errors.As(err, &target)
}

// Classifier returns the retry classifier for a client. Remote method
// errors are retried only when retryRemote is set.
func Classifier(retryRemote bool) func(error) bool {
	return func(err error) bool {
		switch {
		case err == nil:
			return false
		case errors.Is(err, context.Canceled):
			return false
		case IsAuth(err):
			return false
		case IsRemote(err):
			return retryRemote
		case IsTransport(err):
			var te *TransportError
			errors.As(err, &te)
			// 4xx other than 408/429 will not change on retry
			if te.StatusCode >= 400 && te.StatusCode < 500 && te.StatusCode != 408 && te.StatusCode != 429 {
				return false
			}
			return true
		default:
			return retry.IsRetryable(err)
		}
	}
}
