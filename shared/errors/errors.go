package errors

import (
	"errors"
	"net/http"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

func New(message string, statusCode int) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: message, StatusCode: statusCode}
}

// StatusCode returns the status carried by err, or 500 for untyped errors.
func StatusCode(err error) int {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

func hasStatus(err error, statusCode int) bool {
	var e *ErrorWithStatusCode
	return errors.As(err, &e) && e.StatusCode == statusCode
}

func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsExpected reports whether err is a tagged failure rather than an infrastructure error.
func IsExpected(err error) bool {
	var e *ErrorWithStatusCode
	return errors.As(err, &e) && e.StatusCode < http.StatusInternalServerError
}
