package api

import (
	"fmt"
	"net/http"
)

// AuthError is returned when the service refuses the session: a failed login
// or any authenticated call answered with a non-success status.
type AuthError struct {
	Op     string
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: unauthorized (status %d): %s", e.Op, e.Status, e.Body)
}

// NetworkError covers transport failures, 5xx answers and bodies that are not
// the JSON we expect.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: network error (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError is the service rejecting filter values, e.g. size out of range.
type ValidationError struct {
	Op      string
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: rejected by service (status %d): %s", e.Op, e.Status, e.Message)
}

func classifyStatus(op string, status int, body string) error {
	switch {
	case status >= 500:
		return &NetworkError{Op: op, Status: status, Err: fmt.Errorf("server error: %s", body)}
	case op == opLogin:
		return &AuthError{Op: op, Status: status, Body: body}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &ValidationError{Op: op, Status: status, Message: body}
	default:
		return &AuthError{Op: op, Status: status, Body: body}
	}
}
