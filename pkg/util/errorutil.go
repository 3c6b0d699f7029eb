package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewAlreadyAssigned reports a claim conflict: the ticket is held by a
// different employee and must not be stolen.
func NewAlreadyAssigned(ticketID, holderID string) error {
	return NewDomainError("ALREADY_ASSIGNED", "ticket already assigned to another employee",
		http.StatusConflict, map[string]any{"ticket_id": ticketID, "assigned_to": holderID})
}

// NewNotAssignee reports a lifecycle transition attempted by an
// employee that does not hold the ticket.
func NewNotAssignee(ticketID string) error {
	return NewDomainError("NOT_ASSIGNEE", "only the assigned employee may transition this ticket",
		http.StatusForbidden, map[string]any{"ticket_id": ticketID})
}

// NewTicketClosed reports a mutation attempted against a closed ticket.
func NewTicketClosed(ticketID string) error {
	return NewDomainError("TICKET_CLOSED", "ticket is closed",
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

// NewTerminalState reports a transition attempted out of a terminal status.
func NewTerminalState(ticketID string) error {
	return NewDomainError("TERMINAL_STATE", "ticket is in a terminal state",
		http.StatusConflict, map[string]any{"ticket_id": ticketID})
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given DomainError code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
