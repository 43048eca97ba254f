package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code exposed to API clients.
type Code string

const (
	CodeInvalidDateTime      Code = "invalid_datetime"
	CodeInvalidRange         Code = "invalid_range"
	CodeInvalidSlotAlignment Code = "invalid_slot_alignment"
	CodeInvalidSlotDuration  Code = "invalid_slot_duration"
	CodeProviderNotFound     Code = "provider_not_found"
	CodeRoomNotFound         Code = "room_not_found"
	CodePatientNotFound      Code = "patient_not_found"
	CodeAppointmentNotFound  Code = "appointment_not_found"
	CodeDoubleBooking        Code = "double_booking"
	CodeBadRequest           Code = "bad_request"
	CodeUnauthorized         Code = "unauthorized"
	CodeInternal             Code = "internal_error"
)

// AppError represents an application error with a stable code and a suggested
// HTTP status. The transport layer owns the final numeric status.
type AppError struct {
	Code    Code   `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.Status
}

func New(code Code, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

func InvalidDateTime(raw string) *AppError {
	return &AppError{Code: CodeInvalidDateTime, Status: http.StatusUnprocessableEntity, Message: fmt.Sprintf("unparsable instant %q", raw)}
}

func InvalidRange() *AppError {
	return &AppError{Code: CodeInvalidRange, Status: http.StatusUnprocessableEntity, Message: "range end must be after range start"}
}

func InvalidSlotAlignment(slotMinutes int) *AppError {
	return &AppError{Code: CodeInvalidSlotAlignment, Status: http.StatusUnprocessableEntity, Message: fmt.Sprintf("start must align to the %d minute grid", slotMinutes)}
}

func InvalidSlotDuration(slotMinutes int) *AppError {
	return &AppError{Code: CodeInvalidSlotDuration, Status: http.StatusUnprocessableEntity, Message: fmt.Sprintf("duration must be a multiple of %d minutes", slotMinutes)}
}

func NotFound(code Code, resource string) *AppError {
	return &AppError{Code: code, Status: http.StatusNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func DoubleBooking() *AppError {
	return &AppError{Code: CodeDoubleBooking, Status: http.StatusConflict, Message: "slot overlaps an existing scheduled appointment"}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: message, Err: err}
}

func Unauthorized(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

func Internal(err error) *AppError {
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// AsAppError unwraps err to an *AppError, or wraps it as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// HasCode reports whether err carries the given application code.
func HasCode(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
