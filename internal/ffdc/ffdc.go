// Package ffdc holds the error catalogue of the search service. Each entry
// carries a stable message id, the HTTP status it maps to, and the text
// shown to callers.
package ffdc

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is one catalogue entry. MessageTemplate is a fmt format.
type ErrorCode struct {
	ID              string
	HTTPStatus      int
	MessageTemplate string
	UserAction      string
}

var (
	InvalidSearchParameter = ErrorCode{
		ID:              "SEARCH-400-001",
		HTTPStatus:      http.StatusBadRequest,
		MessageTemplate: "The search request is invalid: %s",
		UserAction:      "Correct the search conditions and retry the request.",
	}
	ConditionTreeTooDeep = ErrorCode{
		ID:              "SEARCH-400-002",
		HTTPStatus:      http.StatusBadRequest,
		MessageTemplate: "The condition tree is %d levels deep; the limit is %d",
		UserAction:      "Flatten the nested conditions or raise search.max_condition_depth.",
	}
	InvalidPaging = ErrorCode{
		ID:              "SEARCH-400-003",
		HTTPStatus:      http.StatusBadRequest,
		MessageTemplate: "Invalid paging: %s",
		UserAction:      "Use a non-negative fromElement and a pageSize no larger than %d.",
	}
	InvalidEntity = ErrorCode{
		ID:              "SEARCH-400-004",
		HTTPStatus:      http.StatusBadRequest,
		MessageTemplate: "The entity is invalid: %s",
		UserAction:      "Supply a type name and a JSON object of properties.",
	}
	UnknownEntity = ErrorCode{
		ID:              "SEARCH-404-001",
		HTTPStatus:      http.StatusNotFound,
		MessageTemplate: "No entity with guid %s is stored in this repository",
		UserAction:      "Check the guid; the entity may have been deleted.",
	}
	EntityVersionConflict = ErrorCode{
		ID:              "SEARCH-409-001",
		HTTPStatus:      http.StatusConflict,
		MessageTemplate: "Entity %s was updated by another request",
		UserAction:      "Fetch the latest version of the entity and apply the change again.",
	}
	RepositoryFailure = ErrorCode{
		ID:              "SEARCH-500-001",
		HTTPStatus:      http.StatusInternalServerError,
		MessageTemplate: "The repository failed while running %s",
		UserAction:      "Check the server log for the underlying cause.",
	}
	ExportFailure = ErrorCode{
		ID:              "SEARCH-500-002",
		HTTPStatus:      http.StatusInternalServerError,
		MessageTemplate: "The search results could not be exported: %s",
		UserAction:      "Check the server log for the underlying cause.",
	}
)

// Error is a catalogue error with its parameters filled in.
type Error struct {
	Code       ErrorCode
	Message    string
	UserAction string
	Err        error
}

// New fills the code's message template with params. A trailing error in
// params is kept as the cause and not used for formatting.
func New(code ErrorCode, params ...any) *Error {
	var cause error
	if n := len(params); n > 0 {
		if err, ok := params[n-1].(error); ok {
			cause = err
			params = params[:n-1]
		}
	}
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(code.MessageTemplate, params...),
		UserAction: code.UserAction,
		Err:        cause,
	}
}

// WithUserAction overrides the catalogue's user action, formatting it with args.
func (e *Error) WithUserAction(args ...any) *Error {
	out := *e
	out.UserAction = fmt.Sprintf(e.Code.UserAction, args...)
	return &out
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Code.ID, e.Message, e.Err)
	}
	return e.Code.ID + " " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Response is the JSON body returned to HTTP callers.
type Response struct {
	RelatedHTTPCode         int    `json:"relatedHTTPCode"`
	ExceptionErrorMessageID string `json:"exceptionErrorMessageId"`
	ExceptionErrorMessage   string `json:"exceptionErrorMessage"`
	ExceptionUserAction     string `json:"exceptionUserAction"`
}

// ToResponse maps any error to a response. Errors outside the catalogue
// are reported as repository failures without exposing their text.
func ToResponse(err error) Response {
	var fe *Error
	if !errors.As(err, &fe) {
		fe = New(RepositoryFailure, "the request")
	}
	return Response{
		RelatedHTTPCode:         fe.Code.HTTPStatus,
		ExceptionErrorMessageID: fe.Code.ID,
		ExceptionErrorMessage:   fe.Message,
		ExceptionUserAction:     fe.UserAction,
	}
}
