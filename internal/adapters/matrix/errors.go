package matrix

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	CodeForbidden    = "M_FORBIDDEN"
	CodeNotFound     = "M_NOT_FOUND"
	CodeUnknownToken = "M_UNKNOWN_TOKEN"
	CodeUserInUse    = "M_USER_IN_USE"
)

// Error is a non-2xx answer from the client-server API.
type Error struct {
	StatusCode int
	Code       string `json:"errcode"`
	Message    string `json:"error"`

	// Session and Flows are only set on user-interactive auth challenges.
	Session string     `json:"session,omitempty"`
	Flows   []authFlow `json:"flows,omitempty"`
}

type authFlow struct {
	Stages []string `json:"stages"`
}

func (e *Error) Error() string {
	switch {
	case e.Code == "":
		return fmt.Sprintf("matrix: status %d", e.StatusCode)
	case e.Message == "":
		return fmt.Sprintf("matrix: %s (status %d)", e.Code, e.StatusCode)
	default:
		return fmt.Sprintf("matrix: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
}

// IsErrorCode reports whether err carries the given errcode.
func IsErrorCode(err error, code string) bool {
	var matrixErr *Error
	return errors.As(err, &matrixErr) && matrixErr.Code == code
}

func isNotFound(err error) bool {
	var matrixErr *Error
	if !errors.As(err, &matrixErr) {
		return false
	}
	return matrixErr.Code == CodeNotFound || matrixErr.StatusCode == http.StatusNotFound
}

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(apiErr)
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
