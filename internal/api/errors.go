// Package api provides error types for folder API responses.
package api

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/rescale/rescale-foldernav/internal/models"
)

// ErrorCode is the machine readable "code" field of an error response.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "not_found"
	CodeFolderNotEmpty ErrorCode = "folder_not_empty"
	CodeNotAFolder     ErrorCode = "not_a_folder"
	CodeNameConflict   ErrorCode = "name_conflict"
	CodeRootImmutable  ErrorCode = "root_immutable"
	CodeInvalidName    ErrorCode = "invalid_name"
	CodeInvalidDraft   ErrorCode = "invalid_draft"
	CodeBadRequest     ErrorCode = "bad_request"
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeInternal       ErrorCode = "internal"
)

// ErrorResponse is the JSON body of every non-2xx folder API response.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code,omitempty"`
}

// ErrUnauthorized is matched by errors.Is for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

var codeSentinels = map[ErrorCode]error{
	CodeNotFound:       models.ErrNodeNotFound,
	CodeFolderNotEmpty: models.ErrFolderNotEmpty,
	CodeNotAFolder:     models.ErrNotAFolder,
	CodeNameConflict:   models.ErrNameConflict,
	CodeRootImmutable:  models.ErrRootImmutable,
	CodeInvalidName:    models.ErrInvalidName,
	CodeInvalidDraft:   models.ErrInvalidDraft,
	CodeUnauthorized:   ErrUnauthorized,
}

// Error is a non-2xx response from the folder API. It unwraps to the
// models sentinel matching its code, so callers can use errors.Is with
// models.ErrFolderNotEmpty and friends regardless of the backend.
type Error struct {
	StatusCode int
	Code       ErrorCode
	Message    string
	Method     string
	Path       string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = nethttp.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *Error) Unwrap() error {
	if err, ok := codeSentinels[e.Code]; ok {
		return err
	}
	switch e.StatusCode {
	case nethttp.StatusNotFound:
		return models.ErrNodeNotFound
	case nethttp.StatusUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// Temporary reports whether retrying the same request could succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode == nethttp.StatusTooManyRequests || e.StatusCode >= 500
}

// Classify maps a folder service error to the HTTP status and code the
// server answers with.
func Classify(err error) (int, ErrorCode) {
	var apiErr *Error
	switch {
	case errors.Is(err, models.ErrNodeNotFound):
		return nethttp.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrFolderNotEmpty):
		return nethttp.StatusConflict, CodeFolderNotEmpty
	case errors.Is(err, models.ErrNameConflict):
		return nethttp.StatusConflict, CodeNameConflict
	case errors.Is(err, models.ErrNotAFolder):
		return nethttp.StatusBadRequest, CodeNotAFolder
	case errors.Is(err, models.ErrRootImmutable):
		return nethttp.StatusForbidden, CodeRootImmutable
	case errors.Is(err, models.ErrInvalidName):
		return nethttp.StatusBadRequest, CodeInvalidName
	case errors.Is(err, models.ErrInvalidDraft):
		return nethttp.StatusBadRequest, CodeInvalidDraft
	case errors.Is(err, ErrUnauthorized):
		return nethttp.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return nethttp.StatusGatewayTimeout, CodeInternal
	case errors.As(err, &apiErr):
		return apiErr.StatusCode, apiErr.Code
	default:
		return nethttp.StatusInternalServerError, CodeInternal
	}
}

// IsNotFound reports whether err means the node does not exist remotely.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNodeNotFound)
}
