// Copyright 2020 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
)

// ErrorCode is the canonical code of a callable function error.
type ErrorCode int

// Callable function error codes.
const (
	ErrorOK ErrorCode = iota
	ErrorCancelled
	ErrorUnknown
	ErrorInvalidArgument
	ErrorDeadlineExceeded
	ErrorNotFound
	ErrorAlreadyExists
	ErrorPermissionDenied
	ErrorResourceExhausted
	ErrorFailedPrecondition
	ErrorAborted
	ErrorOutOfRange
	ErrorUnimplemented
	ErrorInternal
	ErrorUnavailable
	ErrorDataLoss
	ErrorUnauthenticated
)

var errorCodeSlugs = []string{
	"ok",
	"cancelled",
	"unknown",
	"invalid-argument",
	"deadline-exceeded",
	"not-found",
	"already-exists",
	"permission-denied",
	"resource-exhausted",
	"failed-precondition",
	"aborted",
	"out-of-range",
	"unimplemented",
	"internal",
	"unavailable",
	"data-loss",
	"unauthenticated",
}

// String returns the slug of the code, such as "not-found". Unrecognized codes map to
// "unknown".
func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(errorCodeSlugs) {
		return errorCodeSlugs[c]
	}
	return errorCodeSlugs[ErrorUnknown]
}

// status returns the name of the code in the callable protocol, such as "NOT_FOUND".
func (c ErrorCode) status() string {
	return strings.ToUpper(strings.ReplaceAll(c.String(), "-", "_"))
}

func codeFromStatus(status string) (ErrorCode, bool) {
	for i := range errorCodeSlugs {
		if ErrorCode(i).status() == status {
			return ErrorCode(i), true
		}
	}
	return ErrorUnknown, false
}

// codeFromHTTPStatus maps the HTTP status of a callable response without an error payload.
func codeFromHTTPStatus(status int) ErrorCode {
	switch status {
	case http.StatusOK:
		return ErrorOK
	case http.StatusBadRequest:
		return ErrorInvalidArgument
	case http.StatusUnauthorized:
		return ErrorUnauthenticated
	case http.StatusForbidden:
		return ErrorPermissionDenied
	case http.StatusNotFound:
		return ErrorNotFound
	case http.StatusConflict:
		return ErrorAborted
	case http.StatusTooManyRequests:
		return ErrorResourceExhausted
	case 499:
		return ErrorCancelled
	case http.StatusInternalServerError:
		return ErrorInternal
	case http.StatusNotImplemented:
		return ErrorUnimplemented
	case http.StatusServiceUnavailable:
		return ErrorUnavailable
	case http.StatusGatewayTimeout:
		return ErrorDeadlineExceeded
	default:
		return ErrorUnknown
	}
}

// Error is the error type returned by callable functions. Details holds the optional details
// sent by the function.
type Error struct {
	Code    ErrorCode
	Message string
	Details variant.Variant
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the transport error that caused this error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// CodeOf returns the function error code carried by err. A nil error maps to ErrorOK and errors
// not raised by this package map to ErrorUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorOK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ErrorUnknown
}

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// handleCallableError decodes the error payload of a non-2xx callable response.
func handleCallableError(resp *internal.Response) error {
	code := codeFromHTTPStatus(resp.Status)
	fe := &Error{Code: code, Message: code.status(), err: internal.NewFirebaseError(resp)}

	var p struct {
		Error *struct {
			Status  string          `json:"status"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(resp.Body, &p) != nil || p.Error == nil {
		return fe
	}
	if c, ok := codeFromStatus(p.Error.Status); ok {
		fe.Code = c
		fe.Message = c.status()
	} else {
		fe.Code = ErrorInternal
		fe.Message = ErrorInternal.status()
	}
	if p.Error.Message != "" {
		fe.Message = p.Error.Message
	}
	if len(p.Error.Details) > 0 {
		if d, err := decodeJSON(p.Error.Details); err == nil {
			fe.Details = d
		}
	}
	return fe
}

// wrapError converts transport failures into function errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	var ie *internal.FirebaseError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &ie) && ie.ErrorCode == internal.DeadlineExceeded:
		return &Error{Code: ErrorDeadlineExceeded, Message: "DEADLINE_EXCEEDED", err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Code: ErrorCancelled, Message: "CANCELLED", err: err}
	default:
		return &Error{Code: ErrorUnavailable, Message: err.Error(), err: err}
	}
}
