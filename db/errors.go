// Copyright 2018 Google Inc. All Rights Reserved.
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

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/firebase/firebase-bridge-go/errorutils"
	"github.com/firebase/firebase-bridge-go/internal"
)

// ErrorCode is the numeric code of a database error.
type ErrorCode int

// Database error codes.
const (
	ErrorNone ErrorCode = iota
	ErrorDisconnected
	ErrorExpiredToken
	ErrorInvalidToken
	ErrorMaxRetries
	ErrorNetworkError
	ErrorOperationFailed
	ErrorOverriddenBySet
	ErrorPermissionDenied
	ErrorUnavailable
	ErrorUnknown
	ErrorWriteCanceled
	ErrorInvalidVariantType
	ErrorConflictingOperationInProgress
	ErrorTransactionAbortedByUser
)

var errorCodeNames = []string{
	"none",
	"disconnected",
	"expired-token",
	"invalid-token",
	"max-retries",
	"network-error",
	"operation-failed",
	"overridden-by-set",
	"permission-denied",
	"unavailable",
	"unknown",
	"write-canceled",
	"invalid-variant-type",
	"conflicting-operation-in-progress",
	"transaction-aborted-by-user",
}

func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error is the error type returned by all database operations.
type Error struct {
	Code    ErrorCode
	Message string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying transport or platform error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// CodeOf returns the database error code carried by err. A nil error maps to ErrorNone and
// errors not raised by this package map to ErrorUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrorUnknown
}

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// handleRTDBError extracts the "error" field of an RTDB error payload into the error message.
func handleRTDBError(resp *internal.Response) error {
	err := internal.NewFirebaseError(resp)
	var p struct {
		Error string `json:"error"`
	}
	json.Unmarshal(resp.Body, &p)
	if p.Error != "" {
		err.String = fmt.Sprintf("http error status: %d; reason: %s", resp.Status, p.Error)
	}

	return err
}

// wrapError converts errors raised by the HTTP layer into database errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrorNetworkError, Message: err.Error(), err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &Error{Code: ErrorNetworkError, Message: err.Error(), err: err}
	}

	code := ErrorUnknown
	msg := strings.ToLower(err.Error())
	switch {
	case errorutils.IsUnauthenticated(err):
		switch {
		case strings.Contains(msg, "expired"):
			code = ErrorExpiredToken
		case strings.Contains(msg, "permission denied"):
			code = ErrorPermissionDenied
		default:
			code = ErrorInvalidToken
		}
	case errorutils.IsPermissionDenied(err):
		code = ErrorPermissionDenied
	case errorutils.IsUnavailable(err):
		code = ErrorUnavailable
	case errorutils.IsDeadlineExceeded(err):
		code = ErrorNetworkError
	case errorutils.IsInvalidArgument(err), errorutils.IsNotFound(err),
		errorutils.IsFailedPrecondition(err), errorutils.IsResourceExhausted(err):
		code = ErrorOperationFailed
	case errorutils.IsUnknown(err) && errorutils.HTTPResponse(err) == nil:
		code = ErrorNetworkError
	}
	return &Error{Code: code, Message: err.Error(), err: err}
}
