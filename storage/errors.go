// Copyright 2017 Google Inc. All Rights Reserved.
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

package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrorCode is the numeric code of a storage error.
type ErrorCode int

// Storage error codes. Codes from ErrorInvalidArgument onwards are raised by the bridge itself
// rather than by the storage backend.
const (
	ErrorNone ErrorCode = iota
	ErrorUnknown
	ErrorObjectNotFound
	ErrorBucketNotFound
	ErrorProjectNotFound
	ErrorQuotaExceeded
	ErrorUnauthenticated
	ErrorUnauthorized
	ErrorRetryLimitExceeded
	ErrorNonMatchingChecksum
	ErrorDownloadSizeExceeded
	ErrorCancelled
)

const (
	ErrorInvalidArgument ErrorCode = iota + 20
	ErrorAppNotFound
	ErrorNotSupported
	ErrorInvalidString
	ErrorSystemError
	ErrorTaskNotFound
)

type errorInfo struct {
	slug    string
	message string
}

var errorInfos = map[ErrorCode]errorInfo{
	ErrorUnknown:              {"unknown", "An unknown error occurred, please check the server response."},
	ErrorObjectNotFound:       {"object-not-found", "No object exists at the desired reference."},
	ErrorBucketNotFound:       {"bucket-not-found", "No bucket is configured for Cloud Storage."},
	ErrorProjectNotFound:      {"project-not-found", "No project is configured for Cloud Storage."},
	ErrorQuotaExceeded:        {"quota-exceeded", "Quota on your Cloud Storage bucket has been exceeded."},
	ErrorUnauthenticated:      {"unauthenticated", "User is unauthenticated. Authenticate and try again."},
	ErrorUnauthorized:         {"unauthorized", "User is not authorized to perform the desired action."},
	ErrorRetryLimitExceeded:   {"retry-limit-exceeded", "The maximum time limit on an operation has been exceeded."},
	ErrorNonMatchingChecksum:  {"invalid-checksum", "File on the client does not match the checksum of the file received by the server."},
	ErrorDownloadSizeExceeded: {"download-size-exceeded", "Size of the downloaded file exceeds the amount of memory allocated for the download."},
	ErrorCancelled:            {"canceled", "User cancelled the operation."},
	ErrorInvalidArgument:      {"invalid-argument", "Invalid argument."},
	ErrorAppNotFound:          {"app-not-found", "No app is configured with that name."},
	ErrorNotSupported:         {"not-supported", "The feature is not supported."},
	ErrorInvalidString:        {"invalid-string", "The string contains invalid characters."},
	ErrorSystemError:          {"system-error", "A system error occurred."},
	ErrorTaskNotFound:         {"task-not-found", "A task does not exist."},
}

// String returns the slug of the code, such as "object-not-found". Unrecognized codes map to
// "unknown".
func (c ErrorCode) String() string {
	if info, ok := errorInfos[c]; ok {
		return info.slug
	}
	if c == ErrorNone {
		return "none"
	}
	return errorInfos[ErrorUnknown].slug
}

// Message returns the default human readable description of the code.
func (c ErrorCode) Message() string {
	if info, ok := errorInfos[c]; ok {
		return info.message
	}
	return "An unknown error occurred."
}

// Error is the error type returned by all storage operations.
type Error struct {
	Code    ErrorCode
	Message string
	err     error
}

// NewError creates an Error with the given code. An empty message is replaced by the default
// message of the code.
func NewError(code ErrorCode, message string) *Error {
	if message == "" {
		message = code.Message()
	}
	return &Error{Code: code, Message: message}
}

func newErrorf(code ErrorCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the backend error that caused this error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// CodeOf returns the storage error code carried by err. A nil error maps to ErrorNone and
// errors not raised by this package map to ErrorUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorUnknown
}

// wrapError converts errors raised by the Cloud Storage client into storage errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	code := ErrorUnknown
	var ge *googleapi.Error
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		code = ErrorObjectNotFound
	case errors.Is(err, storage.ErrBucketNotExist):
		code = ErrorBucketNotFound
	case errors.Is(err, context.Canceled):
		code = ErrorCancelled
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrorRetryLimitExceeded
	case errors.As(err, &ge):
		code = codeFromStatus(ge.Code)
	}
	return &Error{Code: code, Message: code.Message(), err: err}
}

func codeFromStatus(status int) ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return ErrorUnauthenticated
	case http.StatusForbidden:
		return ErrorUnauthorized
	case http.StatusNotFound:
		return ErrorObjectNotFound
	case http.StatusTooManyRequests:
		return ErrorQuotaExceeded
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorRetryLimitExceeded
	default:
		return ErrorUnknown
	}
}
