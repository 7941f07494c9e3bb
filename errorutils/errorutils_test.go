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

package errorutils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/firebase/firebase-bridge-go/internal"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		code internal.ErrorCode
		fn   func(error) bool
	}{
		{internal.InvalidArgument, IsInvalidArgument},
		{internal.FailedPrecondition, IsFailedPrecondition},
		{internal.OutOfRange, IsOutOfRange},
		{internal.Unauthenticated, IsUnauthenticated},
		{internal.PermissionDenied, IsPermissionDenied},
		{internal.NotFound, IsNotFound},
		{internal.Conflict, IsConflict},
		{internal.Aborted, IsAborted},
		{internal.AlreadyExists, IsAlreadyExists},
		{internal.ResourceExhausted, IsResourceExhausted},
		{internal.Cancelled, IsCancelled},
		{internal.DataLoss, IsDataLoss},
		{internal.Unknown, IsUnknown},
		{internal.Internal, IsInternal},
		{internal.Unavailable, IsUnavailable},
		{internal.DeadlineExceeded, IsDeadlineExceeded},
	}
	for _, tc := range cases {
		err := &internal.FirebaseError{ErrorCode: tc.code, String: "test"}
		if !tc.fn(err) {
			t.Errorf("[%s] predicate = false; want = true", tc.code)
		}
		wrapped := fmt.Errorf("wrapped: %w", err)
		if !tc.fn(wrapped) {
			t.Errorf("[%s] predicate(wrapped) = false; want = true", tc.code)
		}
		if tc.fn(errors.New("plain")) {
			t.Errorf("[%s] predicate(plain error) = true; want = false", tc.code)
		}
		if got := PlatformCode(wrapped); got != string(tc.code) {
			t.Errorf("PlatformCode() = %q; want = %q", got, tc.code)
		}
	}
	if got := PlatformCode(errors.New("plain")); got != "" {
		t.Errorf("PlatformCode(plain) = %q; want = empty", got)
	}
}

func TestHTTPResponse(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusNotFound}
	err := &internal.FirebaseError{ErrorCode: internal.NotFound, Response: resp}
	if got := HTTPResponse(err); got != resp {
		t.Errorf("HTTPResponse() = %v; want = %v", got, resp)
	}
	if got := HTTPResponse(errors.New("plain")); got != nil {
		t.Errorf("HTTPResponse(plain) = %v; want = nil", got)
	}
}
