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
	"net/http"
	"testing"

	"github.com/firebase/firebase-bridge-go/variant"
)

// txnServer serves a transaction location that changes behind the client's back a fixed number
// of times before accepting a write.
type txnServer struct {
	value     string
	conflicts int
	etag      int
}

func (s *txnServer) handle(w http.ResponseWriter, r *http.Request, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("ETag", s.currentETag())
		w.Write([]byte(s.value))
	case http.MethodPut:
		if r.Header.Get("If-Match") != s.currentETag() || s.conflicts > 0 {
			if s.conflicts > 0 {
				s.conflicts--
				s.etag++
			}
			w.Header().Set("ETag", s.currentETag())
			w.WriteHeader(http.StatusPreconditionFailed)
			w.Write([]byte(s.value))
			return
		}
		s.value = string(body)
		s.etag++
		w.Header().Set("ETag", s.currentETag())
		w.Write(body)
	}
}

func (s *txnServer) currentETag() string {
	return "etag-" + string(rune('a'+s.etag))
}

func increment(data *MutableData) TransactionResult {
	data.SetValue(variant.Int64(data.Value().Int64Value() + 1))
	return TransactionSuccess
}

func TestTransaction(t *testing.T) {
	client := newTestClient(t)
	server := &txnServer{value: "1"}
	mock := &mockServer{Handler: server.handle}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("counter")
	snap, err := ref.RunTransaction(context.Background(), increment, false)
	if err != nil {
		t.Fatal(err)
	}
	if !variant.Equal(snap.Value(), variant.Int64(2)) {
		t.Errorf("RunTransaction() = %v; want = 2", snap.Value())
	}

	reqs := mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("Requests = %d; want = 2", len(reqs))
	}
	checkRequest(t, reqs[0], &testReq{Method: "GET", Path: "/counter.json", Query: map[string]string{"format": "export"}})
	if h := reqs[0].Header.Get("X-Firebase-ETag"); h != "true" {
		t.Errorf("X-Firebase-ETag = %q; want = %q", h, "true")
	}
	checkRequest(t, reqs[1], &testReq{Method: "PUT", Path: "/counter.json", Body: "2"})
	if h := reqs[1].Header.Get("If-Match"); h != "etag-a" {
		t.Errorf("If-Match = %q; want = %q", h, "etag-a")
	}
}

func TestTransactionRetry(t *testing.T) {
	client := newTestClient(t)
	server := &txnServer{value: "5", conflicts: 2}
	mock := &mockServer{Handler: server.handle}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("counter")
	var calls int
	snap, err := ref.RunTransaction(context.Background(), func(data *MutableData) TransactionResult {
		calls++
		return increment(data)
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("update calls = %d; want = 3", calls)
	}
	if !variant.Equal(snap.Value(), variant.Int64(6)) {
		t.Errorf("RunTransaction() = %v; want = 6", snap.Value())
	}
	if n := mock.Count(); n != 4 {
		t.Errorf("Requests = %d; want = 4", n)
	}
}

func TestTransactionAbort(t *testing.T) {
	client := newTestClient(t)
	server := &txnServer{value: `{"name":"Peter"}`}
	mock := &mockServer{Handler: server.handle}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	snap, err := ref.RunTransaction(context.Background(), func(data *MutableData) TransactionResult {
		return TransactionAbort
	}, false)
	if CodeOf(err) != ErrorTransactionAbortedByUser {
		t.Fatalf("RunTransaction() = %v; want = transaction aborted by user", err)
	}
	want := variant.StringMap(map[string]variant.Variant{"name": variant.String("Peter")})
	if snap == nil || !variant.Equal(snap.Value(), want) {
		t.Errorf("RunTransaction() snapshot = %v; want = %v", snap, want)
	}
	if n := mock.Count(); n != 1 {
		t.Errorf("Requests = %d; want = 1", n)
	}
}

func TestTransactionMaxRetries(t *testing.T) {
	client := newTestClient(t)
	server := &txnServer{value: "1", conflicts: txnRetries + 1}
	mock := &mockServer{Handler: server.handle}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("counter")
	snap, err := ref.RunTransaction(context.Background(), increment, false)
	if snap != nil || CodeOf(err) != ErrorMaxRetries {
		t.Errorf("RunTransaction() = (%v, %v); want = (nil, max retries)", snap, err)
	}
	if n := mock.Count(); n != txnRetries+1 {
		t.Errorf("Requests = %d; want = %d", n, txnRetries+1)
	}
}

func TestTransactionPriority(t *testing.T) {
	client := newTestClient(t)
	server := &txnServer{value: `{".value":1,".priority":"p"}`}
	mock := &mockServer{Handler: server.handle}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("counter")
	snap, err := ref.RunTransaction(context.Background(), increment, true)
	if err != nil {
		t.Fatal(err)
	}
	if !variant.Equal(snap.Priority(), variant.String("p")) {
		t.Errorf("Priority() = %v; want = %q", snap.Priority(), "p")
	}
	checkRequest(t, mock.Requests()[1], &testReq{
		Method: "PUT",
		Path:   "/counter.json",
		Body:   `{".priority":"p",".value":2}`,
	})
}

func TestTransactionWaitsForOnline(t *testing.T) {
	client := newTestClient(t)
	server := &txnServer{value: "1"}
	mock := &mockServer{Handler: server.handle}
	srv := mock.Start(client)
	defer srv.Close()

	client.GoOffline(context.Background())
	ref, _ := client.NewRef("counter")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ref.RunTransaction(ctx, increment, false); CodeOf(err) != ErrorNetworkError {
		t.Errorf("RunTransaction(offline) = %v; want = network error", err)
	}
	if n := mock.Count(); n != 0 {
		t.Errorf("Requests = %d; want = 0", n)
	}
}

func TestMutableData(t *testing.T) {
	data := &MutableData{Key: "k", node: variant.Int64(1)}
	data.SetPriority(variant.Int64(5))
	data.SetValue(variant.String("v"))
	if !variant.Equal(data.Value(), variant.String("v")) {
		t.Errorf("Value() = %v; want = %q", data.Value(), "v")
	}
	if !variant.Equal(data.Priority(), variant.Int64(5)) {
		t.Errorf("Priority() = %v; want = 5", data.Priority())
	}
	snap := data.Snapshot()
	if snap.Key != "k" || !variant.Equal(snap.Value(), variant.String("v")) {
		t.Errorf("Snapshot() = (%q, %v); want = (%q, %q)", snap.Key, snap.Value(), "k", "v")
	}
}
