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
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
)

const testURL = "https://test-db.firebaseio.com"

var testOpts = []option.ClientOption{
	option.WithTokenSource(&internal.MockTokenSource{AccessToken: "mock-token"}),
}

func newTestClient(t *testing.T) *Client {
	return newTestClientWithConfig(t, &internal.DatabaseConfig{})
}

func newTestClientWithConfig(t *testing.T, conf *internal.DatabaseConfig) *Client {
	conf.Opts = testOpts
	conf.URL = testURL
	conf.Logger = zaptest.NewLogger(t)
	c, err := NewClient(context.Background(), conf)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	c := newTestClient(t)
	if c.url != testURL {
		t.Errorf("url = %q; want = %q", c.url, testURL)
	}
	if c.namespace != "" {
		t.Errorf("namespace = %q; want = empty", c.namespace)
	}
	if c.hc == nil {
		t.Errorf("hc = nil; want non-nil")
	}
	if !c.Online() {
		t.Errorf("Online() = false; want = true")
	}
}

func TestNewClientEmulator(t *testing.T) {
	c, err := NewClient(context.Background(), &internal.DatabaseConfig{
		URL: "http://localhost:9000?ns=test-ns",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.url != "http://localhost:9000" {
		t.Errorf("url = %q; want = %q", c.url, "http://localhost:9000")
	}
	if c.namespace != "test-ns" {
		t.Errorf("namespace = %q; want = %q", c.namespace, "test-ns")
	}
}

func TestNewClientEmulatorEnv(t *testing.T) {
	t.Setenv(emulatorDatabaseEnvVar, "localhost:9000")
	c, err := NewClient(context.Background(), &internal.DatabaseConfig{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	if c.url != "http://localhost:9000" || c.namespace != "test-db" {
		t.Errorf("NewClient() = (%q, %q); want = (%q, %q)", c.url, c.namespace, "http://localhost:9000", "test-db")
	}
}

func TestNewClientError(t *testing.T) {
	cases := []string{
		"",
		"foo",
		"ftp://test-db.firebaseio.com",
		"https://firebase.google.com",
		"http://localhost:9000",
	}
	for _, tc := range cases {
		c, err := NewClient(context.Background(), &internal.DatabaseConfig{
			Opts: testOpts,
			URL:  tc,
		})
		if c != nil || err == nil {
			t.Errorf("NewClient(%q) = (%v, %v); want = (nil, error)", tc, c, err)
		}
	}
}

func TestNewRef(t *testing.T) {
	client := newTestClient(t)
	cases := []struct {
		Path     string
		WantPath string
		WantKey  string
	}{
		{"", "/", ""},
		{"/", "/", ""},
		{"foo", "/foo", "foo"},
		{"/foo", "/foo", "foo"},
		{"foo/bar", "/foo/bar", "bar"},
		{"/foo/bar", "/foo/bar", "bar"},
		{"/foo/bar/", "/foo/bar", "bar"},
	}
	for _, tc := range cases {
		r, err := client.NewRef(tc.Path)
		if err != nil {
			t.Fatal(err)
		}
		if r.client != client {
			t.Errorf("Client = %v; want = %v", r.client, client)
		} else if r.Path != tc.WantPath {
			t.Errorf("Path = %q; want = %q", r.Path, tc.WantPath)
		} else if r.Key != tc.WantKey {
			t.Errorf("Key = %q; want = %q", r.Key, tc.WantKey)
		}
	}
}

func TestInvalidPath(t *testing.T) {
	client := newTestClient(t)
	for _, tc := range []string{"foo.bar", "foo#", "$foo", "[foo]"} {
		r, err := client.NewRef(tc)
		if r != nil || CodeOf(err) != ErrorOperationFailed {
			t.Errorf("NewRef(%q) = (%v, %v); want = (nil, operation failed)", tc, r, err)
		}
	}
}

func TestParent(t *testing.T) {
	client := newTestClient(t)
	cases := []struct {
		Path      string
		HasParent bool
		Want      string
	}{
		{"", false, ""},
		{"/", false, ""},
		{"foo", true, ""},
		{"/foo", true, ""},
		{"foo/bar", true, "foo"},
		{"/foo/bar", true, "foo"},
		{"/foo/bar/", true, "foo"},
	}
	for _, tc := range cases {
		r, err := client.NewRef(tc.Path)
		if err != nil {
			t.Fatal(err)
		}

		r = r.Parent()
		if tc.HasParent {
			if r == nil {
				t.Fatalf("Parent = nil; want = %q", tc.Want)
			} else if r.Key != tc.Want {
				t.Errorf("Key = %q; want = %q", r.Key, tc.Want)
			}
		} else if r != nil {
			t.Fatalf("Parent = %v; want = nil", r)
		}
	}
}

func TestChild(t *testing.T) {
	client := newTestClient(t)
	r, _ := client.NewRef("users")
	c, err := r.Child("peter/age")
	if err != nil {
		t.Fatal(err)
	}
	if c.Path != "/users/peter/age" || c.Key != "age" {
		t.Errorf("Child() = (%q, %q); want = (%q, %q)", c.Path, c.Key, "/users/peter/age", "age")
	}
}

func TestGet(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Resp: map[string]interface{}{
		"name":      "Peter Parker",
		"age":       17,
		".priority": 1,
	}}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	snap, err := ref.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	want := variant.StringMap(map[string]variant.Variant{
		"name": variant.String("Peter Parker"),
		"age":  variant.Int64(17),
	})
	if !variant.Equal(snap.Value(), want) {
		t.Errorf("Value() = %v; want = %v", snap.Value(), want)
	}
	if !variant.Equal(snap.Priority(), variant.Int64(1)) {
		t.Errorf("Priority() = %v; want = 1", snap.Priority())
	}
	if snap.Key != "peter" {
		t.Errorf("Key = %q; want = %q", snap.Key, "peter")
	}
	if diff := cmp.Diff([]string{"age", "name"}, snap.ChildKeys()); diff != "" {
		t.Errorf("ChildKeys() mismatch (-want +got):\n%s", diff)
	}

	checkOnlyRequest(t, mock.Requests(), &testReq{Method: "GET", Path: "/peter.json", Query: map[string]string{"format": "export"}})
}

func TestGetLeafWithPriority(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Resp: map[string]interface{}{".value": "hello", ".priority": "p"}}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("greeting")
	snap, err := ref.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !variant.Equal(snap.Value(), variant.String("hello")) {
		t.Errorf("Value() = %v; want = %q", snap.Value(), "hello")
	}
	if !variant.Equal(snap.Priority(), variant.String("p")) {
		t.Errorf("Priority() = %v; want = %q", snap.Priority(), "p")
	}
	if snap.HasChildren() {
		t.Errorf("HasChildren() = true; want = false")
	}
}

func TestGetNull(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Resp: nil}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("missing")
	snap, err := ref.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Exists() {
		t.Errorf("Exists() = true; want = false")
	}
	if len(snap.ChildKeys()) != 0 {
		t.Errorf("ChildKeys() = %v; want = empty", snap.ChildKeys())
	}
}

func TestSet(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	v := variant.StringMap(map[string]variant.Variant{
		"name": variant.String("Peter Parker"),
		"age":  variant.Int64(17),
	})
	if err := ref.Set(context.Background(), v); err != nil {
		t.Fatal(err)
	}

	checkOnlyRequest(t, mock.Requests(), &testReq{
		Method: "PUT",
		Path:   "/peter.json",
		Query:  map[string]string{"print": "silent"},
		Body:   `{"age":17,"name":"Peter Parker"}`,
	})
}

func TestSetWithPriority(t *testing.T) {
	cases := []struct {
		value variant.Variant
		want  string
	}{
		{variant.String("foo"), `{".priority":2,".value":"foo"}`},
		{
			variant.StringMap(map[string]variant.Variant{"name": variant.String("Peter")}),
			`{".priority":2,"name":"Peter"}`,
		},
		{variant.Null(), `{".priority":2,".value":null}`},
	}
	for _, tc := range cases {
		client := newTestClient(t)
		mock := &mockServer{Status: http.StatusNoContent}
		srv := mock.Start(client)

		ref, _ := client.NewRef("peter")
		if err := ref.SetWithPriority(context.Background(), tc.value, variant.Int64(2)); err != nil {
			t.Fatal(err)
		}
		checkOnlyRequest(t, mock.Requests(), &testReq{
			Method: "PUT",
			Path:   "/peter.json",
			Query:  map[string]string{"print": "silent"},
			Body:   tc.want,
		})
		srv.Close()
	}
}

func TestSetPriority(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	if err := ref.SetPriority(context.Background(), variant.String("high")); err != nil {
		t.Fatal(err)
	}
	checkOnlyRequest(t, mock.Requests(), &testReq{
		Method: "PUT",
		Path:   "/peter/.priority.json",
		Query:  map[string]string{"print": "silent"},
		Body:   `"high"`,
	})
}

func TestInvalidPriority(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	p := variant.Vector(variant.Int64(1))
	if err := ref.SetPriority(context.Background(), p); CodeOf(err) != ErrorInvalidVariantType {
		t.Errorf("SetPriority() = %v; want = invalid variant type", err)
	}
	if err := ref.SetWithPriority(context.Background(), variant.Int64(1), p); CodeOf(err) != ErrorInvalidVariantType {
		t.Errorf("SetWithPriority() = %v; want = invalid variant type", err)
	}
	if n := mock.Count(); n != 0 {
		t.Errorf("Requests = %d; want = 0", n)
	}
}

func TestUpdate(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	v := variant.StringMap(map[string]variant.Variant{
		"age":          variant.Int64(18),
		"address/city": variant.String("NYC"),
	})
	if err := ref.Update(context.Background(), v); err != nil {
		t.Fatal(err)
	}
	checkOnlyRequest(t, mock.Requests(), &testReq{
		Method: "PATCH",
		Path:   "/peter.json",
		Query:  map[string]string{"print": "silent"},
		Body:   `{"address/city":"NYC","age":18}`,
	})
}

func TestInvalidUpdate(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	cases := []variant.Variant{
		variant.Null(),
		variant.String("foo"),
		variant.Map(),
		variant.StringMap(map[string]variant.Variant{"a.b": variant.Int64(1)}),
		variant.Map(variant.Pair{Key: variant.Bool(true), Value: variant.Int64(1)}),
	}
	for _, tc := range cases {
		if err := ref.Update(context.Background(), tc); CodeOf(err) != ErrorInvalidVariantType {
			t.Errorf("Update(%v) = %v; want = invalid variant type", tc, err)
		}
	}
	if n := mock.Count(); n != 0 {
		t.Errorf("Requests = %d; want = 0", n)
	}
}

func TestAuthOverride(t *testing.T) {
	client := newTestClientWithConfig(t, &internal.DatabaseConfig{
		AuthOverride: map[string]interface{}{"uid": "user1"},
	})
	mock := &mockServer{Resp: "data"}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	if _, err := ref.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkOnlyRequest(t, mock.Requests(), &testReq{
		Method: "GET",
		Path:   "/peter.json",
		Query:  map[string]string{"format": "export", authVarOverride: `{"uid":"user1"}`},
	})
}

func TestEmulatorNamespace(t *testing.T) {
	client, err := NewClient(context.Background(), &internal.DatabaseConfig{
		URL:    "http://localhost:9000?ns=test-ns",
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	mock := &mockServer{Resp: "data"}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	if _, err := ref.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkOnlyRequest(t, mock.Requests(), &testReq{
		Method: "GET",
		Path:   "/peter.json",
		Query:  map[string]string{"format": "export", "ns": "test-ns"},
	})
	if h := mock.Requests()[0].Header.Get("Authorization"); h != "Bearer owner" {
		t.Errorf("Authorization = %q; want = %q", h, "Bearer owner")
	}
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   ErrorCode
	}{
		{http.StatusUnauthorized, `{"error": "Permission denied"}`, ErrorPermissionDenied},
		{http.StatusUnauthorized, `{"error": "Auth token is expired"}`, ErrorExpiredToken},
		{http.StatusUnauthorized, `{"error": "Could not parse auth token."}`, ErrorInvalidToken},
		{http.StatusForbidden, `{"error": "Permission denied"}`, ErrorPermissionDenied},
		{http.StatusBadRequest, `{"error": "Invalid data"}`, ErrorOperationFailed},
		{http.StatusNotImplemented, `{}`, ErrorUnknown},
	}
	for _, tc := range cases {
		client := newTestClient(t)
		mock := &mockServer{Status: tc.status, RawResp: tc.body}
		srv := mock.Start(client)

		ref, _ := client.NewRef("peter")
		_, err := ref.Get(context.Background())
		if got := CodeOf(err); got != tc.want {
			t.Errorf("Get() [%d %s] = %v (%v); want = %v", tc.status, tc.body, got, err, tc.want)
		}
		srv.Close()
	}
}

func TestOfflineWrites(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	client.GoOffline(context.Background())
	if client.Online() {
		t.Fatalf("Online() = true; want = false")
	}

	ref, _ := client.NewRef("peter")
	errs := make(chan error, 2)
	go func() { errs <- ref.Set(context.Background(), variant.Int64(1)) }()
	waitOutstanding(t, client, 1)
	go func() { errs <- ref.Set(context.Background(), variant.Int64(2)) }()
	waitOutstanding(t, client, 2)

	if n := mock.Count(); n != 0 {
		t.Fatalf("Requests while offline = %d; want = 0", n)
	}

	client.GoOnline(context.Background())
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Set() = %v; want = nil", err)
		}
	}
	if !client.Online() {
		t.Errorf("Online() = false; want = true")
	}
	reqs := mock.Requests()
	if len(reqs) != 2 || string(reqs[0].Body) != "1" || string(reqs[1].Body) != "2" {
		t.Errorf("Requests = %v; want = writes of 1 then 2", reqs)
	}
}

func TestPurgeOutstandingWrites(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	client.GoOffline(context.Background())
	ref, _ := client.NewRef("peter")
	errs := make(chan error, 1)
	go func() {
		errs <- ref.Update(context.Background(), variant.StringMap(map[string]variant.Variant{"a": variant.Int64(1)}))
	}()
	waitOutstanding(t, client, 1)

	client.PurgeOutstandingWrites()
	if err := <-errs; CodeOf(err) != ErrorWriteCanceled {
		t.Errorf("Update() = %v; want = write canceled", err)
	}

	client.GoOnline(context.Background())
	if n := mock.Count(); n != 0 {
		t.Errorf("Requests = %d; want = 0", n)
	}
}

func TestGetOffline(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Resp: "cached"}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("peter")
	if _, err := ref.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	client.GoOffline(context.Background())

	if _, err := ref.Get(context.Background()); CodeOf(err) != ErrorDisconnected {
		t.Errorf("Get() = %v; want = disconnected", err)
	}

	client.SetPersistenceEnabled(true)
	snap, err := ref.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !variant.Equal(snap.Value(), variant.String("cached")) {
		t.Errorf("Get() = %v; want = %q", snap.Value(), "cached")
	}
	if n := mock.Count(); n != 1 {
		t.Errorf("Requests = %d; want = 1", n)
	}
}

func TestOnDisconnect(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	status, _ := client.NewRef("users/peter/status")
	presence, _ := client.NewRef("users/peter/presence")
	if err := status.OnDisconnect().Set(variant.String("offline")); err != nil {
		t.Fatal(err)
	}
	if err := presence.OnDisconnect().SetWithPriority(variant.Bool(false), variant.Int64(1)); err != nil {
		t.Fatal(err)
	}
	if err := presence.OnDisconnect().Cancel(); err != nil {
		t.Fatal(err)
	}
	peter, _ := client.NewRef("users/peter")
	update := variant.StringMap(map[string]variant.Variant{"lastSeen": variant.Int64(100)})
	if err := peter.OnDisconnect().Update(update); err != nil {
		t.Fatal(err)
	}

	if n := mock.Count(); n != 0 {
		t.Fatalf("Requests before disconnect = %d; want = 0", n)
	}
	client.GoOffline(context.Background())

	reqs := mock.Requests()
	if len(reqs) != 2 {
		t.Fatalf("Requests = %d; want = 2", len(reqs))
	}
	checkRequest(t, reqs[0], &testReq{
		Method: "PUT",
		Path:   "/users/peter/status.json",
		Query:  map[string]string{"print": "silent"},
		Body:   `"offline"`,
	})
	checkRequest(t, reqs[1], &testReq{
		Method: "PATCH",
		Path:   "/users/peter.json",
		Query:  map[string]string{"print": "silent"},
		Body:   `{"lastSeen":100}`,
	})

	client.GoOnline(context.Background())
	client.GoOffline(context.Background())
	if n := mock.Count(); n != 2 {
		t.Errorf("Requests after second disconnect = %d; want = 2", n)
	}
}

func TestClose(t *testing.T) {
	client := newTestClient(t)
	mock := &mockServer{Status: http.StatusNoContent}
	srv := mock.Start(client)
	defer srv.Close()

	ref, _ := client.NewRef("status")
	if err := ref.OnDisconnect().Set(variant.String("gone")); err != nil {
		t.Fatal(err)
	}
	client.Close(context.Background())
	if n := mock.Count(); n != 1 {
		t.Errorf("Requests = %d; want = 1", n)
	}
	if err := ref.Set(context.Background(), variant.Int64(1)); CodeOf(err) != ErrorDisconnected {
		t.Errorf("Set() after Close() = %v; want = disconnected", err)
	}
}

func TestLogLevel(t *testing.T) {
	client := newTestClient(t)
	if client.level.Level().String() != "error" {
		t.Errorf("level = %v; want = error", client.level.Level())
	}
	client.SetLogLevel(-1)
	if client.level.Level().String() != "debug" {
		t.Errorf("level = %v; want = debug", client.level.Level())
	}
}

func waitOutstanding(t *testing.T, c *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.outstanding)
		c.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("outstanding writes did not reach %d", n)
}

type testReq struct {
	Method string
	Path   string
	Query  map[string]string
	Body   string
	Header http.Header
}

func checkOnlyRequest(t *testing.T, got []*testReq, want *testReq) {
	t.Helper()
	if len(got) != 1 {
		t.Fatalf("Request Count = %d; want = 1", len(got))
	}
	checkRequest(t, got[0], want)
}

func checkRequest(t *testing.T, got, want *testReq) {
	t.Helper()
	if got.Method != want.Method {
		t.Errorf("Method = %q; want = %q", got.Method, want.Method)
	}
	if got.Path != want.Path {
		t.Errorf("Path = %q; want = %q", got.Path, want.Path)
	}
	wantQuery := want.Query
	if wantQuery == nil {
		wantQuery = map[string]string{}
	}
	if diff := cmp.Diff(wantQuery, got.Query); diff != "" {
		t.Errorf("Query mismatch (-want +got):\n%s", diff)
	}
	if want.Body != "" && got.Body != want.Body {
		t.Errorf("Body = %s; want = %s", got.Body, want.Body)
	}
	if h := got.Header.Get("Authorization"); h != "Bearer mock-token" && h != "Bearer owner" {
		t.Errorf("Authorization = %q; want = %q", h, "Bearer mock-token")
	}
}

// mockServer records every request and replies with a fixed JSON payload, unless Handler is set.
type mockServer struct {
	Resp    interface{}
	RawResp string
	Status  int
	Header  map[string]string
	Handler func(w http.ResponseWriter, r *http.Request, body []byte)
	Reqs    []*testReq

	mu  sync.Mutex
	srv *httptest.Server
}

func (s *mockServer) Start(c *Client) *httptest.Server {
	if s.srv != nil {
		return s.srv
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		s.record(r, b)
		if s.Handler != nil {
			s.Handler(w, r, b)
			return
		}
		for k, v := range s.Header {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		status := s.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if s.RawResp != "" {
			w.Write([]byte(s.RawResp))
		} else if status != http.StatusNoContent {
			resp, _ := json.Marshal(s.Resp)
			w.Write(resp)
		}
	})
	s.srv = httptest.NewServer(handler)
	c.url = s.srv.URL
	return s.srv
}

func (s *mockServer) record(r *http.Request, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := make(map[string]string)
	for k, v := range r.URL.Query() {
		q[k] = v[0]
	}
	s.Reqs = append(s.Reqs, &testReq{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  q,
		Body:   string(body),
		Header: r.Header,
	})
}

func (s *mockServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Reqs)
}

func (s *mockServer) Requests() []*testReq {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*testReq(nil), s.Reqs...)
}
