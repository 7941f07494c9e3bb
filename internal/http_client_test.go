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

package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"google.golang.org/api/option"
)

var cases = []struct {
	req     *Request
	method  string
	body    string
	headers map[string]string
	query   map[string]string
}{
	{
		req: &Request{
			Method: http.MethodGet,
		},
		method: http.MethodGet,
	},
	{
		req: &Request{
			Method: http.MethodGet,
			Opts: []HTTPOption{
				WithHeader("Test-Header", "value1"),
				WithQueryParam("testParam", "value2"),
			},
		},
		method:  http.MethodGet,
		headers: map[string]string{"Test-Header": "value1"},
		query:   map[string]string{"testParam": "value2"},
	},
	{
		req: &Request{
			Method: http.MethodPost,
			Body:   NewJSONEntity(map[string]string{"foo": "bar"}),
			Opts: []HTTPOption{
				WithHeader("Test-Header", "value1"),
				WithQueryParam("testParam1", "value2"),
				WithQueryParam("testParam2", "value3"),
			},
		},
		method:  http.MethodPost,
		body:    "{\"foo\":\"bar\"}",
		headers: map[string]string{"Test-Header": "value1"},
		query:   map[string]string{"testParam1": "value2", "testParam2": "value3"},
	},
	{
		req: &Request{
			Method: http.MethodPost,
			Body:   NewJSONEntity("body"),
			Opts: []HTTPOption{
				WithHeader("Test-Header", "value1"),
				WithQueryParams(map[string]string{"testParam1": "value2", "testParam2": "value3"}),
			},
		},
		method:  http.MethodPost,
		body:    "\"body\"",
		headers: map[string]string{"Test-Header": "value1"},
		query:   map[string]string{"testParam1": "value2", "testParam2": "value3"},
	},
	{
		req: &Request{
			Method: http.MethodPut,
			Body:   NewJSONEntity(nil),
			Opts: []HTTPOption{
				WithHeader("Test-Header", "value1"),
				WithQueryParams(map[string]string{"testParam1": "value2", "testParam2": "value3"}),
			},
		},
		method:  http.MethodPut,
		body:    "null",
		headers: map[string]string{"Test-Header": "value1"},
		query:   map[string]string{"testParam1": "value2", "testParam2": "value3"},
	},
}

var tokenSourceOpt = option.WithTokenSource(&MockTokenSource{AccessToken: "test"})

func TestHTTPClient(t *testing.T) {
	want := map[string]interface{}{
		"key1": "value1",
		"key2": float64(100),
	}
	b, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	idx := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := cases[idx]
		if r.Method != want.method {
			t.Errorf("[%d] Method = %q; want = %q", idx, r.Method, want.method)
		}
		for k, v := range want.headers {
			h := r.Header.Get(k)
			if h != v {
				t.Errorf("[%d] Header(%q) = %q; want = %q", idx, k, h, v)
			}
		}
		if want.query == nil {
			if r.URL.Query().Encode() != "" {
				t.Errorf("[%d] Query = %v; want = empty", idx, r.URL.Query().Encode())
			}
		}
		for k, v := range want.query {
			q := r.URL.Query().Get(k)
			if q != v {
				t.Errorf("[%d] Query(%q) = %q; want = %q", idx, k, q, v)
			}
		}
		if want.body != "" {
			h := r.Header.Get("Content-Type")
			if h != "application/json" {
				t.Errorf("[%d] Content-Type = %q; want = %q", idx, h, "application/json")
			}
			wb := make([]byte, len(want.body))
			r.Body.Read(wb)
			if string(wb) != want.body {
				t.Errorf("[%d] Body = %q; want = %q", idx, string(wb), want.body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client, _, err := NewHTTPClient(context.Background(), tokenSourceOpt)
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range cases {
		tc.req.URL = server.URL
		resp, err := client.Do(context.Background(), tc.req)
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]interface{}
		if err := json.Unmarshal(resp.Body, &got); err != nil {
			t.Fatal(err)
		}
		if resp.Status != http.StatusOK {
			t.Errorf("[%d] Status = %d; want = %d", idx, resp.Status, http.StatusOK)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("[%d] Body = %v; want = %v", idx, got, want)
		}
		idx++
	}
}

func TestClientOpts(t *testing.T) {
	var header string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Client-Version")
		w.Write([]byte("{}"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := &HTTPClient{
		Client: http.DefaultClient,
		Opts:   []HTTPOption{WithHeader("X-Client-Version", "bridge/1.0")},
	}
	if _, err := client.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL}); err != nil {
		t.Fatal(err)
	}
	if header != "bridge/1.0" {
		t.Errorf("X-Client-Version = %q; want = %q", header, "bridge/1.0")
	}
}

func TestContext(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := &HTTPClient{Client: http.DefaultClient}
	ctx, cancel := context.WithCancel(context.Background())
	resp, err := client.Do(ctx, &Request{Method: http.MethodGet, URL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d; want = %d", resp.Status, http.StatusOK)
	}

	cancel()
	resp, err = client.Do(ctx, &Request{Method: http.MethodGet, URL: server.URL})
	if resp != nil || err == nil {
		t.Errorf("Do() = (%v, %v); want = (nil, error)", resp, err)
	}
}

func TestCustomErrorFunctions(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "conflict"}`))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := &HTTPClient{
		Client: http.DefaultClient,
		CreateErrFn: func(r *Response) error {
			return &FirebaseError{ErrorCode: Aborted, String: "client: " + string(r.Body)}
		},
	}
	_, err := client.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})
	if !HasPlatformErrorCode(err, Aborted) {
		t.Errorf("Do() = %v; want = Aborted", err)
	}

	_, err = client.Do(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    server.URL,
		CreateErrFn: func(r *Response) error {
			return &FirebaseError{ErrorCode: FailedPrecondition, String: "request"}
		},
	})
	if !HasPlatformErrorCode(err, FailedPrecondition) {
		t.Errorf("Do() = %v; want = FailedPrecondition", err)
	}

	resp, err := client.Do(context.Background(), &Request{
		Method:    http.MethodGet,
		URL:       server.URL,
		SuccessFn: func(r *Response) bool { return r.Status == http.StatusConflict },
	})
	if err != nil || resp.Status != http.StatusConflict {
		t.Errorf("Do() = (%v, %v); want = (409, nil)", resp, err)
	}
}

func TestInvalidURL(t *testing.T) {
	client := &HTTPClient{Client: http.DefaultClient}
	resp, err := client.Do(context.Background(), &Request{Method: http.MethodGet, URL: "http://localhost:%0"})
	if resp != nil || err == nil {
		t.Errorf("Do() = (%v, %v); want = (nil, error)", resp, err)
	}
}

func TestRetryOnServerErrors(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("{}"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := &HTTPClient{
		Client: http.DefaultClient,
		RetryConfig: &RetryConfig{
			MaxRetries: 4,
		},
	}
	resp, err := client.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})
	if err != nil || resp.Status != http.StatusOK {
		t.Fatalf("Do() = (%v, %v); want = (200, nil)", resp, err)
	}
	if requests != 3 {
		t.Errorf("requests = %d; want = 3", requests)
	}
}

func TestRetryLimit(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := &HTTPClient{
		Client:      http.DefaultClient,
		RetryConfig: &RetryConfig{MaxRetries: 2},
	}
	_, err := client.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})
	if !HasPlatformErrorCode(err, Internal) {
		t.Errorf("Do() = %v; want = Internal", err)
	}
	if requests != 3 {
		t.Errorf("requests = %d; want = 3", requests)
	}
}

func TestNoRetryOnNotFound(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := WithDefaultRetryConfig(http.DefaultClient)
	_, err := client.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})
	if !HasPlatformErrorCode(err, NotFound) {
		t.Errorf("Do() = %v; want = NotFound", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d; want = 1", requests)
	}
}

func TestRetryDelay(t *testing.T) {
	maxDelay := 10 * time.Second
	rc := &RetryConfig{MaxRetries: 10, ExpBackoffFactor: 0.5, MaxDelay: &maxDelay}
	resp := &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}

	wants := []time.Duration{0, 1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, want := range wants {
		delay, ok := rc.retryDelay(i, resp, nil)
		if !ok || delay != want {
			t.Errorf("retryDelay(%d) = (%v, %v); want = (%v, true)", i, delay, ok, want)
		}
	}

	resp.Header.Set("Retry-After", "60")
	if _, ok := rc.retryDelay(1, resp, nil); ok {
		t.Errorf("retryDelay() with Retry-After beyond MaxDelay = true; want = false")
	}
}

func TestRetryAfterHeader(t *testing.T) {
	now := time.Now()
	clock = &MockClock{Timestamp: now}
	defer func() {
		clock = &SystemClock{}
	}()

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "30")
	if got := parseRetryAfterHeader(resp); got != 30*time.Second {
		t.Errorf("parseRetryAfterHeader(seconds) = %v; want = 30s", got)
	}

	resp.Header.Set("Retry-After", now.Add(time.Minute).UTC().Format(http.TimeFormat))
	got := parseRetryAfterHeader(resp)
	if got < 59*time.Second || got > time.Minute {
		t.Errorf("parseRetryAfterHeader(timestamp) = %v; want ~60s", got)
	}

	resp.Header.Set("Retry-After", "invalid")
	if got := parseRetryAfterHeader(resp); got != 0 {
		t.Errorf("parseRetryAfterHeader(invalid) = %v; want = 0", got)
	}
}

func TestDoStream(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"status": "INVALID_ARGUMENT", "message": "not a stream"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: put\ndata: {\"path\":\"/\",\"data\":1}\n\n"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client := &HTTPClient{Client: http.DefaultClient}
	resp, err := client.DoStream(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    server.URL,
		Opts:   []HTTPOption{WithHeader("Accept", "text/event-stream")},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	if !scanner.Scan() || scanner.Text() != "event: put" {
		t.Errorf("first line = %q; want = %q", scanner.Text(), "event: put")
	}

	_, err = client.DoStream(context.Background(), &Request{Method: http.MethodGet, URL: server.URL})
	if !HasPlatformErrorCode(err, InvalidArgument) || err.Error() != "not a stream" {
		t.Errorf("DoStream() = %v; want = InvalidArgument", err)
	}
}

type faultyTransport struct {
	Err error
}

func (f *faultyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return nil, f.Err
}
