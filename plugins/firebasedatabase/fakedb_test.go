// Copyright 2022 Google Inc. All Rights Reserved.
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

package firebasedatabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeDB is an in-memory Realtime Database REST endpoint. It ignores query parameters, so
// queries are evaluated by the client. Listeners receive the full location after every write.
type fakeDB struct {
	mu       sync.Mutex
	root     interface{}
	version  int
	requests int
	fail     int
	changed  chan struct{}
	srv      *httptest.Server
}

func newFakeDB(t *testing.T) *fakeDB {
	f := &fakeDB{changed: make(chan struct{})}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		f.srv.CloseClientConnections()
		f.srv.Close()
	})
	return f
}

func (f *fakeDB) host() (string, int64) {
	addr := strings.TrimPrefix(f.srv.URL, "http://")
	i := strings.LastIndex(addr, ":")
	port, _ := strconv.ParseInt(addr[i+1:], 10, 64)
	return addr[:i], port
}

func (f *fakeDB) failWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = status
}

func (f *fakeDB) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// seed replaces the value at path without notifying listeners.
func (f *fakeDB) seed(path, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.root = setAt(f.root, segments(path), decodeJSON([]byte(data)))
}

func (f *fakeDB) get(path string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return getAt(f.root, segments(path))
}

func (f *fakeDB) serve(w http.ResponseWriter, r *http.Request) {
	segs := segments(strings.TrimSuffix(r.URL.Path, ".json"))
	if r.Header.Get("Accept") == "text/event-stream" {
		f.stream(w, r, segs)
		return
	}
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests++
	if f.fail != 0 {
		status := f.fail
		f.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(`{"error": "Permission denied"}`))
		return
	}
	etag := strconv.Itoa(f.version)
	switch r.Method {
	case http.MethodGet:
		b, _ := json.Marshal(getAt(f.root, segs))
		f.mu.Unlock()
		w.Header().Set("ETag", etag)
		w.Write(b)
	case http.MethodPut, http.MethodPatch:
		if m := r.Header.Get("If-Match"); m != "" && m != etag {
			b, _ := json.Marshal(getAt(f.root, segs))
			f.mu.Unlock()
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusPreconditionFailed)
			w.Write(b)
			return
		}
		v := decodeJSON(body)
		if r.Method == http.MethodPut {
			f.root = setAt(f.root, segs, v)
		} else if m, ok := v.(map[string]interface{}); ok {
			for k, child := range m {
				f.root = setAt(f.root, append(append([]string{}, segs...), segments(k)...), child)
			}
		}
		f.version++
		close(f.changed)
		f.changed = make(chan struct{})
		f.mu.Unlock()
		w.Header().Set("ETag", strconv.Itoa(f.version))
		w.Write(body)
	default:
		f.mu.Unlock()
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeDB) stream(w http.ResponseWriter, r *http.Request, segs []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	for {
		f.mu.Lock()
		b, _ := json.Marshal(getAt(f.root, segs))
		changed := f.changed
		f.mu.Unlock()

		fmt.Fprintf(w, "event: put\ndata: {\"path\":\"/\",\"data\":%s}\n\n", b)
		flusher.Flush()
		select {
		case <-changed:
		case <-r.Context().Done():
			return
		}
	}
}

func segments(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func decodeJSON(b []byte) interface{} {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var v interface{}
	if err := d.Decode(&v); err != nil {
		return nil
	}
	return v
}

func getAt(node interface{}, segs []string) interface{} {
	for _, s := range segs {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

func setAt(node interface{}, segs []string, v interface{}) interface{} {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		m = make(map[string]interface{})
	}
	child := setAt(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
