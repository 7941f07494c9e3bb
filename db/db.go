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

// Package db contains functions for accessing the Firebase Realtime Database.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"
)

const (
	invalidChars    = "[].#$"
	authVarOverride = "auth_variable_override"

	emulatorDatabaseEnvVar = "FIREBASE_DATABASE_EMULATOR_HOST"
	emulatorNamespaceParam = "ns"
)

// Client is the interface for the Firebase Realtime Database service.
//
// A Client starts online. Writes issued while offline are queued as outstanding writes and sent
// in order when the client goes back online.
type Client struct {
	hc           *internal.HTTPClient
	url          string
	namespace    string
	authOverride string
	log          *zap.Logger
	level        zap.AtomicLevel

	mu          sync.Mutex
	online      bool
	flushing    bool
	closed      bool
	onlineCh    chan struct{}
	offlineCh   chan struct{}
	outstanding []*pendingWrite
	disconnect  []*disconnectOp
	persistence bool
	cache       map[string]variant.Variant
	synced      map[string]*Listener
}

type dbURLConfig struct {
	BaseURL   string
	Namespace string
	Emulator  bool
}

// NewClient creates a new instance of the Firebase Database Client.
//
// This function can only be invoked from within the bridge module. Applications should obtain
// database clients through the App type.
func NewClient(ctx context.Context, c *internal.DatabaseConfig) (*Client, error) {
	p, err := parseURLConfig(c.URL)
	if err != nil {
		return nil, err
	}

	var ao []byte
	if len(c.AuthOverride) > 0 {
		ao, err = json.Marshal(c.AuthOverride)
		if err != nil {
			return nil, err
		}
	}

	opts := append([]option.ClientOption{}, c.Opts...)
	if p.Emulator {
		ts, err := internal.EmulatorTokenSource(p.Namespace, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	ua := fmt.Sprintf("Firebase/HTTP/%s/%s/BridgeGo", c.Version, runtime.Version())
	opts = append(opts, option.WithUserAgent(ua))
	hc, _, err := internal.NewHTTPClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = handleRTDBError

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	level := zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	onlineCh := make(chan struct{})
	close(onlineCh)
	return &Client{
		hc:           hc,
		url:          p.BaseURL,
		namespace:    p.Namespace,
		authOverride: string(ao),
		log:          logger.WithOptions(zap.IncreaseLevel(level)).Named("database"),
		level:        level,
		online:       true,
		onlineCh:     onlineCh,
		offlineCh:    make(chan struct{}),
		cache:        make(map[string]variant.Variant),
		synced:       make(map[string]*Listener),
	}, nil
}

// parseURLConfig accepts production URLs on https and emulator URLs on http that name their
// namespace with the ns query parameter. When the emulator environment variable is set, the
// database name of a production URL is used as the emulator namespace.
func parseURLConfig(dbURL string) (*dbURLConfig, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database url not specified")
	}
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %q: %v", dbURL, err)
	}

	if parsed.Scheme == "http" {
		ns := parsed.Query().Get(emulatorNamespaceParam)
		if ns == "" {
			return nil, fmt.Errorf("invalid database url: %q; emulator urls must specify the %s query parameter",
				dbURL, emulatorNamespaceParam)
		}
		return &dbURLConfig{
			BaseURL:   fmt.Sprintf("http://%s", parsed.Host),
			Namespace: ns,
			Emulator:  true,
		}, nil
	}

	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid database url (incorrect scheme): %q", dbURL)
	}
	if !strings.HasSuffix(parsed.Host, ".firebaseio.com") && !strings.HasSuffix(parsed.Host, ".firebasedatabase.app") {
		return nil, fmt.Errorf("invalid database url (incorrect host): %q", dbURL)
	}
	if host := os.Getenv(emulatorDatabaseEnvVar); host != "" {
		if strings.Contains(host, "//") {
			return nil, fmt.Errorf("invalid %s: %q; it must follow format \"host:port\"", emulatorDatabaseEnvVar, host)
		}
		return &dbURLConfig{
			BaseURL:   fmt.Sprintf("http://%s", host),
			Namespace: strings.Split(parsed.Host, ".")[0],
			Emulator:  true,
		}, nil
	}
	return &dbURLConfig{BaseURL: fmt.Sprintf("https://%s", parsed.Host)}, nil
}

// NewRef returns a new database reference representing the node at the specified path.
func (c *Client) NewRef(path string) (*Ref, error) {
	if strings.ContainsAny(path, invalidChars) {
		return nil, newError(ErrorOperationFailed, "path %q contains one or more invalid characters", path)
	}
	segs := parsePath(path)
	key := ""
	if len(segs) > 0 {
		key = segs[len(segs)-1]
	}

	return &Ref{
		Key:    key,
		Path:   "/" + strings.Join(segs, "/"),
		segs:   segs,
		client: c,
	}, nil
}

// SetLogLevel lowers or raises the minimum level of the messages logged by this client. The level
// can never drop below the level of the logger the client was created with.
func (c *Client) SetLogLevel(l zapcore.Level) {
	c.level.SetLevel(l)
}

// SetPersistenceEnabled controls whether reads issued while offline are answered from the data
// last received for the same query.
func (c *Client) SetPersistenceEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistence = enabled
}

// Online reports whether the client is currently online.
func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// GoOffline disconnects the client from the server.
//
// Registered OnDisconnect operations are executed before the connection is dropped. Open
// listeners are closed and re-established by GoOnline.
func (c *Client) GoOffline(ctx context.Context) {
	c.mu.Lock()
	if !c.online {
		c.mu.Unlock()
		return
	}
	ops := c.disconnect
	c.disconnect = nil
	c.mu.Unlock()

	c.runDisconnectOps(ctx, ops)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.online {
		return
	}
	c.online = false
	c.onlineCh = make(chan struct{})
	close(c.offlineCh)
	c.log.Debug("client went offline", zap.Int("outstandingWrites", len(c.outstanding)))
}

// GoOnline reconnects the client to the server. Outstanding writes are sent in the order they
// were issued, after which the client is marked online.
func (c *Client) GoOnline(ctx context.Context) {
	c.mu.Lock()
	if c.online || c.flushing || c.closed {
		c.mu.Unlock()
		return
	}
	c.flushing = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if len(c.outstanding) == 0 {
			c.flushing = false
			c.online = true
			c.offlineCh = make(chan struct{})
			close(c.onlineCh)
			c.mu.Unlock()
			c.log.Debug("client went online")
			return
		}
		w := c.outstanding[0]
		c.outstanding = c.outstanding[1:]
		c.mu.Unlock()

		_, err := c.send(ctx, w.req)
		w.complete(err)
	}
}

// PurgeOutstandingWrites cancels all writes that have not been sent to the server yet. Each of
// them fails with ErrorWriteCanceled.
func (c *Client) PurgeOutstandingWrites() {
	c.mu.Lock()
	writes := c.outstanding
	c.outstanding = nil
	c.mu.Unlock()

	for _, w := range writes {
		w.complete(newError(ErrorWriteCanceled, "write canceled"))
	}
	if len(writes) > 0 {
		c.log.Debug("purged outstanding writes", zap.Int("count", len(writes)))
	}
}

// Close executes the registered OnDisconnect operations, cancels outstanding writes and stops
// all listeners kept alive by KeepSynced.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	online := c.online
	ops := c.disconnect
	c.disconnect = nil
	synced := c.synced
	c.synced = make(map[string]*Listener)
	c.closed = true
	c.mu.Unlock()

	if online {
		c.runDisconnectOps(ctx, ops)
	}
	for _, l := range synced {
		l.Remove()
	}
	c.PurgeOutstandingWrites()
}

// connectivity returns a channel closed while the client is online, and a channel closed when
// the client next goes offline.
func (c *Client) connectivity() (<-chan struct{}, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onlineCh, c.offlineCh
}

type pendingWrite struct {
	req  *internal.Request
	done chan error
}

func (w *pendingWrite) complete(err error) {
	w.done <- err
}

// write sends a mutation, or queues it when the client is offline.
func (c *Client) write(ctx context.Context, req *internal.Request) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return newError(ErrorDisconnected, "database client is closed")
	}
	if c.online {
		c.mu.Unlock()
		_, err := c.send(ctx, req)
		return err
	}
	w := &pendingWrite{req: req, done: make(chan error, 1)}
	c.outstanding = append(c.outstanding, w)
	c.mu.Unlock()
	c.log.Debug("queued outstanding write", zap.String("method", req.Method), zap.String("url", req.URL))

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		c.dropWrite(w)
		return wrapError(ctx.Err())
	}
}

func (c *Client) dropWrite(w *pendingWrite) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, o := range c.outstanding {
		if o == w {
			c.outstanding = append(c.outstanding[:i], c.outstanding[i+1:]...)
			return
		}
	}
}

// awaitOnline blocks until the client is online.
func (c *Client) awaitOnline(ctx context.Context) error {
	online, _ := c.connectivity()
	select {
	case <-online:
		return nil
	case <-ctx.Done():
		return wrapError(ctx.Err())
	}
}

func (c *Client) newRequest(method, path string, body interface{}, opts ...internal.HTTPOption) *internal.Request {
	if c.authOverride != "" {
		opts = append(opts, internal.WithQueryParam(authVarOverride, c.authOverride))
	}
	if c.namespace != "" {
		opts = append(opts, internal.WithQueryParam(emulatorNamespaceParam, c.namespace))
	}
	req := &internal.Request{
		Method: method,
		URL:    fmt.Sprintf("%s%s.json", c.url, path),
		Opts:   opts,
	}
	if body != nil {
		req.Body = internal.NewJSONEntity(body)
	}
	return req
}

func (c *Client) send(ctx context.Context, req *internal.Request) (*internal.Response, error) {
	resp, err := c.hc.Do(ctx, req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", req.Method), zap.String("url", req.URL), zap.Error(err))
		return nil, wrapError(err)
	}
	return resp, nil
}

// remember records the latest data seen for a query.
func (c *Client) remember(key string, node variant.Variant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = node
}

// recall returns the data last seen for a query, if persistence is enabled.
func (c *Client) recall(key string) (variant.Variant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.persistence {
		return variant.Null(), false
	}
	node, ok := c.cache[key]
	return node, ok
}

func parsePath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
