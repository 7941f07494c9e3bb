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

// Package functions contains functions for invoking Firebase callable Cloud Functions.
package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultRegion is the region used when none is specified.
const DefaultRegion = "us-central1"

const productionHostFormat = "https://%s-%s.cloudfunctions.net/%s"

// Client is the interface for invoking callable functions of a Firebase project in one region.
type Client struct {
	hc        *internal.HTTPClient
	projectID string
	region    string
	log       *zap.Logger

	mu     sync.RWMutex
	origin string
}

// NewClient creates a new instance of the Firebase Functions Client.
//
// This function can only be invoked from within the SDK. Client applications should access the
// Functions service through firebase.App.
func NewClient(ctx context.Context, conf *internal.FunctionsConfig) (*Client, error) {
	if conf.ProjectID == "" {
		return nil, fmt.Errorf("project id is required to access callable functions")
	}
	region := conf.Region
	if region == "" {
		region = DefaultRegion
	}

	ua := fmt.Sprintf("Firebase/HTTP/%s/%s/BridgeGo", conf.Version, runtime.Version())
	opts := append([]option.ClientOption{}, conf.Opts...)
	opts = append(opts, option.WithUserAgent(ua))
	hc, _, err := internal.NewHTTPClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	// Callable invocations are not idempotent.
	hc.RetryConfig = nil
	hc.CreateErrFn = handleCallableError

	logger := conf.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		hc:        hc,
		projectID: conf.ProjectID,
		region:    region,
		log:       logger.Named("functions"),
	}, nil
}

// Region returns the region the client invokes functions in.
func (c *Client) Region() string {
	return c.region
}

// UseFunctionsEmulator routes subsequent calls to the emulator listening at origin, such as
// "http://localhost:5001". An empty origin restores production routing.
func (c *Client) UseFunctionsEmulator(origin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = strings.TrimSuffix(origin, "/")
}

func (c *Client) functionURL(name string) string {
	c.mu.RLock()
	origin := c.origin
	c.mu.RUnlock()
	if origin != "" {
		return fmt.Sprintf("%s/%s/%s/%s", origin, c.projectID, c.region, name)
	}
	return fmt.Sprintf(productionHostFormat, c.region, c.projectID, name)
}

// HTTPSCallable returns a reference to the callable function with the given name.
func (c *Client) HTTPSCallable(name string) *HTTPSCallableReference {
	return &HTTPSCallableReference{client: c, name: name}
}

// HTTPSCallableReference is a reference to a single callable function.
type HTTPSCallableReference struct {
	client  *Client
	name    string
	timeout time.Duration
}

// SetTimeout bounds every subsequent call made through the reference. A zero duration removes
// the bound.
func (r *HTTPSCallableReference) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Name returns the function name.
func (r *HTTPSCallableReference) Name() string {
	return r.name
}

// URL returns the endpoint the reference currently resolves to.
func (r *HTTPSCallableReference) URL() string {
	return r.client.functionURL(r.name)
}

// Call invokes the function with data and returns its result.
//
// Errors are always of type *Error. Server-side failures carry the code and details sent by the
// function; transport failures map to ErrorUnavailable, and an expired timeout or context to
// ErrorDeadlineExceeded.
func (r *HTTPSCallableReference) Call(ctx context.Context, data variant.Variant) (variant.Variant, error) {
	enc, err := encode(data)
	if err != nil {
		return variant.Null(), err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := &internal.Request{
		Method: http.MethodPost,
		URL:    r.URL(),
		Body:   internal.NewJSONEntity(map[string]interface{}{"data": enc}),
	}
	r.client.log.Debug("calling function", zap.String("name", r.name), zap.String("url", req.URL))
	resp, err := r.client.hc.Do(ctx, req)
	if err != nil {
		r.client.log.Warn("function call failed", zap.String("name", r.name), zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return variant.Null(), wrapError(err)
	}
	return parseResult(resp.Body)
}

func parseResult(body []byte) (variant.Variant, error) {
	var p map[string]json.RawMessage
	if err := json.Unmarshal(body, &p); err != nil {
		return variant.Null(), &Error{Code: ErrorInternal, Message: "Response is not valid JSON object.", err: err}
	}
	raw, ok := p["result"]
	if !ok {
		// Older emulators reply with "data".
		raw, ok = p["data"]
	}
	if !ok {
		return variant.Null(), newError(ErrorInternal, "Response is missing data field.")
	}
	v, err := decodeJSON(raw)
	if err != nil {
		return variant.Null(), &Error{Code: ErrorInternal, Message: "Response is not valid JSON object.", err: err}
	}
	return v, nil
}
