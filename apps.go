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

package firebase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrAppNotFound is returned, wrapped, by Apps.Get when no App is registered under a name.
var ErrAppNotFound = errors.New("app not found")

// Apps is a registry of initialized Apps keyed by name. The zero value is not usable; create
// registries with NewApps. Each plugin host owns exactly one registry.
type Apps struct {
	mu   sync.Mutex
	apps map[string]*App
	opts []option.ClientOption
	log  *zap.Logger
}

// NewApps creates an empty registry. The client options are applied to every App it
// initializes.
func NewApps(logger *zap.Logger, opts ...option.ClientOption) *Apps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Apps{
		apps: make(map[string]*App),
		opts: opts,
		log:  logger,
	}
}

// Initialize creates and registers an App. When an App by the same name already exists, it is
// returned unchanged along with created set to false.
func (r *Apps) Initialize(ctx context.Context, name string, options *Options) (app *App, created bool, err error) {
	if name == "" {
		name = DefaultAppName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.apps[name]; ok {
		return existing, false, nil
	}
	app, err = NewApp(ctx, name, options, r.log, r.opts...)
	if err != nil {
		return nil, false, err
	}
	r.apps[name] = app
	r.log.Debug("initialized app", zap.String("name", name))
	return app, true, nil
}

// Add registers an App created elsewhere. It fails when the name is already taken.
func (r *Apps) Add(app *App) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.apps[app.Name()]; exists {
		if app.Name() == DefaultAppName {
			return errors.New("the default Firebase app already exists")
		}
		return fmt.Errorf("Firebase app named %q already exists", app.Name())
	}
	r.apps[app.Name()] = app
	return nil
}

// Default returns the default App.
func (r *Apps) Default() (*App, error) {
	return r.Get(DefaultAppName)
}

// Get returns the App identified by name. An empty name selects the default App. The returned
// error wraps ErrAppNotFound when no such App is registered.
func (r *Apps) Get(name string) (*App, error) {
	if name == "" {
		name = DefaultAppName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if app, ok := r.apps[name]; ok {
		return app, nil
	}
	if name == DefaultAppName {
		return nil, fmt.Errorf("the default Firebase app does not exist: %w", ErrAppNotFound)
	}
	return nil, fmt.Errorf("Firebase app named %q does not exist: %w", name, ErrAppNotFound)
}

// All returns every registered App ordered by name.
func (r *Apps) All() []*App {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*App, 0, len(r.apps))
	for _, a := range r.apps {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].name < all[j].name })
	return all
}

// Delete removes the App from the registry and terminates it. Deleting an unknown name is a
// no-op and returns false.
func (r *Apps) Delete(ctx context.Context, name string) bool {
	if name == "" {
		name = DefaultAppName
	}
	r.mu.Lock()
	app, ok := r.apps[name]
	delete(r.apps, name)
	r.mu.Unlock()
	if !ok {
		return false
	}
	app.Delete(ctx)
	r.log.Debug("deleted app", zap.String("name", name))
	return true
}
