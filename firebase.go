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

// Package firebase is the entry point to the Firebase bridge. It provides functionality for
// initializing App instances, which serve as the central entities that provide access to the
// Database, Storage and Functions services exposed over method channels.
package firebase

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/firebase/firebase-bridge-go/db"
	"github.com/firebase/firebase-bridge-go/functions"
	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/transport"
)

var firebaseScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/devstorage.full_control",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Version of the Firebase bridge.
const Version = "1.0.0"

// DefaultAppName is the name of the App initialized without an explicit name.
const DefaultAppName = "[DEFAULT]"

// Options represents the configuration used to initialize an App. The JSON names match the
// keys of FIREBASE_CONFIG and of the options map sent over the core channel.
type Options struct {
	APIKey            string `json:"apiKey,omitempty"`
	AppID             string `json:"appId,omitempty"`
	MessagingSenderID string `json:"messagingSenderId,omitempty"`
	ProjectID         string `json:"projectId,omitempty"`
	DatabaseURL       string `json:"databaseURL,omitempty"`
	StorageBucket     string `json:"storageBucket,omitempty"`
	TrackingID        string `json:"trackingId,omitempty"`
	AuthDomain        string `json:"authDomain,omitempty"`
	MeasurementID     string `json:"measurementId,omitempty"`

	AuthOverride *map[string]interface{} `json:"databaseAuthVariableOverride,omitempty"`
}

// An App holds configuration and state common to all Firebase services that are exposed from
// the bridge.
type App struct {
	name    string
	options Options
	opts    []option.ClientOption
	log     *zap.Logger

	mu                 sync.Mutex
	dataCollection     bool
	resourceManagement bool
	deleted            bool
	databases          map[string]*db.Client
	storages           map[string]*storage.Client
	functions          map[string]*functions.Client
}

// NewApp creates a new App from the provided options and client options.
//
// When options is nil, they are loaded from the FIREBASE_CONFIG environment variable. If the
// client options contain a valid credential (a service account file, a refresh token file or an
// oauth2.TokenSource) the App will be authenticated using that credential. Otherwise, NewApp
// attempts to authenticate the App with Google application default credentials. The project ID
// falls back to the credential's project and then to GOOGLE_CLOUD_PROJECT.
func NewApp(ctx context.Context, name string, options *Options, logger *zap.Logger, opts ...option.ClientOption) (*App, error) {
	if name == "" {
		name = DefaultAppName
	}
	if options == nil {
		env, err := OptionsFromEnv()
		if err != nil && err != ErrNoConfig {
			return nil, err
		}
		if env == nil {
			env = &Options{}
		}
		options = env
	}

	o := []option.ClientOption{option.WithScopes(firebaseScopes...)}
	o = append(o, opts...)

	resolved := *options
	if resolved.ProjectID == "" {
		creds, err := transport.Creds(ctx, o...)
		if err != nil {
			return nil, err
		}
		if creds.ProjectID != "" {
			resolved.ProjectID = creds.ProjectID
		} else {
			resolved.ProjectID = projectIDFromEnv()
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		name:               name,
		options:            resolved,
		opts:               o,
		log:                logger.With(zap.String("app", name)),
		dataCollection:     true,
		resourceManagement: true,
		databases:          make(map[string]*db.Client),
		storages:           make(map[string]*storage.Client),
		functions:          make(map[string]*functions.Client),
	}, nil
}

func projectIDFromEnv() string {
	for _, v := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT"} {
		if pid := os.Getenv(v); pid != "" {
			return pid
		}
	}
	return ""
}

// Name returns the name of this App.
func (a *App) Name() string {
	return a.name
}

// Options returns a copy of the options the App was initialized with.
func (a *App) Options() Options {
	return a.options
}

// IsAutomaticDataCollectionEnabled reports whether the App may collect usage data. Defaults to
// true.
func (a *App) IsAutomaticDataCollectionEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dataCollection
}

// SetAutomaticDataCollectionEnabled toggles automatic usage data collection.
func (a *App) SetAutomaticDataCollectionEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dataCollection = enabled
}

// IsAutomaticResourceManagementEnabled reports whether service clients are released
// automatically when the App is deleted. Defaults to true.
func (a *App) IsAutomaticResourceManagementEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resourceManagement
}

// SetAutomaticResourceManagementEnabled toggles automatic release of service clients.
func (a *App) SetAutomaticResourceManagementEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resourceManagement = enabled
}

// Database returns the db.Client for the given database URL, creating it on first use. An empty
// URL selects the DatabaseURL of the App options.
func (a *App) Database(ctx context.Context, url string) (*db.Client, error) {
	if url == "" {
		url = a.options.DatabaseURL
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkDeleted(); err != nil {
		return nil, err
	}
	if c, ok := a.databases[url]; ok {
		return c, nil
	}

	var ao map[string]interface{}
	if a.options.AuthOverride != nil {
		ao = *a.options.AuthOverride
	}
	c, err := db.NewClient(ctx, &internal.DatabaseConfig{
		Opts:         a.opts,
		URL:          url,
		Version:      Version,
		AuthOverride: ao,
		Logger:       a.log,
	})
	if err != nil {
		return nil, err
	}
	a.databases[url] = c
	return c, nil
}

// Storage returns the storage.Client for the given bucket, creating it on first use. An empty
// bucket selects the StorageBucket of the App options.
func (a *App) Storage(ctx context.Context, bucket string) (*storage.Client, error) {
	if bucket == "" {
		bucket = a.options.StorageBucket
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkDeleted(); err != nil {
		return nil, err
	}
	if c, ok := a.storages[bucket]; ok {
		return c, nil
	}
	c, err := storage.NewClient(ctx, &internal.StorageConfig{
		Opts:   a.opts,
		Bucket: bucket,
		Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	a.storages[bucket] = c
	return c, nil
}

// Functions returns the functions.Client for the given region, creating it on first use. An
// empty region selects functions.DefaultRegion.
func (a *App) Functions(ctx context.Context, region string) (*functions.Client, error) {
	if region == "" {
		region = functions.DefaultRegion
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkDeleted(); err != nil {
		return nil, err
	}
	if c, ok := a.functions[region]; ok {
		return c, nil
	}
	c, err := functions.NewClient(ctx, &internal.FunctionsConfig{
		Opts:      a.opts,
		ProjectID: a.options.ProjectID,
		Region:    region,
		Version:   Version,
		Logger:    a.log,
	})
	if err != nil {
		return nil, err
	}
	a.functions[region] = c
	return c, nil
}

// Delete gracefully terminates the App. Service clients are closed when automatic resource
// management is enabled. Obtaining a service from a deleted App returns an error; calling
// Delete more than once has no effect.
func (a *App) Delete(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleted {
		return
	}
	a.deleted = true
	if a.resourceManagement {
		for _, c := range a.databases {
			c.Close(ctx)
		}
		for _, c := range a.storages {
			if err := c.Close(); err != nil {
				a.log.Warn("failed to close storage client", zap.Error(err))
			}
		}
	}
	a.databases = nil
	a.storages = nil
	a.functions = nil
}

func (a *App) checkDeleted() error {
	if !a.deleted {
		return nil
	}
	if a.name == DefaultAppName {
		return fmt.Errorf("default app is deleted")
	}
	return fmt.Errorf("app %q is deleted", a.name)
}
