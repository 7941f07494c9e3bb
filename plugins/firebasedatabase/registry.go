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
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DatabaseRegistry caches database clients by app name and database URL. Settings carried by
// the call that first resolves a client are applied to it once.
type DatabaseRegistry struct {
	apps *firebase.Apps
	log  *zap.Logger

	mu      sync.Mutex
	clients map[string]*db.Client
}

// NewDatabaseRegistry creates an empty registry resolving apps from apps.
func NewDatabaseRegistry(apps *firebase.Apps, logger *zap.Logger) *DatabaseRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatabaseRegistry{
		apps:    apps,
		log:     logger,
		clients: make(map[string]*db.Client),
	}
}

// Len returns the number of cached clients.
func (r *DatabaseRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Get returns the client identified by req, creating and configuring it on first use.
func (r *DatabaseRegistry) Get(ctx context.Context, req *databaseRequest) (*db.Client, error) {
	key := req.AppName + req.DatabaseURL
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	app, err := r.apps.Get(req.AppName)
	if err != nil {
		return nil, err
	}
	dbURL := req.DatabaseURL
	if dbURL == "" {
		dbURL = app.Options().DatabaseURL
	}
	if req.EmulatorHost != "" && req.EmulatorPort > 0 {
		dbURL = emulatorURL(req.EmulatorHost, req.EmulatorPort, dbURL, app.Options().ProjectID)
		r.log.Info("using database emulator", zap.String("url", dbURL))
	}

	c, err := app.Database(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	c.SetPersistenceEnabled(req.PersistenceEnabled)
	if req.LoggingEnabled {
		c.SetLogLevel(zapcore.WarnLevel)
	} else {
		c.SetLogLevel(zapcore.ErrorLevel)
	}
	if req.CacheSizeBytes > 0 {
		r.log.Warn("cacheSizeBytes is not supported", zap.Int64("cacheSizeBytes", req.CacheSizeBytes))
	}
	r.clients[key] = c
	return c, nil
}

// emulatorURL names the emulator namespace after the database of dbURL, falling back to the
// default database of the project.
func emulatorURL(host string, port int64, dbURL, projectID string) string {
	ns := projectID + "-default-rtdb"
	if u, err := url.Parse(dbURL); err == nil && u.Host != "" {
		if q := u.Query().Get("ns"); q != "" {
			ns = q
		} else {
			ns = strings.Split(u.Hostname(), ".")[0]
		}
	}
	return fmt.Sprintf("http://%s:%d?ns=%s", host, port, url.QueryEscape(ns))
}
