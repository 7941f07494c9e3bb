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

// Package plugins hosts the Firebase channel plugins on a single messenger.
package plugins

import (
	"context"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/config"
	"github.com/firebase/firebase-bridge-go/plugins/cloudfunctions"
	"github.com/firebase/firebase-bridge-go/plugins/firebasecore"
	"github.com/firebase/firebase-bridge-go/plugins/firebasedatabase"
	"github.com/firebase/firebase-bridge-go/plugins/firebasestorage"
	"go.uber.org/zap"
)

// Host owns the app registry, the completion router and one instance of every plugin.
type Host struct {
	Apps      *firebase.Apps
	Router    *channel.Router
	Core      *firebasecore.Plugin
	Functions *cloudfunctions.Plugin
	Database  *firebasedatabase.Plugin
	Storage   *firebasestorage.Plugin

	log *zap.Logger
}

// NewHost creates the plugins for the apps in apps. They share one router.
func NewHost(apps *firebase.Apps, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := channel.NewRouter(logger)
	return &Host{
		Apps:      apps,
		Router:    router,
		Core:      firebasecore.New(apps, router, logger),
		Functions: cloudfunctions.New(apps, router, logger),
		Database:  firebasedatabase.New(apps, router, logger),
		Storage:   firebasestorage.New(apps, router, logger),
		log:       logger,
	}
}

// ApplyTraces enables debug tracing on the channels selected by traces. It must be called
// before Register.
func (h *Host) ApplyTraces(traces func(channel string) bool) {
	h.Core.Dispatcher().SetTrace(traces(config.TraceCore))
	h.Functions.Dispatcher().SetTrace(traces(config.TraceFunctions))
	h.Database.Dispatcher().SetTrace(traces(config.TraceDatabase))
	h.Database.SetStreamTrace(traces(config.TraceListen) || traces(config.TraceStream))
	h.Storage.Dispatcher().SetTrace(traces(config.TraceStorage))
	h.Storage.SetEventTrace(traces(config.TraceStorage))
}

// Register installs every plugin on m.
func (h *Host) Register(m channel.Messenger) {
	h.Core.Register(m)
	h.Functions.Register(m)
	h.Database.Register(m)
	h.Storage.Register(m)
	h.log.Debug("registered plugins",
		zap.Strings("channels", []string{
			firebasecore.ChannelName,
			cloudfunctions.ChannelName,
			firebasedatabase.ChannelName,
			firebasestorage.ChannelName,
		}))
}

// Close stops the plugins and deletes every app.
func (h *Host) Close(ctx context.Context) {
	h.Storage.Close()
	h.Database.Close()
	h.Functions.Close()
	h.Core.Close()
	for _, app := range h.Apps.All() {
		h.Apps.Delete(ctx, app.Name())
	}
	if n := h.Router.Drain(); n > 0 {
		h.log.Debug("released deferred work", zap.Int("count", n))
	}
}
