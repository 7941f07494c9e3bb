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

// Package firebasecore serves the firebase_core method channel, which initializes and manages
// Firebase apps.
package firebasecore

import (
	"context"
	"errors"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"go.uber.org/zap"
)

// ChannelName is the name of the method channel served by the plugin.
const ChannelName = "plugins.flutter.io/firebase_core"

// Plugin handles app lifecycle calls against an explicitly owned app registry.
type Plugin struct {
	apps       *firebase.Apps
	log        *zap.Logger
	dispatcher *channel.Dispatcher
}

// New creates the plugin. Apps initialized through the channel are added to apps.
func New(apps *firebase.Apps, router *channel.Router, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Plugin{
		apps:       apps,
		log:        logger.Named("core"),
		dispatcher: channel.NewDispatcher(ChannelName, router, logger),
	}
	p.dispatcher.Handle("Firebase#initializeApp", p.initializeApp)
	p.dispatcher.Handle("Firebase#initializeCore", p.initializeCore)
	p.dispatcher.Handle("Firebase#optionsFromResource", p.optionsFromResource)
	p.dispatcher.Handle("FirebaseApp#setAutomaticDataCollectionEnabled", p.setAutomaticDataCollectionEnabled)
	p.dispatcher.Handle("FirebaseApp#setAutomaticResourceManagementEnabled", p.setAutomaticResourceManagementEnabled)
	p.dispatcher.Handle("FirebaseApp#delete", p.deleteApp)
	return p
}

// Dispatcher returns the dispatcher serving the channel.
func (p *Plugin) Dispatcher() *channel.Dispatcher {
	return p.dispatcher
}

// Register installs the plugin on m.
func (p *Plugin) Register(m channel.Messenger) {
	p.dispatcher.Register(m)
}

// Close cancels in-flight calls.
func (p *Plugin) Close() {
	p.dispatcher.Close()
}

func (p *Plugin) initializeApp(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseInitializeApp(args)
	if err != nil {
		return err
	}
	app, created, err := p.apps.Initialize(ctx, req.AppName, req.Options)
	if err != nil {
		return channel.Errorf("unknown", "Failed to initialize app %q: %v", req.AppName, err)
	}
	if created {
		p.log.Info("initialized app", zap.String("name", app.Name()))
	}
	result.Success(appPayload(app))
	return nil
}

func (p *Plugin) initializeCore(ctx context.Context, args codec.Args, result channel.Result) error {
	apps := p.apps.All()
	list := make(codec.List, len(apps))
	for i, a := range apps {
		list[i] = appPayload(a)
	}
	result.Success(list)
	return nil
}

func (p *Plugin) optionsFromResource(ctx context.Context, args codec.Args, result channel.Result) error {
	o, err := firebase.OptionsFromEnv()
	if errors.Is(err, firebase.ErrNoConfig) {
		return channel.Errorf("not-found", "No Firebase options found in the environment.")
	}
	if err != nil {
		return channel.Errorf("invalid-argument", "%v", err)
	}
	result.Success(optionsPayload(*o))
	return nil
}

func (p *Plugin) setAutomaticDataCollectionEnabled(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseAppFlag(args)
	if err != nil {
		return err
	}
	app, err := p.apps.Get(req.AppName)
	if err != nil {
		return appNotFound(err)
	}
	app.SetAutomaticDataCollectionEnabled(req.Enabled)
	result.Success(codec.Null{})
	return nil
}

func (p *Plugin) setAutomaticResourceManagementEnabled(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseAppFlag(args)
	if err != nil {
		return err
	}
	app, err := p.apps.Get(req.AppName)
	if err != nil {
		return appNotFound(err)
	}
	app.SetAutomaticResourceManagementEnabled(req.Enabled)
	result.Success(codec.Null{})
	return nil
}

func (p *Plugin) deleteApp(ctx context.Context, args codec.Args, result channel.Result) error {
	name, err := args.RequiredString("appName")
	if err != nil {
		return err
	}
	if !p.apps.Delete(ctx, name) {
		p.log.Debug("delete of unknown app ignored", zap.String("name", name))
	}
	result.Success(codec.Null{})
	return nil
}

func appNotFound(err error) error {
	return &channel.Error{Code: "app-not-found", Message: err.Error()}
}

func appPayload(a *firebase.App) codec.Map {
	return codec.MapOf(
		codec.KV("name", codec.String(a.Name())),
		codec.KV("options", optionsPayload(a.Options())),
		codec.KV("isAutomaticDataCollectionEnabled", codec.Bool(a.IsAutomaticDataCollectionEnabled())),
	)
}

func optionsPayload(o firebase.Options) codec.Map {
	m := codec.MapOf(
		codec.KV("apiKey", codec.String(o.APIKey)),
		codec.KV("appId", codec.String(o.AppID)),
		codec.KV("messagingSenderId", codec.String(o.MessagingSenderID)),
		codec.KV("projectId", codec.String(o.ProjectID)),
	)
	optional := []struct {
		key, value string
	}{
		{"databaseURL", o.DatabaseURL},
		{"storageBucket", o.StorageBucket},
		{"trackingId", o.TrackingID},
		{"authDomain", o.AuthDomain},
		{"measurementId", o.MeasurementID},
	}
	for _, kv := range optional {
		if kv.value != "" {
			m = m.Set(kv.key, codec.String(kv.value))
		}
	}
	return m
}
