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

// Package cloudfunctions serves the firebase_functions method channel, which invokes HTTPS
// callable functions.
package cloudfunctions

import (
	"context"
	"errors"
	"strconv"
	"time"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/convert"
	"github.com/firebase/firebase-bridge-go/functions"
	"github.com/firebase/firebase-bridge-go/future"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
)

// ChannelName is the name of the method channel served by the plugin.
const ChannelName = "plugins.flutter.io/firebase_functions"

// Plugin dispatches callable function invocations for the apps in a registry.
type Plugin struct {
	apps       *firebase.Apps
	log        *zap.Logger
	dispatcher *channel.Dispatcher
}

// New creates the plugin.
func New(apps *firebase.Apps, router *channel.Router, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Plugin{
		apps:       apps,
		log:        logger.Named("functions"),
		dispatcher: channel.NewDispatcher(ChannelName, router, logger),
	}
	p.dispatcher.Handle("FirebaseFunctions#call", p.call)
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

type callRequest struct {
	AppName      string
	Region       string
	FunctionName string
	Parameters   variant.Variant
	Origin       string
	Timeout      time.Duration
}

func parseCall(args codec.Args) (*callRequest, error) {
	name, err := args.RequiredString("functionName")
	if err != nil {
		return nil, err
	}
	req := &callRequest{
		AppName:      args.StringOr("appName", firebase.DefaultAppName),
		Region:       args.StringOr("region", functions.DefaultRegion),
		FunctionName: name,
		Parameters:   convert.ToNative(args.Value("parameters")),
		Origin:       args.StringOr("origin", ""),
	}
	if ms, ok := args.GetInt("timeout"); ok && ms > 0 {
		req.Timeout = time.Duration(ms) * time.Millisecond
	}
	return req, nil
}

func (p *Plugin) call(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseCall(args)
	if err != nil {
		return err
	}
	app, err := p.apps.Get(req.AppName)
	if err != nil {
		return channel.Errorf("-1", "No app matched found.")
	}
	client, err := app.Functions(ctx, req.Region)
	if err != nil {
		return channel.Errorf("-1", "Can't create functions with the given app.")
	}
	if req.Origin != "" {
		p.log.Debug("using functions emulator", zap.String("origin", req.Origin))
		client.UseFunctionsEmulator(req.Origin)
	}

	ref := client.HTTPSCallable(req.FunctionName)
	if req.Timeout > 0 {
		ref.SetTimeout(req.Timeout)
	}

	f := future.Go(ctx, func(ctx context.Context) (variant.Variant, error) {
		return ref.Call(ctx, req.Parameters)
	})
	channel.Await(p.dispatcher.Router(), result, f, encodeResult, mapError, ref)
	return nil
}

func encodeResult(v variant.Variant) (codec.Value, error) {
	return convert.ToGeneric(v), nil
}

// mapError builds the reply for a failed call: the numeric code, the server message and the slug
// under additionalData.
func mapError(err error) *channel.Error {
	code := functions.CodeOf(err)
	additional := codec.MapOf(
		codec.KV("code", codec.String(code.String())),
		codec.KV("message", codec.String(err.Error())),
	)
	var fe *functions.Error
	if errors.As(err, &fe) && !fe.Details.IsNull() {
		additional = additional.Set("details", convert.ToGeneric(fe.Details))
	}
	return &channel.Error{
		Code:    strconv.Itoa(int(code)),
		Message: err.Error(),
		Details: codec.MapOf(codec.KV("additionalData", additional)),
	}
}
