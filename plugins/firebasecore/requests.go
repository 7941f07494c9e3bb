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

package firebasecore

import (
	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/codec"
)

type initializeAppRequest struct {
	AppName string
	Options *firebase.Options
}

func parseInitializeApp(args codec.Args) (*initializeAppRequest, error) {
	name, err := args.RequiredString("appName")
	if err != nil {
		return nil, err
	}
	m, err := args.RequiredMap("options")
	if err != nil {
		return nil, err
	}
	opts := codec.ArgsOf(m)

	o := &firebase.Options{}
	required := []struct {
		key string
		dst *string
	}{
		{"apiKey", &o.APIKey},
		{"appId", &o.AppID},
		{"messagingSenderId", &o.MessagingSenderID},
		{"projectId", &o.ProjectID},
	}
	for _, r := range required {
		if *r.dst, err = opts.RequiredString(r.key); err != nil {
			return nil, err
		}
	}
	o.DatabaseURL = opts.StringOr("databaseURL", "")
	o.StorageBucket = opts.StringOr("storageBucket", "")
	o.TrackingID = opts.StringOr("trackingId", "")
	o.AuthDomain = opts.StringOr("authDomain", "")
	o.MeasurementID = opts.StringOr("measurementId", "")
	return &initializeAppRequest{AppName: name, Options: o}, nil
}

type appFlagRequest struct {
	AppName string
	Enabled bool
}

func parseAppFlag(args codec.Args) (*appFlagRequest, error) {
	name, err := args.RequiredString("appName")
	if err != nil {
		return nil, err
	}
	enabled, err := args.RequiredBool("enabled")
	if err != nil {
		return nil, err
	}
	return &appFlagRequest{AppName: name, Enabled: enabled}, nil
}
