// Copyright 2019 Google Inc. All Rights Reserved.
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

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/plugins/firebasestorage"
	"github.com/google/go-cmp/cmp"
)

func setupEnv(t *testing.T) {
	t.Setenv("FIREBASE_CONFIG", "")
	t.Setenv("FIREBASE_BRIDGE_NO_AUTH", "true")
	t.Setenv("FIREBASE_BRIDGE_LOG_LEVEL", "error")
	t.Setenv("FIREBASE_BRIDGE_APP_PROJECT_ID", "mock-project-id")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveChannel(t *testing.T) {
	cases := map[string]string{
		"storage":              firebasestorage.ChannelName,
		"Storage":              firebasestorage.ChannelName,
		"core":                 "plugins.flutter.io/firebase_core",
		"custom/channel":       "custom/channel",
		"plugins.flutter.io/x": "plugins.flutter.io/x",
	}
	for in, want := range cases {
		if got := resolveChannel(in); got != want {
			t.Errorf("resolveChannel(%q) = %q; want = %q", in, got, want)
		}
	}
}

func TestCallInitializeCore(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "call", "core", "Firebase#initializeCore")
	if err != nil {
		t.Fatalf("call = %v", err)
	}

	var got []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not a JSON list: %v\n%s", err, out)
	}
	if len(got) != 1 {
		t.Fatalf("len(apps) = %d; want = 1", len(got))
	}
	if got[0]["name"] != "[DEFAULT]" {
		t.Errorf("name = %v; want = [DEFAULT]", got[0]["name"])
	}
	options, _ := got[0]["options"].(map[string]interface{})
	if options["projectId"] != "mock-project-id" {
		t.Errorf("projectId = %v; want = mock-project-id", options["projectId"])
	}
}

func TestCallConfigFile(t *testing.T) {
	setupEnv(t)
	t.Setenv("FIREBASE_BRIDGE_APP_PROJECT_ID", "")
	file := filepath.Join(t.TempDir(), "bridge.toml")
	conf := "no_auth = true\nlog_level = \"error\"\n\n[app]\nproject_id = \"from-file\"\n"
	if err := os.WriteFile(file, []byte(conf), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", file, "call", "core", "Firebase#initializeCore")
	if err != nil {
		t.Fatalf("call = %v", err)
	}
	if !strings.Contains(out, `"projectId": "from-file"`) {
		t.Errorf("output = %s; want projectId from-file", out)
	}
}

func TestCallErrorReply(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "call", "core", "Firebase#initializeApp", "--args", `{"appName":"x"}`)
	var ce *channel.Error
	if !errors.As(err, &ce) {
		t.Fatalf("call = %v; want = channel error", err)
	}
	if ce.Code != "invalid-argument" {
		t.Errorf("Code = %q; want = invalid-argument", ce.Code)
	}
}

func TestCallUnknownChannel(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "call", "unknown/channel", "Foo#bar")
	if !errors.Is(err, channel.ErrNotImplemented) {
		t.Errorf("call = %v; want = ErrNotImplemented", err)
	}
}

func TestCallInvalidArgs(t *testing.T) {
	setupEnv(t)
	for _, args := range []string{"{bad", "[1, 2]", `"text"`} {
		if _, err := execute(t, "call", "core", "Firebase#initializeCore", "--args", args); err == nil {
			t.Errorf("call --args %s = nil; want = error", args)
		}
	}
	if _, err := execute(t, "call", "core"); err == nil {
		t.Error("call with one argument = nil; want = error")
	}
}

func TestQueryArgs(t *testing.T) {
	opts := &listenOptions{
		App:          "other",
		Emulator:     "localhost:9000",
		OrderByChild: "age",
		LimitToLast:  5,
	}
	got, err := queryArgs(opts, "users")
	if err != nil {
		t.Fatal(err)
	}
	want := codec.MapOf(
		codec.KV("path", codec.String("users")),
		codec.KV("eventChannelNamePrefix", codec.String("cli")),
		codec.KV("appName", codec.String("other")),
		codec.KV("emulatorHost", codec.String("localhost")),
		codec.KV("emulatorPort", codec.Int32(9000)),
		codec.KV("modifiers", codec.List{
			codec.MapOf(
				codec.KV("type", codec.String("orderBy")),
				codec.KV("name", codec.String("orderByChild")),
				codec.KV("path", codec.String("age")),
			),
			codec.MapOf(
				codec.KV("type", codec.String("limit")),
				codec.KV("name", codec.String("limitToLast")),
				codec.KV("limit", codec.Int32(5)),
			),
		}),
	)
	if !codec.Equal(got, want) {
		t.Errorf("queryArgs() = %v; want = %v", codec.ToJSONable(got), codec.ToJSONable(want))
	}

	plain, err := queryArgs(&listenOptions{}, "/")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]interface{}{
		"path":                   "/",
		"eventChannelNamePrefix": "cli",
	}, codec.ToJSONable(plain)); diff != "" {
		t.Errorf("queryArgs() mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryArgsErrors(t *testing.T) {
	cases := []*listenOptions{
		{Emulator: "localhost"},
		{Emulator: "localhost:port"},
		{OrderByChild: "a", OrderByKey: true},
		{LimitToFirst: 1, LimitToLast: 1},
	}
	for i, opts := range cases {
		if _, err := queryArgs(opts, "x"); err == nil {
			t.Errorf("queryArgs(%d) = nil; want = error", i)
		}
	}
}
