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
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
	"google.golang.org/api/transport"
)

var testOpts = []option.ClientOption{
	option.WithTokenSource(&internal.MockTokenSource{AccessToken: "mock-token"}),
}

var testOptions = &Options{
	APIKey:        "api-key",
	AppID:         "1:1234:web:abcd",
	ProjectID:     "mock-project-id",
	DatabaseURL:   "https://mock-db.firebaseio.com",
	StorageBucket: "mock-bucket",
}

func newTestApp(t *testing.T, name string) *App {
	app, err := NewApp(context.Background(), name, testOptions, zaptest.NewLogger(t), testOpts...)
	if err != nil {
		t.Fatal(err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t, "")
	if app.Name() != DefaultAppName {
		t.Errorf("Name() = %q; want = %q", app.Name(), DefaultAppName)
	}
	if diff := cmp.Diff(*testOptions, app.Options()); diff != "" {
		t.Errorf("Options() mismatch (-want +got):\n%s", diff)
	}
	if len(app.opts) != 2 {
		t.Errorf("Client opts: %d; want: 2", len(app.opts))
	}
	if !app.IsAutomaticDataCollectionEnabled() || !app.IsAutomaticResourceManagementEnabled() {
		t.Errorf("automatic flags = false; want = true")
	}
}

func TestClientOptions(t *testing.T) {
	app := newTestApp(t, "test")

	var bearer string
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output": "test"}`))
	}))
	defer service.Close()

	client, _, err := transport.NewHTTPClient(context.Background(), app.opts...)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Get(service.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status: %d; want: %d", resp.StatusCode, http.StatusOK)
	}
	if bearer != "Bearer mock-token" {
		t.Errorf("Bearer token: %q; want: %q", bearer, "Bearer mock-token")
	}
}

func TestProjectIDFromEnv(t *testing.T) {
	t.Setenv(firebaseEnvName, "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCLOUD_PROJECT", "env-project-id")
	app, err := NewApp(context.Background(), "env", &Options{}, nil, testOpts...)
	if err != nil {
		t.Fatal(err)
	}
	if app.Options().ProjectID != "env-project-id" {
		t.Errorf("ProjectID = %q; want = %q", app.Options().ProjectID, "env-project-id")
	}
}

func TestAutoInit(t *testing.T) {
	uidMap := map[string]interface{}{"uid": "test"}
	tests := []struct {
		name   string
		config string
		want   Options
	}{
		{
			"file",
			"testdata/firebase_config.json",
			Options{
				APIKey:        "auto-init-api-key",
				AppID:         "1:1234:web:abcd",
				DatabaseURL:   "https://auto-init.firebaseio.com",
				ProjectID:     "auto-init-project-id",
				StorageBucket: "auto-init.storage.bucket",
				AuthOverride:  &uidMap,
			},
		},
		{
			"file_unknown_key",
			"testdata/firebase_config_partial.json",
			Options{ProjectID: "auto-init-project-id"},
		},
		{
			"string",
			`{
				"databaseURL": "https://auto-init.firebaseio.com",
				"projectId": "auto-init-project-id",
				"storageBucket": "auto-init.storage.bucket"
			}`,
			Options{
				DatabaseURL:   "https://auto-init.firebaseio.com",
				ProjectID:     "auto-init-project-id",
				StorageBucket: "auto-init.storage.bucket",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv(firebaseEnvName, test.config)
			app, err := NewApp(context.Background(), "", nil, nil, testOpts...)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, app.Options()); diff != "" {
				t.Errorf("Options() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAutoInitInvalidFiles(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		wantError string
	}{
		{
			"NonexistingFile",
			"testdata/no_such_file.json",
			"open testdata/no_such_file.json: no such file or directory",
		},
		{
			"InvalidJSON",
			"testdata/firebase_config_invalid.json",
			"invalid FIREBASE_CONFIG: invalid character 'b' looking for beginning of value",
		},
		{
			"InvalidString",
			"{",
			"invalid FIREBASE_CONFIG: unexpected end of JSON input",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv(firebaseEnvName, test.config)
			_, err := NewApp(context.Background(), "", nil, nil, testOpts...)
			if err == nil || err.Error() != test.wantError {
				t.Errorf("NewApp() = %v; want = %s", err, test.wantError)
			}
		})
	}
}

func TestOptionsFromEnvUnset(t *testing.T) {
	t.Setenv(firebaseEnvName, "")
	if o, err := OptionsFromEnv(); o != nil || err != ErrNoConfig {
		t.Errorf("OptionsFromEnv() = (%v, %v); want = (nil, %v)", o, err, ErrNoConfig)
	}
}

func TestDatabase(t *testing.T) {
	app := newTestApp(t, "")
	c, err := app.Database(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	again, err := app.Database(context.Background(), testOptions.DatabaseURL)
	if err != nil {
		t.Fatal(err)
	}
	if c != again {
		t.Errorf("Database() returned a new client for the same URL")
	}
	other, err := app.Database(context.Background(), "https://other-db.firebaseio.com")
	if err != nil {
		t.Fatal(err)
	}
	if other == c {
		t.Errorf("Database() returned the same client for different URLs")
	}
	if _, err := app.Database(context.Background(), "not a url"); err == nil {
		t.Errorf("Database(invalid) = nil; want = error")
	}
}

func TestStorage(t *testing.T) {
	app := newTestApp(t, "")
	c, err := app.Storage(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Bucket() != "mock-bucket" {
		t.Errorf("Bucket() = %q; want = %q", c.Bucket(), "mock-bucket")
	}
	other, err := app.Storage(context.Background(), "gs://other-bucket")
	if err != nil {
		t.Fatal(err)
	}
	if other.Bucket() != "other-bucket" {
		t.Errorf("Bucket() = %q; want = %q", other.Bucket(), "other-bucket")
	}
}

func TestFunctions(t *testing.T) {
	app := newTestApp(t, "")
	c, err := app.Functions(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Region() != "us-central1" {
		t.Errorf("Region() = %q; want = %q", c.Region(), "us-central1")
	}
	again, _ := app.Functions(context.Background(), "us-central1")
	if c != again {
		t.Errorf("Functions() returned a new client for the same region")
	}
	want := "https://us-central1-mock-project-id.cloudfunctions.net/fn"
	if got := c.HTTPSCallable("fn").URL(); got != want {
		t.Errorf("URL() = %q; want = %q", got, want)
	}
}

func TestAutomaticFlags(t *testing.T) {
	app := newTestApp(t, "")
	app.SetAutomaticDataCollectionEnabled(false)
	app.SetAutomaticResourceManagementEnabled(false)
	if app.IsAutomaticDataCollectionEnabled() || app.IsAutomaticResourceManagementEnabled() {
		t.Errorf("automatic flags = true; want = false")
	}
}

func TestDeletedApp(t *testing.T) {
	app := newTestApp(t, "deleted")
	if _, err := app.Database(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	app.Delete(context.Background())
	app.Delete(context.Background())

	if _, err := app.Database(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "deleted") {
		t.Errorf("Database() = %v; want = deleted error", err)
	}
	if _, err := app.Storage(context.Background(), ""); err == nil {
		t.Errorf("Storage() = nil; want = error")
	}
	if _, err := app.Functions(context.Background(), ""); err == nil {
		t.Errorf("Functions() = nil; want = error")
	}
}

func TestAppsInitialize(t *testing.T) {
	apps := NewApps(zaptest.NewLogger(t), testOpts...)
	a, created, err := apps.Initialize(context.Background(), "", testOptions)
	if err != nil || !created {
		t.Fatalf("Initialize() = (%v, %v); want = (true, nil)", created, err)
	}
	if a.Name() != DefaultAppName {
		t.Errorf("Name() = %q; want = %q", a.Name(), DefaultAppName)
	}

	b, created, err := apps.Initialize(context.Background(), DefaultAppName, &Options{ProjectID: "other"})
	if err != nil || created {
		t.Fatalf("Initialize(existing) = (%v, %v); want = (false, nil)", created, err)
	}
	if a != b || b.Options().ProjectID != "mock-project-id" {
		t.Errorf("Initialize(existing) returned a different app")
	}

	def, err := apps.Default()
	if err != nil || def != a {
		t.Errorf("Default() = (%v, %v); want = (%v, nil)", def, err, a)
	}
}

func TestAppsGet(t *testing.T) {
	apps := NewApps(nil, testOpts...)
	if _, err := apps.Get("missing"); !errors.Is(err, ErrAppNotFound) {
		t.Errorf("Get(missing) = %v; want = ErrAppNotFound", err)
	}
	if _, err := apps.Default(); !errors.Is(err, ErrAppNotFound) {
		t.Errorf("Default() = %v; want = ErrAppNotFound", err)
	}

	app := newTestApp(t, "custom")
	if err := apps.Add(app); err != nil {
		t.Fatal(err)
	}
	if err := apps.Add(app); err == nil {
		t.Errorf("Add(duplicate) = nil; want = error")
	}
	got, err := apps.Get("custom")
	if err != nil || got != app {
		t.Errorf("Get(custom) = (%v, %v); want = (%v, nil)", got, err, app)
	}
}

func TestAppsAllAndDelete(t *testing.T) {
	apps := NewApps(nil, testOpts...)
	for _, name := range []string{"b", "a", ""} {
		if _, _, err := apps.Initialize(context.Background(), name, testOptions); err != nil {
			t.Fatal(err)
		}
	}
	var names []string
	for _, a := range apps.All() {
		names = append(names, a.Name())
	}
	if diff := cmp.Diff([]string{DefaultAppName, "a", "b"}, names); diff != "" {
		t.Errorf("All() mismatch (-want +got):\n%s", diff)
	}

	a, _ := apps.Get("a")
	if !apps.Delete(context.Background(), "a") {
		t.Errorf("Delete(a) = false; want = true")
	}
	if apps.Delete(context.Background(), "a") {
		t.Errorf("Delete(a) twice = true; want = false")
	}
	if _, err := a.Functions(context.Background(), ""); err == nil {
		t.Errorf("Functions() on deleted app = nil; want = error")
	}
	if len(apps.All()) != 2 {
		t.Errorf("len(All()) = %d; want = 2", len(apps.All()))
	}
}

func TestVersion(t *testing.T) {
	segments := strings.Split(Version, ".")
	if len(segments) != 3 {
		t.Errorf("Incorrect number of segments: %d; want: 3", len(segments))
	}
	for _, segment := range segments {
		if _, err := strconv.Atoi(segment); err != nil {
			t.Errorf("Invalid segment in version number: %q; want integer", segment)
		}
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv(firebaseEnvName)
	os.Exit(m.Run())
}
