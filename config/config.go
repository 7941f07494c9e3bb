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

// Package config loads the runtime configuration of the bridge from the environment and an
// optional TOML file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	firebase "github.com/firebase/firebase-bridge-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"
)

// EnvPrefix is prepended to the name of every environment variable read by Load.
const EnvPrefix = "FIREBASE_BRIDGE_"

// Trace channel names.
const (
	TraceCore      = "core"
	TraceDatabase  = "database"
	TraceListen    = "listen"
	TraceStream    = "stream"
	TraceStorage   = "storage"
	TraceFunctions = "functions"
)

var traceChannels = map[string]bool{
	TraceCore:      true,
	TraceDatabase:  true,
	TraceListen:    true,
	TraceStream:    true,
	TraceStorage:   true,
	TraceFunctions: true,
}

// Config is the runtime configuration of the bridge.
type Config struct {
	// CredentialsFile is a service account or refresh token JSON file. Application default
	// credentials are used when empty.
	CredentialsFile string `env:"CREDENTIALS_FILE" toml:"credentials_file"`

	// NoAuth disables authentication, for use against emulators.
	NoAuth bool `env:"NO_AUTH" toml:"no_auth"`

	// App holds the options of the default app. FIREBASE_CONFIG is consulted when it is empty.
	App AppConfig `envPrefix:"APP_" toml:"app"`

	LogLevel string   `env:"LOG_LEVEL" envDefault:"info" toml:"log_level"`
	Trace    []string `env:"TRACE" envSeparator:"," toml:"trace"`
}

// AppConfig holds the options of the default app.
type AppConfig struct {
	APIKey            string `env:"API_KEY" toml:"api_key"`
	AppID             string `env:"APP_ID" toml:"app_id"`
	MessagingSenderID string `env:"MESSAGING_SENDER_ID" toml:"messaging_sender_id"`
	ProjectID         string `env:"PROJECT_ID" toml:"project_id"`
	DatabaseURL       string `env:"DATABASE_URL" toml:"database_url"`
	StorageBucket     string `env:"STORAGE_BUCKET" toml:"storage_bucket"`
}

// Load reads the configuration from environment variables prefixed with EnvPrefix, then
// overlays the TOML file at path when path is not empty.
func Load(path string) (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	for i, t := range c.Trace {
		t = strings.TrimSpace(t)
		if !traceChannels[t] {
			return fmt.Errorf("unknown trace channel %q", t)
		}
		c.Trace[i] = t
	}
	return nil
}

// Traces reports whether debug tracing is enabled for the named channel.
func (c *Config) Traces(channel string) bool {
	for _, t := range c.Trace {
		if t == channel {
			return true
		}
	}
	return false
}

// Logger builds a production zap logger at the configured level. Any enabled trace channel
// lowers the level to debug.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if len(c.Trace) > 0 && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// ClientOptions returns the Google API client options selected by the configuration.
func (c *Config) ClientOptions() []option.ClientOption {
	switch {
	case c.NoAuth:
		return []option.ClientOption{option.WithoutAuthentication()}
	case c.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
	default:
		return nil
	}
}

// AppOptions returns the options of the default app, or nil when none are configured so that
// firebase.NewApp falls back to FIREBASE_CONFIG.
func (c *Config) AppOptions() *firebase.Options {
	if c.App == (AppConfig{}) {
		return nil
	}
	return &firebase.Options{
		APIKey:            c.App.APIKey,
		AppID:             c.App.AppID,
		MessagingSenderID: c.App.MessagingSenderID,
		ProjectID:         c.App.ProjectID,
		DatabaseURL:       c.App.DatabaseURL,
		StorageBucket:     c.App.StorageBucket,
	}
}
