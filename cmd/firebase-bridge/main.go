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

// Command firebase-bridge drives the Firebase channel plugins from the command line through an
// in-process messenger.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/config"
	"github.com/firebase/firebase-bridge-go/plugins"
	"github.com/firebase/firebase-bridge-go/plugins/cloudfunctions"
	"github.com/firebase/firebase-bridge-go/plugins/firebasecore"
	"github.com/firebase/firebase-bridge-go/plugins/firebasedatabase"
	"github.com/firebase/firebase-bridge-go/plugins/firebasestorage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions holds the flags shared by all commands.
type rootOptions struct {
	ConfigFile string
	Timeout    time.Duration
}

var channelAliases = map[string]string{
	"core":      firebasecore.ChannelName,
	"functions": cloudfunctions.ChannelName,
	"database":  firebasedatabase.ChannelName,
	"storage":   firebasestorage.ChannelName,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "firebase-bridge",
		Short: "Call the Firebase channel plugins",
		Long: `Call the Firebase channel plugins from the command line.

Configuration is read from FIREBASE_BRIDGE_* environment variables and the optional
TOML file given with --config. The default app is initialized from the configured
app options or from FIREBASE_CONFIG.`,
		Version:       firebase.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "TOML configuration file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "timeout of a single method call")

	cmd.AddCommand(newCallCommand(opts))
	cmd.AddCommand(newListenCommand(opts))
	return cmd
}

// resolveChannel expands a channel alias into the full channel name.
func resolveChannel(name string) string {
	if full, ok := channelAliases[strings.ToLower(name)]; ok {
		return full
	}
	return name
}

// session is a plugin host registered on a loopback messenger.
type session struct {
	log  *zap.Logger
	host *plugins.Host
	loop *channel.Loopback
}

func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	apps := firebase.NewApps(logger, cfg.ClientOptions()...)
	options := cfg.AppOptions()
	if options == nil {
		options, err = firebase.OptionsFromEnv()
		if err != nil && !errors.Is(err, firebase.ErrNoConfig) {
			return nil, err
		}
	}
	if options != nil {
		if _, _, err := apps.Initialize(ctx, firebase.DefaultAppName, options); err != nil {
			return nil, fmt.Errorf("initialize default app: %w", err)
		}
	} else {
		logger.Debug("no default app configured")
	}

	host := plugins.NewHost(apps, logger)
	host.ApplyTraces(cfg.Traces)
	loop := channel.NewLoopback(logger)
	host.Register(loop)
	return &session{log: logger, host: host, loop: loop}, nil
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.host.Close(ctx)
	s.loop.Close()
	s.log.Sync()
}
