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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/plugins/firebasedatabase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type listenOptions struct {
	*rootOptions
	App          string
	DatabaseURL  string
	Emulator     string
	Event        string
	OrderByChild string
	OrderByKey   bool
	LimitToFirst int
	LimitToLast  int
}

func newListenCommand(root *rootOptions) *cobra.Command {
	opts := &listenOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "listen <path>",
		Short: "Print the events of a database query until interrupted",
		Long: `Observe a Realtime Database location and print each event as JSON.

Example:
  firebase-bridge listen /users --event childAdded --order-by-child age --limit-to-first 10
  firebase-bridge listen /config --emulator localhost:9000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.App, "app", "", "name of the app that owns the database")
	cmd.Flags().StringVar(&opts.DatabaseURL, "database-url", "", "database URL, defaults to the app's")
	cmd.Flags().StringVar(&opts.Emulator, "emulator", "", "database emulator address as host:port")
	cmd.Flags().StringVar(&opts.Event, "event", "value", "event type: value, childAdded, childChanged, childMoved or childRemoved")
	cmd.Flags().StringVar(&opts.OrderByChild, "order-by-child", "", "order the query by this child path")
	cmd.Flags().BoolVar(&opts.OrderByKey, "order-by-key", false, "order the query by key")
	cmd.Flags().IntVar(&opts.LimitToFirst, "limit-to-first", 0, "limit the query to the first N children")
	cmd.Flags().IntVar(&opts.LimitToLast, "limit-to-last", 0, "limit the query to the last N children")
	return cmd
}

// queryArgs builds the Query#observe arguments selected by the flags.
func queryArgs(opts *listenOptions, path string) (codec.Map, error) {
	args := codec.MapOf(
		codec.KV("path", codec.String(path)),
		codec.KV("eventChannelNamePrefix", codec.String("cli")),
	)
	if opts.App != "" {
		args = args.Set("appName", codec.String(opts.App))
	}
	if opts.DatabaseURL != "" {
		args = args.Set("databaseURL", codec.String(opts.DatabaseURL))
	}
	if opts.Emulator != "" {
		host, port, err := net.SplitHostPort(opts.Emulator)
		if err != nil {
			return nil, fmt.Errorf("invalid --emulator: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid --emulator port %q", port)
		}
		args = args.Set("emulatorHost", codec.String(host)).Set("emulatorPort", codec.Int32(int32(p)))
	}

	if opts.OrderByChild != "" && opts.OrderByKey {
		return nil, errors.New("--order-by-child and --order-by-key are exclusive")
	}
	if opts.LimitToFirst > 0 && opts.LimitToLast > 0 {
		return nil, errors.New("--limit-to-first and --limit-to-last are exclusive")
	}
	var modifiers codec.List
	switch {
	case opts.OrderByChild != "":
		modifiers = append(modifiers, codec.MapOf(
			codec.KV("type", codec.String("orderBy")),
			codec.KV("name", codec.String("orderByChild")),
			codec.KV("path", codec.String(opts.OrderByChild)),
		))
	case opts.OrderByKey:
		modifiers = append(modifiers, codec.MapOf(
			codec.KV("type", codec.String("orderBy")),
			codec.KV("name", codec.String("orderByKey")),
		))
	}
	switch {
	case opts.LimitToFirst > 0:
		modifiers = append(modifiers, limitModifier("limitToFirst", opts.LimitToFirst))
	case opts.LimitToLast > 0:
		modifiers = append(modifiers, limitModifier("limitToLast", opts.LimitToLast))
	}
	if len(modifiers) > 0 {
		args = args.Set("modifiers", modifiers)
	}
	return args, nil
}

func limitModifier(name string, n int) codec.Map {
	return codec.MapOf(
		codec.KV("type", codec.String("limit")),
		codec.KV("name", codec.String(name)),
		codec.KV("limit", codec.Int32(int32(n))),
	)
}

func runListen(ctx context.Context, opts *listenOptions, path string, out io.Writer) error {
	args, err := queryArgs(opts, path)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, opts.rootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	reply, err := s.loop.Call(callCtx, firebasedatabase.ChannelName, "Query#observe", args)
	cancel()
	if err != nil {
		return err
	}
	name, ok := reply.(codec.String)
	if !ok {
		return fmt.Errorf("Query#observe returned %v; want a channel name", reply)
	}

	stream, err := s.loop.Listen(ctx, string(name), codec.MapOf(codec.KV("eventType", codec.String(opts.Event))))
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		defer cancel()
		if err := stream.Cancel(cctx); err != nil {
			s.log.Debug("cancel stream", zap.Error(err))
		}
	}()
	s.log.Debug("listening", zap.String("channel", string(name)), zap.String("eventType", opts.Event))

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		switch {
		case ev.End:
			return nil
		case ev.Err != nil:
			return ev.Err
		default:
			printJSON(out, codec.ToJSONable(ev.Value))
		}
	}
}
