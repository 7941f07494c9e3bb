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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/spf13/cobra"
)

type callOptions struct {
	*rootOptions
	Args    string
	WaitFor string
}

func newCallCommand(root *rootOptions) *cobra.Command {
	opts := &callOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "call <channel> <method>",
		Short: "Send one method call to a plugin and print the reply",
		Long: `Send one method call to a plugin and print the reply as JSON.

The channel is a full channel name or one of the aliases core, functions,
database and storage. Calls the plugin sends back to the application are
printed as they arrive.

Example:
  firebase-bridge call storage Reference#getMetadata --args '{"appName":"[DEFAULT]","path":"a.txt"}'
  firebase-bridge call storage Task#startPutString \
    --args '{"appName":"[DEFAULT]","handle":1,"path":"a.txt","data":"aGk=","format":1}' \
    --wait-for Task#onSuccess`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), opts, resolveChannel(args[0]), args[1], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "call arguments as a JSON object")
	cmd.Flags().StringVar(&opts.WaitFor, "wait-for", "", "keep running until the plugin sends this method back")
	return cmd
}

func runCall(ctx context.Context, opts *callOptions, ch, method string, out io.Writer) error {
	args, err := codec.FromJSON([]byte(opts.Args))
	if err != nil {
		return fmt.Errorf("invalid --args JSON: %w", err)
	}
	if _, ok := args.(codec.Map); !ok {
		return errors.New("--args must be a JSON object")
	}

	s, err := openSession(ctx, opts.rootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	var mu sync.Mutex
	arrived := make(chan struct{})
	var once sync.Once
	s.loop.HandleOutgoing(ch, func(call channel.MethodCall, result channel.Result) {
		mu.Lock()
		printJSON(out, map[string]interface{}{
			"event":     call.Method,
			"arguments": codec.ToJSONable(call.Arguments),
		})
		mu.Unlock()
		if call.Method == opts.WaitFor {
			once.Do(func() { close(arrived) })
		}
		result.NotImplemented()
	})

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	reply, err := s.loop.Call(callCtx, ch, method, args)
	if err != nil {
		return err
	}
	mu.Lock()
	printJSON(out, codec.ToJSONable(reply))
	mu.Unlock()

	if opts.WaitFor == "" {
		return nil
	}
	select {
	case <-arrived:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printJSON(out io.Writer, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "%v\n", v)
		return
	}
	fmt.Fprintln(out, string(b))
}
