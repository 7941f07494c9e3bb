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

package firebasedatabase

import (
	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/convert"
	"github.com/firebase/firebase-bridge-go/variant"
)

// Argument keys.
const (
	keyAppName            = "appName"
	keyDatabaseURL        = "databaseURL"
	keyPersistenceEnabled = "persistenceEnabled"
	keyCacheSizeBytes     = "cacheSizeBytes"
	keyLoggingEnabled     = "loggingEnabled"
	keyEmulatorHost       = "emulatorHost"
	keyEmulatorPort       = "emulatorPort"
	keyPath               = "path"
	keyValue              = "value"
	keyPriority           = "priority"
	keyModifiers          = "modifiers"
	keyTransactionKey     = "transactionKey"
	keyApplyLocally       = "transactionApplyLocally"
	keyChannelPrefix      = "eventChannelNamePrefix"
	keyEventType          = "eventType"
)

type databaseRequest struct {
	AppName            string
	DatabaseURL        string
	PersistenceEnabled bool
	CacheSizeBytes     int64
	LoggingEnabled     bool
	EmulatorHost       string
	EmulatorPort       int64
}

func parseDatabase(args codec.Args) *databaseRequest {
	req := &databaseRequest{
		AppName:            args.StringOr(keyAppName, firebase.DefaultAppName),
		DatabaseURL:        args.StringOr(keyDatabaseURL, ""),
		PersistenceEnabled: args.BoolOr(keyPersistenceEnabled, false),
		LoggingEnabled:     args.BoolOr(keyLoggingEnabled, false),
		EmulatorHost:       args.StringOr(keyEmulatorHost, ""),
	}
	req.CacheSizeBytes, _ = args.GetInt(keyCacheSizeBytes)
	req.EmulatorPort, _ = args.GetInt(keyEmulatorPort)
	return req
}

type refRequest struct {
	*databaseRequest
	Path string
}

func parseRef(args codec.Args) (*refRequest, error) {
	path, err := args.RequiredString(keyPath)
	if err != nil {
		return nil, err
	}
	return &refRequest{databaseRequest: parseDatabase(args), Path: path}, nil
}

type writeRequest struct {
	*refRequest
	Value    variant.Variant
	Priority variant.Variant
}

func parseWrite(args codec.Args) (*writeRequest, error) {
	ref, err := parseRef(args)
	if err != nil {
		return nil, err
	}
	return &writeRequest{
		refRequest: ref,
		Value:      convert.ToNative(args.Value(keyValue)),
		Priority:   convert.ToNative(args.Value(keyPriority)),
	}, nil
}

type transactionRequest struct {
	*refRequest
	Key          int64
	ApplyLocally bool
}

func parseTransaction(args codec.Args) (*transactionRequest, error) {
	ref, err := parseRef(args)
	if err != nil {
		return nil, err
	}
	key, err := args.RequiredInt(keyTransactionKey)
	if err != nil {
		return nil, err
	}
	return &transactionRequest{
		refRequest:   ref,
		Key:          key,
		ApplyLocally: args.BoolOr(keyApplyLocally, false),
	}, nil
}

// Modifier types and names.
const (
	modifierOrderBy = "orderBy"
	modifierCursor  = "cursor"
	modifierLimit   = "limit"

	orderByChild    = "orderByChild"
	orderByKey      = "orderByKey"
	orderByValue    = "orderByValue"
	orderByPriority = "orderByPriority"

	cursorStartAt    = "startAt"
	cursorStartAfter = "startAfter"
	cursorEndAt      = "endAt"
	cursorEndBefore  = "endBefore"
	cursorEqualTo    = "equalTo"

	limitToFirst = "limitToFirst"
	limitToLast  = "limitToLast"
)

type modifier struct {
	Type  string
	Name  string
	Path  string
	Value variant.Variant
	Key   string
	Limit int64
}

type queryRequest struct {
	*refRequest
	Modifiers []modifier
}

func parseQuery(args codec.Args) (*queryRequest, error) {
	ref, err := parseRef(args)
	if err != nil {
		return nil, err
	}
	req := &queryRequest{refRequest: ref}
	list, _ := args.GetList(keyModifiers)
	for _, v := range list {
		m, ok := v.(codec.Map)
		if !ok {
			return nil, &codec.ArgumentError{Key: keyModifiers}
		}
		ma := codec.ArgsOf(m)
		typ, err := ma.RequiredString("type")
		if err != nil {
			return nil, err
		}
		name, err := ma.RequiredString("name")
		if err != nil {
			return nil, err
		}
		mod := modifier{
			Type:  typ,
			Name:  name,
			Path:  ma.StringOr("path", ""),
			Value: convert.ToNative(ma.Value("value")),
			Key:   ma.StringOr("key", ""),
		}
		mod.Limit, _ = ma.GetInt("limit")
		req.Modifiers = append(req.Modifiers, mod)
	}
	return req, nil
}
