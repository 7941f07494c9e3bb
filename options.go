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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// firebaseEnvName is the name of the environment variable with the Options.
const firebaseEnvName = "FIREBASE_CONFIG"

// ErrNoConfig is returned by OptionsFromEnv when FIREBASE_CONFIG is not set.
var ErrNoConfig = errors.New("FIREBASE_CONFIG is not set")

// OptionsFromEnv loads App options from the FIREBASE_CONFIG environment variable, which holds
// either the path of a JSON file or the JSON object itself. Unknown keys are ignored.
func OptionsFromEnv() (*Options, error) {
	return ParseOptions(os.Getenv(firebaseEnvName))
}

// ParseOptions decodes options from a JSON object, or from the JSON file it names when the value
// does not start with '{'. An empty value returns ErrNoConfig.
func ParseOptions(value string) (*Options, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNoConfig
	}

	var dat []byte
	if strings.HasPrefix(value, "{") {
		dat = []byte(value)
	} else {
		var err error
		if dat, err = os.ReadFile(value); err != nil {
			return nil, err
		}
	}

	o := &Options{}
	if err := json.Unmarshal(dat, o); err != nil {
		return nil, fmt.Errorf("invalid %s: %v", firebaseEnvName, err)
	}
	return o, nil
}
