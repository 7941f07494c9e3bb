// Copyright 2024 Google Inc. All Rights Reserved.
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

package internal

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// EmulatorOwnerToken is the access token that grants unrestricted access to emulated services.
const EmulatorOwnerToken = "owner"

// EmulatorTokenSource returns a TokenSource for talking to a local emulator.
//
// When uid is empty the owner token is used. Otherwise an unsigned ID token is minted for uid, which
// emulators accept as proof of that identity when evaluating security rules.
func EmulatorTokenSource(projectID, uid string) (oauth2.TokenSource, error) {
	if uid == "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: EmulatorOwnerToken}), nil
	}
	tok, err := MockUserToken(projectID, uid)
	if err != nil {
		return nil, err
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok}), nil
}

// MockUserToken creates an unsigned ID token for uid in the given project.
func MockUserToken(projectID, uid string) (string, error) {
	if uid == "" {
		return "", fmt.Errorf("uid must not be empty")
	}
	claims := jwt.MapClaims{
		"iss":     fmt.Sprintf("https://securetoken.google.com/%s", projectID),
		"aud":     projectID,
		"sub":     uid,
		"user_id": uid,
		"iat":     clock.Now().Unix(),
		"exp":     clock.Now().Unix() + 3600,
		"firebase": map[string]interface{}{
			"sign_in_provider": "custom",
			"identities":       map[string]interface{}{},
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
}
