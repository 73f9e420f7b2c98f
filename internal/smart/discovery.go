/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package smart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Configuration is the SMART App Launch discovery document (.well-known/smart-configuration).
type Configuration struct {
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	Scopes                        []string `json:"scopes_supported,omitempty"`
	Capabilities                  []string `json:"capabilities,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// Discover fetches the SMART configuration of the FHIR server at iss.
func Discover(ctx context.Context, client *resty.Client, iss string) (*Configuration, error) {
	discoveryURL := strings.TrimSuffix(iss, "/") + "/.well-known/smart-configuration"
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(discoveryURL)
	if err != nil {
		return nil, fmt.Errorf("SMART discovery failed (%s): %w", discoveryURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("SMART discovery failed (%s, status=%d)", discoveryURL, resp.StatusCode())
	}
	var config Configuration
	if err := json.Unmarshal(resp.Body(), &config); err != nil {
		return nil, fmt.Errorf("SMART discovery response unmarshal failed (%s): %w", discoveryURL, err)
	}
	if config.AuthorizationEndpoint == "" || config.TokenEndpoint == "" {
		return nil, fmt.Errorf("SMART discovery (%s): authorization_endpoint and token_endpoint are required", discoveryURL)
	}
	return &config, nil
}
