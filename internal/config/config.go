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

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	ClientID            string        `mapstructure:"SMART_CLIENT_ID"`
	ClientSecret        string        `mapstructure:"SMART_CLIENT_SECRET"`
	RedirectURL         string        `mapstructure:"SMART_REDIRECT_URL"`
	Scopes              string        `mapstructure:"SMART_SCOPES"`
	DefaultIssuer       string        `mapstructure:"SMART_DEFAULT_ISS"`
	AllowedIssuers      string        `mapstructure:"SMART_ALLOWED_ISSUERS"`
	FHIRMaxResponseSize int           `mapstructure:"FHIR_MAX_RESPONSE_SIZE"`
	FHIRPostSearch      bool          `mapstructure:"FHIR_POST_SEARCH"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	CookieSecure        bool          `mapstructure:"COOKIE_SECURE"`
}

var keys = []string{
	"PORT",
	"ENV",
	"LOG_LEVEL",
	"SMART_CLIENT_ID",
	"SMART_CLIENT_SECRET",
	"SMART_REDIRECT_URL",
	"SMART_SCOPES",
	"SMART_DEFAULT_ISS",
	"SMART_ALLOWED_ISSUERS",
	"FHIR_MAX_RESPONSE_SIZE",
	"FHIR_POST_SEARCH",
	"SESSION_TTL",
	"COOKIE_SECURE",
}

// Load reads the configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SMART_REDIRECT_URL", "http://localhost:8080/callback")
	v.SetDefault("SMART_SCOPES", "launch launch/patient openid fhirUser patient/Patient.read patient/Observation.read")
	v.SetDefault("FHIR_MAX_RESPONSE_SIZE", 10*1024*1024)
	v.SetDefault("FHIR_POST_SEARCH", false)
	v.SetDefault("SESSION_TTL", "1h")
	v.SetDefault("COOKIE_SECURE", false)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be used to launch.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("SMART_CLIENT_ID is required")
	}
	if _, err := url.ParseRequestURI(c.RedirectURL); err != nil {
		return fmt.Errorf("SMART_REDIRECT_URL is not a valid URL: %w", err)
	}
	if c.DefaultIssuer != "" {
		if _, err := url.ParseRequestURI(c.DefaultIssuer); err != nil {
			return fmt.Errorf("SMART_DEFAULT_ISS is not a valid URL: %w", err)
		}
	}
	if c.FHIRMaxResponseSize <= 0 {
		return fmt.Errorf("FHIR_MAX_RESPONSE_SIZE must be positive, got %d", c.FHIRMaxResponseSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ScopeList returns the requested OAuth2 scopes.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.Scopes)
}

// AllowedIssuerList returns the comma separated SMART_ALLOWED_ISSUERS, empty when any issuer is allowed.
func (c *Config) AllowedIssuerList() []string {
	var issuers []string
	for _, issuer := range strings.Split(c.AllowedIssuers, ",") {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			issuers = append(issuers, issuer)
		}
	}
	return issuers
}
