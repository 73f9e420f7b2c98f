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
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/SanteonNL/smart-vitals/internal/fhirclient"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var (
	ErrUnknownState     = errors.New("unknown or expired authorization state")
	ErrIssuerNotAllowed = errors.New("FHIR server (iss) is not allowed")
)

// PendingAuthorizationTTL is how long an authorization waits for its callback.
const PendingAuthorizationTTL = 10 * time.Minute

type Config struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	Scopes          []string
	DefaultIssuer   string
	AllowedIssuers  []string
	MaxResponseSize int
	// UsePostSearch makes sessions search with POST [type]/_search.
	UsePostSearch bool
}

// pendingAuthorization is an authorization request that awaits its callback.
type pendingAuthorization struct {
	issuer   string
	verifier string
	oauth2   *oauth2.Config
}

// Launcher performs the SMART App Launch: it redirects the user to the authorization server
// and turns the callback into a Session.
type Launcher struct {
	config     Config
	rest       *resty.Client
	httpClient *http.Client
	pending    *ttlStore[pendingAuthorization]
	sessions   *SessionStore
	logger     zerolog.Logger
}

// NewLauncher creates a Launcher that stores completed sessions in sessions.
// httpClient is used for discovery, token exchange and FHIR requests; nil selects http.DefaultClient.
func NewLauncher(config Config, sessions *SessionStore, httpClient *http.Client, logger zerolog.Logger) *Launcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Launcher{
		config:     config,
		rest:       resty.NewWithClient(httpClient),
		httpClient: httpClient,
		pending:    newTTLStore[pendingAuthorization](PendingAuthorizationTTL),
		sessions:   sessions,
		logger:     logger,
	}
}

// Authorize starts an authorization for the FHIR server iss and returns the URL to redirect the user to.
// An empty iss selects the default issuer. launch is the EHR launch context, empty for a standalone launch.
func (l *Launcher) Authorize(ctx context.Context, iss string, launch string) (string, error) {
	if iss == "" {
		iss = l.config.DefaultIssuer
	}
	if iss == "" {
		return "", errors.New("no FHIR server (iss) given and no default configured")
	}
	if _, err := url.ParseRequestURI(iss); err != nil {
		return "", fmt.Errorf("invalid FHIR server (iss) %q: %w", iss, err)
	}
	if !l.issuerAllowed(iss) {
		return "", fmt.Errorf("%w: %s", ErrIssuerNotAllowed, iss)
	}
	smartConfig, err := Discover(ctx, l.rest, iss)
	if err != nil {
		return "", err
	}
	oauthConfig := &oauth2.Config{
		ClientID:     l.config.ClientID,
		ClientSecret: l.config.ClientSecret,
		RedirectURL:  l.config.RedirectURL,
		Scopes:       l.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   smartConfig.AuthorizationEndpoint,
			TokenURL:  smartConfig.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	l.pending.put(state, pendingAuthorization{
		issuer:   iss,
		verifier: verifier,
		oauth2:   oauthConfig,
	})
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("aud", iss),
	}
	if launch != "" {
		opts = append(opts, oauth2.SetAuthURLParam("launch", launch))
	}
	l.logger.Debug().Str("iss", iss).Str("state", state).Msg("Starting SMART authorization")
	return oauthConfig.AuthCodeURL(state, opts...), nil
}

// Complete exchanges the authorization code of the callback for a token and creates a Session.
// A state can only be completed once.
func (l *Launcher) Complete(ctx context.Context, state string, code string) (*Session, error) {
	pending, ok := l.pending.get(state, true)
	if !ok {
		return nil, ErrUnknownState
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, l.httpClient)
	token, err := pending.oauth2.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed (iss=%s): %w", pending.issuer, err)
	}
	fhirBaseURL, err := url.Parse(pending.issuer)
	if err != nil {
		return nil, err
	}
	// The session outlives the callback request, so its HTTP client must not be bound to ctx's lifetime.
	clientCtx := context.WithValue(context.Background(), oauth2.HTTPClient, l.httpClient)
	fhirClient := fhirclient.New(fhirBaseURL, pending.oauth2.Client(clientCtx, token), &fhirclient.Config{
		MaxResponseSize: l.config.MaxResponseSize,
		UsePostSearch:   l.config.UsePostSearch,
		Non2xxStatusHandler: func(response *http.Response, responseBody []byte) {
			l.logger.Warn().
				Str("url", response.Request.URL.String()).
				Int("status", response.StatusCode).
				Msg("FHIR server returned non-2xx status")
		},
	})
	patient, _ := token.Extra("patient").(string)
	session := NewSession(uuid.NewString(), pending.issuer, patient, fhirClient)
	session.FHIRUser = fhirUser(token)
	l.sessions.Put(session)
	l.logger.Info().
		Str("iss", session.Issuer).
		Str("patient", session.Patient).
		Str("fhirUser", session.FHIRUser).
		Msg("SMART authorization completed")
	return session, nil
}

// Cleanup removes pending authorizations whose callback did not arrive in time and returns how many were removed.
func (l *Launcher) Cleanup() int {
	return l.pending.cleanup()
}

func (l *Launcher) issuerAllowed(iss string) bool {
	if len(l.config.AllowedIssuers) == 0 {
		return true
	}
	return slices.ContainsFunc(l.config.AllowedIssuers, func(allowed string) bool {
		return strings.TrimSuffix(allowed, "/") == strings.TrimSuffix(iss, "/")
	})
}

// fhirUser returns the fhirUser claim of the token's id_token. The claims are not verified,
// they are only used for display and logging.
func fhirUser(token *oauth2.Token) string {
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return ""
	}
	user, _ := claims["fhirUser"].(string)
	return user
}
