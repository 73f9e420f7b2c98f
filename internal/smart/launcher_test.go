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
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SanteonNL/smart-vitals/internal/fhirclient"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeServer struct {
	*httptest.Server
	discoveryStatus atomic.Int32
	tokenRequests   atomic.Int32

	mux           sync.Mutex
	lastTokenForm url.Values
}

func (s *fakeServer) tokenForm() url.Values {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.lastTokenForm
}

// newFakeServer starts a combined SMART authorization and FHIR server. The FHIR base is <url>/fhir.
func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	srv := &fakeServer{}
	srv.discoveryStatus.Store(http.StatusOK)
	mux := http.NewServeMux()
	mux.HandleFunc("/fhir/.well-known/smart-configuration", func(w http.ResponseWriter, r *http.Request) {
		if status := int(srv.discoveryStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"authorization_endpoint":           srv.URL + "/authorize",
			"token_endpoint":                   srv.URL + "/token",
			"code_challenge_methods_supported": []string{"S256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		srv.tokenRequests.Add(1)
		_ = r.ParseForm()
		srv.mux.Lock()
		srv.lastTokenForm = r.PostForm
		srv.mux.Unlock()
		idToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"fhirUser": "Practitioner/7",
		}).SignedString([]byte("test"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"patient":      "123",
			"id_token":     idToken,
		})
	})
	mux.HandleFunc("/fhir/Patient/123", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"123"}`))
	})
	mux.HandleFunc("POST /fhir/Observation/_search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/fhir+json")
		_, _ = w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[{"resource":{"resourceType":"Observation","id":"1"}}]}`))
	})
	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestLauncher(config Config) *Launcher {
	config.ClientID = "smart-vitals"
	config.RedirectURL = "http://localhost/callback"
	config.Scopes = []string{"launch", "openid", "fhirUser", "patient/*.read"}
	return NewLauncher(config, NewSessionStore(time.Hour), nil, zerolog.Nop())
}

func TestDiscover(t *testing.T) {
	srv := newFakeServer(t)
	t.Run("ok", func(t *testing.T) {
		config, err := Discover(context.Background(), resty.New(), srv.URL+"/fhir/")

		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/authorize", config.AuthorizationEndpoint)
		assert.Equal(t, srv.URL+"/token", config.TokenEndpoint)
		assert.Equal(t, []string{"S256"}, config.CodeChallengeMethodsSupported)
	})
	t.Run("error status", func(t *testing.T) {
		srv.discoveryStatus.Store(http.StatusNotFound)
		defer srv.discoveryStatus.Store(http.StatusOK)

		config, err := Discover(context.Background(), resty.New(), srv.URL+"/fhir")

		assert.EqualError(t, err, "SMART discovery failed ("+srv.URL+"/fhir/.well-known/smart-configuration, status=404)")
		assert.Nil(t, config)
	})
	t.Run("endpoints missing", func(t *testing.T) {
		other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"authorization_endpoint":"http://example.com/authorize"}`))
		}))
		defer other.Close()

		_, err := Discover(context.Background(), resty.New(), other.URL)

		assert.ErrorContains(t, err, "authorization_endpoint and token_endpoint are required")
	})
}

func TestLauncher_Authorize(t *testing.T) {
	srv := newFakeServer(t)
	iss := srv.URL + "/fhir"
	t.Run("EHR launch", func(t *testing.T) {
		launcher := newTestLauncher(Config{})

		redirect, err := launcher.Authorize(context.Background(), iss, "launch-1")

		require.NoError(t, err)
		redirectURL, err := url.Parse(redirect)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/authorize", redirectURL.Scheme+"://"+redirectURL.Host+redirectURL.Path)
		query := redirectURL.Query()
		assert.Equal(t, "code", query.Get("response_type"))
		assert.Equal(t, "smart-vitals", query.Get("client_id"))
		assert.Equal(t, iss, query.Get("aud"))
		assert.Equal(t, "launch-1", query.Get("launch"))
		assert.Equal(t, "S256", query.Get("code_challenge_method"))
		assert.NotEmpty(t, query.Get("code_challenge"))
		assert.NotEmpty(t, query.Get("state"))
		assert.Equal(t, "launch openid fhirUser patient/*.read", query.Get("scope"))
	})
	t.Run("standalone launch uses default issuer", func(t *testing.T) {
		launcher := newTestLauncher(Config{DefaultIssuer: iss})

		redirect, err := launcher.Authorize(context.Background(), "", "")

		require.NoError(t, err)
		redirectURL, _ := url.Parse(redirect)
		assert.Equal(t, iss, redirectURL.Query().Get("aud"))
		assert.False(t, redirectURL.Query().Has("launch"))
	})
	t.Run("no issuer", func(t *testing.T) {
		launcher := newTestLauncher(Config{})

		_, err := launcher.Authorize(context.Background(), "", "")

		assert.EqualError(t, err, "no FHIR server (iss) given and no default configured")
	})
	t.Run("issuer not allowed", func(t *testing.T) {
		launcher := newTestLauncher(Config{AllowedIssuers: []string{"https://ehr.example.com/fhir"}})

		_, err := launcher.Authorize(context.Background(), iss, "")

		assert.ErrorIs(t, err, ErrIssuerNotAllowed)
	})
	t.Run("issuer allowed ignoring trailing slash", func(t *testing.T) {
		launcher := newTestLauncher(Config{AllowedIssuers: []string{iss + "/"}})

		_, err := launcher.Authorize(context.Background(), iss, "")

		assert.NoError(t, err)
	})
	t.Run("discovery fails", func(t *testing.T) {
		srv.discoveryStatus.Store(http.StatusInternalServerError)
		defer srv.discoveryStatus.Store(http.StatusOK)
		launcher := newTestLauncher(Config{})

		_, err := launcher.Authorize(context.Background(), iss, "")

		assert.ErrorContains(t, err, "status=500")
	})
}

func TestLauncher_Complete(t *testing.T) {
	srv := newFakeServer(t)
	iss := srv.URL + "/fhir"
	authorize := func(t *testing.T, launcher *Launcher) string {
		redirect, err := launcher.Authorize(context.Background(), iss, "launch-1")
		require.NoError(t, err)
		redirectURL, err := url.Parse(redirect)
		require.NoError(t, err)
		return redirectURL.Query().Get("state")
	}
	t.Run("round trip", func(t *testing.T) {
		launcher := newTestLauncher(Config{})
		state := authorize(t, launcher)

		session, err := launcher.Complete(context.Background(), state, "auth-code")

		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, iss, session.Issuer)
		assert.Equal(t, "123", session.PatientID())
		assert.Equal(t, "Practitioner/7", session.FHIRUser)
		assert.Equal(t, "auth-code", srv.tokenForm().Get("code"))
		assert.Equal(t, "smart-vitals", srv.tokenForm().Get("client_id"))
		assert.NotEmpty(t, srv.tokenForm().Get("code_verifier"))
		t.Run("session is stored", func(t *testing.T) {
			stored, err := launcher.sessions.Get(session.ID)
			require.NoError(t, err)
			assert.Same(t, session, stored)
		})
		t.Run("session carries the token", func(t *testing.T) {
			var patient map[string]any
			err := session.ReadWithContext(context.Background(), "Patient/123", &patient)
			require.NoError(t, err)
			assert.Equal(t, "123", patient["id"])
		})
	})
	t.Run("session searches with POST when configured", func(t *testing.T) {
		launcher := newTestLauncher(Config{UsePostSearch: true})
		state := authorize(t, launcher)
		session, err := launcher.Complete(context.Background(), state, "auth-code")
		require.NoError(t, err)
		var observations []map[string]any

		err = session.SearchAllWithContext(context.Background(), "Observation", url.Values{"patient": {"123"}}, &observations, fhirclient.Flat())

		require.NoError(t, err)
		require.Len(t, observations, 1)
		assert.Equal(t, "1", observations[0]["id"])
	})
	t.Run("state can only be used once", func(t *testing.T) {
		launcher := newTestLauncher(Config{})
		state := authorize(t, launcher)
		_, err := launcher.Complete(context.Background(), state, "auth-code")
		require.NoError(t, err)
		requests := srv.tokenRequests.Load()

		_, err = launcher.Complete(context.Background(), state, "auth-code")

		assert.ErrorIs(t, err, ErrUnknownState)
		assert.Equal(t, requests, srv.tokenRequests.Load())
	})
	t.Run("unknown state", func(t *testing.T) {
		launcher := newTestLauncher(Config{})

		_, err := launcher.Complete(context.Background(), "unknown", "auth-code")

		assert.ErrorIs(t, err, ErrUnknownState)
	})
}

func TestLauncher_Cleanup(t *testing.T) {
	srv := newFakeServer(t)
	launcher := newTestLauncher(Config{})
	redirect, err := launcher.Authorize(context.Background(), srv.URL+"/fhir", "")
	require.NoError(t, err)
	redirectURL, _ := url.Parse(redirect)
	state := redirectURL.Query().Get("state")
	t.Run("pending authorization within TTL is kept", func(t *testing.T) {
		assert.Equal(t, 0, launcher.Cleanup())
		assert.Len(t, launcher.pending.entries, 1)
	})
	t.Run("expired pending authorization is removed", func(t *testing.T) {
		launcher.pending.now = func() time.Time { return time.Now().Add(PendingAuthorizationTTL + time.Minute) }

		removed := launcher.Cleanup()

		assert.Equal(t, 1, removed)
		assert.Empty(t, launcher.pending.entries)
		_, err := launcher.Complete(context.Background(), state, "auth-code")
		assert.ErrorIs(t, err, ErrUnknownState)
	})
}

func TestFhirUser(t *testing.T) {
	t.Run("no id_token", func(t *testing.T) {
		assert.Empty(t, fhirUser(&oauth2.Token{AccessToken: "a"}))
	})
	t.Run("malformed id_token", func(t *testing.T) {
		token := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{"id_token": "not-a-jwt"})
		assert.Empty(t, fhirUser(token))
	})
}
