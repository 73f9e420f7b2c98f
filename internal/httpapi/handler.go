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

package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/SanteonNL/smart-vitals/internal/fhirclient"
	"github.com/SanteonNL/smart-vitals/internal/render"
	"github.com/SanteonNL/smart-vitals/internal/smart"
	"github.com/SanteonNL/smart-vitals/internal/vitals"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SessionCookie holds the ID of the SMART session of the browser.
const SessionCookie = "smart_session"

type Launcher interface {
	Authorize(ctx context.Context, iss string, launch string) (string, error)
	Complete(ctx context.Context, state string, code string) (*smart.Session, error)
}

type Sessions interface {
	Get(id string) (*smart.Session, error)
}

type Handler struct {
	launcher     Launcher
	sessions     Sessions
	extractor    *vitals.Extractor
	cookieSecure bool
	logger       zerolog.Logger
}

func NewHandler(launcher Launcher, sessions Sessions, extractor *vitals.Extractor, cookieSecure bool, logger zerolog.Logger) *Handler {
	return &Handler{
		launcher:     launcher,
		sessions:     sessions,
		extractor:    extractor,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/launch", h.Launch)
	e.GET("/callback", h.Callback)
	e.GET("/", h.Index)
	e.GET("/api/record", h.GetRecord)
	e.GET("/healthz", h.Health)
}

// Launch handles GET /launch?iss=...&launch=..., the SMART launch URL.
func (h *Handler) Launch(c echo.Context) error {
	redirectURL, err := h.launcher.Authorize(c.Request().Context(), c.QueryParam("iss"), c.QueryParam("launch"))
	if errors.Is(err, smart.ErrIssuerNotAllowed) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	} else if err != nil {
		h.logger.Warn().Err(err).Msg("SMART launch failed")
		return echo.NewHTTPError(http.StatusBadGateway, "SMART launch failed")
	}
	return c.Redirect(http.StatusFound, redirectURL)
}

// Callback handles the redirect of the authorization server.
func (h *Handler) Callback(c echo.Context) error {
	if authErr := c.QueryParam("error"); authErr != "" {
		h.logger.Warn().
			Str("error", authErr).
			Str("description", c.QueryParam("error_description")).
			Msg("Authorization denied")
		return echo.NewHTTPError(http.StatusUnauthorized, "authorization denied: "+authErr)
	}
	session, err := h.launcher.Complete(c.Request().Context(), c.QueryParam("state"), c.QueryParam("code"))
	if errors.Is(err, smart.ErrUnknownState) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	} else if err != nil {
		h.logger.Warn().Err(err).Msg("SMART authorization failed")
		return echo.NewHTTPError(http.StatusBadGateway, "SMART authorization failed")
	}
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, "/")
}

// Index serves the page. It stays in its loading state when there is no session (401)
// or the record could not be extracted (502).
func (h *Handler) Index(c echo.Context) error {
	page := render.NewPage()
	status := http.StatusOK
	if session, err := h.session(c); err != nil {
		status = http.StatusUnauthorized
	} else if record, err := h.extractor.Extract(c.Request().Context(), ready(session)); err != nil {
		status = http.StatusBadGateway
	} else {
		render.Draw(page, record)
	}
	buf := new(bytes.Buffer)
	if err := page.Render(buf); err != nil {
		return err
	}
	return c.HTMLBlob(status, buf.Bytes())
}

func (h *Handler) GetRecord(c echo.Context) error {
	session, err := h.session(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": err.Error()})
	}
	record, err := h.extractor.Extract(c.Request().Context(), ready(session))
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, record)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// session resolves the session of the request's session cookie. FHIR requests made through it
// carry the request ID.
func (h *Handler) session(c echo.Context) (vitals.Session, error) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil {
		return nil, smart.ErrSessionNotFound
	}
	session, err := h.sessions.Get(cookie.Value)
	if err != nil {
		return nil, err
	}
	rid, _ := c.Get(requestIDKey).(string)
	if rid == "" {
		return session, nil
	}
	return tracedSession{
		Session: session,
		headers: http.Header{RequestIDHeader: []string{rid}},
	}, nil
}

func ready(session vitals.Session) vitals.ReadyFunc {
	return func(_ context.Context) (vitals.Session, error) {
		return session, nil
	}
}

// tracedSession adds headers to every FHIR request of the session.
type tracedSession struct {
	*smart.Session
	headers http.Header
}

func (s tracedSession) ReadWithContext(ctx context.Context, path string, target any, opts ...fhirclient.Option) error {
	return s.Session.ReadWithContext(ctx, path, target, append(opts, fhirclient.RequestHeaders(s.headers))...)
}

func (s tracedSession) SearchAllWithContext(ctx context.Context, resourceType string, query url.Values, target any, opts ...fhirclient.Option) error {
	return s.Session.SearchAllWithContext(ctx, resourceType, query, target, append(opts, fhirclient.RequestHeaders(s.headers))...)
}
