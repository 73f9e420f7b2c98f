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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SanteonNL/smart-vitals/internal/config"
	"github.com/SanteonNL/smart-vitals/internal/fhirclient"
	"github.com/SanteonNL/smart-vitals/internal/httpapi"
	"github.com/SanteonNL/smart-vitals/internal/smart"
	"github.com/SanteonNL/smart-vitals/internal/vitals"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smart-vitals",
		Short: "SMART on FHIR patient vitals summary",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(extractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the SMART app server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the patient record with a bearer token and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			fhirBase, _ := cmd.Flags().GetString("fhir-base")
			patient, _ := cmd.Flags().GetString("patient")
			token, _ := cmd.Flags().GetString("token")
			postSearch, _ := cmd.Flags().GetBool("post-search")
			logger := newLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"), os.Stderr)
			return runExtract(cmd.Context(), fhirBase, patient, token, postSearch, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().String("fhir-base", "", "FHIR server base URL")
	cmd.Flags().String("patient", "", "Patient ID")
	cmd.Flags().String("token", "", "OAuth2 bearer token")
	cmd.Flags().Bool("post-search", false, "Search with POST [type]/_search")
	_ = cmd.MarkFlagRequired("fhir-base")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func newLogger(env string, level string, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if env == "" || env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(parsed)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		newLogger(os.Getenv("ENV"), "", os.Stdout).Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env, cfg.LogLevel, os.Stdout)

	sessions := smart.NewSessionStore(cfg.SessionTTL)
	launcher := smart.NewLauncher(smart.Config{
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		RedirectURL:     cfg.RedirectURL,
		Scopes:          cfg.ScopeList(),
		DefaultIssuer:   cfg.DefaultIssuer,
		AllowedIssuers:  cfg.AllowedIssuerList(),
		MaxResponseSize: cfg.FHIRMaxResponseSize,
		UsePostSearch:   cfg.FHIRPostSearch,
	}, sessions, &http.Client{Timeout: 30 * time.Second}, logger)
	handler := httpapi.NewHandler(launcher, sessions, vitals.NewExtractor(logger), cfg.CookieSecure, logger)
	e := httpapi.NewServer(handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cleanup(ctx, sessions, launcher, cfg.SessionTTL, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// cleanup periodically evicts expired sessions and pending authorizations.
func cleanup(ctx context.Context, sessions *smart.SessionStore, launcher *smart.Launcher, interval time.Duration, logger zerolog.Logger) {
	if interval > smart.PendingAuthorizationTTL {
		interval = smart.PendingAuthorizationTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sessions.Cleanup(); removed > 0 {
				logger.Debug().Int("removed", removed).Msg("expired sessions removed")
			}
			if removed := launcher.Cleanup(); removed > 0 {
				logger.Debug().Int("removed", removed).Msg("expired pending authorizations removed")
			}
		}
	}
}

func runExtract(ctx context.Context, fhirBase, patient, token string, postSearch bool, out io.Writer, logger zerolog.Logger) error {
	fhirBaseURL, err := url.Parse(fhirBase)
	if err != nil {
		return fmt.Errorf("invalid FHIR base URL: %w", err)
	}
	httpClient := http.DefaultClient
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	session := smart.NewSession(uuid.NewString(), fhirBase, patient, fhirclient.New(fhirBaseURL, httpClient, &fhirclient.Config{UsePostSearch: postSearch}))
	record, err := vitals.NewExtractor(logger).Extract(ctx, func(context.Context) (vitals.Session, error) {
		return session, nil
	})
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(record)
}
