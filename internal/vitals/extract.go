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

package vitals

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/SanteonNL/smart-vitals/internal/fhirclient"
	"github.com/rs/zerolog"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"golang.org/x/sync/errgroup"
)

// ErrExtractionFailed is returned by Extract for every failure; the cause is only logged.
var ErrExtractionFailed = errors.New("extraction did not complete")

var errNoPatient = errors.New("no patient in session context")

// Session is an authorized connection to a FHIR server, launched for a patient.
type Session interface {
	// PatientID returns the ID of the patient in context, or an empty string if the launch carried none.
	PatientID() string
	ReadWithContext(ctx context.Context, path string, target any, opts ...fhirclient.Option) error
	SearchAllWithContext(ctx context.Context, resourceType string, query url.Values, target any, opts ...fhirclient.Option) error
}

// ReadyFunc blocks until the authorization completed and returns the resulting session.
type ReadyFunc func(ctx context.Context) (Session, error)

type Extractor struct {
	logger zerolog.Logger
}

func NewExtractor(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract waits for the session, fetches the patient and its observations concurrently and builds the Record.
func (e *Extractor) Extract(ctx context.Context, ready ReadyFunc) (Record, error) {
	record, err := e.extract(ctx, ready)
	if err != nil {
		e.logger.Error().Err(err).Msg("Loading error")
		return Record{}, ErrExtractionFailed
	}
	return record, nil
}

func (e *Extractor) extract(ctx context.Context, ready ReadyFunc) (Record, error) {
	session, err := ready(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("session not ready: %w", err)
	}
	if session == nil {
		return Record{}, errors.New("session not ready")
	}
	patientID := session.PatientID()
	if patientID == "" {
		return Record{}, errNoPatient
	}

	var patient Patient
	var observations []fhir.Observation
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := session.ReadWithContext(egCtx, "Patient/"+patientID, &patient); err != nil {
			return fmt.Errorf("read Patient/%s: %w", patientID, err)
		}
		return nil
	})
	eg.Go(func() error {
		err := session.SearchAllWithContext(egCtx, "Observation", ObservationQuery(patientID), &observations,
			fhirclient.Graph("Observation:has-member"), fhirclient.PageLimit(0), fhirclient.Flat())
		if err != nil {
			return fmt.Errorf("search Observation for patient %s: %w", patientID, err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Record{}, err
	}

	e.logger.Debug().
		Str("patient", patientID).
		Int("observations", len(observations)).
		Msg("Extracted patient record")
	return Build(patient, observations), nil
}
