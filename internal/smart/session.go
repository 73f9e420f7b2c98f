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
	"net/url"
	"time"

	"github.com/SanteonNL/smart-vitals/internal/fhirclient"
)

var ErrSessionNotFound = errors.New("SMART session not found or expired")

// Session is an authorized connection to a FHIR server, created by a completed launch.
type Session struct {
	ID       string
	Issuer   string
	Patient  string
	FHIRUser string
	client   fhirclient.Client
}

// NewSession creates a session for the given issuer and patient that performs its requests with client.
func NewSession(id, issuer, patient string, client fhirclient.Client) *Session {
	return &Session{
		ID:      id,
		Issuer:  issuer,
		Patient: patient,
		client:  client,
	}
}

func (s *Session) PatientID() string {
	return s.Patient
}

func (s *Session) ReadWithContext(ctx context.Context, path string, target any, opts ...fhirclient.Option) error {
	return s.client.ReadWithContext(ctx, path, target, opts...)
}

func (s *Session) SearchAllWithContext(ctx context.Context, resourceType string, query url.Values, target any, opts ...fhirclient.Option) error {
	return s.client.SearchAllWithContext(ctx, resourceType, query, target, opts...)
}

// SessionStore keeps sessions in memory until they expire.
type SessionStore struct {
	store *ttlStore[*Session]
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{store: newTTLStore[*Session](ttl)}
}

func (s *SessionStore) Put(session *Session) {
	s.store.put(session.ID, session)
}

// Get returns the session with the given ID, or ErrSessionNotFound if it does not exist or expired.
func (s *SessionStore) Get(id string) (*Session, error) {
	session, ok := s.store.get(id, false)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Delete(id string) {
	s.store.delete(id)
}

func (s *SessionStore) Cleanup() int {
	return s.store.cleanup()
}
