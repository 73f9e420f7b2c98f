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
	"encoding/json"
	"fmt"
)

// Patient is the part of a FHIR Patient resource a Record is built from.
// Gender and birth date are kept as sent by the server, without validation.
type Patient struct {
	ID        string      `json:"id,omitempty"`
	Gender    string      `json:"gender,omitempty"`
	BirthDate string      `json:"birthDate,omitempty"`
	Name      []HumanName `json:"name,omitempty"`
}

type HumanName struct {
	Given  []string  `json:"given,omitempty"`
	Family NameParts `json:"family,omitempty"`
}

// NameParts holds a family name. R4 servers send it as a string, DSTU2 servers as a list.
type NameParts []string

func (p *NameParts) UnmarshalJSON(data []byte) error {
	var single *string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = nil
		if single != nil && *single != "" {
			*p = NameParts{*single}
		}
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("invalid family name: %w", err)
	}
	*p = parts
	return nil
}
