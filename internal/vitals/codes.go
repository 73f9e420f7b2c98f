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
	"net/url"
	"strings"
)

const LoincSystem = "http://loinc.org"

// LOINC codes of the measurements that make up a Record.
const (
	CodeBodyHeight         = "8302-2"
	CodeDiastolicBP        = "8462-4"
	CodeSystolicBP         = "8480-6"
	CodeHDL                = "2085-9"
	CodeLDL                = "2089-1"
	CodeBloodPressurePanel = "55284-4"
)

// ClinicalCode identifies a measurement type by code system and code.
type ClinicalCode struct {
	System string
	Code   string
}

// Token returns the FHIR search token form "system|code".
func (c ClinicalCode) Token() string {
	return c.System + "|" + c.Code
}

var clinicalCodeSet = [...]ClinicalCode{
	{System: LoincSystem, Code: CodeBodyHeight},
	{System: LoincSystem, Code: CodeDiastolicBP},
	{System: LoincSystem, Code: CodeSystolicBP},
	{System: LoincSystem, Code: CodeHDL},
	{System: LoincSystem, Code: CodeLDL},
	{System: LoincSystem, Code: CodeBloodPressurePanel},
}

// ClinicalCodeSet returns the codes of all observations an extraction fetches.
func ClinicalCodeSet() []ClinicalCode {
	return append([]ClinicalCode(nil), clinicalCodeSet[:]...)
}

// CodeFilter returns the value of a code search parameter matching any code of the ClinicalCodeSet.
func CodeFilter() string {
	tokens := make([]string, 0, len(clinicalCodeSet))
	for _, code := range clinicalCodeSet {
		tokens = append(tokens, code.Token())
	}
	return strings.Join(tokens, ",")
}

// ObservationQuery returns the search parameters for the observations of the given patient.
func ObservationQuery(patientID string) url.Values {
	return url.Values{
		"code":    {CodeFilter()},
		"patient": {patientID},
	}
}
