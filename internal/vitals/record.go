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
	"fmt"
	"slices"
	"strings"

	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// Record is the flat patient summary shown to the user.
// A field is either empty or a formatted quantity like "180 cm".
type Record struct {
	FirstName   string `json:"fname"`
	LastName    string `json:"lname"`
	Gender      string `json:"gender"`
	BirthDate   string `json:"birthdate"`
	Height      string `json:"height"`
	SystolicBP  string `json:"systolicbp"`
	DiastolicBP string `json:"diastolicbp"`
	LDL         string `json:"ldl"`
	HDL         string `json:"hdl"`
}

// Build maps a patient and its observations onto a Record. Fields without data stay empty.
func Build(patient Patient, observations []fhir.Observation) Record {
	byCodes := ByCodes(observations)

	var record Record
	if len(patient.Name) > 0 {
		record.FirstName = strings.Join(patient.Name[0].Given, " ")
		record.LastName = strings.Join(patient.Name[0].Family, " ")
	}
	record.Gender = patient.Gender
	record.BirthDate = patient.BirthDate

	if value, ok := firstQuantity(byCodes(CodeBodyHeight)); ok {
		record.Height = value
	}
	panels := byCodes(CodeBloodPressurePanel)
	if value, ok := bloodPressure(panels, CodeSystolicBP); ok {
		record.SystolicBP = value
	}
	if value, ok := bloodPressure(panels, CodeDiastolicBP); ok {
		record.DiastolicBP = value
	}
	if value, ok := firstQuantity(byCodes(CodeHDL)); ok {
		record.HDL = value
	}
	if value, ok := firstQuantity(byCodes(CodeLDL)); ok {
		record.LDL = value
	}
	return record
}

// ByCodes indexes the observations by the codes of their Observation.code codings.
// The returned lookup yields the observations carrying any of the given codes, in input order.
func ByCodes(observations []fhir.Observation) func(codes ...string) []fhir.Observation {
	index := make(map[string][]int)
	for i, observation := range observations {
		for _, coding := range observation.Code.Coding {
			if coding.Code == nil {
				continue
			}
			positions := index[*coding.Code]
			if len(positions) > 0 && positions[len(positions)-1] == i {
				continue
			}
			index[*coding.Code] = append(positions, i)
		}
	}
	return func(codes ...string) []fhir.Observation {
		var positions []int
		for _, code := range codes {
			positions = append(positions, index[code]...)
		}
		slices.Sort(positions)
		positions = slices.Compact(positions)
		result := make([]fhir.Observation, 0, len(positions))
		for _, i := range positions {
			result = append(result, observations[i])
		}
		return result
	}
}

// firstQuantity formats the quantity of the first observation, if any.
func firstQuantity(observations []fhir.Observation) (string, bool) {
	if len(observations) == 0 {
		return "", false
	}
	return formatQuantity(observations[0].ValueQuantity)
}

// bloodPressure looks up the component with the given code in the first panel that has one.
func bloodPressure(panels []fhir.Observation, code string) (string, bool) {
	for _, panel := range panels {
		for _, component := range panel.Component {
			if hasCode(component.Code, code) {
				return formatQuantity(component.ValueQuantity)
			}
		}
	}
	return "", false
}

func hasCode(concept fhir.CodeableConcept, code string) bool {
	for _, coding := range concept.Coding {
		if coding.Code != nil && *coding.Code == code {
			return true
		}
	}
	return false
}

func formatQuantity(quantity *fhir.Quantity) (string, bool) {
	if quantity == nil || quantity.Value == nil {
		return "", false
	}
	value := fmt.Sprint(*quantity.Value)
	if quantity.Unit == nil || *quantity.Unit == "" {
		return value, true
	}
	return value + " " + *quantity.Unit, true
}
