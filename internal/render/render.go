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

package render

import "github.com/SanteonNL/smart-vitals/internal/vitals"

// Element ids of the page.
const (
	Loading = "loading"
	Holder  = "holder"

	FirstName   = "fname"
	LastName    = "lname"
	Gender      = "gender"
	BirthDate   = "birthdate"
	Height      = "height"
	SystolicBP  = "systolicbp"
	DiastolicBP = "diastolicbp"
	LDL         = "ldl"
	HDL         = "hdl"
)

// Surface is where a Record is drawn: elements that can be shown or hidden and text slots.
type Surface interface {
	SetVisible(id string, visible bool)
	SetText(id, text string)
}

// Draw hides the loading indicator, shows the results and writes every field of the record into its slot.
func Draw(surface Surface, record vitals.Record) {
	surface.SetVisible(Holder, true)
	surface.SetVisible(Loading, false)
	surface.SetText(FirstName, record.FirstName)
	surface.SetText(LastName, record.LastName)
	surface.SetText(Gender, record.Gender)
	surface.SetText(BirthDate, record.BirthDate)
	surface.SetText(Height, record.Height)
	surface.SetText(SystolicBP, record.SystolicBP)
	surface.SetText(DiastolicBP, record.DiastolicBP)
	surface.SetText(LDL, record.LDL)
	surface.SetText(HDL, record.HDL)
}
