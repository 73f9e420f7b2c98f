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

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed page.html
var pageTemplate string

var pageHTML = template.Must(template.New("page").Parse(pageTemplate))

// Page is a Surface that renders to HTML. A new page shows the loading indicator only.
type Page struct {
	visible map[string]bool
	text    map[string]string
}

func NewPage() *Page {
	return &Page{
		visible: map[string]bool{Loading: true, Holder: false},
		text: map[string]string{
			FirstName: "", LastName: "", Gender: "", BirthDate: "", Height: "",
			SystolicBP: "", DiastolicBP: "", LDL: "", HDL: "",
		},
	}
}

// SetVisible toggles one of the Loading and Holder elements; other ids are ignored.
func (p *Page) SetVisible(id string, visible bool) {
	if _, ok := p.visible[id]; ok {
		p.visible[id] = visible
	}
}

// SetText sets the text of a record slot; other ids are ignored.
func (p *Page) SetText(id, text string) {
	if _, ok := p.text[id]; ok {
		p.text[id] = text
	}
}

func (p *Page) Visible(id string) bool {
	return p.visible[id]
}

func (p *Page) Text(id string) string {
	return p.text[id]
}

// Render writes the page as an HTML document.
func (p *Page) Render(w io.Writer) error {
	return pageHTML.Execute(w, struct {
		Visible map[string]bool
		Text    map[string]string
	}{p.visible, p.text})
}
