package view

import (
	"bytes"
	"html/template"
)

// Field is one labelled form input.
type Field interface {
	Render() (template.HTML, error)
}

// FileInput is never bound to a value: browsers do not allow a file input to
// be filled programmatically, so a selection only ever arrives as an event.
type FileInput struct {
	ID     string
	Name   string
	Label  string
	Icon   string
	Accept string
}

// TextInput always renders the current value so the field matches state.
type TextInput struct {
	ID    string
	Name  string
	Label string
	Icon  string
	Value string
}

type fieldData struct {
	ID     string
	Name   string
	Type   string
	Label  string
	Icon   string
	Accept string
	Bound  bool
	Value  string
}

var fieldTmpl = template.Must(template.New("field").Parse(
	`<div class="form-group">` +
		`<label for="{{.ID}}" class="label">{{with .Icon}}<span class="icon">{{.}}</span> {{end}}{{.Label}}:</label>` +
		`<input id="{{.ID}}" name="{{.Name}}" type="{{.Type}}" class="input"` +
		`{{with .Accept}} accept="{{.}}"{{end}}{{if .Bound}} value="{{.Value}}"{{end}}>` +
		`</div>`))

func (f FileInput) Render() (template.HTML, error) {
	return renderField(fieldData{ID: f.ID, Name: f.Name, Type: "file", Label: f.Label, Icon: f.Icon, Accept: f.Accept})
}

func (f TextInput) Render() (template.HTML, error) {
	return renderField(fieldData{ID: f.ID, Name: f.Name, Type: "text", Label: f.Label, Icon: f.Icon, Bound: true, Value: f.Value})
}

func renderField(d fieldData) (template.HTML, error) {
	var buf bytes.Buffer
	if err := fieldTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
