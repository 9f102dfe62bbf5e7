package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type page struct {
	Title      string
	Fields     []template.HTML
	State      Snapshot
	PollMillis int64
}

// Render writes the full screen for s. The embedded script polls /state every
// poll interval to advance the reveal.
func Render(w io.Writer, s Snapshot, poll time.Duration) error {
	fields, err := renderFields(
		FileInput{
			ID:     "file-input",
			Name:   "pdf",
			Label:  "Choose a file",
			Icon:   "\U0001F4C4",
			Accept: "application/pdf,.pdf",
		},
		TextInput{
			ID:    "city-input",
			Name:  "city",
			Label: "What to extract?",
			Value: s.City,
		},
	)
	if err != nil {
		return err
	}

	ms := poll.Milliseconds()
	if ms <= 0 {
		ms = 50
	}
	return pageTmpl.Execute(w, page{
		Title:      "Understand your PDF",
		Fields:     fields,
		State:      s,
		PollMillis: ms,
	})
}

func renderFields(fields ...Field) ([]template.HTML, error) {
	out := make([]template.HTML, 0, len(fields))
	for i, f := range fields {
		h, err := f.Render()
		if err != nil {
			return nil, fmt.Errorf("render field %d: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}
