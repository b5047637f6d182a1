// Package prompt renders the versioned stage prompts sent to the generator.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/model"
	"github.com/ppiankov/radaudit/internal/schema"
)

// DefaultVersion is the prompt set used when none is configured
const DefaultVersion = "v1"

//go:embed templates
var templateFS embed.FS

// Data holds the values a stage template may reference. Schema is filled by Render.
type Data struct {
	ReportText        string
	ClaimsJSON        string
	FindingsJSON      string
	AlignmentJSON     string
	FlaggedClaimsJSON string
	FlagCountsJSON    string
	OverallScore      int
	Severity          model.Severity
	Schema            string
}

var (
	mu    sync.Mutex
	cache = map[string]*template.Template{}
)

// Render fills the template for task from prompt set version
func Render(version string, task model.Task, data Data) (string, error) {
	if version == "" {
		version = DefaultVersion
	}

	tmpl, err := lookup(version, task)
	if err != nil {
		return "", err
	}

	data.Schema = string(schema.Document(task))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "prompt: render %s/%s", version, task)
	}
	return buf.String(), nil
}

// Versions lists the embedded prompt sets
func Versions() []string {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out
}

func lookup(version string, task model.Task) (*template.Template, error) {
	if !task.Valid() {
		return nil, eris.Errorf("prompt: unknown task %q", task)
	}
	if strings.ContainsAny(version, `/\.`) {
		return nil, eris.Errorf("prompt: invalid version %q", version)
	}

	key := version + "/" + string(task)

	mu.Lock()
	defer mu.Unlock()

	if t, ok := cache[key]; ok {
		return t, nil
	}

	raw, err := templateFS.ReadFile(fmt.Sprintf("templates/%s/%s.md", version, task))
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: no template for %s/%s", version, task)
	}

	t, err := template.New(key).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: parse %s", key)
	}
	cache[key] = t
	return t, nil
}

// JSON renders v as indented JSON for embedding in a prompt
func JSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(data)
}
