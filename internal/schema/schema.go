// Package schema validates and recovers structured model output.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/radaudit/internal/model"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	compiled   = make(map[model.Task]*jsonschema.Schema)
	compileErr = make(map[model.Task]error)
	compileMu  sync.Mutex
)

// Document returns the raw JSON Schema text for task, or nil for an unknown task
func Document(task model.Task) []byte {
	data, err := schemaFS.ReadFile(fileName(task))
	if err != nil {
		return nil
	}
	return data
}

// Validate checks data against the schema for task.
// It returns an empty slice iff data conforms. It never panics.
func Validate(data any, task model.Task) []string {
	sch, err := compiledFor(task)
	if err != nil {
		return []string{fmt.Sprintf("schema error: %v", err)}
	}
	return validateWith(sch, data)
}

// ValidateAgainst checks data against an arbitrary schema document
func ValidateAgainst(data any, doc []byte) []string {
	sch, err := compile("inline.schema.json", doc)
	if err != nil {
		return []string{fmt.Sprintf("schema error: %v", err)}
	}
	return validateWith(sch, data)
}

func validateWith(sch *jsonschema.Schema, data any) (errs []string) {
	defer func() {
		if r := recover(); r != nil {
			errs = []string{fmt.Sprintf("validation panic: %v", r)}
		}
	}()

	value, err := normalize(data)
	if err != nil {
		return []string{fmt.Sprintf("value is not JSON-representable: %v", err)}
	}

	err = sch.Validate(value)
	if err == nil {
		return []string{}
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}

	leaves := flatten(ve)
	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i] < leaves[j] })
	return dedupe(leaves)
}

func compiledFor(task model.Task) (*jsonschema.Schema, error) {
	compileMu.Lock()
	defer compileMu.Unlock()

	if sch, ok := compiled[task]; ok {
		return sch, nil
	}
	if err, ok := compileErr[task]; ok {
		return nil, err
	}

	doc := Document(task)
	if doc == nil {
		err := fmt.Errorf("no schema for task %q", task)
		compileErr[task] = err
		return nil, err
	}

	sch, err := compile(fileName(task), doc)
	if err != nil {
		compileErr[task] = err
		return nil, err
	}
	compiled[task] = sch
	return sch, nil
}

func compile(name string, doc []byte) (*jsonschema.Schema, error) {
	url := "mem://radaudit/" + name
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

func fileName(task model.Task) string {
	return "schemas/" + string(task) + ".schema.json"
}

// normalize converts data into the generic tree the validator expects
func normalize(data any) (any, error) {
	switch data.(type) {
	case nil, bool, string, float64, json.Number, map[string]any, []any:
		return data, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// flatten collects leaf causes as "location: message" strings
func flatten(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}

	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if len(out) > 0 && s == out[len(out)-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
