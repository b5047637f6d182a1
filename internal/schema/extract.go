package schema

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// maxBraceCandidates bounds how many opening braces are tried during bracket matching
const maxBraceCandidates = 32

var fencePattern = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_-]*)[^\\n]*\\n(.*?)```")

// ExtractStructured recovers a JSON value from free-form model output.
// Strategies are tried in order:
//  1. the whole text
//  2. fenced code blocks tagged json (or untagged)
//  3. the first balanced {...} substring that parses
//
// The first successful parse wins.
func ExtractStructured(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}

	if v, ok := parse(trimmed); ok {
		return v, true
	}

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if tag != "" && tag != "json" && tag != "json5" && tag != "jsonc" {
			continue
		}
		if v, ok := parse(strings.TrimSpace(m[2])); ok {
			return v, true
		}
	}

	if v, ok := firstBalancedObject(text); ok {
		return v, true
	}

	// Greedy first-to-last brace span, for output with stray braces inside prose
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if v, ok := parse(text[start : end+1]); ok {
			return v, true
		}
	}

	return nil, false
}

func firstBalancedObject(text string) (any, bool) {
	tried := 0
	for offset := 0; offset < len(text) && tried < maxBraceCandidates; {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			return nil, false
		}
		start := offset + idx
		tried++

		if end, ok := matchBrace(text, start); ok {
			if v, ok := parse(text[start : end+1]); ok {
				return v, true
			}
		}
		offset = start + 1
	}
	return nil, false
}

// matchBrace returns the index of the brace closing the one at start.
// Braces inside JSON strings are ignored.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func parse(s string) (any, bool) {
	if !gjson.Valid(s) {
		return nil, false
	}
	v, err := decode([]byte(s))
	if err != nil {
		return nil, false
	}
	return v, true
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
