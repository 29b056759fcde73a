// Package markdown parses guide files: front matter in its three on-disk
// formats, and the structural view of the body (headings, links, fences).
package markdown

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned when a file carries no recognisable front matter.
var ErrUnknownFormat = errors.New("unknown front matter format")

// ParseFrontMatter splits a file into front matter, body and format.
// Supported formats: YAML between --- lines, TOML between +++ lines, and a
// whole-file JSON object. The body is trimmed of surrounding whitespace.
func ParseFrontMatter(content []byte) (map[string]interface{}, string, string, error) {
	str := normalizeLineEndings(string(content))

	if fm, body, ok := splitDelimited(str, "---"); ok {
		var parsed map[string]interface{}
		if err := yaml.Unmarshal([]byte(fm), &parsed); err == nil {
			return sanitizeFrontMatter(parsed), strings.TrimSpace(body), "yaml", nil
		}
	}

	if fm, body, ok := splitDelimited(str, "+++"); ok {
		var parsed map[string]interface{}
		if err := toml.Unmarshal([]byte(fm), &parsed); err == nil {
			return sanitizeFrontMatter(parsed), strings.TrimSpace(body), "toml", nil
		}
	}

	if strings.HasPrefix(strings.TrimSpace(str), "{") {
		var parsed map[string]interface{}
		if err := json.Unmarshal(content, &parsed); err == nil {
			return sanitizeFrontMatter(parsed), "", "json", nil
		}
	}

	return nil, "", "", ErrUnknownFormat
}

// splitDelimited extracts the block between an opening delimiter line and the
// next delimiter line. Delimiters must sit alone on their line so horizontal
// rules or values containing the marker never break the split.
func splitDelimited(str, delim string) (string, string, bool) {
	if !strings.HasPrefix(str, delim+"\n") {
		return "", "", false
	}
	rest := str[len(delim)+1:]
	for _, marker := range []string{"\n" + delim + "\n", "\n" + delim} {
		if idx := strings.Index(rest, marker); idx >= 0 {
			tail := rest[idx+len(marker):]
			// Reject matches where the delimiter starts a longer line
			// (e.g. "----"); those belong to the body.
			if marker == "\n"+delim && tail != "" && !strings.HasPrefix(tail, "\n") {
				continue
			}
			return rest[:idx], strings.TrimPrefix(tail, "\n"), true
		}
	}
	return "", "", false
}

// ComposeFile renders front matter and body back into file content in the
// given format. It is the inverse of ParseFrontMatter modulo key order.
func ComposeFile(fm map[string]interface{}, body string, format string) ([]byte, error) {
	normalized := sanitizeFrontMatter(fm)
	if normalized == nil {
		normalized = map[string]interface{}{}
	}

	var buf bytes.Buffer
	switch format {
	case "yaml":
		buf.WriteString("---\n")
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(normalized); err != nil {
			return nil, err
		}
		buf.WriteString("---\n")
	case "toml":
		buf.WriteString("+++\n")
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(normalized); err != nil {
			return nil, err
		}
		buf.WriteString("+++\n")
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(normalized); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// sanitizeFrontMatter normalises decoder-specific map/slice types so callers
// always see map[string]interface{} trees regardless of source format.
func sanitizeFrontMatter(fm map[string]interface{}) map[string]interface{} {
	if fm == nil {
		return nil
	}
	sanitized := make(map[string]interface{}, len(fm))
	for k, v := range fm {
		sanitized[k] = sanitizeValue(v)
	}
	return sanitized
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return sanitizeFrontMatter(v)
	case map[interface{}]interface{}:
		normalized := make(map[string]interface{}, len(v))
		for key, inner := range v {
			normalized[fmt.Sprint(key)] = sanitizeValue(inner)
		}
		return normalized
	case []interface{}:
		slice := make([]interface{}, len(v))
		for i := range v {
			slice[i] = sanitizeValue(v[i])
		}
		return slice
	default:
		return v
	}
}

func normalizeLineEndings(input string) string {
	return strings.ReplaceAll(input, "\r\n", "\n")
}

// HasDelimitedFrontMatter reports whether content opens with a --- or +++
// front matter fence, regardless of whether the block parses.
func HasDelimitedFrontMatter(content []byte) bool {
	str := normalizeLineEndings(string(content))
	return strings.HasPrefix(str, "---\n") || strings.HasPrefix(str, "+++\n")
}

// SplitBody returns the body portion of content together with the number of
// leading lines it sits below (the front matter block, when present). Callers
// that report line numbers scan the returned body and add the offset.
// When the front matter fence is unterminated the whole content is returned
// with offset zero.
func SplitBody(content []byte) ([]byte, int) {
	str := normalizeLineEndings(string(content))

	var delim string
	switch {
	case strings.HasPrefix(str, "---\n"):
		delim = "---"
	case strings.HasPrefix(str, "+++\n"):
		delim = "+++"
	default:
		return []byte(str), 0
	}

	lines := strings.Split(str, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] == delim {
			body := strings.Join(lines[i+1:], "\n")
			return []byte(body), i + 1
		}
	}
	return []byte(str), 0
}

// Title extracts the title front-matter field when it is a plain string.
func Title(fm map[string]interface{}) string {
	if fm == nil {
		return ""
	}
	if t, ok := fm["title"].(string); ok {
		return t
	}
	return ""
}
