// Package frontmatter reads the metadata header at the top of a source
// document. Two header forms are accepted: a YAML block delimited by "---"
// lines, and the classic "Key: value" form that ends at the first blank line.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata maps lower-cased header keys to their values. A key may carry
// several values (continuation lines or YAML sequences).
type Metadata map[string][]string

// Get returns the first value stored for key.
func (m Metadata) Get(key string) (string, bool) {
	vals, ok := m[strings.ToLower(key)]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Title returns the document title, or "" when absent.
func (m Metadata) Title() string {
	t, _ := m.Get("title")
	return t
}

// Joined returns all values of key joined with a newline.
func (m Metadata) Joined(key string) string {
	return strings.Join(m[strings.ToLower(key)], "\n")
}

// ErrMissingClosingDelimiter indicates the document started with a YAML
// frontmatter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

var (
	metaLine     = regexp.MustCompile(`^[ ]{0,3}([A-Za-z0-9_-]+):\s*(.*)$`)
	metaMoreLine = regexp.MustCompile(`^(?:[ ]{4,}|\t)(.*)$`)
)

// Extract parses the header of content and returns it together with the body
// that follows it. Content without a recognisable header yields empty
// metadata and the full input as body.
func Extract(content []byte) (Metadata, []byte, error) {
	fm, body, had, err := Split(content)
	if err != nil {
		return nil, nil, err
	}
	if had {
		fields, err := ParseYAML(fm)
		if err != nil {
			return nil, nil, fmt.Errorf("parse yaml header: %w", err)
		}
		return flatten(fields), body, nil
	}
	meta, body := parseMetaHeader(content)
	return meta, body, nil
}

// StripHeader returns content without its metadata header. A malformed YAML
// header is left in place.
func StripHeader(content []byte) []byte {
	_, body, err := Extract(content)
	if err != nil {
		return content
	}
	return body
}

// Split separates YAML frontmatter ("---" delimited) from the body. If the
// document does not start with a delimiter line, had is false and body is
// the full input.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		if bytes.HasSuffix(content, []byte(nl+"---")) {
			return content[start : len(content)-3], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	return content[start : start+idx+len(nl)], content[start+idx+len(closeSeq):], true, nil
}

// ParseYAML parses raw YAML frontmatter (without --- delimiters) into a map.
func ParseYAML(frontmatter []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(frontmatter)) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func flatten(fields map[string]any) Metadata {
	meta := make(Metadata, len(fields))
	for k, v := range fields {
		key := strings.ToLower(k)
		switch x := v.(type) {
		case nil:
			meta[key] = []string{""}
		case []any:
			vals := make([]string, 0, len(x))
			for _, e := range x {
				vals = append(vals, fmt.Sprint(e))
			}
			meta[key] = vals
		default:
			meta[key] = []string{strings.TrimSpace(fmt.Sprint(x))}
		}
	}
	return meta
}

// parseMetaHeader reads "Key: value" lines from the top of content. Lines
// indented by four or more spaces continue the previous key. The header ends
// at the first blank line; a line that is neither form ends it too and stays
// in the body.
func parseMetaHeader(content []byte) (Metadata, []byte) {
	meta := Metadata{}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	rest := text
	key := ""
	for rest != "" {
		line, tail, found := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == "" {
			if key == "" {
				break
			}
			rest = tail
			if !found {
				rest = ""
			}
			break
		}
		if m := metaLine.FindStringSubmatch(line); m != nil {
			key = strings.ToLower(m[1])
			meta[key] = append(meta[key], strings.TrimSpace(m[2]))
		} else if m := metaMoreLine.FindStringSubmatch(line); m != nil && key != "" {
			meta[key] = append(meta[key], strings.TrimSpace(m[1]))
		} else {
			break
		}
		rest = tail
		if !found {
			rest = ""
		}
	}
	if len(meta) == 0 {
		return meta, content
	}
	return meta, []byte(rest)
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
