package lookup

import (
	"strings"
)

const (
	openMarker    = "${"
	escapedMarker = "$${"
	closeMarker   = "}"
	defaultSep    = ":-"
	prefixSep     = ":"
)

// reference is one parsed ${...} occurrence.
type reference struct {
	raw        string // the full ${...} text, re-emitted when unresolved
	prefix     string
	key        string
	def        string
	hasDefault bool
}

type part struct {
	literal string
	ref     *reference
}

// Template is a value compiled into literal text and variable references.
// It is immutable and safe for concurrent Render calls.
type Template struct {
	source string
	parts  []part
}

// Compile parses s. It never fails: an unterminated ${ is kept as literal
// text and $${ yields a literal ${.
func Compile(s string) *Template {
	t := &Template{source: s}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], escapedMarker) {
			lit.WriteString(openMarker)
			i += len(escapedMarker)
			continue
		}
		if !strings.HasPrefix(s[i:], openMarker) {
			lit.WriteByte(s[i])
			i++
			continue
		}
		end := strings.Index(s[i+len(openMarker):], closeMarker)
		if end < 0 {
			lit.WriteString(s[i:])
			break
		}
		body := s[i+len(openMarker) : i+len(openMarker)+end]
		raw := s[i : i+len(openMarker)+end+len(closeMarker)]
		flush()
		t.parts = append(t.parts, part{ref: parseReference(raw, body)})
		i += len(raw)
	}
	flush()
	return t
}

func parseReference(raw, body string) *reference {
	ref := &reference{raw: raw}
	name := body
	if idx := strings.Index(body, defaultSep); idx >= 0 {
		name = body[:idx]
		ref.def = body[idx+len(defaultSep):]
		ref.hasDefault = true
	}
	if idx := strings.Index(name, prefixSep); idx >= 0 {
		ref.prefix = name[:idx]
		ref.key = name[idx+len(prefixSep):]
	} else {
		ref.key = name
	}
	return ref
}

// HasReferences reports whether the template contains any ${...} reference.
func (t *Template) HasReferences() bool {
	for _, p := range t.parts {
		if p.ref != nil {
			return true
		}
	}
	return false
}

// Literal returns the text with $${ escapes applied and any reference kept
// as written. For a template without references it is the final value.
func (t *Template) Literal() string {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.ref != nil {
			sb.WriteString(p.ref.raw)
			continue
		}
		sb.WriteString(p.literal)
	}
	return sb.String()
}
