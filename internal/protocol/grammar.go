package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldKind is the type of a captured command field
type FieldKind int

// Field kinds
const (
	IntField FieldKind = iota
	FloatField
	TextField
)

const (
	intPattern   = `([-+]?\d+)`
	floatPattern = `([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)`
	textPattern  = `(.*)`
)

// Template is a compiled command line pattern
type Template struct {
	source string
	re     *regexp.Regexp
	fields []FieldKind
}

// Builder assembles a Template from literal tokens, whitespace and typed
// fields. Patterns are anchored at both ends once EOS is called.
type Builder struct {
	pattern strings.Builder
	fields  []FieldKind
}

// Pattern starts a new template
func Pattern() *Builder {
	b := &Builder{}
	b.pattern.WriteString("^")
	return b
}

// Escape matches a literal token
func (b *Builder) Escape(lit string) *Builder {
	b.pattern.WriteString(regexp.QuoteMeta(lit))
	return b
}

// Optional matches a literal token zero or one time
func (b *Builder) Optional(lit string) *Builder {
	b.pattern.WriteString("(?:" + regexp.QuoteMeta(lit) + ")?")
	return b
}

// Spaces matches any run of whitespace, including none
func (b *Builder) Spaces() *Builder {
	b.pattern.WriteString(`\s*`)
	return b
}

// Int captures a signed decimal integer
func (b *Builder) Int() *Builder {
	return b.capture(intPattern, IntField)
}

// Float captures a signed decimal number with optional exponent
func (b *Builder) Float() *Builder {
	return b.capture(floatPattern, FloatField)
}

// Any captures the rest of the line verbatim
func (b *Builder) Any() *Builder {
	return b.capture(textPattern, TextField)
}

// EOS anchors the end of the line
func (b *Builder) EOS() *Builder {
	b.pattern.WriteString("$")
	return b
}

// Build compiles the template. It panics on a malformed pattern, which can
// only come from a programming error in the command table.
func (b *Builder) Build() *Template {
	src := b.pattern.String()
	return &Template{
		source: src,
		re:     regexp.MustCompile(src),
		fields: append([]FieldKind(nil), b.fields...),
	}
}

func (b *Builder) capture(pattern string, kind FieldKind) *Builder {
	b.pattern.WriteString(pattern)
	b.fields = append(b.fields, kind)
	return b
}

// String returns the regular expression behind the template
func (t *Template) String() string {
	return t.source
}

// Match parses a line against the template. A line that does not fit, or a
// numeric field that does not convert, is reported as no match.
func (t *Template) Match(line string) (Args, bool) {
	groups := t.re.FindStringSubmatch(line)
	if groups == nil {
		return nil, false
	}

	args := make(Args, len(t.fields))
	for i, kind := range t.fields {
		raw := groups[i+1]
		arg := Arg{Kind: kind, Raw: raw}
		switch kind {
		case IntField:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, false
			}
			arg.Int = n
		case FloatField:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, false
			}
			arg.Float = f
		}
		args[i] = arg
	}
	return args, true
}

// Arg is one typed field captured from a command line
type Arg struct {
	Kind  FieldKind
	Raw   string
	Int   int
	Float float64
}

// Args are the captured fields of a matched line, in pattern order
type Args []Arg

// Int returns field i as an integer
func (a Args) Int(i int) int {
	return a[i].Int
}

// Float returns field i as a float
func (a Args) Float(i int) float64 {
	return a[i].Float
}

// Text returns the raw text of field i
func (a Args) Text(i int) string {
	return a[i].Raw
}

func (k FieldKind) String() string {
	switch k {
	case IntField:
		return "int"
	case FloatField:
		return "float"
	case TextField:
		return "text"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}
