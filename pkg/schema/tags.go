package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// tagSpec is a parsed `po` tag: the column name followed by options,
// written as flag, key(value) or key:value.
type tagSpec struct {
	column string
	opts   map[string]string
}

// Column types recognized as tag options, in lookup order.
var sqlTypeOptions = []string{
	"uuid", "varchar", "text", "char",
	"smallint", "integer", "bigint", "serial", "bigserial",
	"numeric", "decimal", "real", "double precision",
	"boolean", "bool",
	"date", "time", "timestamp", "timestamptz", "interval",
	"json", "jsonb", "bytea",
}

func parseTag(tag string) (*tagSpec, error) {
	parts := splitTag(tag)
	if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
		return nil, errors.New("empty tag value")
	}

	spec := &tagSpec{column: parts[0], opts: make(map[string]string, len(parts)-1)}
	for _, part := range parts[1:] {
		key, value, err := splitOption(part)
		if err != nil {
			return nil, err
		}
		spec.opts[key] = value
	}
	return spec, nil
}

func splitOption(part string) (key, value string, err error) {
	if open := strings.IndexByte(part, '('); open >= 0 {
		if !strings.HasSuffix(part, ")") {
			return "", "", fmt.Errorf("unterminated option %q", part)
		}
		return part[:open], part[open+1 : len(part)-1], nil
	}
	if key, value, ok := strings.Cut(part, ":"); ok {
		return key, value, nil
	}
	return part, "", nil
}

func (s *tagSpec) has(key string) bool {
	_, ok := s.opts[key]
	return ok
}

func (s *tagSpec) get(key string) string { return s.opts[key] }

func (s *tagSpec) isRelation() bool {
	return s.has(string(BelongsTo)) || s.has(string(HasMany))
}

// sqlType returns the declared column type, with its modifier if any.
func (s *tagSpec) sqlType() string {
	for _, name := range sqlTypeOptions {
		mod, ok := s.opts[name]
		if !ok {
			continue
		}
		if mod != "" {
			return name + "(" + mod + ")"
		}
		return name
	}
	return ""
}

// splitTag splits on commas outside parentheses.
func splitTag(tag string) []string {
	var (
		parts []string
		start int
		depth int
	)
	for i, ch := range tag {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(tag[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(tag[start:]); rest != "" || len(parts) == 0 {
		parts = append(parts, rest)
	}
	return parts
}

func toSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
