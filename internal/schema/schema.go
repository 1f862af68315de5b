// Package schema validates decoded request payloads against declarative rule
// sets. A Schema is data, not code: an ordered list of fields, each with its
// normalizers and checks, plus cross-field refinements. Validation is pure
// and returns a sanitized copy of the input; running a schema over its own
// output yields the same result.
package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Code classifies a validation failure. Values follow the issue codes API
// clients already know from the web stack.
type Code string

const (
	CodeInvalidType   Code = "invalid_type"
	CodeTooSmall      Code = "too_small"
	CodeTooBig        Code = "too_big"
	CodeInvalidString Code = "invalid_string"
	CodeCustom        Code = "custom"
)

// FieldError is one validation failure, addressed to a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

// Kind is the expected JSON type of a field.
type Kind int

const (
	KindString Kind = iota
	KindBool
)

// Normalizer rewrites a string value before checks run (trim, lowercase).
type Normalizer func(string) string

// Check tests a normalized value. Ok returns true when the value passes.
type Check struct {
	Code    Code
	Message string
	Ok      func(v any) bool
}

// Field describes one key of the payload. Checks run in order; the first
// failure is reported and later checks for the same field are skipped.
type Field struct {
	Name      string
	Kind      Kind
	Optional  bool
	Default   any
	Normalize []Normalizer
	Checks    []Check
}

// Refinement is a cross-field rule. It only runs once every field of the
// schema has passed, and its failure is reported on Path.
type Refinement struct {
	Path    string
	Message string
	Ok      func(data map[string]any) bool
}

// Schema is a named, ordered rule set for one payload shape.
type Schema struct {
	Name        string
	Fields      []Field
	Refinements []Refinement
}

// Validate checks in against the schema. It returns the sanitized payload
// (normalized values, defaults filled, unknown keys dropped) and any
// failures. The sanitized map is valid only when the failure list is empty.
func (s Schema) Validate(in map[string]any) (map[string]any, []FieldError) {
	out := make(map[string]any, len(s.Fields))
	var issues []FieldError

	for _, f := range s.Fields {
		v, present := in[f.Name]
		if !present {
			if f.Optional {
				if f.Default != nil {
					out[f.Name] = f.Default
				}
				continue
			}
			issues = append(issues, FieldError{f.Name, "Required", CodeInvalidType})
			continue
		}

		switch f.Kind {
		case KindString:
			str, ok := v.(string)
			if !ok {
				issues = append(issues, typeIssue(f.Name, "string", v))
				continue
			}
			for _, n := range f.Normalize {
				str = n(str)
			}
			out[f.Name] = str
			if issue := runChecks(f, str); issue != nil {
				issues = append(issues, *issue)
			}
		case KindBool:
			b, ok := v.(bool)
			if !ok {
				issues = append(issues, typeIssue(f.Name, "boolean", v))
				continue
			}
			out[f.Name] = b
			if issue := runChecks(f, b); issue != nil {
				issues = append(issues, *issue)
			}
		}
	}

	if len(issues) > 0 {
		return out, issues
	}
	for _, r := range s.Refinements {
		if !r.Ok(out) {
			issues = append(issues, FieldError{r.Path, r.Message, CodeCustom})
		}
	}
	return out, issues
}

func runChecks(f Field, v any) *FieldError {
	for _, c := range f.Checks {
		if !c.Ok(v) {
			return &FieldError{f.Name, c.Message, c.Code}
		}
	}
	return nil
}

func typeIssue(field, want string, got any) FieldError {
	return FieldError{
		Field:   field,
		Message: fmt.Sprintf("Expected %s, received %s", want, typeName(got)),
		Code:    CodeInvalidType,
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Normalizers.

func TrimSpace(s string) string { return strings.TrimSpace(s) }
func Lower(s string) string     { return strings.ToLower(s) }

// Check constructors.

func MinLen(n int, msg string) Check {
	return Check{CodeTooSmall, msg, func(v any) bool {
		s, _ := v.(string)
		return len(s) >= n
	}}
}

func MaxLen(n int, msg string) Check {
	return Check{CodeTooBig, msg, func(v any) bool {
		s, _ := v.(string)
		return len(s) <= n
	}}
}

func Match(re *regexp.Regexp, msg string) Check {
	return Check{CodeInvalidString, msg, func(v any) bool {
		s, _ := v.(string)
		return re.MatchString(s)
	}}
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func Email(msg string) Check {
	return Check{CodeInvalidString, msg, func(v any) bool {
		s, _ := v.(string)
		return emailRe.MatchString(s)
	}}
}

// PasswordStrength requires at least one lowercase letter, one uppercase
// letter, and one digit.
func PasswordStrength(msg string) Check {
	return Check{CodeInvalidString, msg, func(v any) bool {
		s, _ := v.(string)
		var lower, upper, digit bool
		for _, r := range s {
			switch {
			case unicode.IsLower(r):
				lower = true
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		return lower && upper && digit
	}}
}

// IsTrue requires a boolean field to be literally true.
func IsTrue(msg string) Check {
	return Check{CodeCustom, msg, func(v any) bool {
		b, _ := v.(bool)
		return b
	}}
}
