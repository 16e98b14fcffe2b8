// Package validation collects field-level input violations.
//
// Static rules live in `validate` struct tags and are checked by
// go-playground/validator; failures are reported under the field's JSON name
// with a short machine-readable reason. Rules that depend on stored data
// (a score bounded by its assessment, say) are added by the caller.
package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ErrInvalid is matched by every *Error.
var ErrInvalid = errors.New("invalid input")

// Violations maps a field name to a short machine-readable reason.
type Violations map[string]string

// Empty reports whether no violation was recorded.
func (v Violations) Empty() bool { return len(v) == 0 }

// Add records reason for field unless the field already has one.
func (v Violations) Add(field, reason string) {
	if _, ok := v[field]; ok {
		return
	}
	v[field] = reason
}

// Err returns nil when there are no violations.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &Error{Fields: v}
}

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

func validate() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New(validator.WithRequiredStructEnabled())
		engine.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			switch name {
			case "-":
				return ""
			case "":
				return f.Name
			}
			return name
		})
		if err := engine.RegisterValidation("notblank", validators.NotBlank); err != nil {
			panic(err)
		}
	})
	return engine
}

// Check runs the `validate` tags of s and adds one reason per failing field
// to v. The returned error is non-nil only when s cannot be validated at all.
func Check(s any, v Violations) error {
	err := validate().Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	for _, fe := range fields {
		v.Add(fe.Field(), reason(fe.Tag()))
	}
	return nil
}

func reason(tag string) string {
	switch tag {
	case "required", "notblank":
		return "required"
	case "max":
		return "too_long"
	case "email":
		return "invalid_email"
	case "gt":
		return "must_be_positive"
	case "gte", "lte", "min":
		return "out_of_range"
	}
	return "invalid"
}

// Range records out_of_range when val lies outside [minVal, maxVal].
func Range(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v.Add(field, "out_of_range")
	}
}

// Error carries violations and matches ErrInvalid via errors.Is.
type Error struct {
	Fields Violations
}

func (e *Error) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(ErrInvalid.Error())
	for i, k := range keys {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte(' ')
		b.WriteString(e.Fields[k])
	}
	return b.String()
}

func (e *Error) Is(target error) bool { return target == ErrInvalid }

// FieldsOf extracts violations from err, if any.
func FieldsOf(err error) (Violations, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Fields, true
	}
	return nil, false
}
