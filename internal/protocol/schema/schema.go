// Package schema validates decoded payloads against `validate` struct tags.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	logs "github.com/danmuck/urigallery/internal/logging"
)

var ErrValidation = errors.New("schema: validation failed")

type ValidationError struct {
	Type   string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: type=%s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("schema: type=%s field=%s: %s", e.Type, e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("msgpack"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks v, which may be a struct, a pointer to one, or a slice/array of them.
// Values without struct elements pass unchanged.
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ValidationError{Type: typeName(v), Reason: "nil value"}
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return validateStruct(rv, "")
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i)
			for elem.Kind() == reflect.Pointer && !elem.IsNil() {
				elem = elem.Elem()
			}
			if elem.Kind() != reflect.Struct {
				continue
			}
			if err := validateStruct(elem, fmt.Sprintf("[%d]", i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStruct(rv reflect.Value, prefix string) error {
	err := instance().Struct(rv.Interface())
	if err == nil {
		return nil
	}
	name := rv.Type().String()
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		logs.Debugf("schema.Validate type=%s field=%s%s tag=%s", name, prefix, fe.Namespace(), fe.Tag())
		return ValidationError{
			Type:   name,
			Field:  prefix + fe.Namespace(),
			Reason: fmt.Sprintf("failed %q constraint", fe.Tag()),
		}
	}
	return ValidationError{Type: name, Reason: err.Error()}
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
